package enums

import "fmt"

// OwnerKind maps to the owner_kind_enum enum in Postgres. Each kind identifies
// which external party table an account's owner reference points at; the
// ledger never dereferences it.
type OwnerKind string

const (
	OwnerKindCustomer OwnerKind = "customer"
	OwnerKindMerchant OwnerKind = "merchant"
	OwnerKindOperator OwnerKind = "operator"
)

var validOwnerKinds = []OwnerKind{
	OwnerKindCustomer,
	OwnerKindMerchant,
	OwnerKindOperator,
}

// String implements fmt.Stringer.
func (k OwnerKind) String() string {
	return string(k)
}

// IsValid reports whether the value matches the canonical owner kind enum.
func (k OwnerKind) IsValid() bool {
	for _, candidate := range validOwnerKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseOwnerKind converts raw input into an OwnerKind.
func ParseOwnerKind(value string) (OwnerKind, error) {
	for _, candidate := range validOwnerKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid owner kind %q", value)
}
