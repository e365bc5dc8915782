package enums

import "fmt"

// TransactionDirection maps to the transaction_direction_enum enum in
// Postgres. Liability marks freeze/release movements that reserve funds
// without changing total holdings.
type TransactionDirection string

const (
	TransactionDirectionCredit    TransactionDirection = "credit"
	TransactionDirectionDebit     TransactionDirection = "debit"
	TransactionDirectionLiability TransactionDirection = "liability"
)

var validTransactionDirections = []TransactionDirection{
	TransactionDirectionCredit,
	TransactionDirectionDebit,
	TransactionDirectionLiability,
}

// String implements fmt.Stringer.
func (d TransactionDirection) String() string {
	return string(d)
}

// IsValid reports whether the value is a known TransactionDirection.
func (d TransactionDirection) IsValid() bool {
	for _, candidate := range validTransactionDirections {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseTransactionDirection converts raw input into a TransactionDirection.
func ParseTransactionDirection(value string) (TransactionDirection, error) {
	for _, candidate := range validTransactionDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction direction %q", value)
}
