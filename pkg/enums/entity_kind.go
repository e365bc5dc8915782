package enums

import "fmt"

// EntityKind identifies the external domain object a transaction relates to.
// The ledger stores the reference for audit queries and never dereferences it.
type EntityKind string

const (
	EntityKindOrder        EntityKind = "order"
	EntityKindBooking      EntityKind = "booking"
	EntityKindSubscription EntityKind = "subscription"
	EntityKindPayout       EntityKind = "payout"
	EntityKindGatewayEvent EntityKind = "gateway_event"
	EntityKindManual       EntityKind = "manual"
)

var validEntityKinds = []EntityKind{
	EntityKindOrder,
	EntityKindBooking,
	EntityKindSubscription,
	EntityKindPayout,
	EntityKindGatewayEvent,
	EntityKindManual,
}

// String implements fmt.Stringer.
func (k EntityKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known EntityKind.
func (k EntityKind) IsValid() bool {
	for _, candidate := range validEntityKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseEntityKind converts raw input into an EntityKind.
func ParseEntityKind(value string) (EntityKind, error) {
	for _, candidate := range validEntityKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entity kind %q", value)
}
