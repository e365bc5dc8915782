package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregateAccount     OutboxAggregateType = "account"
	AggregateTransaction OutboxAggregateType = "transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateAccount,
	AggregateTransaction,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type_enum enum in Postgres.
type OutboxEventType string

const (
	EventAccountCredited      OutboxEventType = "account_credited"
	EventAccountDebited       OutboxEventType = "account_debited"
	EventFundsFrozen          OutboxEventType = "funds_frozen"
	EventFundsReleased        OutboxEventType = "funds_released"
	EventFundsSettled         OutboxEventType = "funds_settled"
	EventTransactionRefunded  OutboxEventType = "transaction_refunded"
	EventTransactionLifecycle OutboxEventType = "transaction_lifecycle"
	EventEntitlementConsumed  OutboxEventType = "entitlement_consumed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventAccountCredited,
	EventAccountDebited,
	EventFundsFrozen,
	EventFundsReleased,
	EventFundsSettled,
	EventTransactionRefunded,
	EventTransactionLifecycle,
	EventEntitlementConsumed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
