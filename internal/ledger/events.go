package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
)

// EventPayload is the domain event body emitted after every committed
// mutation, one per transaction row.
type EventPayload struct {
	TransactionID uuid.UUID                  `json:"transaction_id"`
	AccountID     uuid.UUID                  `json:"account_id"`
	Direction     enums.TransactionDirection `json:"direction"`
	Amount        decimal.Decimal            `json:"amount"`
	Status        enums.TransactionStatus    `json:"status"`
}

func payloadFor(txn *models.Transaction) EventPayload {
	return EventPayload{
		TransactionID: txn.ID,
		AccountID:     txn.AccountID,
		Direction:     txn.Direction,
		Amount:        txn.Amount,
		Status:        txn.Status,
	}
}

// outboxConsumedEvent dedupes on (event type, transaction): an entitlement
// is consumed at most once, so replays must not queue a second event.
func outboxConsumedEvent(txn *models.Transaction, at time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventEntitlementConsumed,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Data:          payloadFor(txn),
		Version:       1,
		OccurredAt:    at,
	}
}
