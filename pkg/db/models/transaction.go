package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/walletcore-backend/pkg/db/types"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// Transaction records one immutable monetary event. Monetary fields are
// frozen once the row reaches a terminal status; only the status trail and
// the validity-window flags may still be appended to. Refunds create a new
// linked row instead of editing the original. Version guards every update
// (compare-and-swap).
type Transaction struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	HumanID     string    `gorm:"column:human_id;not null;unique"`
	ReferenceID string    `gorm:"column:reference_id;not null;unique"`

	AccountID uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index"`
	OwnerID   uuid.UUID       `gorm:"column:owner_id;type:uuid;not null;index"`
	OwnerKind enums.OwnerKind `gorm:"column:owner_kind;type:owner_kind_enum;not null"`

	Amount    decimal.Decimal            `gorm:"column:amount;type:numeric(20,4);not null"`
	Currency  enums.Currency             `gorm:"column:currency;not null"`
	Direction enums.TransactionDirection `gorm:"column:direction;type:transaction_direction_enum;not null"`
	Purpose   enums.TransactionPurpose   `gorm:"column:purpose;type:transaction_purpose_enum;not null"`
	Status    enums.TransactionStatus    `gorm:"column:status;type:transaction_status_enum;not null;default:'pending'"`

	RelatedEntityKind *enums.EntityKind `gorm:"column:related_entity_kind;type:entity_kind_enum"`
	RelatedEntityID   *uuid.UUID        `gorm:"column:related_entity_id;type:uuid"`

	GrossAmount      decimal.Decimal        `gorm:"column:gross_amount;type:numeric(20,4);not null"`
	NetAmount        decimal.Decimal        `gorm:"column:net_amount;type:numeric(20,4);not null"`
	FeeBreakdown     json.RawMessage        `gorm:"column:fee_breakdown;type:jsonb"`
	SettlementStatus enums.SettlementStatus `gorm:"column:settlement_status;type:settlement_status_enum;not null;default:'unsettled'"`
	SettledAt        *time.Time             `gorm:"column:settled_at"`
	SettlementID     *string                `gorm:"column:settlement_id"`

	// Validity window: populated only for entitlement-granting purposes.
	ValidFrom     *time.Time `gorm:"column:valid_from"`
	ValidUntil    *time.Time `gorm:"column:valid_until"`
	IsExpired     bool       `gorm:"column:is_expired;not null;default:false"`
	IsConsumed    bool       `gorm:"column:is_consumed;not null;default:false"`
	ConsumedAt    *time.Time `gorm:"column:consumed_at"`
	ConsumedByRef *string    `gorm:"column:consumed_by_ref"`

	StatusHistory       dbtypes.StatusHistory `gorm:"column:status_history;type:jsonb"`
	ParentTransactionID *uuid.UUID            `gorm:"column:parent_transaction_id;type:uuid;index"`
	FailureReason       *string               `gorm:"column:failure_reason"`

	Version   int64     `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasValidityWindow reports whether the transaction carries an entitlement
// window.
func (t *Transaction) HasValidityWindow() bool {
	return t.ValidFrom != nil && t.ValidUntil != nil
}
