package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/walletcore-backend/pkg/db/types"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// RecentTransactionWindow bounds the non-authoritative recent-activity list
// kept on the account row. The transactions table remains the source of truth.
const RecentTransactionWindow = 10

// Account holds the mutable balance projection for one owner. Balances are a
// cached projection of the transaction ledger and must always be
// reconstructable from it. Rows are never deleted; suspension is the
// soft-delete state. Version guards every update (compare-and-swap).
type Account struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID   uuid.UUID       `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:ux_accounts_owner"`
	OwnerKind enums.OwnerKind `gorm:"column:owner_kind;type:owner_kind_enum;not null;uniqueIndex:ux_accounts_owner"`

	Currency      enums.Currency      `gorm:"column:currency;not null;default:'USD'"`
	Balance       decimal.Decimal     `gorm:"column:balance;type:numeric(20,4);not null;default:0"`
	FrozenBalance decimal.Decimal     `gorm:"column:frozen_balance;type:numeric(20,4);not null;default:0"`
	Status        enums.AccountStatus `gorm:"column:status;type:account_status_enum;not null;default:'active'"`

	DailySpent         decimal.Decimal `gorm:"column:daily_spent;type:numeric(20,4);not null;default:0"`
	DailyWindowStart   time.Time       `gorm:"column:daily_window_start"`
	MonthlySpent       decimal.Decimal `gorm:"column:monthly_spent;type:numeric(20,4);not null;default:0"`
	MonthlyWindowStart time.Time       `gorm:"column:monthly_window_start"`

	// Zero limit means "inherit the configured default".
	DailyLimit   decimal.Decimal `gorm:"column:daily_limit;type:numeric(20,4);not null;default:0"`
	MonthlyLimit decimal.Decimal `gorm:"column:monthly_limit;type:numeric(20,4);not null;default:0"`

	RecentTransactionIDs dbtypes.UUIDArray `gorm:"column:recent_transaction_ids;type:uuid[]"`

	Version   int64     `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// AvailableBalance is the spendable portion: balance minus frozen funds.
// Derived, never stored.
func (a *Account) AvailableBalance() decimal.Decimal {
	return a.Balance.Sub(a.FrozenBalance)
}

// IsActive reports whether the account currently permits mutation.
func (a *Account) IsActive() bool {
	return a.Status == enums.AccountStatusActive
}
