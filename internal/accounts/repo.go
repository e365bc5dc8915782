package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

// Repository manages persistence for accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetOrCreate(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind, currency enums.Currency) (*models.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind) (*models.Account, error)
	UpdateCAS(ctx context.Context, account *models.Account) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an account repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// GetOrCreate inserts the owner's account if absent and returns the current
// row. The conflict-do-nothing insert guarantees at most one row is created
// under concurrent first use.
func (r *repository) GetOrCreate(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind, currency enums.Currency) (*models.Account, error) {
	now := time.Now().UTC()
	candidate := models.Account{
		ID:                 uuid.New(),
		OwnerID:            ownerID,
		OwnerKind:          ownerKind,
		Currency:           currency,
		Status:             enums.AccountStatusActive,
		DailyWindowStart:   now,
		MonthlyWindowStart: now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "owner_kind"}},
			DoNothing: true,
		}).
		Create(&candidate).Error
	if err != nil {
		return nil, err
	}
	return r.FindByOwner(ctx, ownerID, ownerKind)
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByOwner(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		First(&account, "owner_id = ? AND owner_kind = ?", ownerID, ownerKind).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, err
	}
	return &account, nil
}

// UpdateCAS persists the account only when nobody else has written it since
// it was read. The version predicate is the optimistic lock; zero affected
// rows means the caller lost the race and must re-read before retrying.
func (r *repository) UpdateCAS(ctx context.Context, account *models.Account) error {
	currentVersion := account.Version
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND version = ?", account.ID, currentVersion).
		Updates(map[string]any{
			"balance":                account.Balance,
			"frozen_balance":         account.FrozenBalance,
			"status":                 account.Status,
			"daily_spent":            account.DailySpent,
			"daily_window_start":     account.DailyWindowStart,
			"monthly_spent":          account.MonthlySpent,
			"monthly_window_start":   account.MonthlyWindowStart,
			"recent_transaction_ids": account.RecentTransactionIDs,
			"version":                currentVersion + 1,
			"updated_at":             time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrentModification, "account was modified concurrently")
	}
	account.Version = currentVersion + 1
	return nil
}
