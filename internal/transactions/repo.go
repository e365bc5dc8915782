package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/pagination"
)

// ListFilters narrows the transaction listing.
type ListFilters struct {
	Purpose   *enums.TransactionPurpose
	Status    *enums.TransactionStatus
	Direction *enums.TransactionDirection
}

// Page is one cursor page of transactions.
type Page struct {
	Items      []models.Transaction
	NextCursor string
}

// Repository manages persistence for transaction rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByReference(ctx context.Context, referenceID string) (*models.Transaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, filters ListFilters, params pagination.Params) (*Page, error)
	LatestValidEntitlement(ctx context.Context, accountID uuid.UUID, purpose enums.TransactionPurpose, now time.Time) (*models.Transaction, error)
	SumRefunded(ctx context.Context, parentID uuid.UUID) (decimal.Decimal, error)
	Update(ctx context.Context, txn *models.Transaction) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transaction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).First(&txn, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, err
	}
	return &txn, nil
}

// FindByReference returns nil, nil when no row carries the reference; the
// engine uses the distinction for idempotent replay detection.
func (r *repository) FindByReference(ctx context.Context, referenceID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).First(&txn, "reference_id = ?", referenceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, filters ListFilters, params pagination.Params) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	if filters.Purpose != nil {
		query = query.Where("purpose = ?", *filters.Purpose)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Direction != nil {
		query = query.Where("direction = ?", *filters.Direction)
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Transaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	page := &Page{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	page.Items = rows
	return page, nil
}

// LatestValidEntitlement answers "does this account hold a usable
// entitlement of this purpose" in a single query.
func (r *repository) LatestValidEntitlement(ctx context.Context, accountID uuid.UUID, purpose enums.TransactionPurpose, now time.Time) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND purpose = ?", accountID, purpose).
		Where("status = ?", enums.TransactionStatusSuccess).
		Where("is_consumed = ? AND is_expired = ?", false, false).
		Where("valid_until > ?", now.UTC()).
		Order("created_at DESC").
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no valid entitlement")
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) SumRefunded(ctx context.Context, parentID uuid.UUID) (decimal.Decimal, error) {
	var raw *string
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("SUM(amount)").
		Where("parent_transaction_id = ?", parentID).
		Where("status IN ?", []enums.TransactionStatus{
			enums.TransactionStatusPending,
			enums.TransactionStatusProcessing,
			enums.TransactionStatusSuccess,
		}).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

// Update persists the mutable tail of the row behind a version predicate,
// mirroring the account CAS. Monetary fields are never written back. Zero
// affected rows means a concurrent writer got there first; the caller must
// re-read before retrying.
func (r *repository) Update(ctx context.Context, txn *models.Transaction) error {
	currentVersion := txn.Version
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND version = ?", txn.ID, currentVersion).
		Updates(map[string]any{
			"status":            txn.Status,
			"settlement_status": txn.SettlementStatus,
			"settled_at":        txn.SettledAt,
			"settlement_id":     txn.SettlementID,
			"is_expired":        txn.IsExpired,
			"is_consumed":       txn.IsConsumed,
			"consumed_at":       txn.ConsumedAt,
			"consumed_by_ref":   txn.ConsumedByRef,
			"status_history":    txn.StatusHistory,
			"failure_reason":    txn.FailureReason,
			"version":           currentVersion + 1,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrentModification, "transaction was modified concurrently")
	}
	txn.Version = currentVersion + 1
	return nil
}
