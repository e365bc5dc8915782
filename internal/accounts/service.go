package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

// Service defines account-level operations and policy checks.
type Service interface {
	WithTx(tx *gorm.DB) Service
	GetOrCreate(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind, currency enums.Currency) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	CanTransact(account *models.Account, amount decimal.Decimal, direction enums.TransactionDirection, now time.Time) error
	EffectiveDailyLimit(account *models.Account) decimal.Decimal
	EffectiveMonthlyLimit(account *models.Account) decimal.Decimal
}

type service struct {
	repo Repository
	cfg  config.LedgerConfig
}

// NewService wires an account service with the provided repository.
func NewService(repo Repository, cfg config.LedgerConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	return &service{repo: repo, cfg: cfg}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), cfg: s.cfg}
}

func (s *service) GetOrCreate(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind, currency enums.Currency) (*models.Account, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	if !ownerKind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid owner kind %q", ownerKind))
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", currency))
	}
	return s.repo.GetOrCreate(ctx, ownerID, ownerKind, currency)
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	return s.repo.FindByID(ctx, id)
}

// EffectiveDailyLimit resolves the account override or the configured default.
func (s *service) EffectiveDailyLimit(account *models.Account) decimal.Decimal {
	if account.DailyLimit.IsPositive() {
		return account.DailyLimit
	}
	return s.cfg.DefaultDailyLimit
}

// EffectiveMonthlyLimit resolves the account override or the configured default.
func (s *service) EffectiveMonthlyLimit(account *models.Account) decimal.Decimal {
	if account.MonthlyLimit.IsPositive() {
		return account.MonthlyLimit
	}
	return s.cfg.DefaultMonthlyLimit
}

// CanTransact applies the spending policy without mutating the account row
// itself: active status, rolling daily/monthly limits, and available funds
// for spend-side directions. Window accumulators are rolled in memory so a
// stale period never blocks a legitimate spend.
func (s *service) CanTransact(account *models.Account, amount decimal.Decimal, direction enums.TransactionDirection, now time.Time) error {
	if account == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be positive")
	}
	if !account.IsActive() {
		return pkgerrors.New(pkgerrors.CodeAccountNotActive, fmt.Sprintf("account %s is %s", account.ID, account.Status))
	}

	RollWindows(account, now)

	daily := s.EffectiveDailyLimit(account)
	if daily.IsPositive() && account.DailySpent.Add(amount).GreaterThan(daily) {
		return pkgerrors.New(pkgerrors.CodeLimitExceeded, "daily spending limit exceeded").
			WithDetails(map[string]string{
				"limit": daily.String(),
				"spent": account.DailySpent.String(),
			})
	}
	monthly := s.EffectiveMonthlyLimit(account)
	if monthly.IsPositive() && account.MonthlySpent.Add(amount).GreaterThan(monthly) {
		return pkgerrors.New(pkgerrors.CodeLimitExceeded, "monthly spending limit exceeded").
			WithDetails(map[string]string{
				"limit": monthly.String(),
				"spent": account.MonthlySpent.String(),
			})
	}

	if direction == enums.TransactionDirectionDebit || direction == enums.TransactionDirectionLiability {
		if account.AvailableBalance().LessThan(amount) {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "available balance is insufficient").
				WithDetails(map[string]string{
					"available": account.AvailableBalance().String(),
					"requested": amount.String(),
				})
		}
	}
	return nil
}
