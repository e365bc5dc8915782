package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo, config.LedgerConfig{
		DefaultDailyLimit:   decimal.NewFromInt(1000),
		DefaultMonthlyLimit: decimal.NewFromInt(5000),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func activeAccount(balance, frozen int64, now time.Time) *models.Account {
	return &models.Account{
		ID:                 uuid.New(),
		Status:             enums.AccountStatusActive,
		Balance:            decimal.NewFromInt(balance),
		FrozenBalance:      decimal.NewFromInt(frozen),
		DailyWindowStart:   now,
		MonthlyWindowStart: now,
	}
}

func TestCanTransactAllowsSpendWithinPolicy(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &stubAccountRepo{})
	account := activeAccount(500, 0, now)

	err := svc.CanTransact(account, decimal.NewFromInt(100), enums.TransactionDirectionDebit, now)
	if err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestCanTransactRejectsInactiveAccount(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t, &stubAccountRepo{})
	account := activeAccount(500, 0, now)
	account.Status = enums.AccountStatusSuspended

	err := svc.CanTransact(account, decimal.NewFromInt(10), enums.TransactionDirectionDebit, now)
	if !pkgerrors.HasCode(err, pkgerrors.CodeAccountNotActive) {
		t.Fatalf("expected ACCOUNT_NOT_ACTIVE, got %v", err)
	}
}

func TestCanTransactRejectsInsufficientAvailable(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t, &stubAccountRepo{})
	account := activeAccount(100, 80, now)

	err := svc.CanTransact(account, decimal.NewFromInt(50), enums.TransactionDirectionDebit, now)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
}

func TestCanTransactFrozenFundsDoNotBlockCredit(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t, &stubAccountRepo{})
	account := activeAccount(100, 100, now)

	err := svc.CanTransact(account, decimal.NewFromInt(50), enums.TransactionDirectionCredit, now)
	if err != nil {
		t.Fatalf("credit should not require available funds, got %v", err)
	}
}

func TestCanTransactEnforcesDailyLimit(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t, &stubAccountRepo{})
	account := activeAccount(5000, 0, now)
	account.DailySpent = decimal.NewFromInt(950)

	err := svc.CanTransact(account, decimal.NewFromInt(100), enums.TransactionDirectionDebit, now)
	if !pkgerrors.HasCode(err, pkgerrors.CodeLimitExceeded) {
		t.Fatalf("expected LIMIT_EXCEEDED, got %v", err)
	}
}

func TestCanTransactStaleWindowRollsBeforeLimitCheck(t *testing.T) {
	yesterday := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := yesterday.Add(24 * time.Hour)
	svc := newTestService(t, &stubAccountRepo{})
	account := activeAccount(5000, 0, yesterday)
	account.DailySpent = decimal.NewFromInt(999)

	err := svc.CanTransact(account, decimal.NewFromInt(100), enums.TransactionDirectionDebit, now)
	if err != nil {
		t.Fatalf("stale window should reset before the limit check, got %v", err)
	}
	if !account.DailySpent.IsZero() {
		t.Fatalf("expected rolled accumulator, got %s", account.DailySpent)
	}
}

func TestCanTransactAccountOverrideBeatsDefaultLimit(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t, &stubAccountRepo{})
	account := activeAccount(100000, 0, now)
	account.DailyLimit = decimal.NewFromInt(50)

	err := svc.CanTransact(account, decimal.NewFromInt(60), enums.TransactionDirectionDebit, now)
	if !pkgerrors.HasCode(err, pkgerrors.CodeLimitExceeded) {
		t.Fatalf("expected LIMIT_EXCEEDED from account override, got %v", err)
	}
}

func TestGetOrCreateValidatesInput(t *testing.T) {
	svc := newTestService(t, &stubAccountRepo{})

	if _, err := svc.GetOrCreate(context.Background(), uuid.Nil, enums.OwnerKindCustomer, enums.CurrencyUSD); err == nil {
		t.Fatal("expected error for nil owner id")
	}
	if _, err := svc.GetOrCreate(context.Background(), uuid.New(), enums.OwnerKind("ghost"), enums.CurrencyUSD); err == nil {
		t.Fatal("expected error for invalid owner kind")
	}
	if _, err := svc.GetOrCreate(context.Background(), uuid.New(), enums.OwnerKindCustomer, enums.Currency("XXX")); err == nil {
		t.Fatal("expected error for invalid currency")
	}
}

type stubAccountRepo struct {
	account *models.Account
	err     error
}

func (s *stubAccountRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubAccountRepo) GetOrCreate(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind, currency enums.Currency) (*models.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.account != nil {
		return s.account, nil
	}
	return &models.Account{ID: uuid.New(), OwnerID: ownerID, OwnerKind: ownerKind, Currency: currency, Status: enums.AccountStatusActive}, nil
}

func (s *stubAccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.account, nil
}

func (s *stubAccountRepo) FindByOwner(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind) (*models.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.account, nil
}

func (s *stubAccountRepo) UpdateCAS(ctx context.Context, account *models.Account) error {
	return s.err
}
