package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/accounts"
	"github.com/angelmondragon/walletcore-backend/internal/sequence"
	"github.com/angelmondragon/walletcore-backend/internal/transactions"
	"github.com/angelmondragon/walletcore-backend/pkg/config"
	dbpkg "github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/walletcore-backend/pkg/db/types"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
)

// eventEmitter is the outbox surface the engine depends on.
type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Engine owns the unit of work for every ledger mutation: the account
// projection and the transaction row commit together or not at all.
// Concurrent writers are serialized by version CAS on both rows plus a
// bounded retry loop; every retry re-reads, so a lifecycle move that lost
// a race re-checks the fresh status before acting.
type Engine struct {
	db           dbpkg.TxRunner
	accountsSvc  accounts.Service
	accountsRepo accounts.Repository
	txns         transactions.Repository
	seq          sequence.Service
	emitter      eventEmitter
	metrics      *metrics.LedgerMetrics
	logg         *logger.Logger
	cfg          config.LedgerConfig
	now          func() time.Time
}

// EngineParams collects the engine's dependencies.
type EngineParams struct {
	DB           dbpkg.TxRunner
	Accounts     accounts.Service
	AccountsRepo accounts.Repository
	Transactions transactions.Repository
	Sequence     sequence.Service
	Outbox       eventEmitter
	Metrics      *metrics.LedgerMetrics
	Logger       *logger.Logger
	Config       config.LedgerConfig
}

// NewEngine wires a mutation engine. Metrics and the outbox emitter are
// optional; everything else is required.
func NewEngine(p EngineParams) (*Engine, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("ledger engine requires a transaction runner")
	}
	if p.Accounts == nil || p.AccountsRepo == nil {
		return nil, fmt.Errorf("ledger engine requires the accounts service and repository")
	}
	if p.Transactions == nil {
		return nil, fmt.Errorf("ledger engine requires the transactions repository")
	}
	if p.Sequence == nil {
		return nil, fmt.Errorf("ledger engine requires the sequence service")
	}
	if p.Config.MaxRetries <= 0 {
		p.Config.MaxRetries = 3
	}
	return &Engine{
		db:           p.DB,
		accountsSvc:  p.Accounts,
		accountsRepo: p.AccountsRepo,
		txns:         p.Transactions,
		seq:          p.Sequence,
		emitter:      p.Outbox,
		metrics:      p.Metrics,
		logg:         p.Logger,
		cfg:          p.Config,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// runMutation executes fn inside a transaction, retrying when a concurrent
// writer invalidated the optimistic lock. Every retry re-reads state from
// scratch, so no attempt ever acts on a stale balance.
func (e *Engine) runMutation(ctx context.Context, operation string, fn func(tx *gorm.DB) (*models.Transaction, error)) (*models.Transaction, error) {
	started := e.now()
	var result *models.Transaction
	var err error

	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			e.metrics.IncRetry(operation)
		}
		err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
			var innerErr error
			result, innerErr = fn(tx)
			return innerErr
		})
		if !pkgerrors.HasCode(err, pkgerrors.CodeConcurrentModification) {
			break
		}
	}

	e.metrics.ObserveOperation(operation, outcomeLabel(err), e.now().Sub(started))
	if err != nil {
		return nil, err
	}
	if e.logg != nil && result != nil {
		fields := map[string]any{
			"operation":      operation,
			"transaction_id": result.ID.String(),
			"account_id":     result.AccountID.String(),
			"amount":         result.Amount.String(),
			"status":         result.Status,
		}
		e.logg.Info(e.logg.WithFields(ctx, fields), "ledger mutation committed")
	}
	return result, nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if appErr := pkgerrors.As(err); appErr != nil {
		return strings.ToLower(string(appErr.Code()))
	}
	return "error"
}

// findReplay returns the original transaction when the reference has been
// used before. The same reference with the same amount is an idempotent
// replay and gets the original result back; a different amount is a hard
// conflict.
func (e *Engine) findReplay(ctx context.Context, tx *gorm.DB, referenceID string, amount decimal.Decimal) (*models.Transaction, error) {
	if strings.TrimSpace(referenceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}
	existing, err := e.txns.WithTx(tx).FindByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if !existing.Amount.Equal(amount) {
		return nil, pkgerrors.New(pkgerrors.CodeDuplicateReference,
			fmt.Sprintf("reference %s was already used with amount %s", referenceID, existing.Amount)).
			WithDetails(map[string]string{
				"reference_id":    referenceID,
				"original_amount": existing.Amount.String(),
				"replay_amount":   amount.String(),
			})
	}
	return existing, nil
}

func (e *Engine) validateAmount(amount decimal.Decimal, accountCurrency, requestCurrency enums.Currency) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be positive")
	}
	if requestCurrency != "" && requestCurrency != accountCurrency {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount,
			fmt.Sprintf("currency %s does not match account currency %s", requestCurrency, accountCurrency))
	}
	return nil
}

// newTransaction builds a row with a freshly allocated human id. Monetary
// fields default gross = net = amount unless the caller priced them apart.
func (e *Engine) newTransaction(ctx context.Context, tx *gorm.DB, account *models.Account, in transactionSeed) (*models.Transaction, error) {
	humanID, err := e.seq.WithTx(tx).NextID(ctx, sequence.TransactionPrefix)
	if err != nil {
		return nil, err
	}
	gross := in.GrossAmount
	if gross.IsZero() {
		gross = in.Amount
	}
	now := e.now()
	txn := &models.Transaction{
		HumanID:             humanID,
		ReferenceID:         in.ReferenceID,
		AccountID:           account.ID,
		OwnerID:             account.OwnerID,
		OwnerKind:           account.OwnerKind,
		Amount:              in.Amount,
		Currency:            account.Currency,
		Direction:           in.Direction,
		Purpose:             in.Purpose,
		Status:              enums.TransactionStatusPending,
		RelatedEntityKind:   in.RelatedEntityKind,
		RelatedEntityID:     in.RelatedEntityID,
		GrossAmount:         gross,
		NetAmount:           in.Amount,
		FeeBreakdown:        in.FeeBreakdown,
		SettlementStatus:    enums.SettlementStatusUnsettled,
		ParentTransactionID: in.ParentTransactionID,
		StatusHistory:       dbtypes.StatusHistory{}.Append(enums.TransactionStatusPending, in.Reason, now),
		CreatedAt:           now,
	}
	return txn, nil
}

// finalizeSuccess moves the row to success and stamps the entitlement
// window when the purpose grants one.
func (e *Engine) finalizeSuccess(txn *models.Transaction, reason string) error {
	if err := transactions.ApplyTransition(txn, enums.TransactionStatusSuccess, reason, e.now()); err != nil {
		return err
	}
	if days, ok := e.cfg.ValidityDays[string(txn.Purpose)]; ok {
		transactions.StartValidityWindow(txn, days, e.now())
	}
	return nil
}

// commitAccount applies the CAS write and keeps the recent-activity list
// fresh on the same round trip.
func (e *Engine) commitAccount(ctx context.Context, tx *gorm.DB, account *models.Account, txn *models.Transaction) error {
	if txn != nil {
		account.RecentTransactionIDs = account.RecentTransactionIDs.Prepend(txn.ID, models.RecentTransactionWindow)
	}
	return e.accountsRepo.WithTx(tx).UpdateCAS(ctx, account)
}

func (e *Engine) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, txn *models.Transaction) error {
	if e.emitter == nil {
		return nil
	}
	aggregateID := txn.AccountID
	if aggregate == enums.AggregateTransaction {
		aggregateID = txn.ID
	}
	return e.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Data:          payloadFor(txn),
		Version:       1,
		OccurredAt:    e.now(),
	})
}
