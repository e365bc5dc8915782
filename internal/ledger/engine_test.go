package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/accounts"
	"github.com/angelmondragon/walletcore-backend/internal/sequence"
	"github.com/angelmondragon/walletcore-backend/internal/transactions"
	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/pagination"
)

type engineFixture struct {
	engine   *Engine
	accounts *fakeAccountStore
	txns     *fakeTxnStore
	emitter  *fakeEmitter
	clock    *fakeClock
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	accountStore := newFakeAccountStore()
	txnStore := newFakeTxnStore()
	emitter := &fakeEmitter{}
	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}

	cfg := config.LedgerConfig{
		DefaultDailyLimit:   decimal.NewFromInt(100000),
		DefaultMonthlyLimit: decimal.NewFromInt(1000000),
		MaxRetries:          3,
		ValidityDays:        map[string]int{"compliance_payment": 30},
	}
	accountsSvc, err := accounts.NewService(accountStore, cfg)
	if err != nil {
		t.Fatalf("accounts service: %v", err)
	}
	seqSvc, err := sequence.NewService(&fakeSeqRepo{})
	if err != nil {
		t.Fatalf("sequence service: %v", err)
	}
	engine, err := NewEngine(EngineParams{
		DB:           fakeTxRunner{},
		Accounts:     accountsSvc,
		AccountsRepo: accountStore,
		Transactions: txnStore,
		Sequence:     seqSvc,
		Outbox:       emitter,
		Config:       cfg,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	engine.now = clock.Now

	return &engineFixture{
		engine:   engine,
		accounts: accountStore,
		txns:     txnStore,
		emitter:  emitter,
		clock:    clock,
	}
}

func (f *engineFixture) credit(t *testing.T, owner uuid.UUID, amount int64, ref string) *models.Transaction {
	t.Helper()
	txn, err := f.engine.Credit(context.Background(), CreditInput{
		OwnerID:     owner,
		OwnerKind:   enums.OwnerKindCustomer,
		Currency:    enums.CurrencyUSD,
		Amount:      decimal.NewFromInt(amount),
		Purpose:     enums.TransactionPurposeTopUp,
		ReferenceID: ref,
	})
	if err != nil {
		t.Fatalf("credit %s: %v", ref, err)
	}
	return txn
}

func (f *engineFixture) balance(t *testing.T, accountID uuid.UUID) *BalanceView {
	t.Helper()
	view, err := f.engine.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	return view
}

func TestCreditCreatesAccountAndTransaction(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()

	txn := f.credit(t, owner, 500, "ref-credit-1")

	if txn.Status != enums.TransactionStatusSuccess {
		t.Fatalf("expected success, got %s", txn.Status)
	}
	if txn.HumanID != "TXN-000001" {
		t.Fatalf("unexpected human id %s", txn.HumanID)
	}
	view := f.balance(t, txn.AccountID)
	if !view.Balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected balance 500, got %s", view.Balance)
	}
	if len(f.emitter.events) != 1 || f.emitter.events[0].EventType != enums.EventAccountCredited {
		t.Fatalf("expected one account_credited event, got %+v", f.emitter.events)
	}

	account := f.accounts.get(txn.AccountID)
	if len(account.RecentTransactionIDs) != 1 || account.RecentTransactionIDs[0] != txn.ID {
		t.Fatalf("recent transaction list not maintained: %v", account.RecentTransactionIDs)
	}
}

func TestCreditReplaySameAmountReturnsOriginal(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()

	first := f.credit(t, owner, 500, "R1")
	second := f.credit(t, owner, 500, "R1")

	if first.ID != second.ID {
		t.Fatalf("replay must return the original transaction")
	}
	if f.txns.count() != 1 {
		t.Fatalf("expected 1 transaction, got %d", f.txns.count())
	}
	view := f.balance(t, first.AccountID)
	if !view.Balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("replay must not double-apply, balance %s", view.Balance)
	}
}

func TestReplayWithDifferentAmountIsConflict(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	f.credit(t, owner, 500, "R1")

	_, err := f.engine.Credit(context.Background(), CreditInput{
		OwnerID:     owner,
		OwnerKind:   enums.OwnerKindCustomer,
		Currency:    enums.CurrencyUSD,
		Amount:      decimal.NewFromInt(750),
		Purpose:     enums.TransactionPurposeTopUp,
		ReferenceID: "R1",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeDuplicateReference) {
		t.Fatalf("expected DUPLICATE_REFERENCE, got %v", err)
	}
}

func TestCreditRejectsInvalidAmountAndCurrency(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	f.credit(t, owner, 100, "seed")

	_, err := f.engine.Credit(context.Background(), CreditInput{
		OwnerID:     owner,
		OwnerKind:   enums.OwnerKindCustomer,
		Currency:    enums.CurrencyUSD,
		Amount:      decimal.Zero,
		Purpose:     enums.TransactionPurposeTopUp,
		ReferenceID: "zero-amount",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidAmount) {
		t.Fatalf("expected INVALID_AMOUNT for zero, got %v", err)
	}

	_, err = f.engine.Credit(context.Background(), CreditInput{
		OwnerID:     owner,
		OwnerKind:   enums.OwnerKindCustomer,
		Currency:    enums.CurrencyEUR,
		Amount:      decimal.NewFromInt(10),
		Purpose:     enums.TransactionPurposeTopUp,
		ReferenceID: "wrong-currency",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidAmount) {
		t.Fatalf("expected INVALID_AMOUNT for currency mismatch, got %v", err)
	}
}

func TestDebitInsufficientFundsCommitsNothing(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	seed := f.credit(t, owner, 100, "seed")
	before := f.balance(t, seed.AccountID)
	txnsBefore := f.txns.count()

	_, err := f.engine.Debit(context.Background(), DebitInput{
		AccountID:   seed.AccountID,
		Amount:      decimal.NewFromInt(150),
		Purpose:     enums.TransactionPurposeOrderPayment,
		ReferenceID: "over-debit",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}

	after := f.balance(t, seed.AccountID)
	if !after.Balance.Equal(before.Balance) || !after.FrozenBalance.Equal(before.FrozenBalance) {
		t.Fatalf("failed debit mutated the account: before %+v after %+v", before, after)
	}
	if f.txns.count() != txnsBefore {
		t.Fatalf("failed debit left a transaction row")
	}
}

func TestScenarioCreditFreezeSettle(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()

	seed := f.credit(t, owner, 500, "A")
	accountID := seed.AccountID

	if _, err := f.engine.Freeze(context.Background(), HoldInput{
		AccountID: accountID, Amount: decimal.NewFromInt(200), Reason: "payout hold", ReferenceID: "B",
	}); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	view := f.balance(t, accountID)
	if !view.Balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("freeze must conserve balance, got %s", view.Balance)
	}
	if !view.FrozenBalance.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected frozen 200, got %s", view.FrozenBalance)
	}
	if !view.AvailableBalance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected available 300, got %s", view.AvailableBalance)
	}

	if _, err := f.engine.SettleFrozen(context.Background(), HoldInput{
		AccountID: accountID, Amount: decimal.NewFromInt(200), ReferenceID: "C",
	}); err != nil {
		t.Fatalf("settle frozen: %v", err)
	}
	view = f.balance(t, accountID)
	if !view.Balance.Equal(decimal.NewFromInt(300)) || !view.FrozenBalance.IsZero() {
		t.Fatalf("expected balance 300 frozen 0, got balance %s frozen %s", view.Balance, view.FrozenBalance)
	}
}

func TestFreezeReleaseRoundTrip(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	seed := f.credit(t, owner, 500, "seed")
	before := f.balance(t, seed.AccountID)

	if _, err := f.engine.Freeze(context.Background(), HoldInput{
		AccountID: seed.AccountID, Amount: decimal.NewFromInt(120), ReferenceID: "hold-1",
	}); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := f.engine.Release(context.Background(), HoldInput{
		AccountID: seed.AccountID, Amount: decimal.NewFromInt(120), ReferenceID: "release-1",
	}); err != nil {
		t.Fatalf("release: %v", err)
	}

	after := f.balance(t, seed.AccountID)
	if !after.Balance.Equal(before.Balance) || !after.FrozenBalance.Equal(before.FrozenBalance) {
		t.Fatalf("round trip must restore pre-freeze state: before %+v after %+v", before, after)
	}
}

func TestReleaseMoreThanFrozenFails(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	seed := f.credit(t, owner, 500, "seed")
	if _, err := f.engine.Freeze(context.Background(), HoldInput{
		AccountID: seed.AccountID, Amount: decimal.NewFromInt(50), ReferenceID: "hold",
	}); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	_, err := f.engine.Release(context.Background(), HoldInput{
		AccountID: seed.AccountID, Amount: decimal.NewFromInt(80), ReferenceID: "release",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
}

func TestSuspendedAccountRejectsReleaseSettleAndRefund(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	seed := f.credit(t, owner, 500, "seed")
	debit, err := f.engine.Debit(context.Background(), DebitInput{
		AccountID:   seed.AccountID,
		Amount:      decimal.NewFromInt(100),
		Purpose:     enums.TransactionPurposeOrderPayment,
		ReferenceID: "order-1",
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, err := f.engine.Freeze(context.Background(), HoldInput{
		AccountID: seed.AccountID, Amount: decimal.NewFromInt(100), ReferenceID: "hold-1",
	}); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	f.accounts.setStatus(seed.AccountID, enums.AccountStatusSuspended)

	_, err = f.engine.Release(context.Background(), HoldInput{
		AccountID: seed.AccountID, Amount: decimal.NewFromInt(100), ReferenceID: "release-1",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeAccountNotActive) {
		t.Fatalf("release on suspended account: expected ACCOUNT_NOT_ACTIVE, got %v", err)
	}
	_, err = f.engine.SettleFrozen(context.Background(), HoldInput{
		AccountID: seed.AccountID, Amount: decimal.NewFromInt(100), ReferenceID: "settle-1",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeAccountNotActive) {
		t.Fatalf("settle on suspended account: expected ACCOUNT_NOT_ACTIVE, got %v", err)
	}
	_, err = f.engine.Refund(context.Background(), RefundInput{
		TransactionID: debit.ID, Amount: decimal.NewFromInt(50), ReferenceID: "refund-1",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeAccountNotActive) {
		t.Fatalf("refund into suspended account: expected ACCOUNT_NOT_ACTIVE, got %v", err)
	}

	view := f.balance(t, seed.AccountID)
	if !view.Balance.Equal(decimal.NewFromInt(400)) || !view.FrozenBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("rejected operations mutated the account: %+v", view)
	}
}

func TestConcurrentDebitsOnlyOneSucceeds(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	seed := f.credit(t, owner, 100, "seed")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Debit(context.Background(), DebitInput{
				AccountID:   seed.AccountID,
				Amount:      decimal.NewFromInt(60),
				Purpose:     enums.TransactionPurposeOrderPayment,
				ReferenceID: fmt.Sprintf("debit-%d", i),
			})
		}(i)
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one success and one rejection, got %d/%d", succeeded, insufficient)
	}
	view := f.balance(t, seed.AccountID)
	if !view.Balance.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected final balance 40, got %s", view.Balance)
	}
}

func TestRefundLinksParentAndPreservesOriginal(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	f.credit(t, owner, 500, "seed")
	debit, err := f.engine.Debit(context.Background(), DebitInput{
		AccountID:   f.accounts.byOwner(owner).ID,
		Amount:      decimal.NewFromInt(100),
		Purpose:     enums.TransactionPurposeOrderPayment,
		ReferenceID: "order-1",
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	historyBefore := len(debit.StatusHistory)

	refund, err := f.engine.Refund(context.Background(), RefundInput{
		TransactionID: debit.ID,
		Amount:        decimal.NewFromInt(40),
		Reason:        "partial return",
		ReferenceID:   "refund-1",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}

	if refund.ParentTransactionID == nil || *refund.ParentTransactionID != debit.ID {
		t.Fatalf("refund must link its parent")
	}
	if refund.Direction != enums.TransactionDirectionCredit {
		t.Fatalf("refund of a debit must be a credit, got %s", refund.Direction)
	}

	original := f.txns.get(debit.ID)
	if !original.Amount.Equal(decimal.NewFromInt(100)) || original.Direction != enums.TransactionDirectionDebit {
		t.Fatalf("original monetary fields must be untouched: %+v", original)
	}
	if original.Status != enums.TransactionStatusSuccess {
		t.Fatalf("partially refunded parent stays success, got %s", original.Status)
	}
	if len(original.StatusHistory) != historyBefore+1 {
		t.Fatalf("expected one appended history entry, got %d", len(original.StatusHistory)-historyBefore)
	}

	view := f.balance(t, debit.AccountID)
	if !view.Balance.Equal(decimal.NewFromInt(440)) {
		t.Fatalf("expected balance 440 after partial refund, got %s", view.Balance)
	}
}

func TestFullRefundFlipsParentToRefunded(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	f.credit(t, owner, 500, "seed")
	debit, err := f.engine.Debit(context.Background(), DebitInput{
		AccountID:   f.accounts.byOwner(owner).ID,
		Amount:      decimal.NewFromInt(100),
		Purpose:     enums.TransactionPurposeOrderPayment,
		ReferenceID: "order-1",
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}

	if _, err := f.engine.Refund(context.Background(), RefundInput{
		TransactionID: debit.ID, Amount: decimal.NewFromInt(60), ReferenceID: "refund-1",
	}); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if _, err := f.engine.Refund(context.Background(), RefundInput{
		TransactionID: debit.ID, Amount: decimal.NewFromInt(40), ReferenceID: "refund-2",
	}); err != nil {
		t.Fatalf("second refund: %v", err)
	}

	if got := f.txns.get(debit.ID).Status; got != enums.TransactionStatusRefunded {
		t.Fatalf("fully refunded parent must be refunded, got %s", got)
	}

	_, err = f.engine.Refund(context.Background(), RefundInput{
		TransactionID: debit.ID, Amount: decimal.NewFromInt(1), ReferenceID: "refund-3",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("refunded parent must reject further refunds, got %v", err)
	}
}

func TestRefundCannotExceedRemainder(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	f.credit(t, owner, 500, "seed")
	debit, err := f.engine.Debit(context.Background(), DebitInput{
		AccountID:   f.accounts.byOwner(owner).ID,
		Amount:      decimal.NewFromInt(100),
		Purpose:     enums.TransactionPurposeOrderPayment,
		ReferenceID: "order-1",
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, err := f.engine.Refund(context.Background(), RefundInput{
		TransactionID: debit.ID, Amount: decimal.NewFromInt(80), ReferenceID: "refund-1",
	}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	_, err = f.engine.Refund(context.Background(), RefundInput{
		TransactionID: debit.ID, Amount: decimal.NewFromInt(30), ReferenceID: "refund-2",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidAmount) {
		t.Fatalf("expected INVALID_AMOUNT for over-refund, got %v", err)
	}
}

func TestRefundRejectsHoldMovements(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	seed := f.credit(t, owner, 500, "seed")
	hold, err := f.engine.Freeze(context.Background(), HoldInput{
		AccountID: seed.AccountID, Amount: decimal.NewFromInt(200), ReferenceID: "hold-1",
	})
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}

	// The freeze's success row records a hold, not a payment; refunding it
	// would mint spendable funds while the hold stays frozen.
	_, err = f.engine.Refund(context.Background(), RefundInput{
		TransactionID: hold.ID, Amount: decimal.NewFromInt(200), ReferenceID: "refund-hold",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}

	view := f.balance(t, seed.AccountID)
	if !view.Balance.Equal(decimal.NewFromInt(500)) || !view.FrozenBalance.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("rejected refund mutated the account: balance %s frozen %s", view.Balance, view.FrozenBalance)
	}
}

func TestRefundOfRefundRejected(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	f.credit(t, owner, 500, "seed")
	debit, err := f.engine.Debit(context.Background(), DebitInput{
		AccountID:   f.accounts.byOwner(owner).ID,
		Amount:      decimal.NewFromInt(100),
		Purpose:     enums.TransactionPurposeOrderPayment,
		ReferenceID: "order-1",
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	refund, err := f.engine.Refund(context.Background(), RefundInput{
		TransactionID: debit.ID, Amount: decimal.NewFromInt(40), ReferenceID: "refund-1",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}

	_, err = f.engine.Refund(context.Background(), RefundInput{
		TransactionID: refund.ID, Amount: decimal.NewFromInt(40), ReferenceID: "refund-2",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT for refund of a refund, got %v", err)
	}
}

func TestEntitlementWindowLifecycle(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	f.credit(t, owner, 500, "seed")
	accountID := f.accounts.byOwner(owner).ID

	payment, err := f.engine.Debit(context.Background(), DebitInput{
		AccountID:   accountID,
		Amount:      decimal.NewFromInt(50),
		Purpose:     enums.TransactionPurposeCompliancePayment,
		ReferenceID: "kyc-1",
	})
	if err != nil {
		t.Fatalf("compliance debit: %v", err)
	}
	if payment.ValidUntil == nil {
		t.Fatal("compliance payment must carry a validity window")
	}
	wantUntil := f.clock.Now().Add(30 * 24 * time.Hour)
	if !payment.ValidUntil.Equal(wantUntil) {
		t.Fatalf("expected validUntil %s, got %s", wantUntil, payment.ValidUntil)
	}

	view, err := f.engine.GetLatestValidEntitlement(context.Background(), accountID, enums.TransactionPurposeCompliancePayment)
	if err != nil {
		t.Fatalf("entitlement lookup: %v", err)
	}
	if !view.CanConsume {
		t.Fatal("fresh entitlement should be consumable")
	}

	f.clock.Advance(31 * 24 * time.Hour)
	_, err = f.engine.GetLatestValidEntitlement(context.Background(), accountID, enums.TransactionPurposeCompliancePayment)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expired entitlement must not be found, got %v", err)
	}
}

func TestMarkConsumedViaEngine(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	f.credit(t, owner, 500, "seed")
	accountID := f.accounts.byOwner(owner).ID

	payment, err := f.engine.Debit(context.Background(), DebitInput{
		AccountID:   accountID,
		Amount:      decimal.NewFromInt(50),
		Purpose:     enums.TransactionPurposeCompliancePayment,
		ReferenceID: "kyc-1",
	})
	if err != nil {
		t.Fatalf("compliance debit: %v", err)
	}

	if _, err := f.engine.MarkConsumed(context.Background(), payment.ID, "submission-1"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := f.engine.MarkConsumed(context.Background(), payment.ID, "submission-1"); err != nil {
		t.Fatalf("same-ref replay: %v", err)
	}
	_, err = f.engine.MarkConsumed(context.Background(), payment.ID, "submission-2")
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("different ref must conflict, got %v", err)
	}
}

func TestInitiateCreditAppliesBalanceOnlyOnWebhookOutcome(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()

	pending, err := f.engine.InitiateCredit(context.Background(), CreditInput{
		OwnerID:     owner,
		OwnerKind:   enums.OwnerKindCustomer,
		Currency:    enums.CurrencyUSD,
		Amount:      decimal.NewFromInt(300),
		Purpose:     enums.TransactionPurposeTopUp,
		ReferenceID: "gw-1",
	})
	if err != nil {
		t.Fatalf("initiate credit: %v", err)
	}
	if pending.Status != enums.TransactionStatusPending {
		t.Fatalf("expected pending, got %s", pending.Status)
	}
	if view := f.balance(t, pending.AccountID); !view.Balance.IsZero() {
		t.Fatalf("pending credit must not move the balance, got %s", view.Balance)
	}

	settled, err := f.engine.RecordExternalOutcome(context.Background(), "gw-1", "succeeded")
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if settled.Status != enums.TransactionStatusSuccess {
		t.Fatalf("expected success, got %s", settled.Status)
	}
	if view := f.balance(t, pending.AccountID); !view.Balance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected balance 300, got %s", view.Balance)
	}

	// Webhook replay: acknowledged, applied once.
	if _, err := f.engine.RecordExternalOutcome(context.Background(), "gw-1", "succeeded"); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if view := f.balance(t, pending.AccountID); !view.Balance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("replay double-applied the credit: %s", view.Balance)
	}
}

func TestRecordExternalOutcomeFailureLeavesBalance(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	pending, err := f.engine.InitiateCredit(context.Background(), CreditInput{
		OwnerID:     owner,
		OwnerKind:   enums.OwnerKindCustomer,
		Currency:    enums.CurrencyUSD,
		Amount:      decimal.NewFromInt(300),
		Purpose:     enums.TransactionPurposeTopUp,
		ReferenceID: "gw-2",
	})
	if err != nil {
		t.Fatalf("initiate credit: %v", err)
	}

	failed, err := f.engine.RecordExternalOutcome(context.Background(), "gw-2", "declined")
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if failed.Status != enums.TransactionStatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if failed.FailureReason == nil {
		t.Fatal("expected failure reason")
	}
	if view := f.balance(t, pending.AccountID); !view.Balance.IsZero() {
		t.Fatalf("failed credit must not move the balance, got %s", view.Balance)
	}

	_, err = f.engine.RecordExternalOutcome(context.Background(), "missing-ref", "succeeded")
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("unknown reference must be NOT_FOUND, got %v", err)
	}
}

func TestCancelAndTerminalRejection(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	pending, err := f.engine.InitiateCredit(context.Background(), CreditInput{
		OwnerID:     owner,
		OwnerKind:   enums.OwnerKindCustomer,
		Currency:    enums.CurrencyUSD,
		Amount:      decimal.NewFromInt(100),
		Purpose:     enums.TransactionPurposeTopUp,
		ReferenceID: "gw-3",
	})
	if err != nil {
		t.Fatalf("initiate credit: %v", err)
	}

	cancelled, err := f.engine.Cancel(context.Background(), pending.ID, "caller timeout")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.TransactionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	// Idempotent repeat is fine; a different terminal move is not.
	if _, err := f.engine.Cancel(context.Background(), pending.ID, "again"); err != nil {
		t.Fatalf("repeat cancel should be a no-op, got %v", err)
	}
	_, err = f.engine.Expire(context.Background(), pending.ID, "ttl")
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("cancelled transaction must reject expire, got %v", err)
	}
}

func TestCancelLosingRaceWithGatewaySuccess(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	pending, err := f.engine.InitiateCredit(context.Background(), CreditInput{
		OwnerID:     owner,
		OwnerKind:   enums.OwnerKindCustomer,
		Currency:    enums.CurrencyUSD,
		Amount:      decimal.NewFromInt(500),
		Purpose:     enums.TransactionPurposeTopUp,
		ReferenceID: "gw-race",
	})
	if err != nil {
		t.Fatalf("initiate credit: %v", err)
	}

	// The gateway confirms between Cancel's read and its write-back. The
	// stale write must lose, and the retry must see success and refuse.
	var hookErr error
	f.txns.setFindHook(func() {
		_, hookErr = f.engine.RecordExternalOutcome(context.Background(), "gw-race", "succeeded")
	})

	_, err = f.engine.Cancel(context.Background(), pending.ID, "late cancel")
	if hookErr != nil {
		t.Fatalf("record outcome: %v", hookErr)
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}

	row := f.txns.get(pending.ID)
	if row.Status != enums.TransactionStatusSuccess {
		t.Fatalf("confirmed transaction must stay success, got %s", row.Status)
	}
	if view := f.balance(t, pending.AccountID); !view.Balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected credited balance 500 to survive, got %s", view.Balance)
	}
}

func TestConsumeRaceSecondReferenceRejected(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	f.credit(t, owner, 500, "seed")
	payment, err := f.engine.Debit(context.Background(), DebitInput{
		AccountID:   f.accounts.byOwner(owner).ID,
		Amount:      decimal.NewFromInt(50),
		Purpose:     enums.TransactionPurposeCompliancePayment,
		ReferenceID: "kyc-1",
	})
	if err != nil {
		t.Fatalf("compliance debit: %v", err)
	}

	var hookErr error
	f.txns.setFindHook(func() {
		_, hookErr = f.engine.MarkConsumed(context.Background(), payment.ID, "submission-a")
	})

	_, err = f.engine.MarkConsumed(context.Background(), payment.ID, "submission-b")
	if hookErr != nil {
		t.Fatalf("first consume: %v", hookErr)
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT for the losing consume, got %v", err)
	}

	row := f.txns.get(payment.ID)
	if row.ConsumedByRef == nil || *row.ConsumedByRef != "submission-a" {
		t.Fatalf("winning reference must survive, got %v", row.ConsumedByRef)
	}
}

func TestListTransactionsNewestFirst(t *testing.T) {
	f := newEngineFixture(t)
	owner := uuid.New()
	for i := 0; i < 3; i++ {
		f.credit(t, owner, 10, fmt.Sprintf("ref-%d", i))
		f.clock.Advance(time.Minute)
	}
	accountID := f.accounts.byOwner(owner).ID

	page, err := f.engine.ListTransactions(context.Background(), accountID, transactions.ListFilters{}, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(page.Items))
	}
	if page.Items[0].ReferenceID != "ref-2" {
		t.Fatalf("expected newest first, got %s", page.Items[0].ReferenceID)
	}
}

// ---- fakes ----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTxRunner runs the unit of work without a database. The engine orders
// its writes so a policy or CAS failure aborts before any row insert, which
// keeps this fake honest about "nothing committed on failure".
type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeAccountStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Account
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{rows: make(map[uuid.UUID]models.Account)}
}

func (f *fakeAccountStore) WithTx(tx *gorm.DB) accounts.Repository { return f }

func (f *fakeAccountStore) GetOrCreate(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind, currency enums.Currency) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.OwnerID == ownerID && row.OwnerKind == ownerKind {
			copied := row
			return &copied, nil
		}
	}
	row := models.Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		OwnerKind: ownerKind,
		Currency:  currency,
		Status:    enums.AccountStatusActive,
		Balance:   decimal.Zero,
	}
	f.rows[row.ID] = row
	copied := row
	return &copied, nil
}

func (f *fakeAccountStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	copied := row
	return &copied, nil
}

func (f *fakeAccountStore) FindByOwner(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.OwnerID == ownerID && row.OwnerKind == ownerKind {
			copied := row
			return &copied, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
}

func (f *fakeAccountStore) UpdateCAS(ctx context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.rows[account.ID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	if current.Version != account.Version {
		return pkgerrors.New(pkgerrors.CodeConcurrentModification, "account was modified concurrently")
	}
	account.Version++
	f.rows[account.ID] = *account
	return nil
}

func (f *fakeAccountStore) setStatus(id uuid.UUID, status enums.AccountStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[id]
	row.Status = status
	f.rows[id] = row
}

func (f *fakeAccountStore) get(id uuid.UUID) models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

func (f *fakeAccountStore) byOwner(ownerID uuid.UUID) models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.OwnerID == ownerID {
			return row
		}
	}
	return models.Account{}
}

type fakeTxnStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Transaction
	// findHook runs once after the next FindByID snapshots its row,
	// interleaving a concurrent writer between a read and its write-back.
	findHook func()
}

func newFakeTxnStore() *fakeTxnStore {
	return &fakeTxnStore{rows: make(map[uuid.UUID]models.Transaction)}
}

func (f *fakeTxnStore) WithTx(tx *gorm.DB) transactions.Repository { return f }

func (f *fakeTxnStore) Create(ctx context.Context, txn *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ReferenceID == txn.ReferenceID {
			return pkgerrors.New(pkgerrors.CodeDuplicateReference, "reference already exists")
		}
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	f.rows[txn.ID] = *txn
	return nil
}

func (f *fakeTxnStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	f.mu.Lock()
	row, ok := f.rows[id]
	hook := f.findHook
	f.findHook = nil
	f.mu.Unlock()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if hook != nil {
		hook()
	}
	copied := row
	return &copied, nil
}

func (f *fakeTxnStore) setFindHook(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findHook = fn
}

func (f *fakeTxnStore) FindByReference(ctx context.Context, referenceID string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ReferenceID == referenceID {
			copied := row
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeTxnStore) ListByAccount(ctx context.Context, accountID uuid.UUID, filters transactions.ListFilters, params pagination.Params) (*transactions.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []models.Transaction
	for _, row := range f.rows {
		if row.AccountID != accountID {
			continue
		}
		if filters.Purpose != nil && row.Purpose != *filters.Purpose {
			continue
		}
		if filters.Status != nil && row.Status != *filters.Status {
			continue
		}
		if filters.Direction != nil && row.Direction != *filters.Direction {
			continue
		}
		items = append(items, row)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	limit := pagination.NormalizeLimit(params.Limit)
	if len(items) > limit {
		items = items[:limit]
	}
	return &transactions.Page{Items: items}, nil
}

func (f *fakeTxnStore) LatestValidEntitlement(ctx context.Context, accountID uuid.UUID, purpose enums.TransactionPurpose, now time.Time) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Transaction
	for _, row := range f.rows {
		if row.AccountID != accountID || row.Purpose != purpose {
			continue
		}
		if row.Status != enums.TransactionStatusSuccess || row.IsConsumed || row.IsExpired {
			continue
		}
		if row.ValidUntil == nil || !row.ValidUntil.After(now) {
			continue
		}
		copied := row
		if best == nil || copied.CreatedAt.After(best.CreatedAt) {
			best = &copied
		}
	}
	if best == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no valid entitlement")
	}
	return best, nil
}

func (f *fakeTxnStore) SumRefunded(ctx context.Context, parentID uuid.UUID) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := decimal.Zero
	for _, row := range f.rows {
		if row.ParentTransactionID == nil || *row.ParentTransactionID != parentID {
			continue
		}
		switch row.Status {
		case enums.TransactionStatusPending, enums.TransactionStatusProcessing, enums.TransactionStatusSuccess:
			sum = sum.Add(row.Amount)
		}
	}
	return sum, nil
}

func (f *fakeTxnStore) Update(ctx context.Context, txn *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.rows[txn.ID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if current.Version != txn.Version {
		return pkgerrors.New(pkgerrors.CodeConcurrentModification, "transaction was modified concurrently")
	}
	txn.Version++
	f.rows[txn.ID] = *txn
	return nil
}

func (f *fakeTxnStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeTxnStore) get(id uuid.UUID) models.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

type fakeSeqRepo struct {
	mu      sync.Mutex
	counter map[string]int64
}

func (f *fakeSeqRepo) WithTx(tx *gorm.DB) sequence.Repository { return f }

func (f *fakeSeqRepo) Next(ctx context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counter == nil {
		f.counter = make(map[string]int64)
	}
	f.counter[name]++
	return f.counter[name], nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEmitter) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.events {
		if existing.EventType == event.EventType && existing.AggregateID == event.AggregateID {
			return nil
		}
	}
	f.events = append(f.events, event)
	return nil
}
