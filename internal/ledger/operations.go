package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/transactions"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

// transactionSeed carries the row-construction fields shared by every
// operation.
type transactionSeed struct {
	ReferenceID         string
	Amount              decimal.Decimal
	GrossAmount         decimal.Decimal
	FeeBreakdown        json.RawMessage
	Direction           enums.TransactionDirection
	Purpose             enums.TransactionPurpose
	Reason              string
	RelatedEntityKind   *enums.EntityKind
	RelatedEntityID     *uuid.UUID
	ParentTransactionID *uuid.UUID
}

// CreditInput funds an account. Gross/fee fields are optional and come from
// the pricing adapter when the credit was priced upstream.
type CreditInput struct {
	OwnerID           uuid.UUID
	OwnerKind         enums.OwnerKind
	Currency          enums.Currency
	Amount            decimal.Decimal
	GrossAmount       decimal.Decimal
	FeeBreakdown      json.RawMessage
	Purpose           enums.TransactionPurpose
	Reason            string
	RelatedEntityKind *enums.EntityKind
	RelatedEntityID   *uuid.UUID
	ReferenceID       string
}

// DebitInput spends from an account.
type DebitInput struct {
	AccountID         uuid.UUID
	Amount            decimal.Decimal
	GrossAmount       decimal.Decimal
	FeeBreakdown      json.RawMessage
	Currency          enums.Currency
	Purpose           enums.TransactionPurpose
	Reason            string
	RelatedEntityKind *enums.EntityKind
	RelatedEntityID   *uuid.UUID
	ReferenceID       string
}

// HoldInput covers freeze, release, and settle-frozen.
type HoldInput struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Reason      string
	ReferenceID string
}

// RefundInput reverses part or all of a settled transaction.
type RefundInput struct {
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	Reason        string
	ReferenceID   string
}

// Credit increases the balance and records a success transaction in one
// atomic unit. The owner's account is created on first use.
func (e *Engine) Credit(ctx context.Context, in CreditInput) (*models.Transaction, error) {
	return e.runMutation(ctx, "credit", func(tx *gorm.DB) (*models.Transaction, error) {
		if replay, err := e.findReplay(ctx, tx, in.ReferenceID, in.Amount); replay != nil || err != nil {
			return replay, err
		}
		account, err := e.accountsSvc.WithTx(tx).GetOrCreate(ctx, in.OwnerID, in.OwnerKind, in.Currency)
		if err != nil {
			return nil, err
		}
		if err := e.validateAmount(in.Amount, account.Currency, in.Currency); err != nil {
			return nil, err
		}
		if !account.IsActive() {
			return nil, pkgerrors.New(pkgerrors.CodeAccountNotActive,
				fmt.Sprintf("account %s is %s", account.ID, account.Status))
		}

		txn, err := e.newTransaction(ctx, tx, account, transactionSeed{
			ReferenceID:       in.ReferenceID,
			Amount:            in.Amount,
			GrossAmount:       in.GrossAmount,
			FeeBreakdown:      in.FeeBreakdown,
			Direction:         enums.TransactionDirectionCredit,
			Purpose:           in.Purpose,
			Reason:            in.Reason,
			RelatedEntityKind: in.RelatedEntityKind,
			RelatedEntityID:   in.RelatedEntityID,
		})
		if err != nil {
			return nil, err
		}
		if err := e.finalizeSuccess(txn, in.Reason); err != nil {
			return nil, err
		}

		account.Balance = account.Balance.Add(in.Amount)
		if err := e.commitAccount(ctx, tx, account, txn); err != nil {
			return nil, err
		}
		if err := e.txns.WithTx(tx).Create(ctx, txn); err != nil {
			return nil, err
		}
		return txn, e.emit(ctx, tx, enums.EventAccountCredited, enums.AggregateAccount, txn)
	})
}

// InitiateCredit opens a gateway-bound top-up: the transaction is recorded
// as pending and the balance is untouched until the external outcome lands
// via RecordExternalOutcome.
func (e *Engine) InitiateCredit(ctx context.Context, in CreditInput) (*models.Transaction, error) {
	return e.runMutation(ctx, "initiate_credit", func(tx *gorm.DB) (*models.Transaction, error) {
		if replay, err := e.findReplay(ctx, tx, in.ReferenceID, in.Amount); replay != nil || err != nil {
			return replay, err
		}
		account, err := e.accountsSvc.WithTx(tx).GetOrCreate(ctx, in.OwnerID, in.OwnerKind, in.Currency)
		if err != nil {
			return nil, err
		}
		if err := e.validateAmount(in.Amount, account.Currency, in.Currency); err != nil {
			return nil, err
		}
		if !account.IsActive() {
			return nil, pkgerrors.New(pkgerrors.CodeAccountNotActive,
				fmt.Sprintf("account %s is %s", account.ID, account.Status))
		}

		txn, err := e.newTransaction(ctx, tx, account, transactionSeed{
			ReferenceID:       in.ReferenceID,
			Amount:            in.Amount,
			GrossAmount:       in.GrossAmount,
			FeeBreakdown:      in.FeeBreakdown,
			Direction:         enums.TransactionDirectionCredit,
			Purpose:           in.Purpose,
			Reason:            in.Reason,
			RelatedEntityKind: in.RelatedEntityKind,
			RelatedEntityID:   in.RelatedEntityID,
		})
		if err != nil {
			return nil, err
		}
		// No CAS write here: a pending credit has no account effect, and the
		// row alone reserves the reference.
		if err := e.txns.WithTx(tx).Create(ctx, txn); err != nil {
			return nil, err
		}
		return txn, e.emit(ctx, tx, enums.EventTransactionLifecycle, enums.AggregateTransaction, txn)
	})
}

// Debit spends from the account after the full policy check. A rejected
// debit commits nothing: no transaction row, no balance change.
func (e *Engine) Debit(ctx context.Context, in DebitInput) (*models.Transaction, error) {
	return e.runMutation(ctx, "debit", func(tx *gorm.DB) (*models.Transaction, error) {
		if replay, err := e.findReplay(ctx, tx, in.ReferenceID, in.Amount); replay != nil || err != nil {
			return replay, err
		}
		account, err := e.accountsRepo.WithTx(tx).FindByID(ctx, in.AccountID)
		if err != nil {
			return nil, err
		}
		if err := e.validateAmount(in.Amount, account.Currency, in.Currency); err != nil {
			return nil, err
		}
		now := e.now()
		if err := e.accountsSvc.CanTransact(account, in.Amount, enums.TransactionDirectionDebit, now); err != nil {
			return nil, err
		}

		txn, err := e.newTransaction(ctx, tx, account, transactionSeed{
			ReferenceID:       in.ReferenceID,
			Amount:            in.Amount,
			GrossAmount:       in.GrossAmount,
			FeeBreakdown:      in.FeeBreakdown,
			Direction:         enums.TransactionDirectionDebit,
			Purpose:           in.Purpose,
			Reason:            in.Reason,
			RelatedEntityKind: in.RelatedEntityKind,
			RelatedEntityID:   in.RelatedEntityID,
		})
		if err != nil {
			return nil, err
		}
		if err := e.finalizeSuccess(txn, in.Reason); err != nil {
			return nil, err
		}

		account.Balance = account.Balance.Sub(in.Amount)
		account.DailySpent = account.DailySpent.Add(in.Amount)
		account.MonthlySpent = account.MonthlySpent.Add(in.Amount)
		if err := e.commitAccount(ctx, tx, account, txn); err != nil {
			return nil, err
		}
		if err := e.txns.WithTx(tx).Create(ctx, txn); err != nil {
			return nil, err
		}
		return txn, e.emit(ctx, tx, enums.EventAccountDebited, enums.AggregateAccount, txn)
	})
}

// Freeze moves funds from spendable to reserved. The total balance is
// conserved; only frozen_balance grows.
func (e *Engine) Freeze(ctx context.Context, in HoldInput) (*models.Transaction, error) {
	return e.runMutation(ctx, "freeze", func(tx *gorm.DB) (*models.Transaction, error) {
		if replay, err := e.findReplay(ctx, tx, in.ReferenceID, in.Amount); replay != nil || err != nil {
			return replay, err
		}
		account, err := e.accountsRepo.WithTx(tx).FindByID(ctx, in.AccountID)
		if err != nil {
			return nil, err
		}
		now := e.now()
		if err := e.accountsSvc.CanTransact(account, in.Amount, enums.TransactionDirectionLiability, now); err != nil {
			return nil, err
		}

		txn, err := e.newTransaction(ctx, tx, account, transactionSeed{
			ReferenceID: in.ReferenceID,
			Amount:      in.Amount,
			Direction:   enums.TransactionDirectionLiability,
			Purpose:     enums.TransactionPurposeAdjustment,
			Reason:      in.Reason,
		})
		if err != nil {
			return nil, err
		}
		if err := e.finalizeSuccess(txn, in.Reason); err != nil {
			return nil, err
		}

		account.FrozenBalance = account.FrozenBalance.Add(in.Amount)
		if err := e.commitAccount(ctx, tx, account, txn); err != nil {
			return nil, err
		}
		if err := e.txns.WithTx(tx).Create(ctx, txn); err != nil {
			return nil, err
		}
		return txn, e.emit(ctx, tx, enums.EventFundsFrozen, enums.AggregateAccount, txn)
	})
}

// Release is the inverse of Freeze: reserved funds become spendable again,
// the balance unchanged.
func (e *Engine) Release(ctx context.Context, in HoldInput) (*models.Transaction, error) {
	return e.runMutation(ctx, "release", func(tx *gorm.DB) (*models.Transaction, error) {
		if replay, err := e.findReplay(ctx, tx, in.ReferenceID, in.Amount); replay != nil || err != nil {
			return replay, err
		}
		account, err := e.accountsRepo.WithTx(tx).FindByID(ctx, in.AccountID)
		if err != nil {
			return nil, err
		}
		if !account.IsActive() {
			return nil, pkgerrors.New(pkgerrors.CodeAccountNotActive,
				fmt.Sprintf("account %s is %s", account.ID, account.Status))
		}
		if !in.Amount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be positive")
		}
		if account.FrozenBalance.LessThan(in.Amount) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds,
				"cannot release more than the frozen balance").
				WithDetails(map[string]string{
					"frozen":    account.FrozenBalance.String(),
					"requested": in.Amount.String(),
				})
		}

		txn, err := e.newTransaction(ctx, tx, account, transactionSeed{
			ReferenceID: in.ReferenceID,
			Amount:      in.Amount,
			Direction:   enums.TransactionDirectionLiability,
			Purpose:     enums.TransactionPurposeAdjustment,
			Reason:      in.Reason,
		})
		if err != nil {
			return nil, err
		}
		if err := e.finalizeSuccess(txn, in.Reason); err != nil {
			return nil, err
		}

		account.FrozenBalance = account.FrozenBalance.Sub(in.Amount)
		if err := e.commitAccount(ctx, tx, account, txn); err != nil {
			return nil, err
		}
		if err := e.txns.WithTx(tx).Create(ctx, txn); err != nil {
			return nil, err
		}
		return txn, e.emit(ctx, tx, enums.EventFundsReleased, enums.AggregateAccount, txn)
	})
}

// SettleFrozen consumes a previously frozen amount permanently: both the
// frozen balance and the balance shrink together.
func (e *Engine) SettleFrozen(ctx context.Context, in HoldInput) (*models.Transaction, error) {
	return e.runMutation(ctx, "settle_frozen", func(tx *gorm.DB) (*models.Transaction, error) {
		if replay, err := e.findReplay(ctx, tx, in.ReferenceID, in.Amount); replay != nil || err != nil {
			return replay, err
		}
		account, err := e.accountsRepo.WithTx(tx).FindByID(ctx, in.AccountID)
		if err != nil {
			return nil, err
		}
		if !account.IsActive() {
			return nil, pkgerrors.New(pkgerrors.CodeAccountNotActive,
				fmt.Sprintf("account %s is %s", account.ID, account.Status))
		}
		if !in.Amount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be positive")
		}
		if account.FrozenBalance.LessThan(in.Amount) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds,
				"cannot settle more than the frozen balance").
				WithDetails(map[string]string{
					"frozen":    account.FrozenBalance.String(),
					"requested": in.Amount.String(),
				})
		}

		txn, err := e.newTransaction(ctx, tx, account, transactionSeed{
			ReferenceID: in.ReferenceID,
			Amount:      in.Amount,
			Direction:   enums.TransactionDirectionDebit,
			Purpose:     enums.TransactionPurposePayout,
			Reason:      in.Reason,
		})
		if err != nil {
			return nil, err
		}
		if err := e.finalizeSuccess(txn, in.Reason); err != nil {
			return nil, err
		}
		now := e.now()
		txn.SettlementStatus = enums.SettlementStatusSettled
		txn.SettledAt = &now

		account.FrozenBalance = account.FrozenBalance.Sub(in.Amount)
		account.Balance = account.Balance.Sub(in.Amount)
		if err := e.commitAccount(ctx, tx, account, txn); err != nil {
			return nil, err
		}
		if err := e.txns.WithTx(tx).Create(ctx, txn); err != nil {
			return nil, err
		}
		return txn, e.emit(ctx, tx, enums.EventFundsSettled, enums.AggregateAccount, txn)
	})
}

// Refund reverses up to the unrefunded remainder of a success transaction
// with a new, linked transaction of the opposite direction. The original's
// monetary fields are never edited; it flips to refunded only once fully
// refunded.
func (e *Engine) Refund(ctx context.Context, in RefundInput) (*models.Transaction, error) {
	return e.runMutation(ctx, "refund", func(tx *gorm.DB) (*models.Transaction, error) {
		if replay, err := e.findReplay(ctx, tx, in.ReferenceID, in.Amount); replay != nil || err != nil {
			return replay, err
		}
		txnRepo := e.txns.WithTx(tx)
		original, err := txnRepo.FindByID(ctx, in.TransactionID)
		if err != nil {
			return nil, err
		}
		if original.Status != enums.TransactionStatusSuccess {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("only success transactions are refundable, %s is %s", original.HumanID, original.Status))
		}
		// Hold movements never touched the balance and refund rows are
		// reversals already; neither is a refundable payment.
		if original.Direction == enums.TransactionDirectionLiability {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("%s is a hold movement and cannot be refunded", original.HumanID))
		}
		if original.Purpose == enums.TransactionPurposeRefund {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("%s is itself a refund and cannot be refunded", original.HumanID))
		}
		if !in.Amount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be positive")
		}
		refunded, err := txnRepo.SumRefunded(ctx, original.ID)
		if err != nil {
			return nil, err
		}
		remaining := original.Amount.Sub(refunded)
		if in.Amount.GreaterThan(remaining) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount,
				"refund exceeds the unrefunded remainder").
				WithDetails(map[string]string{
					"original":         original.Amount.String(),
					"already_refunded": refunded.String(),
					"requested":        in.Amount.String(),
				})
		}

		account, err := e.accountsRepo.WithTx(tx).FindByID(ctx, original.AccountID)
		if err != nil {
			return nil, err
		}
		if !account.IsActive() {
			return nil, pkgerrors.New(pkgerrors.CodeAccountNotActive,
				fmt.Sprintf("account %s is %s", account.ID, account.Status))
		}

		direction := enums.TransactionDirectionCredit
		if original.Direction == enums.TransactionDirectionCredit {
			direction = enums.TransactionDirectionDebit
			if account.AvailableBalance().LessThan(in.Amount) {
				return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds,
					"refunding a credit requires available funds")
			}
		}

		refundTxn, err := e.newTransaction(ctx, tx, account, transactionSeed{
			ReferenceID:         in.ReferenceID,
			Amount:              in.Amount,
			Direction:           direction,
			Purpose:             enums.TransactionPurposeRefund,
			Reason:              in.Reason,
			ParentTransactionID: &original.ID,
		})
		if err != nil {
			return nil, err
		}
		if err := e.finalizeSuccess(refundTxn, in.Reason); err != nil {
			return nil, err
		}

		if direction == enums.TransactionDirectionCredit {
			account.Balance = account.Balance.Add(in.Amount)
		} else {
			account.Balance = account.Balance.Sub(in.Amount)
		}
		if err := e.commitAccount(ctx, tx, account, refundTxn); err != nil {
			return nil, err
		}
		if err := txnRepo.Create(ctx, refundTxn); err != nil {
			return nil, err
		}

		// Append to the parent's trail; flip it to refunded only when the
		// full amount has now been reversed.
		if refunded.Add(in.Amount).Equal(original.Amount) {
			if err := transactions.ApplyTransition(original, enums.TransactionStatusRefunded, in.Reason, e.now()); err != nil {
				return nil, err
			}
		} else {
			original.StatusHistory = original.StatusHistory.Append(original.Status,
				fmt.Sprintf("partial refund %s via %s", in.Amount, refundTxn.HumanID), e.now())
		}
		if err := txnRepo.Update(ctx, original); err != nil {
			return nil, err
		}
		return refundTxn, e.emit(ctx, tx, enums.EventTransactionRefunded, enums.AggregateTransaction, refundTxn)
	})
}
