package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/transactions"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

// mapExternalStatus normalizes the gateway's outcome vocabulary onto the
// ledger state machine.
func mapExternalStatus(externalStatus string) (enums.TransactionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(externalStatus)) {
	case "success", "succeeded", "paid", "completed":
		return enums.TransactionStatusSuccess, nil
	case "failed", "declined", "error":
		return enums.TransactionStatusFailed, nil
	case "cancelled", "canceled", "voided":
		return enums.TransactionStatusCancelled, nil
	case "processing", "in_progress":
		return enums.TransactionStatusProcessing, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unrecognized external status %q", externalStatus))
	}
}

// RecordExternalOutcome applies a gateway webhook outcome to the matching
// pending/processing transaction exactly once. Replays after the
// transaction settled return the settled row without a second monetary
// effect.
func (e *Engine) RecordExternalOutcome(ctx context.Context, referenceID, externalStatus string) (*models.Transaction, error) {
	target, err := mapExternalStatus(externalStatus)
	if err != nil {
		return nil, err
	}
	return e.runMutation(ctx, "record_external_outcome", func(tx *gorm.DB) (*models.Transaction, error) {
		txnRepo := e.txns.WithTx(tx)
		txn, err := txnRepo.FindByReference(ctx, referenceID)
		if err != nil {
			return nil, err
		}
		if txn == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("no transaction carries reference %s", referenceID))
		}
		// Webhook replay after resolution: acknowledge with the settled row.
		if txn.Status.IsTerminal() || txn.Status == enums.TransactionStatusSuccess {
			return txn, nil
		}
		if txn.Status == target {
			return txn, nil
		}

		switch target {
		case enums.TransactionStatusSuccess:
			if err := e.finalizeSuccess(txn, "gateway confirmed"); err != nil {
				return nil, err
			}
			now := e.now()
			txn.SettlementStatus = enums.SettlementStatusSettled
			txn.SettledAt = &now

			account, err := e.accountsRepo.WithTx(tx).FindByID(ctx, txn.AccountID)
			if err != nil {
				return nil, err
			}
			switch txn.Direction {
			case enums.TransactionDirectionCredit:
				account.Balance = account.Balance.Add(txn.Amount)
			case enums.TransactionDirectionDebit:
				if account.AvailableBalance().LessThan(txn.Amount) {
					return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds,
						"confirmed debit exceeds available balance")
				}
				account.Balance = account.Balance.Sub(txn.Amount)
			}
			if err := e.commitAccount(ctx, tx, account, txn); err != nil {
				return nil, err
			}
			if err := txnRepo.Update(ctx, txn); err != nil {
				return nil, err
			}
			eventType := enums.EventAccountCredited
			if txn.Direction == enums.TransactionDirectionDebit {
				eventType = enums.EventAccountDebited
			}
			return txn, e.emit(ctx, tx, eventType, enums.AggregateAccount, txn)

		case enums.TransactionStatusFailed:
			reason := "gateway reported failure"
			if err := transactions.ApplyTransition(txn, target, reason, e.now()); err != nil {
				return nil, err
			}
			txn.SettlementStatus = enums.SettlementStatusFailed
			txn.FailureReason = &reason
			if err := txnRepo.Update(ctx, txn); err != nil {
				return nil, err
			}
			return txn, e.emit(ctx, tx, enums.EventTransactionLifecycle, enums.AggregateTransaction, txn)

		default:
			if err := transactions.ApplyTransition(txn, target, "gateway update", e.now()); err != nil {
				return nil, err
			}
			if err := txnRepo.Update(ctx, txn); err != nil {
				return nil, err
			}
			return txn, e.emit(ctx, tx, enums.EventTransactionLifecycle, enums.AggregateTransaction, txn)
		}
	})
}

// transitionLifecycle is the shared caller-driven path for cancel, expire,
// and outstanding. Pending rows carry no account effect, so these are pure
// status moves.
func (e *Engine) transitionLifecycle(ctx context.Context, operation string, id uuid.UUID, target enums.TransactionStatus, reason string) (*models.Transaction, error) {
	return e.runMutation(ctx, operation, func(tx *gorm.DB) (*models.Transaction, error) {
		txnRepo := e.txns.WithTx(tx)
		txn, err := txnRepo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if txn.Status == target {
			return txn, nil
		}
		if err := transactions.ApplyTransition(txn, target, reason, e.now()); err != nil {
			return nil, err
		}
		if reason != "" && (target == enums.TransactionStatusFailed ||
			target == enums.TransactionStatusCancelled ||
			target == enums.TransactionStatusExpired) {
			txn.FailureReason = &reason
		}
		if err := txnRepo.Update(ctx, txn); err != nil {
			return nil, err
		}
		return txn, e.emit(ctx, tx, enums.EventTransactionLifecycle, enums.AggregateTransaction, txn)
	})
}

// Cancel transitions an abandoned pending/processing transaction. The
// ledger never cancels on a timer; this is always caller-driven.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Transaction, error) {
	return e.transitionLifecycle(ctx, "cancel", id, enums.TransactionStatusCancelled, reason)
}

// Expire transitions a transaction whose caller-supplied expiry elapsed
// before resolution.
func (e *Engine) Expire(ctx context.Context, id uuid.UUID, reason string) (*models.Transaction, error) {
	return e.transitionLifecycle(ctx, "expire", id, enums.TransactionStatusExpired, reason)
}

// FlagOutstanding marks a transaction still awaiting external settlement
// past the grace period. Resolution comes from reconciliation, not the
// ledger.
func (e *Engine) FlagOutstanding(ctx context.Context, id uuid.UUID, reason string) (*models.Transaction, error) {
	return e.transitionLifecycle(ctx, "flag_outstanding", id, enums.TransactionStatusOutstanding, reason)
}

// MarkConsumed spends an entitlement. Same-ref replays are no-ops; a stale
// validity window is flipped to expired on this write path.
func (e *Engine) MarkConsumed(ctx context.Context, id uuid.UUID, ref string) (*models.Transaction, error) {
	return e.runMutation(ctx, "mark_consumed", func(tx *gorm.DB) (*models.Transaction, error) {
		txnRepo := e.txns.WithTx(tx)
		txn, err := txnRepo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		now := e.now()
		if txn.HasValidityWindow() && !txn.IsExpired && transactions.IsWindowExpired(txn, now) {
			txn.IsExpired = true
			if err := txnRepo.Update(ctx, txn); err != nil {
				return nil, err
			}
		}
		if err := transactions.MarkConsumed(txn, ref, now); err != nil {
			return nil, err
		}
		if err := txnRepo.Update(ctx, txn); err != nil {
			return nil, err
		}
		if e.emitter == nil {
			return txn, nil
		}
		return txn, e.emitter.EmitIfNotExists(ctx, tx, outboxConsumedEvent(txn, e.now()))
	})
}
