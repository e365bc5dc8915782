package transactions

import (
	"fmt"
	"time"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

// allowedTransitions is the status graph. Terminal states have no outgoing
// edges; refunded is entered only by the refund flow once the parent is
// fully refunded.
var allowedTransitions = map[enums.TransactionStatus][]enums.TransactionStatus{
	enums.TransactionStatusPending: {
		enums.TransactionStatusProcessing,
		enums.TransactionStatusSuccess,
		enums.TransactionStatusFailed,
		enums.TransactionStatusCancelled,
		enums.TransactionStatusExpired,
		enums.TransactionStatusOutstanding,
	},
	enums.TransactionStatusProcessing: {
		enums.TransactionStatusSuccess,
		enums.TransactionStatusFailed,
		enums.TransactionStatusCancelled,
		enums.TransactionStatusExpired,
		enums.TransactionStatusOutstanding,
	},
	enums.TransactionStatusOutstanding: {
		enums.TransactionStatusSuccess,
		enums.TransactionStatusFailed,
		enums.TransactionStatusCancelled,
		enums.TransactionStatusExpired,
	},
	enums.TransactionStatusSuccess: {
		enums.TransactionStatusRefunded,
	},
}

// CanTransition reports whether the status graph permits from → to.
func CanTransition(from, to enums.TransactionStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ApplyTransition moves the transaction to the new status and appends
// exactly one status history entry. Terminal states reject all transitions
// except success → refunded.
func ApplyTransition(txn *models.Transaction, to enums.TransactionStatus, reason string, at time.Time) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction status %q", to))
	}
	if !CanTransition(txn.Status, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition transaction %s from %s to %s", txn.HumanID, txn.Status, to))
	}
	txn.Status = to
	txn.StatusHistory = txn.StatusHistory.Append(to, reason, at)
	return nil
}
