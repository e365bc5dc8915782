package transactions

import (
	"fmt"
	"time"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

// StartValidityWindow stamps the entitlement window on a transaction that
// just reached success. validityDays comes from configuration keyed by
// purpose; a zero value means the purpose grants no entitlement.
func StartValidityWindow(txn *models.Transaction, validityDays int, at time.Time) {
	if validityDays <= 0 {
		return
	}
	from := at.UTC()
	until := from.Add(time.Duration(validityDays) * 24 * time.Hour)
	txn.ValidFrom = &from
	txn.ValidUntil = &until
}

// IsWindowExpired recomputes expiry from the clock, ignoring the persisted
// is_expired flag so stale rows still answer correctly.
func IsWindowExpired(txn *models.Transaction, now time.Time) bool {
	if txn.ValidUntil == nil {
		return false
	}
	return !txn.ValidUntil.After(now.UTC())
}

// CanConsumeNow reports whether the entitlement is currently usable.
func CanConsumeNow(txn *models.Transaction, now time.Time) bool {
	return txn.Status == enums.TransactionStatusSuccess &&
		txn.HasValidityWindow() &&
		!txn.IsConsumed &&
		!IsWindowExpired(txn, now)
}

// MarkConsumed performs the one-way consumption transition. Replaying the
// same ref is a no-op; a different ref is a conflict because the right was
// already spent elsewhere.
func MarkConsumed(txn *models.Transaction, ref string, now time.Time) error {
	if ref == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "consumption ref is required")
	}
	if txn.IsConsumed {
		if txn.ConsumedByRef != nil && *txn.ConsumedByRef == ref {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("entitlement %s already consumed by a different ref", txn.HumanID))
	}
	if !CanConsumeNow(txn, now) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("entitlement %s is not consumable", txn.HumanID))
	}
	at := now.UTC()
	txn.IsConsumed = true
	txn.ConsumedAt = &at
	txn.ConsumedByRef = &ref
	return nil
}
