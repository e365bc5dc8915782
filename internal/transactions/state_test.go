package transactions

import (
	"testing"
	"time"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

func TestApplyTransitionHappyPath(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	txn := &models.Transaction{HumanID: "TXN-000001", Status: enums.TransactionStatusPending}

	if err := ApplyTransition(txn, enums.TransactionStatusProcessing, "gateway accepted", now); err != nil {
		t.Fatalf("pending→processing: %v", err)
	}
	if err := ApplyTransition(txn, enums.TransactionStatusSuccess, "settled", now.Add(time.Minute)); err != nil {
		t.Fatalf("processing→success: %v", err)
	}

	if txn.Status != enums.TransactionStatusSuccess {
		t.Fatalf("unexpected status %s", txn.Status)
	}
	if len(txn.StatusHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(txn.StatusHistory))
	}
	last, ok := txn.StatusHistory.Last()
	if !ok || last.Status != enums.TransactionStatusSuccess || last.Reason != "settled" {
		t.Fatalf("unexpected last history entry %+v", last)
	}
}

func TestApplyTransitionRejectsTerminalStates(t *testing.T) {
	now := time.Now().UTC()
	terminal := []enums.TransactionStatus{
		enums.TransactionStatusFailed,
		enums.TransactionStatusCancelled,
		enums.TransactionStatusExpired,
		enums.TransactionStatusRefunded,
	}
	for _, from := range terminal {
		txn := &models.Transaction{HumanID: "TXN-000002", Status: from}
		err := ApplyTransition(txn, enums.TransactionStatusProcessing, "", now)
		if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("expected STATE_CONFLICT from %s, got %v", from, err)
		}
		if len(txn.StatusHistory) != 0 {
			t.Fatalf("rejected transition must not append history, got %d entries", len(txn.StatusHistory))
		}
	}
}

func TestApplyTransitionSuccessOnlyAllowsRefunded(t *testing.T) {
	now := time.Now().UTC()
	txn := &models.Transaction{HumanID: "TXN-000003", Status: enums.TransactionStatusSuccess}

	if err := ApplyTransition(txn, enums.TransactionStatusFailed, "", now); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
	if err := ApplyTransition(txn, enums.TransactionStatusRefunded, "fully refunded", now); err != nil {
		t.Fatalf("success→refunded: %v", err)
	}
}

func TestApplyTransitionOutstandingResolvesViaReconciliation(t *testing.T) {
	now := time.Now().UTC()
	txn := &models.Transaction{HumanID: "TXN-000004", Status: enums.TransactionStatusProcessing}

	if err := ApplyTransition(txn, enums.TransactionStatusOutstanding, "awaiting settlement", now); err != nil {
		t.Fatalf("processing→outstanding: %v", err)
	}
	if err := ApplyTransition(txn, enums.TransactionStatusSuccess, "reconciled", now); err != nil {
		t.Fatalf("outstanding→success: %v", err)
	}
}

func TestCanTransitionPendingDirectSuccess(t *testing.T) {
	if !CanTransition(enums.TransactionStatusPending, enums.TransactionStatusSuccess) {
		t.Fatal("pending→success should be allowed for single-step operations")
	}
	if CanTransition(enums.TransactionStatusExpired, enums.TransactionStatusPending) {
		t.Fatal("expired must be terminal")
	}
}
