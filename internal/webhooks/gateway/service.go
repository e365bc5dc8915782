// Package gatewaywebhook ingests payment-gateway callbacks and folds their
// outcomes into the ledger exactly once.
package gatewaywebhook

import (
	"context"
	"strings"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

// Event is the normalized gateway callback. EventID is the gateway's own
// delivery id and drives deduplication; ReferenceID is the ledger reference
// the pending transaction was opened under.
type Event struct {
	EventID     string `json:"event_id"`
	Type        string `json:"type"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
}

type outcomeRecorder interface {
	RecordExternalOutcome(ctx context.Context, referenceID, externalStatus string) (*models.Transaction, error)
}

type ServiceParams struct {
	Ledger outcomeRecorder
	Guard  *IdempotencyGuard
	Logger *logger.Logger
}

type Service struct {
	ledger outcomeRecorder
	guard  *IdempotencyGuard
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger engine required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	return &Service{
		ledger: params.Ledger,
		guard:  params.Guard,
		logg:   params.Logger,
	}, nil
}

// HandleEvent applies the gateway outcome to the referenced transaction.
// Redeliveries of the same event id are acknowledged without a second ledger
// call; a failed apply releases the fence so the gateway's retry can land.
func (s *Service) HandleEvent(ctx context.Context, event Event) (*models.Transaction, error) {
	if strings.TrimSpace(event.EventID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if strings.TrimSpace(event.ReferenceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}
	if strings.TrimSpace(event.Status) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status is required")
	}

	seen, err := s.guard.CheckAndMark(ctx, event.EventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook idempotency check")
	}
	if seen {
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"event_id":     event.EventID,
				"reference_id": event.ReferenceID,
			}), "duplicate gateway delivery acknowledged")
		}
		return nil, nil
	}

	txn, err := s.ledger.RecordExternalOutcome(ctx, event.ReferenceID, event.Status)
	if err != nil {
		if releaseErr := s.guard.Release(ctx, event.EventID); releaseErr != nil && s.logg != nil {
			s.logg.Error(ctx, "release webhook idempotency key", releaseErr)
		}
		return nil, err
	}
	return txn, nil
}
