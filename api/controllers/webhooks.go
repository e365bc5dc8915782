package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/walletcore-backend/api/responses"
	"github.com/angelmondragon/walletcore-backend/api/validators"
	gatewaywebhook "github.com/angelmondragon/walletcore-backend/internal/webhooks/gateway"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

type gatewayEventHandler interface {
	HandleEvent(ctx context.Context, event gatewaywebhook.Event) (*models.Transaction, error)
}

type gatewayAck struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// GatewayWebhook ingests payment-gateway callbacks. Duplicate deliveries are
// acknowledged without touching the ledger so the gateway stops retrying.
func GatewayWebhook(svc gatewayEventHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler unavailable"))
			return
		}

		var event gatewaywebhook.Event
		if err := validators.DecodeJSONBody(r, &event); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.HandleEvent(r.Context(), event)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gatewayAck{Received: true, Duplicate: txn == nil})
	}
}
