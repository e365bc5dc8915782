package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	gatewaywebhook "github.com/angelmondragon/walletcore-backend/internal/webhooks/gateway"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
)

type fakeGatewayHandler struct {
	handleFn func(ctx context.Context, event gatewaywebhook.Event) (*models.Transaction, error)
}

func (f *fakeGatewayHandler) HandleEvent(ctx context.Context, event gatewaywebhook.Event) (*models.Transaction, error) {
	return f.handleFn(ctx, event)
}

func TestGatewayWebhookAcknowledgesOutcome(t *testing.T) {
	svc := &fakeGatewayHandler{
		handleFn: func(_ context.Context, event gatewaywebhook.Event) (*models.Transaction, error) {
			if event.ReferenceID != "psp-ref-1" {
				t.Fatalf("reference not decoded: %+v", event)
			}
			return &models.Transaction{ID: uuid.New()}, nil
		},
	}

	req := postJSON(t, "/api/v1/webhooks/gateway", map[string]any{
		"event_id":     "evt-1",
		"type":         "payment.updated",
		"reference_id": "psp-ref-1",
		"status":       "succeeded",
	})
	rec := httptest.NewRecorder()
	GatewayWebhook(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var ack gatewayAck
	decodeData(t, rec, &ack)
	if !ack.Received || ack.Duplicate {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestGatewayWebhookFlagsDuplicateDelivery(t *testing.T) {
	svc := &fakeGatewayHandler{
		handleFn: func(context.Context, gatewaywebhook.Event) (*models.Transaction, error) {
			return nil, nil
		},
	}

	req := postJSON(t, "/api/v1/webhooks/gateway", map[string]any{
		"event_id":     "evt-1",
		"type":         "payment.updated",
		"reference_id": "psp-ref-1",
		"status":       "succeeded",
	})
	rec := httptest.NewRecorder()
	GatewayWebhook(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var ack gatewayAck
	decodeData(t, rec, &ack)
	if !ack.Duplicate {
		t.Fatalf("expected duplicate ack, got %+v", ack)
	}
}

func TestGatewayWebhookSurfacesHandlerFailure(t *testing.T) {
	svc := &fakeGatewayHandler{
		handleFn: func(context.Context, gatewaywebhook.Event) (*models.Transaction, error) {
			return nil, errors.New("ledger write failed")
		},
	}

	req := postJSON(t, "/api/v1/webhooks/gateway", map[string]any{
		"event_id":     "evt-2",
		"type":         "payment.updated",
		"reference_id": "psp-ref-2",
		"status":       "failed",
	})
	rec := httptest.NewRecorder()
	GatewayWebhook(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}
