package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/walletcore-backend/api/responses"
	"github.com/angelmondragon/walletcore-backend/api/validators"
	"github.com/angelmondragon/walletcore-backend/internal/ledger"
	"github.com/angelmondragon/walletcore-backend/internal/transactions"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/pagination"
)

type accountProvisioner interface {
	GetOrCreate(ctx context.Context, ownerID uuid.UUID, ownerKind enums.OwnerKind, currency enums.Currency) (*models.Account, error)
}

type balanceReader interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (*ledger.BalanceView, error)
}

type transactionLister interface {
	ListTransactions(ctx context.Context, accountID uuid.UUID, filters transactions.ListFilters, params pagination.Params) (*transactions.Page, error)
}

type entitlementReader interface {
	GetLatestValidEntitlement(ctx context.Context, accountID uuid.UUID, purpose enums.TransactionPurpose) (*ledger.EntitlementView, error)
}

type createAccountRequest struct {
	OwnerID   string `json:"owner_id" validate:"required,uuid"`
	OwnerKind string `json:"owner_kind" validate:"required"`
	Currency  string `json:"currency" validate:"required"`
}

// CreateAccount provisions (or returns) the owner's account.
func CreateAccount(svc accountProvisioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		var req createAccountRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ownerID, err := uuid.Parse(req.OwnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner id"))
			return
		}
		ownerKind := enums.OwnerKind(req.OwnerKind)
		if !ownerKind.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown owner kind"))
			return
		}
		currency := enums.Currency(strings.ToUpper(req.Currency))
		if !currency.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown currency"))
			return
		}

		account, err := svc.GetOrCreate(r.Context(), ownerID, ownerKind, currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAccountDTO(account))
	}
}

// GetBalance returns the account projection including available funds and
// current spending-window accumulators.
func GetBalance(reader balanceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		accountID, err := validators.ParseUUIDParam(r, "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := reader.GetBalance(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ListAccountTransactions pages the account history, newest first.
func ListAccountTransactions(lister transactionLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if lister == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		accountID, err := validators.ParseUUIDParam(r, "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters, err := parseListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := lister.ListTransactions(r.Context(), accountID, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionPageDTO(page.Items, page.NextCursor))
	}
}

// GetEntitlement answers "does this account hold a usable entitlement for
// this purpose right now".
func GetEntitlement(reader entitlementReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		accountID, err := validators.ParseUUIDParam(r, "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		purpose := enums.TransactionPurpose(strings.TrimSpace(chi.URLParam(r, "purpose")))
		if !purpose.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown purpose"))
			return
		}

		view, err := reader.GetLatestValidEntitlement(r.Context(), accountID, purpose)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, EntitlementDTO{
			Transaction: newTransactionDTO(view.Transaction),
			CanConsume:  view.CanConsume,
			ValidUntil:  view.ValidUntil,
			ConsumedRef: view.ConsumedRef,
		})
	}
}

func parseListFilters(r *http.Request) (transactions.ListFilters, error) {
	var filters transactions.ListFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("purpose")); raw != "" {
		purpose := enums.TransactionPurpose(raw)
		if !purpose.IsValid() {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "unknown purpose filter")
		}
		filters.Purpose = &purpose
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := enums.TransactionStatus(raw)
		if !status.IsValid() {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "unknown status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("direction")); raw != "" {
		direction := enums.TransactionDirection(raw)
		if !direction.IsValid() {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "unknown direction filter")
		}
		filters.Direction = &direction
	}
	return filters, nil
}
