package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/api/responses"
	"github.com/angelmondragon/walletcore-backend/api/validators"
	"github.com/angelmondragon/walletcore-backend/internal/ledger"
	"github.com/angelmondragon/walletcore-backend/internal/pricing"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

// ledgerMutations is the engine surface the money-movement handlers need.
type ledgerMutations interface {
	Credit(ctx context.Context, in ledger.CreditInput) (*models.Transaction, error)
	InitiateCredit(ctx context.Context, in ledger.CreditInput) (*models.Transaction, error)
	Debit(ctx context.Context, in ledger.DebitInput) (*models.Transaction, error)
	Freeze(ctx context.Context, in ledger.HoldInput) (*models.Transaction, error)
	Release(ctx context.Context, in ledger.HoldInput) (*models.Transaction, error)
	SettleFrozen(ctx context.Context, in ledger.HoldInput) (*models.Transaction, error)
	Refund(ctx context.Context, in ledger.RefundInput) (*models.Transaction, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Transaction, error)
	Expire(ctx context.Context, id uuid.UUID, reason string) (*models.Transaction, error)
	FlagOutstanding(ctx context.Context, id uuid.UUID, reason string) (*models.Transaction, error)
	MarkConsumed(ctx context.Context, id uuid.UUID, consumedByRef string) (*models.Transaction, error)
}

type creditRequest struct {
	OwnerID     string `json:"owner_id" validate:"required,uuid"`
	OwnerKind   string `json:"owner_kind" validate:"required"`
	Currency    string `json:"currency" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	Purpose     string `json:"purpose" validate:"required"`
	ReferenceID string `json:"reference_id" validate:"required"`
	Reason      string `json:"reason,omitempty"`
	// Pending opens a gateway-bound top-up that settles via webhook instead
	// of crediting immediately.
	Pending bool `json:"pending,omitempty"`

	// Optional fee fields. When any is set the credited amount becomes the
	// net of gross − discount − fees and the breakdown is stored on the row.
	Discount string `json:"discount,omitempty"`
	FeeRate  string `json:"fee_rate,omitempty"`
	FlatFee  string `json:"flat_fee,omitempty"`
}

type debitRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Purpose     string `json:"purpose" validate:"required"`
	ReferenceID string `json:"reference_id" validate:"required"`
	Reason      string `json:"reason,omitempty"`
}

type holdRequest struct {
	Amount      string `json:"amount" validate:"required"`
	ReferenceID string `json:"reference_id" validate:"required"`
	Reason      string `json:"reason,omitempty"`
}

type refundRequest struct {
	Amount      string `json:"amount" validate:"required"`
	ReferenceID string `json:"reference_id" validate:"required"`
	Reason      string `json:"reason,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type consumeRequest struct {
	ConsumedByRef string `json:"consumed_by_ref" validate:"required"`
}

// Credit funds an owner's account, creating it on first use. With
// pending=true the transaction opens pending and waits for the gateway
// outcome.
func Credit(svc ledgerMutations, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		var req creditRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := buildCreditInput(req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		apply := svc.Credit
		if req.Pending {
			apply = svc.InitiateCredit
		}
		txn, err := apply(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTransactionDTO(txn))
	}
}

// Debit spends from an existing account.
func Debit(svc ledgerMutations, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		accountID, err := validators.ParseUUIDParam(r, "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req debitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		purpose := enums.TransactionPurpose(req.Purpose)
		if !purpose.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown purpose"))
			return
		}

		txn, err := svc.Debit(r.Context(), ledger.DebitInput{
			AccountID:   accountID,
			Amount:      amount,
			Purpose:     purpose,
			Reason:      req.Reason,
			ReferenceID: req.ReferenceID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTransactionDTO(txn))
	}
}

type holdOperation func(ledgerMutations) func(context.Context, ledger.HoldInput) (*models.Transaction, error)

// Freeze reserves available funds without moving the balance.
func Freeze(svc ledgerMutations, logg *logger.Logger) http.HandlerFunc {
	return holdHandler(svc, logg, func(s ledgerMutations) func(context.Context, ledger.HoldInput) (*models.Transaction, error) {
		return s.Freeze
	})
}

// Release returns reserved funds to the spendable pool.
func Release(svc ledgerMutations, logg *logger.Logger) http.HandlerFunc {
	return holdHandler(svc, logg, func(s ledgerMutations) func(context.Context, ledger.HoldInput) (*models.Transaction, error) {
		return s.Release
	})
}

// SettleFrozen consumes reserved funds permanently.
func SettleFrozen(svc ledgerMutations, logg *logger.Logger) http.HandlerFunc {
	return holdHandler(svc, logg, func(s ledgerMutations) func(context.Context, ledger.HoldInput) (*models.Transaction, error) {
		return s.SettleFrozen
	})
}

func holdHandler(svc ledgerMutations, logg *logger.Logger, op holdOperation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		accountID, err := validators.ParseUUIDParam(r, "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req holdRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := op(svc)(r.Context(), ledger.HoldInput{
			AccountID:   accountID,
			Amount:      amount,
			Reason:      req.Reason,
			ReferenceID: req.ReferenceID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTransactionDTO(txn))
	}
}

// Refund reverses up to the unrefunded remainder of a settled transaction.
func Refund(svc ledgerMutations, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		transactionID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Refund(r.Context(), ledger.RefundInput{
			TransactionID: transactionID,
			Amount:        amount,
			Reason:        req.Reason,
			ReferenceID:   req.ReferenceID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTransactionDTO(txn))
	}
}

// Cancel voids a non-terminal transaction.
func Cancel(svc ledgerMutations, logg *logger.Logger) http.HandlerFunc {
	return lifecycleHandler(svc, logg, func(s ledgerMutations) func(context.Context, uuid.UUID, string) (*models.Transaction, error) {
		return s.Cancel
	})
}

// Expire marks an abandoned transaction expired.
func Expire(svc ledgerMutations, logg *logger.Logger) http.HandlerFunc {
	return lifecycleHandler(svc, logg, func(s ledgerMutations) func(context.Context, uuid.UUID, string) (*models.Transaction, error) {
		return s.Expire
	})
}

// FlagOutstanding marks a transaction as awaiting reconciliation.
func FlagOutstanding(svc ledgerMutations, logg *logger.Logger) http.HandlerFunc {
	return lifecycleHandler(svc, logg, func(s ledgerMutations) func(context.Context, uuid.UUID, string) (*models.Transaction, error) {
		return s.FlagOutstanding
	})
}

func lifecycleHandler(svc ledgerMutations, logg *logger.Logger, op func(ledgerMutations) func(context.Context, uuid.UUID, string) (*models.Transaction, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		transactionID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reasonRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		txn, err := op(svc)(r.Context(), transactionID, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionDTO(txn))
	}
}

// Consume marks an entitlement as used by the given external reference.
func Consume(svc ledgerMutations, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		transactionID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req consumeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.MarkConsumed(r.Context(), transactionID, req.ConsumedByRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionDTO(txn))
	}
}

func buildCreditInput(req creditRequest) (ledger.CreditInput, error) {
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return ledger.CreditInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner id")
	}
	ownerKind := enums.OwnerKind(req.OwnerKind)
	if !ownerKind.IsValid() {
		return ledger.CreditInput{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown owner kind")
	}
	currency := enums.Currency(strings.ToUpper(req.Currency))
	if !currency.IsValid() {
		return ledger.CreditInput{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown currency")
	}
	purpose := enums.TransactionPurpose(req.Purpose)
	if !purpose.IsValid() {
		return ledger.CreditInput{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown purpose")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return ledger.CreditInput{}, err
	}

	input := ledger.CreditInput{
		OwnerID:     ownerID,
		OwnerKind:   ownerKind,
		Currency:    currency,
		Amount:      amount,
		Purpose:     purpose,
		Reason:      req.Reason,
		ReferenceID: req.ReferenceID,
	}

	if req.Discount == "" && req.FeeRate == "" && req.FlatFee == "" {
		return input, nil
	}

	intent := pricing.Intent{GrossAmount: amount, Currency: currency}
	if intent.Discount, err = parseOptionalAmount(req.Discount); err != nil {
		return ledger.CreditInput{}, err
	}
	if intent.FeeRate, err = parseOptionalAmount(req.FeeRate); err != nil {
		return ledger.CreditInput{}, err
	}
	if intent.FlatFee, err = parseOptionalAmount(req.FlatFee); err != nil {
		return ledger.CreditInput{}, err
	}
	quote, err := pricing.Price(intent)
	if err != nil {
		return ledger.CreditInput{}, err
	}
	input.Amount = quote.NetAmount
	input.GrossAmount = quote.GrossAmount
	input.FeeBreakdown = quote.Breakdown
	return input, nil
}

func parseOptionalAmount(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return parseAmount(raw)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInvalidAmount, err, "amount must be a decimal string")
	}
	return amount, nil
}
