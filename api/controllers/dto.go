package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// AccountDTO is the wire shape of an account projection.
type AccountDTO struct {
	ID        uuid.UUID           `json:"id"`
	OwnerID   uuid.UUID           `json:"owner_id"`
	OwnerKind enums.OwnerKind     `json:"owner_kind"`
	Currency  enums.Currency      `json:"currency"`
	Status    enums.AccountStatus `json:"status"`
	Balance   decimal.Decimal     `json:"balance"`
	Frozen    decimal.Decimal     `json:"frozen_balance"`
	CreatedAt time.Time           `json:"created_at"`
}

func newAccountDTO(account *models.Account) AccountDTO {
	return AccountDTO{
		ID:        account.ID,
		OwnerID:   account.OwnerID,
		OwnerKind: account.OwnerKind,
		Currency:  account.Currency,
		Status:    account.Status,
		Balance:   account.Balance,
		Frozen:    account.FrozenBalance,
		CreatedAt: account.CreatedAt,
	}
}

// TransactionDTO is the wire shape of a ledger transaction.
type TransactionDTO struct {
	ID                  uuid.UUID                  `json:"id"`
	HumanID             string                     `json:"human_id"`
	ReferenceID         string                     `json:"reference_id"`
	AccountID           uuid.UUID                  `json:"account_id"`
	Amount              decimal.Decimal            `json:"amount"`
	Currency            enums.Currency             `json:"currency"`
	Direction           enums.TransactionDirection `json:"direction"`
	Purpose             enums.TransactionPurpose   `json:"purpose"`
	Status              enums.TransactionStatus    `json:"status"`
	GrossAmount         decimal.Decimal            `json:"gross_amount"`
	NetAmount           decimal.Decimal            `json:"net_amount"`
	FeeBreakdown        json.RawMessage            `json:"fee_breakdown,omitempty"`
	SettlementStatus    enums.SettlementStatus     `json:"settlement_status"`
	SettledAt           *time.Time                 `json:"settled_at,omitempty"`
	ValidFrom           *time.Time                 `json:"valid_from,omitempty"`
	ValidUntil          *time.Time                 `json:"valid_until,omitempty"`
	IsExpired           bool                       `json:"is_expired"`
	IsConsumed          bool                       `json:"is_consumed"`
	ConsumedByRef       *string                    `json:"consumed_by_ref,omitempty"`
	ParentTransactionID *uuid.UUID                 `json:"parent_transaction_id,omitempty"`
	FailureReason       *string                    `json:"failure_reason,omitempty"`
	CreatedAt           time.Time                  `json:"created_at"`
}

func newTransactionDTO(txn *models.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:                  txn.ID,
		HumanID:             txn.HumanID,
		ReferenceID:         txn.ReferenceID,
		AccountID:           txn.AccountID,
		Amount:              txn.Amount,
		Currency:            txn.Currency,
		Direction:           txn.Direction,
		Purpose:             txn.Purpose,
		Status:              txn.Status,
		GrossAmount:         txn.GrossAmount,
		NetAmount:           txn.NetAmount,
		FeeBreakdown:        txn.FeeBreakdown,
		SettlementStatus:    txn.SettlementStatus,
		SettledAt:           txn.SettledAt,
		ValidFrom:           txn.ValidFrom,
		ValidUntil:          txn.ValidUntil,
		IsExpired:           txn.IsExpired,
		IsConsumed:          txn.IsConsumed,
		ConsumedByRef:       txn.ConsumedByRef,
		ParentTransactionID: txn.ParentTransactionID,
		FailureReason:       txn.FailureReason,
		CreatedAt:           txn.CreatedAt,
	}
}

// TransactionPageDTO wraps a page of transactions with its cursor.
type TransactionPageDTO struct {
	Items      []TransactionDTO `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

func newTransactionPageDTO(items []models.Transaction, nextCursor string) TransactionPageDTO {
	dtos := make([]TransactionDTO, 0, len(items))
	for i := range items {
		dtos = append(dtos, newTransactionDTO(&items[i]))
	}
	return TransactionPageDTO{Items: dtos, NextCursor: nextCursor}
}

// EntitlementDTO is the wire shape of an entitlement lookup.
type EntitlementDTO struct {
	Transaction TransactionDTO `json:"transaction"`
	CanConsume  bool           `json:"can_consume"`
	ValidUntil  *time.Time     `json:"valid_until"`
	ConsumedRef *string        `json:"consumed_ref,omitempty"`
}
