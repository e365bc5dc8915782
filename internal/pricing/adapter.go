// Package pricing turns an upstream charge intent into the gross/net split
// the ledger records. It is pure math: no storage, no clock, no I/O.
package pricing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

// Intent describes a charge before fees. Rates are fractional (0.029 for
// 2.9%), flat fees are absolute amounts in the intent currency.
type Intent struct {
	GrossAmount decimal.Decimal
	Currency    enums.Currency
	Discount    decimal.Decimal
	FeeRate     decimal.Decimal
	FlatFee     decimal.Decimal
}

// Quote is the priced result. Net is what the account is actually credited
// or debited; Breakdown is the serialized line-item trail stored on the
// transaction row.
type Quote struct {
	GrossAmount decimal.Decimal
	NetAmount   decimal.Decimal
	Currency    enums.Currency
	Breakdown   json.RawMessage
}

type breakdown struct {
	Gross    decimal.Decimal `json:"gross"`
	Discount decimal.Decimal `json:"discount,omitempty"`
	RateFee  decimal.Decimal `json:"rate_fee,omitempty"`
	FlatFee  decimal.Decimal `json:"flat_fee,omitempty"`
	Net      decimal.Decimal `json:"net"`
}

// moneyPlaces is the scale every derived amount is rounded to.
const moneyPlaces = 2

// Price applies discount first, then the rate fee on the discounted amount,
// then the flat fee. The quote is rejected when the net would not be
// positive.
func Price(in Intent) (*Quote, error) {
	if !in.GrossAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "gross amount must be positive")
	}
	if in.Discount.IsNegative() || in.FeeRate.IsNegative() || in.FlatFee.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount and fees must be non-negative")
	}
	if in.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee rate must be below 1")
	}

	discounted := in.GrossAmount.Sub(in.Discount)
	if !discounted.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount,
			fmt.Sprintf("discount %s consumes the gross amount %s", in.Discount, in.GrossAmount))
	}

	rateFee := discounted.Mul(in.FeeRate).Round(moneyPlaces)
	net := discounted.Sub(rateFee).Sub(in.FlatFee).Round(moneyPlaces)
	if !net.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount,
			"fees consume the full amount").
			WithDetails(map[string]string{
				"gross":    in.GrossAmount.String(),
				"rate_fee": rateFee.String(),
				"flat_fee": in.FlatFee.String(),
			})
	}

	raw, err := json.Marshal(breakdown{
		Gross:    in.GrossAmount,
		Discount: in.Discount,
		RateFee:  rateFee,
		FlatFee:  in.FlatFee,
		Net:      net,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal fee breakdown")
	}

	return &Quote{
		GrossAmount: in.GrossAmount,
		NetAmount:   net,
		Currency:    in.Currency,
		Breakdown:   raw,
	}, nil
}
