package enums

import "fmt"

// TransactionPurpose maps to the transaction_purpose_enum enum in Postgres.
type TransactionPurpose string

const (
	TransactionPurposeTopUp             TransactionPurpose = "top_up"
	TransactionPurposeOrderPayment      TransactionPurpose = "order_payment"
	TransactionPurposeBookingPayment    TransactionPurpose = "booking_payment"
	TransactionPurposeSubscription      TransactionPurpose = "subscription"
	TransactionPurposeRefund            TransactionPurpose = "refund"
	TransactionPurposeCommission        TransactionPurpose = "commission"
	TransactionPurposeCompliancePayment TransactionPurpose = "compliance_payment"
	TransactionPurposePayout            TransactionPurpose = "payout"
	TransactionPurposeAdjustment        TransactionPurpose = "adjustment"
)

var validTransactionPurposes = []TransactionPurpose{
	TransactionPurposeTopUp,
	TransactionPurposeOrderPayment,
	TransactionPurposeBookingPayment,
	TransactionPurposeSubscription,
	TransactionPurposeRefund,
	TransactionPurposeCommission,
	TransactionPurposeCompliancePayment,
	TransactionPurposePayout,
	TransactionPurposeAdjustment,
}

// String implements fmt.Stringer.
func (p TransactionPurpose) String() string {
	return string(p)
}

// IsValid reports whether the value is a known TransactionPurpose.
func (p TransactionPurpose) IsValid() bool {
	for _, candidate := range validTransactionPurposes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseTransactionPurpose converts raw input into a TransactionPurpose.
func ParseTransactionPurpose(value string) (TransactionPurpose, error) {
	for _, candidate := range validTransactionPurposes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction purpose %q", value)
}
