package enums

import "fmt"

// TransactionStatus maps to the transaction_status_enum enum in Postgres.
// Success, failed, cancelled, expired and refunded are terminal; outstanding
// flags a transaction still awaiting external settlement past its grace
// period.
type TransactionStatus string

const (
	TransactionStatusPending     TransactionStatus = "pending"
	TransactionStatusProcessing  TransactionStatus = "processing"
	TransactionStatusSuccess     TransactionStatus = "success"
	TransactionStatusFailed      TransactionStatus = "failed"
	TransactionStatusCancelled   TransactionStatus = "cancelled"
	TransactionStatusExpired     TransactionStatus = "expired"
	TransactionStatusOutstanding TransactionStatus = "outstanding"
	TransactionStatusRefunded    TransactionStatus = "refunded"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusProcessing,
	TransactionStatusSuccess,
	TransactionStatusFailed,
	TransactionStatusCancelled,
	TransactionStatusExpired,
	TransactionStatusOutstanding,
	TransactionStatusRefunded,
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status accepts no further transitions.
// Success still permits the refund flow, which flips a fully refunded
// transaction to refunded via its linked child.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusFailed,
		TransactionStatusCancelled,
		TransactionStatusExpired,
		TransactionStatusRefunded:
		return true
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
