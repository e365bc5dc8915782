package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// StatusChange is one append-only audit entry on a transaction. Entries are
// never rewritten once stored.
type StatusChange struct {
	Status    enums.TransactionStatus `json:"status"`
	Reason    string                  `json:"reason,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// StatusHistory stores the ordered status trail in a single jsonb column.
type StatusHistory []StatusChange

func (h *StatusHistory) Scan(src any) error {
	if src == nil {
		*h = StatusHistory{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("StatusHistory: unsupported Scan type %T", src)
	}
	if len(raw) == 0 {
		*h = StatusHistory{}
		return nil
	}
	return json.Unmarshal(raw, h)
}

func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		h = StatusHistory{}
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("StatusHistory: marshal: %w", err)
	}
	return string(raw), nil
}

// Append returns a new history with one more entry. The receiver is not
// mutated so staged updates can be retried safely.
func (h StatusHistory) Append(status enums.TransactionStatus, reason string, at time.Time) StatusHistory {
	out := make(StatusHistory, 0, len(h)+1)
	out = append(out, h...)
	out = append(out, StatusChange{Status: status, Reason: reason, Timestamp: at.UTC()})
	return out
}

// Last returns the most recent entry, if any.
func (h StatusHistory) Last() (StatusChange, bool) {
	if len(h) == 0 {
		return StatusChange{}, false
	}
	return h[len(h)-1], true
}
