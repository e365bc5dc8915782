package sequence

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const (
	// TransactionPrefix is the human id prefix for ledger transactions.
	TransactionPrefix = "TXN"

	// padWidth is the minimum digit count; values beyond it widen naturally.
	padWidth = 6
)

// Service issues human-readable identifiers backed by named counters.
type Service interface {
	WithTx(tx *gorm.DB) Service
	NextID(ctx context.Context, prefix string) (string, error)
}

type service struct {
	repo Repository
}

// NewService wires a sequence service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sequence repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

// NextID allocates the next value for the prefix's counter and formats it as
// PREFIX-000001. Allocation is atomic; two concurrent callers never observe
// the same value.
func (s *service) NextID(ctx context.Context, prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("sequence prefix required")
	}
	value, err := s.repo.Next(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%0*d", prefix, padWidth, value), nil
}
