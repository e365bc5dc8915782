package accounts

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
)

func TestRollWindowsResetsStaleDay(t *testing.T) {
	yesterday := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)
	account := &models.Account{
		DailySpent:         decimal.NewFromInt(80),
		DailyWindowStart:   yesterday,
		MonthlySpent:       decimal.NewFromInt(400),
		MonthlyWindowStart: yesterday,
	}

	RollWindows(account, now)

	if !account.DailySpent.IsZero() {
		t.Fatalf("expected daily accumulator reset, got %s", account.DailySpent)
	}
	if !account.DailyWindowStart.Equal(now) {
		t.Fatalf("expected daily window start %s, got %s", now, account.DailyWindowStart)
	}
	if !account.MonthlySpent.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("monthly accumulator should survive a same-month day roll, got %s", account.MonthlySpent)
	}
}

func TestRollWindowsResetsStaleMonth(t *testing.T) {
	lastMonth := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC)
	account := &models.Account{
		DailySpent:         decimal.NewFromInt(10),
		DailyWindowStart:   lastMonth,
		MonthlySpent:       decimal.NewFromInt(900),
		MonthlyWindowStart: lastMonth,
	}

	RollWindows(account, now)

	if !account.DailySpent.IsZero() || !account.MonthlySpent.IsZero() {
		t.Fatalf("expected both accumulators reset, got daily=%s monthly=%s",
			account.DailySpent, account.MonthlySpent)
	}
}

func TestRollWindowsKeepsFreshWindow(t *testing.T) {
	start := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	now := start.Add(6 * time.Hour)
	account := &models.Account{
		DailySpent:         decimal.NewFromInt(55),
		DailyWindowStart:   start,
		MonthlySpent:       decimal.NewFromInt(300),
		MonthlyWindowStart: start,
	}

	RollWindows(account, now)

	if !account.DailySpent.Equal(decimal.NewFromInt(55)) {
		t.Fatalf("daily accumulator should be untouched, got %s", account.DailySpent)
	}
	if !account.DailyWindowStart.Equal(start) {
		t.Fatalf("daily window start should be untouched, got %s", account.DailyWindowStart)
	}
}
