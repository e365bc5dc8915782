package accounts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
)

// RollWindows lazily resets the account's spending accumulators when their
// period has rolled over. Comparison is in UTC so the boundary does not
// depend on server locale. Mutates the account in memory only; persisting
// is the caller's job.
func RollWindows(account *models.Account, now time.Time) {
	now = now.UTC()
	if !sameDay(account.DailyWindowStart, now) {
		account.DailySpent = decimal.Zero
		account.DailyWindowStart = now
	}
	if !sameMonth(account.MonthlyWindowStart, now) {
		account.MonthlySpent = decimal.Zero
		account.MonthlyWindowStart = now
	}
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}
