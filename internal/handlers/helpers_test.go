package handler_test

import (
	"time"

	"ledger-reconciliation-backend/internal/config"

	"github.com/shopspring/decimal"
)

func matchingConfig() config.MatchingConfig {
	return config.MatchingConfig{WindowDays: 5, PageSize: 50, PageCap: 20, Timeout: time.Second}
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
