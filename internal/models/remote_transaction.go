package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RemoteType string

const (
	RemoteTypeIncome  RemoteType = "income"
	RemoteTypeExpense RemoteType = "expense"
)

// NormalizeRemoteType folds transfer variants ("income-transfer",
// "expense-transfer") into their base type.
func NormalizeRemoteType(raw string) RemoteType {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.TrimSuffix(t, "-transfer")
	return RemoteType(t)
}

// RemoteTransaction is a transaction as read from the remote ledger. It is
// never stored in its own table; match jobs keep the fetched rows as a JSON
// array and orphans copy the fields they need.
type RemoteTransaction struct {
	RemoteID    string          `json:"remote_id"`
	Number      string          `json:"number"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        RemoteType      `json:"type"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
	Contact     string          `json:"contact"`
	Category    string          `json:"category"`
	Currency    string          `json:"currency"`
}
