// Package ledger provides the client for the remote double-entry ledger API.
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/shopspring/decimal"
)

// ListParams selects one page of an account's transactions.
type ListParams struct {
	AccountID string
	DateFrom  time.Time
	DateTo    time.Time
	Page      int
	PageSize  int
}

// Page is one page of remote transactions plus the paging metadata the API
// reported with it.
type Page struct {
	Items      []models.RemoteTransaction
	TotalPages int // zero when the ledger omits it
	TotalCount int
}

// CreateTransactionRequest is the payload of POST /api/transactions.
type CreateTransactionRequest struct {
	Type          models.RemoteType `json:"type"`
	AccountID     string            `json:"account_id"`
	PaidAt        string            `json:"paid_at"` // YYYY-MM-DD
	Amount        decimal.Decimal   `json:"amount"`
	CurrencyCode  string            `json:"currency_code"`
	CurrencyRate  *decimal.Decimal  `json:"currency_rate,omitempty"`
	Number        string            `json:"number"`
	Description   string            `json:"description,omitempty"`
	Reference     string            `json:"reference,omitempty"`
	CategoryID    string            `json:"category_id,omitempty"`
	ContactID     string            `json:"contact_id,omitempty"`
	PaymentMethod string            `json:"payment_method"`
}

// CreateTransferRequest is the payload of POST /api/transfers.
type CreateTransferRequest struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	TransferredAt string          `json:"transferred_at"` // YYYY-MM-DD
	Amount        decimal.Decimal `json:"amount"`
	Number        string          `json:"number"`
	Description   string          `json:"description,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	PaymentMethod string          `json:"payment_method"`
}

// CreateResult identifies a transaction or transfer created remotely.
type CreateResult struct {
	RemoteID string
	Number   string
}

// APIError is returned for any non-success response or transport failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("ledger API error: %s", e.Message)
	}
	return fmt.Sprintf("ledger API error (status %d): %s", e.StatusCode, e.Message)
}

type transactionsResponse struct {
	Data []remoteTransactionDTO `json:"data"`
	Meta struct {
		CurrentPage int `json:"current_page"`
		LastPage    int `json:"last_page"`
		Total       int `json:"total"`
	} `json:"meta"`
}

type remoteTransactionDTO struct {
	ID           flexibleID      `json:"id"`
	Number       string          `json:"number"`
	Type         string          `json:"type"`
	PaidAt       string          `json:"paid_at"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference"`
	Contact      *namedDTO       `json:"contact"`
	Category     *namedDTO       `json:"category"`
}

type namedDTO struct {
	Name string `json:"name"`
}

type createResponse struct {
	Data struct {
		ID     flexibleID `json:"id"`
		Number string     `json:"number"`
	} `json:"data"`
}

type errorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// flexibleID accepts both numeric and string identifiers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*f = flexibleID(n.String())
	return nil
}

func (d remoteTransactionDTO) toModel() (models.RemoteTransaction, error) {
	date, err := parseDate(d.PaidAt)
	if err != nil {
		return models.RemoteTransaction{}, fmt.Errorf("transaction %s: %w", d.ID, err)
	}
	rt := models.RemoteTransaction{
		RemoteID:    string(d.ID),
		Number:      d.Number,
		Date:        date,
		Amount:      d.Amount,
		Type:        models.NormalizeRemoteType(d.Type),
		Description: d.Description,
		Reference:   d.Reference,
		Currency:    d.CurrencyCode,
	}
	if d.Contact != nil {
		rt.Contact = d.Contact.Name
	}
	if d.Category != nil {
		rt.Category = d.Category.Name
	}
	return rt, nil
}

// parseDate accepts "YYYY-MM-DD" as well as full timestamps and keeps only
// the calendar date.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < 10 {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
