package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTransactions(t *testing.T) {
	var gotQuery map[string]string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"id": 11, "number": "TRA-11", "type": "expense-transfer", "paid_at": "2024-03-10T00:00:00+00:00",
				 "amount": 45.5, "currency_code": "EUR", "description": "Coffee", "reference": "REF-1",
				 "contact": {"name": "Cafe"}, "category": {"name": "Food"}},
				{"id": "12", "number": "TRA-12", "type": "income", "paid_at": "2024-03-11", "amount": "100.00"}
			],
			"meta": {"current_page": 2, "last_page": 4, "total": 160}
		}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "7", "secret-token", nil, time.Second)
	page, err := client.ListTransactions(context.Background(), ListParams{
		AccountID: "acc-1",
		DateFrom:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DateTo:    time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:      2,
		PageSize:  50,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "acc-1", gotQuery["account_id"])
	assert.Equal(t, "2024-03-01", gotQuery["date_from"])
	assert.Equal(t, "2024-03-31", gotQuery["date_to"])
	assert.Equal(t, "2", gotQuery["page"])
	assert.Equal(t, "50", gotQuery["limit"])
	assert.Equal(t, "7", gotQuery["company_id"])

	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, 160, page.TotalCount)
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, "11", first.RemoteID)
	assert.Equal(t, models.RemoteTypeExpense, first.Type)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("45.5")))
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "Cafe", first.Contact)
	assert.Equal(t, "Food", first.Category)

	second := page.Items[1]
	assert.Equal(t, "12", second.RemoteID)
	assert.Equal(t, models.RemoteTypeIncome, second.Type)
	assert.Empty(t, second.Contact)
}

func TestListTransactions_MissingPageCountStaysUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [{"id": 1, "type": "income", "paid_at": "2024-03-10", "amount": "5.00"}]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", "t", nil, time.Second)
	page, err := client.ListTransactions(context.Background(), ListParams{AccountID: "1", Page: 1, PageSize: 1})
	require.NoError(t, err)

	assert.Equal(t, 0, page.TotalPages)
	assert.Len(t, page.Items, 1)
}

func TestListTransactions_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message": "Too many requests"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", "t", nil, time.Second)
	_, err := client.ListTransactions(context.Background(), ListParams{AccountID: "1", Page: 1, PageSize: 50})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "Too many requests", apiErr.Message)
}

func TestListTransactions_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", "t", nil, time.Second)
	_, err := client.ListTransactions(context.Background(), ListParams{AccountID: "1", Page: 1, PageSize: 50})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway exploded")
	assert.Contains(t, err.Error(), "502")
}

func TestListTransactions_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewHTTPClient(srv.URL, "", "t", nil, time.Second)
	_, err := client.ListTransactions(context.Background(), ListParams{AccountID: "1", Page: 1, PageSize: 50})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Zero(t, apiErr.StatusCode)
}

func TestCreateTransaction(t *testing.T) {
	var got CreateTransactionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/transactions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": {"id": 901, "number": "IMP-abc"}}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", "t", nil, time.Second)
	res, err := client.CreateTransaction(context.Background(), &CreateTransactionRequest{
		Type:          models.RemoteTypeExpense,
		AccountID:     "3",
		PaidAt:        "2024-03-10",
		Amount:        decimal.RequireFromString("45.00"),
		CurrencyCode:  "EUR",
		Number:        "IMP-abc",
		PaymentMethod: "bank_transfer",
	})
	require.NoError(t, err)

	assert.Equal(t, "901", res.RemoteID)
	assert.Equal(t, "IMP-abc", res.Number)
	assert.Equal(t, "IMP-abc", got.Number)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("45")))
}

func TestCreateTransfer_ValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transfers", r.URL.Path)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message": "The given data was invalid.", "errors": {"to_account_id": ["required"], "amount": ["must be positive"]}}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", "t", nil, time.Second)
	_, err := client.CreateTransfer(context.Background(), &CreateTransferRequest{FromAccountID: "1"})

	require.Error(t, err)
	assert.Equal(t, "ledger API error (status 422): The given data was invalid. (amount: must be positive; to_account_id: required)", err.Error())
}

func TestHTTPFactory_SharesLimiterPerInstallation(t *testing.T) {
	f := NewHTTPFactory(ClientConfig{RequestsPerSecond: 5})
	id := uuid.New()

	a := f.ForInstallation(&models.RemoteInstallation{ID: id, BaseURL: "http://a"}).(*HTTPClient)
	b := f.ForInstallation(&models.RemoteInstallation{ID: id, BaseURL: "http://a"}).(*HTTPClient)
	c := f.ForInstallation(&models.RemoteInstallation{ID: uuid.New(), BaseURL: "http://b"}).(*HTTPClient)

	assert.Same(t, a.limiter, b.limiter)
	assert.NotSame(t, a.limiter, c.limiter)
}

func TestNormalizeRemoteType(t *testing.T) {
	tests := []struct {
		raw  string
		want models.RemoteType
	}{
		{"income", models.RemoteTypeIncome},
		{"expense", models.RemoteTypeExpense},
		{"income-transfer", models.RemoteTypeIncome},
		{"Expense-Transfer", models.RemoteTypeExpense},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, models.NormalizeRemoteType(tt.raw))
		})
	}
}
