package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Client is the remote ledger contract the engine depends on.
type Client interface {
	ListTransactions(ctx context.Context, params ListParams) (*Page, error)
	CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (*CreateResult, error)
	CreateTransfer(ctx context.Context, req *CreateTransferRequest) (*CreateResult, error)
}

// Factory builds a Client for a given installation.
type Factory interface {
	ForInstallation(inst *models.RemoteInstallation) Client
}

// ClientConfig configures HTTP clients built by HTTPFactory.
type ClientConfig struct {
	Timeout           time.Duration // Default: 60 seconds
	RequestsPerSecond float64       // <= 0 disables rate limiting
}

// HTTPFactory builds HTTP clients and shares one rate limiter per
// installation, since the remote API throttles per installation.
type HTTPFactory struct {
	config   ClientConfig
	limiters sync.Map // installation ID -> *rate.Limiter
}

func NewHTTPFactory(config ClientConfig) *HTTPFactory {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &HTTPFactory{config: config}
}

func (f *HTTPFactory) ForInstallation(inst *models.RemoteInstallation) Client {
	return NewHTTPClient(inst.BaseURL, inst.CompanyID, inst.AccessToken, f.limiter(inst.ID), f.config.Timeout)
}

func (f *HTTPFactory) limiter(id uuid.UUID) *rate.Limiter {
	limit := rate.Inf
	if f.config.RequestsPerSecond > 0 {
		limit = rate.Limit(f.config.RequestsPerSecond)
	}
	val, _ := f.limiters.LoadOrStore(id, rate.NewLimiter(limit, 1))
	return val.(*rate.Limiter)
}

// HTTPClient talks to one remote ledger installation.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	companyID  string
	limiter    *rate.Limiter
}

// NewHTTPClient creates a client authenticating with a bearer token. A nil
// limiter means no rate limiting.
func NewHTTPClient(baseURL, companyID, accessToken string, limiter *rate.Limiter, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = timeout

	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		companyID:  companyID,
		limiter:    limiter,
	}
}

// ListTransactions fetches a single page of transactions for an account
// within a date range.
func (c *HTTPClient) ListTransactions(ctx context.Context, params ListParams) (*Page, error) {
	query := url.Values{}
	if c.companyID != "" {
		query.Set("company_id", c.companyID)
	}
	query.Set("account_id", params.AccountID)
	query.Set("date_from", formatDate(params.DateFrom))
	query.Set("date_to", formatDate(params.DateTo))
	query.Set("page", strconv.Itoa(params.Page))
	query.Set("limit", strconv.Itoa(params.PageSize))

	var resp transactionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/transactions?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	page := &Page{
		Items:      make([]models.RemoteTransaction, 0, len(resp.Data)),
		TotalPages: resp.Meta.LastPage,
		TotalCount: resp.Meta.Total,
	}
	for _, dto := range resp.Data {
		rt, err := dto.toModel()
		if err != nil {
			return nil, &APIError{Message: fmt.Sprintf("malformed transaction in response: %v", err)}
		}
		page.Items = append(page.Items, rt)
	}
	return page, nil
}

func (c *HTTPClient) CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (*CreateResult, error) {
	return c.create(ctx, "/api/transactions", req)
}

func (c *HTTPClient) CreateTransfer(ctx context.Context, req *CreateTransferRequest) (*CreateResult, error) {
	return c.create(ctx, "/api/transfers", req)
}

func (c *HTTPClient) create(ctx context.Context, path string, payload interface{}) (*CreateResult, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, &APIError{Message: "response did not include an id"}
	}
	return &CreateResult{RemoteID: string(resp.Data.ID), Number: resp.Data.Number}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Message: fmt.Sprintf("rate limiter: %v", err)}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}

// parseError turns an error response into an APIError with the most
// specific message the body offers.
func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "failed to read error response"}
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	msg := errResp.Message
	if len(errResp.Errors) > 0 {
		var details []string
		for field, problems := range errResp.Errors {
			details = append(details, field+": "+strings.Join(problems, ", "))
		}
		sort.Strings(details)
		msg += " (" + strings.Join(details, "; ") + ")"
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
