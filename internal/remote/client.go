// Package remote is the HTTP client for the ledger service. Every failure other than caller
// cancellation comes back as *Error so callers can classify it with core.ClassOf.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// IdempotencyHeader carries the record's client key on creates so a replayed create is
// recognized by the server.
const IdempotencyHeader = "Idempotency-Key"

var _ API = (*Client)(nil)

type Config struct {
	BaseURL string
	// Token is sent as a bearer token when non-empty.
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the pooled default; its Transport is wrapped for auth.
	HTTPClient *http.Client
	Logger     *log.Logger
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *log.Logger
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &Error{Kind: InvalidURL, Message: fmt.Sprintf("invalid base URL %q", cfg.BaseURL), Err: err}
	}

	httpClient := newHTTPClientWithPooling()
	if cfg.HTTPClient != nil {
		hc := *cfg.HTTPClient
		httpClient = &hc
	}
	if cfg.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Token,
			TokenType:   "Bearer",
		}))
		authed.Timeout = httpClient.Timeout
		httpClient = authed
	}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		logger:  logger.WithComponent(log.ComponentRemote),
	}, nil
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling and keep-alive
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

// NewClientKey returns a fresh key for one locally created record. It is stored with the
// record and sent on every create attempt for it.
func NewClientKey() string {
	return uuid.NewString()
}

type requestOption func(*http.Request)

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// request performs one call and decodes a JSON response into T. A nil body sends no payload;
// T may be struct{} for endpoints without a response body.
func request[T any](ctx context.Context, c *Client, method, endpoint string, body any, opts ...requestOption) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	ref, err := url.Parse(endpoint)
	if err != nil {
		return zero, &Error{Kind: InvalidURL, Message: endpoint, Err: err}
	}
	target := *c.baseURL
	target.Path = strings.TrimRight(c.baseURL.Path, "/") + ref.Path
	target.RawPath = ""
	target.RawQuery = ref.RawQuery

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zero, &Error{Kind: Custom, Message: "encode request body", Err: err}
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), payload)
	if err != nil {
		return zero, &Error{Kind: InvalidURL, Message: target.String(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// The caller's own cancellation is not a connectivity failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		c.logger.DebugContext(ctx, "Remote request failed", "method", method, "endpoint", endpoint, log.FieldError, err)
		return zero, &Error{Kind: NoResponse, Err: err}
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Remote request completed",
		"method", method,
		"endpoint", endpoint,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		return zero, &Error{Kind: NoResponse, Status: resp.StatusCode, Err: err}
	}

	if err := statusError(resp.StatusCode, raw); err != nil {
		return zero, err
	}

	if _, empty := any(zero).(struct{}); empty || len(bytes.TrimSpace(raw)) == 0 {
		return zero, nil
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, &Error{Kind: Decoding, Status: resp.StatusCode, Err: err}
	}
	return out, nil
}

func statusError(status int, raw []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: Unauthorized, Status: status}
	case status == http.StatusNotFound:
		return &Error{Kind: NotFound, Status: status}
	case status >= 500:
		return &Error{Kind: ServerError, Status: status, Message: errorMessage(raw)}
	}
	if msg := errorMessage(raw); msg != "" {
		return &Error{Kind: Custom, Status: status, Message: msg}
	}
	return &Error{Kind: UnexpectedStatus, Status: status}
}

func errorMessage(raw []byte) string {
	var body ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Error
}

func (c *Client) ListAccounts(ctx context.Context) ([]core.Account, error) {
	dtos, err := request[[]AccountDTO](ctx, c, http.MethodGet, "/accounts", nil)
	if err != nil {
		return nil, err
	}
	out := make([]core.Account, 0, len(dtos))
	for _, d := range dtos {
		a, err := d.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *Client) CreateAccount(ctx context.Context, in NewAccount) (core.Account, error) {
	balance := in.Balance
	if balance == "" {
		balance = "0"
	}
	dto, err := request[AccountDTO](ctx, c, http.MethodPost, "/accounts",
		AccountRequest{Name: in.Name, Balance: balance, Currency: in.Currency})
	if err != nil {
		return core.Account{}, err
	}
	return dto.toCore()
}

func (c *Client) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	dto, err := request[AccountDTO](ctx, c, http.MethodPut, "/accounts/"+strconv.FormatInt(a.ID, 10),
		AccountRequest{Name: a.Name, Balance: a.Balance.String(), Currency: a.Currency})
	if err != nil {
		return core.Account{}, err
	}
	return dto.toCore()
}

func (c *Client) ListTransactions(ctx context.Context, accountID int64, p core.Period) ([]core.Transaction, error) {
	q := url.Values{}
	q.Set("startDate", p.From.Format(DateLayout))
	q.Set("endDate", p.To.Format(DateLayout))
	endpoint := fmt.Sprintf("/transactions/account/%d/period?%s", accountID, q.Encode())

	dtos, err := request[[]TransactionDTO](ctx, c, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, len(dtos))
	for i, d := range dtos {
		out[i] = d.toCore()
	}
	return out, nil
}

// CreateTransaction sends t for the server to store. Negative ids are local placeholders and
// are not sent; the returned record carries the id the server assigned.
func (c *Client) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	body := transactionDTO(t)
	if body.ID < 0 {
		body.ID = 0
	}
	var opts []requestOption
	if t.ClientKey != "" {
		opts = append(opts, withHeader(IdempotencyHeader, t.ClientKey))
	}
	dto, err := request[TransactionDTO](ctx, c, http.MethodPost, "/transactions", body, opts...)
	if err != nil {
		return core.Transaction{}, err
	}
	return dto.toCore(), nil
}

func (c *Client) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	dto, err := request[TransactionDTO](ctx, c, http.MethodPut, "/transactions/"+strconv.FormatInt(t.ID, 10), transactionDTO(t))
	if err != nil {
		return core.Transaction{}, err
	}
	return dto.toCore(), nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := request[struct{}](ctx, c, http.MethodDelete, "/transactions/"+strconv.FormatInt(id, 10), nil)
	return err
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	dtos, err := request[[]CategoryDTO](ctx, c, http.MethodGet, "/categories", nil)
	if err != nil {
		return nil, err
	}
	out := make([]core.Category, len(dtos))
	for i, d := range dtos {
		out[i] = d.toCore()
	}
	return out, nil
}
