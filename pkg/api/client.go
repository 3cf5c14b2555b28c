package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ledgersync/pkg/ledger"
	"ledgersync/pkg/logging"
	"ledgersync/pkg/query"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com/api/v1".
	BaseURL string

	// Token is the bearer token sent on every request.
	Token string

	// Timeout applies per remote call, not per sync run.
	Timeout time.Duration

	// HTTPClient overrides the underlying transport. Defaults to a plain
	// http.Client; the per-call timeout comes from Timeout, not from here.
	HTTPClient *http.Client

	// BreakerConsecutiveFailures trips the circuit breaker after this many
	// consecutive failures. Zero uses the default of 5.
	BreakerConsecutiveFailures uint32

	// BreakerCooldown is how long the breaker stays open before probing.
	// Zero uses the default of 30s.
	BreakerCooldown time.Duration
}

// DefaultConfig returns the default client configuration for the given base
// URL and token.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL: baseURL,
		Token:   token,
		Timeout: 10 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("api: base URL required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("api: invalid base URL: %w", err)
	}
	if c.Token == "" {
		return errors.New("api: token required")
	}
	return nil
}

// Client is a read-only client for the ledger API. All calls are protected
// by a circuit breaker and a per-call timeout; HTTP statuses are mapped onto
// the package error taxonomy so callers never see raw status codes.
type Client struct {
	config Config
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *logging.Logger
}

// NewClient creates a client from the given configuration.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := logging.Global().Named("api")

	consecutive := config.BreakerConsecutiveFailures
	if consecutive == 0 {
		consecutive = 5
	}
	cooldown := config.BreakerCooldown
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "ledger-api",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutive
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Client errors (404, bad filters) are not remote health
			// signals and must not trip the breaker.
			return err == nil || !IsRetryable(err)
		},
	}

	return &Client{
		config: config,
		http:   httpClient,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}, nil
}

// ListAccounts fetches the first page of accounts matching the query.
func (c *Client) ListAccounts(ctx context.Context, q query.Query) (*AccountPage, error) {
	body, err := c.get(ctx, c.endpoint("/accounts", q))
	if err != nil {
		return nil, err
	}
	return decodeAccountPage(body)
}

// AccountsAt fetches the account page identified by an opaque cursor.
func (c *Client) AccountsAt(ctx context.Context, cursor Cursor) (*AccountPage, error) {
	if cursor.IsZero() {
		return nil, errors.New("api: empty cursor")
	}
	body, err := c.get(ctx, string(cursor))
	if err != nil {
		return nil, err
	}
	return decodeAccountPage(body)
}

// GetAccount fetches a single account by identifier.
func (c *Client) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	if id == "" {
		return ledger.Account{}, errors.New("api: empty account id")
	}
	body, err := c.get(ctx, c.endpoint("/accounts/"+url.PathEscape(id), query.Query{}))
	if err != nil {
		return ledger.Account{}, err
	}
	var envelope singleEnvelope
	if err := decodeSingle(body, &envelope); err != nil {
		return ledger.Account{}, err
	}
	return decodeAccount(envelope.Data)
}

// ListTransactions fetches the first page of transactions matching the
// query. Pages arrive newest first.
func (c *Client) ListTransactions(ctx context.Context, q query.Query) (*TransactionPage, error) {
	body, err := c.get(ctx, c.endpoint("/transactions", q))
	if err != nil {
		return nil, err
	}
	return decodeTransactionPage(body)
}

// TransactionsAt fetches the transaction page identified by an opaque
// cursor. The cursor is used verbatim as the request URL.
func (c *Client) TransactionsAt(ctx context.Context, cursor Cursor) (*TransactionPage, error) {
	if cursor.IsZero() {
		return nil, errors.New("api: empty cursor")
	}
	body, err := c.get(ctx, string(cursor))
	if err != nil {
		return nil, err
	}
	return decodeTransactionPage(body)
}

func (c *Client) endpoint(path string, q query.Query) string {
	u := strings.TrimSuffix(c.config.BaseURL, "/") + path
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// get performs one authenticated GET through the circuit breaker with the
// per-call timeout, returning the response body or a taxonomy error.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.doGet(ctx, rawURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("circuit breaker rejected request", zap.String("url", rawURL))
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		c.logger.Debug("request failed",
			zap.String("url", rawURL),
			zap.String("kind", ClassifyError(err)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) doGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("api: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: timeout after %s", ErrUnavailable, c.config.Timeout)
		}
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, statusError(ErrNotFound, resp.StatusCode, rawURL)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, statusError(ErrUnauthorized, resp.StatusCode, rawURL)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, statusError(ErrUnavailable, resp.StatusCode, rawURL)
	default:
		return nil, fmt.Errorf("api: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}
	return body, nil
}
