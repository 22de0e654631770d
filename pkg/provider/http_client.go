package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/stockpoolhq/stockpool-backend/pkg/errors"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 250 * time.Millisecond
	defaultMaxDelay    = 8 * time.Second
)

var errBaseURLRequired = errors.New("provider base url is required")

// HTTPClient talks to one store's inventory system over its JSON API,
// retrying transient failures with exponential backoff before surfacing an
// error to the pool engine.
type HTTPClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *logger.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// HTTPFactory builds HTTPClients sharing one underlying http.Client.
type HTTPFactory struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// NewHTTPFactory constructs a factory with sane transport timeouts.
func NewHTTPFactory(logg *logger.Logger) *HTTPFactory {
	return &HTTPFactory{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logg,
	}
}

// ForStore returns a client bound to the store's credentials.
func (f *HTTPFactory) ForStore(creds Credentials) Client {
	return &HTTPClient{
		baseURL:     strings.TrimRight(creds.BaseURL, "/"),
		accessToken: creds.AccessToken,
		httpClient:  f.httpClient,
		logger:      f.logger,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
	}
}

type levelsResponse struct {
	Levels []Level `json:"levels"`
}

type adjustRequest struct {
	ItemID     string `json:"item_id"`
	LocationID string `json:"location_id"`
	Delta      int    `json:"delta"`
}

type setRequest struct {
	ItemID     string `json:"item_id"`
	LocationID string `json:"location_id"`
	Value      int    `json:"value"`
}

// ReadLevels fetches current levels for the requested items.
func (c *HTTPClient) ReadLevels(ctx context.Context, itemIDs []string) ([]Level, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	query := url.Values{"item_ids": []string{strings.Join(itemIDs, ",")}}
	endpoint := fmt.Sprintf("%s/inventory/levels?%s", c.baseURL, query.Encode())

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "read_levels")
	if err != nil {
		return nil, err
	}

	var resp levelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provider read_levels: decoding response")
	}
	return resp.Levels, nil
}

// WriteDelta applies an available-quantity change. delta=0 is a no-op.
func (c *HTTPClient) WriteDelta(ctx context.Context, itemID, locationID string, delta int) error {
	if delta == 0 {
		return nil
	}
	payload, err := json.Marshal(adjustRequest{ItemID: itemID, LocationID: locationID, Delta: delta})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "provider write_delta: encoding request")
	}
	_, err = c.do(ctx, http.MethodPost, c.baseURL+"/inventory/adjust", payload, "write_delta")
	return err
}

// WriteAbsolute sets the available quantity outright.
func (c *HTTPClient) WriteAbsolute(ctx context.Context, itemID, locationID string, value int) error {
	payload, err := json.Marshal(setRequest{ItemID: itemID, LocationID: locationID, Value: value})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "provider write_absolute: encoding request")
	}
	_, err = c.do(ctx, http.MethodPost, c.baseURL+"/inventory/set", payload, "write_absolute")
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, payload []byte, op string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, errBaseURLRequired, "provider "+op)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.doOnce(ctx, method, endpoint, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		if attempt == c.maxAttempts {
			break
		}
		delay := c.backoffDelay(attempt)
		c.log(ctx, op, map[string]any{"attempt": attempt, "retry_in": delay.String(), "error": err.Error()})
		select {
		case <-ctx.Done():
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), fmt.Sprintf("provider %s canceled", op))
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("provider %s: %w", op, lastErr)
}

func (c *HTTPClient) doOnce(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider resource not found")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "provider rejected credentials")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("provider returned %d", resp.StatusCode))
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
}

// retryable reports whether the mapped error is worth another attempt.
func retryable(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeDependency)
}

func (c *HTTPClient) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay << (attempt - 1)
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	// full jitter
	return time.Duration(rand.Int63n(int64(delay)) + int64(c.baseDelay)/2)
}

func (c *HTTPClient) log(ctx context.Context, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	fields["operation"] = op
	ctx = c.logger.WithFields(ctx, fields)
	c.logger.Warn(ctx, "provider call retrying")
}
