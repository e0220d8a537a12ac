package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds a single endpoint request when none is configured.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of an endpoint response is read.
const maxResponseBytes = 1 << 20

// Config describes one HTTP endpoint.
type Config struct {
	Name    string
	URL     string
	Token   string
	Timeout time.Duration
	Breaker BreakerConfig
}

// Client posts JSON to a single endpoint.
type Client struct {
	name       string
	url        string
	token      string
	httpClient *http.Client
	breaker    *Breaker
}

// NewClient creates a new endpoint client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		name:  cfg.Name,
		url:   cfg.URL,
		token: cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: NewBreaker(cfg.Breaker),
	}
}

// BreakerState returns the state of the client's circuit breaker
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// Validate asks the endpoint whether the outdial may proceed. Any failure
// to obtain an answer is returned as a *TransportError.
func (c *Client) Validate(ctx context.Context, req ValidationRequest) (Verdict, error) {
	body, err := c.post(ctx, req)
	if err != nil {
		return Verdict{}, err
	}

	var resp validationResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return Verdict{}, &TransportError{Endpoint: c.name, Cause: fmt.Errorf("decode verdict: %w", err)}
		}
	}
	v := resp.verdict()

	slog.Debug("[Endpoint] Validation response",
		"endpoint", c.name,
		"allowed", v.Allowed,
		"message", v.Message,
	)
	return v, nil
}

// Notify reports a placed outdial. The response body is returned as-is.
func (c *Client) Notify(ctx context.Context, req NotificationRequest) (json.RawMessage, error) {
	body, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	slog.Debug("[Endpoint] Notification response", "endpoint", c.name, "bytes", len(body))
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, &TransportError{Endpoint: c.name, Cause: fmt.Errorf("decode notification response: invalid JSON")}
	}
	return json.RawMessage(body), nil
}

// post performs an HTTP POST with a JSON body
func (c *Client) post(ctx context.Context, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID(ctx))
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	// every admitted request must report back to the breaker
	if !c.breaker.Allow() {
		return nil, &TransportError{Endpoint: c.name, Cause: ErrCircuitOpen}
	}
	slog.Debug("[Endpoint] Calling endpoint", "endpoint", c.name, "url", c.url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, &TransportError{Endpoint: c.name, Cause: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.breaker.RecordFailure()
		return nil, &TransportError{Endpoint: c.name, StatusCode: resp.StatusCode, Cause: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.breaker.RecordFailure()
		return nil, &TransportError{
			Endpoint:   c.name,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected status: %s", http.StatusText(resp.StatusCode)),
		}
	}

	c.breaker.RecordSuccess()
	return body, nil
}

type requestIDKey struct{}

// WithRequestID attaches the correlation id sent as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}
