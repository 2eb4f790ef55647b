package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vincentbai/classtrace/internal/logging"
	"github.com/vincentbai/classtrace/internal/models"
)

// Sender delivers one batch.
type Sender interface {
	Send(ctx context.Context, batch models.InteractionBatch) (models.SinkResponse, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	// Timeout bounds each request.
	Timeout time.Duration
	// BreakerFailures consecutive retryable failures open the breaker for
	// BreakerOpenFor. Zero failures disables the breaker.
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
	HTTPClient      *http.Client
}

// Client posts batches to the sink's /api/interactions endpoint.
type Client struct {
	endpoint string
	health   string
	timeout  time.Duration
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[models.SinkResponse]
	logger   zerolog.Logger
}

var _ Sender = (*Client)(nil)

// NewClient builds a client for the sink at cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	c := &Client{
		endpoint: base + "/api/interactions",
		health:   base + "/api/health",
		timeout:  cfg.Timeout,
		http:     hc,
		logger:   logging.Component("upload"),
	}
	if cfg.BreakerFailures > 0 {
		c.breaker = gobreaker.NewCircuitBreaker[models.SinkResponse](gobreaker.Settings{
			Name:    "sink",
			Timeout: cfg.BreakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			// a rejected batch says nothing about sink health
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrMalformedBatch)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Sink breaker state changed")
			},
		})
	}
	return c
}

// Send posts batch. Errors wrap ErrMalformedBatch or ErrUploadFailed.
func (c *Client) Send(ctx context.Context, batch models.InteractionBatch) (models.SinkResponse, error) {
	if c.breaker == nil {
		return c.post(ctx, batch)
	}
	resp, err := c.breaker.Execute(func() (models.SinkResponse, error) {
		return c.post(ctx, batch)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return resp, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return resp, err
}

func (c *Client) post(ctx context.Context, batch models.InteractionBatch) (models.SinkResponse, error) {
	var out models.SinkResponse
	body, err := json.Marshal(batch)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := logging.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return out, fmt.Errorf("%w: reading response: %w", ErrUploadFailed, err)
	}
	// error bodies are informational only
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return out, nil
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusRequestEntityTooLarge,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return out, fmt.Errorf("%w: status %d: %s", ErrMalformedBatch, resp.StatusCode, out.Error)
	}
	return out, fmt.Errorf("%w: status %d", ErrUploadFailed, resp.StatusCode)
}

// Healthy reports whether the sink answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.health, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrUploadFailed, resp.StatusCode)
	}
	return nil
}
