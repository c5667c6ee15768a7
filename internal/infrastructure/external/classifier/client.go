// Package classifier implements the HTTP client of the language detection
// service used by the ingestion pipeline.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/pkg/circuitbreaker"
	"github.com/hablemos/language-league/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the classifier client.
type Config struct {
	// BaseURL is the service root; requests go to {BaseURL}/detect.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds one HTTP attempt.
	Timeout time.Duration

	// MinConfidence drops verdicts below this score. Zero accepts all.
	MinConfidence float64

	// RequestsPerSecond caps outbound calls. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 50,
		Burst:             100,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

type detectRequest struct {
	Text string `json:"text"`
}

type detectResponse struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// statusError is a non-2xx reply.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("classifier returned status %d: %s", e.Code, e.Body)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements league.Classifier over HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// NewClient creates a classifier client.
func NewClient(config Config) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	logger := config.Logger.With("component", "classifier")

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		retrier:    retry.ClassifierRetrier(isTransient),
	}
	c.breaker = circuitbreaker.ClassifierBreaker(
		func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
		},
		circuitbreaker.WithIsFailure(isTransient),
	)
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return c
}

// Detect returns the language of text, or LanguageNone when the service
// cannot tell or answers with a language outside the league.
func (c *Client) Detect(ctx context.Context, text string) (league.Language, error) {
	var lang league.Language
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			lang, err = c.detectOnce(ctx, text)
			return err
		})
	})
	if err == nil {
		return lang, nil
	}

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return league.LanguageNone, shared.WrapError("classifier", "Detect", shared.ErrClassifierUnavailable, "classifier circuit open", err)
	case errors.Is(err, context.DeadlineExceeded):
		return league.LanguageNone, shared.WrapError("classifier", "Detect", shared.ErrTimeout, "classifier timed out", err)
	default:
		return league.LanguageNone, shared.WrapError("classifier", "Detect", shared.ErrExternalService, "classifier request failed", err)
	}
}

// Breaker exposes the client's circuit breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

func (c *Client) detectOnce(ctx context.Context, text string) (league.Language, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return league.LanguageNone, err
		}
	}

	body, err := json.Marshal(detectRequest{Text: text})
	if err != nil {
		return league.LanguageNone, retry.Permanent(fmt.Errorf("marshal body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return league.LanguageNone, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return league.LanguageNone, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return league.LanguageNone, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return league.LanguageNone, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var out detectResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return league.LanguageNone, fmt.Errorf("parse response: %w", err)
	}
	if c.config.MinConfidence > 0 && out.Confidence < c.config.MinConfidence {
		c.logger.Debug("low confidence verdict dropped", "language", out.Language, "confidence", out.Confidence)
		return league.LanguageNone, nil
	}
	return league.ParseLanguage(out.Language), nil
}

// isTransient reports whether a failed attempt may succeed on retry. Client
// errors (4xx other than 429) are final and do not trip the breaker.
func isTransient(err error) bool {
	if err == nil || retry.IsPermanent(err) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

var _ league.Classifier = (*Client)(nil)
