// Package llm talks to an OpenAI compatible chat completion endpoint (Groq by default).
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

// Defaults for the completion client.
const (
	DefaultBaseURL      = "https://api.groq.com/openai/v1"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 2
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 5 * time.Second
	DefaultUserAgent    = "browserx"
)

// Config configures the completion client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit    float64
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
	Logger       pslog.Logger
}

// Client issues chat completions.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	timeout time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// New builds a client. An empty API key is accepted; calls then fail as unauthenticated.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("llm base url must be http or https: %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = DefaultRetryWaitMin
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = DefaultRetryWaitMax
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.Logger != nil {
		retryClient.Logger = retryLogger{log: cfg.Logger.With("component", "llm")}
	} else {
		retryClient.Logger = nil
	}

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Content-Type", "application/json")
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		client.SetAuthToken(key)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{http: client, limiter: limiter, timeout: cfg.Timeout}, nil
}

// Complete sends one chat completion and returns the trimmed answer.
func (c *Client) Complete(ctx context.Context, req schema.CompletionRequest) (string, error) {
	if strings.TrimSpace(string(req.Model)) == "" {
		return "", schema.ErrInvalidModel
	}
	log := logx.Ctx(ctx).With("model", string(req.Model))
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &schema.BackendError{Reason: schema.BackendRateLimited, Err: err}
	}

	body := chatRequest{
		Model:       string(req.Model),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: system})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	started := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		log.Debug("llm request failed", "err", err, "elapsed", time.Since(started))
		return "", c.transportError(ctx, err)
	}
	status := resp.StatusCode()
	log.Debug("llm response", "status", status, "elapsed", time.Since(started), "bytes", len(resp.Body()))
	if status < 200 || status >= 300 {
		return "", statusError(status, resp.Body())
	}

	var decoded chatResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return "", &schema.BackendError{
			Reason: schema.BackendBadResponse,
			Status: status,
			Err:    &schema.ParseError{Tag: "completion", Err: err},
		}
	}
	if len(decoded.Choices) == 0 {
		return "", &schema.BackendError{
			Reason: schema.BackendBadResponse,
			Status: status,
			Err:    &schema.ParseError{Tag: "completion", Err: errors.New("no choices")},
		}
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &schema.TimeoutError{Op: "completion", After: c.timeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &schema.TimeoutError{Op: "completion", After: c.timeout}
	}
	return &schema.BackendError{Reason: schema.BackendNetwork, Err: err}
}

func statusError(status int, body []byte) error {
	var payload apiError
	message := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		message = strings.TrimSpace(payload.Error.Message)
	}
	reason := schema.BackendBadResponse
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		reason = schema.BackendUnauthenticated
	case status == http.StatusTooManyRequests:
		reason = schema.BackendRateLimited
	case status >= 500:
		reason = schema.BackendUnavailable
	}
	return &schema.BackendError{Reason: reason, Status: status, Message: message}
}

// retryLogger routes retryablehttp's leveled logging into pslog.
type retryLogger struct {
	log pslog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Warn(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Trace(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn(msg, keysAndValues...)
}
