package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
	pkghttp "github.com/MrMerge8/recursive/pkg/http"
)

// AnthropicOption configures AnthropicCompleter.
type AnthropicOption func(*AnthropicCompleter)

// AnthropicCompleter calls the Messages API.
type AnthropicCompleter struct {
	http    *pkghttp.Client
	baseURL string
	apiKey  string
	model   string
	version string
	timeout time.Duration
}

func NewAnthropicCompleter(apiKey, model string, opts ...AnthropicOption) *AnthropicCompleter {
	c := &AnthropicCompleter{
		baseURL: "https://api.anthropic.com",
		apiKey:  apiKey,
		model:   model,
		version: "2023-06-01",
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = pkghttp.NewClient(pkghttp.WithTimeout(c.timeout))
	return c
}

func WithAnthropicBaseURL(u string) AnthropicOption {
	return func(c *AnthropicCompleter) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithAnthropicVersion(v string) AnthropicOption {
	return func(c *AnthropicCompleter) {
		if v != "" {
			c.version = v
		}
	}
}

func WithAnthropicTimeout(d time.Duration) AnthropicOption {
	return func(c *AnthropicCompleter) {
		if d > 0 {
			c.timeout = d
		}
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *AnthropicCompleter) Model() string { return c.model }

func (c *AnthropicCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var resp anthropicResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    c.baseURL + "/v1/messages",
		Headers: map[string]string{
			"x-api-key":         c.apiKey,
			"anthropic-version": c.version,
			"content-type":      "application/json",
		},
		Body: anthropicRequest{
			Model:     c.model,
			MaxTokens: maxTokens,
			Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		},
	}, &resp)
	if err != nil {
		return "", classifyHTTPError("anthropic", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", &dsvc.ParseError{Op: "anthropic", Err: fmt.Errorf("no text content (stop_reason=%s)", resp.StopReason)}
	}
	return b.String(), nil
}

// classifyHTTPError marks network failures, 429 and 5xx as transient.
func classifyHTTPError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var se *pkghttp.StatusError
	if errors.As(err, &se) && !se.Temporary() {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &dsvc.TransientError{Op: op, Err: err}
}
