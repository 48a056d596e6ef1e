package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrMerge8/recursive/internal/domain/models"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
	"github.com/MrMerge8/recursive/pkg/metrics"
)

type fakeCompleter struct {
	replies []string
	errs    []error
	prompts []string
	tokens  []int
}

func (f *fakeCompleter) Model() string { return "fake" }

func (f *fakeCompleter) Complete(_ context.Context, prompt string, maxTokens int) (string, error) {
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.tokens = append(f.tokens, maxTokens)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("no reply scripted")
}

func newTestGateway(c Completer) *Gateway {
	return NewGateway(c, Settings{
		Role:                RolePrimary,
		MaxTokens:           MaxTokens{Predict: 800, Learning: 150, Meta: 1500},
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
	}, metrics.Nop{}, nil)
}

func TestGatewayRequestPrediction(t *testing.T) {
	fc := &fakeCompleter{replies: []string{`{"direction": "UP", "target": 101, "confidence": 70, "reasoning": "r"}`}}
	g := newTestGateway(fc)

	resp, err := g.RequestPrediction(context.Background(), dsvc.PredictionRequest{Timeframe: "5"})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionUp, resp.Direction)
	assert.Equal(t, []int{800}, fc.tokens)
	assert.Contains(t, fc.prompts[0], "in the next 5 minutes")
}

func TestGatewayParseErrorDoesNotTripBreaker(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"nope", "nope", "nope", "Fade the spike."}}
	g := newTestGateway(fc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.RequestPrediction(ctx, dsvc.PredictionRequest{})
		assert.True(t, dsvc.IsParse(err))
	}

	p := &models.Prediction{}
	got, err := g.ExtractLearning(ctx, dsvc.LearningCase{Prediction: p})
	require.NoError(t, err)
	assert.Equal(t, "Fade the spike.", got)
	assert.Equal(t, 150, fc.tokens[3])
}

func TestGatewayBreakerOpensOnTransientFailures(t *testing.T) {
	boom := &dsvc.TransientError{Op: "fake", Err: errors.New("503")}
	fc := &fakeCompleter{errs: []error{boom, boom}}
	g := newTestGateway(fc)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.DeriveMetaRules(ctx, models.MetaSummary{})
		assert.True(t, dsvc.IsTransient(err))
	}

	// open breaker rejects without calling the completer
	_, err := g.DeriveMetaRules(ctx, models.MetaSummary{})
	assert.True(t, dsvc.IsTransient(err))
	assert.Len(t, fc.prompts, 2)
}

func TestAnthropicCompleter(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "hello"}], "stop_reason": "end_turn"}`))
	}))
	defer srv.Close()

	c := NewAnthropicCompleter("key", "claude-test", WithAnthropicBaseURL(srv.URL))
	out, err := c.Complete(context.Background(), "prompt", 150)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, 150, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestAnthropicCompleterErrors(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewAnthropicCompleter("key", "m", WithAnthropicBaseURL(srv.URL))
			_, err := c.Complete(context.Background(), "p", 10)
			require.Error(t, err)
			assert.Equal(t, tt.transient, dsvc.IsTransient(err))
		})
	}
}

func TestOpenAICompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "1", "object": "chat.completion", "choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"agrees\": false}"}, "finish_reason": "stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter("key", "gpt-test", srv.URL+"/v1", time.Second)
	out, err := c.Complete(context.Background(), "p", 800)
	require.NoError(t, err)
	assert.Equal(t, `{"agrees": false}`, out)
}

func TestOpenAICompleterServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter("key", "gpt-test", srv.URL+"/v1", time.Second)
	_, err := c.Complete(context.Background(), "p", 800)
	assert.True(t, dsvc.IsTransient(err))
}
