// Package completion streams chat completions from an OpenAI-compatible
// endpoint and exposes the generated text as an htmlstream.Source.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/SawyerHood/openai-html-stream/internal/config"
	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
	"github.com/SawyerHood/openai-html-stream/internal/logging"
	"github.com/SawyerHood/openai-html-stream/internal/version"
)

var (
	// ErrEmptyPrompt is returned when a request carries no prompt text.
	ErrEmptyPrompt = stderrors.New("completion: empty prompt")

	// ErrUpstreamStatus is the cause of errors for non-2xx upstream responses.
	ErrUpstreamStatus = stderrors.New("completion: unexpected upstream status")
)

// Caps on how much of a failed response or a bad frame is kept for
// diagnostics.
const (
	maxErrorBody    = 512
	maxFrameExcerpt = 120
)

type Request struct {
	Prompt string
	// Model overrides the configured model when set.
	Model string
}

type Client struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       logging.Logger
}

func NewClient(cfg config.UpstreamConfig, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   newHTTPClient(cfg.Timeout),
		limiter:      rate.NewLimiter(limit, burst),
		logger:       logger.WithComponent("completion"),
	}
}

// newHTTPClient bounds the wait for response headers only. The body is a
// live event stream and is limited by the request context alone.
func newHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Stream   bool      `json:"stream"`
	Messages []message `json:"messages"`
}

func (c *Client) buildRequest(req Request) chatRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body := chatRequest{Model: model, Stream: true}
	if c.systemPrompt != "" {
		body.Messages = append(body.Messages, message{Role: "system", Content: c.systemPrompt})
	}
	body.Messages = append(body.Messages, message{Role: "user", Content: req.Prompt})
	return body
}

// Stream starts a streamed completion. Errors that happen before any text is
// produced (throttling, transport, non-2xx status) are returned directly;
// later failures end the returned sequence.
//
// The returned Source is single use. Ranging over it to the end, or breaking
// out early, closes the response body.
func (c *Client) Stream(ctx context.Context, req Request) (htmlstream.Source, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.WrapUpstream(err, "waiting for request slot")
	}

	payload, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "encoding request", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewUpstreamError(errors.ErrCodeUpstreamRequest, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug(ctx, "Requesting completion", "url", url, "prompt_bytes", len(req.Prompt))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error(ctx, err, "Upstream request failed", "url", url)
		return nil, errors.NewUpstreamError(errors.ErrCodeUpstreamRequest, "sending request", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		se := errors.NewUpstreamError(errors.ErrCodeUpstreamStatus,
			fmt.Sprintf("upstream returned %s", resp.Status), ErrUpstreamStatus).
			WithContext("status", resp.StatusCode).
			WithContext("body", logging.Truncate(strings.TrimSpace(string(excerpt)), maxErrorBody))
		se.Retryable = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		c.logger.Error(ctx, se, "Upstream rejected request", "status", resp.StatusCode)
		return nil, se
	}

	return c.events(ctx, resp.Body), nil
}
