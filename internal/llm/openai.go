package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 2 * time.Minute
	maxErrorBody   = 4096
)

// HTTPClient is the subset of *http.Client used here.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	apiKey       string
	endpoint     string
	defaultModel string
	timeout      time.Duration
	client       HTTPClient
}

// OpenAIOption configures the client
type OpenAIOption func(*OpenAI)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c HTTPClient) OpenAIOption {
	return func(o *OpenAI) { o.client = c }
}

// WithTimeout bounds each Generate call.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(o *OpenAI) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) OpenAIOption {
	return func(o *OpenAI) { o.defaultModel = model }
}

// NewOpenAI creates a client for baseURL (empty means api.openai.com).
func NewOpenAI(apiKey, baseURL string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		apiKey:       apiKey,
		endpoint:     completionsURL(baseURL),
		defaultModel: "gpt-4o",
		timeout:      defaultTimeout,
		client:       &http.Client{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func completionsURL(baseURL string) string {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	return baseURL + "/chat/completions"
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate sends one non-streaming completion request.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = o.defaultModel
	}
	body := chatRequest{Model: model, Messages: req.Messages()}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return "", &Error{Kind: KindTimeout, Err: ctx.Err()}
		}
		return "", &Error{Kind: KindInvalidResponse, Message: "decode response", Err: err}
	}
	if out.Error != nil {
		return "", &Error{Kind: KindRequest, Message: out.Error.Message}
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", NewError(KindInvalidResponse, "empty completion")
	}
	return out.Choices[0].Message.Content, nil
}

func classifyStatus(code int, body string) error {
	e := &Error{StatusCode: code, Message: body}
	switch {
	case code == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case code >= 500:
		e.Kind = KindUnavailable
	default:
		e.Kind = KindRequest
	}
	return e
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: KindUnavailable, Err: err}
}
