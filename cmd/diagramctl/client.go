package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/coordinator"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

// errWaitTimeout is returned when a job is still running after --timeout
var errWaitTimeout = errors.New("timed out waiting for generation")

// apiError is a non-2xx response from the coordinator
type apiError struct {
	Status int
	Body   coordinator.ErrorBody
}

func (e *apiError) Error() string {
	if e.Body.Message == "" {
		return fmt.Sprintf("coordinator returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Body.Code, e.Status, e.Body.Message)
}

// apiClient talks to the coordinator's HTTP API
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *apiClient) Generate(ctx context.Context, req coordinator.GenerateRequest) (coordinator.DispatchResponse, error) {
	var out coordinator.DispatchResponse
	return out, c.do(ctx, http.MethodPost, "/generate", req, &out)
}

func (c *apiClient) DesignDoc(ctx context.Context, sessionID string) (coordinator.DispatchResponse, error) {
	var out coordinator.DispatchResponse
	return out, c.do(ctx, http.MethodPost, "/design-doc", coordinator.DesignDocRequest{SessionID: sessionID}, &out)
}

func (c *apiClient) Chat(ctx context.Context, req coordinator.ChatRequest) (coordinator.ChatResponse, error) {
	var out coordinator.ChatResponse
	return out, c.do(ctx, http.MethodPost, "/chat", req, &out)
}

func (c *apiClient) Session(ctx context.Context, id string) (coordinator.SessionView, error) {
	var out coordinator.SessionView
	return out, c.do(ctx, http.MethodGet, "/sessions/"+id, nil, &out)
}

func (c *apiClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+id, nil, nil)
}

// Wait polls the session until kind reaches a terminal state.
func (c *apiClient) Wait(ctx context.Context, id string, kind session.Kind, interval, timeout time.Duration) (coordinator.SessionView, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := c.Session(ctx, id)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return view, errWaitTimeout
			}
			return view, err
		}
		if view.Status[kind].State.Terminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, errWaitTimeout
		case <-ticker.C:
		}
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr.Body)
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
