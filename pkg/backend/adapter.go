// Package backend exposes the airline check-in services as MCP tools. One
// generic REST adapter parameterized by request builder and mock fallback
// serves every endpoint; fixtures keyed by the designated test booking
// reference make the whole flow runnable without a live backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkin/pkg/logx"
)

// requestTimeout bounds one outbound backend HTTP call.
const requestTimeout = 55 * time.Second

// RequestBuilder maps tool arguments onto an HTTP request against the
// service's base URL. A nil body sends no payload.
type RequestBuilder func(args map[string]any) (method, path string, body any)

// MockFallback returns canned data for a tool invocation.
type MockFallback func(args map[string]any) (any, error)

// Service is one backend endpoint behind the generic adapter.
type Service struct {
	Name    string
	BaseURL string
	Headers map[string]string
	Build   RequestBuilder
	Mock    MockFallback

	client *http.Client
	logger *logx.Logger
}

// NewService creates a service. An empty base URL forces mock mode.
func NewService(name, baseURL string, headers map[string]string, build RequestBuilder, mock MockFallback) *Service {
	return &Service{
		Name:    name,
		BaseURL: baseURL,
		Headers: headers,
		Build:   build,
		Mock:    mock,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logx.NewLogger("backend." + name),
	}
}

// Invoke executes the tool call, via fixtures in mock mode or HTTP otherwise.
func (s *Service) Invoke(ctx context.Context, args map[string]any) (any, error) {
	if s.BaseURL == "" || mockRequested(args) {
		s.logger.Debug("serving %s from fixtures", s.Name)
		return s.Mock(args)
	}

	method, path, body := s.Build(args)
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", s.Name, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", s.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", s.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", s.Name, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s returned %d: %s", s.Name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", s.Name, err)
	}
	return payload, nil
}

// mockRequested detects the designated test booking or an explicit mock
// flag in the arguments.
func mockRequested(args map[string]any) bool {
	if v, ok := args["useMock"].(bool); ok && v {
		return true
	}
	for _, key := range []string{"bookingReference", "pnr"} {
		if ref, ok := args[key].(string); ok && strings.EqualFold(ref, MockBookingReference) {
			return true
		}
	}
	return false
}
