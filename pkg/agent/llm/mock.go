package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted Client for tests and local dry runs. It returns
// queued responses in order and records every request it sees.
type MockClient struct {
	mu        sync.Mutex
	responses []Response
	requests  []Request
	err       error
}

// NewMockClient creates a mock that replays the given responses in order.
func NewMockClient(responses ...Response) *MockClient {
	return &MockClient{responses: responses}
}

// Fail makes every subsequent Respond call return err.
func (m *MockClient) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Enqueue appends more scripted responses.
func (m *MockClient) Enqueue(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// Requests returns a copy of the requests seen so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// ModelName implements Client.
func (m *MockClient) ModelName() string {
	return "mock"
}

// Respond implements Client.
func (m *MockClient) Respond(_ context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return Response{}, m.err
	}
	if len(m.responses) == 0 {
		return Response{}, fmt.Errorf("mock client exhausted after %d responses", len(m.requests)-1)
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	if resp.ID == "" {
		resp.ID = fmt.Sprintf("mock-resp-%d", len(m.requests))
	}
	return resp, nil
}
