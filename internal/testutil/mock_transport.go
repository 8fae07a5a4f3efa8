package testutil

import (
	"context"
	"sync"

	"github.com/upload-widget/backend/internal/upload"
)

// Call records one Upload invocation on MockTransport.
type Call struct {
	ID     string
	File   upload.File
	Ctx    context.Context
	Events upload.Events
}

// MockTransport implements upload.Transport. It records calls and never
// reports back on its own; tests drive the events through the recorded
// Events value.
type MockTransport struct {
	mu    sync.Mutex
	calls []Call

	// AbortOnCancel makes Upload block until ctx is done and then report
	// OnAbort, the way a real transport acknowledges cancellation.
	AbortOnCancel bool
}

// NewMockTransport creates an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Upload implements upload.Transport.
func (m *MockTransport) Upload(ctx context.Context, id string, file upload.File, events upload.Events) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{ID: id, File: file, Ctx: ctx, Events: events})
	abort := m.AbortOnCancel
	m.mu.Unlock()

	if abort {
		<-ctx.Done()
		events.OnAbort(id)
	}
}

// Calls returns a copy of the recorded calls.
func (m *MockTransport) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Upload invocations.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ upload.Transport = (*MockTransport)(nil)
