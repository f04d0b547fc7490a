package recognize

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockEngine is an Engine for testing. It returns Pages[i] for the i-th call
// and an empty result once Pages is exhausted.
type MockEngine struct {
	Label      string
	Latency    time.Duration
	Pages      [][]Detection
	ShouldFail bool
	FailAfter  int // fail after N successful calls (0 = never)

	calls atomic.Int64
}

// NewMockEngine creates a mock engine returning the given pages in order.
func NewMockEngine(pages ...[]Detection) *MockEngine {
	return &MockEngine{Label: MockName, Pages: pages}
}

// Name returns the mock label.
func (m *MockEngine) Name() string {
	if m.Label == "" {
		return MockName
	}
	return m.Label
}

// Recognize returns the next canned page.
func (m *MockEngine) Recognize(ctx context.Context, img []byte) ([]Detection, error) {
	n := m.calls.Add(1)

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ShouldFail || (m.FailAfter > 0 && n > int64(m.FailAfter)) {
		return nil, errors.New("mock recognition failure")
	}

	i := int(n - 1)
	if i >= len(m.Pages) {
		return nil, nil
	}
	return m.Pages[i], nil
}

// Calls returns the number of Recognize calls so far.
func (m *MockEngine) Calls() int {
	return int(m.calls.Load())
}

var _ Engine = (*MockEngine)(nil)
