package temporal

import (
	"context"
	"sync"
)

// FinalityTracker starts background finality tracking for confirmed signatures.
type FinalityTracker interface {
	StartFinalityTracking(ctx context.Context, operationID, kind, signature string) error
}

// finalityWorkflowID returns the workflow ID for a signature.
func finalityWorkflowID(signature string) string {
	return "finality-" + signature
}

// MockFinalityTracker is a mock implementation of FinalityTracker for testing.
type MockFinalityTracker struct {
	mu       sync.Mutex
	started  map[string]TrackFinalityInput // keyed by workflow ID
	startErr error
}

// NewMockFinalityTracker creates a new MockFinalityTracker.
func NewMockFinalityTracker() *MockFinalityTracker {
	return &MockFinalityTracker{
		started: make(map[string]TrackFinalityInput),
	}
}

// StartFinalityTracking records the request.
func (m *MockFinalityTracker) StartFinalityTracking(ctx context.Context, operationID, kind, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}
	m.started[finalityWorkflowID(signature)] = TrackFinalityInput{
		OperationID: operationID,
		Kind:        kind,
		Signature:   signature,
	}
	return nil
}

// SetStartError makes StartFinalityTracking return an error.
func (m *MockFinalityTracker) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// Tracking reports whether tracking was started for signature.
func (m *MockFinalityTracker) Tracking(signature string) (TrackFinalityInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.started[finalityWorkflowID(signature)]
	return in, ok
}

// Count returns the number of started trackings.
func (m *MockFinalityTracker) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}
