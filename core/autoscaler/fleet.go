package autoscaler

import (
	"context"
	"sync"
)

// FleetManager abstracts the platform that runs dispatch workers. The HTTP
// adapter talks to a real orchestrator; MockFleetManager backs tests and the
// simulator.
type FleetManager interface {
	Replicas(ctx context.Context) (int, error)
	Scale(ctx context.Context, target int) error
	Ping(ctx context.Context) error
}

// MockFleetManager is an in-memory FleetManager.
type MockFleetManager struct {
	mu       sync.Mutex
	replicas int

	// FailScale forces Scale to return this error when set.
	FailScale error
	// FailPing forces Ping to return this error when set.
	FailPing error

	scaleCalls int
}

func NewMockFleetManager(replicas int) *MockFleetManager {
	return &MockFleetManager{replicas: replicas}
}

func (m *MockFleetManager) Replicas(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replicas, nil
}

func (m *MockFleetManager) Scale(_ context.Context, target int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scaleCalls++
	if m.FailScale != nil {
		return m.FailScale
	}
	m.replicas = target
	return nil
}

func (m *MockFleetManager) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FailPing
}

// ScaleCalls reports how many Scale calls were attempted, failed or not.
func (m *MockFleetManager) ScaleCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scaleCalls
}
