package stats

import "sync"

// MockStatsUpdater is a no-op provider recording counter values for
// assertions in tests.
type MockStatsUpdater struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *MockStatsUpdater) Incr(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[name]++
}

func (m *MockStatsUpdater) Decr(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[name]--
}

func (m *MockStatsUpdater) RegisterMetric(name string) {}

func (m *MockStatsUpdater) Run() {}

func (m *MockStatsUpdater) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}
