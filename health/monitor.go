package health

import (
	"sort"
	"sync"
	"time"
)

// Check computes a status on demand.
type Check func() Status

// Monitor tracks named statuses. A name either holds a fixed status set with
// Update or a Check evaluated on every read.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	checks   map[string]Check
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		checks:   make(map[string]Check),
	}
}

// Update stores a fixed status for name, replacing any registered check.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.checks, name)
	m.statuses[name] = normalize(name, status)
}

// Register installs a check for name, replacing any fixed status.
func (m *Monitor) Register(name string, check Check) {
	if check == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
	m.checks[name] = check
}

// Remove stops tracking name
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
	delete(m.checks, name)
}

// Get returns the current status for name, running its check if it has one.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	status, ok := m.statuses[name]
	check, hasCheck := m.checks[name]
	m.mu.RUnlock()

	if hasCheck {
		return normalize(name, check()), true
	}
	return status, ok
}

// Count returns the number of tracked names
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.statuses) + len(m.checks)
}

// AggregateHealth evaluates every tracked name and aggregates the results in
// name order. Checks run outside the lock.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses)+len(m.checks))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	checks := make(map[string]Check, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mu.RUnlock()

	for name, check := range checks {
		subStatuses = append(subStatuses, normalize(name, check()))
	}
	sort.Slice(subStatuses, func(i, j int) bool {
		return subStatuses[i].Component < subStatuses[j].Component
	})

	return Aggregate(systemName, subStatuses)
}

func normalize(name string, status Status) Status {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	return status
}
