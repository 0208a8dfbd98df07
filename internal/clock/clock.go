// file: internal/clock/clock.go
// version: 1.0.0
// guid: 3f8e2a1b-6c4d-4e9f-8a2b-1d5c7e9f0a3b

package clock

import (
	"sync"
	"time"
)

// Clock abstracts the current time so components that write timestamps
// can be tested against a fixed instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (c *systemClock) Now() time.Time {
	return time.Now().UTC()
}

// New returns a clock backed by the system time, in UTC.
func New() Clock {
	return &systemClock{}
}

// Mock is a settable clock for tests.
type Mock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewMock returns a mock clock pinned to a fixed instant.
func NewMock() *Mock {
	return &Mock{
		now: time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC),
	}
}

// SetNow sets the instant returned by Now.
func (m *Mock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Now returns the configured instant.
func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Layout is the timestamp format stored in both databases. Calibre and
// its companion store expect microsecond precision.
const Layout = "2006-01-02 15:04:05.000000"

// Format renders t in the database timestamp format, in UTC.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse reads a database timestamp. It accepts the canonical
// microsecond form as well as the second-precision form that older
// rows sometimes carry.
func Parse(s string) (time.Time, bool) {
	for _, layout := range []string{Layout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
