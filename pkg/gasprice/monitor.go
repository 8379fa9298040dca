package gasprice

import (
	"sync"
	"time"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

const (
	// HistoryCapacity bounds the sample history; oldest samples are evicted first
	HistoryCapacity = 1000
	// OptimalWindow is how many recent samples feed the optimal price average
	OptimalWindow = 100
)

// Trend classifies the short-term direction of the observed price
type Trend string

const (
	TrendIncreasing       Trend = "increasing"
	TrendDecreasing       Trend = "decreasing"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// Sample is a single observed cost value. Samples are immutable after insertion.
type Sample struct {
	Value      int64     `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
	Seq        uint64    `json:"seq"`
}

// Monitor keeps a bounded FIFO history of price samples and derives the optimal
// execution price and trend from it. All reads aggregate over immutable samples.
type Monitor struct {
	mu             sync.RWMutex
	samples        []Sample // ring buffer, capacity HistoryCapacity
	head           int      // index of the oldest sample
	size           int
	seq            uint64
	defaultOptimal int64
}

// NewMonitor creates a monitor. defaultOptimal is returned by OptimalPrice when
// no samples have been recorded yet.
func NewMonitor(defaultOptimal int64) *Monitor {
	return &Monitor{
		samples:        make([]Sample, HistoryCapacity),
		defaultOptimal: defaultOptimal,
	}
}

// RecordSample appends an observation. O(1); evicts the oldest sample at capacity.
func (m *Monitor) RecordSample(value int64) (Sample, error) {
	if value < 0 {
		return Sample{}, errdefs.Validation("price sample must not be negative, got %d", value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	sample := Sample{Value: value, ObservedAt: time.Now(), Seq: m.seq}
	if m.size < HistoryCapacity {
		m.samples[(m.head+m.size)%HistoryCapacity] = sample
		m.size++
	} else {
		m.samples[m.head] = sample
		m.head = (m.head + 1) % HistoryCapacity
	}
	return sample, nil
}

// OptimalPrice returns the mean of the most recent min(OptimalWindow, n) samples,
// or the configured default when the history is empty.
func (m *Monitor) OptimalPrice() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.size == 0 {
		return m.defaultOptimal
	}
	window := m.size
	if window > OptimalWindow {
		window = OptimalWindow
	}
	var sum int64
	for i := 0; i < window; i++ {
		idx := (m.head + m.size - 1 - i + HistoryCapacity) % HistoryCapacity
		sum += m.samples[idx].Value
	}
	return sum / int64(window)
}

// Trend compares the two most recent samples: a move of more than 10% in either
// direction is reported, anything else is stable.
func (m *Monitor) Trend() Trend {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.size < 2 {
		return TrendInsufficientData
	}
	latest := m.samples[(m.head+m.size-1)%HistoryCapacity].Value
	prior := m.samples[(m.head+m.size-2+HistoryCapacity)%HistoryCapacity].Value

	// latest > prior * 1.10 and latest < prior * 0.90, in integer math
	switch {
	case latest*10 > prior*11:
		return TrendIncreasing
	case latest*10 < prior*9:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// IsAcceptable reports whether current satisfies both the per-entry ceiling and
// the configured optimal target.
func (m *Monitor) IsAcceptable(current, ceiling, target int64) bool {
	return current <= ceiling && current <= target
}

// Latest returns the most recent sample, if any
func (m *Monitor) Latest() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.size == 0 {
		return Sample{}, false
	}
	return m.samples[(m.head+m.size-1)%HistoryCapacity], true
}

// Recent returns up to n recent samples, newest first
func (m *Monitor) Recent(n int) []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > m.size {
		n = m.size
	}
	out := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		idx := (m.head + m.size - 1 - i + HistoryCapacity) % HistoryCapacity
		out = append(out, m.samples[idx])
	}
	return out
}

// Size returns the number of retained samples
func (m *Monitor) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}
