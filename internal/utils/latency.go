package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker stores recent duration samples and computes percentiles.
// The tactical service uses it to report p95 picture-generation latency.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{maxSize: maxSize}
}

// Observe records a new duration, dropping the oldest sample when full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples = append(l.samples, d)
	if len(l.samples) > l.maxSize {
		copy(l.samples[0:], l.samples[1:])
		l.samples = l.samples[:l.maxSize]
	}
}

// Percentile returns the percentile (0-100) duration. Returns zero if no
// samples have been observed.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.samples)
	if n == 0 {
		return 0
	}

	sorted := append([]time.Duration(nil), l.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	index := int((p / 100.0) * float64(n-1))
	if index < 0 {
		index = 0
	}
	if index >= n {
		index = n - 1
	}
	return sorted[index]
}

// Count returns the number of samples recorded.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}
