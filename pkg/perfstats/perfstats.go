// Package perfstats holds cheap counters for measuring how long things take.
package perfstats

import (
	"sync/atomic"
	"time"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
	Max     time.Duration
}

func (a *TimeAccumulator) Reset() {
	*a = TimeAccumulator{}
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
	a.Max = max(a.Max, v)
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// MovingAverage is an exponential moving average of nanosecond samples, which can be
// updated from any goroutine without a lock.
type MovingAverage struct {
	v atomic.Int64
}

// Update blends value into the average, with a weight of 1/64.
// The first sample is taken as-is.
// We don't bother about strict correctness here, with CompareAndSwap,
// because this is just sampled stats, and it's OK to miss one or two samples.
func (m *MovingAverage) Update(value time.Duration) {
	v := int64(value)
	if old := m.v.Load(); old == 0 {
		m.v.Store(v)
	} else {
		m.v.Store((old*63 + v) >> 6)
	}
}

func (m *MovingAverage) Get() time.Duration {
	return time.Duration(m.v.Load())
}
