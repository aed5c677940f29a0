package main

// heapMonitor is example wiring for spec.md §6's external heap-pressure
// monitor — NOT part of the core contract, which only ever consumes
// OnHeapAboveThreshold(). It samples runtime.MemStats against a
// threshold derived from the host's total memory, in the style of
// core/system_health_logging.go's runtime.ReadMemStats snapshot, using
// github.com/pbnjay/memory for the total-memory figure instead of a
// magic constant.

import (
	"runtime"
	"time"

	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"
)

// heapMonitor polls runtime.MemStats on an interval and invokes notify
// whenever heap allocation exceeds fraction of total system memory.
type heapMonitor struct {
	fraction float64
	interval time.Duration
	notify   func() error
	log      *logrus.Logger

	stop chan struct{}
}

func newHeapMonitor(fraction float64, interval time.Duration, notify func() error, log *logrus.Logger) *heapMonitor {
	return &heapMonitor{fraction: fraction, interval: interval, notify: notify, log: log, stop: make(chan struct{})}
}

func (m *heapMonitor) run() {
	total := memory.TotalMemory()
	threshold := uint64(float64(total) * m.fraction)
	m.log.WithField("threshold_bytes", threshold).Info("heap monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			if stats.Alloc >= threshold {
				m.log.WithField("alloc_bytes", stats.Alloc).Warn("heap above threshold")
				if err := m.notify(); err != nil {
					m.log.WithError(err).Error("pressure notification failed")
				}
			}
		case <-m.stop:
			return
		}
	}
}

func (m *heapMonitor) Close() {
	close(m.stop)
}
