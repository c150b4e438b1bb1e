// Package metrics defines the minimal backend interface the load engine
// emits to. The engine depends only on Backend; concrete backends (Datadog)
// live in subpackages and buffer/submit in their own way.
package metrics

import "time"

// Backend receives load-run measurements. Implementations must tolerate being
// called from the single pipeline goroutine throughout a run and must flush
// any buffered state on Close.
type Backend interface {
	// IncCounter adds delta to a named counter. Tags are "key:value" strings.
	IncCounter(name string, delta float64, tags ...string)

	// ObserveDuration records one duration sample for a named distribution.
	ObserveDuration(name string, d time.Duration, tags ...string)

	// Flush submits buffered measurements now.
	Flush() error

	// Close flushes one final time and releases backend resources.
	Close() error
}

// Noop is the default backend: it discards everything.
type Noop struct{}

func (Noop) IncCounter(string, float64, ...string)             {}
func (Noop) ObserveDuration(string, time.Duration, ...string)  {}
func (Noop) Flush() error                                      { return nil }
func (Noop) Close() error                                      { return nil }
