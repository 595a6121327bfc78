package metrics

import (
	"errors"

	coremetrics "github.com/mgrande/ladevakt/core/metrics"
)

// MultiSink fans a cycle event out to several sinks. Every sink sees the
// event even when an earlier one fails.
type MultiSink struct {
	sinks []coremetrics.Sink
}

// NewMultiSink combines the given sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// RecordCycle implements coremetrics.Sink.
func (m *MultiSink) RecordCycle(ev coremetrics.CycleEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordCycle(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
