package metrics

import coremetrics "github.com/firefly-dispatch/firefly/core/metrics"

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatch forwards the event to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatch(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordScaling forwards the event to all sinks.
func (m *MultiSink) RecordScaling(ev coremetrics.ScalingEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordScaling(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordQueueDepth forwards the gauge to sinks that support it.
func (m *MultiSink) RecordQueueDepth(depth int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.QueueDepthRecorder); ok {
			if err := rec.RecordQueueDepth(depth); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordReplicas forwards the gauge to sinks that support it.
func (m *MultiSink) RecordReplicas(replicas int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ReplicaRecorder); ok {
			if err := rec.RecordReplicas(replicas); err != nil {
				return err
			}
		}
	}
	return nil
}
