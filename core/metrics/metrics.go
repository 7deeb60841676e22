package metrics

import "time"

// DispatchEvent represents the terminal outcome of one incident for
// observability purposes.
type DispatchEvent struct {
	IncidentID     string
	UnitID         string
	Outcome        string // "dispatched" or "dispatch_failed"
	Reason         string
	BidsConsidered int
	Window         time.Duration
	Time           time.Time
}

// ScalingEvent records an executed or delayed scaling action.
type ScalingEvent struct {
	Action     string
	From       int
	To         int
	QueueDepth int
	Delayed    bool
	Time       time.Time
}

// Sink records dispatch and scaling events.
type Sink interface {
	RecordDispatch(ev DispatchEvent) error
	RecordScaling(ev ScalingEvent) error
}

// QueueDepthRecorder is implemented by sinks that track the incident backlog
// as a gauge.
type QueueDepthRecorder interface {
	RecordQueueDepth(depth int) error
}

// ReplicaRecorder is implemented by sinks that track the worker replica count.
type ReplicaRecorder interface {
	RecordReplicas(replicas int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchEvent) error { return nil }
func (NopSink) RecordScaling(ScalingEvent) error   { return nil }
func (NopSink) RecordQueueDepth(int) error         { return nil }
func (NopSink) RecordReplicas(int) error           { return nil }

// Config selects and configures the metric sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
