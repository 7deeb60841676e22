package metrics

import (
	coremetrics "github.com/firefly-dispatch/firefly/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records dispatch and scaling events in Prometheus metrics.
type PromSink struct {
	dispatches *prometheus.CounterVec
	scalings   *prometheus.CounterVec
	collection prometheus.Histogram
	queueDepth prometheus.Gauge
	replicas   prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_events_total",
		Help: "Total number of terminal dispatch outcomes",
	}, []string{"outcome"})
	scalings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scaling_actions_total",
		Help: "Total number of autoscaler actions, executed or delayed",
	}, []string{"action", "delayed"})
	collection := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bid_collection_seconds",
		Help:    "Length of the bid collection window per incident",
		Buckets: prometheus.DefBuckets,
	})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "incident_queue_depth",
		Help: "Number of active incidents awaiting response",
	})
	replicas := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_replicas",
		Help: "Current dispatch worker replica count",
	})

	if err := reg.Register(dispatches); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			dispatches = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(scalings); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			scalings = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(collection); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			collection = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(queueDepth); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			queueDepth = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(replicas); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			replicas = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		dispatches: dispatches,
		scalings:   scalings,
		collection: collection,
		queueDepth: queueDepth,
		replicas:   replicas,
	}, nil
}

// RecordDispatch counts the terminal outcome and observes the window length.
func (s *PromSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	s.dispatches.WithLabelValues(ev.Outcome).Inc()
	if ev.Window > 0 {
		s.collection.Observe(ev.Window.Seconds())
	}
	return nil
}

// RecordScaling counts the scaling action.
func (s *PromSink) RecordScaling(ev coremetrics.ScalingEvent) error {
	delayed := "false"
	if ev.Delayed {
		delayed = "true"
	}
	s.scalings.WithLabelValues(ev.Action, delayed).Inc()
	return nil
}

// RecordQueueDepth sets the backlog gauge.
func (s *PromSink) RecordQueueDepth(depth int) error {
	s.queueDepth.Set(float64(depth))
	return nil
}

// RecordReplicas sets the replica gauge.
func (s *PromSink) RecordReplicas(replicas int) error {
	s.replicas.Set(float64(replicas))
	return nil
}
