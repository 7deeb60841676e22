package autoscaler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/firefly-dispatch/firefly/core/events"
	"github.com/firefly-dispatch/firefly/core/logger"
	"github.com/firefly-dispatch/firefly/core/metrics"
	"github.com/firefly-dispatch/firefly/internal/eventbus"
)

const historyCap = 100

// QueueDepthFunc reports the current incident backlog.
type QueueDepthFunc func(ctx context.Context) (int, error)

// Record is one evaluated observation kept in the bounded history.
type Record struct {
	Decision Decision  `json:"decision"`
	Executed bool      `json:"executed"`
	Delayed  bool      `json:"delayed"`
	Err      string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Report summarizes the retained history for operators.
type Report struct {
	Observations   int     `json:"observations"`
	MeanQueueDepth float64 `json:"mean_queue_depth"`
	ScaleUps       int     `json:"scale_ups"`
	ScaleDowns     int     `json:"scale_downs"`
	Emergencies    int     `json:"emergencies"`
	Delayed        int     `json:"delayed"`
	Failures       int     `json:"failures"`
}

// Autoscaler keeps the worker fleet sized to the incident backlog. The
// policy itself lives in Decide; this type adds the clock, the cooldown,
// execution against the FleetManager and failure tracking.
type Autoscaler struct {
	cfg   Config
	depth QueueDepthFunc
	fleet FleetManager
	bus   eventbus.EventBus
	sink  metrics.Sink
	log   logger.Logger

	mu                  sync.Mutex
	lastScale           time.Time
	consecutiveFailures int
	history             []Record

	now func() time.Time
}

// New creates an Autoscaler. Zero config fields get defaults; an invalid
// policy is rejected. Scaling outcomes are published on bus as events.Scaled,
// events.ScaleDelayed and events.HealthChecked; a nil bus gets a private one.
func New(cfg Config, depth QueueDepthFunc, fleet FleetManager, bus eventbus.EventBus, sink metrics.Sink, log logger.Logger) (*Autoscaler, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("autoscaler config: %w", err)
	}
	if bus == nil {
		bus = eventbus.New()
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Autoscaler{
		cfg:   cfg,
		depth: depth,
		fleet: fleet,
		bus:   bus,
		sink:  sink,
		log:   log,
		now:   time.Now,
	}, nil
}

// Events exposes the bus carrying the scaling and health events.
func (a *Autoscaler) Events() eventbus.EventBus { return a.bus }

// Run ticks until ctx is cancelled.
func (a *Autoscaler) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.CheckInterval)
	defer ticker.Stop()
	a.log.Infof("autoscaler started, interval %s, marks %d/%d, emergency %d",
		a.cfg.CheckInterval, a.cfg.LowWaterMark, a.cfg.HighWaterMark, a.cfg.EmergencyThreshold)
	for {
		select {
		case <-ctx.Done():
			a.log.Infof("autoscaler stopped")
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick runs one observe-decide-execute cycle. Exported so tests and manual
// triggers can drive the loop without the ticker.
func (a *Autoscaler) Tick(ctx context.Context) Record {
	rec := Record{Time: a.now()}

	queueDepth, err := a.depth(ctx)
	if err != nil {
		a.noteFailure(fmt.Errorf("queue depth: %w", err))
		rec.Err = err.Error()
		a.remember(rec)
		return rec
	}
	if g, ok := a.sink.(metrics.QueueDepthRecorder); ok {
		if err := g.RecordQueueDepth(queueDepth); err != nil {
			a.log.Debugf("queue depth gauge rejected: %v", err)
		}
	}

	current, err := a.fleet.Replicas(ctx)
	if err != nil {
		a.noteFailure(fmt.Errorf("replica count: %w", err))
		rec.Err = err.Error()
		a.remember(rec)
		return rec
	}
	if g, ok := a.sink.(metrics.ReplicaRecorder); ok {
		if err := g.RecordReplicas(current); err != nil {
			a.log.Debugf("replica gauge rejected: %v", err)
		}
	}

	rec.Decision = Decide(queueDepth, current, a.cfg)
	if rec.Decision.Action == NoAction {
		a.noteSuccess()
		a.remember(rec)
		return rec
	}

	if remaining, cooling := a.cooling(); cooling {
		rec.Delayed = true
		a.log.Infof("%s to %d deferred, cooldown for %s", rec.Decision.Action, rec.Decision.Target, remaining.Round(time.Second))
		a.bus.Publish(events.ScaleDelayed{Action: string(rec.Decision.Action), Remaining: remaining, Time: rec.Time})
		a.recordScaling(rec.Decision, current, true)
		a.noteSuccess()
		a.remember(rec)
		return rec
	}

	if err := a.fleet.Scale(ctx, rec.Decision.Target); err != nil {
		a.noteFailure(fmt.Errorf("scale to %d: %w", rec.Decision.Target, err))
		rec.Err = err.Error()
		a.remember(rec)
		return rec
	}

	a.mu.Lock()
	a.lastScale = rec.Time
	a.mu.Unlock()

	rec.Executed = true
	a.log.Infof("%s: %d -> %d replicas (queue depth %d)", rec.Decision.Action, current, rec.Decision.Target, queueDepth)
	a.bus.Publish(events.Scaled{
		Action:     string(rec.Decision.Action),
		From:       current,
		To:         rec.Decision.Target,
		QueueDepth: queueDepth,
		Time:       rec.Time,
	})
	a.recordScaling(rec.Decision, current, false)
	a.noteSuccess()
	a.remember(rec)
	return rec
}

// cooling reports whether the cooldown window since the last executed scale
// is still open.
func (a *Autoscaler) cooling() (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastScale.IsZero() {
		return 0, false
	}
	elapsed := a.now().Sub(a.lastScale)
	if elapsed >= a.cfg.Cooldown {
		return 0, false
	}
	return a.cfg.Cooldown - elapsed, true
}

// Healthy reports whether the loop and its dependencies are usable. The loop
// goes unhealthy after UnhealthyFailures consecutive errors and recovers on
// the next clean tick.
func (a *Autoscaler) Healthy(ctx context.Context) bool {
	a.mu.Lock()
	failures := a.consecutiveFailures
	a.mu.Unlock()
	if failures > a.cfg.UnhealthyFailures {
		return false
	}
	queueDepth, err := a.depth(ctx)
	if err != nil {
		return false
	}
	replicas, err := a.fleet.Replicas(ctx)
	if err != nil {
		return false
	}
	if err := a.fleet.Ping(ctx); err != nil {
		return false
	}
	a.bus.Publish(events.HealthChecked{
		Status:     "healthy",
		QueueDepth: queueDepth,
		Replicas:   replicas,
		Time:       a.now(),
	})
	return true
}

// History returns a copy of the retained records, oldest first.
func (a *Autoscaler) History() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, len(a.history))
	copy(out, a.history)
	return out
}

// Summary aggregates the retained history.
func (a *Autoscaler) Summary() Report {
	hist := a.History()
	rep := Report{Observations: len(hist)}
	depths := make([]float64, 0, len(hist))
	for _, r := range hist {
		depths = append(depths, float64(r.Decision.QueueDepth))
		if r.Err != "" {
			rep.Failures++
		}
		if r.Delayed {
			rep.Delayed++
		}
		if !r.Executed {
			continue
		}
		switch r.Decision.Action {
		case ScaleUp:
			rep.ScaleUps++
		case ScaleDown:
			rep.ScaleDowns++
		case EmergencyScaleUp:
			rep.Emergencies++
		}
	}
	if len(depths) > 0 {
		rep.MeanQueueDepth = stat.Mean(depths, nil)
	}
	return rep
}

func (a *Autoscaler) recordScaling(d Decision, from int, delayed bool) {
	if err := a.sink.RecordScaling(metrics.ScalingEvent{
		Action:     string(d.Action),
		From:       from,
		To:         d.Target,
		QueueDepth: d.QueueDepth,
		Delayed:    delayed,
		Time:       a.now(),
	}); err != nil {
		a.log.Warnf("metrics sink rejected scaling event: %v", err)
	}
}

func (a *Autoscaler) noteFailure(err error) {
	a.mu.Lock()
	a.consecutiveFailures++
	n := a.consecutiveFailures
	a.mu.Unlock()
	a.log.Errorf("autoscaler tick failed (%d consecutive): %v", n, err)
}

func (a *Autoscaler) noteSuccess() {
	a.mu.Lock()
	a.consecutiveFailures = 0
	a.mu.Unlock()
}

func (a *Autoscaler) remember(rec Record) {
	a.mu.Lock()
	a.history = append(a.history, rec)
	if len(a.history) > historyCap {
		a.history = a.history[len(a.history)-historyCap:]
	}
	a.mu.Unlock()
}
