package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/firefly-dispatch/firefly/core/metrics"
)

func TestPromSink_RecordDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	ev := coremetrics.DispatchEvent{
		IncidentID:     "inc-1",
		UnitID:         "fire-01",
		Outcome:        "dispatched",
		BidsConsidered: 3,
		Window:         2200 * time.Millisecond,
		Time:           time.Now(),
	}
	if err := sink.RecordDispatch(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if err := sink.RecordDispatch(coremetrics.DispatchEvent{Outcome: "dispatch_failed"}); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP dispatch_events_total Total number of terminal dispatch outcomes
# TYPE dispatch_events_total counter
dispatch_events_total{outcome="dispatch_failed"} 1
dispatch_events_total{outcome="dispatched"} 1
`
	if err := testutil.CollectAndCompare(sink.dispatches, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if c := testutil.CollectAndCount(sink.collection); c == 0 {
		t.Errorf("collection window not observed")
	}
}

func TestPromSink_RecordScalingAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	if err := sink.RecordScaling(coremetrics.ScalingEvent{Action: "scale_up", From: 4, To: 6}); err != nil {
		t.Fatalf("record scaling: %v", err)
	}
	if err := sink.RecordScaling(coremetrics.ScalingEvent{Action: "scale_up", Delayed: true}); err != nil {
		t.Fatalf("record scaling: %v", err)
	}
	if err := sink.RecordQueueDepth(12); err != nil {
		t.Fatalf("record queue depth: %v", err)
	}
	if err := sink.RecordReplicas(6); err != nil {
		t.Fatalf("record replicas: %v", err)
	}

	if v := testutil.ToFloat64(sink.scalings.WithLabelValues("scale_up", "false")); v != 1 {
		t.Errorf("executed counter = %f", v)
	}
	if v := testutil.ToFloat64(sink.scalings.WithLabelValues("scale_up", "true")); v != 1 {
		t.Errorf("delayed counter = %f", v)
	}
	if v := testutil.ToFloat64(sink.queueDepth); v != 12 {
		t.Errorf("queue depth gauge = %f", v)
	}
	if v := testutil.ToFloat64(sink.replicas); v != 6 {
		t.Errorf("replica gauge = %f", v)
	}
}

func TestPromSink_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("second registration must reuse collectors: %v", err)
	}
}
