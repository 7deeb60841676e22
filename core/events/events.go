// Package events defines the structured events published on the internal bus
// for observability sinks and dashboards.
package events

import "time"

// Dispatched is published when an incident is assigned to a unit.
type Dispatched struct {
	IncidentID     string    `json:"incident_id"`
	UnitID         string    `json:"unit_id"`
	Reason         string    `json:"reason"`
	BidsConsidered int       `json:"bids_considered"`
	Time           time.Time `json:"timestamp"`
}

// DispatchFailed is published exactly once per incident that could not be
// assigned to any unit. Terminal.
type DispatchFailed struct {
	IncidentID string    `json:"incident_id"`
	Reason     string    `json:"reason"`
	Time       time.Time `json:"timestamp"`
}

// Scaled is published after the autoscaler successfully changed the replica
// count.
type Scaled struct {
	Action     string    `json:"action"`
	From       int       `json:"from_replicas"`
	To         int       `json:"to_replicas"`
	QueueDepth int       `json:"queue_depth"`
	Time       time.Time `json:"timestamp"`
}

// ScaleDelayed is published when a scaling decision was suppressed by the
// cooldown window.
type ScaleDelayed struct {
	Action    string        `json:"action"`
	Remaining time.Duration `json:"remaining"`
	Time      time.Time     `json:"timestamp"`
}

// HealthChecked reports the autoscaler's view of its dependencies.
type HealthChecked struct {
	Status     string    `json:"status"`
	QueueDepth int       `json:"queue_depth"`
	Replicas   int       `json:"replicas"`
	Time       time.Time `json:"timestamp"`
}
