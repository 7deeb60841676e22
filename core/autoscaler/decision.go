package autoscaler

// Action is the kind of scaling step the policy chose.
type Action string

const (
	NoAction         Action = "no_action"
	ScaleUp          Action = "scale_up"
	ScaleDown        Action = "scale_down"
	EmergencyScaleUp Action = "emergency_scale_up"
)

// Decision is the outcome of evaluating the policy against one observation.
type Decision struct {
	Action     Action `json:"action"`
	Target     int    `json:"target"`
	QueueDepth int    `json:"queue_depth"`
	Current    int    `json:"current"`
}

// Decide evaluates the water-mark policy. It is pure: no clock, no cooldown,
// no side effects. The emergency threshold is inclusive, the water marks are
// not. Targets are clamped to [MinReplicas, MaxReplicas], and a step that
// would not change the replica count degrades to NoAction.
func Decide(queueDepth, current int, cfg Config) Decision {
	d := Decision{Action: NoAction, Target: current, QueueDepth: queueDepth, Current: current}

	switch {
	case queueDepth >= cfg.EmergencyThreshold:
		d.Action = EmergencyScaleUp
		d.Target = clamp(current+3*cfg.ScaleUpStep, cfg.MinReplicas, cfg.MaxReplicas)
	case queueDepth > cfg.HighWaterMark:
		d.Action = ScaleUp
		d.Target = clamp(current+cfg.ScaleUpStep, cfg.MinReplicas, cfg.MaxReplicas)
	case queueDepth < cfg.LowWaterMark:
		d.Action = ScaleDown
		d.Target = clamp(current-cfg.ScaleDownStep, cfg.MinReplicas, cfg.MaxReplicas)
	}

	if d.Target == current {
		d.Action = NoAction
	}
	return d
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
