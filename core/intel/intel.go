package intel

import (
	"context"
	"errors"

	"github.com/firefly-dispatch/firefly/core/model"
)

// ErrProviderUnavailable wraps failures from intelligence providers. Callers
// treat it as non-fatal and fall back to defaults.
var ErrProviderUnavailable = errors.New("intelligence provider unavailable")

// TrafficLevel categorizes congestion on a route.
type TrafficLevel string

const (
	TrafficLight    TrafficLevel = "light"
	TrafficModerate TrafficLevel = "moderate"
	TrafficHeavy    TrafficLevel = "heavy"
	TrafficSevere   TrafficLevel = "severe"
	TrafficUnknown  TrafficLevel = "unknown"
)

// HazardImpact grades how much a route hazard slows a response.
type HazardImpact string

const (
	ImpactLow    HazardImpact = "low"
	ImpactMedium HazardImpact = "medium"
	ImpactHigh   HazardImpact = "high"
)

// Insight is a historical observation about an area, with the analysis
// confidence attached by the provider.
type Insight struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Hazard is a route obstruction reported by the tactical provider.
type Hazard struct {
	Kind        string       `json:"type"`
	Description string       `json:"description"`
	Impact      HazardImpact `json:"impact"`
}

// RouteInfo is the tactical picture for a unit-to-incident route.
type RouteInfo struct {
	ETAMinutes float64      `json:"eta_minutes"`
	DistanceKM float64      `json:"distance_km"`
	Traffic    TrafficLevel `json:"traffic_level"`
	Hazards    []Hazard     `json:"hazards"`
}

// DefaultRoute is the estimate used when the tactical provider is down.
func DefaultRoute() RouteInfo {
	return RouteInfo{ETAMinutes: 15, Traffic: TrafficUnknown}
}

// StrategicProvider surfaces historical insights near a location, filtered by
// emergency type.
type StrategicProvider interface {
	Insights(ctx context.Context, loc model.Location, emergency model.EmergencyType) ([]Insight, error)
}

// TacticalProvider estimates travel between two points: ETA, congestion and
// hazards along the way.
type TacticalProvider interface {
	Route(ctx context.Context, from, to model.Location) (RouteInfo, error)
}

// Advisor produces a short natural-language summary of the gathered
// intelligence for the responding crew. Optional; implementations may be
// backed by an LLM.
type Advisor interface {
	Summarize(ctx context.Context, inc model.Incident, insights []Insight) (string, error)
}
