package bid

import (
	"context"
	"math"
	"time"

	"github.com/firefly-dispatch/firefly/core/intel"
	"github.com/firefly-dispatch/firefly/core/logger"
	"github.com/firefly-dispatch/firefly/core/model"
)

const (
	baseScore = 100.0

	// noInsightsAdvisory is returned when the strategic provider had nothing
	// to say about the area.
	noInsightsAdvisory = "No historical insights available for this location."

	defaultProviderTimeout = 2 * time.Second
)

var trafficPenalties = map[intel.TrafficLevel]float64{
	intel.TrafficLight:    0,
	intel.TrafficModerate: -10,
	intel.TrafficHeavy:    -20,
	intel.TrafficSevere:   -30,
	intel.TrafficUnknown:  -15,
}

var hazardPenalties = map[intel.HazardImpact]float64{
	intel.ImpactLow:    -5,
	intel.ImpactMedium: -10,
	intel.ImpactHigh:   -20,
}

// Calculator scores a candidate unit against an incident. Every intelligence
// collaborator is optional and time-bounded; a failing or slow provider
// degrades the score inputs, never the bid itself.
type Calculator struct {
	strategic       intel.StrategicProvider
	tactical        intel.TacticalProvider
	advisor         intel.Advisor
	providerTimeout time.Duration
	log             logger.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithStrategic sets the historical-insight provider.
func WithStrategic(p intel.StrategicProvider) Option {
	return func(c *Calculator) { c.strategic = p }
}

// WithTactical sets the traffic/ETA provider.
func WithTactical(p intel.TacticalProvider) Option {
	return func(c *Calculator) { c.tactical = p }
}

// WithAdvisor sets the advisory summarizer.
func WithAdvisor(a intel.Advisor) Option {
	return func(c *Calculator) { c.advisor = a }
}

// WithProviderTimeout bounds each provider call.
func WithProviderTimeout(d time.Duration) Option {
	return func(c *Calculator) {
		if d > 0 {
			c.providerTimeout = d
		}
	}
}

// NewCalculator creates a Calculator. A nil logger is replaced with the
// default for the component.
func NewCalculator(log logger.Logger, opts ...Option) *Calculator {
	c := &Calculator{providerTimeout: defaultProviderTimeout, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute produces a bid for the unit at unitLoc responding to the incident.
// Incidents without resolved coordinates yield a neutral basic bid so the
// unit still participates in the auction.
func (c *Calculator) Compute(ctx context.Context, inc model.Incident, unitID string, unitLoc model.Location, unitType model.UnitType) Bid {
	if !inc.Geocoded || inc.Location.IsZero() {
		c.log.Warnf("incident %s has no resolved location, returning basic bid", inc.ID)
		return Bid{
			IncidentID: inc.ID,
			UnitID:     unitID,
			Score:      50,
			Advisory:   "incident location unresolved",
			ReceivedAt: time.Now(),
		}
	}

	distanceKM := model.Haversine(unitLoc, inc.Location)

	insights, strategicOK := c.queryStrategic(ctx, inc)
	route, tacticalOK := c.queryTactical(ctx, unitLoc, inc.Location)
	advisory, advisoryOK := c.summarize(ctx, inc, insights)

	sub := SubScores{
		Distance:  math.Max(0, 100-10*distanceKM),
		ETA:       math.Max(0, 100-2*route.ETAMinutes),
		Traffic:   trafficPenalty(route.Traffic),
		Strategic: strategicBonus(insights),
		Hazard:    hazardPenalty(route.Hazards),
		TypeMatch: TypeMatchScore(unitType, inc.Type),
	}

	score := baseScore + sub.Distance + sub.ETA + sub.Traffic + sub.Strategic + sub.Hazard + sub.TypeMatch

	return Bid{
		IncidentID: inc.ID,
		UnitID:     unitID,
		Score:      round2(clamp(score)),
		Sub:        sub,
		ETAMinutes: route.ETAMinutes,
		DistanceKM: round2(distanceKM),
		Advisory:   advisory,
		Intelligence: IntelligenceUsed{
			Strategic: strategicOK && len(insights) > 0,
			Tactical:  tacticalOK,
			Advisory:  advisoryOK,
		},
		ReceivedAt: time.Now(),
	}
}

// ComputeBasic scores on distance and type affinity only. Used when no
// intelligence providers are configured.
func (c *Calculator) ComputeBasic(inc model.Incident, unitID string, unitLoc model.Location, unitType model.UnitType) Bid {
	if !inc.Geocoded || inc.Location.IsZero() {
		return Bid{IncidentID: inc.ID, UnitID: unitID, Score: 50, Advisory: "incident location unresolved", ReceivedAt: time.Now()}
	}
	distanceKM := model.Haversine(unitLoc, inc.Location)
	sub := SubScores{
		Distance:  math.Max(0, 100-10*distanceKM),
		TypeMatch: TypeMatchScore(unitType, inc.Type),
	}
	return Bid{
		IncidentID: inc.ID,
		UnitID:     unitID,
		Score:      round2(clamp(baseScore + sub.Distance + sub.TypeMatch)),
		Sub:        sub,
		DistanceKM: round2(distanceKM),
		ReceivedAt: time.Now(),
	}
}

func (c *Calculator) queryStrategic(ctx context.Context, inc model.Incident) ([]intel.Insight, bool) {
	if c.strategic == nil {
		return nil, false
	}
	qctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()
	insights, err := c.strategic.Insights(qctx, inc.Location, inc.Type)
	if err != nil {
		c.log.Warnf("strategic provider failed for incident %s: %v", inc.ID, err)
		return nil, false
	}
	return insights, true
}

func (c *Calculator) queryTactical(ctx context.Context, from, to model.Location) (intel.RouteInfo, bool) {
	if c.tactical == nil {
		return intel.DefaultRoute(), false
	}
	qctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()
	route, err := c.tactical.Route(qctx, from, to)
	if err != nil {
		c.log.Warnf("tactical provider failed: %v", err)
		return intel.DefaultRoute(), false
	}
	return route, true
}

func (c *Calculator) summarize(ctx context.Context, inc model.Incident, insights []intel.Insight) (string, bool) {
	if len(insights) == 0 {
		return noInsightsAdvisory, false
	}
	if c.advisor == nil {
		return noInsightsAdvisory, false
	}
	qctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()
	advisory, err := c.advisor.Summarize(qctx, inc, insights)
	if err != nil {
		c.log.Warnf("advisor failed for incident %s: %v", inc.ID, err)
		return "advisory unavailable", false
	}
	return advisory, true
}

func trafficPenalty(level intel.TrafficLevel) float64 {
	if p, ok := trafficPenalties[level]; ok {
		return p
	}
	return trafficPenalties[intel.TrafficUnknown]
}

// strategicBonus rewards preparation: up to 20 points for insight volume plus
// 5 per high-confidence insight.
func strategicBonus(insights []intel.Insight) float64 {
	if len(insights) == 0 {
		return 0
	}
	bonus := math.Min(20, float64(len(insights))*5)
	for _, in := range insights {
		if in.Confidence > 0.8 {
			bonus += 5
		}
	}
	return bonus
}

func hazardPenalty(hazards []intel.Hazard) float64 {
	var p float64
	for _, h := range hazards {
		if v, ok := hazardPenalties[h.Impact]; ok {
			p += v
		} else {
			p += hazardPenalties[intel.ImpactLow]
		}
	}
	return p
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
