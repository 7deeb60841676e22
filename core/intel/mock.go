package intel

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/firefly-dispatch/firefly/core/model"
)

// MockTactical simulates a traffic provider. ETA grows with distance at
// roughly two minutes per kilometer, inflated by a randomized congestion
// multiplier. Seeded so simulator runs are reproducible.
type MockTactical struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockTactical(seed int64) *MockTactical {
	return &MockTactical{rng: rand.New(rand.NewSource(seed))}
}

var mockTrafficLevels = []TrafficLevel{TrafficLight, TrafficModerate, TrafficHeavy, TrafficSevere}

var mockHazardKinds = []string{"construction", "accident", "road_closed", "weather"}

var mockImpacts = []HazardImpact{ImpactLow, ImpactMedium, ImpactHigh}

// Route implements TacticalProvider.
func (m *MockTactical) Route(_ context.Context, from, to model.Location) (RouteInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dist := model.Haversine(from, to)
	baseETA := dist * 2
	multiplier := 1.2 + m.rng.Float64()*1.3
	info := RouteInfo{
		ETAMinutes: math.Round(baseETA * multiplier),
		DistanceKM: math.Round(dist*100) / 100,
		Traffic:    mockTrafficLevels[m.rng.Intn(len(mockTrafficLevels))],
	}
	if m.rng.Float64() < 0.3 {
		kind := mockHazardKinds[m.rng.Intn(len(mockHazardKinds))]
		info.Hazards = append(info.Hazards, Hazard{
			Kind:        kind,
			Description: "reported " + kind,
			Impact:      mockImpacts[m.rng.Intn(len(mockImpacts))],
		})
	}
	return info, nil
}

// MockStrategic simulates a historical-insight provider: zero to three
// insights per query with randomized confidence. Seeded for reproducibility.
type MockStrategic struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockStrategic(seed int64) *MockStrategic {
	return &MockStrategic{rng: rand.New(rand.NewSource(seed))}
}

var mockInsightTexts = []string{
	"repeat incidents reported in this area over the past quarter",
	"response times in this sector trend above the city average",
	"nearby hydrant access was flagged during the last inspection",
	"area sees elevated call volume during evening hours",
}

// Insights implements StrategicProvider.
func (m *MockStrategic) Insights(_ context.Context, _ model.Location, _ model.EmergencyType) ([]Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.rng.Intn(4)
	out := make([]Insight, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Insight{
			Text:       mockInsightTexts[m.rng.Intn(len(mockInsightTexts))],
			Confidence: 0.5 + m.rng.Float64()*0.5,
		})
	}
	return out, nil
}

// StaticStrategic returns a fixed set of insights regardless of location.
type StaticStrategic struct {
	Results []Insight
	Err     error
}

func (s StaticStrategic) Insights(context.Context, model.Location, model.EmergencyType) ([]Insight, error) {
	return s.Results, s.Err
}

// StaticTactical returns a fixed route estimate. Useful in tests that need
// deterministic sub-scores.
type StaticTactical struct {
	Info RouteInfo
	Err  error
}

func (s StaticTactical) Route(context.Context, model.Location, model.Location) (RouteInfo, error) {
	return s.Info, s.Err
}

// NopAdvisor declines to summarize.
type NopAdvisor struct{}

func (NopAdvisor) Summarize(context.Context, model.Incident, []Insight) (string, error) {
	return "", ErrProviderUnavailable
}
