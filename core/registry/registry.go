package registry

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/firefly-dispatch/firefly/core/model"
)

// ErrIndexSkipped signals that an incident was stored without a geo-index
// entry because it carried no usable coordinates. The incident is still
// registered and counted; it just cannot be found by QueryNearby.
var ErrIndexSkipped = errors.New("incident stored without geo index")

// Nearby is a registry entry annotated with its distance from a query point.
type Nearby struct {
	Incident   model.Incident `json:"incident"`
	DistanceKM float64        `json:"distance_km"`
}

// Registry stores active incidents and answers radius queries against them.
// Implementations must tolerate concurrent Register, Remove and QueryNearby
// calls. QueryNearby never fails: on any provider error it returns an empty
// slice.
type Registry interface {
	Register(ctx context.Context, inc model.Incident) error
	Remove(ctx context.Context, id string) error
	QueryNearby(ctx context.Context, loc model.Location, radiusKM float64, limit int) []Nearby
	ActiveCount(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// MemoryRegistry is an in-process Registry used in tests and single-node
// deployments. Radius queries are a linear haversine scan.
type MemoryRegistry struct {
	mu   sync.RWMutex
	data map[string]model.Incident
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{data: map[string]model.Incident{}}
}

// Register stores the incident. Idempotent on id. Incidents without
// coordinates are stored in degraded mode and flagged with ErrIndexSkipped.
func (r *MemoryRegistry) Register(_ context.Context, inc model.Incident) error {
	r.mu.Lock()
	r.data[inc.ID] = inc
	r.mu.Unlock()
	if !inc.Geocoded || inc.Location.IsZero() {
		return ErrIndexSkipped
	}
	return nil
}

// Remove deletes the incident. Removing an absent id is not an error.
func (r *MemoryRegistry) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
	return nil
}

// QueryNearby returns geocoded incidents within radiusKM of loc, closest
// first, at most limit entries.
func (r *MemoryRegistry) QueryNearby(_ context.Context, loc model.Location, radiusKM float64, limit int) []Nearby {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []Nearby
	for _, inc := range r.data {
		if !inc.Geocoded || inc.Location.IsZero() {
			continue
		}
		d := model.Haversine(loc, inc.Location)
		if d > radiusKM {
			continue
		}
		res = append(res, Nearby{Incident: inc, DistanceKM: round2(d)})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].DistanceKM < res[j].DistanceKM })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

// ActiveCount returns the number of registered incidents, geocoded or not.
func (r *MemoryRegistry) ActiveCount(context.Context) (int, error) {
	r.mu.RLock()
	n := len(r.data)
	r.mu.RUnlock()
	return n, nil
}

func (r *MemoryRegistry) Ping(context.Context) error { return nil }

func round2(f float64) float64 { return math.Round(f*100) / 100 }
