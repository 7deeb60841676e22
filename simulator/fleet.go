package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/firefly-dispatch/firefly/core/bid"
	"github.com/firefly-dispatch/firefly/core/dispatch"
	"github.com/firefly-dispatch/firefly/core/logger"
	"github.com/firefly-dispatch/firefly/core/model"
	"github.com/firefly-dispatch/firefly/core/unitstatus"
	"github.com/firefly-dispatch/firefly/internal/eventbus"
)

// FleetConfig holds parameters for bulk fleet generation.
type FleetConfig struct {
	PoliceUnits int
	FireUnits   int
	EMSUnits    int
	Center      model.Location
	SpreadKM    float64
	Seed        int64
}

// Fleet is a set of simulated units sharing one set of buses.
type Fleet struct {
	units []*SimulatedUnit
}

// GenerateFleet creates units with ids police-01.., fire-01.., ems-01..,
// scattered around the center. The seed makes placement reproducible.
func GenerateFleet(
	cfg FleetConfig,
	calc *bid.Calculator,
	store unitstatus.Store,
	requests *eventbus.TypedBus[dispatch.BidRequest],
	responses *eventbus.TypedBus[dispatch.BidResponse],
	orders *eventbus.TypedBus[dispatch.DispatchOrder],
	log logger.Logger,
) *Fleet {
	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.SpreadKM <= 0 {
		cfg.SpreadKM = 10
	}
	f := &Fleet{}
	add := func(prefix string, typ model.UnitType, n int, crew int) {
		for i := 0; i < n; i++ {
			u := model.Unit{
				ID:       fmt.Sprintf("%s-%02d", prefix, i+1),
				Type:     typ,
				Location: scatter(rng, cfg.Center, cfg.SpreadKM),
				Status:   model.StatusAvailable,
				CrewSize: crew,
			}
			f.units = append(f.units, NewSimulatedUnit(u, calc, store, requests, responses, orders, log))
		}
	}
	add("police", model.UnitPolice, cfg.PoliceUnits, 2)
	add("fire", model.UnitFire, cfg.FireUnits, 4)
	add("ems", model.UnitEMS, cfg.EMSUnits, 2)
	return f
}

// Units returns the generated units.
func (f *Fleet) Units() []*SimulatedUnit { return f.units }

// Run starts every unit and blocks until ctx is done.
func (f *Fleet) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, u := range f.units {
		wg.Add(1)
		go func(u *SimulatedUnit) {
			defer wg.Done()
			u.Run(ctx)
		}(u)
	}
	wg.Wait()
}

// scatter offsets the center by up to spreadKM in a random direction. One
// degree of latitude is ~111 km; longitude shrinks with cos(lat).
func scatter(rng *rand.Rand, center model.Location, spreadKM float64) model.Location {
	dist := rng.Float64() * spreadKM
	angle := rng.Float64() * 2 * math.Pi
	dLat := dist * math.Cos(angle) / 111.0
	dLon := dist * math.Sin(angle) / (111.0 * math.Cos(center.Lat*math.Pi/180))
	return model.Location{Lat: center.Lat + dLat, Lon: center.Lon + dLon}
}
