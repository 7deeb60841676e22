package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/firefly-dispatch/firefly/core/bid"
	"github.com/firefly-dispatch/firefly/core/dispatch"
	"github.com/firefly-dispatch/firefly/core/intel"
	"github.com/firefly-dispatch/firefly/core/model"
	"github.com/firefly-dispatch/firefly/core/registry"
	"github.com/firefly-dispatch/firefly/core/unitstatus"
	"github.com/firefly-dispatch/firefly/infra/logger"
	"github.com/firefly-dispatch/firefly/internal/eventbus"
)

func TestGenerateFleet_Composition(t *testing.T) {
	store := unitstatus.NewMemoryStore()
	calc := bid.NewCalculator(logger.NopLogger{})
	center := model.Location{Lat: 40.7128, Lon: -74.0060}

	f := GenerateFleet(FleetConfig{
		PoliceUnits: 2, FireUnits: 3, EMSUnits: 1,
		Center: center, SpreadKM: 5, Seed: 7,
	}, calc, store,
		eventbus.NewTyped[dispatch.BidRequest](),
		eventbus.NewTyped[dispatch.BidResponse](),
		eventbus.NewTyped[dispatch.DispatchOrder](),
		logger.NopLogger{})

	if len(f.Units()) != 6 {
		t.Fatalf("expected 6 units got %d", len(f.Units()))
	}
	if fire := store.List(unitstatus.Filter{Type: model.UnitFire}); len(fire) != 3 {
		t.Fatalf("expected 3 fire units got %d", len(fire))
	}
	for _, u := range store.List(unitstatus.Filter{}) {
		if u.Status != model.StatusAvailable {
			t.Fatalf("%s not available", u.ID)
		}
		if d := model.Haversine(u.Location, center); d > 6 {
			t.Fatalf("%s placed %f km out, spread is 5", u.ID, d)
		}
	}
}

// Full auction round trip: solicit over the buses, win, order, roll out.
func TestFleet_AnswersAuctionAndAcceptsOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := unitstatus.NewMemoryStore()
	calc := bid.NewCalculator(logger.NopLogger{},
		bid.WithTactical(intel.StaticTactical{Info: intel.RouteInfo{ETAMinutes: 8, Traffic: intel.TrafficLight}}),
	)
	center := model.Location{Lat: 40.7128, Lon: -74.0060}

	requests := eventbus.NewTyped[dispatch.BidRequest]()
	responses := eventbus.NewTyped[dispatch.BidResponse]()
	orders := eventbus.NewTyped[dispatch.DispatchOrder]()

	f := GenerateFleet(FleetConfig{
		FireUnits: 3, PoliceUnits: 1, EMSUnits: 1,
		Center: center, SpreadKM: 5, Seed: 42,
	}, calc, store, requests, responses, orders, logger.NopLogger{})
	go f.Run(ctx)
	// Give every unit a beat to subscribe before the auction opens.
	time.Sleep(50 * time.Millisecond)

	co := dispatch.NewCoordinator(
		dispatch.Config{BidDeadline: 200 * time.Millisecond, CollectBuffer: 100 * time.Millisecond},
		store, registry.NewMemoryRegistry(),
		dispatch.NewBusSolicitor(requests, responses),
		&dispatch.BusOrderPublisher{Orders: orders},
		nil, nil, logger.NopLogger{})

	d, err := co.Handle(ctx, model.Incident{
		ID: "inc-1", Type: model.EmergencyFire, Location: center, Geocoded: true,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if d.State != dispatch.StateDispatched || d.Fallback {
		t.Fatalf("expected auction win, got %+v", d)
	}
	if d.BidsConsidered < 3 {
		t.Fatalf("expected at least the fire units to bid, got %d", d.BidsConsidered)
	}

	// The winning unit accepts the order and rolls out.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if u, ok := store.Get(d.UnitID); ok && u.Status == model.StatusEnRoute {
			break
		}
		if time.Now().After(deadline) {
			u, _ := store.Get(d.UnitID)
			t.Fatalf("winner never rolled out, status %s", u.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSimulatedUnit_IgnoresRequestsWhileBusy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := unitstatus.NewMemoryStore()
	calc := bid.NewCalculator(logger.NopLogger{})
	requests := eventbus.NewTyped[dispatch.BidRequest]()
	responses := eventbus.NewTyped[dispatch.BidResponse]()
	orders := eventbus.NewTyped[dispatch.DispatchOrder]()

	u := NewSimulatedUnit(model.Unit{
		ID: "fire-01", Type: model.UnitFire,
		Location: model.Location{Lat: 40.7, Lon: -74.0},
		Status:   model.StatusAvailable,
	}, calc, store, requests, responses, orders, logger.NopLogger{})
	go u.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	if err := store.Transition("fire-01", model.StatusAvailable, model.StatusDispatched); err != nil {
		t.Fatalf("claim: %v", err)
	}

	sub := responses.Subscribe()
	requests.Publish(dispatch.BidRequest{IncidentID: "inc-1", EmergencyType: model.EmergencyFire, Location: model.Location{Lat: 40.7, Lon: -74.0}})

	select {
	case b := <-sub:
		t.Fatalf("busy unit must not bid, got %+v", b)
	case <-time.After(100 * time.Millisecond):
	}
}
