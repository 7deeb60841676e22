package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firefly-dispatch/firefly/core/events"
	"github.com/firefly-dispatch/firefly/core/model"
	"github.com/firefly-dispatch/firefly/core/registry"
	"github.com/firefly-dispatch/firefly/core/unitstatus"
	"github.com/firefly-dispatch/firefly/infra/logger"
	"github.com/firefly-dispatch/firefly/internal/eventbus"
)

// stubSolicitor returns canned bids without a transport.
type stubSolicitor struct {
	bids []BidResponse
	err  error
}

func (s stubSolicitor) Solicit(context.Context, BidRequest, time.Duration) ([]BidResponse, error) {
	return s.bids, s.err
}
func (s stubSolicitor) Close() error { return nil }

// captureOrders records published orders and optionally fails specific units.
type captureOrders struct {
	orders   []DispatchOrder
	failUnit string
}

func (c *captureOrders) PublishOrder(_ context.Context, o DispatchOrder) error {
	if c.failUnit != "" && o.UnitID == c.failUnit {
		return errors.New("transport down")
	}
	c.orders = append(c.orders, o)
	return nil
}

func testCoordinator(t *testing.T, units *unitstatus.MemoryStore, sol BidSolicitor, orders OrderPublisher) *Coordinator {
	t.Helper()
	cfg := Config{BidDeadline: 10 * time.Millisecond, CollectBuffer: 5 * time.Millisecond}
	return NewCoordinator(cfg, units, registry.NewMemoryRegistry(), sol, orders, nil, nil, logger.NopLogger{})
}

func availableUnit(id string, typ model.UnitType, loc model.Location) model.Unit {
	return model.Unit{ID: id, Type: typ, Location: loc, Status: model.StatusAvailable}
}

func TestHandle_HighestBidWins(t *testing.T) {
	units := unitstatus.NewMemoryStore()
	units.Put(availableUnit("fire-01", model.UnitFire, model.Location{Lat: 40.71, Lon: -74.0}))
	units.Put(availableUnit("fire-02", model.UnitFire, model.Location{Lat: 40.72, Lon: -74.0}))

	now := time.Now()
	sol := stubSolicitor{bids: []BidResponse{
		{IncidentID: "inc-1", UnitID: "fire-01", BidScore: 72.3, ReceivedAt: now},
		{IncidentID: "inc-1", UnitID: "fire-02", BidScore: 88.1, ReceivedAt: now.Add(time.Millisecond)},
	}}
	orders := &captureOrders{}
	co := testCoordinator(t, units, sol, orders)

	d, err := co.Handle(context.Background(), model.Incident{ID: "inc-1", Type: model.EmergencyFire, Location: model.Location{Lat: 40.7, Lon: -74.0}, Geocoded: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if d.UnitID != "fire-02" || d.WinningScore != 88.1 {
		t.Fatalf("expected fire-02 at 88.1, got %+v", d)
	}
	if d.State != StateDispatched || d.Fallback {
		t.Fatalf("expected auction dispatch, got %+v", d)
	}
	if len(orders.orders) != 1 || orders.orders[0].UnitID != "fire-02" {
		t.Fatalf("expected one order to fire-02, got %v", orders.orders)
	}
	u, _ := units.Get("fire-02")
	if u.Status != model.StatusDispatched {
		t.Fatalf("winner must be claimed, got %s", u.Status)
	}
	if u, _ := units.Get("fire-01"); u.Status != model.StatusAvailable {
		t.Fatalf("loser must stay available, got %s", u.Status)
	}
}

func TestHandle_TieBreaksOnEarliestBid(t *testing.T) {
	units := unitstatus.NewMemoryStore()
	units.Put(availableUnit("fire-01", model.UnitFire, model.Location{}))
	units.Put(availableUnit("fire-02", model.UnitFire, model.Location{}))

	now := time.Now()
	sol := stubSolicitor{bids: []BidResponse{
		{IncidentID: "inc-1", UnitID: "fire-01", BidScore: 80, ReceivedAt: now.Add(time.Millisecond)},
		{IncidentID: "inc-1", UnitID: "fire-02", BidScore: 80, ReceivedAt: now},
	}}
	co := testCoordinator(t, units, sol, &captureOrders{})

	d, err := co.Handle(context.Background(), model.Incident{ID: "inc-1", Type: model.EmergencyFire, Location: model.Location{Lat: 40.7, Lon: -74.0}, Geocoded: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if d.UnitID != "fire-02" {
		t.Fatalf("tie must break on earliest bid, got %s", d.UnitID)
	}
}

func TestHandle_ClaimRaceFallsToNextBidder(t *testing.T) {
	units := unitstatus.NewMemoryStore()
	units.Put(model.Unit{ID: "fire-01", Type: model.UnitFire, Status: model.StatusEnRoute})
	units.Put(availableUnit("fire-02", model.UnitFire, model.Location{}))

	sol := stubSolicitor{bids: []BidResponse{
		{IncidentID: "inc-1", UnitID: "fire-01", BidScore: 95},
		{IncidentID: "inc-1", UnitID: "fire-02", BidScore: 60},
	}}
	co := testCoordinator(t, units, sol, &captureOrders{})

	d, err := co.Handle(context.Background(), model.Incident{ID: "inc-1", Type: model.EmergencyFire, Location: model.Location{Lat: 40.7, Lon: -74.0}, Geocoded: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if d.UnitID != "fire-02" {
		t.Fatalf("busy top bidder must be skipped, got %s", d.UnitID)
	}
}

func TestHandle_OrderFailureReleasesClaim(t *testing.T) {
	units := unitstatus.NewMemoryStore()
	units.Put(availableUnit("fire-01", model.UnitFire, model.Location{}))
	units.Put(availableUnit("fire-02", model.UnitFire, model.Location{}))

	sol := stubSolicitor{bids: []BidResponse{
		{IncidentID: "inc-1", UnitID: "fire-01", BidScore: 95},
		{IncidentID: "inc-1", UnitID: "fire-02", BidScore: 60},
	}}
	orders := &captureOrders{failUnit: "fire-01"}
	co := testCoordinator(t, units, sol, orders)

	d, err := co.Handle(context.Background(), model.Incident{ID: "inc-1", Type: model.EmergencyFire, Location: model.Location{Lat: 40.7, Lon: -74.0}, Geocoded: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if d.UnitID != "fire-02" {
		t.Fatalf("expected fire-02 after order failure, got %s", d.UnitID)
	}
	if u, _ := units.Get("fire-01"); u.Status != model.StatusAvailable {
		t.Fatalf("failed order must release the claim, got %s", u.Status)
	}
}

func TestHandle_ZeroBidsProximityFallback(t *testing.T) {
	units := unitstatus.NewMemoryStore()
	// ems-01 is ~3.2 km north of the incident, ems-02 further out.
	units.Put(availableUnit("ems-01", model.UnitEMS, model.Location{Lat: 40.7416, Lon: -74.0060}))
	units.Put(availableUnit("ems-02", model.UnitEMS, model.Location{Lat: 40.80, Lon: -74.0060}))
	units.Put(availableUnit("fire-01", model.UnitFire, model.Location{Lat: 40.7130, Lon: -74.0060}))

	orders := &captureOrders{}
	co := testCoordinator(t, units, stubSolicitor{}, orders)

	d, err := co.Handle(context.Background(), model.Incident{ID: "inc-1", Type: model.EmergencyMedical, Location: model.Location{Lat: 40.7128, Lon: -74.0060}, Geocoded: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !d.Fallback || d.UnitID != "ems-01" {
		t.Fatalf("expected fallback to nearest EMS unit, got %+v", d)
	}
	if u, _ := units.Get("ems-01"); u.Status != model.StatusDispatched {
		t.Fatalf("fallback unit must be claimed, got %s", u.Status)
	}
	// The closer fire unit is the wrong type and must be ignored.
	if u, _ := units.Get("fire-01"); u.Status != model.StatusAvailable {
		t.Fatalf("wrong-type unit must not be claimed, got %s", u.Status)
	}
}

func TestHandle_FailureEmitsExactlyOneEvent(t *testing.T) {
	units := unitstatus.NewMemoryStore()
	co := testCoordinator(t, units, stubSolicitor{}, &captureOrders{})
	sub := co.Events().Subscribe()

	d, err := co.Handle(context.Background(), model.Incident{ID: "inc-1", Type: model.EmergencyFire, Location: model.Location{Lat: 40.7, Lon: -74.0}, Geocoded: true})
	if !errors.Is(err, ErrNoUnitsAvailable) {
		t.Fatalf("expected ErrNoUnitsAvailable got %v", err)
	}
	if d.State != StateFailed {
		t.Fatalf("expected failed state got %s", d.State)
	}

	select {
	case raw := <-sub:
		ev, ok := raw.(events.DispatchFailed)
		if !ok || ev.IncidentID != "inc-1" {
			t.Fatalf("got %+v", raw)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a dispatch_failed event")
	}
	select {
	case raw := <-sub:
		t.Fatalf("dispatch_failed must fire once, got second %+v", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandle_PublishesDispatchedEvent(t *testing.T) {
	units := unitstatus.NewMemoryStore()
	units.Put(availableUnit("fire-01", model.UnitFire, model.Location{}))
	sol := stubSolicitor{bids: []BidResponse{{IncidentID: "inc-1", UnitID: "fire-01", BidScore: 80}}}
	co := testCoordinator(t, units, sol, &captureOrders{})
	sub := co.Events().Subscribe()

	if _, err := co.Handle(context.Background(), model.Incident{ID: "inc-1", Type: model.EmergencyFire, Location: model.Location{Lat: 40.7, Lon: -74.0}, Geocoded: true}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	select {
	case raw := <-sub:
		ev, ok := raw.(events.Dispatched)
		if !ok || ev.IncidentID != "inc-1" || ev.UnitID != "fire-01" {
			t.Fatalf("got %+v", raw)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a dispatched event")
	}
}

// cancellingSolicitor kills the context mid-window and hands back the bids
// that had already arrived, the way a real transport does on shutdown.
type cancellingSolicitor struct {
	cancel context.CancelFunc
	bids   []BidResponse
}

func (s cancellingSolicitor) Solicit(ctx context.Context, _ BidRequest, _ time.Duration) ([]BidResponse, error) {
	s.cancel()
	return s.bids, ctx.Err()
}
func (s cancellingSolicitor) Close() error { return nil }

func TestHandle_CancelledAuctionDropsPartialBids(t *testing.T) {
	units := unitstatus.NewMemoryStore()
	units.Put(availableUnit("fire-01", model.UnitFire, model.Location{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sol := cancellingSolicitor{cancel: cancel, bids: []BidResponse{
		{IncidentID: "inc-1", UnitID: "fire-01", BidScore: 95},
	}}
	orders := &captureOrders{}
	co := testCoordinator(t, units, sol, orders)

	_, err := co.Handle(ctx, model.Incident{ID: "inc-1", Type: model.EmergencyFire, Location: model.Location{Lat: 40.7, Lon: -74.0}, Geocoded: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled got %v", err)
	}
	if len(orders.orders) != 0 {
		t.Fatalf("cancelled auction must not publish orders, got %v", orders.orders)
	}
	if u, _ := units.Get("fire-01"); u.Status != model.StatusAvailable {
		t.Fatalf("cancelled auction must not claim units, got %s", u.Status)
	}
}

func TestHandle_NonGeocodedFallsBackWithoutSorting(t *testing.T) {
	units := unitstatus.NewMemoryStore()
	units.Put(availableUnit("ems-01", model.UnitEMS, model.Location{Lat: 40.75, Lon: -74.0}))

	co := testCoordinator(t, units, stubSolicitor{}, &captureOrders{})
	d, err := co.Handle(context.Background(), model.Incident{ID: "inc-1", Type: model.EmergencyMedical})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !d.Fallback || d.UnitID != "ems-01" {
		t.Fatalf("expected fallback dispatch, got %+v", d)
	}
}

func TestHandle_DispatchShrinksActiveBacklog(t *testing.T) {
	units := unitstatus.NewMemoryStore()
	units.Put(availableUnit("fire-01", model.UnitFire, model.Location{}))
	reg := registry.NewMemoryRegistry()

	sol := stubSolicitor{bids: []BidResponse{{IncidentID: "inc-1", UnitID: "fire-01", BidScore: 80}}}
	cfg := Config{BidDeadline: 10 * time.Millisecond, CollectBuffer: 5 * time.Millisecond}
	co := NewCoordinator(cfg, units, reg, sol, &captureOrders{}, nil, nil, logger.NopLogger{})

	ctx := context.Background()
	if _, err := co.Handle(ctx, model.Incident{ID: "inc-1", Type: model.EmergencyFire, Location: model.Location{Lat: 40.7, Lon: -74.0}, Geocoded: true}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if n, _ := reg.ActiveCount(ctx); n != 0 {
		t.Fatalf("dispatched incident must leave the registry, %d active", n)
	}

	// A failed incident stays registered.
	if _, err := co.Handle(ctx, model.Incident{ID: "inc-2", Type: model.EmergencyPolice, Location: model.Location{Lat: 40.7, Lon: -74.0}, Geocoded: true}); !errors.Is(err, ErrNoUnitsAvailable) {
		t.Fatalf("expected failure, got %v", err)
	}
	if n, _ := reg.ActiveCount(ctx); n != 1 {
		t.Fatalf("failed incident must stay registered, %d active", n)
	}
}

func TestDecisionLog_Bounded(t *testing.T) {
	var l decisionLog
	for i := 0; i < decisionHistoryCap+20; i++ {
		l.add(Decision{IncidentID: "inc", State: StateFailed})
	}
	if n := len(l.Recent()); n != decisionHistoryCap {
		t.Fatalf("expected %d retained got %d", decisionHistoryCap, n)
	}
}

func TestBusSolicitor_CollectsMatchingBids(t *testing.T) {
	sol := NewBusSolicitor(eventbus.NewTyped[BidRequest](), eventbus.NewTyped[BidResponse]())
	reqs := sol.Requests.Subscribe()
	go func() {
		req := <-reqs
		sol.Responses.Publish(BidResponse{IncidentID: req.IncidentID, UnitID: "fire-01", BidScore: 70})
		sol.Responses.Publish(BidResponse{IncidentID: "other", UnitID: "fire-02", BidScore: 90})
	}()

	bids, err := sol.Solicit(context.Background(), BidRequest{IncidentID: "inc-1"}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("solicit: %v", err)
	}
	if len(bids) != 1 || bids[0].UnitID != "fire-01" {
		t.Fatalf("expected only the matching bid, got %v", bids)
	}
	if bids[0].ReceivedAt.IsZero() {
		t.Fatalf("solicitor must stamp arrival time")
	}
}
