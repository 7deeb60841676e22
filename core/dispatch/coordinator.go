package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/firefly-dispatch/firefly/core/events"
	"github.com/firefly-dispatch/firefly/core/logger"
	"github.com/firefly-dispatch/firefly/core/metrics"
	"github.com/firefly-dispatch/firefly/core/model"
	"github.com/firefly-dispatch/firefly/core/registry"
	"github.com/firefly-dispatch/firefly/core/unitstatus"
	"github.com/firefly-dispatch/firefly/internal/eventbus"
)

const (
	// DefaultBidDeadline is how long units get to answer a solicitation.
	DefaultBidDeadline = 2 * time.Second
	// DefaultCollectBuffer extends the collection window past the advertised
	// deadline to absorb transport latency.
	DefaultCollectBuffer = 200 * time.Millisecond
)

// Config tunes the coordinator's auction timing.
type Config struct {
	BidDeadline   time.Duration `json:"bid_deadline"`
	CollectBuffer time.Duration `json:"collect_buffer"`
}

func (c *Config) withDefaults() {
	if c.BidDeadline <= 0 {
		c.BidDeadline = DefaultBidDeadline
	}
	if c.CollectBuffer <= 0 {
		c.CollectBuffer = DefaultCollectBuffer
	}
}

// Coordinator runs the bidding auction for every incoming incident: solicit,
// collect, select, claim, order. When the auction yields nothing it falls back
// to the nearest available unit of the required type, and only then declares
// the incident failed.
type Coordinator struct {
	cfg       Config
	units     unitstatus.Store
	incidents registry.Registry
	solicitor BidSolicitor
	orders    OrderPublisher
	bus       eventbus.EventBus
	sink      metrics.Sink
	log       logger.Logger

	decisions decisionLog
}

// NewCoordinator wires a Coordinator. Terminal outcomes are published on bus
// as events.Dispatched and events.DispatchFailed; a nil bus gets a private
// one. A nil sink disables metrics.
func NewCoordinator(cfg Config, units unitstatus.Store, incidents registry.Registry, solicitor BidSolicitor, orders OrderPublisher, bus eventbus.EventBus, sink metrics.Sink, log logger.Logger) *Coordinator {
	cfg.withDefaults()
	if bus == nil {
		bus = eventbus.New()
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Coordinator{
		cfg:       cfg,
		units:     units,
		incidents: incidents,
		solicitor: solicitor,
		orders:    orders,
		bus:       bus,
		sink:      sink,
		log:       log,
	}
}

// Events exposes the bus carrying events.Dispatched and events.DispatchFailed.
func (c *Coordinator) Events() eventbus.EventBus { return c.bus }

// Recent returns the retained decision history, oldest first.
func (c *Coordinator) Recent() []Decision { return c.decisions.Recent() }

// Run consumes incidents until the channel closes or ctx is cancelled. Each
// incident is handled in its own goroutine so a slow auction never blocks the
// intake.
func (c *Coordinator) Run(ctx context.Context, incidents <-chan model.Incident) {
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case inc, ok := <-incidents:
			if !ok {
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(inc model.Incident) {
				defer wg.Done()
				if _, err := c.Handle(ctx, inc); err != nil && !errors.Is(err, context.Canceled) {
					c.log.Errorf("incident %s not dispatched: %v", inc.ID, err)
				}
			}(inc)
		}
	}
}

// Handle runs one incident through the full lifecycle and returns the
// terminal decision. The returned error is non-nil for the failed terminal
// state and for a cancelled ctx, which abandons the auction without a
// decision.
func (c *Coordinator) Handle(ctx context.Context, inc model.Incident) (Decision, error) {
	if err := c.incidents.Register(ctx, inc); err != nil {
		if errors.Is(err, registry.ErrIndexSkipped) {
			c.log.Warnf("incident %s registered without geo index: %v", inc.ID, err)
		} else {
			c.log.Errorf("incident %s registration failed: %v", inc.ID, err)
		}
	}

	window := c.cfg.BidDeadline + c.cfg.CollectBuffer
	req := BidRequest{
		IncidentID:    inc.ID,
		EmergencyType: inc.Type,
		Location:      inc.Location,
		Description:   inc.Details,
		DeadlineMS:    c.cfg.BidDeadline.Milliseconds(),
		RequestedAt:   time.Now(),
	}

	c.log.Infof("soliciting bids for incident %s (%s), deadline %dms", inc.ID, inc.Type, req.DeadlineMS)
	start := time.Now()
	bids, err := c.solicitor.Solicit(ctx, req, window)
	if ctx.Err() != nil {
		// The workflow died under us. Partial bids must not turn into a
		// claim or an order on a dead context.
		c.log.Warnf("incident %s auction abandoned, dropping %d partial bid(s): %v", inc.ID, len(bids), ctx.Err())
		return Decision{}, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		c.log.Warnf("bid collection for incident %s ended early: %v", inc.ID, err)
	}
	collected := time.Since(start)
	c.log.Infof("collected %d bid(s) for incident %s in %s", len(bids), inc.ID, collected.Round(time.Millisecond))

	if d, ok := c.selectWinner(ctx, inc, bids, window); ok {
		return d, nil
	}
	if d, ok := c.fallback(ctx, inc, len(bids), window); ok {
		return d, nil
	}
	return c.fail(inc, len(bids), window)
}

// selectWinner claims the highest-scoring bidder. Ties break on earliest
// arrival. A bidder that changed status since bidding is skipped, not fatal.
func (c *Coordinator) selectWinner(ctx context.Context, inc model.Incident, bids []BidResponse, window time.Duration) (Decision, bool) {
	if len(bids) == 0 {
		return Decision{}, false
	}
	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].BidScore != bids[j].BidScore {
			return bids[i].BidScore > bids[j].BidScore
		}
		return bids[i].ReceivedAt.Before(bids[j].ReceivedAt)
	})

	for _, b := range bids {
		if err := c.claim(b.UnitID); err != nil {
			c.log.Debugf("bidder %s not claimable for incident %s: %v", b.UnitID, inc.ID, err)
			continue
		}
		reason := fmt.Sprintf("won auction with score %.2f", b.BidScore)
		if err := c.issueOrder(ctx, inc, b.UnitID, reason); err != nil {
			c.release(b.UnitID)
			c.log.Warnf("order to %s for incident %s failed, releasing claim: %v", b.UnitID, inc.ID, err)
			continue
		}
		d := Decision{
			IncidentID:     inc.ID,
			State:          StateDispatched,
			UnitID:         b.UnitID,
			WinningScore:   b.BidScore,
			BidsConsidered: len(bids),
			Reason:         reason,
			Window:         window,
			DecidedAt:      time.Now(),
		}
		c.finishDispatched(ctx, inc, d)
		return d, true
	}
	return Decision{}, false
}

// fallback picks the nearest available unit of the required type when the
// auction produced no claimable winner.
func (c *Coordinator) fallback(ctx context.Context, inc model.Incident, bidCount int, window time.Duration) (Decision, bool) {
	candidates := c.units.List(unitstatus.Filter{
		Type:   inc.Type.RequiredUnitType(),
		Status: model.StatusAvailable,
	})
	if len(candidates) == 0 {
		return Decision{}, false
	}

	if inc.Geocoded {
		sort.SliceStable(candidates, func(i, j int) bool {
			return model.Haversine(candidates[i].Location, inc.Location) < model.Haversine(candidates[j].Location, inc.Location)
		})
	}

	for _, u := range candidates {
		if err := c.claim(u.ID); err != nil {
			continue
		}
		dist := math.NaN()
		reason := "proximity fallback"
		if inc.Geocoded {
			dist = model.Haversine(u.Location, inc.Location)
			reason = fmt.Sprintf("proximity fallback, %.1f km away", dist)
		}
		if err := c.issueOrder(ctx, inc, u.ID, reason); err != nil {
			c.release(u.ID)
			c.log.Warnf("fallback order to %s for incident %s failed: %v", u.ID, inc.ID, err)
			continue
		}
		d := Decision{
			IncidentID:     inc.ID,
			State:          StateDispatched,
			UnitID:         u.ID,
			BidsConsidered: bidCount,
			Fallback:       true,
			Reason:         reason,
			Window:         window,
			DecidedAt:      time.Now(),
		}
		c.finishDispatched(ctx, inc, d)
		return d, true
	}
	return Decision{}, false
}

// fail is the single place the terminal failure is declared, so the
// dispatch_failed event fires exactly once per incident.
func (c *Coordinator) fail(inc model.Incident, bidCount int, window time.Duration) (Decision, error) {
	reason := ErrNoUnitsAvailable.Error()
	if bidCount == 0 {
		reason = ErrNoBids.Error() + ", " + reason
	}
	d := Decision{
		IncidentID:     inc.ID,
		State:          StateFailed,
		BidsConsidered: bidCount,
		Reason:         reason,
		Window:         window,
		DecidedAt:      time.Now(),
	}
	c.decisions.add(d)
	c.bus.Publish(events.DispatchFailed{IncidentID: inc.ID, Reason: reason, Time: d.DecidedAt})
	if err := c.sink.RecordDispatch(metrics.DispatchEvent{
		IncidentID:     inc.ID,
		Outcome:        "dispatch_failed",
		Reason:         reason,
		BidsConsidered: bidCount,
		Window:         window,
		Time:           d.DecidedAt,
	}); err != nil {
		c.log.Warnf("metrics sink rejected dispatch event: %v", err)
	}
	c.log.Errorf("incident %s failed: %s", inc.ID, reason)
	return d, fmt.Errorf("incident %s: %w", inc.ID, ErrNoUnitsAvailable)
}

func (c *Coordinator) finishDispatched(ctx context.Context, inc model.Incident, d Decision) {
	c.decisions.add(d)
	// A dispatched incident leaves the active registry so the backlog the
	// autoscaler watches shrinks. Failed incidents stay registered.
	if err := c.incidents.Remove(ctx, inc.ID); err != nil {
		c.log.Warnf("incident %s not removed from registry: %v", inc.ID, err)
	}
	c.bus.Publish(events.Dispatched{
		IncidentID:     inc.ID,
		UnitID:         d.UnitID,
		Reason:         d.Reason,
		BidsConsidered: d.BidsConsidered,
		Time:           d.DecidedAt,
	})
	if err := c.sink.RecordDispatch(metrics.DispatchEvent{
		IncidentID:     inc.ID,
		UnitID:         d.UnitID,
		Outcome:        "dispatched",
		Reason:         d.Reason,
		BidsConsidered: d.BidsConsidered,
		Window:         d.Window,
		Time:           d.DecidedAt,
	}); err != nil {
		c.log.Warnf("metrics sink rejected dispatch event: %v", err)
	}
	c.log.Infof("incident %s dispatched to %s (%s)", inc.ID, d.UnitID, d.Reason)
}

func (c *Coordinator) claim(unitID string) error {
	return c.units.Transition(unitID, model.StatusAvailable, model.StatusDispatched)
}

func (c *Coordinator) release(unitID string) {
	if err := c.units.Transition(unitID, model.StatusDispatched, model.StatusAvailable); err != nil {
		c.log.Warnf("could not release claim on %s: %v", unitID, err)
	}
}

func (c *Coordinator) issueOrder(ctx context.Context, inc model.Incident, unitID, reason string) error {
	return c.orders.PublishOrder(ctx, DispatchOrder{
		IncidentID:    inc.ID,
		UnitID:        unitID,
		EmergencyType: inc.Type,
		Location:      inc.Location,
		Reason:        reason,
		IssuedAt:      time.Now(),
	})
}
