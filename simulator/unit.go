// Package simulator provides an in-process unit fleet that answers bid
// solicitations with real calculator scores and walks dispatched units
// through their lifecycle. It backs demos and end-to-end tests without a
// broker.
package simulator

import (
	"context"

	"github.com/firefly-dispatch/firefly/core/bid"
	"github.com/firefly-dispatch/firefly/core/dispatch"
	"github.com/firefly-dispatch/firefly/core/logger"
	"github.com/firefly-dispatch/firefly/core/model"
	"github.com/firefly-dispatch/firefly/core/unitstatus"
	"github.com/firefly-dispatch/firefly/internal/eventbus"
)

// SimulatedUnit listens for bid requests, answers with a scored bid and
// accepts dispatch orders addressed to it.
type SimulatedUnit struct {
	unit  model.Unit
	calc  *bid.Calculator
	store unitstatus.Store
	log   logger.Logger

	requests  *eventbus.TypedBus[dispatch.BidRequest]
	responses *eventbus.TypedBus[dispatch.BidResponse]
	orders    *eventbus.TypedBus[dispatch.DispatchOrder]
}

// NewSimulatedUnit registers the unit in the store and returns it ready to Run.
func NewSimulatedUnit(
	unit model.Unit,
	calc *bid.Calculator,
	store unitstatus.Store,
	requests *eventbus.TypedBus[dispatch.BidRequest],
	responses *eventbus.TypedBus[dispatch.BidResponse],
	orders *eventbus.TypedBus[dispatch.DispatchOrder],
	log logger.Logger,
) *SimulatedUnit {
	if unit.Status == "" {
		unit.Status = model.StatusAvailable
	}
	store.Put(unit)
	return &SimulatedUnit{
		unit:      unit,
		calc:      calc,
		store:     store,
		log:       log,
		requests:  requests,
		responses: responses,
		orders:    orders,
	}
}

// ID returns the unit identifier.
func (u *SimulatedUnit) ID() string { return u.unit.ID }

// Run answers solicitations and orders until ctx is done.
func (u *SimulatedUnit) Run(ctx context.Context) {
	reqCh := u.requests.Subscribe()
	defer u.requests.Unsubscribe(reqCh)
	orderCh := u.orders.Subscribe()
	defer u.orders.Unsubscribe(orderCh)

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-reqCh:
			if !ok {
				return
			}
			u.onRequest(ctx, req)
		case order, ok := <-orderCh:
			if !ok {
				return
			}
			u.onOrder(order)
		}
	}
}

func (u *SimulatedUnit) onRequest(ctx context.Context, req dispatch.BidRequest) {
	cur, ok := u.store.Get(u.unit.ID)
	if !ok || cur.Status != model.StatusAvailable {
		return
	}
	inc := model.Incident{
		ID:       req.IncidentID,
		Type:     req.EmergencyType,
		Location: req.Location,
		Details:  req.Description,
		Geocoded: !req.Location.IsZero(),
	}
	b := u.calc.Compute(ctx, inc, u.unit.ID, cur.Location, u.unit.Type)
	u.responses.Publish(dispatch.BidResponse{
		IncidentID: b.IncidentID,
		UnitID:     b.UnitID,
		BidScore:   b.Score,
		ETAMinutes: b.ETAMinutes,
		DistanceKM: b.DistanceKM,
		Sub:        b.Sub,
		Advisory:   b.Advisory,
		Used:       b.Intelligence,
	})
	u.log.Debugf("%s bid %.2f on incident %s", u.unit.ID, b.Score, req.IncidentID)
}

// onOrder accepts orders addressed to this unit. The coordinator already
// moved the unit to Dispatched; the simulated crew immediately rolls out.
func (u *SimulatedUnit) onOrder(order dispatch.DispatchOrder) {
	if order.UnitID != u.unit.ID {
		return
	}
	if err := u.store.Transition(u.unit.ID, model.StatusDispatched, model.StatusEnRoute); err != nil {
		u.log.Warnf("%s could not accept order for %s: %v", u.unit.ID, order.IncidentID, err)
		return
	}
	u.log.Infof("%s en route to incident %s", u.unit.ID, order.IncidentID)
}
