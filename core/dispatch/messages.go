package dispatch

import (
	"context"
	"time"

	"github.com/firefly-dispatch/firefly/core/bid"
	"github.com/firefly-dispatch/firefly/core/model"
	"github.com/firefly-dispatch/firefly/internal/eventbus"
)

// BidRequest solicits offers from every listening unit for one incident.
// DeadlineMS tells units how long they have to answer; responses arriving
// after the coordinator's collection window closes are ignored.
type BidRequest struct {
	IncidentID    string              `json:"incident_id"`
	EmergencyType model.EmergencyType `json:"emergency_type"`
	Location      model.Location      `json:"location"`
	Description   string              `json:"description,omitempty"`
	DeadlineMS    int64               `json:"deadline_ms"`
	RequestedAt   time.Time           `json:"requested_at"`
}

// BidResponse is a unit's answer to a BidRequest.
type BidResponse struct {
	IncidentID string               `json:"incident_id"`
	UnitID     string               `json:"unit_id"`
	BidScore   float64              `json:"bid_score"`
	ETAMinutes float64              `json:"eta_minutes"`
	DistanceKM float64              `json:"distance_km"`
	Sub        bid.SubScores        `json:"sub_scores"`
	Advisory   string               `json:"advisory,omitempty"`
	Used       bid.IntelligenceUsed `json:"intelligence_used"`
	ReceivedAt time.Time            `json:"-"`
}

// DispatchOrder commits the winning (or fallback) unit to an incident.
type DispatchOrder struct {
	IncidentID    string              `json:"incident_id"`
	UnitID        string              `json:"unit_id"`
	EmergencyType model.EmergencyType `json:"emergency_type"`
	Location      model.Location      `json:"location"`
	Reason        string              `json:"reason"`
	IssuedAt      time.Time           `json:"issued_at"`
}

// BidSolicitor broadcasts a request and collects the responses that arrive
// within the window. Implementations must tag each response's ReceivedAt.
type BidSolicitor interface {
	Solicit(ctx context.Context, req BidRequest, window time.Duration) ([]BidResponse, error)
	Close() error
}

// OrderPublisher delivers dispatch orders to units.
type OrderPublisher interface {
	PublishOrder(ctx context.Context, order DispatchOrder) error
}

// BusSolicitor runs the auction over in-process typed buses. Used by the
// embedded simulator and in tests; the MQTT solicitor covers distributed
// fleets.
type BusSolicitor struct {
	Requests  *eventbus.TypedBus[BidRequest]
	Responses *eventbus.TypedBus[BidResponse]
}

func NewBusSolicitor(req *eventbus.TypedBus[BidRequest], resp *eventbus.TypedBus[BidResponse]) *BusSolicitor {
	return &BusSolicitor{Requests: req, Responses: resp}
}

// Solicit publishes the request and drains matching responses until the
// window elapses or ctx is cancelled.
func (s *BusSolicitor) Solicit(ctx context.Context, req BidRequest, window time.Duration) ([]BidResponse, error) {
	sub := s.Responses.Subscribe()
	defer s.Responses.Unsubscribe(sub)

	s.Requests.Publish(req)

	timer := time.NewTimer(window)
	defer timer.Stop()

	var out []BidResponse
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-timer.C:
			return out, nil
		case resp, ok := <-sub:
			if !ok {
				return out, nil
			}
			if resp.IncidentID != req.IncidentID {
				continue
			}
			resp.ReceivedAt = time.Now()
			out = append(out, resp)
		}
	}
}

// Close is a no-op; the buses are owned by the caller.
func (s *BusSolicitor) Close() error { return nil }

// BusOrderPublisher publishes orders on an in-process bus.
type BusOrderPublisher struct {
	Orders *eventbus.TypedBus[DispatchOrder]
}

func (p *BusOrderPublisher) PublishOrder(_ context.Context, order DispatchOrder) error {
	p.Orders.Publish(order)
	return nil
}
