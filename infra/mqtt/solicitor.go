package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/firefly-dispatch/firefly/core/dispatch"
	"github.com/firefly-dispatch/firefly/infra/logger"
)

// Solicitor runs the bid auction over MQTT broadcast. It publishes bid
// requests on the request topic and collects responses from the response
// topic until the window closes. It also publishes dispatch orders, so one
// broker connection serves the whole coordinator.
//
// The response topic is subscribed once; responses are routed to the auction
// they belong to by incident id, so concurrent auctions never steal each
// other's bids.
type Solicitor struct {
	cli paho.Client
	cfg Config
	log logger.Logger

	mu      sync.Mutex
	pending map[string]chan dispatch.BidResponse
}

// NewSolicitor connects to the broker and subscribes the response topic.
func NewSolicitor(cfg Config) (*Solicitor, error) {
	cfg.withDefaults()
	cli, err := connect(cfg, "bid_solicitor")
	if err != nil {
		return nil, err
	}
	s := &Solicitor{
		cli:     cli,
		cfg:     cfg,
		log:     logger.New("bid_solicitor"),
		pending: make(map[string]chan dispatch.BidResponse),
	}
	if token := cli.Subscribe(cfg.ResponseTopic, cfg.qosFor("bid"), s.onResponse); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return nil, token.Error()
	}
	return s, nil
}

func (s *Solicitor) onResponse(_ paho.Client, m paho.Message) {
	var resp dispatch.BidResponse
	if err := json.Unmarshal(m.Payload(), &resp); err != nil {
		s.log.Errorf("invalid bid payload: %v", err)
		return
	}
	resp.ReceivedAt = time.Now()

	s.mu.Lock()
	recv, ok := s.pending[resp.IncidentID]
	s.mu.Unlock()
	if !ok {
		s.log.Debugf("late bid from %s for incident %s ignored", resp.UnitID, resp.IncidentID)
		return
	}
	select {
	case recv <- resp:
	default:
		s.log.Warnf("bid from %s dropped, collection buffer full", resp.UnitID)
	}
}

// Solicit broadcasts the request and collects matching responses until the
// window elapses or ctx is cancelled.
func (s *Solicitor) Solicit(ctx context.Context, req dispatch.BidRequest, window time.Duration) ([]dispatch.BidResponse, error) {
	recv := make(chan dispatch.BidResponse, 64)
	s.mu.Lock()
	s.pending[req.IncidentID] = recv
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, req.IncidentID)
		s.mu.Unlock()
	}()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if token := s.cli.Publish(s.cfg.RequestTopic, s.cfg.qosFor("bid"), false, payload); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	var bids []dispatch.BidResponse
	for {
		select {
		case resp := <-recv:
			bids = append(bids, resp)
		case <-ctx.Done():
			return bids, ctx.Err()
		case <-timer.C:
			return bids, nil
		}
	}
}

// PublishOrder sends the dispatch order on the shared order topic; units
// filter on unit_id.
func (s *Solicitor) PublishOrder(_ context.Context, order dispatch.DispatchOrder) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	token := s.cli.Publish(s.cfg.OrderTopic, s.cfg.qosFor("order"), false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	s.log.Infof("published order for incident %s to unit %s", order.IncidentID, order.UnitID)
	return nil
}

// Close disconnects from the broker.
func (s *Solicitor) Close() error {
	if s.cli != nil && s.cli.IsConnected() {
		if token := s.cli.Unsubscribe(s.cfg.ResponseTopic); token.Wait() && token.Error() != nil {
			s.log.Errorf("unsubscribe error: %v", token.Error())
		}
		s.cli.Disconnect(250)
	}
	return nil
}
