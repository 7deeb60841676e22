package mqtt

import (
	"encoding/json"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/firefly-dispatch/firefly/core/model"
	"github.com/firefly-dispatch/firefly/core/unitstatus"
	"github.com/firefly-dispatch/firefly/infra/logger"
)

// StatusReport is what units publish on the status topic: registration,
// lifecycle transitions and position updates share one payload shape.
type StatusReport struct {
	UnitID   string           `json:"unit_id"`
	Type     model.UnitType   `json:"unit_type"`
	Status   model.UnitStatus `json:"status"`
	Location model.Location   `json:"location"`
	CrewSize int              `json:"crew_size,omitempty"`
}

// StatusListener mirrors unit status reports from MQTT into the status store.
type StatusListener struct {
	cli   paho.Client
	cfg   Config
	store unitstatus.Store
	log   logger.Logger
}

// NewStatusListener connects and starts consuming status reports.
func NewStatusListener(cfg Config, store unitstatus.Store) (*StatusListener, error) {
	cfg.withDefaults()
	cli, err := connect(cfg, "status_listener")
	if err != nil {
		return nil, err
	}
	l := &StatusListener{cli: cli, cfg: cfg, store: store, log: logger.New("status_listener")}
	if token := cli.Subscribe(cfg.StatusTopic, cfg.qosFor("status"), l.onReport); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return nil, token.Error()
	}
	return l, nil
}

func (l *StatusListener) onReport(_ paho.Client, msg paho.Message) {
	var r StatusReport
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		l.log.Errorf("invalid status report: %v", err)
		return
	}
	if r.UnitID == "" {
		l.log.Warnf("status report without unit_id ignored")
		return
	}
	l.Apply(r)
}

// Apply merges one report into the store. Unknown units register; known units
// move through the lifecycle via compare-and-set so a report can never
// clobber a concurrent dispatch claim.
func (l *StatusListener) Apply(r StatusReport) {
	cur, ok := l.store.Get(r.UnitID)
	if !ok {
		status := r.Status
		if status == "" {
			status = model.StatusAvailable
		}
		l.store.Put(model.Unit{
			ID:       r.UnitID,
			Type:     r.Type,
			Location: r.Location,
			Status:   status,
			CrewSize: r.CrewSize,
		})
		l.log.Infof("registered unit %s (%s)", r.UnitID, r.Type)
		return
	}

	if !r.Location.IsZero() {
		l.store.SetLocation(r.UnitID, r.Location)
	}
	if r.Status != "" && r.Status != cur.Status {
		if err := l.store.Transition(r.UnitID, cur.Status, r.Status); err != nil {
			l.log.Debugf("status report for %s not applied: %v", r.UnitID, err)
		}
	}
}

// Close disconnects from the broker.
func (l *StatusListener) Close() error {
	if l.cli != nil && l.cli.IsConnected() {
		l.cli.Disconnect(250)
	}
	return nil
}
