package mqtt

import (
	"encoding/json"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/firefly-dispatch/firefly/core/model"
	"github.com/firefly-dispatch/firefly/infra/logger"
)

// IncidentListener consumes reported incidents from MQTT and feeds them to
// the coordinator's intake channel.
type IncidentListener struct {
	cli paho.Client
	cfg Config
	out chan<- model.Incident
	log logger.Logger
}

// NewIncidentListener connects and starts consuming incident reports. The
// listener never blocks the broker callback: if the intake channel is full
// the report is dropped and logged.
func NewIncidentListener(cfg Config, out chan<- model.Incident) (*IncidentListener, error) {
	cfg.withDefaults()
	cli, err := connect(cfg, "incident_intake")
	if err != nil {
		return nil, err
	}
	l := &IncidentListener{cli: cli, cfg: cfg, out: out, log: logger.New("incident_intake")}
	if token := cli.Subscribe(cfg.IncidentTopic, cfg.qosFor("incident"), l.onIncident); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return nil, token.Error()
	}
	return l, nil
}

func (l *IncidentListener) onIncident(_ paho.Client, msg paho.Message) {
	var inc model.Incident
	if err := json.Unmarshal(msg.Payload(), &inc); err != nil {
		l.log.Errorf("invalid incident payload: %v", err)
		return
	}
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	select {
	case l.out <- inc:
	default:
		l.log.Errorf("intake channel full, incident %s dropped", inc.ID)
	}
}

// Close disconnects from the broker.
func (l *IncidentListener) Close() error {
	if l.cli != nil && l.cli.IsConnected() {
		l.cli.Disconnect(250)
	}
	return nil
}
