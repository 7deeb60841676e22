// Package fleet adapts external worker orchestrators to the autoscaler's
// FleetManager interface.
package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/firefly-dispatch/firefly/core/logger"
	infralog "github.com/firefly-dispatch/firefly/infra/logger"
)

// Config holds the orchestrator endpoint parameters.
type Config struct {
	BaseURL        string `json:"base_url"`
	Deployment     string `json:"deployment"`
	AuthToken      string `json:"auth_token"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// HTTPFleetManager drives a container orchestrator over its REST API:
// GET /deployments/{name}/scale reads the replica count and
// PUT /deployments/{name}/scale sets it.
type HTTPFleetManager struct {
	cfg    Config
	client *http.Client
	log    logger.Logger
}

func NewHTTPFleetManager(cfg Config) *HTTPFleetManager {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	return &HTTPFleetManager{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:    infralog.New("fleet_manager"),
	}
}

type scalePayload struct {
	Replicas int `json:"replicas"`
}

// Replicas reads the current replica count.
func (m *HTTPFleetManager) Replicas(ctx context.Context) (int, error) {
	var p scalePayload
	if err := m.do(ctx, http.MethodGet, m.scaleURL(), nil, &p); err != nil {
		return 0, fmt.Errorf("read replicas: %w", err)
	}
	return p.Replicas, nil
}

// Scale sets the replica count.
func (m *HTTPFleetManager) Scale(ctx context.Context, target int) error {
	body, err := json.Marshal(scalePayload{Replicas: target})
	if err != nil {
		return err
	}
	if err := m.do(ctx, http.MethodPut, m.scaleURL(), body, nil); err != nil {
		return fmt.Errorf("scale to %d: %w", target, err)
	}
	m.log.Infof("scaled %s to %d replicas", m.cfg.Deployment, target)
	return nil
}

// Ping checks the orchestrator health endpoint.
func (m *HTTPFleetManager) Ping(ctx context.Context) error {
	if err := m.do(ctx, http.MethodGet, m.cfg.BaseURL+"/healthz", nil, nil); err != nil {
		return fmt.Errorf("orchestrator unreachable: %w", err)
	}
	return nil
}

func (m *HTTPFleetManager) scaleURL() string {
	return fmt.Sprintf("%s/deployments/%s/scale", m.cfg.BaseURL, m.cfg.Deployment)
}

func (m *HTTPFleetManager) do(ctx context.Context, method, url string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if m.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.AuthToken)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
