// Package app assembles the dispatch service from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/firefly-dispatch/firefly/config"
	"github.com/firefly-dispatch/firefly/core/autoscaler"
	"github.com/firefly-dispatch/firefly/core/bid"
	"github.com/firefly-dispatch/firefly/core/dispatch"
	"github.com/firefly-dispatch/firefly/core/intel"
	coremetrics "github.com/firefly-dispatch/firefly/core/metrics"
	"github.com/firefly-dispatch/firefly/core/model"
	coreregistry "github.com/firefly-dispatch/firefly/core/registry"
	"github.com/firefly-dispatch/firefly/core/unitstatus"
	"github.com/firefly-dispatch/firefly/infra/fleet"
	"github.com/firefly-dispatch/firefly/infra/logger"
	"github.com/firefly-dispatch/firefly/infra/metrics"
	"github.com/firefly-dispatch/firefly/infra/mqtt"
	infraregistry "github.com/firefly-dispatch/firefly/infra/registry"
	"github.com/firefly-dispatch/firefly/internal/eventbus"
	"github.com/firefly-dispatch/firefly/simulator"
)

// Service orchestrates the coordinator, the autoscaler and their adapters.
type Service struct {
	Coordinator *dispatch.Coordinator
	Autoscaler  *autoscaler.Autoscaler
	Units       unitstatus.Store
	Incidents   coreregistry.Registry
	// Events carries every dispatch and scaling event for subscribers.
	Events eventbus.EventBus

	intake   chan model.Incident
	fleetSim *simulator.Fleet
	closers  []func() error
	log      logger.Logger

	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	bus := eventbus.New()
	svc := &Service{
		Events:      bus,
		intake:      make(chan model.Incident, 64),
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}

	sink, err := metrics.BuildSink(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	svc.Units = unitstatus.NewMemoryStore()
	svc.Incidents, err = buildRegistry(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}

	solicitor, orders, err := svc.buildTransport(cfg, sink)
	if err != nil {
		return nil, err
	}

	svc.Coordinator = dispatch.NewCoordinator(
		dispatch.Config{
			BidDeadline:   time.Duration(cfg.Dispatch.BidDeadlineMS) * time.Millisecond,
			CollectBuffer: time.Duration(cfg.Dispatch.CollectBufferMS) * time.Millisecond,
		},
		svc.Units,
		svc.Incidents,
		solicitor,
		orders,
		bus,
		sink,
		logger.New("dispatch_coordinator"),
	)

	var mgr autoscaler.FleetManager
	if cfg.Fleet.BaseURL != "" {
		mgr = fleet.NewHTTPFleetManager(cfg.Fleet)
	} else {
		logg.Warnf("no fleet orchestrator configured, autoscaler runs against a mock")
		mgr = autoscaler.NewMockFleetManager(cfg.Autoscaler.MinReplicas)
	}
	depth := func(ctx context.Context) (int, error) {
		return svc.Incidents.ActiveCount(ctx)
	}
	svc.Autoscaler, err = autoscaler.New(cfg.Autoscaler, depth, mgr, bus, sink, logger.New("fleet_autoscaler"))
	if err != nil {
		return nil, err
	}

	return svc, nil
}

// buildRegistry picks Redis when an address is configured, otherwise the
// in-memory registry.
func buildRegistry(ctx context.Context, cfg *config.Config, logg logger.Logger) (coreregistry.Registry, error) {
	if cfg.Redis.Addr == "" {
		logg.Warnf("no redis configured, incident registry is in-memory")
		return coreregistry.NewMemoryRegistry(), nil
	}
	return infraregistry.NewRedisRegistry(ctx, cfg.Redis)
}

// buildTransport wires the auction transport: the embedded simulator fleet on
// in-process buses, or MQTT against a real broker.
func (s *Service) buildTransport(cfg *config.Config, sink coremetrics.Sink) (dispatch.BidSolicitor, dispatch.OrderPublisher, error) {
	if cfg.Simulator.Enabled {
		requests := eventbus.NewTyped[dispatch.BidRequest]()
		responses := eventbus.NewTyped[dispatch.BidResponse]()
		orders := eventbus.NewTyped[dispatch.DispatchOrder]()

		calc := buildCalculator(cfg)
		s.fleetSim = simulator.GenerateFleet(simulator.FleetConfig{
			PoliceUnits: cfg.Simulator.PoliceUnits,
			FireUnits:   cfg.Simulator.FireUnits,
			EMSUnits:    cfg.Simulator.EMSUnits,
			Center:      model.Location{Lat: cfg.Simulator.CenterLat, Lon: cfg.Simulator.CenterLon},
			SpreadKM:    cfg.Simulator.SpreadKM,
			Seed:        cfg.Simulator.Seed,
		}, calc, s.Units, requests, responses, orders, logger.New("simulator"))

		return dispatch.NewBusSolicitor(requests, responses), &dispatch.BusOrderPublisher{Orders: orders}, nil
	}

	solicitor, err := mqtt.NewSolicitor(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("mqtt solicitor: %w", err)
	}
	s.closers = append(s.closers, solicitor.Close)

	status, err := mqtt.NewStatusListener(cfg.MQTT, s.Units)
	if err != nil {
		return nil, nil, fmt.Errorf("status listener: %w", err)
	}
	s.closers = append(s.closers, status.Close)

	intake, err := mqtt.NewIncidentListener(cfg.MQTT, s.intake)
	if err != nil {
		return nil, nil, fmt.Errorf("incident intake: %w", err)
	}
	s.closers = append(s.closers, intake.Close)

	return solicitor, solicitor, nil
}

func buildCalculator(cfg *config.Config) *bid.Calculator {
	opts := []bid.Option{
		bid.WithProviderTimeout(time.Duration(cfg.Intel.TimeoutMS) * time.Millisecond),
	}
	if cfg.Intel.Provider == "mock" {
		opts = append(opts,
			bid.WithStrategic(intel.NewMockStrategic(cfg.Intel.Seed)),
			bid.WithTactical(intel.NewMockTactical(cfg.Intel.Seed)),
		)
	}
	return bid.NewCalculator(logger.New("bid_calculator"), opts...)
}

// Submit feeds an incident into the intake. Used by the CLI and tests; MQTT
// intake feeds the same channel.
func (s *Service) Submit(inc model.Incident) {
	s.intake <- inc
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.fleetSim != nil {
		go s.fleetSim.Run(ctx)
	}
	go s.Autoscaler.Run(ctx)
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	s.Coordinator.Run(ctx, s.intake)
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	if r, ok := s.Incidents.(*infraregistry.RedisRegistry); ok {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
