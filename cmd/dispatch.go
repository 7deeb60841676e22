package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/firefly-dispatch/firefly/app"
	"github.com/firefly-dispatch/firefly/config"
	"github.com/firefly-dispatch/firefly/core/events"
	"github.com/firefly-dispatch/firefly/core/model"
)

var (
	dispatchType string
	dispatchLat  float64
	dispatchLon  float64
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Inject a test incident and report the outcome",
	RunE:  dispatchIncident,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchType, "type", "Fire", "emergency type (Fire, Police, Medical)")
	dispatchCmd.Flags().Float64Var(&dispatchLat, "lat", 40.7128, "incident latitude")
	dispatchCmd.Flags().Float64Var(&dispatchLon, "lon", -74.0060, "incident longitude")
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchIncident(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// The one-shot command always runs against the embedded fleet.
	cfg.Simulator.Enabled = true

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = svc.Run(runCtx) }()

	sub := svc.Events.Subscribe()

	inc := model.Incident{
		ID:         uuid.NewString(),
		Type:       model.EmergencyType(dispatchType),
		Location:   model.Location{Lat: dispatchLat, Lon: dispatchLon},
		Geocoded:   true,
		ReportedAt: time.Now(),
	}
	svc.Submit(inc)

	timeout := time.Duration(cfg.Dispatch.BidDeadlineMS+cfg.Dispatch.CollectBufferMS)*time.Millisecond + 5*time.Second
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-sub:
			switch e := ev.(type) {
			case events.Dispatched:
				fmt.Printf("incident %s dispatched to %s: %s\n", e.IncidentID, e.UnitID, e.Reason)
				return nil
			case events.DispatchFailed:
				fmt.Printf("incident %s failed: %s\n", e.IncidentID, e.Reason)
				return nil
			}
		case <-deadline:
			return fmt.Errorf("no decision within %s", timeout)
		case <-ctx.Done():
			return nil
		}
	}
}
