package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-dispatch/firefly/config"
	"github.com/firefly-dispatch/firefly/infra/fleet"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Worker fleet commands",
}

var fleetReplicasCmd = &cobra.Command{
	Use:   "replicas",
	Short: "Show the current worker replica count",
	RunE:  runFleetReplicas,
}

var fleetScaleCmd = &cobra.Command{
	Use:   "scale <replicas>",
	Short: "Set the worker replica count",
	Args:  cobra.ExactArgs(1),
	RunE:  runFleetScale,
}

func init() {
	fleetCmd.AddCommand(fleetReplicasCmd)
	fleetCmd.AddCommand(fleetScaleCmd)
	rootCmd.AddCommand(fleetCmd)
}

func fleetManager() (*fleet.HTTPFleetManager, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Fleet.BaseURL == "" {
		return nil, fmt.Errorf("no fleet orchestrator configured")
	}
	return fleet.NewHTTPFleetManager(cfg.Fleet), nil
}

func runFleetReplicas(cmd *cobra.Command, args []string) error {
	mgr, err := fleetManager()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := mgr.Replicas(ctx)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func runFleetScale(cmd *cobra.Command, args []string) error {
	target, err := strconv.Atoi(args[0])
	if err != nil || target < 0 {
		return fmt.Errorf("invalid replica count %q", args[0])
	}
	mgr, err := fleetManager()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return mgr.Scale(ctx, target)
}
