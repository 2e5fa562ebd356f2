// Copyright 2026 KB-perByte
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KB-perByte/gobacnet/archive"
	"github.com/KB-perByte/gobacnet/simulator"
)

var (
	simConfigFile string
	simListenAddr string
	simDeviceID   uint32
	simArchive    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated BACnet device",
	Long: `Simulate hosts a virtual BACnet/IP device on its own UDP socket.

Without a config file it runs a built-in HVAC unit with drifting sensors,
trend logging, and limit alarms.

Examples:
  # Run the built-in HVAC device
  gobacnet simulate

  # Run on a non-standard port with a different instance
  gobacnet simulate --listen :47809 --sim-device 200

  # Load a device definition and archive samples to SQLite
  gobacnet simulate --sim-config hvac.yaml --archive trends.db`,

	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simConfigFile, "sim-config", "", "Device definition YAML (default: built-in HVAC unit)")
	simulateCmd.Flags().StringVar(&simListenAddr, "listen", "", "Listen address override (e.g. :47809)")
	simulateCmd.Flags().Uint32Var(&simDeviceID, "sim-device", 0, "Device instance override")
	simulateCmd.Flags().StringVar(&simArchive, "archive", "", "SQLite file to archive trend samples to")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	var cfg *simulator.Config
	if simConfigFile != "" {
		loaded, err := simulator.LoadConfig(simConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = simulator.DefaultHVACConfig()
	}

	if simListenAddr != "" {
		cfg.ListenAddress = simListenAddr
	}
	if simDeviceID > 0 {
		cfg.DeviceID = simDeviceID
	}

	simOpts := []simulator.Option{simulator.WithLogger(logger)}
	if simArchive != "" {
		store, err := archive.Open(simArchive)
		if err != nil {
			return err
		}
		defer store.Close()
		simOpts = append(simOpts, simulator.WithArchiver(store))
	}

	sim, err := simulator.New(cfg, simOpts...)
	if err != nil {
		return fmt.Errorf("create simulator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sim.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("Simulating device %d (%s) on %s\n", cfg.DeviceID, cfg.Name, sim.Addr())
	fmt.Println("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(os.Stderr, "\nStopping simulator...")
	return sim.Stop()
}
