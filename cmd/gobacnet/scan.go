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
	"time"

	"github.com/spf13/cobra"

	"github.com/KB-perByte/gobacnet/bacnet"
	"github.com/KB-perByte/gobacnet/service"
)

var (
	scanTimeout   time.Duration
	scanLowLimit  uint32
	scanHighLimit uint32
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BACnet devices on the network",
	Long: `Scan discovers BACnet devices by sending Who-Is broadcast requests.

Examples:
  # Discover all devices
  gobacnet scan

  # Discover devices with instance IDs 1-100
  gobacnet scan --low 1 --high 100

  # Discover with extended timeout
  gobacnet scan --scan-timeout 10s`,

	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", 5*time.Second, "Discovery timeout")
	scanCmd.Flags().Uint32Var(&scanLowLimit, "low", 0, "Low limit for device instance range (0 = no limit)")
	scanCmd.Flags().Uint32Var(&scanHighLimit, "high", 0, "High limit for device instance range (0 = no limit)")
}

func runScan(cmd *cobra.Command, args []string) error {
	svc, err := createService()
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout+scanTimeout)
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer svc.Stop()

	fmt.Fprintln(os.Stderr, "Scanning for BACnet devices...")

	discoverOpts := []bacnet.DiscoverOption{
		bacnet.WithDiscoveryTimeout(scanTimeout),
	}
	if scanLowLimit > 0 || scanHighLimit > 0 {
		high := scanHighLimit
		if high == 0 {
			high = bacnet.MaxInstance
		}
		discoverOpts = append(discoverOpts, bacnet.WithDeviceRange(scanLowLimit, high))
	}

	devices, err := svc.Discover(ctx, discoverOpts...)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	switch outputFmt {
	case "json":
		return outputDevicesJSON(devices)
	case "csv":
		outputDevicesRows(devices, printCSV)
	default:
		outputDevicesRows(devices, printTable)
		fmt.Printf("\nFound %d device(s)\n", len(devices))
	}
	return nil
}

func outputDevicesRows(devices []service.Device, emit func([]string, [][]string)) {
	headers := []string{"DEVICE ID", "ADDRESS", "VENDOR", "SEGMENTATION", "MAX APDU"}
	rows := make([][]string, 0, len(devices))
	for _, dev := range devices {
		rows = append(rows, []string{
			fmt.Sprintf("%d", dev.ID),
			dev.Address,
			fmt.Sprintf("%d", dev.VendorID),
			dev.Segmentation,
			fmt.Sprintf("%d", dev.MaxAPDU),
		})
	}
	emit(headers, rows)
}

func outputDevicesJSON(devices []service.Device) error {
	fmt.Println("[")
	for i, dev := range devices {
		comma := ","
		if i == len(devices)-1 {
			comma = ""
		}
		fmt.Printf(`  {"device_id": %d, "address": %s, "vendor_id": %d, "segmentation": %s, "max_apdu": %d}%s`+"\n",
			dev.ID, jsonString(dev.Address), dev.VendorID, jsonString(dev.Segmentation), dev.MaxAPDU, comma)
	}
	fmt.Println("]")
	return nil
}
