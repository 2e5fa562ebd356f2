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

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show identification details for a device",
	Long: `Info reads the device object's identification properties.

Examples:
  gobacnet info -d 100`,

	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	if deviceID == 0 {
		return fmt.Errorf("device ID is required (-d or --device)")
	}

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout*8)
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer svc.Stop()

	details, err := svc.DeviceInfo(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("device info: %w", err)
	}

	switch outputFmt {
	case "json":
		fmt.Printf(`{"device_id": %d, "name": %s, "vendor": %s, "vendor_id": %d, "model": %s, "firmware": %s, "application": %s, "description": %s, "location": %s}`+"\n",
			deviceID,
			jsonString(details.ObjectName),
			jsonString(details.VendorName),
			details.VendorID,
			jsonString(details.ModelName),
			jsonString(details.FirmwareRevision),
			jsonString(details.ApplicationVersion),
			jsonString(details.Description),
			jsonString(details.Location),
		)
	default:
		printKeyValue(map[string]string{
			"Device ID":   fmt.Sprintf("%d", deviceID),
			"Name":        details.ObjectName,
			"Vendor":      details.VendorName,
			"Vendor ID":   fmt.Sprintf("%d", details.VendorID),
			"Model":       details.ModelName,
			"Firmware":    details.FirmwareRevision,
			"Application": details.ApplicationVersion,
			"Description": details.Description,
			"Location":    details.Location,
		}, []string{"Device ID", "Name", "Vendor", "Vendor ID", "Model", "Firmware", "Application", "Description", "Location"})
	}
	return nil
}
