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

	"github.com/KB-perByte/gobacnet/bacnet"
	"github.com/KB-perByte/gobacnet/service"
)

var (
	readObject     string
	readProperty   string
	readArrayIndex int
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read a property from a BACnet object",
	Long: `Read retrieves property values from BACnet objects.

Object types can be specified by name, short name, or number:
  analog-input, ai, 0
  analog-output, ao, 1
  analog-value, av, 2
  binary-input, bi, 3
  binary-output, bo, 4
  binary-value, bv, 5
  device, dev, 8
  multi-state-value, msv, 19

Examples:
  # Read present value from analog input 1
  gobacnet read -d 100 -O analog-input:1 -P present-value

  # Read using short names
  gobacnet read -d 100 -O ai:1 -P pv

  # Read one object-list element
  gobacnet read -d 100 -O device:100 -P object-list --index 1`,

	RunE: runRead,
}

func init() {
	readCmd.Flags().StringVarP(&readObject, "object", "O", "", "Object type and instance (e.g. analog-input:1 or ai:1)")
	readCmd.Flags().StringVarP(&readProperty, "property", "P", "present-value", "Property identifier")
	readCmd.Flags().IntVar(&readArrayIndex, "index", -1, "Array index (-1 for no index)")

	readCmd.MarkFlagRequired("object")
}

func runRead(cmd *cobra.Command, args []string) error {
	if deviceID == 0 {
		return fmt.Errorf("device ID is required (-d or --device)")
	}

	objectID, err := service.ParseObject(readObject)
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}
	propID, err := service.ParseProperty(readProperty)
	if err != nil {
		return fmt.Errorf("invalid property: %w", err)
	}

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout*4)
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer svc.Stop()

	var readOpts []bacnet.ReadOption
	if readArrayIndex >= 0 {
		readOpts = append(readOpts, bacnet.WithArrayIndex(uint32(readArrayIndex)))
	}

	reading, err := svc.ReadProperty(ctx, deviceID, objectID, propID, readOpts...)
	if err != nil {
		return fmt.Errorf("read property: %w", err)
	}

	switch outputFmt {
	case "json":
		fmt.Printf(`{"object": %s, "property": %s, "value": %s}`+"\n",
			jsonString(objectID.String()), jsonString(propID.String()), jsonString(reading.Value.String()))
	case "csv":
		fmt.Printf("%s,%s,%s\n", objectID.String(), propID.String(), reading.Value.String())
	case "raw":
		fmt.Println(reading.Value.String())
	default:
		printKeyValue(map[string]string{
			"Object":   objectID.String(),
			"Property": propID.String(),
			"Value":    reading.Value.String(),
		}, []string{"Object", "Property", "Value"})
	}
	return nil
}
