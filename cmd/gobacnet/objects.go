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
)

var objectsNames bool

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "List the objects a device exposes",
	Long: `Objects reads the device's object list.

Examples:
  # List object identifiers
  gobacnet objects -d 100

  # Also read each object's name
  gobacnet objects -d 100 --names`,

	RunE: runObjects,
}

func init() {
	objectsCmd.Flags().BoolVar(&objectsNames, "names", false, "Read each object's name as well")
}

func runObjects(cmd *cobra.Command, args []string) error {
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

	objects, err := svc.ListObjects(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("object list: %w", err)
	}

	headers := []string{"OBJECT", "TYPE", "INSTANCE"}
	if objectsNames {
		headers = append(headers, "NAME")
	}

	rows := make([][]string, 0, len(objects))
	for _, obj := range objects {
		row := []string{
			obj.String(),
			obj.Type.String(),
			fmt.Sprintf("%d", obj.Instance),
		}
		if objectsNames {
			name := ""
			if reading, err := svc.ReadProperty(ctx, deviceID, obj, bacnet.PropertyObjectName); err == nil {
				name = reading.Value.String()
			}
			row = append(row, name)
		}
		rows = append(rows, row)
	}

	switch outputFmt {
	case "csv":
		printCSV(headers, rows)
	default:
		printTable(headers, rows)
		fmt.Printf("\n%d object(s)\n", len(objects))
	}
	return nil
}
