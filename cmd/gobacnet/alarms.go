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
	"strings"

	"github.com/spf13/cobra"

	"github.com/KB-perByte/gobacnet/bacnet"
	"github.com/KB-perByte/gobacnet/service"
)

var (
	alarmsAck    string
	alarmsSource string
)

var alarmsCmd = &cobra.Command{
	Use:   "alarms",
	Short: "List or acknowledge a device's alarms",
	Long: `Alarms queries a device's alarm summary, or acknowledges one alarm.

Examples:
  # List active alarms
  gobacnet alarms -d 100

  # Acknowledge the high-limit alarm on analog input 1
  gobacnet alarms -d 100 --ack analog-input:1:high-limit --source operator`,

	RunE: runAlarms,
}

func init() {
	alarmsCmd.Flags().StringVar(&alarmsAck, "ack", "", "Acknowledge an alarm: object:event-state (e.g. ai:1:high-limit)")
	alarmsCmd.Flags().StringVar(&alarmsSource, "source", "gobacnet", "Acknowledgment source label")
}

func runAlarms(cmd *cobra.Command, args []string) error {
	if deviceID == 0 {
		return fmt.Errorf("device ID is required (-d or --device)")
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

	if alarmsAck != "" {
		return acknowledgeAlarm(ctx, svc)
	}

	alarms, err := svc.AlarmSummary(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("alarm summary: %w", err)
	}

	if len(alarms) == 0 {
		fmt.Println("No active alarms")
		return nil
	}

	headers := []string{"OBJECT", "STATE", "ACKNOWLEDGED"}
	rows := make([][]string, 0, len(alarms))
	for _, alarm := range alarms {
		rows = append(rows, []string{
			alarm.Object.String(),
			alarm.State,
			fmt.Sprintf("%v", alarm.Acknowledged),
		})
	}

	switch outputFmt {
	case "csv":
		printCSV(headers, rows)
	default:
		printTable(headers, rows)
		fmt.Printf("\n%d alarm(s)\n", len(alarms))
	}
	return nil
}

func acknowledgeAlarm(ctx context.Context, svc *service.Service) error {
	// Format: type:instance:event-state
	idx := strings.LastIndex(alarmsAck, ":")
	if idx < 0 {
		return fmt.Errorf("expected format object:event-state (e.g. ai:1:high-limit)")
	}

	objectID, err := service.ParseObject(alarmsAck[:idx])
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}
	state, ok := parseEventState(alarmsAck[idx+1:])
	if !ok {
		return fmt.Errorf("unknown event state: %s", alarmsAck[idx+1:])
	}

	if err := svc.AcknowledgeAlarm(ctx, deviceID, objectID, state, alarmsSource); err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	fmt.Printf("Acknowledged %s (%s) on device %d\n", objectID.String(), state.String(), deviceID)
	return nil
}

func parseEventState(s string) (bacnet.EventState, bool) {
	switch strings.ToLower(s) {
	case "normal":
		return bacnet.EventStateNormal, true
	case "fault":
		return bacnet.EventStateFault, true
	case "offnormal", "off-normal":
		return bacnet.EventStateOffNormal, true
	case "high-limit", "highlimit":
		return bacnet.EventStateHighLimit, true
	case "low-limit", "lowlimit":
		return bacnet.EventStateLowLimit, true
	}
	return 0, false
}
