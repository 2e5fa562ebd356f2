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
	"time"

	"github.com/spf13/cobra"

	"github.com/KB-perByte/gobacnet/service"
)

var (
	trendObject string
	trendSince  time.Duration
	trendCount  uint32
)

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Read a device's trend log",
	Long: `Trend reads buffered samples for one point from a device's trend log.

Examples:
  # Read all buffered samples for analog input 1
  gobacnet trend -d 100 -O analog-input:1

  # Samples from the last hour, at most 50
  gobacnet trend -d 100 -O ai:1 --since 1h --count 50`,

	RunE: runTrend,
}

func init() {
	trendCmd.Flags().StringVarP(&trendObject, "object", "O", "", "Object whose samples to read (e.g. analog-input:1)")
	trendCmd.Flags().DurationVar(&trendSince, "since", 0, "Only samples newer than this age (0 = all)")
	trendCmd.Flags().Uint32Var(&trendCount, "count", 0, "Maximum number of samples (0 = all)")

	trendCmd.MarkFlagRequired("object")
}

func runTrend(cmd *cobra.Command, args []string) error {
	if deviceID == 0 {
		return fmt.Errorf("device ID is required (-d or --device)")
	}

	objectID, err := service.ParseObject(trendObject)
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
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

	var start *time.Time
	if trendSince > 0 {
		t := time.Now().Add(-trendSince)
		start = &t
	}

	samples, err := svc.TrendLog(ctx, deviceID, objectID, start, trendCount)
	if err != nil {
		return fmt.Errorf("trend log: %w", err)
	}

	if len(samples) == 0 {
		fmt.Println("No samples")
		return nil
	}

	headers := []string{"TIMESTAMP", "VALUE", "IN ALARM"}
	rows := make([][]string, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, []string{
			sample.Timestamp.Format(time.RFC3339),
			sample.Value,
			fmt.Sprintf("%v", sample.InAlarm),
		})
	}

	switch outputFmt {
	case "csv":
		printCSV(headers, rows)
	default:
		printTable(headers, rows)
		fmt.Printf("\n%d sample(s)\n", len(samples))
	}
	return nil
}
