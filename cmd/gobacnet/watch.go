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
	"time"

	"github.com/spf13/cobra"

	"github.com/KB-perByte/gobacnet/bacnet"
	"github.com/KB-perByte/gobacnet/service"
)

var (
	watchObject   string
	watchProperty string
	watchInterval time.Duration
	watchCOV      bool
	watchLifetime time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a property for changes",
	Long: `Watch monitors a BACnet property for changes.

Two modes are available:
  - Polling: periodically reads the property value
  - COV: subscribes to Change of Value notifications

Examples:
  # Poll present value every second
  gobacnet watch -d 100 -O analog-input:1 --interval 1s

  # Subscribe to COV notifications
  gobacnet watch -d 100 -O analog-input:1 --cov

  # COV with a custom lifetime
  gobacnet watch -d 100 -O analog-input:1 --cov --lifetime 5m`,

	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchObject, "object", "O", "", "Object type and instance (e.g. analog-input:1)")
	watchCmd.Flags().StringVarP(&watchProperty, "property", "P", "present-value", "Property identifier (polling mode)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "Polling interval")
	watchCmd.Flags().BoolVar(&watchCOV, "cov", false, "Use a COV subscription instead of polling")
	watchCmd.Flags().DurationVar(&watchLifetime, "lifetime", 5*time.Minute, "COV subscription lifetime (0 = until cancelled)")

	watchCmd.MarkFlagRequired("object")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if deviceID == 0 {
		return fmt.Errorf("device ID is required (-d or --device)")
	}

	objectID, err := service.ParseObject(watchObject)
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}
	propID, err := service.ParseProperty(watchProperty)
	if err != nil {
		return fmt.Errorf("invalid property: %w", err)
	}

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer svc.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nStopping watch...")
		cancel()
	}()

	fmt.Printf("Watching %s.%s on device %d\n", objectID.String(), propID.String(), deviceID)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	if watchCOV {
		return runCOVWatch(ctx, svc, objectID)
	}
	return runPollingWatch(ctx, svc, objectID, propID)
}

func runPollingWatch(ctx context.Context, svc *service.Service, objectID bacnet.ObjectIdentifier, propID bacnet.PropertyIdentifier) error {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	reading, err := svc.ReadProperty(ctx, deviceID, objectID, propID)
	if err != nil {
		return fmt.Errorf("initial read: %w", err)
	}
	printWatchValue(time.Now(), objectID, propID, reading.Value, true)
	lastValue := reading.Value

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			readCtx, readCancel := context.WithTimeout(ctx, timeout)
			reading, err := svc.ReadProperty(readCtx, deviceID, objectID, propID)
			readCancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "[%s] Error: %v\n", time.Now().Format("15:04:05.000"), err)
				continue
			}

			changed := !lastValue.Equal(reading.Value)
			if changed || verbose {
				printWatchValue(time.Now(), objectID, propID, reading.Value, changed)
				lastValue = reading.Value
			}
		}
	}
}

func runCOVWatch(ctx context.Context, svc *service.Service, objectID bacnet.ObjectIdentifier) error {
	listener := func(obj bacnet.ObjectIdentifier, values []bacnet.PropertyValue) {
		for _, pv := range values {
			if pv.Property == bacnet.PropertyPresentValue {
				printWatchValue(time.Now(), obj, pv.Property, pv.Value, true)
			}
		}
	}

	subID, err := svc.Subscribe(ctx, deviceID, objectID, listener,
		bacnet.WithLifetime(watchLifetime))
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Subscribed (id %s)\n", subID)

	<-ctx.Done()

	unsubCtx, unsubCancel := context.WithTimeout(context.Background(), timeout)
	defer unsubCancel()
	if err := svc.Unsubscribe(unsubCtx, subID); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to unsubscribe: %v\n", err)
	}
	return nil
}

func printWatchValue(t time.Time, objectID bacnet.ObjectIdentifier, propID bacnet.PropertyIdentifier, value bacnet.Value, changed bool) {
	switch outputFmt {
	case "json":
		fmt.Printf(`{"time": %s, "object": %s, "property": %s, "value": %s, "changed": %v}`+"\n",
			jsonString(t.Format(time.RFC3339Nano)),
			jsonString(objectID.String()),
			jsonString(propID.String()),
			jsonString(value.String()),
			changed,
		)
	case "csv":
		fmt.Printf("%s,%s,%s,%s,%v\n",
			t.Format(time.RFC3339Nano), objectID.String(), propID.String(), value.String(), changed)
	default:
		marker := " "
		if changed {
			marker = "*"
		}
		fmt.Printf("[%s] %s %s.%s = %s\n",
			t.Format("15:04:05.000"), marker, objectID.String(), propID.String(), value.String())
	}
}
