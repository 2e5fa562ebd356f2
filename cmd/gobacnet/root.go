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
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/KB-perByte/gobacnet/bacnet"
	"github.com/KB-perByte/gobacnet/service"
)

var (
	cfgFile       string
	deviceID      uint32
	timeout       time.Duration
	retries       int
	outputFmt     string
	verbose       bool
	localAddress  string
	broadcastAddr string
	bbmdAddress   string
	bbmdPort      int
	bbmdTTL       time.Duration

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gobacnet",
	Short: "A BACnet/IP device communication CLI",
	Long: `gobacnet talks to BACnet/IP devices: discovery, property read/write,
COV subscriptions, trend logs, and alarm summaries. It can also host a
simulated device for testing.

Examples:
  # Discover devices on the network
  gobacnet scan

  # Read a property from a device
  gobacnet read -d 100 -O analog-input:1 -P present-value

  # Write at command priority 8
  gobacnet write -d 100 -O analog-output:1 -V 75.5 --priority 8

  # Watch for value changes via COV
  gobacnet watch -d 100 -O analog-input:1 --cov

  # Run a simulated HVAC device
  gobacnet simulate`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gobacnet.yaml)")
	rootCmd.PersistentFlags().Uint32VarP(&deviceID, "device", "d", 0, "Target device instance ID")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "Request timeout")
	rootCmd.PersistentFlags().IntVar(&retries, "retries", 1, "Number of retries after the first attempt")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format (table, json, csv, raw)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&localAddress, "local", "", "Local address to bind to (e.g. 0.0.0.0:47808)")
	rootCmd.PersistentFlags().StringVar(&broadcastAddr, "broadcast", "", "Broadcast address override (e.g. 127.0.0.1:47808)")
	rootCmd.PersistentFlags().StringVar(&bbmdAddress, "bbmd", "", "BBMD address for foreign device registration")
	rootCmd.PersistentFlags().IntVar(&bbmdPort, "bbmd-port", bacnet.DefaultPort, "BBMD port")
	rootCmd.PersistentFlags().DurationVar(&bbmdTTL, "bbmd-ttl", 60*time.Second, "BBMD registration TTL")

	viper.BindPFlag("device", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("retries", rootCmd.PersistentFlags().Lookup("retries"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("local", rootCmd.PersistentFlags().Lookup("local"))
	viper.BindPFlag("broadcast", rootCmd.PersistentFlags().Lookup("broadcast"))
	viper.BindPFlag("bbmd", rootCmd.PersistentFlags().Lookup("bbmd"))
	viper.BindPFlag("bbmd-port", rootCmd.PersistentFlags().Lookup("bbmd-port"))
	viper.BindPFlag("bbmd-ttl", rootCmd.PersistentFlags().Lookup("bbmd-ttl"))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(objectsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(trendCmd)
	rootCmd.AddCommand(alarmsCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".gobacnet")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BACNET")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// createService builds the facade with the current flag configuration.
func createService() (*service.Service, error) {
	opts := []bacnet.Option{
		bacnet.WithTimeout(timeout),
		bacnet.WithRetries(retries),
		bacnet.WithLogger(logger),
	}

	if localAddress != "" {
		opts = append(opts, bacnet.WithLocalAddress(localAddress))
	}
	if broadcastAddr != "" {
		opts = append(opts, bacnet.WithBroadcastAddress(broadcastAddr))
	}
	if bbmdAddress != "" {
		opts = append(opts, bacnet.WithBBMD(bbmdAddress, bbmdPort, bbmdTTL))
	}

	svc, err := service.New(opts...)
	if err != nil {
		return nil, err
	}
	svc.SetLogger(logger)
	return svc, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gobacnet version 1.0.0")
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
