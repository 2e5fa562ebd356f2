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

package simulator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KB-perByte/gobacnet/bacnet"
)

// Duration parses YAML values in time.ParseDuration form ("5s", "2m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config defines a simulated device.
type Config struct {
	DeviceID   uint32 `yaml:"device_id"`
	Name       string `yaml:"name"`
	VendorName string `yaml:"vendor_name"`
	VendorID   uint32 `yaml:"vendor_id"`
	ModelName  string `yaml:"model_name"`
	Firmware   string `yaml:"firmware"`
	AppVersion string `yaml:"app_version"`

	Description string `yaml:"description"`
	Location    string `yaml:"location"`

	// ListenAddress is host:port; port 0 binds ephemerally for tests.
	ListenAddress string `yaml:"listen_address"`

	Drift DriftConfig `yaml:"drift"`

	TrendCapacity int      `yaml:"trend_capacity"`
	TrendInterval Duration `yaml:"trend_interval"`
	AlarmHistory  int      `yaml:"alarm_history"`

	Objects []ObjectConfig `yaml:"objects"`
}

// DriftConfig controls the background value generator.
type DriftConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	// Jitter is the half-width of the random step applied to drifting
	// analog points each interval.
	Jitter float64 `yaml:"jitter"`
}

// ObjectConfig defines one point.
type ObjectConfig struct {
	Type     string `yaml:"type"`
	Instance uint32 `yaml:"instance"`
	Name     string `yaml:"name"`

	Description string `yaml:"description"`

	// Value is the initial present value: analog level, binary 0/1, or
	// multi-state state number.
	Value float64 `yaml:"value"`
	Units string  `yaml:"units"`

	LowLimit     *float32 `yaml:"low_limit"`
	HighLimit    *float32 `yaml:"high_limit"`
	COVIncrement float32  `yaml:"cov_increment"`

	// States is the state count for multi-state objects.
	States uint32 `yaml:"states"`

	// Drift marks analog inputs the generator walks around their initial
	// value. Trend marks points sampled into the trend log store.
	Drift bool `yaml:"drift"`
	Trend bool `yaml:"trend"`
}

// LoadConfig reads a YAML device definition.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the definition for holes that would only surface at
// request time.
func (c *Config) Validate() error {
	if c.DeviceID > bacnet.MaxInstance {
		return fmt.Errorf("device_id %d exceeds %d", c.DeviceID, bacnet.MaxInstance)
	}
	if c.Name == "" {
		return fmt.Errorf("device name is required")
	}
	seen := make(map[string]bool)
	for i, obj := range c.Objects {
		t, ok := bacnet.ParseObjectType(obj.Type)
		if !ok {
			return fmt.Errorf("objects[%d]: unknown type %q", i, obj.Type)
		}
		if obj.Name == "" {
			return fmt.Errorf("objects[%d]: name is required", i)
		}
		if obj.Units != "" {
			if _, ok := bacnet.ParseEngineeringUnits(obj.Units); !ok {
				return fmt.Errorf("objects[%d]: unknown units %q", i, obj.Units)
			}
		}
		if t == bacnet.ObjectTypeMultiStateValue && obj.States < 2 {
			return fmt.Errorf("objects[%d]: multi-state needs at least 2 states", i)
		}
		key := fmt.Sprintf("%s:%d", obj.Type, obj.Instance)
		if seen[key] {
			return fmt.Errorf("objects[%d]: duplicate %s", i, key)
		}
		seen[key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = fmt.Sprintf(":%d", bacnet.DefaultPort)
	}
	if c.Drift.Interval == 0 {
		c.Drift.Interval = Duration(5 * time.Second)
	}
	if c.Drift.Jitter == 0 {
		c.Drift.Jitter = 0.1
	}
	if c.TrendCapacity == 0 {
		c.TrendCapacity = bacnet.DefaultTrendCapacity
	}
	if c.TrendInterval == 0 {
		c.TrendInterval = c.Drift.Interval
	}
	if c.VendorName == "" {
		c.VendorName = "KB Controls"
	}
	if c.VendorID == 0 {
		c.VendorID = 999
	}
}

// DefaultHVACConfig is a rooftop air handler profile: temperature and flow
// sensors, damper and valve outputs, setpoints, status points, and system
// mode.
func DefaultHVACConfig() *Config {
	limit := func(v float32) *float32 { return &v }
	return &Config{
		DeviceID:    100,
		Name:        "HVAC Unit 1",
		VendorName:  "KB Controls",
		VendorID:    999,
		ModelName:   "AHU-SIM-1",
		Firmware:    "1.0.0",
		AppVersion:  "1.0.0",
		Description: "Simulated rooftop air handling unit",
		Location:    "Roof / Zone 1",
		Drift: DriftConfig{
			Enabled:  true,
			Interval: Duration(5 * time.Second),
			Jitter:   0.1,
		},
		Objects: []ObjectConfig{
			{Type: "ai", Instance: 1, Name: "Zone Temperature", Value: 72.0,
				Units: "degrees-fahrenheit", Description: "Zone air temperature sensor",
				LowLimit: limit(65), HighLimit: limit(80), COVIncrement: 0.5,
				Drift: true, Trend: true},
			{Type: "ai", Instance: 2, Name: "Outside Air Temperature", Value: 85.0,
				Units: "degrees-fahrenheit", Description: "Outside air temperature sensor",
				Drift: true, Trend: true},
			{Type: "ai", Instance: 3, Name: "Supply Air Flow", Value: 1200.0,
				Units: "cubic-feet-per-minute", Description: "Supply air flow measurement",
				Drift: true},
			{Type: "ai", Instance: 4, Name: "Return Air Temperature", Value: 75.0,
				Units: "degrees-fahrenheit", Description: "Return air temperature"},
			{Type: "ao", Instance: 1, Name: "Damper Position", Value: 50.0,
				Units: "percent", Description: "Outside air damper position"},
			{Type: "ao", Instance: 2, Name: "Chilled Water Valve", Value: 25.0,
				Units: "percent", Description: "Chilled water valve position"},
			{Type: "ao", Instance: 3, Name: "Hot Water Valve", Value: 0.0,
				Units: "percent", Description: "Hot water valve position"},
			{Type: "av", Instance: 1, Name: "Zone Temperature Setpoint", Value: 72.0,
				Units: "degrees-fahrenheit", Description: "Zone temperature setpoint"},
			{Type: "av", Instance: 2, Name: "Supply Air Flow Setpoint", Value: 1200.0,
				Units: "cubic-feet-per-minute", Description: "Supply air flow setpoint"},
			{Type: "bi", Instance: 1, Name: "Occupancy Sensor", Value: 1,
				Description: "Zone occupancy sensor"},
			{Type: "bi", Instance: 2, Name: "Filter Status", Value: 0,
				Description: "Filter maintenance indicator"},
			{Type: "bi", Instance: 3, Name: "High Temperature Alarm", Value: 0,
				Description: "High temperature alarm"},
			{Type: "bo", Instance: 1, Name: "Fan Command", Value: 1,
				Description: "Supply fan start/stop command"},
			{Type: "bo", Instance: 2, Name: "Heating Command", Value: 0,
				Description: "Heating enable command"},
			{Type: "bo", Instance: 3, Name: "Cooling Command", Value: 1,
				Description: "Cooling enable command"},
			{Type: "msv", Instance: 1, Name: "System Mode", Value: 4, States: 5,
				Description: "HVAC system operating mode"},
			{Type: "msv", Instance: 2, Name: "Fan Mode", Value: 2, States: 3,
				Description: "Fan operating mode"},
		},
	}
}

// buildDevice materializes the object model from the definition.
func buildDevice(cfg *Config) (*bacnet.Device, error) {
	dev := bacnet.NewDevice(cfg.DeviceID, cfg.Name)
	dev.SetIdentity(cfg.VendorName, cfg.VendorID, cfg.ModelName, cfg.Firmware, cfg.AppVersion)
	dev.SetLocation(cfg.Description, cfg.Location)

	for _, oc := range cfg.Objects {
		t, _ := bacnet.ParseObjectType(oc.Type)
		units := bacnet.UnitsNoUnits
		if oc.Units != "" {
			units, _ = bacnet.ParseEngineeringUnits(oc.Units)
		}

		var obj *bacnet.Object
		switch t {
		case bacnet.ObjectTypeAnalogInput:
			obj = bacnet.NewAnalogInput(oc.Instance, oc.Name, float32(oc.Value), units)
		case bacnet.ObjectTypeAnalogOutput:
			obj = bacnet.NewAnalogOutput(oc.Instance, oc.Name, float32(oc.Value), units)
		case bacnet.ObjectTypeAnalogValue:
			obj = bacnet.NewAnalogValue(oc.Instance, oc.Name, float32(oc.Value), units)
		case bacnet.ObjectTypeBinaryInput:
			obj = bacnet.NewBinaryInput(oc.Instance, oc.Name, oc.Value != 0)
		case bacnet.ObjectTypeBinaryOutput:
			obj = bacnet.NewBinaryOutput(oc.Instance, oc.Name, oc.Value != 0)
		case bacnet.ObjectTypeBinaryValue:
			obj = bacnet.NewBinaryValue(oc.Instance, oc.Name, oc.Value != 0)
		case bacnet.ObjectTypeMultiStateValue:
			obj = bacnet.NewMultiStateValue(oc.Instance, oc.Name, oc.States, uint32(oc.Value))
		default:
			return nil, fmt.Errorf("unsupported object type %q", oc.Type)
		}

		obj.WithDescription(oc.Description)
		if oc.LowLimit != nil && oc.HighLimit != nil {
			obj.WithLimits(*oc.LowLimit, *oc.HighLimit)
		}
		if oc.COVIncrement > 0 {
			obj.WithCOVIncrement(oc.COVIncrement)
		}
		dev.AddObject(obj)
	}
	return dev, nil
}
