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

// Package service is the high-level facade over the BACnet client and
// simulator: one Service owns a connected client, optional hosted
// simulators, and exposes typed operations for callers that do not want
// to deal with wire-level values.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KB-perByte/gobacnet/bacnet"
	"github.com/KB-perByte/gobacnet/simulator"
)

// Service bundles a BACnet client with hosted simulators.
type Service struct {
	client *bacnet.Client
	logger *slog.Logger

	simMu sync.Mutex
	sims  map[uint32]*simulator.Simulator
}

// New builds a Service around a fresh client. The client is not connected
// until Start.
func New(opts ...bacnet.Option) (*Service, error) {
	client, err := bacnet.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &Service{
		client: client,
		logger: slog.Default(),
		sims:   make(map[uint32]*simulator.Simulator),
	}, nil
}

// SetLogger replaces the structured logger.
func (s *Service) SetLogger(logger *slog.Logger) { s.logger = logger }

// Client exposes the underlying client for callers that need wire-level
// access.
func (s *Service) Client() *bacnet.Client { return s.client }

// Start connects the client.
func (s *Service) Start(ctx context.Context) error {
	return s.client.Connect(ctx)
}

// Stop closes the client and every hosted simulator.
func (s *Service) Stop() error {
	s.simMu.Lock()
	for id, sim := range s.sims {
		if err := sim.Stop(); err != nil {
			s.logger.Warn("simulator stop failed",
				slog.Uint64("device_id", uint64(id)),
				slog.String("error", err.Error()),
			)
		}
		delete(s.sims, id)
	}
	s.simMu.Unlock()
	return s.client.Close()
}

// Device is one discovered device.
type Device struct {
	ID           uint32
	Address      string
	VendorID     uint32
	MaxAPDU      uint32
	Segmentation string
	LastSeen     time.Time
}

// Discover broadcasts Who-Is and collects responders until the timeout.
func (s *Service) Discover(ctx context.Context, opts ...bacnet.DiscoverOption) ([]Device, error) {
	infos, err := s.client.WhoIs(ctx, opts...)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:           info.Instance(),
			Address:      info.Address.String(),
			VendorID:     info.VendorID,
			MaxAPDU:      info.MaxAPDULength,
			Segmentation: info.Segmentation.String(),
			LastSeen:     info.LastSeen,
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// PropertyReading is one property value read from a device.
type PropertyReading struct {
	DeviceID uint32
	Object   bacnet.ObjectIdentifier
	Property bacnet.PropertyIdentifier
	Value    bacnet.Value
}

// ReadProperty reads a single property value.
func (s *Service) ReadProperty(ctx context.Context, deviceID uint32, object bacnet.ObjectIdentifier, property bacnet.PropertyIdentifier, opts ...bacnet.ReadOption) (*PropertyReading, error) {
	value, err := s.client.ReadProperty(ctx, deviceID, object, property, opts...)
	if err != nil {
		return nil, err
	}
	return &PropertyReading{
		DeviceID: deviceID,
		Object:   object,
		Property: property,
		Value:    value,
	}, nil
}

// WriteProperty writes a property value.
func (s *Service) WriteProperty(ctx context.Context, deviceID uint32, object bacnet.ObjectIdentifier, property bacnet.PropertyIdentifier, value bacnet.Value, opts ...bacnet.WriteOption) error {
	return s.client.WriteProperty(ctx, deviceID, object, property, value, opts...)
}

// Relinquish releases a command slot on a commandable object.
func (s *Service) Relinquish(ctx context.Context, deviceID uint32, object bacnet.ObjectIdentifier, priority uint8) error {
	return s.client.RelinquishProperty(ctx, deviceID, object, priority)
}

// ListObjects reads the device's object list.
func (s *Service) ListObjects(ctx context.Context, deviceID uint32) ([]bacnet.ObjectIdentifier, error) {
	return s.client.ObjectList(ctx, deviceID)
}

// DeviceInfo reads identification properties from the remote device object.
func (s *Service) DeviceInfo(ctx context.Context, deviceID uint32) (*bacnet.DeviceDetails, error) {
	return s.client.DeviceInfo(ctx, deviceID)
}

// Subscribe registers a COV subscription and returns its handle.
func (s *Service) Subscribe(ctx context.Context, deviceID uint32, object bacnet.ObjectIdentifier, listener bacnet.COVListener, opts ...bacnet.SubscribeOption) (uuid.UUID, error) {
	sub, err := s.client.Subscriptions().Subscribe(ctx, deviceID, object, listener, opts...)
	if err != nil {
		return uuid.Nil, err
	}
	return sub.ID, nil
}

// Renew extends a COV subscription's lifetime.
func (s *Service) Renew(ctx context.Context, id uuid.UUID) error {
	return s.client.Subscriptions().Renew(ctx, id)
}

// Unsubscribe cancels a COV subscription.
func (s *Service) Unsubscribe(ctx context.Context, id uuid.UUID) error {
	return s.client.Subscriptions().Unsubscribe(ctx, id)
}

// TrendSample is one trend log record flattened for display.
type TrendSample struct {
	Timestamp time.Time
	Value     string
	InAlarm   bool
}

// TrendLog reads a device's trend buffer for one object.
func (s *Service) TrendLog(ctx context.Context, deviceID uint32, object bacnet.ObjectIdentifier, start *time.Time, count uint32) ([]TrendSample, error) {
	records, err := s.client.ReadTrendLog(ctx, deviceID, object, start, count)
	if err != nil {
		return nil, err
	}
	samples := make([]TrendSample, 0, len(records))
	for _, rec := range records {
		samples = append(samples, TrendSample{
			Timestamp: rec.Timestamp,
			Value:     rec.Value.String(),
			InAlarm:   rec.Status.InAlarm,
		})
	}
	return samples, nil
}

// Alarm is one entry from a device's alarm summary.
type Alarm struct {
	Object       bacnet.ObjectIdentifier
	State        string
	Acknowledged bool
}

// AlarmSummary queries a device's active alarms.
func (s *Service) AlarmSummary(ctx context.Context, deviceID uint32) ([]Alarm, error) {
	items, err := s.client.AlarmSummary(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	alarms := make([]Alarm, 0, len(items))
	for _, item := range items {
		alarms = append(alarms, Alarm{
			Object:       item.Object,
			State:        item.EventState.String(),
			Acknowledged: item.AcknowledgedSet,
		})
	}
	return alarms, nil
}

// AcknowledgeAlarm acknowledges an alarm on a remote device.
func (s *Service) AcknowledgeAlarm(ctx context.Context, deviceID uint32, object bacnet.ObjectIdentifier, state bacnet.EventState, source string) error {
	return s.client.AcknowledgeAlarm(ctx, deviceID, object, state, source)
}

// StartSimulator hosts a virtual device inside this process.
func (s *Service) StartSimulator(ctx context.Context, cfg *simulator.Config, opts ...simulator.Option) (*simulator.Simulator, error) {
	sim, err := simulator.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("create simulator: %w", err)
	}

	s.simMu.Lock()
	if _, exists := s.sims[cfg.DeviceID]; exists {
		s.simMu.Unlock()
		return nil, fmt.Errorf("simulator for device %d already running", cfg.DeviceID)
	}
	s.sims[cfg.DeviceID] = sim
	s.simMu.Unlock()

	if err := sim.Start(ctx); err != nil {
		s.simMu.Lock()
		delete(s.sims, cfg.DeviceID)
		s.simMu.Unlock()
		return nil, fmt.Errorf("start simulator: %w", err)
	}
	return sim, nil
}

// StopSimulator stops a hosted simulator by device instance.
func (s *Service) StopSimulator(deviceID uint32) error {
	s.simMu.Lock()
	sim, ok := s.sims[deviceID]
	delete(s.sims, deviceID)
	s.simMu.Unlock()
	if !ok {
		return fmt.Errorf("no simulator for device %d", deviceID)
	}
	return sim.Stop()
}

// Simulators lists the device instances of hosted simulators.
func (s *Service) Simulators() []uint32 {
	s.simMu.Lock()
	defer s.simMu.Unlock()
	ids := make([]uint32, 0, len(s.sims))
	for id := range s.sims {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ParseObject parses "type:instance" strings like "analog-input:1" or
// "ai:1" or "0:1".
func ParseObject(s string) (bacnet.ObjectIdentifier, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return bacnet.ObjectIdentifier{}, fmt.Errorf("expected format type:instance (e.g. analog-input:1)")
	}

	instance, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return bacnet.ObjectIdentifier{}, fmt.Errorf("invalid instance number: %s", parts[1])
	}

	if typeNum, err := strconv.ParseUint(parts[0], 10, 16); err == nil {
		return bacnet.NewObjectIdentifier(bacnet.ObjectType(typeNum), uint32(instance)), nil
	}
	objType, ok := bacnet.ParseObjectType(strings.ToLower(parts[0]))
	if !ok {
		return bacnet.ObjectIdentifier{}, fmt.Errorf("unknown object type: %s", parts[0])
	}
	return bacnet.NewObjectIdentifier(objType, uint32(instance)), nil
}

// ParseProperty parses a property name or number.
func ParseProperty(s string) (bacnet.PropertyIdentifier, error) {
	if propNum, err := strconv.ParseUint(s, 10, 32); err == nil {
		return bacnet.PropertyIdentifier(propNum), nil
	}
	prop, ok := bacnet.ParsePropertyIdentifier(strings.ToLower(s))
	if !ok {
		return 0, fmt.Errorf("unknown property: %s", s)
	}
	return prop, nil
}

// ParseValue interprets a CLI string as the wire value an object of the
// given type expects for its present value.
func ParseValue(objType bacnet.ObjectType, s string) (bacnet.Value, error) {
	if strings.EqualFold(s, "null") {
		return bacnet.Null(), nil
	}

	switch objType {
	case bacnet.ObjectTypeBinaryInput, bacnet.ObjectTypeBinaryOutput, bacnet.ObjectTypeBinaryValue:
		switch strings.ToLower(s) {
		case "active", "on", "true", "1":
			return bacnet.Enumerated(1), nil
		case "inactive", "off", "false", "0":
			return bacnet.Enumerated(0), nil
		}
		return bacnet.Value{}, fmt.Errorf("invalid binary value: %s", s)
	case bacnet.ObjectTypeMultiStateInput, bacnet.ObjectTypeMultiStateOutput, bacnet.ObjectTypeMultiStateValue:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return bacnet.Value{}, fmt.Errorf("invalid multi-state value: %s", s)
		}
		return bacnet.Unsigned(uint32(n)), nil
	default:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return bacnet.Value{}, fmt.Errorf("invalid numeric value: %s", s)
		}
		return bacnet.Real(float32(f)), nil
	}
}
