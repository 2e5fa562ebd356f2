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

// Package simulator runs a virtual BACnet/IP device: it answers discovery,
// property access, COV subscriptions, trend log reads, and alarm queries,
// and optionally drifts its sensor values in the background.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KB-perByte/gobacnet/bacnet"
	"github.com/KB-perByte/gobacnet/internal/transport"
)

// Archiver receives every trend sample the simulator records, for durable
// storage beyond the in-memory ring.
type Archiver interface {
	ArchiveSample(deviceID uint32, object bacnet.ObjectIdentifier, rec bacnet.LogRecord) error
}

// Metrics counts server-side activity.
type Metrics struct {
	RequestsHandled   bacnet.Counter
	WhoIsReceived     bacnet.Counter
	IAmSent           bacnet.Counter
	ErrorsReturned    bacnet.Counter
	RejectsReturned   bacnet.Counter
	NotificationsSent bacnet.Counter
	SamplesRecorded   bacnet.Counter
}

type subKey struct {
	addr      string
	object    bacnet.ObjectIdentifier
	processID uint32
}

type covSub struct {
	addr      *net.UDPAddr
	object    bacnet.ObjectIdentifier
	processID uint32
	confirmed bool
	expiresAt time.Time
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

// WithArchiver streams trend samples into durable storage.
func WithArchiver(a Archiver) Option {
	return func(s *Simulator) { s.archiver = a }
}

// Simulator is one virtual device bound to its own UDP socket.
type Simulator struct {
	cfg       *Config
	device    *bacnet.Device
	transport *transport.UDPTransport
	trends    *bacnet.TrendLogStore
	alarms    *bacnet.AlarmRegistry
	logger    *slog.Logger
	metrics   *Metrics
	archiver  Archiver

	subsMu sync.Mutex
	subs   map[subKey]*covSub

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a simulator from a device definition.
func New(cfg *Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	device, err := buildDevice(cfg)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:     cfg,
		device:  device,
		trends:  bacnet.NewTrendLogStore(cfg.TrendCapacity),
		alarms:  bacnet.NewAlarmRegistry(cfg.AlarmHistory),
		logger:  slog.Default(),
		metrics: &Metrics{},
		subs:    make(map[subKey]*covSub),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.transport = transport.NewUDPTransport(cfg.ListenAddress)
	device.SetChangeHook(s.onChange)
	return s, nil
}

// Start binds the socket and begins serving. The simulator runs until Stop
// or ctx cancellation.
func (s *Simulator) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("simulator already running")
	}

	if err := s.transport.Open(ctx); err != nil {
		s.running.Store(false)
		return fmt.Errorf("open transport: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.serve(runCtx)
	if s.cfg.Drift.Enabled {
		go s.driftLoop(runCtx)
	}
	go s.sampleLoop(runCtx)

	s.logger.Info("simulator started",
		slog.Uint64("device_id", uint64(s.cfg.DeviceID)),
		slog.String("name", s.cfg.Name),
		slog.String("addr", s.transport.LocalAddr().String()),
	)
	return nil
}

// Stop shuts the simulator down. Stopping a stopped simulator is a no-op.
func (s *Simulator) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	err := s.transport.Close()
	s.cancel()
	<-s.done
	s.logger.Info("simulator stopped", slog.Uint64("device_id", uint64(s.cfg.DeviceID)))
	return err
}

// Running reports whether the simulator is serving.
func (s *Simulator) Running() bool { return s.running.Load() }

// Addr returns the bound socket address, or nil before Start.
func (s *Simulator) Addr() *net.UDPAddr { return s.transport.LocalAddr() }

// Device returns the simulated device's object model.
func (s *Simulator) Device() *bacnet.Device { return s.device }

// Trends returns the in-memory trend store.
func (s *Simulator) Trends() *bacnet.TrendLogStore { return s.trends }

// Alarms returns the alarm registry.
func (s *Simulator) Alarms() *bacnet.AlarmRegistry { return s.alarms }

// Metrics returns the server counters.
func (s *Simulator) Metrics() *Metrics { return s.metrics }

func (s *Simulator) serve(ctx context.Context) {
	defer close(s.done)

	for {
		data, addr, err := s.transport.Receive(ctx)
		if err != nil {
			if s.transport.IsClosed() || ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Debug("receive error", slog.String("error", err.Error()))
			continue
		}
		s.handleFrame(ctx, data, addr)
	}
}

func (s *Simulator) handleFrame(ctx context.Context, data []byte, addr *net.UDPAddr) {
	if _, err := bacnet.DecodeBVLC(data); err != nil {
		s.logger.Debug("invalid BVLC", slog.String("error", err.Error()))
		return
	}
	npdu, offset, err := bacnet.DecodeNPDU(data[4:])
	if err != nil || npdu.Control&bacnet.NPDUControlNetworkLayerMessage != 0 {
		return
	}
	apdu, err := bacnet.DecodeAPDU(data[4+offset:])
	if err != nil {
		s.logger.Debug("invalid APDU", slog.String("error", err.Error()))
		return
	}

	switch apdu.Type {
	case bacnet.PDUTypeUnconfirmedRequest:
		if bacnet.UnconfirmedServiceChoice(apdu.Service) == bacnet.ServiceWhoIs {
			s.handleWhoIs(ctx, apdu.Data, addr)
		}
	case bacnet.PDUTypeConfirmedRequest:
		s.metrics.RequestsHandled.Inc()
		s.handleConfirmed(ctx, apdu, addr)
	}
}

func (s *Simulator) handleWhoIs(ctx context.Context, data []byte, addr *net.UDPAddr) {
	s.metrics.WhoIsReceived.Inc()

	req, err := bacnet.DecodeWhoIsRequest(data)
	if err != nil || !req.Matches(s.cfg.DeviceID) {
		return
	}

	iam := bacnet.IAmRequest{
		Device:       s.device.ObjectID(),
		MaxAPDU:      bacnet.MaxAPDULength,
		Segmentation: bacnet.SegmentationNone,
		VendorID:     s.cfg.VendorID,
	}
	frame := bacnet.Frame(bacnet.BVLCOriginalUnicastNPDU, false,
		bacnet.EncodeUnconfirmedRequest(bacnet.ServiceIAm, iam.Encode()))
	if err := s.transport.Send(ctx, addr, frame); err != nil {
		s.logger.Debug("I-Am send failed", slog.String("error", err.Error()))
		return
	}
	s.metrics.IAmSent.Inc()
}

func (s *Simulator) handleConfirmed(ctx context.Context, apdu *bacnet.APDU, addr *net.UDPAddr) {
	service := bacnet.ConfirmedServiceChoice(apdu.Service)

	var reply []byte
	switch service {
	case bacnet.ServiceReadProperty:
		reply = s.readProperty(apdu)
	case bacnet.ServiceWriteProperty:
		reply = s.writeProperty(apdu)
	case bacnet.ServiceSubscribeCOV:
		reply = s.subscribeCOV(apdu, addr)
	case bacnet.ServiceReadRange:
		reply = s.readRange(apdu)
	case bacnet.ServiceGetAlarmSummary:
		ack := bacnet.AlarmSummaryACK{Items: s.alarms.Summary()}
		reply = bacnet.EncodeComplexAck(apdu.InvokeID, service, ack.Encode())
	case bacnet.ServiceAcknowledgeAlarm:
		reply = s.acknowledgeAlarm(apdu)
	default:
		s.metrics.RejectsReturned.Inc()
		reply = bacnet.EncodeRejectAPDU(apdu.InvokeID, bacnet.RejectReasonUnrecognizedService)
	}

	frame := bacnet.Frame(bacnet.BVLCOriginalUnicastNPDU, false, reply)
	if err := s.transport.Send(ctx, addr, frame); err != nil {
		s.logger.Debug("reply send failed", slog.String("error", err.Error()))
	}
}

func (s *Simulator) errorReply(invokeID uint8, service bacnet.ConfirmedServiceChoice, err error) []byte {
	s.metrics.ErrorsReturned.Inc()
	class, code := bacnet.WireCodes(err)
	return bacnet.EncodeErrorAPDU(invokeID, service, class, code)
}

func (s *Simulator) readProperty(apdu *bacnet.APDU) []byte {
	req, err := bacnet.DecodeReadPropertyRequest(apdu.Data)
	if err != nil {
		s.metrics.RejectsReturned.Inc()
		return bacnet.EncodeRejectAPDU(apdu.InvokeID, bacnet.RejectReasonInvalidTag)
	}

	values, err := s.device.ReadProperty(req.Object, req.Property, req.ArrayIndex)
	if err != nil {
		return s.errorReply(apdu.InvokeID, bacnet.ServiceReadProperty, err)
	}
	ack := bacnet.ReadPropertyACK{
		Object:     req.Object,
		Property:   req.Property,
		ArrayIndex: req.ArrayIndex,
		Values:     values,
	}
	return bacnet.EncodeComplexAck(apdu.InvokeID, bacnet.ServiceReadProperty, ack.Encode())
}

func (s *Simulator) writeProperty(apdu *bacnet.APDU) []byte {
	req, err := bacnet.DecodeWritePropertyRequest(apdu.Data)
	if err != nil {
		s.metrics.RejectsReturned.Inc()
		return bacnet.EncodeRejectAPDU(apdu.InvokeID, bacnet.RejectReasonInvalidTag)
	}

	if err := s.device.WriteProperty(req.Object, req.Property, req.Value, req.Priority); err != nil {
		return s.errorReply(apdu.InvokeID, bacnet.ServiceWriteProperty, err)
	}
	return bacnet.EncodeSimpleAck(apdu.InvokeID, bacnet.ServiceWriteProperty)
}

func (s *Simulator) subscribeCOV(apdu *bacnet.APDU, addr *net.UDPAddr) []byte {
	req, err := bacnet.DecodeSubscribeCOVRequest(apdu.Data)
	if err != nil {
		s.metrics.RejectsReturned.Inc()
		return bacnet.EncodeRejectAPDU(apdu.InvokeID, bacnet.RejectReasonInvalidTag)
	}

	if _, ok := s.device.Object(req.Object); !ok {
		return s.errorReply(apdu.InvokeID, bacnet.ServiceSubscribeCOV, bacnet.ErrUnknownObject)
	}

	key := subKey{addr: addr.String(), object: req.Object, processID: req.ProcessID}
	s.subsMu.Lock()
	if req.IsCancellation() {
		delete(s.subs, key)
	} else {
		// A zero or omitted lifetime keeps the subscription until it is
		// cancelled; expiresAt stays zero in that case.
		var expiresAt time.Time
		if req.Lifetime != nil && *req.Lifetime > 0 {
			expiresAt = time.Now().Add(time.Duration(*req.Lifetime) * time.Second)
		}
		s.subs[key] = &covSub{
			addr:      addr,
			object:    req.Object,
			processID: req.ProcessID,
			confirmed: req.Confirmed != nil && *req.Confirmed,
			expiresAt: expiresAt,
		}
	}
	s.subsMu.Unlock()

	return bacnet.EncodeSimpleAck(apdu.InvokeID, bacnet.ServiceSubscribeCOV)
}

func (s *Simulator) readRange(apdu *bacnet.APDU) []byte {
	req, err := bacnet.DecodeReadRangeRequest(apdu.Data)
	if err != nil {
		s.metrics.RejectsReturned.Inc()
		return bacnet.EncodeRejectAPDU(apdu.InvokeID, bacnet.RejectReasonInvalidTag)
	}

	if _, ok := s.device.Object(req.Object); !ok && req.Object.Type != bacnet.ObjectTypeTrendLog {
		return s.errorReply(apdu.InvokeID, bacnet.ServiceReadRange, bacnet.ErrUnknownObject)
	}

	key := bacnet.RingKey{DeviceID: s.cfg.DeviceID, Object: s.trendTarget(req.Object)}
	var start time.Time
	if req.Start != nil {
		start = *req.Start
	}
	records := s.trends.Query(key, start, time.Time{})
	if req.Start != nil && req.Count > 0 && uint32(len(records)) > req.Count {
		records = records[:req.Count]
	}

	ack := bacnet.ReadRangeACK{
		Object:    req.Object,
		Property:  req.Property,
		ItemCount: uint32(len(records)),
		Items:     records,
	}
	return bacnet.EncodeComplexAck(apdu.InvokeID, bacnet.ServiceReadRange, ack.Encode())
}

// trendTarget maps a trend-log object to the point it records. Trend log
// instances mirror the analog input instances they monitor; other objects
// are their own target.
func (s *Simulator) trendTarget(obj bacnet.ObjectIdentifier) bacnet.ObjectIdentifier {
	if obj.Type == bacnet.ObjectTypeTrendLog {
		return bacnet.ObjectIdentifier{Type: bacnet.ObjectTypeAnalogInput, Instance: obj.Instance}
	}
	return obj
}

func (s *Simulator) acknowledgeAlarm(apdu *bacnet.APDU) []byte {
	req, err := bacnet.DecodeAcknowledgeAlarmRequest(apdu.Data)
	if err != nil {
		s.metrics.RejectsReturned.Inc()
		return bacnet.EncodeRejectAPDU(apdu.InvokeID, bacnet.RejectReasonInvalidTag)
	}

	if err := s.alarms.AcknowledgeObject(req.Object, req.EventState, req.Source, time.Now()); err != nil {
		return s.errorReply(apdu.InvokeID, bacnet.ServiceAcknowledgeAlarm, err)
	}
	return bacnet.EncodeSimpleAck(apdu.InvokeID, bacnet.ServiceAcknowledgeAlarm)
}

// onChange is the device change hook: every present-value change feeds the
// COV path and the alarm registry. It must never block request handling
// for long; notification sends are fire-and-forget datagrams.
func (s *Simulator) onChange(objID bacnet.ObjectIdentifier, old, next bacnet.Value) {
	obj, ok := s.device.Object(objID)
	if !ok {
		return
	}

	s.alarms.RecordTransition(objID, obj.EventState(), time.Now())
	s.notifySubscribers(obj, next)
}

func (s *Simulator) notifySubscribers(obj *bacnet.Object, next bacnet.Value) {
	objID := obj.ID()

	s.subsMu.Lock()
	now := time.Now()
	var targets []*covSub
	for key, sub := range s.subs {
		if !sub.expiresAt.IsZero() && now.After(sub.expiresAt) {
			delete(s.subs, key)
			continue
		}
		if sub.object == objID {
			targets = append(targets, sub)
		}
	}
	s.subsMu.Unlock()

	if len(targets) == 0 {
		return
	}
	if !obj.ExceedsCOVIncrement(next) {
		return
	}

	values := []bacnet.PropertyValue{
		{Property: bacnet.PropertyPresentValue, Value: next},
		{Property: bacnet.PropertyStatusFlags, Value: bacnet.Unsigned(uint32(obj.StatusFlags().Byte()))},
	}
	for _, sub := range targets {
		var remaining uint32
		if !sub.expiresAt.IsZero() {
			remaining = uint32(time.Until(sub.expiresAt) / time.Second)
		}
		notif := bacnet.COVNotification{
			ProcessID:     sub.processID,
			Device:        s.device.ObjectID(),
			Object:        objID,
			TimeRemaining: remaining,
			Values:        values,
		}
		frame := bacnet.Frame(bacnet.BVLCOriginalUnicastNPDU, false,
			bacnet.EncodeUnconfirmedRequest(bacnet.ServiceUnconfirmedCOVNotification, notif.Encode()))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := s.transport.Send(ctx, sub.addr, frame)
		cancel()
		if err != nil {
			s.logger.Debug("COV notify failed",
				slog.String("peer", sub.addr.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.metrics.NotificationsSent.Inc()
	}
}

// sampleLoop records trend-marked points into the ring on a fixed cadence.
func (s *Simulator) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TrendInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.recordSamples(now)
		}
	}
}

func (s *Simulator) recordSamples(now time.Time) {
	for _, oc := range s.cfg.Objects {
		if !oc.Trend {
			continue
		}
		t, _ := bacnet.ParseObjectType(oc.Type)
		objID := bacnet.ObjectIdentifier{Type: t, Instance: oc.Instance}
		obj, ok := s.device.Object(objID)
		if !ok {
			continue
		}

		rec := bacnet.LogRecord{
			Timestamp: now,
			Value:     obj.PresentValue(),
			Status:    obj.StatusFlags(),
		}
		key := bacnet.RingKey{DeviceID: s.cfg.DeviceID, Object: objID}
		if err := s.trends.Append(key, rec); err != nil {
			s.logger.Debug("trend append refused", slog.String("error", err.Error()))
			continue
		}
		s.metrics.SamplesRecorded.Inc()

		if s.archiver != nil {
			if err := s.archiver.ArchiveSample(s.cfg.DeviceID, objID, rec); err != nil {
				s.logger.Warn("trend archive failed",
					slog.String("object", objID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
