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

// Package bacnet implements a BACnet/IP client: discovery, property access,
// change-of-value subscriptions, trend log retrieval, and alarm summaries
// over a single shared UDP socket.
package bacnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/KB-perByte/gobacnet/internal/transport"
)

// ConnectionState is the client lifecycle state.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client is a BACnet/IP client. All methods are safe for concurrent use
// once Connect returns.
type Client struct {
	opts      *clientOptions
	transport *transport.UDPTransport

	state atomic.Int32

	txns    *transactions
	devices *deviceCache
	subs    *SubscriptionManager

	metrics *Metrics
	logger  *slog.Logger

	receiverCancel context.CancelFunc
	receiverDone   chan struct{}
}

// NewClient creates a client. Connect must be called before any operation.
func NewClient(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.staleAfter == 0 {
		options.staleAfter = options.discoverTimeout
	}

	c := &Client{
		opts:    options,
		txns:    newTransactions(),
		devices: newDeviceCache(options.staleAfter),
		metrics: NewMetrics(),
		logger:  options.logger,
	}
	c.subs = newSubscriptionManager(c)

	c.transport = transport.NewUDPTransport(options.localAddress)
	c.transport.SetWriteTimeout(options.timeout)
	if options.broadcastAddr != "" {
		addr, err := net.ResolveUDPAddr("udp4", options.broadcastAddr)
		if err != nil {
			return nil, fmt.Errorf("resolve broadcast address: %w", err)
		}
		c.transport.SetBroadcastAddress(addr)
	}
	return c, nil
}

// Connect binds the socket and starts the receiver.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	if err := c.transport.Open(ctx); err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("open transport: %w", err)
	}

	receiverCtx, cancel := context.WithCancel(context.Background())
	c.receiverCancel = cancel
	c.receiverDone = make(chan struct{})
	go c.receiver(receiverCtx)

	c.state.Store(int32(StateConnected))
	c.logger.Info("connected", slog.String("local_addr", c.transport.LocalAddr().String()))

	if c.opts.bbmdAddress != "" {
		if err := c.registerForeignDevice(ctx); err != nil {
			c.logger.Warn("foreign device registration failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Close stops the receiver, fails in-flight requests, and closes the
// socket. Closing a closed client is a no-op.
func (c *Client) Close() error {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		return nil
	}

	err := c.transport.Close()
	if c.receiverCancel != nil {
		c.receiverCancel()
		<-c.receiverDone
	}
	c.txns.abortAll()
	c.subs.shutdown()

	c.logger.Info("disconnected")
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Metrics returns the client's metrics.
func (c *Client) Metrics() *Metrics { return c.metrics }

// Subscriptions returns the COV subscription manager.
func (c *Client) Subscriptions() *SubscriptionManager { return c.subs }

// LocalAddr returns the bound socket address, or nil before Connect.
func (c *Client) LocalAddr() *net.UDPAddr { return c.transport.LocalAddr() }

func (c *Client) receiver(ctx context.Context) {
	defer close(c.receiverDone)

	for {
		data, addr, err := c.transport.Receive(ctx)
		if err != nil {
			if c.transport.IsClosed() || ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			c.logger.Debug("receive error", slog.String("error", err.Error()))
			continue
		}

		c.metrics.BytesReceived.Add(int64(len(data)))
		c.metrics.RecordActivity()

		go c.handleFrame(data, addr)
	}
}

func (c *Client) handleFrame(data []byte, addr *net.UDPAddr) {
	bvlc, err := DecodeBVLC(data)
	if err != nil {
		c.metrics.MalformedFrames.Inc()
		c.logger.Debug("invalid BVLC", slog.String("error", err.Error()))
		return
	}

	npduData := data[4:]
	if bvlc.Function == BVLCForwardedNPDU {
		if len(npduData) < 6 {
			c.metrics.MalformedFrames.Inc()
			return
		}
		npduData = npduData[6:]
	}

	npdu, offset, err := DecodeNPDU(npduData)
	if err != nil {
		c.metrics.MalformedFrames.Inc()
		c.logger.Debug("invalid NPDU", slog.String("error", err.Error()))
		return
	}
	if npdu.Control&NPDUControlNetworkLayerMessage != 0 {
		return
	}

	apdu, err := DecodeAPDU(npduData[offset:])
	if err != nil {
		c.metrics.MalformedFrames.Inc()
		c.logger.Debug("invalid APDU", slog.String("error", err.Error()))
		return
	}

	switch apdu.Type {
	case PDUTypeUnconfirmedRequest:
		c.handleUnconfirmed(apdu, addr)
	case PDUTypeSimpleAck, PDUTypeComplexAck, PDUTypeError, PDUTypeReject, PDUTypeAbort:
		c.metrics.ResponsesReceived.Inc()
		switch apdu.Type {
		case PDUTypeError:
			c.metrics.ErrorsReceived.Inc()
		case PDUTypeReject:
			c.metrics.RejectsReceived.Inc()
		case PDUTypeAbort:
			c.metrics.AbortsReceived.Inc()
		}
		if !c.txns.deliver(addr.String(), apdu) {
			c.metrics.LateReplies.Inc()
			c.logger.Debug("dropping unmatched reply",
				slog.String("peer", addr.String()),
				slog.Int("invoke_id", int(apdu.InvokeID)),
			)
		}
	}
}

func (c *Client) handleUnconfirmed(apdu *APDU, addr *net.UDPAddr) {
	switch UnconfirmedServiceChoice(apdu.Service) {
	case ServiceIAm:
		c.handleIAm(apdu.Data, addr)
	case ServiceUnconfirmedCOVNotification:
		notif, err := DecodeCOVNotification(apdu.Data)
		if err != nil {
			c.metrics.MalformedFrames.Inc()
			c.logger.Debug("invalid COV notification", slog.String("error", err.Error()))
			return
		}
		c.metrics.COVNotifications.Inc()
		c.subs.dispatch(notif)
	}
}

func (c *Client) registerForeignDevice(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", c.opts.bbmdAddress, c.opts.bbmdPort))
	if err != nil {
		return fmt.Errorf("resolve BBMD address: %w", err)
	}

	frame := make([]byte, 6)
	frame[0] = byte(BVLCTypeBACnetIP)
	frame[1] = byte(BVLCRegisterForeignDevice)
	binary.BigEndian.PutUint16(frame[2:], 6)
	binary.BigEndian.PutUint16(frame[4:], uint16(c.opts.foreignDeviceTTL.Seconds()))

	if err := c.transport.Send(ctx, addr, frame); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}
	c.logger.Info("registered as foreign device",
		slog.String("bbmd", addr.String()),
		slog.Duration("ttl", c.opts.foreignDeviceTTL),
	)
	return nil
}

// ReadProperty reads one property and returns its value. Array properties
// read without an index return the first element; use ReadPropertyValues
// for the full array.
func (c *Client) ReadProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, opts ...ReadOption) (Value, error) {
	values, err := c.ReadPropertyValues(ctx, deviceID, objectID, propertyID, opts...)
	if err != nil {
		return Value{}, err
	}
	if len(values) == 0 {
		return Null(), nil
	}
	return values[0], nil
}

// ReadPropertyValues reads one property and returns every returned element.
func (c *Client) ReadPropertyValues(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, opts ...ReadOption) ([]Value, error) {
	options := &ReadOptions{}
	for _, opt := range opts {
		opt(options)
	}

	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	req := ReadPropertyRequest{Object: objectID, Property: propertyID, ArrayIndex: NoArrayIndex}
	if options.ArrayIndex != nil {
		req.ArrayIndex = *options.ArrayIndex
	}

	resp, err := c.sendRequest(ctx, addr, ServiceReadProperty, req.Encode())
	if err != nil {
		return nil, err
	}
	ack, err := DecodeReadPropertyACK(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return ack.Values, nil
}

// WriteProperty writes one property. Use WithPriority for commandable
// present values; writing Null at a priority relinquishes that slot.
func (c *Client) WriteProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, value Value, opts ...WriteOption) error {
	options := &WriteOptions{}
	for _, opt := range opts {
		opt(options)
	}

	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	req := WritePropertyRequest{
		Object:     objectID,
		Property:   propertyID,
		ArrayIndex: NoArrayIndex,
		Value:      value,
		Priority:   options.Priority,
	}
	if options.ArrayIndex != nil {
		req.ArrayIndex = *options.ArrayIndex
	}

	_, err = c.sendRequest(ctx, addr, ServiceWriteProperty, req.Encode())
	return err
}

// RelinquishProperty clears a command priority slot on a commandable
// object.
func (c *Client) RelinquishProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, priority uint8) error {
	return c.WriteProperty(ctx, deviceID, objectID, PropertyPresentValue, Null(), WithPriority(priority))
}

// ObjectList reads the device's object-list property.
func (c *Client) ObjectList(ctx context.Context, deviceID uint32) ([]ObjectIdentifier, error) {
	values, err := c.ReadPropertyValues(ctx, deviceID,
		ObjectIdentifier{Type: ObjectTypeDevice, Instance: deviceID},
		PropertyObjectList,
	)
	if err != nil {
		return nil, err
	}
	objects := make([]ObjectIdentifier, 0, len(values))
	for _, v := range values {
		if oid, ok := v.AsObjectID(); ok {
			objects = append(objects, oid)
		}
	}
	return objects, nil
}

// DeviceDetails are the descriptive properties of a device object.
type DeviceDetails struct {
	ObjectName         string
	VendorName         string
	VendorID           uint32
	ModelName          string
	FirmwareRevision   string
	ApplicationVersion string
	Description        string
	Location           string
	SystemStatus       uint32
}

// DeviceInfo reads the descriptive device object properties. Optional
// properties missing on the peer are left zero.
func (c *Client) DeviceInfo(ctx context.Context, deviceID uint32) (*DeviceDetails, error) {
	deviceObj := ObjectIdentifier{Type: ObjectTypeDevice, Instance: deviceID}

	name, err := c.ReadProperty(ctx, deviceID, deviceObj, PropertyObjectName)
	if err != nil {
		return nil, err
	}
	details := &DeviceDetails{}
	details.ObjectName, _ = name.AsString()

	// optional descriptive properties; unreachable peers already failed above
	if v, err := c.ReadProperty(ctx, deviceID, deviceObj, PropertyVendorName); err == nil {
		details.VendorName, _ = v.AsString()
	}
	if v, err := c.ReadProperty(ctx, deviceID, deviceObj, PropertyVendorIdentifier); err == nil {
		details.VendorID, _ = v.AsUnsigned()
	}
	if v, err := c.ReadProperty(ctx, deviceID, deviceObj, PropertyModelName); err == nil {
		details.ModelName, _ = v.AsString()
	}
	if v, err := c.ReadProperty(ctx, deviceID, deviceObj, PropertyFirmwareRevision); err == nil {
		details.FirmwareRevision, _ = v.AsString()
	}
	if v, err := c.ReadProperty(ctx, deviceID, deviceObj, PropertyApplicationSoftwareVersion); err == nil {
		details.ApplicationVersion, _ = v.AsString()
	}
	if v, err := c.ReadProperty(ctx, deviceID, deviceObj, PropertyDescription); err == nil {
		details.Description, _ = v.AsString()
	}
	if v, err := c.ReadProperty(ctx, deviceID, deviceObj, PropertyLocation); err == nil {
		details.Location, _ = v.AsString()
	}
	if v, err := c.ReadProperty(ctx, deviceID, deviceObj, PropertySystemStatus); err == nil {
		details.SystemStatus, _ = v.AsEnumerated()
	}
	return details, nil
}

// ReadTrendLog retrieves records from a trend log object's buffer. A nil
// start reads the whole buffer; count caps the records returned after
// start.
func (c *Client) ReadTrendLog(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, start *time.Time, count uint32) ([]LogRecord, error) {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	req := ReadRangeRequest{Object: objectID, Property: PropertyLogBuffer, Start: start, Count: count}
	resp, err := c.sendRequest(ctx, addr, ServiceReadRange, req.Encode())
	if err != nil {
		return nil, err
	}
	ack, err := DecodeReadRangeACK(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return ack.Items, nil
}

// AlarmSummary lists every object currently in alarm on a device.
func (c *Client) AlarmSummary(ctx context.Context, deviceID uint32) ([]AlarmSummaryItem, error) {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	resp, err := c.sendRequest(ctx, addr, ServiceGetAlarmSummary, nil)
	if err != nil {
		return nil, err
	}
	ack, err := DecodeAlarmSummaryACK(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return ack.Items, nil
}

// AcknowledgeAlarm acknowledges an alarm transition on an object.
func (c *Client) AcknowledgeAlarm(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, state EventState, source string) error {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	req := AcknowledgeAlarmRequest{
		ProcessID:  1,
		Object:     objectID,
		EventState: state,
		Source:     source,
	}
	_, err = c.sendRequest(ctx, addr, ServiceAcknowledgeAlarm, req.Encode())
	return err
}
