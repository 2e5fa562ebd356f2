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

package bacnet

import (
	"log/slog"
	"time"
)

type clientOptions struct {
	localDeviceID uint32
	localAddress  string
	broadcastAddr string

	bbmdAddress      string
	bbmdPort         int
	foreignDeviceTTL time.Duration

	timeout    time.Duration
	retries    int
	retryDelay time.Duration

	maxAPDULength uint16
	segmentation  Segmentation

	discoverTimeout time.Duration
	staleAfter      time.Duration

	logger *slog.Logger
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		localDeviceID:   0xFFFFFFFF,
		timeout:         3 * time.Second,
		retries:         1,
		retryDelay:      500 * time.Millisecond,
		maxAPDULength:   MaxAPDULength,
		segmentation:    SegmentationNone,
		discoverTimeout: 5 * time.Second,
		logger:          slog.Default(),
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// WithDeviceID sets the local device instance the client reports.
func WithDeviceID(id uint32) Option {
	return func(o *clientOptions) { o.localDeviceID = id }
}

// WithLocalAddress sets the local bind address, host:port. An empty port
// binds ephemerally.
func WithLocalAddress(addr string) Option {
	return func(o *clientOptions) { o.localAddress = addr }
}

// WithBroadcastAddress overrides the Who-Is broadcast destination. Useful
// for routing discovery at a known peer, as on loopback.
func WithBroadcastAddress(addr string) Option {
	return func(o *clientOptions) { o.broadcastAddr = addr }
}

// WithBBMD registers the client as a foreign device with a broadcast
// management device on connect.
func WithBBMD(addr string, port int, ttl time.Duration) Option {
	return func(o *clientOptions) {
		o.bbmdAddress = addr
		o.bbmdPort = port
		o.foreignDeviceTTL = ttl
	}
}

// WithTimeout sets the per-attempt confirmed request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithRetries sets how many times a timed-out request is resent.
func WithRetries(n int) Option {
	return func(o *clientOptions) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *clientOptions) { o.retryDelay = d }
}

// WithMaxAPDULength caps outgoing request size.
func WithMaxAPDULength(length uint16) Option {
	return func(o *clientOptions) { o.maxAPDULength = length }
}

// WithDiscoverTimeout sets the default discovery listen window.
func WithDiscoverTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.discoverTimeout = d }
}

// WithStaleAfter sets how long a cached device survives without a fresh
// I-Am. Zero means the discovery timeout is used.
func WithStaleAfter(d time.Duration) Option {
	return func(o *clientOptions) { o.staleAfter = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// DiscoverOptions configure one discovery pass.
type DiscoverOptions struct {
	LowLimit  *uint32
	HighLimit *uint32
	Timeout   time.Duration
}

// DiscoverOption configures Discover and WhoIs.
type DiscoverOption func(*DiscoverOptions)

// WithDeviceRange restricts discovery to an instance range.
func WithDeviceRange(low, high uint32) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.LowLimit = &low
		o.HighLimit = &high
	}
}

// WithDiscoveryTimeout overrides the listen window for one pass.
func WithDiscoveryTimeout(d time.Duration) DiscoverOption {
	return func(o *DiscoverOptions) { o.Timeout = d }
}

// ReadOptions configure a property read.
type ReadOptions struct {
	ArrayIndex *uint32
}

// ReadOption configures ReadProperty.
type ReadOption func(*ReadOptions)

// WithArrayIndex reads one element of an array property. Index 0 reads the
// element count.
func WithArrayIndex(index uint32) ReadOption {
	return func(o *ReadOptions) { o.ArrayIndex = &index }
}

// WriteOptions configure a property write.
type WriteOptions struct {
	ArrayIndex *uint32
	Priority   uint8
}

// WriteOption configures WriteProperty.
type WriteOption func(*WriteOptions)

// WithWriteArrayIndex writes one element of an array property.
func WithWriteArrayIndex(index uint32) WriteOption {
	return func(o *WriteOptions) { o.ArrayIndex = &index }
}

// WithPriority writes at a command priority slot, 1 (highest) to 16.
func WithPriority(priority uint8) WriteOption {
	return func(o *WriteOptions) { o.Priority = priority }
}

// SubscribeOptions configure a COV subscription.
type SubscribeOptions struct {
	Lifetime  time.Duration
	Confirmed bool
	ProcessID uint32
}

// SubscribeOption configures Subscriptions.Subscribe.
type SubscribeOption func(*SubscribeOptions)

// WithLifetime sets the subscription lifetime. Zero means the
// subscription never expires and stays in place until cancelled.
func WithLifetime(d time.Duration) SubscribeOption {
	return func(o *SubscribeOptions) { o.Lifetime = d }
}

// WithConfirmedNotifications requests confirmed notifications.
func WithConfirmedNotifications(confirmed bool) SubscribeOption {
	return func(o *SubscribeOptions) { o.Confirmed = confirmed }
}

// WithProcessID pins the subscriber process identifier instead of letting
// the manager allocate one.
func WithProcessID(id uint32) SubscribeOption {
	return func(o *SubscribeOptions) { o.ProcessID = id }
}
