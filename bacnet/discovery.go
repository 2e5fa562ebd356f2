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
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// DeviceInfo describes a device learned from an I-Am announcement.
type DeviceInfo struct {
	ObjectID      ObjectIdentifier
	Address       *net.UDPAddr
	MaxAPDULength uint32
	Segmentation  Segmentation
	VendorID      uint32
	LastSeen      time.Time
}

// Instance returns the device instance number.
func (d DeviceInfo) Instance() uint32 { return d.ObjectID.Instance }

// deviceCache holds discovered devices keyed by instance. Entries expire
// after the staleness window without a refreshing I-Am.
type deviceCache struct {
	mu         sync.RWMutex
	staleAfter time.Duration
	devices    map[uint32]DeviceInfo

	watcherSeq int
	watchers   map[int]chan DeviceInfo
}

func newDeviceCache(staleAfter time.Duration) *deviceCache {
	return &deviceCache{
		staleAfter: staleAfter,
		devices:    make(map[uint32]DeviceInfo),
		watchers:   make(map[int]chan DeviceInfo),
	}
}

// upsert stores or refreshes a device and fans the announcement out to
// active discovery watchers. Returns true for a first sighting.
func (c *deviceCache) upsert(info DeviceInfo) bool {
	c.mu.Lock()
	_, known := c.devices[info.Instance()]
	c.devices[info.Instance()] = info
	watchers := make([]chan DeviceInfo, 0, len(c.watchers))
	for _, ch := range c.watchers {
		watchers = append(watchers, ch)
	}
	c.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- info:
		default:
		}
	}
	return !known
}

// get returns a non-stale entry.
func (c *deviceCache) get(instance uint32) (DeviceInfo, bool) {
	c.mu.RLock()
	info, ok := c.devices[instance]
	c.mu.RUnlock()
	if !ok {
		return DeviceInfo{}, false
	}
	if c.staleAfter > 0 && time.Since(info.LastSeen) > c.staleAfter {
		c.mu.Lock()
		// re-check under the write lock, an I-Am may have refreshed it
		if cur, still := c.devices[instance]; still && time.Since(cur.LastSeen) > c.staleAfter {
			delete(c.devices, instance)
		}
		c.mu.Unlock()
		return DeviceInfo{}, false
	}
	return info, true
}

// snapshot returns every non-stale entry.
func (c *deviceCache) snapshot() []DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DeviceInfo, 0, len(c.devices))
	for instance, info := range c.devices {
		if c.staleAfter > 0 && time.Since(info.LastSeen) > c.staleAfter {
			delete(c.devices, instance)
			continue
		}
		out = append(out, info)
	}
	return out
}

// watch registers a feed of incoming announcements; the returned stop
// function must be called to release it.
func (c *deviceCache) watch() (<-chan DeviceInfo, func()) {
	ch := make(chan DeviceInfo, 64)
	c.mu.Lock()
	c.watcherSeq++
	id := c.watcherSeq
	c.watchers[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

func (c *Client) handleIAm(data []byte, addr *net.UDPAddr) {
	c.metrics.IAmReceived.Inc()

	iam, err := DecodeIAmRequest(data)
	if err != nil {
		c.metrics.MalformedFrames.Inc()
		c.logger.Debug("invalid I-Am", slog.String("error", err.Error()))
		return
	}

	info := DeviceInfo{
		ObjectID:      iam.Device,
		Address:       addr,
		MaxAPDULength: iam.MaxAPDU,
		Segmentation:  iam.Segmentation,
		VendorID:      iam.VendorID,
		LastSeen:      time.Now(),
	}
	if c.devices.upsert(info) {
		c.metrics.DevicesDiscovered.Inc()
	}

	c.logger.Debug("device announced",
		slog.Uint64("device_id", uint64(iam.Device.Instance)),
		slog.String("address", addr.String()),
		slog.Uint64("vendor_id", uint64(iam.VendorID)),
	)
}

// Discover broadcasts Who-Is and streams devices as their I-Ams arrive.
// The channel yields each instance once per call, in arrival order, and is
// closed when the timeout elapses or ctx is cancelled. An empty result is
// not an error.
func (c *Client) Discover(ctx context.Context, opts ...DiscoverOption) (<-chan DeviceInfo, error) {
	options := &DiscoverOptions{Timeout: c.opts.discoverTimeout}
	for _, opt := range opts {
		opt(options)
	}

	feed, stop := c.devices.watch()

	req := WhoIsRequest{Low: options.LowLimit, High: options.HighLimit}
	if err := c.sendUnconfirmed(ctx, nil, ServiceWhoIs, req.Encode()); err != nil {
		stop()
		return nil, err
	}
	c.metrics.WhoIsSent.Inc()

	out := make(chan DeviceInfo)
	go func() {
		defer close(out)
		defer stop()

		seen := make(map[uint32]bool)
		deadline := time.NewTimer(options.Timeout)
		defer deadline.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-deadline.C:
				return
			case info := <-feed:
				if !req.Matches(info.Instance()) || seen[info.Instance()] {
					continue
				}
				seen[info.Instance()] = true
				select {
				case out <- info:
				case <-ctx.Done():
					return
				case <-deadline.C:
					return
				}
			}
		}
	}()
	return out, nil
}

// WhoIs runs one discovery pass and collects the results.
func (c *Client) WhoIs(ctx context.Context, opts ...DiscoverOption) ([]DeviceInfo, error) {
	feed, err := c.Discover(ctx, opts...)
	if err != nil {
		return nil, err
	}
	var devices []DeviceInfo
	for info := range feed {
		devices = append(devices, info)
	}
	return devices, nil
}

// GetDevice returns a cached, non-stale device entry.
func (c *Client) GetDevice(deviceID uint32) (DeviceInfo, bool) {
	return c.devices.get(deviceID)
}

// KnownDevices returns every cached, non-stale device.
func (c *Client) KnownDevices() []DeviceInfo {
	return c.devices.snapshot()
}

// resolveDevice maps a device instance to its UDP address, running a
// targeted discovery when the cache misses.
func (c *Client) resolveDevice(ctx context.Context, deviceID uint32) (*net.UDPAddr, error) {
	if info, ok := c.devices.get(deviceID); ok {
		return info.Address, nil
	}

	feed, err := c.Discover(ctx,
		WithDeviceRange(deviceID, deviceID),
		WithDiscoveryTimeout(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	for info := range feed {
		if info.Instance() == deviceID {
			break
		}
	}

	if info, ok := c.devices.get(deviceID); ok {
		return info.Address, nil
	}
	return nil, fmt.Errorf("%w: device %d", ErrDeviceUnreachable, deviceID)
}
