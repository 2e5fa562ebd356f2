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

// Package transport provides the BACnet/IP UDP socket layer shared by the
// client and the simulator.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// UDPTransport is a single shared UDP socket. Sends are serialized; one
// receiver goroutine at a time should call Receive.
type UDPTransport struct {
	localAddr     string
	broadcastAddr *net.UDPAddr

	mu           sync.RWMutex
	sendMu       sync.Mutex
	conn         *net.UDPConn
	writeTimeout time.Duration
	closed       bool
}

// NewUDPTransport creates a transport that will bind localAddr, or an
// ephemeral port when empty.
func NewUDPTransport(localAddr string) *UDPTransport {
	return &UDPTransport{
		localAddr:    localAddr,
		writeTimeout: 3 * time.Second,
	}
}

// SetBroadcastAddress overrides the destination used by Broadcast. Tests
// point this at a loopback peer.
func (t *UDPTransport) SetBroadcastAddress(addr *net.UDPAddr) {
	t.mu.Lock()
	t.broadcastAddr = addr
	t.mu.Unlock()
}

// SetWriteTimeout sets the per-datagram write timeout.
func (t *UDPTransport) SetWriteTimeout(d time.Duration) {
	t.mu.Lock()
	t.writeTimeout = d
	t.mu.Unlock()
}

// Open binds the socket. Opening an already open transport is a no-op.
func (t *UDPTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && !t.closed {
		return nil
	}

	var addr *net.UDPAddr
	var err error
	if t.localAddr != "" {
		addr, err = net.ResolveUDPAddr("udp4", t.localAddr)
		if err != nil {
			return fmt.Errorf("resolve local address: %w", err)
		}
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("listen UDP: %w", err)
	}

	t.conn = conn
	t.closed = false
	return nil
}

// Close closes the socket, unblocking any pending Receive.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// IsClosed reports whether Close has been called.
func (t *UDPTransport) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// LocalAddr returns the bound address, or nil before Open.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Send writes one datagram to addr. Concurrent callers are serialized so
// interleaved frames never corrupt each other.
func (t *UDPTransport) Send(ctx context.Context, addr *net.UDPAddr, data []byte) error {
	t.mu.RLock()
	conn := t.conn
	writeTimeout := t.writeTimeout
	closed := t.closed
	t.mu.RUnlock()

	if conn == nil || closed {
		return fmt.Errorf("transport not open")
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	n, err := conn.WriteToUDP(data, addr)
	if err != nil {
		return fmt.Errorf("write UDP: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("partial write: %d of %d bytes", n, len(data))
	}
	return nil
}

// Broadcast sends one datagram to the broadcast address on the given port,
// or to the configured override.
func (t *UDPTransport) Broadcast(ctx context.Context, port int, data []byte) error {
	t.mu.RLock()
	override := t.broadcastAddr
	t.mu.RUnlock()

	addr := override
	if addr == nil {
		addr = &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	}
	return t.Send(ctx, addr, data)
}

// Receive blocks for the next datagram. With no context deadline it blocks
// until a frame arrives or the transport closes.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()

	if conn == nil {
		return nil, nil, fmt.Errorf("transport not open")
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, 1500)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], addr, nil
}
