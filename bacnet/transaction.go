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
	"net"
	"sync"
	"time"
)

// invokeSpace tracks the 256 invoke identifiers usable against one peer
// address. An id is reusable only after release.
type invokeSpace struct {
	inUse [256]bool
	next  uint8
	count int
}

func (s *invokeSpace) allocate() (uint8, bool) {
	if s.count == 256 {
		return 0, false
	}
	for i := 0; i < 256; i++ {
		id := s.next
		s.next++
		if !s.inUse[id] {
			s.inUse[id] = true
			s.count++
			return id, true
		}
	}
	return 0, false
}

func (s *invokeSpace) release(id uint8) {
	if s.inUse[id] {
		s.inUse[id] = false
		s.count--
	}
}

type pendingKey struct {
	addr     string
	invokeID uint8
}

// transactions correlates confirmed requests with their replies by peer
// address and invoke id.
type transactions struct {
	mu      sync.Mutex
	spaces  map[string]*invokeSpace
	pending map[pendingKey]chan *APDU
}

func newTransactions() *transactions {
	return &transactions{
		spaces:  make(map[string]*invokeSpace),
		pending: make(map[pendingKey]chan *APDU),
	}
}

// open allocates an invoke id against addr and registers a reply channel.
func (t *transactions) open(addr string) (uint8, chan *APDU, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	space, ok := t.spaces[addr]
	if !ok {
		space = &invokeSpace{}
		t.spaces[addr] = space
	}
	id, ok := space.allocate()
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrInvokeIDsExhausted, addr)
	}
	ch := make(chan *APDU, 1)
	t.pending[pendingKey{addr, id}] = ch
	return id, ch, nil
}

// close releases the invoke id. Replies arriving afterwards find no pending
// entry and are dropped.
func (t *transactions) close(addr string, id uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, pendingKey{addr, id})
	if space, ok := t.spaces[addr]; ok {
		space.release(id)
		if space.count == 0 {
			delete(t.spaces, addr)
		}
	}
}

// deliver routes a reply to its waiter. Returns false for late or unmatched
// replies.
func (t *transactions) deliver(addr string, apdu *APDU) bool {
	t.mu.Lock()
	ch, ok := t.pending[pendingKey{addr, apdu.InvokeID}]
	t.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- apdu:
		return true
	default:
		return false
	}
}

// abortAll fails every in-flight request, used on shutdown.
func (t *transactions) abortAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, ch := range t.pending {
		close(ch)
		delete(t.pending, k)
	}
	t.spaces = make(map[string]*invokeSpace)
}

// sendRequest issues a confirmed request and waits for the matching reply,
// retrying timed-out attempts up to the configured retry count. The invoke
// id is held for the whole exchange and released on return.
func (c *Client) sendRequest(ctx context.Context, addr *net.UDPAddr, service ConfirmedServiceChoice, payload []byte) (*APDU, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}
	if len(payload)+4 > int(c.opts.maxAPDULength) {
		return nil, fmt.Errorf("%w: %d octets", ErrAPDUTooLarge, len(payload)+4)
	}

	addrKey := addr.String()
	invokeID, respCh, err := c.txns.open(addrKey)
	if err != nil {
		return nil, err
	}
	defer c.txns.close(addrKey, invokeID)

	packet := Frame(BVLCOriginalUnicastNPDU, true, EncodeConfirmedRequest(invokeID, service, payload))

	c.metrics.ActiveRequests.Inc()
	defer c.metrics.ActiveRequests.Dec()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.opts.retries; attempt++ {
		if attempt > 0 {
			c.metrics.Retries.Inc()
			select {
			case <-time.After(c.opts.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		c.metrics.RequestsSent.Inc()
		if err := c.transport.Send(ctx, addr, packet); err != nil {
			c.metrics.RequestsFailed.Inc()
			lastErr = fmt.Errorf("send request: %w", err)
			continue
		}
		c.metrics.BytesSent.Add(int64(len(packet)))

		resp, err := c.awaitReply(ctx, respCh)
		if err != nil {
			if IsTimeout(err) {
				c.metrics.RequestsTimedOut.Inc()
				lastErr = err
				continue
			}
			c.metrics.RequestsFailed.Inc()
			return nil, err
		}

		c.metrics.RequestLatency.Record(time.Since(start))
		return c.classifyReply(resp)
	}
	if lastErr == nil {
		lastErr = ErrTimeout
	}
	return nil, lastErr
}

func (c *Client) awaitReply(ctx context.Context, respCh chan *APDU) (*APDU, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	select {
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return resp, nil
	}
}

func (c *Client) classifyReply(resp *APDU) (*APDU, error) {
	switch resp.Type {
	case PDUTypeSimpleAck, PDUTypeComplexAck:
		c.metrics.RequestsSucceeded.Inc()
		return resp, nil
	case PDUTypeError:
		c.metrics.RequestsFailed.Inc()
		p, err := DecodeErrorPayload(resp.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: undecodable error PDU", ErrInvalidResponse)
		}
		return nil, &BACnetError{Class: p.Class, Code: p.Code}
	case PDUTypeReject:
		c.metrics.RequestsFailed.Inc()
		return nil, &RejectError{InvokeID: resp.InvokeID, Reason: RejectReason(resp.Service)}
	case PDUTypeAbort:
		c.metrics.RequestsFailed.Inc()
		return nil, &AbortError{InvokeID: resp.InvokeID, Server: true, Reason: AbortReason(resp.Service)}
	}
	return nil, fmt.Errorf("%w: unexpected PDU type %s", ErrInvalidResponse, resp.Type)
}

// sendUnconfirmed issues an unconfirmed request, broadcast when addr is nil.
func (c *Client) sendUnconfirmed(ctx context.Context, addr *net.UDPAddr, service UnconfirmedServiceChoice, payload []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	var (
		packet []byte
		err    error
	)
	if addr == nil {
		packet = Frame(BVLCOriginalBroadcastNPDU, false, EncodeUnconfirmedRequest(service, payload))
		err = c.transport.Broadcast(ctx, DefaultPort, packet)
	} else {
		packet = Frame(BVLCOriginalUnicastNPDU, false, EncodeUnconfirmedRequest(service, payload))
		err = c.transport.Send(ctx, addr, packet)
	}
	if err != nil {
		return fmt.Errorf("send unconfirmed request: %w", err)
	}
	c.metrics.BytesSent.Add(int64(len(packet)))
	return nil
}
