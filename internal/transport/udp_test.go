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

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTransport(t *testing.T) *UDPTransport {
	t.Helper()
	tr := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, tr.Open(context.Background()))
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestSendReceive(t *testing.T) {
	a := openTransport(t)
	b := openTransport(t)
	ctx := context.Background()

	payload := []byte{0x81, 0x0A, 0x00, 0x06, 0x01, 0x00}
	require.NoError(t, a.Send(ctx, b.LocalAddr(), payload))

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	data, from, err := b.Receive(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, a.LocalAddr().Port, from.Port)
}

func TestBroadcastOverride(t *testing.T) {
	a := openTransport(t)
	b := openTransport(t)
	ctx := context.Background()

	// Point "broadcast" at the peer so the test stays on loopback.
	a.SetBroadcastAddress(b.LocalAddr())

	payload := []byte{0xDE, 0xAD}
	require.NoError(t, a.Broadcast(ctx, 47808, payload))

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	data, _, err := b.Receive(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestReceiveHonorsDeadline(t *testing.T) {
	tr := openTransport(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := tr.Receive(ctx)
	assert.Error(t, err)
}

func TestCloseUnblocksReceive(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, tr.Open(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, _, err := tr.Receive(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock on Close")
	}
	assert.True(t, tr.IsClosed())
}

func TestSendAfterCloseFails(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, tr.Open(context.Background()))
	require.NoError(t, tr.Close())

	err := tr.Send(context.Background(), tr.LocalAddr(), []byte{0x01})
	assert.Error(t, err)
}

func TestReopen(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, tr.Open(context.Background()))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()
	assert.False(t, tr.IsClosed())
}
