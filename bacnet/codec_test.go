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

package bacnet_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KB-perByte/gobacnet/bacnet"
)

func TestBVLCRoundTrip(t *testing.T) {
	hdr := bacnet.EncodeBVLC(bacnet.BVLCOriginalUnicastNPDU, 2)

	decoded, err := bacnet.DecodeBVLC(hdr)
	require.NoError(t, err)
	assert.Equal(t, bacnet.BVLCOriginalUnicastNPDU, decoded.Function)
	assert.Equal(t, uint16(6), decoded.Length)
}

func TestDecodeBVLCRejectsBadType(t *testing.T) {
	_, err := bacnet.DecodeBVLC([]byte{0x99, 0x0A, 0x00, 0x04})
	assert.Error(t, err)
}

func TestDecodeBVLCRejectsShortHeader(t *testing.T) {
	_, err := bacnet.DecodeBVLC([]byte{0x81, 0x0A})
	assert.Error(t, err)
}

func TestNPDURoundTrip(t *testing.T) {
	encoded := bacnet.EncodeNPDU(true)

	npdu, offset, err := bacnet.DecodeNPDU(encoded)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), npdu.Version)
	assert.NotZero(t, npdu.Control&bacnet.NPDUControlExpectingReply)
	assert.Equal(t, len(encoded), offset)
}

func TestDecodeAPDUVariants(t *testing.T) {
	tests := []struct {
		name    string
		frame   []byte
		pduType bacnet.PDUType
		invoke  uint8
	}{
		{
			name:    "confirmed request",
			frame:   bacnet.EncodeConfirmedRequest(42, bacnet.ServiceReadProperty, []byte{0x0c}),
			pduType: bacnet.PDUTypeConfirmedRequest,
			invoke:  42,
		},
		{
			name:    "unconfirmed request",
			frame:   bacnet.EncodeUnconfirmedRequest(bacnet.ServiceWhoIs, nil),
			pduType: bacnet.PDUTypeUnconfirmedRequest,
		},
		{
			name:    "simple ack",
			frame:   bacnet.EncodeSimpleAck(7, bacnet.ServiceWriteProperty),
			pduType: bacnet.PDUTypeSimpleAck,
			invoke:  7,
		},
		{
			name:    "complex ack",
			frame:   bacnet.EncodeComplexAck(9, bacnet.ServiceReadProperty, []byte{0x44}),
			pduType: bacnet.PDUTypeComplexAck,
			invoke:  9,
		},
		{
			name:    "error",
			frame:   bacnet.EncodeErrorAPDU(3, bacnet.ServiceReadProperty, bacnet.ErrorClassObject, bacnet.ErrorCodeUnknownObject),
			pduType: bacnet.PDUTypeError,
			invoke:  3,
		},
		{
			name:    "reject",
			frame:   bacnet.EncodeRejectAPDU(5, bacnet.RejectReasonUnrecognizedService),
			pduType: bacnet.PDUTypeReject,
			invoke:  5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apdu, err := bacnet.DecodeAPDU(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.pduType, apdu.Type)
			assert.Equal(t, tt.invoke, apdu.InvokeID)
		})
	}
}

func TestDecodeAPDUMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated confirmed", []byte{0x00, 0x05}},
		{"truncated error", []byte{0x50, 0x03}},
		{"segmented request", []byte{0x08, 0x05, 0x01, 0x0c}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bacnet.DecodeAPDU(tt.data)
			require.Error(t, err)

			var malformed *bacnet.MalformedAPDUError
			assert.True(t, errors.As(err, &malformed))
		})
	}
}

func TestFrameBuildsCompleteDatagram(t *testing.T) {
	apdu := bacnet.EncodeUnconfirmedRequest(bacnet.ServiceWhoIs, nil)
	frame := bacnet.Frame(bacnet.BVLCOriginalBroadcastNPDU, false, apdu)

	hdr, err := bacnet.DecodeBVLC(frame)
	require.NoError(t, err)
	assert.Equal(t, bacnet.BVLCOriginalBroadcastNPDU, hdr.Function)

	npdu, offset, err := bacnet.DecodeNPDU(frame[4:])
	require.NoError(t, err)
	assert.Zero(t, npdu.Control&bacnet.NPDUControlExpectingReply)

	decoded, err := bacnet.DecodeAPDU(frame[4+offset:])
	require.NoError(t, err)
	assert.Equal(t, bacnet.PDUTypeUnconfirmedRequest, decoded.Type)
	assert.Equal(t, uint8(bacnet.ServiceWhoIs), decoded.Service)
}

func TestWhoIsRoundTrip(t *testing.T) {
	low := uint32(100)
	high := uint32(200)

	tests := []struct {
		name string
		req  bacnet.WhoIsRequest
	}{
		{"open", bacnet.WhoIsRequest{}},
		{"ranged", bacnet.WhoIsRequest{Low: &low, High: &high}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := bacnet.DecodeWhoIsRequest(tt.req.Encode())
			require.NoError(t, err)
			if tt.req.Low == nil {
				assert.Nil(t, decoded.Low)
			} else {
				require.NotNil(t, decoded.Low)
				assert.Equal(t, *tt.req.Low, *decoded.Low)
				assert.Equal(t, *tt.req.High, *decoded.High)
			}
		})
	}
}

func TestWhoIsMatches(t *testing.T) {
	low := uint32(100)
	high := uint32(200)
	open := bacnet.WhoIsRequest{}
	ranged := bacnet.WhoIsRequest{Low: &low, High: &high}

	assert.True(t, open.Matches(1))
	assert.True(t, ranged.Matches(100))
	assert.True(t, ranged.Matches(200))
	assert.False(t, ranged.Matches(99))
	assert.False(t, ranged.Matches(201))
}

func TestIAmRoundTrip(t *testing.T) {
	req := bacnet.IAmRequest{
		Device:       bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1234),
		MaxAPDU:      bacnet.MaxAPDULength,
		Segmentation: bacnet.SegmentationNone,
		VendorID:     999,
	}

	decoded, err := bacnet.DecodeIAmRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req.Device, decoded.Device)
	assert.Equal(t, req.MaxAPDU, decoded.MaxAPDU)
	assert.Equal(t, req.Segmentation, decoded.Segmentation)
	assert.Equal(t, req.VendorID, decoded.VendorID)
}

func TestReadPropertyRoundTrip(t *testing.T) {
	req := bacnet.ReadPropertyRequest{
		Object:     bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		Property:   bacnet.PropertyPresentValue,
		ArrayIndex: bacnet.NoArrayIndex,
	}

	decoded, err := bacnet.DecodeReadPropertyRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req.Object, decoded.Object)
	assert.Equal(t, req.Property, decoded.Property)
	assert.Equal(t, bacnet.NoArrayIndex, decoded.ArrayIndex)
}

func TestReadPropertyACKRoundTrip(t *testing.T) {
	ack := bacnet.ReadPropertyACK{
		Object:     bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		Property:   bacnet.PropertyPresentValue,
		ArrayIndex: bacnet.NoArrayIndex,
		Values:     []bacnet.Value{bacnet.Real(72.5)},
	}

	decoded, err := bacnet.DecodeReadPropertyACK(ack.Encode())
	require.NoError(t, err)
	require.Len(t, decoded.Values, 1)

	f, ok := decoded.Values[0].AsReal()
	require.True(t, ok)
	assert.InDelta(t, 72.5, f, 0.001)
}

func TestWritePropertyRoundTrip(t *testing.T) {
	req := bacnet.WritePropertyRequest{
		Object:     bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogOutput, 1),
		Property:   bacnet.PropertyPresentValue,
		ArrayIndex: bacnet.NoArrayIndex,
		Value:      bacnet.Real(55),
		Priority:   8,
	}

	decoded, err := bacnet.DecodeWritePropertyRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req.Object, decoded.Object)
	assert.Equal(t, uint8(8), decoded.Priority)
	assert.True(t, req.Value.Equal(decoded.Value))
}

func TestWritePropertyOmittedPriority(t *testing.T) {
	req := bacnet.WritePropertyRequest{
		Object:     bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogValue, 2),
		Property:   bacnet.PropertyPresentValue,
		ArrayIndex: bacnet.NoArrayIndex,
		Value:      bacnet.Real(1),
	}

	decoded, err := bacnet.DecodeWritePropertyRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, uint8(0), decoded.Priority)
}

func TestSubscribeCOVRoundTrip(t *testing.T) {
	confirmed := false
	lifetime := uint32(300)
	req := bacnet.SubscribeCOVRequest{
		ProcessID: 7,
		Object:    bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		Confirmed: &confirmed,
		Lifetime:  &lifetime,
	}

	decoded, err := bacnet.DecodeSubscribeCOVRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, uint32(7), decoded.ProcessID)
	require.NotNil(t, decoded.Lifetime)
	assert.Equal(t, uint32(300), *decoded.Lifetime)
	assert.False(t, decoded.IsCancellation())
}

func TestSubscribeCOVCancellation(t *testing.T) {
	req := bacnet.SubscribeCOVRequest{
		ProcessID: 7,
		Object:    bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
	}

	decoded, err := bacnet.DecodeSubscribeCOVRequest(req.Encode())
	require.NoError(t, err)
	assert.True(t, decoded.IsCancellation())
}

func TestCOVNotificationRoundTrip(t *testing.T) {
	notif := bacnet.COVNotification{
		ProcessID:     7,
		Device:        bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 100),
		Object:        bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		TimeRemaining: 240,
		Values: []bacnet.PropertyValue{
			{Property: bacnet.PropertyPresentValue, Value: bacnet.Real(72.5)},
			{Property: bacnet.PropertyStatusFlags, Value: bacnet.Unsigned(0)},
		},
	}

	decoded, err := bacnet.DecodeCOVNotification(notif.Encode())
	require.NoError(t, err)
	assert.Equal(t, notif.ProcessID, decoded.ProcessID)
	assert.Equal(t, notif.Object, decoded.Object)
	require.Len(t, decoded.Values, 2)
	assert.Equal(t, bacnet.PropertyPresentValue, decoded.Values[0].Property)
}

func TestReadRangeRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	req := bacnet.ReadRangeRequest{
		Object:   bacnet.NewObjectIdentifier(bacnet.ObjectTypeTrendLog, 1),
		Property: bacnet.PropertyLogBuffer,
		Start:    &start,
		Count:    50,
	}

	decoded, err := bacnet.DecodeReadRangeRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req.Object, decoded.Object)
	require.NotNil(t, decoded.Start)
	assert.True(t, decoded.Start.Equal(start))
	assert.Equal(t, uint32(50), decoded.Count)
}

func TestReadRangeACKRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	ack := bacnet.ReadRangeACK{
		Object:    bacnet.NewObjectIdentifier(bacnet.ObjectTypeTrendLog, 1),
		Property:  bacnet.PropertyLogBuffer,
		ItemCount: 2,
		Items: []bacnet.LogRecord{
			{Timestamp: ts, Value: bacnet.Real(72.0)},
			{Timestamp: ts.Add(5 * time.Minute), Value: bacnet.Real(72.5), Status: bacnet.StatusFlags{InAlarm: true}},
		},
	}

	decoded, err := bacnet.DecodeReadRangeACK(ack.Encode())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), decoded.ItemCount)
	require.Len(t, decoded.Items, 2)
	assert.True(t, decoded.Items[0].Timestamp.Equal(ts))
	assert.True(t, decoded.Items[1].Status.InAlarm)
}

func TestAlarmSummaryRoundTrip(t *testing.T) {
	ack := bacnet.AlarmSummaryACK{
		Items: []bacnet.AlarmSummaryItem{
			{
				Object:          bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
				EventState:      bacnet.EventStateHighLimit,
				AcknowledgedSet: false,
			},
		},
	}

	decoded, err := bacnet.DecodeAlarmSummaryACK(ack.Encode())
	require.NoError(t, err)
	require.Len(t, decoded.Items, 1)
	assert.Equal(t, bacnet.EventStateHighLimit, decoded.Items[0].EventState)
}

func TestAcknowledgeAlarmRoundTrip(t *testing.T) {
	req := bacnet.AcknowledgeAlarmRequest{
		ProcessID:  1,
		Object:     bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		EventState: bacnet.EventStateHighLimit,
		Source:     "operator",
	}

	decoded, err := bacnet.DecodeAcknowledgeAlarmRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req.Object, decoded.Object)
	assert.Equal(t, req.EventState, decoded.EventState)
	assert.Equal(t, "operator", decoded.Source)
}

func TestApplicationValueRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value bacnet.Value
	}{
		{"null", bacnet.Null()},
		{"boolean", bacnet.Boolean(true)},
		{"unsigned small", bacnet.Unsigned(5)},
		{"unsigned large", bacnet.Unsigned(1 << 20)},
		{"real", bacnet.Real(72.5)},
		{"string", bacnet.String("Zone Temperature")},
		{"enumerated", bacnet.Enumerated(1)},
		{"object id", bacnet.ObjectIDValue(bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Carry the value through a ReadProperty ACK so it crosses the
			// application-tag codec both ways.
			ack := bacnet.ReadPropertyACK{
				Object:     bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogValue, 1),
				Property:   bacnet.PropertyPresentValue,
				ArrayIndex: bacnet.NoArrayIndex,
				Values:     []bacnet.Value{tt.value},
			}
			decoded, err := bacnet.DecodeReadPropertyACK(ack.Encode())
			require.NoError(t, err)
			require.Len(t, decoded.Values, 1)
			assert.True(t, tt.value.Equal(decoded.Values[0]), "got %s", decoded.Values[0])
		})
	}
}
