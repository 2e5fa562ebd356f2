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
	"encoding/binary"
	"math"
)

// BVLCHeader is the 4-octet BACnet Virtual Link Control header.
type BVLCHeader struct {
	Type     BVLCType
	Function BVLCFunction
	Length   uint16
}

// EncodeBVLC encodes a BVLC header for an NPDU of the given length.
func EncodeBVLC(function BVLCFunction, npduLength int) []byte {
	buf := make([]byte, 4)
	buf[0] = byte(BVLCTypeBACnetIP)
	buf[1] = byte(function)
	binary.BigEndian.PutUint16(buf[2:], uint16(4+npduLength))
	return buf
}

// DecodeBVLC decodes a BVLC header.
func DecodeBVLC(data []byte) (*BVLCHeader, error) {
	if len(data) < 4 {
		return nil, &MalformedAPDUError{Offset: len(data), Reason: "short BVLC header"}
	}
	h := &BVLCHeader{
		Type:     BVLCType(data[0]),
		Function: BVLCFunction(data[1]),
		Length:   binary.BigEndian.Uint16(data[2:4]),
	}
	if h.Type != BVLCTypeBACnetIP {
		return nil, &MalformedAPDUError{Offset: 0, Reason: "not a BACnet/IP frame"}
	}
	return h, nil
}

// NPDU is the network layer header.
type NPDU struct {
	Version     uint8
	Control     NPDUControl
	DestNet     uint16
	DestAddr    []byte
	HopCount    uint8
	SrcNet      uint16
	SrcAddr     []byte
	MessageType uint8
	Data        []byte
}

// EncodeNPDU encodes a local (non-routed) NPDU header.
func EncodeNPDU(expectingReply bool) []byte {
	control := NPDUControlPriorityNormal
	if expectingReply {
		control |= NPDUControlExpectingReply
	}
	return []byte{0x01, byte(control)}
}

// DecodeNPDU decodes an NPDU header and returns the offset where the APDU
// begins.
func DecodeNPDU(data []byte) (*NPDU, int, error) {
	if len(data) < 2 {
		return nil, 0, &MalformedAPDUError{Offset: len(data), Reason: "short NPDU"}
	}
	n := &NPDU{Version: data[0], Control: NPDUControl(data[1])}
	if n.Version != 0x01 {
		return nil, 0, &MalformedAPDUError{Offset: 0, Reason: "unsupported NPDU version"}
	}

	off := 2
	if n.Control&NPDUControlDestSpecifier != 0 {
		if len(data) < off+3 {
			return nil, 0, &MalformedAPDUError{Offset: off, Reason: "truncated destination specifier"}
		}
		n.DestNet = binary.BigEndian.Uint16(data[off:])
		alen := int(data[off+2])
		off += 3
		if len(data) < off+alen+1 {
			return nil, 0, &MalformedAPDUError{Offset: off, Reason: "truncated destination address"}
		}
		n.DestAddr = append([]byte(nil), data[off:off+alen]...)
		off += alen
		n.HopCount = data[off]
		off++
	}
	if n.Control&NPDUControlSourceSpecifier != 0 {
		if len(data) < off+3 {
			return nil, 0, &MalformedAPDUError{Offset: off, Reason: "truncated source specifier"}
		}
		n.SrcNet = binary.BigEndian.Uint16(data[off:])
		alen := int(data[off+2])
		off += 3
		if len(data) < off+alen {
			return nil, 0, &MalformedAPDUError{Offset: off, Reason: "truncated source address"}
		}
		n.SrcAddr = append([]byte(nil), data[off:off+alen]...)
		off += alen
	}
	if n.Control&NPDUControlNetworkLayerMessage != 0 {
		if len(data) < off+1 {
			return nil, 0, &MalformedAPDUError{Offset: off, Reason: "truncated network message type"}
		}
		n.MessageType = data[off]
		off++
	}
	n.Data = data[off:]
	return n, off, nil
}

// APDU is a decoded application layer PDU.
type APDU struct {
	Type     PDUType
	InvokeID uint8
	Service  uint8
	Data     []byte
}

// EncodeConfirmedRequest encodes a confirmed service request APDU.
// The second octet carries max-segments (none) and max-APDU selector.
func EncodeConfirmedRequest(invokeID uint8, service ConfirmedServiceChoice, payload []byte) []byte {
	buf := make([]byte, 0, 4+len(payload))
	buf = append(buf, byte(PDUTypeConfirmedRequest), 0x05, invokeID, byte(service))
	return append(buf, payload...)
}

// EncodeUnconfirmedRequest encodes an unconfirmed service request APDU.
func EncodeUnconfirmedRequest(service UnconfirmedServiceChoice, payload []byte) []byte {
	buf := make([]byte, 0, 2+len(payload))
	buf = append(buf, byte(PDUTypeUnconfirmedRequest), byte(service))
	return append(buf, payload...)
}

// EncodeSimpleAck encodes a SimpleACK for a confirmed request.
func EncodeSimpleAck(invokeID uint8, service ConfirmedServiceChoice) []byte {
	return []byte{byte(PDUTypeSimpleAck), invokeID, byte(service)}
}

// EncodeComplexAck encodes a ComplexACK carrying a service result payload.
func EncodeComplexAck(invokeID uint8, service ConfirmedServiceChoice, payload []byte) []byte {
	buf := make([]byte, 0, 3+len(payload))
	buf = append(buf, byte(PDUTypeComplexAck), invokeID, byte(service))
	return append(buf, payload...)
}

// EncodeErrorAPDU encodes an Error-PDU for a confirmed request.
func EncodeErrorAPDU(invokeID uint8, service ConfirmedServiceChoice, class ErrorClass, code ErrorCode) []byte {
	payload := ErrorPayload{Class: class, Code: code}.Encode()
	buf := make([]byte, 0, 3+len(payload))
	buf = append(buf, byte(PDUTypeError), invokeID, byte(service))
	return append(buf, payload...)
}

// EncodeRejectAPDU encodes a Reject-PDU.
func EncodeRejectAPDU(invokeID uint8, reason RejectReason) []byte {
	return []byte{byte(PDUTypeReject), invokeID, byte(reason)}
}

// EncodeAbortAPDU encodes an Abort-PDU.
func EncodeAbortAPDU(invokeID uint8, server bool, reason AbortReason) []byte {
	first := byte(PDUTypeAbort)
	if server {
		first |= 0x01
	}
	return []byte{first, invokeID, byte(reason)}
}

// DecodeAPDU decodes an APDU. Segmented PDUs are not supported and are
// reported as malformed.
func DecodeAPDU(data []byte) (*APDU, error) {
	if len(data) < 1 {
		return nil, &MalformedAPDUError{Offset: 0, Reason: "empty APDU"}
	}
	a := &APDU{Type: PDUType(data[0] & 0xF0)}
	switch a.Type {
	case PDUTypeConfirmedRequest:
		if data[0]&0x08 != 0 {
			return nil, &MalformedAPDUError{Offset: 0, Reason: "segmented request"}
		}
		if len(data) < 4 {
			return nil, &MalformedAPDUError{Offset: len(data), Reason: "short confirmed request"}
		}
		a.InvokeID = data[2]
		a.Service = data[3]
		a.Data = data[4:]
	case PDUTypeUnconfirmedRequest:
		if len(data) < 2 {
			return nil, &MalformedAPDUError{Offset: len(data), Reason: "short unconfirmed request"}
		}
		a.Service = data[1]
		a.Data = data[2:]
	case PDUTypeSimpleAck:
		if len(data) < 3 {
			return nil, &MalformedAPDUError{Offset: len(data), Reason: "short simple ack"}
		}
		a.InvokeID = data[1]
		a.Service = data[2]
	case PDUTypeComplexAck:
		if data[0]&0x08 != 0 {
			return nil, &MalformedAPDUError{Offset: 0, Reason: "segmented ack"}
		}
		if len(data) < 3 {
			return nil, &MalformedAPDUError{Offset: len(data), Reason: "short complex ack"}
		}
		a.InvokeID = data[1]
		a.Service = data[2]
		a.Data = data[3:]
	case PDUTypeError, PDUTypeReject, PDUTypeAbort:
		if len(data) < 3 {
			return nil, &MalformedAPDUError{Offset: len(data), Reason: "short " + a.Type.String()}
		}
		a.InvokeID = data[1]
		a.Service = data[2] // reject/abort reason lives here
		a.Data = data[3:]
	default:
		return nil, &MalformedAPDUError{Offset: 0, Reason: "unknown PDU type"}
	}
	return a, nil
}

// Frame wraps an APDU in NPDU and BVLC headers, producing a complete
// BACnet/IP datagram.
func Frame(function BVLCFunction, expectingReply bool, apdu []byte) []byte {
	npdu := EncodeNPDU(expectingReply)
	buf := make([]byte, 0, 4+len(npdu)+len(apdu))
	buf = append(buf, EncodeBVLC(function, len(npdu)+len(apdu))...)
	buf = append(buf, npdu...)
	return append(buf, apdu...)
}

// tag encoding

func appendTagHeader(buf []byte, number uint8, class TagClass, length int) []byte {
	if number < 15 {
		b := (number << 4) | (uint8(class) << 3)
		if length < 5 {
			return append(buf, b|uint8(length))
		}
		buf = append(buf, b|0x05)
	} else {
		b := uint8(0xF0) | (uint8(class) << 3)
		if length < 5 {
			return append(buf, b|uint8(length), number)
		}
		buf = append(buf, b|0x05, number)
	}
	switch {
	case length < 254:
		return append(buf, byte(length))
	case length < 1<<16:
		return append(buf, 254, byte(length>>8), byte(length))
	default:
		return append(buf, 255, byte(length>>24), byte(length>>16), byte(length>>8), byte(length))
	}
}

func appendOpeningTag(buf []byte, number uint8) []byte {
	return append(buf, (number<<4)|0x0E)
}

func appendClosingTag(buf []byte, number uint8) []byte {
	return append(buf, (number<<4)|0x0F)
}

func unsignedBytes(v uint32) []byte {
	switch {
	case v < 1<<8:
		return []byte{byte(v)}
	case v < 1<<16:
		return []byte{byte(v >> 8), byte(v)}
	case v < 1<<24:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	}
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func signedBytes(v int32) []byte {
	switch {
	case v >= -1<<7 && v < 1<<7:
		return []byte{byte(v)}
	case v >= -1<<15 && v < 1<<15:
		return []byte{byte(v >> 8), byte(v)}
	case v >= -1<<23 && v < 1<<23:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	}
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func appendContextUnsigned(buf []byte, number uint8, v uint32) []byte {
	raw := unsignedBytes(v)
	buf = appendTagHeader(buf, number, TagClassContext, len(raw))
	return append(buf, raw...)
}

func appendContextEnumerated(buf []byte, number uint8, v uint32) []byte {
	return appendContextUnsigned(buf, number, v)
}

func appendContextObjectID(buf []byte, number uint8, oid ObjectIdentifier) []byte {
	buf = appendTagHeader(buf, number, TagClassContext, 4)
	return binary.BigEndian.AppendUint32(buf, oid.Pack())
}

func appendContextBoolean(buf []byte, number uint8, v bool) []byte {
	buf = appendTagHeader(buf, number, TagClassContext, 1)
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// AppendApplicationValue appends v as an application-tagged value.
func AppendApplicationValue(buf []byte, v Value) []byte {
	switch v.Kind() {
	case KindNull:
		return appendTagHeader(buf, uint8(TagNull), TagClassApplication, 0)
	case KindBoolean:
		// boolean payload rides in the length field
		b, _ := v.AsBoolean()
		if b {
			return append(buf, 0x11)
		}
		return append(buf, 0x10)
	case KindUnsigned:
		u, _ := v.AsUnsigned()
		raw := unsignedBytes(u)
		buf = appendTagHeader(buf, uint8(TagUnsignedInt), TagClassApplication, len(raw))
		return append(buf, raw...)
	case KindSigned:
		i, _ := v.AsSigned()
		raw := signedBytes(i)
		buf = appendTagHeader(buf, uint8(TagSignedInt), TagClassApplication, len(raw))
		return append(buf, raw...)
	case KindReal:
		f, _ := v.AsReal()
		buf = appendTagHeader(buf, uint8(TagReal), TagClassApplication, 4)
		return binary.BigEndian.AppendUint32(buf, math.Float32bits(f))
	case KindDouble:
		d, _ := v.AsDouble()
		buf = appendTagHeader(buf, uint8(TagDouble), TagClassApplication, 8)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(d))
	case KindString:
		s, _ := v.AsString()
		buf = appendTagHeader(buf, uint8(TagCharacterString), TagClassApplication, len(s)+1)
		buf = append(buf, 0) // UTF-8 character set
		return append(buf, s...)
	case KindEnumerated:
		u, _ := v.AsEnumerated()
		raw := unsignedBytes(u)
		buf = appendTagHeader(buf, uint8(TagEnumerated), TagClassApplication, len(raw))
		return append(buf, raw...)
	case KindDate:
		d, _ := v.AsDate()
		buf = appendTagHeader(buf, uint8(TagDate), TagClassApplication, 4)
		return append(buf, byte(d.Year-1900), d.Month, d.Day, d.DayOfWeek)
	case KindTime:
		t, _ := v.AsTime()
		buf = appendTagHeader(buf, uint8(TagTime), TagClassApplication, 4)
		return append(buf, t.Hour, t.Minute, t.Second, t.Hundredths)
	case KindObjectID:
		oid, _ := v.AsObjectID()
		buf = appendTagHeader(buf, uint8(TagObjectID), TagClassApplication, 4)
		return binary.BigEndian.AppendUint32(buf, oid.Pack())
	}
	return buf
}

// tag decoding

type tagInfo struct {
	Number  uint8
	Class   TagClass
	Length  int
	Opening bool
	Closing bool
	// Boolean application tags carry their value in the length field.
	BoolValue bool
}

// decoder is a cursor over APDU service data. All read methods return
// MalformedAPDUError with the current offset on truncated or inconsistent
// input; none of them panic.
type decoder struct {
	data []byte
	pos  int
}

func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

func (d *decoder) malformed(reason string) error {
	return &MalformedAPDUError{Offset: d.pos, Reason: reason}
}

func (d *decoder) remaining() int { return len(d.data) - d.pos }

// readTag consumes a tag header and, for primitive tags, leaves the cursor
// at the first content octet.
func (d *decoder) readTag() (tagInfo, error) {
	var t tagInfo
	if d.remaining() < 1 {
		return t, d.malformed("expected tag")
	}
	first := d.data[d.pos]
	d.pos++
	t.Number = first >> 4
	t.Class = TagClass((first >> 3) & 0x01)
	lvt := first & 0x07

	if t.Number == 0x0F {
		if d.remaining() < 1 {
			return t, d.malformed("truncated extended tag number")
		}
		t.Number = d.data[d.pos]
		d.pos++
	}

	if t.Class == TagClassContext {
		switch lvt {
		case 0x06:
			t.Opening = true
			return t, nil
		case 0x07:
			t.Closing = true
			return t, nil
		}
	}
	if t.Class == TagClassApplication && t.Number == uint8(TagBoolean) {
		t.BoolValue = lvt == 1
		t.Length = 0
		return t, nil
	}

	t.Length = int(lvt)
	if lvt == 0x05 {
		if d.remaining() < 1 {
			return t, d.malformed("truncated extended length")
		}
		ext := d.data[d.pos]
		d.pos++
		switch ext {
		case 254:
			if d.remaining() < 2 {
				return t, d.malformed("truncated 16-bit length")
			}
			t.Length = int(binary.BigEndian.Uint16(d.data[d.pos:]))
			d.pos += 2
		case 255:
			if d.remaining() < 4 {
				return t, d.malformed("truncated 32-bit length")
			}
			t.Length = int(binary.BigEndian.Uint32(d.data[d.pos:]))
			d.pos += 4
		default:
			t.Length = int(ext)
		}
	}
	if t.Length > d.remaining() {
		return t, d.malformed("tag content exceeds buffer")
	}
	return t, nil
}

// peekTag reads the next tag without consuming it.
func (d *decoder) peekTag() (tagInfo, error) {
	save := d.pos
	t, err := d.readTag()
	d.pos = save
	return t, err
}

func (d *decoder) content(length int) []byte {
	c := d.data[d.pos : d.pos+length]
	d.pos += length
	return c
}

func decodeUnsignedContent(c []byte) uint32 {
	var v uint32
	for _, b := range c {
		v = v<<8 | uint32(b)
	}
	return v
}

func decodeSignedContent(c []byte) int32 {
	if len(c) == 0 {
		return 0
	}
	v := int32(int8(c[0]))
	for _, b := range c[1:] {
		v = v<<8 | int32(b)
	}
	return v
}

// contextUnsigned consumes a context tag with the given number holding an
// unsigned value.
func (d *decoder) contextUnsigned(number uint8) (uint32, error) {
	t, err := d.readTag()
	if err != nil {
		return 0, err
	}
	if t.Class != TagClassContext || t.Number != number || t.Opening || t.Closing {
		return 0, d.malformed("expected context unsigned")
	}
	if t.Length < 1 || t.Length > 4 {
		return 0, d.malformed("bad unsigned length")
	}
	return decodeUnsignedContent(d.content(t.Length)), nil
}

// contextObjectID consumes a context tag holding a packed object identifier.
func (d *decoder) contextObjectID(number uint8) (ObjectIdentifier, error) {
	t, err := d.readTag()
	if err != nil {
		return ObjectIdentifier{}, err
	}
	if t.Class != TagClassContext || t.Number != number || t.Length != 4 {
		return ObjectIdentifier{}, d.malformed("expected context object identifier")
	}
	return UnpackObjectIdentifier(binary.BigEndian.Uint32(d.content(4))), nil
}

// openingTag consumes an opening tag with the given number.
func (d *decoder) openingTag(number uint8) error {
	t, err := d.readTag()
	if err != nil {
		return err
	}
	if !t.Opening || t.Number != number {
		return d.malformed("expected opening tag")
	}
	return nil
}

// closingTag consumes a closing tag with the given number.
func (d *decoder) closingTag(number uint8) error {
	t, err := d.readTag()
	if err != nil {
		return err
	}
	if !t.Closing || t.Number != number {
		return d.malformed("expected closing tag")
	}
	return nil
}

// atClosingTag reports whether the next tag closes the given context.
func (d *decoder) atClosingTag(number uint8) bool {
	t, err := d.peekTag()
	return err == nil && t.Closing && t.Number == number
}

// applicationValue consumes one application-tagged value.
func (d *decoder) applicationValue() (Value, error) {
	t, err := d.readTag()
	if err != nil {
		return Value{}, err
	}
	if t.Class != TagClassApplication || t.Opening || t.Closing {
		return Value{}, d.malformed("expected application tag")
	}
	switch ApplicationTag(t.Number) {
	case TagNull:
		return Null(), nil
	case TagBoolean:
		return Boolean(t.BoolValue), nil
	case TagUnsignedInt:
		if t.Length < 1 || t.Length > 4 {
			return Value{}, d.malformed("bad unsigned length")
		}
		return Unsigned(decodeUnsignedContent(d.content(t.Length))), nil
	case TagSignedInt:
		if t.Length < 1 || t.Length > 4 {
			return Value{}, d.malformed("bad signed length")
		}
		return Signed(decodeSignedContent(d.content(t.Length))), nil
	case TagReal:
		if t.Length != 4 {
			return Value{}, d.malformed("bad real length")
		}
		return Real(math.Float32frombits(binary.BigEndian.Uint32(d.content(4)))), nil
	case TagDouble:
		if t.Length != 8 {
			return Value{}, d.malformed("bad double length")
		}
		return DoubleValue(math.Float64frombits(binary.BigEndian.Uint64(d.content(8)))), nil
	case TagCharacterString:
		if t.Length < 1 {
			return Value{}, d.malformed("bad character string length")
		}
		c := d.content(t.Length)
		// first octet selects the character set; only UTF-8 is produced
		return String(string(c[1:])), nil
	case TagEnumerated:
		if t.Length < 1 || t.Length > 4 {
			return Value{}, d.malformed("bad enumerated length")
		}
		return Enumerated(decodeUnsignedContent(d.content(t.Length))), nil
	case TagDate:
		if t.Length != 4 {
			return Value{}, d.malformed("bad date length")
		}
		c := d.content(4)
		return DateValue(Date{Year: uint16(c[0]) + 1900, Month: c[1], Day: c[2], DayOfWeek: c[3]}), nil
	case TagTime:
		if t.Length != 4 {
			return Value{}, d.malformed("bad time length")
		}
		c := d.content(4)
		return TimeValue(TimeOfDay{Hour: c[0], Minute: c[1], Second: c[2], Hundredths: c[3]}), nil
	case TagObjectID:
		if t.Length != 4 {
			return Value{}, d.malformed("bad object identifier length")
		}
		return ObjectIDValue(UnpackObjectIdentifier(binary.BigEndian.Uint32(d.content(4)))), nil
	}
	return Value{}, d.malformed("unsupported application tag")
}
