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

import "time"

// WhoIsRequest asks devices in an instance range to announce themselves.
// Nil bounds mean an unbounded request addressed to every device.
type WhoIsRequest struct {
	Low  *uint32
	High *uint32
}

func (r WhoIsRequest) Encode() []byte {
	if r.Low == nil || r.High == nil {
		return nil
	}
	var buf []byte
	buf = appendContextUnsigned(buf, 0, *r.Low)
	return appendContextUnsigned(buf, 1, *r.High)
}

func DecodeWhoIsRequest(data []byte) (*WhoIsRequest, error) {
	r := &WhoIsRequest{}
	if len(data) == 0 {
		return r, nil
	}
	d := newDecoder(data)
	low, err := d.contextUnsigned(0)
	if err != nil {
		return nil, err
	}
	high, err := d.contextUnsigned(1)
	if err != nil {
		return nil, err
	}
	r.Low, r.High = &low, &high
	return r, nil
}

// Matches reports whether a device instance falls inside the request range.
func (r WhoIsRequest) Matches(instance uint32) bool {
	if r.Low == nil || r.High == nil {
		return true
	}
	return instance >= *r.Low && instance <= *r.High
}

// IAmRequest announces a device's identity and transport limits.
type IAmRequest struct {
	Device       ObjectIdentifier
	MaxAPDU      uint32
	Segmentation Segmentation
	VendorID     uint32
}

func (r IAmRequest) Encode() []byte {
	var buf []byte
	buf = AppendApplicationValue(buf, ObjectIDValue(r.Device))
	buf = AppendApplicationValue(buf, Unsigned(r.MaxAPDU))
	buf = AppendApplicationValue(buf, Enumerated(uint32(r.Segmentation)))
	return AppendApplicationValue(buf, Unsigned(r.VendorID))
}

func DecodeIAmRequest(data []byte) (*IAmRequest, error) {
	d := newDecoder(data)
	oid, err := d.applicationValue()
	if err != nil {
		return nil, err
	}
	dev, ok := oid.AsObjectID()
	if !ok || dev.Type != ObjectTypeDevice {
		return nil, d.malformed("I-Am must open with a device identifier")
	}
	maxAPDU, err := d.applicationValue()
	if err != nil {
		return nil, err
	}
	seg, err := d.applicationValue()
	if err != nil {
		return nil, err
	}
	vendor, err := d.applicationValue()
	if err != nil {
		return nil, err
	}
	r := &IAmRequest{Device: dev}
	r.MaxAPDU, _ = maxAPDU.AsUnsigned()
	s, _ := seg.AsEnumerated()
	r.Segmentation = Segmentation(s)
	r.VendorID, _ = vendor.AsUnsigned()
	return r, nil
}

// NoArrayIndex marks a property access on the whole value rather than a
// single array element.
const NoArrayIndex = ^uint32(0)

// ReadPropertyRequest reads one property of one object.
type ReadPropertyRequest struct {
	Object     ObjectIdentifier
	Property   PropertyIdentifier
	ArrayIndex uint32
}

func (r ReadPropertyRequest) Encode() []byte {
	var buf []byte
	buf = appendContextObjectID(buf, 0, r.Object)
	buf = appendContextEnumerated(buf, 1, uint32(r.Property))
	if r.ArrayIndex != NoArrayIndex {
		buf = appendContextUnsigned(buf, 2, r.ArrayIndex)
	}
	return buf
}

func DecodeReadPropertyRequest(data []byte) (*ReadPropertyRequest, error) {
	d := newDecoder(data)
	r := &ReadPropertyRequest{ArrayIndex: NoArrayIndex}
	var err error
	if r.Object, err = d.contextObjectID(0); err != nil {
		return nil, err
	}
	prop, err := d.contextUnsigned(1)
	if err != nil {
		return nil, err
	}
	r.Property = PropertyIdentifier(prop)
	if d.remaining() > 0 {
		if r.ArrayIndex, err = d.contextUnsigned(2); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ReadPropertyACK carries the result of a ReadProperty request. Array-valued
// properties (the priority array, the object list) return every element in
// Values.
type ReadPropertyACK struct {
	Object     ObjectIdentifier
	Property   PropertyIdentifier
	ArrayIndex uint32
	Values     []Value
}

// Value returns the single result value, or Null for an empty result.
func (a ReadPropertyACK) Value() Value {
	if len(a.Values) == 0 {
		return Null()
	}
	return a.Values[0]
}

func (a ReadPropertyACK) Encode() []byte {
	var buf []byte
	buf = appendContextObjectID(buf, 0, a.Object)
	buf = appendContextEnumerated(buf, 1, uint32(a.Property))
	if a.ArrayIndex != NoArrayIndex {
		buf = appendContextUnsigned(buf, 2, a.ArrayIndex)
	}
	buf = appendOpeningTag(buf, 3)
	for _, v := range a.Values {
		buf = AppendApplicationValue(buf, v)
	}
	return appendClosingTag(buf, 3)
}

func DecodeReadPropertyACK(data []byte) (*ReadPropertyACK, error) {
	d := newDecoder(data)
	a := &ReadPropertyACK{ArrayIndex: NoArrayIndex}
	var err error
	if a.Object, err = d.contextObjectID(0); err != nil {
		return nil, err
	}
	prop, err := d.contextUnsigned(1)
	if err != nil {
		return nil, err
	}
	a.Property = PropertyIdentifier(prop)
	if t, terr := d.peekTag(); terr == nil && t.Class == TagClassContext && t.Number == 2 && !t.Opening {
		if a.ArrayIndex, err = d.contextUnsigned(2); err != nil {
			return nil, err
		}
	}
	if err = d.openingTag(3); err != nil {
		return nil, err
	}
	for !d.atClosingTag(3) {
		v, verr := d.applicationValue()
		if verr != nil {
			return nil, verr
		}
		a.Values = append(a.Values, v)
	}
	if err = d.closingTag(3); err != nil {
		return nil, err
	}
	return a, nil
}

// WritePropertyRequest writes one property. A Null value at a commandable
// priority relinquishes that slot. Priority 0 means no priority octet on
// the wire.
type WritePropertyRequest struct {
	Object     ObjectIdentifier
	Property   PropertyIdentifier
	ArrayIndex uint32
	Value      Value
	Priority   uint8
}

func (r WritePropertyRequest) Encode() []byte {
	var buf []byte
	buf = appendContextObjectID(buf, 0, r.Object)
	buf = appendContextEnumerated(buf, 1, uint32(r.Property))
	if r.ArrayIndex != NoArrayIndex {
		buf = appendContextUnsigned(buf, 2, r.ArrayIndex)
	}
	buf = appendOpeningTag(buf, 3)
	buf = AppendApplicationValue(buf, r.Value)
	buf = appendClosingTag(buf, 3)
	if r.Priority != 0 {
		buf = appendContextUnsigned(buf, 4, uint32(r.Priority))
	}
	return buf
}

func DecodeWritePropertyRequest(data []byte) (*WritePropertyRequest, error) {
	d := newDecoder(data)
	r := &WritePropertyRequest{ArrayIndex: NoArrayIndex}
	var err error
	if r.Object, err = d.contextObjectID(0); err != nil {
		return nil, err
	}
	prop, err := d.contextUnsigned(1)
	if err != nil {
		return nil, err
	}
	r.Property = PropertyIdentifier(prop)
	if t, terr := d.peekTag(); terr == nil && t.Class == TagClassContext && t.Number == 2 && !t.Opening {
		if r.ArrayIndex, err = d.contextUnsigned(2); err != nil {
			return nil, err
		}
	}
	if err = d.openingTag(3); err != nil {
		return nil, err
	}
	if r.Value, err = d.applicationValue(); err != nil {
		return nil, err
	}
	if err = d.closingTag(3); err != nil {
		return nil, err
	}
	if d.remaining() > 0 {
		prio, perr := d.contextUnsigned(4)
		if perr != nil {
			return nil, perr
		}
		r.Priority = uint8(prio)
	}
	return r, nil
}

// SubscribeCOVRequest establishes, renews, or cancels a change-of-value
// subscription. Both Confirmed and Lifetime nil means cancellation.
type SubscribeCOVRequest struct {
	ProcessID uint32
	Object    ObjectIdentifier
	Confirmed *bool
	Lifetime  *uint32
}

// IsCancellation reports whether the request tears the subscription down.
func (r SubscribeCOVRequest) IsCancellation() bool {
	return r.Confirmed == nil && r.Lifetime == nil
}

func (r SubscribeCOVRequest) Encode() []byte {
	var buf []byte
	buf = appendContextUnsigned(buf, 0, r.ProcessID)
	buf = appendContextObjectID(buf, 1, r.Object)
	if r.Confirmed != nil {
		buf = appendContextBoolean(buf, 2, *r.Confirmed)
	}
	if r.Lifetime != nil {
		buf = appendContextUnsigned(buf, 3, *r.Lifetime)
	}
	return buf
}

func DecodeSubscribeCOVRequest(data []byte) (*SubscribeCOVRequest, error) {
	d := newDecoder(data)
	r := &SubscribeCOVRequest{}
	var err error
	if r.ProcessID, err = d.contextUnsigned(0); err != nil {
		return nil, err
	}
	if r.Object, err = d.contextObjectID(1); err != nil {
		return nil, err
	}
	if d.remaining() > 0 {
		t, terr := d.readTag()
		if terr != nil {
			return nil, terr
		}
		if t.Class != TagClassContext || t.Number != 2 || t.Length != 1 {
			return nil, d.malformed("expected issue-confirmed flag")
		}
		confirmed := d.content(1)[0] != 0
		r.Confirmed = &confirmed
	}
	if d.remaining() > 0 {
		lifetime, lerr := d.contextUnsigned(3)
		if lerr != nil {
			return nil, lerr
		}
		r.Lifetime = &lifetime
	}
	return r, nil
}

// PropertyValue pairs a property with its reported value inside a COV
// notification.
type PropertyValue struct {
	Property PropertyIdentifier
	Value    Value
}

// COVNotification reports changed property values for a monitored object.
type COVNotification struct {
	ProcessID     uint32
	Device        ObjectIdentifier
	Object        ObjectIdentifier
	TimeRemaining uint32
	Values        []PropertyValue
}

func (n COVNotification) Encode() []byte {
	var buf []byte
	buf = appendContextUnsigned(buf, 0, n.ProcessID)
	buf = appendContextObjectID(buf, 1, n.Device)
	buf = appendContextObjectID(buf, 2, n.Object)
	buf = appendContextUnsigned(buf, 3, n.TimeRemaining)
	buf = appendOpeningTag(buf, 4)
	for _, pv := range n.Values {
		buf = appendContextEnumerated(buf, 0, uint32(pv.Property))
		buf = appendOpeningTag(buf, 2)
		buf = AppendApplicationValue(buf, pv.Value)
		buf = appendClosingTag(buf, 2)
	}
	return appendClosingTag(buf, 4)
}

func DecodeCOVNotification(data []byte) (*COVNotification, error) {
	d := newDecoder(data)
	n := &COVNotification{}
	var err error
	if n.ProcessID, err = d.contextUnsigned(0); err != nil {
		return nil, err
	}
	if n.Device, err = d.contextObjectID(1); err != nil {
		return nil, err
	}
	if n.Object, err = d.contextObjectID(2); err != nil {
		return nil, err
	}
	if n.TimeRemaining, err = d.contextUnsigned(3); err != nil {
		return nil, err
	}
	if err = d.openingTag(4); err != nil {
		return nil, err
	}
	for !d.atClosingTag(4) {
		var pv PropertyValue
		prop, perr := d.contextUnsigned(0)
		if perr != nil {
			return nil, perr
		}
		pv.Property = PropertyIdentifier(prop)
		if err = d.openingTag(2); err != nil {
			return nil, err
		}
		if pv.Value, err = d.applicationValue(); err != nil {
			return nil, err
		}
		if err = d.closingTag(2); err != nil {
			return nil, err
		}
		n.Values = append(n.Values, pv)
	}
	if err = d.closingTag(4); err != nil {
		return nil, err
	}
	return n, nil
}

// LogRecord is one timestamped sample from a trend buffer.
type LogRecord struct {
	Timestamp time.Time
	Value     Value
	Status    StatusFlags
}

// ReadRangeRequest retrieves trend records from a log buffer, optionally
// restricted to a time window.
type ReadRangeRequest struct {
	Object   ObjectIdentifier
	Property PropertyIdentifier
	Start    *time.Time
	Count    uint32
}

func (r ReadRangeRequest) Encode() []byte {
	var buf []byte
	buf = appendContextObjectID(buf, 0, r.Object)
	buf = appendContextEnumerated(buf, 1, uint32(r.Property))
	if r.Start != nil {
		buf = appendOpeningTag(buf, 7)
		buf = AppendApplicationValue(buf, DateValue(DateOf(*r.Start)))
		buf = AppendApplicationValue(buf, TimeValue(TimeOfDayOf(*r.Start)))
		buf = appendContextUnsigned(buf, 0, r.Count)
		buf = appendClosingTag(buf, 7)
	}
	return buf
}

func DecodeReadRangeRequest(data []byte) (*ReadRangeRequest, error) {
	d := newDecoder(data)
	r := &ReadRangeRequest{}
	var err error
	if r.Object, err = d.contextObjectID(0); err != nil {
		return nil, err
	}
	prop, err := d.contextUnsigned(1)
	if err != nil {
		return nil, err
	}
	r.Property = PropertyIdentifier(prop)
	if d.remaining() == 0 {
		return r, nil
	}
	if err = d.openingTag(7); err != nil {
		return nil, err
	}
	dv, err := d.applicationValue()
	if err != nil {
		return nil, err
	}
	tv, err := d.applicationValue()
	if err != nil {
		return nil, err
	}
	date, ok := dv.AsDate()
	if !ok {
		return nil, d.malformed("time range must start with a date")
	}
	tod, ok := tv.AsTime()
	if !ok {
		return nil, d.malformed("time range date must be followed by a time")
	}
	start := date.At(tod, time.Local)
	r.Start = &start
	if r.Count, err = d.contextUnsigned(0); err != nil {
		return nil, err
	}
	if err = d.closingTag(7); err != nil {
		return nil, err
	}
	return r, nil
}

// ReadRangeACK returns log records for a ReadRange request.
type ReadRangeACK struct {
	Object    ObjectIdentifier
	Property  PropertyIdentifier
	ItemCount uint32
	Items     []LogRecord
}

func (a ReadRangeACK) Encode() []byte {
	var buf []byte
	buf = appendContextObjectID(buf, 0, a.Object)
	buf = appendContextEnumerated(buf, 1, uint32(a.Property))
	buf = appendContextUnsigned(buf, 4, uint32(len(a.Items)))
	buf = appendOpeningTag(buf, 5)
	for _, rec := range a.Items {
		buf = AppendApplicationValue(buf, DateValue(DateOf(rec.Timestamp)))
		buf = AppendApplicationValue(buf, TimeValue(TimeOfDayOf(rec.Timestamp)))
		buf = AppendApplicationValue(buf, rec.Value)
		buf = AppendApplicationValue(buf, Unsigned(uint32(rec.Status.Byte())))
	}
	return appendClosingTag(buf, 5)
}

func DecodeReadRangeACK(data []byte) (*ReadRangeACK, error) {
	d := newDecoder(data)
	a := &ReadRangeACK{}
	var err error
	if a.Object, err = d.contextObjectID(0); err != nil {
		return nil, err
	}
	prop, err := d.contextUnsigned(1)
	if err != nil {
		return nil, err
	}
	a.Property = PropertyIdentifier(prop)
	if a.ItemCount, err = d.contextUnsigned(4); err != nil {
		return nil, err
	}
	if err = d.openingTag(5); err != nil {
		return nil, err
	}
	for !d.atClosingTag(5) {
		var rec LogRecord
		dv, derr := d.applicationValue()
		if derr != nil {
			return nil, derr
		}
		tv, terr := d.applicationValue()
		if terr != nil {
			return nil, terr
		}
		if rec.Value, err = d.applicationValue(); err != nil {
			return nil, err
		}
		sv, serr := d.applicationValue()
		if serr != nil {
			return nil, serr
		}
		date, ok := dv.AsDate()
		if !ok {
			return nil, d.malformed("log record must start with a date")
		}
		tod, ok := tv.AsTime()
		if !ok {
			return nil, d.malformed("log record date must be followed by a time")
		}
		rec.Timestamp = date.At(tod, time.Local)
		status, _ := sv.AsUnsigned()
		rec.Status = StatusFlagsFromByte(byte(status))
		a.Items = append(a.Items, rec)
	}
	if err = d.closingTag(5); err != nil {
		return nil, err
	}
	return a, nil
}

// AlarmSummaryItem describes one object in alarm.
type AlarmSummaryItem struct {
	Object          ObjectIdentifier
	EventState      EventState
	AcknowledgedSet bool
}

// AlarmSummaryACK lists every object currently in alarm.
type AlarmSummaryACK struct {
	Items []AlarmSummaryItem
}

func (a AlarmSummaryACK) Encode() []byte {
	var buf []byte
	for _, item := range a.Items {
		buf = AppendApplicationValue(buf, ObjectIDValue(item.Object))
		buf = AppendApplicationValue(buf, Enumerated(uint32(item.EventState)))
		ack := uint32(0)
		if item.AcknowledgedSet {
			ack = 1
		}
		buf = AppendApplicationValue(buf, Unsigned(ack))
	}
	return buf
}

func DecodeAlarmSummaryACK(data []byte) (*AlarmSummaryACK, error) {
	d := newDecoder(data)
	a := &AlarmSummaryACK{}
	for d.remaining() > 0 {
		var item AlarmSummaryItem
		ov, err := d.applicationValue()
		if err != nil {
			return nil, err
		}
		oid, ok := ov.AsObjectID()
		if !ok {
			return nil, d.malformed("alarm summary entry must start with an object identifier")
		}
		item.Object = oid
		ev, err := d.applicationValue()
		if err != nil {
			return nil, err
		}
		state, _ := ev.AsEnumerated()
		item.EventState = EventState(state)
		av, err := d.applicationValue()
		if err != nil {
			return nil, err
		}
		ack, _ := av.AsUnsigned()
		item.AcknowledgedSet = ack != 0
		a.Items = append(a.Items, item)
	}
	return a, nil
}

// AcknowledgeAlarmRequest acknowledges an alarm transition on one object.
type AcknowledgeAlarmRequest struct {
	ProcessID  uint32
	Object     ObjectIdentifier
	EventState EventState
	Source     string
}

func (r AcknowledgeAlarmRequest) Encode() []byte {
	var buf []byte
	buf = appendContextUnsigned(buf, 0, r.ProcessID)
	buf = appendContextObjectID(buf, 1, r.Object)
	buf = appendContextEnumerated(buf, 2, uint32(r.EventState))
	buf = appendOpeningTag(buf, 3)
	buf = AppendApplicationValue(buf, String(r.Source))
	return appendClosingTag(buf, 3)
}

func DecodeAcknowledgeAlarmRequest(data []byte) (*AcknowledgeAlarmRequest, error) {
	d := newDecoder(data)
	r := &AcknowledgeAlarmRequest{}
	var err error
	if r.ProcessID, err = d.contextUnsigned(0); err != nil {
		return nil, err
	}
	if r.Object, err = d.contextObjectID(1); err != nil {
		return nil, err
	}
	state, err := d.contextUnsigned(2)
	if err != nil {
		return nil, err
	}
	r.EventState = EventState(state)
	if err = d.openingTag(3); err != nil {
		return nil, err
	}
	src, err := d.applicationValue()
	if err != nil {
		return nil, err
	}
	r.Source, _ = src.AsString()
	if err = d.closingTag(3); err != nil {
		return nil, err
	}
	return r, nil
}

// ErrorPayload is the body of an Error-PDU.
type ErrorPayload struct {
	Class ErrorClass
	Code  ErrorCode
}

func (p ErrorPayload) Encode() []byte {
	var buf []byte
	buf = AppendApplicationValue(buf, Enumerated(uint32(p.Class)))
	return AppendApplicationValue(buf, Enumerated(uint32(p.Code)))
}

func DecodeErrorPayload(data []byte) (*ErrorPayload, error) {
	d := newDecoder(data)
	cv, err := d.applicationValue()
	if err != nil {
		return nil, err
	}
	kv, err := d.applicationValue()
	if err != nil {
		return nil, err
	}
	class, _ := cv.AsEnumerated()
	code, _ := kv.AsEnumerated()
	return &ErrorPayload{Class: ErrorClass(class), Code: ErrorCode(code)}, nil
}
