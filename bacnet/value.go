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
	"fmt"
	"time"
)

// ValueKind discriminates the datatype held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBoolean
	KindUnsigned
	KindSigned
	KindReal
	KindDouble
	KindString
	KindEnumerated
	KindDate
	KindTime
	KindObjectID
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindUnsigned:
		return "unsigned"
	case KindSigned:
		return "signed"
	case KindReal:
		return "real"
	case KindDouble:
		return "double"
	case KindString:
		return "character-string"
	case KindEnumerated:
		return "enumerated"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindObjectID:
		return "object-identifier"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Date is a BACnet date. Year is the full year, 255 in any field means
// "unspecified" on the wire.
type Date struct {
	Year  uint16
	Month uint8
	Day   uint8
	// DayOfWeek is 1 (Monday) through 7 (Sunday).
	DayOfWeek uint8
}

// DateOf builds a Date from a time.Time.
func DateOf(t time.Time) Date {
	dow := uint8(t.Weekday())
	if dow == 0 {
		dow = 7 // BACnet Sunday
	}
	return Date{Year: uint16(t.Year()), Month: uint8(t.Month()), Day: uint8(t.Day()), DayOfWeek: dow}
}

// TimeOfDay is a BACnet time with hundredths resolution.
type TimeOfDay struct {
	Hour       uint8
	Minute     uint8
	Second     uint8
	Hundredths uint8
}

// TimeOfDayOf builds a TimeOfDay from a time.Time.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{
		Hour:       uint8(t.Hour()),
		Minute:     uint8(t.Minute()),
		Second:     uint8(t.Second()),
		Hundredths: uint8(t.Nanosecond() / 10_000_000),
	}
}

// At combines a Date and a TimeOfDay into a time.Time in loc.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day),
		int(tod.Hour), int(tod.Minute), int(tod.Second),
		int(tod.Hundredths)*10_000_000, loc)
}

// Value is a tagged union over the BACnet application datatypes that
// ReadProperty and WriteProperty exchange. The zero Value is Null.
// Accessors return false instead of coercing across kinds.
type Value struct {
	kind ValueKind
	b    bool
	u    uint32
	i    int32
	f    float32
	d    float64
	s    string
	date Date
	tod  TimeOfDay
	oid  ObjectIdentifier
}

// Null returns the Null value (also the relinquish marker for priority
// array writes).
func Null() Value { return Value{kind: KindNull} }

// Boolean wraps a bool.
func Boolean(v bool) Value { return Value{kind: KindBoolean, b: v} }

// Unsigned wraps an unsigned integer.
func Unsigned(v uint32) Value { return Value{kind: KindUnsigned, u: v} }

// Signed wraps a signed integer.
func Signed(v int32) Value { return Value{kind: KindSigned, i: v} }

// Real wraps a float32.
func Real(v float32) Value { return Value{kind: KindReal, f: v} }

// DoubleValue wraps a float64.
func DoubleValue(v float64) Value { return Value{kind: KindDouble, d: v} }

// String wraps a character string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Enumerated wraps an enumerated value.
func Enumerated(v uint32) Value { return Value{kind: KindEnumerated, u: v} }

// DateValue wraps a Date.
func DateValue(v Date) Value { return Value{kind: KindDate, date: v} }

// TimeValue wraps a TimeOfDay.
func TimeValue(v TimeOfDay) Value { return Value{kind: KindTime, tod: v} }

// ObjectIDValue wraps an ObjectIdentifier.
func ObjectIDValue(v ObjectIdentifier) Value { return Value{kind: KindObjectID, oid: v} }

// Kind returns the datatype held by the value.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBoolean returns the bool payload.
func (v Value) AsBoolean() (bool, bool) { return v.b, v.kind == KindBoolean }

// AsUnsigned returns the unsigned payload.
func (v Value) AsUnsigned() (uint32, bool) { return v.u, v.kind == KindUnsigned }

// AsSigned returns the signed payload.
func (v Value) AsSigned() (int32, bool) { return v.i, v.kind == KindSigned }

// AsReal returns the float32 payload.
func (v Value) AsReal() (float32, bool) { return v.f, v.kind == KindReal }

// AsDouble returns the float64 payload.
func (v Value) AsDouble() (float64, bool) { return v.d, v.kind == KindDouble }

// AsString returns the character string payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsEnumerated returns the enumerated payload.
func (v Value) AsEnumerated() (uint32, bool) { return v.u, v.kind == KindEnumerated }

// AsDate returns the Date payload.
func (v Value) AsDate() (Date, bool) { return v.date, v.kind == KindDate }

// AsTime returns the TimeOfDay payload.
func (v Value) AsTime() (TimeOfDay, bool) { return v.tod, v.kind == KindTime }

// AsObjectID returns the object identifier payload.
func (v Value) AsObjectID() (ObjectIdentifier, bool) { return v.oid, v.kind == KindObjectID }

// Float returns the value as a float64 for any numeric kind.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindReal:
		return float64(v.f), true
	case KindDouble:
		return v.d, true
	case KindUnsigned, KindEnumerated:
		return float64(v.u), true
	case KindSigned:
		return float64(v.i), true
	}
	return 0, false
}

// Equal reports deep equality of kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.b == o.b
	case KindUnsigned, KindEnumerated:
		return v.u == o.u
	case KindSigned:
		return v.i == o.i
	case KindReal:
		return v.f == o.f
	case KindDouble:
		return v.d == o.d
	case KindString:
		return v.s == o.s
	case KindDate:
		return v.date == o.date
	case KindTime:
		return v.tod == o.tod
	case KindObjectID:
		return v.oid == o.oid
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBoolean:
		return fmt.Sprintf("%v", v.b)
	case KindUnsigned, KindEnumerated:
		return fmt.Sprintf("%d", v.u)
	case KindSigned:
		return fmt.Sprintf("%d", v.i)
	case KindReal:
		return fmt.Sprintf("%g", v.f)
	case KindDouble:
		return fmt.Sprintf("%g", v.d)
	case KindString:
		return v.s
	case KindDate:
		return fmt.Sprintf("%04d-%02d-%02d", v.date.Year, v.date.Month, v.date.Day)
	case KindTime:
		return fmt.Sprintf("%02d:%02d:%02d.%02d", v.tod.Hour, v.tod.Minute, v.tod.Second, v.tod.Hundredths)
	case KindObjectID:
		return v.oid.String()
	}
	return "invalid"
}
