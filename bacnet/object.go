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
	"sync"
)

// NumPriorities is the depth of a command priority array.
const NumPriorities = 16

// PriorityArray is a 16-slot command arbitration table. Slot 1 is the
// highest priority. The effective value is the lowest-numbered occupied
// slot; an empty array falls back to the relinquish default.
type PriorityArray struct {
	slots    [NumPriorities]Value
	occupied [NumPriorities]bool
}

// Set stores a value at a priority (1..16). A Null value relinquishes the
// slot instead.
func (p *PriorityArray) Set(priority uint8, v Value) error {
	if priority < 1 || priority > NumPriorities {
		return fmt.Errorf("%w: priority %d", ErrPriorityOutOfRange, priority)
	}
	if v.IsNull() {
		p.slots[priority-1] = Null()
		p.occupied[priority-1] = false
		return nil
	}
	p.slots[priority-1] = v
	p.occupied[priority-1] = true
	return nil
}

// Relinquish clears a priority slot.
func (p *PriorityArray) Relinquish(priority uint8) error {
	return p.Set(priority, Null())
}

// Effective returns the winning value and its priority, or ok=false when
// every slot is empty.
func (p *PriorityArray) Effective() (v Value, priority uint8, ok bool) {
	for i := 0; i < NumPriorities; i++ {
		if p.occupied[i] {
			return p.slots[i], uint8(i + 1), true
		}
	}
	return Null(), 0, false
}

// Snapshot returns all 16 slots, Null where unoccupied.
func (p *PriorityArray) Snapshot() []Value {
	out := make([]Value, NumPriorities)
	for i := 0; i < NumPriorities; i++ {
		if p.occupied[i] {
			out[i] = p.slots[i]
		} else {
			out[i] = Null()
		}
	}
	return out
}

// Object is one point in a device: identifier, name, present value, and the
// standard status properties. Commandable objects carry a priority array.
type Object struct {
	mu sync.RWMutex

	id          ObjectIdentifier
	name        string
	description string
	units       EngineeringUnits

	value             Value
	priorities        *PriorityArray
	relinquishDefault Value

	statusFlags StatusFlags
	eventState  EventState

	highLimit *float32
	lowLimit  *float32

	covIncrement float32
	lastReported Value
	haveReported bool

	numStates uint32

	notify func(obj ObjectIdentifier, old, new Value)
}

// NewAnalogInput builds a read-only analog input.
func NewAnalogInput(instance uint32, name string, value float32, units EngineeringUnits) *Object {
	return &Object{
		id:    ObjectIdentifier{Type: ObjectTypeAnalogInput, Instance: instance},
		name:  name,
		units: units,
		value: Real(value),
	}
}

// NewAnalogOutput builds a commandable analog output with the given
// relinquish default.
func NewAnalogOutput(instance uint32, name string, relinquishDefault float32, units EngineeringUnits) *Object {
	return &Object{
		id:                ObjectIdentifier{Type: ObjectTypeAnalogOutput, Instance: instance},
		name:              name,
		units:             units,
		priorities:        &PriorityArray{},
		relinquishDefault: Real(relinquishDefault),
	}
}

// NewAnalogValue builds a commandable analog value object.
func NewAnalogValue(instance uint32, name string, relinquishDefault float32, units EngineeringUnits) *Object {
	return &Object{
		id:                ObjectIdentifier{Type: ObjectTypeAnalogValue, Instance: instance},
		name:              name,
		units:             units,
		priorities:        &PriorityArray{},
		relinquishDefault: Real(relinquishDefault),
	}
}

// NewBinaryInput builds a read-only binary input. Present value is the
// standard inactive/active enumeration.
func NewBinaryInput(instance uint32, name string, active bool) *Object {
	return &Object{
		id:    ObjectIdentifier{Type: ObjectTypeBinaryInput, Instance: instance},
		name:  name,
		value: binaryValue(active),
	}
}

// NewBinaryOutput builds a commandable binary output.
func NewBinaryOutput(instance uint32, name string, relinquishDefault bool) *Object {
	return &Object{
		id:                ObjectIdentifier{Type: ObjectTypeBinaryOutput, Instance: instance},
		name:              name,
		priorities:        &PriorityArray{},
		relinquishDefault: binaryValue(relinquishDefault),
	}
}

// NewBinaryValue builds a commandable binary value object.
func NewBinaryValue(instance uint32, name string, relinquishDefault bool) *Object {
	return &Object{
		id:                ObjectIdentifier{Type: ObjectTypeBinaryValue, Instance: instance},
		name:              name,
		priorities:        &PriorityArray{},
		relinquishDefault: binaryValue(relinquishDefault),
	}
}

// NewMultiStateValue builds a commandable multi-state value object with
// states numbered 1..numStates.
func NewMultiStateValue(instance uint32, name string, numStates, relinquishDefault uint32) *Object {
	return &Object{
		id:                ObjectIdentifier{Type: ObjectTypeMultiStateValue, Instance: instance},
		name:              name,
		numStates:         numStates,
		priorities:        &PriorityArray{},
		relinquishDefault: Unsigned(relinquishDefault),
	}
}

func binaryValue(active bool) Value {
	if active {
		return Enumerated(1)
	}
	return Enumerated(0)
}

// WithDescription sets the description property.
func (o *Object) WithDescription(desc string) *Object {
	o.description = desc
	return o
}

// WithLimits arms high/low limit alarming on an analog object.
func (o *Object) WithLimits(low, high float32) *Object {
	o.lowLimit = &low
	o.highLimit = &high
	return o
}

// WithCOVIncrement sets the minimum change that triggers a notification.
func (o *Object) WithCOVIncrement(inc float32) *Object {
	o.covIncrement = inc
	return o
}

// ID returns the object identifier.
func (o *Object) ID() ObjectIdentifier { return o.id }

// Name returns the object name.
func (o *Object) Name() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.name
}

// Commandable reports whether the object carries a priority array.
func (o *Object) Commandable() bool { return o.priorities != nil }

// PresentValue returns the effective present value.
func (o *Object) PresentValue() Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.presentValueLocked()
}

func (o *Object) presentValueLocked() Value {
	if o.priorities == nil {
		return o.value
	}
	if v, _, ok := o.priorities.Effective(); ok {
		return v
	}
	return o.relinquishDefault
}

// EventState returns the current event state.
func (o *Object) EventState() EventState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.eventState
}

// StatusFlags returns the current status flags.
func (o *Object) StatusFlags() StatusFlags {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.statusFlags
}

func (o *Object) expectedKind() ValueKind {
	switch o.id.Type {
	case ObjectTypeAnalogInput, ObjectTypeAnalogOutput, ObjectTypeAnalogValue:
		return KindReal
	case ObjectTypeBinaryInput, ObjectTypeBinaryOutput, ObjectTypeBinaryValue:
		return KindEnumerated
	case ObjectTypeMultiStateInput, ObjectTypeMultiStateOutput, ObjectTypeMultiStateValue:
		return KindUnsigned
	}
	return KindNull
}

// ReadProperty returns the value(s) of a property. Array-valued properties
// return every element unless index selects one.
func (o *Object) ReadProperty(prop PropertyIdentifier, index uint32) ([]Value, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	switch prop {
	case PropertyObjectIdentifier:
		return []Value{ObjectIDValue(o.id)}, nil
	case PropertyObjectName:
		return []Value{String(o.name)}, nil
	case PropertyObjectType:
		return []Value{Enumerated(uint32(o.id.Type))}, nil
	case PropertyDescription:
		return []Value{String(o.description)}, nil
	case PropertyPresentValue:
		return []Value{o.presentValueLocked()}, nil
	case PropertyStatusFlags:
		return []Value{Unsigned(uint32(o.statusFlags.Byte()))}, nil
	case PropertyEventState:
		return []Value{Enumerated(uint32(o.eventState))}, nil
	case PropertyOutOfService:
		return []Value{Boolean(o.statusFlags.OutOfService)}, nil
	case PropertyUnits:
		if o.expectedKind() != KindReal {
			return nil, ErrPropertyNotFound
		}
		return []Value{Enumerated(uint32(o.units))}, nil
	case PropertyPriorityArray:
		if o.priorities == nil {
			return nil, ErrPropertyNotFound
		}
		all := o.priorities.Snapshot()
		if index == NoArrayIndex {
			return all, nil
		}
		if index < 1 || index > NumPriorities {
			return nil, ErrPriorityOutOfRange
		}
		return []Value{all[index-1]}, nil
	case PropertyRelinquishDefault:
		if o.priorities == nil {
			return nil, ErrPropertyNotFound
		}
		return []Value{o.relinquishDefault}, nil
	case PropertyHighLimit:
		if o.highLimit == nil {
			return nil, ErrPropertyNotFound
		}
		return []Value{Real(*o.highLimit)}, nil
	case PropertyLowLimit:
		if o.lowLimit == nil {
			return nil, ErrPropertyNotFound
		}
		return []Value{Real(*o.lowLimit)}, nil
	case PropertyCOVIncrement:
		if o.covIncrement == 0 {
			return nil, ErrPropertyNotFound
		}
		return []Value{Real(o.covIncrement)}, nil
	}
	return nil, ErrPropertyNotFound
}

// WriteProperty writes a property over the wire path. Only present-value is
// writable; commandable objects arbitrate through the priority array, and a
// Null value relinquishes the addressed slot. Priority 0 on a commandable
// object means the standard default slot 16.
func (o *Object) WriteProperty(prop PropertyIdentifier, v Value, priority uint8) error {
	if prop != PropertyPresentValue {
		return ErrWriteAccessDenied
	}
	if o.priorities == nil {
		if priority != 0 {
			return ErrPriorityNotApplicable
		}
		return ErrWriteAccessDenied
	}
	if !v.IsNull() {
		if err := o.validate(v); err != nil {
			return err
		}
	}
	if priority == 0 {
		priority = NumPriorities
	}

	o.mu.Lock()
	old := o.presentValueLocked()
	if err := o.priorities.Set(priority, v); err != nil {
		o.mu.Unlock()
		return err
	}
	next := o.presentValueLocked()
	o.evaluateLimitsLocked(next)
	notify := o.notify
	o.mu.Unlock()

	if notify != nil && !old.Equal(next) {
		notify(o.id, old, next)
	}
	return nil
}

// SetPresentValue changes the present value through the local path, used by
// the owning process rather than a network peer. For commandable objects it
// updates the relinquish default so the change survives command arbitration.
func (o *Object) SetPresentValue(v Value) error {
	if err := o.validate(v); err != nil {
		return err
	}

	o.mu.Lock()
	old := o.presentValueLocked()
	if o.priorities == nil {
		o.value = v
	} else {
		o.relinquishDefault = v
	}
	next := o.presentValueLocked()
	o.evaluateLimitsLocked(next)
	notify := o.notify
	o.mu.Unlock()

	if notify != nil && !old.Equal(next) {
		notify(o.id, old, next)
	}
	return nil
}

func (o *Object) validate(v Value) error {
	want := o.expectedKind()
	if v.Kind() != want {
		return fmt.Errorf("%w: %s present-value wants %s, got %s", ErrTypeMismatch, o.id, want, v.Kind())
	}
	switch want {
	case KindEnumerated:
		if e, _ := v.AsEnumerated(); e > 1 {
			return fmt.Errorf("%w: binary present-value must be 0 or 1", ErrTypeMismatch)
		}
	case KindUnsigned:
		if s, _ := v.AsUnsigned(); o.numStates > 0 && (s < 1 || s > o.numStates) {
			return fmt.Errorf("%w: state %d outside 1..%d", ErrTypeMismatch, s, o.numStates)
		}
	}
	return nil
}

func (o *Object) evaluateLimitsLocked(current Value) {
	if o.highLimit == nil && o.lowLimit == nil {
		return
	}
	f, ok := current.AsReal()
	if !ok {
		return
	}
	switch {
	case o.highLimit != nil && f > *o.highLimit:
		o.eventState = EventStateHighLimit
		o.statusFlags.InAlarm = true
	case o.lowLimit != nil && f < *o.lowLimit:
		o.eventState = EventStateLowLimit
		o.statusFlags.InAlarm = true
	default:
		o.eventState = EventStateNormal
		o.statusFlags.InAlarm = false
	}
}

// ExceedsCOVIncrement reports whether the change from the last reported
// value is large enough to notify subscribers.
func (o *Object) ExceedsCOVIncrement(next Value) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.haveReported {
		o.lastReported = next
		o.haveReported = true
		return true
	}
	if o.covIncrement > 0 {
		prev, pok := o.lastReported.Float()
		cur, cok := next.Float()
		if pok && cok {
			delta := cur - prev
			if delta < 0 {
				delta = -delta
			}
			if delta < float64(o.covIncrement) {
				return false
			}
		}
	} else if o.lastReported.Equal(next) {
		return false
	}
	o.lastReported = next
	return true
}

// ChangeHook observes present-value changes on a device's objects.
type ChangeHook func(obj ObjectIdentifier, old, new Value)

// Device groups objects under one device instance with its identity
// properties.
type Device struct {
	mu sync.RWMutex

	instance    uint32
	name        string
	description string
	location    string
	vendorName  string
	vendorID    uint32
	modelName   string
	firmware    string
	appVersion  string

	objects map[ObjectIdentifier]*Object
	order   []ObjectIdentifier

	hook ChangeHook
}

// NewDevice builds a device with the given instance and name.
func NewDevice(instance uint32, name string) *Device {
	return &Device{
		instance: instance,
		name:     name,
		objects:  make(map[ObjectIdentifier]*Object),
	}
}

// SetIdentity fills in the descriptive device properties.
func (d *Device) SetIdentity(vendorName string, vendorID uint32, model, firmware, appVersion string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vendorName = vendorName
	d.vendorID = vendorID
	d.modelName = model
	d.firmware = firmware
	d.appVersion = appVersion
}

// SetLocation sets the description and location device properties.
func (d *Device) SetLocation(description, location string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.description = description
	d.location = location
}

// Instance returns the device instance number.
func (d *Device) Instance() uint32 { return d.instance }

// Name returns the device object name.
func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// VendorID returns the vendor identifier.
func (d *Device) VendorID() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.vendorID
}

// ObjectID returns the device object identifier.
func (d *Device) ObjectID() ObjectIdentifier {
	return ObjectIdentifier{Type: ObjectTypeDevice, Instance: d.instance}
}

// SetChangeHook installs the observer fired on every present-value change.
// Must be set before objects start changing.
func (d *Device) SetChangeHook(hook ChangeHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hook = hook
	for _, o := range d.objects {
		o.notify = d.dispatch
	}
}

func (d *Device) dispatch(obj ObjectIdentifier, old, new Value) {
	d.mu.RLock()
	hook := d.hook
	d.mu.RUnlock()
	if hook != nil {
		hook(obj, old, new)
	}
}

// AddObject registers an object. Re-adding an existing identifier replaces
// it in place without disturbing the object list order.
func (d *Device) AddObject(o *Object) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.objects[o.id]; !exists {
		d.order = append(d.order, o.id)
	}
	o.notify = d.dispatch
	d.objects[o.id] = o
}

// Object looks up an object by identifier.
func (d *Device) Object(id ObjectIdentifier) (*Object, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.objects[id]
	return o, ok
}

// Objects returns every registered object in insertion order.
func (d *Device) Objects() []*Object {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Object, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.objects[id])
	}
	return out
}

// ObjectList returns the object-list property: the device object first,
// then every registered object in insertion order.
func (d *Device) ObjectList() []ObjectIdentifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ObjectIdentifier, 0, len(d.order)+1)
	out = append(out, d.ObjectID())
	out = append(out, d.order...)
	return out
}

// ReadProperty reads a property of any object on the device, including the
// device object itself.
func (d *Device) ReadProperty(id ObjectIdentifier, prop PropertyIdentifier, index uint32) ([]Value, error) {
	if id == d.ObjectID() {
		return d.readDeviceProperty(prop, index)
	}
	o, ok := d.Object(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	return o.ReadProperty(prop, index)
}

// WriteProperty writes a property of an object on the device.
func (d *Device) WriteProperty(id ObjectIdentifier, prop PropertyIdentifier, v Value, priority uint8) error {
	if id == d.ObjectID() {
		return ErrWriteAccessDenied
	}
	o, ok := d.Object(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	return o.WriteProperty(prop, v, priority)
}

func (d *Device) readDeviceProperty(prop PropertyIdentifier, index uint32) ([]Value, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch prop {
	case PropertyObjectIdentifier:
		return []Value{ObjectIDValue(d.ObjectID())}, nil
	case PropertyObjectName:
		return []Value{String(d.name)}, nil
	case PropertyObjectType:
		return []Value{Enumerated(uint32(ObjectTypeDevice))}, nil
	case PropertyDescription:
		return []Value{String(d.description)}, nil
	case PropertyLocation:
		return []Value{String(d.location)}, nil
	case PropertyVendorName:
		return []Value{String(d.vendorName)}, nil
	case PropertyVendorIdentifier:
		return []Value{Unsigned(d.vendorID)}, nil
	case PropertyModelName:
		return []Value{String(d.modelName)}, nil
	case PropertyFirmwareRevision:
		return []Value{String(d.firmware)}, nil
	case PropertyApplicationSoftwareVersion:
		return []Value{String(d.appVersion)}, nil
	case PropertySystemStatus:
		// operational
		return []Value{Enumerated(0)}, nil
	case PropertyProtocolVersion:
		return []Value{Unsigned(1)}, nil
	case PropertyMaxApduLengthAccepted:
		return []Value{Unsigned(MaxAPDULength)}, nil
	case PropertySegmentationSupported:
		return []Value{Enumerated(uint32(SegmentationNone))}, nil
	case PropertyObjectList:
		list := make([]ObjectIdentifier, 0, len(d.order)+1)
		list = append(list, d.ObjectID())
		list = append(list, d.order...)
		if index == NoArrayIndex {
			out := make([]Value, len(list))
			for i, id := range list {
				out[i] = ObjectIDValue(id)
			}
			return out, nil
		}
		if index == 0 {
			return []Value{Unsigned(uint32(len(list)))}, nil
		}
		if int(index) > len(list) {
			return nil, ErrPropertyNotFound
		}
		return []Value{ObjectIDValue(list[index-1])}, nil
	case PropertyStatusFlags:
		return []Value{Unsigned(0)}, nil
	case PropertyEventState:
		return []Value{Enumerated(uint32(EventStateNormal))}, nil
	}
	return nil, ErrPropertyNotFound
}
