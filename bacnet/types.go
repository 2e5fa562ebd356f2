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

// Package bacnet implements the BACnet/IP device communication core:
// object model, wire codec, discovery, confirmed transactions, COV
// subscriptions, trend logs and alarm summaries.
package bacnet

import "fmt"

// DefaultPort is the standard BACnet/IP UDP port.
const DefaultPort = 47808

// MaxAPDULength is the maximum APDU length for BACnet/IP.
const MaxAPDULength = 1476

// MaxInstance is the largest valid object instance number (22 bits).
const MaxInstance = 0x3FFFFF

// BVLCType identifies the BACnet Virtual Link Control protocol family.
type BVLCType uint8

const BVLCTypeBACnetIP BVLCType = 0x81

// BVLCFunction is the function code of a BVLC frame.
type BVLCFunction uint8

const (
	BVLCResult                BVLCFunction = 0x00
	BVLCForwardedNPDU         BVLCFunction = 0x04
	BVLCRegisterForeignDevice BVLCFunction = 0x05
	BVLCDistributeBroadcast   BVLCFunction = 0x09
	BVLCOriginalUnicastNPDU   BVLCFunction = 0x0A
	BVLCOriginalBroadcastNPDU BVLCFunction = 0x0B
)

// NPDUControl carries the network layer control bits.
type NPDUControl uint8

const (
	NPDUControlNetworkLayerMessage NPDUControl = 0x80
	NPDUControlDestSpecifier       NPDUControl = 0x20
	NPDUControlSourceSpecifier     NPDUControl = 0x08
	NPDUControlExpectingReply      NPDUControl = 0x04
	NPDUControlPriorityNormal      NPDUControl = 0x00
)

// PDUType is the application layer PDU type (upper nibble of the first octet).
type PDUType uint8

const (
	PDUTypeConfirmedRequest   PDUType = 0x00
	PDUTypeUnconfirmedRequest PDUType = 0x10
	PDUTypeSimpleAck          PDUType = 0x20
	PDUTypeComplexAck         PDUType = 0x30
	PDUTypeSegmentAck         PDUType = 0x40
	PDUTypeError              PDUType = 0x50
	PDUTypeReject             PDUType = 0x60
	PDUTypeAbort              PDUType = 0x70
)

func (t PDUType) String() string {
	switch t {
	case PDUTypeConfirmedRequest:
		return "confirmed-request"
	case PDUTypeUnconfirmedRequest:
		return "unconfirmed-request"
	case PDUTypeSimpleAck:
		return "simple-ack"
	case PDUTypeComplexAck:
		return "complex-ack"
	case PDUTypeSegmentAck:
		return "segment-ack"
	case PDUTypeError:
		return "error"
	case PDUTypeReject:
		return "reject"
	case PDUTypeAbort:
		return "abort"
	}
	return fmt.Sprintf("pdu-type(%#02x)", uint8(t))
}

// ConfirmedServiceChoice identifies a confirmed application service.
type ConfirmedServiceChoice uint8

const (
	ServiceAcknowledgeAlarm         ConfirmedServiceChoice = 0
	ServiceConfirmedCOVNotification ConfirmedServiceChoice = 1
	ServiceGetAlarmSummary          ConfirmedServiceChoice = 3
	ServiceSubscribeCOV             ConfirmedServiceChoice = 5
	ServiceReadProperty             ConfirmedServiceChoice = 12
	ServiceReadPropertyMultiple     ConfirmedServiceChoice = 14
	ServiceWriteProperty            ConfirmedServiceChoice = 15
	ServiceReadRange                ConfirmedServiceChoice = 26
)

func (s ConfirmedServiceChoice) String() string {
	switch s {
	case ServiceAcknowledgeAlarm:
		return "AcknowledgeAlarm"
	case ServiceConfirmedCOVNotification:
		return "ConfirmedCOVNotification"
	case ServiceGetAlarmSummary:
		return "GetAlarmSummary"
	case ServiceSubscribeCOV:
		return "SubscribeCOV"
	case ServiceReadProperty:
		return "ReadProperty"
	case ServiceReadPropertyMultiple:
		return "ReadPropertyMultiple"
	case ServiceWriteProperty:
		return "WriteProperty"
	case ServiceReadRange:
		return "ReadRange"
	}
	return fmt.Sprintf("confirmed-service(%d)", uint8(s))
}

// UnconfirmedServiceChoice identifies an unconfirmed application service.
type UnconfirmedServiceChoice uint8

const (
	ServiceIAm                        UnconfirmedServiceChoice = 0
	ServiceUnconfirmedCOVNotification UnconfirmedServiceChoice = 2
	ServiceWhoIs                      UnconfirmedServiceChoice = 8
)

func (s UnconfirmedServiceChoice) String() string {
	switch s {
	case ServiceIAm:
		return "I-Am"
	case ServiceUnconfirmedCOVNotification:
		return "UnconfirmedCOVNotification"
	case ServiceWhoIs:
		return "Who-Is"
	}
	return fmt.Sprintf("unconfirmed-service(%d)", uint8(s))
}

// ObjectType enumerates BACnet object types.
type ObjectType uint16

const (
	ObjectTypeAnalogInput       ObjectType = 0
	ObjectTypeAnalogOutput      ObjectType = 1
	ObjectTypeAnalogValue       ObjectType = 2
	ObjectTypeBinaryInput       ObjectType = 3
	ObjectTypeBinaryOutput      ObjectType = 4
	ObjectTypeBinaryValue       ObjectType = 5
	ObjectTypeDevice            ObjectType = 8
	ObjectTypeMultiStateInput   ObjectType = 13
	ObjectTypeMultiStateOutput  ObjectType = 14
	ObjectTypeNotificationClass ObjectType = 15
	ObjectTypeSchedule          ObjectType = 17
	ObjectTypeMultiStateValue   ObjectType = 19
	ObjectTypeTrendLog          ObjectType = 20
)

var objectTypeNames = map[ObjectType]string{
	ObjectTypeAnalogInput:       "analog-input",
	ObjectTypeAnalogOutput:      "analog-output",
	ObjectTypeAnalogValue:       "analog-value",
	ObjectTypeBinaryInput:       "binary-input",
	ObjectTypeBinaryOutput:      "binary-output",
	ObjectTypeBinaryValue:       "binary-value",
	ObjectTypeDevice:            "device",
	ObjectTypeMultiStateInput:   "multi-state-input",
	ObjectTypeMultiStateOutput:  "multi-state-output",
	ObjectTypeNotificationClass: "notification-class",
	ObjectTypeSchedule:          "schedule",
	ObjectTypeMultiStateValue:   "multi-state-value",
	ObjectTypeTrendLog:          "trend-log",
}

func (o ObjectType) String() string {
	if name, ok := objectTypeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("object-type(%d)", uint16(o))
}

// ParseObjectType resolves a type name or its common abbreviation.
func ParseObjectType(s string) (ObjectType, bool) {
	aliases := map[string]ObjectType{
		"ai":  ObjectTypeAnalogInput,
		"ao":  ObjectTypeAnalogOutput,
		"av":  ObjectTypeAnalogValue,
		"bi":  ObjectTypeBinaryInput,
		"bo":  ObjectTypeBinaryOutput,
		"bv":  ObjectTypeBinaryValue,
		"dev": ObjectTypeDevice,
		"msi": ObjectTypeMultiStateInput,
		"mso": ObjectTypeMultiStateOutput,
		"msv": ObjectTypeMultiStateValue,
		"tl":  ObjectTypeTrendLog,
	}
	if t, ok := aliases[s]; ok {
		return t, true
	}
	for t, name := range objectTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// Commandable reports whether present-value on this object type is driven
// by a 16-level priority array.
func (o ObjectType) Commandable() bool {
	switch o {
	case ObjectTypeAnalogOutput, ObjectTypeAnalogValue,
		ObjectTypeBinaryOutput, ObjectTypeBinaryValue,
		ObjectTypeMultiStateOutput, ObjectTypeMultiStateValue:
		return true
	}
	return false
}

// PropertyIdentifier enumerates BACnet property identifiers.
type PropertyIdentifier uint32

const (
	PropertyAckRequired                PropertyIdentifier = 1
	PropertyApplicationSoftwareVersion PropertyIdentifier = 12
	PropertyCOVIncrement               PropertyIdentifier = 22
	PropertyDescription                PropertyIdentifier = 28
	PropertyEventState                 PropertyIdentifier = 36
	PropertyFirmwareRevision           PropertyIdentifier = 44
	PropertyHighLimit                  PropertyIdentifier = 45
	PropertyLocation                   PropertyIdentifier = 58
	PropertyLowLimit                   PropertyIdentifier = 59
	PropertyMaxApduLengthAccepted      PropertyIdentifier = 62
	PropertyModelName                  PropertyIdentifier = 70
	PropertyObjectIdentifier           PropertyIdentifier = 75
	PropertyObjectList                 PropertyIdentifier = 76
	PropertyObjectName                 PropertyIdentifier = 77
	PropertyObjectType                 PropertyIdentifier = 79
	PropertyOutOfService               PropertyIdentifier = 81
	PropertyPresentValue               PropertyIdentifier = 85
	PropertyPriorityArray              PropertyIdentifier = 87
	PropertyProtocolVersion            PropertyIdentifier = 98
	PropertyRelinquishDefault          PropertyIdentifier = 104
	PropertySegmentationSupported      PropertyIdentifier = 107
	PropertyStatusFlags                PropertyIdentifier = 111
	PropertySystemStatus               PropertyIdentifier = 112
	PropertyUnits                      PropertyIdentifier = 117
	PropertyVendorIdentifier           PropertyIdentifier = 120
	PropertyVendorName                 PropertyIdentifier = 121
	PropertyLogBuffer                  PropertyIdentifier = 131
	PropertyRecordCount                PropertyIdentifier = 141
)

var propertyNames = map[PropertyIdentifier]string{
	PropertyAckRequired:                "ack-required",
	PropertyApplicationSoftwareVersion: "application-software-version",
	PropertyCOVIncrement:               "cov-increment",
	PropertyDescription:                "description",
	PropertyEventState:                 "event-state",
	PropertyFirmwareRevision:           "firmware-revision",
	PropertyHighLimit:                  "high-limit",
	PropertyLocation:                   "location",
	PropertyLowLimit:                   "low-limit",
	PropertyMaxApduLengthAccepted:      "max-apdu-length-accepted",
	PropertyModelName:                  "model-name",
	PropertyObjectIdentifier:           "object-identifier",
	PropertyObjectList:                 "object-list",
	PropertyObjectName:                 "object-name",
	PropertyObjectType:                 "object-type",
	PropertyOutOfService:               "out-of-service",
	PropertyPresentValue:               "present-value",
	PropertyPriorityArray:              "priority-array",
	PropertyProtocolVersion:            "protocol-version",
	PropertyRelinquishDefault:          "relinquish-default",
	PropertySegmentationSupported:      "segmentation-supported",
	PropertyStatusFlags:                "status-flags",
	PropertySystemStatus:               "system-status",
	PropertyUnits:                      "units",
	PropertyVendorIdentifier:           "vendor-identifier",
	PropertyVendorName:                 "vendor-name",
	PropertyLogBuffer:                  "log-buffer",
	PropertyRecordCount:                "record-count",
}

func (p PropertyIdentifier) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("property(%d)", uint32(p))
}

// ParsePropertyIdentifier resolves a property name or abbreviation.
func ParsePropertyIdentifier(s string) (PropertyIdentifier, bool) {
	aliases := map[string]PropertyIdentifier{
		"pv":   PropertyPresentValue,
		"name": PropertyObjectName,
		"desc": PropertyDescription,
		"oid":  PropertyObjectIdentifier,
		"pa":   PropertyPriorityArray,
		"rd":   PropertyRelinquishDefault,
		"oos":  PropertyOutOfService,
		"sf":   PropertyStatusFlags,
	}
	if p, ok := aliases[s]; ok {
		return p, true
	}
	for p, name := range propertyNames {
		if name == s {
			return p, true
		}
	}
	return 0, false
}

// ObjectIdentifier is a BACnet object identifier (type + 22-bit instance).
type ObjectIdentifier struct {
	Type     ObjectType
	Instance uint32
}

// NewObjectIdentifier creates an ObjectIdentifier.
func NewObjectIdentifier(objectType ObjectType, instance uint32) ObjectIdentifier {
	return ObjectIdentifier{Type: objectType, Instance: instance}
}

// Pack packs the identifier into its 32-bit wire form.
func (o ObjectIdentifier) Pack() uint32 {
	return (uint32(o.Type) << 22) | (o.Instance & MaxInstance)
}

// UnpackObjectIdentifier splits a packed 32-bit object identifier.
func UnpackObjectIdentifier(value uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     ObjectType((value >> 22) & 0x3FF),
		Instance: value & MaxInstance,
	}
}

func (o ObjectIdentifier) String() string {
	return fmt.Sprintf("%s:%d", o.Type, o.Instance)
}

// StatusFlags is the standard four-bit object status bitstring.
type StatusFlags struct {
	InAlarm      bool
	Fault        bool
	Overridden   bool
	OutOfService bool
}

// Byte packs the flags into their bitstring octet.
func (s StatusFlags) Byte() byte {
	var b byte
	if s.InAlarm {
		b |= 0x08
	}
	if s.Fault {
		b |= 0x04
	}
	if s.Overridden {
		b |= 0x02
	}
	if s.OutOfService {
		b |= 0x01
	}
	return b
}

// StatusFlagsFromByte unpacks a bitstring octet.
func StatusFlagsFromByte(b byte) StatusFlags {
	return StatusFlags{
		InAlarm:      b&0x08 != 0,
		Fault:        b&0x04 != 0,
		Overridden:   b&0x02 != 0,
		OutOfService: b&0x01 != 0,
	}
}

func (s StatusFlags) String() string {
	return fmt.Sprintf("{in-alarm:%v fault:%v overridden:%v out-of-service:%v}",
		s.InAlarm, s.Fault, s.Overridden, s.OutOfService)
}

// EventState is the event state of an object.
type EventState uint8

const (
	EventStateNormal    EventState = 0
	EventStateFault     EventState = 1
	EventStateOffNormal EventState = 2
	EventStateHighLimit EventState = 3
	EventStateLowLimit  EventState = 4
)

func (e EventState) String() string {
	switch e {
	case EventStateNormal:
		return "normal"
	case EventStateFault:
		return "fault"
	case EventStateOffNormal:
		return "offnormal"
	case EventStateHighLimit:
		return "high-limit"
	case EventStateLowLimit:
		return "low-limit"
	}
	return fmt.Sprintf("event-state(%d)", uint8(e))
}

// Segmentation is the device segmentation capability.
type Segmentation uint8

const (
	SegmentationBoth     Segmentation = 0
	SegmentationTransmit Segmentation = 1
	SegmentationReceive  Segmentation = 2
	SegmentationNone     Segmentation = 3
)

func (s Segmentation) String() string {
	switch s {
	case SegmentationBoth:
		return "segmented-both"
	case SegmentationTransmit:
		return "segmented-transmit"
	case SegmentationReceive:
		return "segmented-receive"
	case SegmentationNone:
		return "no-segmentation"
	}
	return fmt.Sprintf("segmentation(%d)", uint8(s))
}

// EngineeringUnits enumerates the unit codes used by the simulator profiles.
type EngineeringUnits uint16

const (
	UnitsPercentRelativeHumidity EngineeringUnits = 29
	UnitsDegreesCelsius          EngineeringUnits = 62
	UnitsDegreesFahrenheit       EngineeringUnits = 64
	UnitsCubicFeetPerMinute      EngineeringUnits = 84
	UnitsNoUnits                 EngineeringUnits = 95
	UnitsPercent                 EngineeringUnits = 98
)

var unitNames = map[EngineeringUnits]string{
	UnitsPercentRelativeHumidity: "percent-relative-humidity",
	UnitsDegreesCelsius:          "degrees-celsius",
	UnitsDegreesFahrenheit:       "degrees-fahrenheit",
	UnitsCubicFeetPerMinute:      "cubic-feet-per-minute",
	UnitsNoUnits:                 "no-units",
	UnitsPercent:                 "percent",
}

func (u EngineeringUnits) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}
	return fmt.Sprintf("units(%d)", uint16(u))
}

// ParseEngineeringUnits resolves a unit name.
func ParseEngineeringUnits(s string) (EngineeringUnits, bool) {
	for u, name := range unitNames {
		if name == s {
			return u, true
		}
	}
	return 0, false
}

// TagClass discriminates application from context tags.
type TagClass uint8

const (
	TagClassApplication TagClass = 0
	TagClassContext     TagClass = 1
)

// ApplicationTag enumerates the application datatype tags.
type ApplicationTag uint8

const (
	TagNull            ApplicationTag = 0
	TagBoolean         ApplicationTag = 1
	TagUnsignedInt     ApplicationTag = 2
	TagSignedInt       ApplicationTag = 3
	TagReal            ApplicationTag = 4
	TagDouble          ApplicationTag = 5
	TagOctetString     ApplicationTag = 6
	TagCharacterString ApplicationTag = 7
	TagBitString       ApplicationTag = 8
	TagEnumerated      ApplicationTag = 9
	TagDate            ApplicationTag = 10
	TagTime            ApplicationTag = 11
	TagObjectID        ApplicationTag = 12
)
