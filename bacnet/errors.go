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
	"errors"
	"fmt"
)

// Sentinel errors. Transaction- and model-level failures are surfaced to
// callers as these values (possibly wrapped); decode failures never escape
// as anything other than a dropped datagram.
var (
	ErrTimeout               = errors.New("bacnet: request timeout")
	ErrConnectionClosed      = errors.New("bacnet: connection closed")
	ErrInvalidResponse       = errors.New("bacnet: invalid response")
	ErrNotConnected          = errors.New("bacnet: not connected")
	ErrAlreadyConnected      = errors.New("bacnet: already connected")
	ErrDeviceUnreachable     = errors.New("bacnet: device unreachable")
	ErrUnknownObject         = errors.New("bacnet: unknown object")
	ErrPropertyNotFound      = errors.New("bacnet: unknown property")
	ErrWriteAccessDenied     = errors.New("bacnet: write access denied")
	ErrPriorityOutOfRange    = errors.New("bacnet: priority out of range")
	ErrPriorityNotApplicable = errors.New("bacnet: priority on non-commandable property")
	ErrTypeMismatch          = errors.New("bacnet: value type mismatch")
	ErrAPDUTooLarge          = errors.New("bacnet: apdu exceeds device limit")
	ErrAlreadyAcknowledged   = errors.New("bacnet: alarm already acknowledged")
	ErrEventNotFound         = errors.New("bacnet: alarm event not found")
	ErrTimestampRegression   = errors.New("bacnet: sample timestamp precedes ring tail")
	ErrInvokeIDsExhausted    = errors.New("bacnet: no free invoke id for peer")
	ErrSubscriptionNotFound  = errors.New("bacnet: subscription not found")
)

// MalformedAPDUError reports unparseable wire data together with the byte
// offset at which decoding failed. The offending datagram is dropped;
// decoding never panics.
type MalformedAPDUError struct {
	Offset int
	Reason string
}

func (e *MalformedAPDUError) Error() string {
	return fmt.Sprintf("bacnet: malformed apdu at offset %d: %s", e.Offset, e.Reason)
}

// IsMalformed reports whether err is a malformed-APDU decode failure.
func IsMalformed(err error) bool {
	var m *MalformedAPDUError
	return errors.As(err, &m)
}

// ErrorClass is the BACnet error class enumeration.
type ErrorClass uint8

const (
	ErrorClassDevice        ErrorClass = 0
	ErrorClassObject        ErrorClass = 1
	ErrorClassProperty      ErrorClass = 2
	ErrorClassResources     ErrorClass = 3
	ErrorClassSecurity      ErrorClass = 4
	ErrorClassServices      ErrorClass = 5
	ErrorClassCommunication ErrorClass = 7
)

func (e ErrorClass) String() string {
	switch e {
	case ErrorClassDevice:
		return "device"
	case ErrorClassObject:
		return "object"
	case ErrorClassProperty:
		return "property"
	case ErrorClassResources:
		return "resources"
	case ErrorClassSecurity:
		return "security"
	case ErrorClassServices:
		return "services"
	case ErrorClassCommunication:
		return "communication"
	}
	return fmt.Sprintf("error-class(%d)", uint8(e))
}

// ErrorCode is the BACnet error code enumeration (subset in use).
type ErrorCode uint8

const (
	ErrorCodeOther                 ErrorCode = 0
	ErrorCodeDeviceBusy            ErrorCode = 3
	ErrorCodeInvalidDataType       ErrorCode = 9
	ErrorCodeUnknownObject         ErrorCode = 31
	ErrorCodeUnknownProperty       ErrorCode = 32
	ErrorCodeUnknownSubscription   ErrorCode = 33
	ErrorCodeValueOutOfRange       ErrorCode = 37
	ErrorCodeWriteAccessDenied     ErrorCode = 40
	ErrorCodeInvalidArrayIndex     ErrorCode = 42
	ErrorCodeCovSubscriptionFailed ErrorCode = 43
	ErrorCodeNotCovProperty        ErrorCode = 44
	ErrorCodeDatatypeNotSupported  ErrorCode = 47
	ErrorCodeNoAlarms              ErrorCode = 51
)

func (e ErrorCode) String() string {
	names := map[ErrorCode]string{
		ErrorCodeOther:                 "other",
		ErrorCodeDeviceBusy:            "device-busy",
		ErrorCodeInvalidDataType:       "invalid-data-type",
		ErrorCodeUnknownObject:         "unknown-object",
		ErrorCodeUnknownProperty:       "unknown-property",
		ErrorCodeUnknownSubscription:   "unknown-subscription",
		ErrorCodeValueOutOfRange:       "value-out-of-range",
		ErrorCodeWriteAccessDenied:     "write-access-denied",
		ErrorCodeInvalidArrayIndex:     "invalid-array-index",
		ErrorCodeCovSubscriptionFailed: "cov-subscription-failed",
		ErrorCodeNotCovProperty:        "not-cov-property",
		ErrorCodeDatatypeNotSupported:  "datatype-not-supported",
		ErrorCodeNoAlarms:              "no-alarms-of-specified-type",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("error-code(%d)", uint8(e))
}

// BACnetError is a device-originated Error-PDU, carrying the protocol
// error class and code.
type BACnetError struct {
	Class ErrorClass
	Code  ErrorCode
}

func (e *BACnetError) Error() string {
	return fmt.Sprintf("bacnet error: class=%s code=%s", e.Class, e.Code)
}

func (e *BACnetError) Is(target error) bool {
	t, ok := target.(*BACnetError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// Unwrap maps well-known wire codes back onto the model-level sentinels so
// callers can use errors.Is against the taxonomy regardless of whether the
// failure was local or remote.
func (e *BACnetError) Unwrap() error {
	switch e.Code {
	case ErrorCodeUnknownObject:
		return ErrUnknownObject
	case ErrorCodeUnknownProperty:
		return ErrPropertyNotFound
	case ErrorCodeWriteAccessDenied:
		return ErrWriteAccessDenied
	case ErrorCodeValueOutOfRange:
		return ErrPriorityOutOfRange
	case ErrorCodeInvalidDataType, ErrorCodeDatatypeNotSupported:
		return ErrTypeMismatch
	}
	return nil
}

// NewBACnetError creates a BACnetError.
func NewBACnetError(class ErrorClass, code ErrorCode) *BACnetError {
	return &BACnetError{Class: class, Code: code}
}

// WireCodes maps a model-level error to the class+code pair a responding
// device puts on the wire. The mapping is the inverse of BACnetError.Unwrap.
func WireCodes(err error) (ErrorClass, ErrorCode) {
	switch {
	case errors.Is(err, ErrUnknownObject):
		return ErrorClassObject, ErrorCodeUnknownObject
	case errors.Is(err, ErrPropertyNotFound):
		return ErrorClassProperty, ErrorCodeUnknownProperty
	case errors.Is(err, ErrWriteAccessDenied):
		return ErrorClassProperty, ErrorCodeWriteAccessDenied
	case errors.Is(err, ErrPriorityOutOfRange), errors.Is(err, ErrPriorityNotApplicable):
		return ErrorClassProperty, ErrorCodeValueOutOfRange
	case errors.Is(err, ErrTypeMismatch):
		return ErrorClassProperty, ErrorCodeInvalidDataType
	}
	return ErrorClassDevice, ErrorCodeOther
}

// RejectReason enumerates Reject-PDU reasons.
type RejectReason uint8

const (
	RejectReasonOther                    RejectReason = 0
	RejectReasonBufferOverflow           RejectReason = 1
	RejectReasonInconsistentParameters   RejectReason = 2
	RejectReasonInvalidParameterDataType RejectReason = 3
	RejectReasonInvalidTag               RejectReason = 4
	RejectReasonMissingRequiredParameter RejectReason = 5
	RejectReasonParameterOutOfRange      RejectReason = 6
	RejectReasonTooManyArguments         RejectReason = 7
	RejectReasonUndefinedEnumeration     RejectReason = 8
	RejectReasonUnrecognizedService      RejectReason = 9
)

func (r RejectReason) String() string {
	names := map[RejectReason]string{
		RejectReasonOther:                    "other",
		RejectReasonBufferOverflow:           "buffer-overflow",
		RejectReasonInconsistentParameters:   "inconsistent-parameters",
		RejectReasonInvalidParameterDataType: "invalid-parameter-data-type",
		RejectReasonInvalidTag:               "invalid-tag",
		RejectReasonMissingRequiredParameter: "missing-required-parameter",
		RejectReasonParameterOutOfRange:      "parameter-out-of-range",
		RejectReasonTooManyArguments:         "too-many-arguments",
		RejectReasonUndefinedEnumeration:     "undefined-enumeration",
		RejectReasonUnrecognizedService:      "unrecognized-service",
	}
	if name, ok := names[r]; ok {
		return name
	}
	return fmt.Sprintf("reject-reason(%d)", uint8(r))
}

// RejectError is a device-originated Reject-PDU.
type RejectError struct {
	InvokeID uint8
	Reason   RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("bacnet reject: invoke-id=%d reason=%s", e.InvokeID, e.Reason)
}

// AbortReason enumerates Abort-PDU reasons.
type AbortReason uint8

const (
	AbortReasonOther                    AbortReason = 0
	AbortReasonBufferOverflow           AbortReason = 1
	AbortReasonInvalidApduInThisState   AbortReason = 2
	AbortReasonSegmentationNotSupported AbortReason = 4
	AbortReasonApduTooLong              AbortReason = 11
)

func (a AbortReason) String() string {
	switch a {
	case AbortReasonOther:
		return "other"
	case AbortReasonBufferOverflow:
		return "buffer-overflow"
	case AbortReasonInvalidApduInThisState:
		return "invalid-apdu-in-this-state"
	case AbortReasonSegmentationNotSupported:
		return "segmentation-not-supported"
	case AbortReasonApduTooLong:
		return "apdu-too-long"
	}
	return fmt.Sprintf("abort-reason(%d)", uint8(a))
}

// AbortError is a device-originated Abort-PDU.
type AbortError struct {
	InvokeID uint8
	Server   bool
	Reason   AbortReason
}

func (e *AbortError) Error() string {
	origin := "client"
	if e.Server {
		origin = "server"
	}
	return fmt.Sprintf("bacnet abort: invoke-id=%d origin=%s reason=%s", e.InvokeID, origin, e.Reason)
}

// IsTimeout reports whether err is a transaction timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsDeviceUnreachable reports whether err means the target device could not
// be resolved or stopped answering.
func IsDeviceUnreachable(err error) bool {
	return errors.Is(err, ErrDeviceUnreachable)
}

// IsPropertyNotFound reports whether err indicates an unknown property,
// local or device-originated.
func IsPropertyNotFound(err error) bool {
	return errors.Is(err, ErrPropertyNotFound)
}

// IsWriteAccessDenied reports whether err indicates a rejected write.
func IsWriteAccessDenied(err error) bool {
	return errors.Is(err, ErrWriteAccessDenied)
}

// IsRejectedByDevice reports whether err is a device-originated Error,
// Reject or Abort rather than a local failure.
func IsRejectedByDevice(err error) bool {
	var (
		be *BACnetError
		re *RejectError
		ae *AbortError
	)
	return errors.As(err, &be) || errors.As(err, &re) || errors.As(err, &ae)
}
