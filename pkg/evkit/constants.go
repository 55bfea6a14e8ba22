// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package evkit implements the host side of the evaluation-kit serial protocol.
//
// The board firmware exposes two engine generations: engine 1 streams data per
// interrupt pin, engine 2 runs "macros" (a trigger plus an ordered list of bus
// actions). Both share the framing implemented here: byte-stuffed packets with a
// CBOR payload of the form [msg_type, payload_map] and a CRC-16-CCITT trailer.
package evkit

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	MaxPayloadSize = 250
	MaxPacketSize  = 1 + MaxPayloadSize + 2 // length + payload + CRC
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// MsgAny matches any message type when passed to Link.Receive.
const MsgAny = 0x00

// Message types - Requests (Host → Board) 0x10-0x1F
const (
	MsgCreateMacroReq    = 0x10
	MsgAddMacroActionReq = 0x11
	MsgStartMacroReq     = 0x12
	MsgRemoveMacroReq    = 0x13
	MsgEnableIntReq      = 0x14
	MsgDisableIntReq     = 0x15
	MsgGPIOConfigReq     = 0x16
	MsgVersionReq        = 0x1F
)

// Message types - Responses (Board → Host) 0x20-0x2F
const (
	MsgCreateMacroResp    = 0x20
	MsgAddMacroActionResp = 0x21
	MsgStartMacroResp     = 0x22
	MsgRemoveMacroResp    = 0x23
	MsgEnableIntResp      = 0x24
	MsgDisableIntResp     = 0x25
	MsgGPIOConfigResp     = 0x26
	MsgVersionResp        = 0x2F
)

// Message types - Indications (Board → Host) 0x30-0x3F
const (
	MsgMacroInd = 0x30
	MsgIntInd   = 0x31
)

// Message types - Errors (Board → Host) 0xE0-0xEF
const (
	MsgErrorInvalidCmd      = 0xE0
	MsgErrorRequestRejected = 0xE1
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// TriggerType selects what fires a macro
type TriggerType uint8

// Trigger type values
const (
	TriggerPoll      TriggerType = 0x00
	TriggerInterrupt TriggerType = 0x01
)

// TimeScale is the unit of a poll trigger's timer value
type TimeScale uint8

// Time scale values
const (
	TimeScaleUS TimeScale = 0x00
	TimeScaleMS TimeScale = 0x01
	TimeScaleS  TimeScale = 0x02
)

// Sense is the active edge of an interrupt pin
type Sense uint8

// Sense values
const (
	SenseLow  Sense = 0x00
	SenseHigh Sense = 0x01
)

// Pull is the pull resistor mode of a GPIO pin
type Pull uint8

// Pull values
const (
	PullNone Pull = 0x00
	PullDown Pull = 0x01
	PullUp   Pull = 0x02
)

// Action is the kind of work attached to a macro
type Action uint8

// Action values
const (
	ActionRead    Action = 0x00
	ActionADCRead Action = 0x01
)

// GPIOMode is the pin function requested with GPIO_CONFIG
type GPIOMode uint8

// GPIO mode values
const (
	GPIOModeInput  GPIOMode = 0x00
	GPIOModeOutput GPIOMode = 0x01
	GPIOModeADC    GPIOMode = 0x02
)

// IsRequest reports whether msgType is a host request
func IsRequest(msgType uint8) bool {
	return msgType >= 0x10 && msgType <= 0x1F
}

// IsResponse reports whether msgType is a board response
func IsResponse(msgType uint8) bool {
	return msgType >= 0x20 && msgType <= 0x2F
}

// IsIndication reports whether msgType is an unsolicited data indication
func IsIndication(msgType uint8) bool {
	return msgType >= 0x30 && msgType <= 0x3F
}

// IsError reports whether msgType is an error report
func IsError(msgType uint8) bool {
	return msgType >= 0xE0 && msgType <= 0xEF
}

// ResponseFor returns the response type acknowledging a request type
func ResponseFor(reqType uint8) uint8 {
	if !IsRequest(reqType) {
		return MsgAny
	}
	return reqType + 0x10
}
