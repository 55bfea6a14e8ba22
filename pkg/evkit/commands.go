// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package evkit

// Request builder functions create Packet structs ready for encoding.
// Payload keys are listed next to each builder; responses and indications
// use the keys documented on their accessor functions.

// CREATE_MACRO payload keys
const (
	KeyTriggerType = 0
	KeyTimerScale  = 1
	KeyTimerValue  = 2
	KeyGPIOPin     = 3
	KeyGPIOSense   = 4
	KeyGPIOPull    = 5
)

// ADD_MACRO_ACTION payload keys
const (
	KeyActionMacroID    = 0
	KeyAction           = 1
	KeyActionTarget     = 2
	KeyActionIdentifier = 3
	KeyActionAppend     = 4
	KeyActionDiscard    = 5
	KeyStartRegister    = 6
	KeyBytesToRead      = 7
	KeyADCOversample    = 8
	KeyADCGain          = 9
	KeyADCResolution    = 10
	KeyADCAcqTimeUS     = 11
)

// Shared keys of the remaining messages
const (
	KeyMacroID = 0 // START_MACRO, REMOVE_MACRO, CREATE_MACRO_RESP, MACRO_IND

	KeyIntPin     = 0 // ENABLE_INT, DISABLE_INT, GPIO_CONFIG
	KeyIntPayload = 1 // ENABLE_INT
	KeyIntSense   = 2 // ENABLE_INT
	KeyIntPull    = 3 // ENABLE_INT
	KeyGPIOMode   = 1 // GPIO_CONFIG

	KeyStatus   = 0 // ENABLE_INT_RESP
	KeyIntIndex = 1 // ENABLE_INT_RESP

	KeyIndicationKey  = 0 // MACRO_IND, INT_IND
	KeyIndicationData = 1 // MACRO_IND, INT_IND

	KeyVersionMajor  = 0 // VERSION_RESP
	KeyVersionMinor  = 1 // VERSION_RESP
	KeyStreamSupport = 2 // VERSION_RESP

	KeyRejectedType = 0 // error packets
	KeyRejectReason = 1 // REQUEST_REJECTED
)

// ReadAction describes a register read executed over I2C or SPI when a macro fires
type ReadAction struct {
	Target        uint8
	Identifier    uint8 // I2C slave address or SPI chip select
	StartRegister uint8
	BytesToRead   uint8
	Discard       bool // read but leave out of the indication (e.g. interrupt latch release)
}

// ADCAction describes one ADC conversion executed when a macro fires
type ADCAction struct {
	Target     uint8
	Pin        uint8
	Oversample uint8
	Gain       uint8
	Resolution uint8
	AcqTimeUS  uint16
}

// NewCreateMacroPoll creates a CREATE_MACRO packet (0x10) for a timer triggered macro.
func NewCreateMacroPoll(scale TimeScale, value uint32) *Packet {
	payload := map[int]interface{}{
		KeyTriggerType: uint64(TriggerPoll),
		KeyTimerScale:  uint64(scale),
		KeyTimerValue:  uint64(value),
	}
	return NewPacketWithPayload(MsgCreateMacroReq, payload)
}

// NewCreateMacroInterrupt creates a CREATE_MACRO packet (0x10) for a GPIO edge triggered macro.
func NewCreateMacroInterrupt(pin uint8, sense Sense, pull Pull) *Packet {
	payload := map[int]interface{}{
		KeyTriggerType: uint64(TriggerInterrupt),
		KeyGPIOPin:     uint64(pin),
		KeyGPIOSense:   uint64(sense),
		KeyGPIOPull:    uint64(pull),
	}
	return NewPacketWithPayload(MsgCreateMacroReq, payload)
}

// NewAddReadAction creates an ADD_MACRO_ACTION packet (0x11) appending a bus read.
func NewAddReadAction(macroID uint8, a ReadAction) *Packet {
	payload := map[int]interface{}{
		KeyActionMacroID:    uint64(macroID),
		KeyAction:           uint64(ActionRead),
		KeyActionTarget:     uint64(a.Target),
		KeyActionIdentifier: uint64(a.Identifier),
		KeyActionAppend:     true,
		KeyActionDiscard:    a.Discard,
		KeyStartRegister:    uint64(a.StartRegister),
		KeyBytesToRead:      uint64(a.BytesToRead),
	}
	return NewPacketWithPayload(MsgAddMacroActionReq, payload)
}

// NewAddADCAction creates an ADD_MACRO_ACTION packet (0x11) appending an ADC conversion.
func NewAddADCAction(macroID uint8, a ADCAction) *Packet {
	payload := map[int]interface{}{
		KeyActionMacroID:    uint64(macroID),
		KeyAction:           uint64(ActionADCRead),
		KeyActionTarget:     uint64(a.Target),
		KeyActionIdentifier: uint64(a.Pin),
		KeyActionAppend:     true,
		KeyADCOversample:    uint64(a.Oversample),
		KeyADCGain:          uint64(a.Gain),
		KeyADCResolution:    uint64(a.Resolution),
		KeyADCAcqTimeUS:     uint64(a.AcqTimeUS),
	}
	return NewPacketWithPayload(MsgAddMacroActionReq, payload)
}

// NewStartMacro creates a START_MACRO packet (0x12).
func NewStartMacro(macroID uint8) *Packet {
	return NewPacketWithPayload(MsgStartMacroReq, map[int]interface{}{
		KeyMacroID: uint64(macroID),
	})
}

// NewRemoveMacro creates a REMOVE_MACRO packet (0x13).
// The board stops the macro and frees its id.
func NewRemoveMacro(macroID uint8) *Packet {
	return NewPacketWithPayload(MsgRemoveMacroReq, map[int]interface{}{
		KeyMacroID: uint64(macroID),
	})
}

// NewInterruptEnable creates an ENABLE_INT packet (0x14) for engine 1 firmware.
// payload is the read description executed on each edge of pin.
func NewInterruptEnable(pin uint8, payload []byte, sense Sense, pull Pull) *Packet {
	return NewPacketWithPayload(MsgEnableIntReq, map[int]interface{}{
		KeyIntPin:     uint64(pin),
		KeyIntPayload: payload,
		KeyIntSense:   uint64(sense),
		KeyIntPull:    uint64(pull),
	})
}

// NewInterruptDisable creates a DISABLE_INT packet (0x15).
func NewInterruptDisable(pin uint8) *Packet {
	return NewPacketWithPayload(MsgDisableIntReq, map[int]interface{}{
		KeyIntPin: uint64(pin),
	})
}

// NewGPIOConfig creates a GPIO_CONFIG packet (0x16).
func NewGPIOConfig(pin uint8, mode GPIOMode) *Packet {
	return NewPacketWithPayload(MsgGPIOConfigReq, map[int]interface{}{
		KeyIntPin:   uint64(pin),
		KeyGPIOMode: uint64(mode),
	})
}

// NewVersionRequest creates a VERSION_REQUEST packet (0x1F).
func NewVersionRequest() *Packet {
	return NewPacketWithPayload(MsgVersionReq, nil)
}

// NewCreateMacroResponse creates a CREATE_MACRO_RESP packet (0x20).
// Board side builder, used by simulators and tests.
func NewCreateMacroResponse(macroID uint8) *Packet {
	return NewPacketWithPayload(MsgCreateMacroResp, map[int]interface{}{
		KeyMacroID: uint64(macroID),
	})
}

// NewEnableIntResponse creates an ENABLE_INT_RESP packet (0x24).
func NewEnableIntResponse(status, index uint8) *Packet {
	return NewPacketWithPayload(MsgEnableIntResp, map[int]interface{}{
		KeyStatus:   uint64(status),
		KeyIntIndex: uint64(index),
	})
}

// NewAck creates an empty response packet of the given type.
func NewAck(respType uint8) *Packet {
	return NewPacketWithPayload(respType, nil)
}

// NewVersionResponse creates a VERSION_RESP packet (0x2F).
func NewVersionResponse(major, minor uint8, streamSupport bool) *Packet {
	return NewPacketWithPayload(MsgVersionResp, map[int]interface{}{
		KeyVersionMajor:  uint64(major),
		KeyVersionMinor:  uint64(minor),
		KeyStreamSupport: streamSupport,
	})
}

// NewIndication creates a MACRO_IND (0x30) or INT_IND (0x31) packet.
func NewIndication(msgType uint8, key uint8, data []byte) *Packet {
	return NewPacketWithPayload(msgType, map[int]interface{}{
		KeyIndicationKey:  uint64(key),
		KeyIndicationData: data,
	})
}

// AttributionKey extracts the key a response or indication is addressed by:
// the macro id for engine 2 traffic, the interrupt index for engine 1.
func AttributionKey(p *Packet) (int, bool) {
	var key int
	switch p.Type() {
	case MsgEnableIntResp:
		key = KeyIntIndex
	case MsgCreateMacroResp, MsgMacroInd, MsgIntInd:
		key = KeyMacroID
	default:
		return 0, false
	}
	v, ok := p.Uint(key)
	if !ok || v > 0xFF {
		return 0, false
	}
	return int(v), true
}
