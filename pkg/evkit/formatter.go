// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package evkit

import (
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, FormatMessageType(p.Type()), p.Type(), p.length)
	if err := p.ParseError(); err != nil {
		return result + fmt.Sprintf("  Parse error: %v\n", err)
	}
	return result + FormatPayloadMap(p.Type(), p.PayloadMap())
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	// Requests (0x10-0x1F)
	case MsgCreateMacroReq:
		return "CREATE_MACRO"
	case MsgAddMacroActionReq:
		return "ADD_MACRO_ACTION"
	case MsgStartMacroReq:
		return "START_MACRO"
	case MsgRemoveMacroReq:
		return "REMOVE_MACRO"
	case MsgEnableIntReq:
		return "ENABLE_INT"
	case MsgDisableIntReq:
		return "DISABLE_INT"
	case MsgGPIOConfigReq:
		return "GPIO_CONFIG"
	case MsgVersionReq:
		return "VERSION_REQUEST"

	// Responses (0x20-0x2F)
	case MsgCreateMacroResp:
		return "CREATE_MACRO_RESP"
	case MsgAddMacroActionResp:
		return "ADD_MACRO_ACTION_RESP"
	case MsgStartMacroResp:
		return "START_MACRO_RESP"
	case MsgRemoveMacroResp:
		return "REMOVE_MACRO_RESP"
	case MsgEnableIntResp:
		return "ENABLE_INT_RESP"
	case MsgDisableIntResp:
		return "DISABLE_INT_RESP"
	case MsgGPIOConfigResp:
		return "GPIO_CONFIG_RESP"
	case MsgVersionResp:
		return "VERSION_RESP"

	// Indications (0x30-0x3F)
	case MsgMacroInd:
		return "MACRO_IND"
	case MsgIntInd:
		return "INT_IND"

	// Errors (0xE0-0xEF)
	case MsgErrorInvalidCmd:
		return "ERROR_INVALID_CMD"
	case MsgErrorRequestRejected:
		return "ERROR_REQUEST_REJECTED"

	default:
		return "UNKNOWN"
	}
}

// FormatPayloadMap formats the CBOR payload map based on message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	switch msgType {
	case MsgVersionReq, MsgAddMacroActionResp, MsgStartMacroResp, MsgRemoveMacroResp,
		MsgDisableIntResp, MsgGPIOConfigResp:
		if len(m) == 0 {
			return "  (no payload)\n"
		}

	case MsgCreateMacroReq:
		trigger, _ := GetMapUint(m, KeyTriggerType)
		if TriggerType(trigger) == TriggerPoll {
			scale, _ := GetMapUint(m, KeyTimerScale)
			value, _ := GetMapUint(m, KeyTimerValue)
			return fmt.Sprintf("  Trigger: POLL, Interval: %d %s\n", value, formatTimeScale(TimeScale(scale)))
		}
		pin, _ := GetMapUint(m, KeyGPIOPin)
		sense, _ := GetMapUint(m, KeyGPIOSense)
		pull, _ := GetMapUint(m, KeyGPIOPull)
		return fmt.Sprintf("  Trigger: INTERRUPT, Pin: %d, Sense: %s, Pull: %s\n",
			pin, formatSense(Sense(sense)), formatPull(Pull(pull)))

	case MsgAddMacroActionReq:
		id, _ := GetMapUint(m, KeyActionMacroID)
		action, _ := GetMapUint(m, KeyAction)
		target, _ := GetMapUint(m, KeyActionTarget)
		ident, _ := GetMapUint(m, KeyActionIdentifier)
		if Action(action) == ActionADCRead {
			gain, _ := GetMapUint(m, KeyADCGain)
			res, _ := GetMapUint(m, KeyADCResolution)
			over, _ := GetMapUint(m, KeyADCOversample)
			acq, _ := GetMapUint(m, KeyADCAcqTimeUS)
			return fmt.Sprintf("  Macro: %d, Action: ADC_READ, Target: %d, Pin: %d, Gain: %d, Resolution: %d, Oversample: %d, Acq: %d us\n",
				id, target, ident, gain, res, over, acq)
		}
		reg, _ := GetMapUint(m, KeyStartRegister)
		n, _ := GetMapUint(m, KeyBytesToRead)
		discard, _ := GetMapBool(m, KeyActionDiscard)
		result := fmt.Sprintf("  Macro: %d, Action: READ, Target: %d, Identifier: 0x%02X, Register: 0x%02X, Bytes: %d",
			id, target, ident, reg, n)
		if discard {
			result += ", Discard"
		}
		return result + "\n"

	case MsgStartMacroReq, MsgRemoveMacroReq, MsgCreateMacroResp:
		id, _ := GetMapUint(m, KeyMacroID)
		return fmt.Sprintf("  Macro: %d\n", id)

	case MsgEnableIntReq:
		pin, _ := GetMapUint(m, KeyIntPin)
		payload, _ := GetMapBytes(m, KeyIntPayload)
		sense, _ := GetMapUint(m, KeyIntSense)
		pull, _ := GetMapUint(m, KeyIntPull)
		return fmt.Sprintf("  Pin: %d, Sense: %s, Pull: %s, Payload: % X\n",
			pin, formatSense(Sense(sense)), formatPull(Pull(pull)), payload)

	case MsgDisableIntReq:
		pin, _ := GetMapUint(m, KeyIntPin)
		return fmt.Sprintf("  Pin: %d\n", pin)

	case MsgGPIOConfigReq:
		pin, _ := GetMapUint(m, KeyIntPin)
		mode, _ := GetMapUint(m, KeyGPIOMode)
		return fmt.Sprintf("  Pin: %d, Mode: %s\n", pin, formatGPIOMode(GPIOMode(mode)))

	case MsgEnableIntResp:
		status, _ := GetMapUint(m, KeyStatus)
		index, _ := GetMapUint(m, KeyIntIndex)
		return fmt.Sprintf("  Status: %d, Index: %d\n", status, index)

	case MsgVersionResp:
		major, _ := GetMapUint(m, KeyVersionMajor)
		minor, _ := GetMapUint(m, KeyVersionMinor)
		stream, _ := GetMapBool(m, KeyStreamSupport)
		return fmt.Sprintf("  Engine: %d.%d, Streaming: %t\n", major, minor, stream)

	case MsgMacroInd, MsgIntInd:
		key, _ := GetMapUint(m, KeyIndicationKey)
		data, _ := GetMapBytes(m, KeyIndicationData)
		return fmt.Sprintf("  Key: %d, Data: %s", key, hexDump(data))

	case MsgErrorInvalidCmd:
		rejected, _ := GetMapUint(m, KeyRejectedType)
		return fmt.Sprintf("  Rejected: %s (0x%02X)\n", FormatMessageType(uint8(rejected)), rejected)

	case MsgErrorRequestRejected:
		rejected, _ := GetMapUint(m, KeyRejectedType)
		reason, _ := GetMapUint(m, KeyRejectReason)
		return fmt.Sprintf("  Rejected: %s (0x%02X), Reason: %d\n", FormatMessageType(uint8(rejected)), rejected, reason)
	}

	return formatRawMap(m)
}

func formatTimeScale(s TimeScale) string {
	switch s {
	case TimeScaleUS:
		return "us"
	case TimeScaleMS:
		return "ms"
	case TimeScaleS:
		return "s"
	default:
		return fmt.Sprintf("scale(%d)", s)
	}
}

func formatSense(s Sense) string {
	switch s {
	case SenseHigh:
		return "HIGH"
	case SenseLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

func formatPull(p Pull) string {
	switch p {
	case PullNone:
		return "NONE"
	case PullDown:
		return "DOWN"
	case PullUp:
		return "UP"
	default:
		return "UNKNOWN"
	}
}

func formatGPIOMode(m GPIOMode) string {
	switch m {
	case GPIOModeInput:
		return "INPUT"
	case GPIOModeOutput:
		return "OUTPUT"
	case GPIOModeADC:
		return "ADC"
	default:
		return "UNKNOWN"
	}
}

// hexDump renders bytes 16 per row
func hexDump(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n        ")
		}
		fmt.Fprintf(&sb, "%02X ", b)
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatRawMap(m map[int]interface{}) string {
	if len(m) == 0 {
		return "  (no payload)\n"
	}
	return fmt.Sprintf("  Payload: %v\n", m)
}
