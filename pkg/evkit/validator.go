// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package evkit

import "fmt"

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyParseError AnomalyType = iota
	AnomalyMissingField
	AnomalyInvalidValue
	AnomalyEmptyIndication
	AnomalyUnknownType
)

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket validates board-to-host packet structure.
// Returns a slice of validation errors (empty if packet is valid)
func ValidatePacket(p *Packet) []ValidationError {
	if err := p.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyParseError,
			Message: fmt.Sprintf("CBOR parse error: %v", err),
		}}
	}

	switch t := p.Type(); {
	case t == MsgCreateMacroResp:
		return requireKey(p, "CREATE_MACRO_RESP", KeyMacroID)
	case t == MsgEnableIntResp:
		return requireKey(p, "ENABLE_INT_RESP", KeyStatus, KeyIntIndex)
	case t == MsgVersionResp:
		return validateVersion(p)
	case t == MsgMacroInd, t == MsgIntInd:
		return validateIndication(p)
	case IsRequest(t), IsResponse(t), IsError(t):
		return nil
	default:
		return []ValidationError{{
			Type:    AnomalyUnknownType,
			Message: fmt.Sprintf("Unknown message type 0x%02X", t),
			Details: map[string]interface{}{"type": t},
		}}
	}
}

func requireKey(p *Packet, name string, keys ...int) []ValidationError {
	var errors []ValidationError
	for _, key := range keys {
		v, ok := p.Uint(key)
		if !ok {
			errors = append(errors, ValidationError{
				Type:    AnomalyMissingField,
				Message: fmt.Sprintf("%s missing field %d", name, key),
				Details: map[string]interface{}{"key": key},
			})
			continue
		}
		if v > 0xFF {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("%s field %d out of range: %d", name, key, v),
				Details: map[string]interface{}{"key": key, "value": v},
			})
		}
	}
	return errors
}

func validateVersion(p *Packet) []ValidationError {
	errors := requireKey(p, "VERSION_RESP", KeyVersionMajor, KeyVersionMinor)
	if _, ok := p.Bool(KeyStreamSupport); !ok {
		errors = append(errors, ValidationError{
			Type:    AnomalyMissingField,
			Message: "VERSION_RESP missing stream support flag",
			Details: map[string]interface{}{"key": KeyStreamSupport},
		})
	}
	return errors
}

func validateIndication(p *Packet) []ValidationError {
	errors := requireKey(p, FormatMessageType(p.Type()), KeyIndicationKey)
	data, ok := p.Bytes(KeyIndicationData)
	if !ok {
		return append(errors, ValidationError{
			Type:    AnomalyMissingField,
			Message: fmt.Sprintf("%s missing data field", FormatMessageType(p.Type())),
			Details: map[string]interface{}{"key": KeyIndicationData},
		})
	}
	if len(data) == 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyEmptyIndication,
			Message: fmt.Sprintf("%s carries no data", FormatMessageType(p.Type())),
		})
	}
	return errors
}
