// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package evkit

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

// fakePort is an io.ReadWriter whose reads time out (0, nil) once drained
type fakePort struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.in.Len() == 0 {
		return 0, nil
	}
	return f.in.Read(p)
}

func (f *fakePort) Write(p []byte) (int, error) {
	return f.out.Write(p)
}

func (f *fakePort) push(t *testing.T, packets ...*Packet) {
	t.Helper()
	for _, p := range packets {
		f.in.Write(EncodePacket(p))
	}
}

func decodeAll(t *testing.T, data []byte) []*Packet {
	t.Helper()
	d := NewDecoder()
	var out []*Packet
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{name: "empty", data: []byte{}, expected: crcInitial},
		{name: "ASCII '123456789'", data: []byte("123456789"), expected: 0x29B1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := CalculateCRC(tt.data); crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

// ============================================================
// Encoder / Decoder Tests
// ============================================================

func TestEncodeDecode_CreateMacroInterrupt(t *testing.T) {
	wire := EncodePacket(NewCreateMacroInterrupt(14, SenseHigh, PullNone))
	if wire[0] != StartByte || wire[len(wire)-1] != EndByte {
		t.Fatalf("packet not framed: % X", wire)
	}

	packets := decodeAll(t, wire)
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	p := packets[0]
	if p.Type() != MsgCreateMacroReq {
		t.Errorf("expected CREATE_MACRO, got %s", p)
	}
	if v, _ := p.Uint(KeyTriggerType); TriggerType(v) != TriggerInterrupt {
		t.Errorf("expected interrupt trigger, got %d", v)
	}
	if v, _ := p.Uint(KeyGPIOPin); v != 14 {
		t.Errorf("expected pin 14, got %d", v)
	}
	if v, _ := p.Uint(KeyGPIOSense); Sense(v) != SenseHigh {
		t.Errorf("expected sense high, got %d", v)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	a := EncodePacket(NewAddReadAction(3, ReadAction{Target: 4, Identifier: 0x1F, StartRegister: 0x06, BytesToRead: 6}))
	b := EncodePacket(NewAddReadAction(3, ReadAction{Target: 4, Identifier: 0x1F, StartRegister: 0x06, BytesToRead: 6}))
	if !bytes.Equal(a, b) {
		t.Errorf("identical requests encoded differently:\n% X\n% X", a, b)
	}
}

func TestEncode_StuffsSpecialBytes(t *testing.T) {
	data := []byte{StartByte, EndByte, EscByte, 0x01}
	wire := EncodePacket(NewIndication(MsgMacroInd, 1, data))

	inner := wire[1 : len(wire)-1]
	for i, b := range inner {
		if b == StartByte || b == EndByte {
			t.Fatalf("unescaped framing byte 0x%02X at offset %d", b, i+1)
		}
	}

	packets := decodeAll(t, wire)
	got, _ := packets[0].Bytes(KeyIndicationData)
	if !bytes.Equal(got, data) {
		t.Errorf("expected % X, got % X", data, got)
	}
}

func TestUnstuffBytes(t *testing.T) {
	stuffed := stuffBytes([]byte{0x01, StartByte, EscByte})
	got, err := UnstuffBytes(stuffed)
	if err != nil {
		t.Fatalf("unstuff error: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, StartByte, EscByte}) {
		t.Errorf("unexpected result % X", got)
	}

	if _, err := UnstuffBytes([]byte{0x01, EscByte}); err == nil {
		t.Error("expected error for trailing escape")
	}
}

func TestDecoder_CRCMismatch(t *testing.T) {
	payload, err := encodeCBORPayload(MsgStartMacroReq, map[int]interface{}{KeyMacroID: uint64(2)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data := append([]byte{uint8(len(payload))}, payload...)
	crc := CalculateCRC(data) ^ 0xFFFF
	data = append(data, byte(crc>>8), byte(crc))
	wire := append([]byte{StartByte}, stuffBytes(data)...)
	wire = append(wire, EndByte)

	d := NewDecoder()
	var gotErr error
	for _, b := range wire {
		if _, err := d.DecodeByte(b); err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrCRCMismatch) {
		t.Errorf("expected CRC mismatch, got %v", gotErr)
	}
}

func TestDecoder_ResyncOnStartByte(t *testing.T) {
	good := EncodePacket(NewRemoveMacro(5))
	garbage := []byte{0x01, 0x02, StartByte, 0x05, 0x00}
	packets := decodeAll(t, append(garbage, good...))
	if len(packets) != 1 || packets[0].Type() != MsgRemoveMacroReq {
		t.Fatalf("expected REMOVE_MACRO after resync, got %v", packets)
	}
}

// ============================================================
// Command Tests
// ============================================================

func TestNewAddADCAction(t *testing.T) {
	p := NewAddADCAction(7, ADCAction{Target: 1, Pin: 3, Oversample: 2, Gain: 1, Resolution: 12, AcqTimeUS: 10})
	checks := map[int]uint64{
		KeyActionMacroID:    7,
		KeyAction:           uint64(ActionADCRead),
		KeyActionIdentifier: 3,
		KeyADCOversample:    2,
		KeyADCGain:          1,
		KeyADCResolution:    12,
		KeyADCAcqTimeUS:     10,
	}
	for key, want := range checks {
		if got, ok := p.Uint(key); !ok || got != want {
			t.Errorf("key %d: expected %d, got %d (present=%v)", key, want, got, ok)
		}
	}
}

func TestResponseFor(t *testing.T) {
	if ResponseFor(MsgCreateMacroReq) != MsgCreateMacroResp {
		t.Error("CREATE_MACRO should be acknowledged by CREATE_MACRO_RESP")
	}
	if ResponseFor(MsgEnableIntReq) != MsgEnableIntResp {
		t.Error("ENABLE_INT should be acknowledged by ENABLE_INT_RESP")
	}
	if ResponseFor(MsgMacroInd) != MsgAny {
		t.Error("indications have no response")
	}
}

// ============================================================
// Validator / Formatter Tests
// ============================================================

func TestValidatePacket_IndicationWithoutData(t *testing.T) {
	p := NewPacketWithPayload(MsgMacroInd, map[int]interface{}{KeyIndicationKey: uint64(1)})
	errs := ValidatePacket(p)
	if len(errs) != 1 || errs[0].Type != AnomalyMissingField {
		t.Errorf("expected one missing-field error, got %v", errs)
	}
}

func TestValidatePacket_CreateMacroResp(t *testing.T) {
	if errs := ValidatePacket(NewCreateMacroResponse(4)); len(errs) != 0 {
		t.Errorf("expected valid, got %v", errs)
	}
	if errs := ValidatePacket(NewAck(MsgCreateMacroResp)); len(errs) == 0 {
		t.Error("expected missing macro id error")
	}
}

func TestFormatPacket(t *testing.T) {
	out := FormatPacket(NewAddReadAction(1, ReadAction{Target: 4, Identifier: 0x1F, StartRegister: 0x06, BytesToRead: 6}))
	for _, want := range []string{"ADD_MACRO_ACTION", "Register: 0x06", "Bytes: 6"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestStatistics(t *testing.T) {
	s := NewStatistics()
	s.Update(NewIndication(MsgMacroInd, 1, []byte{1}), nil, nil)
	s.Update(nil, ErrCRCMismatch, nil)
	s.Update(NewAck(MsgStartMacroResp), nil, []ValidationError{{Type: AnomalyMissingField}})

	if s.TotalPackets != 3 || s.ValidPackets != 1 || s.CRCErrors != 1 || s.MalformedPackets != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.Indications != 1 {
		t.Errorf("expected 1 indication, got %d", s.Indications)
	}
	if !strings.Contains(s.String(), "MACRO_IND") {
		t.Error("summary should list per-type counts")
	}
}

// ============================================================
// Link Tests
// ============================================================

func TestLink_SendWritesFrame(t *testing.T) {
	port := &fakePort{}
	link := NewLink(port)
	if err := link.Send(NewStartMacro(9)); err != nil {
		t.Fatalf("send: %v", err)
	}
	packets := decodeAll(t, port.out.Bytes())
	if len(packets) != 1 || packets[0].Type() != MsgStartMacroReq {
		t.Fatalf("expected START_MACRO on the wire, got %v", packets)
	}
}

func TestLink_ReceiveResponseQueuesIndications(t *testing.T) {
	port := &fakePort{}
	port.push(t,
		NewIndication(MsgMacroInd, 2, []byte{0x02, 0xAA}),
		NewCreateMacroResponse(3),
	)
	link := NewLink(port, WithReceiveTimeout(50*time.Millisecond))

	key, payload, err := link.Receive(MsgCreateMacroResp)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if key != 3 || payload == nil {
		t.Fatalf("expected macro id 3 with payload, got key=%d payload=%v", key, payload)
	}

	key, data, err := link.Receive(MsgAny)
	if err != nil {
		t.Fatalf("receive indication: %v", err)
	}
	if key != 2 || !bytes.Equal(data, []byte{0x02, 0xAA}) {
		t.Errorf("expected queued indication, got key=%d data=% X", key, data)
	}
}

func TestLink_ReceiveTimeout(t *testing.T) {
	link := NewLink(&fakePort{}, WithReceiveTimeout(10*time.Millisecond))
	key, payload, err := link.Receive(MsgAny)
	if err != nil || payload != nil || key != 0 {
		t.Errorf("expected timeout (0, nil, nil), got (%d, %v, %v)", key, payload, err)
	}
}

func TestLink_UnexpectedResponse(t *testing.T) {
	port := &fakePort{}
	port.push(t, NewAck(MsgRemoveMacroResp))
	link := NewLink(port, WithReceiveTimeout(50*time.Millisecond))

	_, _, err := link.Receive(MsgStartMacroResp)
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("expected ErrUnexpectedResponse, got %v", err)
	}
}

func TestLink_DeviceError(t *testing.T) {
	port := &fakePort{}
	port.push(t, NewPacketWithPayload(MsgErrorRequestRejected, map[int]interface{}{
		KeyRejectedType: uint64(MsgCreateMacroReq),
		KeyRejectReason: uint64(1),
	}))
	link := NewLink(port, WithReceiveTimeout(50*time.Millisecond))

	_, _, err := link.Receive(MsgCreateMacroResp)
	if !errors.Is(err, ErrDeviceError) {
		t.Errorf("expected ErrDeviceError, got %v", err)
	}
}

func TestLink_QueryVersion(t *testing.T) {
	port := &fakePort{}
	port.push(t, NewVersionResponse(2, 1, true))
	link := NewLink(port, WithReceiveTimeout(50*time.Millisecond))

	v, err := link.QueryVersion()
	if err != nil {
		t.Fatalf("query version: %v", err)
	}
	if v.Major != 2 || v.Minor != 1 || !v.StreamSupport {
		t.Errorf("unexpected version %+v", v)
	}
	if v.String() != "2.1" {
		t.Errorf("expected 2.1, got %s", v)
	}
}
