// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package evkit

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// buildRandomCBORPayload creates a CBOR payload [msgType, random_map] for fuzz testing
func buildRandomCBORPayload(rng *rand.Rand, msgType uint8) []byte {
	numEntries := rng.Intn(6)
	payloadMap := make(map[int]interface{})
	for i := 0; i < numEntries; i++ {
		key := rng.Intn(8)
		switch rng.Intn(5) {
		case 0:
			payloadMap[key] = rng.Uint64()
		case 1:
			payloadMap[key] = uint64(rng.Intn(256))
		case 2:
			payloadMap[key] = rng.Float64()
		case 3:
			payloadMap[key] = rng.Intn(2) == 1
		case 4:
			data := make([]byte, rng.Intn(16))
			rng.Read(data)
			payloadMap[key] = data
		}
	}

	var msg interface{}
	if len(payloadMap) == 0 {
		msg = []interface{}{uint64(msgType), nil}
	} else {
		msg = []interface{}{uint64(msgType), payloadMap}
	}

	data, err := cbor.Marshal(msg)
	if err != nil {
		data, _ = cbor.Marshal([]interface{}{uint64(msgType), nil})
	}
	return data
}

// buildFrame returns an unstuffed frame for payload
func buildFrame(payload []byte) []byte {
	frame := []byte{StartByte, uint8(len(payload))}
	frame = append(frame, payload...)
	crc := CalculateCRC(frame[1:])
	frame = append(frame, byte(crc>>8), byte(crc))
	return append(frame, EndByte)
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash or panic
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)

		for _, b := range data {
			d.DecodeByte(b)
		}
	}
}

// TestFuzzDecoder_RandomPackets generates random valid packets
// with random CBOR payloads
func TestFuzzDecoder_RandomPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		msgType := uint8(rng.Intn(256))
		cborPayload := buildRandomCBORPayload(rng, msgType)

		crcData := append([]byte{uint8(len(cborPayload))}, cborPayload...)
		crc := CalculateCRC(crcData)

		d.DecodeByte(StartByte)
		feedByteWithStuffing(d, uint8(len(cborPayload)))
		for _, b := range cborPayload {
			feedByteWithStuffing(d, b)
		}
		feedByteWithStuffing(d, byte(crc>>8))
		feedByteWithStuffing(d, byte(crc))
		packet, err := d.DecodeByte(EndByte)

		if err != nil {
			t.Errorf("Round %d: unexpected decode error: %v", i, err)
			continue
		}
		if packet == nil {
			t.Errorf("Round %d: expected packet, got nil", i)
			continue
		}
		if packet.Length() != uint8(len(cborPayload)) {
			t.Errorf("Round %d: length mismatch: expected %d, got %d", i, len(cborPayload), packet.Length())
		}
		if packet.Type() != msgType {
			t.Errorf("Round %d: type mismatch: expected 0x%02X, got 0x%02X", i, msgType, packet.Type())
		}
	}
}

// TestFuzzDecoder_CorruptedPackets generates packets with random corruption
func TestFuzzDecoder_CorruptedPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		packetBytes := buildFrame(buildRandomCBORPayload(rng, uint8(rng.Intn(256))))

		// Corrupt a random byte (not START or END)
		corruptIdx := rng.Intn(len(packetBytes)-2) + 1
		packetBytes[corruptIdx] ^= byte(rng.Intn(255) + 1)

		for _, b := range packetBytes {
			d.DecodeByte(b)
		}
	}
}

// TestFuzzDecoder_MissingBytes tests packets with missing bytes
func TestFuzzDecoder_MissingBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		packetBytes := buildFrame(buildRandomCBORPayload(rng, uint8(rng.Intn(256))))

		numToRemove := rng.Intn(5) + 1
		for j := 0; j < numToRemove && len(packetBytes) > 2; j++ {
			idx := rng.Intn(len(packetBytes))
			packetBytes = append(packetBytes[:idx], packetBytes[idx+1:]...)
		}

		for _, b := range packetBytes {
			d.DecodeByte(b)
		}
	}
}

// TestFuzzDecoder_ExtraBytes tests packets with extra random bytes inserted
func TestFuzzDecoder_ExtraBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		packetBytes := buildFrame(buildRandomCBORPayload(rng, uint8(rng.Intn(256))))

		numToInsert := rng.Intn(5) + 1
		for j := 0; j < numToInsert; j++ {
			idx := rng.Intn(len(packetBytes) + 1)
			extraByte := byte(rng.Intn(256))
			packetBytes = append(packetBytes[:idx], append([]byte{extraByte}, packetBytes[idx:]...)...)
		}

		for _, b := range packetBytes {
			d.DecodeByte(b)
		}
	}
}

// TestFuzzDecoder_RepeatedStart tests handling of repeated START bytes
func TestFuzzDecoder_RepeatedStart(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	data := EncodePacket(NewVersionRequest())

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		numStarts := rng.Intn(100) + 1
		for j := 0; j < numStarts; j++ {
			d.DecodeByte(StartByte)
		}

		var packet *Packet
		var err error
		for _, b := range data {
			packet, err = d.DecodeByte(b)
		}
		if err != nil {
			t.Errorf("Round %d: unexpected error after repeated START: %v", i, err)
		}
		if packet == nil || packet.Type() != MsgVersionReq {
			t.Errorf("Round %d: expected VERSION_REQUEST after repeated START", i)
		}
	}
}

// ============================================================
// Validation Fuzz Tests
// ============================================================

// TestFuzzValidation_RandomPackets tests validation with random packet contents
func TestFuzzValidation_RandomPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	msgTypes := []uint8{
		MsgCreateMacroResp,
		MsgEnableIntResp,
		MsgVersionResp,
		MsgMacroInd,
		MsgIntInd,
	}

	for i := 0; i < rounds; i++ {
		for _, msgType := range msgTypes {
			cborPayload := buildRandomCBORPayload(rng, msgType)
			p := NewPacket(uint8(len(cborPayload)), cborPayload, 0)

			// Validate - should not panic
			ValidatePacket(p)
		}
	}
}

// ============================================================
// Formatter Fuzz Tests
// ============================================================

// TestFuzzFormatter_RandomPackets tests formatting with random packets
func TestFuzzFormatter_RandomPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		msgType := uint8(rng.Intn(256))
		cborPayload := buildRandomCBORPayload(rng, msgType)
		p := NewPacket(uint8(len(cborPayload)), cborPayload, 0)

		if result := FormatPacket(p); result == "" {
			t.Errorf("Round %d: FormatPacket returned empty string", i)
		}
		if typeStr := FormatMessageType(msgType); typeStr == "" {
			t.Errorf("Round %d: FormatMessageType returned empty string", i)
		}
		if payloadStr := FormatPayloadMap(msgType, p.PayloadMap()); payloadStr == "" {
			t.Errorf("Round %d: FormatPayloadMap returned empty string", i)
		}
	}
}

// ============================================================
// Helper Functions
// ============================================================

// feedByteWithStuffing sends a byte to the decoder with proper byte stuffing
func feedByteWithStuffing(d *Decoder, b byte) {
	if b == StartByte || b == EndByte || b == EscByte {
		d.DecodeByte(EscByte)
		d.DecodeByte(b ^ EscXor)
	} else {
		d.DecodeByte(b)
	}
}
