// Package ubx encodes and decodes u-blox UBX binary frames.
package ubx

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sync bytes
const (
	Sync1 = 0xB5
	Sync2 = 0x62
)

// Message classes and ids used by the clock
const (
	ClassNAV  = 0x01
	ClassCFG  = 0x06
	ClassNMEA = 0xF0

	IDNavTimeUTC = 0x21
	IDNavClock   = 0x22
	IDCfgMsg     = 0x01
	IDCfgTP5     = 0x31
)

const (
	headerLen   = 6
	checksumLen = 2
)

var (
	ErrShort    = errors.New("ubx: frame too short")
	ErrSync     = errors.New("ubx: bad sync bytes")
	ErrLength   = errors.New("ubx: length mismatch")
	ErrChecksum = errors.New("ubx: checksum mismatch")
	ErrType     = errors.New("ubx: unexpected message type")
)

// Packet is a decoded frame. Payload aliases the source frame.
type Packet struct {
	Class   uint8
	ID      uint8
	Payload []byte
}

// Checksum computes the two 8-bit Fletcher accumulators over data
// (class, id, length and payload).
func Checksum(data []byte) (ckA, ckB uint8) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// Encode builds a complete frame: sync, header, payload and checksum
func Encode(class, id uint8, payload []byte) []byte {
	buf := make([]byte, 0, headerLen+len(payload)+checksumLen)
	buf = append(buf, Sync1, Sync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := Checksum(buf[2:])
	return append(buf, ckA, ckB)
}

// Decode verifies a complete frame and returns its class, id and payload
func Decode(frame []byte) (Packet, error) {
	if len(frame) < headerLen+checksumLen {
		return Packet{}, ErrShort
	}
	if frame[0] != Sync1 || frame[1] != Sync2 {
		return Packet{}, ErrSync
	}
	length := int(binary.LittleEndian.Uint16(frame[4:6]))
	if len(frame) != headerLen+length+checksumLen {
		return Packet{}, fmt.Errorf("%w: header says %d, frame carries %d", ErrLength, length, len(frame)-headerLen-checksumLen)
	}
	ckA, ckB := Checksum(frame[2 : len(frame)-checksumLen])
	if frame[len(frame)-2] != ckA || frame[len(frame)-1] != ckB {
		return Packet{}, ErrChecksum
	}
	return Packet{
		Class:   frame[2],
		ID:      frame[3],
		Payload: frame[headerLen : headerLen+length],
	}, nil
}

// Is reports whether the packet has the given class and id
func (p Packet) Is(class, id uint8) bool {
	return p.Class == class && p.ID == id
}
