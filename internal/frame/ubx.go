package frame

import "encoding/binary"

const (
	// UBXSync1 and UBXSync2 open every UBX frame
	UBXSync1 = 0xB5
	UBXSync2 = 0x62

	// UBXHeaderLen covers sync, class, id and the length field
	UBXHeaderLen = 6
	// MaxUBXPayload bounds the payloads this assembler will collect
	MaxUBXPayload = 256
	// MaxUBXFrame is the largest frame accepted, checksum included
	MaxUBXFrame = UBXHeaderLen + MaxUBXPayload + 2
)

type ubxState uint8

const (
	ubxHunt ubxState = iota
	ubxSync2
	ubxHeader
	ubxBody
)

// UBXAssembler collects length-prefixed UBX frames
type UBXAssembler struct {
	buf   [MaxUBXFrame]byte
	n     int
	total int
	state ubxState
}

// NewUBXAssembler returns an assembler hunting for the first sync byte
func NewUBXAssembler() *UBXAssembler {
	return &UBXAssembler{}
}

// Feed consumes one byte. When the computed frame length has been collected
// the whole frame, sync bytes and checksum included, is returned.
func (a *UBXAssembler) Feed(b byte) ([]byte, bool) {
	switch a.state {
	case ubxHunt:
		if b == UBXSync1 {
			a.buf[0] = b
			a.n = 1
			a.state = ubxSync2
		}
	case ubxSync2:
		if b != UBXSync2 {
			a.Reset()
			return nil, false
		}
		a.buf[1] = b
		a.n = 2
		a.state = ubxHeader
	case ubxHeader:
		a.buf[a.n] = b
		a.n++
		if a.n == UBXHeaderLen {
			length := int(binary.LittleEndian.Uint16(a.buf[4:6]))
			a.total = UBXHeaderLen + length + 2
			if a.total > len(a.buf) {
				a.Reset()
				return nil, false
			}
			a.state = ubxBody
		}
	case ubxBody:
		a.buf[a.n] = b
		a.n++
		if a.n == a.total {
			frame := a.buf[:a.n]
			a.Reset()
			return frame, true
		}
	}
	return nil, false
}

// Reset returns to the hunt state
func (a *UBXAssembler) Reset() {
	a.state = ubxHunt
	a.n = 0
	a.total = 0
}
