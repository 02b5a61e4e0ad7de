// Package frame turns a receiver byte stream into complete protocol frames.
//
// Both assemblers are fed one byte at a time, never block and never allocate
// after construction. A completed frame aliases the assembler's buffer and is
// only valid until the next call to Feed.
package frame

const (
	// MaxNMEAFrame is the longest NMEA 0183 sentence including "$" and CR LF
	MaxNMEAFrame = 82

	nmeaStart = '$'
	nmeaCR    = '\r'
	nmeaLF    = '\n'
)

// NMEAAssembler collects "$...<CR><LF>" sentences
type NMEAAssembler struct {
	buf [MaxNMEAFrame]byte
	pos int
}

// NewNMEAAssembler returns an assembler waiting for a start delimiter
func NewNMEAAssembler() *NMEAAssembler {
	a := &NMEAAssembler{}
	a.pos = len(a.buf)
	return a
}

// Feed consumes one byte. When b terminates a sentence the frame from "$" up
// to (not including) CR LF is returned.
func (a *NMEAAssembler) Feed(b byte) ([]byte, bool) {
	if b == nmeaStart {
		// Last "$" wins, even over an unterminated sentence
		a.pos = 0
	} else if a.pos == len(a.buf) {
		// Overrun or idle: drop until the next "$"
		return nil, false
	}

	if a.pos > 0 && a.buf[a.pos-1] == nmeaCR && b == nmeaLF {
		frame := a.buf[:a.pos-1]
		a.pos = len(a.buf)
		return frame, true
	}

	a.buf[a.pos] = b
	a.pos++
	return nil, false
}

// Reset discards any partial sentence
func (a *NMEAAssembler) Reset() {
	a.pos = len(a.buf)
}
