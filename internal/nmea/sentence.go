// Package nmea validates NMEA 0183 sentences and extracts the RMC time and
// date fields.
package nmea

import (
	"errors"
	"fmt"
)

// MaxFields bounds the number of comma separated fields kept per sentence.
// Fields beyond it are ignored.
const MaxFields = 12

// minSentenceLen is the shortest valid sentence: "$GPXXX*00"
const minSentenceLen = 9

var (
	ErrTooShort   = errors.New("nmea: sentence too short")
	ErrNoStart    = errors.New("nmea: missing start delimiter")
	ErrNoChecksum = errors.New("nmea: missing checksum delimiter")
	ErrChecksum   = errors.New("nmea: checksum mismatch")
	ErrBadField   = errors.New("nmea: malformed field")
	ErrNotRMC     = errors.New("nmea: not an RMC sentence")
)

// Sentence is a checksum-verified sentence split into at most MaxFields
// fields. Fields alias the frame they were parsed from.
type Sentence struct {
	fields [MaxFields][]byte
	n      int
}

// Len returns the number of fields kept
func (s *Sentence) Len() int {
	return s.n
}

// Field returns field i, or nil past the end
func (s *Sentence) Field(i int) []byte {
	if i < 0 || i >= s.n {
		return nil
	}
	return s.fields[i]
}

// ID returns the talker and sentence identifier, e.g. "GNRMC"
func (s *Sentence) ID() string {
	return string(s.Field(0))
}

// Checksum is the XOR of every byte in body
func Checksum(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum ^= b
	}
	return sum
}

// Format wraps body as a complete sentence "$body*HH" without CR LF
func Format(body string) string {
	return fmt.Sprintf("$%s*%02X", body, Checksum([]byte(body)))
}

// Parse verifies the checksum of a "$...*HH" frame and splits its body
func Parse(frame []byte) (Sentence, error) {
	var s Sentence

	if len(frame) < minSentenceLen {
		return s, ErrTooShort
	}
	if frame[0] != '$' {
		return s, ErrNoStart
	}
	star := len(frame) - 3
	if frame[star] != '*' {
		return s, ErrNoChecksum
	}

	expected, ok := parseUint(frame[star+1:], 16)
	if !ok {
		return s, fmt.Errorf("%w: checksum digits %q", ErrNoChecksum, frame[star+1:])
	}

	body := frame[1:star]
	if Checksum(body) != byte(expected) {
		return s, ErrChecksum
	}

	it := NewFieldIterator(body)
	for s.n < MaxFields {
		field, ok := it.Next()
		if !ok {
			break
		}
		s.fields[s.n] = field
		s.n++
	}
	return s, nil
}

// FieldIterator walks comma separated fields without allocating
type FieldIterator struct {
	rest []byte
	done bool
}

// NewFieldIterator starts iterating over body
func NewFieldIterator(body []byte) *FieldIterator {
	return &FieldIterator{rest: body}
}

// Next returns the next field. An empty field between two commas is
// returned as an empty slice.
func (it *FieldIterator) Next() ([]byte, bool) {
	if it.done {
		return nil, false
	}
	for i, b := range it.rest {
		if b == ',' {
			field := it.rest[:i]
			it.rest = it.rest[i+1:]
			return field, true
		}
	}
	it.done = true
	return it.rest, true
}

// parseUint is a strict parser: no sign, no spaces, every byte a digit of
// base and at least one digit.
func parseUint(b []byte, base uint64) (uint64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'A' && c <= 'F':
			d = uint64(c-'A') + 10
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		default:
			return 0, false
		}
		if d >= base {
			return 0, false
		}
		v = v*base + d
	}
	return v, true
}
