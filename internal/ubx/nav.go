package ubx

import (
	"encoding/binary"
	"fmt"

	"github.com/maximewewer/gps-clock/internal/calendar"
)

const (
	navTimeUTCLen = 20
	navClockLen   = 20
)

// NAV-TIMEUTC validity flags
const (
	ValidTOW = 0x01
	ValidWKN = 0x02
	ValidUTC = 0x04
)

// TimeUTC is the NAV-TIMEUTC message (UTC time solution)
type TimeUTC struct {
	ITOW  uint32 // ms
	TAcc  uint32 // ns
	Nano  int32  // ns, -1e9..1e9
	Year  uint16
	Month uint8
	Day   uint8
	Hour  uint8
	Min   uint8
	Sec   uint8
	Valid uint8
}

// UTCValid reports whether the receiver considers the UTC time valid
func (t TimeUTC) UTCValid() bool {
	return t.Valid&ValidUTC != 0
}

// Calendar returns the whole-second time of the solution
func (t TimeUTC) Calendar() calendar.CalendarTime {
	return calendar.CalendarTime{
		Year:   int(t.Year),
		Month:  int(t.Month),
		Day:    int(t.Day),
		Hour:   int(t.Hour),
		Minute: int(t.Min),
		Second: int(t.Sec),
	}
}

// ParseTimeUTC decodes a NAV-TIMEUTC payload
func ParseTimeUTC(p Packet) (TimeUTC, error) {
	if !p.Is(ClassNAV, IDNavTimeUTC) {
		return TimeUTC{}, ErrType
	}
	b := p.Payload
	if len(b) != navTimeUTCLen {
		return TimeUTC{}, fmt.Errorf("%w: NAV-TIMEUTC payload %d bytes", ErrLength, len(b))
	}
	return TimeUTC{
		ITOW:  binary.LittleEndian.Uint32(b[0:4]),
		TAcc:  binary.LittleEndian.Uint32(b[4:8]),
		Nano:  int32(binary.LittleEndian.Uint32(b[8:12])),
		Year:  binary.LittleEndian.Uint16(b[12:14]),
		Month: b[14],
		Day:   b[15],
		Hour:  b[16],
		Min:   b[17],
		Sec:   b[18],
		Valid: b[19],
	}, nil
}

// Marshal encodes the message as a NAV-TIMEUTC frame
func (t TimeUTC) Marshal() []byte {
	b := make([]byte, navTimeUTCLen)
	binary.LittleEndian.PutUint32(b[0:4], t.ITOW)
	binary.LittleEndian.PutUint32(b[4:8], t.TAcc)
	binary.LittleEndian.PutUint32(b[8:12], uint32(t.Nano))
	binary.LittleEndian.PutUint16(b[12:14], t.Year)
	b[14] = t.Month
	b[15] = t.Day
	b[16] = t.Hour
	b[17] = t.Min
	b[18] = t.Sec
	b[19] = t.Valid
	return Encode(ClassNAV, IDNavTimeUTC, b)
}

// Clock is the NAV-CLOCK message (receiver clock solution)
type Clock struct {
	ITOW uint32 // ms
	ClkB int32  // ns
	ClkD int32  // ns/s
	TAcc uint32 // ns
	FAcc uint32 // ps/s
}

// ParseClock decodes a NAV-CLOCK payload
func ParseClock(p Packet) (Clock, error) {
	if !p.Is(ClassNAV, IDNavClock) {
		return Clock{}, ErrType
	}
	b := p.Payload
	if len(b) != navClockLen {
		return Clock{}, fmt.Errorf("%w: NAV-CLOCK payload %d bytes", ErrLength, len(b))
	}
	return Clock{
		ITOW: binary.LittleEndian.Uint32(b[0:4]),
		ClkB: int32(binary.LittleEndian.Uint32(b[4:8])),
		ClkD: int32(binary.LittleEndian.Uint32(b[8:12])),
		TAcc: binary.LittleEndian.Uint32(b[12:16]),
		FAcc: binary.LittleEndian.Uint32(b[16:20]),
	}, nil
}

// Marshal encodes the message as a NAV-CLOCK frame
func (c Clock) Marshal() []byte {
	b := make([]byte, navClockLen)
	binary.LittleEndian.PutUint32(b[0:4], c.ITOW)
	binary.LittleEndian.PutUint32(b[4:8], uint32(c.ClkB))
	binary.LittleEndian.PutUint32(b[8:12], uint32(c.ClkD))
	binary.LittleEndian.PutUint32(b[12:16], c.TAcc)
	binary.LittleEndian.PutUint32(b[16:20], c.FAcc)
	return Encode(ClassNAV, IDNavClock, b)
}
