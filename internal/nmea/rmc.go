package nmea

import (
	"bytes"
	"fmt"

	"github.com/maximewewer/gps-clock/internal/calendar"
)

const (
	rmcTimeField = 1
	rmcDateField = 9

	maxFractionDigits = 9
)

var rmcSuffix = []byte("RMC")

// RMC holds the fields consumed from a Recommended Minimum sentence
type RMC struct {
	Talker        string
	Year          int
	Month         int
	Day           int
	Hour          int
	Minute        int
	Second        int
	FractionNanos int64
}

// Calendar returns the whole-second UTC time carried by the sentence
func (r RMC) Calendar() calendar.CalendarTime {
	return calendar.CalendarTime{
		Year:   r.Year,
		Month:  r.Month,
		Day:    r.Day,
		Hour:   r.Hour,
		Minute: r.Minute,
		Second: r.Second,
	}
}

// ParseRMC extracts time of day (field 1) and date (field 9) from any
// talker's RMC sentence. A field that fails strict parsing rejects the
// whole sentence.
func ParseRMC(s Sentence) (RMC, error) {
	var r RMC

	id := s.Field(0)
	if len(id) != 5 || !bytes.HasSuffix(id, rmcSuffix) {
		return r, ErrNotRMC
	}
	r.Talker = string(id[:2])

	tod := s.Field(rmcTimeField)
	if len(tod) < 6 {
		return RMC{}, fmt.Errorf("%w: time %q", ErrBadField, tod)
	}
	var ok bool
	if r.Hour, ok = twoDigits(tod[0:2]); !ok || r.Hour > 23 {
		return RMC{}, fmt.Errorf("%w: hour %q", ErrBadField, tod[0:2])
	}
	if r.Minute, ok = twoDigits(tod[2:4]); !ok || r.Minute > 59 {
		return RMC{}, fmt.Errorf("%w: minute %q", ErrBadField, tod[2:4])
	}
	if r.Second, ok = twoDigits(tod[4:6]); !ok || r.Second > 59 {
		return RMC{}, fmt.Errorf("%w: second %q", ErrBadField, tod[4:6])
	}
	if len(tod) > 6 {
		if r.FractionNanos, ok = fraction(tod[6:]); !ok {
			return RMC{}, fmt.Errorf("%w: fraction %q", ErrBadField, tod[6:])
		}
	}

	date := s.Field(rmcDateField)
	if len(date) != 6 {
		return RMC{}, fmt.Errorf("%w: date %q", ErrBadField, date)
	}
	var yy int
	if r.Day, ok = twoDigits(date[0:2]); !ok {
		return RMC{}, fmt.Errorf("%w: day %q", ErrBadField, date[0:2])
	}
	if r.Month, ok = twoDigits(date[2:4]); !ok || r.Month < 1 || r.Month > 12 {
		return RMC{}, fmt.Errorf("%w: month %q", ErrBadField, date[2:4])
	}
	if yy, ok = twoDigits(date[4:6]); !ok {
		return RMC{}, fmt.Errorf("%w: year %q", ErrBadField, date[4:6])
	}
	r.Year = 2000 + yy
	if r.Day < 1 || r.Day > calendar.DaysIn(r.Year, r.Month) {
		return RMC{}, fmt.Errorf("%w: day %d of %04d-%02d", ErrBadField, r.Day, r.Year, r.Month)
	}

	return r, nil
}

func twoDigits(b []byte) (int, bool) {
	if len(b) != 2 {
		return 0, false
	}
	v, ok := parseUint(b, 10)
	return int(v), ok
}

// fraction parses ".ddd" (1 to 9 digits) into nanoseconds
func fraction(b []byte) (int64, bool) {
	if len(b) < 2 || b[0] != '.' {
		return 0, false
	}
	digits := b[1:]
	if len(digits) > maxFractionDigits {
		return 0, false
	}
	v, ok := parseUint(digits, 10)
	if !ok {
		return 0, false
	}
	for i := len(digits); i < maxFractionDigits; i++ {
		v *= 10
	}
	return int64(v), true
}
