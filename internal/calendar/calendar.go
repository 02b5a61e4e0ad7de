// Package calendar projects a UTC microsecond instant onto civil date and
// time fields. UTC is treated as a flat microsecond continuum mapped through
// proleptic Gregorian rules; leap seconds do not exist here.
package calendar

import (
	"fmt"
	"time"
)

// MicrosPerSecond is the number of microseconds in one second
const MicrosPerSecond = 1_000_000

// CalendarTime is the decomposed view of a UTC instant
type CalendarTime struct {
	Year        int
	Month       int
	Day         int
	Hour        int
	Minute      int
	Second      int
	Millisecond int
}

// Split converts microseconds since the Unix epoch to calendar fields.
// Sub-millisecond remainders are floored, including before 1970.
func Split(us int64) CalendarTime {
	t := time.UnixMicro(us).UTC()
	year, month, day := t.Date()
	return CalendarTime{
		Year:        year,
		Month:       int(month),
		Day:         day,
		Hour:        t.Hour(),
		Minute:      t.Minute(),
		Second:      t.Second(),
		Millisecond: t.Nanosecond() / int(time.Millisecond),
	}
}

// Compose converts calendar fields to microseconds since the Unix epoch.
// It is the inverse of Split for any valid field tuple.
func Compose(c CalendarTime) int64 {
	return time.Date(c.Year, time.Month(c.Month), c.Day,
		c.Hour, c.Minute, c.Second, c.Millisecond*int(time.Millisecond),
		time.UTC).UnixMicro()
}

// DaysIn returns the number of days in the given month
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Valid reports whether every field is inside its civil range
func (c CalendarTime) Valid() bool {
	if c.Month < 1 || c.Month > 12 {
		return false
	}
	if c.Day < 1 || c.Day > DaysIn(c.Year, c.Month) {
		return false
	}
	return c.Hour >= 0 && c.Hour < 24 &&
		c.Minute >= 0 && c.Minute < 60 &&
		c.Second >= 0 && c.Second < 60 &&
		c.Millisecond >= 0 && c.Millisecond < 1000
}

// String formats the fields as "YYYY-MM-DD hh:mm:ss"
func (c CalendarTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second)
}

// Time returns the fields as a UTC time.Time
func (c CalendarTime) Time() time.Time {
	return time.UnixMicro(Compose(c)).UTC()
}
