package nmea

import (
	"testing"

	"github.com/maximewewer/gps-clock/internal/calendar"
	"github.com/maximewewer/gps-clock/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rmcBody   = "GNRMC,120000.500,A,3959.0864,N,10514.5749,W,0.11,95.04,150124,,,A"
	rmcFrame  = "$" + rmcBody + "*5D"
	gprmcBody = "GPRMC,041826.000,A,3959.0864,N,10514.5749,W,0.11,95.04,271124,,,A"
)

func TestChecksum(t *testing.T) {
	assert.Equal(t, byte(0x5D), Checksum([]byte(rmcBody)))
	assert.Equal(t, byte(0x4C), Checksum([]byte(gprmcBody)))
	assert.Equal(t, byte(0), Checksum(nil))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, rmcFrame, Format(rmcBody))
	assert.Equal(t, "$GN*09", Format("GN"))
}

func TestParse_Valid(t *testing.T) {
	s, err := Parse([]byte(rmcFrame))

	require.NoError(t, err)
	assert.Equal(t, "GNRMC", s.ID())
	assert.Equal(t, MaxFields, s.Len())
	assert.Equal(t, "120000.500", string(s.Field(1)))
	assert.Equal(t, "150124", string(s.Field(9)))
	assert.Equal(t, "", string(s.Field(10)))
	assert.Nil(t, s.Field(MaxFields))
	assert.Nil(t, s.Field(-1))
}

func TestParse_LowercaseChecksumAccepted(t *testing.T) {
	_, err := Parse([]byte("$" + rmcBody + "*5d"))
	assert.NoError(t, err)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		err   error
	}{
		{"too short", "$GP*00", ErrTooShort},
		{"missing start", "XGPXXX*00", ErrNoStart},
		{"no star", "$GPXXXX,00", ErrNoChecksum},
		{"star misplaced", "$GPXXX*0000", ErrNoChecksum},
		{"non hex checksum", "$GPXXX*G0", ErrNoChecksum},
		{"signed checksum", "$GPXXX*+1", ErrNoChecksum},
		{"wrong checksum", "$" + rmcBody + "*5E", ErrChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.frame))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParse_ExtraFieldsIgnored(t *testing.T) {
	body := rmcBody + ",X,Y,Z"
	s, err := Parse([]byte(Format(body)))

	require.NoError(t, err)
	assert.Equal(t, MaxFields, s.Len())
	assert.Equal(t, "", string(s.Field(MaxFields-1)))

	r, err := ParseRMC(s)
	require.NoError(t, err)
	assert.Equal(t, 2024, r.Year)
}

func TestFieldIterator(t *testing.T) {
	it := NewFieldIterator([]byte("a,,b,"))

	var got []string
	for {
		f, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(f))
	}

	assert.Equal(t, []string{"a", "", "b", ""}, got)
}

func TestParseRMC_Valid(t *testing.T) {
	s, err := Parse([]byte(rmcFrame))
	require.NoError(t, err)

	r, err := ParseRMC(s)

	require.NoError(t, err)
	assert.Equal(t, RMC{
		Talker:        "GN",
		Year:          2024,
		Month:         1,
		Day:           15,
		Hour:          12,
		Minute:        0,
		Second:        0,
		FractionNanos: 500_000_000,
	}, r)
	assert.Equal(t, calendar.CalendarTime{Year: 2024, Month: 1, Day: 15, Hour: 12}, r.Calendar())
}

func TestParseRMC_OtherTalkerAndNoFraction(t *testing.T) {
	s, err := Parse([]byte(Format("GPRMC,235959,A,,,,,,,311299,,,A")))
	require.NoError(t, err)

	r, err := ParseRMC(s)

	require.NoError(t, err)
	assert.Equal(t, "GP", r.Talker)
	assert.Equal(t, 2099, r.Year)
	assert.Equal(t, 12, r.Month)
	assert.Equal(t, 31, r.Day)
	assert.Equal(t, 23, r.Hour)
	assert.Equal(t, 59, r.Second)
	assert.Equal(t, int64(0), r.FractionNanos)
}

func TestParseRMC_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{"not rmc", "GPGGA,120000.00,3959.0864,N,10514.5749,W,1,08,0.9,1600.0,M,,M,,", ErrNotRMC},
		{"short id", "RMC,120000,A,,,,,,,150124", ErrNotRMC},
		{"empty time", "GNRMC,,V,,,,,,,150124,,,N", ErrBadField},
		{"time too short", "GNRMC,12000,A,,,,,,,150124", ErrBadField},
		{"time non numeric", "GNRMC,12a000,A,,,,,,,150124", ErrBadField},
		{"time signed", "GNRMC,+20000,A,,,,,,,150124", ErrBadField},
		{"hour out of range", "GNRMC,240000,A,,,,,,,150124", ErrBadField},
		{"minute out of range", "GNRMC,126000,A,,,,,,,150124", ErrBadField},
		{"second out of range", "GNRMC,120060,A,,,,,,,150124", ErrBadField},
		{"fraction without dot", "GNRMC,1200005,A,,,,,,,150124", ErrBadField},
		{"fraction empty", "GNRMC,120000.,A,,,,,,,150124", ErrBadField},
		{"fraction garbage", "GNRMC,120000.5x,A,,,,,,,150124", ErrBadField},
		{"fraction too long", "GNRMC,120000.1234567890,A,,,,,,,150124", ErrBadField},
		{"empty date", "GNRMC,120000.00,V,,,,,,,,,,N", ErrBadField},
		{"date too long", "GNRMC,120000,A,,,,,,,1501240,,,A", ErrBadField},
		{"date non numeric", "GNRMC,120000,A,,,,,,,15O124,,,A", ErrBadField},
		{"month zero", "GNRMC,120000,A,,,,,,,150024,,,A", ErrBadField},
		{"month thirteen", "GNRMC,120000,A,,,,,,,151324,,,A", ErrBadField},
		{"day zero", "GNRMC,120000,A,,,,,,,000124,,,A", ErrBadField},
		{"feb 29 non leap", "GNRMC,120000,A,,,,,,,290223,,,A", ErrBadField},
		{"missing date field", "GNRMC,120000,A", ErrBadField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(Format(tt.body)))
			require.NoError(t, err)

			r, err := ParseRMC(s)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, RMC{}, r)
		})
	}
}

func TestParseRMC_LeapDayAccepted(t *testing.T) {
	s, err := Parse([]byte(Format("GNRMC,000000,A,,,,,,,290224,,,A")))
	require.NoError(t, err)

	r, err := ParseRMC(s)
	require.NoError(t, err)
	assert.Equal(t, 29, r.Day)
}

// pipeline feeds a stream through the assembler and counts parsed RMCs
func pipeline(stream []byte) int {
	a := frame.NewNMEAAssembler()
	count := 0
	for _, b := range stream {
		f, ok := a.Feed(b)
		if !ok {
			continue
		}
		s, err := Parse(f)
		if err != nil {
			continue
		}
		if _, err := ParseRMC(s); err == nil {
			count++
		}
	}
	return count
}

func TestPipeline_WellFormedYieldsExactlyOne(t *testing.T) {
	assert.Equal(t, 1, pipeline([]byte(rmcFrame+"\r\n")))
}

func TestPipeline_AnyCorruptedPayloadByteRejected(t *testing.T) {
	stream := []byte(rmcFrame + "\r\n")
	star := len(rmcFrame) - 3

	// Every byte strictly between "$" and "*"
	for i := 1; i < star; i++ {
		corrupted := append([]byte(nil), stream...)
		corrupted[i] ^= 0x01
		assert.Equal(t, 0, pipeline(corrupted), "corrupted byte %d (%q)", i, stream[i])
	}
}
