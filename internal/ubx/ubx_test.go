package ubx

import (
	"encoding/binary"
	"testing"

	"github.com/maximewewer/gps-clock/internal/calendar"
	"github.com/maximewewer/gps-clock/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_KnownFrames(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{
			name: "tp5 poll",
			got:  Encode(ClassCFG, IDCfgTP5, nil),
			want: []byte{0xB5, 0x62, 0x06, 0x31, 0x00, 0x00, 0x37, 0xAB},
		},
		{
			name: "gga off",
			got:  CFGMsg(ClassNMEA, NMEAGGA, 0),
			want: []byte{0xB5, 0x62, 0x06, 0x01, 0x03, 0x00, 0xF0, 0x00, 0x00, 0xFA, 0x0F},
		},
		{
			name: "timeutc on",
			got:  CFGMsg(ClassNAV, IDNavTimeUTC, 1),
			want: []byte{0xB5, 0x62, 0x06, 0x01, 0x03, 0x00, 0x01, 0x21, 0x01, 0x2D, 0x85},
		},
		{
			name: "nav clock poll",
			got:  Encode(ClassNAV, IDNavClock, nil),
			want: []byte{0xB5, 0x62, 0x01, 0x22, 0x00, 0x00, 0x23, 0x6A},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestDecode_Valid(t *testing.T) {
	raw := CFGMsg(ClassNMEA, NMEARMC, 1)

	p, err := Decode(raw)

	require.NoError(t, err)
	assert.True(t, p.Is(ClassCFG, IDCfgMsg))
	assert.Equal(t, []byte{ClassNMEA, NMEARMC, 1}, p.Payload)
}

func TestDecode_Errors(t *testing.T) {
	good := CFGMsg(ClassNMEA, NMEAGGA, 0)

	badSync := append([]byte(nil), good...)
	badSync[1] = 0x63

	longer := append(append([]byte(nil), good...), 0x00)

	badCk := append([]byte(nil), good...)
	badCk[len(badCk)-1] ^= 0xFF

	tests := []struct {
		name  string
		frame []byte
		err   error
	}{
		{"empty", nil, ErrShort},
		{"header only", good[:6], ErrShort},
		{"bad sync", badSync, ErrSync},
		{"trailing byte", longer, ErrLength},
		{"truncated", good[:len(good)-1], ErrLength},
		{"bad checksum", badCk, ErrChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func sampleTimeUTC() TimeUTC {
	return TimeUTC{
		ITOW:  475_218_000,
		TAcc:  25,
		Nano:  -1_200,
		Year:  2024,
		Month: 1,
		Day:   15,
		Hour:  12,
		Min:   0,
		Sec:   1,
		Valid: ValidTOW | ValidWKN | ValidUTC,
	}
}

func TestTimeUTC_Decode(t *testing.T) {
	raw := sampleTimeUTC().Marshal()
	require.Len(t, raw, 28)
	assert.Equal(t, uint16(20), binary.LittleEndian.Uint16(raw[4:6]))

	p, err := Decode(raw)
	require.NoError(t, err)

	got, err := ParseTimeUTC(p)

	require.NoError(t, err)
	assert.Equal(t, sampleTimeUTC(), got)
	assert.True(t, got.UTCValid())
	assert.Equal(t, int32(-1_200), got.Nano)
	assert.Equal(t, calendar.CalendarTime{Year: 2024, Month: 1, Day: 15, Hour: 12, Second: 1}, got.Calendar())
}

func TestTimeUTC_FieldOffsets(t *testing.T) {
	raw := sampleTimeUTC().Marshal()
	payload := raw[6:26]

	assert.Equal(t, uint32(25), binary.LittleEndian.Uint32(payload[4:8]))
	assert.Equal(t, uint16(2024), binary.LittleEndian.Uint16(payload[12:14]))
	assert.Equal(t, byte(1), payload[14])
	assert.Equal(t, byte(15), payload[15])
	assert.Equal(t, byte(12), payload[16])
	assert.Equal(t, byte(1), payload[18])
	assert.Equal(t, byte(0x07), payload[19])
}

func TestTimeUTC_InvalidUTCFlag(t *testing.T) {
	m := sampleTimeUTC()
	m.Valid = ValidTOW | ValidWKN

	p, err := Decode(m.Marshal())
	require.NoError(t, err)
	got, err := ParseTimeUTC(p)

	require.NoError(t, err)
	assert.False(t, got.UTCValid())
}

func TestTimeUTC_WrongLengthOrType(t *testing.T) {
	_, err := ParseTimeUTC(Packet{Class: ClassNAV, ID: IDNavTimeUTC, Payload: make([]byte, 19)})
	assert.ErrorIs(t, err, ErrLength)

	_, err = ParseTimeUTC(Packet{Class: ClassNAV, ID: IDNavClock, Payload: make([]byte, 20)})
	assert.ErrorIs(t, err, ErrType)
}

func TestClock_Decode(t *testing.T) {
	want := Clock{ITOW: 475_218_000, ClkB: -52_000, ClkD: 180, TAcc: 12, FAcc: 430}

	p, err := Decode(want.Marshal())
	require.NoError(t, err)
	got, err := ParseClock(p)

	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ParseClock(Packet{Class: ClassNAV, ID: IDNavClock, Payload: make([]byte, 16)})
	assert.ErrorIs(t, err, ErrLength)
}

func TestTP5_Marshal(t *testing.T) {
	raw := DefaultTP5().Marshal()
	require.Len(t, raw, 6+32+2)

	p, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, p.Is(ClassCFG, IDCfgTP5))

	b := p.Payload
	assert.Equal(t, byte(0x01), b[1])
	assert.Equal(t, uint32(1_000_000), binary.LittleEndian.Uint32(b[8:12]))
	assert.Equal(t, uint32(1_000_000), binary.LittleEndian.Uint32(b[12:16]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[16:20]))
	assert.Equal(t, uint32(100_000_000), binary.LittleEndian.Uint32(b[20:24]))
	assert.Equal(t, uint32(0x77), binary.LittleEndian.Uint32(b[28:32]))
}

func TestTP5_SignedDelays(t *testing.T) {
	c := DefaultTP5()
	c.AntCableDelayNs = 50
	c.UserConfigDelayNs = -10

	p, err := Decode(c.Marshal())
	require.NoError(t, err)

	assert.Equal(t, int16(50), int16(binary.LittleEndian.Uint16(p.Payload[4:6])))
	assert.Equal(t, int32(-10), int32(binary.LittleEndian.Uint32(p.Payload[24:28])))
}

func TestInitSequence(t *testing.T) {
	tests := []struct {
		name    string
		ubxOnly bool
		rmcRate byte
	}{
		{"nmea and ubx", false, 1},
		{"ubx only", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := InitSequence(InitOptions{UBXOnly: tt.ubxOnly, TP5: DefaultTP5()})
			require.Len(t, seq, 9)

			rates := map[[2]byte]byte{}
			for _, raw := range seq[:8] {
				p, err := Decode(raw)
				require.NoError(t, err)
				require.True(t, p.Is(ClassCFG, IDCfgMsg))
				rates[[2]byte{p.Payload[0], p.Payload[1]}] = p.Payload[2]
			}

			for _, id := range []byte{NMEAGGA, NMEAGLL, NMEAGSA, NMEAGSV, NMEAVTG} {
				assert.Equal(t, byte(0), rates[[2]byte{ClassNMEA, id}])
			}
			assert.Equal(t, tt.rmcRate, rates[[2]byte{ClassNMEA, NMEARMC}])
			assert.Equal(t, byte(1), rates[[2]byte{ClassNAV, IDNavTimeUTC}])
			assert.Equal(t, byte(1), rates[[2]byte{ClassNAV, IDNavClock}])

			last, err := Decode(seq[8])
			require.NoError(t, err)
			assert.True(t, last.Is(ClassCFG, IDCfgTP5))
		})
	}
}

// assemble pushes a byte stream through the frame assembler and decodes
// every emitted frame
func assemble(stream []byte) (ok int, failed int) {
	a := frame.NewUBXAssembler()
	for _, b := range stream {
		f, done := a.Feed(b)
		if !done {
			continue
		}
		if _, err := Decode(f); err != nil {
			failed++
			continue
		}
		ok++
	}
	return ok, failed
}

func TestPipeline_CorruptedFramesRejected(t *testing.T) {
	raw := sampleTimeUTC().Marshal()

	okCount, _ := assemble(raw)
	require.Equal(t, 1, okCount)

	// Any single corrupted byte after the header is caught by the checksum
	for i := 6; i < len(raw); i++ {
		corrupted := append([]byte(nil), raw...)
		corrupted[i] ^= 0x10
		okCount, _ := assemble(corrupted)
		assert.Equal(t, 0, okCount, "byte %d", i)
	}
}
