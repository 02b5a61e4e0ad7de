package display

import "github.com/maximewewer/gps-clock/pkg/mathutil"

// Word flags
const (
	// ControlSelect routes a word to the control register instead of the
	// on/off register
	ControlSelect = 0x01000000
	// LatchFlag marks the last word of a chain that must be latched. It is
	// not shifted out.
	LatchFlag = 0x02000000

	wordBits = 25
	wordMask = 1<<wordBits - 1

	maxChannel = 127
)

// Calibration scales each color channel, in percent of the brightness
type Calibration struct {
	RedPercent   int
	GreenPercent int
	BluePercent  int
}

// DefaultCalibration drives all channels equally
func DefaultCalibration() Calibration {
	return Calibration{RedPercent: 100, GreenPercent: 100, BluePercent: 100}
}

func scale(brightness uint8, percent int) uint32 {
	return uint32(mathutil.ClampInt(int(brightness)*percent/100, 0, maxChannel))
}

// ControlWord builds the brightness control word for one chip
func ControlWord(brightness uint8, cal Calibration) uint32 {
	return ControlSelect |
		scale(brightness, cal.BluePercent)<<14 |
		scale(brightness, cal.GreenPercent)<<7 |
		scale(brightness, cal.RedPercent)
}

// ControlChain repeats the control word for every chip and flags the last
// one for latching
func ControlChain(word uint32) []uint32 {
	out := make([]uint32, Chips)
	for i := range out {
		out[i] = word
	}
	out[Chips-1] |= LatchFlag
	return out
}

// Pack serializes 25-bit words MSB first. Leading zero pad bits round the
// stream up to whole bytes; they shift out past the end of the chain.
func Pack(words []uint32) []byte {
	total := len(words) * wordBits
	pad := (8 - total%8) % 8
	out := make([]byte, (total+pad)/8)

	bit := pad
	for _, w := range words {
		w &= wordMask
		for i := wordBits - 1; i >= 0; i-- {
			if w>>uint(i)&1 == 1 {
				out[bit/8] |= 0x80 >> uint(bit%8)
			}
			bit++
		}
	}
	return out
}
