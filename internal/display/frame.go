// Package display drives the 18-digit LED clock face built from a chain of
// TLC5952 constant-current drivers.
package display

import "github.com/maximewewer/gps-clock/internal/calendar"

// Chain geometry
const (
	Chips         = 6
	Digits        = 18
	DigitsPerChip = 3
)

// Segment patterns per decimal digit, for digit offset 0 in a chip. The
// three digits of a chip are interleaved bit by bit.
var digitBits = [10]uint32{
	0x248248, // 0
	0x200008, // 1
	0x241240, // 2
	0x241048, // 3
	0x209008, // 4
	0x049048, // 5
	0x049248, // 6
	0x240008, // 7
	0x249248, // 8
	0x249048, // 9
}

const (
	dpBits    = 0x000001
	colonBits = 0x000249
	colonChip = 5

	digitMask = 0x249248 | dpBits
)

// Frame holds the on/off bits of every chip, in shift order
type Frame struct {
	words [Chips]uint32
}

func digitPos(i int) (chip int, offset uint) {
	return Chips - 1 - i/DigitsPerChip, uint(i % DigitsPerChip)
}

// SetDigit shows decimal value v (0..9) on digit i with an optional
// decimal point. Out of range arguments are ignored.
func (f *Frame) SetDigit(i, v int, dp bool) {
	if i < 0 || i >= Digits || v < 0 || v > 9 {
		return
	}
	chip, off := digitPos(i)
	bits := digitBits[v]
	if dp {
		bits |= dpBits
	}
	f.words[chip] &^= digitMask << off
	f.words[chip] |= bits << off
}

// Blank turns every segment of digit i off
func (f *Frame) Blank(i int) {
	if i < 0 || i >= Digits {
		return
	}
	chip, off := digitPos(i)
	f.words[chip] &^= digitMask << off
}

// SetColons switches the separators on or off
func (f *Frame) SetColons(on bool) {
	if on {
		f.words[colonChip] |= colonBits
	} else {
		f.words[colonChip] &^= colonBits
	}
}

// Words returns the on/off words in shift order
func (f *Frame) Words() []uint32 {
	out := make([]uint32, Chips)
	copy(out, f.words[:])
	return out
}

// Render lays out a calendar time: year on 1-4, then month, day, hour,
// minute, second (decimal point on 14) and milliseconds. Digit 0 shares its
// bits with the colons and is never drawn.
func Render(c calendar.CalendarTime) Frame {
	var f Frame
	f.SetColons(true)

	set := func(first int, v, width int) {
		for i := width - 1; i >= 0; i-- {
			f.SetDigit(first+i, v%10, false)
			v /= 10
		}
	}
	set(1, c.Year, 4)
	set(5, c.Month, 2)
	set(7, c.Day, 2)
	set(9, c.Hour, 2)
	set(11, c.Minute, 2)
	set(13, c.Second, 2)
	f.SetDigit(14, c.Second%10, true)
	set(15, c.Millisecond, 3)
	return f
}
