package discipline

import "time"

// Quality is the coarse confidence in the disciplined time
type Quality uint8

const (
	// Invalid means no message has ever been fused
	Invalid Quality = iota
	// Low means a message was fused at some point but none recently
	Low
	// Medium means a recent message but no recent PPS edge
	Medium
	// High means both a recent message and a recent PPS edge
	High
)

func (q Quality) String() string {
	switch q {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	default:
		return "INVALID"
	}
}

// AccuracyUnknown is reported until the receiver supplies an estimate
const AccuracyUnknown uint32 = 0xFFFFFFFF

// DefaultPPSWindow is how old a PPS edge or message may be and still count
// as recent
const DefaultPPSWindow = time.Second

// classify derives the quality from ages in microseconds. Negative ages
// mean the source has never been seen.
func classify(synced bool, msgAge, ppsAge, window int64) Quality {
	if !synced {
		return Invalid
	}
	msgRecent := msgAge >= 0 && msgAge < window
	ppsRecent := ppsAge >= 0 && ppsAge < window
	switch {
	case msgRecent && ppsRecent:
		return High
	case msgRecent:
		return Medium
	default:
		return Low
	}
}
