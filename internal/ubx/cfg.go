package ubx

import "encoding/binary"

// NMEA standard sentence ids (class 0xF0)
const (
	NMEAGGA = 0x00
	NMEAGLL = 0x01
	NMEAGSA = 0x02
	NMEAGSV = 0x03
	NMEARMC = 0x04
	NMEAVTG = 0x05
)

// CFGMsg sets the output rate of one message on the current port
func CFGMsg(class, id, rate uint8) []byte {
	return Encode(ClassCFG, IDCfgMsg, []byte{class, id, rate})
}

// CFG-TP5 payload layout (32 bytes)
//
//	0  tpIdx           1  version       2  reserved (2)
//	4  antCableDelay   6  rfGroupDelay
//	8  freqPeriod     12  freqPeriodLock
//	16 pulseLenRatio  20  pulseLenRatioLock
//	24 userConfigDelay 28 flags
const tp5PayloadLen = 32

// CFG-TP5 flag bits
const (
	TP5Active         = 0x01
	TP5LockGnssFreq   = 0x02
	TP5LockedOtherSet = 0x04
	TP5IsFreq         = 0x08
	TP5IsLength       = 0x10
	TP5AlignToTow     = 0x20
	TP5Polarity       = 0x40
)

// TP5Config configures the receiver time pulse (PPS output)
type TP5Config struct {
	TPIdx             uint8
	AntCableDelayNs   int16
	RfGroupDelayNs    int16
	PeriodUs          uint32
	PeriodLockUs      uint32
	PulseLenNs        uint32
	PulseLenLockNs    uint32
	UserConfigDelayNs int32
	Active            bool
	LockGnssFreq      bool
	LockedOtherSet    bool
	IsLength          bool
	AlignToTow        bool
	RisingEdge        bool
}

// DefaultTP5 is a 1 Hz pulse, 100 ms wide once locked, off until the
// receiver has a time fix.
func DefaultTP5() TP5Config {
	return TP5Config{
		PeriodUs:       1_000_000,
		PeriodLockUs:   1_000_000,
		PulseLenNs:     0,
		PulseLenLockNs: 100_000_000,
		Active:         true,
		LockGnssFreq:   true,
		LockedOtherSet: true,
		IsLength:       true,
		AlignToTow:     true,
		RisingEdge:     true,
	}
}

// Flags returns the CFG-TP5 flags word
func (c TP5Config) Flags() uint32 {
	var flags uint32
	if c.Active {
		flags |= TP5Active
	}
	if c.LockGnssFreq {
		flags |= TP5LockGnssFreq
	}
	if c.LockedOtherSet {
		flags |= TP5LockedOtherSet
	}
	if c.IsLength {
		flags |= TP5IsLength
	}
	if c.AlignToTow {
		flags |= TP5AlignToTow
	}
	if c.RisingEdge {
		flags |= TP5Polarity
	}
	return flags
}

// Marshal encodes the configuration as a CFG-TP5 frame
func (c TP5Config) Marshal() []byte {
	b := make([]byte, tp5PayloadLen)
	b[0] = c.TPIdx
	b[1] = 0x01 // version
	binary.LittleEndian.PutUint16(b[4:6], uint16(c.AntCableDelayNs))
	binary.LittleEndian.PutUint16(b[6:8], uint16(c.RfGroupDelayNs))
	binary.LittleEndian.PutUint32(b[8:12], c.PeriodUs)
	binary.LittleEndian.PutUint32(b[12:16], c.PeriodLockUs)
	binary.LittleEndian.PutUint32(b[16:20], c.PulseLenNs)
	binary.LittleEndian.PutUint32(b[20:24], c.PulseLenLockNs)
	binary.LittleEndian.PutUint32(b[24:28], uint32(c.UserConfigDelayNs))
	binary.LittleEndian.PutUint32(b[28:32], c.Flags())
	return Encode(ClassCFG, IDCfgTP5, b)
}

// InitOptions select the receiver start-up configuration
type InitOptions struct {
	// UBXOnly also silences RMC, leaving only the binary messages
	UBXOnly bool
	TP5     TP5Config
}

// InitSequence returns the frames sent to the receiver at start-up:
// unused NMEA sentences off, NAV-TIMEUTC and NAV-CLOCK on every solution,
// then the time pulse configuration.
func InitSequence(opts InitOptions) [][]byte {
	seq := [][]byte{
		CFGMsg(ClassNMEA, NMEAGGA, 0),
		CFGMsg(ClassNMEA, NMEAGLL, 0),
		CFGMsg(ClassNMEA, NMEAGSA, 0),
		CFGMsg(ClassNMEA, NMEAGSV, 0),
		CFGMsg(ClassNMEA, NMEAVTG, 0),
	}
	if opts.UBXOnly {
		seq = append(seq, CFGMsg(ClassNMEA, NMEARMC, 0))
	} else {
		seq = append(seq, CFGMsg(ClassNMEA, NMEARMC, 1))
	}
	seq = append(seq,
		CFGMsg(ClassNAV, IDNavTimeUTC, 1),
		CFGMsg(ClassNAV, IDNavClock, 1),
		opts.TP5.Marshal(),
	)
	return seq
}
