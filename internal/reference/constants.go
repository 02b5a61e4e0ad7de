package reference

import "time"

const (
	// DefaultTimeout bounds one NTP query
	DefaultTimeout = 5 * time.Second

	// DefaultInterval between two cross-check rounds
	DefaultInterval = 64 * time.Second

	// MaxAcceptableRTT above which a reply is discarded
	MaxAcceptableRTT = 2 * time.Second

	// DefaultHistory is the number of divergence samples kept per server
	DefaultHistory = 16
)

// Stratum limits
const (
	MinValidStratum = 1
	MaxValidStratum = 15
)
