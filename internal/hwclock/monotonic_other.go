//go:build !linux

package hwclock

func monotonicNow() Instant {
	return sinceStart()
}
