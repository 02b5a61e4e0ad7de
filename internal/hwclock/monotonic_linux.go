//go:build linux

package hwclock

import "golang.org/x/sys/unix"

func monotonicNow() Instant {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return sinceStart()
	}
	return Instant(ts.Nano() / 1000)
}
