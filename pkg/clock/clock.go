// Package clock produces the (realtime, monotonic) microsecond pairs stamped
// on journal entries.
package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// DualTimestamp is a wall-clock and a per-boot monotonic reading, both in
// microseconds.
type DualTimestamp struct {
	Realtime  uint64
	Monotonic uint64
}

// Now samples CLOCK_REALTIME and CLOCK_MONOTONIC. The monotonic clock's
// origin is the kernel boot, which is what makes it meaningful together with
// a boot id.
func Now() DualTimestamp {
	return DualTimestamp{
		Realtime:  read(unix.CLOCK_REALTIME),
		Monotonic: read(unix.CLOCK_MONOTONIC),
	}
}

func read(clockid int32) uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(clockid, &ts); err != nil {
		// Only fails for an invalid clock id.
		return 0
	}
	return uint64(ts.Sec)*1e6 + uint64(ts.Nsec)/1e3
}

// FromTime converts a wall-clock time to microseconds since the epoch.
func FromTime(t time.Time) uint64 {
	if t.IsZero() || t.Before(time.Unix(0, 0)) {
		return 0
	}
	return uint64(t.UnixMicro())
}

// ToTime converts realtime microseconds back to a time.Time.
func ToTime(usec uint64) time.Time {
	return time.UnixMicro(int64(usec))
}

// Source returns timestamps for appends. Tests substitute a fake.
type Source interface {
	Now() DualTimestamp
}

// System is the Source backed by the kernel clocks.
type System struct{}

func (System) Now() DualTimestamp { return Now() }
