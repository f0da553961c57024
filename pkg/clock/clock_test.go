package clock

import (
	"testing"
	"time"
)

func TestNow(t *testing.T) {
	a := Now()
	time.Sleep(2 * time.Millisecond)
	b := Now()

	if a.Realtime == 0 || a.Monotonic == 0 {
		t.Fatalf("Now() = %+v", a)
	}
	if b.Monotonic <= a.Monotonic {
		t.Errorf("monotonic went from %d to %d", a.Monotonic, b.Monotonic)
	}

	wall := FromTime(time.Now())
	diff := int64(wall) - int64(b.Realtime)
	if diff < 0 {
		diff = -diff
	}
	if diff > int64(time.Second/time.Microsecond) {
		t.Errorf("realtime %d differs from time.Now %d by %dus", b.Realtime, wall, diff)
	}
}

func TestTimeConversion(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)
	usec := FromTime(ts)
	if !ToTime(usec).Equal(ts) {
		t.Errorf("ToTime(FromTime(t)) = %v, want %v", ToTime(usec), ts)
	}
	if FromTime(time.Time{}) != 0 {
		t.Error("zero time should map to 0")
	}
}
