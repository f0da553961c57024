package logging

import (
	"fmt"
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Component(name string) Field {
	return String("component", name)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}

// Offset renders an object offset in hex, the way offsets show up in dumps.
func Offset(off uint64) Field {
	return String("offset", fmt.Sprintf("%#x", off))
}

func Seqnum(n uint64) Field {
	return Uint64("seqnum", n)
}

// BootID accepts any 128-bit id that renders itself as hex.
func BootID(id fmt.Stringer) Field {
	return String("boot_id", id.String())
}

func FileID(id fmt.Stringer) Field {
	return String("file_id", id.String())
}

func Reason(r string) Field {
	return String("reason", r)
}
