// Package stats provides lightweight, switchable counters for the
// sys:/bin/meminfo introspection path (S4); no other package in this
// tree imports it. Counting is compiled out entirely when Stats is
// false so it costs nothing on the hot path.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"
)

const Stats = false
const Timing = false

var Nirqs [100]int
var Irqs int

// Cycles returns a monotonic cycle-like counter when timing is
// enabled. On real hardware this reads the architecture's cycle
// counter (RDTSC / CNTVCT_EL0); hosted builds approximate it with the
// monotonic clock since no cycle counter is available off of bare
// metal.
func Cycles() uint64 {
	if Timing {
		return uint64(time.Since(clockBase))
	}
	return 0
}

// clockBase is the monotonic reading Cycles counts from.
var clockBase = time.Now()

/// Counter_t is a statistical counter.
type Counter_t int64

/// Cycles_t holds a cycle count.
type Cycles_t int64

/// Inc increments the counter.
func (c *Counter_t) Inc() {
	if Stats {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, 1)
	}
}

/// Add adds elapsed cycles to the counter.
func (c *Cycles_t) Add(m uint64) {
	if Timing {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, int64(Cycles()-m))
	}
}

/// Stats2String converts a struct of counters to a printable string.
func Stats2String(st interface{}) string {
	if !Stats {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
		if strings.HasSuffix(t, "Cycles_t") {
			n := v.Field(i).Interface().(Cycles_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}

	}
	return s + "\n"
}
