// Package futex implements the futex wait/wake primitive (spec
// §4.12): futex_wait blocks the current thread on an address/value
// pair, futex_wake lifts up to n matching waiters whose observed value
// has since changed.
//
// Grounded on spec §4.12's own prose (the original_source scheduler
// module folds futex handling directly into its thread-blocking path,
// with no separate futex file to transliterate) and built entirely on
// this repo's own sched.BlockReason seam, the same "reason type lives
// outside sched" pattern unet's socket waits also use.
package futex

import (
	"sync/atomic"
	"time"

	"sched"
)

// ThreadSet is the slice of a process this package needs: the threads
// to scan on wake, satisfied structurally by proc.Process.Threads.
type ThreadSet interface {
	Threads() []*sched.Thread
}

// Reason is the WaitOnFutex{addr, value, timeout_at} block reason
// spec §3 names. Its Lifted() predicate is what lets the scheduler's
// block_lifted check (spec §4.12) handle both an explicit wake and a
// timeout without a separate polling pass.
type Reason struct {
	Addr      *uint32
	Expected  uint32
	TimeoutAt int64 // absolute monotonic ms; 0 means no timeout

	lifted atomic.Bool
}

// Lifted reports whether this wait has been explicitly woken or its
// deadline has passed.
func (r *Reason) Lifted() bool {
	if r.lifted.Load() {
		return true
	}
	if r.TimeoutAt != 0 && nowMs() >= r.TimeoutAt {
		return true
	}
	return false
}

// monoBase anchors nowMs: its wall-clock reading fixes the scale, and
// time.Since's monotonic reading advances it, so clock steps do not
// move deadlines.
var monoBase = time.Now()

func nowMs() int64 { return monoBase.UnixMilli() + time.Since(monoBase).Milliseconds() }

// Wait atomically checks *addr == expected and, if so, blocks thread
// with a WaitOnFutex reason; timeoutMs <= 0 means wait forever. It
// returns false without blocking if the value has already changed
// (spec §4.12: "atomically checks *addr == expected").
func Wait(thread *sched.Thread, addr *uint32, expected uint32, timeoutMs int64) bool {
	if atomic.LoadUint32(addr) != expected {
		return false
	}
	var deadline int64
	if timeoutMs > 0 {
		deadline = nowMs() + timeoutMs
	}
	thread.Block(&Reason{Addr: addr, Expected: expected, TimeoutAt: deadline})
	return true
}

// Wake iterates proc's threads, lifting the block on up to n of them
// whose WaitOnFutex reason matches addr and whose current *addr no
// longer equals the value they were waiting for (spec §4.12). It
// returns the number of threads woken.
func Wake(proc ThreadSet, addr *uint32, n int) int {
	if n <= 0 {
		return 0
	}
	woken := 0
	for _, t := range proc.Threads() {
		if woken >= n {
			break
		}
		reason, ok := t.Reason().(*Reason)
		if !ok || reason.Addr != addr {
			continue
		}
		if atomic.LoadUint32(addr) == reason.Expected {
			continue
		}
		reason.lifted.Store(true)
		woken++
	}
	return woken
}
