// Package sched implements the per-CPU preemptive scheduler (spec
// §4.7): one CPULocalStorage per core, each owning a singly-linked
// ready queue, priority-based timeslicing, and soft-kill cancellation.
//
// The traversal and cursor-advance rules (skip dead nodes and unlink
// them, treat the head specially, first Runnable-or-lifted-Blocked
// thread wins) are grounded directly on the scheduler this spec was
// distilled from (crates/kernel/src/scheduler/mod.rs's switch_inner).
// Go has no need for the original's raw-pointer cursor trick — a
// garbage-collected *ThreadNode serves the same role safely — so the
// queue here is an ordinary singly-linked list of *ThreadNode behind
// one per-CPU mutex, the same "plain lock, plain pointers" style this
// repo's vm and mem packages already use for their own shared state.
package sched

import (
	"sync"
	"sync/atomic"
)

// Priority selects a thread's timeslice allotment. A timeslice is one
// timer tick (spec §4.7).
type Priority int

const (
	Low    Priority = 1
	Medium Priority = 3
	High   Priority = 5
)

// Timeslices reports how many ticks a thread of this priority runs
// before being considered for preemption.
func (p Priority) Timeslices() uint32 {
	return uint32(p)
}

// Status is a thread's scheduling state.
type Status int

const (
	Running Status = iota
	Runnable
	Blocked
)

// BlockReason names why a Blocked thread is waiting and whether that
// wait has since been satisfied. Concrete reasons (futex waits,
// socket readiness) live in the packages that create them (futex,
// unet) and are passed here only through this interface, so sched
// never imports them. No sleep-deadline or process/thread-join
// reason exists in this tree.
type BlockReason interface {
	// Lifted reports whether the condition this thread is waiting on
	// has already become true, letting swtch pick it up without a
	// separate wakeup pass.
	Lifted() bool
}

// Process is the minimal view of an owning process the scheduler
// needs: enough to detect an address-space change across a context
// switch and to flag process cleanup once every thread is gone.
type Process interface {
	Pid() int
	IsAlive() bool
	MarkNeedsCleanup()
}

// Thread is one schedulable unit (spec's Thread: {tid, priority,
// status, saved CPU context, owning process}).
type Thread struct {
	Tid      int
	Priority Priority
	proc     Process

	mu        sync.Mutex
	status    Status
	reason    BlockReason
	context   any // architecture-specific saved CPU state, opaque to sched
	isDead    bool
	isRemoved bool
}

// NewThread creates a Runnable thread owned by proc.
func NewThread(tid int, prio Priority, proc Process) *Thread {
	return &Thread{Tid: tid, Priority: prio, proc: proc, status: Runnable}
}

// Process returns the thread's owning process.
func (t *Thread) Process() Process { return t.proc }

// SetContext stores the thread's saved CPU state, read back by swtch
// when the thread is next chosen to run.
func (t *Thread) SetContext(ctx any) {
	t.mu.Lock()
	t.context = ctx
	t.mu.Unlock()
}

// Block marks the thread Blocked(reason) and is the only primitive
// blocking calls use; callers must not busy-wait afterward (spec
// §4.7: "they never busy-wait").
func (t *Thread) Block(reason BlockReason) {
	t.mu.Lock()
	t.status = Blocked
	t.reason = reason
	t.mu.Unlock()
}

// Reason returns the thread's current block reason, or nil if it is
// not Blocked. futex_wake and similar wake primitives use this to scan
// a process's threads for a matching wait condition (spec §4.12).
func (t *Thread) Reason() BlockReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != Blocked {
		return nil
	}
	return t.reason
}

// SoftKill sets the thread's is_dead flag; the scheduler observes it
// on the next pass through swtch and unlinks it. This package has no
// separate path for killing the current thread: a soft-killed current
// thread is parked as permanently Blocked by its next Swtch and
// unlinked on a later pass.
func (t *Thread) SoftKill() {
	t.mu.Lock()
	t.isDead = true
	t.mu.Unlock()
}

// ThreadNode is one link in a CPU's ready queue.
type ThreadNode struct {
	thread *Thread
	next   *ThreadNode
}

// CPULocalStorage is one CPU's scheduling state: its ready queue and
// the thread currently running on it.
type CPULocalStorage struct {
	mu sync.Mutex

	root    *ThreadNode
	current *ThreadNode

	threadsCount atomic.Int32
	timeslices   uint32
}

// NewCPULocalStorage creates a CPU's scheduler state seeded with its
// idle/root thread, which is never removed from the queue.
func NewCPULocalStorage(rootThread *Thread) *CPULocalStorage {
	root := &ThreadNode{thread: rootThread}
	c := &CPULocalStorage{root: root, current: root}
	c.threadsCount.Store(1)
	return c
}

// CurrentThread returns the thread presently running on this CPU.
func (c *CPULocalStorage) CurrentThread() *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.thread
}

// TimesliceExpired decrements the current thread's remaining
// timeslices and reports whether it has reached zero, the per-tick
// check that drives whether Swtch actually switches (spec §4.7: "on
// each tick the current thread's remaining timeslices is decremented;
// on zero, swtch is invoked").
func (c *CPULocalStorage) TimesliceExpired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeslices == 0 {
		return true
	}
	c.timeslices--
	return c.timeslices == 0
}

// Swtch performs one scheduling pass: it stores ctx as the current
// thread's saved state, demotes it from Running to Runnable (or to
// permanently Blocked if it was soft-killed), then walks the ready
// queue starting after the current node looking for the first
// Runnable (or lifted-Blocked) thread, unlinking any dead threads it
// passes along the way. It returns the chosen thread's saved context
// and whether the address space changed (the new thread belongs to a
// different process than the one that was running).
func (c *CPULocalStorage) Swtch(ctx any) (next any, addressSpaceChanged bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current
	cur.thread.SetContext(ctx)

	cur.thread.mu.Lock()
	prevPid := cur.thread.proc.Pid()
	if cur.thread.isDead {
		cur.thread.status = Blocked
		cur.thread.reason = blockedForever{}
	} else if cur.thread.status == Running {
		cur.thread.status = Runnable
	}
	cur.thread.mu.Unlock()

	if !cur.thread.proc.IsAlive() {
		cur.thread.proc.MarkNeedsCleanup()
	}

	node := cur
	for {
		nextNode := node.next
		wrapped := false
		if nextNode == nil {
			nextNode = c.root
			wrapped = true
		}

		nt := nextNode.thread
		nt.mu.Lock()
		if nt.isDead {
			alreadyRemoved := nt.isRemoved
			nt.isRemoved = true
			nt.mu.Unlock()
			if alreadyRemoved {
				node = nextNode
				continue
			}
			// unlink nextNode from the list. If it was the head, the node
			// after it becomes the new head (the idle thread is never
			// killed, so there is always one); otherwise the preceding
			// node's next pointer is rewired to skip it, and that
			// preceding node is where the next iteration resumes from.
			if wrapped {
				if nextNode.next == nil {
					panic("sched: every thread on this CPU is dead")
				}
				// node.next stays nil, so the next iteration wraps again
				// and lands on the new root.
				c.root = nextNode.next
			} else {
				node.next = nextNode.next
			}
			continue
		}

		ok, _ := func() (bool, BlockReason) {
			switch nt.status {
			case Runnable:
				return true, nil
			case Blocked:
				if nt.reason != nil && nt.reason.Lifted() {
					return true, nil
				}
			}
			return false, nil
		}()
		nt.mu.Unlock()

		if ok {
			nt.mu.Lock()
			nt.status = Running
			savedCtx := nt.context
			nt.mu.Unlock()
			c.current = nextNode
			c.timeslices = nt.Priority.Timeslices()
			return savedCtx, nt.proc.Pid() != prevPid
		}
		node = nextNode
	}
}

type blockedForever struct{}

func (blockedForever) Lifted() bool { return false }

// AddThread appends thread to the ready queue as the new head, the
// same push-front-at-the-head shape the scheduler this was grounded
// on uses for ThreadNode::push_front.
func (c *CPULocalStorage) AddThread(thread *Thread) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root = &ThreadNode{thread: thread, next: c.root}
	c.threadsCount.Add(1)
}

func (c *CPULocalStorage) count() int32 {
	return c.threadsCount.Load()
}

// Scheduler owns every CPU's local storage and implements the
// load-balancing placement rule spec §4.7 names for add_thread.
type Scheduler struct {
	cpus []*CPULocalStorage
}

// NewScheduler wires up a scheduler over the given per-CPU storages,
// one already created (with its idle thread) per core during boot.
func NewScheduler(cpus []*CPULocalStorage) *Scheduler {
	return &Scheduler{cpus: cpus}
}

// AddThread places thread on the requested CPU if cpu is non-nil and
// valid, otherwise on whichever CPU currently has the fewest threads.
func (s *Scheduler) AddThread(thread *Thread, cpu *int) {
	var target *CPULocalStorage
	if cpu != nil && *cpu >= 0 && *cpu < len(s.cpus) {
		target = s.cpus[*cpu]
	} else {
		target = s.cpus[0]
		least := target.count()
		for _, c := range s.cpus[1:] {
			if n := c.count(); n < least {
				target, least = c, n
			}
		}
	}
	target.AddThread(thread)
}

// FindProcess scans every CPU's ready queue for a thread owned by the
// process with the given pid, for rodfs's per-process subtree lookup
// (spec §4.11: "materialised on first reference by scanning the
// scheduler for a process with the matching pid").
func (s *Scheduler) FindProcess(pid int) (Process, bool) {
	for _, c := range s.cpus {
		if p, ok := c.findProcess(pid); ok {
			return p, true
		}
	}
	return nil, false
}

func (c *CPULocalStorage) findProcess(pid int) (Process, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for node := c.root; node != nil; node = node.next {
		if p := node.thread.proc; p != nil && p.Pid() == pid {
			return p, true
		}
	}
	return nil, false
}
