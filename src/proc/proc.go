// Package proc implements Process (spec §4.8): the owner of a VAS,
// its threads, its resource tables, its working directory, and its
// TLS template. Process::create / new_thread / kill are grounded on
// the same original_source scheduler's Process::create call (its
// argument list names exactly the fields this package's CreateParams
// and TLSTemplate carry) and, for the CWD/resource shape, on
// biscuit's fd.Cwd_t.
package proc

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"defs"
	"mem"
	"res"
	"sched"
	"ustr"
	"vas"
	"vm"
)

// TLSTemplate is the master TLS image an ELF's PT_TLS segment
// describes: {master_tls_addr, mem_size, file_size, alignment} (spec
// §4.8).
type TLSTemplate struct {
	MasterAddr uintptr
	MemSize    uint
	FileSize   uint
	Align      uint
}

// UThreadLocalInfo is the small per-thread header every architecture
// places immediately before (or after, per-ABI) a thread's TLS block,
// always exposing {tls_ptr, tls_size} regardless of its own internal
// layout (spec §4.8). The per-arch placement lives in
// proc_amd64.go/proc_arm64.go.
type UThreadLocalInfo struct {
	TLSPtr  uintptr
	TLSSize uint
}

// ExitInfo is recorded once a process's last thread exits.
type ExitInfo struct {
	ExitCode int
	KilledBy int // pid of the killer, or 0 if self-exited
}

// AbiStructures is the fixed-shape blob placed in a fresh process's
// address space and pointed to by its initial CPU state (spec §4.8's
// abi_structures_ptr).
type AbiStructures struct {
	Stdio         [3]int // resource indices for stdin/stdout/stderr
	ParentPid     int
	AvailableCPUs int
}

// Process owns one VAS, its threads, its resource tables, its CWD,
// and its TLS template.
type Process struct {
	PID       int
	ParentPid int
	Name      string

	VAS       *vas.VAS
	Global    *res.Table
	DefaultPriority sched.Priority
	TLS       TLSTemplate

	mu      sync.Mutex
	cwdFd   int
	cwdPath ustr.Ustr

	threads   []*sched.Thread
	liveCount atomic.Int32

	exitInfo     *ExitInfo
	needsCleanup atomic.Bool
}

// CreateParams collects Process::create's arguments (spec §4.8).
type CreateParams struct {
	Pid, ParentPid int
	Name           string
	Priority       sched.Priority
	CWD            ustr.Ustr
	TLS            TLSTemplate
}

// Create builds a fresh process around v: its global resource table,
// CWD and TLS template. It does not create a root thread, allocate
// stacks or build an initial CPU state; the caller maps the entry
// image into v (via the ELF loader) before calling Create and adds
// threads afterwards with NewThread.
func Create(params CreateParams, v *vas.VAS) *Process {
	p := &Process{
		PID:             params.Pid,
		ParentPid:       params.ParentPid,
		Name:            params.Name,
		VAS:             v,
		Global:          res.New(),
		DefaultPriority: params.Priority,
		cwdFd:           -1,
		cwdPath:         params.CWD,
		TLS:             params.TLS,
	}
	return p
}

// Fullpath joins the process's CWD with p if p is not already
// absolute, the same join rule as biscuit's fd.Cwd_t.Fullpath.
func (p *Process) Fullpath(path ustr.Ustr) ustr.Ustr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if path.IsAbsolute() {
		return path
	}
	full := append(append(ustr.Ustr{}, p.cwdPath...), '/')
	return append(full, path...)
}

// SetCWD updates the process's working directory, replacing the
// resource index for its directory handle and its canonical path.
func (p *Process) SetCWD(fd int, path ustr.Ustr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cwdFd = fd
	p.cwdPath = path
}

// Pid satisfies sched.Process.
func (p *Process) Pid() int {
	return p.PID
}

// IsAlive reports whether the process has at least one live thread
// (sched.Process interface).
func (p *Process) IsAlive() bool {
	return p.liveCount.Load() > 0
}

// DisplayName satisfies rodfs.ProcessInfo, letting a RodFS instance
// materialize a proc/<pid>/name file without importing this package.
func (p *Process) DisplayName() string {
	return p.Name
}

// MarkNeedsCleanup flags that the scheduler should reap this process
// once its last thread is fully torn down (sched.Process interface).
func (p *Process) MarkNeedsCleanup() {
	p.needsCleanup.Store(true)
}

// NeedsCleanup reports whether MarkNeedsCleanup has been called.
func (p *Process) NeedsCleanup() bool {
	return p.needsCleanup.Load()
}

// Threads returns a snapshot of the process's thread list, for futex
// wake's per-process scan (spec §4.12).
func (p *Process) Threads() []*sched.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*sched.Thread(nil), p.threads...)
}

// AddThread registers a newly created thread and counts it toward
// Alive.
func (p *Process) AddThread(t *sched.Thread) {
	p.mu.Lock()
	p.threads = append(p.threads, t)
	p.mu.Unlock()
	p.liveCount.Add(1)
}

// ThreadExited decrements the live count. When it reaches zero the
// process becomes a Zombie; info is recorded as its ExitInfo exactly
// once (the first thread to bring the count to zero wins).
func (p *Process) ThreadExited(info ExitInfo) {
	if p.liveCount.Add(-1) == 0 {
		p.mu.Lock()
		if p.exitInfo == nil {
			p.exitInfo = &info
		}
		p.mu.Unlock()
	}
}

// ExitInfo returns the process's recorded exit info, if it has become
// a Zombie.
func (p *Process) ExitInfo() (ExitInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitInfo == nil {
		return ExitInfo{}, false
	}
	return *p.exitInfo, true
}

// Kill marks the process dead by soft-killing every remaining thread
// and recording ExitInfo; it does not itself tear down resources —
// final teardown happens when the scheduler reaps the last thread
// (spec §4.8).
func (p *Process) Kill(exitCode int, killedBy int) {
	p.mu.Lock()
	threads := append([]*sched.Thread(nil), p.threads...)
	if p.exitInfo == nil {
		p.exitInfo = &ExitInfo{ExitCode: exitCode, KilledBy: killedBy}
	}
	p.mu.Unlock()
	for _, t := range threads {
		t.SoftKill()
	}
}

// Teardown releases the process's global resource table and VAS.
// Called once, by the scheduler, after the last thread has been
// reaped.
func (p *Process) Teardown() {
	p.Global.CloseAll()
	p.VAS.Drop()
}

// NewThreadParams collects new_thread's arguments (spec §4.8).
type NewThreadParams struct {
	Tid        int
	Entry      uintptr
	Priority   sched.Priority
	WithTLS    bool
}

// NewThread creates a thread of the process and allocates the thread's
// TLS copy if WithTLS is set: file bytes copied from the master
// template, bss zeroed, into a freshly allocated block plus its
// UThreadLocalInfo header. It neither clones nor creates a resource
// table for the new thread. The architecture-specific placement of that header relative
// to the TLS block is implemented in proc_amd64.go / proc_arm64.go.
func (p *Process) NewThread(params NewThreadParams) (*sched.Thread, *vas.TrackedMemoryMapping, UThreadLocalInfo, defs.Err_t) {
	t := sched.NewThread(params.Tid, params.Priority, p)

	if !params.WithTLS {
		p.AddThread(t)
		return t, nil, UThreadLocalInfo{}, 0
	}

	pages := (int(p.TLS.MemSize) + pageRoundMask) / pageSize
	if pages == 0 {
		pages = 1
	}
	flags := vm.FlagsOf(vm.WRITE, vm.USER_ACCESSIBLE, vm.DISABLE_EXEC)
	mapping, ok := p.VAS.MapNPagesTracked(0, pages, 1, flags)
	if !ok {
		return nil, nil, UThreadLocalInfo{}, defs.ENOMEM
	}
	info, err := placeTLS(p.VAS, mapping, p.TLS)
	if err != 0 {
		mapping.Unmap()
		return nil, nil, UThreadLocalInfo{}, err
	}
	p.AddThread(t)
	return t, mapping, info, 0
}

const pageSize = 4096
const pageRoundMask = pageSize - 1

// copyTLSBytes writes the master TLS template's file-backed bytes
// starting at dst into the mapping's address space, up to limit, and
// leaves the remainder (the bss portion, MemSize - FileSize) zeroed —
// the mapping already came back zero-filled from vm.AllocMap, so
// there is nothing further to do for bss.
func copyTLSBytes(vasp *vas.VAS, dst, limit mem.Va_t, tmpl TLSTemplate) defs.Err_t {
	remaining := int(tmpl.FileSize)
	src := tmpl.MasterAddr
	for remaining > 0 && dst < limit {
		frame, ok := vasp.Translate(mem.Trunc(dst))
		if !ok {
			return defs.EFAULT
		}
		page := frame.Bytes()
		off := int(mem.Offset(dst))
		n := len(page) - off
		if n > remaining {
			n = remaining
		}
		copy(page[off:off+n], (*[1 << 30]byte)(unsafe.Pointer(src))[:n:n])
		src += uintptr(n)
		dst += mem.Va_t(n)
		remaining -= n
	}
	return 0
}
