// Command kernel is the boot-sequence entry point: it brings up every
// component in the dependency order spec §2 lays out (frame allocator
// -> page tables -> kernel heaps -> scheduler -> first process), then
// mounts the bundled ramdisk and hands off to Eve, the first
// user-space process. It plays the role biscuit's own kernel/chentry.go
// command occupies in the teacher's src/kernel directory, except this
// file is the actual bring-up sequence biscuit's trimmed retrieval
// copy no longer carries; the boot order itself is cross-checked
// against justanotherdot-biscuit's kernel/main.go (phys_init ->
// dmap_init -> cpus_start -> mount root fs -> exec init).
//
// Everything here that would reach real hardware (the bootloader
// handoff struct, interrupt controllers, the framebuffer terminal) is
// named as a parameter or left as a documented extension point: spec
// §1 treats those as external collaborators with fixed interfaces,
// not part of this core.
package main

import (
	"sched"
	"vas"
	"vfs"
	"vm"

	"bootcfg"
	"klog"

	"buddy"
	"defs"
	"mem"
	"pgalloc"
	"proc"
	"ramfs"
	"rodfs"
	"ustar"
	"ustr"
)

// BootInfo is the fixed interface the bootloader handoff supplies
// (spec §6): an HHDM offset, a physical memory map, and the embedded
// ramdisk tar. RSDP/device-tree pointers, the framebuffer descriptor,
// and the kernel command-line string round out what a real bootloader
// protocol (e.g. Limine) hands off; this core only consumes the
// fields that feed the frame allocator, the ramdisk mount, and
// bootcfg.
type BootInfo struct {
	HHDM    mem.Va_t
	Memory  []mem.Region
	NPages  uint
	Ramdisk []byte
	Cmdline string
	NumCPU  int
}

// kernelVersion is reported alongside the pprof-style profile leaf
// rodfs exposes for the meminfo scenario (S4), the same "version
// string" seed biscuit's own rodfs-equivalent introspection carries.
const kernelVersion = "nyx/0"

// kernelHeapBase and kernelHeapPages bound the large-region window
// pgalloc tracks for kernel-side containers, starting one page past
// the user VAS's top (spec §4.4 names pgalloc's window as kernel-private).
const (
	kernelHeapBase  mem.Va_t = 0x0000_8000_0000_0000
	kernelHeapPages          = 4096
)

// kernelHeapArena backs buddy's growable arena the same way
// buddy_test.go's hostMapper does: a plain heap-allocated, never
// reallocated byte slice. Real hardware bring-up would instead route
// through vm/vas the way pgalloc's mapper below demonstrates; buddy's
// blocks only ever need stable backing storage, not a faulted-in
// virtual range, so this core's abstraction boundary (spec §1) treats
// the distinction as an implementation detail of the arch port.
func kernelHeapArena(sizeBytes int) ([]byte, error) {
	return make([]byte, sizeBytes), nil
}

// kernelPageMapper satisfies pgalloc.Mapper directly against the page
// table engine (vm.AllocMap/FreeUnmap), the same pair pgalloc_test.go's
// fakeMapper stands in for, so containers backed by pgalloc.Allocator
// live in genuinely mapped kernel virtual memory rather than an
// untracked placeholder.
type kernelPageMapper struct {
	root mem.Frame
	fs   vm.FrameSource
}

func (m kernelPageMapper) Map(v mem.Va_t, pages int, flags vm.Flags) error {
	return vm.AllocMap(m.root, v, v+mem.Va_t(pages*mem.PGSIZE), flags, m.fs)
}

func (m kernelPageMapper) Unmap(v mem.Va_t, pages int) {
	vm.FreeUnmap(m.root, v, v+mem.Va_t(pages*mem.PGSIZE), m.fs)
}

// boot runs the dependency-ordered bring-up spec §2 describes and
// returns the mount table and scheduler a syscall dispatcher (out of
// this core's scope) would drive from here on.
func boot(info BootInfo) (*vfs.Mount, *sched.Scheduler, *proc.Process) {
	cfg, err := bootcfg.Parse(info.Cmdline)
	if err != nil {
		klog.Warn("bootcfg: %v, falling back to defaults", err)
		cfg = bootcfg.Default()
	}
	if err := klog.SetLevel(cfg.LogLevel); err != nil {
		klog.Warn("klog: invalid log level %q", cfg.LogLevel)
	}

	klog.Boot("nyx kernel booting, %d CPU(s), fbmode=%s", info.NumCPU, cfg.Framebuffer)

	// (a) frame allocator: owns physical RAM handed off by the
	// bootloader's memory map.
	mem.SetHhdm(info.HHDM)
	mem.Init(0, info.NPages, info.Memory)
	klog.Boot("frame allocator: %d frames tracked", info.NPages)

	// (b)+(d) the first process's VAS is the page-table engine's
	// first real caller; vas.New allocates its root PhysPageTable from
	// the frame allocator.
	eveVAS, ok := vas.New(&mem.Frames)
	if !ok {
		klog.Fatal("out of memory building Eve's address space")
	}

	// Kernel-side allocators: buddy backs small kernel objects, pgalloc
	// backs large contiguous ones, both reported through the "prof"
	// rodfs leaf below (spec §4.3, §4.4, S4).
	kernelHeap, err2 := buddy.New(kernelHeapArena)
	if err2 != nil {
		klog.Fatal("buddy: failed to seed kernel arena: %v", err2)
	}
	kernelPages := pgalloc.New(kernelPageMapper{root: eveVAS.Root(), fs: &mem.Frames}, kernelHeapBase, kernelHeapPages)

	// (c) scheduler: one CPULocalStorage per reported CPU, each
	// seeded with its own idle thread so Swtch always has a fallback.
	cpus := make([]*sched.CPULocalStorage, info.NumCPU)
	for i := range cpus {
		idle := sched.NewThread(0, sched.Low, nil)
		cpus[i] = sched.NewCPULocalStorage(idle)
		klog.CPU(i).Info("cpu online")
	}
	scheduler := sched.NewScheduler(cpus)

	eve := proc.Create(proc.CreateParams{
		Pid:      1,
		Name:     "eve",
		Priority: sched.Medium,
		CWD:      ustr.MkUstrRoot(),
	}, eveVAS)
	rootThread, _, _, errn := eve.NewThread(proc.NewThreadParams{Tid: 1, Priority: sched.Medium})
	if errn != 0 {
		klog.Fatal("failed to spawn Eve's root thread: %v", errn)
	}
	scheduler.AddThread(rootThread, nil)
	klog.Proc(eve.Pid()).Info("eve created")

	// VFS: mount table plus the two in-memory file systems spec §4.10
	// and §4.11 name. "ram" hosts the unpacked ramdisk, "sys" is the
	// synthetic introspection tree.
	mount := vfs.NewMount()

	ramFS := ramfs.New()
	if errn := ustar.Unpack(ramFS, info.Ramdisk); errn != 0 {
		klog.Fatal("failed to unpack ramdisk: %v", errn)
	}
	mount.Add("ram", ramFS)
	klog.Drive("ram").Info("ramdisk mounted")

	scanner := func(pid int) (rodfs.ProcessInfo, bool) {
		p, ok := scheduler.FindProcess(pid)
		if !ok {
			return nil, false
		}
		pinfo, ok := p.(rodfs.ProcessInfo)
		return pinfo, ok
	}
	sysFS := rodfs.New(scanner, kernelVersion)
	sysFS.AddFile("prof", func() ([]byte, defs.Err_t) { return heapProfile(kernelHeap, kernelPages) })
	mount.Add("sys", sysFS)
	klog.Drive("sys").Info("introspection fs mounted")

	return mount, scheduler, eve
}

// spawnInit is the minimal analogue of justanotherdot-biscuit's
// exec("bin/init", nil): it resolves the given path on the mounted
// tree and reports whether a loadable image exists there. The actual
// ELF mapping + process replacement (execve-style) is performed by
// the elf package together with the syscall dispatcher, both out of
// this core's scope (spec §1); this function only demonstrates that
// boot's mount table is immediately walkable by VFS path resolution.
func spawnInit(mount *vfs.Mount, path ustr.Ustr) defs.Err_t {
	fs, id, errn := mount.ResolveAbs(path)
	if errn != 0 {
		return errn
	}
	desc, errn := vfs.Open(fs, id, defs.O_READ)
	if errn != 0 {
		return errn
	}
	defer desc.Close()
	if _, errn := desc.Attrs(); errn != 0 {
		return errn
	}
	return 0
}

func main() {
	// A hosted build has no real bootloader handoff; main exists so
	// `go build ./src/kernel` produces a linkable command the way
	// biscuit's own kernel/chentry.go does, not as a bootable image.
	// Real entry happens via the architecture-specific boot stub
	// (outside this core's scope, spec §1) calling boot(info) with the
	// bootloader-supplied BootInfo.
	_ = boot
	_ = spawnInit
}
