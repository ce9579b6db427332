package kernel

import "errors"

// The types in this file describe the kernel's external collaborators —
// architecture-specific primitives and the scheduler — that spec.md §1
// places out of scope. The dispatcher only ever talks to these
// interfaces; SPEC_FULL.md §4.7/§4.8 gives each a small in-process
// reference implementation so the package is runnable without real
// hardware.

// PageTable is a process's address space handle. Map backs sbrk and
// execve's pointer-table/string-blob mappings; Clone implements fork's
// "page table copied or COW-shared per architecture policy" (§3).
type PageTable interface {
	Map(virt uintptr, length uintptr, writable, executable bool) error
	Clone() PageTable
}

// FrameAllocator hands out physical memory for sbrk growth and for
// execve's argv pointer-table/string-blob pages.
type FrameAllocator interface {
	Allocate(length uintptr) (phys uintptr, err error)
}

// ELFLoader takes a path and a fresh page table and returns the entry
// point and heap base, per §1's "Out of scope: external collaborators".
type ELFLoader interface {
	LoadELFFromPath(path string, pt PageTable) (entry, heapBase uint64, err error)
}

// errnoError lets an ELFLoader tag a failure with the exact Errno execve
// should surface in slot 0, per §4.3's "returns
// the loader's error code in slot 0" rather than a single fixed errno for
// every failure.
type errnoError interface {
	Errno() Errno
}

// loaderErrno extracts the Errno a failing ELFLoader tagged its error
// with, falling back to ENOENT for loaders (such as FlatELFLoader) that
// return plain errors.
func loaderErrno(err error) Errno {
	var ee errnoError
	if errors.As(err, &ee) {
		return ee.Errno()
	}
	return ENOENT
}

// Scheduler is the sole suspension point: Tick may resume a different
// process than the one that called it and, for the calling hart, may
// never return (§4.1, §5). StartProcess arranges for a freshly forked
// child to begin executing at (ip, sp).
type Scheduler interface {
	Tick(hart int, state *Regs)
	CurrentPID(hart int) Pid
	StartProcess(pid Pid, ip, sp uint64)
}

// SignalRouter delivers kill(2) requests; it is an external collaborator
// per §3's "list of pending signals implied by kill".
type SignalRouter interface {
	Send(pid Pid, sig uint8) Errno
}

// Console is the privileged collaborator foxkernel_powerctl mutes/unmutes,
// per §4.5; the SHUTDOWN banner goes to the Framebuffer, not here.
type Console interface {
	SetQuiet(quiet bool)
}

// Framebuffer is optional; DrawBanner is a no-op if no framebuffer is
// present, matching §4.5's "if present".
type Framebuffer interface {
	DrawBanner(msg string)
}
