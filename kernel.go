package kernel

import (
	"github.com/sirupsen/logrus"

	"github.com/TalonFox/zorroOS/vfs"
)

// Syscall numbers, per §6.
const (
	SYS_YIELD     = 0x00
	SYS_EXIT      = 0x01
	SYS_FORK      = 0x02
	SYS_OPEN      = 0x03
	SYS_CLOSE     = 0x04
	SYS_READ      = 0x05
	SYS_WRITE     = 0x06
	SYS_LSEEK     = 0x07
	SYS_DUP       = 0x08
	SYS_UNLINK    = 0x0A
	SYS_STAT      = 0x0B
	SYS_FSTAT     = 0x0C
	SYS_ACCESS    = 0x0D
	SYS_CHMOD     = 0x0E
	SYS_CHOWN     = 0x0F
	SYS_UMASK     = 0x10
	SYS_IOCTL     = 0x11
	SYS_EXECVE    = 0x12
	SYS_POLLPID   = 0x13
	SYS_GETUID    = 0x14
	SYS_GETEUID   = 0x15
	SYS_GETGID    = 0x16
	SYS_GETEGID   = 0x17
	SYS_GETPID    = 0x18
	SYS_GETPPID   = 0x19
	SYS_SETPGID   = 0x1A
	SYS_GETPGRP   = 0x1B
	SYS_SIGNAL    = 0x1C
	SYS_KILL      = 0x1D
	SYS_SIGRETURN = 0x1E
	SYS_NANOSLEEP = 0x1F
	SYS_CHDIR     = 0x20
	SYS_PIPE      = 0x21
	SYS_SBRK      = 0x22
	SYS_POWERCTL  = 0xF0
)

// Kernel wires the process table together with its external collaborators
// and is the receiver for every syscall handler.
type Kernel struct {
	Processes *ProcessTable
	FS        vfs.Filesystem
	Scheduler Scheduler
	Frames    FrameAllocator
	Loader    ELFLoader
	Signals   SignalRouter
	Console   Console
	FB        Framebuffer

	Log *logrus.Entry
}

// NewKernel builds a Kernel around its collaborators. Console/FB may be
// nil; a nil Console/FB simply skips the corresponding power-control
// side-effect, matching §4.5's "if present" for the framebuffer.
func NewKernel(fs vfs.Filesystem, sched Scheduler, frames FrameAllocator, loader ELFLoader, signals SignalRouter) *Kernel {
	return &Kernel{
		Processes: NewProcessTable(),
		FS:        fs,
		Scheduler: sched,
		Frames:    frames,
		Loader:    loader,
		Signals:   signals,
		Log:       logrus.WithField("component", "syscall"),
	}
}

// Dispatch is the syscall dispatcher's entry point (§4.1): it reads the
// syscall number from SC0, invokes the matching handler, and returns. Most
// handlers write their result into regs.SC0 before returning; handlers
// that transfer control to the scheduler instead (yield, exit, execve,
// active sigreturn) release the process-table lock before calling
// Scheduler.Tick, which is documented as possibly never returning for the
// calling hart.
func (k *Kernel) Dispatch(hart int, regs *Regs) {
	pid := k.Scheduler.CurrentPID(hart)
	num := regs.SC0

	log := k.Log.WithFields(logrus.Fields{"pid": pid, "syscall": num})
	log.Trace("dispatch")

	switch num {
	case SYS_YIELD:
		k.sysYield(hart, regs)
	case SYS_EXIT:
		k.sysExit(hart, pid, regs)
	case SYS_FORK:
		k.sysFork(hart, pid, regs)
	case SYS_OPEN:
		k.withProcess(pid, regs, k.sysOpen)
	case SYS_CLOSE:
		k.withProcess(pid, regs, k.sysClose)
	case SYS_READ:
		k.withProcess(pid, regs, k.sysRead)
	case SYS_WRITE:
		k.withProcess(pid, regs, k.sysWrite)
	case SYS_LSEEK:
		k.withProcess(pid, regs, k.sysLseek)
	case SYS_DUP:
		k.withProcess(pid, regs, k.sysDup)
	case SYS_UNLINK:
		k.withProcess(pid, regs, k.sysUnlink)
	case SYS_STAT:
		k.withProcess(pid, regs, k.sysStat)
	case SYS_FSTAT:
		k.withProcess(pid, regs, k.sysFstat)
	case SYS_ACCESS:
		k.withProcess(pid, regs, k.sysAccess)
	case SYS_CHMOD:
		k.withProcess(pid, regs, k.sysChmod)
	case SYS_CHOWN:
		k.withProcess(pid, regs, k.sysChown)
	case SYS_UMASK:
		k.withProcess(pid, regs, k.sysUmask)
	case SYS_IOCTL:
		k.withProcess(pid, regs, k.sysIoctl)
	case SYS_EXECVE:
		k.sysExecve(hart, pid, regs)
	case SYS_POLLPID:
		k.withProcess(pid, regs, k.sysPollpid)
	case SYS_GETUID:
		k.withProcess(pid, regs, func(p *Process, r *Regs) { r.SetReturn(uint64(uint32(p.RUID))) })
	case SYS_GETEUID:
		k.withProcess(pid, regs, func(p *Process, r *Regs) { r.SetReturn(uint64(uint32(p.EUID))) })
	case SYS_GETGID:
		k.withProcess(pid, regs, func(p *Process, r *Regs) { r.SetReturn(uint64(uint32(p.RGID))) })
	case SYS_GETEGID:
		k.withProcess(pid, regs, func(p *Process, r *Regs) { r.SetReturn(uint64(uint32(p.EGID))) })
	case SYS_GETPID:
		k.withProcess(pid, regs, func(p *Process, r *Regs) { r.SetReturn(uint64(uint32(p.ID))) })
	case SYS_GETPPID:
		k.withProcess(pid, regs, func(p *Process, r *Regs) { r.SetReturn(uint64(uint32(p.ParentID))) })
	case SYS_SETPGID:
		k.sysSetpgid(pid, regs)
	case SYS_GETPGRP:
		k.withProcess(pid, regs, func(p *Process, r *Regs) { r.SetReturn(uint64(uint32(p.PGID))) })
	case SYS_SIGNAL:
		k.withProcess(pid, regs, k.sysSignal)
	case SYS_KILL:
		k.sysKill(pid, regs)
	case SYS_SIGRETURN:
		k.sysSigreturn(hart, pid, regs)
	case SYS_CHDIR:
		k.withProcess(pid, regs, k.sysChdir)
	case SYS_SBRK:
		k.sysSbrk(pid, regs)
	case SYS_POWERCTL:
		k.sysPowerctl(pid, regs)
	default:
		// Unknown syscall numbers are a no-op in the original source,
		// leaving SC0 unchanged; SPEC_FULL.md §9 calls this a defect to
		// fix, not replicate.
		regs.SetError(ENOSYS)
	}
}

// withProcess holds the process-table lock, looks up pid, and runs fn.
// Handlers that don't themselves transfer control to the scheduler share
// this helper so the lock-acquire/lookup/unlock boilerplate isn't
// repeated in every *_syscalls.go file.
func (k *Kernel) withProcess(pid Pid, regs *Regs, fn func(*Process, *Regs)) {
	k.Processes.Lock()
	defer k.Processes.Unlock()
	proc, ok := k.Processes.Get(pid)
	if !ok {
		// A missing current pid is a scheduler invariant violation and is
		// intentionally unrecoverable, per §7.
		panic("kernel: current pid not found in process table")
	}
	fn(proc, regs)
}
