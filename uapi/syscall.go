// Package uapi is the thin userspace shim that turns the four-register
// syscall ABI (kernel.Regs) into ordinary Go calls, mirroring the
// structure of the original opapi syscall library: one function per
// syscall, EAGAIN retried transparently inside Read/Write, and no
// userspace-visible notion of the register convention underneath.
package uapi

import (
	"encoding/binary"

	"github.com/TalonFox/zorroOS"
)

// Caller is the four-register trap boundary a process uses to invoke the
// dispatcher; a real libc would trap into hardware here, this reference
// implementation calls Dispatch directly against an in-process Kernel.
type Caller struct {
	K    *kernel.Kernel
	Hart int
}

func (c *Caller) syscall(num uint64, a1, a2, a3 uint64) *kernel.Regs {
	r := &kernel.Regs{SC0: num, SC1: a1, SC2: a2, SC3: a3}
	c.K.Dispatch(c.Hart, r)
	return r
}

// currentProcess returns the process this caller's hart is bound to,
// needed to reach its UserMemory for argument marshalling.
func (c *Caller) currentProcess() *kernel.Process {
	pid := c.K.Scheduler.CurrentPID(c.Hart)
	c.K.Processes.Lock()
	defer c.K.Processes.Unlock()
	p, _ := c.K.Processes.Get(pid)
	return p
}

// Yield implements sched_yield.
func (c *Caller) Yield() { c.syscall(kernel.SYS_YIELD, 0, 0, 0) }

// Exit implements exit(status); it never returns to the caller.
func (c *Caller) Exit(status uint8) {
	c.syscall(kernel.SYS_EXIT, uint64(status), 0, 0)
	panic("uapi: exit returned")
}

// Fork implements fork().
func (c *Caller) Fork() int32 {
	return int32(c.syscall(kernel.SYS_FORK, 0, 0, 0).SC0)
}

// Fixed offsets from a process's memory base used to stage syscall
// arguments; real userspace code would instead use its own stack/heap.
const (
	pathScratchOffset    = 0x1000
	readScratchOffset    = 0x2000
	writeScratchOffset   = 0x3000
	argvBlobOffset       = 0x4000
	argvTableOffset      = 0x5000
	wstatusScratchOffset = 0x6000
)

// putPath writes path into the current process's memory and returns its
// address, standing in for the host libc's CString marshalling.
func (c *Caller) putPath(path string) uint64 {
	p := c.currentProcess()
	addr := p.Mem.Base() + pathScratchOffset
	p.Mem.WriteString(addr, path)
	return addr
}

// Open implements open(path, mode).
func (c *Caller) Open(path string, mode uint64) int64 {
	addr := c.putPath(path)
	return int64(c.syscall(kernel.SYS_OPEN, addr, mode, 0).SC0)
}

// Close implements close(fd).
func (c *Caller) Close(fd int64) int64 {
	return int64(c.syscall(kernel.SYS_CLOSE, uint64(fd), 0, 0).SC0)
}

// Read implements read(fd, buf), retrying transparently on EAGAIN by
// yielding and trying again — exactly the original userspace shim's loop.
func (c *Caller) Read(fd int64, buf []byte) int64 {
	p := c.currentProcess()
	addr := p.Mem.Base() + readScratchOffset
	p.Mem.Grow(int(addr-p.Mem.Base()) + len(buf))
	region, _ := p.Mem.Slice(addr, uint64(len(buf)))
	for {
		r := c.syscall(kernel.SYS_READ, uint64(fd), addr, uint64(len(buf)))
		if int64(r.SC0) != -11 {
			copy(buf, region)
			return int64(r.SC0)
		}
		c.Yield()
	}
}

// Write implements write(fd, buf) with the same EAGAIN retry loop as Read.
func (c *Caller) Write(fd int64, buf []byte) int64 {
	p := c.currentProcess()
	addr := p.Mem.Base() + writeScratchOffset
	p.Mem.Grow(int(addr-p.Mem.Base()) + len(buf))
	region, _ := p.Mem.Slice(addr, uint64(len(buf)))
	copy(region, buf)
	for {
		r := c.syscall(kernel.SYS_WRITE, uint64(fd), addr, uint64(len(buf)))
		if int64(r.SC0) != -11 {
			return int64(r.SC0)
		}
		c.Yield()
	}
}

// Lseek implements lseek(fd, offset, whence).
func (c *Caller) Lseek(fd int64, offset int64, whence kernel.Whence) int64 {
	return int64(c.syscall(kernel.SYS_LSEEK, uint64(fd), uint64(offset), uint64(whence)).SC0)
}

// Dup implements dup(fd).
func (c *Caller) Dup(fd int64) int64 {
	return int64(c.syscall(kernel.SYS_DUP, uint64(fd), 0, 0).SC0)
}

// Dup2 implements dup2(old, new).
func (c *Caller) Dup2(oldFD, newFD int64) int64 {
	return int64(c.syscall(kernel.SYS_DUP, uint64(oldFD), uint64(newFD), 1).SC0)
}

// Execv implements execv(path, argv), marshalling argv into the caller's own
// memory as a string blob followed by a NUL-pointer-terminated pointer
// table — mirroring opapi's execv, but building the table up front rather
// than handing the kernel raw borrowed-string pointers.
func (c *Caller) Execv(path string, argv []string) int64 {
	addr := c.putPath(path)

	p := c.currentProcess()
	blobBase := p.Mem.Base() + argvBlobOffset
	tableBase := p.Mem.Base() + argvTableOffset

	off := blobBase
	ptrs := make([]uint64, 0, len(argv)+1)
	for _, s := range argv {
		p.Mem.WriteString(off, s)
		ptrs = append(ptrs, off)
		off += uint64(len(s)) + 1
	}
	ptrs = append(ptrs, 0)

	tableEnd := tableBase + uint64(len(ptrs))*8
	p.Mem.Grow(int(tableEnd - p.Mem.Base()))
	table, _ := p.Mem.Slice(tableBase, uint64(len(ptrs))*8)
	for i, ptr := range ptrs {
		binary.LittleEndian.PutUint64(table[i*8:], ptr)
	}

	return int64(c.syscall(kernel.SYS_EXECVE, addr, tableBase, 0).SC0)
}

// Unlink implements unlink(path).
func (c *Caller) Unlink(path string) int64 {
	addr := c.putPath(path)
	return int64(c.syscall(kernel.SYS_UNLINK, addr, 0, 0).SC0)
}

// GetPID implements getpid().
func (c *Caller) GetPID() int32 {
	return int32(c.syscall(kernel.SYS_GETPID, 0, 0, 0).SC0)
}

// GetPPID implements getppid().
func (c *Caller) GetPPID() int32 {
	return int32(c.syscall(kernel.SYS_GETPPID, 0, 0, 0).SC0)
}

// Kill implements kill(pid, sig).
func (c *Caller) Kill(pid int32, sig uint8) int64 {
	return int64(c.syscall(kernel.SYS_KILL, uint64(uint32(pid)), uint64(sig), 0).SC0)
}

// Wait implements wait(&wstatus): blocks for any child to change state,
// polling pollpid interleaved with yield exactly like opapi's wait, since
// the kernel itself never blocks (§4.3/§5).
func (c *Caller) Wait() (pid int32, wstatus uint64) {
	return c.waitLoop(-1, false)
}

// WaitPid implements waitpid(pid, &wstatus, opt): opt&1 is WNOHANG — when
// set, pollpid is polled exactly once and a zero return is reported as
// pid==0 rather than retried; otherwise this loops exactly like Wait,
// mirroring opapi's waitpid.
func (c *Caller) WaitPid(pid int32, opt uint64) (resultPid int32, wstatus uint64) {
	return c.waitLoop(int64(pid), opt&1 == 1)
}

func (c *Caller) waitLoop(target int64, nohang bool) (int32, uint64) {
	p := c.currentProcess()
	addr := p.Mem.Base() + wstatusScratchOffset
	p.Mem.Grow(int(addr-p.Mem.Base()) + 8)
	for {
		r := c.syscall(kernel.SYS_POLLPID, uint64(target), addr, 0)
		result := int32(r.SC0)
		if result != 0 || nohang {
			var wstatus uint64
			if result > 0 {
				buf, _ := p.Mem.Slice(addr, 8)
				wstatus = binary.LittleEndian.Uint64(buf)
			}
			return result, wstatus
		}
		c.Yield()
	}
}

// Sbrk implements sbrk(delta).
func (c *Caller) Sbrk(delta int64) uint64 {
	return c.syscall(kernel.SYS_SBRK, uint64(delta), 0, 0).SC0
}
