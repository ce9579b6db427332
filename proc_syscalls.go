package kernel

// sysYield implements SYS_YIELD: the process-table lock is never taken
// here at all (matching §5's "syscalls never otherwise block" save for
// this single hand-off point); Tick alone decides who runs next and may
// not return to this hart.
func (k *Kernel) sysYield(hart int, regs *Regs) {
	k.Scheduler.Tick(hart, regs)
}

// sysExit implements SYS_EXIT. The process is marked
// FINISHING(|status|) per §4.3 — Code holds the plain exit status, not
// yet shifted into wstatus form (that happens in EncodeWaitStatus when a
// parent reaps it) — its children are re-parented to pid 1, and control
// is handed to the scheduler, which will never resume this hart with this
// process again.
func (k *Kernel) sysExit(hart int, pid Pid, regs *Regs) {
	k.Processes.Lock()
	proc, ok := k.Processes.Get(pid)
	if !ok {
		k.Processes.Unlock()
		panic("kernel: current pid not found in process table")
	}
	status := int64(uint8(regs.SC1))
	proc.Status = Status{Kind: Finishing, Code: status}
	for _, childPid := range proc.Children {
		if child, ok := k.Processes.Get(childPid); ok {
			child.ParentID = 1
			if init, ok := k.Processes.Get(Pid(1)); ok {
				init.Children = append(init.Children, childPid)
			}
		}
	}
	proc.Children = nil
	k.Processes.Unlock()
	k.Scheduler.Tick(hart, regs)
}

// sysFork implements SYS_FORK (§3 Lifecycles). The parent receives the
// child's pid, the child (on its first resumption) observes 0 in SC0.
func (k *Kernel) sysFork(hart int, pid Pid, regs *Regs) {
	k.Processes.Lock()
	parent, ok := k.Processes.Get(pid)
	if !ok {
		k.Processes.Unlock()
		panic("kernel: current pid not found in process table")
	}
	child := Fork(parent)
	childPid := k.Processes.Insert(child)
	parent.Children = append(parent.Children, childPid)
	k.Processes.Unlock()

	k.Scheduler.StartProcess(childPid, child.TaskState.IP, child.TaskState.SP)
	regs.SetReturn(uint64(uint32(childPid)))
}

// sysExecve implements SYS_EXECVE. argv is copied into freshly allocated
// kernel-owned memory before the old address space is torn down, so the
// caller's argv pointers are never handed across the address-space switch
// — unlike the documented ownership-transfer unsoundness in §9/§12.
func (k *Kernel) sysExecve(hart int, pid Pid, regs *Regs) {
	k.Processes.Lock()
	proc, ok := k.Processes.Get(pid)
	if !ok {
		k.Processes.Unlock()
		panic("kernel: current pid not found in process table")
	}

	path, ok := proc.Mem.ReadCString(regs.SC1)
	if !ok {
		k.Processes.Unlock()
		regs.SetError(EFAULT)
		return
	}
	argv, ok := decodeArgv(proc.Mem, regs.SC2)
	if !ok {
		k.Processes.Unlock()
		regs.SetError(EFAULT)
		return
	}

	newTable := NewFlatPageTable()
	entry, heapBase, err := k.Loader.LoadELFFromPath(resolvePath(proc.CWD, path), newTable)
	if err != nil {
		k.Processes.Unlock()
		regs.SetError(loaderErrno(err))
		return
	}

	blobSize := 0
	for _, s := range argv {
		blobSize += len(s) + 1
	}
	pages := (blobSize + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}

	// One page of frames for the pointer table and enough for the string
	// blob, both mapped read-only and non-executable in the new table.
	_, tableErr := k.Frames.Allocate(PageSize)
	_, blobErr := k.Frames.Allocate(uintptr(pages * PageSize))
	if tableErr != nil || blobErr != nil ||
		newTable.Map(argvTableBase, PageSize, false, false) != nil ||
		newTable.Map(argvBlobBase, uintptr(pages*PageSize), false, false) != nil {
		k.Processes.Unlock()
		regs.SetError(ENOMEM)
		return
	}

	proc.FDs.EvictCloseOnExec()
	proc.PageTable = newTable
	proc.Mem = NewUserMemory(0, argvBlobBase+pages*PageSize)
	proc.LockHeap()
	proc.HeapBase = heapBase
	proc.HeapLength = 0
	proc.UnlockHeap()

	writeArgvBlob(proc.Mem, argv)
	proc.TaskState = Regs{IP: entry, SP: execveStackPointer}
	k.Processes.Unlock()

	*regs = proc.TaskState
	k.Scheduler.Tick(hart, regs)
}

// argMax is the argv vector cap (§4.3: "a NULL-terminated vector of
// C-string pointers from user space, capped at 256 entries").
const argMax = 256

// argvTableBase and argvBlobBase are the fixed user virtual addresses
// execve maps the pointer table and string blob at (§4.3: "maps the
// pointer table at user virtual address 0x1000 and the string blob at
// 0x2000"). execveStackPointer is the fixed initial stack pointer
// (§4.3: "stack pointer to 0x800000000000").
const (
	argvTableBase      = 0x1000
	argvBlobBase       = 0x2000
	execveStackPointer = 0x800000000000
)

// decodeArgv walks the NUL-pointer-terminated argv array at addr,
// resolving each element before the caller's address space goes away.
func decodeArgv(mem *UserMemory, addr uint64) ([]string, bool) {
	var argv []string
	for i := 0; i < argMax; i++ {
		ptrBytes, ok := mem.Slice(addr+uint64(i)*8, 8)
		if !ok {
			return nil, false
		}
		ptr := leUint64(ptrBytes)
		if ptr == 0 {
			return argv, true
		}
		s, ok := mem.ReadCString(ptr)
		if !ok {
			return nil, false
		}
		argv = append(argv, s)
	}
	return argv, false
}

// writeArgvBlob concatenates argv's NUL-terminated byte images into the
// string blob at argvBlobBase and builds the parallel 256-entry pointer
// table at argvTableBase, where slot i holds the user-space address
// 0x2000+offset of its string, per §4.3.
func writeArgvBlob(mem *UserMemory, argv []string) {
	off := uint64(argvBlobBase)
	ptrs := make([]uint64, argMax)
	for i, s := range argv {
		mem.WriteString(off, s)
		ptrs[i] = off
		off += uint64(len(s)) + 1
	}
	for i, p := range ptrs {
		putLEUint64(mem, argvTableBase+uint64(i)*8, p)
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putLEUint64(mem *UserMemory, addr, v uint64) {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	mem.Grow(int(addr) + 8)
	buf, ok := mem.Slice(addr, 8)
	if ok {
		copy(buf, b)
	}
}

// sysPollpid implements SYS_POLLPID (wait/waitpid(pid, wstatus*), §4.3).
// SC1 is the target (-1 any child, 0 caller's process group, >0 an exact
// pid, <-1 the process group |target|); SC2 is the user-space address a
// ready child's encoded wstatus is written to (a NULL address, i.e. 0,
// skips the write, matching callers that pass no buffer). Returns the
// reaped/stopped child's pid, 0 if the caller has matching children but
// none are ready yet (userspace polls by re-invoking this interleaved
// with yield), or -ECHILD if the caller has no matching children at all.
func (k *Kernel) sysPollpid(p *Process, r *Regs) {
	target := int64(int32(r.SC1))
	wstatusAddr := r.SC2

	matched := false
	for _, childPid := range p.Children {
		child, ok := k.Processes.Get(childPid)
		if !ok {
			continue
		}
		if !matchesWait(target, p, child) {
			continue
		}
		matched = true
		switch child.Status.Kind {
		case Finishing, Finished:
			writeWstatus(p.Mem, wstatusAddr, EncodeWaitStatus(child.Status.Code))
			r.SetReturn(uint64(uint32(childPid)))
			removeChild(p, childPid)
			k.Processes.Cleanup(childPid)
			return
		case Stopped:
			writeWstatus(p.Mem, wstatusAddr, StoppedWaitStatus)
			r.SetReturn(uint64(uint32(childPid)))
			return
		}
	}
	if !matched {
		r.SetError(ECHILD)
		return
	}
	r.SetReturn(0)
}

// writeWstatus stores value at addr in mem, unless addr is the NULL
// address, in which case the caller asked to discard the status.
func writeWstatus(mem *UserMemory, addr uint64, value uint64) {
	if addr == 0 {
		return
	}
	putLEUint64(mem, addr, value)
}

func matchesWait(target int64, parent, child *Process) bool {
	switch {
	case target == -1:
		return true
	case target == 0:
		return child.PGID == parent.PGID
	case target > 0:
		return int64(child.ID) == target
	default:
		return int64(child.PGID) == -target
	}
}

func removeChild(p *Process, pid Pid) {
	out := p.Children[:0]
	for _, c := range p.Children {
		if c != pid {
			out = append(out, c)
		}
	}
	p.Children = out
}

// sysSetpgid implements SYS_SETPGID, re-verifying the target still exists
// after the table lock is (re-)acquired rather than trusting a stale
// lookup, per §9/§12's fix for the original's race.
func (k *Kernel) sysSetpgid(callerPid Pid, r *Regs) {
	targetPid := Pid(int32(r.SC1))
	if targetPid == 0 {
		targetPid = callerPid
	}
	newPGID := int32(r.SC2)
	if newPGID == 0 {
		newPGID = int32(targetPid)
	}

	k.Processes.Lock()
	defer k.Processes.Unlock()

	caller, ok := k.Processes.Get(callerPid)
	if !ok {
		panic("kernel: current pid not found in process table")
	}
	target, ok := k.Processes.Get(targetPid)
	if !ok {
		r.SetError(ESRCH)
		return
	}
	if targetPid != callerPid && target.ParentID != callerPid {
		r.SetError(ESRCH)
		return
	}
	if caller.EUID != 0 && caller.EUID != target.EUID {
		r.SetError(EPERM)
		return
	}
	target.PGID = newPGID
	r.SetReturn(0)
}

// sysSignal implements SYS_SIGNAL: installs a handler address for a
// signal number, returning the previous handler.
func (k *Kernel) sysSignal(p *Process, r *Regs) {
	sig := r.SC1
	if sig == 0 || sig >= uint64(len(p.Signals)) {
		r.SetError(EINVAL)
		return
	}
	old := p.Signals[sig]
	p.Signals[sig] = uintptr(r.SC2)
	r.SetReturn(uint64(old))
}

// sysKill implements SYS_KILL, delegating delivery to the SignalRouter
// collaborator (§3's "list of pending signals implied by kill").
func (k *Kernel) sysKill(pid Pid, r *Regs) {
	target := Pid(int32(r.SC1))
	sig := uint8(r.SC2)
	if err := k.Signals.Send(target, sig); err != ENONE {
		r.SetError(err)
		return
	}
	r.SetReturn(0)
}

// sysSigreturn implements SYS_SIGRETURN: restores the register snapshot
// saved when the signal was delivered, then re-enters the scheduler so
// the restored state actually resumes. With no saved signal context
// (SigState.IP == 0) it is a no-op and regs are left untouched.
func (k *Kernel) sysSigreturn(hart int, pid Pid, regs *Regs) {
	k.Processes.Lock()
	proc, ok := k.Processes.Get(pid)
	if !ok {
		k.Processes.Unlock()
		panic("kernel: current pid not found in process table")
	}
	if proc.SigState.IP == 0 {
		k.Processes.Unlock()
		return
	}
	proc.TaskState = proc.SigState
	proc.SigState = Regs{}
	*regs = proc.TaskState
	k.Processes.Unlock()
	k.Scheduler.Tick(hart, regs)
}
