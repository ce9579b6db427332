package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalonFox/zorroOS/vfs"
)

func newTestKernel(t *testing.T) (*Kernel, *CooperativeScheduler) {
	t.Helper()
	fs := vfs.NewMemFS()
	sched := NewCooperativeScheduler()
	frames := NewBumpFrameAllocator(0x1000_0000)
	loader := NewFlatELFLoader()
	k := NewKernel(fs, sched, frames, loader, nil)
	k.Signals = NewInMemorySignalRouter(k.Processes)
	return k, sched
}

func bootInit(t *testing.T, k *Kernel, sched *CooperativeScheduler) Pid {
	t.Helper()
	init := &Process{
		EUID: 0, EGID: 0,
		CWD:       "/",
		Status:    Status{Kind: Running},
		PageTable: NewFlatPageTable(),
		Mem:       NewUserMemory(0x5000_0000, 1<<20),
		FDs:       NewDescriptorTable(),
	}
	k.Processes.Lock()
	k.Processes.InsertInit(init)
	k.Processes.Unlock()
	sched.Bind(0, 1)
	return 1
}

func TestOpenWriteReadRoundTrip(t *testing.T) {
	k, sched := newTestKernel(t)
	pid := bootInit(t, k, sched)

	k.Processes.Lock()
	proc, _ := k.Processes.Get(pid)
	k.Processes.Unlock()
	proc.Mem.WriteString(0x5000_0000, "/hello.txt")

	open := &Regs{SC0: SYS_OPEN, SC1: 0x5000_0000, SC2: uint64(O_RDWR | O_CREAT), SC3: uint64(DefaultFilePerm)}
	k.Dispatch(0, open)
	if int64(open.SC0) < 0 {
		t.Fatalf("open failed: %d", int64(open.SC0))
	}
	fd := open.SC0

	proc.Mem.WriteString(0x5000_1000, "hi there")
	write := &Regs{SC0: SYS_WRITE, SC1: fd, SC2: 0x5000_1000, SC3: 8}
	k.Dispatch(0, write)
	if write.SC0 != 8 {
		t.Fatalf("write returned %d, want 8", write.SC0)
	}

	lseek := &Regs{SC0: SYS_LSEEK, SC1: fd, SC2: 0, SC3: uint64(SeekWhenceSet)}
	k.Dispatch(0, lseek)

	read := &Regs{SC0: SYS_READ, SC1: fd, SC2: 0x5000_2000, SC3: 8}
	k.Dispatch(0, read)
	if read.SC0 != 8 {
		t.Fatalf("read returned %d, want 8", read.SC0)
	}
	buf, _ := proc.Mem.Slice(0x5000_2000, 8)
	if string(buf) != "hi there" {
		t.Fatalf("got %q", buf)
	}
}

func TestOpenMissingWithoutCreatIsENOENT(t *testing.T) {
	k, sched := newTestKernel(t)
	pid := bootInit(t, k, sched)
	k.Processes.Lock()
	proc, _ := k.Processes.Get(pid)
	k.Processes.Unlock()
	proc.Mem.WriteString(0x5000_0000, "/nope.txt")

	open := &Regs{SC0: SYS_OPEN, SC1: 0x5000_0000, SC2: uint64(O_RDONLY), SC3: 0}
	k.Dispatch(0, open)
	if int64(open.SC0) != -int64(ENOENT) {
		t.Fatalf("got %d, want -ENOENT", int64(open.SC0))
	}
}

func TestCloseUnknownFDIsEBADF(t *testing.T) {
	k, sched := newTestKernel(t)
	bootInit(t, k, sched)

	close := &Regs{SC0: SYS_CLOSE, SC1: 99}
	k.Dispatch(0, close)
	if int64(close.SC0) != -int64(EBADF) {
		t.Fatalf("got %d, want -EBADF", int64(close.SC0))
	}
}

func TestForkChildSeesZeroReturn(t *testing.T) {
	k, sched := newTestKernel(t)
	bootInit(t, k, sched)

	fork := &Regs{SC0: SYS_FORK}
	k.Dispatch(0, fork)
	childPid := Pid(int32(fork.SC0))
	if childPid <= 1 {
		t.Fatalf("expected a new child pid, got %d", childPid)
	}

	k.Processes.Lock()
	child, ok := k.Processes.Get(childPid)
	k.Processes.Unlock()
	if !ok {
		t.Fatal("child missing from process table")
	}
	if child.TaskState.SC0 != 0 {
		t.Fatalf("child's saved SC0 should be 0, got %d", child.TaskState.SC0)
	}
}

func TestDescriptorTableMonotonicAllocation(t *testing.T) {
	d := NewDescriptorTable()
	if got := d.InsertNext(&FileDescriptor{}); got != 0 {
		t.Fatalf("first fd = %d, want 0", got)
	}
	if got := d.InsertNext(&FileDescriptor{}); got != 1 {
		t.Fatalf("second fd = %d, want 1", got)
	}
	d.Remove(0)
	// Monotonic-growth policy: freeing fd 0 does not make it available
	// again; the next allocation still advances past the current max.
	if got := d.InsertNext(&FileDescriptor{}); got != 2 {
		t.Fatalf("third fd = %d, want 2 (monotonic growth preserved)", got)
	}
}

func TestSetpgidRejectsUnrelatedProcess(t *testing.T) {
	k, sched := newTestKernel(t)
	bootInit(t, k, sched)

	other := &Process{EUID: 1000, Status: Status{Kind: Running}, FDs: NewDescriptorTable(), PageTable: NewFlatPageTable(), Mem: NewUserMemory(0, 1)}
	k.Processes.Lock()
	otherPid := k.Processes.Insert(other)
	k.Processes.Unlock()

	regs := &Regs{SC0: SYS_SETPGID, SC1: uint64(uint32(otherPid)), SC2: uint64(uint32(otherPid))}
	k.sysSetpgid(1, regs)
	if int64(regs.SC0) != -int64(ESRCH) {
		t.Fatalf("got %d, want -ESRCH", int64(regs.SC0))
	}
}

func TestSbrkRejectsNegativeAndUnalignedDeltas(t *testing.T) {
	k, sched := newTestKernel(t)
	bootInit(t, k, sched)

	neg := &Regs{SC0: SYS_SBRK, SC1: ^uint64(0)} // -1 as a machine word
	k.Dispatch(0, neg)
	if int64(neg.SC0) != -int64(EINVAL) {
		t.Fatalf("negative delta: got %d, want -EINVAL", int64(neg.SC0))
	}

	unaligned := &Regs{SC0: SYS_SBRK, SC1: 100}
	k.Dispatch(0, unaligned)
	if int64(unaligned.SC0) != -int64(EINVAL) {
		t.Fatalf("unaligned delta: got %d, want -EINVAL", int64(unaligned.SC0))
	}
}

func TestPowerctlRejectsNonInit(t *testing.T) {
	k, sched := newTestKernel(t)
	bootInit(t, k, sched)
	other := &Process{Status: Status{Kind: Running}, FDs: NewDescriptorTable(), PageTable: NewFlatPageTable(), Mem: NewUserMemory(0, 1)}
	k.Processes.Lock()
	otherPid := k.Processes.Insert(other)
	k.Processes.Unlock()
	sched.Bind(1, otherPid)

	regs := &Regs{SC0: SYS_POWERCTL, SC1: uint64(PowerHalt)}
	k.Dispatch(1, regs)
	if int64(regs.SC0) != -int64(EACCES) {
		t.Fatalf("got %d, want -EACCES", int64(regs.SC0))
	}
}

// TestExecveRebuildsAddressSpaceAndMarshalsArgv is a multi-step
// integration test (argv marshalling, address-space replacement, and the
// literal §4.3 layout all have to line up), so it follows the testify
// convention rather than the package's plain-assertion style.
func TestExecveRebuildsAddressSpaceAndMarshalsArgv(t *testing.T) {
	k, sched := newTestKernel(t)
	pid := bootInit(t, k, sched)
	k.Loader.(*FlatELFLoader).Register("/bin/hello", 0x4000_0000, 0x4100_0000)

	k.Processes.Lock()
	proc, _ := k.Processes.Get(pid)
	k.Processes.Unlock()
	proc.Mem.WriteString(0x5000_0000, "/bin/hello")

	argvAddr := uint64(0x5000_1000)
	argv := []string{"hello", "world"}
	off := argvAddr + 64 // room for the pointer table ahead of the strings
	ptrs := make([]uint64, 0, len(argv)+1)
	for _, s := range argv {
		proc.Mem.WriteString(off, s)
		ptrs = append(ptrs, off)
		off += uint64(len(s)) + 1
	}
	ptrs = append(ptrs, 0)
	for i, p := range ptrs {
		putLEUint64(proc.Mem, argvAddr+uint64(i)*8, p)
	}

	regs := &Regs{SC0: SYS_EXECVE, SC1: 0x5000_0000, SC2: argvAddr}
	k.Dispatch(0, regs)

	require.GreaterOrEqual(t, int64(regs.SC0), int64(0), "execve should succeed")
	require.Equal(t, uint64(0x4000_0000), regs.IP)
	require.Equal(t, uint64(execveStackPointer), regs.SP)

	k.Processes.Lock()
	proc, _ = k.Processes.Get(pid)
	k.Processes.Unlock()

	table, ok := proc.Mem.Slice(argvTableBase, 8)
	require.True(t, ok)
	firstArgAddr := leUint64(table)
	require.Equal(t, uint64(argvBlobBase), firstArgAddr)

	first, ok := proc.Mem.ReadCString(firstArgAddr)
	require.True(t, ok)
	require.Equal(t, "hello", first)
}

// TestExecveLoaderFailureSurfacesLoaderErrno is an integration test of the
// §4.3 "returns the loader's error code in slot 0" contract.
func TestExecveLoaderFailureSurfacesLoaderErrno(t *testing.T) {
	k, sched := newTestKernel(t)
	pid := bootInit(t, k, sched)

	k.Processes.Lock()
	proc, _ := k.Processes.Get(pid)
	k.Processes.Unlock()
	proc.Mem.WriteString(0x5000_0000, "/bin/missing")

	regs := &Regs{SC0: SYS_EXECVE, SC1: 0x5000_0000, SC2: 0x5000_1000}
	k.Dispatch(0, regs)
	require.Equal(t, -int64(ENOENT), int64(regs.SC0))
}

// TestDup2SurvivesOriginalClose exercises the §8
// dup2 round-trip property (dup2 then close(old) then read(new)).
func TestDup2SurvivesOriginalClose(t *testing.T) {
	k, sched := newTestKernel(t)
	pid := bootInit(t, k, sched)
	k.Processes.Lock()
	proc, _ := k.Processes.Get(pid)
	k.Processes.Unlock()
	proc.Mem.WriteString(0x5000_0000, "/hello.txt")

	open := &Regs{SC0: SYS_OPEN, SC1: 0x5000_0000, SC2: uint64(O_RDWR | O_CREAT), SC3: uint64(DefaultFilePerm)}
	k.Dispatch(0, open)
	require.GreaterOrEqual(t, int64(open.SC0), int64(0))
	oldFD := open.SC0

	proc.Mem.WriteString(0x5000_1000, "dup2 data")
	write := &Regs{SC0: SYS_WRITE, SC1: oldFD, SC2: 0x5000_1000, SC3: 9}
	k.Dispatch(0, write)
	require.Equal(t, int64(9), int64(write.SC0))

	dup2 := &Regs{SC0: SYS_DUP, SC1: oldFD, SC2: 10, SC3: 1}
	k.Dispatch(0, dup2)
	require.Equal(t, int64(10), int64(dup2.SC0))

	closeOld := &Regs{SC0: SYS_CLOSE, SC1: oldFD}
	k.Dispatch(0, closeOld)
	require.Equal(t, int64(0), int64(closeOld.SC0))

	lseek := &Regs{SC0: SYS_LSEEK, SC1: 10, SC2: 0, SC3: uint64(SeekWhenceSet)}
	k.Dispatch(0, lseek)

	read := &Regs{SC0: SYS_READ, SC1: 10, SC2: 0x5000_2000, SC3: 9}
	k.Dispatch(0, read)
	require.Equal(t, int64(9), int64(read.SC0))
	buf, _ := proc.Mem.Slice(0x5000_2000, 9)
	require.Equal(t, "dup2 data", string(buf))
}

// TestExitThenPollpidEncodesNormalExitWstatus drives the §8 fork→exit→wait
// scenario end to end through the real dispatcher: the child's exit status
// must come back out of pollpid encoded per EncodeWaitStatus, in the high
// byte, not as the raw status sysExit recorded.
func TestExitThenPollpidEncodesNormalExitWstatus(t *testing.T) {
	k, sched := newTestKernel(t)
	pid := bootInit(t, k, sched)

	fork := &Regs{SC0: SYS_FORK}
	k.Dispatch(0, fork)
	childPid := Pid(int32(fork.SC0))
	require.Greater(t, int32(childPid), int32(1))

	sched.Bind(0, childPid)
	exit := &Regs{SC0: SYS_EXIT, SC1: 7}
	k.Dispatch(0, exit)
	sched.Bind(0, pid)

	k.Processes.Lock()
	proc, _ := k.Processes.Get(pid)
	k.Processes.Unlock()

	const wstatusAddr = 0x5000_3000
	wait := &Regs{SC0: SYS_POLLPID, SC1: uint64(^uint32(0)), SC2: wstatusAddr}
	k.Dispatch(0, wait)
	require.Equal(t, int64(childPid), int64(int32(wait.SC0)))

	buf, ok := proc.Mem.Slice(wstatusAddr, 8)
	require.True(t, ok)
	require.Equal(t, EncodeWaitStatus(7), leUint64(buf))
	require.Equal(t, uint64(7<<8), leUint64(buf))
}

// TestKillThenPollpidEncodesSignalWstatus exercises the other §8 central
// scenario: a default-action kill(2) must terminate the child with Code
// carrying the negated signal number, and pollpid's wstatus must surface the
// signal in the low byte rather than the exit-code high byte.
func TestKillThenPollpidEncodesSignalWstatus(t *testing.T) {
	k, sched := newTestKernel(t)
	pid := bootInit(t, k, sched)

	fork := &Regs{SC0: SYS_FORK}
	k.Dispatch(0, fork)
	childPid := Pid(int32(fork.SC0))
	require.Greater(t, int32(childPid), int32(1))

	kill := &Regs{SC0: SYS_KILL, SC1: uint64(uint32(childPid)), SC2: 9}
	k.Dispatch(0, kill)
	require.Equal(t, int64(0), int64(kill.SC0))

	k.Processes.Lock()
	proc, _ := k.Processes.Get(pid)
	child, _ := k.Processes.Get(childPid)
	k.Processes.Unlock()
	require.Equal(t, int64(-9), child.Status.Code)

	const wstatusAddr = 0x5000_3000
	wait := &Regs{SC0: SYS_POLLPID, SC1: uint64(^uint32(0)), SC2: wstatusAddr}
	k.Dispatch(0, wait)
	require.Equal(t, int64(childPid), int64(int32(wait.SC0)))

	buf, ok := proc.Mem.Slice(wstatusAddr, 8)
	require.True(t, ok)
	require.Equal(t, EncodeWaitStatus(-9), leUint64(buf))
	require.Equal(t, uint64(9), leUint64(buf))
}

// TestPollpidReturnsZeroWhenNoChildReady exercises the "matching children
// exist but none are ready" branch of the §4.3 0/ECHILD split, distinct from
// the no-children-at-all ECHILD case.
func TestPollpidReturnsZeroWhenNoChildReady(t *testing.T) {
	k, sched := newTestKernel(t)
	pid := bootInit(t, k, sched)

	fork := &Regs{SC0: SYS_FORK}
	k.Dispatch(0, fork)
	require.Greater(t, int32(fork.SC0), int32(1))

	wait := &Regs{SC0: SYS_POLLPID, SC1: uint64(^uint32(0)), SC2: 0}
	k.Dispatch(0, wait)
	require.Equal(t, int64(0), int64(int32(wait.SC0)))

	_ = pid
}

// TestPollpidNoChildrenIsECHILD covers the other half of the split: a
// caller with no children at all sees -ECHILD, never 0.
func TestPollpidNoChildrenIsECHILD(t *testing.T) {
	k, sched := newTestKernel(t)
	bootInit(t, k, sched)

	wait := &Regs{SC0: SYS_POLLPID, SC1: uint64(^uint32(0)), SC2: 0}
	k.Dispatch(0, wait)
	require.Equal(t, -int64(ECHILD), int64(wait.SC0))
}

// TestDupCopiesCloseOnExec pins the §4.2 contract the powerctl review round
// fixed: a duplicated descriptor carries close_on_exec through unchanged;
// only execve's EvictCloseOnExec clears it.
func TestDupCopiesCloseOnExec(t *testing.T) {
	k, sched := newTestKernel(t)
	pid := bootInit(t, k, sched)
	k.Processes.Lock()
	proc, _ := k.Processes.Get(pid)
	k.Processes.Unlock()
	proc.Mem.WriteString(0x5000_0000, "/hello.txt")

	open := &Regs{SC0: SYS_OPEN, SC1: 0x5000_0000, SC2: uint64(O_RDWR | O_CREAT | O_CLOEXEC), SC3: uint64(DefaultFilePerm)}
	k.Dispatch(0, open)
	require.GreaterOrEqual(t, int64(open.SC0), int64(0))
	fd := open.SC0

	dup := &Regs{SC0: SYS_DUP, SC1: fd}
	k.Dispatch(0, dup)
	require.GreaterOrEqual(t, int64(dup.SC0), int64(0))

	rec, ok := proc.FDs.Get(int64(dup.SC0))
	require.True(t, ok)
	require.True(t, rec.CloseOnExec)
}

func TestUnknownSyscallReturnsENOSYS(t *testing.T) {
	k, sched := newTestKernel(t)
	bootInit(t, k, sched)

	regs := &Regs{SC0: 0xDEAD}
	k.Dispatch(0, regs)
	if int64(regs.SC0) != -int64(ENOSYS) {
		t.Fatalf("got %d, want -ENOSYS", int64(regs.SC0))
	}
}
