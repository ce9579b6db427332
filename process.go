package kernel

import "sync"

// Pid identifies a process; per §3 it is signed and >= 1 once allocated.
type Pid int32

// StatusKind enumerates the process lifecycle states from §3.
type StatusKind int

const (
	Running StatusKind = iota
	Stopped
	Finishing
	Finished
)

// Status is a process's lifecycle state; Code is meaningful only for
// Finishing/Finished, and follows the §3 encoding (negative: signal
// termination, non-negative: normal exit).
type Status struct {
	Kind StatusKind
	Code int64
}

// Regs is the trapped register snapshot the dispatcher operates on: slot 0
// is the syscall number on entry and the return value on exit, slots 1-3
// are argument words (§6). IP/SP round out the task state needed to resume
// or start a process.
type Regs struct {
	SC0, SC1, SC2, SC3 uint64
	IP, SP             uint64
}

// SetReturn writes a non-negative success value into slot 0.
func (r *Regs) SetReturn(v uint64) { r.SC0 = v }

// SetError writes -errno (reinterpreted as unsigned) into slot 0, per §4.1.
func (r *Regs) SetError(e Errno) { r.SC0 = e.Negate() }

// Process is the kernel's per-task record, per §3.
type Process struct {
	ID       Pid
	ParentID Pid
	PGID     int32

	RUID, EUID int32
	RGID, EGID int32
	Umask      int32

	CWD string

	Status Status

	TaskState Regs // resumed/saved register snapshot
	SigState  Regs // saved state used during signal delivery (IP==0: none pending)

	PageTable PageTable
	Mem       *UserMemory

	heapMu     sync.Mutex
	HeapBase   uint64
	HeapLength uint64

	// Children holds pid keys, never direct Process handles, to avoid the
	// pid<->process reference cycle described in §9.
	Children []Pid

	FDs *DescriptorTable

	// Signals holds handler addresses indexed 1..=23; index 0 is unused.
	Signals [24]uintptr
}

// LockHeap/UnlockHeap guard HeapLength per the "process-table first, then
// heap_length" lock order in §5.
func (p *Process) LockHeap()   { p.heapMu.Lock() }
func (p *Process) UnlockHeap() { p.heapMu.Unlock() }

// ProcessTable is the global pid->Process map, protected by a single
// coarse mutex per §3/§5.
type ProcessTable struct {
	mu      sync.Mutex
	procs   map[Pid]*Process
	nextPid Pid
}

// NewProcessTable returns an empty table; pid allocation starts at 1 (the
// init process), matching "pid 1 (init)" from §3.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{procs: map[Pid]*Process{}, nextPid: 1}
}

// Lock/Unlock expose the coarse mutex to the dispatcher, which holds it for
// a handler's duration per §4.1/§5.
func (t *ProcessTable) Lock()   { t.mu.Lock() }
func (t *ProcessTable) Unlock() { t.mu.Unlock() }

// Get returns the process for pid; callers must hold the table lock.
func (t *ProcessTable) Get(pid Pid) (*Process, bool) {
	p, ok := t.procs[pid]
	return p, ok
}

// Insert adds a freshly created process, allocating its pid. Callers must
// hold the table lock.
func (t *ProcessTable) Insert(p *Process) Pid {
	pid := t.nextPid
	t.nextPid++
	p.ID = pid
	t.procs[pid] = p
	return pid
}

// InsertInit registers the pre-existing init process (pid 1) built by the
// boot sequence. Callers must hold the table lock.
func (t *ProcessTable) InsertInit(p *Process) {
	p.ID = 1
	t.procs[1] = p
	if t.nextPid <= 1 {
		t.nextPid = 2
	}
}

// Cleanup removes a FINISHED child from the table, per §3's "Lifecycles"
// (CleanupProcess invoked by the reaping parent). Callers must hold the
// table lock.
func (t *ProcessTable) Cleanup(pid Pid) {
	delete(t.procs, pid)
}

// Fork clones parent into a new Process per §3's Lifecycles: the
// descriptor table is deep-copied by value (sharing node handles), the
// heap range and page table are copied per architecture policy (delegated
// to PageTable.Clone), the signal vector is preserved, and credentials are
// inherited. The child's TaskState.SC0 is zeroed so that it observes 0 on
// return, and it starts with no children of its own.
func Fork(parent *Process) *Process {
	child := &Process{
		ParentID: parent.ID,
		PGID:     parent.PGID,
		RUID:     parent.RUID, EUID: parent.EUID,
		RGID: parent.RGID, EGID: parent.EGID,
		Umask:     parent.Umask,
		CWD:       parent.CWD,
		Status:    Status{Kind: Running},
		TaskState: parent.TaskState,
		PageTable: parent.PageTable.Clone(),
		Mem:       parent.Mem.Clone(),
		Signals:   parent.Signals,
		FDs:       parent.FDs.Clone(),
	}
	child.TaskState.SC0 = 0
	parent.LockHeap()
	child.HeapBase = parent.HeapBase
	child.HeapLength = parent.HeapLength
	parent.UnlockHeap()
	return child
}
