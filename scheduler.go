package kernel

import "sync"

// CooperativeScheduler is a small, single-process-table-aware reference
// implementation of Scheduler: each hart has exactly one runnable process
// bound to it by StartProcess, and Tick is a no-op round trip back to the
// caller (there is no timer interrupt to simulate preemption in this
// reference build, matching §1's "out of scope: preemption/timers").
// cmd/foxsim and the package tests use this to drive Dispatch end to end
// without a real hart array.
type CooperativeScheduler struct {
	mu      sync.Mutex
	current map[int]Pid
}

// NewCooperativeScheduler returns a scheduler with no harts bound yet.
func NewCooperativeScheduler() *CooperativeScheduler {
	return &CooperativeScheduler{current: map[int]Pid{}}
}

// Tick is the sole suspension point; this reference implementation simply
// returns, leaving whichever process called it as the hart's current
// process. A preemptive scheduler would instead save state and pick a
// different ready process here.
func (s *CooperativeScheduler) Tick(hart int, state *Regs) {}

// CurrentPID returns the process bound to hart.
func (s *CooperativeScheduler) CurrentPID(hart int) Pid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current[hart]
}

// StartProcess binds pid to the hart slot numbered by the count of harts
// already bound; ip and sp are not recorded (the child's TaskState already
// holds them). A real scheduler would instead enqueue pid as runnable.
func (s *CooperativeScheduler) StartProcess(pid Pid, ip, sp uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[len(s.current)] = pid
}

// Bind pins pid to hart directly, used by cmd/foxsim and tests to step
// through a specific process's syscalls one at a time.
func (s *CooperativeScheduler) Bind(hart int, pid Pid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[hart] = pid
}
