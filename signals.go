package kernel

// InMemorySignalRouter is a reference SignalRouter: kill(2) is delivered
// by copying the target's task state into SigState and redirecting its
// instruction pointer to the registered handler, to be restored by a
// later sigreturn (§3/§4.3). It operates directly on the same
// ProcessTable the dispatcher uses, so it must be constructed with one.
type InMemorySignalRouter struct {
	Processes *ProcessTable
}

// NewInMemorySignalRouter returns a router bound to table.
func NewInMemorySignalRouter(table *ProcessTable) *InMemorySignalRouter {
	return &InMemorySignalRouter{Processes: table}
}

// Send implements SignalRouter.Send.
func (s *InMemorySignalRouter) Send(pid Pid, sig uint8) Errno {
	if sig == 0 || int(sig) >= 24 {
		return EINVAL
	}
	s.Processes.Lock()
	defer s.Processes.Unlock()
	target, ok := s.Processes.Get(pid)
	if !ok {
		return ESRCH
	}
	handler := target.Signals[sig]
	if handler == 0 {
		// No handler installed: the default action is termination.
		// Code's sign carries the distinction (§3): negative means signal
		// termination, so the raw signal number is negated here.
		target.Status = Status{Kind: Finishing, Code: -int64(sig)}
		return ENONE
	}
	target.SigState = target.TaskState
	target.TaskState.IP = uint64(handler)
	return ENONE
}
