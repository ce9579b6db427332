package kernel

// sysSbrk implements SYS_SBRK (§4.4): positive, page-aligned deltas grow
// the heap by allocating and mapping fresh frames; any negative delta is
// rejected outright (shrinking is not supported); the prior break is
// returned on success.
func (k *Kernel) sysSbrk(pid Pid, r *Regs) {
	k.Processes.Lock()
	proc, ok := k.Processes.Get(pid)
	if !ok {
		k.Processes.Unlock()
		panic("kernel: current pid not found in process table")
	}
	k.Processes.Unlock()

	delta := int64(r.SC1)
	if delta < 0 {
		r.SetError(EINVAL)
		return
	}
	if delta%PageSize != 0 {
		r.SetError(EINVAL)
		return
	}

	proc.LockHeap()
	defer proc.UnlockHeap()

	oldBreak := proc.HeapBase + proc.HeapLength
	if delta == 0 {
		r.SetReturn(oldBreak)
		return
	}

	phys, err := k.Frames.Allocate(uintptr(delta))
	if err != nil {
		r.SetError(ENOMEM)
		return
	}
	if err := proc.PageTable.Map(uintptr(oldBreak), uintptr(delta), true, false); err != nil {
		r.SetError(ENOMEM)
		return
	}
	_ = phys
	proc.Mem.Grow(int(oldBreak-proc.Mem.Base()) + int(delta))
	proc.HeapLength += uint64(delta)
	r.SetReturn(oldBreak)
}
