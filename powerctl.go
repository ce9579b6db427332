package kernel

// sysPowerctl implements foxkernel_powerctl (§4.5). Only pid 1 (init) may
// invoke it; any other caller sees EACCES. An unrecognized cookie is
// EINVAL. HALT unmutes the console (so the halt log line is visible);
// SHUTDOWN mutes it and additionally draws a banner on the framebuffer
// collaborator, if one is wired — matching original_source's differing
// treatment of the two cookies.
func (k *Kernel) sysPowerctl(pid Pid, r *Regs) {
	if pid > 1 {
		r.SetError(EACCES)
		return
	}
	cookie := uint32(r.SC1)
	switch cookie {
	case PowerHalt:
		if k.Console != nil {
			k.Console.SetQuiet(false)
		}
		r.SetReturn(0)
	case PowerShutdown:
		if k.Console != nil {
			k.Console.SetQuiet(true)
		}
		if k.FB != nil {
			k.FB.DrawBanner("It is now safe to turn off your computer")
		}
		r.SetReturn(0)
	default:
		r.SetError(EINVAL)
	}
}
