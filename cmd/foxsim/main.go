// Command foxsim boots an in-process kernel.Kernel over a vfs.MemFS and
// drives it through a handful of scripted scenarios, standing in for real
// hardware so the dispatcher can be exercised from the command line.
package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TalonFox/zorroOS"
	"github.com/TalonFox/zorroOS/vfs"
)

var log = logrus.WithField("component", "foxsim")

// loggingConsole and loggingFramebuffer are the kernel.Console/
// kernel.Framebuffer collaborators foxkernel_powerctl drives (§4.5); a
// real build backs these with a UART and a linear framebuffer, this
// harness just logs the mute/unmute and banner calls so the scenario is
// observable.
type loggingConsole struct{}

func (loggingConsole) SetQuiet(quiet bool) {
	log.WithField("quiet", quiet).Info("console SetQuiet")
}

type loggingFramebuffer struct{}

func (loggingFramebuffer) DrawBanner(msg string) {
	log.WithField("msg", msg).Info("framebuffer DrawBanner")
}

func newKernel() *kernel.Kernel {
	fs := vfs.NewMemFS()
	sched := kernel.NewCooperativeScheduler()
	frames := kernel.NewBumpFrameAllocator(0x1000_0000)
	loader := kernel.NewFlatELFLoader()
	k := kernel.NewKernel(fs, sched, frames, loader, nil)
	k.Signals = kernel.NewInMemorySignalRouter(k.Processes)
	k.Console = loggingConsole{}
	k.FB = loggingFramebuffer{}

	init := &kernel.Process{
		CWD:       "/",
		Status:    kernel.Status{Kind: kernel.Running},
		PageTable: kernel.NewFlatPageTable(),
		Mem:       kernel.NewUserMemory(0x5000_0000, 1<<20),
		FDs:       kernel.NewDescriptorTable(),
	}
	k.Processes.Lock()
	k.Processes.InsertInit(init)
	k.Processes.Unlock()
	sched.Bind(0, 1)
	return k
}

func root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foxsim",
		Short: "Drive the syscall dispatcher through scripted scenarios",
	}
	cmd.AddCommand(scenarioOpenWriteRead())
	cmd.AddCommand(scenarioForkWait())
	cmd.AddCommand(scenarioSignalExit())
	cmd.AddCommand(scenarioPowerctl())
	return cmd
}

func scenarioOpenWriteRead() *cobra.Command {
	return &cobra.Command{
		Use:   "open-write-read",
		Short: "open a file, write to it, seek back, and read it again",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := newKernel()
			k.Processes.Lock()
			proc, _ := k.Processes.Get(1)
			k.Processes.Unlock()
			proc.Mem.WriteString(0x5000_0000, "/greeting.txt")

			open := &kernel.Regs{SC0: kernel.SYS_OPEN, SC1: 0x5000_0000, SC2: uint64(kernel.O_RDWR | kernel.O_CREAT), SC3: uint64(kernel.DefaultFilePerm)}
			k.Dispatch(0, open)
			if int64(open.SC0) < 0 {
				return fmt.Errorf("open failed: %d", int64(open.SC0))
			}
			fd := open.SC0
			log.WithField("fd", fd).Info("opened /greeting.txt")

			proc.Mem.WriteString(0x5000_1000, "hello from foxsim")
			write := &kernel.Regs{SC0: kernel.SYS_WRITE, SC1: fd, SC2: 0x5000_1000, SC3: 18}
			k.Dispatch(0, write)
			log.WithField("bytes", write.SC0).Info("wrote")

			lseek := &kernel.Regs{SC0: kernel.SYS_LSEEK, SC1: fd, SC3: uint64(kernel.SeekWhenceSet)}
			k.Dispatch(0, lseek)

			read := &kernel.Regs{SC0: kernel.SYS_READ, SC1: fd, SC2: 0x5000_2000, SC3: 18}
			k.Dispatch(0, read)
			buf, _ := proc.Mem.Slice(0x5000_2000, read.SC0)
			log.WithField("content", string(buf)).Info("read back")
			return nil
		},
	}
}

func scenarioForkWait() *cobra.Command {
	return &cobra.Command{
		Use:   "fork-wait",
		Short: "fork a child, have it exit(7), and reap it with pollpid",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := newKernel()
			sched := k.Scheduler.(*kernel.CooperativeScheduler)

			fork := &kernel.Regs{SC0: kernel.SYS_FORK}
			k.Dispatch(0, fork)
			child := kernel.Pid(int32(fork.SC0))
			log.WithField("child", child).Info("forked")

			// Hand the hart to the child so exit(7) runs through the real
			// sysExit path rather than poking Process.Status directly.
			sched.Bind(0, child)
			exit := &kernel.Regs{SC0: kernel.SYS_EXIT, SC1: 7}
			k.Dispatch(0, exit)
			sched.Bind(0, 1)

			k.Processes.Lock()
			proc, _ := k.Processes.Get(1)
			k.Processes.Unlock()
			const wstatusAddr = 0x5000_3000
			wait := &kernel.Regs{SC0: kernel.SYS_POLLPID, SC1: uint64(^uint32(0)), SC2: wstatusAddr}
			k.Dispatch(0, wait)
			wstatusBuf, _ := proc.Mem.Slice(wstatusAddr, 8)
			log.WithFields(logrus.Fields{"reaped": int32(wait.SC0), "wstatus": binary.LittleEndian.Uint64(wstatusBuf)}).Info("waited")
			return nil
		},
	}
}

func scenarioSignalExit() *cobra.Command {
	return &cobra.Command{
		Use:   "signal-exit",
		Short: "fork a child, kill it with signal 9, and observe the wstatus",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := newKernel()

			fork := &kernel.Regs{SC0: kernel.SYS_FORK}
			k.Dispatch(0, fork)
			child := kernel.Pid(int32(fork.SC0))
			log.WithField("child", child).Info("forked")

			kill := &kernel.Regs{SC0: kernel.SYS_KILL, SC1: uint64(uint32(child)), SC2: 9}
			k.Dispatch(0, kill)
			if int64(kill.SC0) < 0 {
				return fmt.Errorf("kill failed: %d", int64(kill.SC0))
			}

			k.Processes.Lock()
			proc, _ := k.Processes.Get(1)
			k.Processes.Unlock()
			const wstatusAddr = 0x5000_3000
			wait := &kernel.Regs{SC0: kernel.SYS_POLLPID, SC1: uint64(^uint32(0)), SC2: wstatusAddr}
			k.Dispatch(0, wait)
			wstatusBuf, _ := proc.Mem.Slice(wstatusAddr, 8)
			log.WithFields(logrus.Fields{"reaped": int32(wait.SC0), "wstatus": binary.LittleEndian.Uint64(wstatusBuf)}).Info("waited for signal-killed child")
			return nil
		},
	}
}

func scenarioPowerctl() *cobra.Command {
	return &cobra.Command{
		Use:   "powerctl",
		Short: "attempt a shutdown from init and from a non-init process",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := newKernel()
			ok := &kernel.Regs{SC0: kernel.SYS_POWERCTL, SC1: uint64(kernel.PowerShutdown)}
			k.Dispatch(0, ok)
			log.WithField("result", int64(ok.SC0)).Info("init shutdown request")

			other := &kernel.Process{Status: kernel.Status{Kind: kernel.Running}, FDs: kernel.NewDescriptorTable(), PageTable: kernel.NewFlatPageTable(), Mem: kernel.NewUserMemory(0, 1)}
			k.Processes.Lock()
			otherPid := k.Processes.Insert(other)
			k.Processes.Unlock()
			sched := k.Scheduler.(*kernel.CooperativeScheduler)
			sched.Bind(1, otherPid)

			denied := &kernel.Regs{SC0: kernel.SYS_POWERCTL, SC1: uint64(kernel.PowerShutdown)}
			k.Dispatch(1, denied)
			log.WithField("result", int64(denied.SC0)).Info("non-init shutdown request")
			return nil
		},
	}
}

func main() {
	if err := root().Execute(); err != nil {
		logrus.WithError(err).Error("foxsim failed")
		os.Exit(1)
	}
}
