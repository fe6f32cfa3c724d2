package executor

import (
	"rvkernel/addr"
	"rvkernel/platform"
	"rvkernel/process"
	"rvkernel/syscallapi"
	"rvkernel/thread"
	"rvkernel/timer"
	"rvkernel/trampoline"
	"rvkernel/trap"
)

// SpawnThreadTask spawns the infinite per-thread task loop spec.md §4.7
// describes: enter user mode, read the trap cause, dispatch (syscall or
// fault policy), and act on the resulting ControlFlow. The task exits
// (its goroutine returns, letting RunUntilComplete's queue drain one
// entry) once the thread calls exit or dies of an unhandled fault.
func SpawnThreadTask(sched Scheduler, tr trampoline.Trampoline, proc *process.Process, th *thread.Thread, plat platform.Platform) *Task {
	return Spawn(sched, func(y Yielder) {
		for {
			tc := th.TrapContext()
			tr.EnterUser(tc, th.Satp())
			scause, stval := tr.ReadTrapCause()

			var flow trap.ControlFlow
			var code int
			exitedAlready := false

			if scause == trampoline.CauseUserEnvCall {
				tc.AdvancePC()
				sc := syscallapi.New(proc, th, plat, y)
				flow, code = sc.Execute()
				exitedAlready = flow == trap.Exit
			} else {
				if scause == trampoline.CauseSupervisorTimer {
					timer.SetTrigger()
				}
				flow, code = trap.Classify(scause, stval, func(va uint64) bool {
					return proc.Space().HandleCOWFault(addr.VirtAddr(va))
				})
				if scause == trampoline.CauseIllegalInstruction {
					proc.RecordFaultDiagnostic(trap.DecodeFault(proc.Space(), tc.UserSepc))
				}
			}

			switch flow {
			case trap.Continue:
				continue
			case trap.Yield:
				y.Yield()
			case trap.Exit:
				if !exitedAlready {
					proc.Exit(code)
				}
				return
			}
		}
	})
}
