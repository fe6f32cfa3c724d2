// Package syscallapi implements the id-keyed system-call dispatch table
// (spec.md §4.8): read, write, exit, sched_yield, get_time, fork, exec,
// waitpid.
//
// SystemCall takes explicit *process.Process and *thread.Thread fields
// rather than having Thread carry a weak back-pointer to its owning
// Process: package thread intentionally has no process import (it would
// create an import cycle, since process already imports thread), so the
// conceptual "weak<process>" spec.md §3 gives Thread is supplied here by
// the caller that already holds both (the executor's per-thread task
// loop), matching how Process.Fork documents the same caller-supplies-
// context split for task spawning.
package syscallapi

import (
	"rvkernel/addr"
	"rvkernel/platform"
	"rvkernel/process"
	"rvkernel/thread"
	"rvkernel/timer"
	"rvkernel/trap"
	"rvkernel/trapframe"
)

// Syscall ids (spec.md §4.8's table).
const (
	Read       = 63
	Write      = 64
	Exit       = 93
	SchedYield = 128
	GetTime    = 169
	Fork       = 220
	Exec       = 221
	Waitpid    = 260
)

// errNegOne is the syscall-level error return (spec.md §7: "-1 in user
// a0, no errno global").
const errNegOne = ^uint64(0) // two's-complement -1

// Yielder is the subset of executor.Yielder the read and waitpid handlers
// need to suspend (spec.md §5's "read" and "waitpid" suspension points).
// Declared locally rather than imported from package executor, since
// executor depends on syscallapi to dispatch UserEnvCall traps — package
// executor's Yielder interface satisfies this one structurally.
type Yielder interface {
	Yield()
	Await(subscribe func(wake func()))
}

// Spawner schedules a newly created process's main-thread task with the
// executor. Installed once during boot, the same package-level hook shape
// as vmspace.SetSatpWriter and bundle.SetLookup — syscallapi cannot import
// package executor directly without an import cycle (executor -> thread
// task loop -> syscallapi).
type Spawner func(p *process.Process)

var spawn Spawner

// SetSpawner installs the hook the fork handler uses to schedule a
// forked child's task.
func SetSpawner(s Spawner) { spawn = s }

// SystemCall wraps one UserEnvCall trap (spec.md §4.8).
type SystemCall struct {
	proc *process.Process
	th   *thread.Thread
	plat platform.Platform
	y    Yielder
}

// New builds a SystemCall for one trapped syscall. The caller (the
// executor's per-thread task loop) must have already advanced user_sepc
// past the 4-byte ecall instruction before calling Execute (spec.md
// §4.7 step 3 and §4.8 both describe this advance; rvkernel performs it
// exactly once, in the task loop, to avoid double-advancing — see
// DESIGN.md).
func New(proc *process.Process, th *thread.Thread, plat platform.Platform, y Yielder) *SystemCall {
	return &SystemCall{proc: proc, th: th, plat: plat, y: y}
}

// Execute reads id=a7, args=a0..a2 from the thread's trap context and
// dispatches (spec.md §4.8). On Continue/Yield the 64-bit return value
// has already been written into user a0; on Exit, a0 is irrelevant
// (spec.md §4.8's "return value convention").
func (sc *SystemCall) Execute() (trap.ControlFlow, int) {
	tc := sc.th.TrapContext()
	id := tc.SyscallID()
	args := tc.SyscallArgs()

	switch id {
	case Read:
		return sc.read(tc, args)
	case Write:
		return sc.write(tc, args)
	case Exit:
		return sc.exit(tc, args)
	case SchedYield:
		tc.SetReturn(0)
		return trap.Yield, 0
	case GetTime:
		tc.SetReturn(timer.GetTime())
		return trap.Continue, 0
	case Fork:
		return sc.fork(tc)
	case Exec:
		return sc.exec(tc, args)
	case Waitpid:
		return sc.waitpid(tc, args)
	default:
		panic("syscallapi: unknown syscall id (userland/kernel ABI mismatch)")
	}
}

func (sc *SystemCall) read(tc *trapframe.TrapContext, args [3]uint64) (trap.ControlFlow, int) {
	fd, bufVA := args[0], args[1]
	if fd != 0 {
		tc.SetReturn(errNegOne)
		return trap.Continue, 0
	}
	for {
		c := sc.plat.ConsoleGetchar()
		if c >= 0 {
			var b [1]byte
			b[0] = byte(c)
			if err := sc.proc.Space().CopyOut(addr.VirtAddr(bufVA), b[:]); err != nil {
				tc.SetReturn(errNegOne)
				return trap.Continue, 0
			}
			tc.SetReturn(1)
			return trap.Continue, 0
		}
		sc.y.Yield()
	}
}

func (sc *SystemCall) write(tc *trapframe.TrapContext, args [3]uint64) (trap.ControlFlow, int) {
	fd, bufVA, length := args[0], args[1], args[2]
	if fd != 1 {
		tc.SetReturn(errNegOne)
		return trap.Continue, 0
	}
	data := make([]byte, length)
	if err := sc.proc.Space().CopyIn(addr.VirtAddr(bufVA), data); err != nil {
		tc.SetReturn(errNegOne)
		return trap.Continue, 0
	}
	for _, b := range data {
		sc.plat.ConsolePutchar(b)
	}
	tc.SetReturn(length)
	return trap.Continue, 0
}

func (sc *SystemCall) exit(tc *trapframe.TrapContext, args [3]uint64) (trap.ControlFlow, int) {
	code := int(int64(args[0]))
	sc.proc.Exit(code)
	return trap.Exit, code
}

func (sc *SystemCall) fork(tc *trapframe.TrapContext) (trap.ControlFlow, int) {
	child := sc.proc.Fork()
	if spawn != nil {
		spawn(child)
	}
	tc.SetReturn(uint64(child.PID()))
	return trap.Continue, 0
}

func (sc *SystemCall) exec(tc *trapframe.TrapContext, args [3]uint64) (trap.ControlFlow, int) {
	name, err := sc.proc.Space().CopyCString(addr.VirtAddr(args[0]), 256)
	if err != nil {
		tc.SetReturn(errNegOne)
		return trap.Continue, 0
	}
	if err := sc.proc.Exec(name, nil); err != nil {
		tc.SetReturn(errNegOne)
		return trap.Continue, 0
	}
	return trap.Continue, 0
}

func (sc *SystemCall) waitpid(tc *trapframe.TrapContext, args [3]uint64) (trap.ControlFlow, int) {
	target := int(int64(args[0]))
	codeVA := args[1]

	for {
		if pid, code, ok := sc.proc.Reap(target); ok {
			var b [4]byte
			u := uint32(code)
			b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
			if codeVA != 0 {
				sc.proc.Space().CopyOut(addr.VirtAddr(codeVA), b[:])
			}
			tc.SetReturn(uint64(pid))
			return trap.Continue, 0
		}
		if !sc.proc.HasChild(target) {
			tc.SetReturn(errNegOne)
			return trap.Continue, 0
		}
		sc.y.Await(func(wake func()) { sc.proc.Bus().Subscribe(wake) })
		sc.proc.Bus().Clear(process.ChildProcessQuit)
	}
}
