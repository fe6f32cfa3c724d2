// Package process implements the process object graph and its lifecycle
// under fork/exec/exit/wait (spec.md §3, §4.6): a PID, a Runnable/Zombie
// state machine, an address space, a per-process TID allocator, a strong
// parent->children/threads ownership tree, and an event bus used to
// implement waitpid suspension.
//
// The global singletons spec.md §5 requires (FRAME_ALLOCATOR lives in
// physmem; PID_ALLOCATOR and PROCESS_MAP live here) are initialized once
// during boot via Init, the same "install the collaborator via a
// package-level hook" shape used by vmspace.SetSatpWriter and
// bundle.SetLookup.
package process

import (
	"fmt"
	"sync"

	"rvkernel/addr"
	"rvkernel/bundle"
	"rvkernel/heap"
	"rvkernel/idalloc"
	"rvkernel/memlayout"
	"rvkernel/pagetable"
	"rvkernel/physmem"
	"rvkernel/sspinlock"
	"rvkernel/thread"
	"rvkernel/trapframe"
	"rvkernel/vmspace"
)

// Status is a process's place in the Runnable -> Zombie state machine
// (spec.md §3: "There is no Runnable <- Zombie transition").
type Status int

const (
	Runnable Status = iota
	Zombie
)

func (s Status) String() string {
	if s == Zombie {
		return "zombie"
	}
	return "runnable"
}

var (
	arena           *physmem.Arena
	trampolineFrame addr.Frame
	kernelSpace     *vmspace.AddressSpace
	kernelStackBase addr.VirtAddr

	pidAlloc idalloc.Allocator

	mapLock    sspinlock.Lock_t
	processMap = map[int]*Process{}

	kernelHeap *heap.Arena
)

// SetKernelHeap installs the kernel's fixed, statically-reserved
// bookkeeping heap (spec.md §2's Heap component). Process uses it to hold
// small diagnostic records — a crashed thread's decoded fault — that must
// not come from the hosted Go heap, the same reasoning that motivates the
// heap package itself. Called once during boot, alongside Init.
func SetKernelHeap(a *heap.Arena) { kernelHeap = a }

// Init installs the boot-time collaborators every Process needs: the
// physical frame arena and shared trampoline frame (for building fresh
// address spaces), the kernel address space (for kernel_satp and for
// hosting per-process kernel stacks), and the base VA of the kernel stack
// area. Called once during boot, after the kernel address space exists.
func Init(a *physmem.Arena, tf addr.Frame, kSpace *vmspace.AddressSpace, kStackBase addr.VirtAddr) {
	arena = a
	trampolineFrame = tf
	kernelSpace = kSpace
	kernelStackBase = kStackBase
}

// Process is the top-level schedulable object (spec.md §3). Its mutex
// guards everything below pid, matching the teacher's embedded-mutex
// style (Accnt_t, Vm_t) rather than free functions taking explicit locks.
type Process struct {
	mu sync.Mutex

	pidHandle *idalloc.Handle
	status    Status
	exitCode  int

	space     *vmspace.AddressSpace
	stackBase addr.VirtAddr
	tids      idalloc.Allocator
	threads   []*thread.Thread

	kernelStackBottom addr.VirtAddr

	parent   *Process // weak: Go's GC traces the resulting cycle on its own
	children []*Process

	bus *EventBus

	faultDiag []byte // kernel-heap-backed, set by RecordFaultDiagnostic
}

// PID returns the process's id.
func (p *Process) PID() int { return p.pidHandle.ID() }

// Status returns the process's current state.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// ExitCode returns the recorded exit code, valid once Status is Zombie.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// MainThread returns the process's sole thread (spec.md §4.6: additional
// threads are never preserved across exec and are not created by fork).
func (p *Process) MainThread() *thread.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.threads) == 0 {
		return nil
	}
	return p.threads[0]
}

// Space returns the process's address space.
func (p *Process) Space() *vmspace.AddressSpace { return p.space }

// RecordFaultDiagnostic copies msg into the kernel heap and attaches it to
// the process, so a zombie's decoded-fault diagnostic (trap.DecodeFault)
// survives independently of the hosted Go heap. A nil kernel heap or an
// exhausted one just drops the diagnostic — it is forensic, never
// required for correctness.
func (p *Process) RecordFaultDiagnostic(msg string) {
	if kernelHeap == nil || msg == "" {
		return
	}
	buf := kernelHeap.Alloc(len(msg))
	if buf == nil {
		return
	}
	copy(buf, msg)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.faultDiag = buf
}

// FaultDiagnostic returns the recorded decoded-fault diagnostic, or "" if
// the process never crashed on an illegal instruction.
func (p *Process) FaultDiagnostic() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.faultDiag)
}

// Bus returns the process's own event bus: its children push
// ChildProcessQuit onto it when they exit, and its own waitpid calls
// subscribe to it for wakeups that concern ITS children (spec.md §4.8: "subscribe to parent's event bus").
func (p *Process) Bus() *EventBus { return p.bus }

// Lookup finds a registered process by pid (spec.md §3's PROCESS_MAP).
func Lookup(pid int) (*Process, bool) {
	mapLock.Lock()
	defer mapLock.Unlock()
	p, ok := processMap[pid]
	return p, ok
}

func register(p *Process) {
	mapLock.Lock()
	processMap[p.pidHandle.ID()] = p
	mapLock.Unlock()
}

func unregister(pid int) {
	mapLock.Lock()
	delete(processMap, pid)
	mapLock.Unlock()
}

func allocateKernelStack(pid int) addr.VirtAddr {
	bottom := memlayout.KernelStackBottom(kernelStackBase, pid)
	top := memlayout.KernelStackTop(kernelStackBase, pid)
	seg := vmspace.NewFramedSegment(addr.NewPageRange(bottom, uint64(top)-uint64(bottom)), pagetable.R|pagetable.W)
	if !kernelSpace.InsertSegment(seg) {
		panic("process: out of memory allocating a kernel stack")
	}
	return bottom
}

// New looks up binName in the bundle, builds its address space, allocates
// a PID, creates its main thread, and arranges the trap frame so the
// first enter_user starts execution at the ELF entry point on top of the
// new user stack (spec.md §4.6). A missing boot binary is a boot-ordering
// bug, not a recoverable condition: panic.
func New(binName string) *Process {
	data, ok := bundle.Find(binName)
	if !ok {
		panic(fmt.Sprintf("process: boot binary %q not found", binName))
	}

	space, stackBase, entry := vmspace.FromELF(arena, trampolineFrame, data)
	pidHandle := pidAlloc.Alloc()

	p := &Process{
		pidHandle: pidHandle,
		status:    Runnable,
		space:     space,
		stackBase: stackBase,
		bus:       &EventBus{},
	}
	p.kernelStackBottom = allocateKernelStack(pidHandle.ID())

	main := thread.New(&p.tids, space, stackBase, true)
	p.threads = []*thread.Thread{main}
	initTrapContext(main, entry, p.kernelStackBottom)

	register(p)
	return p
}

func initTrapContext(th *thread.Thread, entry addr.VirtAddr, kernelSp addr.VirtAddr) {
	tc := th.TrapContext()
	*tc = trapframe.TrapContext{}
	tc.UserSepc = uint64(entry)
	tc.SetSp(uint64(th.UserStackTop()))
	tc.KernelSatp = kernelSpace.PageTable().Satp()
	tc.KernelSp = uint64(kernelSp)
}

// Fork deep-clones the receiver's address space with COW, creates a
// single-threaded child process, and copies the parent's main-thread trap
// frame into the child's with a0 zeroed (spec.md §4.6, §9). The caller is
// responsible for scheduling the child's task with the executor — Process
// does not depend on it, to keep the ownership direction
// executor -> process -> thread acyclic.
func (p *Process) Fork() *Process {
	p.mu.Lock()
	defer p.mu.Unlock()

	pidHandle := pidAlloc.Alloc()
	childSpace := p.space.CloneCOW()

	child := &Process{
		pidHandle: pidHandle,
		status:    Runnable,
		space:     childSpace,
		stackBase: p.stackBase,
		parent:    p,
		bus:       &EventBus{},
	}
	child.kernelStackBottom = allocateKernelStack(pidHandle.ID())

	mainThread := thread.New(&child.tids, childSpace, child.stackBase, false)
	child.threads = []*thread.Thread{mainThread}

	parentTC := p.threads[0].TrapContext()
	childTC := mainThread.TrapContext()
	*childTC = *parentTC
	childTC.KernelSp = uint64(child.kernelStackBottom)
	childTC.KernelSatp = kernelSpace.PageTable().Satp()
	childTC.SetReturn(0) // spec.md §9: child's a0 is rewritten to 0

	p.children = append(p.children, child)
	register(child)
	return child
}

// Exec replaces the process's address space with a freshly loaded ELF,
// keeping its pid, parent link, child list, and main thread identity
// (spec.md §4.6). A missing binary is a syscall-level error, not a panic
// (spec.md §7): the caller (syscallapi's exec handler) is expected to
// surface the returned error as -1 in user a0.
//
// argv is accepted for signature parity with spec.md's exec(self,
// bin_name, argv); the spec does not define a calling convention for
// placing it in the new program's memory (see DESIGN.md), so it is not
// copied anywhere — callers needing it visible to the new program must do
// so themselves once a convention is chosen.
func (p *Process) Exec(binName string, argv []string) error {
	data, ok := bundle.Find(binName)
	if !ok {
		return bundle.MissingError(binName)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	oldSpace := p.space
	newSpace, stackBase, entry := vmspace.FromELF(arena, trampolineFrame, data)
	p.space = newSpace
	p.stackBase = stackBase

	main := p.threads[0]
	main.ReallocateResource(newSpace, stackBase)
	initTrapContext(main, entry, p.kernelStackBottom)

	oldSpace.Free()
	return nil
}

// Exit transitions the process to Zombie, reparents its children to init,
// drops its own thread resources, signals its parent's event bus, and
// removes itself from PROCESS_MAP (spec.md §4.6). The address space and
// pid are released later, when the parent reaps the zombie via Reap —
// until then the Process survives solely through the parent's strong
// children edge (spec.md §3's PROCESS_MAP invariant concerns
// lookup-ability, not liveness).
func (p *Process) Exit(code int) {
	p.mu.Lock()
	p.status = Zombie
	p.exitCode = code

	var reparent []*Process
	if p.pidHandle.ID() != 0 {
		reparent = p.children
		p.children = nil
	}
	threads := p.threads
	p.threads = nil
	parent := p.parent
	p.mu.Unlock()

	if len(reparent) > 0 {
		init, ok := Lookup(0)
		if !ok {
			panic("process: init process missing while reparenting")
		}
		// lock ordering: parent (init) before child (spec.md §5).
		init.mu.Lock()
		for _, c := range reparent {
			c.mu.Lock()
			c.parent = init
			c.mu.Unlock()
		}
		init.children = append(init.children, reparent...)
		init.mu.Unlock()
	}

	for _, th := range threads {
		th.Drop()
	}

	unregister(p.pidHandle.ID())

	if parent != nil {
		parent.bus.Push(ChildProcessQuit)
	}
}

// Reap looks for a Zombie child matching target (-1 or 0 means any),
// removes it from the children list, and returns its pid and exit code
// (spec.md §4.8's waitpid). The matched child's address space and pid are
// released here — this is its final drop.
func (p *Process) Reap(target int) (pid int, exitCode int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.children {
		c.mu.Lock()
		matches := target == -1 || target == 0 || c.pidHandle.ID() == target
		isZombie := c.status == Zombie
		cpid, cexit := c.pidHandle.ID(), c.exitCode
		c.mu.Unlock()

		if matches && isZombie {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			c.free()
			return cpid, cexit, true
		}
	}
	return 0, 0, false
}

// HasZombieChild reports whether any Zombie child currently matches
// target (-1 or 0 means any), without reaping it.
func (p *Process) HasZombieChild(target int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.children {
		c.mu.Lock()
		matches := target == -1 || target == 0 || c.pidHandle.ID() == target
		isZombie := c.status == Zombie
		c.mu.Unlock()
		if matches && isZombie {
			return true
		}
	}
	return false
}

// HasChild reports whether pid appears anywhere in p's child list,
// regardless of status — used to distinguish "no such child" from "child
// not yet exited" in the waitpid handler.
func (p *Process) HasChild(target int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if target == -1 || target == 0 {
		return len(p.children) > 0
	}
	for _, c := range p.children {
		if c.pidHandle.ID() == target {
			return true
		}
	}
	return false
}

func (p *Process) free() {
	if kernelHeap != nil && p.faultDiag != nil {
		kernelHeap.Free(p.faultDiag)
	}
	p.space.Free()
	p.pidHandle.Release()
}
