// Package executor implements the cooperative single-hart task executor
// (spec.md §4.7): a pluggable FIFO-scheduled runnable queue and a
// suspend/resume primitive for the one task per user thread.
//
// The teacher has no async runtime of its own (biscuit threads user code
// synchronously per syscall); rvkernel's executor is grounded on spec.md
// §4.7/§5's own description of a future-polling loop, implemented here as
// a goroutine-per-task handshake over a pair of unbuffered channels
// instead of a hand-rolled poll/Waker state machine — the idiomatic Go
// way to express "run this logical thread of control until it next
// suspends, then give control back," which is exactly what polling a
// future once does. Exactly one task's goroutine is ever unblocked at a
// time, preserving the spec's "kernel code between polls runs to
// completion" guarantee even though Go has real OS threads underneath.
package executor

import "rvkernel/sspinlock"

// Scheduler is pluggable (spec.md §4.7): schedule a runnable task, pop the
// next one. The default FIFO implementation is the only one rvkernel
// ships, but nothing below depends on it being the only one.
type Scheduler interface {
	Schedule(t *Task)
	Next() (*Task, bool)
}

// FIFO is a single queue protected by a spinlock (spec.md §4.7, §5).
type FIFO struct {
	mu sspinlock.Lock_t
	q  []*Task
}

func (s *FIFO) Schedule(t *Task) {
	s.mu.Lock()
	s.q = append(s.q, t)
	s.mu.Unlock()
}

func (s *FIFO) Next() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.q) == 0 {
		return nil, false
	}
	t := s.q[0]
	s.q = s.q[1:]
	return t, true
}

// Yielder is the suspension interface a task body is given (spec.md §4.7,
// §5's two suspension shapes).
type Yielder interface {
	// Yield is the two-phase yield_now primitive: the task suspends and
	// is handed back to RunUntilComplete as "not yet finished", to be
	// rescheduled at the tail by the run loop (spec.md §4.7, §8's
	// "exactly k FIFO rotations" law).
	Yield()

	// Await suspends the task without rescheduling it; subscribe is
	// called synchronously with a wake closure that, when invoked later
	// (e.g. from EventBus.Push), reschedules the task at the tail
	// (spec.md §5: "A task woken by EventBus::push is enqueued at the
	// tail").
	Await(subscribe func(wake func()))
}

type signal struct {
	finished  bool
	suspended bool
}

// Task is one spawned body, wrapping a goroutine that is blocked except
// for the instant the driver resumes it.
type Task struct {
	toTask   chan struct{}
	fromTask chan signal
}

type taskYielder struct {
	t     *Task
	sched Scheduler
}

func (y taskYielder) Yield() {
	y.t.fromTask <- signal{}
	<-y.t.toTask
}

func (y taskYielder) Await(subscribe func(wake func())) {
	wake := func() { y.sched.Schedule(y.t) }
	subscribe(wake)
	y.t.fromTask <- signal{suspended: true}
	<-y.t.toTask
}

// Spawn starts body in its own goroutine (blocked until first driven) and
// schedules it once, returning the detached Task handle (spec.md §4.7:
// "spawn(f) returns a (runnable, task) pair where the task is detached").
func Spawn(sched Scheduler, body func(y Yielder)) *Task {
	t := &Task{toTask: make(chan struct{}), fromTask: make(chan signal)}
	y := taskYielder{t: t, sched: sched}
	go func() {
		<-t.toTask
		body(y)
		t.fromTask <- signal{finished: true}
	}()
	sched.Schedule(t)
	return t
}

// drive resumes the task until its next suspension point or completion.
func (t *Task) drive() signal {
	t.toTask <- struct{}{}
	return <-t.fromTask
}

// RunUntilComplete is the main loop (spec.md §4.7): pop one runnable, run
// it to its next suspension point, and — unless it finished or suspended
// on an event — reschedule it at the tail. Returns once the queue is
// empty (causing the caller to shut down, spec.md §2).
func RunUntilComplete(sched Scheduler) {
	for {
		t, ok := sched.Next()
		if !ok {
			return
		}
		sig := t.drive()
		if sig.finished || sig.suspended {
			continue
		}
		sched.Schedule(t)
	}
}
