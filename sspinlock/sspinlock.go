// Package sspinlock implements the test-and-set spinlock with exponential
// backoff used to guard the kernel's process-wide singletons.
//
// spec.md §5 specifies that FRAME_ALLOCATOR, PID_ALLOCATOR, PROCESS_MAP, the
// kernel address space and the scheduler are each guarded by such a lock. On
// a single hart contention is rare (the hart that holds the lock is, by
// construction, the only hart running), so the backoff exists mostly to keep
// the code honest about the locking discipline rather than for performance.
package sspinlock

import (
	"runtime"
	"sync/atomic"
)

// Lock_t is a spinlock with exponential backoff. The zero value is unlocked.
type Lock_t struct {
	held atomic.Bool
}

// Lock spins until the lock is acquired.
func (l *Lock_t) Lock() {
	backoff := 1
	for !l.held.CompareAndSwap(false, true) {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < 1<<10 {
			backoff <<= 1
		}
	}
}

// Unlock releases the lock. Unlocking an already-unlocked lock is a
// programming error and panics.
func (l *Lock_t) Unlock() {
	if !l.held.CompareAndSwap(true, false) {
		panic("sspinlock: unlock of unlocked lock")
	}
}

// TryLock attempts to acquire the lock without spinning.
func (l *Lock_t) TryLock() bool {
	return l.held.CompareAndSwap(false, true)
}
