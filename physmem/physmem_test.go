package physmem

import (
	"testing"

	"rvkernel/addr"
)

func newTestArena(t *testing.T, pages uint64) *Arena {
	t.Helper()
	return NewArena(0, pages*addr.PageSize)
}

func TestAllocateDeallocateFreeListFirst(t *testing.T) {
	a := newTestArena(t, 4)
	f0, ok := a.Allocate()
	if !ok {
		t.Fatal("expected allocation to succeed")
	}
	a.Deallocate(f0)
	f1, ok := a.Allocate()
	if !ok || f1 != f0 {
		t.Fatalf("expected free list to return frame %d, got %d", f0, f1)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	a := newTestArena(t, 2)
	if _, ok := a.Allocate(); !ok {
		t.Fatal("expected first allocation to succeed")
	}
	if _, ok := a.Allocate(); !ok {
		t.Fatal("expected second allocation to succeed")
	}
	if _, ok := a.Allocate(); ok {
		t.Fatal("expected third allocation to fail: arena exhausted")
	}
}

func TestDoubleFreePanics(t *testing.T) {
	a := newTestArena(t, 2)
	f, _ := a.Allocate()
	a.Deallocate(f)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	a.Deallocate(f)
}

func TestFreeOfUnallocatedPanics(t *testing.T) {
	a := newTestArena(t, 2)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on free of unallocated frame")
		}
	}()
	a.Deallocate(1)
}

func TestFrameTrackerZeroesAndReleases(t *testing.T) {
	a := newTestArena(t, 2)
	tr, ok := NewFrameTracker(a)
	if !ok {
		t.Fatal("expected tracker allocation to succeed")
	}
	b := tr.Bytes()
	for i, v := range b {
		if v != 0 {
			t.Fatalf("expected zeroed frame, byte %d = %d", i, v)
		}
	}
	b[0] = 0xAB
	if a.Len() != 1 {
		t.Fatalf("expected 1 live frame, got %d", a.Len())
	}
	tr.Release()
	if a.Len() != 0 {
		t.Fatalf("expected 0 live frames after release, got %d", a.Len())
	}
}

func TestFrameTrackerCloneSharesUntilLastRelease(t *testing.T) {
	a := newTestArena(t, 2)
	tr, _ := NewFrameTracker(a)
	clone := tr.Clone()
	if tr.Refcount() != 2 {
		t.Fatalf("expected refcount 2 after clone, got %d", tr.Refcount())
	}
	tr.Release()
	if a.Len() != 1 {
		t.Fatalf("frame should still be live while clone holds it, got %d", a.Len())
	}
	clone.Release()
	if a.Len() != 0 {
		t.Fatalf("expected frame freed after last release, got %d", a.Len())
	}
}

func TestSnapshotProfileNonEmpty(t *testing.T) {
	a := newTestArena(t, 2)
	tr, _ := NewFrameTracker(a)
	defer tr.Release()
	data, err := a.SnapshotProfile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty gzip profile")
	}
}
