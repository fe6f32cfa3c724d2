package heap

import "testing"

func TestAllocFreeReuse(t *testing.T) {
	a := NewArena(256)
	p1 := a.Alloc(32)
	if p1 == nil {
		t.Fatal("expected allocation to succeed")
	}
	before := a.FreeBytes()
	a.Free(p1)
	if a.FreeBytes() <= before {
		t.Fatalf("expected free bytes to grow after Free, before=%d after=%d", before, a.FreeBytes())
	}
	p2 := a.Alloc(32)
	if p2 == nil {
		t.Fatal("expected second allocation to succeed")
	}
}

func TestAllocExhaustion(t *testing.T) {
	a := NewArena(64)
	if a.Alloc(64) == nil {
		t.Fatal("expected full-arena allocation to succeed")
	}
	if a.Alloc(1) != nil {
		t.Fatal("expected allocation to fail: arena exhausted")
	}
}

func TestDoubleFreePanics(t *testing.T) {
	a := NewArena(64)
	p := a.Alloc(16)
	a.Free(p)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	a.Free(p)
}
