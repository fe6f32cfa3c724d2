package pagetable

import (
	"testing"

	"rvkernel/addr"
	"rvkernel/physmem"
)

func newTestTable(t *testing.T) (*PageTable, *physmem.Arena) {
	t.Helper()
	a := physmem.NewArena(0, 4096*addr.PageSize)
	pt, ok := New(a)
	if !ok {
		t.Fatal("expected table allocation to succeed")
	}
	return pt, a
}

func TestMapTranslateUnmap(t *testing.T) {
	pt, a := newTestTable(t)
	f, _ := a.Allocate()
	p := addr.NewVirtAddr(123 * addr.PageSize).Page()

	pt.Map(p, f, R|W|U)
	e, ok := pt.Translate(p)
	if !ok {
		t.Fatal("expected translate to find mapping")
	}
	if e.Frame() != f {
		t.Fatalf("expected frame %d, got %d", f, e.Frame())
	}
	if !e.Has(R) || !e.Has(W) || !e.Has(U) || !e.Valid() {
		t.Fatalf("expected R|W|U|V flags, got %v", e.Flags())
	}

	pt.Unmap(p)
	if _, ok := pt.Translate(p); ok {
		t.Fatal("expected translate to fail after unmap")
	}
}

func TestMapAlreadyMappedPanics(t *testing.T) {
	pt, a := newTestTable(t)
	f, _ := a.Allocate()
	p := addr.NewVirtAddr(addr.PageSize).Page()
	pt.Map(p, f, R)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic mapping an already-mapped page")
		}
	}()
	pt.Map(p, f, R)
}

func TestCOWAndWMutuallyExclusive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic constructing PTE with COW and W both set")
		}
	}()
	NewPTE(0, W|COW)
}

func TestHighPageMapsAndDoesNotAliasLowPages(t *testing.T) {
	pt, a := newTestTable(t)
	trampolineVA := addr.VirtAddr((uint64(1)<<addr.VaWidth - addr.PageSize))
	trampolinePage := trampolineVA.Page()
	lowPage := addr.NewVirtAddr(0).Page()

	f1, _ := a.Allocate()
	f2, _ := a.Allocate()
	pt.Map(trampolinePage, f1, R|X)
	pt.Map(lowPage, f2, R|W|U)

	e1, ok := pt.Translate(trampolinePage)
	if !ok || e1.Frame() != f1 {
		t.Fatal("expected trampoline mapping to succeed independently")
	}
	e2, ok := pt.Translate(lowPage)
	if !ok || e2.Frame() != f2 {
		t.Fatal("expected low page mapping to survive independently")
	}
}

func TestFromSatpSharesUnderlyingTables(t *testing.T) {
	pt, a := newTestTable(t)
	f, _ := a.Allocate()
	p := addr.NewVirtAddr(7 * addr.PageSize).Page()
	pt.Map(p, f, R)

	view := FromSatp(a, pt.Satp())
	e, ok := view.Translate(p)
	if !ok || e.Frame() != f {
		t.Fatal("expected FromSatp walker to observe the same mapping")
	}
}
