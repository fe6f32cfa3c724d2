package vmspace

import (
	"testing"

	"rvkernel/addr"
	"rvkernel/memlayout"
	"rvkernel/pagetable"
	"rvkernel/physmem"
)

func newTestArena(t *testing.T) *physmem.Arena {
	t.Helper()
	return physmem.NewArena(0, 8192*addr.PageSize)
}

func newTrampolineFrame(t *testing.T, a *physmem.Arena) addr.Frame {
	t.Helper()
	f, ok := a.Allocate()
	if !ok {
		t.Fatal("expected trampoline frame allocation to succeed")
	}
	return f
}

func TestFromELFRejectsBadMagic(t *testing.T) {
	a := newTestArena(t)
	tf := newTrampolineFrame(t, a)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-ELF buffer")
		}
	}()
	FromELF(a, tf, []byte("not an elf"))
}

func TestFromELFLoadsSegmentAndEntry(t *testing.T) {
	a := newTestArena(t)
	tf := newTrampolineFrame(t, a)
	const vaddr = 0x1000
	body := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	bin := buildMinimalELF(vaddr, 5 /* PF_R|PF_X */, body)

	as, stackBase, entry := FromELF(a, tf, bin)
	if uint64(entry) != vaddr {
		t.Fatalf("expected entry %#x, got %#x", uint64(vaddr), uint64(entry))
	}
	if uint64(stackBase) <= vaddr {
		t.Fatalf("expected stack base above loaded segment, got %#x", uint64(stackBase))
	}

	got, err := as.Translate(addr.NewVirtAddr(vaddr), false)
	if err != nil {
		t.Fatalf("unexpected translate error: %v", err)
	}
	for i, b := range body {
		if got[i] != b {
			t.Fatalf("byte %d: want %#x got %#x", i, b, got[i])
		}
	}
}

func TestCloneCOWSharesFramesAndMarksReadOnly(t *testing.T) {
	a := newTestArena(t)
	tf := newTrampolineFrame(t, a)
	bin := buildMinimalELF(0x2000, 6 /* PF_R|PF_W */, []byte{1, 2, 3, 4})
	parent, _, _ := FromELF(a, tf, bin)

	child := parent.CloneCOW()

	va := addr.NewVirtAddr(0x2000)
	ppte, ok := parent.pt.Translate(va.Page())
	if !ok {
		t.Fatal("expected parent mapping to survive clone")
	}
	cpte, ok := child.pt.Translate(va.Page())
	if !ok {
		t.Fatal("expected child mapping to exist")
	}
	if ppte.Has(pagetable.W) || cpte.Has(pagetable.W) {
		t.Fatal("expected W cleared on both sides after COW clone")
	}
	if !ppte.Has(pagetable.COW) || !cpte.Has(pagetable.COW) {
		t.Fatal("expected COW set on both sides after COW clone")
	}
	if ppte.Frame() != cpte.Frame() {
		t.Fatal("expected parent and child to share the same frame")
	}
}

func TestHandleCOWFaultSplitsSharedFrame(t *testing.T) {
	a := newTestArena(t)
	tf := newTrampolineFrame(t, a)
	bin := buildMinimalELF(0x3000, 6 /* PF_R|PF_W */, []byte{9, 9, 9, 9})
	parent, _, _ := FromELF(a, tf, bin)
	child := parent.CloneCOW()

	va := addr.NewVirtAddr(0x3000)

	if !child.HandleCOWFault(va) {
		t.Fatal("expected HandleCOWFault to resolve a COW page")
	}
	cpte, _ := child.pt.Translate(va.Page())
	if cpte.Has(pagetable.COW) || !cpte.Has(pagetable.W) {
		t.Fatalf("expected child page writable, no longer COW: %v", cpte.Flags())
	}
	ppte, _ := parent.pt.Translate(va.Page())
	if cpte.Frame() == ppte.Frame() {
		t.Fatal("expected child to get its own frame after the fault (parent still holds a reference)")
	}
	if ppte.Has(pagetable.W) {
		t.Fatal("parent's mapping must remain COW: it still shares nothing else, but the fault only resolves the faulting side")
	}

	child.CopyOut(va, []byte{0xCD})
	got, _ := child.Translate(va, false)
	if got[0] != 0xCD {
		t.Fatalf("expected child write to land, got %#x", got[0])
	}
	parentGot, _ := parent.Translate(va, false)
	if parentGot[0] != 9 {
		t.Fatalf("expected parent's original byte untouched, got %#x", parentGot[0])
	}
}

func TestHandleCOWFaultLastOwnerStealsInPlace(t *testing.T) {
	a := newTestArena(t)
	tf := newTrampolineFrame(t, a)
	bin := buildMinimalELF(0x4000, 6, []byte{5, 5, 5, 5})
	parent, _, _ := FromELF(a, tf, bin)
	child := parent.CloneCOW()
	va := addr.NewVirtAddr(0x4000)

	// release the parent's claim on the only other copy by removing its
	// segment entirely, leaving the child as the sole owner of the frame.
	ppte, _ := parent.pt.Translate(va.Page())
	parentFrame := ppte.Frame()
	parent.RemoveSegment(va)
	_ = parentFrame

	if !child.HandleCOWFault(va) {
		t.Fatal("expected fault to resolve")
	}
	cpte, _ := child.pt.Translate(va.Page())
	if cpte.Frame() != parentFrame {
		t.Fatal("expected sole owner to steal the existing frame rather than copy")
	}
	if cpte.Has(pagetable.COW) || !cpte.Has(pagetable.W) {
		t.Fatal("expected W set, COW cleared after steal")
	}
}

func TestRemoveSegmentUnmaps(t *testing.T) {
	a := newTestArena(t)
	tf := newTrampolineFrame(t, a)
	bin := buildMinimalELF(0x5000, 6, []byte{1})
	as, _, _ := FromELF(a, tf, bin)
	va := addr.NewVirtAddr(0x5000)

	if _, err := as.Translate(va, false); err != nil {
		t.Fatalf("expected mapping before removal: %v", err)
	}
	as.RemoveSegment(va)
	if _, err := as.Translate(va, false); err != ErrUnmapped {
		t.Fatalf("expected ErrUnmapped after removal, got %v", err)
	}
}

func TestCopyCStringStopsAtNUL(t *testing.T) {
	a := newTestArena(t)
	tf := newTrampolineFrame(t, a)
	body := append([]byte("hello"), 0, 'X')
	bin := buildMinimalELF(0x6000, 6, body)
	as, _, _ := FromELF(a, tf, bin)

	s, err := as.CopyCString(addr.NewVirtAddr(0x6000), 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "hello" {
		t.Fatalf("expected %q, got %q", "hello", s)
	}
}

func TestCloneCOWMapsTrampolineInChild(t *testing.T) {
	a := newTestArena(t)
	tf := newTrampolineFrame(t, a)
	bin := buildMinimalELF(0x4000, 6 /* PF_R|PF_W */, []byte{1, 2, 3, 4})
	parent, _, _ := FromELF(a, tf, bin)

	child := parent.CloneCOW()

	pte, ok := child.pt.Translate(memlayout.Trampoline.Page())
	if !ok {
		t.Fatal("expected forked child to have the trampoline page mapped")
	}
	if pte.Frame() != tf {
		t.Fatalf("expected child trampoline PTE to reference the shared trampoline frame, got %v want %v", pte.Frame(), tf)
	}
	if !pte.Has(pagetable.R) || !pte.Has(pagetable.X) {
		t.Fatal("expected child trampoline mapping to be R|X")
	}
}

func TestFromKernelMapsTrampolineAndDoesNotAliasRemainder(t *testing.T) {
	a := newTestArena(t)
	tf := newTrampolineFrame(t, a)

	textRange := addr.NewPageRange(addr.NewVirtAddr(0), 4*addr.PageSize)
	secs := []KernelSection{{Range: textRange, Perm: pagetable.R | pagetable.X}}
	as, ok := FromKernel(a, tf, secs, addr.PhysAddr(16*addr.PageSize))
	if !ok {
		t.Fatal("expected kernel address space construction to succeed")
	}
	if _, err := as.Translate(addr.NewVirtAddr(5*addr.PageSize), false); err != nil {
		t.Fatalf("expected remainder mapped R|W, translate failed: %v", err)
	}
	tramp, ok := as.PageTable().Translate(memlayout.Trampoline.Page())
	if !ok || tramp.Frame() != tf {
		t.Fatal("expected the trampoline page mapped to the shared trampoline frame")
	}
	rem, ok := as.PageTable().Translate(addr.NewVirtAddr(5 * addr.PageSize).Page())
	if !ok || rem.Frame() != addr.Frame(5) || rem.Frame() == tf {
		t.Fatalf("expected remainder page 5 identity-mapped to frame 5, apart from the trampoline frame, got %v", rem.Frame())
	}
}
