package vmspace

import (
	"bytes"
	"debug/elf"
	"fmt"

	"rvkernel/addr"
	"rvkernel/pagetable"
	"rvkernel/physmem"
)

// elfPermToFlags translates an ELF segment's p_flags into the pagetable
// permission bits, adding U (spec.md §4.3).
func elfPermToFlags(f elf.ProgFlag) pagetable.Flag {
	var out pagetable.Flag = pagetable.U
	if f&elf.PF_R != 0 {
		out |= pagetable.R
	}
	if f&elf.PF_W != 0 {
		out |= pagetable.W
	}
	if f&elf.PF_X != 0 {
		out |= pagetable.X
	}
	return out
}

// FromELF parses an ELF64 RISC-V executable and builds its address space:
// one Framed segment per PT_LOAD, file bytes loaded in, plus the shared
// trampoline mapping. It returns the new address space, the virtual entry
// point, and a suggested base for per-thread user stacks — one page above
// the highest loaded virtual address (spec.md §4.3).
//
// A buffer that doesn't begin with the ELF magic is a kernel-fatal
// condition in this spec, not a recoverable error: panic (spec.md §8).
func FromELF(a *physmem.Arena, trampolineFrame addr.Frame, data []byte) (as *AddressSpace, userStackBase addr.VirtAddr, entry addr.VirtAddr) {
	if len(data) < 4 || data[0] != 0x7f || string(data[1:4]) != "ELF" {
		panic("vmspace: FromELF: not an ELF file")
	}

	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("vmspace: FromELF: %v", err))
	}

	pt, ok := pagetable.New(a)
	if !ok {
		panic("vmspace: FromELF: out of memory allocating root table")
	}
	res := &AddressSpace{arena: a, pt: pt, trampolineFrame: trampolineFrame, isUser: true}

	var highest addr.VirtAddr
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		start := addr.NewVirtAddr(prog.Vaddr - (prog.Vaddr % addr.PageSize))
		end := prog.Vaddr + prog.Memsz
		length := end - uint64(start)
		if length%addr.PageSize != 0 {
			length += addr.PageSize - length%addr.PageSize
		}
		r := addr.NewPageRange(start, length)
		perm := elfPermToFlags(prog.Flags)
		seg := NewFramedSegment(r, perm)
		if !seg.MapInto(pt, a) {
			panic("vmspace: FromELF: out of memory mapping PT_LOAD segment")
		}

		fileBytes := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(fileBytes, 0); err != nil {
			panic(fmt.Sprintf("vmspace: FromELF: reading segment data: %v", err))
		}
		// fileBytes begins at prog.Vaddr, not at the page-aligned start;
		// pad so CloneBytes, which always writes from the first page of
		// the range, lands the content at the right offset.
		padded := make([]byte, uint64(prog.Vaddr)-uint64(start))
		padded = append(padded, fileBytes...)
		seg.CloneBytes(a, pt, padded)

		res.insertSegment(seg)
		if top := r.End.VirtAddr(); uint64(top) > uint64(highest) {
			highest = top
		}
	}

	res.mapTrampoline()
	userStackBase = addr.VirtAddr(uint64(highest) + addr.PageSize)
	entry = addr.NewVirtAddr(ef.Entry)
	return res, userStackBase, entry
}
