package vmspace

import (
	"bytes"
	"encoding/binary"
)

// buildMinimalELF assembles a syntactically valid, minimal ELF64 RISC-V
// executable with one PT_LOAD segment containing body, loaded at vaddr,
// with entry point set to vaddr. It exists purely so tests can exercise
// FromELF without a real cross-compiled RISC-V toolchain on this host.
func buildMinimalELF(vaddr uint64, flags uint32, body []byte) []byte {
	const ehsize = 64
	const phentsize = 56

	var buf bytes.Buffer

	ident := [16]byte{0x7f, 'E', 'L', 'F', 2 /* ELFCLASS64 */, 1 /* LSB */, 1, 0}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(2))   // e_type = ET_EXEC
	binary.Write(&buf, binary.LittleEndian, uint16(243)) // e_machine = EM_RISCV
	binary.Write(&buf, binary.LittleEndian, uint32(1))   // e_version
	binary.Write(&buf, binary.LittleEndian, vaddr)        // e_entry
	binary.Write(&buf, binary.LittleEndian, uint64(ehsize)) // e_phoff
	binary.Write(&buf, binary.LittleEndian, uint64(0))    // e_shoff
	binary.Write(&buf, binary.LittleEndian, uint32(0))    // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint16(phentsize))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shnum
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shstrndx

	fileOffset := uint64(ehsize + phentsize)
	binary.Write(&buf, binary.LittleEndian, uint32(1))     // p_type = PT_LOAD
	binary.Write(&buf, binary.LittleEndian, flags)         // p_flags
	binary.Write(&buf, binary.LittleEndian, fileOffset)    // p_offset
	binary.Write(&buf, binary.LittleEndian, vaddr)          // p_vaddr
	binary.Write(&buf, binary.LittleEndian, vaddr)          // p_paddr
	binary.Write(&buf, binary.LittleEndian, uint64(len(body))) // p_filesz
	binary.Write(&buf, binary.LittleEndian, uint64(len(body))) // p_memsz
	binary.Write(&buf, binary.LittleEndian, uint64(4096))   // p_align

	buf.Write(body)
	return buf.Bytes()
}
