package kernel

import "debug/elf"

// Relocation kinds for the x86-64 psABI, see
// https://refspecs.linuxbase.org/elf/x86_64-abi-0.98.pdf.
const (
	elfMachine  = elf.EM_X86_64
	relAbs64    = uint32(elf.R_X86_64_64)
	relRelative = uint32(elf.R_X86_64_RELATIVE)
	relGlobDat  = uint32(elf.R_X86_64_GLOB_DAT)

	hasGlobDat = true

	// The psABI defines GLOB_DAT without an addend on x86-64.
	globDatZeroAddend = true
)

func relocName(typ uint32) string {
	return elf.R_X86_64(typ).String()
}
