package kernel

import "debug/elf"

// Relocation kinds for the RISC-V psABI, see
// https://github.com/riscv-non-isa/riscv-elf-psabi-doc/blob/v1.0/riscv-elf.adoc.
const (
	elfMachine  = elf.EM_RISCV
	relAbs64    = uint32(elf.R_RISCV_64)
	relRelative = uint32(elf.R_RISCV_RELATIVE)

	// RISC-V has no GLOB_DAT; data pointers use plain 64-bit relocations.
	relGlobDat        = ^uint32(0)
	hasGlobDat        = false
	globDatZeroAddend = false
)

func relocName(typ uint32) string {
	return elf.R_RISCV(typ).String()
}
