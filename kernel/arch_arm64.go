package kernel

import "debug/elf"

// Relocation kinds for the AArch64 ELF ABI, see
// https://github.com/ARM-software/abi-aa/blob/main/aaelf64/aaelf64.rst.
const (
	elfMachine  = elf.EM_AARCH64
	relAbs64    = uint32(elf.R_AARCH64_ABS64)
	relRelative = uint32(elf.R_AARCH64_RELATIVE)
	relGlobDat  = uint32(elf.R_AARCH64_GLOB_DAT)

	hasGlobDat        = true
	globDatZeroAddend = false
)

func relocName(typ uint32) string {
	return elf.R_AARCH64(typ).String()
}
