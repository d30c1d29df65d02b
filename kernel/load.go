package kernel

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mirenvm/boot/bootinfo"
)

// Sentinel errors for loading.
var (
	// ErrBadLoadAddress is returned when a non-relocatable kernel is loaded
	// at an address other than its required start address.
	ErrBadLoadAddress = errors.New("kernel: load address does not match required start address")

	// ErrBadMemorySize is returned when the destination buffer length does
	// not equal MemSize.
	ErrBadMemorySize = errors.New("kernel: destination size does not match required memory size")
)

// LoadedKernel is the result of loading a kernel into memory.
type LoadedKernel struct {
	// LoadInfo is the load information required by the kernel.
	LoadInfo bootinfo.LoadInfo

	// EntryPoint is the kernel's entry point.
	EntryPoint uint64
}

// LoadKernel loads the kernel into memory at the chosen start address.
//
// memory must be exactly [Object.MemSize] bytes. For a non-relocatable kernel
// startAddr must equal the address reported by [Object.StartAddr]; for a
// position-independent kernel the caller chooses any base and every
// relocation is applied against it.
//
// Each loadable segment is copied into the buffer at its offset from the
// image base and its zero-initialized tail is cleared. Relocation values are
// written in native byte order.
func (o *Object) LoadKernel(memory []byte, startAddr uint64) (LoadedKernel, error) {
	o.log().Info("loading kernel", "len", len(memory), "start", startAddr)

	if required, ok := o.StartAddr(); ok && required != startAddr {
		return LoadedKernel{}, fmt.Errorf("%w: required %#x, got %#x",
			ErrBadLoadAddress, required, startAddr)
	}
	if uint64(len(memory)) != o.MemSize() {
		return LoadedKernel{}, fmt.Errorf("%w: required %#x, got %#x",
			ErrBadMemorySize, o.MemSize(), len(memory))
	}

	// Copy the loadable segments, including the TLS initialization image.
	// Segment placement is relative to the image base, the first loadable
	// segment's virtual address.
	imageBase := o.firstLoad().Vaddr
	for _, ph := range o.phs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		memStart := ph.Vaddr - imageBase
		if memStart+ph.Memsz > uint64(len(memory)) {
			return LoadedKernel{}, fmt.Errorf("kernel: segment at %#x exceeds destination", ph.Vaddr)
		}
		segment := memory[memStart : memStart+ph.Memsz]
		copy(segment, o.data[ph.Off:ph.Off+ph.Filesz])
		clear(segment[ph.Filesz:])
	}

	if o.relocatable() {
		for _, r := range o.relas {
			if err := o.applyRelocation(memory, r, startAddr); err != nil {
				return LoadedKernel{}, err
			}
		}
	}

	return LoadedKernel{
		LoadInfo: bootinfo.LoadInfo{
			KernelImageAddrRange: bootinfo.AddrRange{
				Start: startAddr,
				End:   startAddr + o.MemSize(),
			},
			TLS: o.tlsInfo(startAddr),
		},
		EntryPoint: o.entryPoint(startAddr),
	}, nil
}

// applyRelocation patches one relocation target. The format documents a
// closed set of supported kinds; anything else indicates a toolchain
// mismatch and is fatal.
func (o *Object) applyRelocation(memory []byte, r rela, base uint64) error {
	target, err := relocTarget(memory, r.Off)
	if err != nil {
		return err
	}

	switch typ := r.typ(); {
	case typ == relRelative:
		binary.NativeEndian.PutUint64(target, base+uint64(r.Addend))

	case typ == relAbs64, hasGlobDat && typ == relGlobDat:
		if int(r.sym()) >= len(o.dynsyms) {
			return fmt.Errorf("kernel: relocation at %#x references invalid symbol %d",
				r.Off, r.sym())
		}
		s := o.dynsyms[r.sym()]

		// A weak symbol that stayed undefined resolves to zero; the
		// target must already hold zero.
		if elf.ST_BIND(s.Info) == elf.STB_WEAK && s.Shndx == uint16(elf.SHN_UNDEF) {
			if binary.NativeEndian.Uint64(target) != 0 {
				return fmt.Errorf("kernel: weak undefined relocation target at %#x is not zero",
					r.Off)
			}
			return nil
		}
		if typ == relGlobDat && globDatZeroAddend && r.Addend != 0 {
			return fmt.Errorf("kernel: %s relocation at %#x has nonzero addend %d",
				relocName(typ), r.Off, r.Addend)
		}
		binary.NativeEndian.PutUint64(target, base+s.Value+uint64(r.Addend))

	default:
		return fmt.Errorf("kernel: unsupported relocation type %s", relocName(typ))
	}
	return nil
}

// relocTarget returns the eight target bytes of a relocation.
func relocTarget(memory []byte, off uint64) ([]byte, error) {
	if off+8 < off || off+8 > uint64(len(memory)) {
		return nil, fmt.Errorf("kernel: relocation offset %#x is out of range", off)
	}
	return memory[off : off+8], nil
}
