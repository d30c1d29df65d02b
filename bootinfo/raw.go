package bootinfo

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	// MagicNumber identifies a populated RawBootInfo.
	MagicNumber uint32 = 0xC0DE_CAFE

	// LayoutVersion is the wire layout version of RawBootInfo. Loader and
	// kernel must be built against the same layout version.
	LayoutVersion uint32 = 1
)

// Platform discriminants on the wire. Fixed across architectures.
const (
	platformMultiboot uint32 = iota
	platformLinuxBoot
	platformUhyve
	platformLinuxBootParams
	platformFDT
)

// Byte layout of the platform payload union. Each variant interprets the
// fixed-size payload differently; unused bytes stay zero.
const (
	// Multiboot and LinuxBootParams: command line pointer, command line
	// length, info/params address.
	payloadCmdlineData = 0
	payloadCmdlineLen  = 8
	payloadInfoAddr    = 16

	// Uhyve: PCI flag, CPU count, CPU frequency, boot time as a 16-byte
	// little-endian signed count of Unix nanoseconds.
	payloadHasPCI   = 0
	payloadNumCPUs  = 8
	payloadCPUFreq  = 16
	payloadBootTime = 24

	payloadSize = 40
)

// RawBootInfo is the wire form of [BootInfo].
//
// The layout is C-compatible with a fixed field order: a 4-byte magic number
// and a 4-byte layout version, the hardware and load sections with optional
// values flattened to zero sentinels, the platform discriminant with its
// payload union, and the two atomic counters. It is kept separate from
// BootInfo so the wire contract can stay bit-stable while the rich API
// evolves.
//
// The zero value is the uninitialized state. The loader populates the static
// fields exactly once via [BootInfo.Raw]; after hand-off only the atomic
// tail fields change, written by each booting core.
type RawBootInfo struct {
	magicNumber uint32
	version     uint32

	physAddrStart  uint64
	physAddrEnd    uint64
	serialPortBase uint64
	deviceTree     uint64

	kernelImageAddrStart uint64
	kernelImageAddrEnd   uint64
	tlsStart             uint64
	tlsFilesz            uint64
	tlsMemsz             uint64
	tlsAlign             uint64

	platformKind uint32
	_            uint32
	platformData [payloadSize]byte

	// The atomic tail. Plain integers accessed through the sync/atomic
	// functions so the struct keeps value semantics; both fields are
	// 8-byte aligned by the preceding layout.
	currentStackAddress uint64
	cpuOnline           uint32
	_                   uint32
}

// MagicNumberError is returned by RawFromPtr when the magic number does not
// match.
type MagicNumberError struct {
	// MagicNumber is the value found at the hand-off address.
	MagicNumber uint32
}

func (e *MagicNumberError) Error() string {
	return fmt.Sprintf("bootinfo: invalid magic number (expected %#x, found %#x)",
		MagicNumber, e.MagicNumber)
}

// VersionError is returned by RawFromPtr when the layout version does not
// match.
type VersionError struct {
	// Version is the value found at the hand-off address.
	Version uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("bootinfo: invalid layout version (expected %d, found %d)",
		LayoutVersion, e.Version)
}

// RawFromPtr interprets addr, typically received in a hand-off register, as a
// RawBootInfo populated by a loader.
//
// The magic number and layout version are validated before anything past the
// first eight bytes is accessed; on mismatch a *MagicNumberError or
// *VersionError is returned and nothing else is read.
//
// addr must be properly aligned, its first eight bytes must be readable, and
// if magic number and version match the whole structure must be readable and
// stay alive for the rest of program execution. Passing any other address is
// undefined behavior, even if the result is unused.
func RawFromPtr(addr uintptr) (*RawBootInfo, error) {
	//nolint:govet // the hand-off address only ever exists as an integer
	header := (*[2]uint32)(unsafe.Pointer(addr))
	if header[0] != MagicNumber {
		return nil, &MagicNumberError{MagicNumber: header[0]}
	}
	if header[1] != LayoutVersion {
		return nil, &VersionError{Version: header[1]}
	}
	//nolint:govet // validated above
	return (*RawBootInfo)(unsafe.Pointer(addr)), nil
}

// IncrementCPUOnline publishes that the calling core finished initializing.
// The counter only ever grows. Go atomics are sequentially consistent, which
// subsumes the release ordering this publication needs.
func (r *RawBootInfo) IncrementCPUOnline() {
	atomic.AddUint32(&r.cpuOnline, 1)
}

// CPUsOnline returns the number of cores that finished initializing.
func (r *RawBootInfo) CPUsOnline() uint32 {
	return atomic.LoadUint32(&r.cpuOnline)
}

// LoadCurrentStackAddress returns the current stack address. The slot is
// private to the core currently booting; no cross-core ordering is implied.
func (r *RawBootInfo) LoadCurrentStackAddress() uint64 {
	return atomic.LoadUint64(&r.currentStackAddress)
}

// StoreCurrentStackAddress sets the stack address for the core about to boot.
func (r *RawBootInfo) StoreCurrentStackAddress(addr uint64) {
	atomic.StoreUint64(&r.currentStackAddress, addr)
}

// CurrentStackAddressOffset returns the byte offset of the current stack
// address field from the start of RawBootInfo. Startup code that runs before
// any runtime is available uses it to locate the field directly.
func CurrentStackAddressOffset() uintptr {
	return unsafe.Offsetof(RawBootInfo{}.currentStackAddress)
}
