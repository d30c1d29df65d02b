// Package bootinfo defines the boot-information contract between a loader (or
// hypervisor) and the kernel it starts.
//
// The contract has two representations. [BootInfo] is the rich, typed form
// assembled by the loader once the kernel is placed in memory. [RawBootInfo]
// is the fixed-layout wire form written at the hand-off address and read by
// the kernel through [RawFromPtr]. The loader converts with [BootInfo.Raw];
// the kernel reconstructs with [RawBootInfo.BootInfo].
//
// Static fields are write-once. The two counters at the tail of the wire form
// are updated in place by each booting core and are the only concurrently
// mutated state.
package bootinfo

import "time"

// AddrRange is a half-open [Start, End) range of addresses.
type AddrRange struct {
	Start uint64
	End   uint64
}

// Size returns the number of bytes in the range.
func (r AddrRange) Size() uint64 {
	return r.End - r.Start
}

// TLSInfo describes the thread-local storage initialization image.
//
// A descriptor with all fields zero means "no TLS segment" and is represented
// as a nil *TLSInfo in [LoadInfo].
type TLSInfo struct {
	// Start is the start address of the TLS image.
	Start uint64

	// Filesz of the TLS program header.
	Filesz uint64

	// Memsz of the TLS program header.
	Memsz uint64

	// Align of the TLS program header.
	Align uint64
}

// HardwareInfo describes the hardware the kernel runs on.
type HardwareInfo struct {
	// PhysAddrRange is the range of all possible physical memory addresses.
	PhysAddrRange AddrRange

	// SerialPortBase is the serial port base address. Zero means no serial
	// port.
	SerialPortBase uint64

	// DeviceTree is the address of the device tree. Zero means no device
	// tree.
	DeviceTree uint64
}

// LoadInfo describes how the kernel image was loaded.
type LoadInfo struct {
	// KernelImageAddrRange is the virtual address range of the loaded
	// kernel image.
	KernelImageAddrRange AddrRange

	// TLS is the kernel image TLS information, or nil if the kernel has no
	// TLS segment.
	TLS *TLSInfo
}

// PlatformInfo carries boot-protocol-specific information. It is one of
// [Multiboot], [LinuxBoot], [Uhyve], [LinuxBootParams] or [FDT].
type PlatformInfo interface {
	platformInfo()
}

// Multiboot is the Multiboot boot protocol.
type Multiboot struct {
	// CommandLine is the command line passed to the kernel. Empty means no
	// command line.
	CommandLine string

	// InfoAddr is the Multiboot boot information address. Must be nonzero.
	InfoAddr uint64
}

// LinuxBoot is the direct Linux boot protocol.
type LinuxBoot struct{}

// Uhyve is the Uhyve hypervisor boot protocol.
type Uhyve struct {
	// HasPCI reports PCI support.
	HasPCI bool

	// NumCPUs is the total number of CPUs available. Must be nonzero.
	NumCPUs uint64

	// CPUFreqKHz is the CPU frequency in kHz. Zero means unknown.
	CPUFreqKHz uint32

	// BootTime is the time the machine was booted.
	BootTime time.Time
}

// LinuxBootParams is the Linux boot parameters ("zeropage") protocol.
type LinuxBootParams struct {
	// CommandLine is the command line passed to the kernel. Empty means no
	// command line.
	CommandLine string

	// ParamsAddr is the address of the Linux boot parameters. Must be
	// nonzero.
	ParamsAddr uint64
}

// FDT marks platforms whose real information is stored in the device tree
// referenced by [HardwareInfo.DeviceTree].
type FDT struct{}

func (Multiboot) platformInfo()       {}
func (LinuxBoot) platformInfo()       {}
func (Uhyve) platformInfo()           {}
func (LinuxBootParams) platformInfo() {}
func (FDT) platformInfo()             {}

// BootInfo is the rich form of the boot information.
//
// It is built by the loader and consumed once by the kernel at startup.
type BootInfo struct {
	// Hardware information.
	Hardware HardwareInfo

	// Load information.
	Load LoadInfo

	// Platform information.
	Platform PlatformInfo
}
