package bootinfo

import (
	"encoding/binary"
	"unsafe"
)

// Raw flattens the boot information into its wire form, populating the magic
// number and layout version. Ranges become start/end pairs and optional
// values become zero sentinels. The atomic tail fields start at zero; they
// are written only after hand-off, by the kernel itself.
//
// Command lines cross the wire as a raw pointer and length into the string's
// backing bytes. The caller must keep those bytes alive and unmoved until the
// kernel has read them; in a real loader the command line lives in guest
// memory.
func (info *BootInfo) Raw() RawBootInfo {
	raw := RawBootInfo{
		magicNumber: MagicNumber,
		version:     LayoutVersion,

		physAddrStart:  info.Hardware.PhysAddrRange.Start,
		physAddrEnd:    info.Hardware.PhysAddrRange.End,
		serialPortBase: info.Hardware.SerialPortBase,
		deviceTree:     info.Hardware.DeviceTree,

		kernelImageAddrStart: info.Load.KernelImageAddrRange.Start,
		kernelImageAddrEnd:   info.Load.KernelImageAddrRange.End,
	}

	if tls := info.Load.TLS; tls != nil {
		raw.tlsStart = tls.Start
		raw.tlsFilesz = tls.Filesz
		raw.tlsMemsz = tls.Memsz
		raw.tlsAlign = tls.Align
	}

	payload := raw.platformData[:]
	switch p := info.Platform.(type) {
	case Multiboot:
		raw.platformKind = platformMultiboot
		putCommandLine(payload, p.CommandLine)
		binary.LittleEndian.PutUint64(payload[payloadInfoAddr:], p.InfoAddr)
	case LinuxBoot:
		raw.platformKind = platformLinuxBoot
	case Uhyve:
		raw.platformKind = platformUhyve
		if p.HasPCI {
			payload[payloadHasPCI] = 1
		}
		binary.LittleEndian.PutUint64(payload[payloadNumCPUs:], p.NumCPUs)
		binary.LittleEndian.PutUint32(payload[payloadCPUFreq:], p.CPUFreqKHz)
		putBootTime(payload[payloadBootTime:], p.BootTime.UnixNano())
	case LinuxBootParams:
		raw.platformKind = platformLinuxBootParams
		putCommandLine(payload, p.CommandLine)
		binary.LittleEndian.PutUint64(payload[payloadInfoAddr:], p.ParamsAddr)
	case FDT:
		raw.platformKind = platformFDT
	}

	return raw
}

// putCommandLine stores the pointer and length of s. An empty command line
// stays a null pointer.
func putCommandLine(payload []byte, s string) {
	if s == "" {
		return
	}
	data := uintptr(unsafe.Pointer(unsafe.StringData(s)))
	binary.LittleEndian.PutUint64(payload[payloadCmdlineData:], uint64(data))
	binary.LittleEndian.PutUint64(payload[payloadCmdlineLen:], uint64(len(s)))
}

// putBootTime encodes nanos as a 16-byte little-endian signed 128-bit value.
func putBootTime(dst []byte, nanos int64) {
	binary.LittleEndian.PutUint64(dst, uint64(nanos))
	var high uint64
	if nanos < 0 {
		high = ^uint64(0)
	}
	binary.LittleEndian.PutUint64(dst[8:], high)
}
