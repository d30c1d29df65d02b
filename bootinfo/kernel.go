package bootinfo

import (
	"encoding/binary"
	"time"
	"unsafe"
)

// BootInfo reconstructs the rich form from the wire form. It is called once
// by the kernel after obtaining the structure through [RawFromPtr].
//
// Optional values are rebuilt from their zero sentinels and the platform
// variant from its discriminant. A command line is copied out of the memory
// referenced by the wire pointer; the pointer is trusted under the
// caller-established invariant that its backing bytes live for the remainder
// of program execution. A null pointer means no command line.
func (r *RawBootInfo) BootInfo() BootInfo {
	info := BootInfo{
		Hardware: HardwareInfo{
			PhysAddrRange:  AddrRange{Start: r.physAddrStart, End: r.physAddrEnd},
			SerialPortBase: r.serialPortBase,
			DeviceTree:     r.deviceTree,
		},
		Load: LoadInfo{
			KernelImageAddrRange: AddrRange{
				Start: r.kernelImageAddrStart,
				End:   r.kernelImageAddrEnd,
			},
		},
	}

	if r.tlsStart != 0 || r.tlsFilesz != 0 || r.tlsMemsz != 0 || r.tlsAlign != 0 {
		info.Load.TLS = &TLSInfo{
			Start:  r.tlsStart,
			Filesz: r.tlsFilesz,
			Memsz:  r.tlsMemsz,
			Align:  r.tlsAlign,
		}
	}

	payload := r.platformData[:]
	switch r.platformKind {
	case platformMultiboot:
		info.Platform = Multiboot{
			CommandLine: commandLine(payload),
			InfoAddr:    binary.LittleEndian.Uint64(payload[payloadInfoAddr:]),
		}
	case platformLinuxBoot:
		info.Platform = LinuxBoot{}
	case platformUhyve:
		info.Platform = Uhyve{
			HasPCI:     payload[payloadHasPCI] != 0,
			NumCPUs:    binary.LittleEndian.Uint64(payload[payloadNumCPUs:]),
			CPUFreqKHz: binary.LittleEndian.Uint32(payload[payloadCPUFreq:]),
			BootTime:   bootTime(payload[payloadBootTime:]),
		}
	case platformLinuxBootParams:
		info.Platform = LinuxBootParams{
			CommandLine: commandLine(payload),
			ParamsAddr:  binary.LittleEndian.Uint64(payload[payloadInfoAddr:]),
		}
	case platformFDT:
		info.Platform = FDT{}
	}

	return info
}

// commandLine copies the command line out of the memory referenced by the
// payload's pointer field. A null pointer maps to the empty string.
func commandLine(payload []byte) string {
	data := binary.LittleEndian.Uint64(payload[payloadCmdlineData:])
	length := binary.LittleEndian.Uint64(payload[payloadCmdlineLen:])
	if data == 0 || length == 0 {
		return ""
	}
	//nolint:govet // the wire format carries the pointer as an integer
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(data))), length)
	return string(bytes)
}

// bootTime decodes a 16-byte little-endian signed 128-bit count of Unix
// nanoseconds. Values outside the int64 range do not occur for realistic
// boot times; only the low word and its sign extension are significant.
func bootTime(src []byte) time.Time {
	nanos := int64(binary.LittleEndian.Uint64(src))
	return time.Unix(0, nanos)
}
