// Package kernel parses and loads kernel objects from ELF files.
//
// [Parse] validates that an ELF file is a compatible kernel and returns an
// [Object], an immutable zero-copy view over the file bytes. [Object.LoadKernel]
// copies the loadable segments into a destination buffer chosen by the caller
// and applies relocations when the kernel is position-independent.
package kernel

import (
	"debug/elf"
	"encoding/binary"
	"log/slog"

	"github.com/mirenvm/boot/bootinfo"
)

// Structure sizes of the 64-bit ELF format.
const (
	headerSize     = 64
	progHeaderSize = 56
	sectHeaderSize = 64
	dynEntrySize   = 16
	relaEntrySize  = 24
	symEntrySize   = 24
)

// ParseError reports a malformed or incompatible kernel ELF. It is fatal to
// the boot attempt; a kernel that fails to parse is never retried.
type ParseError struct {
	cause string
}

func (e *ParseError) Error() string {
	return "kernel: invalid ELF: " + e.cause
}

func parseError(cause string) error {
	return &ParseError{cause: cause}
}

// progHeader is a decoded ELF64 program header.
type progHeader struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// rela is a decoded ELF64 relocation entry with explicit addend.
type rela struct {
	Off    uint64
	Info   uint64
	Addend int64
}

func (r rela) typ() uint32 { return uint32(r.Info) }
func (r rela) sym() uint32 { return uint32(r.Info >> 32) }

// sym is a decoded ELF64 symbol table entry.
type sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

// Object is a parsed kernel ready for loading.
//
// All views were validated to lie within the file buffer at parse time. The
// Object borrows the buffer and must not outlive it.
type Object struct {
	// data is the raw bytes of the parsed ELF file.
	data []byte

	// phs are the kernel's program headers, in file order. Loadable
	// segments will be copied for execution; the TLS segment feeds the
	// kernel's TLS descriptor.
	phs []progHeader

	// relas are the relocations with an explicit addend. Empty for
	// non-relocatable kernels.
	relas []rela

	// dynsyms is the symbol table for relocations.
	dynsyms []sym

	typ    elf.Type
	entry  uint64
	logger *slog.Logger
}

// Option configures Parse.
type Option func(*Object)

// WithLogger sets the logger used during parsing and loading.
// By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Object) {
		o.logger = logger
	}
}

func (o *Object) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

// Parse validates raw bytes of an ELF file as a loadable kernel object.
//
// A compatible kernel is a 64-bit little-endian executable or
// position-independent object for this loader's architecture, carrying an
// entry-version note matching [EntryVersion] and no dynamic library
// dependencies. An OS ABI other than "standalone" is only warned about.
func Parse(data []byte, opts ...Option) (*Object, error) {
	obj := &Object{data: data}
	for _, opt := range opts {
		opt(obj)
	}
	obj.log().Info("parsing kernel", "len", len(data))

	if len(data) < headerSize {
		return nil, parseError("file is too short for an ELF header")
	}
	if string(data[:4]) != elf.ELFMAG {
		return nil, parseError("bad magic number")
	}
	if elf.Class(data[elf.EI_CLASS]) != elf.ELFCLASS64 {
		return nil, parseError("kernel is not a 64-bit object")
	}
	if elf.Data(data[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return nil, parseError("kernel object is not little endian")
	}
	if elf.OSABI(data[elf.EI_OSABI]) != elf.ELFOSABI_STANDALONE {
		obj.log().Warn("kernel is not a standalone application",
			"osabi", elf.OSABI(data[elf.EI_OSABI]))
	}

	obj.typ = elf.Type(binary.LittleEndian.Uint16(data[16:]))
	machine := elf.Machine(binary.LittleEndian.Uint16(data[18:]))
	obj.entry = binary.LittleEndian.Uint64(data[24:])
	phoff := binary.LittleEndian.Uint64(data[32:])
	shoff := binary.LittleEndian.Uint64(data[40:])
	phentsize := binary.LittleEndian.Uint16(data[54:])
	phnum := binary.LittleEndian.Uint16(data[56:])
	shentsize := binary.LittleEndian.Uint16(data[58:])
	shnum := binary.LittleEndian.Uint16(data[60:])

	if phnum > 0 && phentsize != progHeaderSize {
		return nil, parseError("unexpected program header entry size")
	}
	if shnum > 0 && shentsize != sectHeaderSize {
		return nil, parseError("unexpected section header entry size")
	}

	phsData, err := view(data, phoff, uint64(phnum)*progHeaderSize)
	if err != nil {
		return nil, parseError("program header table is out of bounds")
	}
	obj.phs = parseProgHeaders(phsData)

	shsData, err := view(data, shoff, uint64(shnum)*sectHeaderSize)
	if err != nil {
		return nil, parseError("section header table is out of bounds")
	}

	if err := obj.checkEntryVersion(); err != nil {
		return nil, err
	}

	if obj.typ != elf.ET_DYN && obj.typ != elf.ET_EXEC {
		return nil, parseError("kernel has unsupported ELF type")
	}
	if machine != elfMachine {
		return nil, parseError("kernel is not compiled for the correct architecture")
	}

	if err := obj.parseDynamic(); err != nil {
		return nil, err
	}
	if err := obj.parseDynsyms(shsData); err != nil {
		return nil, err
	}

	// Every loadable segment must be fully backed by the file so that
	// loading never reads out of bounds. The format guarantees loadable
	// segments are ordered by ascending virtual address.
	loadable := false
	for _, ph := range obj.phs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		loadable = true
		if ph.Filesz > ph.Memsz {
			return nil, parseError("loadable segment file size exceeds memory size")
		}
		if _, err := view(data, ph.Off, ph.Filesz); err != nil {
			return nil, parseError("loadable segment is out of bounds")
		}
	}
	if !loadable {
		return nil, parseError("kernel has no loadable segments")
	}

	return obj, nil
}

// checkEntryVersion locates the entry-version note and compares it against
// the loader's compiled-in version. A mismatch is a fatal incompatibility.
func (o *Object) checkEntryVersion() error {
	for _, ph := range o.phs {
		if ph.Type != elf.PT_NOTE {
			continue
		}
		notes, err := view(o.data, ph.Off, ph.Filesz)
		if err != nil {
			return parseError("note segment is out of bounds")
		}
		desc, ok := findNote(notes, ph.Align, NoteName, NoteTypeEntryVersion)
		if !ok || len(desc) == 0 {
			continue
		}
		if desc[0] != EntryVersion {
			return parseError("entry version does not match")
		}
		return nil
	}
	return parseError("kernel does not specify an entry version")
}

// parseDynamic scans the dynamic segment. Any required dynamic library is
// fatal; the kernel must be fully self-contained. The relocation table, if
// any, is located through the DT_RELA entries.
func (o *Object) parseDynamic() error {
	var dynPh *progHeader
	for i, ph := range o.phs {
		if ph.Type == elf.PT_DYNAMIC {
			dynPh = &o.phs[i]
			break
		}
	}
	if dynPh == nil {
		return nil
	}

	dynData, err := view(o.data, dynPh.Off, dynPh.Filesz)
	if err != nil {
		return parseError("dynamic segment is out of bounds")
	}

	var relaAddr, relaSize uint64
	for off := 0; off+dynEntrySize <= len(dynData); off += dynEntrySize {
		tag := elf.DynTag(binary.LittleEndian.Uint64(dynData[off:]))
		val := binary.LittleEndian.Uint64(dynData[off+8:])
		switch tag {
		case elf.DT_NULL:
			off = len(dynData)
		case elf.DT_NEEDED:
			return parseError("kernel was linked against dynamic libraries")
		case elf.DT_REL, elf.DT_RELSZ:
			return parseError("kernel uses REL relocations")
		case elf.DT_RELA:
			relaAddr = val
		case elf.DT_RELASZ:
			relaSize = val
		}
	}
	if relaAddr == 0 || relaSize == 0 {
		return nil
	}
	if relaSize%relaEntrySize != 0 {
		return parseError("relocation table has invalid size")
	}

	relaOff, ok := o.vaddrToOff(relaAddr)
	if !ok {
		return parseError("relocation table is not mapped")
	}
	relaData, err := view(o.data, relaOff, relaSize)
	if err != nil {
		return parseError("relocation table is out of bounds")
	}

	o.relas = make([]rela, 0, relaSize/relaEntrySize)
	for off := 0; off+relaEntrySize <= len(relaData); off += relaEntrySize {
		o.relas = append(o.relas, rela{
			Off:    binary.LittleEndian.Uint64(relaData[off:]),
			Info:   binary.LittleEndian.Uint64(relaData[off+8:]),
			Addend: int64(binary.LittleEndian.Uint64(relaData[off+16:])),
		})
	}
	return nil
}

// parseDynsyms locates the dynamic symbol table through the section headers.
func (o *Object) parseDynsyms(shsData []byte) error {
	for off := 0; off+sectHeaderSize <= len(shsData); off += sectHeaderSize {
		shType := elf.SectionType(binary.LittleEndian.Uint32(shsData[off+4:]))
		if shType != elf.SHT_DYNSYM {
			continue
		}
		shOff := binary.LittleEndian.Uint64(shsData[off+24:])
		shSize := binary.LittleEndian.Uint64(shsData[off+32:])
		symData, err := view(o.data, shOff, shSize)
		if err != nil {
			return parseError("dynamic symbol table is out of bounds")
		}
		o.dynsyms = make([]sym, 0, shSize/symEntrySize)
		for so := 0; so+symEntrySize <= len(symData); so += symEntrySize {
			o.dynsyms = append(o.dynsyms, sym{
				Name:  binary.LittleEndian.Uint32(symData[so:]),
				Info:  symData[so+4],
				Other: symData[so+5],
				Shndx: binary.LittleEndian.Uint16(symData[so+6:]),
				Value: binary.LittleEndian.Uint64(symData[so+8:]),
				Size:  binary.LittleEndian.Uint64(symData[so+16:]),
			})
		}
		return nil
	}
	return nil
}

// MemSize returns the memory size required for loading: the span from the
// first loadable segment's virtual address to the end of the last one's
// in-memory image, both taken in file order.
func (o *Object) MemSize() uint64 {
	first, last := o.firstLoad(), o.lastLoad()
	return last.Vaddr + last.Memsz - first.Vaddr
}

// StartAddr returns the required start address of a non-relocatable kernel.
// ok is false when the kernel is position-independent and the caller is free
// to choose any base address.
func (o *Object) StartAddr() (addr uint64, ok bool) {
	if o.relocatable() {
		return 0, false
	}
	return o.firstLoad().Vaddr, true
}

func (o *Object) relocatable() bool {
	return o.typ == elf.ET_DYN
}

func (o *Object) firstLoad() *progHeader {
	for i := range o.phs {
		if o.phs[i].Type == elf.PT_LOAD {
			return &o.phs[i]
		}
	}
	panic("kernel: no loadable segments")
}

func (o *Object) lastLoad() *progHeader {
	for i := len(o.phs) - 1; i >= 0; i-- {
		if o.phs[i].Type == elf.PT_LOAD {
			return &o.phs[i]
		}
	}
	panic("kernel: no loadable segments")
}

// tlsInfo computes the kernel's TLS descriptor, shifting the segment address
// by the load base when the kernel is relocatable. It is nil when the kernel
// has no TLS segment.
func (o *Object) tlsInfo(startAddr uint64) *bootinfo.TLSInfo {
	for _, ph := range o.phs {
		if ph.Type != elf.PT_TLS {
			continue
		}
		start := ph.Vaddr
		if o.relocatable() {
			start += startAddr
		}
		o.log().Info("kernel TLS",
			"start", start, "filesz", ph.Filesz, "memsz", ph.Memsz, "align", ph.Align)
		return &bootinfo.TLSInfo{
			Start:  start,
			Filesz: ph.Filesz,
			Memsz:  ph.Memsz,
			Align:  ph.Align,
		}
	}
	return nil
}

func (o *Object) entryPoint(startAddr uint64) uint64 {
	entry := o.entry
	if o.relocatable() {
		entry += startAddr
	}
	return entry
}

func parseProgHeaders(data []byte) []progHeader {
	phs := make([]progHeader, 0, len(data)/progHeaderSize)
	for off := 0; off+progHeaderSize <= len(data); off += progHeaderSize {
		phs = append(phs, progHeader{
			Type:   elf.ProgType(binary.LittleEndian.Uint32(data[off:])),
			Flags:  elf.ProgFlag(binary.LittleEndian.Uint32(data[off+4:])),
			Off:    binary.LittleEndian.Uint64(data[off+8:]),
			Vaddr:  binary.LittleEndian.Uint64(data[off+16:]),
			Paddr:  binary.LittleEndian.Uint64(data[off+24:]),
			Filesz: binary.LittleEndian.Uint64(data[off+32:]),
			Memsz:  binary.LittleEndian.Uint64(data[off+40:]),
			Align:  binary.LittleEndian.Uint64(data[off+48:]),
		})
	}
	return phs
}

// vaddrToOff translates a virtual address to a file offset through the
// loadable segment containing it.
func (o *Object) vaddrToOff(vaddr uint64) (off uint64, ok bool) {
	for _, ph := range o.phs {
		if ph.Type == elf.PT_LOAD && vaddr >= ph.Vaddr && vaddr < ph.Vaddr+ph.Filesz {
			return vaddr - ph.Vaddr + ph.Off, true
		}
	}
	return 0, false
}

// view returns data[off:off+size] after checking that the range lies within
// the buffer.
func view(data []byte, off, size uint64) ([]byte, error) {
	end := off + size
	if end < off || end > uint64(len(data)) {
		return nil, parseError("range is out of bounds")
	}
	return data[off:end], nil
}
