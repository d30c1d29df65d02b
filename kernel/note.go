package kernel

import "encoding/binary"

const (
	// NoteName is the note name identifying boot protocol notes.
	NoteName = "HERMIT"

	// NoteTypeEntryVersion is the ELF note type carrying the entry version.
	// The note's desc field is one byte holding the version.
	NoteTypeEntryVersion = 0x5a00

	// NoteTypeUhyveInterfaceVersion is the ELF note type carrying the Uhyve
	// interface version.
	NoteTypeUhyveInterfaceVersion = 0x5b00

	// EntryVersion is the boot protocol entry version this loader
	// implements. A kernel whose entry-version note differs is rejected.
	EntryVersion = 4
)

// noteHeaderSize is the size of an Elf64_Nhdr / Elf32_Nhdr.
const noteHeaderSize = 12

// EntryVersionNote returns the encoded note record a kernel embeds in a note
// section to declare the entry version it was built against. The record uses
// the standard 4-byte note alignment.
func EntryVersionNote() []byte {
	name := append([]byte(NoteName), 0)

	buf := make([]byte, noteHeaderSize+alignUp(uint64(len(name)), 4)+4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(name)))
	binary.LittleEndian.PutUint32(buf[4:], 1)
	binary.LittleEndian.PutUint32(buf[8:], NoteTypeEntryVersion)
	copy(buf[noteHeaderSize:], name)
	buf[noteHeaderSize+alignUp(uint64(len(name)), 4)] = EntryVersion
	return buf
}

// findNote walks the notes in a note segment and returns the desc of the
// first note matching name and typ. Malformed trailing data ends the walk.
func findNote(data []byte, align uint64, name string, typ uint32) (desc []byte, ok bool) {
	if align < 4 || align&(align-1) != 0 {
		align = 4
	}

	for len(data) >= noteHeaderSize {
		namesz := uint64(binary.LittleEndian.Uint32(data[0:]))
		descsz := uint64(binary.LittleEndian.Uint32(data[4:]))
		noteTyp := binary.LittleEndian.Uint32(data[8:])

		nameOff := uint64(noteHeaderSize)
		descOff := alignUp(nameOff+namesz, align)
		next := alignUp(descOff+descsz, align)
		if namesz == 0 || next < descOff || next > uint64(len(data)) {
			return nil, false
		}

		// namesz includes the terminating NUL.
		noteName := string(data[nameOff : nameOff+namesz-1])
		if noteName == name && noteTyp == typ {
			return data[descOff : descOff+descsz], true
		}
		data = data[next:]
	}
	return nil, false
}

// alignUp rounds x up to the next multiple of align, a power of two.
func alignUp(x, align uint64) uint64 {
	return (x + align - 1) &^ (align - 1)
}
