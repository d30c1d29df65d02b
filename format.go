package boot

import "bytes"

// Format identifies the input format of a boot image.
type Format int

const (
	// FormatELF is a plain ELF file, probably a kernel.
	FormatELF Format = iota

	// FormatGzip is a gzipped tar archive, probably containing a
	// configuration, a kernel and associated files.
	FormatGzip
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

var (
	elfMagic = []byte("\x7fELF")

	// GZIP magic number, see RFC 1952.
	gzipMagic = []byte{0x1f, 0x8b, 0x08}
)

// DetectFormat detects the format of an input file from its magic bytes.
// ok is false when the input matches neither format.
func DetectFormat(data []byte) (format Format, ok bool) {
	switch {
	case len(data) < 4:
		return 0, false
	case bytes.HasPrefix(data, elfMagic):
		return FormatELF, true
	case bytes.HasPrefix(data, gzipMagic):
		return FormatGzip, true
	default:
		return 0, false
	}
}
