// Package tarimg parses the tar archive inside a boot image and indexes its
// contents by path.
//
// The parser works on a flat, already decompressed byte buffer and yields
// zero-copy views into it. Only reading is supported; images are produced by
// regular tar tooling.
package tarimg

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// blockSize is the fixed tar block size. Headers occupy one block and file
// content is padded to whole blocks.
const blockSize = 512

// Header block field ranges.
const (
	fieldNameStart   = 0
	fieldNameEnd     = 100
	fieldModeStart   = 100
	fieldModeEnd     = 108
	fieldSizeStart   = 124
	fieldSizeEnd     = 136
	fieldTypeFlag    = 156
	fieldMagicStart  = 257
	fieldMagicEnd    = 263
	fieldPrefixStart = 345
	fieldPrefixEnd   = 500
)

// ustarMagic marks headers that carry a valid prefix field.
var ustarMagic = []byte("ustar\x00")

// Sentinel errors for archive parsing.
var (
	// ErrUnexpectedEOF is returned when the archive ends in the middle of a
	// record.
	ErrUnexpectedEOF = errors.New("tarimg: unexpected end of archive")

	// ErrInvalidName is returned when a file name is not valid UTF-8.
	ErrInvalidName = errors.New("tarimg: file name is not valid UTF-8")
)

// File is a single regular-file record in the archive.
//
// Data aliases the archive buffer and must be treated as immutable.
type File struct {
	// Name is the file path inside the archive. For long ustar names this
	// is the prefix and name fields joined as two path segments.
	Name string

	// Exec reports whether any execute permission bit is set.
	Exec bool

	// Offset is the byte offset of the content within the archive.
	Offset int

	// Size is the content size in bytes.
	Size int

	// Data is the file content.
	Data []byte
}

// Parser reads file records from an already decompressed archive buffer.
//
// The parser is lazy and non-restartable: records are produced on demand and
// the first error terminates the sequence for good.
type Parser struct {
	input  []byte
	offset int
}

// NewParser creates a Parser over the archive buffer.
// The buffer is retained; callers must not modify it while parsing.
func NewParser(input []byte) *Parser {
	return &Parser{input: input}
}

// Files returns an iterator over the regular files in the archive.
//
// Entries other than regular files are skipped. An all-zero header block
// terminates the sequence. If a record is malformed the final pair carries
// the error and the parser yields nothing afterwards.
func (p *Parser) Files() iter.Seq2[*File, error] {
	return func(yield func(*File, error) bool) {
		for {
			file, err := p.next()
			if err != nil {
				// Make sure we don't get stuck on the bad record.
				p.input = nil
				yield(nil, err)
				return
			}
			if file == nil {
				return
			}
			if !yield(file, nil) {
				return
			}
		}
	}
}

// next consumes one record. It returns (nil, nil) at end of archive.
func (p *Parser) next() (*File, error) {
	for len(p.input) >= blockSize {
		offset := p.offset
		header, rest := p.input[:blockSize], p.input[blockSize:]

		// An all-zero block is the end-of-archive marker.
		if isZeroBlock(header) {
			return nil, nil
		}

		name := untilNul(header[fieldNameStart:fieldNameEnd])

		// A mode that fails to parse means "not executable", not a fatal
		// error.
		exec := false
		if mode, err := parseOctal(header[fieldModeStart:fieldModeEnd]); err == nil {
			exec = mode&0o111 != 0
		}

		size64, err := parseOctal(header[fieldSizeStart:fieldSizeEnd])
		if err != nil {
			return nil, fmt.Errorf("tarimg: invalid size field: %w", err)
		}
		if size64 > math.MaxInt-blockSize {
			return nil, fmt.Errorf("tarimg: size %d overflows", size64)
		}
		size := int(size64)

		var file *File
		switch header[fieldTypeFlag] {
		case 0, '0':
			// Regular file.
			if size > len(rest) {
				return nil, ErrUnexpectedEOF
			}
			file = &File{
				Exec:   exec,
				Offset: offset + blockSize,
				Size:   size,
				Data:   rest[:size:size],
			}
		default:
			// Other entry kinds are skipped along with their data blocks.
		}

		// Consume the header block and the content padded to whole blocks.
		padded := (size + blockSize - 1) &^ (blockSize - 1)
		if padded > len(rest) {
			return nil, ErrUnexpectedEOF
		}
		p.offset += blockSize + padded
		p.input = rest[padded:]

		if file == nil {
			continue
		}

		fullName := string(name)
		if bytes.Equal(header[fieldMagicStart:fieldMagicEnd], ustarMagic) {
			if prefix := untilNul(header[fieldPrefixStart:fieldPrefixEnd]); len(prefix) > 0 {
				fullName = string(prefix) + "/" + fullName
			}
		}
		if !utf8.ValidString(fullName) {
			return nil, ErrInvalidName
		}
		file.Name = fullName
		return file, nil
	}

	if len(p.input) == 0 {
		return nil, nil
	}
	return nil, ErrUnexpectedEOF
}

// untilNul truncates a fixed-width field at its first NUL byte.
func untilNul(field []byte) []byte {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return field[:i]
	}
	return field
}

// parseOctal parses an octal header field, which may be padded with NUL bytes
// or spaces.
func parseOctal(field []byte) (uint64, error) {
	s := strings.Trim(string(untilNul(field)), " ")
	return strconv.ParseUint(s, 8, 64)
}

func isZeroBlock(block []byte) bool {
	for _, b := range block {
		if b != 0 {
			return false
		}
	}
	return true
}
