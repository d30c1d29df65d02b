package boot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		data   []byte
		want   Format
		wantOK bool
	}{
		{name: "elf", data: []byte("\x7fELF\x02\x01\x01"), want: FormatELF, wantOK: true},
		{name: "gzip", data: []byte{0x1f, 0x8b, 0x08, 0x00, 0x00}, want: FormatGzip, wantOK: true},
		{name: "empty", data: nil, wantOK: false},
		{name: "too short", data: []byte("\x7fEL"), wantOK: false},
		{name: "unknown", data: []byte("ustar something"), wantOK: false},
		{name: "gzip wrong method", data: []byte{0x1f, 0x8b, 0x07, 0x00}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			format, ok := DetectFormat(tt.data)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, format)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "elf", FormatELF.String())
	assert.Equal(t, "gzip", FormatGzip.String())
	assert.Equal(t, "unknown", Format(42).String())
}
