package boot

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
version = "1"
kernel = "hermit/app"
`

// buildImage creates a tar image from the given files, optionally
// gzip-compressed.
func buildImage(tb testing.TB, files map[string]string, compress bool) []byte {
	tb.Helper()

	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	for name, data := range files {
		require.NoError(tb, w.WriteHeader(&tar.Header{
			Name:   name,
			Mode:   0o644,
			Size:   int64(len(data)),
			Format: tar.FormatUSTAR,
		}))
		_, err := w.Write([]byte(data))
		require.NoError(tb, err)
	}
	require.NoError(tb, w.Close())

	if !compress {
		return buf.Bytes()
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	_, err := gz.Write(buf.Bytes())
	require.NoError(tb, err)
	require.NoError(tb, gz.Close())
	return compressed.Bytes()
}

func TestOpenImage(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"hermit.toml": testConfig,
		"hermit/app":  "\x7fELF fake kernel",
		"etc/motd":    "welcome",
	}

	for _, compress := range []bool{false, true} {
		name := "tar"
		if compress {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			img, err := OpenImage(buildImage(t, files, compress))
			require.NoError(t, err)

			assert.Equal(t, "hermit/app", img.Config.Kernel)
			assert.Equal(t, []byte("\x7fELF fake kernel"), img.Kernel)

			node, ok := img.Tree().Resolve("etc/motd")
			require.True(t, ok)
			assert.Equal(t, []byte("welcome"), node.Data())
		})
	}
}

func TestOpenImageBareKernel(t *testing.T) {
	t.Parallel()

	_, err := OpenImage([]byte("\x7fELF\x02\x01\x01 rest of a kernel"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestOpenImageCorruptArchive(t *testing.T) {
	t.Parallel()

	_, err := OpenImage(bytes.Repeat([]byte("garbage! "), 100))
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestOpenImageCorruptGzip(t *testing.T) {
	t.Parallel()

	data := buildImage(t, map[string]string{"hermit.toml": testConfig}, true)
	data[len(data)-1] ^= 0xFF

	_, err := OpenImage(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decompress image")
}

func TestOpenImageConfigMissing(t *testing.T) {
	t.Parallel()

	image := buildImage(t, map[string]string{"hermit/app": "kernel"}, false)
	_, err := OpenImage(image)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestOpenImageConfigIsDirectory(t *testing.T) {
	t.Parallel()

	image := buildImage(t, map[string]string{
		"hermit.toml/oops": "not a config",
		"hermit/app":       "kernel",
	}, false)

	_, err := OpenImage(image)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestOpenImageInvalidConfig(t *testing.T) {
	t.Parallel()

	image := buildImage(t, map[string]string{
		"hermit.toml": "version = \"2\"\nkernel = \"hermit/app\"\n",
		"hermit/app":  "kernel",
	}, false)

	_, err := OpenImage(image)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported configuration version")
}

func TestOpenImageKernelMissing(t *testing.T) {
	t.Parallel()

	image := buildImage(t, map[string]string{"hermit.toml": testConfig}, false)
	_, err := OpenImage(image)
	assert.ErrorIs(t, err, ErrKernelNotFound)
}

func TestOpenImageKernelIsDirectory(t *testing.T) {
	t.Parallel()

	image := buildImage(t, map[string]string{
		"hermit.toml":     testConfig,
		"hermit/app/oops": "nested",
	}, false)

	_, err := OpenImage(image)
	assert.ErrorIs(t, err, ErrKernelNotFound)
}
