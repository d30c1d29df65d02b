package boot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/klauspost/compress/gzip"

	"github.com/mirenvm/boot/tarimg"
)

// Sentinel errors for image assembly.
var (
	// ErrUnknownFormat is returned when the input cannot be an image
	// archive.
	ErrUnknownFormat = errors.New("boot: unknown image format")

	// ErrCorruptArchive is returned when the tar archive inside an image is
	// corrupt.
	ErrCorruptArchive = errors.New("boot: image archive is corrupt")

	// ErrConfigNotFound is returned when the configuration file either
	// couldn't be found in the image or isn't a regular file.
	ErrConfigNotFound = errors.New("boot: image configuration file not found")

	// ErrKernelNotFound is returned when the kernel named by the image
	// configuration either couldn't be found or isn't a regular file.
	ErrKernelNotFound = errors.New("boot: kernel not found in image")
)

// Image is an unpacked boot image with its parsed configuration and resolved
// kernel bytes.
type Image struct {
	// Config is the parsed image configuration.
	Config *Config

	// Kernel is the raw kernel ELF named by the configuration. It aliases
	// the decompressed archive buffer.
	Kernel []byte

	tree *tarimg.Tree
}

// Tree returns the directory index of the image contents.
func (img *Image) Tree() *tarimg.Tree {
	return img.tree
}

// Option configures OpenImage.
type Option func(*opener)

// WithLogger sets the logger used while opening the image.
// By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *opener) {
		o.logger = logger
	}
}

type opener struct {
	logger *slog.Logger
}

func (o *opener) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

// OpenImage unpacks a boot image and resolves its kernel.
//
// The input may be a gzip-compressed archive or an already decompressed one.
// The archive must contain a configuration file at [DefaultConfigName] naming
// the kernel path; both are resolved through the directory index.
//
// The returned Image borrows from the (decompressed) input buffer.
func OpenImage(data []byte, opts ...Option) (*Image, error) {
	var o opener
	for _, opt := range opts {
		opt(&o)
	}

	// A bare kernel is not an image; uncompressed input is assumed to be a
	// tar archive, which carries no leading magic of its own.
	switch format, ok := DetectFormat(data); {
	case ok && format == FormatELF:
		return nil, fmt.Errorf("%w: input is a bare kernel", ErrUnknownFormat)
	case ok && format == FormatGzip:
		decompressed, err := decompress(data)
		if err != nil {
			return nil, fmt.Errorf("boot: decompress image: %w", err)
		}
		o.log().Debug("decompressed image",
			"compressed", len(data), "size", len(decompressed))
		data = decompressed
	}

	tree, err := tarimg.FromImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArchive, err)
	}

	cfgNode, ok := tree.Resolve(DefaultConfigName)
	if !ok || cfgNode.IsDir() {
		return nil, ErrConfigNotFound
	}
	cfg, err := ParseConfig(cfgNode.Data())
	if err != nil {
		return nil, err
	}

	kernelNode, ok := tree.Resolve(cfg.Kernel)
	if !ok || kernelNode.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrKernelNotFound, cfg.Kernel)
	}
	o.log().Debug("resolved kernel",
		"path", cfg.Kernel, "size", len(kernelNode.Data()))

	return &Image{
		Config: cfg,
		Kernel: kernelNode.Data(),
		tree:   tree,
	}, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
