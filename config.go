package boot

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	units "github.com/docker/go-units"
)

// DefaultConfigName is the configuration file name, relative to the image
// root.
const DefaultConfigName = "hermit.toml"

// configVersion is the only supported configuration format version.
const configVersion = "1"

// Config is the image configuration found at [DefaultConfigName].
//
// All file paths are relative to the image root.
type Config struct {
	// Version is the configuration format version. Must be "1".
	Version string `toml:"version"`

	// Kernel is the path of the kernel ELF file inside the image.
	Kernel string `toml:"kernel"`

	// Input holds parameters passed to the kernel and application.
	Input Input `toml:"input"`

	// Requirements are the minimal requirements for the image to run as
	// expected.
	Requirements Requirements `toml:"requirements"`
}

// Input holds parameters passed to the kernel and application.
type Input struct {
	// KernelArgs are arguments passed to the kernel.
	KernelArgs []string `toml:"kernel_args"`

	// AppArgs are arguments passed to the application.
	AppArgs []string `toml:"app_args"`

	// EnvVars are environment variables in KEY=VALUE form.
	EnvVars []string `toml:"env_vars"`
}

// Requirements are the minimal requirements for an image to run as expected.
type Requirements struct {
	// Memory is the minimum RAM. Zero means no requirement.
	Memory ByteSize `toml:"memory"`

	// CPUs is the minimum number of CPUs. Zero means no requirement.
	CPUs uint32 `toml:"cpus"`
}

// ByteSize is a byte count that unmarshals from human-readable sizes such as
// "64MiB" or "1g".
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := units.RAMInBytes(string(text))
	if err != nil {
		return fmt.Errorf("boot: invalid byte size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

// String returns the size in human-readable binary units.
func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

// ParseConfig parses an image configuration from TOML data.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("boot: image configuration is invalid: %w", err)
	}
	if cfg.Version != configVersion {
		return nil, fmt.Errorf("boot: unsupported configuration version %q", cfg.Version)
	}
	if cfg.Kernel == "" {
		return nil, errors.New("boot: image configuration does not name a kernel")
	}
	return &cfg, nil
}
