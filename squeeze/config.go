package squeeze

import (
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ByteSize is a byte count that reads human sizes such as "64MiB" from YAML.
type ByteSize int64

// UnmarshalYAML accepts plain integers and humanized sizes.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if n, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*b = ByteSize(n)
		return nil
	}
	n, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return Error.New("invalid byte size %q: %v", value.Value, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// Config controls batching and spilling of concurrent changes.
type Config struct {
	// MemoryCeiling bounds the encoded size of one decoded batch.
	MemoryCeiling ByteSize `yaml:"memory_ceiling"`
	// SpillMemoryLimit is the part of a batch kept in memory; the rest is
	// written under SpillDir.
	SpillMemoryLimit ByteSize `yaml:"spill_memory_limit"`
	SpillDir         string   `yaml:"spill_dir"`
	// PollInterval is how long decoding waits when the log has no record
	// available yet.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns the defaults used for unset fields.
func DefaultConfig() Config {
	return Config{
		MemoryCeiling:    64 << 20,
		SpillMemoryLimit: 4 << 20,
		SpillDir:         os.TempDir(),
		PollInterval:     50 * time.Millisecond,
	}
}

// ParseConfig reads a YAML configuration over the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, Error.Wrap(err)
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, Error.Wrap(err)
	}
	return ParseConfig(data)
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	switch {
	case c.MemoryCeiling <= 0:
		return Error.New("memory_ceiling must be positive, got %d", c.MemoryCeiling)
	case c.SpillMemoryLimit < 0:
		return Error.New("spill_memory_limit must not be negative, got %d", c.SpillMemoryLimit)
	case c.PollInterval <= 0:
		return Error.New("poll_interval must be positive, got %v", c.PollInterval)
	}
	return nil
}
