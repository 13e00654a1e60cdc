package ents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default resource budgets for one deletion-scheduler invocation. A run that
// reads more documents or bytes than these limits checkpoints its traversal
// stack and hands the remainder to the deferred scheduler.
const (
	DefaultMaxDocumentsPerRun = 8192
	DefaultMaxBytesPerRun     = 4 << 20
	DefaultPaginatePageSize   = 1024
	DefaultCascadePageSize    = 16
)

// Config holds the runtime knobs shared by the writer and the deletion
// scheduler.
type Config struct {
	// MaxDocumentsPerRun caps the documents read by one scheduler invocation.
	MaxDocumentsPerRun int `yaml:"max_documents_per_run"`

	// MaxBytesPerRun caps the bytes read by one scheduler invocation. Bytes
	// are estimated from each row's serialized size.
	MaxBytesPerRun int64 `yaml:"max_bytes_per_run"`

	// PaginatePageSize is the scan page size for bulk (non-recursing) deletes.
	PaginatePageSize int `yaml:"paginate_page_size"`

	// CascadePageSize is the scan page size when recursing one child at a time.
	CascadePageSize int `yaml:"cascade_page_size"`
}

// DefaultConfig returns a Config with the default budgets.
func DefaultConfig() Config {
	return Config{
		MaxDocumentsPerRun: DefaultMaxDocumentsPerRun,
		MaxBytesPerRun:     DefaultMaxBytesPerRun,
		PaginatePageSize:   DefaultPaginatePageSize,
		CascadePageSize:    DefaultCascadePageSize,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	switch {
	case c.MaxDocumentsPerRun <= 0:
		return fmt.Errorf("ents: max_documents_per_run must be positive (got %d)", c.MaxDocumentsPerRun)
	case c.MaxBytesPerRun <= 0:
		return fmt.Errorf("ents: max_bytes_per_run must be positive (got %d)", c.MaxBytesPerRun)
	case c.PaginatePageSize <= 0:
		return fmt.Errorf("ents: paginate_page_size must be positive (got %d)", c.PaginatePageSize)
	case c.CascadePageSize <= 0:
		return fmt.Errorf("ents: cascade_page_size must be positive (got %d)", c.CascadePageSize)
	}
	return nil
}

// LoadConfig reads a YAML configuration file. Omitted keys keep their
// default values.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("ents: reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("ents: parsing config %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}
