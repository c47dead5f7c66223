// internal/storage/archive/interface.go
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/newthinker/skinquant/internal/core"
)

// Storage defines the interface for cold/archive storage backends
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path, or core.ErrNoData
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend string   `mapstructure:"backend"`
	Path    string   `mapstructure:"path"`
	S3      S3Config `mapstructure:"s3"`
}

// New builds the configured backend: "localfs" (default) or "s3".
func New(cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "", "localfs":
		if cfg.Path == "" {
			return nil, core.Errorf(core.ErrConfigMissing, "storage.cold.path is required for localfs")
		}
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown cold storage backend %q", cfg.Backend)
	}
}

// cleanKey normalises a slash separated key and rejects escapes from the
// storage root.
func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(key))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("empty storage key %q", key)
	}
	return cleaned, nil
}

func notFound(key string) error {
	return core.WrapError(core.ErrNoData, fmt.Errorf("archive object %s not found", key))
}
