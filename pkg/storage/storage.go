package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"themeforge/pkg/config"
)

// KV is the key-value persistence collaborator behind the chat log, the
// local draft and the editor theme. Values are opaque JSON documents.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the configured backend.
func Open(cfg config.StorageConfig) (KV, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "file"
	}

	slog.Default().With("component", "storage.factory").Debug("Opening store", "driver", driver, "path", cfg.Path)

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		store, err := OpenFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("storage key is required")
	}
	return key, nil
}
