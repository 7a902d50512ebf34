// Package treestore persists exported record trees under a string key.
package treestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbsmedya/gorowtree/internal/config"
)

// ErrNotFound is returned by Load when no tree is stored under the key.
var ErrNotFound = errors.New("tree not found")

// Store saves and loads encoded trees.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// New opens the backend selected by cfg. It returns nil and no error when
// no backend is configured.
func New(ctx context.Context, cfg *config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "file":
		return NewFileStore(cfg.Dir)
	case "redis":
		ttl := time.Duration(cfg.TTLSeconds) * time.Second
		return DialRedisStore(ctx, cfg.RedisURL, cfg.KeyPrefix, ttl)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
