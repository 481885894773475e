// Package cmd provides the shared provider factories used by the binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowrelay/flowrelay/pkg/store"
	"github.com/flowrelay/flowrelay/pkg/store/file"
	"github.com/flowrelay/flowrelay/pkg/store/postgresql"
	"github.com/flowrelay/flowrelay/pkg/store/redis"
)

var supportedStoreProviders = []string{"file", "postgres", "postgresql", "redis", "rediss"}

// NewPersistence creates a storage backend based on the database URL scheme.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) store.Persistence {
	provider := parseStoreProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		persistence, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return persistence
	case "redis", "rediss":
		persistence, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create Redis persistence: %w", err))
		}

		return persistence
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseStoreProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedStoreProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
