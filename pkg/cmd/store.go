// Package cmd provides shared construction helpers for parley binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/kvstore/file"
	"github.com/parley-ai/parley/pkg/kvstore/redis"
)

// NewStore builds a key/value store from a URL: redis://... connects to
// redis, anything else is treated as a file-store root directory.
func NewStore(ctx context.Context, logger *slog.Logger, storeURL string) kvstore.Store {
	if strings.HasPrefix(storeURL, "redis://") || strings.HasPrefix(storeURL, "rediss://") {
		store, err := redis.NewStore(ctx, storeURL, "parley")
		if err != nil {
			panic(fmt.Errorf("failed to create redis store: %w", err))
		}

		logger.InfoContext(ctx, "Using redis store")

		return store
	}

	logger.InfoContext(ctx, "Using file store", "root", storeURL)

	return file.NewStore(storeURL)
}
