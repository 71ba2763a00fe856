package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xde-mcp/sim-sub005/pkg/snapshot"
	snapshotfile "github.com/xde-mcp/sim-sub005/pkg/snapshot/file"
	snapshotredis "github.com/xde-mcp/sim-sub005/pkg/snapshot/redis"
)

// NewSnapshotStore builds the snapshot store from a storage URL. A
// "redis://" URL selects the Redis repository; anything else is treated
// as a directory for the file repository.
func NewSnapshotStore(ctx context.Context, storageURL string, logger *slog.Logger) (*snapshot.Store, error) {
	if strings.HasPrefix(storageURL, "redis://") || strings.HasPrefix(storageURL, "rediss://") {
		opts, err := goredis.ParseURL(storageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot storage URL: %w", err)
		}

		repo, err := snapshotredis.NewRepository(ctx, opts.Addr, opts.Password, opts.DB, 0)
		if err != nil {
			return nil, err
		}

		return snapshot.NewStore(repo, logger), nil
	}

	return snapshot.NewStore(snapshotfile.NewRepository(strings.TrimPrefix(storageURL, "file://")), logger), nil
}
