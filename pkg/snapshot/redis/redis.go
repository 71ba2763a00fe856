// Package redis provides Redis-backed snapshot persistence for
// multi-process deployments.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/snapshot"
)

const keyPrefix = "simflow:snapshot:"

const connectTimeout = 5 * time.Second

type Repository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRepository connects to Redis and verifies the connection. A zero
// ttl keeps snapshots until they are explicitly cleared.
func NewRepository(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Repository{client: client, ttl: ttl}, nil
}

func key(workflowID string) string {
	return keyPrefix + workflowID
}

func (r *Repository) Load(ctx context.Context, workflowID string) (*models.ExecutionSnapshot, error) {
	data, err := r.client.Get(ctx, key(workflowID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, snapshot.NewError("Load", workflowID, snapshot.ErrSnapshotNotFound)
		}

		return nil, snapshot.NewError("Load", workflowID, err)
	}

	snap := models.NewExecutionSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, snapshot.NewError("Load", workflowID, err)
	}

	return snap, nil
}

func (r *Repository) Save(ctx context.Context, workflowID string, snap *models.ExecutionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return snapshot.NewError("Save", workflowID, err)
	}

	if err := r.client.Set(ctx, key(workflowID), data, r.ttl).Err(); err != nil {
		return snapshot.NewError("Save", workflowID, err)
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, workflowID string) error {
	deleted, err := r.client.Del(ctx, key(workflowID)).Result()
	if err != nil {
		return snapshot.NewError("Delete", workflowID, err)
	}

	if deleted == 0 {
		return snapshot.NewError("Delete", workflowID, snapshot.ErrSnapshotNotFound)
	}

	return nil
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Repository) Close(_ context.Context) error {
	return r.client.Close()
}
