// Package redis caches computed account snapshots.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/portfolioaccounting/internal/ledger/application"
	"github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

const defaultTTL = 5 * time.Minute

type snapshotCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewSnapshotCache(client redis.UniversalClient) application.SnapshotCache {
	return &snapshotCache{
		client: client,
		prefix: "ledger:snapshot:",
		ttl:    defaultTTL,
	}
}

func (c *snapshotCache) key(accountID string) string {
	return fmt.Sprintf("%s%s", c.prefix, accountID)
}

// Get returns nil on a cache miss.
func (c *snapshotCache) Get(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	data, err := c.client.Get(ctx, c.key(accountID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *snapshotCache) Set(ctx context.Context, accountID string, snapshot *domain.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(accountID), data, c.ttl).Err()
}

func (c *snapshotCache) Invalidate(ctx context.Context, accountID string) error {
	return c.client.Del(ctx, c.key(accountID)).Err()
}
