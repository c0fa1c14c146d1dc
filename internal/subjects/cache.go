package subjects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "subjects:version"

// Cache wraps Redis based caching of configuration rows with versioning
// controls. Bumping the version invalidates every cached org bucket at once,
// which the dictionary CRUD surface does whenever a row changes.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// Bump invalidates all cached buckets.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) orgKey(ctx context.Context, orgID int64) (string, error) {
	if c == nil || c.client == nil {
		return fmt.Sprintf("subjects:org:%d", orgID), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("subjects:org:%d:%d", orgID, ver), nil
}

// FetchOrg loads the configuration rows for one organization bucket,
// populating the cache from the loader on a miss.
func (c *Cache) FetchOrg(ctx context.Context, orgID int64, loader func(context.Context) ([]SubjectConfig, error)) ([]SubjectConfig, error) {
	if loader == nil {
		return nil, errors.New("subjects: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.orgKey(ctx, orgID)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var configs []SubjectConfig
		if err := json.Unmarshal(payload, &configs); err == nil {
			return configs, nil
		}
		// Corrupt entry: fall through and reload.
	} else if err != redis.Nil {
		return nil, err
	}
	configs, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(configs)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return configs, nil
}
