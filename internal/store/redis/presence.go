// Package redis mirrors live viewer counts into Redis so other services can
// read them without touching the primary store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const viewersKey = "astrotv:presence:viewers"

// PresenceMirror keeps one hash field per stream holding its viewer count.
type PresenceMirror struct {
	client *redis.Client
	key    string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*PresenceMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &PresenceMirror{client: client, key: viewersKey}, nil
}

// SetStreamViewers records the viewer count. A zero count removes the field.
func (m *PresenceMirror) SetStreamViewers(ctx context.Context, streamID int64, viewers int) error {
	field := strconv.FormatInt(streamID, 10)
	if viewers <= 0 {
		if err := m.client.HDel(ctx, m.key, field).Err(); err != nil {
			return fmt.Errorf("clear stream viewers: %w", err)
		}
		return nil
	}
	if err := m.client.HSet(ctx, m.key, field, viewers).Err(); err != nil {
		return fmt.Errorf("set stream viewers: %w", err)
	}
	return nil
}

// StreamViewers returns the mirrored count, 0 when absent.
func (m *PresenceMirror) StreamViewers(ctx context.Context, streamID int64) (int, error) {
	n, err := m.client.HGet(ctx, m.key, strconv.FormatInt(streamID, 10)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get stream viewers: %w", err)
	}
	return n, nil
}

// Close releases the connection pool.
func (m *PresenceMirror) Close() error {
	return m.client.Close()
}
