package redis

import (
	"context"
	"time"
)

// Locker implements the in-flight markers that keep overlapping batch runs
// from probing the same host twice at the same time. Keys expire on their
// own so a crashed run cannot wedge the system.
type Locker struct {
	client *Client
}

func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "lock:"+key, 1, ttl).Result()
}

func (l *Locker) Unlock(ctx context.Context, key string) error {
	return l.client.Del(ctx, "lock:"+key).Err()
}
