package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/certsentry/certsentry/internal/core"
)

// DefaultTimeout bounds one-shot operations run outside a request scope.
const DefaultTimeout = 5 * time.Second

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) *Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{
			Addr: redisURL,
		}
	}

	return &Client{redis.NewClient(opt)}
}

func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.Set(ctx, key, data, expiration).Err()
}

func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

// StoreBatchReport keeps the report of an async batch run retrievable by its
// run ID.
func (c *Client) StoreBatchReport(ctx context.Context, report *core.BatchReport, ttl time.Duration) error {
	key := fmt.Sprintf("batch:report:%s", report.RunID)
	return c.SetJSON(ctx, key, report, ttl)
}

func (c *Client) GetBatchReport(ctx context.Context, runID string) (*core.BatchReport, error) {
	var report core.BatchReport
	key := fmt.Sprintf("batch:report:%s", runID)
	if err := c.GetJSON(ctx, key, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// IsNotFound reports whether an error from GetJSON/GetBatchReport means the
// key does not exist.
func IsNotFound(err error) bool {
	return err == redis.Nil
}
