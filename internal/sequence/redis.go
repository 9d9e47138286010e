package sequence

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisCounter allocates sequence numbers with INCR. Keys never expire so a
// day's numbering cannot restart while the Redis dataset is intact.
type RedisCounter struct {
	client redis.Cmdable
	prefix string
}

func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client, prefix: "invoice_seq"}
}

func (c *RedisCounter) NextSequence(ctx context.Context, storeID string, dateKey string) (int64, error) {
	return c.client.Incr(ctx, c.key(storeID, dateKey)).Result()
}

func (c *RedisCounter) key(storeID string, dateKey string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, storeID, dateKey)
}
