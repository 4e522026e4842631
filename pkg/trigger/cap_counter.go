package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// capKeyTTL keeps counters around past month end so late reads still work.
const capKeyTTL = 40 * 24 * time.Hour

// CapCounter tracks per-automation run counts for the current calendar month
// in Redis. The persisted runs_this_month column is the fallback; Redis gives
// the trigger adapter a cheap read on the hot path and survives counter
// resets racing with month rollover, since the key embeds the month.
type CapCounter struct {
	client *redis.Client
}

// NewCapCounter creates a counter on an existing Redis client.
func NewCapCounter(client *redis.Client) *CapCounter {
	return &CapCounter{client: client}
}

// Increment bumps the automation's counter for the current month.
func (c *CapCounter) Increment(ctx context.Context, automationID string) error {
	key := c.key(automationID, time.Now().UTC())

	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, capKeyTTL)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment cap counter: %w", err)
	}

	return nil
}

// Count returns the automation's run count for the current month. A missing
// key counts as zero.
func (c *CapCounter) Count(ctx context.Context, automationID string) (int64, error) {
	key := c.key(automationID, time.Now().UTC())

	count, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to read cap counter: %w", err)
	}

	return count, nil
}

func (c *CapCounter) key(automationID string, now time.Time) string {
	return fmt.Sprintf("flowline:caps:%s:%s", automationID, now.Format("2006-01"))
}
