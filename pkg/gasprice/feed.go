package gasprice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultFeedKey = "gasprice:samples"

// Feed shares the observed price stream across replicas through Redis. Each
// recorded sample is pushed to a capped list; on startup a replica can restore
// its monitor from the shared history.
type Feed struct {
	client *redis.Client
	key    string
}

// NewFeed creates a feed from a Redis URL
func NewFeed(redisURL, key string) (*Feed, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewFeedWithClient(client, key), nil
}

// NewFeedWithClient creates a feed over an existing client
func NewFeedWithClient(client *redis.Client, key string) *Feed {
	if key == "" {
		key = defaultFeedKey
	}
	return &Feed{client: client, key: key}
}

// Publish appends a sample to the shared history, trimming it to HistoryCapacity
func (f *Feed) Publish(ctx context.Context, sample Sample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}
	pipe := f.client.TxPipeline()
	pipe.LPush(ctx, f.key, data)
	pipe.LTrim(ctx, f.key, 0, HistoryCapacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish sample: %w", err)
	}
	return nil
}

// Restore replays the shared history, oldest first, into the monitor
func (f *Feed) Restore(ctx context.Context, monitor *Monitor) (int, error) {
	raw, err := f.client.LRange(ctx, f.key, 0, HistoryCapacity-1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read sample history: %w", err)
	}

	restored := 0
	// LPush stores newest first; replay in reverse to preserve insertion order
	for i := len(raw) - 1; i >= 0; i-- {
		var sample Sample
		if err := json.Unmarshal([]byte(raw[i]), &sample); err != nil {
			continue // skip malformed entries rather than failing the restore
		}
		if _, err := monitor.RecordSample(sample.Value); err == nil {
			restored++
		}
	}
	return restored, nil
}

// Latest returns the most recently published sample, if any
func (f *Feed) Latest(ctx context.Context) (Sample, bool, error) {
	raw, err := f.client.LIndex(ctx, f.key, 0).Result()
	if err == redis.Nil {
		return Sample{}, false, nil
	}
	if err != nil {
		return Sample{}, false, fmt.Errorf("failed to read latest sample: %w", err)
	}
	var sample Sample
	if err := json.Unmarshal([]byte(raw), &sample); err != nil {
		return Sample{}, false, fmt.Errorf("malformed latest sample: %w", err)
	}
	return sample, true, nil
}

// Client exposes the underlying Redis client for health checks
func (f *Feed) Client() *redis.Client {
	return f.client
}
