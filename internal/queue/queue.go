package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tkhuang/riskcast/internal/domain"
)

// ErrEmpty is returned by Dequeue when no job arrived within the timeout.
var ErrEmpty = errors.New("queue empty")

// Broker is the priority job queue. Jobs are enqueued into one of three
// priority lanes and drained in lane order. Implementations must be safe for
// concurrent use.
type Broker interface {
	Enqueue(ctx context.Context, jobID string, priority domain.Priority) error
	// Dequeue blocks up to timeout for the next job, preferring higher
	// priority lanes. The job is tracked as active until MarkDone.
	Dequeue(ctx context.Context, timeout time.Duration) (string, domain.Priority, error)
	MarkDone(ctx context.Context, jobID string, priority domain.Priority) error
	PendingCount(ctx context.Context, priority domain.Priority) (int64, error)
	ActiveCount(ctx context.Context, priority domain.Priority) (int64, error)
	Ping(ctx context.Context) error
}

// RedisBroker implements Broker on go-redis/v9: one list per priority lane
// for pending jobs plus one set per lane for in-flight jobs.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker creates a new RedisBroker from a Redis URL.
func NewRedisBroker(redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{client: redis.NewClient(opts)}, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Enqueue(ctx context.Context, jobID string, priority domain.Priority) error {
	return b.client.LPush(ctx, pendingKey(priority), jobID).Err()
}

func (b *RedisBroker) Dequeue(ctx context.Context, timeout time.Duration) (string, domain.Priority, error) {
	// BRPOP checks keys in argument order, which gives lane priority for free.
	keys := make([]string, 0, len(domain.Priorities))
	for _, p := range domain.Priorities {
		keys = append(keys, pendingKey(p))
	}

	vals, err := b.client.BRPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return "", "", ErrEmpty
	}
	if err != nil {
		return "", "", err
	}

	priority := priorityFromKey(vals[0])
	jobID := vals[1]

	if err := b.client.SAdd(ctx, activeKey(priority), jobID).Err(); err != nil {
		return "", "", err
	}
	return jobID, priority, nil
}

func (b *RedisBroker) MarkDone(ctx context.Context, jobID string, priority domain.Priority) error {
	return b.client.SRem(ctx, activeKey(priority), jobID).Err()
}

func (b *RedisBroker) PendingCount(ctx context.Context, priority domain.Priority) (int64, error) {
	return b.client.LLen(ctx, pendingKey(priority)).Result()
}

func (b *RedisBroker) ActiveCount(ctx context.Context, priority domain.Priority) (int64, error) {
	return b.client.SCard(ctx, activeKey(priority)).Result()
}
