package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const deliveryKeyPrefix = "webhook:event:"

// DeliveryRepository remembers which webhook event ids were already processed.
type DeliveryRepository interface {
	// MarkProcessed records id and reports whether this is its first sighting.
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

type redisDeliveryRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeliveryRepository constructs a Redis-backed repository using SET NX with expiry.
func NewRedisDeliveryRepository(client *redis.Client, ttl time.Duration) DeliveryRepository {
	return &redisDeliveryRepository{client: client, ttl: ttl}
}

func (r *redisDeliveryRepository) MarkProcessed(ctx context.Context, id string) (bool, error) {
	return r.client.SetNX(ctx, deliveryKeyPrefix+id, 1, r.ttl).Result()
}

type memoryDeliveryRepository struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryDeliveryRepository constructs a process-local repository.
func NewMemoryDeliveryRepository(ttl time.Duration) DeliveryRepository {
	return &memoryDeliveryRepository{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (r *memoryDeliveryRepository) MarkProcessed(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, expires := range r.seen {
		if !now.Before(expires) {
			delete(r.seen, key)
		}
	}
	if _, ok := r.seen[id]; ok {
		return false, nil
	}
	r.seen[id] = now.Add(r.ttl)
	return true, nil
}
