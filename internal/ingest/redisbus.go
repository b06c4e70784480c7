package ingest

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans ingest update envelopes out over a Redis Pub/Sub
// channel. Grounded on the teacher's internal/stream event-bus abstraction
// (Publish-to-topic, pluggable backend) but backed by the same
// redis/go-redis/v9 client the aggregator adapter already uses for its
// response cache, rather than the teacher's Kafka/Pulsar producers — this
// repo has no broker client for either, and a long-lived router process
// gains nothing from standing one up solely for an optional observability
// fan-out.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps an existing Redis client for fan-out publish.
// The caller owns the client's lifecycle (Close).
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish publishes payload on topic as a Redis Pub/Sub message. Publish
// errors are non-fatal to the caller (ingest.Ingestor.publish logs and
// continues); a fan-out subscriber dropping or reconnecting never affects
// the venue-update path.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return p.client.Publish(ctx, topic, payload).Err()
}
