package fieldops

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// OfflineQueue is the durable per-device FIFO of measurements awaiting sync.
// Measurements are keyed by id (the idempotency key) and stored as JSON
// blobs; a measurement that fails to sync stays queued for the next attempt.
type OfflineQueue interface {
	Enqueue(ctx context.Context, m *FieldMeasurement) error
	Pending(ctx context.Context, deviceID string, limit int) ([]*FieldMeasurement, error)
	Update(ctx context.Context, m *FieldMeasurement) error
	Ack(ctx context.Context, deviceID string, id uuid.UUID) error
	// Devices lists the ids of devices that currently have queued measurements.
	Devices(ctx context.Context) ([]string, error)
}

// RedisQueue implements OfflineQueue on Redis: one list of ids per device
// plus one JSON blob per measurement.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates the Redis-backed offline queue
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func deviceKey(deviceID string) string { return "fieldops:queue:" + deviceID }

func blobKey(id uuid.UUID) string { return "fieldops:measurement:" + id.String() }

func (q *RedisQueue) Enqueue(ctx context.Context, m *FieldMeasurement) error {
	blob, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode measurement: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, blobKey(m.ID), blob, 0)
	pipe.RPush(ctx, deviceKey(m.DeviceID), m.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.TransientSyncError{Cause: err}
	}
	return nil
}

func (q *RedisQueue) Pending(ctx context.Context, deviceID string, limit int) ([]*FieldMeasurement, error) {
	ids, err := q.client.LRange(ctx, deviceKey(deviceID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, &domain.TransientSyncError{Cause: err}
	}
	measurements := make([]*FieldMeasurement, 0, len(ids))
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		blob, err := q.client.Get(ctx, blobKey(id)).Bytes()
		if err != nil {
			if err == redis.Nil {
				// orphaned id; drop it from the list
				q.client.LRem(ctx, deviceKey(deviceID), 1, idStr)
				continue
			}
			return nil, &domain.TransientSyncError{Cause: err}
		}
		var m FieldMeasurement
		if err := json.Unmarshal(blob, &m); err != nil {
			return nil, fmt.Errorf("failed to decode measurement %s: %w", id, err)
		}
		measurements = append(measurements, &m)
	}
	return measurements, nil
}

func (q *RedisQueue) Update(ctx context.Context, m *FieldMeasurement) error {
	blob, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode measurement: %w", err)
	}
	if err := q.client.Set(ctx, blobKey(m.ID), blob, 0).Err(); err != nil {
		return &domain.TransientSyncError{Cause: err}
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, deviceID string, id uuid.UUID) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, deviceKey(deviceID), 1, id.String())
	pipe.Del(ctx, blobKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.TransientSyncError{Cause: err}
	}
	return nil
}

func (q *RedisQueue) Devices(ctx context.Context) ([]string, error) {
	var devices []string
	iter := q.client.Scan(ctx, 0, deviceKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		devices = append(devices, iter.Val()[len(deviceKey("")):])
	}
	if err := iter.Err(); err != nil {
		return nil, &domain.TransientSyncError{Cause: err}
	}
	return devices, nil
}

// InMemoryQueue implements OfflineQueue for tests and local development
type InMemoryQueue struct {
	mu     sync.Mutex
	queues map[string][]uuid.UUID
	blobs  map[uuid.UUID]FieldMeasurement
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		queues: make(map[string][]uuid.UUID),
		blobs:  make(map[uuid.UUID]FieldMeasurement),
	}
}

func (q *InMemoryQueue) Enqueue(_ context.Context, m *FieldMeasurement) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[m.DeviceID] = append(q.queues[m.DeviceID], m.ID)
	q.blobs[m.ID] = *m
	return nil
}

func (q *InMemoryQueue) Pending(_ context.Context, deviceID string, limit int) ([]*FieldMeasurement, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := q.queues[deviceID]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	measurements := make([]*FieldMeasurement, 0, len(ids))
	for _, id := range ids {
		if m, ok := q.blobs[id]; ok {
			blob := m
			measurements = append(measurements, &blob)
		}
	}
	return measurements, nil
}

func (q *InMemoryQueue) Update(_ context.Context, m *FieldMeasurement) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blobs[m.ID] = *m
	return nil
}

func (q *InMemoryQueue) Devices(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	devices := make([]string, 0, len(q.queues))
	for deviceID, ids := range q.queues {
		if len(ids) > 0 {
			devices = append(devices, deviceID)
		}
	}
	return devices, nil
}

func (q *InMemoryQueue) Ack(_ context.Context, deviceID string, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := q.queues[deviceID]
	for i, queued := range ids {
		if queued == id {
			q.queues[deviceID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	delete(q.blobs, id)
	return nil
}
