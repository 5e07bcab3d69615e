package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"soundwaves/model"

	"github.com/go-redis/redis/v8"
)

// OutboxKey 远端收听记录待同步队列
const OutboxKey = "soundwaves:outbox:history"

// Outbox 待同步到远端的收听记录队列，先进先出。
// 队首记录在确认写入成功之前不会出队。
type Outbox interface {
	Push(ctx context.Context, rec model.RemoteHistoryRecord) error
	// Peek 返回队首记录，队列为空时返回 nil, nil
	Peek(ctx context.Context) (*model.RemoteHistoryRecord, error)
	// Ack 移除队首记录
	Ack(ctx context.Context) error
	// Retry 用新的重试次数覆盖队首记录
	Retry(ctx context.Context, rec model.RemoteHistoryRecord) error
	Len(ctx context.Context) (int64, error)
}

// MemoryOutbox 进程内队列，重启后丢失
type MemoryOutbox struct {
	mu      sync.Mutex
	records []model.RemoteHistoryRecord
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

func (o *MemoryOutbox) Push(_ context.Context, rec model.RemoteHistoryRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
	return nil
}

func (o *MemoryOutbox) Peek(_ context.Context) (*model.RemoteHistoryRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.records) == 0 {
		return nil, nil
	}
	rec := o.records[0]
	return &rec, nil
}

func (o *MemoryOutbox) Ack(_ context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.records) > 0 {
		o.records = o.records[1:]
	}
	return nil
}

func (o *MemoryOutbox) Retry(_ context.Context, rec model.RemoteHistoryRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.records) > 0 && o.records[0].ID == rec.ID {
		o.records[0] = rec
	}
	return nil
}

func (o *MemoryOutbox) Len(_ context.Context) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return int64(len(o.records)), nil
}

// RedisOutbox 基于 Redis 列表的队列，进程重启后仍保留
type RedisOutbox struct {
	client *redis.Client
	key    string
}

func NewRedisOutbox(client *redis.Client) *RedisOutbox {
	return &RedisOutbox{client: client, key: OutboxKey}
}

func (o *RedisOutbox) Push(ctx context.Context, rec model.RemoteHistoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox record: %w", err)
	}
	if err := o.client.RPush(ctx, o.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push outbox record: %w", err)
	}
	return nil
}

func (o *RedisOutbox) Peek(ctx context.Context) (*model.RemoteHistoryRecord, error) {
	data, err := o.client.LIndex(ctx, o.key, 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to peek outbox: %w", err)
	}

	var rec model.RemoteHistoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox record: %w", err)
	}
	return &rec, nil
}

func (o *RedisOutbox) Ack(ctx context.Context) error {
	if err := o.client.LPop(ctx, o.key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to ack outbox record: %w", err)
	}
	return nil
}

func (o *RedisOutbox) Retry(ctx context.Context, rec model.RemoteHistoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox record: %w", err)
	}
	if err := o.client.LSet(ctx, o.key, 0, data).Err(); err != nil {
		return fmt.Errorf("failed to update outbox head: %w", err)
	}
	return nil
}

func (o *RedisOutbox) Len(ctx context.Context) (int64, error) {
	n, err := o.client.LLen(ctx, o.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read outbox length: %w", err)
	}
	return n, nil
}
