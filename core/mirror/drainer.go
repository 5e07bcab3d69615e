// Package mirror 把待同步队列中的收听记录写入远端 listening_history 表
package mirror

import (
	"context"
	"time"

	"soundwaves/cache"
	"soundwaves/logger"
	"soundwaves/repository"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBaseBackoff  = 500 * time.Millisecond
	defaultMaxBackoff   = time.Minute
)

// Drainer 按顺序消费 outbox；写入失败时记录保留在队首，指数退避后重试
type Drainer struct {
	outbox       cache.Outbox
	remote       repository.RemoteHistoryRepository
	PollInterval time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// NewDrainer 创建同步器
func NewDrainer(outbox cache.Outbox, remote repository.RemoteHistoryRepository) *Drainer {
	return &Drainer{
		outbox:       outbox,
		remote:       remote,
		PollInterval: defaultPollInterval,
		BaseBackoff:  defaultBaseBackoff,
		MaxBackoff:   defaultMaxBackoff,
	}
}

// Backoff 第 attempts 次失败后的等待时间
func (d *Drainer) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		return 0
	}
	backoff := d.BaseBackoff
	for i := 1; i < attempts; i++ {
		backoff *= 2
		if backoff >= d.MaxBackoff {
			return d.MaxBackoff
		}
	}
	if backoff > d.MaxBackoff {
		return d.MaxBackoff
	}
	return backoff
}

// DrainOnce 一直写到队列为空或遇到第一次失败，返回成功写入的条数和失败记录的重试次数
func (d *Drainer) DrainOnce(ctx context.Context) (sent int, attempts int, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return sent, 0, err
		}

		rec, err := d.outbox.Peek(ctx)
		if err != nil {
			return sent, 1, err
		}
		if rec == nil {
			return sent, 0, nil
		}

		if err := d.remote.Insert(ctx, *rec); err != nil {
			rec.Attempts++
			if retryErr := d.outbox.Retry(ctx, *rec); retryErr != nil {
				logger.Warn("[Mirror] 更新重试次数失败", logger.String("id", rec.ID), logger.ErrorField(retryErr))
			}
			logger.Warn("[Mirror] 远端写入失败",
				logger.String("id", rec.ID),
				logger.String("userId", rec.UserID),
				logger.Int("attempts", rec.Attempts),
				logger.ErrorField(err))
			return sent, rec.Attempts, err
		}

		if err := d.outbox.Ack(ctx); err != nil {
			return sent, 1, err
		}
		sent++
	}
}

// Run 循环同步直到 ctx 取消
func (d *Drainer) Run(ctx context.Context) {
	logger.Info("[Mirror] 远端同步已启动", logger.Duration("poll", d.PollInterval))
	for {
		sent, attempts, err := d.DrainOnce(ctx)
		if sent > 0 {
			logger.Debug("[Mirror] 已同步收听记录", logger.Int("count", sent))
		}

		wait := d.PollInterval
		if err != nil && ctx.Err() == nil {
			wait = d.Backoff(attempts)
		}
		if sleepWithContext(ctx, wait) != nil {
			logger.Info("[Mirror] 远端同步已停止")
			return
		}
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
