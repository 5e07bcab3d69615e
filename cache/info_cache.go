package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"soundwaves/logger"
	"soundwaves/model"

	"github.com/go-redis/redis/v8"
)

// VideoInfoCache 缓存 oEmbed 元数据，不缓存镜像选择结果
type VideoInfoCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewVideoInfoCache(client *redis.Client, ttl time.Duration) *VideoInfoCache {
	return &VideoInfoCache{client: client, ttl: ttl}
}

func videoInfoKey(videoID string) string {
	return fmt.Sprintf("soundwaves:videoinfo:%s", videoID)
}

// Get 读取缓存，未命中或 Redis 出错都返回 false
func (c *VideoInfoCache) Get(ctx context.Context, videoID string) (model.VideoInfo, bool) {
	data, err := c.client.Get(ctx, videoInfoKey(videoID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("[Cache] 读取视频信息缓存失败", logger.String("videoId", videoID), logger.ErrorField(err))
		}
		return model.VideoInfo{}, false
	}

	var info model.VideoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		logger.Warn("[Cache] 视频信息缓存格式错误", logger.String("videoId", videoID), logger.ErrorField(err))
		return model.VideoInfo{}, false
	}
	return info, true
}

// Set 写入缓存，失败只记录日志
func (c *VideoInfoCache) Set(ctx context.Context, info model.VideoInfo) {
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, videoInfoKey(info.VideoID), data, c.ttl).Err(); err != nil {
		logger.Warn("[Cache] 写入视频信息缓存失败", logger.String("videoId", info.VideoID), logger.ErrorField(err))
		return
	}
	logger.Debug("[Cache] 视频信息已缓存", logger.String("videoId", info.VideoID), logger.Duration("ttl", c.ttl))
}
