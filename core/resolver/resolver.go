// Package resolver 根据 YouTube 视频 ID 获取元数据和可播放的音频地址
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"soundwaves/config"
	"soundwaves/logger"
	"soundwaves/model"
)

const (
	defaultOEmbedURL = "https://www.youtube.com/oembed"
	defaultTimeout   = 5 * time.Second
	maxBodySize      = 4 << 20
)

// Action 请求类型
const (
	ActionInfo   = "info"
	ActionStream = "stream"
)

// InfoCache 元数据缓存
type InfoCache interface {
	Get(ctx context.Context, videoID string) (model.VideoInfo, bool)
	Set(ctx context.Context, info model.VideoInfo)
}

// Options 解析器配置
type Options struct {
	OEmbedURL string
	Invidious []string
	Piped     []string
	// Timeout 单个镜像的超时时间
	Timeout    time.Duration
	HTTPClient *http.Client
	Cache      InfoCache
}

// OptionsFromConfig 从全局配置构造 Options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OEmbedURL: cfg.OEmbedURL,
		Invidious: cfg.InvidiousInstances,
		Piped:     cfg.PipedInstances,
		Timeout:   cfg.MirrorTimeout,
	}
}

// Resolver 按固定顺序依次尝试 invidious 和 piped 镜像，第一个成功的结果即返回。
// 不做重试，也不记录上次成功的镜像。
type Resolver struct {
	oembedURL  string
	invidious  []string
	piped      []string
	timeout    time.Duration
	httpClient *http.Client
	cache      InfoCache
}

// New 创建解析器
func New(opts Options) *Resolver {
	r := &Resolver{
		oembedURL:  opts.OEmbedURL,
		invidious:  opts.Invidious,
		piped:      opts.Piped,
		timeout:    opts.Timeout,
		httpClient: opts.HTTPClient,
		cache:      opts.Cache,
	}
	if r.oembedURL == "" {
		r.oembedURL = defaultOEmbedURL
	}
	if r.timeout <= 0 {
		r.timeout = defaultTimeout
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{}
	}
	return r
}

// SetCache 设置元数据缓存
func (r *Resolver) SetCache(c InfoCache) {
	r.cache = c
}

func (r *Resolver) do(req *http.Request) ([]byte, error) {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("返回错误状态码: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return body, nil
}

// Placeholder 元数据获取失败时的占位信息
func Placeholder(videoID string) model.VideoInfo {
	return model.VideoInfo{
		VideoID:   videoID,
		Title:     "YouTube Video",
		Author:    "Unknown Artist",
		Thumbnail: fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", videoID),
	}
}

// Info 通过 oEmbed 获取标题、作者和封面，失败时返回占位信息
func (r *Resolver) Info(ctx context.Context, videoID string) model.VideoInfo {
	if r.cache != nil {
		if info, ok := r.cache.Get(ctx, videoID); ok {
			return info
		}
	}

	info, err := r.fetchOEmbed(ctx, videoID)
	if err != nil {
		logger.Warn("[Resolver] 获取视频信息失败，使用占位信息",
			logger.String("videoId", videoID),
			logger.ErrorField(err))
		return Placeholder(videoID)
	}

	if r.cache != nil {
		r.cache.Set(ctx, info)
	}
	return info
}

func (r *Resolver) fetchOEmbed(ctx context.Context, videoID string) (model.VideoInfo, error) {
	q := url.Values{}
	q.Set("url", "https://www.youtube.com/watch?v="+videoID)
	q.Set("format", "json")

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.oembedURL+"?"+q.Encode(), nil)
	if err != nil {
		return model.VideoInfo{}, fmt.Errorf("创建请求失败: %w", err)
	}
	body, err := r.do(req)
	if err != nil {
		return model.VideoInfo{}, err
	}

	var data struct {
		Title      string `json:"title"`
		AuthorName string `json:"author_name"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return model.VideoInfo{}, fmt.Errorf("解析 oEmbed 响应失败: %w", err)
	}

	info := model.VideoInfo{
		VideoID:   videoID,
		Title:     data.Title,
		Author:    data.AuthorName,
		Thumbnail: fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", videoID),
	}
	if info.Title == "" {
		info.Title = "Unknown Title"
	}
	if info.Author == "" {
		info.Author = "Unknown Artist"
	}
	return info, nil
}

// AudioURL 依次尝试所有镜像，全部失败时返回 false
func (r *Resolver) AudioURL(ctx context.Context, videoID string) (string, bool) {
	families := []struct {
		m     mirror
		hosts []string
	}{
		{invidious, r.invidious},
		{piped, r.piped},
	}

	for _, f := range families {
		for _, host := range f.hosts {
			if ctx.Err() != nil {
				return "", false
			}

			probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
			audioURL, err := r.probe(probeCtx, f.m, host, videoID)
			cancel()

			if err != nil {
				logger.Debug("[Resolver] 镜像不可用",
					logger.String("family", f.m.family),
					logger.String("host", host),
					logger.ErrorField(err))
				continue
			}
			logger.Info("[Resolver] 找到音频流",
				logger.String("videoId", videoID),
				logger.String("family", f.m.family),
				logger.String("host", host))
			return audioURL, true
		}
	}

	logger.Warn("[Resolver] 所有镜像均不可用", logger.String("videoId", videoID))
	return "", false
}

// Resolve 并发获取元数据和音频地址
func (r *Resolver) Resolve(ctx context.Context, videoID string) model.StreamInfo {
	infoCh := make(chan model.VideoInfo, 1)
	go func() {
		infoCh <- r.Info(ctx, videoID)
	}()

	audioURL, ok := r.AudioURL(ctx, videoID)
	out := model.StreamInfo{VideoInfo: <-infoCh, StreamAvailable: ok}
	if ok {
		out.AudioURL = &audioURL
	}
	return out
}

// Request 解析请求
type Request struct {
	VideoID string `json:"videoId,omitempty"`
	URL     string `json:"url,omitempty"`
	Action  string `json:"action,omitempty"`
}

// Handle 处理一次解析请求。action 为 info 时只返回元数据，其余情况同时返回音频地址。
// 只有无法解析视频 ID 时返回错误（ErrInvalidVideoID）。
func (r *Resolver) Handle(ctx context.Context, req Request) (interface{}, error) {
	videoID, err := RequestVideoID(req.VideoID, req.URL)
	if err != nil {
		return nil, err
	}

	logger.Info("[Resolver] 收到请求",
		logger.String("action", req.Action),
		logger.String("videoId", videoID))

	if req.Action == ActionInfo {
		return r.Info(ctx, videoID), nil
	}
	return r.Resolve(ctx, videoID), nil
}
