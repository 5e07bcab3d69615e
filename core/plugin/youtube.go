package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"soundwaves/logger"
	"soundwaves/model"
)

const (
	DefaultYouTubeAPI = "https://www.googleapis.com/youtube/v3"
	// musicCategory YouTube 的音乐分类
	musicCategory   = "10"
	defaultDuration = 180
	defaultLimit    = 20
	maxLimit        = 50
)

// StreamResolver 通过镜像解析元数据和音频
type StreamResolver interface {
	Info(ctx context.Context, videoID string) model.VideoInfo
	AudioURL(ctx context.Context, videoID string) (string, bool)
}

// Result YouTube 搜索结果
type Result struct {
	VideoID     string `json:"videoId"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Thumbnail   string `json:"thumbnail"`
	Duration    int    `json:"duration"`
	ViewCount   string `json:"viewCount,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
}

// YouTubePlugin YouTube Data API 插件，没有 API key 时搜索和热门返回空
type YouTubePlugin struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	resolver   StreamResolver
}

// NewYouTubePlugin 创建 YouTube 插件
func NewYouTubePlugin(apiKey string, resolver StreamResolver) *YouTubePlugin {
	return &YouTubePlugin{
		apiKey:   apiKey,
		baseURL:  DefaultYouTubeAPI,
		resolver: resolver,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// SetBaseURL 设置API基础URL
func (p *YouTubePlugin) SetBaseURL(u string) {
	p.baseURL = strings.TrimRight(u, "/")
}

// HasAPIKey 是否配置了 API key
func (p *YouTubePlugin) HasAPIKey() bool {
	return p.apiKey != ""
}

// GetSource 返回插件来源标识
func (p *YouTubePlugin) GetSource() model.Source {
	return model.SourceYouTube
}

// ToSong 搜索结果转换为歌曲
func ToSong(r Result) model.Song {
	duration := r.Duration
	if duration <= 0 {
		duration = defaultDuration
	}
	return model.Song{
		ID:        "yt-" + r.VideoID,
		Title:     r.Title,
		Artist:    r.Artist,
		Album:     "YouTube Music",
		Duration:  duration,
		Thumbnail: r.Thumbnail,
		Source:    model.SourceYouTube,
		YouTubeID: r.VideoID,
	}
}

func toSongs(results []Result) []model.Song {
	songs := make([]model.Song, 0, len(results))
	for _, r := range results {
		songs = append(songs, ToSong(r))
	}
	return songs
}

// Search 搜索歌曲
func (p *YouTubePlugin) Search(ctx context.Context, query string, limit int) ([]model.Song, error) {
	results, err := p.SearchResults(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return toSongs(results), nil
}

// Trending 热门音乐视频
func (p *YouTubePlugin) Trending(ctx context.Context, limit int) ([]model.Song, error) {
	results, err := p.TrendingResults(ctx, limit)
	if err != nil {
		return nil, err
	}
	return toSongs(results), nil
}

type thumbnails struct {
	Default *struct {
		URL string `json:"url"`
	} `json:"default"`
	High *struct {
		URL string `json:"url"`
	} `json:"high"`
}

func (t thumbnails) best() string {
	if t.High != nil && t.High.URL != "" {
		return t.High.URL
	}
	if t.Default != nil {
		return t.Default.URL
	}
	return ""
}

type snippet struct {
	Title        string     `json:"title"`
	ChannelTitle string     `json:"channelTitle"`
	PublishedAt  string     `json:"publishedAt"`
	Thumbnails   thumbnails `json:"thumbnails"`
}

func (s snippet) year() string {
	t, err := time.Parse(time.RFC3339, s.PublishedAt)
	if err != nil {
		return ""
	}
	return strconv.Itoa(t.Year())
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet snippet `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID             string  `json:"id"`
		Snippet        snippet `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// SearchResults 搜索原始结果
func (p *YouTubePlugin) SearchResults(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if !p.HasAPIKey() || query == "" {
		return []Result{}, nil
	}

	logger.Info("[YouTubePlugin] 搜索歌曲",
		logger.String("query", query),
		logger.Int("limit", limit))

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("videoCategoryId", musicCategory)
	params.Set("maxResults", strconv.Itoa(clampLimit(limit)))
	params.Set("q", query)

	var resp searchResponse
	if err := p.get(ctx, "/search", params, &resp); err != nil {
		logger.Error("[YouTubePlugin] 搜索失败", logger.ErrorField(err))
		return nil, fmt.Errorf("搜索失败: %w", err)
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID == "" {
			continue
		}
		results = append(results, Result{
			VideoID:     item.ID.VideoID,
			Title:       item.Snippet.Title,
			Artist:      item.Snippet.ChannelTitle,
			Thumbnail:   item.Snippet.Thumbnails.best(),
			PublishedAt: item.Snippet.year(),
		})
	}

	logger.Info("[YouTubePlugin] 搜索完成",
		logger.String("query", query),
		logger.Int("count", len(results)))
	return results, nil
}

// TrendingResults 热门原始结果
func (p *YouTubePlugin) TrendingResults(ctx context.Context, limit int) ([]Result, error) {
	if !p.HasAPIKey() {
		return []Result{}, nil
	}

	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	params.Set("chart", "mostPopular")
	params.Set("videoCategoryId", musicCategory)
	params.Set("maxResults", strconv.Itoa(clampLimit(limit)))

	var resp videosResponse
	if err := p.get(ctx, "/videos", params, &resp); err != nil {
		logger.Error("[YouTubePlugin] 获取热门失败", logger.ErrorField(err))
		return nil, fmt.Errorf("获取热门失败: %w", err)
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, Result{
			VideoID:     item.ID,
			Title:       item.Snippet.Title,
			Artist:      item.Snippet.ChannelTitle,
			Thumbnail:   item.Snippet.Thumbnails.best(),
			Duration:    ParseISODuration(item.ContentDetails.Duration),
			ViewCount:   formatViews(item.Statistics.ViewCount),
			PublishedAt: item.Snippet.year(),
		})
	}
	return results, nil
}

// GetDetail 获取歌曲详情。有 API key 时查询 videos 接口，否则使用解析器的 oEmbed 元数据。
func (p *YouTubePlugin) GetDetail(ctx context.Context, songID string) (*model.Song, error) {
	videoID := strings.TrimPrefix(songID, "yt-")
	if videoID == "" {
		return nil, fmt.Errorf("empty video id")
	}

	if p.HasAPIKey() {
		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("id", videoID)

		var resp videosResponse
		if err := p.get(ctx, "/videos", params, &resp); err != nil {
			return nil, fmt.Errorf("获取详情失败: %w", err)
		}
		if len(resp.Items) == 0 {
			return nil, fmt.Errorf("video %s not found", videoID)
		}
		item := resp.Items[0]
		song := ToSong(Result{
			VideoID:   videoID,
			Title:     item.Snippet.Title,
			Artist:    item.Snippet.ChannelTitle,
			Thumbnail: item.Snippet.Thumbnails.best(),
			Duration:  ParseISODuration(item.ContentDetails.Duration),
		})
		return &song, nil
	}

	if p.resolver == nil {
		return nil, fmt.Errorf("no metadata source for %s", videoID)
	}
	info := p.resolver.Info(ctx, videoID)
	song := ToSong(Result{
		VideoID:   videoID,
		Title:     info.Title,
		Artist:    info.Author,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
	})
	return &song, nil
}

// GetPlayURL 通过镜像解析音频地址
func (p *YouTubePlugin) GetPlayURL(ctx context.Context, songID string) (string, error) {
	if p.resolver == nil {
		return "", ErrNoStream
	}
	audioURL, ok := p.resolver.AudioURL(ctx, strings.TrimPrefix(songID, "yt-"))
	if !ok {
		return "", ErrNoStream
	}
	return audioURL, nil
}

func (p *YouTubePlugin) get(ctx context.Context, path string, params url.Values, dst interface{}) error {
	params.Set("key", p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("YouTube API error: status %d", resp.StatusCode)
	}
	return json.Unmarshal(body, dst)
}

var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration 解析 PT4M13S 这样的时长，无法解析时返回 0
func ParseISODuration(s string) int {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := 0
	for i, unit := range []int{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += n * unit
	}
	return total
}

// formatViews 1234567 -> "1.2M views"
func formatViews(raw string) string {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || raw == "" {
		return ""
	}
	return fmt.Sprintf("%.1fM views", n/1000000)
}
