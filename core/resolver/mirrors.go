package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// mirror 一类镜像站的请求与解析方式
type mirror struct {
	family string
	path   func(videoID string) string
	parse  func(body []byte) (string, error)
}

var invidious = mirror{
	family: "invidious",
	path:   func(id string) string { return "/api/v1/videos/" + url.PathEscape(id) },
	parse:  parseInvidious,
}

var piped = mirror{
	family: "piped",
	path:   func(id string) string { return "/streams/" + url.PathEscape(id) },
	parse:  parsePiped,
}

type invidiousFormat struct {
	URL       string  `json:"url"`
	Type      string  `json:"type"`
	MimeType  string  `json:"mimeType"`
	Container string  `json:"container"`
	Bitrate   flexInt `json:"bitrate"`
}

type invidiousVideo struct {
	AdaptiveFormats []invidiousFormat `json:"adaptiveFormats"`
	FormatStreams   []invidiousFormat `json:"formatStreams"`
}

// parseInvidious 优先取码率最高的纯音频格式，其次取带音轨的 mp4
func parseInvidious(body []byte) (string, error) {
	var v invidiousVideo
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("解析 invidious 响应失败: %w", err)
	}

	var audio []invidiousFormat
	for _, f := range v.AdaptiveFormats {
		if f.URL != "" && (strings.Contains(f.Type, "audio") || strings.Contains(f.MimeType, "audio")) {
			audio = append(audio, f)
		}
	}
	if len(audio) > 0 {
		sort.SliceStable(audio, func(i, j int) bool { return audio[i].Bitrate > audio[j].Bitrate })
		return audio[0].URL, nil
	}

	for _, f := range v.FormatStreams {
		if f.URL != "" && (strings.Contains(f.Type, "audio") || f.Container == "mp4") {
			return f.URL, nil
		}
	}
	return "", fmt.Errorf("没有可用的音频格式")
}

type pipedStream struct {
	URL     string  `json:"url"`
	Bitrate flexInt `json:"bitrate"`
}

type pipedStreams struct {
	AudioStreams []pipedStream `json:"audioStreams"`
}

func parsePiped(body []byte) (string, error) {
	var v pipedStreams
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("解析 piped 响应失败: %w", err)
	}

	streams := v.AudioStreams[:0]
	for _, s := range v.AudioStreams {
		if s.URL != "" {
			streams = append(streams, s)
		}
	}
	if len(streams) == 0 {
		return "", fmt.Errorf("没有可用的音频流")
	}
	sort.SliceStable(streams, func(i, j int) bool { return streams[i].Bitrate > streams[j].Bitrate })
	return streams[0].URL, nil
}

// flexInt 兼容数字和字符串两种写法的码率字段
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n := json.Number(s)
	v, err := n.Int64()
	if err != nil {
		fv, ferr := n.Float64()
		if ferr != nil {
			*f = 0
			return nil
		}
		v = int64(fv)
	}
	*f = flexInt(v)
	return nil
}

// probe 请求单个镜像，超时由调用方的 ctx 控制
func (r *Resolver) probe(ctx context.Context, m mirror, host, videoID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(host, "/")+m.path(videoID), nil)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := r.do(req)
	if err != nil {
		return "", err
	}
	return m.parse(body)
}
