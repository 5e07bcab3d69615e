package resolver

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidVideoID 无法从输入中解析出视频 ID
var ErrInvalidVideoID = errors.New("invalid video ID or URL")

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([^&\n?#]+)`),
	regexp.MustCompile(`^([a-zA-Z0-9_-]{11})$`),
}

// ExtractVideoID 支持 watch?v=、youtu.be/、embed/ 链接和 11 位裸 ID
func ExtractVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return m[1], nil
		}
	}
	return "", ErrInvalidVideoID
}

// RequestVideoID 优先使用 videoID，只有 videoID 为空时才解析 url
func RequestVideoID(videoID, url string) (string, error) {
	if videoID != "" {
		return ExtractVideoID(videoID)
	}
	if url != "" {
		return ExtractVideoID(url)
	}
	return "", ErrInvalidVideoID
}
