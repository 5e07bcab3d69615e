package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSong 歌曲字段校验失败
var ErrInvalidSong = errors.New("invalid song")

// Source 歌曲来源
type Source string

const (
	SourceYouTube Source = "youtube"
	SourceOnline  Source = "online"
	SourceLocal   Source = "local"
)

// Valid 判断来源是否是已知取值
func (s Source) Valid() bool {
	return s == SourceYouTube || s == SourceOnline || s == SourceLocal
}

// Song represents a track in the user's library or a search result.
type Song struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	Duration     int    `json:"duration"` // 时长（秒）
	Thumbnail    string `json:"thumbnail"`
	Source       Source `json:"source"`
	YouTubeID    string `json:"youtubeId,omitempty"`
	IsDownloaded bool   `json:"isDownloaded"`
	StreamURL    string `json:"streamUrl,omitempty"`
}

// Validate 检查必填字段
func (s *Song) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSong)
	}
	if s.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidSong)
	}
	if !s.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidSong, s.Source)
	}
	if s.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidSong)
	}
	return nil
}

// FavoriteEntry 收藏记录：歌曲快照 + 收藏时间
type FavoriteEntry struct {
	Song
	LikedAt time.Time `json:"likedAt"`
}

// StorageStats 本地存储统计
type StorageStats struct {
	SongsCount      int64 `json:"songsCount"`
	PlaylistsCount  int64 `json:"playlistsCount"`
	DownloadedCount int64 `json:"downloadedCount"`
	EstimatedSize   int64 `json:"estimatedSize"` // bytes
}
