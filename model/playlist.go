package model

import "time"

// PlaylistType 歌单类型
type PlaylistType string

const (
	PlaylistYouTube PlaylistType = "youtube"
	PlaylistOnline  PlaylistType = "online"
	PlaylistOffline PlaylistType = "offline"
	PlaylistCustom  PlaylistType = "custom"
	PlaylistSmart   PlaylistType = "smart"
)

// Valid 判断类型是否合法
func (t PlaylistType) Valid() bool {
	switch t {
	case PlaylistYouTube, PlaylistOnline, PlaylistOffline, PlaylistCustom, PlaylistSmart:
		return true
	}
	return false
}

// Playlist 歌单。SongIDs 是唯一的成员来源，Songs 是读取时按曲库解析出的视图。
type Playlist struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Thumbnail   string       `json:"thumbnail"`
	SongIDs     []string     `json:"songIds"`
	Songs       []Song       `json:"songs"`
	Type        PlaylistType `json:"type"`
	CreatedAt   time.Time    `json:"createdAt"`
	SongCount   int          `json:"songCount"`
}

// IsMutable 只有自建歌单允许增删和排序
func (p *Playlist) IsMutable() bool {
	return p.Type == PlaylistCustom
}
