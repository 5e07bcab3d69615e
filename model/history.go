package model

import "time"

// HistoryEntry 一次播放记录，只追加不修改
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Song      Song      `json:"song"`
	PlayedAt  time.Time `json:"playedAt"`
	Duration  int       `json:"duration"` // 实际收听秒数
	Completed bool      `json:"completed"`
}

// RemoteHistoryRecord 同步到远端 listening_history 表的记录
type RemoteHistoryRecord struct {
	ID            string    `json:"id"` // outbox entry id
	UserID        string    `json:"userId"`
	SongID        string    `json:"songId"`
	SongTitle     string    `json:"songTitle"`
	SongArtist    string    `json:"songArtist"`
	SongThumbnail string    `json:"songThumbnail"`
	Duration      int       `json:"duration"`
	PlayedAt      time.Time `json:"playedAt"`
	Completed     bool      `json:"completed"`
	Attempts      int       `json:"attempts"`
}
