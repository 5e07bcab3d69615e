package db

import (
	"errors"
	"fmt"
	"time"

	"soundwaves/logger"
	"soundwaves/model"

	"gorm.io/gorm"
)

// SchemaVersion 本地曲库的 schema 版本。
// v2 重建了 songs；v3 重建了 history（旧记录无法迁移，直接丢弃）。
const SchemaVersion = 3

// SchemaMeta 记录当前 schema 版本，只有一行
type SchemaMeta struct {
	ID        uint `gorm:"primaryKey"`
	Version   int
	UpdatedAt time.Time
}

func (SchemaMeta) TableName() string { return "schema_meta" }

// SongRecord songs 表
type SongRecord struct {
	ID           string `gorm:"primaryKey;size:191"`
	Title        string
	Artist       string
	Album        string
	Duration     int
	Thumbnail    string
	Source       string `gorm:"index:idx_songs_source"`
	YouTubeID    string
	StreamURL    string
	IsDownloaded bool `gorm:"index:idx_songs_downloaded"`
	SavedAt      time.Time
}

func (SongRecord) TableName() string { return "songs" }

// BlobRecord song_blobs 表，blob 后端为 db 时保存音频数据
type BlobRecord struct {
	SongID    string `gorm:"primaryKey;size:191"`
	Data      []byte
	Size      int64
	UpdatedAt time.Time
}

func (BlobRecord) TableName() string { return "song_blobs" }

// HistoryRecord history 表，自增主键 + played_at 索引
type HistoryRecord struct {
	ID        int64      `gorm:"primaryKey;autoIncrement"`
	SongID    string     `gorm:"index:idx_history_song;size:191"`
	Song      model.Song `gorm:"serializer:json;type:text"`
	PlayedAt  time.Time  `gorm:"index:idx_history_played_at"`
	Duration  int
	Completed bool
}

func (HistoryRecord) TableName() string { return "history" }

// FavoriteRecord favorites 表
type FavoriteRecord struct {
	SongID  string     `gorm:"primaryKey;size:191"`
	Song    model.Song `gorm:"serializer:json;type:text"`
	LikedAt time.Time
}

func (FavoriteRecord) TableName() string { return "favorites" }

// PlaylistRecord playlists 表
type PlaylistRecord struct {
	ID          string `gorm:"primaryKey;size:191"`
	Name        string
	Description string
	Thumbnail   string
	Type        string `gorm:"index:idx_playlists_type"`
	SongCount   int
	CreatedAt   time.Time
}

func (PlaylistRecord) TableName() string { return "playlists" }

// PlaylistSongRecord playlist_songs 表，歌单只保存歌曲 ID 引用
type PlaylistSongRecord struct {
	PlaylistID string `gorm:"primaryKey;size:191"`
	SongID     string `gorm:"primaryKey;size:191"`
	Position   int
}

func (PlaylistSongRecord) TableName() string { return "playlist_songs" }

// DownloadRecord download_queue 表
type DownloadRecord struct {
	SongID   string `gorm:"primaryKey;size:191"`
	Status   string
	Progress int
	AddedAt  time.Time
	Error    string
}

func (DownloadRecord) TableName() string { return "download_queue" }

// PreferenceRecord preferences 表，值为 JSON
type PreferenceRecord struct {
	Key       string `gorm:"column:pref_key;primaryKey;size:191"`
	Value     string
	UpdatedAt time.Time
}

func (PreferenceRecord) TableName() string { return "preferences" }

// RemoteListeningHistory 远端 listening_history 表。
// OutboxID 唯一，重试时重复插入会被忽略。
type RemoteListeningHistory struct {
	ID            uint   `gorm:"primaryKey"`
	OutboxID      string `gorm:"uniqueIndex;size:64"`
	UserID        string `gorm:"index;size:191"`
	SongID        string `gorm:"size:191"`
	SongTitle     string
	SongArtist    string
	SongThumbnail string
	Duration      int
	PlayedAt      time.Time
	Completed     bool
}

func (RemoteListeningHistory) TableName() string { return "listening_history" }

func libraryModels() []interface{} {
	return []interface{}{
		&SongRecord{},
		&BlobRecord{},
		&HistoryRecord{},
		&FavoriteRecord{},
		&PlaylistRecord{},
		&PlaylistSongRecord{},
		&DownloadRecord{},
		&PreferenceRecord{},
	}
}

// StoredVersion 读取库中记录的 schema 版本，新库返回 0
func StoredVersion(gdb *gorm.DB) (int, error) {
	if !gdb.Migrator().HasTable(&SchemaMeta{}) {
		return 0, nil
	}
	var meta SchemaMeta
	err := gdb.First(&meta, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return meta.Version, nil
}

// MigrateLibrary 按版本升级本地曲库
func MigrateLibrary(gdb *gorm.DB) error {
	oldVersion, err := StoredVersion(gdb)
	if err != nil {
		return err
	}

	m := gdb.Migrator()
	if oldVersion < 2 && m.HasTable(&SongRecord{}) {
		logger.Warn("[DB] songs 表结构不兼容，重建", logger.Int("oldVersion", oldVersion))
		if err := m.DropTable(&SongRecord{}, &BlobRecord{}); err != nil {
			return fmt.Errorf("failed to drop songs: %w", err)
		}
	}
	if oldVersion < 3 && m.HasTable(&HistoryRecord{}) {
		logger.Warn("[DB] history 表结构不兼容，重建（旧播放记录将丢失）", logger.Int("oldVersion", oldVersion))
		if err := m.DropTable(&HistoryRecord{}); err != nil {
			return fmt.Errorf("failed to drop history: %w", err)
		}
	}

	if err := gdb.AutoMigrate(append(libraryModels(), &SchemaMeta{})...); err != nil {
		return fmt.Errorf("failed to auto migrate library models: %w", err)
	}

	meta := SchemaMeta{ID: 1, Version: SchemaVersion, UpdatedAt: time.Now()}
	if err := gdb.Save(&meta).Error; err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
