package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soundwaves/db"
	"soundwaves/logger"
	"soundwaves/model"
	"soundwaves/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LibraryRepository 本地曲库：歌曲、音频、播放记录、收藏
type LibraryRepository interface {
	// 歌曲
	SaveSong(ctx context.Context, song model.Song, blob []byte) (*model.Song, error)
	GetSong(ctx context.Context, id string) (*model.Song, error)
	GetAllSongs(ctx context.Context) ([]model.Song, error)
	GetAllDownloaded(ctx context.Context) ([]model.Song, error)
	SongsBySource(ctx context.Context, source model.Source) ([]model.Song, error)
	DeleteSong(ctx context.Context, id string) error
	GetSongAudio(ctx context.Context, id string) ([]byte, error)
	Reconcile(ctx context.Context) (int, error)

	// 收藏
	ToggleFavorite(ctx context.Context, song model.Song) (bool, error)
	IsFavorite(ctx context.Context, songID string) (bool, error)
	GetFavorites(ctx context.Context) ([]model.FavoriteEntry, error)

	// 播放记录
	AddHistory(ctx context.Context, song model.Song, listened int, completed bool) (*model.HistoryEntry, error)
	GetHistory(ctx context.Context) ([]model.HistoryEntry, error)
	GetListeningHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	GetRecentlyPlayed(ctx context.Context, limit int) ([]model.Song, error)

	StorageStats(ctx context.Context) (*model.StorageStats, error)
	ClearAll(ctx context.Context) error
}

// gormLibraryRepository GORM 实现，音频数据交给 BlobStore
type gormLibraryRepository struct {
	db    *gorm.DB
	blobs storage.BlobStore
	now   func() time.Time
}

// NewGormLibraryRepository 创建本地曲库仓库
func NewGormLibraryRepository(gdb *gorm.DB, blobs storage.BlobStore) LibraryRepository {
	return &gormLibraryRepository{db: gdb, blobs: blobs, now: time.Now}
}

func songFromRecord(rec *db.SongRecord) model.Song {
	return model.Song{
		ID:           rec.ID,
		Title:        rec.Title,
		Artist:       rec.Artist,
		Album:        rec.Album,
		Duration:     rec.Duration,
		Thumbnail:    rec.Thumbnail,
		Source:       model.Source(rec.Source),
		YouTubeID:    rec.YouTubeID,
		IsDownloaded: rec.IsDownloaded,
		StreamURL:    rec.StreamURL,
	}
}

func recordFromSong(song model.Song, savedAt time.Time) db.SongRecord {
	return db.SongRecord{
		ID:           song.ID,
		Title:        song.Title,
		Artist:       song.Artist,
		Album:        song.Album,
		Duration:     song.Duration,
		Thumbnail:    song.Thumbnail,
		Source:       string(song.Source),
		YouTubeID:    song.YouTubeID,
		StreamURL:    song.StreamURL,
		IsDownloaded: song.IsDownloaded,
		SavedAt:      savedAt,
	}
}

func songsFromRecords(recs []db.SongRecord) []model.Song {
	songs := make([]model.Song, 0, len(recs))
	for i := range recs {
		songs = append(songs, songFromRecord(&recs[i]))
	}
	return songs
}

// ========== 歌曲 ==========

// SaveSong 保存歌曲，blob 不为空时同时写入音频。
// IsDownloaded 以音频是否存在为准，调用方传入的值会被忽略。
func (r *gormLibraryRepository) SaveSong(ctx context.Context, song model.Song, blob []byte) (*model.Song, error) {
	if err := song.Validate(); err != nil {
		return nil, err
	}

	wroteBlob := false
	if len(blob) > 0 {
		if err := r.blobs.Put(ctx, song.ID, blob); err != nil {
			return nil, err
		}
		wroteBlob = true
		song.IsDownloaded = true
	} else {
		exists, err := r.blobs.Exists(ctx, song.ID)
		if err != nil {
			return nil, err
		}
		song.IsDownloaded = exists
	}

	rec := recordFromSong(song, r.now())
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		if wroteBlob {
			if delErr := r.blobs.Delete(ctx, song.ID); delErr != nil {
				logger.Warn("[Library] 回滚音频失败", logger.String("songId", song.ID), logger.ErrorField(delErr))
			}
		}
		return nil, fmt.Errorf("failed to save song %s: %w", song.ID, err)
	}

	logger.Debug("[Library] 歌曲已保存",
		logger.String("songId", song.ID),
		logger.Bool("downloaded", song.IsDownloaded),
		logger.Int("blobSize", len(blob)))
	return &song, nil
}

// GetSong 根据ID获取歌曲
func (r *gormLibraryRepository) GetSong(ctx context.Context, id string) (*model.Song, error) {
	var rec db.SongRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get song %s: %w", id, err)
	}
	song := songFromRecord(&rec)
	return &song, nil
}

// GetAllSongs 返回整个曲库，推荐时作为候选集
func (r *gormLibraryRepository) GetAllSongs(ctx context.Context) ([]model.Song, error) {
	var recs []db.SongRecord
	if err := r.db.WithContext(ctx).Order("saved_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	return songsFromRecords(recs), nil
}

// GetAllDownloaded 返回所有已离线的歌曲
func (r *gormLibraryRepository) GetAllDownloaded(ctx context.Context) ([]model.Song, error) {
	var recs []db.SongRecord
	err := r.db.WithContext(ctx).
		Where("is_downloaded = ?", true).
		Order("saved_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list downloaded songs: %w", err)
	}
	return songsFromRecords(recs), nil
}

// SongsBySource 按来源筛选
func (r *gormLibraryRepository) SongsBySource(ctx context.Context, source model.Source) ([]model.Song, error) {
	var recs []db.SongRecord
	err := r.db.WithContext(ctx).
		Where("source = ?", string(source)).
		Order("saved_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list songs by source %s: %w", source, err)
	}
	return songsFromRecords(recs), nil
}

// DeleteSong 删除歌曲和音频，不处理引用它的歌单。
// 数据库存储时两者在同一事务内删除；其他存储先删音频，失败时歌曲保留。
func (r *gormLibraryRepository) DeleteSong(ctx context.Context, id string) error {
	if store, ok := r.blobs.(*storage.DBBlobStore); ok {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return deleteSong(ctx, tx, store.WithTx(tx), id)
		})
	}
	return deleteSong(ctx, r.db.WithContext(ctx), r.blobs, id)
}

func deleteSong(ctx context.Context, tx *gorm.DB, blobs storage.BlobStore, id string) error {
	if err := blobs.Delete(ctx, id); err != nil {
		return err
	}
	res := tx.Delete(&db.SongRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete song %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSongAudio 读取离线音频
func (r *gormLibraryRepository) GetSongAudio(ctx context.Context, id string) ([]byte, error) {
	data, err := r.blobs.Get(ctx, id)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

// Reconcile 按音频实际是否存在修正下载标记，返回修正的歌曲数量
func (r *gormLibraryRepository) Reconcile(ctx context.Context) (int, error) {
	var recs []db.SongRecord
	if err := r.db.WithContext(ctx).Select("id", "is_downloaded").Find(&recs).Error; err != nil {
		return 0, fmt.Errorf("failed to scan songs: %w", err)
	}

	fixed := 0
	for _, rec := range recs {
		exists, err := r.blobs.Exists(ctx, rec.ID)
		if err != nil {
			return fixed, err
		}
		if exists == rec.IsDownloaded {
			continue
		}
		err = r.db.WithContext(ctx).Model(&db.SongRecord{}).
			Where("id = ?", rec.ID).
			Update("is_downloaded", exists).Error
		if err != nil {
			return fixed, fmt.Errorf("failed to fix download flag for %s: %w", rec.ID, err)
		}
		logger.Info("[Library] 修正下载标记", logger.String("songId", rec.ID), logger.Bool("downloaded", exists))
		fixed++
	}
	return fixed, nil
}

// ========== 收藏 ==========

// ToggleFavorite 收藏或取消收藏，返回操作后的状态
func (r *gormLibraryRepository) ToggleFavorite(ctx context.Context, song model.Song) (bool, error) {
	if song.ID == "" {
		return false, fmt.Errorf("song id is required")
	}

	liked := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&db.FavoriteRecord{}, "song_id = ?", song.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		liked = true
		return tx.Create(&db.FavoriteRecord{SongID: song.ID, Song: song, LikedAt: r.now()}).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to toggle favorite %s: %w", song.ID, err)
	}
	return liked, nil
}

// IsFavorite 是否已收藏
func (r *gormLibraryRepository) IsFavorite(ctx context.Context, songID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.FavoriteRecord{}).Where("song_id = ?", songID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check favorite %s: %w", songID, err)
	}
	return count > 0, nil
}

// GetFavorites 收藏列表，最新在前
func (r *gormLibraryRepository) GetFavorites(ctx context.Context) ([]model.FavoriteEntry, error) {
	var recs []db.FavoriteRecord
	if err := r.db.WithContext(ctx).Order("liked_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	entries := make([]model.FavoriteEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, model.FavoriteEntry{Song: rec.Song, LikedAt: rec.LikedAt})
	}
	return entries, nil
}

// ========== 播放记录 ==========

func entryFromRecord(rec *db.HistoryRecord) model.HistoryEntry {
	return model.HistoryEntry{
		ID:        rec.ID,
		Song:      rec.Song,
		PlayedAt:  rec.PlayedAt,
		Duration:  rec.Duration,
		Completed: rec.Completed,
	}
}

func entriesFromRecords(recs []db.HistoryRecord) []model.HistoryEntry {
	entries := make([]model.HistoryEntry, 0, len(recs))
	for i := range recs {
		entries = append(entries, entryFromRecord(&recs[i]))
	}
	return entries
}

// AddHistory 追加一条播放记录，时间为当前时间
func (r *gormLibraryRepository) AddHistory(ctx context.Context, song model.Song, listened int, completed bool) (*model.HistoryEntry, error) {
	if song.ID == "" {
		return nil, fmt.Errorf("song id is required")
	}
	if listened < 0 {
		listened = 0
	}

	rec := db.HistoryRecord{
		SongID:    song.ID,
		Song:      song,
		PlayedAt:  r.now(),
		Duration:  listened,
		Completed: completed,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to add history for %s: %w", song.ID, err)
	}
	entry := entryFromRecord(&rec)
	return &entry, nil
}

// GetHistory 全部播放记录，按播放时间升序
func (r *gormLibraryRepository) GetHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	var recs []db.HistoryRecord
	if err := r.db.WithContext(ctx).Order("played_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entriesFromRecords(recs), nil
}

// GetListeningHistory 最近 limit 条播放记录，最新在前
func (r *gormLibraryRepository) GetListeningHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	var recs []db.HistoryRecord
	q := r.db.WithContext(ctx).Order("played_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to read listening history: %w", err)
	}
	return entriesFromRecords(recs), nil
}

// GetRecentlyPlayed 最近播放的歌曲，按歌曲去重，最新在前
func (r *gormLibraryRepository) GetRecentlyPlayed(ctx context.Context, limit int) ([]model.Song, error) {
	entries, err := r.GetListeningHistory(ctx, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	songs := make([]model.Song, 0)
	for _, e := range entries {
		if seen[e.Song.ID] {
			continue
		}
		seen[e.Song.ID] = true
		songs = append(songs, e.Song)
		if limit > 0 && len(songs) >= limit {
			break
		}
	}
	return songs, nil
}

// ========== 统计 ==========

// StorageStats 本地存储统计，音频大小逐首累加
func (r *gormLibraryRepository) StorageStats(ctx context.Context) (*model.StorageStats, error) {
	stats := &model.StorageStats{}
	q := r.db.WithContext(ctx)

	if err := q.Model(&db.SongRecord{}).Count(&stats.SongsCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count songs: %w", err)
	}
	if err := q.Model(&db.PlaylistRecord{}).Count(&stats.PlaylistsCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count playlists: %w", err)
	}

	downloaded, err := r.GetAllDownloaded(ctx)
	if err != nil {
		return nil, err
	}
	stats.DownloadedCount = int64(len(downloaded))
	for _, song := range downloaded {
		size, err := r.blobs.Size(ctx, song.ID)
		if err != nil {
			if errors.Is(err, storage.ErrBlobNotFound) {
				continue
			}
			return nil, err
		}
		stats.EstimatedSize += size
	}
	return stats, nil
}

// ClearAll 清空本地曲库（歌曲、音频、记录、收藏、歌单、下载队列、偏好）
func (r *gormLibraryRepository) ClearAll(ctx context.Context) error {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&db.SongRecord{}).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("failed to list songs: %w", err)
	}
	for _, id := range ids {
		if err := r.blobs.Delete(ctx, id); err != nil {
			return err
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&db.SongRecord{},
			&db.BlobRecord{},
			&db.HistoryRecord{},
			&db.FavoriteRecord{},
			&db.PlaylistRecord{},
			&db.PlaylistSongRecord{},
			&db.DownloadRecord{},
			&db.PreferenceRecord{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear library: %w", err)
	}

	logger.Warn("[Library] 本地曲库已清空", logger.Int("songs", len(ids)))
	return nil
}
