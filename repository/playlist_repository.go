package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"soundwaves/db"
	"soundwaves/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlaylistRepository 歌单数据访问接口。歌单只保存歌曲 ID，读取时按曲库解析。
type PlaylistRepository interface {
	Create(ctx context.Context, p *model.Playlist) error
	Get(ctx context.Context, id string) (*model.Playlist, error)
	List(ctx context.Context) ([]*model.Playlist, error)
	ListByType(ctx context.Context, t model.PlaylistType) ([]*model.Playlist, error)
	Delete(ctx context.Context, id string) error

	// 成员管理，仅限自建歌单
	AddSong(ctx context.Context, playlistID, songID string) error
	RemoveSong(ctx context.Context, playlistID, songID string) error
	Reorder(ctx context.Context, playlistID string, songIDs []string) error
}

type gormPlaylistRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormPlaylistRepository 创建 GORM 歌单仓库
func NewGormPlaylistRepository(gdb *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: gdb, now: time.Now}
}

// Create 创建歌单，ID 为空时生成 uuid，类型为空时视为自建歌单
func (r *gormPlaylistRepository) Create(ctx context.Context, p *model.Playlist) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlaylist)
	}
	if p.Type == "" {
		p.Type = model.PlaylistCustom
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPlaylist, p.Type)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = r.now()
	p.SongIDs = dedupe(p.SongIDs)
	p.SongCount = len(p.SongIDs)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := db.PlaylistRecord{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Thumbnail:   p.Thumbnail,
			Type:        string(p.Type),
			SongCount:   p.SongCount,
			CreatedAt:   p.CreatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to create playlist: %w", err)
		}
		if len(p.SongIDs) == 0 {
			return nil
		}
		members := make([]db.PlaylistSongRecord, 0, len(p.SongIDs))
		for i, songID := range p.SongIDs {
			members = append(members, db.PlaylistSongRecord{PlaylistID: p.ID, SongID: songID, Position: i})
		}
		if err := tx.Create(&members).Error; err != nil {
			return fmt.Errorf("failed to add playlist songs: %w", err)
		}
		return nil
	})
}

// Get 根据ID获取歌单，Songs 中跳过已从曲库删除的歌曲
func (r *gormPlaylistRepository) Get(ctx context.Context, id string) (*model.Playlist, error) {
	var rec db.PlaylistRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get playlist %s: %w", id, err)
	}
	return r.resolve(ctx, &rec)
}

// List 所有歌单，最新在前
func (r *gormPlaylistRepository) List(ctx context.Context) ([]*model.Playlist, error) {
	return r.list(ctx, r.db.WithContext(ctx))
}

// ListByType 按类型筛选歌单
func (r *gormPlaylistRepository) ListByType(ctx context.Context, t model.PlaylistType) ([]*model.Playlist, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("type = ?", string(t)))
}

func (r *gormPlaylistRepository) list(ctx context.Context, q *gorm.DB) ([]*model.Playlist, error) {
	var recs []db.PlaylistRecord
	if err := q.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	playlists := make([]*model.Playlist, 0, len(recs))
	for i := range recs {
		p, err := r.resolve(ctx, &recs[i])
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, p)
	}
	return playlists, nil
}

// resolve 加载成员 ID 并从 songs 表解析歌曲
func (r *gormPlaylistRepository) resolve(ctx context.Context, rec *db.PlaylistRecord) (*model.Playlist, error) {
	p := &model.Playlist{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Thumbnail:   rec.Thumbnail,
		Type:        model.PlaylistType(rec.Type),
		CreatedAt:   rec.CreatedAt,
		SongCount:   rec.SongCount,
		SongIDs:     []string{},
		Songs:       []model.Song{},
	}

	var members []db.PlaylistSongRecord
	err := r.db.WithContext(ctx).
		Where("playlist_id = ?", rec.ID).
		Order("position ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load playlist songs: %w", err)
	}
	if len(members) == 0 {
		return p, nil
	}

	for _, m := range members {
		p.SongIDs = append(p.SongIDs, m.SongID)
	}

	var songs []db.SongRecord
	if err := r.db.WithContext(ctx).Where("id IN ?", p.SongIDs).Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve playlist songs: %w", err)
	}
	byID := make(map[string]*db.SongRecord, len(songs))
	for i := range songs {
		byID[songs[i].ID] = &songs[i]
	}
	for _, songID := range p.SongIDs {
		if s, ok := byID[songID]; ok {
			p.Songs = append(p.Songs, songFromRecord(s))
		}
	}
	return p, nil
}

// Delete 删除歌单及其成员
func (r *gormPlaylistRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&db.PlaylistSongRecord{}, "playlist_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete playlist songs: %w", err)
		}
		res := tx.Delete(&db.PlaylistRecord{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete playlist %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// mutable 在事务内加载歌单并确认可修改
func mutable(tx *gorm.DB, playlistID string) error {
	var rec db.PlaylistRecord
	if err := tx.First(&rec, "id = ?", playlistID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get playlist %s: %w", playlistID, err)
	}
	if model.PlaylistType(rec.Type) != model.PlaylistCustom {
		return ErrReadOnlyPlaylist
	}
	return nil
}

// syncCount 重新统计成员数量，与成员变更在同一事务内
func syncCount(tx *gorm.DB, playlistID string) error {
	var count int64
	if err := tx.Model(&db.PlaylistSongRecord{}).Where("playlist_id = ?", playlistID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count playlist songs: %w", err)
	}
	return tx.Model(&db.PlaylistRecord{}).Where("id = ?", playlistID).Update("song_count", count).Error
}

// AddSong 把歌曲追加到歌单末尾，已存在时不做处理
func (r *gormPlaylistRepository) AddSong(ctx context.Context, playlistID, songID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mutable(tx, playlistID); err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&db.PlaylistSongRecord{}).
			Where("playlist_id = ? AND song_id = ?", playlistID, songID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		var maxPos sql.NullInt64
		if err := tx.Model(&db.PlaylistSongRecord{}).
			Where("playlist_id = ?", playlistID).
			Select("MAX(position)").Row().Scan(&maxPos); err != nil {
			return err
		}
		pos := 0
		if maxPos.Valid {
			pos = int(maxPos.Int64) + 1
		}

		if err := tx.Create(&db.PlaylistSongRecord{PlaylistID: playlistID, SongID: songID, Position: pos}).Error; err != nil {
			return fmt.Errorf("failed to add song to playlist: %w", err)
		}
		return syncCount(tx, playlistID)
	})
}

// RemoveSong 从歌单移除歌曲
func (r *gormPlaylistRepository) RemoveSong(ctx context.Context, playlistID, songID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mutable(tx, playlistID); err != nil {
			return err
		}
		res := tx.Delete(&db.PlaylistSongRecord{}, "playlist_id = ? AND song_id = ?", playlistID, songID)
		if res.Error != nil {
			return fmt.Errorf("failed to remove song from playlist: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return syncCount(tx, playlistID)
	})
}

// Reorder 按给定顺序重排，songIDs 必须恰好是当前成员
func (r *gormPlaylistRepository) Reorder(ctx context.Context, playlistID string, songIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mutable(tx, playlistID); err != nil {
			return err
		}

		var current []string
		if err := tx.Model(&db.PlaylistSongRecord{}).
			Where("playlist_id = ?", playlistID).
			Pluck("song_id", &current).Error; err != nil {
			return err
		}
		if !samePermutation(current, songIDs) {
			return ErrInvalidOrder
		}

		for i, songID := range songIDs {
			if err := tx.Model(&db.PlaylistSongRecord{}).
				Where("playlist_id = ? AND song_id = ?", playlistID, songID).
				Update("position", i).Error; err != nil {
				return fmt.Errorf("failed to reorder playlist: %w", err)
			}
		}
		return nil
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func samePermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, id := range a {
		counts[id]++
	}
	for _, id := range b {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}
