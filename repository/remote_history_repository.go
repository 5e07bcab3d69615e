package repository

import (
	"context"
	"fmt"

	"soundwaves/db"
	"soundwaves/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteHistoryRepository 远端 listening_history 表
type RemoteHistoryRepository interface {
	// Insert 按 outbox id 幂等写入
	Insert(ctx context.Context, rec model.RemoteHistoryRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.RemoteHistoryRecord, error)
}

type gormRemoteHistoryRepository struct {
	db *gorm.DB
}

// NewGormRemoteHistoryRepository 创建远端收听记录仓库
func NewGormRemoteHistoryRepository(gdb *gorm.DB) RemoteHistoryRepository {
	return &gormRemoteHistoryRepository{db: gdb}
}

func (r *gormRemoteHistoryRepository) Insert(ctx context.Context, rec model.RemoteHistoryRecord) error {
	row := db.RemoteListeningHistory{
		OutboxID:      rec.ID,
		UserID:        rec.UserID,
		SongID:        rec.SongID,
		SongTitle:     rec.SongTitle,
		SongArtist:    rec.SongArtist,
		SongThumbnail: rec.SongThumbnail,
		Duration:      rec.Duration,
		PlayedAt:      rec.PlayedAt,
		Completed:     rec.Completed,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "outbox_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to insert listening history: %w", err)
	}
	return nil
}

func (r *gormRemoteHistoryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.RemoteHistoryRecord, error) {
	var rows []db.RemoteListeningHistory
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("played_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list listening history: %w", err)
	}
	out := make([]model.RemoteHistoryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.RemoteHistoryRecord{
			ID:            row.OutboxID,
			UserID:        row.UserID,
			SongID:        row.SongID,
			SongTitle:     row.SongTitle,
			SongArtist:    row.SongArtist,
			SongThumbnail: row.SongThumbnail,
			Duration:      row.Duration,
			PlayedAt:      row.PlayedAt,
			Completed:     row.Completed,
		})
	}
	return out, nil
}
