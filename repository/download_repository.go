package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soundwaves/db"
	"soundwaves/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DownloadRepository 下载队列
type DownloadRepository interface {
	Enqueue(ctx context.Context, songID string) (*model.DownloadQueueItem, error)
	UpdateProgress(ctx context.Context, songID string, status model.DownloadStatus, progress int, errMsg string) error
	Get(ctx context.Context, songID string) (*model.DownloadQueueItem, error)
	List(ctx context.Context) ([]model.DownloadQueueItem, error)
	Remove(ctx context.Context, songID string) error
}

type gormDownloadRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormDownloadRepository 创建下载队列仓库
func NewGormDownloadRepository(gdb *gorm.DB) DownloadRepository {
	return &gormDownloadRepository{db: gdb, now: time.Now}
}

func itemFromRecord(rec *db.DownloadRecord) model.DownloadQueueItem {
	return model.DownloadQueueItem{
		SongID:   rec.SongID,
		Status:   model.DownloadStatus(rec.Status),
		Progress: rec.Progress,
		AddedAt:  rec.AddedAt,
		Error:    rec.Error,
	}
}

// Enqueue 加入队列（pending, 0%），已存在的记录会被重置
func (r *gormDownloadRepository) Enqueue(ctx context.Context, songID string) (*model.DownloadQueueItem, error) {
	rec := db.DownloadRecord{
		SongID:  songID,
		Status:  string(model.DownloadPending),
		AddedAt: r.now(),
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue download %s: %w", songID, err)
	}
	item := itemFromRecord(&rec)
	return &item, nil
}

// UpdateProgress 更新状态和进度，进度限制在 0-100
func (r *gormDownloadRepository) UpdateProgress(ctx context.Context, songID string, status model.DownloadStatus, progress int, errMsg string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	res := r.db.WithContext(ctx).Model(&db.DownloadRecord{}).
		Where("song_id = ?", songID).
		Updates(map[string]interface{}{
			"status":   string(status),
			"progress": progress,
			"error":    errMsg,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update download %s: %w", songID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormDownloadRepository) Get(ctx context.Context, songID string) (*model.DownloadQueueItem, error) {
	var rec db.DownloadRecord
	err := r.db.WithContext(ctx).First(&rec, "song_id = ?", songID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get download %s: %w", songID, err)
	}
	item := itemFromRecord(&rec)
	return &item, nil
}

// List 队列内容，按加入时间升序
func (r *gormDownloadRepository) List(ctx context.Context) ([]model.DownloadQueueItem, error) {
	var recs []db.DownloadRecord
	if err := r.db.WithContext(ctx).Order("added_at ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	items := make([]model.DownloadQueueItem, 0, len(recs))
	for i := range recs {
		items = append(items, itemFromRecord(&recs[i]))
	}
	return items, nil
}

// Remove 移出队列，不存在时不报错
func (r *gormDownloadRepository) Remove(ctx context.Context, songID string) error {
	if err := r.db.WithContext(ctx).Delete(&db.DownloadRecord{}, "song_id = ?", songID).Error; err != nil {
		return fmt.Errorf("failed to remove download %s: %w", songID, err)
	}
	return nil
}
