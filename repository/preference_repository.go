package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"soundwaves/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceRepository 用户偏好，值以 JSON 保存
type PreferenceRepository interface {
	Get(ctx context.Context, key string, dst interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	All(ctx context.Context) (map[string]json.RawMessage, error)
}

type gormPreferenceRepository struct {
	db *gorm.DB
}

func NewGormPreferenceRepository(gdb *gorm.DB) PreferenceRepository {
	return &gormPreferenceRepository{db: gdb}
}

// Get 读取偏好并解码到 dst
func (r *gormPreferenceRepository) Get(ctx context.Context, key string, dst interface{}) error {
	var rec db.PreferenceRecord
	err := r.db.WithContext(ctx).First(&rec, "pref_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(rec.Value), dst); err != nil {
		return fmt.Errorf("failed to decode preference %s: %w", key, err)
	}
	return nil
}

// Set 写入偏好
func (r *gormPreferenceRepository) Set(ctx context.Context, key string, value interface{}) error {
	if key == "" {
		return fmt.Errorf("preference key is required")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode preference %s: %w", key, err)
	}
	rec := db.PreferenceRecord{Key: key, Value: string(data), UpdatedAt: time.Now()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

// All 返回全部偏好
func (r *gormPreferenceRepository) All(ctx context.Context) (map[string]json.RawMessage, error) {
	var recs []db.PreferenceRecord
	if err := r.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	out := make(map[string]json.RawMessage, len(recs))
	for _, rec := range recs {
		out[rec.Key] = json.RawMessage(rec.Value)
	}
	return out, nil
}
