package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soundwaves/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrBlobNotFound 音频数据不存在
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore 保存离线音频数据，键为歌曲 ID
type BlobStore interface {
	Put(ctx context.Context, songID string, data []byte) error
	Get(ctx context.Context, songID string) ([]byte, error)
	Delete(ctx context.Context, songID string) error
	Exists(ctx context.Context, songID string) (bool, error)
	Size(ctx context.Context, songID string) (int64, error)
}

// DBBlobStore 把音频直接存进曲库的 song_blobs 表
type DBBlobStore struct {
	gdb *gorm.DB
}

// NewDBBlobStore 创建基于曲库数据库的 BlobStore
func NewDBBlobStore(gdb *gorm.DB) *DBBlobStore {
	return &DBBlobStore{gdb: gdb}
}

// WithTx 返回绑定到事务的副本，让 blob 与歌曲元数据一起提交
func (s *DBBlobStore) WithTx(tx *gorm.DB) *DBBlobStore {
	return &DBBlobStore{gdb: tx}
}

// Put 写入或覆盖音频数据
func (s *DBBlobStore) Put(ctx context.Context, songID string, data []byte) error {
	rec := db.BlobRecord{SongID: songID, Data: data, Size: int64(len(data)), UpdatedAt: time.Now()}
	err := s.gdb.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to put blob %s: %w", songID, err)
	}
	return nil
}

// Get 读取音频数据
func (s *DBBlobStore) Get(ctx context.Context, songID string) ([]byte, error) {
	var rec db.BlobRecord
	err := s.gdb.WithContext(ctx).First(&rec, "song_id = ?", songID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %s: %w", songID, err)
	}
	return rec.Data, nil
}

// Delete 删除音频数据，不存在时不报错
func (s *DBBlobStore) Delete(ctx context.Context, songID string) error {
	if err := s.gdb.WithContext(ctx).Delete(&db.BlobRecord{}, "song_id = ?", songID).Error; err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", songID, err)
	}
	return nil
}

// Exists 判断音频数据是否存在
func (s *DBBlobStore) Exists(ctx context.Context, songID string) (bool, error) {
	var count int64
	if err := s.gdb.WithContext(ctx).Model(&db.BlobRecord{}).Where("song_id = ?", songID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check blob %s: %w", songID, err)
	}
	return count > 0, nil
}

// Size 返回音频大小
func (s *DBBlobStore) Size(ctx context.Context, songID string) (int64, error) {
	var rec db.BlobRecord
	err := s.gdb.WithContext(ctx).Select("song_id", "size").First(&rec, "song_id = ?", songID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrBlobNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat blob %s: %w", songID, err)
	}
	return rec.Size, nil
}
