package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"soundwaves/config"
	"soundwaves/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const audioPrefix = "audio/"

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// MinioBlobStore 把离线音频保存到 MinIO 存储桶的 audio/ 前缀下
type MinioBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinioClient 根据配置创建 MinIO 客户端
func NewMinioClient(cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}
	return client, nil
}

// InitMinioBlobStore 连接 MinIO，存储桶不存在时创建
func InitMinioBlobStore(ctx context.Context, cfg *config.Config) (*MinioBlobStore, error) {
	logger.Info("[MinIO] 正在连接", logger.String("endpoint", cfg.MinioEndpoint), logger.String("bucket", cfg.MinioBucket))

	client, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("[MinIO] 成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	return NewMinioBlobStore(client, cfg.MinioBucket), nil
}

// NewMinioBlobStore 使用已有客户端创建 BlobStore
func NewMinioBlobStore(client *minio.Client, bucket string) *MinioBlobStore {
	return &MinioBlobStore{client: client, bucket: bucket}
}

func objectName(songID string) string {
	return path.Join(audioPrefix, songID)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// Put 上传音频
func (s *MinioBlobStore) Put(ctx context.Context, songID string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName(songID), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "audio/mpeg",
	})
	if err != nil {
		return fmt.Errorf("上传音频失败 %s: %w", songID, err)
	}
	return nil
}

// Get 下载音频
func (s *MinioBlobStore) Get(ctx context.Context, songID string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName(songID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取音频失败 %s: %w", songID, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("读取音频失败 %s: %w", songID, err)
	}
	return data, nil
}

// Delete 删除音频
func (s *MinioBlobStore) Delete(ctx context.Context, songID string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName(songID), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除音频失败 %s: %w", songID, err)
	}
	return nil
}

// Exists 判断音频是否存在
func (s *MinioBlobStore) Exists(ctx context.Context, songID string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectName(songID), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, fmt.Errorf("检查音频失败 %s: %w", songID, err)
}

// Size 返回音频大小
func (s *MinioBlobStore) Size(ctx context.Context, songID string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, objectName(songID), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return 0, ErrBlobNotFound
		}
		return 0, fmt.Errorf("检查音频失败 %s: %w", songID, err)
	}
	return info.Size, nil
}

// List 列出前缀下的对象及统计信息
func (s *MinioBlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{}
	var objects []ObjectInfo

	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		objects = append(objects, ObjectInfo{Key: object.Key, Size: object.Size, LastModified: object.LastModified})
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	return objects, stats, nil
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
