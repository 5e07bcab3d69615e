package model

import "time"

// DownloadStatus represents the status of a download queue item
type DownloadStatus string

const (
	DownloadPending     DownloadStatus = "pending"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadCompleted   DownloadStatus = "completed"
	DownloadFailed      DownloadStatus = "failed"
)

// IsActive returns true if the item is waiting or in progress
func (s DownloadStatus) IsActive() bool {
	return s == DownloadPending || s == DownloadDownloading
}

// IsFinished returns true if the item reached a terminal state
func (s DownloadStatus) IsFinished() bool {
	return s == DownloadCompleted || s == DownloadFailed
}

// DownloadQueueItem 下载队列项，完成或取消后移除
type DownloadQueueItem struct {
	SongID   string         `json:"songId"`
	Status   DownloadStatus `json:"status"`
	Progress int            `json:"progress"` // 0-100
	AddedAt  time.Time      `json:"addedAt"`
	Error    string         `json:"error,omitempty"`
}
