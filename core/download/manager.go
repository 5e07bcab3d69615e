// Package download 后台下载队列：把歌曲音频拉取到本地曲库
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"soundwaves/logger"
	"soundwaves/model"
	"soundwaves/repository"
)

var (
	// ErrAlreadyQueued 歌曲已在下载中
	ErrAlreadyQueued = errors.New("song is already queued for download")
	// ErrQueueFull 等待队列已满
	ErrQueueFull = errors.New("download queue is full")
	// ErrNoSource 既没有直链也没有 YouTube ID
	ErrNoSource = errors.New("song has no downloadable source")
	// ErrStopped Manager 已停止
	ErrStopped = errors.New("download manager stopped")
)

const maxAudioSize = 200 << 20

// Library 下载完成后写入曲库
type Library interface {
	SaveSong(ctx context.Context, song model.Song, blob []byte) (*model.Song, error)
	GetSong(ctx context.Context, id string) (*model.Song, error)
}

// URLResolver 为 YouTube 歌曲解析音频地址
type URLResolver interface {
	AudioURL(ctx context.Context, videoID string) (string, bool)
}

type job struct {
	ctx    context.Context
	cancel context.CancelFunc
	song   model.Song
}

// Manager 固定数量的 worker 从有界队列中取任务
type Manager struct {
	queue    repository.DownloadRepository
	library  Library
	resolver URLResolver
	client   *http.Client

	jobs    chan *job
	workers int
	wg      sync.WaitGroup

	mu      sync.Mutex
	active  map[string]*job
	stopped bool

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewManager 创建下载管理器，Start 之后才会处理任务
func NewManager(queue repository.DownloadRepository, library Library, resolver URLResolver, workers, queueSize int) *Manager {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		queue:    queue,
		library:  library,
		resolver: resolver,
		client:   &http.Client{Timeout: 10 * time.Minute},
		jobs:     make(chan *job, queueSize),
		workers:  workers,
		active:   make(map[string]*job),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// SetHTTPClient 替换下载使用的 HTTP 客户端
func (m *Manager) SetHTTPClient(c *http.Client) {
	m.client = c
}

// Start 启动 worker
func (m *Manager) Start() {
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for j := range m.jobs {
				m.process(j)
			}
		}()
	}
	logger.Info("[Download] 下载 worker 已启动", logger.Int("workers", m.workers))
}

// Stop 取消进行中的下载并等待 worker 退出
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	m.cancel()
	close(m.jobs)
	m.wg.Wait()
}

// Submit 加入下载队列。歌曲元数据先写入曲库，重启后可以恢复。
func (m *Manager) Submit(ctx context.Context, song model.Song) (*model.DownloadQueueItem, error) {
	if err := song.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrStopped
	}
	if _, ok := m.active[song.ID]; ok {
		return nil, ErrAlreadyQueued
	}

	if _, err := m.library.SaveSong(ctx, song, nil); err != nil {
		return nil, err
	}
	item, err := m.queue.Enqueue(ctx, song.ID)
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(m.baseCtx)
	j := &job{ctx: jobCtx, cancel: cancel, song: song}
	select {
	case m.jobs <- j:
	default:
		cancel()
		if err := m.queue.UpdateProgress(ctx, song.ID, model.DownloadFailed, 0, ErrQueueFull.Error()); err != nil {
			logger.Warn("[Download] 更新队列状态失败", logger.String("songId", song.ID), logger.ErrorField(err))
		}
		return nil, ErrQueueFull
	}
	m.active[song.ID] = j

	logger.Info("[Download] 已加入下载队列", logger.String("songId", song.ID), logger.String("title", song.Title))
	return item, nil
}

// Cancel 取消下载并移出队列
func (m *Manager) Cancel(ctx context.Context, songID string) error {
	m.mu.Lock()
	if j, ok := m.active[songID]; ok {
		j.cancel()
		delete(m.active, songID)
	}
	m.mu.Unlock()

	return m.queue.Remove(ctx, songID)
}

// IsActive 歌曲是否在等待或下载中
func (m *Manager) IsActive(songID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[songID]
	return ok
}

// Resume 重新提交上次退出时未完成的任务
func (m *Manager) Resume(ctx context.Context) (int, error) {
	items, err := m.queue.List(ctx)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, item := range items {
		if !item.Status.IsActive() {
			continue
		}
		song, err := m.library.GetSong(ctx, item.SongID)
		if err != nil {
			logger.Warn("[Download] 无法恢复下载，歌曲不存在", logger.String("songId", item.SongID), logger.ErrorField(err))
			_ = m.queue.UpdateProgress(ctx, item.SongID, model.DownloadFailed, item.Progress, "song metadata missing")
			continue
		}
		if _, err := m.Submit(ctx, *song); err != nil {
			if errors.Is(err, ErrAlreadyQueued) {
				continue
			}
			return resumed, err
		}
		resumed++
	}
	return resumed, nil
}

// finish 只清理自己的登记，取消后重新提交的同名任务不受影响
func (m *Manager) finish(j *job) {
	j.cancel()
	m.mu.Lock()
	if m.active[j.song.ID] == j {
		delete(m.active, j.song.ID)
	}
	m.mu.Unlock()
}

func (m *Manager) process(j *job) {
	defer m.finish(j)

	// 排队期间被取消
	if j.ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := m.download(j.ctx, j.song)
	if err == nil {
		logger.Info("[Download] 下载完成",
			logger.String("songId", j.song.ID),
			logger.Duration("elapsed", time.Since(start)))
		return
	}

	if j.ctx.Err() != nil {
		logger.Info("[Download] 下载已取消", logger.String("songId", j.song.ID))
		return
	}

	logger.Warn("[Download] 下载失败", logger.String("songId", j.song.ID), logger.ErrorField(err))
	progress := 0
	if item, getErr := m.queue.Get(context.Background(), j.song.ID); getErr == nil {
		progress = item.Progress
	}
	if updErr := m.queue.UpdateProgress(context.Background(), j.song.ID, model.DownloadFailed, progress, err.Error()); updErr != nil {
		logger.Warn("[Download] 更新队列状态失败", logger.String("songId", j.song.ID), logger.ErrorField(updErr))
	}
}

func (m *Manager) download(ctx context.Context, song model.Song) error {
	if err := m.queue.UpdateProgress(ctx, song.ID, model.DownloadDownloading, 0, ""); err != nil {
		return err
	}

	url, err := m.sourceURL(ctx, song)
	if err != nil {
		return err
	}

	data, err := m.fetch(ctx, url, func(percent int) {
		if err := m.queue.UpdateProgress(ctx, song.ID, model.DownloadDownloading, percent, ""); err != nil {
			logger.Debug("[Download] 更新进度失败", logger.String("songId", song.ID), logger.ErrorField(err))
		}
	})
	if err != nil {
		return err
	}

	if _, err := m.library.SaveSong(ctx, song, data); err != nil {
		return fmt.Errorf("failed to save audio: %w", err)
	}
	return m.queue.Remove(ctx, song.ID)
}

// sourceURL 直链优先，其次通过镜像解析 YouTube 音频
func (m *Manager) sourceURL(ctx context.Context, song model.Song) (string, error) {
	if song.StreamURL != "" {
		return song.StreamURL, nil
	}
	videoID := song.YouTubeID
	if videoID == "" && song.Source == model.SourceYouTube {
		videoID = strings.TrimPrefix(song.ID, "yt-")
	}
	if videoID == "" || m.resolver == nil {
		return "", ErrNoSource
	}
	url, ok := m.resolver.AudioURL(ctx, videoID)
	if !ok {
		return "", fmt.Errorf("no mirror returned audio for %s", videoID)
	}
	return url, nil
}

func (m *Manager) fetch(ctx context.Context, url string, onProgress func(int)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	if resp.ContentLength > maxAudioSize {
		return nil, fmt.Errorf("audio too large: %d bytes", resp.ContentLength)
	}

	pr := &progressReader{r: io.LimitReader(resp.Body, maxAudioSize+1), total: resp.ContentLength, report: onProgress}
	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := io.Copy(&buf, pr); err != nil {
		return nil, err
	}
	if buf.Len() > maxAudioSize {
		return nil, fmt.Errorf("audio exceeds %d bytes", maxAudioSize)
	}
	if buf.Len() == 0 {
		return nil, errors.New("empty audio response")
	}
	onProgress(100)
	return buf.Bytes(), nil
}

// progressReader 每前进 5% 回调一次；长度未知时不回调
type progressReader struct {
	r      io.Reader
	read   int64
	total  int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		percent := int(p.read * 100 / p.total)
		if percent >= 100 {
			percent = 99
		}
		if percent-p.last >= 5 {
			p.last = percent
			p.report(percent)
		}
	}
	return n, err
}
