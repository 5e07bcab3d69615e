// Package library 本地曲库服务：本地写入优先，登录用户的播放记录异步同步到远端
package library

import (
	"context"
	"errors"
	"time"

	"soundwaves/cache"
	"soundwaves/core/recommend"
	"soundwaves/logger"
	"soundwaves/model"
	"soundwaves/repository"

	"github.com/google/uuid"
)

// Service 组合曲库、歌单仓库和远端同步队列
type Service struct {
	repository.LibraryRepository
	playlists     repository.PlaylistRepository
	outbox        cache.Outbox
	historyWindow int
	now           func() time.Time
}

// NewService 创建曲库服务，outbox 为 nil 时不做远端同步
func NewService(lib repository.LibraryRepository, playlists repository.PlaylistRepository, outbox cache.Outbox, historyWindow int) *Service {
	if historyWindow <= 0 {
		historyWindow = 200
	}
	return &Service{
		LibraryRepository: lib,
		playlists:         playlists,
		outbox:            outbox,
		historyWindow:     historyWindow,
		now:               time.Now,
	}
}

// Playlists 歌单仓库
func (s *Service) Playlists() repository.PlaylistRepository {
	return s.playlists
}

// RecordPlay 写入本地播放记录；登录会话额外加入远端同步队列。
// 本地写入失败返回错误，同步队列失败只记录日志。
func (s *Service) RecordPlay(ctx context.Context, sess model.Session, song model.Song, listened int, completed bool) (*model.HistoryEntry, error) {
	entry, err := s.AddHistory(ctx, song, listened, completed)
	if err != nil {
		return nil, err
	}

	user, ok := model.AuthenticatedUser(sess)
	if !ok || s.outbox == nil {
		return entry, nil
	}

	rec := model.RemoteHistoryRecord{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		SongID:        song.ID,
		SongTitle:     song.Title,
		SongArtist:    song.Artist,
		SongThumbnail: song.Thumbnail,
		Duration:      entry.Duration,
		PlayedAt:      entry.PlayedAt,
		Completed:     completed,
	}
	if err := s.outbox.Push(ctx, rec); err != nil {
		logger.Warn("[Library] 远端同步入队失败",
			logger.String("songId", song.ID),
			logger.String("userId", user.ID),
			logger.ErrorField(err))
	}
	return entry, nil
}

// AddToPlaylist 先保存歌曲元数据（保留已有离线音频），再加入歌单
func (s *Service) AddToPlaylist(ctx context.Context, playlistID string, song model.Song) error {
	if _, err := s.GetSong(ctx, song.ID); errors.Is(err, repository.ErrNotFound) {
		if _, err := s.SaveSong(ctx, song, nil); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return s.playlists.AddSong(ctx, playlistID, song.ID)
}

// Scorer 用当前曲库和最近的播放记录构造推荐打分器
func (s *Service) Scorer(ctx context.Context) (*recommend.Scorer, error) {
	catalog, err := s.GetAllSongs(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.GetListeningHistory(ctx, s.historyWindow)
	if err != nil {
		return nil, err
	}
	return recommend.NewScorer(catalog, history, recommend.WithNow(s.now)), nil
}

// Recommend 推荐 count 首，跳过 exclude
func (s *Service) Recommend(ctx context.Context, count int, exclude []string) ([]model.Recommendation, error) {
	scorer, err := s.Scorer(ctx)
	if err != nil {
		return nil, err
	}
	return scorer.Recommend(count, exclude), nil
}
