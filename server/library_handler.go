package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"soundwaves/core/session"
	"soundwaves/logger"
	"soundwaves/model"
	"soundwaves/repository"

	"github.com/gorilla/mux"
)

const maxUploadSize = 200 << 20

// ========== 歌曲 ==========

// ListSongsHandler 已下载的歌曲；带 source 参数时按来源过滤全部歌曲
func (h *APIHandler) ListSongsHandler(w http.ResponseWriter, r *http.Request) {
	var (
		songs []model.Song
		err   error
	)
	if source := r.URL.Query().Get("source"); source != "" {
		if !model.Source(source).Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %q", source), "")
			return
		}
		songs, err = h.Library.SongsBySource(r.Context(), model.Source(source))
	} else {
		songs, err = h.Library.GetAllDownloaded(r.Context())
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// SaveSongHandler 保存歌曲。
// multipart 表单：song 为歌曲 JSON，audio 为可选的音频文件；
// 也接受只包含歌曲 JSON 的请求体。
func (h *APIHandler) SaveSongHandler(w http.ResponseWriter, r *http.Request) {
	var (
		song model.Song
		blob []byte
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max memory
			writeError(w, http.StatusBadRequest, "Failed to parse multipart form", err.Error())
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("song")), &song); err != nil {
			writeError(w, http.StatusBadRequest, "Missing or invalid 'song' in form", err.Error())
			return
		}
		file, _, err := r.FormFile("audio")
		switch {
		case err == nil:
			defer file.Close()
			if blob, err = io.ReadAll(file); err != nil {
				writeError(w, http.StatusBadRequest, "Failed to read 'audio'", err.Error())
				return
			}
		case errors.Is(err, http.ErrMissingFile):
		default:
			writeError(w, http.StatusBadRequest, "Invalid 'audio' in form", err.Error())
			return
		}
	} else if !decodeJSON(w, r, &song) {
		return
	}

	saved, err := h.Library.SaveSong(r.Context(), song, blob)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// GetSongHandler 根据ID获取歌曲
func (h *APIHandler) GetSongHandler(w http.ResponseWriter, r *http.Request) {
	song, err := h.Library.GetSong(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// DeleteSongHandler 删除歌曲和音频
func (h *APIHandler) DeleteSongHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Library.DeleteSong(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SongAudioHandler 输出本地音频，支持 Range
func (h *APIHandler) SongAudioHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data, err := h.Library.GetSongAudio(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, id, time.Time{}, bytes.NewReader(data))
}

// ReconcileHandler 重新核对下载标记
func (h *APIHandler) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.Library.Reconcile(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// StatsHandler 存储统计
func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Library.StorageStats(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ClearLibraryHandler 清空本地曲库
func (h *APIHandler) ClearLibraryHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Library.ClearAll(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("[Library] 本地曲库已清空")
	w.WriteHeader(http.StatusNoContent)
}

// ========== 收藏 ==========

type songRequest struct {
	Song *model.Song `json:"song"`
}

func (h *APIHandler) decodeSong(w http.ResponseWriter, r *http.Request) (*model.Song, bool) {
	var req songRequest
	if !decodeJSON(w, r, &req) {
		return nil, false
	}
	if req.Song == nil {
		writeError(w, http.StatusBadRequest, "Missing 'song'", "")
		return nil, false
	}
	return req.Song, true
}

// ListFavoritesHandler 收藏列表，最新的在前
func (h *APIHandler) ListFavoritesHandler(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.Library.GetFavorites(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favorites)
}

// ToggleFavoriteHandler 切换收藏状态
func (h *APIHandler) ToggleFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	song, ok := h.decodeSong(w, r)
	if !ok {
		return
	}
	favorite, err := h.Library.ToggleFavorite(r.Context(), *song)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": favorite})
}

// IsFavoriteHandler 查询是否已收藏
func (h *APIHandler) IsFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	favorite, err := h.Library.IsFavorite(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": favorite})
}

// ========== 播放记录 ==========

// ListHistoryHandler 不带 limit 时按播放时间升序返回全部记录，带 limit 时返回最近的若干条
func (h *APIHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	var (
		entries []model.HistoryEntry
		err     error
	)
	if r.URL.Query().Get("limit") != "" {
		entries, err = h.Library.GetListeningHistory(r.Context(), queryInt(r, "limit", 50, 1000))
	} else {
		entries, err = h.Library.GetHistory(r.Context())
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type recordPlayRequest struct {
	Song      *model.Song `json:"song"`
	Duration  int         `json:"duration"`
	Completed bool        `json:"completed"`
}

// RecordPlayHandler 记录一次播放，登录用户同时写入远端同步队列
func (h *APIHandler) RecordPlayHandler(w http.ResponseWriter, r *http.Request) {
	var req recordPlayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Song == nil {
		writeError(w, http.StatusBadRequest, "Missing 'song'", "")
		return
	}
	if req.Duration < 0 {
		writeError(w, http.StatusBadRequest, "duration must not be negative", "")
		return
	}

	entry, err := h.Library.RecordPlay(r.Context(), session.FromContext(r.Context()), *req.Song, req.Duration, req.Completed)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// RecentlyPlayedHandler 最近播放（按歌曲去重）
func (h *APIHandler) RecentlyPlayedHandler(w http.ResponseWriter, r *http.Request) {
	songs, err := h.Library.GetRecentlyPlayed(r.Context(), queryInt(r, "limit", 20, 100))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// RemoteHistoryHandler 当前登录用户已同步到远端的记录
func (h *APIHandler) RemoteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := model.AuthenticatedUser(session.FromContext(r.Context()))
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", "")
		return
	}
	if h.Remote == nil {
		writeError(w, http.StatusNotFound, "Remote history is disabled", "")
		return
	}
	records, err := h.Remote.ListByUser(r.Context(), user.ID, queryInt(r, "limit", 50, 500))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// ========== 偏好设置 ==========

// ListPreferencesHandler 全部偏好
func (h *APIHandler) ListPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.Prefs.All(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// GetPreferenceHandler 读取单个偏好，原样返回保存的 JSON
func (h *APIHandler) GetPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	var value json.RawMessage
	if err := h.Prefs.Get(r.Context(), mux.Vars(r)["key"], &value); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Preference not found", "")
			return
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

// SetPreferenceHandler 请求体为任意 JSON 值
func (h *APIHandler) SetPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	var value json.RawMessage
	if !decodeJSON(w, r, &value) {
		return
	}
	if err := h.Prefs.Set(r.Context(), mux.Vars(r)["key"], value); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}
