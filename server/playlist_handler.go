package server

import (
	"errors"
	"fmt"
	"net/http"

	"soundwaves/model"
	"soundwaves/repository"

	"github.com/gorilla/mux"
)

// ListPlaylistsHandler 全部歌单，可按 type 过滤
func (h *APIHandler) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	repo := h.Library.Playlists()
	var (
		playlists []*model.Playlist
		err       error
	)
	if t := r.URL.Query().Get("type"); t != "" {
		if !model.PlaylistType(t).Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown playlist type %q", t), "")
			return
		}
		playlists, err = repo.ListByType(r.Context(), model.PlaylistType(t))
	} else {
		playlists, err = repo.List(r.Context())
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

type createPlaylistRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Thumbnail   string             `json:"thumbnail"`
	Type        model.PlaylistType `json:"type"`
	Songs       []model.Song       `json:"songs"`
}

// CreatePlaylistHandler 创建歌单；请求中的歌曲会先写入曲库
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ids := make([]string, 0, len(req.Songs))
	for _, song := range req.Songs {
		_, err := h.Library.GetSong(r.Context(), song.ID)
		if errors.Is(err, repository.ErrNotFound) {
			_, err = h.Library.SaveSong(r.Context(), song, nil)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		ids = append(ids, song.ID)
	}

	p := &model.Playlist{
		Name:        req.Name,
		Description: req.Description,
		Thumbnail:   req.Thumbnail,
		Type:        req.Type,
		SongIDs:     ids,
	}
	if err := h.Library.Playlists().Create(r.Context(), p); err != nil {
		writeErr(w, err)
		return
	}
	created, err := h.Library.Playlists().Get(r.Context(), p.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetPlaylistHandler 获取歌单及解析后的歌曲
func (h *APIHandler) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.Library.Playlists().Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePlaylistHandler 删除歌单
func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Library.Playlists().Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddPlaylistSongHandler 追加歌曲到自建歌单
func (h *APIHandler) AddPlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	song, ok := h.decodeSong(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.Library.AddToPlaylist(r.Context(), id, *song); err != nil {
		writeErr(w, err)
		return
	}
	h.writePlaylist(w, r, id)
}

// RemovePlaylistSongHandler 从自建歌单移除歌曲
func (h *APIHandler) RemovePlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Library.Playlists().RemoveSong(r.Context(), vars["id"], vars["songId"]); err != nil {
		writeErr(w, err)
		return
	}
	h.writePlaylist(w, r, vars["id"])
}

type reorderRequest struct {
	SongIDs []string `json:"songIds"`
}

// ReorderPlaylistHandler 重新排序，songIds 必须是当前成员的一个排列
func (h *APIHandler) ReorderPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.Library.Playlists().Reorder(r.Context(), id, req.SongIDs); err != nil {
		writeErr(w, err)
		return
	}
	h.writePlaylist(w, r, id)
}

func (h *APIHandler) writePlaylist(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.Library.Playlists().Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
