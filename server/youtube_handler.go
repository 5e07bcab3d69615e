package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"soundwaves/core/resolver"
	"soundwaves/logger"

	"github.com/gorilla/mux"
)

const resolveFailureDetails = "Failed to process YouTube audio request"

// ResolveHandler 解析 YouTube 视频元数据和音频地址。
// 所有镜像失败时仍返回 200，audioUrl 为 null。
func (h *APIHandler) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	var req resolver.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		logger.Warn("[Resolver] 请求解析失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, err.Error(), resolveFailureDetails)
		return
	}

	data, err := h.Resolver.Handle(r.Context(), req)
	if err != nil {
		if errors.Is(err, resolver.ErrInvalidVideoID) {
			writeError(w, http.StatusBadRequest, "Invalid video ID or URL", "")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), resolveFailureDetails)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// SearchHandler 搜索 YouTube，未配置 API key 时返回空列表
func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Missing 'q' parameter", "")
		return
	}
	songs, err := h.Plugins.Search(r.Context(), query, queryInt(r, "limit", 20, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to search YouTube", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// TrendingHandler 热门音乐
func (h *APIHandler) TrendingHandler(w http.ResponseWriter, r *http.Request) {
	songs, err := h.Plugins.Trending(r.Context(), queryInt(r, "limit", 20, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get trending", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// VideoDetailHandler 单个视频转换成歌曲
func (h *APIHandler) VideoDetailHandler(w http.ResponseWriter, r *http.Request) {
	p := h.Plugins.GetDefault()
	if p == nil {
		writeError(w, http.StatusNotFound, "YouTube plugin not available", "")
		return
	}
	song, err := p.GetDetail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "Video not found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, song)
}
