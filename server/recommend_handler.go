package server

import (
	"net/http"
	"strings"

	"soundwaves/core/recommend"

	"github.com/gorilla/mux"
)

const (
	defaultRecommendCount = 10
	maxRecommendCount     = 100
)

// RecommendHandler 个性化推荐，exclude 为逗号分隔的歌曲ID
func (h *APIHandler) RecommendHandler(w http.ResponseWriter, r *http.Request) {
	var exclude []string
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		exclude = strings.Split(raw, ",")
	}
	recs, err := h.Library.Recommend(r.Context(), queryInt(r, "count", defaultRecommendCount, maxRecommendCount), exclude)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// DiscoveryHandler 很少播放的歌曲
func (h *APIHandler) DiscoveryHandler(w http.ResponseWriter, r *http.Request) {
	scorer, err := h.Library.Scorer(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scorer.Discovery(queryInt(r, "count", defaultRecommendCount, maxRecommendCount)))
}

// MoodsHandler 支持的心情
func (h *APIHandler) MoodsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, recommend.Moods())
}

// MoodHandler 按心情推荐
func (h *APIHandler) MoodHandler(w http.ResponseWriter, r *http.Request) {
	scorer, err := h.Library.Scorer(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	mood := strings.ToLower(mux.Vars(r)["mood"])
	writeJSON(w, http.StatusOK, scorer.Mood(mood, queryInt(r, "count", defaultRecommendCount, maxRecommendCount)))
}

// SimilarHandler 与指定歌曲相似的歌曲
func (h *APIHandler) SimilarHandler(w http.ResponseWriter, r *http.Request) {
	song, err := h.Library.GetSong(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	scorer, err := h.Library.Scorer(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scorer.Similar(*song, queryInt(r, "count", 5, maxRecommendCount)))
}
