package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// ListDownloadsHandler 下载队列，按加入时间排序
func (h *APIHandler) ListDownloadsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.Queue.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// SubmitDownloadHandler 提交下载任务
func (h *APIHandler) SubmitDownloadHandler(w http.ResponseWriter, r *http.Request) {
	if h.Downloads == nil {
		writeError(w, http.StatusServiceUnavailable, "Downloads are disabled", "")
		return
	}
	song, ok := h.decodeSong(w, r)
	if !ok {
		return
	}
	item, err := h.Downloads.Submit(r.Context(), *song)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

// GetDownloadHandler 单个任务的状态和进度
func (h *APIHandler) GetDownloadHandler(w http.ResponseWriter, r *http.Request) {
	item, err := h.Queue.Get(r.Context(), mux.Vars(r)["songId"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// CancelDownloadHandler 取消并移出队列
func (h *APIHandler) CancelDownloadHandler(w http.ResponseWriter, r *http.Request) {
	songID := mux.Vars(r)["songId"]
	var err error
	if h.Downloads != nil {
		err = h.Downloads.Cancel(r.Context(), songID)
	} else {
		err = h.Queue.Remove(r.Context(), songID)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
