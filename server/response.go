package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"soundwaves/core/download"
	"soundwaves/core/player"
	"soundwaves/logger"
	"soundwaves/model"
	"soundwaves/repository"
)

const maxJSONBody = 4 << 20

// ErrorResponse 统一错误格式
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[HTTP] 写入响应失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, &ErrorResponse{Error: msg, Details: details})
}

// writeErr 按错误类型映射状态码
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("[HTTP] 请求处理失败", logger.ErrorField(err))
		writeError(w, status, "Internal server error", err.Error())
		return
	}
	writeError(w, status, err.Error(), "")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, player.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrReadOnlyPlaylist), errors.Is(err, download.ErrAlreadyQueued):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidSong),
		errors.Is(err, repository.ErrInvalidOrder),
		errors.Is(err, repository.ErrInvalidPlaylist),
		errors.Is(err, player.ErrEmptyQueue),
		errors.Is(err, player.ErrIndexOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, download.ErrQueueFull), errors.Is(err, download.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeJSON 解析请求体，失败时已经写好 400 响应
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

// queryInt 读取整数参数，缺失或非法时返回默认值，并限制上限
func queryInt(r *http.Request, key string, def, maxVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
