package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"soundwaves/core/player"
	"soundwaves/logger"

	"github.com/gorilla/mux"
)

// PlayerStateHandler 当前播放器状态
func (h *APIHandler) PlayerStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Player.Snapshot())
}

// SleepPresetsHandler 定时停止的预设分钟数
func (h *APIHandler) SleepPresetsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, player.SleepPresets)
}

// PlayerActionHandler 执行播放器操作，请求体为操作参数（可为空）
func (h *APIHandler) PlayerActionHandler(w http.ResponseWriter, r *http.Request) {
	var cmd player.Command
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &cmd); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
	}
	cmd.Action = mux.Vars(r)["action"]

	state, err := h.Player.Dispatch(cmd)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			// 参数缺失等校验错误
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// PlayerWebSocketHandler 订阅播放器状态，也可以通过消息控制播放
func (h *APIHandler) PlayerWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[PlayerHub] WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := player.NewClient(h.Hub, conn)
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump(context.Background(), h.Player)
}
