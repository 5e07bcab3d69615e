package server

import (
	"net/http"

	"soundwaves/core/download"
	"soundwaves/core/library"
	"soundwaves/core/player"
	"soundwaves/core/plugin"
	"soundwaves/core/resolver"
	"soundwaves/core/session"
	"soundwaves/repository"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

// Deps HTTP 层依赖的组件。Downloads 和 Remote 可以为空。
type Deps struct {
	Library   *library.Service
	Queue     repository.DownloadRepository
	Downloads *download.Manager
	Prefs     repository.PreferenceRepository
	Remote    repository.RemoteHistoryRepository
	Resolver  *resolver.Resolver
	Plugins   *plugin.MusicPluginManager
	Player    *player.Player
	Hub       *player.Hub
	Sessions  *session.Resolver
}

// APIHandler 处理所有API请求
type APIHandler struct {
	Deps
	upgrader websocket.Upgrader
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(deps Deps) *APIHandler {
	return &APIHandler{
		Deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// NewRouter 注册全部路由并套上 CORS、会话和日志中间件
func NewRouter(h *APIHandler) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)

	// YouTube 解析与搜索
	router.HandleFunc("/functions/youtube-audio", h.ResolveHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/youtube/resolve", h.ResolveHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/youtube/search", h.SearchHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/youtube/trending", h.TrendingHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/youtube/videos/{id}", h.VideoDetailHandler).Methods(http.MethodGet)

	// 本地曲库
	router.HandleFunc("/api/library", h.ClearLibraryHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/library/songs", h.ListSongsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/library/songs", h.SaveSongHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/library/songs/{id}", h.GetSongHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/library/songs/{id}", h.DeleteSongHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/library/songs/{id}/audio", h.SongAudioHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/library/reconcile", h.ReconcileHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/library/stats", h.StatsHandler).Methods(http.MethodGet)

	// 收藏
	router.HandleFunc("/api/favorites", h.ListFavoritesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/favorites/toggle", h.ToggleFavoriteHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/favorites/{id}", h.IsFavoriteHandler).Methods(http.MethodGet)

	// 播放记录
	router.HandleFunc("/api/history", h.ListHistoryHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/history", h.RecordPlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/history/recent", h.RecentlyPlayedHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/history/remote", h.RemoteHistoryHandler).Methods(http.MethodGet)

	// 歌单
	router.HandleFunc("/api/playlists", h.ListPlaylistsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists", h.CreatePlaylistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}", h.GetPlaylistHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}", h.DeletePlaylistHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/songs", h.AddPlaylistSongHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}/songs/{songId}", h.RemovePlaylistSongHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/order", h.ReorderPlaylistHandler).Methods(http.MethodPut)

	// 下载队列
	router.HandleFunc("/api/downloads", h.ListDownloadsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/downloads", h.SubmitDownloadHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/downloads/{songId}", h.GetDownloadHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/downloads/{songId}", h.CancelDownloadHandler).Methods(http.MethodDelete)

	// 推荐
	router.HandleFunc("/api/recommendations", h.RecommendHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/recommendations/discovery", h.DiscoveryHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/recommendations/moods", h.MoodsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/recommendations/mood/{mood}", h.MoodHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}/similar", h.SimilarHandler).Methods(http.MethodGet)

	// 播放器
	router.HandleFunc("/api/player", h.PlayerStateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/sleep-presets", h.SleepPresetsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/{action}", h.PlayerActionHandler).Methods(http.MethodPost)
	router.HandleFunc("/ws/player", h.PlayerWebSocketHandler)

	// 偏好设置
	router.HandleFunc("/api/preferences", h.ListPreferencesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/preferences/{key}", h.GetPreferenceHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/preferences/{key}", h.SetPreferenceHandler).Methods(http.MethodPut)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"HEAD", "GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Range", "x-client-info", "apikey"},
		ExposedHeaders:   []string{"Content-Length", "Content-Range"},
		AllowCredentials: false,
	}).Handler(router)

	return LoggingMiddleware(SessionMiddleware(h.Sessions)(corsHandler))
}

// HealthHandler 存活检查
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"playerClients": h.Hub.ClientCount(),
	})
}
