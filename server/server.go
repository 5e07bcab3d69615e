package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soundwaves/cache"
	"soundwaves/config"
	"soundwaves/core/download"
	"soundwaves/core/importer"
	"soundwaves/core/library"
	"soundwaves/core/mirror"
	"soundwaves/core/player"
	"soundwaves/core/plugin"
	"soundwaves/core/resolver"
	"soundwaves/core/session"
	"soundwaves/db"
	"soundwaves/logger"
	"soundwaves/repository"
	"soundwaves/storage"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 进程内的全部组件
type App struct {
	cfg       *config.Config
	library   *gorm.DB
	remote    *gorm.DB
	redis     *redis.Client
	outbox    cache.Outbox
	hub       *player.Hub
	downloads *download.Manager
	drainer   *mirror.Drainer
	watcher   *importer.Watcher
	handler   *APIHandler
}

// NewApp 按配置组装组件，远端数据库和 Redis 只在启用时连接
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	gdb, err := db.OpenLibraryDB(cfg.LibraryDBPath)
	if err != nil {
		return nil, err
	}
	app.library = gdb

	var blobs storage.BlobStore = storage.NewDBBlobStore(gdb)
	if cfg.BlobBackend == "minio" {
		store, err := storage.InitMinioBlobStore(ctx, cfg)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize MinIO: %w", err)
		}
		blobs = store
	}

	if cfg.OutboxBackend == "redis" {
		client, err := db.ConnectRedis(cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.redis = client
	}

	// 同步队列只在有 drainer 消费时创建
	var remote repository.RemoteHistoryRepository
	if cfg.RemoteHistoryEnabled {
		rdb, err := db.ConnectRemoteDB(cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.remote = rdb
		remote = repository.NewGormRemoteHistoryRepository(rdb)

		if app.redis != nil {
			app.outbox = cache.NewRedisOutbox(app.redis)
		} else {
			app.outbox = cache.NewMemoryOutbox()
		}
		app.drainer = mirror.NewDrainer(app.outbox, remote)
	}

	libRepo := repository.NewGormLibraryRepository(gdb, blobs)
	lib := library.NewService(libRepo, repository.NewGormPlaylistRepository(gdb), app.outbox, cfg.LibraryHistoryWindow)
	queue := repository.NewGormDownloadRepository(gdb)

	res := resolver.New(resolver.OptionsFromConfig(cfg))
	if app.redis != nil {
		res.SetCache(cache.NewVideoInfoCache(app.redis, cfg.VideoInfoTTL))
	}

	app.downloads = download.NewManager(queue, lib, res, cfg.DownloadWorkers, cfg.DownloadQueueSize)
	app.downloads.SetHTTPClient(&http.Client{Timeout: cfg.DownloadTimeout})

	if cfg.ImportDir != "" {
		app.watcher = importer.NewWatcher(importer.New(lib), cfg.ImportDir)
	}

	plugins := plugin.NewMusicPluginManager()
	plugins.Register(plugin.NewYouTubePlugin(cfg.YouTubeAPIKey, res))

	app.hub = player.NewHub()
	p := player.New(player.WithRecommender(lib), player.WithPublisher(app.hub))

	app.handler = NewAPIHandler(Deps{
		Library:   lib,
		Queue:     queue,
		Downloads: app.downloads,
		Prefs:     repository.NewGormPreferenceRepository(gdb),
		Remote:    remote,
		Resolver:  res,
		Plugins:   plugins,
		Player:    p,
		Hub:       app.hub,
		Sessions:  session.NewResolver(cfg.JWTSecret),
	})
	return app, nil
}

// Handler 带中间件的路由
func (a *App) Handler() http.Handler {
	return NewRouter(a.handler)
}

// Run 启动后台任务和 HTTP 服务，ctx 取消后优雅退出
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run()
	defer a.hub.Stop()

	a.downloads.Start()
	defer a.downloads.Stop()
	if n, err := a.downloads.Resume(ctx); err != nil {
		logger.Warn("[Server] 恢复下载队列失败", logger.ErrorField(err))
	} else if n > 0 {
		logger.Info("[Server] 已恢复未完成的下载", logger.Int("count", n))
	}

	if a.drainer != nil {
		go a.drainer.Run(ctx)
	}
	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("[Importer] 目录监听退出", logger.ErrorField(err))
			}
		}()
	}

	server := &http.Server{
		Addr:              a.cfg.ServerAddr,
		Handler:           a.Handler(),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.L()),
	}
	server.RegisterOnShutdown(func() {
		logger.Info("[Server] 正在关闭...")
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] 开始监听", logger.String("addr", a.cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen on %s: %w", a.cfg.ServerAddr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("[Server] 已停止")
	return nil
}

// Close 释放数据库和 Redis 连接
func (a *App) Close() {
	if a.library != nil {
		if err := db.Close(a.library); err != nil {
			logger.Warn("[Server] 关闭本地曲库失败", logger.ErrorField(err))
		}
	}
	if a.remote != nil {
		if err := db.Close(a.remote); err != nil {
			logger.Warn("[Server] 关闭远端数据库失败", logger.ErrorField(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("[Server] 关闭 Redis 失败", logger.ErrorField(err))
		}
	}
}

// Start 加载配置并运行服务，直到收到 SIGINT/SIGTERM
func Start() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Run(ctx)
}
