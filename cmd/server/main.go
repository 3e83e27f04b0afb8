package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusmarket/backend/internal/config"
	"github.com/campusmarket/backend/internal/handler"
	"github.com/campusmarket/backend/internal/logging"
	"github.com/campusmarket/backend/internal/media"
	"github.com/campusmarket/backend/internal/metrics"
	"github.com/campusmarket/backend/internal/repository"
	"github.com/campusmarket/backend/internal/service"
	"github.com/campusmarket/backend/internal/settings"
	"github.com/campusmarket/backend/internal/storage"
	"github.com/campusmarket/backend/pkg/auth"
)

const uploadsPrefix = "/uploads"

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("invalid configuration", "error", err)
	}

	pool, err := repository.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("failed to connect to database", "error", err)
	}
	defer pool.Close()

	// アップロード先ディレクトリの準備。前回異常終了時のステージングは破棄する
	router := media.NewRouter(cfg.UploadDir, uploadsPrefix)
	if err := router.EnsureDirs(); err != nil {
		logging.Fatal("failed to prepare upload directories", "error", err, "dir", cfg.UploadDir)
	}
	if n, err := router.PurgeStaging(); err != nil {
		slog.Warn("staging purge failed", "error", err)
	} else if n > 0 {
		slog.Info("purged stale staging batches", "count", n)
	}

	observer, err := metrics.NewUploadObserver("", nil)
	if err != nil {
		logging.Fatal("failed to register metrics", "error", err)
	}
	pipeline := media.NewPipeline(router,
		media.WithWorkers(cfg.UploadWorkers),
		media.WithObserver(observer),
		media.WithLogger(slog.Default().With("component", "media")),
	)
	store := storage.NewLocalStorage(pipeline, router)

	siteSettings := settings.NewStore(repository.NewPgSettingsRepository(pool), cfg.Settings(), cfg.SettingsTTL)

	listingRepo := repository.NewPgListingRepository(pool)
	profileRepo := repository.NewPgProfileRepository(pool)
	mediaService := service.NewMediaService(store, listingRepo, profileRepo, siteSettings)

	sessionSecretBytes := auth.SessionSecretBytes(cfg.SessionSecret)

	h := handler.New(pool, cfg.FrontendURL)
	imageHandler := handler.NewImageHandler(mediaService)

	wrapAuth := func(next http.Handler) http.Handler {
		if cfg.AuthRequired {
			return auth.RequireAuth(sessionSecretBytes)(next)
		}
		return auth.DevAuth(next)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET "+uploadsPrefix+"/", handler.Uploads(uploadsPrefix, cfg.UploadDir))

	// 画像 API（認証必須）
	mux.Handle("POST /api/listings/{id}/images", wrapAuth(http.HandlerFunc(imageHandler.UploadListingImages)))
	mux.Handle("DELETE /api/listings/{id}/images", wrapAuth(http.HandlerFunc(imageHandler.DeleteListingImage)))
	mux.Handle("DELETE /api/listings/{id}", wrapAuth(http.HandlerFunc(imageHandler.DeleteListing)))
	mux.Handle("PUT /api/me/avatar", wrapAuth(http.HandlerFunc(imageHandler.UploadAvatar)))

	var root http.Handler = mux
	root = handler.Maintenance(siteSettings)(root)
	root = h.CORS(root)
	root = handler.SecurityHeaders(root)
	root = handler.RequestLogger(root)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", server.Addr, "upload_dir", cfg.UploadDir, "auth_required", cfg.AuthRequired)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 処理中のバッチは Shutdown がハンドラの完了を待つことで最後まで走る
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
