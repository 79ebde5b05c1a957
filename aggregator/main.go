package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aggregator/aggregator/config"
	"aggregator/aggregator/controllers"
	"aggregator/aggregator/middlewares"
	"aggregator/aggregator/routes"
	"aggregator/aggregator/services/llm"
	"aggregator/aggregator/sources/psql"
	"aggregator/aggregator/sources/psql/dao"
	"aggregator/aggregator/sources/storage"
	"aggregator/aggregator/utils/logging"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	logging.InitLoggerAt(cfg.LogDir)
	defer logging.Sync()

	catalog, err := config.LoadModelCatalog(cfg.ModelCatalogPath)
	if err != nil {
		logging.ErrorLogger.Fatal("model catalog", zap.String("path", cfg.ModelCatalogPath), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := psql.NewDatabase(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Fatal("database connection error", zap.Error(err))
	}
	defer db.Close()

	userDAO := dao.NewUserDAO(db.DB)
	chatDAO := dao.NewChatMessageDAO(db.DB)
	summaryDAO := dao.NewSessionSummaryDAO(db.DB)
	keyDAO := dao.NewAPIKeyDAO(db.DB)
	knowledgeDAO := dao.NewKnowledgeDAO(db.DB)

	keyCtrl := controllers.NewAPIKeyController(keyDAO)
	providers := llm.NewRegistry()
	providers.Register("openrouter", llm.NewOpenRouterClient(
		keyCtrl.KeyFunc("openrouter", cfg.OpenRouterAPIKey), "https://github.com/aggregator", "AI Aggregator"))
	providers.Register("openai", llm.NewOpenAIClient(keyCtrl.KeyFunc("openai", cfg.OpenAIAPIKey)))
	providers.Register("ollama", llm.NewOllamaClient(cfg.OllamaBaseURL))
	providers.Register("yandexgpt", llm.NewYandexGPTClient(keyCtrl.KeyFunc("yandexgpt", cfg.YandexAPIKey), cfg.YandexFolderID))

	var blobs storage.BlobStore
	if cfg.MinIOAccessKey != "" {
		minioClient, err := storage.NewMinIOClient(ctx, cfg)
		if err != nil {
			logging.ErrorLogger.Fatal("minio connection error", zap.Error(err))
		}
		blobs = minioClient
	} else {
		logging.AppLogger.Warn("MINIO_ACCESS_KEY not set, knowledge files are kept in memory")
		blobs = storage.NewMemoryBlobStore()
	}

	health := controllers.NewHealthController()
	health.Register("database", func(ctx context.Context) error {
		sqlDB, err := db.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	var limiter middlewares.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logging.ErrorLogger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		limiter = middlewares.NewRedisLimiter(rdb, cfg.ChatRateLimit, cfg.RateLimitWindow)
		health.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	} else {
		limiter = middlewares.NewLocalLimiter(cfg.ChatRateLimit, cfg.RateLimitWindow)
	}

	authCtrl := controllers.NewAuthController(userDAO, cfg)
	if err := authCtrl.EnsureAdmin(ctx); err != nil {
		logging.ErrorLogger.Fatal("seed admin", zap.Error(err))
	}

	r := routes.NewRouter(cfg, routes.Controllers{
		Chat:      controllers.NewChatController(chatDAO, summaryDAO, catalog, providers, knowledgeDAO),
		Auth:      authCtrl,
		Admin:     controllers.NewAdminController(userDAO),
		APIKeys:   keyCtrl,
		Knowledge: controllers.NewKnowledgeController(knowledgeDAO, blobs),
		Health:    health,
	}, limiter)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.AppLogger.Info("server listening", zap.String("addr", cfg.ServerAddr), zap.Int("models", len(catalog.Models)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorLogger.Fatal("server listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
		return
	}
	logging.AppLogger.Info("server shutdown complete")
}
