package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medmine/medmine/config"
	"medmine/medmine/controllers"
	"medmine/medmine/middlewares"
	"medmine/medmine/routes"
	"medmine/medmine/services/ingest"
	"medmine/medmine/services/llm"
	"medmine/medmine/sources/psql"
	"medmine/medmine/sources/psql/dao"
	"medmine/medmine/sources/storage"
	"medmine/medmine/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func main() {
	logging.InitLogger()
	defer logging.Sync()
	cfg := config.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := psql.NewDatabase(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("database connection error", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	sqlDB, err := db.DB.DB()
	if err != nil {
		logging.ErrorLogger.Error("database handle error", zap.Error(err))
		os.Exit(1)
	}

	runner, err := llm.NewRunner(cfg)
	if err != nil {
		logging.ErrorLogger.Error("llm configuration error", zap.Error(err))
		os.Exit(1)
	}

	batchDAO := dao.NewBatchDAO(db.DB)
	threadDAO := dao.NewChatThreadDAO(db.DB)

	broker := ingest.NewBroker()
	queue := ingest.NewQueue(batchDAO, broker, cfg.IngestWorkers, 0)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	queue.Start(workerCtx)

	svcOpts := []ingest.Option{ingest.WithSyncRows(cfg.IngestSyncRows)}
	// uploads are only archived when MinIO is configured
	if cfg.MinIOEndpoint != "" {
		minioClient, err := storage.NewMinIOClient(ctx, cfg)
		if err != nil {
			logging.ErrorLogger.Error("minio connection error", zap.Error(err))
			os.Exit(1)
		}
		svcOpts = append(svcOpts, ingest.WithArchive(minioClient))
	}
	ingestCtrl := controllers.NewIngestController(ingest.NewService(batchDAO, queue, broker, svcOpts...))
	chatCtrl := controllers.NewChatController(threadDAO, batchDAO, runner, cfg.LLMModel)
	healthCtrl := controllers.NewHealthController(sqlDB)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Mount("/health", routes.HealthRoutes(healthCtrl))
	r.Mount("/api/v1", routes.APIRoutes(ingestCtrl, chatCtrl, healthCtrl, cfg))

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	go func() {
		logging.AppLogger.Info("server listening", zap.String("addr", cfg.ListenAddr), zap.String("llm", cfg.LLMProvider))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorLogger.Error("server listen error", zap.Error(err))
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
	}
	// stored batches finish before the database is closed
	if err := queue.Close(); err != nil {
		logging.ErrorLogger.Error("ingest queue shutdown error", zap.Error(err))
	}
	stopWorkers()
	logging.AppLogger.Info("server shutdown complete")
}
