package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-pipeline/api"
	"github.com/fyerfyer/doc-pipeline/api/handler"
	"github.com/fyerfyer/doc-pipeline/api/middleware"
	"github.com/fyerfyer/doc-pipeline/config"
	"github.com/fyerfyer/doc-pipeline/internal/document"
	"github.com/fyerfyer/doc-pipeline/internal/pipeline"
	"github.com/fyerfyer/doc-pipeline/internal/resources"
	"github.com/fyerfyer/doc-pipeline/pkg/storage"
	"github.com/fyerfyer/doc-pipeline/pkg/taskqueue"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	runWorker := flag.Bool("worker", false, "Also run the task queue worker in this process")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gin.SetMode(cfg.Server.Mode)

	logger := config.NewLogger(cfg.Log)
	middleware.SetLogger(logger)
	logger.Info("Starting document pipeline...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.StorageOptions())
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	runner := setupRunner(ctx, cfg, store, logger)

	// 初始化任务队列（如果启用）
	var queue taskqueue.Queue
	if cfg.Queue.Enable {
		qcfg := cfg.QueueOptions()
		qcfg.Logger = logger

		redisQueue, err := taskqueue.NewRedisQueue(qcfg)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer redisQueue.Close()
		queue = redisQueue
		logger.Info("Task queue initialized successfully")

		if *runWorker {
			worker := taskqueue.NewRedisWorker(redisQueue, qcfg)
			runner.RegisterTaskHandlers(worker)
			if err := worker.Start(); err != nil {
				logger.Fatalf("Failed to start worker: %v", err)
			}
			defer worker.Stop()
			logger.WithField("concurrency", qcfg.Concurrency).Info("Task worker started")
		}
	} else if *runWorker {
		logger.Fatal("The -worker flag requires queue.enable in config")
	}

	router := api.SetupRouter(
		handler.NewFileHandler(store),
		handler.NewNodeHandler(runner, queue),
		handler.NewTaskHandler(queue),
		cfg.Server.AllowOrigins,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// setupRunner 创建节点执行器
func setupRunner(ctx context.Context, cfg *config.Config, store storage.Storage, logger *logrus.Logger) *pipeline.Runner {
	opts := []pipeline.RunnerOption{
		pipeline.WithLogger(logger),
		pipeline.WithDefaults(cfg.NodeDefaults()),
		pipeline.WithUploader(pipeline.NewUploader(store, cfg.Pipeline.UploadRate, cfg.Pipeline.UploadBurst, logger)),
		pipeline.WithUnitTimeout(cfg.Pipeline.UnitTimeout),
		pipeline.WithTempDir(cfg.Pipeline.TempDir),
	}

	if cfg.Pipeline.SpellingCorpus != "" {
		speller, err := document.LoadSpeller(cfg.Pipeline.SpellingCorpus)
		if err != nil {
			logger.Fatalf("Failed to load spelling corpus: %v", err)
		}
		opts = append(opts, pipeline.WithSpeller(speller))
		logger.WithField("words", speller.Words()).Info("Spelling corpus loaded")
	}

	// 启动时探测一次主机资源用于诊断，执行节点时会重新探测
	host, err := resources.Detect(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to detect host resources")
	} else {
		logger.WithFields(logrus.Fields{
			"cpu_cores":       host.CPUCores,
			"total_memory_gb": host.TotalMemoryGB,
			"avail_memory_gb": host.AvailableMemoryGB,
		}).Info("Host resources detected")
	}

	return pipeline.NewRunner(pipeline.DefaultRegistry(), store, opts...)
}
