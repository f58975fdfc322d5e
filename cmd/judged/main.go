// judged serves the judge API: submission evaluation and test-data
// administration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"intcode/internal/common/cache"
	"intcode/internal/common/db"
	"intcode/internal/judge/controller"
	"intcode/internal/judge/repository"
	"intcode/internal/judge/sandbox"
	"intcode/internal/judge/service"
	"intcode/internal/judge/storage"
	"intcode/pkg/utils/logger"
)

const defaultConfigPath = "configs/judged.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQL(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	var problemCache cache.Cache
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(context.Background(), "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		problemCache = redisCache
	}

	store, err := storage.NewStore(appCfg.Judge.TestcaseRoot,
		storage.WithMaxExtractBytes(appCfg.Judge.MaxZipExtractBytes))
	if err != nil {
		logger.Error(context.Background(), "init testcase storage failed", zap.Error(err))
		return
	}

	runner, err := sandbox.NewRunner(sandbox.Config{
		HelperPath:     appCfg.Sandbox.HelperPath,
		StderrMaxBytes: appCfg.Sandbox.StderrMaxBytes,
	})
	if err != nil {
		logger.Error(context.Background(), "init sandbox runner failed", zap.Error(err))
		return
	}

	problemRepo := repository.NewProblemRepo(mysqlDB, problemCache)
	testcaseRepo := repository.NewTestCaseRepo(mysqlDB)
	submissionRepo := repository.NewSubmissionRepo(mysqlDB)

	judgeService := service.New(service.Config{
		WorkDir:            appCfg.Judge.WorkDir,
		CaseTimeoutSec:     appCfg.Judge.CaseTimeout,
		CompileTimeoutSec:  appCfg.Judge.CompileTimeout,
		OutputLimitBytes:   appCfg.Judge.OutputLimit,
		MaxOutputBytes:     appCfg.Judge.MaxOutputBytes,
		MemoryLimitMB:      appCfg.Judge.MemoryLimitMB,
		Concurrency:        appCfg.Judge.Concurrency,
		CppCompileTemplate: appCfg.Judge.CppCompileTemplate,
		PythonBin:          appCfg.Judge.PythonBin,
		SeccompProfile:     appCfg.Sandbox.SeccompProfile,
	}, runner, store, problemRepo, submissionRepo)

	httpServer := buildHTTPServer(appCfg.Server, judgeService, problemRepo, testcaseRepo, store, mysqlDB)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judged http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg ServerConfig, judgeService *service.Service,
	problemRepo *repository.ProblemRepo, testcaseRepo *repository.TestCaseRepo,
	store *storage.Store, database db.Database) *http.Server {

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	ctl := controller.New(judgeService, problemRepo, testcaseRepo, store)
	ctl.Register(api)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
