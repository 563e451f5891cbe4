package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	commonmw "github.com/YanagiOrigami/LightCPVerifier/internal/common/http/middleware"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/controller"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/problem"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/repository"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/service"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/store"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judged.yaml"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	setupPID := flag.String("setup", "", "Pre-compile checker binaries for one problem and exit")
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

	langTable, err := buildLanguageTable(appCfg.Languages)
	if err != nil {
		logger.Error(context.Background(), "parse language overrides failed", zap.Error(err))
		return
	}

	submissionStore, err := store.New(appCfg.Judge.DataRoot, appCfg.Judge.SubmissionsRoot, appCfg.Judge.BucketSize)
	if err != nil {
		logger.Error(context.Background(), "init submission store failed", zap.Error(err))
		return
	}
	loader := problem.NewLoader(appCfg.Judge.ProblemsRoot)
	verdicts := repository.NewVerdictRepository(submissionStore)

	engine, err := service.NewEngine(service.Config{
		SandboxAddr:    appCfg.Sandbox.Addr,
		SandboxTimeout: appCfg.Sandbox.RequestTimeout,
		TestlibPath:    appCfg.Sandbox.TestlibPath,
		Workers:        appCfg.Judge.Workers,
		SpillThreshold: appCfg.Judge.SpillThreshold,
		Languages:      langTable,
		Store:          submissionStore,
		Loader:         loader,
		Verdicts:       verdicts,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge engine failed", zap.Error(err))
		return
	}

	if *setupPID != "" {
		if err := engine.SetupProblem(context.Background(), *setupPID); err != nil {
			logger.Error(context.Background(), "setup problem failed", zap.String("pid", *setupPID), zap.Error(err))
			os.Exit(1)
		}
		logger.Info(context.Background(), "problem setup complete", zap.String("pid", *setupPID))
		return
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workers := engine.Start(workerCtx)

	httpServer := buildHTTPServer(appCfg.Server, engine, loader)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		stopWorkers()
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("problems", filepath.Clean(appCfg.Judge.ProblemsRoot)))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	stopWorkers()
	_ = workers.Wait()
}

func buildHTTPServer(cfg ServerConfig, engine *service.Engine, loader *problem.Loader) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	api := router.Group("/api/v1/judge")
	judgeController := controller.NewJudgeController(engine, loader)
	judgeController.Register(api)

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
