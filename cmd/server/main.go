// Command server runs the repository preview environment launcher.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"repolaunch-server/internal/classifier"
	"repolaunch-server/internal/config"
	"repolaunch-server/internal/github"
	"repolaunch-server/internal/handler"
	"repolaunch-server/internal/middleware"
	"repolaunch-server/internal/sandbox"
	"repolaunch-server/internal/service"
	"repolaunch-server/internal/store"
	"repolaunch-server/internal/websocket"
)

func main() {
	cfg, err := config.Load("./configs")
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}

	logger := newLogger(cfg)

	st, err := store.NewRedisStore(cfg)
	if err != nil {
		logger.Fatal("failed to connect to redis", "err", err)
	}

	repos := github.NewClient(cfg)
	executor := sandbox.NewClient(cfg)
	cls := classifier.NewAIClassifier(cfg)

	coordinator := service.NewCoordinator(st, repos, executor, cls, cfg, nil, logger)
	projector := service.NewProjector(st)

	sessionHandler := handler.NewSessionHandler(coordinator, projector)
	logStreamer := websocket.NewLogStreamer(projector, logger)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	registerRoutes(router, cfg, st, logger, sessionHandler, logStreamer)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
		// Long write timeout: exec pass-through waits for commands.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		logger.Info("server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
	if err := st.Close(); err != nil {
		logger.Error("failed to close store", "err", err)
	}
	logger.Info("server exited")
}

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

func registerRoutes(
	router *gin.Engine,
	cfg *config.Config,
	st store.Store,
	logger *log.Logger,
	sessionHandler *handler.SessionHandler,
	logStreamer *websocket.LogStreamer,
) {
	router.GET("/health", sessionHandler.Health)

	// Launching is the only path that creates durable state, so it alone
	// carries the per-IP rate limit.
	router.GET("/gh/:owner/:repo",
		middleware.LaunchRateLimit(st, cfg, logger), sessionHandler.Launch)

	router.GET("/session/:id", sessionHandler.StatusPage)

	api := router.Group("/api")
	{
		api.GET("/status/:id", sessionHandler.Status)
		api.POST("/exec/:id", sessionHandler.Exec)
		api.POST("/stop/:id", sessionHandler.Stop)
		api.GET("/logs/:id/stream", logStreamer.Stream)
	}
}
