// Command knowledge-service runs the reference Knowledge Store HTTP API
// (§4.5), default port 8501.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/config"
	"github.com/coordcore/core/internal/common/constants"
	"github.com/coordcore/core/internal/common/httpmw"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/services/knowledge"
)

const defaultPort = 8501

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	svc, err := knowledge.New(cfg.Shared.KnowledgeRoot, log)
	if err != nil {
		log.Fatal("failed to initialize knowledge service", zap.Error(err))
	}

	port := cfg.Server.Port
	if port == 0 {
		port = defaultPort
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestLogger(log, "knowledge-service"))
	router.Use(httpmw.OtelTracing("knowledge-service"))
	router.Use(corsPermissive())
	svc.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("knowledge service listening", zap.Int("port", port), zap.String("knowledge_root", cfg.Shared.KnowledgeRoot))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down knowledge service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
}

// corsPermissive applies the permissive CORS policy every reference
// service exposes by default (§4.5).
func corsPermissive() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "*")
		c.Header("Access-Control-Allow-Headers", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
