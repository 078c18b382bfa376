// Command orchestrator runs the Orchestrator (§4.4): submission routing,
// pipeline advancement, agent registration, and periodic offline/stuck-task
// sweeps, fronted by a small Gin status API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coordcore/core/internal/agent/registry"
	"github.com/coordcore/core/internal/bridge"
	"github.com/coordcore/core/internal/common/config"
	"github.com/coordcore/core/internal/common/constants"
	"github.com/coordcore/core/internal/common/httpmw"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/orchestrator"
	"github.com/coordcore/core/internal/task"
	"github.com/coordcore/core/internal/task/store"
	"github.com/coordcore/core/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	sharedDir := flag.String("shared-dir", cfg.Shared.SharedDir, "shared directory root")
	brokerURL := flag.String("broker-url", cfg.NATS.URL, "broker connection string")
	taskDBPath := flag.String("task-db", cfg.Shared.TaskDBPath, "sqlite path for the durable task registry")
	projectToHub := flag.Bool("project-to-hub", false, "mirror task lifecycle into the Coordination Hub reference service for external observers")
	flag.Parse()

	log, err := logger.NewLogger(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting orchestrator")

	cfg.NATS.URL = *brokerURL
	tr, err := transport.NewHybridTransport(*sharedDir, cfg.NATS, log)
	if err != nil {
		log.Fatal("failed to initialize transport", zap.Error(err))
	}
	defer tr.Close()

	taskStore, err := store.Open(*taskDBPath)
	if err != nil {
		log.Fatal("failed to open task store", zap.Error(err))
	}
	defer taskStore.Close()

	registryLog := log.WithFields(zap.String("component", "task-registry"))
	taskRegistry := task.NewRegistry(taskStore, registryLog)
	agentRegistry := registry.New()

	orch := orchestrator.New(taskRegistry, agentRegistry, tr, log.WithFields(zap.String("component", "orchestrator")), 0)
	if *projectToHub {
		orch.SetHubProjection(bridge.New(cfg.Bridge, log.WithFields(zap.String("component", "hub-projection"))))
		log.Info("coordination hub projection enabled", zap.String("coordination_url", cfg.Bridge.CoordinationURL))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go receiveLoop(ctx, tr, orch, log)
	go sweepLoop(ctx, orch, log)

	const defaultPort = 8500
	port := cfg.Server.Port
	if port == 0 {
		port = defaultPort
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestLogger(log, "orchestrator"))
	router.Use(httpmw.OtelTracing("orchestrator"))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "orchestrator"})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}
	go func() {
		log.Info("orchestrator HTTP server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down orchestrator")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.DefaultShutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("orchestrator stopped")
}

// receiveLoop pulls messages addressed to the orchestrator's own identity
// and dispatches them, mirroring the Agent Runtime's event loop but
// without dedup/idle bookkeeping that applies only to worker agents.
func receiveLoop(ctx context.Context, tr transport.Transport, orch *orchestrator.Orchestrator, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := tr.Receive(ctx, orchestrator.SelfID, constants.DefaultReceiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("orchestrator receive failed", zap.Error(err))
			continue
		}
		if msg == nil {
			continue
		}

		reply, err := orch.HandleMessage(ctx, msg)
		if err != nil {
			log.Error("orchestrator failed to handle message",
				zap.String("intent", string(msg.Intent)), zap.Error(err))
			errReply := msg.ErrorReply(orchestrator.SelfID, err)
			if sendErr := tr.Send(ctx, errReply); sendErr != nil {
				log.Error("failed to send error reply", zap.Error(sendErr))
			}
			continue
		}
		if reply != nil {
			if sendErr := tr.Send(ctx, reply); sendErr != nil {
				log.Error("failed to send reply", zap.Error(sendErr))
			}
		}
	}
}

// sweepLoop periodically marks stale agents OFFLINE and logs stuck tasks
// (§4.4 "Agent registration", §4.3 "Stuck-task detection").
func sweepLoop(ctx context.Context, orch *orchestrator.Orchestrator, log *logger.Logger) {
	ticker := time.NewTicker(constants.DefaultAgentOfflineWindow / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			orch.SweepOfflineAgents(constants.DefaultAgentOfflineWindow)
			orch.SweepStuckTasks(ctx, constants.DefaultStuckTaskThreshold)
			orch.DispatchReady(ctx)
		}
	}
}
