// Command agent launches a single pipeline worker (architect, builder, or
// validator) over the coordination core's Transport (§4.2, §6 "Process CLI
// surface").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/config"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/roles"
	"github.com/coordcore/core/internal/runtime"
	"github.com/coordcore/core/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	id := flag.String("id", cfg.Agent.ID, "agent id")
	sharedDir := flag.String("shared-dir", cfg.Shared.SharedDir, "shared directory root")
	brokerURL := flag.String("broker-url", cfg.NATS.URL, "broker connection string (empty disables the primary transport path)")
	role := flag.String("role", cfg.Agent.Role, "agent role: ARCHITECT, BUILDER, or VALIDATOR")
	flag.Parse()

	if *id == "" {
		fmt.Fprintln(os.Stderr, "--id (or AGENT_ID) is required")
		os.Exit(1)
	}
	kind := roles.Kind(*role)
	if kind != roles.KindArchitect && kind != roles.KindBuilder && kind != roles.KindValidator {
		fmt.Fprintf(os.Stderr, "--role (or AGENT_ROLE) must be one of ARCHITECT, BUILDER, VALIDATOR; got %q\n", *role)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting agent", zap.String("agent_id", *id), zap.String("role", string(kind)))

	cfg.NATS.URL = *brokerURL
	tr, err := transport.NewHybridTransport(*sharedDir, cfg.NATS, log)
	if err != nil {
		log.Fatal("failed to initialize transport", zap.Error(err))
	}
	defer tr.Close()

	opts := runtime.Options{
		AgentID:        *id,
		AgentRole:      string(kind),
		ReceiveTimeout: cfg.Agent.ReceiveTimeout(),
		IdleThreshold:  cfg.Agent.IdleThreshold,
		DedupSize:      cfg.Agent.DedupSize,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := roles.NewWorker(kind, *id, *sharedDir, tr, log)
	rt := runtime.New(opts, tr, worker, log)
	rt.RegisterHandler(transport.IntentRequest, worker.HandleRequest)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- rt.Run(ctx)
	}()

	select {
	case <-quit:
		log.Info("shutdown signal received")
		cancel()
		rt.Stop()
		<-runErrCh
	case err := <-runErrCh:
		if err != nil {
			log.Error("agent runtime exited with error", zap.Error(err))
			os.Exit(1)
		}
	}

	log.Info("agent stopped", zap.String("agent_id", *id))
}
