package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/config"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/server"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	profilesPath := flag.String("profiles", "", "Path to YAML permission profiles")
	port := flag.String("port", "", "Server port (overrides config)")
	dev := flag.Bool("dev", false, "Development mode (colored logs, debug level)")
	flag.Parse()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dev {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	profiles, err := config.LoadProfiles(*profilesPath)
	if err != nil {
		logger.Fatal("failed to load permission profiles", zap.Error(err))
	}

	srv, err := server.NewServer(cfg, profiles, logger)
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
