package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/relaycrm/mailroom/internal/api"
	"github.com/relaycrm/mailroom/internal/credential"
	"github.com/relaycrm/mailroom/internal/model"
	"github.com/relaycrm/mailroom/internal/store"
	"github.com/relaycrm/mailroom/internal/sync"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the configuration file")
	envCreds := flag.Bool("env-credentials", false, "read mailbox passwords from the environment instead of the system keyring")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Optional .env for local development.
	_ = godotenv.Load()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration failed")
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("opening database failed")
	}
	defer st.Close()

	var creds credential.Provider = credential.KeyringProvider{}
	if *envCreds {
		creds = credential.EnvProvider{}
	}

	controller := sync.NewController(st, creds, sync.IMAPDialer(log), cfg.Sync, log)
	server := api.NewServer(controller, st, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sync.PollIntervalSec > 0 {
		go runScheduler(ctx, controller, time.Duration(cfg.Sync.PollIntervalSec)*time.Second, log)
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Listen).Msg("http server listening")
		if err := server.Listen(cfg.Server.Listen); err != nil {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	if err := server.Shutdown(); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

// runScheduler triggers an incremental sync on a fixed interval until the
// context is cancelled.
func runScheduler(ctx context.Context, controller *sync.Controller, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("sync scheduler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := controller.SyncAll(ctx); err != nil {
				log.Error().Err(err).Msg("scheduled sync failed")
			}
		}
	}
}
