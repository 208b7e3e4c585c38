package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/whiteboard-labs/whiteboard-relay/backend/config"
	"github.com/whiteboard-labs/whiteboard-relay/backend/relay"
	httpServer "github.com/whiteboard-labs/whiteboard-relay/backend/server/http"
	websocketServer "github.com/whiteboard-labs/whiteboard-relay/backend/server/websocket"
	"github.com/whiteboard-labs/whiteboard-relay/backend/service"
	store "github.com/whiteboard-labs/whiteboard-relay/backend/storage/memory"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	fs.StringP("api-listen-addr", "a", ":8080", "api listen address")
	fs.StringP("ws-listen-addr", "w", ":8888", "websocket relay listen address")
	fs.StringP("log-level", "l", "debug", "log level")
	cfgFile := fs.StringP("config", "c", "", "optional yaml config file")

	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := config.Load(fs, *cfgFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	registry := relay.NewRegistry(&logger)
	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(),
		Registry:  registry,
		Logger:    &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:        &logger,
		RelayService:  svc,
		ListenAddr:    cfg.WSListenAddr,
		ReadLimit:     cfg.ReadLimit,
		SendQueueLen:  cfg.SendQueueLen,
		PingInterval:  cfg.PingInterval,
		PongWait:      cfg.PongWait,
		WriteDeadline: cfg.WriteDeadline,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
