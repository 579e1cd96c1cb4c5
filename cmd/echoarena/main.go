package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	_ "go.uber.org/automaxprocs"

	"github.com/echoarena/server/internal/config"
	"github.com/echoarena/server/internal/data"
	"github.com/echoarena/server/internal/metrics"
	gonet "github.com/echoarena/server/internal/net"
	"github.com/echoarena/server/internal/scripting"
	"github.com/echoarena/server/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfgPath := os.Getenv("ECHOARENA_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	catalog, err := data.LoadCatalog(cfg.Server.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	engine, err := scripting.NewEngine(cfg.Server.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer engine.Close()
	if err := catalog.Tune(engine.TuneEcho); err != nil {
		return fmt.Errorf("tune catalog: %w", err)
	}
	mutations, err := engine.Mutations()
	if err != nil {
		return fmt.Errorf("load mutations: %w", err)
	}

	m := metrics.New()

	netServer, err := gonet.NewServer(gonet.Config{
		BindAddress:       cfg.Network.BindAddress,
		MaxClients:        cfg.Network.MaxClients,
		InQueueSize:       cfg.Network.InQueueSize,
		OutQueueSize:      cfg.Network.OutQueueSize,
		MessagesPerSecond: cfg.Network.MessagesPerSecond,
		MessageBurst:      cfg.Network.MessageBurst,
		ReadTimeout:       cfg.Network.ReadTimeout,
		WriteTimeout:      cfg.Network.WriteTimeout,
		AckTimeout:        cfg.Ack.Timeout,
		AckMaxRetries:     cfg.Ack.MaxRetries,
		AckSweepInterval:  cfg.Ack.SweepInterval,
	}, m, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}

	orch, err := session.New(cfg, catalog, mutations, netServer, m, log)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	log.Info("server up",
		zap.String("name", cfg.Server.Name),
		zap.String("listen", netServer.Addr().String()),
		zap.Duration("tick", cfg.Network.TickRate),
		zap.Int("echoes", catalog.Count()),
		zap.Int("mutations", len(mutations)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		netServer.AcceptLoop()
		return nil
	})
	g.Go(func() error {
		netServer.SweepLoop()
		return nil
	})
	if cfg.Server.MetricsAddr != "" {
		g.Go(func() error {
			return m.Serve(ctx, cfg.Server.MetricsAddr)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Network.TickRate)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case now := <-ticker.C:
				orch.Tick(now.Sub(last))
				last = now
			case <-ctx.Done():
				return nil
			}
		}
	})

	<-ctx.Done()
	log.Info("shutting down")
	netServer.Shutdown()
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
