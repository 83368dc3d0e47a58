// Command signalpipe runs the market signal service. It scans configured
// instruments on a fixed interval, pushes each through the decision
// pipeline, and delivers graded trade signals to Telegram and the status
// server's SSE stream.
//
// Usage:
//
//	signalpipe --config config.yaml
//	signalpipe setup (interactive configuration wizard)
//
// Optional environment variables:
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//	For Hyperliquid: HYPERLIQUID_PRIVATE_KEY
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/signalpipe/signalpipe/config"
	"github.com/signalpipe/signalpipe/internal"
	"github.com/signalpipe/signalpipe/internal/clients"
	"github.com/signalpipe/signalpipe/internal/services/market/collector"
	"github.com/signalpipe/signalpipe/internal/services/notifier"
	"github.com/signalpipe/signalpipe/internal/services/risk"
	"github.com/signalpipe/signalpipe/internal/setup"
	"github.com/signalpipe/signalpipe/internal/storage/signals"
	"github.com/signalpipe/signalpipe/internal/web"
)

const hyperliquidAPIURL = "https://api.hyperliquid.xyz"

func main() {
	var cfg *config.Config
	var err error

	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		cfg, err = config.Load("config.gen.yaml")
	} else {
		cfg, err = config.Get()
	}
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	provider, err := buildProvider(cfg)
	if err != nil {
		logger.Fatal("failed to build market data provider", zap.Error(err))
	}

	manager, err := risk.NewManager(cfg, filepath.Join(cfg.WALDir, "risk"), logger)
	if err != nil {
		logger.Fatal("failed to init risk manager", zap.Error(err))
	}
	defer manager.Close()

	journal, err := signals.NewWALStore(filepath.Join(cfg.WALDir, "signals"))
	if err != nil {
		logger.Fatal("failed to init signal journal", zap.Error(err))
	}
	defer journal.Close()

	var notif notifier.Notifier
	if cfg.TelegramToken != "" {
		notif = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
	} else {
		notif = notifier.NewLogNotifier(logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.WebAddr != "" {
		server := web.NewServer(cfg.WebAddr, journal, manager, logger)
		go func() {
			var err error
			if cfg.WebDomain != "" {
				err = server.StartWithAutoTLS(ctx, []string{cfg.WebDomain}, filepath.Join(cfg.WALDir, "cert-cache"))
			} else {
				err = server.Start(ctx)
			}
			if err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
	}

	builder := collector.NewSnapshotBuilder(provider, cfg.Timeframe, cfg.HigherTimeframe)
	bot := internal.NewSignalBot(cfg, builder, manager, journal, notif, logger)

	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("signal service stopped", zap.Error(err))
	}
}

func buildProvider(cfg *config.Config) (collector.KlineProvider, error) {
	switch cfg.Platform {
	case "binance":
		spot, futures := clients.NewBinanceClients(
			os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
		return collector.NewBinanceKlineProvider(spot, futures), nil
	case "bybit":
		client := clients.NewBybitClient(
			os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"))
		return collector.NewBybitKlineProvider(client), nil
	case "hyperliquid":
		client, err := clients.NewHyperliquidClient(
			os.Getenv("HYPERLIQUID_PRIVATE_KEY"), hyperliquidAPIURL)
		if err != nil {
			return nil, err
		}
		return collector.NewHyperliquidKlineProvider(client.Info()), nil
	default:
		return nil, errors.Errorf("unsupported platform %q", cfg.Platform)
	}
}
