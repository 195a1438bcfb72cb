package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bbbot/internal/broker"
	"bbbot/internal/config"
	"bbbot/internal/engine"
	"bbbot/internal/logging"
	"bbbot/internal/md"
	"bbbot/internal/risk"
	"bbbot/internal/server"
	"bbbot/internal/state"
	"bbbot/internal/strategy"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	log, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, log); err != nil {
		log.Error("bot stopped", zap.Error(err))
		closeLog()
		os.Exit(1)
	}
	log.Info("bot shutdown complete")
	closeLog()
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	brokerClient := broker.New(cfg.APIKey, cfg.APISecret, cfg.BaseURL(), log.Named("broker"))
	account, err := brokerClient.Connect(ctx)
	if err != nil {
		return err
	}
	log.Info("connected to terminal", zap.String("mode", string(cfg.Mode)), zap.String("base_url", cfg.BaseURL()),
		zap.Float64("balance", account.Balance), zap.Float64("equity", account.Equity))

	fetcher, err := md.NewFetcher(cfg.APIKey, cfg.APISecret, cfg.Feed, cfg.TimeFrame, log.Named("md"))
	if err != nil {
		return err
	}

	runID := generateRunID()
	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID, log)
	if err != nil {
		return fmt.Errorf("decision logger: %w", err)
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.Warn("failed to close decision logger", zap.Error(err))
		}
	}()

	store := state.NewStore(cfg.Symbol)
	if cfg.HTTPAddr != "" {
		srv := server.New(cfg.HTTPAddr, store, log.Named("http"))
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("http server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	strat := strategy.NewBollinger(cfg.LotSize)
	gate := risk.Gate{Log: log.Named("risk")}
	eng := engine.New(cfg, strat, gate, brokerClient, fetcher, store, decisions, log.Named("engine"))

	log.Info("starting bot", zap.String("run_id", runID), zap.String("symbol", cfg.Symbol), zap.String("timeframe", cfg.TimeFrame),
		zap.Int("window", cfg.Window), zap.Float64("band_k", cfg.BandK), zap.String("lot_size", cfg.LotSize.String()),
		zap.Duration("interval", cfg.Interval))

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return timestamp
	}
	return timestamp + "-" + hex.EncodeToString(randomBytes)
}
