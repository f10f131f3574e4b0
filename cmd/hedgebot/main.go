package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nirre55/bot-final/internal/app"
	hbcfg "github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/logger"
)

func main() {
	initConfig := flag.String("init-config", "", "write a defaulted config to this path and exit")
	rebase := flag.Bool("rebase", false, "record the current balance as the ledger high-water mark and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := hbcfg.WriteExample(*initConfig); err != nil {
			log.Fatalf("write example config: %v", err)
		}
		fmt.Printf("example config written to %s\n", *initConfig)
		return
	}

	cfgPath := os.Getenv("HEDGEBOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := hbcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("open log file: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	tradeFile, err := setupTradeLog(cfg.App.TradeLogPath)
	if err != nil {
		log.Fatalf("open trade log: %v", err)
	}
	if tradeFile != nil {
		defer tradeFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded from %s (symbol=%s, variant=%s)", cfgPath, cfg.Market.Symbol, cfg.Strategy.Variant)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("init app: %v", err)
	}
	defer a.Close()

	if *rebase {
		rec, err := a.Rebase(ctx)
		if err != nil {
			log.Fatalf("rebase: %v", err)
		}
		fmt.Printf("ledger %s rebased: balance max %.4f, outstanding %.4f\n", rec.Symbol, rec.BalanceMax, rec.Outstanding)
		return
	}

	if err := a.WatchConfig(cfgPath); err != nil {
		logger.Warnf("config hot reload disabled: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		logger.Errorf("run failed: %v", err)
		os.Exit(1)
	}
	logger.Infof("shutdown complete")
}

func openAppend(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func setupLogOutput(path string) (*os.File, error) {
	file, err := openAppend(path)
	if err != nil || file == nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupTradeLog(path string) (*os.File, error) {
	file, err := openAppend(path)
	if err != nil || file == nil {
		return nil, err
	}
	logger.SetTradeWriter(file)
	return file, nil
}
