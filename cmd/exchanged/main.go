package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/avrellon/coincentral/params"
	"github.com/avrellon/coincentral/pkg/api"
	"github.com/avrellon/coincentral/pkg/exchange/engine"
	"github.com/avrellon/coincentral/pkg/exchange/ledger"
	"github.com/avrellon/coincentral/pkg/storage"
	"github.com/avrellon/coincentral/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	var logger *zap.Logger
	var err error
	if cfg.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Ledger: durable when a data dir is configured ----
	var led *ledger.Ledger
	var hist api.History
	if cfg.Storage.DataDir != "" {
		led, err = ledger.Open(filepath.Join(cfg.Storage.DataDir, "ledger.db"))
		if err != nil {
			sugar.Fatalw("open_ledger_failed", "err", err)
		}
		defer led.Close()
		hist.Transfers = led
	} else {
		led = ledger.New()
	}

	// ---- Trade journal ----
	var journal engine.TradeJournal
	if cfg.Storage.DataDir != "" {
		tl, err := storage.NewTradeLog(filepath.Join(cfg.Storage.DataDir, "trades.db"))
		if err != nil {
			sugar.Fatalw("open_trade_log_failed", "err", err)
		}
		defer tl.Close()
		journal = tl
		hist.Trades = tl
	}

	// ---- Engine ----
	eng := engine.New(led, engine.Config{
		Asset:      cfg.Exchange.Asset,
		Currencies: cfg.Exchange.Currencies,
		Logger:     sugar,
		Journal:    journal,
	})
	sugar.Infow("engine_ready",
		"asset", cfg.Exchange.Asset,
		"currencies", cfg.Exchange.Currencies,
		"data_dir", cfg.Storage.DataDir)

	// ---- API ----
	server := api.NewServer(eng, hist, sugar, cfg.API.AllowedOrigins)
	go func() {
		if err := server.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	sugar.Infow("shutting_down")
}
