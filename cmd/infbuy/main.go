// Command infbuy tracks infinite-buy DCA positions.
//
// Usage:
//
//	infbuy serve [--config config.yaml]        run the HTTP API and event stream
//	infbuy setup [--config config.yaml]        create a position interactively
//	infbuy trade [--config ...] <position>     enter a buy or sell
//	infbuy show  [--config ...] [position]     list positions or print one report
//
// Positions are addressed by id or by name.
//
// Optional environment variables for the kline sources:
//
//	BINANCE_API_KEY, BINANCE_API_SECRET
//	BYBIT_API_KEY, BYBIT_API_SECRET
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vadiminshakov/infbuy/config"
	"go.uber.org/zap"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: infbuy <serve|setup|trade|show> [flags] [position]")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]

	cfg, args, err := config.Get(cmd, os.Args[2:])
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg, cmd)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.close()

	switch cmd {
	case "serve":
		err = a.serve(ctx)
	case "setup":
		err = a.setup(ctx)
	case "trade":
		err = a.trade(ctx, args)
	case "show":
		err = a.show(ctx, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal(cmd+" failed", zap.Error(err))
	}
}

// newLogger keeps interactive commands quiet unless debug logging is requested.
func newLogger(cfg config.Config, cmd string) (*zap.Logger, error) {
	if cfg.Debug() {
		return zap.NewDevelopment()
	}
	if cmd != "serve" {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		return zcfg.Build()
	}
	return zap.NewProduction()
}
