package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/config"
	"pegcore/core"
	"pegcore/core/events"
	"pegcore/core/state"
	"pegcore/observability/logging"
	"pegcore/rpc"
	"pegcore/storage"
	"pegcore/storage/history"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("pegd", cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pegd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	params, err := cfg.Parameters()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	store, restored, err := state.Load(db)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	logger.Info("state loaded", "restored", restored, "height", store.BlockHeight())

	var (
		emitters []events.Emitter
		reader   rpc.HistoryReader
	)
	if driver := strings.TrimSpace(cfg.History.Driver); driver != "" {
		hdb, err := history.Open(driver, cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		indexer := history.NewIndexer(hdb, logger.With("module", "history"))
		emitters = append(emitters, indexer)
		reader = indexer
		logger.Info("history enabled", "driver", driver, logging.MaskField("dsn", cfg.History.DSN))
	}

	protocol, err := core.NewProtocol(params, store, logger, emitters...)
	if err != nil {
		return err
	}

	var keeper common.Address
	if k := strings.TrimSpace(cfg.Node.Keeper); k != "" {
		keeper = common.HexToAddress(k)
	}
	clk := newClock(protocol, db, keeper, cfg.Node.PersistEveryBlocks, logger.With("module", "clock"))
	go clk.run(ctx, time.Duration(cfg.Node.BlockTimeSecs)*time.Second)

	server := rpc.New(protocol, reader, rpc.Config{
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		Burst:              cfg.RPC.Burst,
		ReadTimeout:        time.Duration(cfg.RPC.ReadTimeoutSecs) * time.Second,
		WriteTimeout:       time.Duration(cfg.RPC.WriteTimeoutSecs) * time.Second,
	}, logger.With("module", "rpc"))
	serveErr := server.Serve(ctx, cfg.RPCAddress)

	if err := protocol.Persist(db); err != nil {
		logger.Error("final persist failed", "error", err)
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
