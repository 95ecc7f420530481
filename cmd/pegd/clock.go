package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pegcore/core/errors"
	"pegcore/native/queue"
	"pegcore/storage"
)

type node interface {
	Height() uint64
	Advance(height uint64)
	Execute(executor, rewardRecipient common.Address) (*queue.BatchReport, error)
	Persist(db storage.Database) error
}

// clock advances the block height at a fixed interval. When a keeper is
// configured it executes one batch per block, and it persists the store
// every persistEvery blocks.
type clock struct {
	node         node
	db           storage.Database
	keeper       common.Address
	persistEvery uint64
	logger       *slog.Logger
}

func newClock(n node, db storage.Database, keeper common.Address, persistEvery uint64, logger *slog.Logger) *clock {
	if persistEvery == 0 {
		persistEvery = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &clock{node: n, db: db, keeper: keeper, persistEvery: persistEvery, logger: logger}
}

func (c *clock) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *clock) tick() {
	height := c.node.Height() + 1
	c.node.Advance(height)
	if c.keeper != (common.Address{}) {
		report, err := c.node.Execute(c.keeper, c.keeper)
		switch {
		case errors.Is(err, coreerrors.ErrPaused):
			c.logger.Debug("batch skipped while paused", "height", height)
		case err != nil:
			c.logger.Warn("batch execution failed", "height", height, "error", err)
		case len(report.Attempted) > 0:
			c.logger.Info("batch executed",
				"height", height,
				"batchId", report.BatchID,
				"executed", len(report.Executed),
				"failed", len(report.Failed))
		}
	}
	if height%c.persistEvery == 0 {
		if err := c.node.Persist(c.db); err != nil {
			c.logger.Error("persist failed", "height", height, "error", err)
		}
	}
}
