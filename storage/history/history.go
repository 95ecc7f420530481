package history

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pegcore/core/events"
)

var errUnsupportedDriver = errors.New("history: unsupported driver")

// Open connects to the history database and migrates its schema. driver is
// "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w %q", errUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Indexer records queue and ledger events. It implements events.Emitter;
// write failures are logged and never reach the protocol.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewIndexer constructs an indexer writing to db.
func NewIndexer(db *gorm.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger}
}

// Emit implements events.Emitter.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || i.db == nil || evt == nil {
		return
	}
	if err := i.record(evt); err != nil {
		i.logger.Error("history write failed", "event", evt.EventType(), "error", err)
	}
}

func (i *Indexer) record(evt events.Event) error {
	switch e := evt.(type) {
	case events.OperationQueued:
		return i.db.Create(&OperationRecord{
			ID:           e.ID,
			Type:         e.Kind.String(),
			Sender:       e.Sender.Hex(),
			Recipient:    e.Recipient.Hex(),
			Vendor:       e.Vendor.Hex(),
			ExecFee:      amount(e.ExecFee),
			State:        StateQueued,
			QueuedHeight: e.Height,
		}).Error
	case events.BucketOperation:
		return i.update(e.OperID, map[string]any{
			"q_ac":          amount(e.QAC),
			"q_tc":          amount(e.QTC),
			"q_tp":          amount(e.QTP),
			"q_ac_fee":      amount(e.Fees.QACFee),
			"q_fee_token":   amount(e.Fees.QFeeToken),
			"q_ac_interest": amount(e.Fees.QACInterest),
			"fee_source":    e.Fees.Source,
		})
	case events.OperationExecuted:
		return i.update(e.ID, map[string]any{"state": StateExecuted, "processed_height": e.Height})
	case events.OperationError:
		return i.update(e.ID, map[string]any{
			"state":            StateFailed,
			"processed_height": e.Height,
			"failure_name":     e.Name,
			"selector":         e.Selector,
			"reason":           e.Reason,
		})
	case events.UnhandledError:
		return i.update(e.ID, map[string]any{
			"state":            StateUnhandled,
			"processed_height": e.Height,
			"reason":           e.Reason,
		})
	case events.BatchExecuted:
		return i.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&BatchRecord{
				ID:       e.BatchID,
				Executor: e.Executor.Hex(),
				FirstID:  e.FirstID,
				LastID:   e.LastID,
				Executed: e.Executed,
				Failed:   e.Failed,
				ExecFees: amount(e.ExecFees),
				Height:   e.Height,
			}).Error; err != nil {
				return err
			}
			return tx.Model(&OperationRecord{}).
				Where("id BETWEEN ? AND ? AND state <> ? AND batch_id = ?", e.FirstID, e.LastID, StateQueued, "").
				Update("batch_id", e.BatchID).Error
		})
	default:
		return nil
	}
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (i *Indexer) update(id uint64, fields map[string]any) error {
	return i.db.Model(&OperationRecord{}).Where("id = ?", id).Updates(fields).Error
}

// Operation returns the record for id.
func (i *Indexer) Operation(id uint64) (*OperationRecord, error) {
	var rec OperationRecord
	if err := i.db.First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// BySender returns the most recent operations submitted by sender.
func (i *Indexer) BySender(sender string, limit int) ([]OperationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []OperationRecord
	err := i.db.Where("sender = ?", sender).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Batches returns the most recent batches.
func (i *Indexer) Batches(limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []BatchRecord
	err := i.db.Order("height DESC").Limit(limit).Find(&out).Error
	return out, err
}
