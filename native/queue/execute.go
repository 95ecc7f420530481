package queue

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	coreerrors "pegcore/core/errors"
	"pegcore/core/events"
	"pegcore/core/types"
	nativecommon "pegcore/native/common"
	"pegcore/native/ledger"
)

// BatchReport summarises a call to Execute.
type BatchReport struct {
	BatchID    string
	Attempted  []uint64
	Executed   []uint64
	Failed     []uint64
	ExecFees   *big.Int
	Liquidated bool
}

// Execute runs up to MaxOperPerBatch matured operations in id order. Every
// attempted operation either settles or is refunded; a failure never stops
// the batch. The summed execution fees of the attempted operations are paid
// to rewardRecipient. A paused protocol leaves every operation queued.
func (q *Queue) Execute(executor, rewardRecipient common.Address) (*BatchReport, error) {
	if q == nil {
		return nil, errNilState
	}
	if q.executing {
		return nil, coreerrors.ErrReentrancyGuard
	}
	q.executing = true
	defer func() { q.executing = false }()

	if err := q.ready(); err != nil {
		return nil, err
	}
	if err := q.auth.Authorize(executor, moduleName+".execute"); err != nil {
		return nil, err
	}
	if rewardRecipient == (common.Address{}) {
		return nil, coreerrors.ErrInvalidAddress
	}
	if err := nativecommon.Guard(q.state, moduleName); err != nil {
		return nil, err
	}

	started := time.Now()
	params := q.state.Queue()
	height := q.state.BlockHeight()
	report := &BatchReport{BatchID: uuid.NewString(), ExecFees: big.NewInt(0)}
	log := q.logger.With("batchId", report.BatchID, "height", height)

	id := q.state.QueueHead()
	next := q.state.NextOperationID()
	for ; id < next && uint64(len(report.Attempted)) < params.MaxOperPerBatch; id++ {
		op, ok := q.state.Operation(id)
		if !ok || op.State.Terminal() {
			continue
		}
		if op.QueuedAtBlock+params.MinOperWaitingBlk > height {
			break
		}
		report.Attempted = append(report.Attempted, op.ID)
		report.ExecFees.Add(report.ExecFees, nativecommon.Copy(op.ExecFee))
		if err := q.process(op, params.Address, height); err != nil {
			report.Failed = append(report.Failed, op.ID)
			log.Info("operation failed",
				"operId", op.ID,
				"type", op.Type.String(),
				"class", coreerrors.ClassOf(err).String(),
				"error", err)
			continue
		}
		report.Executed = append(report.Executed, op.ID)
	}
	q.state.SetQueueHead(id)
	report.Liquidated = q.state.Global().Liquidated

	if len(report.Attempted) == 0 {
		return report, nil
	}
	if report.ExecFees.Sign() > 0 {
		if err := q.tokens.Transfer(q.state.Global().ACToken, params.Address, rewardRecipient, report.ExecFees); err != nil {
			log.Error("executor payment failed", "error", err)
			return report, fmt.Errorf("queue: pay executor: %w", err)
		}
	}
	log.Info("batch executed",
		"executor", executor.Hex(),
		"attempted", len(report.Attempted),
		"executed", len(report.Executed),
		"failed", len(report.Failed),
		"execFees", nativecommon.FormatPrec(report.ExecFees))
	q.emitter.Emit(events.BatchExecuted{
		BatchID:  report.BatchID,
		Executor: executor,
		FirstID:  report.Attempted[0],
		LastID:   report.Attempted[len(report.Attempted)-1],
		Executed: len(report.Executed),
		Failed:   len(report.Failed),
		ExecFees: report.ExecFees,
		Height:   height,
	})
	q.metrics.ObserveBatch(len(report.Attempted), time.Since(started), nativecommon.Float(report.ExecFees))
	q.metrics.SetPending(q.PendingCount())
	return report, nil
}

// process executes op inside a store snapshot. On failure the snapshot is
// reverted, the locked funds are returned to the sender and the failure is
// recorded; the returned error is informational.
func (q *Queue) process(op *types.Operation, queueAddr common.Address, height uint64) error {
	if _, err := q.executor.EvalLiquidation(); err != nil {
		q.logger.Error("liquidation check failed", "operId", op.ID, "error", err)
	}

	snap := q.state.Snapshot()
	result, err := q.run(op, queueAddr)
	if err != nil {
		if revertErr := q.state.RevertToSnapshot(snap); revertErr != nil {
			q.logger.Error("snapshot revert failed", "operId", op.ID, "error", revertErr)
		}
		q.refund(op, queueAddr)
		q.finish(op, height, err)
		return err
	}
	if err := q.state.DiscardSnapshot(snap); err != nil {
		q.logger.Error("snapshot discard failed", "operId", op.ID, "error", err)
	}
	for _, evt := range result.Events {
		q.emitter.Emit(evt)
	}
	q.finish(op, height, nil)
	return nil
}

// run invokes and settles op inside one ledger session window.
func (q *Queue) run(op *types.Operation, queueAddr common.Address) (*ledger.Result, error) {
	if err := q.session.Open(); err != nil {
		return nil, err
	}
	defer q.session.Close()
	result, err := q.invoke(op)
	if err != nil {
		return nil, err
	}
	return result, q.settle(op, queueAddr, result)
}

// invoke dispatches op to its handler, converting panics into unclassified
// errors.
func (q *Queue) invoke(op *types.Operation) (result *ledger.Result, err error) {
	handler, ok := q.handlers[op.Type]
	if !ok || handler == nil {
		return nil, fmt.Errorf("%w: %s", errUnknownOperType, op.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("queue: handler panic: %v", r)
		}
	}()
	return handler(q.state.Queue().Address, op.Clone())
}

// settle applies the handler movements and returns whatever the operation
// did not consume from its locks.
func (q *Queue) settle(op *types.Operation, queueAddr common.Address, result *ledger.Result) error {
	if result == nil {
		return fmt.Errorf("queue: operation %d returned no result", op.ID)
	}
	for _, lock := range op.Locked {
		consumed := result.Consumed(lock.Token, queueAddr)
		if consumed.Cmp(op.LockedAmount(lock.Token)) > 0 {
			return fmt.Errorf("queue: operation %d consumed %s of %s beyond its lock", op.ID, consumed, lock.Token.Hex())
		}
	}
	if err := ledger.ApplyMovements(q.tokens, queueAddr, result.Movements); err != nil {
		return transferFailure(err)
	}
	for _, lock := range op.Locked {
		leftover := new(big.Int).Sub(nativecommon.Copy(lock.Amount), result.Consumed(lock.Token, queueAddr))
		if leftover.Sign() <= 0 {
			continue
		}
		if err := q.tokens.Transfer(lock.Token, queueAddr, op.Sender, leftover); err != nil {
			return transferFailure(err)
		}
	}
	return nil
}

func transferFailure(err error) error {
	if _, ok := coreerrors.AsFailure(err); ok {
		return err
	}
	return fmt.Errorf("%w: %v", coreerrors.ErrTransferFailed, err)
}

func (q *Queue) refund(op *types.Operation, queueAddr common.Address) {
	for _, lock := range op.Locked {
		if lock.Amount == nil || lock.Amount.Sign() == 0 {
			continue
		}
		if err := q.tokens.Transfer(lock.Token, queueAddr, op.Sender, lock.Amount); err != nil {
			q.logger.Error("refund failed",
				"operId", op.ID,
				"token", lock.Token.Hex(),
				"amount", lock.Amount.String(),
				"error", err)
		}
	}
}

// finish records the terminal state of op and emits its outcome.
func (q *Queue) finish(op *types.Operation, height uint64, err error) {
	op.ProcessedAt = height
	if err == nil {
		op.State = types.OperStateExecuted
		q.state.PutOperation(op)
		q.emitter.Emit(events.OperationExecuted{ID: op.ID, Kind: op.Type, Height: height})
		q.metrics.RecordOutcome(op.Type.String(), "")
		return
	}
	op.State = types.OperStateFailed
	if failure, ok := coreerrors.AsFailure(err); ok {
		op.FailureName = failure.Name
		q.state.PutOperation(op)
		q.emitter.Emit(events.OperationError{
			ID:       op.ID,
			Kind:     op.Type,
			Name:     failure.Name,
			Selector: failure.SelectorHex(),
			Class:    failure.Class.String(),
			Reason:   err.Error(),
			Height:   height,
		})
		q.metrics.RecordOutcome(op.Type.String(), failure.Name)
		return
	}
	op.FailureName = "Unhandled"
	q.state.PutOperation(op)
	q.logger.Error("unhandled operation failure", "operId", op.ID, "type", op.Type.String(), "error", err)
	q.emitter.Emit(events.UnhandledError{ID: op.ID, Kind: op.Type, Reason: err.Error(), Height: height})
	q.metrics.RecordOutcome(op.Type.String(), "Unhandled")
}
