package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pegcore/core/errors"
	"pegcore/core/events"
	"pegcore/core/state"
	"pegcore/core/types"
	"pegcore/native/governance"
	"pegcore/native/ledger"
	"pegcore/observability"
)

const moduleName = "queue"

var (
	errNilState        = errors.New("queue: state not configured")
	errNilLedger       = errors.New("queue: ledger not configured")
	errNilTokens       = errors.New("queue: token primitives not configured")
	errNoQueueAddress  = errors.New("queue: queue address not configured")
	errUnknownOperType = errors.New("queue: no handler registered for operation type")
)

type queueState interface {
	BlockHeight() uint64
	IsPaused(module string) bool
	SetBlockHeight(uint64)
	Global() state.GlobalBucket
	Queue() state.QueueParams
	PutQueue(state.QueueParams)
	PeggedCount() int
	Pegged(i uint32) (state.PeggedBucket, bool)
	Balance(token, holder common.Address) *big.Int
	AllocateOperationID() uint64
	NextOperationID() uint64
	Operation(id uint64) (*types.Operation, bool)
	PutOperation(op *types.Operation)
	QueueHead() uint64
	SetQueueHead(id uint64)
	Snapshot() int
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int) error
}

// Executor is the ledger surface the queue drives.
type Executor interface {
	Handlers() map[types.OperType]ledger.Handler
	EvalLiquidation() (bool, error)
	Bind() (*ledger.Session, error)
}

// Queue accepts operation requests, locks their funds and later executes
// them in order against the ledger, isolating every failure to the
// operation that caused it.
type Queue struct {
	state     queueState
	executor  Executor
	session   *ledger.Session
	handlers  map[types.OperType]ledger.Handler
	tokens    ledger.Tokens
	auth      governance.Authorizer
	emitter   events.Emitter
	logger    *slog.Logger
	metrics   *observability.QueueMetrics
	executing bool
}

// New constructs a queue with no-op dependencies.
func New() *Queue {
	return &Queue{
		auth:    governance.DenyAll{},
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
}

// SetState wires the queue to the shared store.
func (q *Queue) SetState(s queueState) { q.state = s }

// SetExecutor wires the ledger whose handlers execute queued operations and
// binds the ledger session that gates them.
func (q *Queue) SetExecutor(e Executor) error {
	if e == nil {
		q.executor, q.session, q.handlers = nil, nil, nil
		return nil
	}
	session, err := e.Bind()
	if err != nil {
		return fmt.Errorf("queue: bind executor: %w", err)
	}
	q.executor = e
	q.session = session
	q.handlers = e.Handlers()
	return nil
}

// SetTokens wires the token primitives used to lock and settle funds.
func (q *Queue) SetTokens(t ledger.Tokens) { q.tokens = t }

// SetAuthorizer configures the governance gate for executors and setters.
// Nil denies every call.
func (q *Queue) SetAuthorizer(a governance.Authorizer) {
	if a == nil {
		q.auth = governance.DenyAll{}
		return
	}
	q.auth = a
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (q *Queue) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		q.emitter = events.NoopEmitter{}
		return
	}
	q.emitter = emitter
}

// SetLogger configures the structured logger.
func (q *Queue) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	q.logger = logger
}

// SetMetrics enables metrics collection. Nil disables it.
func (q *Queue) SetMetrics(m *observability.QueueMetrics) { q.metrics = m }

// SetBlockHeight advances the host block height seen by the queue and
// ledger.
func (q *Queue) SetBlockHeight(height uint64) {
	if q == nil || q.state == nil {
		return
	}
	q.state.SetBlockHeight(height)
}

func (q *Queue) ready() error {
	if q == nil || q.state == nil {
		return errNilState
	}
	if q.executor == nil {
		return errNilLedger
	}
	if q.tokens == nil {
		return errNilTokens
	}
	if q.state.Queue().Address == (common.Address{}) {
		return errNoQueueAddress
	}
	return nil
}

// Params returns the current queue parameters.
func (q *Queue) Params() (state.QueueParams, error) {
	if q == nil || q.state == nil {
		return state.QueueParams{}, errNilState
	}
	return q.state.Queue(), nil
}

// Operation returns the record for id.
func (q *Queue) Operation(id uint64) (*types.Operation, bool) {
	if q == nil || q.state == nil {
		return nil, false
	}
	return q.state.Operation(id)
}

// FirstPendingID returns the id of the oldest queued operation, or zero when
// the queue is empty.
func (q *Queue) FirstPendingID() uint64 {
	if q == nil || q.state == nil {
		return 0
	}
	head := q.state.QueueHead()
	if head >= q.state.NextOperationID() {
		return 0
	}
	return head
}

// PendingCount returns the number of operations waiting for execution.
func (q *Queue) PendingCount() uint64 {
	if q == nil || q.state == nil {
		return 0
	}
	head, next := q.state.QueueHead(), q.state.NextOperationID()
	if head >= next {
		return 0
	}
	return next - head
}

func (q *Queue) change(caller common.Address, name, value string, mutate func(*state.QueueParams) error) error {
	if q == nil || q.state == nil {
		return errNilState
	}
	param := moduleName + "." + name
	if err := q.auth.Authorize(caller, param); err != nil {
		return err
	}
	params := q.state.Queue()
	if err := mutate(&params); err != nil {
		return err
	}
	q.state.PutQueue(params)
	q.logger.Info("queue parameter changed", "param", param, "value", value)
	q.emitter.Emit(events.ParamChanged{Module: moduleName, Name: name, Value: value, Height: q.state.BlockHeight()})
	return nil
}

// SetMaxOperPerBatch bounds the number of operations attempted per batch.
func (q *Queue) SetMaxOperPerBatch(caller common.Address, max uint64) error {
	if max == 0 {
		return coreerrors.ErrInvalidValue
	}
	return q.change(caller, "maxOperPerBatch", strconv.FormatUint(max, 10), func(p *state.QueueParams) error {
		p.MaxOperPerBatch = max
		return nil
	})
}

// SetMinOperWaitingBlk sets how many blocks an operation waits before it may
// execute.
func (q *Queue) SetMinOperWaitingBlk(caller common.Address, blocks uint64) error {
	return q.change(caller, "minOperWaitingBlk", strconv.FormatUint(blocks, 10), func(p *state.QueueParams) error {
		p.MinOperWaitingBlk = blocks
		return nil
	})
}

// SetExecFee sets the execution fee reserved at submission for kind.
func (q *Queue) SetExecFee(caller common.Address, kind types.OperType, fee *big.Int) error {
	if !kind.Valid() {
		return coreerrors.ErrInvalidOperType.With(big.NewInt(int64(kind)))
	}
	if fee == nil || fee.Sign() < 0 {
		return coreerrors.ErrInvalidValue
	}
	return q.change(caller, "execFee", kind.String()+"="+fee.String(), func(p *state.QueueParams) error {
		for len(p.ExecFees) <= int(kind) {
			p.ExecFees = append(p.ExecFees, big.NewInt(0))
		}
		p.ExecFees[kind] = new(big.Int).Set(fee)
		return nil
	})
}

// SetAllowDifferentRecipient controls whether operations may pay out to an
// account other than the sender.
func (q *Queue) SetAllowDifferentRecipient(caller common.Address, allow bool) error {
	return q.change(caller, "allowDifferentRecipient", strconv.FormatBool(allow), func(p *state.QueueParams) error {
		p.AllowDifferentRecipient = allow
		return nil
	})
}
