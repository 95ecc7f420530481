package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/core/types"
)

const (
	// TypeOperationQueued is emitted when a submission locks funds and is
	// appended to the queue.
	TypeOperationQueued = "queue.operation_queued"
	// TypeOperationExecuted is emitted when a queued operation settles.
	TypeOperationExecuted = "queue.operation_executed"
	// TypeOperationError is emitted when a queued operation fails with a
	// recognised protocol error and its funds are refunded.
	TypeOperationError = "queue.operation_error"
	// TypeUnhandledError is emitted when a queued operation fails with an
	// unrecognised error or panic and its funds are refunded.
	TypeUnhandledError = "queue.unhandled_error"
	// TypeBatchExecuted is emitted once per execution batch.
	TypeBatchExecuted = "queue.batch_executed"
)

// OperationQueued records a newly accepted submission.
type OperationQueued struct {
	ID        uint64
	Kind      types.OperType
	Sender    common.Address
	Recipient common.Address
	Vendor    common.Address
	ExecFee   *big.Int
	Locked    []types.Lock
	Height    uint64
}

func (OperationQueued) EventType() string { return TypeOperationQueued }

func (e OperationQueued) Event() *types.Event {
	attrs := map[string]string{
		"id":        strconv.FormatUint(e.ID, 10),
		"operType":  e.Kind.String(),
		"sender":    address(e.Sender),
		"recipient": address(e.Recipient),
		"vendor":    address(e.Vendor),
		"execFee":   amount(e.ExecFee),
	}
	for i, lock := range e.Locked {
		idx := strconv.Itoa(i)
		attrs["lockToken"+idx] = address(lock.Token)
		attrs["lockAmount"+idx] = amount(lock.Amount)
	}
	return &types.Event{Type: TypeOperationQueued, Height: e.Height, Attributes: attrs}
}

// OperationExecuted records a successful execution.
type OperationExecuted struct {
	ID     uint64
	Kind   types.OperType
	Height uint64
}

func (OperationExecuted) EventType() string { return TypeOperationExecuted }

func (e OperationExecuted) Event() *types.Event {
	return &types.Event{
		Type:   TypeOperationExecuted,
		Height: e.Height,
		Attributes: map[string]string{
			"id":       strconv.FormatUint(e.ID, 10),
			"operType": e.Kind.String(),
		},
	}
}

// OperationError records a recognised failure. Selector carries the four
// byte error identifier and Reason its rendered form.
type OperationError struct {
	ID       uint64
	Kind     types.OperType
	Name     string
	Selector string
	Class    string
	Reason   string
	Height   uint64
}

func (OperationError) EventType() string { return TypeOperationError }

func (e OperationError) Event() *types.Event {
	return &types.Event{
		Type:   TypeOperationError,
		Height: e.Height,
		Attributes: map[string]string{
			"id":       strconv.FormatUint(e.ID, 10),
			"operType": e.Kind.String(),
			"error":    e.Name,
			"selector": e.Selector,
			"class":    e.Class,
			"reason":   e.Reason,
		},
	}
}

// UnhandledError records a failure that did not map onto a protocol error.
type UnhandledError struct {
	ID     uint64
	Kind   types.OperType
	Reason string
	Height uint64
}

func (UnhandledError) EventType() string { return TypeUnhandledError }

func (e UnhandledError) Event() *types.Event {
	return &types.Event{
		Type:   TypeUnhandledError,
		Height: e.Height,
		Attributes: map[string]string{
			"id":       strconv.FormatUint(e.ID, 10),
			"operType": e.Kind.String(),
			"reason":   e.Reason,
		},
	}
}

// BatchExecuted summarises an execution batch.
type BatchExecuted struct {
	BatchID  string
	Executor common.Address
	FirstID  uint64
	LastID   uint64
	Executed int
	Failed   int
	ExecFees *big.Int
	Height   uint64
}

func (BatchExecuted) EventType() string { return TypeBatchExecuted }

func (e BatchExecuted) Event() *types.Event {
	return &types.Event{
		Type:   TypeBatchExecuted,
		Height: e.Height,
		Attributes: map[string]string{
			"batchId":  e.BatchID,
			"executor": address(e.Executor),
			"firstId":  strconv.FormatUint(e.FirstID, 10),
			"lastId":   strconv.FormatUint(e.LastID, 10),
			"executed": strconv.Itoa(e.Executed),
			"failed":   strconv.Itoa(e.Failed),
			"execFees": amount(e.ExecFees),
		},
	}
}
