package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// OperType enumerates the operations accepted by the queue.
type OperType uint8

const (
	OperTypeUnspecified OperType = iota
	OperTypeMintTC
	OperTypeRedeemTC
	OperTypeMintTP
	OperTypeRedeemTP
	OperTypeSwapTPforTP
	OperTypeSwapTPforTC
	OperTypeSwapTCforTP
	OperTypeMintTCandTP
	OperTypeRedeemTCandTP
)

// OperTypes lists every executable operation type in declaration order.
var OperTypes = []OperType{
	OperTypeMintTC,
	OperTypeRedeemTC,
	OperTypeMintTP,
	OperTypeRedeemTP,
	OperTypeSwapTPforTP,
	OperTypeSwapTPforTC,
	OperTypeSwapTCforTP,
	OperTypeMintTCandTP,
	OperTypeRedeemTCandTP,
}

var operTypeNames = map[OperType]string{
	OperTypeMintTC:        "mintTC",
	OperTypeRedeemTC:      "redeemTC",
	OperTypeMintTP:        "mintTP",
	OperTypeRedeemTP:      "redeemTP",
	OperTypeSwapTPforTP:   "swapTPforTP",
	OperTypeSwapTPforTC:   "swapTPforTC",
	OperTypeSwapTCforTP:   "swapTCforTP",
	OperTypeMintTCandTP:   "mintTCandTP",
	OperTypeRedeemTCandTP: "redeemTCandTP",
}

// String renders the canonical camel-case name of the operation type.
func (t OperType) String() string {
	if name, ok := operTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("operType(%d)", uint8(t))
}

// Valid reports whether the type maps to an executable operation.
func (t OperType) Valid() bool {
	_, ok := operTypeNames[t]
	return ok
}

// ParseOperType resolves a case-insensitive operation name.
func ParseOperType(name string) (OperType, error) {
	needle := strings.TrimSpace(name)
	for t, candidate := range operTypeNames {
		if strings.EqualFold(candidate, needle) {
			return t, nil
		}
	}
	return OperTypeUnspecified, fmt.Errorf("unknown operation type %q", name)
}

// TouchesTP reports whether the operation references at least one pegged token.
func (t OperType) TouchesTP() bool {
	switch t {
	case OperTypeMintTC, OperTypeRedeemTC, OperTypeUnspecified:
		return false
	default:
		return t.Valid()
	}
}

// OperState captures the lifecycle of a queued operation. Executed and Failed
// are terminal.
type OperState uint8

const (
	OperStateQueued OperState = iota + 1
	OperStateExecuted
	OperStateFailed
)

func (s OperState) String() string {
	switch s {
	case OperStateQueued:
		return "queued"
	case OperStateExecuted:
		return "executed"
	case OperStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed.
func (s OperState) Terminal() bool {
	return s == OperStateExecuted || s == OperStateFailed
}

// OperParams carries the request fields for every operation type. Fields not
// used by a type are left nil.
type OperParams struct {
	TP     uint32
	TPTo   uint32
	QTC    *big.Int
	QTP    *big.Int
	QACmax *big.Int
	QACmin *big.Int
	QTCmin *big.Int
	QTPmin *big.Int
}

// Clone returns a deep copy of the parameters.
func (p OperParams) Clone() OperParams {
	return OperParams{
		TP:     p.TP,
		TPTo:   p.TPTo,
		QTC:    cloneInt(p.QTC),
		QTP:    cloneInt(p.QTP),
		QACmax: cloneInt(p.QACmax),
		QACmin: cloneInt(p.QACmin),
		QTCmin: cloneInt(p.QTCmin),
		QTPmin: cloneInt(p.QTPmin),
	}
}

// Lock records funds the queue holds on behalf of an operation.
type Lock struct {
	Token  common.Address
	Amount *big.Int
}

// Operation is the append-only queue record.
type Operation struct {
	ID            uint64
	Type          OperType
	Sender        common.Address
	Recipient     common.Address
	Vendor        common.Address
	Params        OperParams
	Locked        []Lock
	ExecFee       *big.Int
	QueuedAtBlock uint64
	State         OperState
	ProcessedAt   uint64
	FailureName   string
}

// Clone returns a deep copy of the operation.
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Params = o.Params.Clone()
	clone.ExecFee = cloneInt(o.ExecFee)
	if len(o.Locked) > 0 {
		clone.Locked = make([]Lock, len(o.Locked))
		for i, lock := range o.Locked {
			clone.Locked[i] = Lock{Token: lock.Token, Amount: cloneInt(lock.Amount)}
		}
	}
	return &clone
}

// LockedAmount sums the locked amount for the supplied token.
func (o *Operation) LockedAmount(token common.Address) *big.Int {
	total := big.NewInt(0)
	if o == nil {
		return total
	}
	for _, lock := range o.Locked {
		if lock.Token == token && lock.Amount != nil {
			total.Add(total, lock.Amount)
		}
	}
	return total
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
