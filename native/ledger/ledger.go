package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/core/events"
	"pegcore/core/state"
	"pegcore/core/types"
	nativecommon "pegcore/native/common"
	"pegcore/native/governance"
	"pegcore/native/oracle"
)

const moduleName = "ledger"

var (
	errNilState   = errors.New("ledger: state not configured")
	errNilOracles = errors.New("ledger: oracle registry not configured")
	errNilTokens  = errors.New("ledger: token primitives not configured")
)

type ledgerState interface {
	BlockHeight() uint64
	IsPaused(module string) bool
	Global() state.GlobalBucket
	PutGlobal(state.GlobalBucket)
	Fees() state.FeeParams
	PutFees(state.FeeParams)
	Settlement() state.SettlementParams
	PutSettlement(state.SettlementParams)
	Queue() state.QueueParams
	FluxDecayBlockSpan() uint64
	SetFluxDecayBlockSpan(uint64)
	PeggedCount() int
	Pegged(i uint32) (state.PeggedBucket, bool)
	PutPegged(i uint32, b state.PeggedBucket) error
	AppendPegged(b state.PeggedBucket) uint32
	PeggedIndex(token common.Address) (uint32, bool)
	VendorMarkup(vendor common.Address) *big.Int
	SetVendorMarkup(vendor common.Address, markup *big.Int)
	Balance(token, holder common.Address) *big.Int
	Allowance(token, owner, spender common.Address) *big.Int
	Snapshot() int
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int) error
}

// Tokens are the token primitives the ledger settles through on its direct
// (non-queued) paths.
type Tokens interface {
	Mint(token, to common.Address, amount *big.Int) error
	Burn(token, from common.Address, amount *big.Int) error
	Transfer(token, from, to common.Address, amount *big.Int) error
	TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error
}

// MovementKind enumerates token instructions returned by handlers.
type MovementKind uint8

const (
	MovementTransfer MovementKind = iota + 1
	MovementMint
	MovementBurn
	MovementTransferFrom
)

func (k MovementKind) String() string {
	switch k {
	case MovementTransfer:
		return "transfer"
	case MovementMint:
		return "mint"
	case MovementBurn:
		return "burn"
	case MovementTransferFrom:
		return "transferFrom"
	default:
		return "unknown"
	}
}

// Movement is a token instruction the caller must settle for a handler
// result. TransferFrom movements are spent by the queue on behalf of From.
type Movement struct {
	Kind   MovementKind
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Result carries the realised amounts of a handler together with the token
// movements and events the caller commits on success.
type Result struct {
	QTC       *big.Int
	QTP       *big.Int
	QTPTo     *big.Int
	QAC       *big.Int
	Fees      events.FeeBreakdown
	Movements []Movement
	Events    []events.Event
}

func newResult() *Result {
	return &Result{QTC: big.NewInt(0), QTP: big.NewInt(0), QTPTo: big.NewInt(0), QAC: big.NewInt(0)}
}

func (r *Result) add(kind MovementKind, token, from, to common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	r.Movements = append(r.Movements, Movement{Kind: kind, Token: token, From: from, To: to, Amount: new(big.Int).Set(amount)})
}

func (r *Result) transfer(token, from, to common.Address, amount *big.Int) {
	r.add(MovementTransfer, token, from, to, amount)
}

func (r *Result) transferFrom(token, from, to common.Address, amount *big.Int) {
	r.add(MovementTransferFrom, token, from, to, amount)
}

func (r *Result) mint(token, to common.Address, amount *big.Int) {
	r.add(MovementMint, token, common.Address{}, to, amount)
}

func (r *Result) burn(token, from common.Address, amount *big.Int) {
	r.add(MovementBurn, token, from, common.Address{}, amount)
}

// Consumed sums the amount of token the movements take out of holder.
func (r *Result) Consumed(token, holder common.Address) *big.Int {
	total := big.NewInt(0)
	if r == nil {
		return total
	}
	for _, m := range r.Movements {
		if m.Token != token || m.From != holder {
			continue
		}
		if m.Kind == MovementTransfer || m.Kind == MovementBurn {
			total.Add(total, m.Amount)
		}
	}
	return total
}

// ApplyMovements settles movements in order. spender is used for
// TransferFrom movements.
func ApplyMovements(tokens Tokens, spender common.Address, movements []Movement) error {
	if tokens == nil {
		return errNilTokens
	}
	for i, m := range movements {
		var err error
		switch m.Kind {
		case MovementTransfer:
			err = tokens.Transfer(m.Token, m.From, m.To, m.Amount)
		case MovementMint:
			err = tokens.Mint(m.Token, m.To, m.Amount)
		case MovementBurn:
			err = tokens.Burn(m.Token, m.From, m.Amount)
		case MovementTransferFrom:
			err = tokens.TransferFrom(m.Token, spender, m.From, m.To, m.Amount)
		default:
			err = fmt.Errorf("ledger: unknown movement kind %d", m.Kind)
		}
		if err != nil {
			return fmt.Errorf("ledger: movement %d (%s %s): %w", i, m.Kind, m.Token.Hex(), err)
		}
	}
	return nil
}

// Handler is the uniform signature of the per-type operation handlers.
type Handler func(caller common.Address, op *types.Operation) (*Result, error)

// Ledger maintains the collateral buckets. Handlers may only be invoked by
// the queue; getters are pure.
type Ledger struct {
	state   ledgerState
	oracles *oracle.Registry
	tokens  Tokens
	auth    governance.Authorizer
	emitter events.Emitter
	logger  *slog.Logger
	session *Session
	window  *window
}

// New constructs a ledger with no-op dependencies.
func New() *Ledger {
	return &Ledger{
		emitter: events.NoopEmitter{},
		auth:    governance.DenyAll{},
		logger:  slog.Default(),
	}
}

// SetState wires the ledger to the shared store.
func (l *Ledger) SetState(s ledgerState) { l.state = s }

// SetOracles wires the price and data provider registry.
func (l *Ledger) SetOracles(r *oracle.Registry) { l.oracles = r }

// SetTokens wires the token primitives used on direct paths.
func (l *Ledger) SetTokens(t Tokens) { l.tokens = t }

// SetAuthorizer configures the governance gate. Nil denies every change.
func (l *Ledger) SetAuthorizer(a governance.Authorizer) {
	if l == nil {
		return
	}
	if a == nil {
		l.auth = governance.DenyAll{}
		return
	}
	l.auth = a
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetLogger configures the structured logger.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	if l == nil || logger == nil {
		return
	}
	l.logger = logger
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if l.oracles == nil {
		return errNilOracles
	}
	return nil
}

func (l *Ledger) guard() error {
	return nativecommon.Guard(l.state, moduleName)
}
