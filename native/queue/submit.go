package queue

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pegcore/core/errors"
	"pegcore/core/events"
	"pegcore/core/state"
	"pegcore/core/types"
)

// Parties identifies who submits an operation, who receives its proceeds and
// the optional vendor collecting a markup.
type Parties struct {
	Sender    common.Address
	Recipient common.Address
	Vendor    common.Address
}

// Request is a generic submission.
type Request struct {
	Type types.OperType
	Parties
	Params types.OperParams
}

// Submit validates req, collects the execution fee, locks the worst-case
// funds into the queue account and appends the operation.
func (q *Queue) Submit(req Request) (uint64, error) {
	if err := q.ready(); err != nil {
		return 0, err
	}
	if !req.Type.Valid() {
		return 0, coreerrors.ErrInvalidOperType.With(big.NewInt(int64(req.Type)))
	}
	global := q.state.Global()
	if global.Liquidated {
		return 0, coreerrors.ErrLiquidated
	}
	if global.Paused {
		return 0, coreerrors.ErrPaused
	}
	params := q.state.Queue()
	recipient, err := resolveRecipient(req.Parties, params.AllowDifferentRecipient)
	if err != nil {
		return 0, err
	}
	if err := validateParams(req.Type, req.Params); err != nil {
		return 0, err
	}
	locks, err := q.locksFor(req.Type, req.Params, global)
	if err != nil {
		return 0, err
	}
	execFee := params.ExecFee(int(req.Type))
	if err := q.checkFunds(req.Sender, global.ACToken, execFee, locks); err != nil {
		return 0, err
	}

	snap := q.state.Snapshot()
	collect := append([]types.Lock{{Token: global.ACToken, Amount: execFee}}, locks...)
	for _, lock := range collect {
		if lock.Amount.Sign() == 0 {
			continue
		}
		if err := q.tokens.Transfer(lock.Token, req.Sender, params.Address, lock.Amount); err != nil {
			_ = q.state.RevertToSnapshot(snap)
			return 0, fmt.Errorf("queue: lock %s: %w", lock.Token.Hex(), err)
		}
	}
	height := q.state.BlockHeight()
	op := &types.Operation{
		ID:            q.state.AllocateOperationID(),
		Type:          req.Type,
		Sender:        req.Sender,
		Recipient:     recipient,
		Vendor:        req.Vendor,
		Params:        req.Params.Clone(),
		Locked:        locks,
		ExecFee:       execFee,
		QueuedAtBlock: height,
		State:         types.OperStateQueued,
	}
	q.state.PutOperation(op)
	if err := q.state.DiscardSnapshot(snap); err != nil {
		return 0, err
	}

	q.logger.Debug("operation queued",
		"operId", op.ID,
		"type", op.Type.String(),
		"sender", op.Sender.Hex(),
		"height", height)
	q.emitter.Emit(events.OperationQueued{
		ID:        op.ID,
		Kind:      op.Type,
		Sender:    op.Sender,
		Recipient: op.Recipient,
		Vendor:    op.Vendor,
		ExecFee:   execFee,
		Locked:    locks,
		Height:    height,
	})
	q.metrics.RecordSubmission(op.Type.String())
	q.metrics.SetPending(q.PendingCount())
	return op.ID, nil
}

func resolveRecipient(p Parties, allowDifferent bool) (common.Address, error) {
	if p.Sender == (common.Address{}) {
		return common.Address{}, coreerrors.ErrInvalidAddress
	}
	if p.Recipient == (common.Address{}) {
		if allowDifferent {
			return common.Address{}, coreerrors.ErrInvalidAddress
		}
		return p.Sender, nil
	}
	if !allowDifferent && p.Recipient != p.Sender {
		return common.Address{}, coreerrors.ErrRecipientMustBeSender
	}
	return p.Recipient, nil
}

func positive(values ...*big.Int) error {
	for _, v := range values {
		if v == nil || v.Sign() <= 0 {
			return coreerrors.ErrInvalidValue
		}
	}
	return nil
}

func nonNegative(values ...*big.Int) error {
	for _, v := range values {
		if v != nil && v.Sign() < 0 {
			return coreerrors.ErrInvalidValue
		}
	}
	return nil
}

func validateParams(kind types.OperType, p types.OperParams) error {
	if err := nonNegative(p.QACmin, p.QTCmin, p.QTPmin); err != nil {
		return err
	}
	switch kind {
	case types.OperTypeMintTC:
		return positive(p.QTC, p.QACmax)
	case types.OperTypeRedeemTC:
		return positive(p.QTC)
	case types.OperTypeMintTP, types.OperTypeMintTCandTP:
		return positive(p.QTP, p.QACmax)
	case types.OperTypeRedeemTP:
		return positive(p.QTP)
	case types.OperTypeSwapTPforTP:
		if p.TP == p.TPTo {
			return coreerrors.ErrInvalidValue
		}
		return positive(p.QTP, p.QACmax)
	case types.OperTypeSwapTPforTC:
		return positive(p.QTP, p.QACmax)
	case types.OperTypeSwapTCforTP:
		return positive(p.QTC, p.QACmax)
	case types.OperTypeRedeemTCandTP:
		return positive(p.QTC, p.QTP)
	default:
		return coreerrors.ErrInvalidOperType.With(big.NewInt(int64(kind)))
	}
}

func (q *Queue) peggedToken(tp uint32) (common.Address, error) {
	bucket, ok := q.state.Pegged(tp)
	if !ok {
		return common.Address{}, coreerrors.ErrInvalidPeggedToken.With(new(big.Int).SetUint64(uint64(tp)))
	}
	return bucket.Token, nil
}

// locksFor returns the funds held for kind: the collateral ceiling for
// buy-side legs and the asset itself for sell-side legs.
func (q *Queue) locksFor(kind types.OperType, p types.OperParams, global state.GlobalBucket) ([]types.Lock, error) {
	lock := func(token common.Address, amount *big.Int) types.Lock {
		return types.Lock{Token: token, Amount: new(big.Int).Set(amount)}
	}
	switch kind {
	case types.OperTypeMintTC:
		return []types.Lock{lock(global.ACToken, p.QACmax)}, nil
	case types.OperTypeRedeemTC:
		return []types.Lock{lock(global.TCToken, p.QTC)}, nil
	case types.OperTypeSwapTCforTP:
		if _, err := q.peggedToken(p.TP); err != nil {
			return nil, err
		}
		return []types.Lock{lock(global.TCToken, p.QTC), lock(global.ACToken, p.QACmax)}, nil
	case types.OperTypeMintTP, types.OperTypeMintTCandTP:
		if _, err := q.peggedToken(p.TP); err != nil {
			return nil, err
		}
		return []types.Lock{lock(global.ACToken, p.QACmax)}, nil
	case types.OperTypeRedeemTP:
		token, err := q.peggedToken(p.TP)
		if err != nil {
			return nil, err
		}
		return []types.Lock{lock(token, p.QTP)}, nil
	case types.OperTypeSwapTPforTP:
		token, err := q.peggedToken(p.TP)
		if err != nil {
			return nil, err
		}
		if _, err := q.peggedToken(p.TPTo); err != nil {
			return nil, err
		}
		return []types.Lock{lock(token, p.QTP), lock(global.ACToken, p.QACmax)}, nil
	case types.OperTypeSwapTPforTC:
		token, err := q.peggedToken(p.TP)
		if err != nil {
			return nil, err
		}
		return []types.Lock{lock(token, p.QTP), lock(global.ACToken, p.QACmax)}, nil
	case types.OperTypeRedeemTCandTP:
		token, err := q.peggedToken(p.TP)
		if err != nil {
			return nil, err
		}
		return []types.Lock{lock(global.TCToken, p.QTC), lock(token, p.QTP)}, nil
	default:
		return nil, coreerrors.ErrInvalidOperType.With(big.NewInt(int64(kind)))
	}
}

func (q *Queue) checkFunds(sender, acToken common.Address, execFee *big.Int, locks []types.Lock) error {
	need := map[common.Address]*big.Int{acToken: new(big.Int).Set(execFee)}
	order := []common.Address{acToken}
	for _, lock := range locks {
		if _, ok := need[lock.Token]; !ok {
			need[lock.Token] = big.NewInt(0)
			order = append(order, lock.Token)
		}
		need[lock.Token].Add(need[lock.Token], lock.Amount)
	}
	for _, token := range order {
		balance := q.state.Balance(token, sender)
		if balance.Cmp(need[token]) < 0 {
			return coreerrors.ErrInsufficientFunds.With(balance, need[token])
		}
	}
	return nil
}

// SubmitMintTC queues a collateral token mint of qTC paying at most qACmax.
func (q *Queue) SubmitMintTC(p Parties, qTC, qACmax *big.Int) (uint64, error) {
	return q.Submit(Request{Type: types.OperTypeMintTC, Parties: p, Params: types.OperParams{QTC: qTC, QACmax: qACmax}})
}

// SubmitRedeemTC queues a collateral token redemption receiving at least
// qACmin.
func (q *Queue) SubmitRedeemTC(p Parties, qTC, qACmin *big.Int) (uint64, error) {
	return q.Submit(Request{Type: types.OperTypeRedeemTC, Parties: p, Params: types.OperParams{QTC: qTC, QACmin: qACmin}})
}

// SubmitMintTP queues a pegged token mint.
func (q *Queue) SubmitMintTP(p Parties, tp uint32, qTP, qACmax *big.Int) (uint64, error) {
	return q.Submit(Request{Type: types.OperTypeMintTP, Parties: p, Params: types.OperParams{TP: tp, QTP: qTP, QACmax: qACmax}})
}

// SubmitRedeemTP queues a pegged token redemption.
func (q *Queue) SubmitRedeemTP(p Parties, tp uint32, qTP, qACmin *big.Int) (uint64, error) {
	return q.Submit(Request{Type: types.OperTypeRedeemTP, Parties: p, Params: types.OperParams{TP: tp, QTP: qTP, QACmin: qACmin}})
}

// SubmitSwapTPforTP queues an exchange between two pegged tokens.
func (q *Queue) SubmitSwapTPforTP(p Parties, from, to uint32, qTP, qTPmin, qACmax *big.Int) (uint64, error) {
	return q.Submit(Request{Type: types.OperTypeSwapTPforTP, Parties: p, Params: types.OperParams{TP: from, TPTo: to, QTP: qTP, QTPmin: qTPmin, QACmax: qACmax}})
}

// SubmitSwapTPforTC queues an exchange of a pegged token for collateral
// tokens.
func (q *Queue) SubmitSwapTPforTC(p Parties, tp uint32, qTP, qTCmin, qACmax *big.Int) (uint64, error) {
	return q.Submit(Request{Type: types.OperTypeSwapTPforTC, Parties: p, Params: types.OperParams{TP: tp, QTP: qTP, QTCmin: qTCmin, QACmax: qACmax}})
}

// SubmitSwapTCforTP queues an exchange of collateral tokens for a pegged
// token.
func (q *Queue) SubmitSwapTCforTP(p Parties, tp uint32, qTC, qTPmin, qACmax *big.Int) (uint64, error) {
	return q.Submit(Request{Type: types.OperTypeSwapTCforTP, Parties: p, Params: types.OperParams{TP: tp, QTC: qTC, QTPmin: qTPmin, QACmax: qACmax}})
}

// SubmitMintTCandTP queues a joint mint keeping the bucket at its target
// coverage.
func (q *Queue) SubmitMintTCandTP(p Parties, tp uint32, qTP, qACmax *big.Int) (uint64, error) {
	return q.Submit(Request{Type: types.OperTypeMintTCandTP, Parties: p, Params: types.OperParams{TP: tp, QTP: qTP, QACmax: qACmax}})
}

// SubmitRedeemTCandTP queues a joint redemption.
func (q *Queue) SubmitRedeemTCandTP(p Parties, tp uint32, qTC, qTP, qACmin *big.Int) (uint64, error) {
	return q.Submit(Request{Type: types.OperTypeRedeemTCandTP, Parties: p, Params: types.OperParams{TP: tp, QTC: qTC, QTP: qTP, QACmin: qACmin}})
}
