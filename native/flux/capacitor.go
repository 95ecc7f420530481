package flux

import (
	"math/big"

	coreerrors "pegcore/core/errors"
	"pegcore/native/common"
	"pegcore/native/oracle"
)

// State captures the decaying accumulators tracked per pegged token.
type State struct {
	Absolute           *big.Int
	Differential       *big.Int
	LastOperationBlock uint64
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	return State{
		Absolute:           common.Copy(s.Absolute),
		Differential:       common.Copy(s.Differential),
		LastOperationBlock: s.LastOperationBlock,
	}
}

// Equal reports whether two states carry the same accumulators and block.
func (s State) Equal(other State) bool {
	return common.Copy(s.Absolute).Cmp(common.Copy(other.Absolute)) == 0 &&
		common.Copy(s.Differential).Cmp(common.Copy(other.Differential)) == 0 &&
		s.LastOperationBlock == other.LastOperationBlock
}

// Limits resolves the admission ceilings for a tracked asset.
type Limits struct {
	MaxAbsolute     oracle.DataProvider
	MaxDifferential oracle.DataProvider
}

func (l Limits) resolve() (*big.Int, *big.Int, error) {
	if l.MaxAbsolute == nil || l.MaxDifferential == nil {
		return nil, nil, coreerrors.ErrMissingProviderData
	}
	maxAbs, ok := l.MaxAbsolute.GetData()
	if !ok || maxAbs == nil {
		return nil, nil, coreerrors.ErrMissingProviderData
	}
	maxDiff, ok := l.MaxDifferential.GetData()
	if !ok || maxDiff == nil {
		return nil, nil, coreerrors.ErrMissingProviderData
	}
	return maxAbs, maxDiff, nil
}

// Capacitor rate limits operation volume using linearly decaying accumulators.
type Capacitor struct {
	decayBlockSpan uint64
}

// NewCapacitor constructs a capacitor decaying fully over span blocks.
func NewCapacitor(span uint64) (*Capacitor, error) {
	if span == 0 {
		return nil, coreerrors.ErrInvalidDecaySpan
	}
	return &Capacitor{decayBlockSpan: span}, nil
}

// Decay returns s decayed toward zero for the blocks elapsed up to block. The
// returned state is stamped with block so decaying again at the same height
// is a no-op.
func (c *Capacitor) Decay(s State, block uint64) State {
	out := s.Clone()
	if block <= s.LastOperationBlock {
		return out
	}
	elapsed := block - s.LastOperationBlock
	out.LastOperationBlock = block
	if elapsed >= c.decayBlockSpan {
		out.Absolute = new(big.Int)
		out.Differential = new(big.Int)
		return out
	}
	span := new(big.Int).SetUint64(c.decayBlockSpan)
	remaining := new(big.Int).SetUint64(c.decayBlockSpan - elapsed)
	out.Absolute = common.MulDiv(out.Absolute, remaining, span)
	out.Differential = common.MulDiv(out.Differential, remaining, span)
	return out
}

// Apply decays s, accumulates the signed notional q and checks the result
// against limits. On denial the original state is returned untouched.
func (c *Capacitor) Apply(s State, q *big.Int, block uint64, limits Limits) (State, error) {
	maxAbs, maxDiff, err := limits.resolve()
	if err != nil {
		return s, err
	}
	next := c.Decay(s, block)
	if q != nil {
		next.Absolute.Add(next.Absolute, new(big.Int).Abs(q))
		next.Differential.Add(next.Differential, q)
	}
	next.LastOperationBlock = block
	if next.Absolute.Cmp(maxAbs) > 0 || new(big.Int).Abs(next.Differential).Cmp(maxDiff) > 0 {
		return s, coreerrors.ErrMaxFluxCapacitorReached
	}
	return next, nil
}

// MaxQtyToMint returns the largest positive notional still admissible at
// block without mutating s.
func (c *Capacitor) MaxQtyToMint(s State, block uint64, limits Limits) (*big.Int, error) {
	maxAbs, maxDiff, err := limits.resolve()
	if err != nil {
		return nil, err
	}
	decayed := c.Decay(s, block)
	byAbs := new(big.Int).Sub(maxAbs, decayed.Absolute)
	byDiff := new(big.Int).Sub(maxDiff, decayed.Differential)
	return common.NonNegative(common.Min(byAbs, byDiff)), nil
}

// MaxQtyToRedeem returns the largest negative notional (as a positive
// magnitude) still admissible at block without mutating s.
func (c *Capacitor) MaxQtyToRedeem(s State, block uint64, limits Limits) (*big.Int, error) {
	maxAbs, maxDiff, err := limits.resolve()
	if err != nil {
		return nil, err
	}
	decayed := c.Decay(s, block)
	byAbs := new(big.Int).Sub(maxAbs, decayed.Absolute)
	byDiff := new(big.Int).Add(maxDiff, decayed.Differential)
	return common.NonNegative(common.Min(byAbs, byDiff)), nil
}
