package ledger

import (
	"math/big"

	coreerrors "pegcore/core/errors"
	"pegcore/core/state"
	"pegcore/native/common"
	"pegcore/native/flux"
)

// Getters never mutate state. Pegged tokens whose price provider is invalid
// are valued at the last price observed by a handler.

// Coverage returns the global coverage ratio, MaxSentinel when nothing is
// locked.
func (l *Ledger) Coverage() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.load().coverage(), nil
}

// TCPrice returns the collateral token price in collateral units.
func (l *Ledger) TCPrice() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.load().tcPrice(), nil
}

// LckAC returns the collateral locked by outstanding pegged tokens.
func (l *Ledger) LckAC() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.load().lckAC(), nil
}

// TotalACAvailable returns the collateral held plus the (non-positive)
// unrealised settlement gain.
func (l *Ledger) TotalACAvailable() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.load().available(), nil
}

// UnrealizedGain returns minus the collateral the next settlement would move
// out of the pool.
func (l *Ledger) UnrealizedGain() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.load().unrealizedGain(), nil
}

// TargetCoverage returns the lck-weighted EMA-adjusted target coverage.
func (l *Ledger) TargetCoverage() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.load().ctargemaCA(), nil
}

func (l *Ledger) bucketView(tp uint32) (*view, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	v := l.load()
	if int(tp) >= len(v.pegged) {
		return nil, coreerrors.ErrInvalidPeggedToken.With(new(big.Int).SetUint64(uint64(tp)))
	}
	return v, nil
}

// TPTargetCoverage returns the EMA-adjusted target coverage of tp.
func (l *Ledger) TPTargetCoverage(tp uint32) (*big.Int, error) {
	v, err := l.bucketView(tp)
	if err != nil {
		return nil, err
	}
	return v.ctargema(int(tp)), nil
}

// TPPrice returns the price used for tp and whether it came from a valid
// provider.
func (l *Ledger) TPPrice(tp uint32) (*big.Int, bool, error) {
	v, err := l.bucketView(tp)
	if err != nil {
		return nil, false, err
	}
	return common.Copy(v.prices[tp]), v.valid[tp], nil
}

// TCAvailableToRedeem returns how many collateral tokens may be redeemed
// without dropping below the target coverage.
func (l *Ledger) TCAvailableToRedeem() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.load().tcAvailableToRedeem(), nil
}

// TPAvailableToMint returns how many units of tp may be minted without
// dropping below the target coverage.
func (l *Ledger) TPAvailableToMint(tp uint32) (*big.Int, error) {
	v, err := l.bucketView(tp)
	if err != nil {
		return nil, err
	}
	return v.tpAvailableToMint(int(tp)), nil
}

func (l *Ledger) fluxQuery(tp uint32, query func(*flux.Capacitor, flux.State, uint64, flux.Limits) (*big.Int, error)) (*big.Int, error) {
	v, err := l.bucketView(tp)
	if err != nil {
		return nil, err
	}
	capacitor, err := flux.NewCapacitor(l.state.FluxDecayBlockSpan())
	if err != nil {
		return nil, err
	}
	x := &execution{view: v, l: l}
	return query(capacitor, v.pegged[tp].Flux, l.state.BlockHeight(), x.fluxLimits(tp))
}

// MaxQtyToMint returns the largest collateral notional the flux capacitor of
// tp still admits for mint-like operations.
func (l *Ledger) MaxQtyToMint(tp uint32) (*big.Int, error) {
	return l.fluxQuery(tp, (*flux.Capacitor).MaxQtyToMint)
}

// MaxQtyToRedeem returns the largest collateral notional the flux capacitor
// of tp still admits for redeem-like operations.
func (l *Ledger) MaxQtyToRedeem(tp uint32) (*big.Int, error) {
	return l.fluxQuery(tp, (*flux.Capacitor).MaxQtyToRedeem)
}

// Global returns a copy of the global bucket.
func (l *Ledger) Global() (state.GlobalBucket, error) {
	if err := l.ready(); err != nil {
		return state.GlobalBucket{}, err
	}
	return l.state.Global(), nil
}

// Bucket returns a copy of pegged bucket tp.
func (l *Ledger) Bucket(tp uint32) (state.PeggedBucket, error) {
	if err := l.ready(); err != nil {
		return state.PeggedBucket{}, err
	}
	bucket, ok := l.state.Pegged(tp)
	if !ok {
		return state.PeggedBucket{}, coreerrors.ErrInvalidPeggedToken.With(new(big.Int).SetUint64(uint64(tp)))
	}
	return bucket, nil
}

// PeggedCount returns the number of registered pegged tokens.
func (l *Ledger) PeggedCount() int {
	if l == nil || l.state == nil {
		return 0
	}
	return l.state.PeggedCount()
}

// IsLiquidated reports whether the protocol has been liquidated.
func (l *Ledger) IsLiquidated() bool {
	if l == nil || l.state == nil {
		return false
	}
	return l.state.Global().Liquidated
}
