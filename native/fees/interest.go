package fees

import (
	"math/big"

	"pegcore/core/state"
	"pegcore/native/common"
)

// InterestInput captures the inputs of the redemption interest curve.
type InterestInput struct {
	Params          state.InterestParams
	Eq              *big.Int
	CoverageBefore  *big.Int
	CoverageAfter   *big.Int
	BlocksRemaining uint64
	Bes             uint64
}

// Skew returns eq/c in fixed point. An unbounded coverage yields 1.0.
func Skew(eq, coverage *big.Int) *big.Int {
	if coverage == nil || coverage.Sign() <= 0 || common.IsSentinel(coverage) || eq == nil || eq.Sign() <= 0 {
		return common.One()
	}
	return common.DivPrec(eq, coverage)
}

// CoverageFactor blends the backward and forward skews and clamps the result
// to the configured factor bounds.
func CoverageFactor(in InterestInput) *big.Int {
	eq := in.Params.Eq
	if eq == nil || eq.Sign() == 0 {
		eq = in.Eq
	}
	back := Skew(eq, in.CoverageBefore)
	fwd := Skew(eq, in.CoverageAfter)
	avg := new(big.Int).Add(back, fwd)
	avg.Quo(avg, big.NewInt(2))
	lo := common.Copy(in.Params.FacMin)
	hi := in.Params.FacMax
	if hi == nil || hi.Sign() == 0 {
		return common.Max(avg, lo)
	}
	return common.Clamp(avg, lo, hi)
}

// InterestRate returns the fixed-point interest rate charged on a redemption.
// It is zero unless more than Bmin blocks remain until the next settlement.
func InterestRate(in InterestInput) *big.Int {
	if in.Bes == 0 || in.BlocksRemaining <= in.Params.Bmin {
		return big.NewInt(0)
	}
	tils := common.Copy(in.Params.Tils)
	if tils.Sign() == 0 {
		return big.NewInt(0)
	}
	rate := common.MulPrec(tils, CoverageFactor(in))
	hi := in.Params.TilsMax
	if hi == nil || hi.Sign() == 0 {
		rate = common.Max(rate, common.Copy(in.Params.TilsMin))
	} else {
		rate = common.Clamp(rate, common.Copy(in.Params.TilsMin), hi)
	}
	return common.MulDiv(rate, new(big.Int).SetUint64(in.BlocksRemaining), new(big.Int).SetUint64(in.Bes))
}

// Interest returns the collateral surcharge for qAC.
func Interest(qAC *big.Int, in InterestInput) *big.Int {
	if qAC == nil || qAC.Sign() <= 0 {
		return big.NewInt(0)
	}
	return common.MulPrec(qAC, InterestRate(in))
}
