package ledger

import (
	"math/big"

	"pegcore/core/state"
	"pegcore/native/common"
	"pegcore/native/fees"
)

// view is a working copy of the buckets priced at a single point in time.
// Getters evaluate it read-only; handlers mutate it and commit on success.
type view struct {
	global     state.GlobalBucket
	pegged     []state.PeggedBucket
	prices     []*big.Int
	valid      []bool
	fees       state.FeeParams
	settlement state.SettlementParams
}

func (l *Ledger) load() *view {
	v := &view{
		global:     l.state.Global(),
		fees:       l.state.Fees(),
		settlement: l.state.Settlement(),
	}
	n := l.state.PeggedCount()
	v.pegged = make([]state.PeggedBucket, n)
	v.prices = make([]*big.Int, n)
	v.valid = make([]bool, n)
	for i := 0; i < n; i++ {
		bucket, _ := l.state.Pegged(uint32(i))
		v.pegged[i] = bucket
		price, ok := l.oracles.PeekAt(bucket.PriceProvider)
		if ok && price.Sign() > 0 {
			v.prices[i] = price
			v.valid[i] = true
			continue
		}
		v.prices[i] = common.Copy(bucket.LastPrice)
	}
	return v
}

func (v *view) lckTP(i int) *big.Int {
	return common.DivPrec(v.pegged[i].NTP, v.prices[i])
}

func (v *view) lckAC() *big.Int {
	total := big.NewInt(0)
	for i := range v.pegged {
		total.Add(total, v.lckTP(i))
	}
	return total
}

func (v *view) pendingSettlement() fees.SettlementResult {
	positions := make([]fees.SettlementPosition, len(v.pegged))
	for i, bucket := range v.pegged {
		positions[i] = fees.SettlementPosition{
			NTP:       bucket.NTP,
			LastPrice: bucket.SettlementPrice,
			Price:     v.prices[i],
		}
	}
	return fees.Settle(positions, v.settlement.SuccessFee, v.settlement.AppreciationFactor)
}

// unrealizedGain is minus the collateral the next settlement moves out of the
// pool, so it is never positive.
func (v *view) unrealizedGain() *big.Int {
	return new(big.Int).Neg(v.pendingSettlement().Outflow())
}

func (v *view) available() *big.Int {
	return common.NonNegative(new(big.Int).Add(common.Copy(v.global.NACcb), v.unrealizedGain()))
}

func (v *view) coverage() *big.Int {
	lck := v.lckAC()
	if lck.Sign() == 0 {
		return new(big.Int).Set(common.MaxSentinel)
	}
	return common.DivPrec(v.available(), lck)
}

func (v *view) tcPrice() *big.Int {
	if v.global.NTCcb == nil || v.global.NTCcb.Sign() == 0 {
		return common.One()
	}
	surplus := common.NonNegative(new(big.Int).Sub(v.available(), v.lckAC()))
	return common.DivPrec(surplus, v.global.NTCcb)
}

func (v *view) ctargema(i int) *big.Int {
	bucket := v.pegged[i]
	ctarg := common.Copy(bucket.Ctarg)
	if bucket.EMA == nil || bucket.EMA.Sign() == 0 || v.prices[i].Sign() == 0 {
		return ctarg
	}
	ratio := common.Max(common.One(), common.DivPrec(bucket.EMA, v.prices[i]))
	return common.MulPrec(ctarg, ratio)
}

func (v *view) ctargemaCA() *big.Int {
	lck := v.lckAC()
	if lck.Sign() == 0 {
		out := common.One()
		for _, bucket := range v.pegged {
			out = common.Max(out, common.Copy(bucket.Ctarg))
		}
		return out
	}
	weighted := big.NewInt(0)
	for i := range v.pegged {
		weighted.Add(weighted, new(big.Int).Mul(v.ctargema(i), v.lckTP(i)))
	}
	return weighted.Quo(weighted, lck)
}

func (v *view) tcAvailableToRedeem() *big.Int {
	required := common.MulPrec(v.lckAC(), v.ctargemaCA())
	surplus := common.NonNegative(new(big.Int).Sub(v.available(), required))
	out := common.DivPrec(surplus, v.tcPrice())
	return common.Min(out, common.Copy(v.global.NTCcb))
}

func (v *view) tpAvailableToMint(i int) *big.Int {
	ctg := v.ctargema(i)
	if ctg.Cmp(common.Precision) <= 0 {
		return new(big.Int).Set(common.MaxSentinel)
	}
	required := common.MulPrec(v.lckAC(), v.ctargemaCA())
	surplus := new(big.Int).Sub(v.available(), required)
	if surplus.Sign() <= 0 {
		return big.NewInt(0)
	}
	qAC := common.MulDiv(surplus, common.Precision, new(big.Int).Sub(ctg, common.Precision))
	return common.MulPrec(qAC, v.prices[i])
}
