package fees

import (
	"math/big"

	"pegcore/native/common"
)

// SettlementPosition captures a pegged token's exposure over a period.
type SettlementPosition struct {
	NTP       *big.Int
	LastPrice *big.Int
	Price     *big.Int
}

// SettlementResult aggregates the realised gains of a period.
type SettlementResult struct {
	Gain            *big.Int
	SuccessFee      *big.Int
	AppreciationFee *big.Int
}

// Outflow returns the collateral leaving the pool at settlement.
func (r SettlementResult) Outflow() *big.Int {
	return new(big.Int).Add(common.Copy(r.SuccessFee), common.Copy(r.AppreciationFee))
}

// Gain returns nTP/pLast - nTP/pNow in collateral units. It is positive when
// the pegged token depreciated against collateral.
func Gain(p SettlementPosition) *big.Int {
	if p.NTP == nil || p.NTP.Sign() == 0 || p.LastPrice == nil || p.LastPrice.Sign() <= 0 || p.Price == nil || p.Price.Sign() <= 0 {
		return big.NewInt(0)
	}
	before := common.DivPrec(p.NTP, p.LastPrice)
	after := common.DivPrec(p.NTP, p.Price)
	return before.Sub(before, after)
}

// Settle computes the success fee and appreciation share owed on the
// positive gains of each position.
func Settle(positions []SettlementPosition, successFee, appreciationFactor *big.Int) SettlementResult {
	total := big.NewInt(0)
	for _, p := range positions {
		if g := Gain(p); g.Sign() > 0 {
			total.Add(total, g)
		}
	}
	return SettlementResult{
		Gain:            total,
		SuccessFee:      common.MulPrec(total, common.Copy(successFee)),
		AppreciationFee: common.MulPrec(total, common.Copy(appreciationFactor)),
	}
}
