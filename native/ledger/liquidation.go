package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pegcore/core/errors"
	"pegcore/core/events"
	nativecommon "pegcore/native/common"
)

// EvalLiquidation liquidates the protocol when liquidation is enabled and
// coverage has fallen below the liquidation threshold. Liquidation is one-way:
// pegged token prices are frozen and every handler fails afterwards. It
// reports whether the protocol is liquidated on return.
func (l *Ledger) EvalLiquidation() (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	v := l.load()
	if v.global.Liquidated {
		return true, nil
	}
	if !v.global.LiqEnabled || v.lckAC().Sign() == 0 {
		return false, nil
	}
	cov := v.coverage()
	threshold := nativecommon.Copy(v.global.LiqThrld)
	if cov.Cmp(threshold) >= 0 {
		return false, nil
	}
	height := l.state.BlockHeight()
	v.global.Liquidated = true
	v.global.LiquidatedAt = height
	for i := range v.pegged {
		v.pegged[i].LiqPrice = nativecommon.Copy(v.prices[i])
		if err := l.state.PutPegged(uint32(i), v.pegged[i]); err != nil {
			return false, err
		}
	}
	l.state.PutGlobal(v.global)
	l.logger.Warn("ledger liquidated",
		"coverage", nativecommon.FormatPrec(cov),
		"threshold", nativecommon.FormatPrec(threshold),
		"height", height)
	l.emitter.Emit(events.LiquidationTriggered{Coverage: cov, Threshold: threshold, Height: height})
	return true, nil
}

// LiqRedeemTP redeems the holder's entire balance of pegged token tp at the
// price frozen at liquidation. Payouts are capped by the remaining
// collateral.
func (l *Ledger) LiqRedeemTP(holder common.Address, tp uint32) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if l.inWindow() {
		return nil, coreerrors.ErrReentrancyGuard
	}
	if l.tokens == nil {
		return nil, errNilTokens
	}
	global := l.state.Global()
	if !global.Liquidated {
		return nil, coreerrors.ErrOnlyWhenLiquidated
	}
	bucket, ok := l.state.Pegged(tp)
	if !ok {
		return nil, coreerrors.ErrInvalidPeggedToken.With(new(big.Int).SetUint64(uint64(tp)))
	}
	qTP := l.state.Balance(bucket.Token, holder)
	if qTP.Sign() == 0 {
		return nil, coreerrors.ErrInsufficientFunds.With(qTP, big.NewInt(1))
	}
	if bucket.LiqPrice == nil || bucket.LiqPrice.Sign() == 0 {
		return nil, coreerrors.ErrInvalidPriceProvider
	}
	qAC := nativecommon.Min(nativecommon.DivPrec(qTP, bucket.LiqPrice), nativecommon.Copy(global.NACcb))

	snap := l.state.Snapshot()
	if err := l.tokens.Burn(bucket.Token, holder, qTP); err != nil {
		_ = l.state.RevertToSnapshot(snap)
		return nil, coreerrors.ErrTransferFailed
	}
	if err := l.tokens.Transfer(global.ACToken, global.Vault, holder, qAC); err != nil {
		_ = l.state.RevertToSnapshot(snap)
		return nil, coreerrors.ErrTransferFailed
	}
	bucket, _ = l.state.Pegged(tp)
	bucket.NTP = nativecommon.NonNegative(new(big.Int).Sub(nativecommon.Copy(bucket.NTP), qTP))
	if err := l.state.PutPegged(tp, bucket); err != nil {
		_ = l.state.RevertToSnapshot(snap)
		return nil, err
	}
	global = l.state.Global()
	global.NACcb = new(big.Int).Sub(nativecommon.Copy(global.NACcb), qAC)
	l.state.PutGlobal(global)
	if err := l.state.DiscardSnapshot(snap); err != nil {
		return nil, err
	}
	l.emitter.Emit(events.LiquidationRedeemed{TP: tp, Holder: holder, QTP: qTP, QAC: qAC, Height: l.state.BlockHeight()})
	return qAC, nil
}

// ExecSettlement closes the settlement period when due outside of an
// operation. It reports whether a settlement ran.
func (l *Ledger) ExecSettlement() (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	if l.inWindow() {
		return false, coreerrors.ErrReentrancyGuard
	}
	if l.tokens == nil {
		return false, errNilTokens
	}
	if err := l.guard(); err != nil {
		return false, err
	}
	v := l.load()
	if v.global.Liquidated {
		return false, coreerrors.ErrLiquidated
	}
	height := l.state.BlockHeight()
	settled, evt := settle(v, height)
	if !settled {
		return false, nil
	}
	result := newResult()
	result.transfer(v.global.ACToken, v.global.Vault, v.fees.FeeCollector, evt.SuccessFee)
	result.transfer(v.global.ACToken, v.global.Vault, v.settlement.TCInterestCollector, evt.AppreciationFee)

	snap := l.state.Snapshot()
	if err := ApplyMovements(l.tokens, common.Address{}, result.Movements); err != nil {
		_ = l.state.RevertToSnapshot(snap)
		return false, err
	}
	for i := range v.pegged {
		if err := l.state.PutPegged(uint32(i), v.pegged[i]); err != nil {
			_ = l.state.RevertToSnapshot(snap)
			return false, err
		}
	}
	l.state.PutGlobal(v.global)
	l.state.PutSettlement(v.settlement)
	if err := l.state.DiscardSnapshot(snap); err != nil {
		return false, err
	}
	l.emitter.Emit(evt)
	return true, nil
}

// UpdateEMAs recomputes every moving average whose span has elapsed. Buckets
// with an invalid price are skipped.
func (l *Ledger) UpdateEMAs() (int, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	if l.inWindow() {
		return 0, coreerrors.ErrReentrancyGuard
	}
	v := l.load()
	height := l.state.BlockHeight()
	updated := 0
	for i := range v.pegged {
		if !v.valid[i] {
			continue
		}
		bucket := v.pegged[i]
		ema, ok := nextEMA(bucket.EMA, bucket.SmoothingFactor, v.prices[i], bucket.LastEMABlock, v.settlement.EMABlockSpan, height)
		if !ok {
			continue
		}
		bucket.EMA = ema
		bucket.LastEMABlock = height
		if err := l.state.PutPegged(uint32(i), bucket); err != nil {
			return updated, err
		}
		updated++
		l.emitter.Emit(events.EMAUpdated{TP: uint32(i), EMA: ema, Price: v.prices[i], Height: height})
	}
	return updated, nil
}
