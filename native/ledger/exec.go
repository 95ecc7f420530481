package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pegcore/core/errors"
	"pegcore/core/events"
	"pegcore/core/types"
	nativecommon "pegcore/native/common"
	"pegcore/native/fees"
	"pegcore/native/flux"
)

// execution is the working context of a single handler invocation. Nothing
// reaches the store until commit.
type execution struct {
	*view
	l         *Ledger
	op        *types.Operation
	block     uint64
	queue     common.Address
	capacitor *flux.Capacitor
	result    *Result
}

func (l *Ledger) begin(caller common.Address, op *types.Operation, tps ...uint32) (*execution, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	queue := l.state.Queue().Address
	if caller != queue || queue == (common.Address{}) {
		return nil, coreerrors.ErrOnlyQueue
	}
	if op == nil {
		return nil, coreerrors.ErrInvalidValue
	}
	if err := l.enter(); err != nil {
		return nil, err
	}
	if err := l.guard(); err != nil {
		return nil, err
	}
	if l.state.Global().Liquidated {
		return nil, coreerrors.ErrLiquidated
	}
	capacitor, err := flux.NewCapacitor(l.state.FluxDecayBlockSpan())
	if err != nil {
		return nil, err
	}
	x := &execution{
		view:      l.load(),
		l:         l,
		op:        op,
		block:     l.state.BlockHeight(),
		queue:     queue,
		capacitor: capacitor,
		result:    newResult(),
	}
	for _, tp := range tps {
		if int(tp) >= len(x.pegged) {
			return nil, coreerrors.ErrInvalidPeggedToken.With(new(big.Int).SetUint64(uint64(tp)))
		}
		if !x.valid[tp] {
			return nil, coreerrors.ErrInvalidPriceProvider
		}
	}
	x.refreshEMAs()
	x.settleIfDue()
	return x, nil
}

func (x *execution) emit(evt events.Event) {
	x.result.Events = append(x.result.Events, evt)
}

// refreshEMAs recomputes every moving average whose span elapsed.
func (x *execution) refreshEMAs() {
	span := x.settlement.EMABlockSpan
	for i := range x.pegged {
		if !x.valid[i] {
			continue
		}
		if updated, ok := nextEMA(x.pegged[i].EMA, x.pegged[i].SmoothingFactor, x.prices[i], x.pegged[i].LastEMABlock, span, x.block); ok {
			x.pegged[i].EMA = updated
			x.pegged[i].LastEMABlock = x.block
			x.emit(events.EMAUpdated{TP: uint32(i), EMA: updated, Price: x.prices[i], Height: x.block})
		}
	}
}

func nextEMA(ema, smoothing, price *big.Int, last, span, block uint64) (*big.Int, bool) {
	if span == 0 || block < last+span {
		return nil, false
	}
	if ema == nil || ema.Sign() == 0 {
		return new(big.Int).Set(price), true
	}
	sf := nativecommon.Clamp(smoothing, big.NewInt(0), nativecommon.Precision)
	keep := new(big.Int).Sub(nativecommon.Precision, sf)
	out := nativecommon.MulPrec(ema, keep)
	out.Add(out, nativecommon.MulPrec(price, sf))
	return out, true
}

// settleIfDue closes every elapsed settlement period against the current
// prices, paying the success fee and appreciation share out of the vault.
func (x *execution) settleIfDue() {
	settled, evt := settle(x.view, x.block)
	if !settled {
		return
	}
	x.result.transfer(x.global.ACToken, x.global.Vault, x.fees.FeeCollector, evt.SuccessFee)
	x.result.transfer(x.global.ACToken, x.global.Vault, x.settlement.TCInterestCollector, evt.AppreciationFee)
	x.emit(evt)
}

func settle(v *view, block uint64) (bool, events.SettlementExecuted) {
	bes := v.settlement.Bes
	if bes == 0 || block < v.settlement.NextSettlementBlock() {
		return false, events.SettlementExecuted{}
	}
	pending := v.pendingSettlement()
	outflow := nativecommon.Min(pending.Outflow(), nativecommon.Copy(v.global.NACcb))
	appreciation := nativecommon.Min(pending.AppreciationFee, outflow)
	success := new(big.Int).Sub(outflow, appreciation)
	v.global.NACcb = new(big.Int).Sub(nativecommon.Copy(v.global.NACcb), outflow)
	for i := range v.pegged {
		v.pegged[i].SettlementPrice = nativecommon.Copy(v.prices[i])
	}
	periods := (block - v.settlement.LastSettlementBlock) / bes
	v.settlement.LastSettlementBlock += periods * bes
	return true, events.SettlementExecuted{
		Gain:            pending.Gain,
		SuccessFee:      success,
		AppreciationFee: appreciation,
		NextSettlement:  v.settlement.NextSettlementBlock(),
		Height:          block,
	}
}

func (x *execution) fluxLimits(tp uint32) flux.Limits {
	bucket := x.pegged[tp]
	var limits flux.Limits
	if p, ok := x.l.oracles.Data(bucket.FluxMaxAbsolute); ok {
		limits.MaxAbsolute = p
	}
	if p, ok := x.l.oracles.Data(bucket.FluxMaxDifferential); ok {
		limits.MaxDifferential = p
	}
	return limits
}

// admit records a signed notional against the pegged token's flux capacitor.
func (x *execution) admit(tp uint32, q *big.Int) error {
	next, err := x.capacitor.Apply(x.pegged[tp].Flux, q, x.block, x.fluxLimits(tp))
	if err != nil {
		return err
	}
	x.pegged[tp].Flux = next
	return nil
}

// charge computes the fee and vendor markup on qAC and records the movements
// paying them. payer is the account the collateral leg is drawn from.
func (x *execution) charge(qAC, rate *big.Int, payer common.Address) fees.Payment {
	var markup *big.Int
	if x.op.Vendor != (common.Address{}) {
		markup = x.l.state.VendorMarkup(x.op.Vendor)
	}
	due := fees.Apply(fees.ApplyInput{QAC: qAC, Rate: rate, VendorMarkup: markup})
	in := fees.FeeTokenInput{Enabled: x.global.FeeToken != (common.Address{}), Pct: x.fees.FeeTokenPct}
	if in.Enabled {
		in.Price, in.PriceValid = x.l.oracles.PeekAt(x.fees.FeeTokenPriceProvider)
		in.Balance = x.l.state.Balance(x.global.FeeToken, x.op.Sender)
		in.Allowance = x.l.state.Allowance(x.global.FeeToken, x.op.Sender, x.queue)
	}
	pay := fees.ResolvePayment(due, in)
	if pay.Source == fees.SourceFeeToken {
		x.result.transferFrom(x.global.FeeToken, x.op.Sender, x.fees.FeeCollector, pay.QFeeToken)
		x.result.transferFrom(x.global.FeeToken, x.op.Sender, x.op.Vendor, pay.QFeeTokenMarkup)
	} else {
		x.result.transfer(x.global.ACToken, payer, x.fees.FeeCollector, pay.QACFee)
		x.result.transfer(x.global.ACToken, payer, x.op.Vendor, pay.QACMarkup)
	}
	x.result.Fees = events.FeeBreakdown{
		QACFee:                pay.QACFee,
		QFeeToken:             pay.QFeeToken,
		QACVendorMarkup:       pay.QACMarkup,
		QFeeTokenVendorMarkup: pay.QFeeTokenMarkup,
		QACInterest:           big.NewInt(0),
		Source:                pay.Source,
		FallbackReason:        pay.FallbackReason,
	}
	return pay
}

// interest returns the redemption surcharge on qAC for tp given the coverage
// before the operation and the current (post-operation) working state.
func (x *execution) interest(tp uint32, qAC, coverageBefore *big.Int) *big.Int {
	next := x.settlement.NextSettlementBlock()
	var remaining uint64
	if next > x.block {
		remaining = next - x.block
	}
	amount := fees.Interest(qAC, fees.InterestInput{
		Params:          x.pegged[tp].Interest,
		Eq:              x.ctargemaCA(),
		CoverageBefore:  coverageBefore,
		CoverageAfter:   x.coverage(),
		BlocksRemaining: remaining,
		Bes:             x.settlement.Bes,
	})
	x.result.Fees.QACInterest = new(big.Int).Set(amount)
	return amount
}

// checkMintCoverage enforces the protected threshold and the EMA-adjusted
// target coverage on the post-operation state.
func (x *execution) checkMintCoverage(qTP, availableBefore *big.Int) error {
	if err := x.checkProtected(); err != nil {
		return err
	}
	if x.coverage().Cmp(x.ctargemaCA()) < 0 {
		return coreerrors.ErrInsufficientTPtoMint.With(qTP, availableBefore)
	}
	return nil
}

func (x *execution) checkProtected() error {
	if x.lckAC().Sign() == 0 {
		return nil
	}
	cov := x.coverage()
	if cov.Cmp(nativecommon.Copy(x.global.ProtThrld)) < 0 {
		return coreerrors.ErrLowCoverage.With(cov, x.global.ProtThrld)
	}
	return nil
}

// liveTCPrice is the collateral token price for operations that create TC.
// A zero price means the pool has no surplus left to sell.
func (x *execution) liveTCPrice() (*big.Int, error) {
	price := x.tcPrice()
	if price.Sign() <= 0 {
		return nil, coreerrors.ErrLowCoverage.With(x.coverage(), x.global.ProtThrld)
	}
	return price, nil
}

func (x *execution) addAC(delta *big.Int) {
	x.global.NACcb = new(big.Int).Add(nativecommon.Copy(x.global.NACcb), delta)
}

func (x *execution) subAC(delta *big.Int) error {
	next := new(big.Int).Sub(nativecommon.Copy(x.global.NACcb), delta)
	if next.Sign() < 0 {
		return coreerrors.ErrLowCoverage.With(x.coverage(), x.global.ProtThrld)
	}
	x.global.NACcb = next
	return nil
}

func (x *execution) addTC(delta *big.Int) {
	x.global.NTCcb = new(big.Int).Add(nativecommon.Copy(x.global.NTCcb), delta)
}

func (x *execution) subTC(delta *big.Int) error {
	current := nativecommon.Copy(x.global.NTCcb)
	if current.Cmp(delta) < 0 {
		return coreerrors.ErrInsufficientTCtoRedeem.With(delta, current)
	}
	x.global.NTCcb = current.Sub(current, delta)
	return nil
}

func (x *execution) addTP(tp uint32, delta *big.Int) {
	x.pegged[tp].NTP = new(big.Int).Add(nativecommon.Copy(x.pegged[tp].NTP), delta)
}

func (x *execution) subTP(tp uint32, delta *big.Int) error {
	current := nativecommon.Copy(x.pegged[tp].NTP)
	if current.Cmp(delta) < 0 {
		return coreerrors.ErrInsufficientFunds.With(current, delta)
	}
	x.pegged[tp].NTP = current.Sub(current, delta)
	return nil
}

func (x *execution) tpToAC(tp uint32, qTP *big.Int) *big.Int {
	return nativecommon.DivPrec(qTP, x.prices[tp])
}

func (x *execution) tpToACUp(tp uint32, qTP *big.Int) *big.Int {
	return nativecommon.MulDivUp(qTP, nativecommon.Precision, x.prices[tp])
}

func (x *execution) acToTP(tp uint32, qAC *big.Int) *big.Int {
	return nativecommon.MulPrec(qAC, x.prices[tp])
}

func (x *execution) record(evt events.BucketOperation) {
	evt.OperID = x.op.ID
	evt.Kind = x.op.Type
	evt.Sender = x.op.Sender
	evt.Recipient = x.op.Recipient
	evt.Vendor = x.op.Vendor
	evt.Fees = x.result.Fees
	evt.Height = x.block
	x.emit(evt)
}

// commit writes the working copy back to the store and returns the result.
func (x *execution) commit() (*Result, error) {
	for i := range x.pegged {
		if x.valid[i] {
			x.pegged[i].LastPrice = nativecommon.Copy(x.prices[i])
		}
		if err := x.l.state.PutPegged(uint32(i), x.pegged[i]); err != nil {
			return nil, err
		}
	}
	x.l.state.PutGlobal(x.global)
	x.l.state.PutSettlement(x.settlement)
	return x.result, nil
}
