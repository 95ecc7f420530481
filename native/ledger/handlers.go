package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pegcore/core/errors"
	"pegcore/core/events"
	"pegcore/core/types"
	nativecommon "pegcore/native/common"
)

// Handlers returns the dispatch table mapping each operation type to its
// handler.
func (l *Ledger) Handlers() map[types.OperType]Handler {
	return map[types.OperType]Handler{
		types.OperTypeMintTC:        l.MintTC,
		types.OperTypeRedeemTC:      l.RedeemTC,
		types.OperTypeMintTP:        l.MintTP,
		types.OperTypeRedeemTP:      l.RedeemTP,
		types.OperTypeSwapTPforTP:   l.SwapTPforTP,
		types.OperTypeSwapTPforTC:   l.SwapTPforTC,
		types.OperTypeSwapTCforTP:   l.SwapTCforTP,
		types.OperTypeMintTCandTP:   l.MintTCandTP,
		types.OperTypeRedeemTCandTP: l.RedeemTCandTP,
	}
}

func amountOf(v *big.Int) *big.Int { return nativecommon.Copy(v) }

func requirePositive(values ...*big.Int) error {
	for _, v := range values {
		if v == nil || v.Sign() <= 0 {
			return coreerrors.ErrInvalidValue
		}
	}
	return nil
}

// MintTC mints qTC collateral tokens against the locked qACmax.
func (l *Ledger) MintTC(caller common.Address, op *types.Operation) (*Result, error) {
	x, err := l.begin(caller, op)
	if err != nil {
		return nil, err
	}
	qTC := amountOf(op.Params.QTC)
	if err := requirePositive(qTC); err != nil {
		return nil, err
	}
	if err := x.checkProtected(); err != nil {
		return nil, err
	}
	price, err := x.liveTCPrice()
	if err != nil {
		return nil, err
	}
	qAC := nativecommon.MulDivUp(qTC, price, nativecommon.Precision)
	if qAC.Sign() <= 0 {
		return nil, coreerrors.ErrLowCoverage.With(x.coverage(), x.global.ProtThrld)
	}
	pay := x.charge(qAC, x.fees.TCMintFee, x.queue)

	total := new(big.Int).Add(qAC, pay.ACTotal())
	if qACmax := amountOf(op.Params.QACmax); total.Cmp(qACmax) > 0 {
		return nil, coreerrors.ErrInsufficientQacSent.With(qACmax, total)
	}
	x.addAC(qAC)
	x.addTC(qTC)

	x.result.transfer(x.global.ACToken, x.queue, x.global.Vault, qAC)
	x.result.mint(x.global.TCToken, op.Recipient, qTC)
	x.result.QTC, x.result.QAC = qTC, qAC
	x.record(events.BucketOperation{QTC: qTC, QAC: qAC})
	return x.commit()
}

// RedeemTC burns qTC collateral tokens and pays out their collateral value.
func (l *Ledger) RedeemTC(caller common.Address, op *types.Operation) (*Result, error) {
	x, err := l.begin(caller, op)
	if err != nil {
		return nil, err
	}
	qTC := amountOf(op.Params.QTC)
	if err := requirePositive(qTC); err != nil {
		return nil, err
	}
	qAC := nativecommon.MulPrec(qTC, x.tcPrice())
	available := x.tcAvailableToRedeem()
	pay := x.charge(qAC, x.fees.TCRedeemFee, x.global.Vault)

	if qTC.Cmp(available) > 0 {
		return nil, coreerrors.ErrInsufficientTCtoRedeem.With(qTC, available)
	}
	if err := x.subTC(qTC); err != nil {
		return nil, err
	}
	if err := x.subAC(qAC); err != nil {
		return nil, err
	}
	if err := x.checkProtected(); err != nil {
		return nil, err
	}
	net := new(big.Int).Sub(qAC, pay.ACTotal())
	if qACmin := amountOf(op.Params.QACmin); net.Cmp(qACmin) < 0 {
		return nil, coreerrors.ErrQtyBelowMinimum.With(qACmin, net)
	}

	x.result.burn(x.global.TCToken, x.queue, qTC)
	x.result.transfer(x.global.ACToken, x.global.Vault, op.Recipient, net)
	x.result.QTC, x.result.QAC = qTC, qAC
	x.record(events.BucketOperation{QTC: qTC, QAC: qAC})
	return x.commit()
}

// MintTP mints qTP pegged tokens against the locked qACmax.
func (l *Ledger) MintTP(caller common.Address, op *types.Operation) (*Result, error) {
	tp := op.Params.TP
	x, err := l.begin(caller, op, tp)
	if err != nil {
		return nil, err
	}
	qTP := amountOf(op.Params.QTP)
	if err := requirePositive(qTP); err != nil {
		return nil, err
	}
	qAC := x.tpToACUp(tp, qTP)
	availableBefore := x.tpAvailableToMint(int(tp))
	if err := x.admit(tp, qAC); err != nil {
		return nil, err
	}
	pay := x.charge(qAC, x.pegged[tp].MintFee, x.queue)

	x.addAC(qAC)
	x.addTP(tp, qTP)
	if err := x.checkMintCoverage(qTP, availableBefore); err != nil {
		return nil, err
	}
	total := new(big.Int).Add(qAC, pay.ACTotal())
	if qACmax := amountOf(op.Params.QACmax); total.Cmp(qACmax) > 0 {
		return nil, coreerrors.ErrInsufficientQacSent.With(qACmax, total)
	}

	x.result.transfer(x.global.ACToken, x.queue, x.global.Vault, qAC)
	x.result.mint(x.pegged[tp].Token, op.Recipient, qTP)
	x.result.QTP, x.result.QAC = qTP, qAC
	x.record(events.BucketOperation{TP: tp, QTP: qTP, QAC: qAC})
	return x.commit()
}

// RedeemTP burns qTP pegged tokens and pays out their collateral value less
// fees and interest.
func (l *Ledger) RedeemTP(caller common.Address, op *types.Operation) (*Result, error) {
	tp := op.Params.TP
	x, err := l.begin(caller, op, tp)
	if err != nil {
		return nil, err
	}
	qTP := amountOf(op.Params.QTP)
	if err := requirePositive(qTP); err != nil {
		return nil, err
	}
	qAC := x.tpToAC(tp, qTP)
	coverageBefore := x.coverage()
	if err := x.admit(tp, new(big.Int).Neg(qAC)); err != nil {
		return nil, err
	}
	pay := x.charge(qAC, x.pegged[tp].RedeemFee, x.global.Vault)

	if err := x.subTP(tp, qTP); err != nil {
		return nil, err
	}
	if err := x.subAC(qAC); err != nil {
		return nil, err
	}
	interest := x.interest(tp, qAC, coverageBefore)
	x.addAC(interest)
	net := new(big.Int).Sub(qAC, pay.ACTotal())
	net.Sub(net, interest)
	if qACmin := amountOf(op.Params.QACmin); net.Cmp(qACmin) < 0 {
		return nil, coreerrors.ErrQtyBelowMinimum.With(qACmin, net)
	}

	x.result.burn(x.pegged[tp].Token, x.queue, qTP)
	x.result.transfer(x.global.ACToken, x.global.Vault, op.Recipient, net)
	x.result.QTP, x.result.QAC = qTP, qAC
	x.record(events.BucketOperation{TP: tp, QTP: qTP, QAC: qAC})
	return x.commit()
}

// SwapTPforTP exchanges qTP of one pegged token for another at oracle prices.
// Fees and interest are drawn from the locked collateral.
func (l *Ledger) SwapTPforTP(caller common.Address, op *types.Operation) (*Result, error) {
	from, to := op.Params.TP, op.Params.TPTo
	if from == to {
		return nil, coreerrors.ErrInvalidValue
	}
	x, err := l.begin(caller, op, from, to)
	if err != nil {
		return nil, err
	}
	qTP := amountOf(op.Params.QTP)
	if err := requirePositive(qTP); err != nil {
		return nil, err
	}
	qAC := x.tpToAC(from, qTP)
	qTPTo := x.acToTP(to, qAC)
	availableBefore := x.tpAvailableToMint(int(to))
	coverageBefore := x.coverage()
	if err := x.admit(from, new(big.Int).Neg(qAC)); err != nil {
		return nil, err
	}
	if err := x.admit(to, qAC); err != nil {
		return nil, err
	}
	pay := x.charge(qAC, x.fees.SwapTPforTPFee, x.queue)

	if err := x.subTP(from, qTP); err != nil {
		return nil, err
	}
	x.addTP(to, qTPTo)
	interest := x.interest(from, qAC, coverageBefore)
	x.addAC(interest)
	if err := x.checkMintCoverage(qTPTo, availableBefore); err != nil {
		return nil, err
	}
	if qTPmin := amountOf(op.Params.QTPmin); qTPTo.Cmp(qTPmin) < 0 {
		return nil, coreerrors.ErrQtyBelowMinimum.With(qTPmin, qTPTo)
	}
	cost := new(big.Int).Add(pay.ACTotal(), interest)
	if qACmax := amountOf(op.Params.QACmax); cost.Cmp(qACmax) > 0 {
		return nil, coreerrors.ErrInsufficientQacSent.With(qACmax, cost)
	}

	x.result.burn(x.pegged[from].Token, x.queue, qTP)
	x.result.mint(x.pegged[to].Token, op.Recipient, qTPTo)
	x.result.transfer(x.global.ACToken, x.queue, x.global.Vault, interest)
	x.result.QTP, x.result.QTPTo, x.result.QAC = qTP, qTPTo, qAC
	x.record(events.BucketOperation{TP: from, TPTo: to, QTP: qTP, QTPTo: qTPTo, QAC: qAC})
	return x.commit()
}

// SwapTPforTC exchanges qTP pegged tokens for collateral tokens.
func (l *Ledger) SwapTPforTC(caller common.Address, op *types.Operation) (*Result, error) {
	tp := op.Params.TP
	x, err := l.begin(caller, op, tp)
	if err != nil {
		return nil, err
	}
	qTP := amountOf(op.Params.QTP)
	if err := requirePositive(qTP); err != nil {
		return nil, err
	}
	qAC := x.tpToAC(tp, qTP)
	price, err := x.liveTCPrice()
	if err != nil {
		return nil, err
	}
	qTC := nativecommon.DivPrec(qAC, price)
	coverageBefore := x.coverage()
	if err := x.admit(tp, new(big.Int).Neg(qAC)); err != nil {
		return nil, err
	}
	pay := x.charge(qAC, x.fees.SwapTPforTCFee, x.queue)

	if err := x.subTP(tp, qTP); err != nil {
		return nil, err
	}
	x.addTC(qTC)
	interest := x.interest(tp, qAC, coverageBefore)
	x.addAC(interest)
	if qTCmin := amountOf(op.Params.QTCmin); qTC.Cmp(qTCmin) < 0 {
		return nil, coreerrors.ErrQtyBelowMinimum.With(qTCmin, qTC)
	}
	cost := new(big.Int).Add(pay.ACTotal(), interest)
	if qACmax := amountOf(op.Params.QACmax); cost.Cmp(qACmax) > 0 {
		return nil, coreerrors.ErrInsufficientQacSent.With(qACmax, cost)
	}

	x.result.burn(x.pegged[tp].Token, x.queue, qTP)
	x.result.mint(x.global.TCToken, op.Recipient, qTC)
	x.result.transfer(x.global.ACToken, x.queue, x.global.Vault, interest)
	x.result.QTP, x.result.QTC, x.result.QAC = qTP, qTC, qAC
	x.record(events.BucketOperation{TP: tp, QTP: qTP, QTC: qTC, QAC: qAC})
	return x.commit()
}

// SwapTCforTP exchanges qTC collateral tokens for pegged tokens.
func (l *Ledger) SwapTCforTP(caller common.Address, op *types.Operation) (*Result, error) {
	tp := op.Params.TP
	x, err := l.begin(caller, op, tp)
	if err != nil {
		return nil, err
	}
	qTC := amountOf(op.Params.QTC)
	if err := requirePositive(qTC); err != nil {
		return nil, err
	}
	qAC := nativecommon.MulPrec(qTC, x.tcPrice())
	qTP := x.acToTP(tp, qAC)
	availableBefore := x.tpAvailableToMint(int(tp))
	if err := x.admit(tp, qAC); err != nil {
		return nil, err
	}
	pay := x.charge(qAC, x.fees.SwapTCforTPFee, x.queue)

	if err := x.subTC(qTC); err != nil {
		return nil, err
	}
	x.addTP(tp, qTP)
	if err := x.checkMintCoverage(qTP, availableBefore); err != nil {
		return nil, err
	}
	if qTPmin := amountOf(op.Params.QTPmin); qTP.Cmp(qTPmin) < 0 {
		return nil, coreerrors.ErrQtyBelowMinimum.With(qTPmin, qTP)
	}
	if qACmax := amountOf(op.Params.QACmax); pay.ACTotal().Cmp(qACmax) > 0 {
		return nil, coreerrors.ErrInsufficientQacSent.With(qACmax, pay.ACTotal())
	}

	x.result.burn(x.global.TCToken, x.queue, qTC)
	x.result.mint(x.pegged[tp].Token, op.Recipient, qTP)
	x.result.QTC, x.result.QTP, x.result.QAC = qTC, qTP, qAC
	x.record(events.BucketOperation{TP: tp, QTC: qTC, QTP: qTP, QAC: qAC})
	return x.commit()
}

// MintTCandTP mints qTP pegged tokens together with the collateral tokens
// that keep the bucket at its EMA-adjusted target coverage.
func (l *Ledger) MintTCandTP(caller common.Address, op *types.Operation) (*Result, error) {
	tp := op.Params.TP
	x, err := l.begin(caller, op, tp)
	if err != nil {
		return nil, err
	}
	qTP := amountOf(op.Params.QTP)
	if err := requirePositive(qTP); err != nil {
		return nil, err
	}
	qACtp := x.tpToACUp(tp, qTP)
	qAC := nativecommon.MulPrec(qACtp, x.ctargema(int(tp)))
	price, err := x.liveTCPrice()
	if err != nil {
		return nil, err
	}
	qTC := nativecommon.DivPrec(new(big.Int).Sub(qAC, qACtp), price)
	if err := x.admit(tp, qACtp); err != nil {
		return nil, err
	}
	pay := x.charge(qAC, x.fees.MintTCandTPFee, x.queue)

	x.addAC(qAC)
	x.addTC(qTC)
	x.addTP(tp, qTP)
	if err := x.checkProtected(); err != nil {
		return nil, err
	}
	total := new(big.Int).Add(qAC, pay.ACTotal())
	if qACmax := amountOf(op.Params.QACmax); total.Cmp(qACmax) > 0 {
		return nil, coreerrors.ErrInsufficientQacSent.With(qACmax, total)
	}

	x.result.transfer(x.global.ACToken, x.queue, x.global.Vault, qAC)
	x.result.mint(x.global.TCToken, op.Recipient, qTC)
	x.result.mint(x.pegged[tp].Token, op.Recipient, qTP)
	x.result.QTC, x.result.QTP, x.result.QAC = qTC, qTP, qAC
	x.record(events.BucketOperation{TP: tp, QTC: qTC, QTP: qTP, QAC: qAC})
	return x.commit()
}

// RedeemTCandTP redeems qTC collateral tokens together with the pegged tokens
// needed to leave coverage unchanged. Unused pegged tokens stay with the
// caller.
func (l *Ledger) RedeemTCandTP(caller common.Address, op *types.Operation) (*Result, error) {
	tp := op.Params.TP
	x, err := l.begin(caller, op, tp)
	if err != nil {
		return nil, err
	}
	qTC := amountOf(op.Params.QTC)
	qTPSent := amountOf(op.Params.QTP)
	if err := requirePositive(qTC, qTPSent); err != nil {
		return nil, err
	}
	coverageBefore := x.coverage()
	if coverageBefore.Cmp(nativecommon.Precision) <= 0 {
		return nil, coreerrors.ErrLowCoverage.With(coverageBefore, nativecommon.Precision)
	}
	qACtc := nativecommon.MulPrec(qTC, x.tcPrice())
	qACtp := big.NewInt(0)
	if !nativecommon.IsSentinel(coverageBefore) {
		qACtp = nativecommon.MulDiv(qACtc, nativecommon.Precision, new(big.Int).Sub(coverageBefore, nativecommon.Precision))
	}
	qTP := nativecommon.MulDivUp(qACtp, x.prices[tp], nativecommon.Precision)
	if qTP.Cmp(qTPSent) > 0 {
		return nil, coreerrors.ErrInsufficientQtpSent.With(qTPSent, qTP)
	}
	qAC := new(big.Int).Add(qACtc, qACtp)
	if err := x.admit(tp, new(big.Int).Neg(qACtp)); err != nil {
		return nil, err
	}
	pay := x.charge(qAC, x.fees.RedeemTCandTPFee, x.global.Vault)

	if err := x.subTC(qTC); err != nil {
		return nil, err
	}
	if err := x.subTP(tp, qTP); err != nil {
		return nil, err
	}
	if err := x.subAC(qAC); err != nil {
		return nil, err
	}
	interest := x.interest(tp, qACtp, coverageBefore)
	x.addAC(interest)
	net := new(big.Int).Sub(qAC, pay.ACTotal())
	net.Sub(net, interest)
	if qACmin := amountOf(op.Params.QACmin); net.Cmp(qACmin) < 0 {
		return nil, coreerrors.ErrQtyBelowMinimum.With(qACmin, net)
	}

	x.result.burn(x.global.TCToken, x.queue, qTC)
	x.result.burn(x.pegged[tp].Token, x.queue, qTP)
	x.result.transfer(x.global.ACToken, x.global.Vault, op.Recipient, net)
	x.result.QTC, x.result.QTP, x.result.QAC = qTC, qTP, qAC
	x.record(events.BucketOperation{TP: tp, QTC: qTC, QTP: qTP, QAC: qAC})
	return x.commit()
}
