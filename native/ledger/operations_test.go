package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	coreerrors "pegcore/core/errors"
	"pegcore/core/events"
	"pegcore/core/state"
	"pegcore/core/types"
	nativecommon "pegcore/native/common"
	"pegcore/native/fees"
	"pegcore/native/oracle"
)

var (
	tp2Token    = common.HexToAddress("0x0000000000000000000000000000000000000b04")
	feeToken    = common.HexToAddress("0x0000000000000000000000000000000000000b05")
	tp2Provider = common.HexToAddress("0x0000000000000000000000000000000000000c04")
	feeProvider = common.HexToAddress("0x0000000000000000000000000000000000000c05")
	tcCollector = common.HexToAddress("0x0000000000000000000000000000000000000d02")
	vendor      = common.HexToAddress("0x0000000000000000000000000000000000000d03")
)

// addSecondPegged registers a pegged token priced at 4 per collateral unit.
func (f *fixture) addSecondPegged(t *testing.T) uint32 {
	t.Helper()
	f.oracles.RegisterPrice(tp2Provider, oracle.NewFeed(nativecommon.Units(4)))
	idx, err := f.ledger.AddPeggedToken(admin, PeggedTokenParams{
		Token:               tp2Token,
		PriceProvider:       tp2Provider,
		Ctarg:               nativecommon.Units(2),
		FluxMaxAbsolute:     fluxAbsAddr,
		FluxMaxDifferential: fluxDiffAddr,
	})
	require.NoError(t, err)
	return idx
}

func TestRedeemTC(t *testing.T) {
	f := newFixture(t)
	f.mintTC(t, 100)
	f.mintTP(t, 20)

	available, err := f.ledger.TCAvailableToRedeem()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(90), available)

	_, err = f.call(f.ledger.RedeemTC, f.op(types.OperTypeRedeemTC, types.OperParams{
		QTC: nativecommon.Units(91),
	}))
	require.ErrorIs(t, err, coreerrors.ErrInsufficientTCtoRedeem)

	_, err = f.call(f.ledger.RedeemTC, f.op(types.OperTypeRedeemTC, types.OperParams{
		QTC:    nativecommon.Units(50),
		QACmin: nativecommon.Units(51),
	}))
	require.ErrorIs(t, err, coreerrors.ErrQtyBelowMinimum)

	result, err := f.run(t, f.ledger.RedeemTC, f.op(types.OperTypeRedeemTC, types.OperParams{
		QTC:    nativecommon.Units(50),
		QACmin: nativecommon.Units(50),
	}), tcToken, nativecommon.Units(50))
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(50), result.QAC)
	require.Equal(t, nativecommon.Units(50), f.bank.BalanceOf(acToken, alice))

	g, err := f.ledger.Global()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(50), g.NTCcb)
	require.Equal(t, nativecommon.Units(60), g.NACcb)

	cov, err := f.ledger.Coverage()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(6), cov)
}

func TestSwapTPforTP(t *testing.T) {
	f := newFixture(t)
	to := f.addSecondPegged(t)
	f.mintTC(t, 100)
	f.mintTP(t, 20)

	_, err := f.call(f.ledger.SwapTPforTP, f.op(types.OperTypeSwapTPforTP, types.OperParams{
		TP:   0,
		TPTo: 0,
		QTP:  nativecommon.Units(20),
	}))
	require.ErrorIs(t, err, coreerrors.ErrInvalidValue)

	_, err = f.call(f.ledger.SwapTPforTP, f.op(types.OperTypeSwapTPforTP, types.OperParams{
		TP:     0,
		TPTo:   to,
		QTP:    nativecommon.Units(20),
		QTPmin: nativecommon.Units(41),
	}))
	require.ErrorIs(t, err, coreerrors.ErrQtyBelowMinimum)

	result, err := f.run(t, f.ledger.SwapTPforTP, f.op(types.OperTypeSwapTPforTP, types.OperParams{
		TP:     0,
		TPTo:   to,
		QTP:    nativecommon.Units(20),
		QTPmin: nativecommon.Units(40),
	}), tpToken, nativecommon.Units(20))
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(40), result.QTPTo)
	require.Equal(t, nativecommon.Units(10), result.QAC)

	require.Equal(t, nativecommon.Units(40), f.bank.BalanceOf(tp2Token, alice))
	from, err := f.ledger.Bucket(0)
	require.NoError(t, err)
	require.Zero(t, from.NTP.Sign())
	dest, err := f.ledger.Bucket(to)
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(40), dest.NTP)
	require.Equal(t, nativecommon.Units(10), dest.Flux.Differential)

	cov, err := f.ledger.Coverage()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(11), cov)
}

func TestSwapTPforTC(t *testing.T) {
	f := newFixture(t)
	f.mintTC(t, 100)
	f.mintTP(t, 20)

	_, err := f.call(f.ledger.SwapTPforTC, f.op(types.OperTypeSwapTPforTC, types.OperParams{
		QTP:    nativecommon.Units(20),
		QTCmin: nativecommon.Units(11),
	}))
	require.ErrorIs(t, err, coreerrors.ErrQtyBelowMinimum)

	require.NoError(t, f.bank.Transfer(tpToken, alice, queueAddr, nativecommon.Units(20)))
	result, err := f.call(f.ledger.SwapTPforTC, f.op(types.OperTypeSwapTPforTC, types.OperParams{
		QTP:    nativecommon.Units(20),
		QTCmin: nativecommon.Units(10),
	}))
	require.NoError(t, err)
	require.NoError(t, ApplyMovements(f.bank, queueAddr, result.Movements))
	require.Equal(t, nativecommon.Units(10), result.QTC)
	require.Zero(t, result.Consumed(acToken, queueAddr).Sign())

	require.Equal(t, nativecommon.Units(110), f.bank.BalanceOf(tcToken, alice))
	require.Zero(t, f.bank.TotalSupply(tpToken).Sign())

	g, err := f.ledger.Global()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(110), g.NTCcb)
	require.Equal(t, nativecommon.Units(110), g.NACcb)

	price, err := f.ledger.TCPrice()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(1), price)
}

func TestSwapTCforTP(t *testing.T) {
	f := newFixture(t)
	f.mintTC(t, 100)

	// 100 TC would lock all collateral and break the protected threshold.
	_, err := f.call(f.ledger.SwapTCforTP, f.op(types.OperTypeSwapTCforTP, types.OperParams{
		QTC: nativecommon.Units(100),
	}))
	require.ErrorIs(t, err, coreerrors.ErrLowCoverage)

	result, err := f.run(t, f.ledger.SwapTCforTP, f.op(types.OperTypeSwapTCforTP, types.OperParams{
		QTC:    nativecommon.Units(10),
		QTPmin: nativecommon.Units(20),
	}), tcToken, nativecommon.Units(10))
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(20), result.QTP)
	require.Equal(t, nativecommon.Units(20), f.bank.BalanceOf(tpToken, alice))

	g, err := f.ledger.Global()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(90), g.NTCcb)
	require.Equal(t, nativecommon.Units(100), g.NACcb)

	cov, err := f.ledger.Coverage()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(10), cov)
}

func TestMintTCandTPHoldsTargetCoverage(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(f.ledger.MintTCandTP, f.op(types.OperTypeMintTCandTP, types.OperParams{
		QTP:    nativecommon.Units(20),
		QACmax: nativecommon.Units(19),
	}))
	require.ErrorIs(t, err, coreerrors.ErrInsufficientQacSent)

	result, err := f.run(t, f.ledger.MintTCandTP, f.op(types.OperTypeMintTCandTP, types.OperParams{
		QTP:    nativecommon.Units(20),
		QACmax: nativecommon.Units(20),
	}), acToken, nativecommon.Units(20))
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(20), result.QAC)
	require.Equal(t, nativecommon.Units(10), result.QTC)
	require.Equal(t, nativecommon.Units(10), f.bank.BalanceOf(tcToken, alice))
	require.Equal(t, nativecommon.Units(20), f.bank.BalanceOf(tpToken, alice))

	cov, err := f.ledger.Coverage()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(2), cov)
	price, err := f.ledger.TCPrice()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(1), price)
}

func TestRedeemTCandTPKeepsCoverage(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, f.ledger.MintTCandTP, f.op(types.OperTypeMintTCandTP, types.OperParams{
		QTP:    nativecommon.Units(20),
		QACmax: nativecommon.Units(20),
	}), acToken, nativecommon.Units(20))
	require.NoError(t, err)

	_, err = f.call(f.ledger.RedeemTCandTP, f.op(types.OperTypeRedeemTCandTP, types.OperParams{
		QTC: nativecommon.Units(5),
		QTP: nativecommon.Units(9),
	}))
	require.ErrorIs(t, err, coreerrors.ErrInsufficientQtpSent)

	require.NoError(t, f.bank.Transfer(tcToken, alice, queueAddr, nativecommon.Units(5)))
	require.NoError(t, f.bank.Transfer(tpToken, alice, queueAddr, nativecommon.Units(20)))
	result, err := f.call(f.ledger.RedeemTCandTP, f.op(types.OperTypeRedeemTCandTP, types.OperParams{
		QTC: nativecommon.Units(5),
		QTP: nativecommon.Units(20),
	}))
	require.NoError(t, err)
	require.NoError(t, ApplyMovements(f.bank, queueAddr, result.Movements))

	require.Equal(t, nativecommon.Units(10), result.QTP)
	require.Equal(t, nativecommon.Units(10), result.QAC)
	require.Equal(t, nativecommon.Units(10), result.Consumed(tpToken, queueAddr))
	require.Equal(t, nativecommon.Units(10), f.bank.BalanceOf(tpToken, queueAddr))
	require.Equal(t, nativecommon.Units(10), f.bank.BalanceOf(acToken, alice))

	cov, err := f.ledger.Coverage()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(2), cov)
}

func TestFeesAndVendorMarkup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.SetTCMintFee(admin, nativecommon.Frac(1, 100)))
	require.NoError(t, f.ledger.SetVendorMarkup(admin, vendor, nativecommon.Frac(1, 100)))

	short := f.op(types.OperTypeMintTC, types.OperParams{QTC: nativecommon.Units(100), QACmax: nativecommon.Units(101)})
	short.Vendor = vendor
	_, err := f.call(f.ledger.MintTC, short)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientQacSent)

	op := f.op(types.OperTypeMintTC, types.OperParams{QTC: nativecommon.Units(100), QACmax: nativecommon.Units(102)})
	op.Vendor = vendor
	result, err := f.run(t, f.ledger.MintTC, op, acToken, nativecommon.Units(102))
	require.NoError(t, err)

	require.Equal(t, nativecommon.Units(1), result.Fees.QACFee)
	require.Equal(t, nativecommon.Units(1), result.Fees.QACVendorMarkup)
	require.Equal(t, fees.SourceAC, result.Fees.Source)
	require.Equal(t, fees.FallbackDisabled, result.Fees.FallbackReason)
	require.Equal(t, nativecommon.Units(1), f.bank.BalanceOf(acToken, collector))
	require.Equal(t, nativecommon.Units(1), f.bank.BalanceOf(acToken, vendor))
	require.Equal(t, nativecommon.Units(100), f.bank.BalanceOf(acToken, vaultAddr))
	require.Zero(t, f.bank.BalanceOf(acToken, queueAddr).Sign())
}

func TestFeeTokenPayment(t *testing.T) {
	f := newFixture(t)
	g := f.store.Global()
	g.FeeToken = feeToken
	f.store.PutGlobal(g)
	f.oracles.RegisterPrice(feeProvider, oracle.NewFeed(nativecommon.Frac(1, 2)))
	require.NoError(t, f.ledger.SetFeeTokenPriceProvider(admin, feeProvider))
	require.NoError(t, f.ledger.SetFeeTokenPct(admin, nativecommon.Frac(1, 2)))
	require.NoError(t, f.ledger.SetTCMintFee(admin, nativecommon.Frac(1, 100)))
	require.NoError(t, f.bank.Mint(feeToken, alice, nativecommon.Units(10)))

	// Without an allowance the fee falls back to collateral.
	result, err := f.run(t, f.ledger.MintTC, f.op(types.OperTypeMintTC, types.OperParams{
		QTC:    nativecommon.Units(100),
		QACmax: nativecommon.Units(101),
	}), acToken, nativecommon.Units(101))
	require.NoError(t, err)
	require.Equal(t, fees.SourceAC, result.Fees.Source)
	require.Equal(t, fees.FallbackAllowance, result.Fees.FallbackReason)
	require.Equal(t, nativecommon.Units(1), f.bank.BalanceOf(acToken, collector))

	require.NoError(t, f.bank.Approve(feeToken, alice, queueAddr, nativecommon.Units(10)))
	result, err = f.run(t, f.ledger.MintTC, f.op(types.OperTypeMintTC, types.OperParams{
		QTC:    nativecommon.Units(100),
		QACmax: nativecommon.Units(100),
	}), acToken, nativecommon.Units(100))
	require.NoError(t, err)
	require.Equal(t, fees.SourceFeeToken, result.Fees.Source)
	require.Equal(t, fees.FallbackNone, result.Fees.FallbackReason)
	require.Zero(t, result.Fees.QACFee.Sign())
	require.Equal(t, nativecommon.Units(1), result.Fees.QFeeToken)
	require.Equal(t, nativecommon.Units(1), f.bank.BalanceOf(feeToken, collector))
	require.Equal(t, nativecommon.Units(9), f.bank.BalanceOf(feeToken, alice))
	require.Equal(t, nativecommon.Units(1), f.bank.BalanceOf(acToken, collector))
}

func TestRedeemTPChargesInterest(t *testing.T) {
	f := newFixture(t)
	f.store.PutSettlement(state.SettlementParams{Bes: 100})
	require.NoError(t, f.ledger.SetTPInterest(admin, 0, state.InterestParams{
		Tils:    nativecommon.Frac(1, 100),
		TilsMax: nativecommon.One(),
		FacMin:  nativecommon.One(),
		FacMax:  nativecommon.One(),
	}))
	f.mintTC(t, 100)
	f.mintTP(t, 20)

	result, err := f.run(t, f.ledger.RedeemTP, f.op(types.OperTypeRedeemTP, types.OperParams{
		QTP:    nativecommon.Units(10),
		QACmin: nativecommon.Frac(495, 100),
	}), tpToken, nativecommon.Units(10))
	require.NoError(t, err)
	require.Equal(t, nativecommon.Frac(5, 100), result.Fees.QACInterest)
	require.Equal(t, nativecommon.Frac(495, 100), f.bank.BalanceOf(acToken, alice))

	g, err := f.ledger.Global()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Frac(10505, 100), g.NACcb)
}

func newSettlementFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.mintTC(t, 100)
	f.mintTP(t, 20)
	f.store.PutSettlement(state.SettlementParams{
		Bes:                 10,
		SuccessFee:          nativecommon.Frac(1, 10),
		AppreciationFactor:  nativecommon.Frac(1, 2),
		TCInterestCollector: tcCollector,
	})
	// The pegged token halves in value: 5 AC of gain on 20 TP.
	f.feed.Set(nativecommon.Units(4))
	return f
}

func TestExecSettlement(t *testing.T) {
	f := newSettlementFixture(t)

	gain, err := f.ledger.UnrealizedGain()
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Neg(nativecommon.Units(3)), gain)

	f.store.SetBlockHeight(5)
	settled, err := f.ledger.ExecSettlement()
	require.NoError(t, err)
	require.False(t, settled)

	f.store.SetBlockHeight(10)
	settled, err = f.ledger.ExecSettlement()
	require.NoError(t, err)
	require.True(t, settled)

	require.Equal(t, nativecommon.Frac(1, 2), f.bank.BalanceOf(acToken, collector))
	require.Equal(t, nativecommon.Frac(5, 2), f.bank.BalanceOf(acToken, tcCollector))
	require.Equal(t, nativecommon.Units(107), f.bank.BalanceOf(acToken, vaultAddr))

	g, err := f.ledger.Global()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(107), g.NACcb)
	require.Equal(t, uint64(10), f.store.Settlement().LastSettlementBlock)
	bucket, err := f.ledger.Bucket(0)
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(4), bucket.SettlementPrice)

	gain, err = f.ledger.UnrealizedGain()
	require.NoError(t, err)
	require.Zero(t, gain.Sign())
	require.Len(t, f.recorder.OfType(events.TypeSettlementExecuted), 1)

	settled, err = f.ledger.ExecSettlement()
	require.NoError(t, err)
	require.False(t, settled)
}

func TestSettlementRunsInsideOperation(t *testing.T) {
	f := newSettlementFixture(t)
	f.store.SetBlockHeight(10)

	// After settlement 107 AC back 5 AC of locked pegged value and 100 TC.
	result, err := f.run(t, f.ledger.MintTC, f.op(types.OperTypeMintTC, types.OperParams{
		QTC:    nativecommon.Units(1),
		QACmax: nativecommon.Units(2),
	}), acToken, nativecommon.Units(2))
	require.NoError(t, err)
	require.Equal(t, nativecommon.Frac(102, 100), result.QAC)

	var settled int
	for _, evt := range result.Events {
		if _, ok := evt.(events.SettlementExecuted); ok {
			settled++
		}
	}
	require.Equal(t, 1, settled)
	require.Equal(t, nativecommon.Frac(1, 2), f.bank.BalanceOf(acToken, collector))
	require.Equal(t, nativecommon.Frac(5, 2), f.bank.BalanceOf(acToken, tcCollector))
}

func TestUpdateEMAs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.SetEMABlockSpan(admin, 10))
	require.NoError(t, f.ledger.SetTPSmoothingFactor(admin, 0, nativecommon.Frac(1, 2)))
	f.feed.Set(nativecommon.Units(1))

	f.store.SetBlockHeight(5)
	updated, err := f.ledger.UpdateEMAs()
	require.NoError(t, err)
	require.Zero(t, updated)

	f.store.SetBlockHeight(10)
	updated, err = f.ledger.UpdateEMAs()
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	bucket, err := f.ledger.Bucket(0)
	require.NoError(t, err)
	require.Equal(t, nativecommon.Frac(3, 2), bucket.EMA)
	require.Equal(t, uint64(10), bucket.LastEMABlock)
	require.Len(t, f.recorder.OfType(events.TypeEMAUpdated), 1)

	// The average sits above the price, so the target coverage scales up.
	target, err := f.ledger.TPTargetCoverage(0)
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(3), target)
}
