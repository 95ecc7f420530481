package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	coreerrors "pegcore/core/errors"
	"pegcore/core/events"
	"pegcore/core/state"
	"pegcore/core/types"
	"pegcore/native/bank"
	nativecommon "pegcore/native/common"
	"pegcore/native/governance"
	"pegcore/native/oracle"
)

var (
	queueAddr    = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	vaultAddr    = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	acToken      = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	tcToken      = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	tpToken      = common.HexToAddress("0x0000000000000000000000000000000000000b03")
	tpProvider   = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	fluxAbsAddr  = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	fluxDiffAddr = common.HexToAddress("0x0000000000000000000000000000000000000c03")
	collector    = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	admin        = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	alice        = common.HexToAddress("0x0000000000000000000000000000000000000f01")
)

type fixture struct {
	store    *state.Store
	bank     *bank.Bank
	oracles  *oracle.Registry
	feed     *oracle.Feed
	ledger   *Ledger
	session  *Session
	recorder *events.Recorder
	nextID   uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := state.NewStore()
	store.PutGlobal(state.GlobalBucket{
		Vault:     vaultAddr,
		ACToken:   acToken,
		TCToken:   tcToken,
		ProtThrld: nativecommon.Frac(3, 2),
		LiqThrld:  nativecommon.Frac(104, 100),
	})
	store.PutFees(state.FeeParams{FeeCollector: collector})
	store.PutSettlement(state.SettlementParams{})
	store.PutQueue(state.QueueParams{Address: queueAddr})
	store.SetFluxDecayBlockSpan(2880)

	registry := oracle.NewRegistry()
	feed := oracle.NewFeed(nativecommon.Units(2))
	registry.RegisterPrice(tpProvider, feed)
	registry.RegisterData(fluxAbsAddr, oracle.NewValue(nativecommon.Units(1000)))
	registry.RegisterData(fluxDiffAddr, oracle.NewValue(nativecommon.Units(1000)))

	auth := governance.NewAllowList()
	auth.Grant(admin)
	recorder := &events.Recorder{}

	l := New()
	l.SetState(store)
	l.SetOracles(registry)
	tokens := bank.New(store)
	l.SetTokens(tokens)
	l.SetAuthorizer(auth)
	l.SetEmitter(recorder)

	idx, err := l.AddPeggedToken(admin, PeggedTokenParams{
		Token:               tpToken,
		PriceProvider:       tpProvider,
		Ctarg:               nativecommon.Units(2),
		FluxMaxAbsolute:     fluxAbsAddr,
		FluxMaxDifferential: fluxDiffAddr,
	})
	require.NoError(t, err)
	require.Equal(t, uint32(0), idx)
	session, err := l.Bind()
	require.NoError(t, err)

	return &fixture{store: store, bank: tokens, oracles: registry, feed: feed, ledger: l, session: session, recorder: recorder}
}

// call invokes handler as the queue inside a fresh session window.
func (f *fixture) call(handler Handler, op *types.Operation) (*Result, error) {
	if err := f.session.Open(); err != nil {
		return nil, err
	}
	defer f.session.Close()
	return handler(queueAddr, op)
}

func (f *fixture) op(kind types.OperType, params types.OperParams) *types.Operation {
	f.nextID++
	return &types.Operation{
		ID:        f.nextID,
		Type:      kind,
		Sender:    alice,
		Recipient: alice,
		Params:    params,
		State:     types.OperStateQueued,
	}
}

// run funds the queue with the locked amount, invokes the handler and settles
// its movements.
func (f *fixture) run(t *testing.T, handler Handler, op *types.Operation, lockToken common.Address, lock *big.Int) (*Result, error) {
	t.Helper()
	if lock != nil && lock.Sign() > 0 {
		require.NoError(t, f.bank.Mint(lockToken, queueAddr, lock))
	}
	result, err := f.call(handler, op)
	if err != nil {
		return nil, err
	}
	require.NoError(t, ApplyMovements(f.bank, queueAddr, result.Movements))
	return result, nil
}

func (f *fixture) mintTC(t *testing.T, qTC int64) {
	t.Helper()
	qACmax := nativecommon.Units(qTC * 2)
	_, err := f.run(t, f.ledger.MintTC, f.op(types.OperTypeMintTC, types.OperParams{
		QTC:    nativecommon.Units(qTC),
		QACmax: qACmax,
	}), acToken, qACmax)
	require.NoError(t, err)
}

func (f *fixture) mintTP(t *testing.T, qTP int64) {
	t.Helper()
	qACmax := nativecommon.Units(qTP)
	_, err := f.run(t, f.ledger.MintTP, f.op(types.OperTypeMintTP, types.OperParams{
		QTP:    nativecommon.Units(qTP),
		QACmax: qACmax,
	}), acToken, qACmax)
	require.NoError(t, err)
}

func TestMintTCFromEmptyPool(t *testing.T) {
	f := newFixture(t)
	result, err := f.run(t, f.ledger.MintTC, f.op(types.OperTypeMintTC, types.OperParams{
		QTC:    nativecommon.Units(100),
		QACmax: nativecommon.Units(120),
	}), acToken, nativecommon.Units(120))
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(100), result.QAC)

	cov, err := f.ledger.Coverage()
	require.NoError(t, err)
	require.True(t, nativecommon.IsSentinel(cov))
	price, err := f.ledger.TCPrice()
	require.NoError(t, err)
	require.Equal(t, nativecommon.One(), price)

	require.Equal(t, nativecommon.Units(100), f.bank.BalanceOf(tcToken, alice))
	require.Equal(t, nativecommon.Units(100), f.bank.BalanceOf(acToken, vaultAddr))
	require.Equal(t, nativecommon.Units(100), result.Consumed(acToken, queueAddr))
	require.Len(t, f.recorder.OfType(events.PeggedTokenAdded{}.EventType()), 1)
}

func TestMintTPUpdatesCoverage(t *testing.T) {
	f := newFixture(t)
	f.mintTC(t, 100)

	available, err := f.ledger.TPAvailableToMint(0)
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(200), available)

	result, err := f.run(t, f.ledger.MintTP, f.op(types.OperTypeMintTP, types.OperParams{
		QTP:    nativecommon.Units(20),
		QACmax: nativecommon.Units(10),
	}), acToken, nativecommon.Units(10))
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(10), result.QAC)

	bucket, err := f.ledger.Bucket(0)
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(20), bucket.NTP)
	require.Equal(t, nativecommon.Units(10), bucket.Flux.Absolute)

	cov, err := f.ledger.Coverage()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(11), cov)
	require.Equal(t, nativecommon.Units(20), f.bank.BalanceOf(tpToken, alice))
}

func TestMintTPRejectsShortLock(t *testing.T) {
	f := newFixture(t)
	f.mintTC(t, 100)

	_, err := f.call(f.ledger.MintTP, f.op(types.OperTypeMintTP, types.OperParams{
		QTP:    nativecommon.Units(20),
		QACmax: nativecommon.Units(9),
	}))
	require.ErrorIs(t, err, coreerrors.ErrInsufficientQacSent)

	bucket, err := f.ledger.Bucket(0)
	require.NoError(t, err)
	require.Zero(t, bucket.NTP.Sign())
}

func TestMintTPCoverageBoundary(t *testing.T) {
	f := newFixture(t)
	f.mintTC(t, 100)

	_, err := f.call(f.ledger.MintTP, f.op(types.OperTypeMintTP, types.OperParams{
		QTP:    nativecommon.Units(400),
		QACmax: nativecommon.Units(1000),
	}))
	require.ErrorIs(t, err, coreerrors.ErrInsufficientTPtoMint)

	// 200 TP locks 100 AC against 200 AC available: exactly the target.
	f.mintTP(t, 200)
	cov, err := f.ledger.Coverage()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(2), cov)
}

func TestHandlersOnlyQueue(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.MintTC(alice, f.op(types.OperTypeMintTC, types.OperParams{
		QTC:    nativecommon.Units(1),
		QACmax: nativecommon.Units(1),
	}))
	require.ErrorIs(t, err, coreerrors.ErrOnlyQueue)
}

func TestHandlersNeedOpenWindow(t *testing.T) {
	f := newFixture(t)
	op := f.op(types.OperTypeMintTC, types.OperParams{QTC: nativecommon.Units(1), QACmax: nativecommon.Units(1)})
	_, err := f.ledger.MintTC(queueAddr, op)
	require.ErrorIs(t, err, coreerrors.ErrOnlyQueue)

	require.NoError(t, f.session.Open())
	require.ErrorIs(t, f.session.Open(), coreerrors.ErrReentrancyGuard)
	_, err = f.ledger.MintTC(queueAddr, op)
	require.NoError(t, err)
	_, err = f.ledger.MintTC(queueAddr, f.op(types.OperTypeMintTC, types.OperParams{
		QTC:    nativecommon.Units(500),
		QACmax: nativecommon.Units(1000),
	}))
	require.ErrorIs(t, err, coreerrors.ErrReentrancyGuard)
	_, err = f.ledger.ExecSettlement()
	require.ErrorIs(t, err, coreerrors.ErrReentrancyGuard)
	_, err = f.ledger.UpdateEMAs()
	require.ErrorIs(t, err, coreerrors.ErrReentrancyGuard)
	f.session.Close()
	f.session.Close()

	require.Equal(t, nativecommon.Units(1), f.store.Global().NTCcb)
	_, err = f.ledger.Bind()
	require.Error(t, err)
}

func TestMintTCRejectedBelowProtectedThreshold(t *testing.T) {
	f := newFixture(t)
	f.mintTC(t, 100)
	f.mintTP(t, 200)
	// 200 TP now lock 400 AC against 200 AC: no surplus backs the TC.
	f.feed.Set(nativecommon.Frac(1, 2))

	price, err := f.ledger.TCPrice()
	require.NoError(t, err)
	require.Zero(t, price.Sign())

	_, err = f.call(f.ledger.MintTC, f.op(types.OperTypeMintTC, types.OperParams{
		QTC:    nativecommon.Units(1000000),
		QACmax: nativecommon.Units(1),
	}))
	require.ErrorIs(t, err, coreerrors.ErrLowCoverage)
	require.Equal(t, nativecommon.Units(100), f.store.Global().NTCcb)

	_, err = f.call(f.ledger.SwapTPforTC, f.op(types.OperTypeSwapTPforTC, types.OperParams{
		QTP:    nativecommon.Units(10),
		QACmax: nativecommon.Units(1),
	}))
	require.ErrorIs(t, err, coreerrors.ErrLowCoverage)
}

func TestMintTPProtectedThresholdBoundary(t *testing.T) {
	f := newFixture(t)
	// A target of one keeps the protected threshold as the binding limit.
	require.NoError(t, f.ledger.SetTPCtarg(admin, 0, nativecommon.Units(1)))
	f.mintTC(t, 100)

	// Two wei above 400 TP leaves 301 AC against 201 AC locked, rounded up.
	over := new(big.Int).Add(nativecommon.Units(400), big.NewInt(2))
	_, err := f.call(f.ledger.MintTP, f.op(types.OperTypeMintTP, types.OperParams{
		QTP:    over,
		QACmax: nativecommon.Units(1000),
	}))
	require.ErrorIs(t, err, coreerrors.ErrLowCoverage)

	// 400 TP lock 200 AC against 300 AC: exactly the protected threshold.
	f.mintTP(t, 400)
	cov, err := f.ledger.Coverage()
	require.NoError(t, err)
	require.Equal(t, nativecommon.Frac(3, 2), cov)
}

func TestInvalidPriceOnlyFailsReferencingOperations(t *testing.T) {
	f := newFixture(t)
	f.mintTC(t, 100)
	f.feed.Invalidate()

	_, err := f.call(f.ledger.MintTP, f.op(types.OperTypeMintTP, types.OperParams{
		QTP:    nativecommon.Units(2),
		QACmax: nativecommon.Units(2),
	}))
	require.ErrorIs(t, err, coreerrors.ErrInvalidPriceProvider)

	f.mintTC(t, 10)
	price, valid, err := f.ledger.TPPrice(0)
	require.NoError(t, err)
	require.False(t, valid)
	require.Equal(t, nativecommon.Units(2), price)
}

func TestRedeemTPPaysCollateral(t *testing.T) {
	f := newFixture(t)
	f.mintTC(t, 100)
	f.mintTP(t, 20)
	require.NoError(t, f.bank.Transfer(tpToken, alice, queueAddr, nativecommon.Units(20)))

	result, err := f.call(f.ledger.RedeemTP, f.op(types.OperTypeRedeemTP, types.OperParams{
		QTP:    nativecommon.Units(20),
		QACmin: nativecommon.Units(10),
	}))
	require.NoError(t, err)
	require.NoError(t, ApplyMovements(f.bank, queueAddr, result.Movements))

	require.Equal(t, nativecommon.Units(10), f.bank.BalanceOf(acToken, alice))
	require.Zero(t, f.bank.TotalSupply(tpToken).Sign())
	bucket, err := f.ledger.Bucket(0)
	require.NoError(t, err)
	require.Zero(t, bucket.NTP.Sign())
	require.Zero(t, bucket.Flux.Differential.Sign())
}

func TestRedeemTPSlippage(t *testing.T) {
	f := newFixture(t)
	f.mintTC(t, 100)
	f.mintTP(t, 20)

	_, err := f.call(f.ledger.RedeemTP, f.op(types.OperTypeRedeemTP, types.OperParams{
		QTP:    nativecommon.Units(20),
		QACmin: nativecommon.Units(11),
	}))
	require.ErrorIs(t, err, coreerrors.ErrQtyBelowMinimum)
}

func TestLiquidation(t *testing.T) {
	f := newFixture(t)
	g := f.store.Global()
	g.LiqEnabled = true
	f.store.PutGlobal(g)

	f.mintTC(t, 100)
	f.mintTP(t, 100)

	_, err := f.ledger.LiqRedeemTP(alice, 0)
	require.ErrorIs(t, err, coreerrors.ErrOnlyWhenLiquidated)

	liquidated, err := f.ledger.EvalLiquidation()
	require.NoError(t, err)
	require.False(t, liquidated)

	f.feed.Set(nativecommon.Frac(1, 2))
	liquidated, err = f.ledger.EvalLiquidation()
	require.NoError(t, err)
	require.True(t, liquidated)
	require.True(t, f.ledger.IsLiquidated())
	require.Len(t, f.recorder.OfType(events.LiquidationTriggered{}.EventType()), 1)

	bucket, err := f.ledger.Bucket(0)
	require.NoError(t, err)
	require.Equal(t, nativecommon.Frac(1, 2), bucket.LiqPrice)

	_, err = f.call(f.ledger.MintTC, f.op(types.OperTypeMintTC, types.OperParams{
		QTC:    nativecommon.Units(1),
		QACmax: nativecommon.Units(1),
	}))
	require.ErrorIs(t, err, coreerrors.ErrLiquidated)

	// 100 TP at 0.5 is worth 200 AC; the pool only holds 150.
	paid, err := f.ledger.LiqRedeemTP(alice, 0)
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(150), paid)
	require.Equal(t, nativecommon.Units(150), f.bank.BalanceOf(acToken, alice))
	require.Zero(t, f.bank.BalanceOf(tpToken, alice).Sign())
}

func TestAddPeggedTokenValidation(t *testing.T) {
	f := newFixture(t)
	params := PeggedTokenParams{Token: tpToken, PriceProvider: tpProvider, Ctarg: nativecommon.Units(2)}

	_, err := f.ledger.AddPeggedToken(alice, params)
	require.ErrorIs(t, err, coreerrors.ErrNotAuthorizedChanger)

	_, err = f.ledger.AddPeggedToken(admin, params)
	require.ErrorIs(t, err, coreerrors.ErrPeggedTokenExists)

	params.Token = common.HexToAddress("0x0000000000000000000000000000000000000b04")
	params.PriceProvider = common.HexToAddress("0x0000000000000000000000000000000000000c09")
	_, err = f.ledger.AddPeggedToken(admin, params)
	require.ErrorIs(t, err, coreerrors.ErrInvalidPriceProvider)
	require.Equal(t, 1, f.ledger.PeggedCount())
}

func TestGovernancePause(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.ledger.SetPaused(alice, true), coreerrors.ErrNotAuthorizedChanger)
	require.NoError(t, f.ledger.SetPaused(admin, true))

	_, err := f.call(f.ledger.MintTC, f.op(types.OperTypeMintTC, types.OperParams{
		QTC:    nativecommon.Units(1),
		QACmax: nativecommon.Units(1),
	}))
	require.True(t, errors.Is(err, coreerrors.ErrPaused))

	require.NoError(t, f.ledger.SetPaused(admin, false))
	f.mintTC(t, 1)

	changes := f.recorder.OfType(events.ParamChanged{}.EventType())
	require.Len(t, changes, 2)
	require.Equal(t, "paused", changes[0].(events.ParamChanged).Name)
}

func TestSetTPCtargRejectsBelowOne(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.ledger.SetTPCtarg(admin, 0, nativecommon.Frac(1, 2)), coreerrors.ErrInvalidValue)
	require.NoError(t, f.ledger.SetTPCtarg(admin, 0, nativecommon.Units(3)))

	target, err := f.ledger.TPTargetCoverage(0)
	require.NoError(t, err)
	require.Equal(t, nativecommon.Units(3), target)
}
