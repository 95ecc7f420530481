package ledger

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pegcore/core/errors"
	"pegcore/core/events"
	"pegcore/core/state"
	nativecommon "pegcore/native/common"
)

// PeggedTokenParams configures a new pegged token bucket.
type PeggedTokenParams struct {
	Token               common.Address
	PriceProvider       common.Address
	Ctarg               *big.Int
	SmoothingFactor     *big.Int
	MintFee             *big.Int
	RedeemFee           *big.Int
	Interest            state.InterestParams
	FluxMaxAbsolute     common.Address
	FluxMaxDifferential common.Address
}

// AddPeggedToken registers a new pegged token. The price provider must report
// a valid price, which seeds the EMA and the settlement reference.
func (l *Ledger) AddPeggedToken(caller common.Address, params PeggedTokenParams) (uint32, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	if err := l.auth.Authorize(caller, "ledger.addPeggedToken"); err != nil {
		return 0, err
	}
	if params.Token == (common.Address{}) || params.PriceProvider == (common.Address{}) {
		return 0, coreerrors.ErrInvalidAddress
	}
	if _, exists := l.state.PeggedIndex(params.Token); exists {
		return 0, coreerrors.ErrPeggedTokenExists
	}
	if params.Ctarg == nil || params.Ctarg.Cmp(nativecommon.Precision) < 0 {
		return 0, coreerrors.ErrInvalidValue
	}
	price, ok := l.oracles.PeekAt(params.PriceProvider)
	if !ok || price.Sign() <= 0 {
		return 0, coreerrors.ErrInvalidPriceProvider
	}
	height := l.state.BlockHeight()
	idx := l.state.AppendPegged(state.PeggedBucket{
		Token:               params.Token,
		PriceProvider:       params.PriceProvider,
		Ctarg:               params.Ctarg,
		EMA:                 price,
		SmoothingFactor:     params.SmoothingFactor,
		LastEMABlock:        height,
		MintFee:             params.MintFee,
		RedeemFee:           params.RedeemFee,
		Interest:            params.Interest,
		LastPrice:           price,
		SettlementPrice:     price,
		FluxMaxAbsolute:     params.FluxMaxAbsolute,
		FluxMaxDifferential: params.FluxMaxDifferential,
	})
	l.emitter.Emit(events.PeggedTokenAdded{TP: idx, Token: params.Token, PriceProvider: params.PriceProvider, Height: height})
	return idx, nil
}

func (l *Ledger) change(caller common.Address, name, value string, apply func() error) error {
	if err := l.ready(); err != nil {
		return err
	}
	param := moduleName + "." + name
	if err := l.auth.Authorize(caller, param); err != nil {
		return err
	}
	if err := apply(); err != nil {
		return err
	}
	l.logger.Info("ledger parameter changed", "param", param, "value", value)
	l.emitter.Emit(events.ParamChanged{Module: moduleName, Name: name, Value: value, Height: l.state.BlockHeight()})
	return nil
}

func (l *Ledger) changeGlobal(caller common.Address, name, value string, mutate func(*state.GlobalBucket) error) error {
	return l.change(caller, name, value, func() error {
		g := l.state.Global()
		if err := mutate(&g); err != nil {
			return err
		}
		l.state.PutGlobal(g)
		return nil
	})
}

func (l *Ledger) changeBucket(caller common.Address, tp uint32, name, value string, mutate func(*state.PeggedBucket) error) error {
	return l.change(caller, name, value, func() error {
		bucket, ok := l.state.Pegged(tp)
		if !ok {
			return coreerrors.ErrInvalidPeggedToken.With(new(big.Int).SetUint64(uint64(tp)))
		}
		if err := mutate(&bucket); err != nil {
			return err
		}
		return l.state.PutPegged(tp, bucket)
	})
}

func (l *Ledger) changeFees(caller common.Address, name string, value *big.Int, mutate func(*state.FeeParams)) error {
	if value == nil || value.Sign() < 0 {
		return coreerrors.ErrInvalidValue
	}
	return l.change(caller, name, value.String(), func() error {
		p := l.state.Fees()
		mutate(&p)
		l.state.PutFees(p)
		return nil
	})
}

func (l *Ledger) changeSettlement(caller common.Address, name, value string, mutate func(*state.SettlementParams) error) error {
	return l.change(caller, name, value, func() error {
		p := l.state.Settlement()
		if err := mutate(&p); err != nil {
			return err
		}
		l.state.PutSettlement(p)
		return nil
	})
}

func positive(v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return coreerrors.ErrInvalidValue
	}
	return nil
}

func nonNegative(v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return coreerrors.ErrInvalidValue
	}
	return nil
}

// SetProtThrld updates the protected coverage threshold.
func (l *Ledger) SetProtThrld(caller common.Address, v *big.Int) error {
	if err := positive(v); err != nil {
		return err
	}
	return l.changeGlobal(caller, "protThrld", v.String(), func(g *state.GlobalBucket) error {
		g.ProtThrld = v
		return nil
	})
}

// SetLiqThrld updates the liquidation coverage threshold.
func (l *Ledger) SetLiqThrld(caller common.Address, v *big.Int) error {
	if err := positive(v); err != nil {
		return err
	}
	return l.changeGlobal(caller, "liqThrld", v.String(), func(g *state.GlobalBucket) error {
		g.LiqThrld = v
		return nil
	})
}

// SetLiqEnabled toggles automatic liquidation.
func (l *Ledger) SetLiqEnabled(caller common.Address, enabled bool) error {
	return l.changeGlobal(caller, "liqEnabled", strconv.FormatBool(enabled), func(g *state.GlobalBucket) error {
		g.LiqEnabled = enabled
		return nil
	})
}

// SetPaused halts or resumes every mutating operation.
func (l *Ledger) SetPaused(caller common.Address, paused bool) error {
	return l.changeGlobal(caller, "paused", strconv.FormatBool(paused), func(g *state.GlobalBucket) error {
		g.Paused = paused
		return nil
	})
}

// SetTCMintFee updates the collateral token mint fee.
func (l *Ledger) SetTCMintFee(caller common.Address, v *big.Int) error {
	return l.changeFees(caller, "tcMintFee", v, func(p *state.FeeParams) { p.TCMintFee = v })
}

// SetTCRedeemFee updates the collateral token redeem fee.
func (l *Ledger) SetTCRedeemFee(caller common.Address, v *big.Int) error {
	return l.changeFees(caller, "tcRedeemFee", v, func(p *state.FeeParams) { p.TCRedeemFee = v })
}

// SetSwapTPforTPFee updates the pegged-to-pegged swap fee.
func (l *Ledger) SetSwapTPforTPFee(caller common.Address, v *big.Int) error {
	return l.changeFees(caller, "swapTPforTPFee", v, func(p *state.FeeParams) { p.SwapTPforTPFee = v })
}

// SetSwapTPforTCFee updates the pegged-to-collateral-token swap fee.
func (l *Ledger) SetSwapTPforTCFee(caller common.Address, v *big.Int) error {
	return l.changeFees(caller, "swapTPforTCFee", v, func(p *state.FeeParams) { p.SwapTPforTCFee = v })
}

// SetSwapTCforTPFee updates the collateral-token-to-pegged swap fee.
func (l *Ledger) SetSwapTCforTPFee(caller common.Address, v *big.Int) error {
	return l.changeFees(caller, "swapTCforTPFee", v, func(p *state.FeeParams) { p.SwapTCforTPFee = v })
}

// SetMintTCandTPFee updates the joint mint fee.
func (l *Ledger) SetMintTCandTPFee(caller common.Address, v *big.Int) error {
	return l.changeFees(caller, "mintTCandTPFee", v, func(p *state.FeeParams) { p.MintTCandTPFee = v })
}

// SetRedeemTCandTPFee updates the joint redeem fee.
func (l *Ledger) SetRedeemTCandTPFee(caller common.Address, v *big.Int) error {
	return l.changeFees(caller, "redeemTCandTPFee", v, func(p *state.FeeParams) { p.RedeemTCandTPFee = v })
}

// SetFeeTokenPct updates the discount applied when fees are paid in the fee
// token.
func (l *Ledger) SetFeeTokenPct(caller common.Address, v *big.Int) error {
	return l.changeFees(caller, "feeTokenPct", v, func(p *state.FeeParams) { p.FeeTokenPct = v })
}

// SetFeeTokenPriceProvider updates the fee token price provider.
func (l *Ledger) SetFeeTokenPriceProvider(caller common.Address, provider common.Address) error {
	return l.change(caller, "feeTokenPriceProvider", provider.Hex(), func() error {
		p := l.state.Fees()
		p.FeeTokenPriceProvider = provider
		l.state.PutFees(p)
		return nil
	})
}

// SetFeeCollector updates the account receiving protocol fees.
func (l *Ledger) SetFeeCollector(caller common.Address, collector common.Address) error {
	if collector == (common.Address{}) {
		return coreerrors.ErrInvalidAddress
	}
	return l.change(caller, "feeCollector", collector.Hex(), func() error {
		p := l.state.Fees()
		p.FeeCollector = collector
		l.state.PutFees(p)
		return nil
	})
}

// SetVendorMarkup registers the markup a vendor charges on top of fees.
func (l *Ledger) SetVendorMarkup(caller common.Address, vendor common.Address, markup *big.Int) error {
	if vendor == (common.Address{}) {
		return coreerrors.ErrInvalidAddress
	}
	if err := nonNegative(markup); err != nil {
		return err
	}
	return l.change(caller, "vendorMarkup", vendor.Hex()+"="+markup.String(), func() error {
		l.state.SetVendorMarkup(vendor, markup)
		return nil
	})
}

// SetTPFees updates the mint and redeem fees of tp.
func (l *Ledger) SetTPFees(caller common.Address, tp uint32, mintFee, redeemFee *big.Int) error {
	if err := nonNegative(mintFee); err != nil {
		return err
	}
	if err := nonNegative(redeemFee); err != nil {
		return err
	}
	return l.changeBucket(caller, tp, "tpFees", mintFee.String()+"/"+redeemFee.String(), func(b *state.PeggedBucket) error {
		b.MintFee, b.RedeemFee = mintFee, redeemFee
		return nil
	})
}

// SetTPCtarg updates the target coverage of tp.
func (l *Ledger) SetTPCtarg(caller common.Address, tp uint32, ctarg *big.Int) error {
	if ctarg == nil || ctarg.Cmp(nativecommon.Precision) < 0 {
		return coreerrors.ErrInvalidValue
	}
	return l.changeBucket(caller, tp, "tpCtarg", ctarg.String(), func(b *state.PeggedBucket) error {
		b.Ctarg = ctarg
		return nil
	})
}

// SetTPSmoothingFactor updates the EMA smoothing factor of tp.
func (l *Ledger) SetTPSmoothingFactor(caller common.Address, tp uint32, factor *big.Int) error {
	if factor == nil || factor.Sign() < 0 || factor.Cmp(nativecommon.Precision) > 0 {
		return coreerrors.ErrInvalidValue
	}
	return l.changeBucket(caller, tp, "tpSmoothingFactor", factor.String(), func(b *state.PeggedBucket) error {
		b.SmoothingFactor = factor
		return nil
	})
}

// SetTPPriceProvider swaps the price provider of tp.
func (l *Ledger) SetTPPriceProvider(caller common.Address, tp uint32, provider common.Address) error {
	if provider == (common.Address{}) {
		return coreerrors.ErrInvalidAddress
	}
	return l.changeBucket(caller, tp, "tpPriceProvider", provider.Hex(), func(b *state.PeggedBucket) error {
		b.PriceProvider = provider
		return nil
	})
}

// SetTPInterest replaces the interest curve of tp.
func (l *Ledger) SetTPInterest(caller common.Address, tp uint32, params state.InterestParams) error {
	return l.changeBucket(caller, tp, "tpInterest", nativecommon.FormatPrec(params.Tils), func(b *state.PeggedBucket) error {
		b.Interest = params
		return nil
	})
}

// SetTPFluxProviders updates the flux capacitor limit providers of tp.
func (l *Ledger) SetTPFluxProviders(caller common.Address, tp uint32, maxAbsolute, maxDifferential common.Address) error {
	return l.changeBucket(caller, tp, "tpFluxProviders", maxAbsolute.Hex()+"/"+maxDifferential.Hex(), func(b *state.PeggedBucket) error {
		b.FluxMaxAbsolute, b.FluxMaxDifferential = maxAbsolute, maxDifferential
		return nil
	})
}

// SetFluxDecayBlockSpan updates the flux capacitor decay span.
func (l *Ledger) SetFluxDecayBlockSpan(caller common.Address, span uint64) error {
	if span == 0 {
		return coreerrors.ErrInvalidDecaySpan
	}
	return l.change(caller, "fluxDecayBlockSpan", strconv.FormatUint(span, 10), func() error {
		l.state.SetFluxDecayBlockSpan(span)
		return nil
	})
}

// SetEMABlockSpan updates the EMA recalculation cadence.
func (l *Ledger) SetEMABlockSpan(caller common.Address, span uint64) error {
	if span == 0 {
		return coreerrors.ErrInvalidValue
	}
	return l.changeSettlement(caller, "emaBlockSpan", strconv.FormatUint(span, 10), func(p *state.SettlementParams) error {
		p.EMABlockSpan = span
		return nil
	})
}

// SetSettlementPeriod updates the number of blocks between settlements.
func (l *Ledger) SetSettlementPeriod(caller common.Address, bes uint64) error {
	if bes == 0 {
		return coreerrors.ErrInvalidValue
	}
	return l.changeSettlement(caller, "bes", strconv.FormatUint(bes, 10), func(p *state.SettlementParams) error {
		p.Bes = bes
		return nil
	})
}

// SetSuccessFee updates the share of settlement gains paid to the fee
// collector.
func (l *Ledger) SetSuccessFee(caller common.Address, v *big.Int) error {
	if err := nonNegative(v); err != nil {
		return err
	}
	return l.changeSettlement(caller, "successFee", v.String(), func(p *state.SettlementParams) error {
		p.SuccessFee = v
		return nil
	})
}

// SetAppreciationFactor updates the share of settlement gains paid to the
// collateral token interest collector.
func (l *Ledger) SetAppreciationFactor(caller common.Address, v *big.Int) error {
	if err := nonNegative(v); err != nil {
		return err
	}
	return l.changeSettlement(caller, "appreciationFactor", v.String(), func(p *state.SettlementParams) error {
		p.AppreciationFactor = v
		return nil
	})
}
