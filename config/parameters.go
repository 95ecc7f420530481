package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/core/state"
	"pegcore/core/types"
	nativecommon "pegcore/native/common"
)

// PeggedTokenParams is the parsed form of a PeggedToken section.
type PeggedTokenParams struct {
	Token               common.Address
	PriceProvider       common.Address
	Price               *big.Int
	Ctarg               *big.Int
	SmoothingFactor     *big.Int
	MintFee             *big.Int
	RedeemFee           *big.Int
	FluxMaxAbsolute     *big.Int
	FluxMaxDifferential *big.Int
	Interest            state.InterestParams
}

// Parameters are the runtime values derived from the configuration.
type Parameters struct {
	Global             state.GlobalBucket
	Fees               state.FeeParams
	Settlement         state.SettlementParams
	Queue              state.QueueParams
	FluxDecayBlockSpan uint64
	FeeTokenPrice      *big.Int
	Pegged             []PeggedTokenParams
	Changers           []common.Address
	Executors          []common.Address
}

type parser struct {
	err error
}

func (p *parser) address(field, value string, required bool) common.Address {
	value = strings.TrimSpace(value)
	if value == "" {
		if required && p.err == nil {
			p.err = fmt.Errorf("%s: address required", field)
		}
		return common.Address{}
	}
	if !common.IsHexAddress(value) {
		if p.err == nil {
			p.err = fmt.Errorf("%s: invalid address %q", field, value)
		}
		return common.Address{}
	}
	return common.HexToAddress(value)
}

func (p *parser) ratio(field, value string) *big.Int {
	value = strings.TrimSpace(value)
	if value == "" {
		return big.NewInt(0)
	}
	out, err := nativecommon.ParsePrec(value)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("%s: %w", field, err)
		}
		return big.NewInt(0)
	}
	if out.Sign() < 0 && p.err == nil {
		p.err = fmt.Errorf("%s: must not be negative", field)
	}
	return out
}

func (p *parser) addresses(field string, values []string) []common.Address {
	out := make([]common.Address, 0, len(values))
	for i, v := range values {
		out = append(out, p.address(fmt.Sprintf("%s[%d]", field, i), v, true))
	}
	return out
}

// Parameters parses the decimal strings and addresses of the configuration.
func (c *Config) Parameters() (Parameters, error) {
	var p parser
	pr := c.Protocol
	out := Parameters{
		Global: state.GlobalBucket{
			Vault:      p.address("protocol.Vault", pr.Vault, true),
			ACToken:    p.address("protocol.ACToken", pr.ACToken, true),
			TCToken:    p.address("protocol.TCToken", pr.TCToken, true),
			FeeToken:   p.address("protocol.FeeToken", pr.FeeToken, false),
			NACcb:      big.NewInt(0),
			NTCcb:      big.NewInt(0),
			ProtThrld:  p.ratio("protocol.ProtThrld", pr.ProtThrld),
			LiqThrld:   p.ratio("protocol.LiqThrld", pr.LiqThrld),
			LiqEnabled: pr.LiqEnabled,
		},
		Fees: state.FeeParams{
			TCMintFee:             p.ratio("fees.TCMintFee", c.Fees.TCMintFee),
			TCRedeemFee:           p.ratio("fees.TCRedeemFee", c.Fees.TCRedeemFee),
			SwapTPforTPFee:        p.ratio("fees.SwapTPforTPFee", c.Fees.SwapTPforTPFee),
			SwapTPforTCFee:        p.ratio("fees.SwapTPforTCFee", c.Fees.SwapTPforTCFee),
			SwapTCforTPFee:        p.ratio("fees.SwapTCforTPFee", c.Fees.SwapTCforTPFee),
			MintTCandTPFee:        p.ratio("fees.MintTCandTPFee", c.Fees.MintTCandTPFee),
			RedeemTCandTPFee:      p.ratio("fees.RedeemTCandTPFee", c.Fees.RedeemTCandTPFee),
			FeeTokenPct:           p.ratio("protocol.FeeTokenPct", pr.FeeTokenPct),
			FeeTokenPriceProvider: p.address("protocol.FeeTokenPriceProvider", pr.FeeTokenPriceProvider, false),
			FeeCollector:          p.address("protocol.FeeCollector", pr.FeeCollector, true),
		},
		Settlement: state.SettlementParams{
			Bes:                 pr.SettlementBlockSpan,
			SuccessFee:          p.ratio("protocol.SuccessFee", pr.SuccessFee),
			AppreciationFactor:  p.ratio("protocol.AppreciationFactor", pr.AppreciationFactor),
			TCInterestCollector: p.address("protocol.TCInterestCollector", pr.TCInterestCollector, true),
			EMABlockSpan:        pr.EMABlockSpan,
		},
		Queue: state.QueueParams{
			Address:                 p.address("protocol.QueueAddress", pr.QueueAddress, true),
			MaxOperPerBatch:         c.Queue.MaxOperPerBatch,
			MinOperWaitingBlk:       c.Queue.MinOperWaitingBlk,
			AllowDifferentRecipient: c.Queue.AllowDifferentRecipient,
		},
		FluxDecayBlockSpan: pr.FluxDecayBlockSpan,
		FeeTokenPrice:      p.ratio("protocol.FeeTokenPrice", pr.FeeTokenPrice),
		Changers:           p.addresses("governance.Changers", c.Governance.Changers),
		Executors:          p.addresses("governance.Executors", c.Governance.Executors),
	}

	defaultFee := p.ratio("queue.ExecFee", c.Queue.ExecFee)
	out.Queue.ExecFees = make([]*big.Int, len(types.OperTypes)+1)
	for _, kind := range types.OperTypes {
		out.Queue.ExecFees[kind] = new(big.Int).Set(defaultFee)
	}
	for name, value := range c.Queue.ExecFees {
		kind, err := types.ParseOperType(name)
		if err != nil {
			if p.err == nil {
				p.err = fmt.Errorf("queue.ExecFees: %w", err)
			}
			continue
		}
		out.Queue.ExecFees[kind] = p.ratio("queue.ExecFees."+name, value)
	}

	for i, tp := range c.Pegged {
		field := fmt.Sprintf("peggedTokens[%d]", i)
		out.Pegged = append(out.Pegged, PeggedTokenParams{
			Token:               p.address(field+".Token", tp.Token, true),
			PriceProvider:       p.address(field+".PriceProvider", tp.PriceProvider, true),
			Price:               p.ratio(field+".Price", tp.Price),
			Ctarg:               p.ratio(field+".Ctarg", tp.Ctarg),
			SmoothingFactor:     p.ratio(field+".SmoothingFactor", tp.SmoothingFactor),
			MintFee:             p.ratio(field+".MintFee", tp.MintFee),
			RedeemFee:           p.ratio(field+".RedeemFee", tp.RedeemFee),
			FluxMaxAbsolute:     p.ratio(field+".FluxMaxAbsolute", tp.FluxMaxAbsolute),
			FluxMaxDifferential: p.ratio(field+".FluxMaxDifferential", tp.FluxMaxDifferential),
			Interest: state.InterestParams{
				Tils:    p.ratio(field+".Interest.Tils", tp.Interest.Tils),
				TilsMin: p.ratio(field+".Interest.TilsMin", tp.Interest.TilsMin),
				TilsMax: p.ratio(field+".Interest.TilsMax", tp.Interest.TilsMax),
				Eq:      p.ratio(field+".Interest.Eq", tp.Interest.Eq),
				FacMin:  p.ratio(field+".Interest.FacMin", tp.Interest.FacMin),
				FacMax:  p.ratio(field+".Interest.FacMax", tp.Interest.FacMax),
				Bmin:    tp.Interest.Bmin,
			},
		})
	}
	if p.err != nil {
		return Parameters{}, p.err
	}
	return out, nil
}
