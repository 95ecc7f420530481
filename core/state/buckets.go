package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/native/flux"
)

// GlobalBucket holds the collateral pool balances and system-wide thresholds.
// Vault is the account holding the pooled collateral.
type GlobalBucket struct {
	Vault        common.Address
	ACToken      common.Address
	TCToken      common.Address
	FeeToken     common.Address
	NACcb        *big.Int
	NTCcb        *big.Int
	ProtThrld    *big.Int
	LiqThrld     *big.Int
	LiqEnabled   bool
	Liquidated   bool
	LiquidatedAt uint64
	Paused       bool
}

// Clone returns a deep copy of the bucket.
func (g GlobalBucket) Clone() GlobalBucket {
	g.NACcb = cloneInt(g.NACcb)
	g.NTCcb = cloneInt(g.NTCcb)
	g.ProtThrld = cloneInt(g.ProtThrld)
	g.LiqThrld = cloneInt(g.LiqThrld)
	return g
}

// InterestParams configures the redemption interest curve of a pegged token.
type InterestParams struct {
	Tils    *big.Int
	TilsMin *big.Int
	TilsMax *big.Int
	Eq      *big.Int
	FacMin  *big.Int
	FacMax  *big.Int
	Bmin    uint64
}

// Clone returns a deep copy of the parameters.
func (p InterestParams) Clone() InterestParams {
	return InterestParams{
		Tils:    cloneInt(p.Tils),
		TilsMin: cloneInt(p.TilsMin),
		TilsMax: cloneInt(p.TilsMax),
		Eq:      cloneInt(p.Eq),
		FacMin:  cloneInt(p.FacMin),
		FacMax:  cloneInt(p.FacMax),
		Bmin:    p.Bmin,
	}
}

// PeggedBucket tracks a single pegged token. Buckets are addressed by their
// insertion index and never removed.
type PeggedBucket struct {
	Token               common.Address
	PriceProvider       common.Address
	NTP                 *big.Int
	Ctarg               *big.Int
	EMA                 *big.Int
	SmoothingFactor     *big.Int
	LastEMABlock        uint64
	MintFee             *big.Int
	RedeemFee           *big.Int
	Interest            InterestParams
	LastPrice           *big.Int
	SettlementPrice     *big.Int
	LiqPrice            *big.Int
	Flux                flux.State
	FluxMaxAbsolute     common.Address
	FluxMaxDifferential common.Address
}

// Clone returns a deep copy of the bucket.
func (b PeggedBucket) Clone() PeggedBucket {
	b.NTP = cloneInt(b.NTP)
	b.Ctarg = cloneInt(b.Ctarg)
	b.EMA = cloneInt(b.EMA)
	b.SmoothingFactor = cloneInt(b.SmoothingFactor)
	b.MintFee = cloneInt(b.MintFee)
	b.RedeemFee = cloneInt(b.RedeemFee)
	b.Interest = b.Interest.Clone()
	b.LastPrice = cloneInt(b.LastPrice)
	b.SettlementPrice = cloneInt(b.SettlementPrice)
	b.LiqPrice = cloneInt(b.LiqPrice)
	b.Flux = b.Flux.Clone()
	return b
}

// FeeParams configures the fee schedule for operations that are not tied to
// a single pegged token fee, plus fee-token payment.
type FeeParams struct {
	TCMintFee             *big.Int
	TCRedeemFee           *big.Int
	SwapTPforTPFee        *big.Int
	SwapTPforTCFee        *big.Int
	SwapTCforTPFee        *big.Int
	MintTCandTPFee        *big.Int
	RedeemTCandTPFee      *big.Int
	FeeTokenPct           *big.Int
	FeeTokenPriceProvider common.Address
	FeeCollector          common.Address
}

// Clone returns a deep copy of the parameters.
func (p FeeParams) Clone() FeeParams {
	p.TCMintFee = cloneInt(p.TCMintFee)
	p.TCRedeemFee = cloneInt(p.TCRedeemFee)
	p.SwapTPforTPFee = cloneInt(p.SwapTPforTPFee)
	p.SwapTPforTCFee = cloneInt(p.SwapTPforTCFee)
	p.SwapTCforTPFee = cloneInt(p.SwapTCforTPFee)
	p.MintTCandTPFee = cloneInt(p.MintTCandTPFee)
	p.RedeemTCandTPFee = cloneInt(p.RedeemTCandTPFee)
	p.FeeTokenPct = cloneInt(p.FeeTokenPct)
	return p
}

// SettlementParams configures the settlement period and EMA cadence.
type SettlementParams struct {
	Bes                 uint64
	LastSettlementBlock uint64
	SuccessFee          *big.Int
	AppreciationFactor  *big.Int
	TCInterestCollector common.Address
	EMABlockSpan        uint64
}

// Clone returns a deep copy of the parameters.
func (p SettlementParams) Clone() SettlementParams {
	p.SuccessFee = cloneInt(p.SuccessFee)
	p.AppreciationFactor = cloneInt(p.AppreciationFactor)
	return p
}

// NextSettlementBlock returns the block at which the next settlement is due.
func (p SettlementParams) NextSettlementBlock() uint64 {
	return p.LastSettlementBlock + p.Bes
}

// QueueParams configures the operation queue. ExecFees is indexed by
// operation type.
type QueueParams struct {
	Address                 common.Address
	MaxOperPerBatch         uint64
	MinOperWaitingBlk       uint64
	AllowDifferentRecipient bool
	ExecFees                []*big.Int
}

// Clone returns a deep copy of the parameters.
func (p QueueParams) Clone() QueueParams {
	out := p
	out.ExecFees = make([]*big.Int, len(p.ExecFees))
	for i, fee := range p.ExecFees {
		out.ExecFees[i] = cloneInt(fee)
	}
	return out
}

// ExecFee returns the execution fee configured for the operation type index.
func (p QueueParams) ExecFee(index int) *big.Int {
	if index < 0 || index >= len(p.ExecFees) || p.ExecFees[index] == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(p.ExecFees[index])
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
