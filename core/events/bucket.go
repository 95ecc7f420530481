package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/core/types"
)

const (
	// TypeBucketOperation prefixes the per-type bucket events, e.g.
	// "bucket.mintTC".
	TypeBucketOperation = "bucket."
	// TypeEMAUpdated is emitted whenever a pegged token EMA is recomputed.
	TypeEMAUpdated = "bucket.ema_updated"
	// TypeLiquidationTriggered is emitted once when coverage falls below the
	// liquidation threshold.
	TypeLiquidationTriggered = "bucket.liquidation_triggered"
	// TypeLiquidationRedeemed is emitted for each pro-rata redemption after
	// liquidation.
	TypeLiquidationRedeemed = "bucket.liquidation_redeemed"
	// TypeSettlementExecuted is emitted when a settlement period closes.
	TypeSettlementExecuted = "bucket.settlement_executed"
	// TypePeggedTokenAdded is emitted when governance registers a new bucket.
	TypePeggedTokenAdded = "bucket.pegged_token_added"
	// TypeParamChanged is emitted by governance setters.
	TypeParamChanged = "governance.param_changed"
)

// Fee source tags recorded on bucket events.
const (
	FeeSourceAC       = "ac"
	FeeSourceFeeToken = "feeToken"
)

// FeeBreakdown describes how fees were charged for an operation.
type FeeBreakdown struct {
	QACFee                *big.Int
	QFeeToken             *big.Int
	QACVendorMarkup       *big.Int
	QFeeTokenVendorMarkup *big.Int
	QACInterest           *big.Int
	Source                string
	FallbackReason        string
}

// BucketOperation records the realised effect of a settled operation on the
// collateral buckets.
type BucketOperation struct {
	OperID    uint64
	Kind      types.OperType
	Sender    common.Address
	Recipient common.Address
	Vendor    common.Address
	TP        uint32
	TPTo      uint32
	QTC       *big.Int
	QTP       *big.Int
	QTPTo     *big.Int
	QAC       *big.Int
	Fees      FeeBreakdown
	Height    uint64
}

func (e BucketOperation) EventType() string { return TypeBucketOperation + e.Kind.String() }

func (e BucketOperation) Event() *types.Event {
	attrs := map[string]string{
		"operId":                strconv.FormatUint(e.OperID, 10),
		"sender":                address(e.Sender),
		"recipient":             address(e.Recipient),
		"vendor":                address(e.Vendor),
		"qTC":                   amount(e.QTC),
		"qTP":                   amount(e.QTP),
		"qAC":                   amount(e.QAC),
		"qACfee":                amount(e.Fees.QACFee),
		"qFeeToken":             amount(e.Fees.QFeeToken),
		"qACVendorMarkup":       amount(e.Fees.QACVendorMarkup),
		"qFeeTokenVendorMarkup": amount(e.Fees.QFeeTokenVendorMarkup),
		"qACInterest":           amount(e.Fees.QACInterest),
		"feeSource":             e.Fees.Source,
		"feeTokenFallback":      e.Fees.FallbackReason,
	}
	if e.Kind.TouchesTP() {
		attrs["tp"] = strconv.FormatUint(uint64(e.TP), 10)
	}
	if e.Kind == types.OperTypeSwapTPforTP {
		attrs["tpTo"] = strconv.FormatUint(uint64(e.TPTo), 10)
		attrs["qTPTo"] = amount(e.QTPTo)
	}
	return &types.Event{Type: e.EventType(), Height: e.Height, Attributes: attrs}
}

// EMAUpdated records a recomputed moving average.
type EMAUpdated struct {
	TP     uint32
	EMA    *big.Int
	Price  *big.Int
	Height uint64
}

func (EMAUpdated) EventType() string { return TypeEMAUpdated }

func (e EMAUpdated) Event() *types.Event {
	return &types.Event{
		Type:   TypeEMAUpdated,
		Height: e.Height,
		Attributes: map[string]string{
			"tp":    strconv.FormatUint(uint64(e.TP), 10),
			"ema":   amount(e.EMA),
			"price": amount(e.Price),
		},
	}
}

// LiquidationTriggered records the transition into the liquidated state.
type LiquidationTriggered struct {
	Coverage  *big.Int
	Threshold *big.Int
	Height    uint64
}

func (LiquidationTriggered) EventType() string { return TypeLiquidationTriggered }

func (e LiquidationTriggered) Event() *types.Event {
	return &types.Event{
		Type:   TypeLiquidationTriggered,
		Height: e.Height,
		Attributes: map[string]string{
			"coverage":  amount(e.Coverage),
			"threshold": amount(e.Threshold),
		},
	}
}

// LiquidationRedeemed records a post-liquidation pro-rata redemption.
type LiquidationRedeemed struct {
	TP     uint32
	Holder common.Address
	QTP    *big.Int
	QAC    *big.Int
	Height uint64
}

func (LiquidationRedeemed) EventType() string { return TypeLiquidationRedeemed }

func (e LiquidationRedeemed) Event() *types.Event {
	return &types.Event{
		Type:   TypeLiquidationRedeemed,
		Height: e.Height,
		Attributes: map[string]string{
			"tp":     strconv.FormatUint(uint64(e.TP), 10),
			"holder": address(e.Holder),
			"qTP":    amount(e.QTP),
			"qAC":    amount(e.QAC),
		},
	}
}

// SettlementExecuted records the close of a settlement period.
type SettlementExecuted struct {
	Gain            *big.Int
	SuccessFee      *big.Int
	AppreciationFee *big.Int
	NextSettlement  uint64
	Height          uint64
}

func (SettlementExecuted) EventType() string { return TypeSettlementExecuted }

func (e SettlementExecuted) Event() *types.Event {
	return &types.Event{
		Type:   TypeSettlementExecuted,
		Height: e.Height,
		Attributes: map[string]string{
			"gain":            amount(e.Gain),
			"successFee":      amount(e.SuccessFee),
			"appreciationFee": amount(e.AppreciationFee),
			"nextSettlement":  strconv.FormatUint(e.NextSettlement, 10),
		},
	}
}

// PeggedTokenAdded records a newly registered pegged token bucket.
type PeggedTokenAdded struct {
	TP            uint32
	Token         common.Address
	PriceProvider common.Address
	Height        uint64
}

func (PeggedTokenAdded) EventType() string { return TypePeggedTokenAdded }

func (e PeggedTokenAdded) Event() *types.Event {
	return &types.Event{
		Type:   TypePeggedTokenAdded,
		Height: e.Height,
		Attributes: map[string]string{
			"tp":            strconv.FormatUint(uint64(e.TP), 10),
			"token":         address(e.Token),
			"priceProvider": address(e.PriceProvider),
		},
	}
}

// ParamChanged records a governance parameter update.
type ParamChanged struct {
	Module string
	Name   string
	Value  string
	Height uint64
}

func (ParamChanged) EventType() string { return TypeParamChanged }

func (e ParamChanged) Event() *types.Event {
	return &types.Event{
		Type:   TypeParamChanged,
		Height: e.Height,
		Attributes: map[string]string{
			"module": e.Module,
			"name":   e.Name,
			"value":  e.Value,
		},
	}
}
