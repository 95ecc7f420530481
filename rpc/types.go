package rpc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/core/state"
	"pegcore/core/types"
	nativecommon "pegcore/native/common"
	"pegcore/storage/history"
)

// ProtocolResponse summarises the global bucket. Amounts are decimal strings
// with 18 fractional digits; unbounded values render as "max".
type ProtocolResponse struct {
	Height       uint64 `json:"height"`
	Vault        string `json:"vault"`
	ACToken      string `json:"acToken"`
	TCToken      string `json:"tcToken"`
	FeeToken     string `json:"feeToken"`
	NACcb        string `json:"nACcb"`
	NTCcb        string `json:"nTCcb"`
	Coverage     string `json:"coverage"`
	TCPrice      string `json:"tcPrice"`
	LckAC        string `json:"lckAC"`
	ProtThrld    string `json:"protThrld"`
	LiqThrld     string `json:"liqThrld"`
	LiqEnabled   bool   `json:"liqEnabled"`
	Liquidated   bool   `json:"liquidated"`
	LiquidatedAt uint64 `json:"liquidatedAt,omitempty"`
	Paused       bool   `json:"paused"`
	PeggedTokens int    `json:"peggedTokens"`
}

// PeggedResponse describes one pegged token bucket.
type PeggedResponse struct {
	Index          uint32 `json:"index"`
	Token          string `json:"token"`
	PriceProvider  string `json:"priceProvider"`
	Price          string `json:"price"`
	PriceValid     bool   `json:"priceValid"`
	NTP            string `json:"nTP"`
	Ctarg          string `json:"ctarg"`
	EMA            string `json:"ema"`
	MintFee        string `json:"mintFee"`
	RedeemFee      string `json:"redeemFee"`
	AvailableMint  string `json:"availableToMint"`
	MaxQtyToMint   string `json:"maxQtyToMint"`
	MaxQtyToRedeem string `json:"maxQtyToRedeem"`
	FluxAbsolute   string `json:"fluxAbsolute"`
	FluxDiff       string `json:"fluxDifferential"`
	FluxLastBlock  uint64 `json:"fluxLastBlock"`
}

// QueueResponse describes the queue parameters and backlog.
type QueueResponse struct {
	Address                 string            `json:"address"`
	MaxOperPerBatch         uint64            `json:"maxOperPerBatch"`
	MinOperWaitingBlk       uint64            `json:"minOperWaitingBlk"`
	AllowDifferentRecipient bool              `json:"allowDifferentRecipient"`
	ExecFees                map[string]string `json:"execFees"`
	FirstPendingID          uint64            `json:"firstPendingId"`
	Pending                 uint64            `json:"pending"`
}

// LockResponse is one locked amount.
type LockResponse struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// OperationResponse is the queue record of an operation.
type OperationResponse struct {
	ID            uint64         `json:"id"`
	Type          string         `json:"type"`
	Sender        string         `json:"sender"`
	Recipient     string         `json:"recipient"`
	Vendor        string         `json:"vendor,omitempty"`
	State         string         `json:"state"`
	QueuedAtBlock uint64         `json:"queuedAtBlock"`
	ProcessedAt   uint64         `json:"processedAt,omitempty"`
	FailureName   string         `json:"failureName,omitempty"`
	ExecFee       string         `json:"execFee"`
	Locked        []LockResponse `json:"locked"`
}

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

func amount(v *big.Int) string {
	return nativecommon.FormatPrec(v)
}

func queueResponse(params state.QueueParams, first, pending uint64) QueueResponse {
	fees := make(map[string]string, len(types.OperTypes))
	for _, kind := range types.OperTypes {
		fees[kind.String()] = amount(params.ExecFee(int(kind)))
	}
	return QueueResponse{
		Address:                 params.Address.Hex(),
		MaxOperPerBatch:         params.MaxOperPerBatch,
		MinOperWaitingBlk:       params.MinOperWaitingBlk,
		AllowDifferentRecipient: params.AllowDifferentRecipient,
		ExecFees:                fees,
		FirstPendingID:          first,
		Pending:                 pending,
	}
}

func operationResponse(op *types.Operation) OperationResponse {
	resp := OperationResponse{
		ID:            op.ID,
		Type:          op.Type.String(),
		Sender:        op.Sender.Hex(),
		Recipient:     op.Recipient.Hex(),
		State:         op.State.String(),
		QueuedAtBlock: op.QueuedAtBlock,
		ProcessedAt:   op.ProcessedAt,
		FailureName:   op.FailureName,
		ExecFee:       amount(op.ExecFee),
		Locked:        make([]LockResponse, 0, len(op.Locked)),
	}
	if op.Vendor != (common.Address{}) {
		resp.Vendor = op.Vendor.Hex()
	}
	for _, lock := range op.Locked {
		resp.Locked = append(resp.Locked, LockResponse{Token: lock.Token.Hex(), Amount: amount(lock.Amount)})
	}
	return resp
}

// HistoryReader serves indexed operations and batches.
type HistoryReader interface {
	Operation(id uint64) (*history.OperationRecord, error)
	BySender(sender string, limit int) ([]history.OperationRecord, error)
	Batches(limit int) ([]history.BatchRecord, error)
}
