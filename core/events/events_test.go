package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/core/types"
)

func TestBucketOperationEvent(t *testing.T) {
	sender := common.HexToAddress("0x1000000000000000000000000000000000000001")
	evt := BucketOperation{
		OperID:    7,
		Kind:      types.OperTypeMintTP,
		Sender:    sender,
		Recipient: sender,
		TP:        1,
		QTP:       big.NewInt(500),
		QAC:       big.NewInt(100),
		Fees: FeeBreakdown{
			QACFee:         big.NewInt(5),
			Source:         FeeSourceAC,
			FallbackReason: "balance",
		},
	}.Event()
	if evt.Type != "bucket.mintTP" {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attr("operId") != "7" || evt.Attr("tp") != "1" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attr("qACfee") != "5" || evt.Attr("qFeeToken") != "0" {
		t.Fatalf("unexpected fee attrs: %+v", evt.Attributes)
	}
	if evt.Attr("feeTokenFallback") != "balance" {
		t.Fatalf("fallback reason not surfaced: %+v", evt.Attributes)
	}
	if evt.Attr("sender") != sender.Hex() || evt.Attr("vendor") != "" {
		t.Fatalf("unexpected address attrs: %+v", evt.Attributes)
	}
}

func TestOperationQueuedEventListsLocks(t *testing.T) {
	token := common.HexToAddress("0x2000000000000000000000000000000000000002")
	evt := OperationQueued{
		ID:      3,
		Kind:    types.OperTypeRedeemTC,
		ExecFee: big.NewInt(10),
		Locked:  []types.Lock{{Token: token, Amount: big.NewInt(42)}},
		Height:  9,
	}.Event()
	if evt.Height != 9 || evt.Attr("operType") != "redeemTC" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Attr("lockToken0") != token.Hex() || evt.Attr("lockAmount0") != "42" {
		t.Fatalf("unexpected lock attrs: %+v", evt.Attributes)
	}
}

func TestRecorderAndFanout(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	emitter := Fanout{first, nil, second}
	emitter.Emit(OperationExecuted{ID: 1})
	emitter.Emit(OperationError{ID: 2, Name: "LowCoverage"})
	if len(first.Events()) != 2 || len(second.Events()) != 2 {
		t.Fatalf("fanout did not reach all recorders")
	}
	if got := first.OfType(TypeOperationError); len(got) != 1 {
		t.Fatalf("expected one error event, got %d", len(got))
	}
	first.Reset()
	if len(first.Events()) != 0 {
		t.Fatalf("reset did not clear recorder")
	}
}
