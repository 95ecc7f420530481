package history

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"pegcore/core/events"
	"pegcore/core/types"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	return NewIndexer(db, nil)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	require.ErrorIs(t, err, errUnsupportedDriver)
}

func TestIndexerTracksOperationLifecycle(t *testing.T) {
	idx := newTestIndexer(t)
	alice := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	keeper := common.HexToAddress("0x00000000000000000000000000000000000000e1")

	idx.Emit(events.OperationQueued{ID: 1, Kind: types.OperTypeMintTC, Sender: alice, Recipient: alice, ExecFee: big.NewInt(7), Height: 3})
	idx.Emit(events.OperationQueued{ID: 2, Kind: types.OperTypeRedeemTC, Sender: alice, Recipient: alice, ExecFee: big.NewInt(7), Height: 3})

	rec, err := idx.Operation(1)
	require.NoError(t, err)
	require.Equal(t, StateQueued, rec.State)
	require.Equal(t, "7", rec.ExecFee)

	idx.Emit(events.BucketOperation{OperID: 1, Kind: types.OperTypeMintTC, QTC: big.NewInt(100), QAC: big.NewInt(101),
		Fees: events.FeeBreakdown{QACFee: big.NewInt(1), Source: events.FeeSourceAC}})
	idx.Emit(events.OperationExecuted{ID: 1, Kind: types.OperTypeMintTC, Height: 5})
	idx.Emit(events.OperationError{ID: 2, Kind: types.OperTypeRedeemTC, Name: "QacBelowMinimumRequired", Selector: "0x01020304", Reason: "slippage", Height: 5})
	idx.Emit(events.BatchExecuted{BatchID: "batch-1", Executor: keeper, FirstID: 1, LastID: 2, Executed: 1, Failed: 1, ExecFees: big.NewInt(14), Height: 5})

	rec, err = idx.Operation(1)
	require.NoError(t, err)
	require.Equal(t, StateExecuted, rec.State)
	require.Equal(t, "101", rec.QAC)
	require.Equal(t, "1", rec.QACFee)
	require.Equal(t, events.FeeSourceAC, rec.FeeSource)
	require.Equal(t, "batch-1", rec.BatchID)
	require.EqualValues(t, 5, rec.ProcessedHeight)

	rec, err = idx.Operation(2)
	require.NoError(t, err)
	require.Equal(t, StateFailed, rec.State)
	require.Equal(t, "QacBelowMinimumRequired", rec.FailureName)

	ops, err := idx.BySender(alice.Hex(), 10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.EqualValues(t, 2, ops[0].ID)

	batches, err := idx.Batches(0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Equal(t, "14", batches[0].ExecFees)
	require.Equal(t, keeper.Hex(), batches[0].Executor)
}

func TestIndexerIgnoresUnrelatedEvents(t *testing.T) {
	idx := newTestIndexer(t)
	idx.Emit(events.ParamChanged{Module: "ledger", Name: "protThrld", Value: "2"})
	batches, err := idx.Batches(5)
	require.NoError(t, err)
	require.Empty(t, batches)
}
