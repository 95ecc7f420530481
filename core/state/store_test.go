package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"pegcore/core/types"
	"pegcore/native/flux"
	"pegcore/storage"
)

var (
	tokenAC = common.HexToAddress("0x00000000000000000000000000000000000000ac")
	tokenTP = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	queue   = common.HexToAddress("0x0000000000000000000000000000000000009999")
)

func TestStoreGettersReturnCopies(t *testing.T) {
	s := NewStore()
	s.PutGlobal(GlobalBucket{NACcb: big.NewInt(10)})
	g := s.Global()
	g.NACcb.SetInt64(99)
	if s.Global().NACcb.Int64() != 10 {
		t.Fatalf("global bucket aliased")
	}
	idx := s.AppendPegged(PeggedBucket{Token: tokenTP, NTP: big.NewInt(5)})
	b, ok := s.Pegged(idx)
	if !ok {
		t.Fatalf("missing bucket")
	}
	b.NTP.SetInt64(100)
	stored, _ := s.Pegged(idx)
	if stored.NTP.Int64() != 5 {
		t.Fatalf("pegged bucket aliased")
	}
	if got, ok := s.PeggedIndex(tokenTP); !ok || got != idx {
		t.Fatalf("unexpected index lookup %d %v", got, ok)
	}
	if err := s.PutPegged(7, PeggedBucket{}); !errors.Is(err, ErrUnknownBucket) {
		t.Fatalf("expected unknown bucket, got %v", err)
	}
}

func TestStoreSnapshotRevert(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetBalance(tokenAC, alice, big.NewInt(100)))
	s.PutGlobal(GlobalBucket{NACcb: big.NewInt(1)})

	snap := s.Snapshot()
	require.NoError(t, s.SetBalance(tokenAC, alice, big.NewInt(40)))
	s.PutGlobal(GlobalBucket{NACcb: big.NewInt(61)})
	s.PutOperation(&types.Operation{ID: 1, State: types.OperStateFailed})
	before := s.Version()
	require.NoError(t, s.RevertToSnapshot(snap))

	require.Equal(t, int64(100), s.Balance(tokenAC, alice).Int64())
	require.Equal(t, int64(1), s.Global().NACcb.Int64())
	_, ok := s.Operation(1)
	require.False(t, ok)
	require.Greater(t, s.Version(), before)
	require.ErrorIs(t, s.RevertToSnapshot(snap), ErrUnknownSnapshot)
}

func TestStoreDiscardSnapshotKeepsChanges(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	require.NoError(t, s.SetSupply(tokenTP, big.NewInt(12)))
	require.NoError(t, s.DiscardSnapshot(snap))
	require.Equal(t, int64(12), s.Supply(tokenTP).Int64())
}

func TestStoreOperationJournalNested(t *testing.T) {
	s := NewStore()
	s.PutOperation(&types.Operation{ID: 1, State: types.OperStateQueued})

	outer := s.Snapshot()
	s.PutOperation(&types.Operation{ID: 1, State: types.OperStateExecuted})
	inner := s.Snapshot()
	s.PutOperation(&types.Operation{ID: 2, State: types.OperStateQueued})
	s.PutOperation(&types.Operation{ID: 1, State: types.OperStateFailed})
	require.NoError(t, s.DiscardSnapshot(inner))

	op, ok := s.Operation(1)
	require.True(t, ok)
	require.Equal(t, types.OperStateFailed, op.State)

	require.NoError(t, s.RevertToSnapshot(outer))
	op, ok = s.Operation(1)
	require.True(t, ok)
	require.Equal(t, types.OperStateQueued, op.State)
	_, ok = s.Operation(2)
	require.False(t, ok)
}

func TestStoreSnapshotSharesOperationLog(t *testing.T) {
	s := NewStore()
	s.PutOperation(&types.Operation{ID: 1, State: types.OperStateQueued})
	snap := s.Snapshot()
	require.NoError(t, s.DiscardSnapshot(snap))

	s.PutOperation(&types.Operation{ID: 3, State: types.OperStateQueued})
	snap = s.Snapshot()
	require.NoError(t, s.RevertToSnapshot(snap))
	_, ok := s.Operation(3)
	require.True(t, ok)
	_, ok = s.Operation(1)
	require.True(t, ok)
}

func TestStoreRejectsNegativeBalances(t *testing.T) {
	s := NewStore()
	require.ErrorIs(t, s.SetBalance(tokenAC, alice, big.NewInt(-1)), ErrNegativeBalance)
	require.ErrorIs(t, s.SetAllowance(tokenAC, alice, queue, big.NewInt(-1)), ErrNegativeBalance)
}

func TestStorePersistRoundTrip(t *testing.T) {
	s := NewStore()
	s.PutGlobal(GlobalBucket{ACToken: tokenAC, NACcb: big.NewInt(1000), ProtThrld: big.NewInt(15), LiqEnabled: true})
	s.AppendPegged(PeggedBucket{
		Token: tokenTP,
		NTP:   big.NewInt(500),
		Interest: InterestParams{
			Tils: big.NewInt(3),
			Bmin: 12,
		},
		Flux: flux.State{Absolute: big.NewInt(70), Differential: big.NewInt(-30), LastOperationBlock: 9},
	})
	s.PutQueue(QueueParams{Address: queue, MaxOperPerBatch: 4, ExecFees: []*big.Int{nil, big.NewInt(2)}})
	s.SetVendorMarkup(alice, big.NewInt(11))
	id := s.AllocateOperationID()
	s.PutOperation(&types.Operation{
		ID:     id,
		Type:   types.OperTypeMintTP,
		Sender: alice,
		Params: types.OperParams{TP: 0, QTP: big.NewInt(8), QACmax: big.NewInt(9)},
		Locked: []types.Lock{{Token: tokenAC, Amount: big.NewInt(9)}},
		State:  types.OperStateQueued,
	})
	require.NoError(t, s.SetBalance(tokenAC, alice, big.NewInt(77)))
	require.NoError(t, s.SetAllowance(tokenAC, alice, queue, big.NewInt(5)))
	s.SetBlockHeight(42)

	db := storage.NewMemDB()
	require.NoError(t, s.Persist(db))

	loaded, ok, err := Load(db)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1000), loaded.Global().NACcb.Int64())
	require.True(t, loaded.Global().LiqEnabled)
	bucket, found := loaded.Pegged(0)
	require.True(t, found)
	require.Equal(t, int64(-30), bucket.Flux.Differential.Int64())
	require.Equal(t, uint64(9), bucket.Flux.LastOperationBlock)
	require.Equal(t, uint64(12), bucket.Interest.Bmin)
	require.Equal(t, int64(2), loaded.Queue().ExecFee(1).Int64())
	require.Equal(t, int64(11), loaded.VendorMarkup(alice).Int64())
	op, found := loaded.Operation(id)
	require.True(t, found)
	require.Equal(t, types.OperTypeMintTP, op.Type)
	require.Equal(t, int64(9), op.LockedAmount(tokenAC).Int64())
	require.Equal(t, int64(77), loaded.Balance(tokenAC, alice).Int64())
	require.Equal(t, int64(5), loaded.Allowance(tokenAC, alice, queue).Int64())
	require.Equal(t, uint64(42), loaded.BlockHeight())
	require.Equal(t, s.NextOperationID(), loaded.NextOperationID())
}

func TestStorePersistRejectsOverflow(t *testing.T) {
	s := NewStore()
	huge := new(big.Int).Lsh(big.NewInt(1), 300)
	s.PutGlobal(GlobalBucket{NACcb: huge})
	err := s.Persist(storage.NewMemDB())
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestLoadEmptyDatabase(t *testing.T) {
	s, ok, err := Load(storage.NewMemDB())
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint64(1), s.NextOperationID())
}

func TestEnsureStateVersionMismatch(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Put(stateVersionKey, []byte{0x05}))
	require.ErrorIs(t, EnsureStateVersion(db), ErrStateVersionMismatch)
}
