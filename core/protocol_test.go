package core

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"pegcore/config"
	"pegcore/core/events"
	"pegcore/core/state"
	"pegcore/core/types"
	"pegcore/native/bank"
	nativecommon "pegcore/native/common"
	"pegcore/native/ledger"
	"pegcore/native/queue"
	"pegcore/storage"
)

var (
	testExecutor = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	testUser     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func newTestProtocol(t *testing.T, store *state.Store) (*Protocol, config.Parameters, *events.Recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.Governance.Executors = []string{testExecutor.Hex()}
	params, err := cfg.Parameters()
	require.NoError(t, err)
	recorder := &events.Recorder{}
	p, err := NewProtocol(params, store, nil, recorder)
	require.NoError(t, err)
	return p, params, recorder
}

func TestProtocolMintAndPersist(t *testing.T) {
	p, params, recorder := newTestProtocol(t, nil)
	require.Len(t, recorder.OfType(events.TypePeggedTokenAdded), 1)

	require.NoError(t, p.Update(func(_ *ledger.Ledger, _ *queue.Queue, b *bank.Bank) error {
		return b.Mint(params.Global.ACToken, testUser, nativecommon.Units(1000))
	}))
	id, err := p.Submit(queue.Request{
		Type:    types.OperTypeMintTC,
		Parties: queue.Parties{Sender: testUser},
		Params:  types.OperParams{QTC: nativecommon.Units(100), QACmax: nativecommon.Units(101)},
	})
	require.NoError(t, err)

	p.Advance(params.Queue.MinOperWaitingBlk)
	report, err := p.Execute(testExecutor, testExecutor)
	require.NoError(t, err)
	require.Equal(t, []uint64{id}, report.Executed)

	require.NoError(t, p.View(func(l *ledger.Ledger, q *queue.Queue) error {
		g, err := l.Global()
		require.NoError(t, err)
		require.Equal(t, nativecommon.Units(100), g.NACcb)
		require.Zero(t, q.PendingCount())
		return nil
	}))

	db := storage.NewMemDB()
	require.NoError(t, p.Persist(db))
	restored, ok, err := state.Load(db)
	require.NoError(t, err)
	require.True(t, ok)

	again, _, _ := newTestProtocol(t, restored)
	require.NoError(t, again.View(func(l *ledger.Ledger, q *queue.Queue) error {
		require.Equal(t, 1, l.PeggedCount())
		g, err := l.Global()
		require.NoError(t, err)
		require.Equal(t, nativecommon.Units(100), g.NACcb)
		op, ok := q.Operation(id)
		require.True(t, ok)
		require.Equal(t, types.OperStateExecuted, op.State)
		return nil
	}))
}

func TestProtocolSetPrice(t *testing.T) {
	p, params, _ := newTestProtocol(t, nil)
	provider := params.Pegged[0].PriceProvider

	require.NoError(t, p.SetPrice(provider, nativecommon.Units(3)))
	require.NoError(t, p.View(func(l *ledger.Ledger, _ *queue.Queue) error {
		price, valid, err := l.TPPrice(0)
		require.NoError(t, err)
		require.True(t, valid)
		require.Equal(t, nativecommon.Units(3), price)
		return nil
	}))
	require.Error(t, p.SetPrice(testUser, nativecommon.Units(1)))
}

func TestProtocolRejectsUnauthorisedExecutor(t *testing.T) {
	p, _, _ := newTestProtocol(t, nil)
	_, err := p.Execute(testUser, testUser)
	require.Error(t, err)
}
