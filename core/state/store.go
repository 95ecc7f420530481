package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/core/types"
)

var (
	// ErrUnknownBucket is returned when a pegged bucket index is out of range.
	ErrUnknownBucket = errors.New("state: unknown pegged bucket")
	// ErrUnknownSnapshot is returned when reverting to a snapshot that does
	// not exist.
	ErrUnknownSnapshot = errors.New("state: unknown snapshot")
	// ErrNegativeBalance guards token balances from going below zero.
	ErrNegativeBalance = errors.New("state: negative balance")
)

type snapshotData struct {
	global      GlobalBucket
	pegged      []PeggedBucket
	fees        FeeParams
	settlement  SettlementParams
	queue       QueueParams
	fluxSpan    uint64
	markups     map[common.Address]*big.Int
	operations  map[uint64]*types.Operation
	nextOperID  uint64
	head        uint64
	balances    map[common.Address]map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]map[common.Address]*big.Int
	supplies    map[common.Address]*big.Int
	blockHeight uint64
}

func newSnapshotData() *snapshotData {
	return &snapshotData{
		global:     GlobalBucket{}.Clone(),
		fees:       FeeParams{}.Clone(),
		settlement: SettlementParams{}.Clone(),
		queue:      QueueParams{}.Clone(),
		markups:    make(map[common.Address]*big.Int),
		operations: make(map[uint64]*types.Operation),
		nextOperID: 1,
		head:       1,
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		supplies:   make(map[common.Address]*big.Int),
	}
}

// clone deep-copies the bucket and balance state. The operation log is shared
// with the clone; the store journals its changes per snapshot instead.
func (d *snapshotData) clone() *snapshotData {
	out := &snapshotData{
		global:      d.global.Clone(),
		pegged:      make([]PeggedBucket, len(d.pegged)),
		fees:        d.fees.Clone(),
		settlement:  d.settlement.Clone(),
		queue:       d.queue.Clone(),
		fluxSpan:    d.fluxSpan,
		markups:     make(map[common.Address]*big.Int, len(d.markups)),
		operations:  d.operations,
		nextOperID:  d.nextOperID,
		head:        d.head,
		balances:    make(map[common.Address]map[common.Address]*big.Int, len(d.balances)),
		allowances:  make(map[common.Address]map[common.Address]map[common.Address]*big.Int, len(d.allowances)),
		supplies:    make(map[common.Address]*big.Int, len(d.supplies)),
		blockHeight: d.blockHeight,
	}
	for i, bucket := range d.pegged {
		out.pegged[i] = bucket.Clone()
	}
	for addr, v := range d.markups {
		out.markups[addr] = cloneInt(v)
	}
	for token, holders := range d.balances {
		copied := make(map[common.Address]*big.Int, len(holders))
		for holder, v := range holders {
			copied[holder] = cloneInt(v)
		}
		out.balances[token] = copied
	}
	for token, owners := range d.allowances {
		copiedOwners := make(map[common.Address]map[common.Address]*big.Int, len(owners))
		for owner, spenders := range owners {
			copiedSpenders := make(map[common.Address]*big.Int, len(spenders))
			for spender, v := range spenders {
				copiedSpenders[spender] = cloneInt(v)
			}
			copiedOwners[owner] = copiedSpenders
		}
		out.allowances[token] = copiedOwners
	}
	for token, v := range d.supplies {
		out.supplies[token] = cloneInt(v)
	}
	return out
}

// Store is the versioned in-memory protocol state shared by the queue and the
// ledger. It follows a single-writer model: callers serialise access.
// Every getter returns a deep copy so callers never alias stored values.
type Store struct {
	data      *snapshotData
	snapshots []*snapshot
	version   uint64
}

type snapshot struct {
	data    *snapshotData
	journal []operationUndo
}

// operationUndo restores an operation record; a nil prev deletes it.
type operationUndo struct {
	id   uint64
	prev *types.Operation
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{data: newSnapshotData()}
}

// Version returns a counter incremented on every mutation.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) touch() { s.version++ }

// Snapshot records the current state and returns an identifier usable with
// RevertToSnapshot.
func (s *Store) Snapshot() int {
	s.snapshots = append(s.snapshots, &snapshot{data: s.data.clone()})
	return len(s.snapshots) - 1
}

// RevertToSnapshot restores the state captured by id and discards it along
// with any later snapshots.
func (s *Store) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	operations := s.data.operations
	for i := len(s.snapshots) - 1; i >= id; i-- {
		journal := s.snapshots[i].journal
		for j := len(journal) - 1; j >= 0; j-- {
			undo := journal[j]
			if undo.prev == nil {
				delete(operations, undo.id)
				continue
			}
			operations[undo.id] = undo.prev
		}
	}
	s.data = s.snapshots[id].data
	s.data.operations = operations
	s.snapshots = s.snapshots[:id]
	s.touch()
	return nil
}

// DiscardSnapshot drops snapshot id and any later snapshots, keeping the
// current state.
func (s *Store) DiscardSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	if id > 0 {
		parent := s.snapshots[id-1]
		for _, snap := range s.snapshots[id:] {
			parent.journal = append(parent.journal, snap.journal...)
		}
	}
	s.snapshots = s.snapshots[:id]
	return nil
}

// BlockHeight returns the host block height last injected.
func (s *Store) BlockHeight() uint64 { return s.data.blockHeight }

// SetBlockHeight records the host block height.
func (s *Store) SetBlockHeight(height uint64) {
	s.data.blockHeight = height
	s.touch()
}

// IsPaused reports whether mutating operations are halted. The pause flag
// applies to every module.
func (s *Store) IsPaused(string) bool {
	return s.data.global.Paused
}

// Global returns the global bucket.
func (s *Store) Global() GlobalBucket { return s.data.global.Clone() }

// PutGlobal replaces the global bucket.
func (s *Store) PutGlobal(g GlobalBucket) {
	s.data.global = g.Clone()
	s.touch()
}

// Fees returns the fee schedule.
func (s *Store) Fees() FeeParams { return s.data.fees.Clone() }

// PutFees replaces the fee schedule.
func (s *Store) PutFees(p FeeParams) {
	s.data.fees = p.Clone()
	s.touch()
}

// Settlement returns the settlement parameters.
func (s *Store) Settlement() SettlementParams { return s.data.settlement.Clone() }

// PutSettlement replaces the settlement parameters.
func (s *Store) PutSettlement(p SettlementParams) {
	s.data.settlement = p.Clone()
	s.touch()
}

// Queue returns the queue parameters.
func (s *Store) Queue() QueueParams { return s.data.queue.Clone() }

// PutQueue replaces the queue parameters.
func (s *Store) PutQueue(p QueueParams) {
	s.data.queue = p.Clone()
	s.touch()
}

// FluxDecayBlockSpan returns the flux capacitor decay span.
func (s *Store) FluxDecayBlockSpan() uint64 { return s.data.fluxSpan }

// SetFluxDecayBlockSpan updates the flux capacitor decay span.
func (s *Store) SetFluxDecayBlockSpan(span uint64) {
	s.data.fluxSpan = span
	s.touch()
}

// PeggedCount returns the number of registered pegged buckets.
func (s *Store) PeggedCount() int { return len(s.data.pegged) }

// Pegged returns the pegged bucket at index i.
func (s *Store) Pegged(i uint32) (PeggedBucket, bool) {
	if int(i) >= len(s.data.pegged) {
		return PeggedBucket{}, false
	}
	return s.data.pegged[i].Clone(), true
}

// PutPegged replaces the pegged bucket at index i.
func (s *Store) PutPegged(i uint32, b PeggedBucket) error {
	if int(i) >= len(s.data.pegged) {
		return fmt.Errorf("%w: %d", ErrUnknownBucket, i)
	}
	s.data.pegged[i] = b.Clone()
	s.touch()
	return nil
}

// AppendPegged registers a new pegged bucket and returns its index.
func (s *Store) AppendPegged(b PeggedBucket) uint32 {
	s.data.pegged = append(s.data.pegged, b.Clone())
	s.touch()
	return uint32(len(s.data.pegged) - 1)
}

// PeggedIndex resolves the bucket index for a pegged token address.
func (s *Store) PeggedIndex(token common.Address) (uint32, bool) {
	for i, bucket := range s.data.pegged {
		if bucket.Token == token {
			return uint32(i), true
		}
	}
	return 0, false
}

// VendorMarkup returns the markup registered for vendor; zero when unset.
func (s *Store) VendorMarkup(vendor common.Address) *big.Int {
	return cloneInt(s.data.markups[vendor])
}

// SetVendorMarkup registers a markup rate for vendor.
func (s *Store) SetVendorMarkup(vendor common.Address, markup *big.Int) {
	if markup == nil || markup.Sign() == 0 {
		delete(s.data.markups, vendor)
	} else {
		s.data.markups[vendor] = cloneInt(markup)
	}
	s.touch()
}

// AllocateOperationID reserves the next operation identifier.
func (s *Store) AllocateOperationID() uint64 {
	id := s.data.nextOperID
	s.data.nextOperID++
	s.touch()
	return id
}

// NextOperationID returns the identifier the next submission will receive.
func (s *Store) NextOperationID() uint64 { return s.data.nextOperID }

// Operation returns the stored operation record.
func (s *Store) Operation(id uint64) (*types.Operation, bool) {
	op, ok := s.data.operations[id]
	if !ok {
		return nil, false
	}
	return op.Clone(), true
}

// PutOperation stores an operation record.
func (s *Store) PutOperation(op *types.Operation) {
	if op == nil {
		return
	}
	if n := len(s.snapshots); n > 0 {
		top := s.snapshots[n-1]
		top.journal = append(top.journal, operationUndo{id: op.ID, prev: s.data.operations[op.ID]})
	}
	s.data.operations[op.ID] = op.Clone()
	s.touch()
}

// QueueHead returns the lowest identifier that may still be queued.
func (s *Store) QueueHead() uint64 { return s.data.head }

// SetQueueHead advances the queue head.
func (s *Store) SetQueueHead(id uint64) {
	s.data.head = id
	s.touch()
}

// Balance returns holder's balance of token.
func (s *Store) Balance(token, holder common.Address) *big.Int {
	return cloneInt(s.data.balances[token][holder])
}

// SetBalance overwrites holder's balance of token.
func (s *Store) SetBalance(token, holder common.Address, amount *big.Int) error {
	if amount != nil && amount.Sign() < 0 {
		return ErrNegativeBalance
	}
	holders, ok := s.data.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		s.data.balances[token] = holders
	}
	if amount == nil || amount.Sign() == 0 {
		delete(holders, holder)
	} else {
		holders[holder] = cloneInt(amount)
	}
	s.touch()
	return nil
}

// Allowance returns the amount spender may move from owner's balance.
func (s *Store) Allowance(token, owner, spender common.Address) *big.Int {
	return cloneInt(s.data.allowances[token][owner][spender])
}

// SetAllowance overwrites the allowance granted by owner to spender.
func (s *Store) SetAllowance(token, owner, spender common.Address, amount *big.Int) error {
	if amount != nil && amount.Sign() < 0 {
		return ErrNegativeBalance
	}
	owners, ok := s.data.allowances[token]
	if !ok {
		owners = make(map[common.Address]map[common.Address]*big.Int)
		s.data.allowances[token] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		owners[owner] = spenders
	}
	if amount == nil || amount.Sign() == 0 {
		delete(spenders, spender)
	} else {
		spenders[spender] = cloneInt(amount)
	}
	s.touch()
	return nil
}

// Supply returns the total supply of token.
func (s *Store) Supply(token common.Address) *big.Int {
	return cloneInt(s.data.supplies[token])
}

// SetSupply overwrites the total supply of token.
func (s *Store) SetSupply(token common.Address, amount *big.Int) error {
	if amount != nil && amount.Sign() < 0 {
		return ErrNegativeBalance
	}
	s.data.supplies[token] = cloneInt(amount)
	s.touch()
	return nil
}

func sortedAddresses[V any](m map[common.Address]V) []common.Address {
	out := make([]common.Address, 0, len(m))
	for addr := range m {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Cmp(out[j]) < 0
	})
	return out
}
