package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"pegcore/core/types"
	"pegcore/native/flux"
	"pegcore/storage"
)

// StateVersion identifies the expected on-disk schema layout. Increment it
// whenever the persisted record changes shape.
const StateVersion uint64 = 1

var (
	stateVersionKey = ethcrypto.Keccak256([]byte("pegcore/state/version"))
	stateRecordKey  = ethcrypto.Keccak256([]byte("pegcore/state/record"))

	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
	// ErrAmountOverflow is returned when an amount does not fit in 256 bits.
	ErrAmountOverflow = errors.New("state: amount overflows uint256")
)

type signedAmount struct {
	Negative  bool
	Magnitude *uint256.Int
}

type globalRecord struct {
	Vault        common.Address
	ACToken      common.Address
	TCToken      common.Address
	FeeToken     common.Address
	NACcb        *uint256.Int
	NTCcb        *uint256.Int
	ProtThrld    *uint256.Int
	LiqThrld     *uint256.Int
	LiqEnabled   bool
	Liquidated   bool
	LiquidatedAt uint64
	Paused       bool
}

type peggedRecord struct {
	Token               common.Address
	PriceProvider       common.Address
	NTP                 *uint256.Int
	Ctarg               *uint256.Int
	EMA                 *uint256.Int
	SmoothingFactor     *uint256.Int
	LastEMABlock        uint64
	MintFee             *uint256.Int
	RedeemFee           *uint256.Int
	Tils                *uint256.Int
	TilsMin             *uint256.Int
	TilsMax             *uint256.Int
	Eq                  *uint256.Int
	FacMin              *uint256.Int
	FacMax              *uint256.Int
	Bmin                uint64
	LastPrice           *uint256.Int
	SettlementPrice     *uint256.Int
	LiqPrice            *uint256.Int
	FluxAbsolute        *uint256.Int
	FluxDifferential    signedAmount
	FluxLastBlock       uint64
	FluxMaxAbsolute     common.Address
	FluxMaxDifferential common.Address
}

type feesRecord struct {
	Rates                 []*uint256.Int
	FeeTokenPct           *uint256.Int
	FeeTokenPriceProvider common.Address
	FeeCollector          common.Address
}

type settlementRecord struct {
	Bes                 uint64
	LastSettlementBlock uint64
	SuccessFee          *uint256.Int
	AppreciationFactor  *uint256.Int
	TCInterestCollector common.Address
	EMABlockSpan        uint64
}

type queueRecord struct {
	Address                 common.Address
	MaxOperPerBatch         uint64
	MinOperWaitingBlk       uint64
	AllowDifferentRecipient bool
	ExecFees                []*uint256.Int
}

type lockRecord struct {
	Token  common.Address
	Amount *uint256.Int
}

type operationRecord struct {
	ID            uint64
	Type          uint8
	Sender        common.Address
	Recipient     common.Address
	Vendor        common.Address
	TP            uint32
	TPTo          uint32
	Amounts       []*uint256.Int
	Locked        []lockRecord
	ExecFee       *uint256.Int
	QueuedAtBlock uint64
	State         uint8
	ProcessedAt   uint64
	FailureName   string
}

type markupRecord struct {
	Vendor common.Address
	Markup *uint256.Int
}

type balanceRecord struct {
	Token  common.Address
	Holder common.Address
	Amount *uint256.Int
}

type allowanceRecord struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  *uint256.Int
}

type supplyRecord struct {
	Token  common.Address
	Amount *uint256.Int
}

type storeRecord struct {
	Global      globalRecord
	Pegged      []peggedRecord
	Fees        feesRecord
	Settlement  settlementRecord
	Queue       queueRecord
	FluxSpan    uint64
	Markups     []markupRecord
	Operations  []operationRecord
	NextOperID  uint64
	Head        uint64
	Balances    []balanceRecord
	Allowances  []allowanceRecord
	Supplies    []supplyRecord
	BlockHeight uint64
}

func encodeAmount(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", ErrAmountOverflow, v)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrAmountOverflow, v)
	}
	return out, nil
}

func decodeAmount(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

func encodeSigned(v *big.Int) (signedAmount, error) {
	if v == nil {
		return signedAmount{Magnitude: new(uint256.Int)}, nil
	}
	mag, err := encodeAmount(new(big.Int).Abs(v))
	if err != nil {
		return signedAmount{}, err
	}
	return signedAmount{Negative: v.Sign() < 0, Magnitude: mag}, nil
}

func decodeSigned(v signedAmount) *big.Int {
	out := decodeAmount(v.Magnitude)
	if v.Negative {
		out.Neg(out)
	}
	return out
}

// amountEncoder accumulates the first encoding error so record builders stay
// linear.
type amountEncoder struct {
	err error
}

func (e *amountEncoder) u(v *big.Int) *uint256.Int {
	if e.err != nil {
		return new(uint256.Int)
	}
	out, err := encodeAmount(v)
	if err != nil {
		e.err = err
		return new(uint256.Int)
	}
	return out
}

func (e *amountEncoder) signed(v *big.Int) signedAmount {
	if e.err != nil {
		return signedAmount{Magnitude: new(uint256.Int)}
	}
	out, err := encodeSigned(v)
	if err != nil {
		e.err = err
		return signedAmount{Magnitude: new(uint256.Int)}
	}
	return out
}

func (s *Store) record() (*storeRecord, error) {
	d := s.data
	enc := &amountEncoder{}
	rec := &storeRecord{
		Global: globalRecord{
			Vault:        d.global.Vault,
			ACToken:      d.global.ACToken,
			TCToken:      d.global.TCToken,
			FeeToken:     d.global.FeeToken,
			NACcb:        enc.u(d.global.NACcb),
			NTCcb:        enc.u(d.global.NTCcb),
			ProtThrld:    enc.u(d.global.ProtThrld),
			LiqThrld:     enc.u(d.global.LiqThrld),
			LiqEnabled:   d.global.LiqEnabled,
			Liquidated:   d.global.Liquidated,
			LiquidatedAt: d.global.LiquidatedAt,
			Paused:       d.global.Paused,
		},
		Fees: feesRecord{
			Rates: []*uint256.Int{
				enc.u(d.fees.TCMintFee), enc.u(d.fees.TCRedeemFee),
				enc.u(d.fees.SwapTPforTPFee), enc.u(d.fees.SwapTPforTCFee), enc.u(d.fees.SwapTCforTPFee),
				enc.u(d.fees.MintTCandTPFee), enc.u(d.fees.RedeemTCandTPFee),
			},
			FeeTokenPct:           enc.u(d.fees.FeeTokenPct),
			FeeTokenPriceProvider: d.fees.FeeTokenPriceProvider,
			FeeCollector:          d.fees.FeeCollector,
		},
		Settlement: settlementRecord{
			Bes:                 d.settlement.Bes,
			LastSettlementBlock: d.settlement.LastSettlementBlock,
			SuccessFee:          enc.u(d.settlement.SuccessFee),
			AppreciationFactor:  enc.u(d.settlement.AppreciationFactor),
			TCInterestCollector: d.settlement.TCInterestCollector,
			EMABlockSpan:        d.settlement.EMABlockSpan,
		},
		Queue: queueRecord{
			Address:                 d.queue.Address,
			MaxOperPerBatch:         d.queue.MaxOperPerBatch,
			MinOperWaitingBlk:       d.queue.MinOperWaitingBlk,
			AllowDifferentRecipient: d.queue.AllowDifferentRecipient,
		},
		FluxSpan:    d.fluxSpan,
		NextOperID:  d.nextOperID,
		Head:        d.head,
		BlockHeight: d.blockHeight,
	}
	for _, fee := range d.queue.ExecFees {
		rec.Queue.ExecFees = append(rec.Queue.ExecFees, enc.u(fee))
	}
	for _, b := range d.pegged {
		rec.Pegged = append(rec.Pegged, peggedRecord{
			Token:               b.Token,
			PriceProvider:       b.PriceProvider,
			NTP:                 enc.u(b.NTP),
			Ctarg:               enc.u(b.Ctarg),
			EMA:                 enc.u(b.EMA),
			SmoothingFactor:     enc.u(b.SmoothingFactor),
			LastEMABlock:        b.LastEMABlock,
			MintFee:             enc.u(b.MintFee),
			RedeemFee:           enc.u(b.RedeemFee),
			Tils:                enc.u(b.Interest.Tils),
			TilsMin:             enc.u(b.Interest.TilsMin),
			TilsMax:             enc.u(b.Interest.TilsMax),
			Eq:                  enc.u(b.Interest.Eq),
			FacMin:              enc.u(b.Interest.FacMin),
			FacMax:              enc.u(b.Interest.FacMax),
			Bmin:                b.Interest.Bmin,
			LastPrice:           enc.u(b.LastPrice),
			SettlementPrice:     enc.u(b.SettlementPrice),
			LiqPrice:            enc.u(b.LiqPrice),
			FluxAbsolute:        enc.u(b.Flux.Absolute),
			FluxDifferential:    enc.signed(b.Flux.Differential),
			FluxLastBlock:       b.Flux.LastOperationBlock,
			FluxMaxAbsolute:     b.FluxMaxAbsolute,
			FluxMaxDifferential: b.FluxMaxDifferential,
		})
	}
	for _, vendor := range sortedAddresses(d.markups) {
		rec.Markups = append(rec.Markups, markupRecord{Vendor: vendor, Markup: enc.u(d.markups[vendor])})
	}
	ids := make([]uint64, 0, len(d.operations))
	for id := range d.operations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		op := d.operations[id]
		opRec := operationRecord{
			ID:        op.ID,
			Type:      uint8(op.Type),
			Sender:    op.Sender,
			Recipient: op.Recipient,
			Vendor:    op.Vendor,
			TP:        op.Params.TP,
			TPTo:      op.Params.TPTo,
			Amounts: []*uint256.Int{
				enc.u(op.Params.QTC), enc.u(op.Params.QTP), enc.u(op.Params.QACmax),
				enc.u(op.Params.QACmin), enc.u(op.Params.QTCmin), enc.u(op.Params.QTPmin),
			},
			ExecFee:       enc.u(op.ExecFee),
			QueuedAtBlock: op.QueuedAtBlock,
			State:         uint8(op.State),
			ProcessedAt:   op.ProcessedAt,
			FailureName:   op.FailureName,
		}
		for _, lock := range op.Locked {
			opRec.Locked = append(opRec.Locked, lockRecord{Token: lock.Token, Amount: enc.u(lock.Amount)})
		}
		rec.Operations = append(rec.Operations, opRec)
	}
	for _, token := range sortedAddresses(d.balances) {
		holders := d.balances[token]
		for _, holder := range sortedAddresses(holders) {
			rec.Balances = append(rec.Balances, balanceRecord{Token: token, Holder: holder, Amount: enc.u(holders[holder])})
		}
	}
	for _, token := range sortedAddresses(d.allowances) {
		owners := d.allowances[token]
		for _, owner := range sortedAddresses(owners) {
			spenders := owners[owner]
			for _, spender := range sortedAddresses(spenders) {
				rec.Allowances = append(rec.Allowances, allowanceRecord{
					Token: token, Owner: owner, Spender: spender, Amount: enc.u(spenders[spender]),
				})
			}
		}
	}
	for _, token := range sortedAddresses(d.supplies) {
		rec.Supplies = append(rec.Supplies, supplyRecord{Token: token, Amount: enc.u(d.supplies[token])})
	}
	if enc.err != nil {
		return nil, enc.err
	}
	return rec, nil
}

func (rec *storeRecord) data() *snapshotData {
	d := newSnapshotData()
	d.global = GlobalBucket{
		Vault:        rec.Global.Vault,
		ACToken:      rec.Global.ACToken,
		TCToken:      rec.Global.TCToken,
		FeeToken:     rec.Global.FeeToken,
		NACcb:        decodeAmount(rec.Global.NACcb),
		NTCcb:        decodeAmount(rec.Global.NTCcb),
		ProtThrld:    decodeAmount(rec.Global.ProtThrld),
		LiqThrld:     decodeAmount(rec.Global.LiqThrld),
		LiqEnabled:   rec.Global.LiqEnabled,
		Liquidated:   rec.Global.Liquidated,
		LiquidatedAt: rec.Global.LiquidatedAt,
		Paused:       rec.Global.Paused,
	}
	rate := func(i int) *big.Int {
		if i < len(rec.Fees.Rates) {
			return decodeAmount(rec.Fees.Rates[i])
		}
		return big.NewInt(0)
	}
	d.fees = FeeParams{
		TCMintFee:             rate(0),
		TCRedeemFee:           rate(1),
		SwapTPforTPFee:        rate(2),
		SwapTPforTCFee:        rate(3),
		SwapTCforTPFee:        rate(4),
		MintTCandTPFee:        rate(5),
		RedeemTCandTPFee:      rate(6),
		FeeTokenPct:           decodeAmount(rec.Fees.FeeTokenPct),
		FeeTokenPriceProvider: rec.Fees.FeeTokenPriceProvider,
		FeeCollector:          rec.Fees.FeeCollector,
	}
	d.settlement = SettlementParams{
		Bes:                 rec.Settlement.Bes,
		LastSettlementBlock: rec.Settlement.LastSettlementBlock,
		SuccessFee:          decodeAmount(rec.Settlement.SuccessFee),
		AppreciationFactor:  decodeAmount(rec.Settlement.AppreciationFactor),
		TCInterestCollector: rec.Settlement.TCInterestCollector,
		EMABlockSpan:        rec.Settlement.EMABlockSpan,
	}
	d.queue = QueueParams{
		Address:                 rec.Queue.Address,
		MaxOperPerBatch:         rec.Queue.MaxOperPerBatch,
		MinOperWaitingBlk:       rec.Queue.MinOperWaitingBlk,
		AllowDifferentRecipient: rec.Queue.AllowDifferentRecipient,
	}
	for _, fee := range rec.Queue.ExecFees {
		d.queue.ExecFees = append(d.queue.ExecFees, decodeAmount(fee))
	}
	d.fluxSpan = rec.FluxSpan
	d.nextOperID = rec.NextOperID
	d.head = rec.Head
	d.blockHeight = rec.BlockHeight
	for _, p := range rec.Pegged {
		d.pegged = append(d.pegged, PeggedBucket{
			Token:           p.Token,
			PriceProvider:   p.PriceProvider,
			NTP:             decodeAmount(p.NTP),
			Ctarg:           decodeAmount(p.Ctarg),
			EMA:             decodeAmount(p.EMA),
			SmoothingFactor: decodeAmount(p.SmoothingFactor),
			LastEMABlock:    p.LastEMABlock,
			MintFee:         decodeAmount(p.MintFee),
			RedeemFee:       decodeAmount(p.RedeemFee),
			Interest: InterestParams{
				Tils:    decodeAmount(p.Tils),
				TilsMin: decodeAmount(p.TilsMin),
				TilsMax: decodeAmount(p.TilsMax),
				Eq:      decodeAmount(p.Eq),
				FacMin:  decodeAmount(p.FacMin),
				FacMax:  decodeAmount(p.FacMax),
				Bmin:    p.Bmin,
			},
			LastPrice:       decodeAmount(p.LastPrice),
			SettlementPrice: decodeAmount(p.SettlementPrice),
			LiqPrice:        decodeAmount(p.LiqPrice),
			Flux: flux.State{
				Absolute:           decodeAmount(p.FluxAbsolute),
				Differential:       decodeSigned(p.FluxDifferential),
				LastOperationBlock: p.FluxLastBlock,
			},
			FluxMaxAbsolute:     p.FluxMaxAbsolute,
			FluxMaxDifferential: p.FluxMaxDifferential,
		})
	}
	for _, m := range rec.Markups {
		d.markups[m.Vendor] = decodeAmount(m.Markup)
	}
	for _, o := range rec.Operations {
		amount := func(i int) *big.Int {
			if i < len(o.Amounts) {
				return decodeAmount(o.Amounts[i])
			}
			return big.NewInt(0)
		}
		op := &types.Operation{
			ID:        o.ID,
			Type:      types.OperType(o.Type),
			Sender:    o.Sender,
			Recipient: o.Recipient,
			Vendor:    o.Vendor,
			Params: types.OperParams{
				TP:     o.TP,
				TPTo:   o.TPTo,
				QTC:    amount(0),
				QTP:    amount(1),
				QACmax: amount(2),
				QACmin: amount(3),
				QTCmin: amount(4),
				QTPmin: amount(5),
			},
			ExecFee:       decodeAmount(o.ExecFee),
			QueuedAtBlock: o.QueuedAtBlock,
			State:         types.OperState(o.State),
			ProcessedAt:   o.ProcessedAt,
			FailureName:   o.FailureName,
		}
		for _, lock := range o.Locked {
			op.Locked = append(op.Locked, types.Lock{Token: lock.Token, Amount: decodeAmount(lock.Amount)})
		}
		d.operations[op.ID] = op
	}
	for _, b := range rec.Balances {
		holders, ok := d.balances[b.Token]
		if !ok {
			holders = make(map[common.Address]*big.Int)
			d.balances[b.Token] = holders
		}
		holders[b.Holder] = decodeAmount(b.Amount)
	}
	for _, a := range rec.Allowances {
		owners, ok := d.allowances[a.Token]
		if !ok {
			owners = make(map[common.Address]map[common.Address]*big.Int)
			d.allowances[a.Token] = owners
		}
		spenders, ok := owners[a.Owner]
		if !ok {
			spenders = make(map[common.Address]*big.Int)
			owners[a.Owner] = spenders
		}
		spenders[a.Spender] = decodeAmount(a.Amount)
	}
	for _, sup := range rec.Supplies {
		d.supplies[sup.Token] = decodeAmount(sup.Amount)
	}
	return d
}

// Persist writes the current state and schema version to db.
func (s *Store) Persist(db storage.Database) error {
	if db == nil {
		return fmt.Errorf("state: database must not be nil")
	}
	rec, err := s.record()
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}
	version, err := rlp.EncodeToBytes(StateVersion)
	if err != nil {
		return err
	}
	if err := db.Put(stateVersionKey, version); err != nil {
		return err
	}
	return db.Put(stateRecordKey, encoded)
}

// Load restores a store from db. A database without a stored record yields
// an empty store and false.
func Load(db storage.Database) (*Store, bool, error) {
	if db == nil {
		return nil, false, fmt.Errorf("state: database must not be nil")
	}
	if err := EnsureStateVersion(db); err != nil {
		return nil, false, err
	}
	raw, err := db.Get(stateRecordKey)
	if errors.Is(err, storage.ErrNotFound) {
		return NewStore(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec storeRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("state: decode record: %w", err)
	}
	return &Store{data: rec.data()}, true, nil
}

// EnsureStateVersion verifies that the on-disk schema version matches the
// version supported by this binary. An empty database passes.
func EnsureStateVersion(db storage.Database) error {
	raw, err := db.Get(stateVersionKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var stored uint64
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return fmt.Errorf("state: decode version: %w", err)
	}
	if stored != StateVersion {
		return fmt.Errorf("%w: on-disk=%d expected=%d", ErrStateVersionMismatch, stored, StateVersion)
	}
	return nil
}
