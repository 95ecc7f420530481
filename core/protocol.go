package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"pegcore/config"
	"pegcore/core/events"
	"pegcore/core/state"
	"pegcore/native/bank"
	nativecommon "pegcore/native/common"
	"pegcore/native/governance"
	"pegcore/native/ledger"
	"pegcore/native/oracle"
	"pegcore/native/queue"
	"pegcore/observability"
	"pegcore/storage"
)

var errUnknownFeed = errors.New("protocol: no in-process feed registered at address")

// Protocol wires the store, token primitives, oracles, ledger and queue into
// one unit. Mutations are serialised; queries may run concurrently.
type Protocol struct {
	mu      sync.RWMutex
	store   *state.Store
	bank    *bank.Bank
	oracles *oracle.Registry
	feeds   map[common.Address]*oracle.Feed
	auth    *governance.AllowList
	ledger  *ledger.Ledger
	queue   *queue.Queue
	logger  *slog.Logger
}

// FluxProviderAddress derives the address publishing a flux limit of token.
// kind is "absolute" or "differential".
func FluxProviderAddress(token common.Address, kind string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("pegcore/flux/"+kind), token.Bytes()))
}

// NewProtocol builds a protocol from params. A nil or empty store is
// initialised from params; a restored store keeps its buckets and only gets
// its in-process providers re-registered.
func NewProtocol(params config.Parameters, store *state.Store, logger *slog.Logger, emitters ...events.Emitter) (*Protocol, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = state.NewStore()
	}
	fresh := store.Queue().Address == (common.Address{})

	p := &Protocol{
		store:   store,
		bank:    bank.New(store),
		oracles: oracle.NewRegistry(),
		feeds:   make(map[common.Address]*oracle.Feed),
		auth:    governance.NewAllowList(),
		ledger:  ledger.New(),
		queue:   queue.New(),
		logger:  logger,
	}
	for _, changer := range params.Changers {
		p.auth.Grant(changer)
	}
	for _, executor := range params.Executors {
		p.auth.Grant(executor, "queue.execute")
	}

	emitter := events.Fanout(append([]events.Emitter{observability.Events()}, emitters...))
	p.ledger.SetState(store)
	p.ledger.SetOracles(p.oracles)
	p.ledger.SetTokens(p.bank)
	p.ledger.SetAuthorizer(p.auth)
	p.ledger.SetEmitter(emitter)
	p.ledger.SetLogger(logger.With("module", "ledger"))

	p.queue.SetState(store)
	if err := p.queue.SetExecutor(p.ledger); err != nil {
		return nil, err
	}
	p.queue.SetTokens(p.bank)
	p.queue.SetAuthorizer(p.auth)
	p.queue.SetEmitter(emitter)
	p.queue.SetLogger(logger.With("module", "queue"))
	p.queue.SetMetrics(observability.Queue())

	if params.Fees.FeeTokenPriceProvider != (common.Address{}) && params.FeeTokenPrice != nil && params.FeeTokenPrice.Sign() > 0 {
		p.registerFeed(params.Fees.FeeTokenPriceProvider, params.FeeTokenPrice)
	}
	for _, tp := range params.Pegged {
		p.registerFeed(tp.PriceProvider, tp.Price)
		p.oracles.RegisterData(FluxProviderAddress(tp.Token, "absolute"), oracle.NewValue(tp.FluxMaxAbsolute))
		p.oracles.RegisterData(FluxProviderAddress(tp.Token, "differential"), oracle.NewValue(tp.FluxMaxDifferential))
	}

	if fresh {
		if err := p.initialise(params); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Protocol) registerFeed(addr common.Address, price *big.Int) {
	feed := oracle.NewFeed(price)
	p.feeds[addr] = feed
	p.oracles.RegisterPrice(addr, feed)
}

// initialise seeds a fresh store. Pegged tokens are added through the ledger
// with a temporary grant so the usual validation applies.
func (p *Protocol) initialise(params config.Parameters) error {
	p.store.PutGlobal(params.Global)
	p.store.PutFees(params.Fees)
	p.store.PutSettlement(params.Settlement)
	p.store.PutQueue(params.Queue)
	p.store.SetFluxDecayBlockSpan(params.FluxDecayBlockSpan)

	bootstrap := params.Queue.Address
	p.auth.Grant(bootstrap, "ledger.addPeggedToken")
	defer p.auth.Revoke(bootstrap)
	for i, tp := range params.Pegged {
		if _, err := p.ledger.AddPeggedToken(bootstrap, ledger.PeggedTokenParams{
			Token:               tp.Token,
			PriceProvider:       tp.PriceProvider,
			Ctarg:               tp.Ctarg,
			SmoothingFactor:     tp.SmoothingFactor,
			MintFee:             tp.MintFee,
			RedeemFee:           tp.RedeemFee,
			Interest:            tp.Interest,
			FluxMaxAbsolute:     FluxProviderAddress(tp.Token, "absolute"),
			FluxMaxDifferential: FluxProviderAddress(tp.Token, "differential"),
		}); err != nil {
			return fmt.Errorf("protocol: pegged token %d: %w", i, err)
		}
	}
	p.logger.Info("protocol initialised", "peggedTokens", len(params.Pegged))
	return nil
}

// View runs fn with shared access to the ledger and queue.
func (p *Protocol) View(fn func(l *ledger.Ledger, q *queue.Queue) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fn(p.ledger, p.queue)
}

// Update runs fn with exclusive access to the ledger, queue and token
// primitives.
func (p *Protocol) Update(fn func(l *ledger.Ledger, q *queue.Queue, b *bank.Bank) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.ledger, p.queue, p.bank)
}

// Submit queues a request.
func (p *Protocol) Submit(req queue.Request) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Submit(req)
}

// Execute runs one batch and publishes the resulting ledger gauges.
func (p *Protocol) Execute(executor, rewardRecipient common.Address) (*queue.BatchReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	report, err := p.queue.Execute(executor, rewardRecipient)
	p.publish()
	return report, err
}

// Advance sets the block height seen by the protocol.
func (p *Protocol) Advance(height uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.SetBlockHeight(height)
}

// SetPrice publishes a new price on an in-process feed. A non-positive price
// marks the feed invalid.
func (p *Protocol) SetPrice(provider common.Address, price *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	feed, ok := p.feeds[provider]
	if !ok {
		return fmt.Errorf("%w %s", errUnknownFeed, provider.Hex())
	}
	feed.Set(price)
	return nil
}

// Height returns the current block height.
func (p *Protocol) Height() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store.BlockHeight()
}

// Persist writes the store to db.
func (p *Protocol) Persist(db storage.Database) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store.Persist(db)
}

func (p *Protocol) publish() {
	cov, err := p.ledger.Coverage()
	if err != nil {
		return
	}
	price, err := p.ledger.TCPrice()
	if err != nil {
		return
	}
	global := p.store.Global()
	observability.Ledger().Publish(observability.LedgerSnapshot{
		Coverage:   nativecommon.Float(cov),
		TCPrice:    nativecommon.Float(price),
		Collateral: nativecommon.Float(global.NACcb),
		Liquidated: global.Liquidated,
		Paused:     global.Paused,
	})
}
