package oracle

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// PriceProvider is the Price Oracle Adapter consumed by the ledger. A result
// with valid=false must never be trusted.
type PriceProvider interface {
	Peek() (*big.Int, bool)
}

// DataProvider exposes a single governance-maintained value such as a flux
// capacitor limit. Deprecation permanently reports hasData=false.
type DataProvider interface {
	GetData() (*big.Int, bool)
}

// Feed is an in-process PriceProvider whose price is pushed by an operator or
// test.
type Feed struct {
	mu         sync.RWMutex
	price      *big.Int
	valid      bool
	deprecated bool
}

// NewFeed constructs a feed reporting the supplied price as valid.
func NewFeed(price *big.Int) *Feed {
	f := &Feed{}
	f.Set(price)
	return f
}

// Set publishes a new price. Non-positive prices mark the feed invalid.
func (f *Feed) Set(price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if price == nil || price.Sign() <= 0 {
		f.price = nil
		f.valid = false
		return
	}
	f.price = new(big.Int).Set(price)
	f.valid = true
}

// Invalidate marks the current price stale until the next Set.
func (f *Feed) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = false
}

// Deprecate permanently disables the feed.
func (f *Feed) Deprecate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deprecated = true
}

// Peek implements PriceProvider.
func (f *Feed) Peek() (*big.Int, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.deprecated || !f.valid || f.price == nil {
		return nil, false
	}
	return new(big.Int).Set(f.price), true
}

// Value is an in-process DataProvider.
type Value struct {
	mu         sync.RWMutex
	value      *big.Int
	deprecated bool
}

// NewValue constructs a provider reporting v.
func NewValue(v *big.Int) *Value {
	out := &Value{}
	out.Set(v)
	return out
}

// Set updates the reported value.
func (v *Value) Set(value *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if value == nil {
		v.value = nil
		return
	}
	v.value = new(big.Int).Set(value)
}

// Deprecate permanently reports no data.
func (v *Value) Deprecate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deprecated = true
}

// GetData implements DataProvider.
func (v *Value) GetData() (*big.Int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.deprecated || v.value == nil {
		return nil, false
	}
	return new(big.Int).Set(v.value), true
}

// Aggregator consults providers in priority order and returns the first
// valid price.
type Aggregator struct {
	providers []PriceProvider
}

// NewAggregator constructs an aggregator over the supplied providers.
func NewAggregator(providers ...PriceProvider) *Aggregator {
	return &Aggregator{providers: append([]PriceProvider{}, providers...)}
}

// Peek implements PriceProvider.
func (a *Aggregator) Peek() (*big.Int, bool) {
	if a == nil {
		return nil, false
	}
	for _, p := range a.providers {
		if p == nil {
			continue
		}
		if price, ok := p.Peek(); ok && price != nil && price.Sign() > 0 {
			return price, true
		}
	}
	return nil, false
}

// Registry resolves provider addresses recorded in state to live providers.
type Registry struct {
	mu     sync.RWMutex
	prices map[common.Address]PriceProvider
	data   map[common.Address]DataProvider
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		prices: make(map[common.Address]PriceProvider),
		data:   make(map[common.Address]DataProvider),
	}
}

// RegisterPrice binds a price provider to addr.
func (r *Registry) RegisterPrice(addr common.Address, p PriceProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[addr] = p
}

// RegisterData binds a data provider to addr.
func (r *Registry) RegisterData(addr common.Address, p DataProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[addr] = p
}

// Price resolves the price provider registered at addr.
func (r *Registry) Price(addr common.Address) (PriceProvider, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prices[addr]
	return p, ok && p != nil
}

// Data resolves the data provider registered at addr.
func (r *Registry) Data(addr common.Address) (DataProvider, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.data[addr]
	return p, ok && p != nil
}

// PeekAt reads the price registered at addr; unknown addresses are invalid.
func (r *Registry) PeekAt(addr common.Address) (*big.Int, bool) {
	p, ok := r.Price(addr)
	if !ok {
		return nil, false
	}
	return p.Peek()
}

// DataAt reads the value registered at addr; unknown addresses report no data.
func (r *Registry) DataAt(addr common.Address) (*big.Int, bool) {
	p, ok := r.Data(addr)
	if !ok {
		return nil, false
	}
	return p.GetData()
}
