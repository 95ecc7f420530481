package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the holder's
	// balance.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrInsufficientAllowance is returned when TransferFrom exceeds the
	// approved amount.
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	// ErrInvalidAmount guards against negative amounts.
	ErrInvalidAmount = errors.New("bank: invalid amount")
	// ErrStateUnavailable indicates the bank was used without a backing state.
	ErrStateUnavailable = errors.New("bank: state not configured")
)

type bankState interface {
	Balance(token, holder common.Address) *big.Int
	SetBalance(token, holder common.Address, amount *big.Int) error
	Allowance(token, owner, spender common.Address) *big.Int
	SetAllowance(token, owner, spender common.Address, amount *big.Int) error
	Supply(token common.Address) *big.Int
	SetSupply(token common.Address, amount *big.Int) error
}

// TransferHook observes every successful credit. Hooks run after the state
// mutation so they can model recipient callbacks.
type TransferHook func(token, from, to common.Address, amount *big.Int) error

// Bank implements the token primitives consumed by the protocol on top of the
// shared state store so that snapshots cover balances and buckets alike.
type Bank struct {
	state bankState
	hooks []TransferHook
}

// New constructs a bank backed by the supplied state.
func New(state bankState) *Bank {
	return &Bank{state: state}
}

// SetState swaps the backing state.
func (b *Bank) SetState(state bankState) {
	if b == nil {
		return
	}
	b.state = state
}

// AddHook registers a transfer hook.
func (b *Bank) AddHook(hook TransferHook) {
	if b == nil || hook == nil {
		return
	}
	b.hooks = append(b.hooks, hook)
}

func (b *Bank) ready() error {
	if b == nil || b.state == nil {
		return ErrStateUnavailable
	}
	return nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// BalanceOf returns holder's balance of token.
func (b *Bank) BalanceOf(token, holder common.Address) *big.Int {
	if b.ready() != nil {
		return big.NewInt(0)
	}
	return b.state.Balance(token, holder)
}

// Allowance returns the amount spender may move from owner.
func (b *Bank) Allowance(token, owner, spender common.Address) *big.Int {
	if b.ready() != nil {
		return big.NewInt(0)
	}
	return b.state.Allowance(token, owner, spender)
}

// TotalSupply returns the outstanding supply of token.
func (b *Bank) TotalSupply(token common.Address) *big.Int {
	if b.ready() != nil {
		return big.NewInt(0)
	}
	return b.state.Supply(token)
}

// Approve sets the allowance granted by owner to spender.
func (b *Bank) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	return b.state.SetAllowance(token, owner, spender, amount)
}

// Mint credits amount of token to holder and grows the supply.
func (b *Bank) Mint(token, to common.Address, amount *big.Int) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	supply := new(big.Int).Add(b.state.Supply(token), amount)
	if err := b.state.SetSupply(token, supply); err != nil {
		return err
	}
	if err := b.credit(token, to, amount); err != nil {
		return err
	}
	return b.notify(token, common.Address{}, to, amount)
}

// Burn debits amount of token from holder and shrinks the supply.
func (b *Bank) Burn(token, from common.Address, amount *big.Int) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := b.debit(token, from, amount); err != nil {
		return err
	}
	supply := new(big.Int).Sub(b.state.Supply(token), amount)
	if supply.Sign() < 0 {
		supply = big.NewInt(0)
	}
	return b.state.SetSupply(token, supply)
}

// Transfer moves amount of token from one holder to another.
func (b *Bank) Transfer(token, from, to common.Address, amount *big.Int) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := b.debit(token, from, amount); err != nil {
		return err
	}
	if err := b.credit(token, to, amount); err != nil {
		return err
	}
	return b.notify(token, from, to, amount)
}

// TransferFrom moves amount of token from owner to recipient on behalf of
// spender, consuming allowance.
func (b *Bank) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	allowance := b.state.Allowance(token, owner, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s want %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := b.Transfer(token, owner, to, amount); err != nil {
		return err
	}
	return b.state.SetAllowance(token, owner, spender, allowance.Sub(allowance, amount))
}

func (b *Bank) debit(token, from common.Address, amount *big.Int) error {
	balance := b.state.Balance(token, from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s want %s", ErrInsufficientBalance, balance, amount)
	}
	return b.state.SetBalance(token, from, balance.Sub(balance, amount))
}

func (b *Bank) credit(token, to common.Address, amount *big.Int) error {
	balance := b.state.Balance(token, to)
	return b.state.SetBalance(token, to, balance.Add(balance, amount))
}

func (b *Bank) notify(token, from, to common.Address, amount *big.Int) error {
	for _, hook := range b.hooks {
		if err := hook(token, from, to, new(big.Int).Set(amount)); err != nil {
			return err
		}
	}
	return nil
}
