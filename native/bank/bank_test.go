package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/core/state"
)

var (
	token = common.HexToAddress("0x00000000000000000000000000000000000000ac")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestMintTransferBurn(t *testing.T) {
	b := New(state.NewStore())
	if err := b.Mint(token, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.Transfer(token, alice, bob, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := b.Burn(token, bob, big.NewInt(10)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := b.BalanceOf(token, alice); got.Int64() != 70 {
		t.Fatalf("alice balance: %s", got)
	}
	if got := b.BalanceOf(token, bob); got.Int64() != 20 {
		t.Fatalf("bob balance: %s", got)
	}
	if got := b.TotalSupply(token); got.Int64() != 90 {
		t.Fatalf("supply: %s", got)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	b := New(state.NewStore())
	if err := b.Transfer(token, alice, bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	b := New(state.NewStore())
	if err := b.Mint(token, alice, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.TransferFrom(token, bob, alice, bob, big.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}
	if err := b.Approve(token, alice, bob, big.NewInt(25)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := b.TransferFrom(token, bob, alice, bob, big.NewInt(10)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := b.Allowance(token, alice, bob); got.Int64() != 15 {
		t.Fatalf("allowance: %s", got)
	}
}

func TestHooksObserveCredits(t *testing.T) {
	b := New(state.NewStore())
	var seen []*big.Int
	b.AddHook(func(_, _, to common.Address, amount *big.Int) error {
		if to == bob {
			seen = append(seen, amount)
		}
		return nil
	})
	if err := b.Mint(token, alice, big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.Transfer(token, alice, bob, big.NewInt(5)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(seen) != 1 || seen[0].Int64() != 5 {
		t.Fatalf("unexpected hook calls: %v", seen)
	}

	hookErr := errors.New("hook failed")
	b.AddHook(func(common.Address, common.Address, common.Address, *big.Int) error { return hookErr })
	if err := b.Mint(token, alice, big.NewInt(1)); !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}
}

func TestBankWithoutState(t *testing.T) {
	var b *Bank
	if err := b.Mint(token, alice, big.NewInt(1)); !errors.Is(err, ErrStateUnavailable) {
		t.Fatalf("expected state unavailable, got %v", err)
	}
	if got := b.BalanceOf(token, alice); got.Sign() != 0 {
		t.Fatalf("expected zero balance")
	}
}
