package flux

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "pegcore/core/errors"
	"pegcore/native/common"
	"pegcore/native/oracle"
)

func limits(maxAbs, maxDiff int64) Limits {
	return Limits{
		MaxAbsolute:     oracle.NewValue(common.Units(maxAbs)),
		MaxDifferential: oracle.NewValue(common.Units(maxDiff)),
	}
}

func mustCapacitor(t *testing.T, span uint64) *Capacitor {
	t.Helper()
	c, err := NewCapacitor(span)
	if err != nil {
		t.Fatalf("new capacitor: %v", err)
	}
	return c
}

func TestNewCapacitorRejectsZeroSpan(t *testing.T) {
	if _, err := NewCapacitor(0); !errors.Is(err, coreerrors.ErrInvalidDecaySpan) {
		t.Fatalf("expected invalid decay span, got %v", err)
	}
}

func TestDecayLinearWithinSpan(t *testing.T) {
	c := mustCapacitor(t, 2880)
	s := State{Absolute: common.Units(6000), Differential: common.Units(-6000), LastOperationBlock: 100}
	got := c.Decay(s, 388)
	if got.Absolute.Cmp(common.Units(5400)) != 0 {
		t.Fatalf("absolute: want 5400e18 got %s", got.Absolute)
	}
	if got.Differential.Cmp(common.Units(-5400)) != 0 {
		t.Fatalf("differential: want -5400e18 got %s", got.Differential)
	}
	if got.LastOperationBlock != 388 {
		t.Fatalf("expected block stamp 388, got %d", got.LastOperationBlock)
	}
	if s.Absolute.Cmp(common.Units(6000)) != 0 {
		t.Fatalf("input state mutated")
	}
}

func TestDecayIdempotentWithinBlock(t *testing.T) {
	c := mustCapacitor(t, 2880)
	s := State{Absolute: common.Units(6000), Differential: common.Units(6000)}
	once := c.Decay(s, 288)
	twice := c.Decay(once, 288)
	if !once.Equal(twice) {
		t.Fatalf("decay not idempotent: %+v vs %+v", once, twice)
	}
}

func TestDecayPastSpanClears(t *testing.T) {
	c := mustCapacitor(t, 10)
	s := State{Absolute: common.Units(50), Differential: common.Units(-20)}
	got := c.Decay(s, 10)
	if got.Absolute.Sign() != 0 || got.Differential.Sign() != 0 {
		t.Fatalf("expected zero accumulators, got %+v", got)
	}
}

func TestApplyAdmitsWithinLimits(t *testing.T) {
	c := mustCapacitor(t, 100)
	next, err := c.Apply(State{}, common.Units(500), 1, limits(1000, 800))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Absolute.Cmp(common.Units(500)) != 0 || next.Differential.Cmp(common.Units(500)) != 0 {
		t.Fatalf("unexpected accumulators %+v", next)
	}
	next, err = c.Apply(next, common.Units(-300), 1, limits(1000, 800))
	if err != nil {
		t.Fatalf("apply redeem: %v", err)
	}
	if next.Absolute.Cmp(common.Units(800)) != 0 || next.Differential.Cmp(common.Units(200)) != 0 {
		t.Fatalf("unexpected accumulators after redeem %+v", next)
	}
}

func TestApplyDenialLeavesStateUntouched(t *testing.T) {
	c := mustCapacitor(t, 100)
	prev := State{Absolute: common.Units(900), Differential: common.Units(900), LastOperationBlock: 5}
	got, err := c.Apply(prev, common.Units(200), 5, limits(1000, 1000))
	if !errors.Is(err, coreerrors.ErrMaxFluxCapacitorReached) {
		t.Fatalf("expected flux denial, got %v", err)
	}
	if !got.Equal(prev) {
		t.Fatalf("state changed on denial: %+v", got)
	}
}

func TestApplyDifferentialLimit(t *testing.T) {
	c := mustCapacitor(t, 100)
	_, err := c.Apply(State{}, common.Units(-600), 1, limits(1000, 500))
	if !errors.Is(err, coreerrors.ErrMaxFluxCapacitorReached) {
		t.Fatalf("expected differential denial, got %v", err)
	}
}

func TestMissingProviderData(t *testing.T) {
	c := mustCapacitor(t, 100)
	missing := oracle.NewValue(nil)
	l := Limits{MaxAbsolute: missing, MaxDifferential: oracle.NewValue(common.Units(1))}
	prev := State{Absolute: big.NewInt(7)}
	got, err := c.Apply(prev, common.Units(1), 1, l)
	if !errors.Is(err, coreerrors.ErrMissingProviderData) {
		t.Fatalf("expected missing provider data, got %v", err)
	}
	if !got.Equal(prev) {
		t.Fatalf("state changed on missing data")
	}
	if _, err := c.MaxQtyToMint(State{}, 1, Limits{}); !errors.Is(err, coreerrors.ErrMissingProviderData) {
		t.Fatalf("expected missing provider data from query, got %v", err)
	}
}

func TestMaxQtyQueries(t *testing.T) {
	c := mustCapacitor(t, 100)
	s := State{Absolute: common.Units(400), Differential: common.Units(300)}
	l := limits(1000, 500)
	mint, err := c.MaxQtyToMint(s, 0, l)
	if err != nil {
		t.Fatalf("max mint: %v", err)
	}
	if mint.Cmp(common.Units(200)) != 0 {
		t.Fatalf("max mint: want 200e18 got %s", mint)
	}
	redeem, err := c.MaxQtyToRedeem(s, 0, l)
	if err != nil {
		t.Fatalf("max redeem: %v", err)
	}
	if redeem.Cmp(common.Units(600)) != 0 {
		t.Fatalf("max redeem: want 600e18 got %s", redeem)
	}
	if s.Absolute.Cmp(common.Units(400)) != 0 {
		t.Fatalf("query mutated state")
	}
}
