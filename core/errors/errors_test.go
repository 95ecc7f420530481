package errors

import (
	stderrors "errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectorsAreUnique(t *testing.T) {
	require.Len(t, registry, 24)
	names := make(map[string]bool, len(registry))
	for selector, f := range registry {
		require.Equal(t, selector, f.Selector, f.Name)
		require.False(t, names[f.Name], f.Name)
		names[f.Name] = true
	}
	_, ok := registry[[4]byte{0xde, 0xad, 0xbe, 0xef}]
	require.False(t, ok)
}

func TestFailureNameAndArgs(t *testing.T) {
	require.Equal(t, "InvalidValue", ErrInvalidValue.Name)
	require.Equal(t, "InvalidValue", ErrInvalidValue.Error())

	withArgs := ErrLowCoverage.With(big.NewInt(3), nil)
	require.Equal(t, "LowCoverage(3,0)", withArgs.Error())
	require.Empty(t, ErrLowCoverage.Args)
	require.Equal(t, ErrLowCoverage.SelectorHex(), withArgs.SelectorHex())
	require.Len(t, withArgs.SelectorHex(), 10)
}

func TestWithCopiesArguments(t *testing.T) {
	arg := big.NewInt(7)
	f := ErrQtyBelowMinimum.With(arg)
	arg.SetInt64(9)
	require.Equal(t, "QtyBelowMinimum(7)", f.Error())
}

func TestIsMatchesBySelector(t *testing.T) {
	err := fmt.Errorf("queue: %w", ErrInsufficientQacSent.With(big.NewInt(1), big.NewInt(2)))
	require.ErrorIs(t, err, ErrInsufficientQacSent)
	require.NotErrorIs(t, err, ErrQtyBelowMinimum)
	require.False(t, stderrors.Is(stderrors.New("other"), ErrInvalidValue))
}

func TestAsFailureAndClass(t *testing.T) {
	wrapped := fmt.Errorf("ledger: %w", ErrPaused)
	f, ok := AsFailure(wrapped)
	require.True(t, ok)
	require.Equal(t, "Paused", f.Name)
	require.Equal(t, ClassSystemic, ClassOf(wrapped))

	unknown := define("Unregistered()", ClassAdmission)
	_, ok = AsFailure(unknown)
	require.False(t, ok)
	require.Equal(t, ClassUnclassified, ClassOf(unknown))
	require.Equal(t, ClassUnclassified, ClassOf(stderrors.New("boom")))

	require.Equal(t, "validation", ClassValidation.String())
	require.Equal(t, "slippage", ClassOf(ErrInsufficientQtpSent).String())
	require.Equal(t, "unknown", Class(0).String())
}
