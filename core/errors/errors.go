package errors

import (
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Class groups failures by how the queue and callers react to them.
type Class uint8

const (
	// ClassValidation failures are rejected at submission; nothing is locked.
	ClassValidation Class = iota + 1
	// ClassAdmission failures are rejected at execution and refunded.
	ClassAdmission
	// ClassSlippage failures are caller bounds that were not met at execution.
	ClassSlippage
	// ClassSystemic failures halt mutating operations until governance acts.
	ClassSystemic
	// ClassUnclassified covers panics and unrecognised errors.
	ClassUnclassified
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAdmission:
		return "admission"
	case ClassSlippage:
		return "slippage"
	case ClassSystemic:
		return "systemic"
	case ClassUnclassified:
		return "unclassified"
	default:
		return "unknown"
	}
}

// Failure is a typed protocol error identified by a four byte selector derived
// from its signature, mirroring ABI custom errors.
type Failure struct {
	Name      string
	Signature string
	Selector  [4]byte
	Class     Class
	Args      []*big.Int
}

func define(signature string, class Class) *Failure {
	name := signature
	if idx := strings.IndexByte(signature, '('); idx >= 0 {
		name = signature[:idx]
	}
	f := &Failure{Name: name, Signature: signature, Class: class}
	copy(f.Selector[:], ethcrypto.Keccak256([]byte(signature))[:4])
	return f
}

// Error renders the failure name with its arguments.
func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, len(f.Args))
	for i, arg := range f.Args {
		if arg == nil {
			parts[i] = "0"
			continue
		}
		parts[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(parts, ","))
}

// Is matches failures by selector so instances carrying arguments compare
// equal to the package level definitions.
func (f *Failure) Is(target error) bool {
	var other *Failure
	if !stderrors.As(target, &other) || other == nil || f == nil {
		return false
	}
	return f.Selector == other.Selector
}

// With returns a copy of the failure carrying the supplied arguments.
func (f *Failure) With(args ...*big.Int) *Failure {
	clone := *f
	clone.Args = make([]*big.Int, len(args))
	for i, arg := range args {
		if arg != nil {
			clone.Args[i] = new(big.Int).Set(arg)
		}
	}
	return &clone
}

// SelectorHex renders the selector as a 0x prefixed hex string.
func (f *Failure) SelectorHex() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("0x%x", f.Selector[:])
}

// Validation errors.
var (
	ErrInvalidValue          = define("InvalidValue()", ClassValidation)
	ErrInvalidAddress        = define("InvalidAddress()", ClassValidation)
	ErrRecipientMustBeSender = define("RecipientMustBeSender()", ClassValidation)
	ErrInsufficientFunds     = define("InsufficientFunds(uint256,uint256)", ClassValidation)
	ErrInvalidOperType       = define("InvalidOperType(uint8)", ClassValidation)
	ErrInvalidPeggedToken    = define("InvalidPeggedToken(uint256)", ClassValidation)
	ErrPeggedTokenExists     = define("PeggedTokenAlreadyAdded()", ClassValidation)
	ErrNotAuthorizedChanger  = define("NotAuthorizedChanger()", ClassValidation)
	ErrOnlyQueue             = define("OnlyQueue()", ClassValidation)
	ErrInvalidDecaySpan      = define("InvalidFluxCapacitorDecayFactor()", ClassValidation)
)

// Admission errors.
var (
	ErrLowCoverage             = define("LowCoverage(uint256,uint256)", ClassAdmission)
	ErrMaxFluxCapacitorReached = define("MaxFluxCapacitorReached()", ClassAdmission)
	ErrMissingProviderData     = define("MissingProviderData()", ClassAdmission)
	ErrInvalidPriceProvider    = define("InvalidPriceProvider()", ClassAdmission)
	ErrInsufficientTPtoMint    = define("InsufficientTPtoMint(uint256,uint256)", ClassAdmission)
	ErrInsufficientTCtoRedeem  = define("InsufficientTCtoRedeem(uint256,uint256)", ClassAdmission)
	ErrTransferFailed          = define("TransferFailed()", ClassAdmission)
)

// Slippage errors.
var (
	ErrInsufficientQacSent = define("InsufficientQacSent(uint256,uint256)", ClassSlippage)
	ErrQtyBelowMinimum     = define("QtyBelowMinimum(uint256,uint256)", ClassSlippage)
	ErrInsufficientQtpSent = define("InsufficientQtpSent(uint256,uint256)", ClassSlippage)
)

// Systemic errors.
var (
	ErrLiquidated         = define("Liquidated()", ClassSystemic)
	ErrOnlyWhenLiquidated = define("OnlyWhenLiquidated()", ClassSystemic)
	ErrPaused             = define("Paused()", ClassSystemic)
	ErrReentrancyGuard    = define("ReentrancyGuard()", ClassSystemic)
)

var registry = map[[4]byte]*Failure{}

func init() {
	for _, f := range []*Failure{
		ErrInvalidValue, ErrInvalidAddress, ErrRecipientMustBeSender, ErrInsufficientFunds,
		ErrInvalidOperType, ErrInvalidPeggedToken, ErrPeggedTokenExists, ErrNotAuthorizedChanger,
		ErrOnlyQueue, ErrInvalidDecaySpan,
		ErrLowCoverage, ErrMaxFluxCapacitorReached, ErrMissingProviderData, ErrInvalidPriceProvider,
		ErrInsufficientTPtoMint, ErrInsufficientTCtoRedeem, ErrTransferFailed,
		ErrInsufficientQacSent, ErrQtyBelowMinimum, ErrInsufficientQtpSent,
		ErrLiquidated, ErrOnlyWhenLiquidated, ErrPaused, ErrReentrancyGuard,
	} {
		registry[f.Selector] = f
	}
}

// AsFailure extracts a recognised typed failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if !stderrors.As(err, &f) || f == nil {
		return nil, false
	}
	if _, known := registry[f.Selector]; !known {
		return nil, false
	}
	return f, true
}

// ClassOf reports the class of err, defaulting to ClassUnclassified.
func ClassOf(err error) Class {
	if f, ok := AsFailure(err); ok {
		return f.Class
	}
	return ClassUnclassified
}
