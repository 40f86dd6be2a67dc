package ledger

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected operation.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindPrecondition  ErrorKind = "precondition"
	KindAuthorization ErrorKind = "authorization"
	KindArithmetic    ErrorKind = "arithmetic"
	KindNotFound      ErrorKind = "not_found"
	KindConflict      ErrorKind = "conflict"
)

// Error is a typed ledger failure. Codes 6000-6013 match the deployed
// program's error codes; later codes are local to this ledger.
//
// Two Errors are equal under errors.Is when their codes match, so callers
// compare against the exported values regardless of Detail.
type Error struct {
	Kind    ErrorKind
	Code    uint32
	Name    string
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s: %s", e.Name, e.Code, e.Message, e.Detail)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// withDetail returns a copy of e carrying a formatted detail.
func (e *Error) withDetail(format string, args ...any) *Error {
	c := *e
	c.Detail = fmt.Sprintf(format, args...)
	return &c
}

func newError(kind ErrorKind, code uint32, name, msg string) *Error {
	return &Error{Kind: kind, Code: code, Name: name, Message: msg}
}

var (
	ErrNameTooLong             = newError(KindValidation, 6000, "NameTooLong", "Name too long (max 50 characters)")
	ErrSymbolTooLong           = newError(KindValidation, 6001, "SymbolTooLong", "Symbol too long (max 10 characters)")
	ErrIpfsHashTooLong         = newError(KindValidation, 6002, "IpfsHashTooLong", "IPFS hash too long (max 100 characters)")
	ErrUsernameTooLong         = newError(KindValidation, 6003, "UsernameTooLong", "Username too long (max 32 characters)")
	ErrUsernameTooShort        = newError(KindValidation, 6004, "UsernameTooShort", "Username too short (min 3 characters)")
	ErrUnauthorized            = newError(KindAuthorization, 6005, "Unauthorized", "Unauthorized")
	ErrNotADeveloper           = newError(KindPrecondition, 6006, "NotADeveloper", "Not a developer (must use CHAINPROOFDEV referral code)")
	ErrInvalidStakeAmount      = newError(KindValidation, 6007, "InvalidStakeAmount", "Invalid stake amount")
	ErrNoStakeFound            = newError(KindPrecondition, 6008, "NoStakeFound", "No stake found")
	ErrUnstakeAlreadyRequested = newError(KindPrecondition, 6009, "UnstakeAlreadyRequested", "Unstake already requested")
	ErrUnstakeNotRequested     = newError(KindPrecondition, 6010, "UnstakeNotRequested", "Unstake not requested yet")
	ErrCooldownNotComplete     = newError(KindPrecondition, 6011, "CooldownNotComplete", "Cooldown period not complete (48 hours required)")
	ErrDistributionTooEarly    = newError(KindPrecondition, 6012, "DistributionTooEarly", "Distribution too early (must wait for interval)")
	ErrInsufficientPoolBalance = newError(KindPrecondition, 6013, "InsufficientPoolBalance", "Insufficient pool balance")

	ErrArithmeticOverflow  = newError(KindArithmetic, 6014, "ArithmeticOverflow", "Arithmetic overflow")
	ErrReferralCodeTooLong = newError(KindValidation, 6015, "ReferralCodeTooLong", "Referral code too long (max 32 characters)")
	ErrAlreadyInitialized  = newError(KindConflict, 6016, "AlreadyInitialized", "Account already initialized")
	ErrNotInitialized      = newError(KindNotFound, 6017, "NotInitialized", "Account not initialized")
)

// errNilStore is returned by operations on an engine without an account store.
var errNilStore = errors.New("ledger engine: account store not configured")

// AsError extracts the typed ledger error from err, if any.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
