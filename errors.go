package vaultsdk

import (
	"errors"
	"fmt"

	"github.com/Arowolokehinde/CharmVault/prover"
	"github.com/Arowolokehinde/CharmVault/spell"
	"github.com/Arowolokehinde/CharmVault/txutils"
)

// ErrorCode identifies the failure class of a vault operation. Every error
// returned by VaultClient operations is a *Error carrying one of these.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeWalletNotConnected ErrorCode = "WALLET_NOT_CONNECTED"
	CodeInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	CodeDuplicateUtxo      ErrorCode = "DUPLICATE_UTXO"
	CodeProverUnavailable  ErrorCode = "PROVER_UNAVAILABLE"
	CodeBroadcastFailed    ErrorCode = "BROADCAST_FAILED"
	CodeVaultLocked        ErrorCode = "VAULT_LOCKED"
	CodeUnfinalizableInput ErrorCode = "UNFINALIZABLE_INPUT"
	CodeVaultNotFound      ErrorCode = "VAULT_NOT_FOUND"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// classifyError maps errors bubbling up from the collaborators to the
// operation-level taxonomy. Already-classified errors pass through
// untouched.
func classifyError(err error) *Error {
	var vaultErr *Error
	if errors.As(err, &vaultErr) {
		return vaultErr
	}

	switch {
	case errors.Is(err, spell.ErrVaultLocked):
		return wrapError(
			CodeVaultLocked, err,
			"the check-in deadline has not passed, distribution is not yet allowed",
		)
	case errors.Is(err, prover.ErrDuplicateUtxo):
		return wrapError(
			CodeDuplicateUtxo, err,
			"the selected funding UTXO was already consumed by a previous proof, "+
				"retrying will automatically select a different one",
		)
	case errors.Is(err, prover.ErrUnavailable):
		return wrapError(
			CodeProverUnavailable, err,
			"proof service unreachable or timed out, the operation must be reinitiated explicitly",
		)
	case errors.Is(err, txutils.ErrMissingInputData):
		return wrapError(CodeUnfinalizableInput, err, "missing spent-output data for signing")
	case errors.Is(err, txutils.ErrUnfinalizableInput):
		return wrapError(CodeUnfinalizableInput, err, "could not assemble witness data")
	default:
		return wrapError(CodeInternal, err, "vault operation failed")
	}
}
