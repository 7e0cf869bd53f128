// Package chainerr defines the sealed taxonomy of rejection and failure
// kinds used across validation, the mempool, the chain and the P2P layer.
// Every kind carries a stable wire code so a REJECT message can name the
// reason without leaking internal error text.
package chainerr

import (
	"errors"
	"fmt"
)

// Code is the stable wire identifier for an Error's Kind.
type Code uint16

const (
	CodeUnknown Code = iota
	CodeInvalidSignature
	CodeInsufficientFunds
	CodeDoubleSpend
	CodeTxSizeExceeded
	CodeMempoolFull
	CodeTransactionConflict
	CodeInvalidBlock
	CodeCertificateDuplicate
	CodeCertificateExhausted
	CodeCompensationNotCertified
	CodeCompensationAlreadyUsed
	CodePeerTimeout
	CodePeerConnectionError
	CodeInvalidMessage
	CodeReorgAborted
	CodeStorageError
	CodeInvalidAddress
	CodeUTXOExists
	CodeUTXONotFound
	CodeCryptoError
	CodeAccountNotFound
)

var codeNames = map[Code]string{
	CodeUnknown:                  "Unknown",
	CodeInvalidSignature:         "InvalidSignature",
	CodeInsufficientFunds:        "InsufficientFunds",
	CodeDoubleSpend:              "DoubleSpend",
	CodeTxSizeExceeded:           "TxSizeExceeded",
	CodeMempoolFull:              "MempoolFull",
	CodeTransactionConflict:      "TransactionConflict",
	CodeInvalidBlock:             "InvalidBlock",
	CodeCertificateDuplicate:     "CertificateDuplicate",
	CodeCertificateExhausted:     "CertificateExhausted",
	CodeCompensationNotCertified: "CompensationNotCertified",
	CodeCompensationAlreadyUsed:  "CompensationAlreadyUsed",
	CodePeerTimeout:              "PeerTimeout",
	CodePeerConnectionError:      "PeerConnectionError",
	CodeInvalidMessage:           "InvalidMessage",
	CodeReorgAborted:             "ReorgAborted",
	CodeStorageError:             "StorageError",
	CodeInvalidAddress:           "InvalidAddress",
	CodeUTXOExists:               "UTXOExists",
	CodeUTXONotFound:             "UTXONotFound",
	CodeCryptoError:              "CryptoError",
	CodeAccountNotFound:          "AccountNotFound",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Unknown"
}

// Error is the concrete error type every component returns for a sealed
// rejection kind. It wraps an optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, chainerr.New(CodeX, "")) to match on Code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New constructs a sealed error of the given kind.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs a sealed error of the given kind around an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the wire code of err, or CodeUnknown if err is not (or
// does not wrap) a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
