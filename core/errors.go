package core

import (
	"errors"
	"fmt"
)

var (
	ErrWalletUnavailable    = errors.New("wallet is not available")
	ErrClientUnavailable    = errors.New("clearnode client is not available")
	ErrSigningRejected      = errors.New("signing request was rejected")
	ErrSessionRejected      = errors.New("clearnode rejected the session")
	ErrTransport            = errors.New("clearnode transport failure")
	ErrAttemptAborted       = errors.New("authentication attempt was aborted")
	ErrSessionKeyNotFound   = errors.New("session key not found")
	ErrStoreOperationFailed = errors.New("store operation failed")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token has expired")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// ErrorKind classifies authentication failures
type ErrorKind int

const (
	// KindPrecondition means the wallet or network client is unavailable
	KindPrecondition ErrorKind = iota + 1
	// KindUserRejected means the wallet holder declined to sign
	KindUserRejected
	// KindTransport covers connect/authenticate network failures and timeouts
	KindTransport
	// KindRemoteRejected means the ClearNode refused the session
	KindRemoteRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindUserRejected:
		return "user_rejected"
	case KindTransport:
		return "transport"
	case KindRemoteRejected:
		return "remote_rejected"
	default:
		return "unknown"
	}
}

// Error is an authentication failure tagged with its kind and the step
// that produced it
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation name
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-running the whole sequence may succeed
// without user action. Retries are never automatic.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport
}

// KindOf returns the kind of the first *Error in err's chain, or 0
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
