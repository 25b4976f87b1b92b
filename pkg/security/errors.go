package security

import (
	"errors"
	"fmt"
)

// ErrUnsupportedSignatureVersion is returned for signature versions other than A005 and A006
var ErrUnsupportedSignatureVersion = errors.New("unsupported signature version")

// ErrInvalidSignature is returned when a signature does not verify
var ErrInvalidSignature = errors.New("invalid signature")

// CryptoError reports a failure in a cryptographic primitive
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// SigningError reports a failure while building or verifying an AuthSignature
type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("auth signature: %s: %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

func cryptoErr(op string, err error) error {
	return &CryptoError{Op: op, Err: err}
}

func signingErr(op string, err error) error {
	return &SigningError{Op: op, Err: err}
}
