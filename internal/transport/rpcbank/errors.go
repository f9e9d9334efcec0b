package rpcbank

import (
	"errors"

	apperrors "market_client/pkg/errors"

	"github.com/filecoin-project/go-jsonrpc"
)

const (
	EAccountExists = iota + jsonrpc.FirstUserCode
	EAccountNotFound
	EInsufficientFunds
	ERejected
)

// Errors carries typed bank errors across the wire
var Errors = jsonrpc.NewErrors()

func init() {
	Errors.Register(EAccountExists, new(*ErrAccountExists))
	Errors.Register(EAccountNotFound, new(*ErrAccountNotFound))
	Errors.Register(EInsufficientFunds, new(*ErrInsufficientFunds))
	Errors.Register(ERejected, new(*ErrRejected))
}

// ErrAccountExists is the wire form of apperrors.ErrAccountExists
type ErrAccountExists struct{}

func (*ErrAccountExists) Error() string        { return apperrors.ErrAccountExists.Error() }
func (*ErrAccountExists) Is(target error) bool { return target == apperrors.ErrAccountExists }

// ErrAccountNotFound is the wire form of apperrors.ErrAccountNotFound
type ErrAccountNotFound struct{}

func (*ErrAccountNotFound) Error() string        { return apperrors.ErrAccountNotFound.Error() }
func (*ErrAccountNotFound) Is(target error) bool { return target == apperrors.ErrAccountNotFound }

// ErrInsufficientFunds is the wire form of apperrors.ErrInsufficientFunds
type ErrInsufficientFunds struct{}

func (*ErrInsufficientFunds) Error() string        { return apperrors.ErrInsufficientFunds.Error() }
func (*ErrInsufficientFunds) Is(target error) bool { return target == apperrors.ErrInsufficientFunds }

// ErrRejected is the wire form of apperrors.ErrRejected
type ErrRejected struct{}

func (*ErrRejected) Error() string        { return apperrors.ErrRejected.Error() }
func (*ErrRejected) Is(target error) bool { return target == apperrors.ErrRejected }

// toWire converts a bank error into the registered type go-jsonrpc looks up by exact type
func toWire(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrAccountExists):
		return &ErrAccountExists{}
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return &ErrAccountNotFound{}
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		return &ErrInsufficientFunds{}
	case errors.Is(err, apperrors.ErrRejected):
		return &ErrRejected{}
	default:
		return err
	}
}

// fromWire keeps typed errors and marks everything else as the bank being unreachable
func fromWire(err error) error {
	if err == nil {
		return nil
	}
	var (
		exists   *ErrAccountExists
		notFound *ErrAccountNotFound
		funds    *ErrInsufficientFunds
		rejected *ErrRejected
	)
	if errors.As(err, &exists) || errors.As(err, &notFound) || errors.As(err, &funds) || errors.As(err, &rejected) {
		return err
	}
	if errors.Is(err, apperrors.ErrUnavailable) {
		return err
	}
	return &unavailableError{cause: err}
}

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return apperrors.ErrUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Unwrap() []error {
	return []error{apperrors.ErrUnavailable, e.cause}
}
