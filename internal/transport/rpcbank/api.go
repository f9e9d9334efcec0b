// Package rpcbank carries the bank gateway over JSON-RPC 2.0 (go-jsonrpc).
package rpcbank

import (
	"context"

	"github.com/shopspring/decimal"
)

// Namespace is the JSON-RPC method prefix, e.g. "Bank.Balance"
const Namespace = "Bank"

// API is the method set served under Namespace
type API interface {
	NewAccount(ctx context.Context, username string) error
	GetAccount(ctx context.Context, username string) error
	Deposit(ctx context.Context, username string, amount decimal.Decimal) error
	Balance(ctx context.Context, username string) (decimal.Decimal, error)
}

// APIStruct is filled in by jsonrpc.NewMergeClient
type APIStruct struct {
	Internal struct {
		NewAccount func(ctx context.Context, username string) error
		GetAccount func(ctx context.Context, username string) error
		Deposit    func(ctx context.Context, username string, amount decimal.Decimal) error
		Balance    func(ctx context.Context, username string) (decimal.Decimal, error)
	}
}

func (s *APIStruct) NewAccount(ctx context.Context, username string) error {
	return s.Internal.NewAccount(ctx, username)
}

func (s *APIStruct) GetAccount(ctx context.Context, username string) error {
	return s.Internal.GetAccount(ctx, username)
}

func (s *APIStruct) Deposit(ctx context.Context, username string, amount decimal.Decimal) error {
	return s.Internal.Deposit(ctx, username, amount)
}

func (s *APIStruct) Balance(ctx context.Context, username string) (decimal.Decimal, error) {
	return s.Internal.Balance(ctx, username)
}

var _ API = (*APIStruct)(nil)
