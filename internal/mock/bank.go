package mock

import (
	"context"
	"sync"

	"market_client/internal/core"
	apperrors "market_client/pkg/errors"

	"github.com/shopspring/decimal"
)

// Bank is an in-memory ledger implementing core.IBank
type Bank struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	faults   map[string]error
}

// NewBank creates an empty bank
func NewBank() *Bank {
	return &Bank{
		accounts: make(map[string]*Account),
		faults:   make(map[string]error),
	}
}

// SetFault makes op ("new_account", "get_account", "deposit", "balance") fail with err
// until cleared with a nil err.
func (b *Bank) SetFault(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.faults, op)
		return
	}
	b.faults[op] = err
}

func (b *Bank) fault(op string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.faults[op]
}

func (b *Bank) NewAccount(ctx context.Context, username string) (core.IAccount, error) {
	if err := b.fault("new_account"); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[username]; exists {
		return nil, apperrors.ErrAccountExists
	}
	acct := &Account{bank: b, owner: username}
	b.accounts[username] = acct
	return acct, nil
}

func (b *Bank) GetAccount(ctx context.Context, username string) (core.IAccount, error) {
	if err := b.fault("get_account"); err != nil {
		return nil, err
	}
	return b.account(username)
}

func (b *Bank) account(username string) (*Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acct, ok := b.accounts[username]
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}
	return acct, nil
}

// AccountCount returns the number of open accounts
func (b *Bank) AccountCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.accounts)
}

// Transfer moves amount between two accounts atomically
func (b *Bank) Transfer(from, to string, amount decimal.Decimal) error {
	src, err := b.account(from)
	if err != nil {
		return err
	}
	dst, err := b.account(to)
	if err != nil {
		return err
	}

	// Ledger-wide lock keeps the two legs atomic
	b.mu.Lock()
	defer b.mu.Unlock()
	if src.balance.LessThan(amount) {
		return apperrors.ErrInsufficientFunds
	}
	src.balance = src.balance.Sub(amount)
	dst.balance = dst.balance.Add(amount)
	return nil
}

// Account is a handle into the mock ledger
type Account struct {
	bank    *Bank
	owner   string
	balance decimal.Decimal // guarded by bank.mu
}

func (a *Account) Owner() string {
	return a.owner
}

func (a *Account) Deposit(ctx context.Context, amount decimal.Decimal) error {
	if err := a.bank.fault("deposit"); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return apperrors.ErrRejected
	}
	a.bank.mu.Lock()
	defer a.bank.mu.Unlock()
	a.balance = a.balance.Add(amount)
	return nil
}

func (a *Account) Balance(ctx context.Context) (decimal.Decimal, error) {
	if err := a.bank.fault("balance"); err != nil {
		return decimal.Zero, err
	}
	a.bank.mu.RLock()
	defer a.bank.mu.RUnlock()
	return a.balance, nil
}

var (
	_ core.IBank    = (*Bank)(nil)
	_ core.IAccount = (*Account)(nil)
)
