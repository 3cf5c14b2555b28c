// Package apitest provides a scriptable in-memory stand-in for the remote
// API client, for tests. Behavior is injected through function hooks and
// every method tracks its call count.
package apitest

import (
	"context"
	"sync/atomic"

	"ledgersync/pkg/api"
	"ledgersync/pkg/ledger"
	"ledgersync/pkg/query"
)

// Source is a mock transaction/account source. Set the Func fields to
// script behavior; unset hooks return empty results.
type Source struct {
	ListTransactionsFunc func(ctx context.Context, q query.Query) (*api.TransactionPage, error)
	TransactionsAtFunc   func(ctx context.Context, cursor api.Cursor) (*api.TransactionPage, error)
	ListAccountsFunc     func(ctx context.Context, q query.Query) (*api.AccountPage, error)
	AccountsAtFunc       func(ctx context.Context, cursor api.Cursor) (*api.AccountPage, error)
	GetAccountFunc       func(ctx context.Context, id string) (ledger.Account, error)

	listTransactionsCalls int64
	transactionsAtCalls   int64
	listAccountsCalls     int64
	accountsAtCalls       int64
	getAccountCalls       int64
}

func (s *Source) ListTransactions(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
	atomic.AddInt64(&s.listTransactionsCalls, 1)
	if s.ListTransactionsFunc != nil {
		return s.ListTransactionsFunc(ctx, q)
	}
	return &api.TransactionPage{}, nil
}

func (s *Source) TransactionsAt(ctx context.Context, cursor api.Cursor) (*api.TransactionPage, error) {
	atomic.AddInt64(&s.transactionsAtCalls, 1)
	if s.TransactionsAtFunc != nil {
		return s.TransactionsAtFunc(ctx, cursor)
	}
	return &api.TransactionPage{}, nil
}

func (s *Source) ListAccounts(ctx context.Context, q query.Query) (*api.AccountPage, error) {
	atomic.AddInt64(&s.listAccountsCalls, 1)
	if s.ListAccountsFunc != nil {
		return s.ListAccountsFunc(ctx, q)
	}
	return &api.AccountPage{}, nil
}

func (s *Source) AccountsAt(ctx context.Context, cursor api.Cursor) (*api.AccountPage, error) {
	atomic.AddInt64(&s.accountsAtCalls, 1)
	if s.AccountsAtFunc != nil {
		return s.AccountsAtFunc(ctx, cursor)
	}
	return &api.AccountPage{}, nil
}

func (s *Source) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	atomic.AddInt64(&s.getAccountCalls, 1)
	if s.GetAccountFunc != nil {
		return s.GetAccountFunc(ctx, id)
	}
	return ledger.Account{ID: id}, nil
}

// ListTransactionsCalls returns the number of ListTransactions calls.
func (s *Source) ListTransactionsCalls() int {
	return int(atomic.LoadInt64(&s.listTransactionsCalls))
}

// TransactionsAtCalls returns the number of TransactionsAt calls.
func (s *Source) TransactionsAtCalls() int {
	return int(atomic.LoadInt64(&s.transactionsAtCalls))
}

// ListAccountsCalls returns the number of ListAccounts calls.
func (s *Source) ListAccountsCalls() int {
	return int(atomic.LoadInt64(&s.listAccountsCalls))
}

// AccountsAtCalls returns the number of AccountsAt calls.
func (s *Source) AccountsAtCalls() int {
	return int(atomic.LoadInt64(&s.accountsAtCalls))
}

// GetAccountCalls returns the number of GetAccount calls.
func (s *Source) GetAccountCalls() int {
	return int(atomic.LoadInt64(&s.getAccountCalls))
}
