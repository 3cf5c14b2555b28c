package api

import "ledgersync/pkg/ledger"

// Cursor is an opaque pagination token: the verbatim `links.next` or
// `links.prev` value from a page response. Cursors are round-tripped back to
// the server untouched and must never be parsed, constructed or mutated.
// The zero value means "no cursor".
type Cursor string

// IsZero reports whether the cursor is absent.
func (c Cursor) IsZero() bool {
	return c == ""
}

// TransactionPage is one page of transactions in server order (newest
// first). A zero Next cursor means forward traversal is exhausted; a zero
// Prev cursor means this is the first page.
type TransactionPage struct {
	Transactions []ledger.Transaction
	Prev         Cursor
	Next         Cursor
}

// AccountPage is one page of accounts in server order.
type AccountPage struct {
	Accounts []ledger.Account
	Prev     Cursor
	Next     Cursor
}
