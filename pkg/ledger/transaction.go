package ledger

import "time"

// TransactionStatus is the settlement status of a transaction. SETTLED is
// terminal; HELD is the only pre-terminal state and a held transaction may
// still change before settling.
type TransactionStatus string

const (
	TransactionStatusHeld    TransactionStatus = "HELD"
	TransactionStatusSettled TransactionStatus = "SETTLED"
)

// Valid reports whether the status is one of the documented values.
func (s TransactionStatus) Valid() bool {
	return s == TransactionStatusHeld || s == TransactionStatusSettled
}

// HoldInfo describes the amount a transaction was held at, when it differs
// from the settled amount.
type HoldInfo struct {
	Amount        Money  `json:"amount"`
	ForeignAmount *Money `json:"foreignAmount,omitempty"`
}

// RoundUp describes the round-up debited alongside a transaction.
type RoundUp struct {
	Amount       Money  `json:"amount"`
	BoostPortion *Money `json:"boostPortion,omitempty"`
}

// Cashback describes a cashback credited alongside a transaction.
type Cashback struct {
	Description string `json:"description"`
	Amount      Money  `json:"amount"`
}

// Note is free-form text attached to a transaction by the customer.
type Note struct {
	Text string `json:"text"`
}

// Customer identifies the customer who performed a transaction on a joint
// account.
type Customer struct {
	DisplayName string `json:"displayName"`
}

// Transaction is a read-only projection of a remote transaction record.
//
// AccountID is a reference to the owning account by identifier, not an
// embedded account: the join to account metadata happens at read time
// during enrichment.
type Transaction struct {
	ID              string            `json:"id"`
	Status          TransactionStatus `json:"status"`
	RawText         *string           `json:"rawText,omitempty"`
	Description     string            `json:"description"`
	Message         *string           `json:"message,omitempty"`
	IsCategorizable bool              `json:"isCategorizable"`
	HoldInfo        *HoldInfo         `json:"holdInfo,omitempty"`
	RoundUp         *RoundUp          `json:"roundUp,omitempty"`
	Cashback        *Cashback         `json:"cashback,omitempty"`
	Amount          Money             `json:"amount"`
	ForeignAmount   *Money            `json:"foreignAmount,omitempty"`
	// SettledAt is present iff Status is SETTLED.
	SettledAt          *time.Time `json:"settledAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	TransactionType    *string    `json:"transactionType,omitempty"`
	Note               *Note      `json:"note,omitempty"`
	PerformingCustomer *Customer  `json:"performingCustomer,omitempty"`
	DeepLinkURL        string     `json:"deepLinkURL"`

	// AccountID references the owning account.
	AccountID string `json:"accountId"`
	// TransferAccountID references the counterparty account for internal
	// transfers, when there is one.
	TransferAccountID *string `json:"transferAccountId,omitempty"`
}

// IsSettled reports whether the transaction has reached its terminal status.
func (t Transaction) IsSettled() bool {
	return t.Status == TransactionStatusSettled
}

// EffectiveTime returns the settlement time for settled transactions and the
// creation time otherwise. Used for watermark tracking.
func (t Transaction) EffectiveTime() time.Time {
	if t.SettledAt != nil && t.SettledAt.After(t.CreatedAt) {
		return *t.SettledAt
	}
	return t.CreatedAt
}

// EnrichedTransaction is a transaction joined with its account's projection.
// AccountDetails is nil when the join could not be resolved (an enrichment
// gap); the transaction itself is always carried through.
type EnrichedTransaction struct {
	Transaction
	AccountDetails *AccountDetails `json:"accountDetails,omitempty"`
}
