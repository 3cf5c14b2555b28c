package ledger

import "time"

// AccountType classifies an account.
type AccountType string

const (
	AccountTypeSaver         AccountType = "SAVER"
	AccountTypeTransactional AccountType = "TRANSACTIONAL"
	AccountTypeHomeLoan      AccountType = "HOME_LOAN"
)

// Valid reports whether the account type is one of the documented values.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeSaver, AccountTypeTransactional, AccountTypeHomeLoan:
		return true
	}
	return false
}

// OwnershipType classifies who holds an account.
type OwnershipType string

const (
	OwnershipTypeIndividual OwnershipType = "INDIVIDUAL"
	OwnershipTypeJoint      OwnershipType = "JOINT"
)

// Valid reports whether the ownership type is one of the documented values.
func (t OwnershipType) Valid() bool {
	switch t {
	case OwnershipTypeIndividual, OwnershipTypeJoint:
		return true
	}
	return false
}

// Account is an immutable snapshot of a remote account. A re-fetch replaces
// the whole snapshot; accounts are never partially updated.
type Account struct {
	ID            string        `json:"id"`
	DisplayName   string        `json:"displayName"`
	AccountType   AccountType   `json:"accountType"`
	OwnershipType OwnershipType `json:"ownershipType"`
	Balance       Money         `json:"balance"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Details returns the denormalized projection joined onto transactions at
// enrichment time.
func (a Account) Details() AccountDetails {
	return AccountDetails{
		DisplayName:   a.DisplayName,
		AccountType:   a.AccountType,
		OwnershipType: a.OwnershipType,
	}
}

// AccountDetails is the projection of an account attached to an enriched
// transaction. It reflects the account state at enrichment time, not at
// transaction creation time.
type AccountDetails struct {
	DisplayName   string        `json:"displayName"`
	AccountType   AccountType   `json:"accountType"`
	OwnershipType OwnershipType `json:"ownershipType"`
}
