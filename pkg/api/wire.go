package api

import (
	"encoding/json"
	"fmt"
	"time"

	"ledgersync/pkg/ledger"
)

// The remote API speaks JSON:API: every response wraps resources in
// {"type","id","attributes","relationships"} envelopes with pagination
// links alongside. These wire types stay private to this package; the rest
// of the module only sees ledger types and Cursors.

type pageLinks struct {
	Prev *string `json:"prev"`
	Next *string `json:"next"`
}

func (l pageLinks) prevCursor() Cursor {
	if l.Prev == nil {
		return ""
	}
	return Cursor(*l.Prev)
}

func (l pageLinks) nextCursor() Cursor {
	if l.Next == nil {
		return ""
	}
	return Cursor(*l.Next)
}

type listEnvelope struct {
	Data  []resource `json:"data"`
	Links pageLinks  `json:"links"`
}

type singleEnvelope struct {
	Data resource `json:"data"`
}

func decodeSingle(body []byte, envelope *singleEnvelope) error {
	if err := json.Unmarshal(body, envelope); err != nil {
		return fmt.Errorf("api: decoding resource: %w", err)
	}
	return nil
}

type resource struct {
	Type          string          `json:"type"`
	ID            string          `json:"id"`
	Attributes    json.RawMessage `json:"attributes"`
	Relationships json.RawMessage `json:"relationships"`
}

type moneyWire struct {
	CurrencyCode     string `json:"currencyCode"`
	Value            string `json:"value"`
	ValueInBaseUnits int64  `json:"valueInBaseUnits"`
}

func (m moneyWire) toMoney() ledger.Money {
	return ledger.Money(m)
}

func (m *moneyWire) toMoneyPtr() *ledger.Money {
	if m == nil {
		return nil
	}
	v := m.toMoney()
	return &v
}

type accountAttributes struct {
	DisplayName   string    `json:"displayName"`
	AccountType   string    `json:"accountType"`
	OwnershipType string    `json:"ownershipType"`
	Balance       moneyWire `json:"balance"`
	CreatedAt     time.Time `json:"createdAt"`
}

func decodeAccount(res resource) (ledger.Account, error) {
	var attrs accountAttributes
	if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
		return ledger.Account{}, fmt.Errorf("api: decoding account %s: %w", res.ID, err)
	}
	return ledger.Account{
		ID:            res.ID,
		DisplayName:   attrs.DisplayName,
		AccountType:   ledger.AccountType(attrs.AccountType),
		OwnershipType: ledger.OwnershipType(attrs.OwnershipType),
		Balance:       attrs.Balance.toMoney(),
		CreatedAt:     attrs.CreatedAt,
	}, nil
}

type holdInfoWire struct {
	Amount        moneyWire  `json:"amount"`
	ForeignAmount *moneyWire `json:"foreignAmount"`
}

type roundUpWire struct {
	Amount       moneyWire  `json:"amount"`
	BoostPortion *moneyWire `json:"boostPortion"`
}

type cashbackWire struct {
	Description string    `json:"description"`
	Amount      moneyWire `json:"amount"`
}

type noteWire struct {
	Text string `json:"text"`
}

type customerWire struct {
	DisplayName string `json:"displayName"`
}

type transactionAttributes struct {
	Status             string        `json:"status"`
	RawText            *string       `json:"rawText"`
	Description        string        `json:"description"`
	Message            *string       `json:"message"`
	IsCategorizable    bool          `json:"isCategorizable"`
	HoldInfo           *holdInfoWire `json:"holdInfo"`
	RoundUp            *roundUpWire  `json:"roundUp"`
	Cashback           *cashbackWire `json:"cashback"`
	Amount             moneyWire     `json:"amount"`
	ForeignAmount      *moneyWire    `json:"foreignAmount"`
	SettledAt          *time.Time    `json:"settledAt"`
	CreatedAt          time.Time     `json:"createdAt"`
	TransactionType    *string       `json:"transactionType"`
	Note               *noteWire     `json:"note"`
	PerformingCustomer *customerWire `json:"performingCustomer"`
	DeepLinkURL        string        `json:"deepLinkURL"`
}

// relationshipRef is the {"data": {"type","id"}} shape of a to-one
// relationship. Data is null when the relationship is absent.
type relationshipRef struct {
	Data *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

func (r relationshipRef) id() string {
	if r.Data == nil {
		return ""
	}
	return r.Data.ID
}

type transactionRelationships struct {
	Account         relationshipRef `json:"account"`
	TransferAccount relationshipRef `json:"transferAccount"`
}

func decodeTransaction(res resource) (ledger.Transaction, error) {
	var attrs transactionAttributes
	if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
		return ledger.Transaction{}, fmt.Errorf("api: decoding transaction %s: %w", res.ID, err)
	}
	var rels transactionRelationships
	if len(res.Relationships) > 0 {
		if err := json.Unmarshal(res.Relationships, &rels); err != nil {
			return ledger.Transaction{}, fmt.Errorf("api: decoding transaction %s relationships: %w", res.ID, err)
		}
	}

	tx := ledger.Transaction{
		ID:              res.ID,
		Status:          ledger.TransactionStatus(attrs.Status),
		RawText:         attrs.RawText,
		Description:     attrs.Description,
		Message:         attrs.Message,
		IsCategorizable: attrs.IsCategorizable,
		Amount:          attrs.Amount.toMoney(),
		ForeignAmount:   attrs.ForeignAmount.toMoneyPtr(),
		SettledAt:       attrs.SettledAt,
		CreatedAt:       attrs.CreatedAt,
		TransactionType: attrs.TransactionType,
		DeepLinkURL:     attrs.DeepLinkURL,
		AccountID:       rels.Account.id(),
	}
	if attrs.HoldInfo != nil {
		tx.HoldInfo = &ledger.HoldInfo{
			Amount:        attrs.HoldInfo.Amount.toMoney(),
			ForeignAmount: attrs.HoldInfo.ForeignAmount.toMoneyPtr(),
		}
	}
	if attrs.RoundUp != nil {
		tx.RoundUp = &ledger.RoundUp{
			Amount:       attrs.RoundUp.Amount.toMoney(),
			BoostPortion: attrs.RoundUp.BoostPortion.toMoneyPtr(),
		}
	}
	if attrs.Cashback != nil {
		tx.Cashback = &ledger.Cashback{
			Description: attrs.Cashback.Description,
			Amount:      attrs.Cashback.Amount.toMoney(),
		}
	}
	if attrs.Note != nil {
		tx.Note = &ledger.Note{Text: attrs.Note.Text}
	}
	if attrs.PerformingCustomer != nil {
		tx.PerformingCustomer = &ledger.Customer{DisplayName: attrs.PerformingCustomer.DisplayName}
	}
	if id := rels.TransferAccount.id(); id != "" {
		tx.TransferAccountID = &id
	}
	return tx, nil
}

func decodeTransactionPage(body []byte) (*TransactionPage, error) {
	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("api: decoding transaction page: %w", err)
	}
	page := &TransactionPage{
		Transactions: make([]ledger.Transaction, 0, len(envelope.Data)),
		Prev:         envelope.Links.prevCursor(),
		Next:         envelope.Links.nextCursor(),
	}
	for _, res := range envelope.Data {
		tx, err := decodeTransaction(res)
		if err != nil {
			return nil, err
		}
		page.Transactions = append(page.Transactions, tx)
	}
	return page, nil
}

func decodeAccountPage(body []byte) (*AccountPage, error) {
	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("api: decoding account page: %w", err)
	}
	page := &AccountPage{
		Accounts: make([]ledger.Account, 0, len(envelope.Data)),
		Prev:     envelope.Links.prevCursor(),
		Next:     envelope.Links.nextCursor(),
	}
	for _, res := range envelope.Data {
		account, err := decodeAccount(res)
		if err != nil {
			return nil, err
		}
		page.Accounts = append(page.Accounts, account)
	}
	return page, nil
}
