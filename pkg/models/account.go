package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a bank account exposed by an Access. AccountNumber is the key
// given by the source and is unique within an access.
type Account struct {
	ID            string
	AccessID      string
	AccountNumber string
	Label         string
	IBAN          string
	// Balance is the running balance, moved by each newly merged transaction
	Balance  decimal.Decimal
	Currency string
	// ImportDate is the earliest known transaction date for the account
	ImportDate  time.Time
	LastChecked time.Time
}

// FetchedAccount is an account as reported by the source.
type FetchedAccount struct {
	AccountNumber string          `json:"accountNumber"`
	Label         string          `json:"label"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency,omitempty"`
	IBAN          string          `json:"iban,omitempty"`
}
