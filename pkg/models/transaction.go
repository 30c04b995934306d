package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the category given by the source. Unmapped values fall
// back to TypeUnknown.
type TransactionType string

const (
	TypeUnknown      TransactionType = "unknown"
	TypeTransfer     TransactionType = "transfer"
	TypeOrder        TransactionType = "order"
	TypeCheck        TransactionType = "check"
	TypeDeposit      TransactionType = "deposit"
	TypePayback      TransactionType = "payback"
	TypeWithdrawal   TransactionType = "withdrawal"
	TypeCard         TransactionType = "card"
	TypeLoanPayment  TransactionType = "loan_payment"
	TypeBank         TransactionType = "bank"
	TypeCashDeposit  TransactionType = "cash_deposit"
	TypeCardSummary  TransactionType = "card_summary"
	TypeDeferredCard TransactionType = "deferred_card"
)

// numbered in the order the source backends use
var transactionTypes = []TransactionType{
	TypeUnknown,
	TypeTransfer,
	TypeOrder,
	TypeCheck,
	TypeDeposit,
	TypePayback,
	TypeWithdrawal,
	TypeCard,
	TypeLoanPayment,
	TypeBank,
	TypeCashDeposit,
	TypeCardSummary,
	TypeDeferredCard,
}

// ParseTransactionType maps a type name to a known type.
func ParseTransactionType(s string) TransactionType {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "type.")
	for _, t := range transactionTypes {
		if string(t) == s {
			return t
		}
	}
	return TypeUnknown
}

// TransactionTypeFromCode maps a numeric source code to a type.
func TransactionTypeFromCode(n int) TransactionType {
	if n >= 0 && n < len(transactionTypes) {
		return transactionTypes[n]
	}
	return TypeUnknown
}

// UnmarshalJSON accepts either the numeric code or the type name.
func (t *TransactionType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*t = TransactionTypeFromCode(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = TypeUnknown
		return nil
	}
	*t = ParseTransactionType(s)
	return nil
}

// Attachment references a binary document attached to a transaction.
type Attachment struct {
	FileName string `json:"fileName"`
}

// FetchedTransaction is a transaction as reported by the source, attached to
// its account by account number.
type FetchedTransaction struct {
	AccountNumber string          `json:"account"`
	Amount        decimal.Decimal `json:"amount"`
	Label         string          `json:"label,omitempty"`
	Title         string          `json:"title,omitempty"`
	Raw           string          `json:"raw"`
	Date          string          `json:"date"`
	Type          TransactionType `json:"type"`
	Binary        *Attachment     `json:"binary,omitempty"`
}

// DisplayLabel returns the best human label: label, then title, then raw.
func (f *FetchedTransaction) DisplayLabel() string {
	switch {
	case f.Label != "":
		return f.Label
	case f.Title != "":
		return f.Title
	}
	return f.Raw
}

// Transaction represents a financial transaction
type Transaction struct {
	ID        string
	AccountID string
	Amount    decimal.Decimal
	Label     string
	RawLabel  string
	// Date is the effective (value) date
	Date time.Time
	// ImportDate is when the transaction was first fetched
	ImportDate  time.Time
	Type        TransactionType
	CustomLabel *string
	CategoryID  *string
	Attachment  *string
}

// ReportDate is the date used to decide whether a transaction is new for a
// report: the import date, or the effective date when unknown.
func (t *Transaction) ReportDate() time.Time {
	if t.ImportDate.IsZero() {
		return t.Date
	}
	return t.ImportDate
}

// DisplayLabel prefers the user's custom label.
func (t *Transaction) DisplayLabel() string {
	if t.CustomLabel != nil && *t.CustomLabel != "" {
		return *t.CustomLabel
	}
	if t.Label != "" {
		return t.Label
	}
	return t.RawLabel
}

// PrintFormatted prints the transaction in a formatted way
func (t *Transaction) PrintFormatted(currency string) {
	fmt.Printf("Transaction Details:\n")
	fmt.Printf("	ID: %s\n", t.ID)
	fmt.Printf("	Amount: %s\n", FormatAmount(t.Amount, currency))
	if label := t.DisplayLabel(); label != "" {
		fmt.Printf("	Label: %s\n", label)
	}
	if t.RawLabel != "" && t.RawLabel != t.Label {
		fmt.Printf("	Raw Label: %s\n", t.RawLabel)
	}
	fmt.Printf("	Date: %s\n", t.Date.Format(time.DateOnly))
	if !t.ImportDate.IsZero() {
		fmt.Printf("	Imported: %s\n", t.ImportDate.Format(time.DateTime))
	}
	if t.Type != "" && t.Type != TypeUnknown {
		fmt.Printf("	Type: %s\n", t.Type)
	}
}

var sourceDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseSourceDate parses the dates emitted by the source. Dates without a
// zone are taken as UTC.
func ParseSourceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range sourceDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
