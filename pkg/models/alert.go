package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type AlertKind string

const (
	AlertBalance     AlertKind = "balance"
	AlertTransaction AlertKind = "transaction"
	AlertReport      AlertKind = "report"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency validates a report frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

type Operator string

const (
	OperatorGreaterThan Operator = "gt"
	OperatorLessThan    Operator = "lt"
)

// Compare reports whether value is on the alerting side of limit.
func (o Operator) Compare(value, limit decimal.Decimal) bool {
	switch o {
	case OperatorGreaterThan:
		return value.GreaterThan(limit)
	case OperatorLessThan:
		return value.LessThan(limit)
	}
	return false
}

// ReportAlert is either a periodic report on an account (Kind report, with a
// Frequency) or a threshold alert (Kind balance or transaction, with an
// Operator and a Limit).
type ReportAlert struct {
	ID        string
	AccountID string
	Kind      AlertKind
	Frequency Frequency
	Operator  Operator
	Limit     decimal.Decimal
}

// Validate checks that the fields required by the alert kind are set.
func (a *ReportAlert) Validate() error {
	switch a.Kind {
	case AlertReport:
		if _, err := ParseFrequency(string(a.Frequency)); err != nil {
			return err
		}
	case AlertBalance, AlertTransaction:
		if a.Operator != OperatorGreaterThan && a.Operator != OperatorLessThan {
			return fmt.Errorf("unknown comparison operator %q", a.Operator)
		}
	default:
		return fmt.Errorf("unknown alert kind %q", a.Kind)
	}
	if a.AccountID == "" {
		return fmt.Errorf("alert must reference an account")
	}
	return nil
}
