package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountToMoney(t *testing.T) {
	testCases := []struct {
		name           string
		amount         string
		currency       string
		expectedAmount int64
	}{
		{name: "Whole number", amount: "100", currency: "USD", expectedAmount: 10000},
		{name: "Decimal number", amount: "25.99", currency: "USD", expectedAmount: 2599},
		{name: "Single decimal place", amount: "10.5", currency: "USD", expectedAmount: 1050},
		{name: "Negative", amount: "-300", currency: "EUR", expectedAmount: -30000},
		{name: "Rounded", amount: "13.375", currency: "EUR", expectedAmount: 1338},
		{name: "No minor unit", amount: "1500", currency: "JPY", expectedAmount: 1500},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := ToMoney(decimal.RequireFromString(tc.amount), tc.currency)
			assert.Equal(t, tc.expectedAmount, result.Amount())
			assert.Equal(t, tc.currency, result.Currency().Code)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$25.99", FormatAmount(decimal.RequireFromString("25.99"), "USD"))
	assert.Equal(t, "13.37", FormatAmount(decimal.RequireFromString("13.37"), ""))
	assert.Equal(t, "13.37 XYZ", FormatAmount(decimal.RequireFromString("13.37"), "XYZ"))
}

func TestTransactionTypeUnmarshal(t *testing.T) {
	testCases := []struct {
		in   string
		want TransactionType
	}{
		{`7`, TypeCard},
		{`0`, TypeUnknown},
		{`42`, TypeUnknown},
		{`"transfer"`, TypeTransfer},
		{`"type.deposit"`, TypeDeposit},
		{`"bogus"`, TypeUnknown},
		{`null`, TypeUnknown},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			var got TransactionType
			require.NoError(t, json.Unmarshal([]byte(tc.in), &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFetchedTransactionDecode(t *testing.T) {
	payload := `{"account":"123","amount":"-300","title":"Loyer","raw":"Loyer habitation","date":"2020-05-04T00:00:00","type":1}`
	var f FetchedTransaction
	require.NoError(t, json.Unmarshal([]byte(payload), &f))

	assert.Equal(t, "123", f.AccountNumber)
	assert.True(t, f.Amount.Equal(decimal.NewFromInt(-300)))
	assert.Equal(t, "Loyer", f.DisplayLabel())
	assert.Equal(t, TypeTransfer, f.Type)

	numeric := `{"account":"1","amount":13.37,"raw":"x","date":"2020-05-04"}`
	require.NoError(t, json.Unmarshal([]byte(numeric), &f))
	assert.Equal(t, "13.37", f.Amount.String())
}

func TestParseSourceDate(t *testing.T) {
	want := time.Date(2020, 5, 4, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2020-05-04",
		"2020-05-04T00:00:00",
		"2020-05-04T00:00:00.000Z",
		"2020-05-04T02:00:00+02:00",
	} {
		got, err := ParseSourceDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s parsed as %s", in, got)
	}

	_, err := ParseSourceDate("04/05/2020")
	assert.Error(t, err)
}

func TestTransactionPrintFormatted(t *testing.T) {
	// visual only, must not panic
	custom := "My rent"
	tx := &Transaction{
		ID:          "tx-1",
		Amount:      decimal.RequireFromString("-300"),
		Label:       "Loyer",
		RawLabel:    "Loyer habitation",
		Date:        time.Date(2020, 5, 4, 0, 0, 0, 0, time.UTC),
		ImportDate:  time.Now(),
		Type:        TypeTransfer,
		CustomLabel: &custom,
	}
	tx.PrintFormatted("EUR")
	assert.Equal(t, "My rent", tx.DisplayLabel())
}

func TestReportDateFallsBackToDate(t *testing.T) {
	date := time.Date(2020, 5, 4, 0, 0, 0, 0, time.UTC)
	tx := &Transaction{Date: date}
	assert.Equal(t, date, tx.ReportDate())

	imported := date.Add(48 * time.Hour)
	tx.ImportDate = imported
	assert.Equal(t, imported, tx.ReportDate())
}

func TestErrorCodeRequiresUserAction(t *testing.T) {
	blocking := map[ErrorCode]bool{
		ErrInvalidPassword:   true,
		ErrExpiredPassword:   true,
		ErrInvalidParameters: true,
		ErrNoPassword:        true,
		ErrActionNeeded:      true,
	}
	for _, code := range AllErrorCodes {
		assert.Equal(t, blocking[code], code.RequiresUserAction(), string(code))
	}

	access := &Access{FetchStatus: ErrInvalidPassword}
	assert.False(t, access.CanBePolled())
	access.FetchStatus = ErrConnectionError
	assert.True(t, access.CanBePolled())
	access.FetchStatus = FetchStatusOK
	assert.True(t, access.CanBePolled())
}

func TestAlertValidateAndCompare(t *testing.T) {
	limit := decimal.NewFromInt(100)
	assert.True(t, OperatorGreaterThan.Compare(decimal.NewFromInt(101), limit))
	assert.False(t, OperatorGreaterThan.Compare(limit, limit))
	assert.True(t, OperatorLessThan.Compare(decimal.NewFromInt(-5), limit))

	assert.NoError(t, (&ReportAlert{AccountID: "a", Kind: AlertReport, Frequency: FrequencyWeekly}).Validate())
	assert.Error(t, (&ReportAlert{AccountID: "a", Kind: AlertReport, Frequency: "yearly"}).Validate())
	assert.Error(t, (&ReportAlert{AccountID: "a", Kind: AlertBalance, Operator: "eq"}).Validate())
	assert.Error(t, (&ReportAlert{Kind: AlertBalance, Operator: OperatorLessThan}).Validate())
}
