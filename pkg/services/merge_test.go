package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpnda/bankpoll/db"
	"github.com/vpnda/bankpoll/pkg/models"
)

func fetchedTx(account, label, amount, date string) models.FetchedTransaction {
	return models.FetchedTransaction{
		AccountNumber: account,
		Label:         label,
		Raw:           label,
		Amount:        dec(amount),
		Date:          date,
		Type:          models.TypeCard,
	}
}

func accountByNumber(t *testing.T, database db.DBInterface, accessID, number string) *models.Account {
	t.Helper()
	account, err := database.GetAccountByNumber(accessID, number)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account
}

func TestMergeAccountsIsIdempotent(t *testing.T) {
	s, mockDB, _ := newTestSyncer(t)
	access := saveTestAccess(t, mockDB, "a1")
	accounts := []models.FetchedAccount{
		{AccountNumber: "FR-1", Label: "Checking", Balance: dec("1000"), Currency: "EUR"},
		{AccountNumber: "FR-2", Label: "Savings", Balance: dec("5000"), Currency: "EUR"},
	}

	first, err := s.MergeFetchResult(access, accounts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.NewAccounts)

	second, err := s.MergeFetchResult(access, accounts, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewAccounts)
	assert.Equal(t, 2, second.UpdatedAccounts)

	stored, err := mockDB.GetAccountsByAccess("a1")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	checking := accountByNumber(t, mockDB, "a1", "FR-1")
	assert.True(t, checking.Balance.Equal(dec("1000")))
	assert.Equal(t, testNow, checking.ImportDate)
	assert.Equal(t, testNow, checking.LastChecked)
}

func TestMergeTransactionsMovesBalance(t *testing.T) {
	s, mockDB, _ := newTestSyncer(t)
	access := saveTestAccess(t, mockDB, "a1")
	_, err := s.MergeFetchResult(access, []models.FetchedAccount{{AccountNumber: "FR-1", Label: "Checking", Balance: dec("1000")}}, nil)
	require.NoError(t, err)

	txs := []models.FetchedTransaction{fetchedTx("FR-1", "RENT", "-300", "2024-03-10")}
	summary, err := s.MergeFetchResult(access, nil, txs)
	require.NoError(t, err)
	require.Len(t, summary.NewTransactions, 1)
	assert.Equal(t, "RENT", summary.NewTransactions[0].Label)
	assert.Equal(t, models.TypeCard, summary.NewTransactions[0].Type)

	checking := accountByNumber(t, mockDB, "a1", "FR-1")
	assert.True(t, checking.Balance.Equal(dec("700")), "balance is %s", checking.Balance)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), checking.ImportDate)

	// re-delivery changes nothing
	again, err := s.MergeFetchResult(access, nil, txs)
	require.NoError(t, err)
	assert.Empty(t, again.NewTransactions)
	assert.Equal(t, 1, again.KnownTransactions)

	checking = accountByNumber(t, mockDB, "a1", "FR-1")
	assert.True(t, checking.Balance.Equal(dec("700")))

	stored, err := mockDB.GetTransactions()
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestMergeMatchesRedeliveredTransactionsOneToOne(t *testing.T) {
	s, mockDB, _ := newTestSyncer(t)
	access := saveTestAccess(t, mockDB, "a1")
	_, err := s.MergeFetchResult(access, []models.FetchedAccount{{AccountNumber: "FR-1", Label: "Checking", Balance: dec("0")}}, nil)
	require.NoError(t, err)

	coffee := fetchedTx("FR-1", "COFFEE", "-2.50", "2024-03-12")
	summary, err := s.MergeFetchResult(access, nil, []models.FetchedTransaction{coffee, coffee})
	require.NoError(t, err)
	assert.Len(t, summary.NewTransactions, 2)

	summary, err = s.MergeFetchResult(access, nil, []models.FetchedTransaction{coffee, coffee, coffee})
	require.NoError(t, err)
	assert.Len(t, summary.NewTransactions, 1)
	assert.Equal(t, 2, summary.KnownTransactions)

	checking := accountByNumber(t, mockDB, "a1", "FR-1")
	assert.True(t, checking.Balance.Equal(dec("-7.50")), "balance is %s", checking.Balance)
}

func TestMergeReassertsReportedBalance(t *testing.T) {
	s, mockDB, _ := newTestSyncer(t)
	access := saveTestAccess(t, mockDB, "a1")
	_, err := s.MergeFetchResult(access, []models.FetchedAccount{{AccountNumber: "FR-1", Label: "Checking", Balance: dec("1000")}}, nil)
	require.NoError(t, err)

	summary, err := s.MergeFetchResult(access,
		[]models.FetchedAccount{{AccountNumber: "FR-1", Label: "Checking", Balance: dec("700")}},
		[]models.FetchedTransaction{fetchedTx("FR-1", "RENT", "-300", "2024-03-10")})
	require.NoError(t, err)
	assert.Len(t, summary.NewTransactions, 1)
	require.Len(t, summary.Accounts, 1)
	assert.True(t, summary.Accounts[0].Balance.Equal(dec("700")))

	checking := accountByNumber(t, mockDB, "a1", "FR-1")
	assert.True(t, checking.Balance.Equal(dec("700")), "balance is %s", checking.Balance)
}

func TestMergeSkipsOrphanAndMalformedTransactions(t *testing.T) {
	s, mockDB, _ := newTestSyncer(t)
	access := saveTestAccess(t, mockDB, "a1")
	_, err := s.MergeFetchResult(access, []models.FetchedAccount{{AccountNumber: "FR-1", Label: "Checking", Balance: dec("100")}}, nil)
	require.NoError(t, err)

	summary, err := s.MergeFetchResult(access, nil, []models.FetchedTransaction{
		fetchedTx("FR-9", "GHOST", "-10", "2024-03-10"),
		fetchedTx("FR-1", "BROKEN", "-10", "not a date"),
		fetchedTx("FR-1", "GROCERIES", "-40", "2024-03-11T08:30:00Z"),
	})
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Skipped)
	assert.Len(t, summary.NewTransactions, 1)

	var orphan *OrphanTransactionError
	require.True(t, errors.As(err, &orphan))
	assert.Equal(t, "FR-9", orphan.AccountNumber)

	checking := accountByNumber(t, mockDB, "a1", "FR-1")
	assert.True(t, checking.Balance.Equal(dec("60")))
}

func TestMergeRevertsBalanceWhenInsertFails(t *testing.T) {
	s, mockDB, _ := newTestSyncer(t)
	access := saveTestAccess(t, mockDB, "a1")
	_, err := s.MergeFetchResult(access, []models.FetchedAccount{{AccountNumber: "FR-1", Label: "Checking", Balance: dec("100")}}, nil)
	require.NoError(t, err)

	mockDB.InsertTransactionErr = errors.New("disk full")
	summary, err := s.MergeFetchResult(access, nil, []models.FetchedTransaction{fetchedTx("FR-1", "RENT", "-30", "2024-03-10")})
	require.Error(t, err)
	assert.Equal(t, 1, summary.Skipped)

	checking := accountByNumber(t, mockDB, "a1", "FR-1")
	assert.True(t, checking.Balance.Equal(dec("100")))
	assert.Equal(t, testNow, checking.ImportDate)
}

func TestMergeKeepsAttachment(t *testing.T) {
	s, mockDB, _ := newTestSyncer(t)
	access := saveTestAccess(t, mockDB, "a1")
	_, err := s.MergeFetchResult(access, []models.FetchedAccount{{AccountNumber: "FR-1", Label: "Checking", Balance: dec("0")}}, nil)
	require.NoError(t, err)

	tx := fetchedTx("FR-1", "", "-12", "2024-03-10")
	tx.Label, tx.Title, tx.Raw = "", "", "CB 1203 SHOP"
	tx.Binary = &models.Attachment{FileName: "invoice.pdf"}
	summary, err := s.MergeFetchResult(access, nil, []models.FetchedTransaction{tx})
	require.NoError(t, err)
	require.Len(t, summary.NewTransactions, 1)

	merged := summary.NewTransactions[0]
	assert.Equal(t, "CB 1203 SHOP", merged.Label)
	assert.Equal(t, "CB 1203 SHOP", merged.RawLabel)
	require.NotNil(t, merged.Attachment)
	assert.Equal(t, "invoice.pdf", *merged.Attachment)
}

func TestRetrieveTransactionsUsesSource(t *testing.T) {
	s, mockDB, src := newTestSyncer(t)
	access := saveTestAccess(t, mockDB, "a1")
	src.Accounts["a1"] = []models.FetchedAccount{{AccountNumber: "FR-1", Label: "Checking", Balance: dec("50")}}
	src.Transactions["a1"] = []models.FetchedTransaction{fetchedTx("FR-1", "SALARY", "1500", "2024-03-01")}

	_, err := s.RetrieveAccountsByAccess(context.Background(), access)
	require.NoError(t, err)
	summary, err := s.RetrieveTransactionsByAccess(context.Background(), access)
	require.NoError(t, err)
	assert.Len(t, summary.NewTransactions, 1)
	assert.Equal(t, []string{"accounts:a1", "transactions:a1"}, src.Calls())
}
