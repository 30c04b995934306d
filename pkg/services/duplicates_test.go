package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpnda/bankpoll/pkg/models"
)

func storedTx(id, account, label, amount string, date time.Time) *models.Transaction {
	return &models.Transaction{ID: id, AccountID: account, Label: label, RawLabel: label, Amount: dec(amount), Date: date}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFindDuplicatesWithinThreshold(t *testing.T) {
	txs := []*models.Transaction{
		storedTx("t1", "acc", "Refund shop", "13.37", day(2020, time.May, 4)),
		storedTx("t2", "acc", "REFUND SHOP", "13.37", day(2020, time.May, 5)),
		storedTx("t3", "acc", "Refund shop", "13.37", day(2020, time.May, 10)),
		storedTx("t4", "acc", "Coffee", "-2.00", day(2020, time.May, 5)),
	}

	pairs := FindDuplicates(txs, 24, decimal.Zero)
	require.Len(t, pairs, 1)
	assert.Equal(t, "t1", pairs[0].A.ID)
	assert.Equal(t, "t2", pairs[0].B.ID)
	assert.InDelta(t, 1.0, pairs[0].Similarity, 0.0001)

	assert.Empty(t, FindDuplicates(txs, 12, decimal.Zero))
	assert.Len(t, FindDuplicates(txs, 24*6, decimal.Zero), 3)
}

func TestFindDuplicatesKeepsUnsavedTransactions(t *testing.T) {
	first := storedTx("", "acc", "Shop", "-9.99", day(2024, time.February, 1))
	second := storedTx("", "acc", "SHOP", "-9.99", day(2024, time.February, 1).Add(3*time.Hour))
	saved := storedTx("t1", "acc", "Shop", "-9.99", day(2024, time.February, 3))

	pairs := FindDuplicates([]*models.Transaction{first, second, saved, saved, first}, 24, decimal.Zero)
	require.Len(t, pairs, 1)
	assert.ElementsMatch(t, []*models.Transaction{first, second}, []*models.Transaction{pairs[0].A, pairs[0].B})
}

func TestFindDuplicatesIsOrderIndependent(t *testing.T) {
	a := storedTx("b-id", "acc", "Transfer", "50", day(2024, time.January, 2))
	b := storedTx("a-id", "acc", "Transfer", "50", day(2024, time.January, 1))

	forward := FindDuplicates([]*models.Transaction{a, b}, 48, decimal.Zero)
	backward := FindDuplicates([]*models.Transaction{b, a}, 48, decimal.Zero)
	require.Len(t, forward, 1)
	assert.Equal(t, forward, backward)
	assert.Equal(t, "a-id", forward[0].A.ID)
}

func TestFindDuplicatesSeparatesAccounts(t *testing.T) {
	txs := []*models.Transaction{
		storedTx("t1", "acc-1", "Gym", "-30", day(2024, time.February, 1)),
		storedTx("t2", "acc-2", "Gym", "-30", day(2024, time.February, 1)),
		// same row listed twice is not a pair with itself
		storedTx("t1", "acc-1", "Gym", "-30", day(2024, time.February, 1)),
	}
	assert.Empty(t, FindDuplicates(txs, 24, decimal.Zero))
}

func TestFindDuplicatesAmountEpsilon(t *testing.T) {
	txs := []*models.Transaction{
		storedTx("t1", "acc", "Fuel", "-40.00", day(2024, time.June, 1)),
		storedTx("t2", "acc", "Fuel", "-40.02", day(2024, time.June, 1).Add(3*time.Hour)),
	}
	assert.Empty(t, FindDuplicates(txs, 24, decimal.Zero))
	assert.Len(t, FindDuplicates(txs, 24, dec("0.05")), 1)
}

func TestFindDuplicatesSortsOutput(t *testing.T) {
	txs := []*models.Transaction{
		storedTx("t5", "acc-b", "X", "1", day(2024, time.March, 1)),
		storedTx("t6", "acc-b", "X", "1", day(2024, time.March, 1)),
		storedTx("t3", "acc-a", "Y", "2", day(2024, time.March, 9)),
		storedTx("t4", "acc-a", "Y", "2", day(2024, time.March, 9)),
		storedTx("t1", "acc-a", "Z", "3", day(2024, time.March, 2)),
		storedTx("t2", "acc-a", "Z", "3", day(2024, time.March, 2)),
	}
	pairs := FindDuplicates(txs, 1, decimal.Zero)
	require.Len(t, pairs, 3)
	assert.Equal(t, "t1", pairs[0].A.ID)
	assert.Equal(t, "t3", pairs[1].A.ID)
	assert.Equal(t, "t5", pairs[2].A.ID)
}
