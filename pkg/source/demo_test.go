package source

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpnda/bankpoll/pkg/models"
)

func TestDemoSourceIsDeterministic(t *testing.T) {
	s := NewDemoSource()
	s.now = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }
	access := testAccess()
	ctx := context.Background()

	first, err := s.FetchTransactions(ctx, access, FetchOptions{})
	require.NoError(t, err)
	second, err := s.FetchTransactions(ctx, access, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	accounts, err := s.FetchAccounts(ctx, access, FetchOptions{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(accounts), 3)

	numbers := lo.Map(accounts, func(a models.FetchedAccount, _ int) string { return a.AccountNumber })
	for _, tx := range first {
		assert.Contains(t, numbers, tx.AccountNumber)
	}

	dup, ok := lo.Find(first, func(tx models.FetchedTransaction) bool {
		return tx.Amount.String() == "13.37"
	})
	require.True(t, ok)
	date, err := models.ParseSourceDate(dup.Date)
	require.NoError(t, err)
	assert.Contains(t, []int{4, 5}, date.Day())
	assert.Equal(t, time.May, date.Month())
}

func TestDemoSourceRequiresPassword(t *testing.T) {
	access := testAccess()
	access.Password = ""
	_, err := NewDemoSource().FetchAccounts(context.Background(), access, FetchOptions{})
	assert.Equal(t, models.ErrNoPassword, CodeOf(err))
}

func TestMockSourceRecordsCalls(t *testing.T) {
	m := NewMockSource()
	m.TransactionErrors["a"] = NewError(models.ErrInvalidPassword, "")
	ctx := context.Background()

	_, err := m.FetchTransactions(ctx, &models.Access{ID: "a"}, FetchOptions{})
	assert.Equal(t, models.ErrInvalidPassword, CodeOf(err))
	_, err = m.FetchAccounts(ctx, &models.Access{ID: "b"}, FetchOptions{})
	assert.NoError(t, err)

	assert.Equal(t, []string{"transactions:a", "accounts:b"}, m.Calls())
}
