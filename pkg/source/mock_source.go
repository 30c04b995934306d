package source

import (
	"context"
	"slices"
	"sync"

	"github.com/vpnda/bankpoll/pkg/models"
)

// MockSource is an in-memory Source for tests. Results and errors are keyed
// by access ID.
type MockSource struct {
	mu sync.Mutex

	Accounts          map[string][]models.FetchedAccount
	Transactions      map[string][]models.FetchedTransaction
	AccountErrors     map[string]error
	TransactionErrors map[string]error
	UpdateError       error
	Broken            bool
	VersionValue      string

	calls []string
}

func NewMockSource() *MockSource {
	return &MockSource{
		Accounts:          map[string][]models.FetchedAccount{},
		Transactions:      map[string][]models.FetchedTransaction{},
		AccountErrors:     map[string]error{},
		TransactionErrors: map[string]error{},
		VersionValue:      DefaultMinVersion,
	}
}

func (m *MockSource) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns the recorded calls, e.g. "accounts:<access id>".
func (m *MockSource) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Test(context.Context) bool {
	m.record("test")
	return !m.Broken
}

func (m *MockSource) Version(context.Context, bool) string {
	m.record("version")
	return m.VersionValue
}

func (m *MockSource) UpdateModules(context.Context) error {
	m.record("update")
	return m.UpdateError
}

func (m *MockSource) FetchAccounts(_ context.Context, access *models.Access, _ FetchOptions) ([]models.FetchedAccount, error) {
	m.record("accounts:" + access.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.AccountErrors[access.ID]; err != nil {
		return nil, err
	}
	return slices.Clone(m.Accounts[access.ID]), nil
}

func (m *MockSource) FetchTransactions(_ context.Context, access *models.Access, _ FetchOptions) ([]models.FetchedTransaction, error) {
	m.record("transactions:" + access.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.TransactionErrors[access.ID]; err != nil {
		return nil, err
	}
	return slices.Clone(m.Transactions[access.ID]), nil
}
