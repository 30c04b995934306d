package db

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vpnda/bankpoll/pkg/models"
)

// MockDB is a mock implementation of the DB for testing. Rows are copied
// in and out so callers cannot mutate stored state behind its back.
type MockDB struct {
	mu sync.Mutex

	// Mock data storage, in insertion order
	Accesses     []*models.Access
	Accounts     []*models.Account
	Transactions []*models.Transaction
	Alerts       []*models.ReportAlert

	// Error values to return
	GetAccessesErr             error
	GetAccessErr               error
	SaveAccessErr              error
	UpdateAccessFetchStatusErr error
	GetAccountsErr             error
	GetAccountByNumberErr      error
	SaveAccountErr             error
	GetTransactionsErr         error
	InsertTransactionErr       error
	GetAlertsErr               error
	GetReportsByFrequencyErr   error
	SaveAlertErr               error
	RemoveAlertErr             error
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{}
}

func copyAccess(a *models.Access) *models.Access {
	c := *a
	c.CustomFields = slices.Clone(a.CustomFields)
	return &c
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	return &c
}

func copyTransaction(tx *models.Transaction) *models.Transaction {
	c := *tx
	return &c
}

func copyAlert(a *models.ReportAlert) *models.ReportAlert {
	c := *a
	return &c
}

func (m *MockDB) GetAccesses() ([]*models.Access, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetAccessesErr != nil {
		return nil, m.GetAccessesErr
	}
	return lo.Map(m.Accesses, func(a *models.Access, _ int) *models.Access { return copyAccess(a) }), nil
}

func (m *MockDB) GetAccess(id string) (*models.Access, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetAccessErr != nil {
		return nil, m.GetAccessErr
	}
	a, ok := lo.Find(m.Accesses, func(a *models.Access) bool { return a.ID == id })
	if !ok {
		return nil, nil
	}
	return copyAccess(a), nil
}

func (m *MockDB) SaveAccess(access *models.Access) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveAccessErr != nil {
		return m.SaveAccessErr
	}
	if access.ID == "" {
		access.ID = uuid.NewString()
	}
	if access.CreatedAt.IsZero() {
		access.CreatedAt = time.Now()
	}
	if i := slices.IndexFunc(m.Accesses, func(a *models.Access) bool { return a.ID == access.ID }); i >= 0 {
		m.Accesses[i] = copyAccess(access)
		return nil
	}
	m.Accesses = append(m.Accesses, copyAccess(access))
	return nil
}

func (m *MockDB) UpdateAccessFetchStatus(id string, status models.ErrorCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateAccessFetchStatusErr != nil {
		return m.UpdateAccessFetchStatusErr
	}
	a, ok := lo.Find(m.Accesses, func(a *models.Access) bool { return a.ID == id })
	if !ok {
		return fmt.Errorf("no access found with id %s: %w", id, ErrNotFound)
	}
	a.FetchStatus = status
	return nil
}

func (m *MockDB) filterAccounts(pred func(*models.Account) bool) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetAccountsErr != nil {
		return nil, m.GetAccountsErr
	}
	return lo.FilterMap(m.Accounts, func(a *models.Account, _ int) (*models.Account, bool) {
		if !pred(a) {
			return nil, false
		}
		return copyAccount(a), true
	}), nil
}

func (m *MockDB) GetAccounts() ([]*models.Account, error) {
	return m.filterAccounts(func(*models.Account) bool { return true })
}

func (m *MockDB) GetAccountsByAccess(accessID string) ([]*models.Account, error) {
	return m.filterAccounts(func(a *models.Account) bool { return a.AccessID == accessID })
}

func (m *MockDB) GetAccountsByIDs(ids []string) ([]*models.Account, error) {
	return m.filterAccounts(func(a *models.Account) bool { return slices.Contains(ids, a.ID) })
}

func (m *MockDB) GetAccountByNumber(accessID, accountNumber string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetAccountByNumberErr != nil {
		return nil, m.GetAccountByNumberErr
	}
	a, ok := lo.Find(m.Accounts, func(a *models.Account) bool {
		return a.AccessID == accessID && a.AccountNumber == accountNumber
	})
	if !ok {
		return nil, nil
	}
	return copyAccount(a), nil
}

func (m *MockDB) SaveAccount(account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveAccountErr != nil {
		return m.SaveAccountErr
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if i := slices.IndexFunc(m.Accounts, func(a *models.Account) bool { return a.ID == account.ID }); i >= 0 {
		m.Accounts[i] = copyAccount(account)
		return nil
	}
	duplicate := lo.ContainsBy(m.Accounts, func(a *models.Account) bool {
		return a.AccessID == account.AccessID && a.AccountNumber == account.AccountNumber
	})
	if duplicate {
		return fmt.Errorf("account %s already exists for access %s", account.AccountNumber, account.AccessID)
	}
	m.Accounts = append(m.Accounts, copyAccount(account))
	return nil
}

func (m *MockDB) GetTransactions() ([]*models.Transaction, error) {
	return m.GetTransactionsByAccounts(nil)
}

// GetTransactionsByAccounts returns every transaction when accountIDs is nil
func (m *MockDB) GetTransactionsByAccounts(accountIDs []string) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetTransactionsErr != nil {
		return nil, m.GetTransactionsErr
	}
	return lo.FilterMap(m.Transactions, func(tx *models.Transaction, _ int) (*models.Transaction, bool) {
		if accountIDs != nil && !slices.Contains(accountIDs, tx.AccountID) {
			return nil, false
		}
		return copyTransaction(tx), true
	}), nil
}

func (m *MockDB) InsertTransaction(tx *models.Transaction, owner *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertTransactionErr != nil {
		return m.InsertTransactionErr
	}
	stored, ok := lo.Find(m.Accounts, func(a *models.Account) bool { return a.ID == owner.ID })
	if !ok {
		return fmt.Errorf("no account found with id %s: %w", owner.ID, ErrNotFound)
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Type == "" {
		tx.Type = models.TypeUnknown
	}
	m.Transactions = append(m.Transactions, copyTransaction(tx))
	stored.Balance = owner.Balance
	stored.ImportDate = owner.ImportDate
	return nil
}

func (m *MockDB) filterAlerts(pred func(*models.ReportAlert) bool) []*models.ReportAlert {
	return lo.FilterMap(m.Alerts, func(a *models.ReportAlert, _ int) (*models.ReportAlert, bool) {
		if !pred(a) {
			return nil, false
		}
		return copyAlert(a), true
	})
}

func (m *MockDB) GetAlerts() ([]*models.ReportAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetAlertsErr != nil {
		return nil, m.GetAlertsErr
	}
	return m.filterAlerts(func(*models.ReportAlert) bool { return true }), nil
}

func (m *MockDB) GetAlertsByAccount(accountID string) ([]*models.ReportAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetAlertsErr != nil {
		return nil, m.GetAlertsErr
	}
	return m.filterAlerts(func(a *models.ReportAlert) bool { return a.AccountID == accountID }), nil
}

func (m *MockDB) GetReportsByFrequency(frequency models.Frequency) ([]*models.ReportAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetReportsByFrequencyErr != nil {
		return nil, m.GetReportsByFrequencyErr
	}
	return m.filterAlerts(func(a *models.ReportAlert) bool {
		return a.Kind == models.AlertReport && a.Frequency == frequency
	}), nil
}

func (m *MockDB) SaveAlert(alert *models.ReportAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveAlertErr != nil {
		return m.SaveAlertErr
	}
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if i := slices.IndexFunc(m.Alerts, func(a *models.ReportAlert) bool { return a.ID == alert.ID }); i >= 0 {
		m.Alerts[i] = copyAlert(alert)
		return nil
	}
	m.Alerts = append(m.Alerts, copyAlert(alert))
	return nil
}

func (m *MockDB) RemoveAlert(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveAlertErr != nil {
		return m.RemoveAlertErr
	}
	i := slices.IndexFunc(m.Alerts, func(a *models.ReportAlert) bool { return a.ID == id })
	if i < 0 {
		return fmt.Errorf("no alert found with id %s: %w", id, ErrNotFound)
	}
	m.Alerts = slices.Delete(m.Alerts, i, i+1)
	return nil
}

// Initialize is a no-op for the mock database
func (m *MockDB) Initialize() error {
	return nil
}

// Close is a no-op for the mock database
func (m *MockDB) Close() error {
	return nil
}
