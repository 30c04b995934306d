package db

import (
	"github.com/vpnda/bankpoll/pkg/models"
)

// DBInterface defines the interface for database operations.
// Single-row getters return (nil, nil) when nothing matches.
type DBInterface interface {
	Initialize() error
	Close() error

	GetAccesses() ([]*models.Access, error)
	GetAccess(id string) (*models.Access, error)
	SaveAccess(access *models.Access) error
	UpdateAccessFetchStatus(id string, status models.ErrorCode) error

	GetAccounts() ([]*models.Account, error)
	GetAccountsByAccess(accessID string) ([]*models.Account, error)
	GetAccountsByIDs(ids []string) ([]*models.Account, error)
	GetAccountByNumber(accessID, accountNumber string) (*models.Account, error)
	SaveAccount(account *models.Account) error

	GetTransactions() ([]*models.Transaction, error)
	// GetTransactionsByAccounts returns transactions in insertion order.
	GetTransactionsByAccounts(accountIDs []string) ([]*models.Transaction, error)
	// InsertTransaction stores tx and the owner's balance and import date in
	// one database transaction.
	InsertTransaction(tx *models.Transaction, owner *models.Account) error

	GetAlerts() ([]*models.ReportAlert, error)
	GetAlertsByAccount(accountID string) ([]*models.ReportAlert, error)
	GetReportsByFrequency(frequency models.Frequency) ([]*models.ReportAlert, error)
	SaveAlert(alert *models.ReportAlert) error
	RemoveAlert(id string) error
}

// Ensure DB implements DBInterface
var _ DBInterface = (*DB)(nil)

// Ensure MockDB implements DBInterface
var _ DBInterface = (*MockDB)(nil)
