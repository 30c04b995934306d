package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vpnda/bankpoll/pkg/models"
)

const accountColumns = `id, access_id, account_number, label, iban, balance, currency, import_date, last_checked`

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a           models.Account
		balance     string
		importDate  string
		lastChecked string
	)
	err := row.Scan(
		&a.ID,
		&a.AccessID,
		&a.AccountNumber,
		&a.Label,
		&a.IBAN,
		&balance,
		&a.Currency,
		&importDate,
		&lastChecked,
	)
	if err != nil {
		return nil, err
	}

	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid balance %q for account %s: %w", balance, a.ID, err)
	}
	if a.ImportDate, err = parseTime(importDate); err != nil {
		return nil, fmt.Errorf("invalid import date for account %s: %w", a.ID, err)
	}
	if a.LastChecked, err = parseTime(lastChecked); err != nil {
		return nil, fmt.Errorf("invalid last check date for account %s: %w", a.ID, err)
	}
	return &a, nil
}

func (db *DB) queryAccounts(query string, args ...any) ([]*models.Account, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over accounts: %w", err)
	}
	return accounts, nil
}

func (db *DB) GetAccounts() ([]*models.Account, error) {
	return db.queryAccounts(`SELECT ` + accountColumns + ` FROM accounts ORDER BY access_id, account_number`)
}

func (db *DB) GetAccountsByAccess(accessID string) ([]*models.Account, error) {
	return db.queryAccounts(`SELECT `+accountColumns+` FROM accounts WHERE access_id = ? ORDER BY account_number`, accessID)
}

func (db *DB) GetAccountsByIDs(ids []string) ([]*models.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	return db.queryAccounts(`SELECT `+accountColumns+` FROM accounts WHERE id IN (`+placeholders+`) ORDER BY label, id`, args...)
}

// GetAccountByNumber looks an account up by its reconciliation key
func (db *DB) GetAccountByNumber(accessID, accountNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE access_id = ? AND account_number = ? LIMIT 1`
	account, err := scanAccount(db.QueryRow(query, accessID, accountNumber))
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// SaveAccount inserts or updates an account. A missing id is generated.
func (db *DB) SaveAccount(account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	query := `
	INSERT INTO accounts (` + accountColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		label = excluded.label,
		iban = excluded.iban,
		balance = excluded.balance,
		currency = excluded.currency,
		import_date = excluded.import_date,
		last_checked = excluded.last_checked
	`
	_, err := db.Exec(query,
		account.ID,
		account.AccessID,
		account.AccountNumber,
		account.Label,
		account.IBAN,
		account.Balance.String(),
		account.Currency,
		formatTime(account.ImportDate),
		formatTime(account.LastChecked),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}
