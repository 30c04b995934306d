package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vpnda/bankpoll/pkg/models"
)

const transactionColumns = `id, account_id, amount, label, raw_label, date, import_date, type, custom_label, category_id, attachment`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx          models.Transaction
		amount      string
		date        string
		importDate  string
		txType      string
		customLabel sql.NullString
		categoryID  sql.NullString
		attachment  sql.NullString
	)
	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&amount,
		&tx.Label,
		&tx.RawLabel,
		&date,
		&importDate,
		&txType,
		&customLabel,
		&categoryID,
		&attachment,
	)
	if err != nil {
		return nil, err
	}

	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q for transaction %s: %w", amount, tx.ID, err)
	}
	if tx.Date, err = parseTime(date); err != nil {
		return nil, fmt.Errorf("invalid date for transaction %s: %w", tx.ID, err)
	}
	if tx.ImportDate, err = parseTime(importDate); err != nil {
		return nil, fmt.Errorf("invalid import date for transaction %s: %w", tx.ID, err)
	}
	tx.Type = models.ParseTransactionType(txType)
	tx.CustomLabel = stringPtr(customLabel)
	tx.CategoryID = stringPtr(categoryID)
	tx.Attachment = stringPtr(attachment)
	return &tx, nil
}

func (db *DB) queryTransactions(query string, args ...any) ([]*models.Transaction, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// GetTransactions retrieves all transactions in insertion order
func (db *DB) GetTransactions() ([]*models.Transaction, error) {
	return db.queryTransactions(`SELECT ` + transactionColumns + ` FROM transactions ORDER BY seq`)
}

func (db *DB) GetTransactionsByAccounts(accountIDs []string) ([]*models.Transaction, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(accountIDs)
	return db.queryTransactions(
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id IN (`+placeholders+`) ORDER BY seq`,
		args...,
	)
}

// InsertTransaction adds a new transaction and persists the owning
// account's balance and import date in the same database transaction.
func (db *DB) InsertTransaction(tx *models.Transaction, owner *models.Account) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Type == "" {
		tx.Type = models.TypeUnknown
	}

	sqlTx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.Exec(`
	INSERT INTO transactions (`+transactionColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.AccountID,
		tx.Amount.String(),
		tx.Label,
		tx.RawLabel,
		formatTime(tx.Date),
		formatTime(tx.ImportDate),
		string(tx.Type),
		nullString(tx.CustomLabel),
		nullString(tx.CategoryID),
		nullString(tx.Attachment),
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	result, err := sqlTx.Exec(
		`UPDATE accounts SET balance = ?, import_date = ? WHERE id = ?`,
		owner.Balance.String(),
		formatTime(owner.ImportDate),
		owner.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	if err := checkAffected(result, "account", owner.ID); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
