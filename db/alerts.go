package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vpnda/bankpoll/pkg/models"
)

const alertColumns = `id, account_id, kind, frequency, operator, limit_value`

func scanAlert(row rowScanner) (*models.ReportAlert, error) {
	var (
		a     models.ReportAlert
		kind  string
		freq  string
		op    string
		limit string
	)
	if err := row.Scan(&a.ID, &a.AccountID, &kind, &freq, &op, &limit); err != nil {
		return nil, err
	}
	a.Kind = models.AlertKind(kind)
	a.Frequency = models.Frequency(freq)
	a.Operator = models.Operator(op)

	var err error
	if a.Limit, err = decimal.NewFromString(limit); err != nil {
		return nil, fmt.Errorf("invalid limit %q for alert %s: %w", limit, a.ID, err)
	}
	return &a, nil
}

func (db *DB) queryAlerts(query string, args ...any) ([]*models.ReportAlert, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.ReportAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

func (db *DB) GetAlerts() ([]*models.ReportAlert, error) {
	return db.queryAlerts(`SELECT ` + alertColumns + ` FROM alerts ORDER BY kind, id`)
}

func (db *DB) GetAlertsByAccount(accountID string) ([]*models.ReportAlert, error) {
	return db.queryAlerts(`SELECT `+alertColumns+` FROM alerts WHERE account_id = ? ORDER BY kind, id`, accountID)
}

// GetReportsByFrequency returns the report subscriptions for one frequency
func (db *DB) GetReportsByFrequency(frequency models.Frequency) ([]*models.ReportAlert, error) {
	return db.queryAlerts(
		`SELECT `+alertColumns+` FROM alerts WHERE kind = ? AND frequency = ? ORDER BY id`,
		string(models.AlertReport), string(frequency),
	)
}

// SaveAlert validates then inserts or updates an alert
func (db *DB) SaveAlert(alert *models.ReportAlert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	query := `
	INSERT INTO alerts (` + alertColumns + `)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		account_id = excluded.account_id,
		kind = excluded.kind,
		frequency = excluded.frequency,
		operator = excluded.operator,
		limit_value = excluded.limit_value
	`
	_, err := db.Exec(query,
		alert.ID,
		alert.AccountID,
		string(alert.Kind),
		string(alert.Frequency),
		string(alert.Operator),
		alert.Limit.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// RemoveAlert removes an alert by its id
func (db *DB) RemoveAlert(id string) error {
	result, err := db.Exec(`DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove alert: %w", err)
	}
	return checkAffected(result, "alert", id)
}
