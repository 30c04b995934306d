package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vpnda/bankpoll/pkg/models"
)

const accessColumns = `id, module_id, login, password, custom_fields, enabled, fetch_status, disabled_reason, created_at`

func scanAccess(row rowScanner) (*models.Access, error) {
	var (
		a            models.Access
		customFields string
		fetchStatus  string
		createdAt    string
	)
	err := row.Scan(
		&a.ID,
		&a.ModuleID,
		&a.Login,
		&a.Password,
		&customFields,
		&a.Enabled,
		&fetchStatus,
		&a.DisabledReason,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(customFields), &a.CustomFields); err != nil {
		return nil, fmt.Errorf("failed to decode custom fields of access %s: %w", a.ID, err)
	}
	a.FetchStatus = models.ErrorCode(fetchStatus)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse creation date of access %s: %w", a.ID, err)
	}
	return &a, nil
}

// GetAccesses retrieves all accesses, oldest first
func (db *DB) GetAccesses() ([]*models.Access, error) {
	rows, err := db.Query(`SELECT ` + accessColumns + ` FROM accesses ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accesses: %w", err)
	}
	defer rows.Close()

	var accesses []*models.Access
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access: %w", err)
		}
		accesses = append(accesses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accesses: %w", err)
	}
	return accesses, nil
}

// GetAccess retrieves an access by its id
func (db *DB) GetAccess(id string) (*models.Access, error) {
	a, err := scanAccess(db.QueryRow(`SELECT `+accessColumns+` FROM accesses WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get access: %w", err)
	}
	return a, nil
}

// SaveAccess inserts or updates an access. A missing id is generated.
func (db *DB) SaveAccess(access *models.Access) error {
	if access.ID == "" {
		access.ID = uuid.NewString()
	}
	if access.CreatedAt.IsZero() {
		access.CreatedAt = time.Now()
	}
	fields := access.CustomFields
	if fields == nil {
		fields = []models.CustomField{}
	}
	customFields, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode custom fields: %w", err)
	}

	query := `
	INSERT INTO accesses (` + accessColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		module_id = excluded.module_id,
		login = excluded.login,
		password = excluded.password,
		custom_fields = excluded.custom_fields,
		enabled = excluded.enabled,
		fetch_status = excluded.fetch_status,
		disabled_reason = excluded.disabled_reason
	`
	_, err = db.Exec(query,
		access.ID,
		access.ModuleID,
		access.Login,
		access.Password,
		string(customFields),
		access.Enabled,
		string(access.FetchStatus),
		access.DisabledReason,
		formatTime(access.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save access: %w", err)
	}
	return nil
}

// UpdateAccessFetchStatus records the outcome of the last fetch
func (db *DB) UpdateAccessFetchStatus(id string, status models.ErrorCode) error {
	result, err := db.Exec(`UPDATE accesses SET fetch_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update fetch status: %w", err)
	}
	return checkAffected(result, "access", id)
}
