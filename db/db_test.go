package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vpnda/bankpoll/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	return db
}

func seedAccount(t *testing.T, db DBInterface, number string) (*models.Access, *models.Account) {
	t.Helper()
	access := &models.Access{ModuleID: "bnp", Login: "jdoe", Password: "secret", Enabled: true}
	if err := db.SaveAccess(access); err != nil {
		t.Fatalf("Failed to save access: %v", err)
	}
	account := &models.Account{
		AccessID:      access.ID,
		AccountNumber: number,
		Label:         "Checking",
		Balance:       decimal.NewFromInt(1000),
		Currency:      "EUR",
		ImportDate:    time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC),
		LastChecked:   time.Now(),
	}
	if err := db.SaveAccount(account); err != nil {
		t.Fatalf("Failed to save account: %v", err)
	}
	return access, account
}

func TestInitialize(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"accesses", "accounts", "transactions", "alerts"} {
		var tableName string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&tableName)
		if err != nil {
			t.Fatalf("Failed to query for %s table: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("Expected table name '%s', got '%s'", table, tableName)
		}
	}

	// running the migrations again is a no-op and keeps the connection usable
	if err := db.Initialize(); err != nil {
		t.Fatalf("Second initialize failed: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("Connection closed by migrations: %v", err)
	}
}

func TestSaveAndGetAccess(t *testing.T) {
	db := newTestDB(t)

	access := &models.Access{
		ModuleID: "bnp",
		Login:    "jdoe",
		Password: "secret",
		CustomFields: []models.CustomField{
			{Name: "website", Value: "par"},
		},
		Enabled: true,
	}
	if err := db.SaveAccess(access); err != nil {
		t.Fatalf("Failed to save access: %v", err)
	}
	if access.ID == "" {
		t.Fatalf("Expected an id to be generated")
	}

	got, err := db.GetAccess(access.ID)
	if err != nil {
		t.Fatalf("Failed to get access: %v", err)
	}
	if got == nil {
		t.Fatalf("Expected access, got nil")
	}
	if got.Password != "secret" || got.Login != "jdoe" {
		t.Errorf("Unexpected credentials %q/%q", got.Login, got.Password)
	}
	if len(got.CustomFields) != 1 || got.CustomFields[0].Value != "par" {
		t.Errorf("Unexpected custom fields %+v", got.CustomFields)
	}

	if err := db.UpdateAccessFetchStatus(access.ID, models.ErrInvalidPassword); err != nil {
		t.Fatalf("Failed to update fetch status: %v", err)
	}
	got, _ = db.GetAccess(access.ID)
	if got.FetchStatus != models.ErrInvalidPassword {
		t.Errorf("Expected status INVALID_PASSWORD, got %q", got.FetchStatus)
	}

	err = db.UpdateAccessFetchStatus("missing", models.FetchStatusOK)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	missing, err := db.GetAccess("missing")
	if err != nil || missing != nil {
		t.Errorf("Expected (nil, nil) for missing access, got (%v, %v)", missing, err)
	}

	accesses, err := db.GetAccesses()
	if err != nil {
		t.Fatalf("Failed to list accesses: %v", err)
	}
	if len(accesses) != 1 {
		t.Errorf("Expected 1 access, got %d", len(accesses))
	}
}

func TestAccountUpsertKeepsID(t *testing.T) {
	db := newTestDB(t)
	access, account := seedAccount(t, db, "123")

	account.Label = "Main checking"
	account.Balance = decimal.RequireFromString("700.50")
	if err := db.SaveAccount(account); err != nil {
		t.Fatalf("Failed to update account: %v", err)
	}

	got, err := db.GetAccountByNumber(access.ID, "123")
	if err != nil {
		t.Fatalf("Failed to get account: %v", err)
	}
	if got.ID != account.ID {
		t.Errorf("Expected id %s, got %s", account.ID, got.ID)
	}
	if got.Label != "Main checking" || !got.Balance.Equal(decimal.RequireFromString("700.5")) {
		t.Errorf("Unexpected account %+v", got)
	}

	accounts, _ := db.GetAccountsByAccess(access.ID)
	if len(accounts) != 1 {
		t.Errorf("Expected 1 account, got %d", len(accounts))
	}

	// the account number is unique within an access
	clash := &models.Account{AccessID: access.ID, AccountNumber: "123"}
	if err := db.SaveAccount(clash); err == nil {
		t.Errorf("Expected unique constraint violation")
	}

	none, err := db.GetAccountByNumber(access.ID, "999")
	if err != nil || none != nil {
		t.Errorf("Expected (nil, nil) for unknown number, got (%v, %v)", none, err)
	}
}

func TestInsertTransactionMovesBalance(t *testing.T) {
	db := newTestDB(t)
	_, account := seedAccount(t, db, "123")

	custom := "rent"
	tx := &models.Transaction{
		AccountID:   account.ID,
		Amount:      decimal.NewFromInt(-300),
		Label:       "Rent",
		RawLabel:    "RENT MAY",
		Date:        time.Date(2020, 5, 4, 0, 0, 0, 0, time.UTC),
		ImportDate:  time.Now(),
		Type:        models.TypeTransfer,
		CustomLabel: &custom,
	}
	account.Balance = account.Balance.Add(tx.Amount)
	if err := db.InsertTransaction(tx, account); err != nil {
		t.Fatalf("Failed to insert transaction: %v", err)
	}

	got, _ := db.GetAccountsByIDs([]string{account.ID})
	if len(got) != 1 || !got[0].Balance.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("Expected balance 700, got %+v", got)
	}

	txs, err := db.GetTransactionsByAccounts([]string{account.ID})
	if err != nil {
		t.Fatalf("Failed to get transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(txs))
	}
	if txs[0].CustomLabel == nil || *txs[0].CustomLabel != "rent" {
		t.Errorf("Expected custom label to round trip")
	}
	if txs[0].CategoryID != nil {
		t.Errorf("Expected nil category")
	}
	if !txs[0].Date.Equal(tx.Date) {
		t.Errorf("Expected date %s, got %s", tx.Date, txs[0].Date)
	}

	// a transaction for an unknown account leaves nothing behind
	ghost := &models.Account{ID: "ghost", Balance: decimal.NewFromInt(1)}
	orphan := &models.Transaction{AccountID: account.ID, Amount: decimal.NewFromInt(1), Date: time.Now()}
	if err := db.InsertTransaction(orphan, ghost); err == nil {
		t.Errorf("Expected error for unknown owner")
	}
	all, _ := db.GetTransactions()
	if len(all) != 1 {
		t.Errorf("Expected rollback to keep 1 transaction, got %d", len(all))
	}
}

func TestTransactionsKeepInsertionOrder(t *testing.T) {
	db := newTestDB(t)
	_, account := seedAccount(t, db, "123")

	dates := []time.Time{
		time.Date(2020, 5, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 5, 5, 0, 0, 0, 0, time.UTC),
	}
	var ids []string
	for _, d := range dates {
		tx := &models.Transaction{AccountID: account.ID, Amount: decimal.NewFromInt(1), Date: d, ImportDate: d}
		account.Balance = account.Balance.Add(tx.Amount)
		if err := db.InsertTransaction(tx, account); err != nil {
			t.Fatalf("Failed to insert transaction: %v", err)
		}
		ids = append(ids, tx.ID)
	}

	txs, _ := db.GetTransactionsByAccounts([]string{account.ID, "other"})
	for i, tx := range txs {
		if tx.ID != ids[i] {
			t.Errorf("Position %d: expected %s, got %s", i, ids[i], tx.ID)
		}
	}
}

func TestAlerts(t *testing.T) {
	db := newTestDB(t)
	_, account := seedAccount(t, db, "123")

	weekly := &models.ReportAlert{AccountID: account.ID, Kind: models.AlertReport, Frequency: models.FrequencyWeekly}
	low := &models.ReportAlert{
		AccountID: account.ID,
		Kind:      models.AlertBalance,
		Operator:  models.OperatorLessThan,
		Limit:     decimal.NewFromInt(100),
	}
	for _, a := range []*models.ReportAlert{weekly, low} {
		if err := db.SaveAlert(a); err != nil {
			t.Fatalf("Failed to save alert: %v", err)
		}
	}

	invalid := &models.ReportAlert{AccountID: account.ID, Kind: models.AlertReport, Frequency: "yearly"}
	if err := db.SaveAlert(invalid); err == nil {
		t.Errorf("Expected invalid alert to be rejected")
	}

	reports, err := db.GetReportsByFrequency(models.FrequencyWeekly)
	if err != nil {
		t.Fatalf("Failed to get reports: %v", err)
	}
	if len(reports) != 1 || reports[0].ID != weekly.ID {
		t.Errorf("Expected only the weekly report, got %+v", reports)
	}
	if daily, _ := db.GetReportsByFrequency(models.FrequencyDaily); len(daily) != 0 {
		t.Errorf("Expected no daily report, got %d", len(daily))
	}

	byAccount, _ := db.GetAlertsByAccount(account.ID)
	if len(byAccount) != 2 {
		t.Errorf("Expected 2 alerts, got %d", len(byAccount))
	}
	for _, a := range byAccount {
		if a.ID == low.ID && !a.Limit.Equal(decimal.NewFromInt(100)) {
			t.Errorf("Expected limit 100, got %s", a.Limit)
		}
	}

	if err := db.RemoveAlert(low.ID); err != nil {
		t.Fatalf("Failed to remove alert: %v", err)
	}
	if err := db.RemoveAlert(low.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	all, _ := db.GetAlerts()
	if len(all) != 1 {
		t.Errorf("Expected 1 alert left, got %d", len(all))
	}
}

func TestMockDBMatchesContract(t *testing.T) {
	m := NewMockDB()
	_, account := seedAccount(t, m, "123")

	tx := &models.Transaction{AccountID: account.ID, Amount: decimal.NewFromInt(-300), Date: time.Now()}
	account.Balance = account.Balance.Add(tx.Amount)
	if err := m.InsertTransaction(tx, account); err != nil {
		t.Fatalf("Failed to insert transaction: %v", err)
	}

	// returned rows are copies
	account.Balance = decimal.Zero
	got, _ := m.GetAccountByNumber(account.AccessID, "123")
	if !got.Balance.Equal(decimal.NewFromInt(700)) {
		t.Errorf("Expected stored balance 700, got %s", got.Balance)
	}

	m.InsertTransactionErr = errors.New("disk full")
	if err := m.InsertTransaction(&models.Transaction{}, got); err == nil {
		t.Errorf("Expected injected error")
	}
}
