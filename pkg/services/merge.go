package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/vpnda/bankpoll/pkg/models"
)

// OrphanTransactionError is reported for a fetched transaction whose
// account number matches no account of the access.
type OrphanTransactionError struct {
	AccessID      string
	AccountNumber string
	Label         string
}

func (e *OrphanTransactionError) Error() string {
	return fmt.Sprintf("transaction %q references unknown account %q of access %s", e.Label, e.AccountNumber, e.AccessID)
}

// MergeSummary describes what one merge changed.
type MergeSummary struct {
	NewAccounts     int
	UpdatedAccounts int
	// Accounts touched by the merge, with their final state
	Accounts          []*models.Account
	NewTransactions   []*models.Transaction
	KnownTransactions int
	Skipped           int
}

// MergeFetchResult merges fetched accounts and transactions of one access.
// Accounts are reconciled first. Per-record failures are joined into the
// returned error while the rest of the batch is still merged; a nil summary
// means nothing could be merged.
func (s *Syncer) MergeFetchResult(access *models.Access, accounts []models.FetchedAccount, txs []models.FetchedTransaction) (*MergeSummary, error) {
	unlock := s.lockAccess(access.ID)
	defer unlock()
	return s.merge(access, accounts, txs)
}

func (s *Syncer) merge(access *models.Access, fetchedAccounts []models.FetchedAccount, fetchedTxs []models.FetchedTransaction) (*MergeSummary, error) {
	now := s.now()
	summary := &MergeSummary{}

	reported := map[string]decimal.Decimal{}
	for _, fetched := range fetchedAccounts {
		account, created, err := s.mergeAccount(access, fetched, now)
		if err != nil {
			return nil, err
		}
		if created {
			summary.NewAccounts++
		} else {
			summary.UpdatedAccounts++
		}
		reported[account.ID] = fetched.Balance
	}

	stored, err := s.database.GetAccountsByAccess(access.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts of access %s: %w", access.ID, err)
	}
	byNumber := lo.KeyBy(stored, func(a *models.Account) string { return a.AccountNumber })

	var errs []error
	if len(fetchedTxs) > 0 {
		known, err := s.knownTransactions(stored)
		if err != nil {
			return nil, err
		}

		for _, fetched := range fetchedTxs {
			account, ok := byNumber[fetched.AccountNumber]
			if !ok {
				orphan := &OrphanTransactionError{
					AccessID:      access.ID,
					AccountNumber: fetched.AccountNumber,
					Label:         fetched.DisplayLabel(),
				}
				log.Warn().Err(orphan).Msg("Skipping orphan transaction")
				errs = append(errs, orphan)
				summary.Skipped++
				continue
			}

			tx, err := newTransaction(account, fetched, now)
			if err != nil {
				log.Warn().Err(err).Str("account", account.ID).Msg("Skipping malformed transaction")
				errs = append(errs, err)
				summary.Skipped++
				continue
			}

			key := transactionKey(tx)
			if known[key] > 0 {
				known[key]--
				summary.KnownTransactions++
				continue
			}

			previousBalance, previousImport := account.Balance, account.ImportDate
			account.Balance = account.Balance.Add(tx.Amount)
			if tx.Date.Before(account.ImportDate) {
				account.ImportDate = tx.Date
			}
			if err := s.database.InsertTransaction(tx, account); err != nil {
				account.Balance, account.ImportDate = previousBalance, previousImport
				errs = append(errs, fmt.Errorf("failed to store transaction %q: %w", tx.Label, err))
				summary.Skipped++
				continue
			}
			summary.NewTransactions = append(summary.NewTransactions, tx)
		}
	}

	// the balance reported alongside the transactions is authoritative
	for id, balance := range reported {
		account, ok := lo.Find(stored, func(a *models.Account) bool { return a.ID == id })
		if !ok || account.Balance.Equal(balance) {
			continue
		}
		account.Balance = balance
		if err := s.database.SaveAccount(account); err != nil {
			errs = append(errs, fmt.Errorf("failed to store balance of account %s: %w", account.ID, err))
		}
	}

	touched := lo.Uniq(append(
		lo.Keys(reported),
		lo.Map(summary.NewTransactions, func(tx *models.Transaction, _ int) string { return tx.AccountID })...,
	))
	summary.Accounts = lo.Filter(stored, func(a *models.Account, _ int) bool { return lo.Contains(touched, a.ID) })

	return summary, errors.Join(errs...)
}

// mergeAccount creates the account or updates it in place, keyed by its
// account number within the access.
func (s *Syncer) mergeAccount(access *models.Access, fetched models.FetchedAccount, now time.Time) (*models.Account, bool, error) {
	account, err := s.database.GetAccountByNumber(access.ID, fetched.AccountNumber)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up account %s: %w", fetched.AccountNumber, err)
	}

	created := account == nil
	if created {
		account = &models.Account{
			AccessID:      access.ID,
			AccountNumber: fetched.AccountNumber,
			ImportDate:    now,
		}
		log.Info().Str("access", access.ID).Str("account", fetched.AccountNumber).Msg("New account found")
	}

	account.Balance = fetched.Balance
	account.LastChecked = now
	if fetched.Label != "" || created {
		account.Label = fetched.Label
	}
	if fetched.Currency != "" {
		account.Currency = fetched.Currency
	}
	if fetched.IBAN != "" {
		account.IBAN = fetched.IBAN
	}

	if err := s.database.SaveAccount(account); err != nil {
		return nil, false, fmt.Errorf("failed to save account %s: %w", fetched.AccountNumber, err)
	}
	return account, created, nil
}

// knownTransactions counts stored transactions by identity so re-delivered
// ones are recognized one-to-one.
func (s *Syncer) knownTransactions(accounts []*models.Account) (map[string]int, error) {
	ids := lo.Map(accounts, func(a *models.Account, _ int) string { return a.ID })
	existing, err := s.database.GetTransactionsByAccounts(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load known transactions: %w", err)
	}
	return lo.CountValuesBy(existing, transactionKey), nil
}

func transactionKey(tx *models.Transaction) string {
	return tx.AccountID + "\x00" + tx.RawLabel + "\x00" + tx.Amount.String() + "\x00" + tx.Date.UTC().Format(time.RFC3339)
}

func newTransaction(account *models.Account, fetched models.FetchedTransaction, now time.Time) (*models.Transaction, error) {
	date, err := models.ParseSourceDate(fetched.Date)
	if err != nil {
		return nil, fmt.Errorf("transaction %q has an invalid date: %w", fetched.DisplayLabel(), err)
	}

	raw := fetched.Raw
	if raw == "" {
		raw = fetched.DisplayLabel()
	}

	tx := &models.Transaction{
		AccountID:  account.ID,
		Amount:     fetched.Amount,
		Label:      fetched.DisplayLabel(),
		RawLabel:   raw,
		Date:       date,
		ImportDate: now,
		Type:       models.ParseTransactionType(string(fetched.Type)),
	}
	if fetched.Binary != nil && fetched.Binary.FileName != "" {
		tx.Attachment = lo.ToPtr(fetched.Binary.FileName)
	}
	return tx, nil
}
