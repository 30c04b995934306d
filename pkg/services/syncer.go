package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vpnda/bankpoll/db"
	"github.com/vpnda/bankpoll/pkg/models"
	"github.com/vpnda/bankpoll/pkg/source"
)

// Syncer fetches data for one access at a time and merges it into the
// database. Fetch-then-merge cycles for the same access never interleave.
type Syncer struct {
	source   source.Source
	database db.DBInterface
	alerts   *AlertChecker
	debug    bool

	locks sync.Map // access id -> *sync.Mutex
	now   func() time.Time
}

func NewSyncer(src source.Source, database db.DBInterface, alerts *AlertChecker) *Syncer {
	return &Syncer{
		source:   src,
		database: database,
		alerts:   alerts,
		now:      time.Now,
	}
}

// SetDebug makes every fetch ask the source for verbose output.
func (s *Syncer) SetDebug(debug bool) {
	s.debug = debug
}

func (s *Syncer) GetSource() source.Source {
	return s.source
}

func (s *Syncer) lockAccess(accessID string) func() {
	mu, _ := s.locks.LoadOrStore(accessID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// RetrieveAccountsByAccess refreshes the account list of an access.
func (s *Syncer) RetrieveAccountsByAccess(ctx context.Context, access *models.Access) (*MergeSummary, error) {
	return s.SyncAccess(ctx, access, true, false)
}

// RetrieveTransactionsByAccess fetches and merges new transactions.
func (s *Syncer) RetrieveTransactionsByAccess(ctx context.Context, access *models.Access) (*MergeSummary, error) {
	return s.SyncAccess(ctx, access, false, true)
}

// SyncAccess fetches accounts and/or transactions for one access and merges
// them in a single pass. A source error is recorded on the access and stops
// the cycle before anything is merged.
func (s *Syncer) SyncAccess(ctx context.Context, access *models.Access, withAccounts, withTransactions bool) (*MergeSummary, error) {
	unlock := s.lockAccess(access.ID)
	defer unlock()

	logger := log.With().Str("access", access.ID).Str("module", access.ModuleID).Logger()
	opts := source.FetchOptions{Debug: s.debug}

	var fetchedAccounts []models.FetchedAccount
	if withAccounts {
		accounts, err := s.source.FetchAccounts(ctx, access, opts)
		if err == nil && len(accounts) == 0 {
			err = source.NewError(models.ErrNoAccounts, "no accounts returned for access "+access.ID)
		}
		if err != nil {
			return nil, s.recordFetchError(access, err)
		}
		logger.Info().Int("count", len(accounts)).Msg("Fetched accounts")
		fetchedAccounts = accounts
	}

	var fetchedTransactions []models.FetchedTransaction
	if withTransactions {
		txs, err := s.source.FetchTransactions(ctx, access, opts)
		if err != nil {
			return nil, s.recordFetchError(access, err)
		}
		logger.Info().Int("count", len(txs)).Msg("Fetched transactions")
		fetchedTransactions = txs
	}

	summary, err := s.merge(access, fetchedAccounts, fetchedTransactions)
	if summary == nil {
		return nil, err
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Some fetched records were skipped")
	}

	if access.FetchStatus != models.FetchStatusOK {
		if statusErr := s.database.UpdateAccessFetchStatus(access.ID, models.FetchStatusOK); statusErr != nil {
			logger.Error().Err(statusErr).Msg("Failed to clear fetch status")
		} else {
			access.FetchStatus = models.FetchStatusOK
		}
	}

	if s.alerts != nil {
		if alertErr := s.alerts.Check(ctx, summary.Accounts, summary.NewTransactions); alertErr != nil {
			logger.Error().Err(alertErr).Msg("Failed to evaluate alerts")
		}
	}

	logger.Info().
		Int("new_accounts", summary.NewAccounts).
		Int("new_transactions", len(summary.NewTransactions)).
		Int("known_transactions", summary.KnownTransactions).
		Msg("Access synchronized")
	return summary, err
}

// recordFetchError stores the source error code on the access. Crashes
// carry no code and are only logged; the next poll retries them.
func (s *Syncer) recordFetchError(access *models.Access, err error) error {
	code := source.CodeOf(err)
	event := log.Error().Err(err).Str("access", access.ID)
	if code == models.FetchStatusOK {
		event.Msg("Fetch crashed")
		return err
	}

	event.Str("code", string(code)).Msg("Fetch failed")
	if statusErr := s.database.UpdateAccessFetchStatus(access.ID, code); statusErr != nil {
		log.Error().Err(statusErr).Str("access", access.ID).Msg("Failed to record fetch status")
		return err
	}
	access.FetchStatus = code
	return err
}
