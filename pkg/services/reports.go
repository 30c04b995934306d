package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/vpnda/bankpoll/db"
	"github.com/vpnda/bankpoll/pkg/models"
	"github.com/vpnda/bankpoll/pkg/utils"
)

// Report is a rendered digest, ready to hand to a Notifier.
type Report struct {
	Subject string
	Content string
}

type ReportManager struct {
	database        db.DBInterface
	notifier        Notifier
	weeklyDay       time.Weekday
	defaultCurrency string
}

func NewReportManager(database db.DBInterface, notifier Notifier, weeklyDay time.Weekday, defaultCurrency string) *ReportManager {
	return &ReportManager{
		database:        database,
		notifier:        notifier,
		weeklyDay:       weeklyDay,
		defaultCurrency: defaultCurrency,
	}
}

// ManageReports sends the daily digest, plus the weekly one on the
// configured weekday and the monthly one on the first of the month.
func (m *ReportManager) ManageReports(ctx context.Context, now time.Time) error {
	frequencies := []models.Frequency{models.FrequencyDaily}
	if now.Weekday() == m.weeklyDay {
		frequencies = append(frequencies, models.FrequencyWeekly)
	}
	if now.Day() == 1 {
		frequencies = append(frequencies, models.FrequencyMonthly)
	}

	var errs []error
	for _, frequency := range frequencies {
		if err := m.SendReport(ctx, frequency, now); err != nil {
			log.Error().Err(err).Str("frequency", string(frequency)).Msg("Failed to send report")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendReport builds and sends one digest. Nothing is sent when no
// transaction falls in the window.
func (m *ReportManager) SendReport(ctx context.Context, frequency models.Frequency, now time.Time) error {
	report, err := m.BuildReport(frequency, now)
	if err != nil {
		return err
	}
	if report == nil {
		log.Info().Str("frequency", string(frequency)).Msg("Nothing to report")
		return nil
	}
	if err := m.notifier.Send(ctx, report.Subject, report.Content); err != nil {
		return fmt.Errorf("failed to send %s report: %w", frequency, err)
	}
	log.Info().Str("frequency", string(frequency)).Msg("Report sent")
	return nil
}

// WindowStart returns the instant after which transactions belong to a
// report: start of the previous day, seven days back from the start of
// today, or the first of the previous month. Days are cut in now's location.
func WindowStart(frequency models.Frequency, now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch frequency {
	case models.FrequencyWeekly:
		return today.AddDate(0, 0, -7)
	case models.FrequencyMonthly:
		return time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, now.Location())
	default:
		return today.AddDate(0, 0, -1)
	}
}

// BuildReport renders the digest for one frequency, or returns nil when
// there is nothing to report.
func (m *ReportManager) BuildReport(frequency models.Frequency, now time.Time) (*Report, error) {
	alerts, err := m.database.GetReportsByFrequency(frequency)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s reports: %w", frequency, err)
	}
	if len(alerts) == 0 {
		return nil, nil
	}

	accountIDs := lo.Uniq(lo.Map(alerts, func(a *models.ReportAlert, _ int) string { return a.AccountID }))
	accounts, err := m.database.GetAccountsByIDs(accountIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load report accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	slices.SortFunc(accounts, func(a, b *models.Account) int {
		return cmp.Or(cmp.Compare(a.Label, b.Label), cmp.Compare(a.ID, b.ID))
	})

	start := WindowStart(frequency, now)
	txs, err := m.database.GetTransactionsByAccounts(lo.Map(accounts, func(a *models.Account, _ int) string { return a.ID }))
	if err != nil {
		return nil, fmt.Errorf("failed to load report transactions: %w", err)
	}
	txs = lo.Filter(txs, func(tx *models.Transaction, _ int) bool { return tx.ReportDate().After(start) })
	if len(txs) == 0 {
		return nil, nil
	}
	// stable: equal dates keep fetch order
	slices.SortStableFunc(txs, func(a, b *models.Transaction) int { return a.Date.Compare(b.Date) })
	byAccount := lo.GroupBy(txs, func(tx *models.Transaction) string { return tx.AccountID })

	var b strings.Builder
	fmt.Fprintf(&b, "Hi,\n\nYour %s report for %s.\n\n", frequency, now.Format(time.DateOnly))

	b.WriteString("Balances:\n")
	for _, account := range accounts {
		fmt.Fprintf(&b, "\t%s: %s (last sync %s)\n",
			account.Label,
			models.FormatAmount(account.Balance, m.currency(account)),
			account.LastChecked.Format(time.DateOnly))
	}

	b.WriteString("\nNew transactions:\n")
	for _, account := range accounts {
		accountTxs := byAccount[account.ID]
		if len(accountTxs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\t%s:\n", account.Label)
		for _, tx := range accountTxs {
			fmt.Fprintf(&b, "\t- %s  %s  %s\n",
				tx.Date.Format(time.DateOnly),
				tx.DisplayLabel(),
				models.FormatAmount(tx.Amount, m.currency(account)))
		}
	}

	return &Report{
		Subject: fmt.Sprintf("Bankpoll: %s report", utils.Capitalize(string(frequency))),
		Content: b.String(),
	}, nil
}

func (m *ReportManager) currency(account *models.Account) string {
	if account.Currency != "" {
		return account.Currency
	}
	return m.defaultCurrency
}
