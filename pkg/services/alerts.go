package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/vpnda/bankpoll/db"
	"github.com/vpnda/bankpoll/pkg/models"
)

// AlertChecker evaluates balance and transaction alerts against freshly
// merged data.
//
// A balance alert notifies when the balance crosses its limit and stays
// silent while it remains on that side; going back resets it. A non-zero
// debounce lets it fire again after that long even without a reset.
// Transaction alerts fire for each new transaction whose absolute amount
// crosses the limit. The merge hands every transaction over as new only
// once, so they keep no state.
type AlertChecker struct {
	database        db.DBInterface
	notifier        Notifier
	notified        *cache.Cache
	defaultCurrency string
}

func NewAlertChecker(database db.DBInterface, notifier Notifier, debounce time.Duration, defaultCurrency string) *AlertChecker {
	var notified *cache.Cache
	if debounce > 0 {
		notified = cache.New(debounce, 2*debounce)
	} else {
		notified = cache.New(cache.NoExpiration, 0)
	}
	return &AlertChecker{
		database:        database,
		notifier:        notifier,
		notified:        notified,
		defaultCurrency: defaultCurrency,
	}
}

// Check evaluates every alert bound to the given accounts.
func (c *AlertChecker) Check(ctx context.Context, accounts []*models.Account, newTxs []*models.Transaction) error {
	txsByAccount := lo.GroupBy(newTxs, func(tx *models.Transaction) string { return tx.AccountID })

	var errs []error
	for _, account := range accounts {
		alerts, err := c.database.GetAlertsByAccount(account.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load alerts of account %s: %w", account.ID, err))
			continue
		}

		for _, alert := range alerts {
			switch alert.Kind {
			case models.AlertBalance:
				crossed := alert.Operator.Compare(account.Balance, alert.Limit)
				errs = append(errs, c.notify(ctx, alert.ID, crossed, c.balanceMessage(account, alert)))
			case models.AlertTransaction:
				for _, tx := range txsByAccount[account.ID] {
					crossed := alert.Operator.Compare(tx.Amount.Abs(), alert.Limit)
					if !crossed {
						continue
					}
					errs = append(errs, c.send(ctx, alert.ID, c.transactionMessage(account, alert, tx)))
				}
			}
		}
	}
	return errors.Join(errs...)
}

type alertMessage struct {
	subject string
	content string
}

func (c *AlertChecker) notify(ctx context.Context, key string, crossed bool, msg alertMessage) error {
	if !crossed {
		c.notified.Delete(key)
		return nil
	}
	if _, found := c.notified.Get(key); found {
		log.Debug().Str("alert", key).Msg("Alert already notified")
		return nil
	}
	if err := c.send(ctx, key, msg); err != nil {
		return err
	}
	c.notified.SetDefault(key, time.Now())
	return nil
}

func (c *AlertChecker) send(ctx context.Context, alertID string, msg alertMessage) error {
	if err := c.notifier.Send(ctx, msg.subject, msg.content); err != nil {
		return fmt.Errorf("failed to send alert %s: %w", alertID, err)
	}
	return nil
}

func (c *AlertChecker) currency(account *models.Account) string {
	if account.Currency != "" {
		return account.Currency
	}
	return c.defaultCurrency
}

func operatorText(op models.Operator) string {
	if op == models.OperatorGreaterThan {
		return "above"
	}
	return "below"
}

func (c *AlertChecker) balanceMessage(account *models.Account, alert *models.ReportAlert) alertMessage {
	currency := c.currency(account)
	return alertMessage{
		subject: fmt.Sprintf("Alert: balance of %s %s %s", account.Label, operatorText(alert.Operator),
			models.FormatAmount(alert.Limit, currency)),
		content: fmt.Sprintf("The balance of account %s is now %s, %s the limit of %s.",
			account.Label,
			models.FormatAmount(account.Balance, currency),
			operatorText(alert.Operator),
			models.FormatAmount(alert.Limit, currency)),
	}
}

func (c *AlertChecker) transactionMessage(account *models.Account, alert *models.ReportAlert, tx *models.Transaction) alertMessage {
	currency := c.currency(account)
	return alertMessage{
		subject: fmt.Sprintf("Alert: transaction %s %s on %s", operatorText(alert.Operator),
			models.FormatAmount(alert.Limit, currency), account.Label),
		content: fmt.Sprintf("Transaction %q of %s on %s, dated %s.",
			tx.DisplayLabel(),
			models.FormatAmount(tx.Amount, currency),
			account.Label,
			tx.Date.Format(time.DateOnly)),
	}
}
