package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vpnda/bankpoll/pkg/models"
	"github.com/vpnda/bankpoll/pkg/services"
)

func newDuplicatesCmd() *cobra.Command {
	var thresholdHours int

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "List transactions that look like duplicates",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if !cmd.Flags().Changed("threshold") {
				thresholdHours = a.cfg.Duplicates.ThresholdHours
			}
			txs, err := a.db.GetTransactions()
			if err != nil {
				return err
			}

			pairs := services.FindDuplicates(txs, thresholdHours, a.cfg.Duplicates.GetAmountEpsilon())
			if len(pairs) == 0 {
				fmt.Println("No duplicates found")
				return nil
			}

			fmt.Printf("Found %d possible duplicates:\n\n", len(pairs))
			fmt.Printf("%-36s %-36s %-12s %-12s %12s %-10s\n", "First", "Second", "Date", "Date", "Amount", "Similarity")
			fmt.Println(strings.Repeat("-", 125))
			for _, p := range pairs {
				fmt.Printf("%-36s %-36s %-12s %-12s %12s %9.0f%%\n",
					p.A.ID,
					p.B.ID,
					p.A.Date.Format(time.DateOnly),
					p.B.Date.Format(time.DateOnly),
					p.A.Amount.StringFixed(2),
					p.Similarity*100)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&thresholdHours, "threshold", 24, "Maximum distance between the two dates, in hours")
	return cmd
}

func newReportCmd() *cobra.Command {
	var send bool

	cmd := &cobra.Command{
		Use:       "report <daily|weekly|monthly>",
		Short:     "Render a digest, or send it with --send",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.FrequencyDaily), string(models.FrequencyWeekly), string(models.FrequencyMonthly)},
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			frequency, err := models.ParseFrequency(args[0])
			if err != nil {
				return err
			}
			if send {
				return a.reports.SendReport(cmd.Context(), frequency, time.Now())
			}

			report, err := a.reports.BuildReport(frequency, time.Now())
			if err != nil {
				return err
			}
			if report == nil {
				fmt.Println("Nothing to report")
				return nil
			}
			fmt.Println(report.Subject)
			fmt.Println()
			fmt.Print(report.Content)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&send, "send", false, "Send the report through the notifier")
	return cmd
}

func newAlertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Manage reports and threshold alerts",
	}

	var (
		accountID string
		kind      string
		frequency string
		operator  string
		limit     string
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Subscribe an account to a report or a threshold alert",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			alert := &models.ReportAlert{
				AccountID: accountID,
				Kind:      models.AlertKind(kind),
				Frequency: models.Frequency(frequency),
				Operator:  models.Operator(operator),
			}
			if limit != "" {
				value, err := decimal.NewFromString(limit)
				if err != nil {
					return fmt.Errorf("invalid limit %q: %w", limit, err)
				}
				alert.Limit = value
			}
			if err := a.db.SaveAlert(alert); err != nil {
				return err
			}
			log.Info().Str("alert", alert.ID).Str("account", accountID).Str("kind", kind).Msg("Alert added")
			return nil
		}),
	}
	addCmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	addCmd.Flags().StringVar(&kind, "kind", string(models.AlertReport), "report, balance or transaction")
	addCmd.Flags().StringVar(&frequency, "frequency", "", "daily, weekly or monthly (reports)")
	addCmd.Flags().StringVar(&operator, "operator", "", "gt or lt (thresholds)")
	addCmd.Flags().StringVar(&limit, "limit", "", "Threshold amount")
	_ = addCmd.MarkFlagRequired("account")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List reports and alerts",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			alerts, err := a.db.GetAlerts()
			if err != nil {
				return err
			}
			if len(alerts) == 0 {
				fmt.Println("No alerts found")
				return nil
			}
			fmt.Printf("%-36s %-36s %-12s %-30s\n", "ID", "Account", "Kind", "Condition")
			fmt.Println(strings.Repeat("-", 117))
			for _, alert := range alerts {
				condition := string(alert.Frequency)
				if alert.Kind != models.AlertReport {
					condition = fmt.Sprintf("%s %s", alert.Operator, alert.Limit.String())
				}
				fmt.Printf("%-36s %-36s %-12s %-30s\n", alert.ID, alert.AccountID, alert.Kind, condition)
			}
			return nil
		}),
	}

	removeCmd := &cobra.Command{
		Use:   "remove <alert_id>",
		Short: "Remove a report or an alert",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return a.db.RemoveAlert(args[0])
		}),
	}

	cmd.AddCommand(addCmd, listCmd, removeCmd)
	return cmd
}

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Inspect the external source",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of the external source",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			version := a.source.Version(cmd.Context(), true)
			if version == "" {
				return fmt.Errorf("could not determine the version of source %s", a.source.Name())
			}
			fmt.Println(version)
			return nil
		}),
	}

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Check that the external source is installed",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if !a.source.Test(cmd.Context()) {
				return fmt.Errorf("source %s is not installed correctly", a.source.Name())
			}
			fmt.Printf("Source %s is ready\n", a.source.Name())
			return nil
		}),
	}

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update the modules of the external source",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return a.source.UpdateModules(cmd.Context())
		}),
	}

	cmd.AddCommand(versionCmd, testCmd, updateCmd)
	return cmd
}
