package cli

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vpnda/bankpoll/pkg/models"
	"github.com/vpnda/bankpoll/pkg/utils"
)

func newAccessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Manage bank accesses",
	}

	var (
		moduleID string
		login    string
		password string
		fields   []string
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register an access and fetch its accounts",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			customFields, err := parseFields(fields)
			if err != nil {
				return err
			}
			access := &models.Access{
				ModuleID:     moduleID,
				Login:        login,
				Password:     password,
				CustomFields: customFields,
				Enabled:      true,
			}
			if err := a.db.SaveAccess(access); err != nil {
				return fmt.Errorf("error saving access: %w", err)
			}
			log.Info().Str("access", access.ID).Str("module", moduleID).Str("login", utils.Obfuscate(login)).Msg("Access added")

			summary, err := a.syncer.RetrieveAccountsByAccess(cmd.Context(), access)
			if summary == nil {
				return err
			}
			fmt.Printf("Access %s added with %d accounts\n", access.ID, len(summary.Accounts))
			return nil
		}),
	}
	addCmd.Flags().StringVar(&moduleID, "module", "", "Source module handling the bank")
	addCmd.Flags().StringVar(&login, "login", "", "Login of the access")
	addCmd.Flags().StringVar(&password, "password", "", "Password of the access")
	addCmd.Flags().StringArrayVar(&fields, "field", nil, "Custom field as name=value, repeatable")
	_ = addCmd.MarkFlagRequired("module")
	_ = addCmd.MarkFlagRequired("login")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accesses and their fetch status",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			accesses, err := a.db.GetAccesses()
			if err != nil {
				return err
			}
			if len(accesses) == 0 {
				fmt.Println("No accesses found")
				return nil
			}

			fmt.Printf("Found %d accesses:\n\n", len(accesses))
			fmt.Printf("%-36s %-15s %-20s %-8s %-20s\n", "ID", "Module", "Login", "Enabled", "Status")
			fmt.Println(strings.Repeat("-", 103))
			for _, access := range accesses {
				status := string(access.FetchStatus)
				if status == "" {
					status = "OK"
				}
				fmt.Printf("%-36s %-15s %-20s %-8t %-20s\n",
					access.ID,
					access.ModuleID[:min(15, len(access.ModuleID))],
					utils.Obfuscate(access.Login),
					access.Enabled,
					status)
			}
			return nil
		}),
	}

	var reason string
	disableCmd := &cobra.Command{
		Use:   "disable <access_id>",
		Short: "Stop polling an access",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return updateAccess(a, args[0], func(access *models.Access) {
				access.Enabled = false
				access.DisabledReason = reason
			})
		}),
	}
	disableCmd.Flags().StringVar(&reason, "reason", "", "Why the access is disabled")

	enableCmd := &cobra.Command{
		Use:   "enable <access_id>",
		Short: "Resume polling an access",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return updateAccess(a, args[0], func(access *models.Access) {
				access.Enabled = true
				access.DisabledReason = ""
			})
		}),
	}

	passwordCmd := &cobra.Command{
		Use:   "password <access_id> <password>",
		Short: "Replace the password of an access and clear its fetch error",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return updateAccess(a, args[0], func(access *models.Access) {
				access.Password = args[1]
				access.FetchStatus = models.FetchStatusOK
			})
		}),
	}

	cmd.AddCommand(addCmd, listCmd, disableCmd, enableCmd, passwordCmd)
	return cmd
}

func parseFields(raw []string) ([]models.CustomField, error) {
	fields := make([]models.CustomField, 0, len(raw))
	for _, f := range raw {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("invalid custom field %q, expected name=value", f)
		}
		fields = append(fields, models.CustomField{Name: name, Value: value})
	}
	return fields, nil
}

func updateAccess(a *app, id string, update func(*models.Access)) error {
	access, err := a.db.GetAccess(id)
	if err != nil {
		return err
	}
	if access == nil {
		return fmt.Errorf("no access found with id %s", id)
	}
	update(access)
	if err := a.db.SaveAccess(access); err != nil {
		return fmt.Errorf("error saving access: %w", err)
	}
	log.Info().Str("access", id).Bool("enabled", access.Enabled).Msg("Access updated")
	return nil
}

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts with their balances",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			accounts, err := a.db.GetAccounts()
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Println("No accounts found")
				return nil
			}

			byAccess := lo.GroupBy(accounts, func(account *models.Account) string { return account.AccessID })
			fmt.Printf("Found %d accounts:\n\n", len(accounts))
			fmt.Printf("%-36s %-30s %-20s %18s %-12s\n", "ID", "Label", "Number", "Balance", "Last Sync")
			fmt.Println(strings.Repeat("-", 120))
			for _, accessID := range lo.Uniq(lo.Map(accounts, func(account *models.Account, _ int) string { return account.AccessID })) {
				for _, account := range byAccess[accessID] {
					currency := account.Currency
					if currency == "" {
						currency = a.cfg.Reports.DefaultCurrency
					}
					fmt.Printf("%-36s %-30s %-20s %18s %-12s\n",
						account.ID,
						account.Label[:min(30, len(account.Label))],
						utils.Obfuscate(account.AccountNumber),
						models.FormatAmount(account.Balance, currency),
						account.LastChecked.Format("2006-01-02"))
				}
			}
			return nil
		}),
	}
}
