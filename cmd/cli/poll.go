package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vpnda/bankpoll/pkg/services"
)

func (a *app) newPoller() (*services.Poller, error) {
	schedule, err := services.NewSchedule(a.cfg.Poll)
	if err != nil {
		return nil, err
	}
	return services.NewPoller(a.syncer, a.db, a.reports, a.notifier, services.NewScheduler(schedule), a.cfg.Poll), nil
}

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll at startup, then once a day until interrupted",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			poller, err := a.newPoller()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			poller.RunAtStartup(ctx)
			<-ctx.Done()

			log.Info().Msg("Shutting down, waiting for a running poll to finish")
			poller.Stop()
			return nil
		}),
	}
}

func newSyncCmd() *cobra.Command {
	var accessID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch and merge now, for every access or a single one",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			if accessID == "" {
				poller, err := a.newPoller()
				if err != nil {
					return err
				}
				summary := poller.Run(ctx)
				poller.Stop()
				fmt.Printf("Polled %d, failed %d, skipped %d\n", summary.Polled, summary.Failed, summary.Skipped)
				fmt.Printf("Transactions: %d new, %d already known\n", summary.NewTransactions, summary.KnownTransactions)
				return nil
			}
			return syncOne(ctx, a, accessID)
		}),
	}
	cmd.Flags().StringVar(&accessID, "access", "", "Only synchronize this access")
	return cmd
}

func syncOne(ctx context.Context, a *app, accessID string) error {
	access, err := a.db.GetAccess(accessID)
	if err != nil {
		return err
	}
	if access == nil {
		return fmt.Errorf("no access found with id %s", accessID)
	}

	summary, err := a.syncer.SyncAccess(ctx, access, true, true)
	if summary == nil {
		return err
	}
	if err != nil {
		log.Warn().Err(err).Msg("Some records were skipped")
	}
	fmt.Printf("Accounts: %d new, %d updated\n", summary.NewAccounts, summary.UpdatedAccounts)
	fmt.Printf("Transactions: %d new, %d already known, %d skipped\n",
		len(summary.NewTransactions), summary.KnownTransactions, summary.Skipped)
	return nil
}
