package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"github.com/vpnda/bankpoll/db"
	"github.com/vpnda/bankpoll/pkg/config"
	"github.com/vpnda/bankpoll/pkg/models"
	"github.com/vpnda/bankpoll/pkg/source"
)

const fallbackPollDelay = 24 * time.Hour

// RunSummary counts what happened to each access during one run.
type RunSummary struct {
	Polled  int
	Failed  int
	Skipped int
	// re-delivered transactions recognized as already stored
	KnownTransactions int
	NewTransactions   int
}

// Poller runs a poll at startup and then once per scheduled slot. Every
// eligible access is synced independently; the reports pass always runs.
type Poller struct {
	syncer    *Syncer
	database  db.DBInterface
	reports   *ReportManager
	notifier  Notifier
	scheduler *Scheduler
	cfg       config.PollConfig

	runMu sync.Mutex
	// guards stopped and every wg.Add
	stateMu sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewPoller(syncer *Syncer, database db.DBInterface, reports *ReportManager, notifier Notifier, scheduler *Scheduler, cfg config.PollConfig) *Poller {
	return &Poller{
		syncer:    syncer,
		database:  database,
		reports:   reports,
		notifier:  notifier,
		scheduler: scheduler,
		cfg:       cfg,
		now:       time.Now,
	}
}

// safeGo launches a goroutine with panic recovery and logging. Nothing is
// launched once the poller is stopped.
func (p *Poller) safeGo(name string, fn func()) {
	p.stateMu.Lock()
	if p.stopped {
		p.stateMu.Unlock()
		log.Debug().Str("goroutine", name).Msg("Poller stopped, not starting goroutine")
		return
	}
	p.wg.Add(1)
	p.stateMu.Unlock()

	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in poller goroutine")
			}
		}()
		fn()
	}()
}

// RunAtStartup polls right away, regardless of the timer.
func (p *Poller) RunAtStartup(ctx context.Context) RunSummary {
	log.Info().Msg("Polling at startup")
	return p.Run(ctx)
}

// Stop cancels the pending timer and waits for a run in progress. A run
// already queued behind it returns without polling or rearming.
func (p *Poller) Stop() {
	p.stateMu.Lock()
	p.stopped = true
	p.stateMu.Unlock()

	p.scheduler.Stop()
	p.wg.Wait()
}

func (p *Poller) isStopped() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.stopped
}

// Run programs the next run and then polls every eligible access. A run is
// never interrupted once started: ctx only carries values.
func (p *Poller) Run(ctx context.Context) RunSummary {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.isStopped() {
		log.Info().Msg("Poller stopped, skipping run")
		return RunSummary{}
	}

	ctx = context.WithoutCancel(ctx)
	p.programNextRun(ctx)

	var summary RunSummary
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic during poll")
			}
		}()
		summary = p.poll(ctx)
	}()

	if err := p.reports.ManageReports(ctx, p.now()); err != nil {
		log.Error().Err(err).Msg("Report pass failed")
	}

	log.Info().
		Int("polled", summary.Polled).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("new_transactions", summary.NewTransactions).
		Int("known_transactions", summary.KnownTransactions).
		Time("next_run", p.scheduler.Next()).
		Msg("Poll run finished")
	return summary
}

// programNextRun arms the timer for the next slot. Any failure falls back
// to a plain delay so polling never stops.
func (p *Poller) programNextRun(ctx context.Context) {
	fire := func() {
		p.safeGo("poll", func() { p.Run(ctx) })
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Panic while programming next poll")
			p.scheduler.Arm(p.now().Add(fallbackPollDelay), fire)
		}
	}()

	next, err := p.scheduler.ArmNext(fire)
	if errors.Is(err, ErrSchedulerStopped) {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Could not compute next poll, retrying in 24h")
		p.scheduler.Arm(p.now().Add(fallbackPollDelay), fire)
		return
	}
	log.Info().Time("next_run", next).Msg("Next poll programmed")
}

func (p *Poller) poll(ctx context.Context) RunSummary {
	var summary RunSummary

	if p.cfg.AutoUpdate {
		if err := p.syncer.GetSource().UpdateModules(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to update source modules, fetching anyway")
		}
	}

	accesses, err := p.database.GetAccesses()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load accesses")
		return summary
	}

	eligible := lo.Filter(accesses, func(a *models.Access, _ int) bool {
		if !a.Enabled {
			log.Info().Str("access", a.ID).Msg("Access disabled, skipping")
			return false
		}
		if !a.CanBePolled() {
			log.Info().Str("access", a.ID).Str("code", string(a.FetchStatus)).Msg("Access needs user action, skipping")
			return false
		}
		return true
	})
	summary.Skipped = len(accesses) - len(eligible)

	var (
		failed          atomic.Int64
		polled          atomic.Int64
		newTxs          atomic.Int64
		knownTxs        atomic.Int64
		noPasswordNoted sync.Once
	)
	pollOne := func(access *models.Access) {
		merged, err := p.pollAccess(ctx, access)
		if err != nil {
			failed.Add(1)
			if source.CodeOf(err) == models.ErrNoPassword {
				noPasswordNoted.Do(func() { p.notifyMissingPassword(ctx) })
			}
			return
		}
		polled.Add(1)
		newTxs.Add(int64(len(merged.NewTransactions)))
		knownTxs.Add(int64(merged.KnownTransactions))
	}

	if p.cfg.Concurrency <= 1 {
		for _, access := range eligible {
			pollOne(access)
		}
	} else {
		workers := pool.New().WithMaxGoroutines(p.cfg.Concurrency)
		for _, access := range eligible {
			workers.Go(func() { pollOne(access) })
		}
		workers.Wait()
	}

	summary.Polled = int(polled.Load())
	summary.Failed = int(failed.Load())
	summary.NewTransactions = int(newTxs.Load())
	summary.KnownTransactions = int(knownTxs.Load())
	return summary
}

// pollAccess syncs one access. Panics are turned into errors so that one
// access never takes the run down.
func (p *Poller) pollAccess(ctx context.Context, access *models.Access) (summary *MergeSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary = nil
			err = fmt.Errorf("panic while polling access %s: %v", access.ID, r)
			log.Error().Err(err).Str("stack", string(debug.Stack())).Msg("Recovered from panic")
		}
	}()

	summary, err = p.syncer.SyncAccess(ctx, access, p.cfg.AutoMergeAccounts, true)
	if summary != nil {
		// skipped records were logged by the merge, the access itself is fine
		return summary, nil
	}
	return nil, err
}

func (p *Poller) notifyMissingPassword(ctx context.Context) {
	err := p.notifier.Send(ctx,
		"Bankpoll: credentials missing",
		"At least one bank access has no password set and could not be polled. Add the password to resume synchronization.")
	if err != nil {
		log.Error().Err(err).Msg("Failed to send missing credentials notification")
	}
}
