package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/portal-sniper/internal/bot"
	"github.com/web3guy0/portal-sniper/internal/config"
	"github.com/web3guy0/portal-sniper/internal/ledger"
)

const shutdownGrace = 8 * time.Second

// Supervisor owns the shared ledger, the Telegram collaborator and one worker
// per configured account.
type Supervisor struct {
	cfg    *config.AppConfig
	ledger *ledger.Ledger
	bot    *bot.Bot

	mu      sync.Mutex
	workers map[string]*Worker
}

// NewSupervisor opens the ledger and connects Telegram. A failing Telegram
// connection is logged and the engine runs without it; a failing ledger is
// fatal.
func NewSupervisor(cfg *config.AppConfig) (*Supervisor, error) {
	lg, err := ledger.Open(cfg.StateDBPath)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		cfg:     cfg,
		ledger:  lg,
		workers: make(map[string]*Worker),
	}
	b, err := bot.New(cfg.Telegram, lg, s.WorkersSnapshot)
	if err != nil {
		log.Warn().Err(err).Msg("telegram unavailable, continuing without it")
	}
	s.bot = b
	return s, nil
}

// WorkersSnapshot reports every worker's current status line.
func (s *Supervisor) WorkersSnapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string]string, len(s.workers))
	for name, worker := range s.workers {
		snapshot[name] = worker.Status()
	}
	return snapshot
}

// Run spawns all account workers and blocks until they finish or the context
// is cancelled. On cancellation workers get a grace period to wind down.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.cfg.Accounts) == 0 {
		return errors.New("no accounts configured")
	}

	s.bot.Start()
	defer s.bot.Stop()

	var wg sync.WaitGroup
	s.mu.Lock()
	for _, account := range s.cfg.Accounts {
		worker := NewWorker(s.cfg, account, s.ledger, s.bot, log.Logger)
		s.workers[account.Name] = worker
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(worker)
	}
	s.mu.Unlock()
	log.Info().Int("accounts", len(s.cfg.Accounts)).Bool("dry_run", s.cfg.Runtime.DryRun).Msg("workers started")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			log.Warn().Msg("shutdown grace period elapsed, abandoning workers")
		}
		return nil
	}
}
