package sync

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/flight-tracker/internal/model"
	"github.com/nhle/flight-tracker/internal/store"
)

// SyncState represents the current state of an account sync operation.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the sync state for a single account.
type SyncStatus struct {
	AccountID string
	State     SyncState
	LastSync  time.Time
	Error     error
}

// Poller periodically syncs every active email account. Accounts are
// synced sequentially; one failing account does not stop the cycle.
type Poller struct {
	store        store.Store
	orchestrator *Orchestrator
	interval     time.Duration
	fetchTimeout time.Duration
	logger       *zap.Logger

	statuses  map[string]*SyncStatus
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// NewPoller creates a poller that syncs on the given interval. A zero
// or negative interval falls back to ten minutes.
func NewPoller(st store.Store, orch *Orchestrator, interval, fetchTimeout time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 2 * time.Minute
	}
	return &Poller{
		store:        st,
		orchestrator: orch,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		statuses:     make(map[string]*SyncStatus),
		triggerCh:    make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start launches the polling goroutine. The first cycle runs
// immediately.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()
}

// Stop halts the polling goroutine and waits for an in-flight cycle to
// finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	p.mu.Unlock()

	<-p.doneCh
}

// TriggerSync requests an immediate cycle without waiting for the next
// tick. Non-blocking; a request made while one is already pending is
// coalesced.
func (p *Poller) TriggerSync() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// GetStatuses returns the current sync status of all known accounts.
func (p *Poller) GetStatuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	return statuses
}

func (p *Poller) loop() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial cycle before the first tick.
	p.runCycle()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runCycle()
		case <-p.triggerCh:
			p.runCycle()
		}
	}
}

// runCycle syncs every active account in turn, then sweeps flight
// statuses so completed flights stop showing as upcoming.
func (p *Poller) runCycle() {
	ctx := context.Background()

	accounts, err := p.store.GetActiveAccounts(ctx)
	if err != nil {
		p.logger.Error("listing active accounts", zap.Error(err))
		return
	}

	for i := range accounts {
		acct := &accounts[i]
		select {
		case <-p.stopCh:
			return
		default:
		}
		p.syncAccount(ctx, acct)
	}

	if n, err := p.store.RefreshFlightStatuses(ctx, time.Now().UTC()); err != nil {
		p.logger.Error("refreshing flight statuses", zap.Error(err))
	} else if n > 0 {
		p.logger.Info("flights marked completed", zap.Int("count", n))
	}
}

func (p *Poller) syncAccount(ctx context.Context, acct *model.EmailAccount) {
	p.setStatus(acct.ID, SyncRunning, nil)

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	res, err := p.orchestrator.SyncAccount(fetchCtx, acct)
	if err != nil {
		p.setStatus(acct.ID, SyncError, err)
		p.logger.Warn("account sync failed",
			zap.String("account", acct.ID),
			zap.String("address", acct.EmailAddress),
			zap.Error(err))
		return
	}

	p.setStatus(acct.ID, SyncIdle, nil)
	p.logger.Info("account synced",
		zap.String("account", acct.ID),
		zap.Int("messages", res.MessagesFetched),
		zap.Int("matched", res.MessagesMatched),
		zap.Int("flights", res.FlightsCreated),
		zap.Int("duplicates", res.Duplicates))
}

func (p *Poller) setStatus(accountID string, state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[accountID]
	if !ok {
		status = &SyncStatus{AccountID: accountID}
		p.statuses[accountID] = status
	}

	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}
