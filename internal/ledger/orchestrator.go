// Package ledger is the stateful core of the finance tracker. The
// Orchestrator exclusively owns the in-memory collections, drives the local
// cache and the remote table adapter as passive persistence targets, and
// maintains derived state such as account balances and friend ledgers.
//
// Every mutation is optimistic: it lands in memory and the local cache
// synchronously, then the remote write follows through the throttled
// adapter. A remote failure never rolls back an add or update; the user
// keeps what they saw. Only deletes are restored, because there is no
// "unsynced deleted" state to show.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/SrirammananS/finday/internal/bills"
	"github.com/SrirammananS/finday/internal/domain"
)

// State is the orchestrator lifecycle phase.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateConnecting
	StateSyncing
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateConnecting:
		return "connecting"
	case StateSyncing:
		return "syncing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// RemoteStore is the remote table adapter surface the orchestrator drives.
// Implemented by *remote.Adapter; tests substitute a fake.
type RemoteStore interface {
	ListTransactions(ctx context.Context) ([]*domain.Transaction, error)
	AppendTransaction(ctx context.Context, t *domain.Transaction) error
	UpdateTransaction(ctx context.Context, t *domain.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error

	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	AppendAccount(ctx context.Context, a *domain.Account) error
	UpdateAccount(ctx context.Context, a *domain.Account) error
	DeleteAccount(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]*domain.Category, error)
	AppendCategory(ctx context.Context, c *domain.Category) error
	UpdateCategory(ctx context.Context, c *domain.Category) error
	DeleteCategory(ctx context.Context, name string) error

	ListBills(ctx context.Context) ([]*domain.Bill, error)
	AppendBill(ctx context.Context, b *domain.Bill) error
	UpdateBill(ctx context.Context, b *domain.Bill) error
	DeleteBill(ctx context.Context, id string) error

	ListBillPayments(ctx context.Context) ([]*domain.BillPayment, error)
	AppendBillPayment(ctx context.Context, p *domain.BillPayment) error
	UpdateBillPayment(ctx context.Context, p *domain.BillPayment) error

	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error

	ClearCache()
}

// CacheStore is the local persistence surface. Implemented by *cache.Store.
type CacheStore interface {
	SaveAll(ctx context.Context, snap *domain.Snapshot) error
	Load(ctx context.Context) (*domain.Snapshot, domain.SyncMetadata, error)
	ClearAll(ctx context.Context) error

	PutTransaction(ctx context.Context, t *domain.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	PutTransactionWithAccounts(ctx context.Context, t *domain.Transaction, accs ...*domain.Account) error
	DeleteTransactionWithAccounts(ctx context.Context, id string, accs ...*domain.Account) error
	PutAccount(ctx context.Context, a *domain.Account) error
	DeleteAccount(ctx context.Context, id string) error
	PutCategory(ctx context.Context, c *domain.Category) error
	DeleteCategory(ctx context.Context, name string) error
	PutBill(ctx context.Context, b *domain.Bill) error
	DeleteBill(ctx context.Context, id string) error
	PutBillPayment(ctx context.Context, p *domain.BillPayment) error
	AddClosedPeriod(ctx context.Context, period string) error
	RemoveClosedPeriod(ctx context.Context, period string) error
}

const (
	// credentialPollInterval is the fallback poll when the credential
	// source has no notification channel.
	credentialPollInterval = 2 * time.Second

	// backupDelay debounces the automatic encrypted backup after the last
	// change.
	backupDelay = 15 * time.Minute

	// billPassDelay defers bill generation until state has settled after a
	// refresh.
	billPassDelay = 5 * time.Second
)

// Options tunes optional orchestrator behavior.
type Options struct {
	// BillConfig overrides the bill auto-detection heuristics.
	BillConfig *bills.Config

	// CredentialNotify, when set, signals that a fresh credential is
	// available; the orchestrator retries connecting on it instead of
	// relying solely on the poll timer.
	CredentialNotify <-chan struct{}

	// BackupPath and BackupKey enable the debounced encrypted backup. The
	// key must be 16, 24 or 32 bytes.
	BackupPath string
	BackupKey  []byte

	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// Orchestrator is the sync core. All exported methods are safe for
// concurrent use.
type Orchestrator struct {
	log     zerolog.Logger
	remote  RemoteStore // nil when running local-only
	cache   CacheStore
	billCfg bills.Config
	now     func() time.Time

	notify     <-chan struct{}
	backupPath string
	backupKey  []byte

	mu           sync.Mutex
	state        State
	meta         domain.SyncMetadata
	transactions []*domain.Transaction
	accounts     map[string]*domain.Account
	categories   map[string]*domain.Category
	bills        map[string]*domain.Bill
	payments     map[string]*domain.BillPayment
	closed       map[string]bool

	// needsSync marks that the last remote refresh failed, even when cached
	// data kept the state Ready. watchCredentials retries while it is set.
	needsSync bool

	stopped     bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
	backupTimer *time.Timer
	billTimer   *time.Timer
}

// New builds an orchestrator over a cache store and an optional remote
// store. A nil remote runs fully offline.
func New(cacheStore CacheStore, remoteStore RemoteStore, log zerolog.Logger, opts Options) *Orchestrator {
	cfg := bills.DefaultConfig()
	if opts.BillConfig != nil {
		cfg = *opts.BillConfig
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	return &Orchestrator{
		log:        log,
		remote:     remoteStore,
		cache:      cacheStore,
		billCfg:    cfg,
		now:        now,
		notify:     opts.CredentialNotify,
		backupPath: opts.BackupPath,
		backupKey:  opts.BackupKey,
		state:      StateUninitialized,
		accounts:   make(map[string]*domain.Account),
		categories: make(map[string]*domain.Category),
		bills:      make(map[string]*domain.Bill),
		payments:   make(map[string]*domain.BillPayment),
		closed:     make(map[string]bool),
		stopCh:     make(chan struct{}),
	}
}

// Init loads the cache synchronously so callers have data immediately, then
// kicks off the remote refresh in the background. A remote failure never
// blocks the user when cached data exists: the orchestrator still lands in
// Ready serving the cache.
func (o *Orchestrator) Init(ctx context.Context) error {
	o.mu.Lock()
	o.state = StateLoading
	o.mu.Unlock()

	snap, meta, err := o.cache.Load(ctx)
	if err != nil {
		o.setState(StateError)
		return fmt.Errorf("Init: load cache: %w", err)
	}

	o.mu.Lock()
	o.applySnapshotLocked(snap)
	o.meta = meta
	o.state = StateConnecting
	o.mu.Unlock()

	o.log.Info().
		Bool("has_data", meta.HasData).
		Bool("is_stale", meta.IsStale).
		Time("last_sync", meta.LastSync).
		Msg("Cache loaded")

	if o.remote == nil {
		o.setState(StateReady)
		return nil
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.Refresh(context.Background()); err != nil {
			o.log.Warn().Err(err).Msg("Background refresh failed, serving cached data")
			if meta.HasData {
				o.setState(StateReady)
			} else {
				o.setState(StateError)
			}
		}
	}()

	o.wg.Add(1)
	go o.watchCredentials()

	return nil
}

// Refresh pulls every entity collection from the remote store in parallel
// and merges the result only after the whole fetch succeeds. The cache is
// re-seeded with the merged state.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if o.remote == nil {
		return fmt.Errorf("Refresh: no remote store configured")
	}
	o.setState(StateSyncing)

	var (
		txs      []*domain.Transaction
		accounts []*domain.Account
		cats     []*domain.Category
		billList []*domain.Bill
		payments []*domain.BillPayment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = o.remote.ListTransactions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		accounts, err = o.remote.ListAccounts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		cats, err = o.remote.ListCategories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		billList, err = o.remote.ListBills(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = o.remote.ListBillPayments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		o.markSyncFailed()
		return fmt.Errorf("Refresh: %w", err)
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.transactions = dedupeTransactions(txs)
	o.accounts = make(map[string]*domain.Account, len(accounts))
	for _, a := range accounts {
		o.accounts[a.ID] = a
	}
	o.categories = make(map[string]*domain.Category, len(cats))
	for _, c := range cats {
		o.categories[c.Name] = c
	}
	o.bills = make(map[string]*domain.Bill, len(billList))
	for _, b := range billList {
		o.bills[b.ID] = b
	}
	o.payments = make(map[string]*domain.BillPayment, len(payments))
	for _, p := range payments {
		o.payments[p.ID] = p
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	if err := o.cache.SaveAll(ctx, snap); err != nil {
		o.markSyncFailed()
		return fmt.Errorf("Refresh: seed cache: %w", err)
	}

	o.mu.Lock()
	o.meta = domain.SyncMetadata{LastSync: o.now(), HasData: true}
	o.state = StateReady
	o.needsSync = false
	o.mu.Unlock()

	o.log.Info().
		Int("transactions", len(txs)).
		Int("accounts", len(accounts)).
		Int("categories", len(cats)).
		Int("bills", len(billList)).
		Int("bill_payments", len(payments)).
		Msg("Remote refresh completed")

	o.scheduleBillPass()
	return nil
}

// ForceRefresh clears every adapter cache and the local cache store, then
// re-pulls everything. Explicit user action only.
func (o *Orchestrator) ForceRefresh(ctx context.Context) error {
	if o.remote == nil {
		return fmt.Errorf("ForceRefresh: no remote store configured")
	}

	o.remote.ClearCache()
	if err := o.cache.ClearAll(ctx); err != nil {
		return fmt.Errorf("ForceRefresh: clear cache: %w", err)
	}
	return o.Refresh(ctx)
}

// Close tears the orchestrator down: pending timers are cleared and the
// instance is marked stopped so in-flight async completions become no-ops
// instead of mutating stale state.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	if o.backupTimer != nil {
		o.backupTimer.Stop()
	}
	if o.billTimer != nil {
		o.billTimer.Stop()
	}
	close(o.stopCh)
	o.mu.Unlock()

	o.wg.Wait()
}

// markSyncFailed records that the remote state was not synced. The state
// only moves to Error here; Init may still land it in Ready when cached
// data exists, and needsSync keeps the retry loop armed either way.
func (o *Orchestrator) markSyncFailed() {
	o.mu.Lock()
	o.needsSync = true
	if !o.stopped {
		o.state = StateError
	}
	o.mu.Unlock()
}

// watchCredentials retries the refresh when a fresh credential shows up,
// preferring the notification channel and falling back to a poll timer.
func (o *Orchestrator) watchCredentials() {
	defer o.wg.Done()

	ticker := time.NewTicker(credentialPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-o.notify:
		case <-ticker.C:
		}

		o.mu.Lock()
		retry := o.needsSync && !o.stopped
		o.mu.Unlock()
		if !retry {
			continue
		}

		o.log.Info().Msg("Retrying remote refresh")
		if err := o.Refresh(context.Background()); err != nil {
			o.log.Debug().Err(err).Msg("Refresh retry failed")
		}
	}
}

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Metadata returns the cache freshness summary from startup or the last
// successful refresh.
func (o *Orchestrator) Metadata() domain.SyncMetadata {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.meta
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	if !o.stopped {
		o.state = s
	}
	o.mu.Unlock()
}

// applySnapshotLocked replaces the in-memory collections. Caller holds mu.
func (o *Orchestrator) applySnapshotLocked(snap *domain.Snapshot) {
	o.transactions = dedupeTransactions(snap.Transactions)
	o.accounts = make(map[string]*domain.Account, len(snap.Accounts))
	for _, a := range snap.Accounts {
		o.accounts[a.ID] = a
	}
	o.categories = make(map[string]*domain.Category, len(snap.Categories))
	for _, c := range snap.Categories {
		o.categories[c.Name] = c
	}
	o.bills = make(map[string]*domain.Bill, len(snap.Bills))
	for _, b := range snap.Bills {
		o.bills[b.ID] = b
	}
	o.payments = make(map[string]*domain.BillPayment, len(snap.BillPayments))
	for _, p := range snap.BillPayments {
		o.payments[p.ID] = p
	}
	o.closed = make(map[string]bool, len(snap.ClosedPeriods))
	for _, period := range snap.ClosedPeriods {
		o.closed[period] = true
	}
}
