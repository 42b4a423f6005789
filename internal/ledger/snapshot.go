package ledger

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/SrirammananS/finday/internal/domain"
)

// snapshotLocked assembles the full export snapshot from the in-memory
// collections. Caller holds mu.
func (o *Orchestrator) snapshotLocked() *domain.Snapshot {
	snap := &domain.Snapshot{
		Version:      domain.SnapshotVersion,
		Transactions: append([]*domain.Transaction(nil), o.transactions...),
		ExportedAt:   o.now(),
	}

	for _, a := range o.accounts {
		snap.Accounts = append(snap.Accounts, a)
	}
	sort.Slice(snap.Accounts, func(i, j int) bool { return snap.Accounts[i].ID < snap.Accounts[j].ID })

	for _, c := range o.categories {
		snap.Categories = append(snap.Categories, c)
	}
	sort.Slice(snap.Categories, func(i, j int) bool { return snap.Categories[i].Name < snap.Categories[j].Name })

	for _, b := range o.bills {
		snap.Bills = append(snap.Bills, b)
	}
	sort.Slice(snap.Bills, func(i, j int) bool { return snap.Bills[i].ID < snap.Bills[j].ID })

	for _, p := range o.payments {
		snap.BillPayments = append(snap.BillPayments, p)
	}
	sort.Slice(snap.BillPayments, func(i, j int) bool { return snap.BillPayments[i].ID < snap.BillPayments[j].ID })

	for period := range o.closed {
		snap.ClosedPeriods = append(snap.ClosedPeriods, period)
	}
	sort.Strings(snap.ClosedPeriods)

	return snap
}

// Export writes the full JSON snapshot: every collection, the closed
// periods and the format version.
func (o *Orchestrator) Export(w io.Writer) error {
	o.mu.Lock()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("Export: %w", err)
	}
	return nil
}

// Import replaces every collection with the snapshot's contents and
// re-seeds the cache. Snapshots from a newer format version are rejected.
func (o *Orchestrator) Import(ctx context.Context, r io.Reader) error {
	var snap domain.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("Import: decode: %w", err)
	}
	if snap.Version > domain.SnapshotVersion {
		return fmt.Errorf("%w: snapshot version %d not supported", domain.ErrValidation, snap.Version)
	}

	o.mu.Lock()
	o.applySnapshotLocked(&snap)
	seeded := o.snapshotLocked()
	o.mu.Unlock()

	if err := o.cache.SaveAll(ctx, seeded); err != nil {
		return fmt.Errorf("Import: seed cache: %w", err)
	}

	o.log.Info().
		Int("transactions", len(snap.Transactions)).
		Int("accounts", len(snap.Accounts)).
		Msg("Snapshot imported")
	o.markDirty()
	return nil
}

// markDirty (re)arms the debounced backup timer. The backup fires once
// things have been quiet for backupDelay; teardown cancels it.
func (o *Orchestrator) markDirty() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped || o.backupPath == "" || len(o.backupKey) == 0 {
		return
	}
	if o.backupTimer != nil {
		o.backupTimer.Stop()
	}
	o.backupTimer = time.AfterFunc(backupDelay, func() {
		o.mu.Lock()
		if o.stopped {
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()

		if err := o.WriteBackup(); err != nil {
			o.log.Warn().Err(err).Msg("Automatic backup failed")
		}
	})
}

// WriteBackup writes an AES-GCM encrypted snapshot to the configured path.
func (o *Orchestrator) WriteBackup() error {
	o.mu.Lock()
	snap := o.snapshotLocked()
	path := o.backupPath
	key := o.backupKey
	o.mu.Unlock()

	if path == "" || len(key) == 0 {
		return fmt.Errorf("WriteBackup: backup not configured")
	}

	plain, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("WriteBackup: marshal: %w", err)
	}

	sealed, err := seal(key, plain)
	if err != nil {
		return fmt.Errorf("WriteBackup: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("WriteBackup: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("WriteBackup: rename: %w", err)
	}

	o.log.Info().Str("path", path).Int("bytes", len(sealed)).Msg("Backup written")
	return nil
}

// ReadBackup decrypts a backup file into a snapshot.
func ReadBackup(path string, key []byte) (*domain.Snapshot, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ReadBackup: %w", err)
	}

	plain, err := open(key, sealed)
	if err != nil {
		return nil, fmt.Errorf("ReadBackup: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return nil, fmt.Errorf("ReadBackup: decode: %w", err)
	}
	return &snap, nil
}

// seal encrypts with AES-GCM, prefixing the nonce.
func seal(key, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("backup truncated")
	}

	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plain, nil
}
