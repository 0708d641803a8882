package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/strata-db/strata/internal/fs"
	"github.com/strata-db/strata/model"
)

const (
	// DefaultRetries is the number of acquisition attempts.
	DefaultRetries = 3
	// DefaultRetryInterval is the fixed wait between attempts.
	DefaultRetryInterval = 100 * time.Millisecond

	lockDirName = "LockFiles"
)

// Manager acquires and releases advisory locks for tables. Lock files
// are created exclusively under <table root>/LockFiles; holding the
// file means holding the lock.
type Manager struct {
	fs       fs.FileSystem
	retries  int
	interval time.Duration
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetries sets the bounded number of acquisition attempts.
func WithRetries(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.retries = n
		}
	}
}

// WithRetryInterval sets the fixed wait between attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a lock manager. If fsys is nil the local file
// system is used.
func NewManager(fsys fs.FileSystem, opts ...Option) *Manager {
	if fsys == nil {
		fsys = fs.Default
	}
	m := &Manager{
		fs:       fsys,
		retries:  DefaultRetries,
		interval: DefaultRetryInterval,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle represents a held lock. Release is idempotent and must be
// called on every exit path of the acquiring operation.
type Handle struct {
	m    *Manager
	name Name
	path string

	mu       sync.Mutex
	released bool
}

// Name returns the lock's name.
func (h *Handle) Name() Name { return h.name }

// Release drops the lock. Safe to call more than once.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	if err := h.m.fs.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release %s: %w", h.name.FileName(), err)
	}
	return nil
}

// Acquire takes one lock with bounded retries. Returns ErrBusy once the
// retries are exhausted; never blocks unboundedly.
func (m *Manager) Acquire(ctx context.Context, table model.TableID, name Name) (*Handle, error) {
	dir := filepath.Join(table.Path, lockDirName)
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, name.FileName())

	for attempt := 0; attempt < m.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.interval):
			}
		}
		f, err := m.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, fmt.Errorf("acquire %s: %w", name.FileName(), err)
		}
		fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339Nano))
		f.Close()
		m.logger.Debug("lock acquired", "table", table.Name, "lock", name.FileName())
		return &Handle{m: m, name: name, path: path}, nil
	}
	return nil, fmt.Errorf("%w: %s on table %s", ErrBusy, name.FileName(), table.Name)
}

// AcquireAll takes several locks in the fixed global order (Metadata,
// Compaction, then Segment). If any acquisition fails, every lock taken
// by this call is released before ErrBusy is returned.
func (m *Manager) AcquireAll(ctx context.Context, table model.TableID, names []Name) ([]*Handle, error) {
	ordered := make([]Name, len(names))
	copy(ordered, names)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].order() != ordered[j].order() {
			return ordered[i].order() < ordered[j].order()
		}
		return ordered[i].Segment < ordered[j].Segment
	})

	handles := make([]*Handle, 0, len(ordered))
	for _, name := range ordered {
		h, err := m.Acquire(ctx, table, name)
		if err != nil {
			ReleaseAll(handles)
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// ReleaseAll releases handles in reverse acquisition order. Nil-safe
// and idempotent.
func ReleaseAll(handles []*Handle) {
	for i := len(handles) - 1; i >= 0; i-- {
		if handles[i] != nil {
			_ = handles[i].Release()
		}
	}
}
