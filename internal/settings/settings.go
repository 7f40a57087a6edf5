// Package settings holds the runtime-mutable platform settings. Readers take
// a consistent snapshot of the whole struct; admin updates swap the snapshot
// atomically and persist it through the metadata store.
package settings

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Marczelloo/atlas-hub/internal/store"
)

const settingKey = "runtime"

// Runtime is the set of knobs mutable through the admin settings endpoints.
type Runtime struct {
	RateLimitMax          int    `json:"rate_limit_max"`
	RateLimitWindowMs     int    `json:"rate_limit_window_ms"`
	SQLMaxRows            int    `json:"sql_max_rows"`
	SQLStatementTimeoutMs int    `json:"sql_statement_timeout_ms"`
	PublicStorageURL      string `json:"public_storage_url"`
}

// RateLimitWindow returns the window as a duration.
func (r Runtime) RateLimitWindow() time.Duration {
	return time.Duration(r.RateLimitWindowMs) * time.Millisecond
}

// SQLStatementTimeout returns the statement timeout as a duration.
func (r Runtime) SQLStatementTimeout() time.Duration {
	return time.Duration(r.SQLStatementTimeoutMs) * time.Millisecond
}

// Manager owns the current runtime snapshot.
type Manager struct {
	current atomic.Pointer[Runtime]
	store   *store.Store
}

// NewManager seeds the manager with defaults, then overlays any persisted
// snapshot from the platform store.
func NewManager(ctx context.Context, st *store.Store, defaults Runtime) (*Manager, error) {
	m := &Manager{store: st}

	persisted := defaults
	found, err := st.GetSetting(ctx, settingKey, &persisted)
	if err != nil {
		return nil, fmt.Errorf("loading runtime settings: %w", err)
	}
	if !found {
		persisted = defaults
	}
	m.current.Store(&persisted)
	return m, nil
}

// Get returns the current snapshot.
func (m *Manager) Get() Runtime {
	return *m.current.Load()
}

// Update validates, persists, and swaps in a new snapshot.
func (m *Manager) Update(ctx context.Context, r Runtime) error {
	if r.RateLimitMax < 1 || r.RateLimitWindowMs < 1000 {
		return fmt.Errorf("rate limit must be at least 1 request per 1s window")
	}
	if r.SQLMaxRows < 1 || r.SQLMaxRows > 100000 {
		return fmt.Errorf("sql max rows must be between 1 and 100000")
	}
	if r.SQLStatementTimeoutMs < 100 {
		return fmt.Errorf("sql statement timeout must be at least 100ms")
	}

	if err := m.store.PutSetting(ctx, settingKey, r); err != nil {
		return fmt.Errorf("persisting runtime settings: %w", err)
	}
	m.current.Store(&r)
	return nil
}
