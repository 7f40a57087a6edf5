// Package tenantdb routes database access to per-project tenant databases.
// It is the single chokepoint for tenant queries: every caller names the
// privilege tier explicitly and receives a cached pgx pool for that
// (project, principal) pair.
package tenantdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Marczelloo/atlas-hub/internal/crypto"
	"github.com/Marczelloo/atlas-hub/internal/store"
	"github.com/Marczelloo/atlas-hub/internal/telemetry"
)

// maxTenantConns bounds each tenant pool to keep the blast radius of a
// single project small.
const maxTenantConns = 3

type pools struct {
	owner *pgxpool.Pool
	app   *pgxpool.Pool
}

// Router caches per-project connection pools at two privilege tiers. Pools
// are built lazily on first access by decrypting the project's credential
// rows, and torn down explicitly on project deletion.
type Router struct {
	store  *store.Store
	cipher *crypto.Cipher
	logger *slog.Logger

	mu      sync.Mutex
	tenants map[uuid.UUID]*pools
}

// NewRouter creates a tenant router.
func NewRouter(st *store.Store, cipher *crypto.Cipher, logger *slog.Logger) *Router {
	return &Router{
		store:   st,
		cipher:  cipher,
		logger:  logger,
		tenants: make(map[uuid.UUID]*pools),
	}
}

// Owner returns the owner-tier pool for a project. The owner tier is
// reserved for provisioning, admin SQL, schema introspection, and backups.
func (r *Router) Owner(ctx context.Context, projectID uuid.UUID) (*pgxpool.Pool, error) {
	p, err := r.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return p.owner, nil
}

// App returns the app-tier pool for a project. All CRUD traffic uses it.
func (r *Router) App(ctx context.Context, projectID uuid.UUID) (*pgxpool.Pool, error) {
	p, err := r.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return p.app, nil
}

// get returns the cached pools for a project, building them on first use.
func (r *Router) get(ctx context.Context, projectID uuid.UUID) (*pools, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.tenants[projectID]; ok {
		return p, nil
	}

	owner, err := r.open(ctx, projectID, store.PrincipalOwner)
	if err != nil {
		return nil, err
	}
	app, err := r.open(ctx, projectID, store.PrincipalApp)
	if err != nil {
		owner.Close()
		return nil, err
	}

	p := &pools{owner: owner, app: app}
	r.tenants[projectID] = p
	telemetry.TenantPoolsOpen.Set(float64(len(r.tenants)))

	r.logger.Debug("tenant pools opened", "project_id", projectID)
	return p, nil
}

// open decrypts one credential row and opens a small pool from it.
func (r *Router) open(ctx context.Context, projectID uuid.UUID, principal string) (*pgxpool.Pool, error) {
	cred, err := r.store.GetCredential(ctx, projectID, principal)
	if err != nil {
		return nil, fmt.Errorf("loading %s credential: %w", principal, err)
	}

	connString, err := r.cipher.Decrypt(crypto.Envelope{
		Ciphertext: cred.Ciphertext,
		IV:         cred.IV,
		AuthTag:    cred.AuthTag,
	})
	if err != nil {
		return nil, fmt.Errorf("decrypting %s credential: %w", principal, err)
	}

	cfg, err := pgxpool.ParseConfig(string(connString))
	if err != nil {
		return nil, fmt.Errorf("parsing %s connection string: %w", principal, err)
	}
	cfg.MaxConns = maxTenantConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s pool: %w", principal, err)
	}
	return pool, nil
}

// Close drains both pools for a project and removes the cache entry. Called
// on project deletion.
func (r *Router) Close(projectID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.tenants[projectID]
	if !ok {
		return
	}
	delete(r.tenants, projectID)
	telemetry.TenantPoolsOpen.Set(float64(len(r.tenants)))

	p.owner.Close()
	p.app.Close()
	r.logger.Debug("tenant pools closed", "project_id", projectID)
}

// CloseAll drains every cached pool. Called on shutdown.
func (r *Router) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.tenants {
		p.owner.Close()
		p.app.Close()
		delete(r.tenants, id)
	}
	telemetry.TenantPoolsOpen.Set(0)
}
