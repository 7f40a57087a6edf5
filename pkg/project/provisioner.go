// Package project provisions and tears down tenant projects: an isolated
// database with two roles, encrypted credentials, API keys, logical buckets,
// and an object-store namespace.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Marczelloo/atlas-hub/internal/apperr"
	"github.com/Marczelloo/atlas-hub/internal/crypto"
	"github.com/Marczelloo/atlas-hub/internal/store"
	"github.com/Marczelloo/atlas-hub/pkg/tenantdb"
)

// slugPattern restricts project slugs to safe identifiers.
var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,62}$`)

// ObjectStore is the subset of the storage broker the provisioner needs.
type ObjectStore interface {
	CreateProjectNamespace(ctx context.Context, projectID uuid.UUID) error
	DestroyProjectNamespace(ctx context.Context, projectID uuid.UUID) error
}

// ConnInfo carries what the provisioner needs to build tenant connection
// strings and run server-level DDL.
type ConnInfo struct {
	Host     string
	Port     int
	AdminURL func(dbName string) string // connection URL as the platform superuser
}

// Provisioner orchestrates project creation and deletion.
type Provisioner struct {
	Pool    *pgxpool.Pool
	Store   *store.Store
	Cipher  *crypto.Cipher
	Router  *tenantdb.Router
	Objects ObjectStore
	Conn    ConnInfo
	Logger  *slog.Logger
}

// CreateInput names the new project.
type CreateInput struct {
	Name        string
	Description *string
}

// CreateResult is returned on success; the two plaintext keys appear here
// and nowhere else.
type CreateResult struct {
	Project        store.Project `json:"project"`
	PublishableKey string        `json:"publishableKey"`
	SecretKey      string        `json:"secretKey"`
}

// defaultBuckets are the logical buckets every new project starts with.
var defaultBuckets = []string{"private", "uploads"}

// Create provisions a project. The ordering is load-bearing: server-level
// DDL cannot run in a transaction, so the database and roles are created
// first and compensated away if the metadata transaction fails.
func (p *Provisioner) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if strings.TrimSpace(in.Name) == "" {
		return CreateResult{}, apperr.New(apperr.KindValidation, "project name is required")
	}

	projectID := uuid.New()
	slug := Slugify(in.Name)
	if !slugPattern.MatchString(slug) {
		return CreateResult{}, apperr.Newf(apperr.KindValidation, "cannot derive a valid slug from %q", in.Name)
	}

	dbName := DatabaseName(projectID)
	ownerRole := dbName + "_owner"
	appRole := dbName + "_app"
	ownerPass := crypto.GeneratePassword()
	appPass := crypto.GeneratePassword()

	// Step 1: server-level DDL, outside any transaction.
	if err := p.createDatabaseAndRoles(ctx, dbName, ownerRole, appRole, ownerPass, appPass); err != nil {
		p.cleanup(dbName, ownerRole, appRole)
		return CreateResult{}, fmt.Errorf("creating tenant database: %w", err)
	}

	// Step 2: schema grants inside the new database.
	if err := p.grantSchemaPrivileges(ctx, dbName, ownerRole, appRole); err != nil {
		p.cleanup(dbName, ownerRole, appRole)
		return CreateResult{}, fmt.Errorf("granting schema privileges: %w", err)
	}

	ownerConn := p.tenantURL(ownerRole, ownerPass, dbName)
	appConn := p.tenantURL(appRole, appPass, dbName)

	// Step 3: metadata, credentials, keys, and buckets in one transaction.
	var result CreateResult
	err := store.WithTx(ctx, p.Pool, func(tx *store.Store) error {
		proj, err := tx.CreateProject(ctx, projectID, in.Name, slug, in.Description)
		if err != nil {
			return err
		}

		for principal, conn := range map[string]string{
			store.PrincipalOwner: ownerConn,
			store.PrincipalApp:   appConn,
		} {
			env, err := p.Cipher.Encrypt([]byte(conn))
			if err != nil {
				return fmt.Errorf("encrypting %s credential: %w", principal, err)
			}
			if err := tx.CreateCredential(ctx, store.Credential{
				ProjectID:  projectID,
				Principal:  principal,
				Ciphertext: env.Ciphertext,
				IV:         env.IV,
				AuthTag:    env.AuthTag,
			}); err != nil {
				return err
			}
		}

		pk, pkHash, pkPrefix := crypto.GenerateAPIKey(crypto.KeyTypePublishable)
		if _, err := tx.CreateAPIKey(ctx, projectID, crypto.KeyTypePublishable, pkHash, pkPrefix, nil); err != nil {
			return err
		}
		sk, skHash, skPrefix := crypto.GenerateAPIKey(crypto.KeyTypeSecret)
		if _, err := tx.CreateAPIKey(ctx, projectID, crypto.KeyTypeSecret, skHash, skPrefix, nil); err != nil {
			return err
		}

		for _, name := range defaultBuckets {
			if _, err := tx.CreateBucket(ctx, projectID, name); err != nil {
				return err
			}
		}

		result = CreateResult{Project: proj, PublishableKey: pk, SecretKey: sk}
		return nil
	})
	if err != nil {
		p.cleanup(dbName, ownerRole, appRole)
		if isUniqueViolation(err) {
			return CreateResult{}, apperr.Wrap(apperr.KindConflict, "a project with this name already exists", err)
		}
		return CreateResult{}, fmt.Errorf("storing project metadata: %w", err)
	}

	// Step 4: physical object-store bucket.
	if err := p.Objects.CreateProjectNamespace(ctx, projectID); err != nil {
		_ = p.deleteMetadata(ctx, projectID)
		p.cleanup(dbName, ownerRole, appRole)
		return CreateResult{}, fmt.Errorf("creating object namespace: %w", err)
	}

	p.Logger.Info("project provisioned",
		"project_id", projectID,
		"slug", slug,
		"database", dbName,
	)
	return result, nil
}

// Delete tears a project down. Metadata is removed in one transaction;
// server-level DDL and the physical bucket drain run after it. Cleanup
// failures are logged, not re-raised.
func (p *Provisioner) Delete(ctx context.Context, projectID uuid.UUID) error {
	if _, err := p.Store.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "project not found")
		}
		return fmt.Errorf("loading project: %w", err)
	}

	// Release any cached tenant pools before dropping the database.
	p.Router.Close(projectID)

	if err := p.deleteMetadata(ctx, projectID); err != nil {
		return fmt.Errorf("deleting project metadata: %w", err)
	}

	dbName := DatabaseName(projectID)
	p.cleanup(dbName, dbName+"_owner", dbName+"_app")

	if err := p.Objects.DestroyProjectNamespace(ctx, projectID); err != nil {
		p.Logger.Error("destroying object namespace", "error", err, "project_id", projectID)
	}

	p.Logger.Info("project deleted", "project_id", projectID)
	return nil
}

// deleteMetadata removes all control-plane rows for a project in one
// transaction, children first.
func (p *Provisioner) deleteMetadata(ctx context.Context, projectID uuid.UUID) error {
	return store.WithTx(ctx, p.Pool, func(tx *store.Store) error {
		if err := tx.DeleteAllFileMetadata(ctx, projectID); err != nil {
			return err
		}
		if err := tx.DeleteBuckets(ctx, projectID); err != nil {
			return err
		}
		if err := tx.DeleteAPIKeys(ctx, projectID); err != nil {
			return err
		}
		if err := tx.DeleteCredentials(ctx, projectID); err != nil {
			return err
		}
		if err := tx.DeleteAuditEntries(ctx, projectID); err != nil {
			return err
		}
		return tx.DeleteProject(ctx, projectID)
	})
}

// createDatabaseAndRoles runs the server-level DDL for a new tenant.
func (p *Provisioner) createDatabaseAndRoles(ctx context.Context, dbName, ownerRole, appRole, ownerPass, appPass string) error {
	statements := []string{
		fmt.Sprintf(`CREATE DATABASE %s`, quoteIdent(dbName)),
		fmt.Sprintf(`CREATE ROLE %s WITH LOGIN PASSWORD %s`, quoteIdent(ownerRole), quoteLiteral(ownerPass)),
		fmt.Sprintf(`CREATE ROLE %s WITH LOGIN PASSWORD %s`, quoteIdent(appRole), quoteLiteral(appPass)),
		fmt.Sprintf(`GRANT ALL PRIVILEGES ON DATABASE %s TO %s`, quoteIdent(dbName), quoteIdent(ownerRole)),
		fmt.Sprintf(`GRANT CONNECT ON DATABASE %s TO %s`, quoteIdent(dbName), quoteIdent(appRole)),
	}
	for _, stmt := range statements {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}
	return nil
}

// grantSchemaPrivileges connects to the new database and sets up schema
// grants plus default privileges so tables the owner creates are usable by
// the app role.
func (p *Provisioner) grantSchemaPrivileges(ctx context.Context, dbName, ownerRole, appRole string) error {
	conn, err := pgx.Connect(ctx, p.Conn.AdminURL(dbName))
	if err != nil {
		return fmt.Errorf("connecting to tenant database: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	statements := []string{
		fmt.Sprintf(`GRANT ALL ON SCHEMA public TO %s`, quoteIdent(ownerRole)),
		fmt.Sprintf(`GRANT USAGE ON SCHEMA public TO %s`, quoteIdent(appRole)),
		fmt.Sprintf(`ALTER DEFAULT PRIVILEGES FOR ROLE %s IN SCHEMA public GRANT SELECT, INSERT, UPDATE, DELETE ON TABLES TO %s`,
			quoteIdent(ownerRole), quoteIdent(appRole)),
		fmt.Sprintf(`ALTER DEFAULT PRIVILEGES FOR ROLE %s IN SCHEMA public GRANT USAGE, SELECT ON SEQUENCES TO %s`,
			quoteIdent(ownerRole), quoteIdent(appRole)),
	}
	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing grant: %w", err)
		}
	}
	return nil
}

// cleanup drops the tenant database and roles, idempotently. Runs on a
// background context so a cancelled request still compensates.
func (p *Provisioner) cleanup(dbName, ownerRole, appRole string) {
	ctx := context.Background()
	statements := []string{
		fmt.Sprintf(`DROP DATABASE IF EXISTS %s`, quoteIdent(dbName)),
		fmt.Sprintf(`DROP ROLE IF EXISTS %s`, quoteIdent(ownerRole)),
		fmt.Sprintf(`DROP ROLE IF EXISTS %s`, quoteIdent(appRole)),
	}
	for _, stmt := range statements {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			p.Logger.Error("provisioning cleanup", "error", err, "statement", stmt)
		}
	}
}

// tenantURL builds a tenant connection string for one role.
func (p *Provisioner) tenantURL(role, password, dbName string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(role), url.QueryEscape(password), p.Conn.Host, p.Conn.Port, dbName)
}

// DatabaseName derives the deterministic tenant database name.
func DatabaseName(projectID uuid.UUID) string {
	return "proj_" + strings.ReplaceAll(projectID.String(), "-", "")
}

// Slugify lowercases a name and collapses non-alphanumeric runs to hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// quoteIdent double-quotes a SQL identifier.
func quoteIdent(s string) string {
	return pgx.Identifier{s}.Sanitize()
}

// quoteLiteral single-quotes a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
