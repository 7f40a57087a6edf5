package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Marczelloo/atlas-hub/internal/crypto"
	"github.com/Marczelloo/atlas-hub/internal/store"
	"github.com/Marczelloo/atlas-hub/pkg/backup"
)

// StatusNotifier posts operator status messages.
type StatusNotifier interface {
	PostMessage(ctx context.Context, text string) error
}

// Actions runs the built-in platform job actions.
type Actions struct {
	store    *store.Store
	cipher   *crypto.Cipher
	backups  *backup.Service
	notifier StatusNotifier
	logger   *slog.Logger
}

// NewActions creates the platform action runner. notifier may be nil.
func NewActions(st *store.Store, cipher *crypto.Cipher, backups *backup.Service, notifier StatusNotifier, logger *slog.Logger) *Actions {
	return &Actions{
		store:    st,
		cipher:   cipher,
		backups:  backups,
		notifier: notifier,
		logger:   logger,
	}
}

// actionConfig is the decoded cron_jobs.config payload for platform jobs.
type actionConfig struct {
	ProjectID *uuid.UUID `json:"projectId,omitempty"`
}

// Run executes one named action. Unknown actions fail the dispatch.
func (a *Actions) Run(ctx context.Context, action string, rawConfig json.RawMessage) error {
	var cfg actionConfig
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return fmt.Errorf("decoding action config: %w", err)
		}
	}

	switch action {
	case "backup_project":
		if cfg.ProjectID == nil {
			return fmt.Errorf("backup_project requires projectId in config")
		}
		_, err := a.backups.Create(ctx, backup.CreateInput{
			BackupType: store.BackupTypeProject,
			ProjectID:  cfg.ProjectID,
		}, nil)
		return err

	case "backup_all_projects":
		projects, err := a.store.ListProjects(ctx)
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		for i := range projects {
			pid := projects[i].ID
			if _, err := a.backups.Create(ctx, backup.CreateInput{
				BackupType: store.BackupTypeProject,
				ProjectID:  &pid,
			}, nil); err != nil {
				a.logger.Error("backup_all_projects: starting backup", "error", err, "project_id", pid)
			}
		}
		return nil

	case "cleanup_backups_with_retention":
		_, err := a.backups.ApplyRetention(ctx, cfg.ProjectID)
		return err

	case "cleanup_expired_backups":
		_, err := a.backups.CleanupExpired(ctx)
		return err

	case "vacuum_database":
		return a.vacuumAll(ctx)

	case "notify_status":
		return a.notifyStatus(ctx)

	default:
		return fmt.Errorf("unknown platform action %q", action)
	}
}

// vacuumAll runs VACUUM ANALYZE on every tenant database through a
// throwaway single-connection pool per project.
func (a *Actions) vacuumAll(ctx context.Context) error {
	projects, err := a.store.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}

	for _, p := range projects {
		if err := a.vacuumProject(ctx, p.ID); err != nil {
			a.logger.Error("vacuum_database: vacuuming project", "error", err, "project_id", p.ID)
		}
	}
	return nil
}

func (a *Actions) vacuumProject(ctx context.Context, projectID uuid.UUID) error {
	cred, err := a.store.GetCredential(ctx, projectID, store.PrincipalOwner)
	if err != nil {
		return fmt.Errorf("loading owner credential: %w", err)
	}
	connURL, err := a.cipher.Decrypt(crypto.Envelope{
		Ciphertext: cred.Ciphertext,
		IV:         cred.IV,
		AuthTag:    cred.AuthTag,
	})
	if err != nil {
		return fmt.Errorf("decrypting owner credential: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(string(connURL))
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening vacuum pool: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "VACUUM ANALYZE"); err != nil {
		return fmt.Errorf("running VACUUM ANALYZE: %w", err)
	}
	return nil
}

// notifyStatus posts a project/backup summary to the notifier.
func (a *Actions) notifyStatus(ctx context.Context) error {
	if a.notifier == nil {
		return nil
	}

	projectCount, err := a.store.CountProjects(ctx)
	if err != nil {
		return fmt.Errorf("counting projects: %w", err)
	}
	backups, err := a.store.ListBackups(ctx, nil, 1, 0)
	if err != nil {
		return fmt.Errorf("listing backups: %w", err)
	}

	latest := "none"
	if len(backups) > 0 {
		latest = fmt.Sprintf("%s (%s)", backups[0].CreatedAt.UTC().Format("2006-01-02 15:04"), backups[0].Status)
	}
	return a.notifier.PostMessage(ctx, fmt.Sprintf("atlas-hub status: %d project(s), latest backup: %s", projectCount, latest))
}
