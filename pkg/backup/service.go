package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Marczelloo/atlas-hub/internal/apperr"
	"github.com/Marczelloo/atlas-hub/internal/crypto"
	"github.com/Marczelloo/atlas-hub/internal/store"
	"github.com/Marczelloo/atlas-hub/internal/telemetry"
	"github.com/Marczelloo/atlas-hub/pkg/storage"
)

// BackupBucket is the fixed bucket all backup artifacts live in.
const BackupBucket = "atlas-backups"

// ObjectStore is the subset of the storage broker the backup engine needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key, contentType string, body []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	PresignObjectDownload(ctx context.Context, bucket, key string) (storage.DownloadGrant, error)
}

// OwnerPool resolves the owner-tier pool for a project.
type OwnerPool interface {
	Owner(ctx context.Context, projectID uuid.UUID) (*pgxpool.Pool, error)
}

// Service creates, restores, and retires backups. Creation is asynchronous:
// the HTTP response returns the pending row and the run transitions it in
// the background.
type Service struct {
	store       *store.Store
	cipher      *crypto.Cipher
	objects     ObjectStore
	pools       OwnerPool
	runner      Runner
	platformURL string // pg_dump connection URL for the platform database
	logger      *slog.Logger
}

// NewService creates a backup Service.
func NewService(st *store.Store, cipher *crypto.Cipher, objects ObjectStore, pools OwnerPool, runner Runner, platformURL string, logger *slog.Logger) *Service {
	return &Service{
		store:       st,
		cipher:      cipher,
		objects:     objects,
		pools:       pools,
		runner:      runner,
		platformURL: platformURL,
		logger:      logger,
	}
}

// CreateInput describes a requested backup.
type CreateInput struct {
	BackupType    string
	ProjectID     *uuid.UUID
	TableName     *string
	Format        string
	RetentionDays *int
}

// Create validates the request, inserts a pending row, kicks off the
// asynchronous run, and returns the row. The run's lifecycle is independent
// of the caller's request.
func (s *Service) Create(ctx context.Context, in CreateInput, userID *uuid.UUID) (store.Backup, error) {
	switch in.BackupType {
	case store.BackupTypePlatform:
		in.Format = store.BackupFormatSQL
	case store.BackupTypeProject:
		if in.ProjectID == nil {
			return store.Backup{}, apperr.New(apperr.KindValidation, "project backups require projectId")
		}
		in.Format = store.BackupFormatSQL
	case store.BackupTypeTable:
		if in.ProjectID == nil || in.TableName == nil || *in.TableName == "" {
			return store.Backup{}, apperr.New(apperr.KindValidation, "table backups require projectId and tableName")
		}
		if in.Format == "" {
			in.Format = store.BackupFormatCSV
		}
		if in.Format != store.BackupFormatCSV && in.Format != store.BackupFormatJSON {
			return store.Backup{}, apperr.New(apperr.KindValidation, "table backups support csv or json")
		}
	default:
		return store.Backup{}, apperr.Newf(apperr.KindValidation, "unknown backup type %q", in.BackupType)
	}

	row := store.Backup{
		ProjectID:     in.ProjectID,
		BackupType:    in.BackupType,
		TableName:     in.TableName,
		Format:        in.Format,
		RetentionDays: in.RetentionDays,
		CreatedBy:     userID,
	}
	if in.RetentionDays != nil {
		expires := time.Now().Add(time.Duration(*in.RetentionDays) * 24 * time.Hour)
		row.ExpiresAt = &expires
	}

	created, err := s.store.CreateBackup(ctx, row)
	if err != nil {
		return store.Backup{}, fmt.Errorf("creating backup row: %w", err)
	}

	// Detached from the request context: the response has already promised
	// an asynchronous run, and process shutdown may abandon it.
	go s.run(context.Background(), created)

	return created, nil
}

// run executes one backup: pending → running → completed | failed.
func (s *Service) run(ctx context.Context, b store.Backup) {
	if err := s.store.MarkBackupRunning(ctx, b.ID); err != nil {
		s.logger.Error("marking backup running", "error", err, "backup_id", b.ID)
		return
	}

	data, objectKey, contentType, err := s.produce(ctx, b)
	if err != nil {
		s.fail(ctx, b, err)
		return
	}

	if err := s.objects.EnsureBucket(ctx, BackupBucket); err != nil {
		s.fail(ctx, b, err)
		return
	}
	if err := s.objects.Put(ctx, BackupBucket, objectKey, contentType, data); err != nil {
		s.fail(ctx, b, err)
		return
	}

	if err := s.store.MarkBackupCompleted(ctx, b.ID, objectKey, int64(len(data))); err != nil {
		s.logger.Error("marking backup completed", "error", err, "backup_id", b.ID)
		return
	}

	telemetry.BackupsTotal.WithLabelValues(b.BackupType, "completed").Inc()
	s.logger.Info("backup completed",
		"backup_id", b.ID,
		"type", b.BackupType,
		"object_key", objectKey,
		"size_bytes", len(data),
	)
}

// produce generates the backup bytes and the typed object key.
func (s *Service) produce(ctx context.Context, b store.Backup) (data []byte, objectKey, contentType string, err error) {
	ts := time.Now().UTC().Format("20060102T150405Z")

	switch b.BackupType {
	case store.BackupTypePlatform:
		data, err = dump(ctx, s.runner, s.platformURL)
		return data, fmt.Sprintf("platform/platform_%s.sql", ts), "application/octet-stream", err

	case store.BackupTypeProject:
		connURL, err := s.ownerConnURL(ctx, *b.ProjectID)
		if err != nil {
			return nil, "", "", err
		}
		data, err = dump(ctx, s.runner, connURL)
		return data, fmt.Sprintf("projects/%s/full_%s.sql", b.ProjectID, ts), "application/octet-stream", err

	case store.BackupTypeTable:
		pool, err := s.pools.Owner(ctx, *b.ProjectID)
		if err != nil {
			return nil, "", "", fmt.Errorf("resolving owner pool: %w", err)
		}
		data, err = exportTable(ctx, pool, *b.TableName, b.Format)
		key := fmt.Sprintf("projects/%s/tables/%s_%s.%s", b.ProjectID, *b.TableName, ts, b.Format)
		ct := "text/csv"
		if b.Format == store.BackupFormatJSON {
			ct = "application/json"
		}
		return data, key, ct, err

	default:
		return nil, "", "", fmt.Errorf("unknown backup type %q", b.BackupType)
	}
}

// fail records the failure on the backup row.
func (s *Service) fail(ctx context.Context, b store.Backup, cause error) {
	telemetry.BackupsTotal.WithLabelValues(b.BackupType, "failed").Inc()
	s.logger.Error("backup failed", "backup_id", b.ID, "type", b.BackupType, "error", cause)
	if err := s.store.MarkBackupFailed(ctx, b.ID, cause.Error()); err != nil {
		s.logger.Error("marking backup failed", "error", err, "backup_id", b.ID)
	}
}

// ownerConnURL decrypts the project's owner credential.
func (s *Service) ownerConnURL(ctx context.Context, projectID uuid.UUID) (string, error) {
	cred, err := s.store.GetCredential(ctx, projectID, store.PrincipalOwner)
	if err != nil {
		return "", fmt.Errorf("loading owner credential: %w", err)
	}
	plain, err := s.cipher.Decrypt(crypto.Envelope{
		Ciphertext: cred.Ciphertext,
		IV:         cred.IV,
		AuthTag:    cred.AuthTag,
	})
	if err != nil {
		return "", fmt.Errorf("decrypting owner credential: %w", err)
	}
	return string(plain), nil
}

// Restore downloads a completed project backup and feeds it to pg_restore
// against the tenant database.
func (s *Service) Restore(ctx context.Context, backupID uuid.UUID) (RestoreOutcome, error) {
	b, err := s.store.GetBackup(ctx, backupID)
	if err != nil {
		return RestoreOutcome{}, apperr.Wrap(apperr.KindNotFound, "backup not found", err)
	}
	if b.BackupType != store.BackupTypeProject || b.Format != store.BackupFormatSQL {
		return RestoreOutcome{}, apperr.New(apperr.KindBadRequest, "only project sql backups can be restored")
	}
	if b.Status != store.BackupStatusCompleted {
		return RestoreOutcome{}, apperr.New(apperr.KindBadRequest, "backup is not completed")
	}

	archive, err := s.objects.Get(ctx, BackupBucket, b.ObjectKey)
	if err != nil {
		return RestoreOutcome{}, apperr.Wrap(apperr.KindUpstreamObjectStore, "failed to download backup", err)
	}

	connURL, err := s.ownerConnURL(ctx, *b.ProjectID)
	if err != nil {
		return RestoreOutcome{}, err
	}

	outcome, err := restore(ctx, s.runner, connURL, archive)
	if err != nil {
		return RestoreOutcome{}, apperr.Wrap(apperr.KindUpstreamDatabase, "restore failed", err)
	}

	s.logger.Info("backup restored", "backup_id", backupID, "warnings", len(outcome.Warnings))
	return outcome, nil
}

// Delete removes a backup: object first, then row. Object deletion errors
// are swallowed — the row deletion wins, per invariant I3's best-effort
// compensation.
func (s *Service) Delete(ctx context.Context, backupID uuid.UUID) error {
	b, err := s.store.GetBackup(ctx, backupID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "backup not found", err)
	}

	if b.ObjectKey != "" {
		if err := s.objects.DeleteObject(ctx, BackupBucket, b.ObjectKey); err != nil {
			s.logger.Warn("deleting backup object", "error", err, "object_key", b.ObjectKey)
		}
	}
	if err := s.store.DeleteBackup(ctx, backupID); err != nil {
		return fmt.Errorf("deleting backup row: %w", err)
	}
	return nil
}

// DownloadURL issues a presigned GET for a completed backup.
func (s *Service) DownloadURL(ctx context.Context, backupID uuid.UUID) (storage.DownloadGrant, error) {
	b, err := s.store.GetBackup(ctx, backupID)
	if err != nil {
		return storage.DownloadGrant{}, apperr.Wrap(apperr.KindNotFound, "backup not found", err)
	}
	if b.Status != store.BackupStatusCompleted {
		return storage.DownloadGrant{}, apperr.New(apperr.KindBadRequest, "backup is not completed")
	}
	return s.objects.PresignObjectDownload(ctx, BackupBucket, b.ObjectKey)
}

// ApplyRetention runs the tiered retention sweep for one project (or all
// projects when projectID is nil) and returns the number of deleted rows.
func (s *Service) ApplyRetention(ctx context.Context, projectID *uuid.UUID) (int, error) {
	var projectIDs []uuid.UUID
	if projectID != nil {
		projectIDs = []uuid.UUID{*projectID}
	} else {
		projects, err := s.store.ListProjects(ctx)
		if err != nil {
			return 0, fmt.Errorf("listing projects: %w", err)
		}
		for _, p := range projects {
			projectIDs = append(projectIDs, p.ID)
		}
	}

	deleted := 0
	now := time.Now()
	for _, pid := range projectIDs {
		backups, err := s.store.ListCompletedProjectBackups(ctx, pid)
		if err != nil {
			return deleted, fmt.Errorf("listing backups for %s: %w", pid, err)
		}

		_, remove := ClassifyRetention(backups, now)
		for _, b := range remove {
			// Object first; errors swallowed so the row still goes away.
			if b.ObjectKey != "" {
				if err := s.objects.DeleteObject(ctx, BackupBucket, b.ObjectKey); err != nil {
					s.logger.Warn("retention: deleting backup object", "error", err, "object_key", b.ObjectKey)
				}
			}
			if err := s.store.DeleteBackup(ctx, b.ID); err != nil {
				s.logger.Error("retention: deleting backup row", "error", err, "backup_id", b.ID)
				continue
			}
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Info("retention sweep complete", "deleted", deleted)
	}
	return deleted, nil
}

// CleanupExpired removes completed backups whose legacy expires_at has
// passed. Orthogonal to the tiered retention sweep.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredBackups(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("listing expired backups: %w", err)
	}

	deleted := 0
	for _, b := range expired {
		if b.ObjectKey != "" {
			if err := s.objects.DeleteObject(ctx, BackupBucket, b.ObjectKey); err != nil {
				s.logger.Warn("expiry: deleting backup object", "error", err, "object_key", b.ObjectKey)
			}
		}
		if err := s.store.DeleteBackup(ctx, b.ID); err != nil {
			s.logger.Error("expiry: deleting backup row", "error", err, "backup_id", b.ID)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Get returns one backup row.
func (s *Service) Get(ctx context.Context, backupID uuid.UUID) (store.Backup, error) {
	b, err := s.store.GetBackup(ctx, backupID)
	if err != nil {
		return store.Backup{}, apperr.Wrap(apperr.KindNotFound, "backup not found", err)
	}
	return b, nil
}

// List returns backups, optionally project-scoped.
func (s *Service) List(ctx context.Context, projectID *uuid.UUID, limit, offset int) ([]store.Backup, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.store.ListBackups(ctx, projectID, limit, offset)
}
