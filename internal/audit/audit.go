// Package audit provides an async, buffered audit log writer. Entries are
// sent to an internal channel and flushed by a background goroutine, so an
// audit write can never fail — or block — the operation being audited.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Marczelloo/atlas-hub/internal/store"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer is an async, buffered audit log writer.
type Writer struct {
	store   *store.Store
	logger  *slog.Logger
	entries chan store.AuditEntry
	wg      sync.WaitGroup
}

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(st *store.Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:   st,
		logger:  logger,
		entries: make(chan store.AuditEntry, bufferSize),
	}
}

// Start begins the background goroutine that flushes entries to the database.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry. It never blocks the caller; if the buffer is
// full the entry is dropped and a warning is logged.
func (w *Writer) Log(action string, projectID, userID *uuid.UUID, details any) {
	var raw json.RawMessage
	if details != nil {
		raw, _ = json.Marshal(details)
	}
	entry := store.AuditEntry{
		ProjectID: projectID,
		UserID:    userID,
		Action:    action,
		Details:   raw,
	}

	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry", "action", action)
	}
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]store.AuditEntry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// Drain any remaining entries.
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database.
func (w *Writer) flush(entries []store.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		if err := w.store.CreateAuditEntry(ctx, e); err != nil {
			w.logger.Error("writing audit log entry", "error", err, "action", e.Action)
		}
	}
}
