package consistency

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/dbctx"
)

// IngestTx is the persist half of one pipeline run: claim the record as
// pending, write its index entries, then complete it conditionally. Exactly
// one of Finalize or Abort ends it.
type IngestTx struct {
	m       *Manager
	s       *saga
	rec     *evidence.Record
	created bool
	written []string
}

// BeginIngest claims rec. A record already completed under one of its
// natural keys ends the transaction with an ErrAlreadyCompleted *Error that
// carries the winner's id. A pending or failed record is taken over.
func (m *Manager) BeginIngest(ctx context.Context, rec *evidence.Record) (*IngestTx, error) {
	if rec == nil {
		return nil, fmt.Errorf("record required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Status = evidence.StatusPending
	s := m.begin(OpIngestEvidence, rec.CaseID, rec.ID.String())

	var (
		claimed *evidence.Record
		created bool
	)
	if err := m.metadata(ctx, "save_if_absent", func(dbc dbctx.Context) error {
		var err error
		claimed, created, err = m.store.SaveIfAbsent(dbc, rec)
		return err
	}); err != nil {
		return nil, s.fail(ctx, err, false, rec.ID.String())
	}
	if claimed.Completed() {
		return nil, s.fail(ctx, fmt.Errorf("%w: %s", ErrAlreadyCompleted, claimed.ID), false, claimed.ID.String())
	}
	s.setRecord(claimed.CaseID, claimed.ID.String())

	id := claimed.ID
	if created {
		s.onRollback("delete_pending_record", func(ctx context.Context) error {
			return m.metadata(ctx, "delete_if_not_completed", func(dbc dbctx.Context) error {
				_, err := m.store.DeleteIfNotCompleted(dbc, id)
				return err
			})
		})
	} else {
		s.log.Info("taking over unfinished record", "record_id", id, "status", claimed.Status)
		if fill := missingKeys(claimed, rec); len(fill) > 0 {
			var ok bool
			if err := m.metadata(ctx, "update_conditionally", func(dbc dbctx.Context) error {
				var err error
				ok, err = m.store.UpdateConditionally(dbc, id, fill)
				return err
			}); err != nil {
				return nil, s.fail(ctx, fmt.Errorf("record %s: fill natural keys: %w", id, err), false, id.String())
			}
			if !ok {
				return nil, s.fail(ctx, fmt.Errorf("%w: %s", ErrAlreadyCompleted, id), false, id.String())
			}
			claimed = claimed.Clone()
			applyKeys(claimed, rec)
		}
	}

	return &IngestTx{m: m, s: s, rec: claimed, created: created}, nil
}

func (t *IngestTx) TxID() string              { return t.s.id }
func (t *IngestTx) Record() *evidence.Record  { return t.rec.Clone() }
func (t *IngestTx) RecordID() uuid.UUID       { return t.rec.ID }
func (t *IngestTx) Created() bool             { return t.created }
func (t *IngestTx) WrittenChunkIDs() []string { return append([]string(nil), t.written...) }

// IndexEntries writes entries in order. On failure the entries already
// written are removed and the claim is released.
func (t *IngestTx) IndexEntries(ctx context.Context, entries []evidence.IndexEntry) error {
	if t.s.done {
		return ErrTxClosed
	}
	if len(t.written) == 0 {
		caseID := t.rec.CaseID
		t.s.onRollback("delete_index_entries", func(ctx context.Context) error {
			if len(t.written) == 0 {
				return nil
			}
			return t.m.indexCall(ctx, "delete_entries", t.m.opts.IndexDeletePolicy, func(ctx context.Context) error {
				return t.m.index.DeleteEntries(ctx, caseID, t.written)
			})
		})
	}
	for _, e := range entries {
		e.RecordID = t.rec.ID.String()
		e.CaseID = t.rec.CaseID
		if err := t.m.indexCall(ctx, "add_entry", t.m.opts.IndexPolicy, func(ctx context.Context) error {
			return t.m.index.AddEntry(ctx, e)
		}); err != nil {
			return t.fail(ctx, fmt.Errorf("index entry %s: %w", e.ChunkID, err))
		}
		t.written = append(t.written, e.ChunkID)
	}
	return nil
}

// Finalize marks the record completed with updates. Losing the completion
// race to another runner removes this run's entries and returns an
// ErrAlreadyCompleted *Error.
func (t *IngestTx) Finalize(ctx context.Context, updates map[string]interface{}) (*evidence.Record, error) {
	if t.s.done {
		return nil, ErrTxClosed
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = evidence.StatusCompleted
	updates["last_error"] = ""

	var ok bool
	if err := t.m.metadata(ctx, "update_conditionally", func(dbc dbctx.Context) error {
		var err error
		ok, err = t.m.store.UpdateConditionally(dbc, t.rec.ID, updates)
		return err
	}); err != nil {
		return nil, t.fail(ctx, err)
	}

	var current *evidence.Record
	if err := t.m.metadata(ctx, "get", func(dbc dbctx.Context) error {
		var err error
		current, err = t.m.store.Get(dbc, t.rec.ID)
		return err
	}); err != nil {
		if ok {
			// Completed but unreadable; the record is durable.
			t.s.commit()
			return t.rec.Clone(), nil
		}
		return nil, t.fail(ctx, err)
	}

	if !ok {
		if current.Completed() {
			return current, t.fail(ctx, fmt.Errorf("%w: %s", ErrAlreadyCompleted, current.ID))
		}
		return nil, t.fail(ctx, fmt.Errorf("record %s could not be completed from status %q", current.ID, current.Status))
	}
	t.rec = current
	t.s.commit()
	return current.Clone(), nil
}

// Abort compensates an unfinished transaction because of cause.
func (t *IngestTx) Abort(ctx context.Context, cause error) error {
	if t.s.done {
		return ErrTxClosed
	}
	if cause == nil {
		cause = errors.New("aborted")
	}
	return t.fail(ctx, cause)
}

func (t *IngestTx) fail(ctx context.Context, cause error) *Error {
	if !t.created {
		id := t.rec.ID
		lastErr := cause.Error()
		if !IsLostRace(cause) {
			t.s.onRollback("mark_failed", func(ctx context.Context) error {
				return t.m.metadata(ctx, "update_conditionally", func(dbc dbctx.Context) error {
					_, err := t.m.store.UpdateConditionally(dbc, id, map[string]interface{}{
						"status":     evidence.StatusFailed,
						"last_error": lastErr,
					})
					return err
				})
			})
		}
	}
	return t.s.fail(ctx, cause, len(t.written) > 0, t.rec.ID.String())
}

// missingKeys lists the file facts a taken-over record lacks but this run
// knows. A record pre-issued by the upload surface carries only its evidence
// id, and hash and origin dedup need the rest.
func missingKeys(have, run *evidence.Record) map[string]interface{} {
	fill := map[string]interface{}{}
	if have.FileHash == "" && run.FileHash != "" {
		fill["file_hash"] = run.FileHash
	}
	if have.OriginRef == "" && run.OriginRef != "" {
		fill["origin_ref"] = run.OriginRef
	}
	if have.FileName == "" && run.FileName != "" {
		fill["file_name"] = run.FileName
	}
	if have.ContentType == "" && run.ContentType != "" {
		fill["content_type"] = run.ContentType
	}
	if have.SizeBytes == 0 && run.SizeBytes != 0 {
		fill["size_bytes"] = run.SizeBytes
	}
	return fill
}

func applyKeys(have, run *evidence.Record) {
	if have.FileHash == "" {
		have.FileHash = run.FileHash
	}
	if have.OriginRef == "" {
		have.OriginRef = run.OriginRef
	}
	if have.FileName == "" {
		have.FileName = run.FileName
	}
	if have.ContentType == "" {
		have.ContentType = run.ContentType
	}
	if have.SizeBytes == 0 {
		have.SizeBytes = run.SizeBytes
	}
}
