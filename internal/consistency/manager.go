// Package consistency keeps the metadata store and the vector index from
// diverging. Each multi-store operation runs as a saga: forward steps with
// registered compensations that are executed, newest first, when a later
// step fails.
package consistency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	evrepo "github.com/yungbote/evidence-backend/internal/data/repos/evidence"
	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/dbctx"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/retry"
)

// VectorIndex is the slice of the index the manager writes through.
type VectorIndex interface {
	AddEntry(ctx context.Context, entry evidence.IndexEntry) error
	DeleteEntries(ctx context.Context, caseID string, chunkIDs []string) error
	DeleteByFilter(ctx context.Context, caseID string, filter map[string]any) (int, error)
	DeleteCollection(ctx context.Context, caseID string) (bool, error)
}

// Embedder re-embeds record summaries on reindex. The bool reports a
// fallback vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, bool)
}

// Listener is told about records and cases that left the stores. Listeners
// are best-effort and must not block.
type Listener interface {
	RecordDeleted(ctx context.Context, rec *evidence.Record)
	CaseCleared(ctx context.Context, caseID string)
}

type Options struct {
	MetadataPolicy      retry.Policy
	IndexPolicy         retry.Policy
	IndexDeletePolicy   retry.Policy
	CompensationTimeout time.Duration
	TxLogCapacity       int
	Embedder            Embedder
	Listeners           []Listener
}

// DefaultOptions gives the metadata store the largest retry budget and index
// deletes the smallest.
func DefaultOptions() Options {
	return Options{
		MetadataPolicy: retry.Policy{
			MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, JitterFraction: 0.1,
		},
		IndexPolicy: retry.Policy{
			MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, JitterFraction: 0.1,
		},
		IndexDeletePolicy: retry.Policy{
			MaxAttempts: 2, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2, JitterFraction: 0.1,
		},
		CompensationTimeout: 30 * time.Second,
		TxLogCapacity:       DefaultTxLogCapacity,
	}
}

type Manager struct {
	log       *logger.Logger
	store     evrepo.RecordRepo
	index     VectorIndex
	opts      Options
	txlog     *TxLog
	listeners []Listener
}

func New(log *logger.Logger, store evrepo.RecordRepo, index VectorIndex, opts Options) *Manager {
	d := DefaultOptions()
	if opts.CompensationTimeout <= 0 {
		opts.CompensationTimeout = d.CompensationTimeout
	}
	if opts.MetadataPolicy.MaxAttempts == 0 {
		opts.MetadataPolicy = d.MetadataPolicy
	}
	if opts.IndexPolicy.MaxAttempts == 0 {
		opts.IndexPolicy = d.IndexPolicy
	}
	if opts.IndexDeletePolicy.MaxAttempts == 0 {
		opts.IndexDeletePolicy = d.IndexDeletePolicy
	}
	return &Manager{
		log:       log.With("component", "ConsistencyManager"),
		store:     store,
		index:     index,
		opts:      opts,
		txlog:     NewTxLog(opts.TxLogCapacity),
		listeners: append([]Listener(nil), opts.Listeners...),
	}
}

// AddListener must be called before the manager is shared.
func (m *Manager) AddListener(l Listener) {
	if l != nil {
		m.listeners = append(m.listeners, l)
	}
}

// Transactions returns recent saga executions, newest first.
func (m *Manager) Transactions(limit int) []Transaction {
	return m.txlog.Recent(limit)
}

func (m *Manager) Transaction(id string) (Transaction, bool) {
	return m.txlog.Get(id)
}

func retryHook(store string) retry.Hook {
	return func(name string, _ int, _ error) {
		observability.Current().IncStoreRetry(store, name)
	}
}

// metadata runs fn under the metadata retry budget. Not-found is final.
func (m *Manager) metadata(ctx context.Context, op string, fn func(dbc dbctx.Context) error) error {
	return retry.Do(ctx, "metadata."+op, m.opts.MetadataPolicy, m.log, retryHook("metadata"), func(ctx context.Context) error {
		err := fn(dbctx.Context{Ctx: ctx})
		if errors.Is(err, evrepo.ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
}

// indexCall runs fn under p. Caller-input errors are final.
func (m *Manager) indexCall(ctx context.Context, op string, p retry.Policy, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, "index."+op, p, m.log, retryHook("index"), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && errkind.Classify(err) == errkind.Validation {
			return retry.Permanent(err)
		}
		return err
	})
}

// CreateWithIndex writes rec, then the optional entry. When indexing fails
// the record write is compensated before returning.
func (m *Manager) CreateWithIndex(ctx context.Context, rec *evidence.Record, entry *evidence.IndexEntry, skipIndex bool) (*evidence.Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("record required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	s := m.begin(OpCreateWithIndex, rec.CaseID, rec.ID.String())

	var (
		saved   *evidence.Record
		created bool
	)
	err := m.metadata(ctx, "save_if_absent", func(dbc dbctx.Context) error {
		var err error
		saved, created, err = m.store.SaveIfAbsent(dbc, rec)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, err, false, rec.ID.String())
	}
	if !created {
		return saved, s.fail(ctx, fmt.Errorf("%w: %s", ErrAlreadyExists, saved.ID), false, saved.ID.String())
	}
	id := saved.ID
	s.onRollback("delete_record", func(ctx context.Context) error {
		return m.metadata(ctx, "delete", func(dbc dbctx.Context) error {
			_, err := m.store.Delete(dbc, id)
			return err
		})
	})

	if !skipIndex && entry != nil {
		e := *entry
		e.RecordID = id.String()
		e.CaseID = saved.CaseID
		if e.ChunkID == "" {
			e.ChunkID = evidence.SummaryChunkID(e.RecordID)
		}
		if e.Kind == "" {
			e.Kind = evidence.EntryKindSummary
		}
		if len(e.Embedding) == 0 && m.opts.Embedder != nil {
			e.Embedding, e.IsFallbackEmbedding = m.opts.Embedder.Embed(ctx, e.Content)
		}
		if err := m.indexCall(ctx, "add_entry", m.opts.IndexPolicy, func(ctx context.Context) error {
			return m.index.AddEntry(ctx, e)
		}); err != nil {
			return nil, s.fail(ctx, err, true, id.String())
		}
	}
	s.commit()
	return saved, nil
}

type DeleteResult struct {
	CaseID              string `json:"case_id"`
	RecordID            string `json:"record_id"`
	IndexDeleted        bool   `json:"index_deleted"`
	IndexEntriesDeleted int    `json:"index_entries_deleted"`
	MetadataDeleted     bool   `json:"metadata_deleted"`
	IndexError          string `json:"index_error,omitempty"`
}

// DeleteWithIndex removes the record's index entries (best-effort), then
// the record itself (fatal on failure).
func (m *Manager) DeleteWithIndex(ctx context.Context, caseID string, recordID uuid.UUID) (DeleteResult, error) {
	res := DeleteResult{CaseID: caseID, RecordID: recordID.String()}
	s := m.begin(OpDeleteWithIndex, caseID, res.RecordID)

	var rec *evidence.Record
	if err := m.metadata(ctx, "get", func(dbc dbctx.Context) error {
		var err error
		rec, err = m.store.Get(dbc, recordID)
		return err
	}); err != nil {
		return res, s.fail(ctx, err, false, res.RecordID)
	}
	if rec.CaseID != caseID {
		return res, s.fail(ctx, fmt.Errorf("%w: %s", ErrCaseMismatch, rec.CaseID), false, res.RecordID)
	}

	err := m.indexCall(ctx, "delete_by_filter", m.opts.IndexDeletePolicy, func(ctx context.Context) error {
		n, err := m.index.DeleteByFilter(ctx, caseID, map[string]any{"record_id": res.RecordID})
		res.IndexEntriesDeleted = n
		return err
	})
	if err != nil {
		res.IndexError = err.Error()
		s.log.Warn("index delete failed, continuing with metadata delete", "record_id", res.RecordID, "error", err)
	} else {
		res.IndexDeleted = true
	}

	if err := m.metadata(ctx, "delete", func(dbc dbctx.Context) error {
		var err error
		res.MetadataDeleted, err = m.store.Delete(dbc, recordID)
		return err
	}); err != nil {
		return res, s.fail(ctx, err, res.IndexDeleted, res.RecordID)
	}

	for _, l := range m.listeners {
		l.RecordDeleted(ctx, rec)
	}
	s.commit()
	return res, nil
}

// UpdateMetadata applies updates and, when reindex is set and the summary or
// tags changed, rewrites the record's summary entry. Any failure restores the
// pre-update record.
func (m *Manager) UpdateMetadata(ctx context.Context, recordID uuid.UUID, updates map[string]interface{}, reindex bool) (*evidence.Record, error) {
	return m.update(ctx, OpUpdateMetadata, recordID, updates, reindex, false)
}

// Reindex re-embeds the record's summary entry unconditionally.
func (m *Manager) Reindex(ctx context.Context, recordID uuid.UUID) (*evidence.Record, error) {
	return m.update(ctx, OpReindex, recordID, nil, true, true)
}

func (m *Manager) update(ctx context.Context, op string, recordID uuid.UUID, updates map[string]interface{}, reindex, force bool) (*evidence.Record, error) {
	s := m.begin(op, "", recordID.String())

	var before *evidence.Record
	if err := m.metadata(ctx, "get", func(dbc dbctx.Context) error {
		var err error
		before, err = m.store.Get(dbc, recordID)
		return err
	}); err != nil {
		return nil, s.fail(ctx, err, false, recordID.String())
	}
	s.setRecord(before.CaseID, recordID.String())
	snapshot := before.Clone()

	var after *evidence.Record
	if err := m.metadata(ctx, "update", func(dbc dbctx.Context) error {
		var err error
		after, err = m.store.Update(dbc, recordID, updates)
		return err
	}); err != nil {
		return nil, s.fail(ctx, err, false, recordID.String())
	}
	if len(updates) > 0 {
		s.onRollback("restore_record", func(ctx context.Context) error {
			return m.metadata(ctx, "restore", func(dbc dbctx.Context) error {
				return m.store.Restore(dbc, snapshot)
			})
		})
	}

	if reindex && (force || indexedContentChanged(snapshot, after)) {
		if err := m.indexSummary(ctx, after); err != nil {
			return nil, s.fail(ctx, err, len(updates) > 0, recordID.String())
		}
	}
	s.commit()
	return after, nil
}

// IndexSummary writes the record-level entry of a completed record. The
// entry id is fixed per record, so repeating it is harmless.
func (m *Manager) IndexSummary(ctx context.Context, rec *evidence.Record) error {
	if rec == nil {
		return fmt.Errorf("record required")
	}
	return m.indexSummary(ctx, rec)
}

func (m *Manager) indexSummary(ctx context.Context, rec *evidence.Record) error {
	if m.opts.Embedder == nil {
		return errkind.New(errkind.Dependency, "index summary", errors.New("no embedder configured"))
	}
	entry := summaryEntry(rec)
	entry.Embedding, entry.IsFallbackEmbedding = m.opts.Embedder.Embed(ctx, entry.Content)
	if len(entry.Embedding) == 0 {
		return errkind.New(errkind.Dependency, "index summary", errors.New("empty vector"))
	}
	return m.indexCall(ctx, "add_entry", m.opts.IndexPolicy, func(ctx context.Context) error {
		return m.index.AddEntry(ctx, entry)
	})
}

func indexedContentChanged(before, after *evidence.Record) bool {
	if before == nil || after == nil {
		return true
	}
	return before.Summary != after.Summary || string(before.Tags) != string(after.Tags)
}

// summaryEntry is the record-level document searched alongside the chunks.
func summaryEntry(rec *evidence.Record) evidence.IndexEntry {
	content := rec.Summary
	if content == "" {
		content = rec.FileName
	}
	return evidence.IndexEntry{
		ChunkID:    evidence.SummaryChunkID(rec.ID.String()),
		RecordID:   rec.ID.String(),
		CaseID:     rec.CaseID,
		Kind:       evidence.EntryKindSummary,
		Content:    content,
		Tags:       rec.TagList(),
		Confidence: 1,
		Location:   evidence.Location{File: rec.FileName},
	}
}

type ClearResult struct {
	CaseID            string   `json:"case_id"`
	MetadataDeleted   int64    `json:"metadata_deleted"`
	IndexDeleted      int      `json:"index_deleted"`
	CollectionDeleted bool     `json:"collection_deleted"`
	Errors            []string `json:"errors,omitempty"`
}

// ClearCaseData removes a case from both stores. The halves are independent
// and partial deletes are not rolled back: running it again finishes the job.
func (m *Manager) ClearCaseData(ctx context.Context, caseID string, deleteCollection bool) (ClearResult, error) {
	res := ClearResult{CaseID: caseID}
	s := m.begin(OpClearCaseData, caseID, "")
	if caseID == "" {
		return res, s.fail(ctx, errkind.New(errkind.Validation, "clear_case_data", errors.New("case id required")), false, "")
	}

	var errs []error
	indexOK := true
	if err := m.indexCall(ctx, "delete_by_filter", m.opts.IndexDeletePolicy, func(ctx context.Context) error {
		n, err := m.index.DeleteByFilter(ctx, caseID, map[string]any{"case_id": caseID})
		res.IndexDeleted = n
		return err
	}); err != nil {
		indexOK = false
		errs = append(errs, fmt.Errorf("index: %w", err))
	}
	if deleteCollection {
		if err := m.indexCall(ctx, "delete_collection", m.opts.IndexDeletePolicy, func(ctx context.Context) error {
			var err error
			res.CollectionDeleted, err = m.index.DeleteCollection(ctx, caseID)
			return err
		}); err != nil {
			indexOK = false
			errs = append(errs, fmt.Errorf("index collection: %w", err))
		}
	}

	metaOK := true
	if err := m.metadata(ctx, "delete_by_case", func(dbc dbctx.Context) error {
		var err error
		res.MetadataDeleted, err = m.store.DeleteByCase(dbc, caseID)
		return err
	}); err != nil {
		metaOK = false
		errs = append(errs, fmt.Errorf("metadata: %w", err))
	}

	for _, l := range m.listeners {
		l.CaseCleared(ctx, caseID)
	}

	if len(errs) > 0 {
		for _, e := range errs {
			res.Errors = append(res.Errors, e.Error())
		}
		return res, s.fail(ctx, errors.Join(errs...), indexOK || metaOK, "")
	}
	s.log.Info("case cleared",
		"case_id", caseID,
		"metadata_deleted", res.MetadataDeleted,
		"index_deleted", res.IndexDeleted,
		"collection_deleted", res.CollectionDeleted,
	)
	s.commit()
	return res, nil
}
