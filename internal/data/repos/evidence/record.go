package evidence

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/dbctx"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

var ErrNotFound = errors.New("evidence record not found")

// RecordRepo is the metadata store for evidence records. Check* lookups only
// report completed records and return (nil, nil) when there is none.
type RecordRepo interface {
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Record, error)
	GetByEvidenceID(dbc dbctx.Context, evidenceID string) (*types.Record, error)
	ListByCase(dbc dbctx.Context, caseID string) ([]*types.Record, error)

	CheckByEvidenceID(dbc dbctx.Context, evidenceID string) (*types.Record, error)
	CheckByHash(dbc dbctx.Context, caseID, fileHash string) (*types.Record, error)
	CheckByOrigin(dbc dbctx.Context, originRef string) (*types.Record, error)

	// SaveIfAbsent inserts rec unless a row with the same natural key exists,
	// in which case the existing row is returned with created=false.
	SaveIfAbsent(dbc dbctx.Context, rec *types.Record) (existing *types.Record, created bool, err error)
	// UpdateConditionally applies updates only while the row is not completed.
	UpdateConditionally(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
	Update(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (*types.Record, error)
	Restore(dbc dbctx.Context, rec *types.Record) error

	Delete(dbc dbctx.Context, id uuid.UUID) (bool, error)
	DeleteIfNotCompleted(dbc dbctx.Context, id uuid.UUID) (bool, error)
	DeleteByCase(dbc dbctx.Context, caseID string) (int64, error)
}

type recordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecordRepo(db *gorm.DB, baseLog *logger.Logger) RecordRepo {
	repoLog := baseLog.With("repo", "EvidenceRecordRepo")
	return &recordRepo{db: db, log: repoLog}
}

func (r *recordRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *recordRepo) first(dbc dbctx.Context, query string, args ...interface{}) (*types.Record, error) {
	var rec types.Record
	err := r.tx(dbc).Where(query, args...).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepo) Get(dbc dbctx.Context, id uuid.UUID) (*types.Record, error) {
	return r.first(dbc, "id = ?", id)
}

func (r *recordRepo) GetByEvidenceID(dbc dbctx.Context, evidenceID string) (*types.Record, error) {
	return r.first(dbc, "evidence_id = ?", evidenceID)
}

func (r *recordRepo) ListByCase(dbc dbctx.Context, caseID string) ([]*types.Record, error) {
	var results []*types.Record
	if err := r.tx(dbc).
		Where("case_id = ?", caseID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *recordRepo) completed(dbc dbctx.Context, query string, args ...interface{}) (*types.Record, error) {
	rec, err := r.first(dbc, query+" AND status = ?", append(args, types.StatusCompleted)...)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (r *recordRepo) CheckByEvidenceID(dbc dbctx.Context, evidenceID string) (*types.Record, error) {
	if evidenceID == "" {
		return nil, nil
	}
	return r.completed(dbc, "evidence_id = ?", evidenceID)
}

func (r *recordRepo) CheckByHash(dbc dbctx.Context, caseID, fileHash string) (*types.Record, error) {
	if fileHash == "" {
		return nil, nil
	}
	return r.completed(dbc, "case_id = ? AND file_hash = ?", caseID, fileHash)
}

func (r *recordRepo) CheckByOrigin(dbc dbctx.Context, originRef string) (*types.Record, error) {
	if originRef == "" {
		return nil, nil
	}
	return r.completed(dbc, "origin_ref = ?", originRef)
}

func (r *recordRepo) SaveIfAbsent(dbc dbctx.Context, rec *types.Record) (*types.Record, bool, error) {
	if rec == nil {
		return nil, false, errors.New("record required")
	}
	res := r.tx(dbc).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return nil, false, res.Error
	}
	if res.Error == nil && res.RowsAffected > 0 {
		return rec, true, nil
	}

	existing, err := r.byNaturalKey(dbc, rec)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// byNaturalKey resolves the row that won a uniqueness conflict, strongest key first.
func (r *recordRepo) byNaturalKey(dbc dbctx.Context, rec *types.Record) (*types.Record, error) {
	if rec.EvidenceID != nil && *rec.EvidenceID != "" {
		if got, err := r.GetByEvidenceID(dbc, *rec.EvidenceID); err == nil {
			return got, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if rec.FileHash != "" {
		if got, err := r.first(dbc, "case_id = ? AND file_hash = ?", rec.CaseID, rec.FileHash); err == nil {
			return got, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if rec.OriginRef != "" {
		if got, err := r.first(dbc, "origin_ref = ?", rec.OriginRef); err == nil {
			return got, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return r.Get(dbc, rec.ID)
}

func (r *recordRepo) UpdateConditionally(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if len(updates) == 0 {
		return false, nil
	}
	if status, ok := updates["status"]; ok && status == types.StatusCompleted {
		if _, set := updates["completed_at"]; !set {
			updates["completed_at"] = time.Now().UTC()
		}
	}
	res := r.tx(dbc).
		Model(&types.Record{}).
		Where("id = ? AND status <> ?", id, types.StatusCompleted).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *recordRepo) Update(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (*types.Record, error) {
	if len(updates) > 0 {
		res := r.tx(dbc).Model(&types.Record{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return r.Get(dbc, id)
}

func (r *recordRepo) Restore(dbc dbctx.Context, rec *types.Record) error {
	if rec == nil || rec.ID == uuid.Nil {
		return errors.New("restore: record with id required")
	}
	return r.tx(dbc).Select("*").Save(rec).Error
}

func (r *recordRepo) Delete(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	res := r.tx(dbc).Where("id = ?", id).Delete(&types.Record{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *recordRepo) DeleteIfNotCompleted(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	res := r.tx(dbc).
		Where("id = ? AND status <> ?", id, types.StatusCompleted).
		Delete(&types.Record{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *recordRepo) DeleteByCase(dbc dbctx.Context, caseID string) (int64, error) {
	if caseID == "" {
		return 0, errors.New("case id required")
	}
	res := r.tx(dbc).Where("case_id = ?", caseID).Delete(&types.Record{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
