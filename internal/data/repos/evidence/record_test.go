package evidence

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/data/repos/testutil"
	"github.com/yungbote/evidence-backend/internal/platform/dbctx"
)

func TestRecordRepoSaveIfAbsentAndConditionalComplete(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewRecordRepo(db, testutil.Logger(t))
	caseID := "case-" + uuid.NewString()[:8]

	rec := testutil.NewRecord(t, caseID)
	got, created, err := repo.SaveIfAbsent(dbc, rec)
	if err != nil || !created {
		t.Fatalf("SaveIfAbsent: created=%v err=%v", created, err)
	}

	dup := testutil.NewRecord(t, caseID)
	dup.FileHash = rec.FileHash
	again, created, err := repo.SaveIfAbsent(dbc, dup)
	if err != nil {
		t.Fatalf("SaveIfAbsent duplicate: %v", err)
	}
	if created || again.ID != got.ID {
		t.Fatalf("SaveIfAbsent duplicate: want existing id=%s got created=%v id=%s", got.ID, created, again.ID)
	}

	if found, err := repo.CheckByHash(dbc, caseID, rec.FileHash); err != nil || found != nil {
		t.Fatalf("CheckByHash pending: want nil got=%v err=%v", found, err)
	}

	ok, err := repo.UpdateConditionally(dbc, got.ID, map[string]interface{}{"status": types.StatusCompleted, "chunk_count": 3})
	if err != nil || !ok {
		t.Fatalf("UpdateConditionally first: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateConditionally(dbc, got.ID, map[string]interface{}{"status": types.StatusCompleted})
	if err != nil || ok {
		t.Fatalf("UpdateConditionally second: want ok=false got ok=%v err=%v", ok, err)
	}

	found, err := repo.CheckByHash(dbc, caseID, rec.FileHash)
	if err != nil || found == nil || found.ChunkCount != 3 {
		t.Fatalf("CheckByHash completed: got=%v err=%v", found, err)
	}
	if found.CompletedAt == nil {
		t.Fatalf("CompletedAt: want set")
	}
	if found, _ := repo.CheckByOrigin(dbc, rec.OriginRef); found == nil {
		t.Fatalf("CheckByOrigin: want record")
	}

	if deleted, err := repo.DeleteIfNotCompleted(dbc, got.ID); err != nil || deleted {
		t.Fatalf("DeleteIfNotCompleted on completed: want false got=%v err=%v", deleted, err)
	}
}

func TestRecordRepoDeleteByCaseIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewRecordRepo(db, testutil.Logger(t))
	caseID := "case-" + uuid.NewString()[:8]
	for i := 0; i < 2; i++ {
		if _, _, err := repo.SaveIfAbsent(dbc, testutil.NewRecord(t, caseID)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, err := repo.DeleteByCase(dbc, caseID)
	if err != nil || n != 2 {
		t.Fatalf("DeleteByCase first: want=2 got=%d err=%v", n, err)
	}
	n, err = repo.DeleteByCase(dbc, caseID)
	if err != nil || n != 0 {
		t.Fatalf("DeleteByCase second: want=0 got=%d err=%v", n, err)
	}
}

func TestRecordRepoUpdateAndRestore(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewRecordRepo(db, testutil.Logger(t))
	rec, _, err := repo.SaveIfAbsent(dbc, testutil.NewRecord(t, "case-restore"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	snapshot := rec.Clone()

	updated, err := repo.Update(dbc, rec.ID, map[string]interface{}{"summary": "changed"})
	if err != nil || updated.Summary != "changed" {
		t.Fatalf("Update: got=%v err=%v", updated, err)
	}
	if err := repo.Restore(dbc, snapshot); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	back, err := repo.Get(dbc, rec.ID)
	if err != nil || back.Summary != snapshot.Summary {
		t.Fatalf("Restore: want summary=%q got=%v err=%v", snapshot.Summary, back, err)
	}

	if _, err := repo.Update(dbc, uuid.New(), map[string]interface{}{"summary": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update missing: want ErrNotFound got=%v", err)
	}
}
