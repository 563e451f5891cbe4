package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/model"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/store"
	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"
)

func newTestRepo(t *testing.T) (*VerdictRepository, *store.Store) {
	t.Helper()
	base := t.TempDir()
	st, err := store.New(filepath.Join(base, "data"), filepath.Join(base, "submissions"), 100)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewVerdictRepository(st), st
}

func TestQueuedReadsDoNotConsume(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	repo.Publish(1, model.Queued())
	for i := 0; i < 3; i++ {
		v, err := repo.Get(ctx, 1)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if v.State != model.StateQueued {
			t.Fatalf("expected queued, got %s", v.State)
		}
	}
}

func TestTerminalReadConsumesOnce(t *testing.T) {
	repo, st := newTestRepo(t)
	ctx := context.Background()

	sid, err := st.NextID()
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	if _, err := st.EnsureDirs(sid); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	verdict := model.Done([]model.CaseResult{{OK: true, Status: model.StatusAccepted}})
	if err := st.WriteResult(sid, verdict); err != nil {
		t.Fatalf("write result: %v", err)
	}
	repo.Publish(sid, verdict)

	first, err := repo.Get(ctx, sid)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if first.State != model.StateDone || !first.Passed {
		t.Fatalf("unexpected verdict %+v", first)
	}

	// Second read must come from the on-disk archive.
	second, err := repo.Get(ctx, sid)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if second.State != first.State || second.Passed != first.Passed || second.Result != first.Result {
		t.Fatalf("disk fallback diverged: %+v vs %+v", second, first)
	}
}

func TestMissingEntryWithoutArchiveIsNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Get(context.Background(), 404)
	if err == nil {
		t.Fatalf("expected not found")
	}
	if appErr.GetCode(err) != appErr.SubmissionNotFound {
		t.Fatalf("unexpected code %d", appErr.GetCode(err))
	}
}

func TestClearWipesMemoryOnly(t *testing.T) {
	repo, st := newTestRepo(t)
	ctx := context.Background()

	sid, err := st.NextID()
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	if _, err := st.EnsureDirs(sid); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	verdict := model.Errored("boom")
	if err := st.WriteResult(sid, verdict); err != nil {
		t.Fatalf("write result: %v", err)
	}
	repo.Publish(sid, verdict)

	repo.Clear()

	v, err := repo.Get(ctx, sid)
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if v.State != model.StateError || v.Error != "boom" {
		t.Fatalf("archived verdict should survive clear: %+v", v)
	}
}
