// Package repository holds the in-memory verdict cache backing get-result
// lookups, with the on-disk archive as durable fallback.
package repository

import (
	"context"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/model"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/store"
	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/logger"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// VerdictRepository maps submission ids to verdicts. Terminal entries are
// consumed by their first successful read, bounding memory under sustained
// submission rates; later reads fall back to result.json.
type VerdictRepository struct {
	entries *xsync.MapOf[int64, model.Verdict]
	store   *store.Store
}

// NewVerdictRepository creates a repository over the given archive store.
func NewVerdictRepository(st *store.Store) *VerdictRepository {
	return &VerdictRepository{
		entries: xsync.NewMapOf[int64, model.Verdict](),
		store:   st,
	}
}

// Publish overwrites the entry for sid. Workers call this on every state
// transition; result.json must already be written for terminal verdicts.
func (r *VerdictRepository) Publish(sid int64, v model.Verdict) {
	r.entries.Store(sid, v)
}

// Get returns the verdict for sid. The first in-memory read of a terminal
// verdict removes the entry (compare-and-delete); queued reads do not
// consume. A missing entry falls back to the on-disk result.
func (r *VerdictRepository) Get(ctx context.Context, sid int64) (model.Verdict, error) {
	v, ok := r.entries.Load(sid)
	if !ok {
		verdict, err := r.store.ReadResult(sid)
		if err != nil {
			return model.Verdict{}, appErr.Newf(appErr.SubmissionNotFound, "submission %d not found", sid)
		}
		return verdict, nil
	}
	if v.Terminal() {
		r.entries.Compute(sid, func(old model.Verdict, loaded bool) (model.Verdict, bool) {
			return old, loaded && old.Terminal()
		})
		logger.Debug(ctx, "verdict consumed from cache", zap.Int64("sid", sid))
	}
	return v, nil
}

// Clear wipes all in-memory entries. Used by the reset flow; archived
// results on disk are untouched.
func (r *VerdictRepository) Clear() {
	r.entries.Clear()
}
