package memory

import (
	"context"

	"go.uber.org/zap"
)

// Recorder writes records on behalf of the planner and the agent.
//
// Memory is telemetry, not a correctness dependency: a failed write is logged
// and swallowed so it never aborts the plan that produced it.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

// NewRecorder wraps store. A nil store turns every call into a no-op; a nil
// logger is replaced with zap.NewNop().
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// Store returns the underlying store (may be nil).
func (r *Recorder) Store() Store {
	return r.store
}

// Record creates and stores a record, returning its ID, or "" when the write
// did not happen.
func (r *Recorder) Record(ctx context.Context, content string, kind Kind, metadata map[string]interface{}) string {
	if r == nil || r.store == nil {
		return ""
	}

	rec := NewRecord(content, kind, metadata)
	if err := r.store.Store(ctx, rec); err != nil {
		r.logger.Error("failed to store memory",
			zap.String("kind", kind.String()),
			zap.String("id", rec.ID),
			zap.Error(err),
		)
		return ""
	}

	r.logger.Debug("stored memory",
		zap.String("kind", kind.String()),
		zap.String("id", rec.ID),
	)
	return rec.ID
}

// Retrieve looks up records, logging and returning an empty slice on failure.
func (r *Recorder) Retrieve(ctx context.Context, query string, topK int, kind Kind) []*Record {
	if r == nil || r.store == nil {
		return []*Record{}
	}

	recs, err := r.store.Retrieve(ctx, query, topK, kind)
	if err != nil {
		r.logger.Warn("failed to retrieve memories",
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		return []*Record{}
	}
	return recs
}
