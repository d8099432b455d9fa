package bundle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/planalign/types"
)

// bulkTracker keeps per-operation item states for bulk export/import.
type bulkTracker struct {
	mu  sync.Mutex
	ops map[string]*types.BulkOperation
}

func newBulkTracker() *bulkTracker {
	return &bulkTracker{ops: make(map[string]*types.BulkOperation)}
}

func (t *bulkTracker) start(kind string, keys []string) *types.BulkOperation {
	op := &types.BulkOperation{
		ID:        uuid.New().String(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
	}
	for _, key := range keys {
		op.Items = append(op.Items, types.BulkItemState{Key: key, Status: "pending"})
	}

	t.mu.Lock()
	t.ops[op.ID] = op
	t.mu.Unlock()
	return op
}

func (t *bulkTracker) setItem(opID string, idx int, status, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[opID]
	if !ok || idx >= len(op.Items) {
		return
	}
	op.Items[idx].Status = status
	op.Items[idx].Error = errMsg
}

func (t *bulkTracker) finish(opID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if op, ok := t.ops[opID]; ok {
		now := time.Now().UTC()
		op.CompletedAt = &now
	}
}

func (t *bulkTracker) get(opID string) *types.BulkOperation {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[opID]
	if !ok {
		return nil
	}
	copied := *op
	copied.Items = append([]types.BulkItemState(nil), op.Items...)
	return &copied
}

// GetBulkOperation returns a copy of a bulk operation's state, or nil.
func (s *Service) GetBulkOperation(opID string) *types.BulkOperation {
	return s.bulk.get(opID)
}

// BulkExport exports each workspace in turn, tracking per-item status.
// Item semantics are identical to Export.
func (s *Service) BulkExport(ctx context.Context, workspaceIDs []string) *types.BulkOperation {
	op := s.bulk.start("export", workspaceIDs)

	for i, workspaceID := range workspaceIDs {
		s.bulk.setItem(op.ID, i, "running", "")
		if _, _, err := s.Export(ctx, workspaceID); err != nil {
			s.bulk.setItem(op.ID, i, "failed", err.Error())
			continue
		}
		s.bulk.setItem(op.ID, i, "completed", "")
	}

	s.bulk.finish(op.ID)
	return s.bulk.get(op.ID)
}

// BulkImport imports each bundle file in turn with the given resolution,
// tracking per-item status. Item semantics are identical to Import.
func (s *Service) BulkImport(ctx context.Context, archivePaths []string, resolution types.ConflictResolution) *types.BulkOperation {
	op := s.bulk.start("import", archivePaths)

	for i, path := range archivePaths {
		s.bulk.setItem(op.ID, i, "running", "")
		result, err := s.Import(ctx, path, resolution, "")
		switch {
		case err != nil:
			s.bulk.setItem(op.ID, i, "failed", err.Error())
		case result.Status == types.ImportSkipped:
			s.bulk.setItem(op.ID, i, "skipped", "")
		default:
			s.bulk.setItem(op.ID, i, "completed", "")
		}
	}

	s.bulk.finish(op.ID)
	return s.bulk.get(op.ID)
}
