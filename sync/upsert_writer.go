package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Candidate is a mapped order ready to write, keyed on its Cin7 id.
type Candidate struct {
	ID         string
	Properties Properties
}

// WriteResult accumulates write outcomes. Errors holds at most the first
// MaxErrors messages; ErrorsCount counts all of them.
type WriteResult struct {
	Created     int
	Updated     int
	Upserted    int
	ErrorsCount int
	Errors      []string
	MaxErrors   int
}

func (w *WriteResult) addError(msg string) {
	w.ErrorsCount++
	if w.MaxErrors <= 0 || len(w.Errors) < w.MaxErrors {
		w.Errors = append(w.Errors, msg)
	}
}

// UpsertWriter writes every candidate, collecting failures rather than stopping.
type UpsertWriter interface {
	Write(ctx context.Context, candidates []Candidate) WriteResult
}

// NewUpsertWriter returns the writer for the configured write mode.
func NewUpsertWriter(sc *SyncContext, target HubSpotObjects) UpsertWriter {
	if sc.Config.HubSpot.WriteMode == WriteModeSearch {
		return SearchThenBranchWriter{SyncContext: sc, Target: target}
	}
	return BatchUpsertWriter{SyncContext: sc, Target: target}
}

// BatchUpsertWriter sends candidates in fixed-size batches to the idempotent
// upsert endpoint. A failed call fails its whole batch.
type BatchUpsertWriter struct {
	*SyncContext
	Target HubSpotObjects
}

func (b BatchUpsertWriter) Write(ctx context.Context, candidates []Candidate) WriteResult {
	result := WriteResult{MaxErrors: b.Config.Sync.MaxErrorSamples}
	size := b.Config.HubSpot.BatchSize
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	unique := b.Config.HubSpot.UniqueProperty
	for start, n := 0, 1; start < len(candidates); start, n = start+size, n+1 {
		end := min(start+size, len(candidates))
		chunk := candidates[start:end]
		inputs := make([]UpsertInput, 0, len(chunk))
		for _, c := range chunk {
			inputs = append(inputs, UpsertInput{IDProperty: unique, ID: c.ID, Properties: c.Properties})
		}
		response, err := b.Target.BatchUpsert(ctx, inputs)
		if err != nil {
			msg := fmt.Sprintf("batch %d (%d orders, %s..%s): %v", n, len(chunk), chunk[0].ID, chunk[len(chunk)-1].ID, err)
			b.log().Warn("batch upsert failed", zap.Int("batch", n), zap.Error(err))
			result.addError(msg)
			continue
		}
		for _, r := range response.Results {
			result.Upserted++
			if r.New == nil {
				continue
			}
			if *r.New {
				result.Created++
			} else {
				result.Updated++
			}
		}
		for _, e := range response.Errors {
			msg := fmt.Sprintf("batch %d: %s", n, e.Message)
			if e.Category != "" {
				msg = fmt.Sprintf("batch %d: %s: %s", n, e.Category, e.Message)
			}
			b.log().Warn("batch upsert partial failure", zap.Int("batch", n), zap.String("error", msg))
			result.addError(msg)
		}
		// numErrors without detail still counts
		for i := len(response.Errors); i < response.NumErrors; i++ {
			result.addError(fmt.Sprintf("batch %d: unreported error", n))
		}
		b.log().Info("wrote batch", zap.Int("batch", n), zap.Int("orders", len(chunk)), zap.Int("upserted", len(response.Results)))
	}
	return result
}

// SearchThenBranchWriter looks each candidate up by the unique property, then
// updates the match or creates a new object. Two calls per order, not atomic.
type SearchThenBranchWriter struct {
	*SyncContext
	Target HubSpotObjects
}

func (s SearchThenBranchWriter) Write(ctx context.Context, candidates []Candidate) WriteResult {
	result := WriteResult{MaxErrors: s.Config.Sync.MaxErrorSamples}
	for _, c := range candidates {
		existing, err := s.Target.SearchByUniqueProperty(ctx, c.ID)
		if err != nil {
			s.recordError(&result, c.ID, err)
			continue
		}
		if existing != nil {
			if _, err := s.Target.UpdateObject(ctx, existing.ID, c.Properties); err != nil {
				s.recordError(&result, c.ID, err)
				continue
			}
			result.Updated++
			continue
		}
		if _, err := s.Target.CreateObject(ctx, c.Properties); err != nil {
			s.recordError(&result, c.ID, err)
			continue
		}
		result.Created++
	}
	return result
}

func (s SearchThenBranchWriter) recordError(result *WriteResult, id string, err error) {
	s.log().Warn("order write failed", zap.String("order", id), zap.Error(err))
	result.addError(fmt.Sprintf("order %s: %v", id, err))
}
