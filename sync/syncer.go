package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SchemaSource fetches the destination property schema.
type SchemaSource interface {
	FetchPropertySchema(ctx context.Context) (PropertySchema, error)
}

// Summary is the outcome of a completed run.
type Summary struct {
	OK                    bool     `json:"ok"`
	RunID                 string   `json:"runId"`
	StartedAt             string   `json:"startedAt"`
	FinishedAt            string   `json:"finishedAt"`
	Since                 string   `json:"since"`
	WriteMode             string   `json:"writeMode"`
	Cin7Count             int      `json:"cin7Count"`
	Prepared              int      `json:"prepared"`
	Created               int      `json:"created"`
	Updated               int      `json:"updated"`
	Upserted              int      `json:"upserted"`
	Skipped               int      `json:"skipped"`
	Duplicates            int      `json:"duplicates"`
	UnsupportedProperties []string `json:"unsupportedProperties"`
	ErrorsCount           int      `json:"errorsCount"`
	Errors                []string `json:"errors"`
}

// FatalSummary is the minimal outcome of a run that aborted.
type FatalSummary struct {
	OK         bool   `json:"ok"`
	RunID      string `json:"runId,omitempty"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt"`
	Error      string `json:"error"`
}

// Fatal converts a partially filled summary into its fatal form.
func (s Summary) Fatal(err error) FatalSummary {
	result := NewFatalSummary(err, time.Now())
	result.RunID = s.RunID
	result.StartedAt = s.StartedAt
	if s.FinishedAt != "" {
		result.FinishedAt = s.FinishedAt
	}
	return result
}

// NewFatalSummary reports err for a run that never started, e.g. on bad config.
func NewFatalSummary(err error, now time.Time) FatalSummary {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return FatalSummary{FinishedAt: now.UTC().Format(time.RFC3339), Error: msg}
}

// Syncer runs one Cin7 to HubSpot sync.
// It embeds *SyncContext for shared sync configuration.
type Syncer struct {
	*SyncContext
	Source OrderSource
	Schema SchemaSource
	Target HubSpotObjects
}

// NewSyncer wires the Cin7 and HubSpot API clients for the context.
func NewSyncer(sc *SyncContext) Syncer {
	hubspot := HubSpotFetcherAndUpdater{SyncContext: sc}
	return Syncer{
		SyncContext: sc,
		Source:      Cin7Fetcher{SyncContext: sc},
		Schema:      hubspot,
		Target:      hubspot,
	}
}

// Run fetches, dedupes, maps, filters and writes. Configuration, fetch and
// schema problems abort the run and are returned with the summary so far;
// write failures are collected in the summary.
func (s Syncer) Run(ctx context.Context) (Summary, error) {
	cfg := s.Config
	started := s.now()
	summary := Summary{
		RunID:                 uuid.NewString(),
		StartedAt:             started.Format(time.RFC3339),
		WriteMode:             cfg.HubSpot.WriteMode,
		UnsupportedProperties: []string{},
		Errors:                []string{},
	}
	logger := s.log().With(zap.String("runId", summary.RunID))
	fail := func(err error) (Summary, error) {
		summary.FinishedAt = s.now().Format(time.RFC3339)
		logger.Error("sync failed", zap.Error(err))
		return summary, err
	}

	since, err := cfg.SinceCutoff(started)
	if err != nil {
		return fail(err)
	}
	summary.Since = since.Format(time.RFC3339)

	schema, err := s.Schema.FetchPropertySchema(ctx)
	if err != nil {
		return fail(err)
	}
	unique := cfg.HubSpot.UniqueProperty
	definition, ok := schema[unique]
	if !ok {
		return fail(fmt.Errorf("%w: %s on %s", ErrUniquePropertyMissing, unique, cfg.HubSpot.ObjectType))
	}
	if !definition.HasUniqueValue && cfg.HubSpot.WriteMode != WriteModeSearch {
		logger.Warn("unique property is not marked hasUniqueValue, batch upsert may be rejected", zap.String("property", unique))
	}
	if missing := UnsupportedProperties(cfg.Mappings.Properties, schema); len(missing) > 0 {
		summary.UnsupportedProperties = missing
		logger.Info("mapped properties missing from hubspot schema", zap.Strings("properties", missing))
	}

	orders, err := s.Source.FetchOrdersSince(ctx, since)
	if err != nil {
		return fail(err)
	}
	summary.Cin7Count = len(orders)

	deduped := Dedupe(orders, cfg.Mappings.Identifier)
	summary.Skipped = deduped.Skipped
	summary.Duplicates = deduped.Duplicates

	mapper := FieldMapper{Mappings: cfg.Mappings.Properties}
	candidates := make([]Candidate, 0, len(deduped.Candidates))
	for _, record := range deduped.Candidates {
		props := FilterToSchema(mapper.Map(record.Source), schema)
		props[unique] = record.ID
		candidates = append(candidates, Candidate{ID: record.ID, Properties: props})
	}
	summary.Prepared = len(candidates)
	logger.Info("prepared orders",
		zap.Int("fetched", summary.Cin7Count),
		zap.Int("prepared", summary.Prepared),
		zap.Int("skipped", summary.Skipped),
		zap.Int("duplicates", summary.Duplicates))

	written := NewUpsertWriter(s.SyncContext, s.Target).Write(ctx, candidates)
	summary.Created = written.Created
	summary.Updated = written.Updated
	summary.Upserted = written.Upserted
	summary.ErrorsCount = written.ErrorsCount
	if len(written.Errors) > 0 {
		summary.Errors = written.Errors
	}
	summary.OK = true
	summary.FinishedAt = s.now().Format(time.RFC3339)
	logger.Info("sync finished",
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("upserted", summary.Upserted),
		zap.Int("errors", summary.ErrorsCount))
	return summary, nil
}
