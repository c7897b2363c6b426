package sync

import (
	"time"

	"go.uber.org/zap"
)

// SyncContext holds the configuration and collaborators shared by one run.
// It is immutable after construction.
type SyncContext struct {
	Config         Config
	Logger         *zap.Logger
	RecordRequests bool
	// Now is the clock used for the lookback window and summary timestamps.
	Now func() time.Time
}

func NewSyncContext(config Config, logger *zap.Logger) *SyncContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncContext{Config: config, Logger: logger, Now: time.Now}
}

func (s *SyncContext) log() *zap.Logger {
	if s == nil || s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *SyncContext) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
