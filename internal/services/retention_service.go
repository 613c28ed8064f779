package services

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/config"
	"github.com/xamero/smartdocs/internal/cache"
	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/repositories"
)

// RetentionDaysKey is the system configuration key overriding the
// configured retention period
const RetentionDaysKey = "retention.default_days"

// SweepResult summarizes one retention run
type SweepResult struct {
	Days      int       `json:"days"`
	Threshold time.Time `json:"threshold"`
	Scanned   int       `json:"scanned"`
	Archived  int       `json:"archived"`
	Failed    int       `json:"failed"`
}

// RetentionService archives completed documents once they age out
type RetentionService struct {
	base
	system *repositories.SystemConfigRepository
	cfg    config.RetentionConfig
}

// NewRetentionService creates a new retention service
func NewRetentionService(db, readOnlyDB *gorm.DB, cfg config.RetentionConfig, opts Options) *RetentionService {
	return &RetentionService{
		base:   newBase(db, readOnlyDB, opts),
		system: repositories.NewSystemConfigRepository(db, readOnlyDB),
		cfg:    cfg,
	}
}

// RetentionDays resolves the retention period: the system configuration
// row, then the config file, then DefaultRetentionDays
func (s *RetentionService) RetentionDays(ctx context.Context) int {
	value, ok, err := s.system.Get(ctx, RetentionDaysKey)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read retention override, using configured value")
	}
	if ok {
		if days, err := strconv.Atoi(value); err == nil && days > 0 {
			return days
		}
		log.Warn().Str("value", value).Msg("Ignoring invalid retention override")
	}
	if s.cfg.DefaultDays > 0 {
		return s.cfg.DefaultDays
	}
	return config.DefaultRetentionDays
}

func (s *RetentionService) batchSize() int {
	if s.cfg.BatchSize > 0 {
		return s.cfg.BatchSize
	}
	return 100
}

// Sweep archives every completed, unarchived document received on or
// before the retention threshold. Each document is archived in its own
// transaction; failures are counted and the sweep moves on.
func (s *RetentionService) Sweep(ctx context.Context) (*SweepResult, error) {
	txn := s.opts.Tracer.StartTransaction("retention-sweep")
	defer s.opts.Tracer.EndTransaction(txn)

	now := s.now()
	days := s.RetentionDays(ctx)
	threshold := startOfDay(now.AddDate(0, 0, -days))
	result := &SweepResult{Days: days, Threshold: threshold}

	log.Info().Int("days", days).Time("threshold", threshold).Msg("Starting retention sweep")

	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ids, err := s.documents.ListRetentionCandidates(ctx, threshold, after, s.batchSize())
		if err != nil {
			s.opts.Tracer.RecordError(txn, err)
			return result, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			result.Scanned++
			archived, err := s.archiveOne(ctx, id, threshold, now)
			switch {
			case err != nil:
				result.Failed++
				s.opts.Metrics.IncrementCounter(metrics.RetentionFailures)
				log.Error().Err(err).Str("document_id", id.String()).Msg("Failed to archive document")
			case archived:
				result.Archived++
				s.opts.Metrics.IncrementCounter(metrics.RetentionArchived)
			}
		}
		after = ids[len(ids)-1]
	}

	log.Info().
		Int("scanned", result.Scanned).
		Int("archived", result.Archived).
		Int("failed", result.Failed).
		Msg("Retention sweep finished")

	return result, nil
}

func (s *RetentionService) archiveOne(ctx context.Context, id uuid.UUID, threshold, now time.Time) (bool, error) {
	var archived bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		archived, err = s.documents.WithTx(tx).ArchiveIfEligible(ctx, id, threshold, now)
		return err
	})
	if err != nil || !archived {
		return archived, err
	}

	if err := s.opts.Cache.Delete(ctx, cache.DocumentKey(id), cache.HistoryKey(id)); err != nil {
		log.Warn().Err(err).Str("document_id", id.String()).Msg("Failed to invalidate document cache")
	}
	if s.opts.Indexer.Enabled() {
		doc, err := s.documents.GetByID(ctx, id)
		if err == nil {
			err = s.opts.Indexer.IndexDocument(ctx, doc)
		}
		if err != nil {
			log.Warn().Err(err).Str("document_id", id.String()).Msg("Failed to reindex archived document")
		}
	}
	return true, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
