package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// OverdueService warns holding offices about documents past their due date
type OverdueService struct {
	base
	batchSize int
}

// NewOverdueService creates a new overdue notifier
func NewOverdueService(db, readOnlyDB *gorm.DB, batchSize int, opts Options) *OverdueService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OverdueService{base: newBase(db, readOnlyDB, opts), batchSize: batchSize}
}

// NotifyOverdue sends one overdue notice per open document due before
// today. Returns the number of documents notified.
func (s *OverdueService) NotifyOverdue(ctx context.Context) (int, error) {
	now := s.now()
	notified := 0
	after := uuid.Nil

	for {
		if err := ctx.Err(); err != nil {
			return notified, err
		}

		docs, err := s.documents.ListOverdue(ctx, now, after, s.batchSize)
		if err != nil {
			return notified, err
		}
		if len(docs) == 0 {
			break
		}

		for i := range docs {
			s.opts.Notifier.NotifyDocumentOverdue(ctx, &docs[i])
			notified++
		}
		after = docs[len(docs)-1].ID
	}

	log.Info().Int("documents", notified).Msg("Overdue notifications sent")
	return notified, nil
}
