package database

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/metrics"
)

const startTimeKey = "metrics:start_time"

// RegisterMetricsHooks records the duration and outcome of every create,
// query, update and delete issued through db.
func RegisterMetricsHooks(db *gorm.DB, collector *metrics.Metrics) {
	if collector == nil {
		return
	}

	record := func(queryType string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			ok := tx.Error == nil || errors.Is(tx.Error, gorm.ErrRecordNotFound)
			collector.RecordDatabaseQuery(queryType, ok, elapsed(tx))
		}
	}

	cb := db.Callback()
	errs := []error{
		cb.Create().Before("gorm:create").Register("metrics:start_insert", markStart),
		cb.Query().Before("gorm:query").Register("metrics:start_select", markStart),
		cb.Update().Before("gorm:update").Register("metrics:start_update", markStart),
		cb.Delete().Before("gorm:delete").Register("metrics:start_delete", markStart),
		cb.Create().After("gorm:create").Register("metrics:insert", record(metrics.DBQueryTypeInsert)),
		cb.Query().After("gorm:query").Register("metrics:select", record(metrics.DBQueryTypeSelect)),
		cb.Update().After("gorm:update").Register("metrics:update", record(metrics.DBQueryTypeUpdate)),
		cb.Delete().After("gorm:delete").Register("metrics:delete", record(metrics.DBQueryTypeDelete)),
	}
	for _, err := range errs {
		if err != nil {
			log.Warn().Err(err).Msg("Failed to register database metrics hook")
		}
	}
}

func markStart(tx *gorm.DB) {
	tx.InstanceSet(startTimeKey, time.Now())
}

func elapsed(tx *gorm.DB) time.Duration {
	if start, ok := tx.InstanceGet(startTimeKey); ok {
		return time.Since(start.(time.Time))
	}
	return 0
}
