package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
)

// queryLogger sends gorm's statement log through the service logger so
// slow ledger queries carry the request id and lot fields of the caller.
type queryLogger struct {
	logg          *logger.Logger
	slowThreshold time.Duration
	logAll        bool
}

func newQueryLogger(logg *logger.Logger, slow time.Duration, logAll bool) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slowThreshold: slow, logAll: logAll}
}

// LogMode is a no-op; verbosity comes from config.
func (q *queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	q.logg.Info(q.logg.WithField(ctx, "detail", fmt.Sprintf(msg, args...)), "db.info")
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	q.logg.Warn(q.logg.WithField(ctx, "detail", fmt.Sprintf(msg, args...)), "db.warn")
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	q.logg.Error(ctx, "db.error", fmt.Errorf(msg, args...))
}

// Trace logs failed statements, statements over the slow threshold and,
// with logAll, everything else at debug. Missing rows are expected and
// never logged as failures.
func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	took := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slowThreshold > 0 && took >= q.slowThreshold
	if !failed && !slow && !q.logAll {
		return
	}

	sql, rows := fc()
	logCtx := q.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": took.Milliseconds(),
	})
	switch {
	case failed:
		q.logg.Error(logCtx, "db.query_failed", err)
	case slow:
		q.logg.Warn(logCtx, "db.slow_query")
	default:
		q.logg.Debug(logCtx, "db.query")
	}
}
