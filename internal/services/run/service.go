// Package run coordinates a complete model build: lock the tenant's spec,
// record the run, execute the two-phase pipeline, persist the output rows,
// and announce the outcome.
package run

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	asterrors "github.com/Ramsey-B/aster/pkg/errors"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/pipeline"
	"github.com/Ramsey-B/aster/pkg/records"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// SpecStore loads persisted model specs
type SpecStore interface {
	GetByKey(ctx context.Context, tenantID, key string) (*models.ModelSpec, error)
}

// RunStore records run lifecycle state
type RunStore interface {
	Create(ctx context.Context, tenantID, specKey string, specVersion int) (*models.BuildRun, error)
	Complete(ctx context.Context, run *models.BuildRun) error
	Fail(ctx context.Context, tenantID, id, reason string) error
}

// RowStore persists the built row sets
type RowStore interface {
	ReplaceDimensionRows(ctx context.Context, tenantID, runID, dimension string, rows []models.DimensionRow) error
	ReplaceFactRows(ctx context.Context, tenantID, runID, fact string, rows []models.FactRow) error
	ReplaceCalendarDays(ctx context.Context, tenantID, runID string, days []models.CalendarDay) error
	InsertRowErrors(ctx context.Context, tenantID, runID string, rowErrors asterrors.RowErrors) error
}

// EventPublisher announces run outcomes
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event *kafka.RunEvent) error
}

// RunLock is a held run lock. It is released when the run finishes and
// extended periodically while the run is in flight.
type RunLock interface {
	Release(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) error
}

// LockProvider serializes concurrent runs of the same tenant and spec.
type LockProvider interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (RunLock, error)
}

type redisLockProvider struct {
	locker *redis.Locker
}

func (p *redisLockProvider) Acquire(ctx context.Context, key string, ttl time.Duration) (RunLock, error) {
	lock, err := p.locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// NewRedisLockProvider adapts a redis Locker to the LockProvider interface.
func NewRedisLockProvider(locker *redis.Locker) LockProvider {
	return &redisLockProvider{locker: locker}
}

// Options tune run execution.
type Options struct {
	Workers              int
	FailFast             bool
	SkipReferentialCheck bool
	LockTTL              time.Duration
}

// Service executes model build runs.
type Service struct {
	logger    ectologger.Logger
	specs     SpecStore
	runs      RunStore
	rows      RowStore
	publisher EventPublisher
	locker    LockProvider
	opts      Options
}

// NewService creates a run service. locker and publisher may be nil; locking
// and event emission are then skipped.
func NewService(logger ectologger.Logger, specs SpecStore, runs RunStore, rows RowStore, publisher EventPublisher, locker LockProvider, opts Options) *Service {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Service{
		logger:    logger,
		specs:     specs,
		runs:      runs,
		rows:      rows,
		publisher: publisher,
		locker:    locker,
		opts:      opts,
	}
}

// HandleSnapshot is the Kafka consumer entrypoint: one snapshot message
// triggers one run.
func (s *Service) HandleSnapshot(ctx context.Context, msg *kafka.IncomingMessage) error {
	tenantID := msg.GetTenantID()
	if tenantID == "" {
		// Nothing to retry against; log and drop.
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"spec_key": msg.GetSpecKey(),
		}).Error("Snapshot message has no tenant id")
		return nil
	}

	_, err := s.Trigger(ctx, tenantID, models.TriggerRunRequest{
		SpecKey:  msg.GetSpecKey(),
		FailFast: msg.Snapshot.FailFast,
	}, msg.Snapshot.Relations)
	return err
}

// Trigger executes a run of the named spec against the snapshot. Only one run
// per tenant and spec proceeds at a time; a concurrent trigger gets a conflict.
func (s *Service) Trigger(ctx context.Context, tenantID string, req models.TriggerRunRequest, snapshot records.Snapshot) (*models.BuildRun, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Service.Trigger")
	defer span.End()

	started := time.Now()
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"spec_key":  req.SpecKey,
	})

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, tenantID+":"+req.SpecKey, s.opts.LockTTL)
		if err != nil {
			if err == redis.ErrLockNotAcquired {
				metrics.RecordLockContention(tenantID, req.SpecKey)
				return nil, httperror.NewHTTPError(http.StatusConflict, "a run is already in progress for this spec")
			}
			log.WithError(err).Error("Failed to acquire run lock")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to acquire run lock")
		}
		defer lock.Release(ctx)

		// A build that outlives the lock TTL would let a second run start
		// mid-build, so the lock is extended while the run is in flight.
		stopExtend := s.keepLockAlive(ctx, lock)
		defer stopExtend()
	}

	spec, err := s.specs.GetByKey(ctx, tenantID, req.SpecKey)
	if err != nil {
		return nil, err
	}

	def, err := spec.ParseDefinition()
	if err != nil {
		log.WithError(err).Error("Stored spec definition is not parseable")
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "stored spec definition is not parseable")
	}

	p, err := pipeline.New(s.logger, def, pipeline.Options{
		Workers:              s.opts.Workers,
		FailFast:             s.opts.FailFast || req.FailFast,
		SkipReferentialCheck: s.opts.SkipReferentialCheck,
	})
	if err != nil {
		return nil, err
	}

	run, err := s.runs.Create(ctx, tenantID, spec.Key, spec.Version)
	if err != nil {
		return nil, err
	}

	result, err := p.Run(ctx, snapshot)
	if err != nil {
		return s.failRun(ctx, run, started, err)
	}

	if err := s.persist(ctx, run, result); err != nil {
		return s.failRun(ctx, run, started, err)
	}

	rowErrors := result.RowErrors()

	run.Status = models.RunStatusCompleted
	if len(rowErrors) > 0 {
		run.Status = models.RunStatusCompletedWithSkips
	}
	run.DimensionRowCount = result.DimensionRowCount()
	run.FactRowCount = len(result.Fact.Rows)
	run.CalendarRowCount = len(result.Calendar)
	run.SkippedRowCount = len(rowErrors)

	if err := s.runs.Complete(ctx, run); err != nil {
		return nil, err
	}

	metrics.RecordRun(tenantID, spec.Key, string(run.Status), time.Since(started).Seconds())
	metrics.RecordRowsBuilt(tenantID, "dimension", run.DimensionRowCount)
	metrics.RecordRowsBuilt(tenantID, "fact", run.FactRowCount)
	metrics.RecordRowsBuilt(tenantID, "calendar", run.CalendarRowCount)
	metrics.RecordRowErrors(tenantID, spec.Key, run.SkippedRowCount)

	s.publish(ctx, run)

	log.WithFields(map[string]any{
		"run_id":       run.ID,
		"status":       run.Status,
		"skipped_rows": run.SkippedRowCount,
	}).Info("Run finished")
	return run, nil
}

func (s *Service) persist(ctx context.Context, run *models.BuildRun, result *pipeline.RunResult) error {
	ctx, span := tracing.StartSpan(ctx, "run.Service.persist")
	defer span.End()

	for name, res := range result.Dimensions {
		if err := s.rows.ReplaceDimensionRows(ctx, run.TenantID, run.ID, name, res.Rows); err != nil {
			return err
		}
	}

	if err := s.rows.ReplaceFactRows(ctx, run.TenantID, run.ID, result.Fact.Fact, result.Fact.Rows); err != nil {
		return err
	}

	if len(result.Calendar) > 0 {
		if err := s.rows.ReplaceCalendarDays(ctx, run.TenantID, run.ID, result.Calendar); err != nil {
			return err
		}
	}

	return s.rows.InsertRowErrors(ctx, run.TenantID, run.ID, result.RowErrors())
}

func (s *Service) failRun(ctx context.Context, run *models.BuildRun, started time.Time, cause error) (*models.BuildRun, error) {
	s.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"run_id": run.ID,
	}).Error("Run failed")

	reason := cause.Error()
	if err := s.runs.Fail(ctx, run.TenantID, run.ID, reason); err != nil {
		return nil, err
	}

	run.Status = models.RunStatusFailed
	run.FailureReason = &reason
	metrics.RecordRun(run.TenantID, run.SpecKey, string(run.Status), time.Since(started).Seconds())
	s.publish(ctx, run)

	return run, cause
}

// keepLockAlive extends the run lock at half-TTL intervals until the returned
// stop function is called.
func (s *Service) keepLockAlive(ctx context.Context, lock RunLock) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.opts.LockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lock.Extend(ctx, s.opts.LockTTL); err != nil {
					s.logger.WithContext(ctx).WithError(err).Warn("Failed to extend run lock")
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Service) publish(ctx context.Context, run *models.BuildRun) {
	if s.publisher == nil {
		return
	}
	// Event emission is best effort; the run record is the source of truth.
	if err := s.publisher.PublishRunEvent(ctx, kafka.NewRunEvent(run)); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id": run.ID,
		}).Error("Failed to publish run event")
	}
}
