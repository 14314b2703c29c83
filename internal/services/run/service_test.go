package run

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asterrors "github.com/Ramsey-B/aster/pkg/errors"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/records"
	"github.com/Ramsey-B/aster/pkg/redis"
)

type stubSpecStore struct {
	spec *models.ModelSpec
	err  error
}

func (s *stubSpecStore) GetByKey(ctx context.Context, tenantID, key string) (*models.ModelSpec, error) {
	return s.spec, s.err
}

type stubRunStore struct {
	created   *models.BuildRun
	completed *models.BuildRun
	failedID  string
	reason    string
}

func (s *stubRunStore) Create(ctx context.Context, tenantID, specKey string, specVersion int) (*models.BuildRun, error) {
	s.created = &models.BuildRun{
		ID:          "run-1",
		TenantID:    tenantID,
		SpecKey:     specKey,
		SpecVersion: specVersion,
		Status:      models.RunStatusRunning,
	}
	return s.created, nil
}

func (s *stubRunStore) Complete(ctx context.Context, run *models.BuildRun) error {
	s.completed = run
	return nil
}

func (s *stubRunStore) Fail(ctx context.Context, tenantID, id, reason string) error {
	s.failedID = id
	s.reason = reason
	return nil
}

type stubRowStore struct {
	dimensions map[string][]models.DimensionRow
	fact       []models.FactRow
	calendar   []models.CalendarDay
	rowErrors  asterrors.RowErrors
}

func newStubRowStore() *stubRowStore {
	return &stubRowStore{dimensions: map[string][]models.DimensionRow{}}
}

func (s *stubRowStore) ReplaceDimensionRows(ctx context.Context, tenantID, runID, dimension string, rows []models.DimensionRow) error {
	s.dimensions[dimension] = rows
	return nil
}

func (s *stubRowStore) ReplaceFactRows(ctx context.Context, tenantID, runID, fact string, rows []models.FactRow) error {
	s.fact = rows
	return nil
}

func (s *stubRowStore) ReplaceCalendarDays(ctx context.Context, tenantID, runID string, days []models.CalendarDay) error {
	s.calendar = days
	return nil
}

func (s *stubRowStore) InsertRowErrors(ctx context.Context, tenantID, runID string, rowErrors asterrors.RowErrors) error {
	s.rowErrors = rowErrors
	return nil
}

type stubPublisher struct {
	events []*kafka.RunEvent
}

func (s *stubPublisher) PublishRunEvent(ctx context.Context, event *kafka.RunEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubLock struct {
	mu       sync.Mutex
	extends  int
	released bool
}

func (l *stubLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func (l *stubLock) Extend(ctx context.Context, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	return nil
}

func (l *stubLock) extendCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extends
}

type stubLockProvider struct {
	lock *stubLock
	err  error
}

func (p *stubLockProvider) Acquire(ctx context.Context, key string, ttl time.Duration) (RunLock, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.lock, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testSpec(t *testing.T) *models.ModelSpec {
	t.Helper()

	def := models.ModelDefinition{
		Dimensions: []models.DimensionSpec{
			{
				Name:      "dim_customer",
				Source:    "customers",
				KeyFields: []string{"customer_number"},
				Columns: []models.ColumnMapping{
					{Source: "customer_name", Target: "customer_name", Required: true},
				},
			},
		},
		Fact: models.FactSpec{
			Name:      "fact_order_line",
			Source:    "orderdetails",
			KeyFields: []string{"order_number", "order_line_number"},
			Dimensions: []models.DimensionRef{
				{Dimension: "dim_customer", KeyFields: []string{"customer_number"}, Target: "customer_key"},
			},
			Measures: []models.MeasureColumn{
				{Source: "price_each", Target: "price_each"},
			},
		},
		Calendar: &models.CalendarSpec{StartDate: "2003-01-01", EndDate: "2003-01-03"},
	}

	payload, err := json.Marshal(def)
	require.NoError(t, err)

	return &models.ModelSpec{
		ID:         "spec-1",
		TenantID:   "tenant-1",
		Key:        "classicmodels",
		Version:    2,
		Definition: payload,
	}
}

func testSnapshot() records.Snapshot {
	return records.Snapshot{
		"customers": {
			{"customer_number": "103", "customer_name": "Atelier graphique"},
		},
		"orderdetails": {
			{"order_number": "10100", "order_line_number": "1", "customer_number": "103", "price_each": "136.00"},
		},
	}
}

func newTestService(t *testing.T) (*Service, *stubRunStore, *stubRowStore, *stubPublisher) {
	t.Helper()

	runs := &stubRunStore{}
	rows := newStubRowStore()
	publisher := &stubPublisher{}
	svc := NewService(testLogger(), &stubSpecStore{spec: testSpec(t)}, runs, rows, publisher, nil, Options{Workers: 2})
	return svc, runs, rows, publisher
}

func TestTrigger_CompletesCleanRun(t *testing.T) {
	svc, runs, rows, publisher := newTestService(t)

	run, err := svc.Trigger(context.Background(), "tenant-1", models.TriggerRunRequest{SpecKey: "classicmodels"}, testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.SpecVersion)
	assert.Equal(t, 1, run.DimensionRowCount)
	assert.Equal(t, 1, run.FactRowCount)
	assert.Equal(t, 3, run.CalendarRowCount)
	assert.Zero(t, run.SkippedRowCount)

	require.NotNil(t, runs.completed)
	assert.Len(t, rows.dimensions["dim_customer"], 1)
	assert.Len(t, rows.fact, 1)
	assert.Len(t, rows.calendar, 3)
	assert.Empty(t, rows.rowErrors)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "run.completed", publisher.events[0].EventType)
}

func TestTrigger_RowErrorsCompleteWithSkips(t *testing.T) {
	svc, _, rows, publisher := newTestService(t)

	snapshot := testSnapshot()
	snapshot["orderdetails"] = append(snapshot["orderdetails"], records.Record{
		"order_number": "10101", "order_line_number": "1",
		"customer_number": "103", "price_each": "garbage",
	})

	run, err := svc.Trigger(context.Background(), "tenant-1", models.TriggerRunRequest{SpecKey: "classicmodels"}, snapshot)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompletedWithSkips, run.Status)
	assert.Equal(t, 1, run.SkippedRowCount)
	assert.Equal(t, 1, run.FactRowCount)
	require.Len(t, rows.rowErrors, 1)
	assert.Equal(t, 1, rows.rowErrors[0].Row())

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "run.completed_with_skips", publisher.events[0].EventType)
}

func TestTrigger_MissingRelationFailsRun(t *testing.T) {
	svc, runs, _, publisher := newTestService(t)

	snapshot := testSnapshot()
	delete(snapshot, "orderdetails")

	run, err := svc.Trigger(context.Background(), "tenant-1", models.TriggerRunRequest{SpecKey: "classicmodels"}, snapshot)
	require.Error(t, err)

	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, "run-1", runs.failedID)
	assert.Contains(t, runs.reason, "orderdetails")

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "run.failed", publisher.events[0].EventType)
}

func TestTrigger_HeldLockRejectsConcurrentRun(t *testing.T) {
	runs := &stubRunStore{}
	svc := NewService(testLogger(), &stubSpecStore{spec: testSpec(t)}, runs, newStubRowStore(), nil,
		&stubLockProvider{err: redis.ErrLockNotAcquired}, Options{})

	_, err := svc.Trigger(context.Background(), "tenant-1", models.TriggerRunRequest{SpecKey: "classicmodels"}, testSnapshot())
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	assert.Nil(t, runs.created)
}

func TestTrigger_ReleasesLockWhenRunFinishes(t *testing.T) {
	lock := &stubLock{}
	svc := NewService(testLogger(), &stubSpecStore{spec: testSpec(t)}, &stubRunStore{}, newStubRowStore(), nil,
		&stubLockProvider{lock: lock}, Options{})

	_, err := svc.Trigger(context.Background(), "tenant-1", models.TriggerRunRequest{SpecKey: "classicmodels"}, testSnapshot())
	require.NoError(t, err)
	assert.True(t, lock.released)
}

func TestKeepLockAliveExtendsUntilStopped(t *testing.T) {
	svc := NewService(testLogger(), nil, nil, nil, nil, nil, Options{LockTTL: 10 * time.Millisecond})

	lock := &stubLock{}
	stop := svc.keepLockAlive(context.Background(), lock)
	time.Sleep(60 * time.Millisecond)
	stop()

	extends := lock.extendCount()
	assert.GreaterOrEqual(t, extends, 1, "lock should be extended while the run is in flight")

	// No extensions after stop.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, extends, lock.extendCount())
}

func TestHandleSnapshot_TriggersRun(t *testing.T) {
	svc, runs, _, _ := newTestService(t)

	payload, err := json.Marshal(models.SnapshotMessage{
		TenantID:  "tenant-1",
		SpecKey:   "classicmodels",
		Relations: testSnapshot(),
	})
	require.NoError(t, err)

	msg := &kafka.IncomingMessage{Value: payload}
	require.NoError(t, msg.ParseSnapshotMessage())

	require.NoError(t, svc.HandleSnapshot(context.Background(), msg))
	require.NotNil(t, runs.completed)
	assert.Equal(t, models.RunStatusCompleted, runs.completed.Status)
}

func TestHandleSnapshot_NoTenantIsDropped(t *testing.T) {
	svc, runs, _, _ := newTestService(t)

	msg := &kafka.IncomingMessage{Value: []byte(`{"spec_key": "classicmodels", "relations": {}}`)}
	require.NoError(t, msg.ParseSnapshotMessage())

	require.NoError(t, svc.HandleSnapshot(context.Background(), msg))
	assert.Nil(t, runs.created)
}
