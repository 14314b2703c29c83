// Package pipeline runs a complete star-schema build as an explicit two-phase
// batch: every dimension (and the calendar) is built to completion first, then
// the fact table is built against the finished dimension key sets.
//
// The barrier between the phases is the point of the design. The fact build
// does not read dimension output (both sides compute keys from the same
// source snapshot), but its referential check needs the complete set of
// dimension keys, so phase 2 must not start until phase 1 has fully finished.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/calendar"
	"github.com/Ramsey-B/aster/pkg/dimension"
	asterrors "github.com/Ramsey-B/aster/pkg/errors"
	"github.com/Ramsey-B/aster/pkg/fact"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/records"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Options tune pipeline execution.
type Options struct {
	// Workers bounds the number of concurrent dimension builds in phase 1
	// and fact chunks in phase 2. Values below 1 run single-threaded.
	Workers int
	// FailFast aborts the whole run on the first bad row.
	FailFast bool
	// SkipReferentialCheck disables verifying fact foreign keys against
	// the phase-1 key sets. Keys still match by construction; the check
	// exists to catch inconsistent source snapshots.
	SkipReferentialCheck bool
}

// Pipeline executes one ModelDefinition against source snapshots.
type Pipeline struct {
	logger     ectologger.Logger
	definition *models.ModelDefinition
	dimensions []*dimension.Builder
	fact       *fact.Builder
	opts       Options
}

// RunResult is the complete output of one run: every dimension row set, the
// fact row set, the calendar, and the accumulated per-row errors.
type RunResult struct {
	Dimensions map[string]*dimension.Result
	Fact       *fact.Result
	Calendar   []models.CalendarDay
	Duration   time.Duration
}

// DimensionRowCount sums the rows across all built dimensions.
func (r *RunResult) DimensionRowCount() int {
	count := 0
	for _, res := range r.Dimensions {
		count += len(res.Rows)
	}
	return count
}

// RowErrors collects every per-row failure from all builders.
func (r *RunResult) RowErrors() asterrors.RowErrors {
	var errs asterrors.RowErrors
	for _, res := range r.Dimensions {
		errs = append(errs, res.RowErrors...)
	}
	if r.Fact != nil {
		errs = append(errs, r.Fact.RowErrors...)
	}
	return errs
}

// New compiles the definition into a pipeline. Every dimension and fact spec
// is validated up front; a bad spec fails here, never mid-run.
func New(logger ectologger.Logger, def *models.ModelDefinition, opts Options) (*Pipeline, error) {
	dims := make([]*dimension.Builder, 0, len(def.Dimensions))
	for _, spec := range def.Dimensions {
		b, err := dimension.NewBuilder(spec)
		if err != nil {
			return nil, err
		}
		dims = append(dims, b)
	}

	factBuilder, err := fact.NewBuilder(def.Fact)
	if err != nil {
		return nil, err
	}

	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Pipeline{
		logger:     logger,
		definition: def,
		dimensions: dims,
		fact:       factBuilder,
		opts:       opts,
	}, nil
}

// Run executes both phases against the snapshot. Phase 1 builds all
// dimensions and the calendar over a bounded worker pool and waits for every
// one to finish (the barrier); phase 2 builds the fact table. Per-row errors
// accumulate in the result; spec/snapshot-level problems abort the run.
func (p *Pipeline) Run(ctx context.Context, snapshot records.Snapshot) (*RunResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Run")
	defer span.End()

	start := time.Now()
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"dimensions": ectolinq.Map(p.dimensions, func(b *dimension.Builder) string { return b.Spec().Name }),
		"fact":       p.fact.Spec().Name,
		"workers":    p.opts.Workers,
	})
	log.Info("Starting model build")

	result := &RunResult{
		Dimensions: make(map[string]*dimension.Result, len(p.dimensions)),
	}

	// Phase 1: dimensions + calendar. Nothing downstream starts until every
	// build in this phase has completed.
	if err := p.runDimensionPhase(ctx, snapshot, result); err != nil {
		return nil, err
	}

	// Phase 2: fact build against the completed dimension key sets.
	if err := p.runFactPhase(ctx, snapshot, result); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	log.WithFields(map[string]any{
		"dimension_rows": result.DimensionRowCount(),
		"fact_rows":      len(result.Fact.Rows),
		"calendar_rows":  len(result.Calendar),
		"row_errors":     len(result.RowErrors()),
		"duration":       result.Duration.String(),
	}).Info("Model build complete")

	return result, nil
}

type dimensionJob struct {
	builder *dimension.Builder
	recs    []records.Record
}

func (p *Pipeline) runDimensionPhase(ctx context.Context, snapshot records.Snapshot, result *RunResult) error {
	ctx, span := tracing.StartSpan(ctx, "pipeline.runDimensionPhase")
	defer span.End()

	// Resolve every relation before spinning up workers so a missing
	// relation fails the run before any work starts.
	jobs := make([]dimensionJob, 0, len(p.dimensions))
	for _, b := range p.dimensions {
		recs, err := snapshot.Relation(b.Spec().Source)
		if err != nil {
			return asterrors.WrapBuildError(err).AddBuilder(b.Spec().Name)
		}
		jobs = append(jobs, dimensionJob{builder: b, recs: recs})
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	jobCh := make(chan dimensionJob)

	workers := p.opts.Workers
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				res, err := job.builder.BuildWithOptions(job.recs, &dimension.Options{FailFast: p.opts.FailFast})

				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					result.Dimensions[res.Dimension] = res
				}
				mu.Unlock()
			}
		}()
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	// Calendar generation is independent of any source relation; it runs
	// alongside the dimension workers inside the same phase.
	if p.definition.Calendar != nil {
		days, err := p.generateCalendar()
		if err != nil {
			// Drain the workers before reporting; partial phase-1 state
			// must never leak into phase 2.
			wg.Wait()
			return err
		}
		result.Calendar = days
	}

	// The barrier: every dimension build completes before this returns.
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}

	for _, b := range p.dimensions {
		res := result.Dimensions[b.Spec().Name]
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"dimension":  res.Dimension,
			"rows":       len(res.Rows),
			"row_errors": len(res.RowErrors),
		}).Debug("Dimension built")
	}

	return nil
}

func (p *Pipeline) generateCalendar() ([]models.CalendarDay, error) {
	start, err := time.Parse(calendar.DateFormat, p.definition.Calendar.StartDate)
	if err != nil {
		return nil, asterrors.NewBuildErrorf("invalid calendar start date %q", p.definition.Calendar.StartDate).AddBuilder("calendar")
	}
	end, err := time.Parse(calendar.DateFormat, p.definition.Calendar.EndDate)
	if err != nil {
		return nil, asterrors.NewBuildErrorf("invalid calendar end date %q", p.definition.Calendar.EndDate).AddBuilder("calendar")
	}
	return calendar.Generate(start, end)
}

func (p *Pipeline) runFactPhase(ctx context.Context, snapshot records.Snapshot, result *RunResult) error {
	ctx, span := tracing.StartSpan(ctx, "pipeline.runFactPhase")
	defer span.End()

	recs, err := snapshot.Relation(p.fact.Spec().Source)
	if err != nil {
		return asterrors.WrapBuildError(err).AddBuilder(p.fact.Spec().Name)
	}

	opts := &fact.Options{FailFast: p.opts.FailFast}
	if !p.opts.SkipReferentialCheck {
		keySets := make(map[string]map[string]struct{}, len(result.Dimensions))
		for name, res := range result.Dimensions {
			keySets[name] = res.KeySet()
		}
		opts.DimensionKeys = keySets
	}

	// Each fact row is independently computable, so the record set is
	// split into contiguous chunks built in parallel. Row error indices
	// are rebased to the position in the full record set.
	chunks := chunkRecords(recs, p.opts.Workers)

	type chunkResult struct {
		offset int
		res    *fact.Result
		err    error
	}

	results := make([]chunkResult, len(chunks))
	var wg sync.WaitGroup
	offset := 0
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i, offset int, chunk []records.Record) {
			defer wg.Done()
			res, err := p.fact.BuildWithOptions(chunk, opts)
			results[i] = chunkResult{offset: offset, res: res, err: err}
		}(i, offset, chunk)
		offset += len(chunk)
	}
	wg.Wait()

	merged := &fact.Result{
		Fact: p.fact.Spec().Name,
		Rows: make([]models.FactRow, 0, len(recs)),
	}
	for _, cr := range results {
		if cr.err != nil {
			if be, ok := cr.err.(*asterrors.BuildError); ok && be.Row() >= 0 {
				return be.AddRow(cr.offset + be.Row())
			}
			return cr.err
		}
		merged.Rows = append(merged.Rows, cr.res.Rows...)
		for _, rowErr := range cr.res.RowErrors {
			merged.RowErrors = append(merged.RowErrors, rowErr.AddRow(cr.offset+rowErr.Row()))
		}
	}

	result.Fact = merged
	return nil
}

func chunkRecords(recs []records.Record, n int) [][]records.Record {
	if n < 1 {
		n = 1
	}
	if len(recs) == 0 {
		return [][]records.Record{recs}
	}
	if n > len(recs) {
		n = len(recs)
	}

	size := (len(recs) + n - 1) / n
	chunks := make([][]records.Record, 0, n)
	for start := 0; start < len(recs); start += size {
		end := start + size
		if end > len(recs) {
			end = len(recs)
		}
		chunks = append(chunks, recs[start:end])
	}
	return chunks
}
