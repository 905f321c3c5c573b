// Package job runs optimization jobs through their state machine and
// streams progress events.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wardroster/wardroster/internal/model"
	"github.com/wardroster/wardroster/internal/resolve"
	"github.com/wardroster/wardroster/internal/types"
)

/*
 * Run workflow:
 *   QUEUED -> COMPILING -> SOLVING -> PERSISTING -> SUCCEEDED
 * with FAILED reachable from the three running states and CANCELED from
 * any non-terminal state. Cancellation is cooperative: requests land in
 * an in-memory set polled at phase boundaries and at persistence
 * checkpoints, never by killing the run mid-write.
 *
 * Persistence order matters: rollback snapshot first, then the atomic
 * assignment replace, then the result snapshot. A failure at any point
 * leaves either the old table or a restorable rollback point.
 */

// Store is the persistence surface job runs need.
type Store interface {
	CreateJob(ctx context.Context, j *types.OptimizationJob) error
	Job(ctx context.Context, id types.JobID) (*types.OptimizationJob, error)
	UpdateJob(ctx context.Context, j *types.OptimizationJob) error

	Period(ctx context.Context, id types.PeriodID) (*types.SchedulePeriod, error)
	ActiveNurses(ctx context.Context, departmentID string) ([]types.Nurse, error)
	ActiveShiftCodes(ctx context.Context) ([]string, error)

	// ReplaceAssignments atomically swaps the period's assignment rows,
	// invoking checkpoint roughly every tenth of the rows; a checkpoint
	// error aborts the transaction.
	ReplaceAssignments(ctx context.Context, periodID types.PeriodID, rows []types.Assignment, checkpoint func(done, total int) error) error
	SnapshotAssignments(ctx context.Context, periodID types.PeriodID, name string) (*types.AssignmentSnapshot, error)
	RestoreSnapshot(ctx context.Context, id types.SnapshotID) error
}

// BundleResolver resolves a bundle into its merged constraint set.
type BundleResolver interface {
	Resolve(ctx context.Context, bundleID types.BundleID) (*resolve.Result, error)
}

// Orchestrator drives optimization jobs.
type Orchestrator struct {
	store   Store
	bundles BundleResolver
	solver  model.Solver
	sink    EventSink
	log     *zap.Logger

	cancels *cancelSet
	periods *periodLocks
}

// New returns an Orchestrator. A nil sink discards events, a nil solver
// uses the built-in placeholder, a nil logger disables logging.
func New(store Store, bundles BundleResolver, solver model.Solver, sink EventSink, log *zap.Logger) *Orchestrator {
	if sink == nil {
		sink = NopSink{}
	}
	if solver == nil {
		solver = model.Placeholder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:   store,
		bundles: bundles,
		solver:  solver,
		sink:    sink,
		log:     log,
		cancels: newCancelSet(),
		periods: newPeriodLocks(),
	}
}

// Enqueue persists a QUEUED job carrying the full request.
func (o *Orchestrator) Enqueue(ctx context.Context, spec types.JobSpec) (*types.OptimizationJob, error) {
	if spec.PeriodID == "" {
		return nil, types.NewJobError(types.FailValidation, "period_id is required", nil)
	}
	if _, err := o.store.Period(ctx, spec.PeriodID); err != nil {
		return nil, fmt.Errorf("load period %s: %w", spec.PeriodID, err)
	}
	now := time.Now().UTC()
	j := &types.OptimizationJob{
		ID:               types.NewJobID(),
		ProjectID:        spec.ProjectID,
		PeriodID:         spec.PeriodID,
		BundleID:         spec.BundleID,
		Status:           types.JobQueued,
		TimeLimitSeconds: spec.TimeLimitSeconds,
		RandomSeed:       spec.RandomSeed,
		SolverWorkers:    spec.SolverWorkers,
		Request:          requestPayload(spec),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	o.log.Info("job enqueued",
		zap.String("job_id", string(j.ID)),
		zap.String("period_id", string(j.PeriodID)))
	return j, nil
}

// Cancel requests cooperative cancellation. Safe before and during Run;
// terminal jobs ignore it.
func (o *Orchestrator) Cancel(jobID types.JobID) {
	o.cancels.request(jobID)
}

// Run drives one queued job to a terminal state. The returned error is
// nil for SUCCEEDED; failed and canceled runs return the job error after
// recording it on the job.
func (o *Orchestrator) Run(ctx context.Context, jobID types.JobID) error {
	j, err := o.store.Job(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if j.Status.Terminal() {
		return types.ErrJobTerminal
	}
	if !o.periods.tryAcquire(j.PeriodID, j.ID) {
		ferr := types.NewJobError(types.FailValidation, types.ErrPeriodBusy.Error(),
			types.JSONMap{"period_id": string(j.PeriodID)})
		o.finish(ctx, j, types.JobFailed, ferr)
		return ferr
	}
	defer o.periods.release(j.PeriodID)
	defer o.cancels.clear(j.ID)

	now := time.Now().UTC()
	j.StartedAt = &now

	if err := o.checkCancel(j); err != nil {
		o.finish(ctx, j, types.JobCanceled, err.(*types.JobError))
		return err
	}

	problem, err := o.compile(ctx, j)
	if err != nil {
		return o.fail(ctx, j, err)
	}
	if err := o.checkCancel(j); err != nil {
		o.finish(ctx, j, types.JobCanceled, err.(*types.JobError))
		return err
	}

	sol, err := o.solve(ctx, j, problem)
	if err != nil {
		return o.fail(ctx, j, err)
	}
	if err := o.checkCancel(j); err != nil {
		o.finish(ctx, j, types.JobCanceled, err.(*types.JobError))
		return err
	}

	if err := o.persist(ctx, j, sol); err != nil {
		return o.fail(ctx, j, err)
	}

	o.finish(ctx, j, types.JobSucceeded, nil)
	return nil
}

// compile resolves the bundle and lowers it into a solver problem.
func (o *Orchestrator) compile(ctx context.Context, j *types.OptimizationJob) (*model.Problem, error) {
	o.phase(ctx, j, types.JobCompiling, 10, "compiling rule bundle")

	bundleID := j.BundleID
	if bundleID == "" {
		period, err := o.store.Period(ctx, j.PeriodID)
		if err != nil {
			return nil, types.NewJobError(types.FailInternal, err.Error(), nil)
		}
		bundleID = period.ActiveBundleID
	}
	if bundleID == "" {
		return nil, types.NewJobError(types.FailValidation, "period has no active rule bundle", nil)
	}
	j.BundleID = bundleID

	merged, err := o.bundles.Resolve(ctx, bundleID)
	if err != nil {
		var jerr *types.JobError
		if errors.As(err, &jerr) {
			return nil, jerr
		}
		return nil, types.NewJobError(types.FailInternal, fmt.Sprintf("resolve bundle: %v", err), nil)
	}

	period, err := o.store.Period(ctx, j.PeriodID)
	if err != nil {
		return nil, types.NewJobError(types.FailInternal, err.Error(), nil)
	}
	nurses, err := o.store.ActiveNurses(ctx, period.DepartmentID)
	if err != nil {
		return nil, types.NewJobError(types.FailInternal, err.Error(), nil)
	}
	shiftCodes, err := o.store.ActiveShiftCodes(ctx)
	if err != nil {
		return nil, types.NewJobError(types.FailInternal, err.Error(), nil)
	}

	multipliers := map[string]int{}
	if raw, ok := j.Request["weight_multipliers"].(map[string]any); ok {
		for k, v := range raw {
			if f, ok := v.(float64); ok {
				multipliers[k] = int(f)
			}
		}
	}

	problem, err := model.Build(merged, model.BuildInput{
		Period:      period,
		Nurses:      nurses,
		ShiftCodes:  shiftCodes,
		Multipliers: multipliers,
	})
	if err != nil {
		if errors.Is(err, types.ErrInfeasible) {
			return nil, types.NewJobError(types.FailInfeasible, err.Error(), nil)
		}
		return nil, types.NewJobError(types.FailValidation, err.Error(), nil)
	}

	j.CompileReport = model.Summary(problem)
	j.CompileReport["conflicts"] = merged.Conflicts
	o.emit(j, EventLog, types.JSONMap{"message": "model built", "summary": j.CompileReport})
	return problem, nil
}

// solve runs the configured solver, falling back to the deterministic
// placeholder on solver failure. Fallback results are flagged used_mock.
func (o *Orchestrator) solve(ctx context.Context, j *types.OptimizationJob, problem *model.Problem) (*model.Solution, error) {
	o.phase(ctx, j, types.JobSolving, 40, "solving assignment problem")

	opts := model.Options{
		TimeLimit: time.Duration(j.TimeLimitSeconds) * time.Second,
		Seed:      j.RandomSeed,
		Workers:   j.SolverWorkers,
		OnIncumbent: func(objective int) {
			o.emit(j, EventMetric, types.JSONMap{"objective": objective})
		},
	}

	usedMock := false
	sol, err := o.solver.Solve(ctx, problem, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, types.NewJobError(types.FailCanceled, types.ErrCanceled.Error(), nil)
		}
		o.log.Warn("solver failed, using placeholder",
			zap.String("job_id", string(j.ID)), zap.Error(err))
		usedMock = true
		sol, err = model.Placeholder{}.Solve(ctx, problem, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, types.NewJobError(types.FailCanceled, types.ErrCanceled.Error(), nil)
			}
			return nil, types.NewJobError(types.FailInternal, err.Error(), nil)
		}
	}

	j.SolveReport = types.JSONMap{
		"status":    string(sol.Status),
		"objective": sol.Objective,
		"bound":     sol.Bound,
		"wall_ms":   sol.WallTime.Milliseconds(),
		"used_mock": usedMock,
	}

	switch sol.Status {
	case model.StatusInfeasible:
		return nil, types.NewJobError(types.FailInfeasible, types.ErrInfeasible.Error(), j.SolveReport)
	case model.StatusTimeout:
		if len(sol.Assignment) == 0 {
			return nil, types.NewJobError(types.FailTimeout, types.ErrSolveTimeout.Error(), j.SolveReport)
		}
	}
	return sol, nil
}

// persist writes the solution: rollback snapshot, atomic replace with
// cancellation checkpoints, result snapshot.
func (o *Orchestrator) persist(ctx context.Context, j *types.OptimizationJob, sol *model.Solution) error {
	o.phase(ctx, j, types.JobPersisting, 80, "persisting schedule")

	rollback, err := o.store.SnapshotAssignments(ctx, j.PeriodID, fmt.Sprintf("rollback before job %s", j.ID))
	if err != nil {
		return types.NewJobError(types.FailInternal, fmt.Sprintf("rollback snapshot: %v", err), nil)
	}
	j.RollbackSnapshotID = rollback.ID

	rows := sol.Assignments(j.PeriodID)
	err = o.store.ReplaceAssignments(ctx, j.PeriodID, rows, func(done, total int) error {
		if o.cancels.requested(j.ID) {
			return types.ErrCanceled
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrCanceled) {
			cerr := types.NewJobError(types.FailCanceled, types.ErrCanceled.Error(), nil)
			o.finish(ctx, j, types.JobCanceled, cerr)
			return cerr
		}
		return types.NewJobError(types.FailInternal, fmt.Sprintf("replace assignments: %v", err), nil)
	}

	result, err := o.store.SnapshotAssignments(ctx, j.PeriodID, fmt.Sprintf("result of job %s", j.ID))
	if err != nil {
		return types.NewJobError(types.FailInternal, fmt.Sprintf("result snapshot: %v", err), nil)
	}
	j.ResultSnapshotID = result.ID
	return nil
}

// Apply re-materializes a succeeded job's result snapshot, taking a fresh
// rollback point first.
func (o *Orchestrator) Apply(ctx context.Context, jobID types.JobID) error {
	j, err := o.store.Job(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if j.Status != types.JobSucceeded || j.ResultSnapshotID == "" {
		return types.ErrJobNotSucceeded
	}
	rollback, err := o.store.SnapshotAssignments(ctx, j.PeriodID, fmt.Sprintf("rollback before apply of job %s", j.ID))
	if err != nil {
		return fmt.Errorf("rollback snapshot: %w", err)
	}
	if err := o.store.RestoreSnapshot(ctx, j.ResultSnapshotID); err != nil {
		return fmt.Errorf("restore result snapshot: %w", err)
	}
	j.RollbackSnapshotID = rollback.ID
	j.UpdatedAt = time.Now().UTC()
	if err := o.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	o.log.Info("job result applied", zap.String("job_id", string(j.ID)))
	return nil
}

func (o *Orchestrator) checkCancel(j *types.OptimizationJob) error {
	if o.cancels.requested(j.ID) {
		return types.NewJobError(types.FailCanceled, types.ErrCanceled.Error(), nil)
	}
	return nil
}

// fail records a FAILED terminal state from any phase error.
func (o *Orchestrator) fail(ctx context.Context, j *types.OptimizationJob, err error) error {
	var jerr *types.JobError
	if !errors.As(err, &jerr) {
		jerr = types.NewJobError(types.FailInternal, err.Error(), nil)
	}
	status := types.JobFailed
	if jerr.Code == types.FailCanceled {
		status = types.JobCanceled
	}
	o.finish(ctx, j, status, jerr)
	return jerr
}

// finish persists the terminal state and closes the event stream with a
// result or error event.
func (o *Orchestrator) finish(ctx context.Context, j *types.OptimizationJob, status types.JobStatus, jerr *types.JobError) {
	now := time.Now().UTC()
	j.Status = status
	j.FinishedAt = &now
	j.UpdatedAt = now
	if status == types.JobSucceeded {
		j.Progress = 100
		j.Message = "schedule persisted"
	} else {
		j.Message = jerr.Message
		j.ErrorPayload = types.JSONMap{
			"code":    string(jerr.Code),
			"message": jerr.Message,
			"details": map[string]any(jerr.Details),
		}
	}
	if err := o.store.UpdateJob(ctx, j); err != nil {
		o.log.Error("terminal state not persisted",
			zap.String("job_id", string(j.ID)), zap.Error(err))
	}
	if status == types.JobSucceeded {
		o.emit(j, EventResult, types.JSONMap{
			"result_snapshot_id": string(j.ResultSnapshotID),
			"solve_report":       map[string]any(j.SolveReport),
		})
	} else {
		o.emit(j, EventError, types.JSONMap{
			"code":    string(jerr.Code),
			"message": jerr.Message,
		})
	}
	o.log.Info("job finished",
		zap.String("job_id", string(j.ID)),
		zap.String("status", string(status)))
}

// phase advances the job state, persists it, and emits a phase event.
func (o *Orchestrator) phase(ctx context.Context, j *types.OptimizationJob, status types.JobStatus, progress int, message string) {
	j.Status = status
	j.Progress = progress
	j.Message = message
	j.UpdatedAt = time.Now().UTC()
	if err := o.store.UpdateJob(ctx, j); err != nil {
		o.log.Warn("phase update not persisted",
			zap.String("job_id", string(j.ID)), zap.Error(err))
	}
	o.emit(j, EventPhase, types.JSONMap{
		"status":   string(status),
		"progress": progress,
		"message":  message,
	})
}

func (o *Orchestrator) emit(j *types.OptimizationJob, t EventType, payload types.JSONMap) {
	o.sink.Emit(Event{JobID: j.ID, Type: t, Payload: payload, At: time.Now().UTC()})
}

// requestPayload mirrors the enqueue request into the retained job JSON.
func requestPayload(spec types.JobSpec) types.JSONMap {
	multipliers := map[string]any{}
	for k, v := range spec.WeightMultipliers {
		multipliers[k] = float64(v)
	}
	return types.JSONMap{
		"project_id":         spec.ProjectID,
		"period_id":          string(spec.PeriodID),
		"bundle_id":          string(spec.BundleID),
		"time_limit_seconds": spec.TimeLimitSeconds,
		"random_seed":        spec.RandomSeed,
		"solver_workers":     spec.SolverWorkers,
		"weight_multipliers": multipliers,
	}
}
