package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/wardroster/wardroster/internal/model"
	"github.com/wardroster/wardroster/internal/resolve"
	"github.com/wardroster/wardroster/internal/types"
)

// fakeJobStore is an in-memory Store for orchestration tests.
type fakeJobStore struct {
	mu          sync.Mutex
	jobs        map[types.JobID]*types.OptimizationJob
	period      *types.SchedulePeriod
	nurses      []types.Nurse
	assignments []types.Assignment
	snapshots   map[types.SnapshotID]string
	restored    []types.SnapshotID

	// beforeCheckpoint runs ahead of every persistence checkpoint; tests
	// use it to request cancellation mid-write.
	beforeCheckpoint func()
}

func newFakeJobStore() *fakeJobStore {
	periodID := types.NewPeriodID()
	nurses := []types.Nurse{
		{StaffNo: "A001", Active: true},
		{StaffNo: "B001", Active: true},
		{StaffNo: "C001", Active: true},
	}
	return &fakeJobStore{
		jobs: map[types.JobID]*types.OptimizationJob{},
		period: &types.SchedulePeriod{
			ID: periodID, ProjectID: "p1",
			StartDate: "2026-09-01", EndDate: "2026-09-07",
			ActiveBundleID: "bundle-1",
		},
		nurses:    nurses,
		snapshots: map[types.SnapshotID]string{},
	}
}

func (f *fakeJobStore) CreateJob(ctx context.Context, j *types.OptimizationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobStore) Job(ctx context.Context, id types.JobID) (*types.OptimizationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobStore) UpdateJob(ctx context.Context, j *types.OptimizationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobStore) Period(ctx context.Context, id types.PeriodID) (*types.SchedulePeriod, error) {
	if id != f.period.ID {
		return nil, types.ErrPeriodNotFound
	}
	cp := *f.period
	return &cp, nil
}

func (f *fakeJobStore) ActiveNurses(ctx context.Context, departmentID string) ([]types.Nurse, error) {
	return f.nurses, nil
}

func (f *fakeJobStore) ActiveShiftCodes(ctx context.Context) ([]string, error) {
	return []string{"D", "E", "N"}, nil
}

func (f *fakeJobStore) ReplaceAssignments(ctx context.Context, periodID types.PeriodID, rows []types.Assignment, checkpoint func(done, total int) error) error {
	total := len(rows)
	step := total / 10
	if step < 1 {
		step = 1
	}
	for done := step; done <= total; done += step {
		if f.beforeCheckpoint != nil {
			f.beforeCheckpoint()
		}
		if err := checkpoint(done, total); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.assignments = rows
	f.mu.Unlock()
	return nil
}

func (f *fakeJobStore) SnapshotAssignments(ctx context.Context, periodID types.PeriodID, name string) (*types.AssignmentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := types.NewSnapshotID()
	f.snapshots[id] = name
	return &types.AssignmentSnapshot{ID: id, PeriodID: periodID, Name: name}, nil
}

func (f *fakeJobStore) RestoreSnapshot(ctx context.Context, id types.SnapshotID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snapshots[id]; !ok {
		return types.ErrNotFound
	}
	f.restored = append(f.restored, id)
	return nil
}

// fakeResolver hands back a fixed merged set or error.
type fakeResolver struct {
	result *resolve.Result
	err    error
}

func (f *fakeResolver) Resolve(ctx context.Context, bundleID types.BundleID) (*resolve.Result, error) {
	return f.result, f.err
}

func coverageSet(required int) *resolve.Result {
	return &resolve.Result{Constraints: []types.NormalizedConstraint{{
		Name: "coverage_required", Category: "hard",
		ScopeType: types.ScopeGlobal, ShiftCode: "D",
		Params: map[string]any{"required": required},
		RuleID: "cov",
	}}}
}

// sliceSink records every emitted event.
type sliceSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *sliceSink) Emit(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *sliceSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// erroringSolver always fails, forcing the placeholder fallback.
type erroringSolver struct{}

func (erroringSolver) Solve(ctx context.Context, p *model.Problem, opts model.Options) (*model.Solution, error) {
	return nil, fmt.Errorf("external solver unreachable")
}

// gateSolver parks inside Solve until released, so tests can observe a
// run mid-flight.
type gateSolver struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateSolver) Solve(ctx context.Context, p *model.Problem, opts model.Options) (*model.Solution, error) {
	g.entered <- struct{}{}
	<-g.release
	return model.Placeholder{}.Solve(ctx, p, opts)
}

func enqueue(t *testing.T, orch *Orchestrator, periodID types.PeriodID) *types.OptimizationJob {
	t.Helper()
	j, err := orch.Enqueue(context.Background(), types.JobSpec{
		ProjectID: "p1", PeriodID: periodID, RandomSeed: 42,
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	return j
}

func TestRun_Succeeds(t *testing.T) {
	st := newFakeJobStore()
	sink := &sliceSink{}
	orch := New(st, &fakeResolver{result: coverageSet(2)}, nil, sink, nil)

	j := enqueue(t, orch, st.period.ID)
	if err := orch.Run(context.Background(), j.ID); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}

	final, _ := st.Job(context.Background(), j.ID)
	if final.Status != types.JobSucceeded {
		t.Fatalf("Status = %v, want SUCCEEDED", final.Status)
	}
	if final.Progress != 100 {
		t.Errorf("Progress = %d, want 100", final.Progress)
	}
	if final.BundleID != "bundle-1" {
		t.Errorf("BundleID = %q, want active bundle of the period", final.BundleID)
	}
	if final.RollbackSnapshotID == "" || final.ResultSnapshotID == "" {
		t.Errorf("snapshots = (%q, %q), want rollback and result set",
			final.RollbackSnapshotID, final.ResultSnapshotID)
	}
	if used, _ := final.SolveReport["used_mock"].(bool); used {
		t.Errorf("used_mock = true for the configured solver")
	}

	// 7 days * 3 nurses committed
	if len(st.assignments) != 21 {
		t.Errorf("committed rows = %d, want 21", len(st.assignments))
	}

	events := sink.all()
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	var phases []string
	for _, e := range events {
		if e.Type == EventPhase {
			phases = append(phases, e.Payload["status"].(string))
		}
	}
	wantPhases := []string{"COMPILING", "SOLVING", "PERSISTING"}
	if len(phases) != len(wantPhases) {
		t.Fatalf("phases = %v, want %v", phases, wantPhases)
	}
	for i := range wantPhases {
		if phases[i] != wantPhases[i] {
			t.Errorf("phases[%d] = %s, want %s", i, phases[i], wantPhases[i])
		}
	}
	if last := events[len(events)-1]; last.Type != EventResult {
		t.Errorf("last event = %v, want result", last.Type)
	}
}

func TestRun_CancelBeforeStart(t *testing.T) {
	st := newFakeJobStore()
	orch := New(st, &fakeResolver{result: coverageSet(2)}, nil, nil, nil)

	j := enqueue(t, orch, st.period.ID)
	orch.Cancel(j.ID)

	err := orch.Run(context.Background(), j.ID)
	var jerr *types.JobError
	if !errors.As(err, &jerr) || jerr.Code != types.FailCanceled {
		t.Fatalf("Run() error = %v, want CANCELED job error", err)
	}
	final, _ := st.Job(context.Background(), j.ID)
	if final.Status != types.JobCanceled {
		t.Errorf("Status = %v, want CANCELED", final.Status)
	}
	if len(st.assignments) != 0 {
		t.Errorf("assignments written for a canceled job")
	}
}

func TestRun_CancelDuringPersistence(t *testing.T) {
	st := newFakeJobStore()
	orch := New(st, &fakeResolver{result: coverageSet(2)}, nil, nil, nil)

	j := enqueue(t, orch, st.period.ID)
	st.beforeCheckpoint = func() { orch.Cancel(j.ID) }

	err := orch.Run(context.Background(), j.ID)
	var jerr *types.JobError
	if !errors.As(err, &jerr) || jerr.Code != types.FailCanceled {
		t.Fatalf("Run() error = %v, want CANCELED job error", err)
	}
	final, _ := st.Job(context.Background(), j.ID)
	if final.Status != types.JobCanceled {
		t.Errorf("Status = %v, want CANCELED", final.Status)
	}
	if len(st.assignments) != 0 {
		t.Errorf("assignment replace committed despite mid-write cancel")
	}
}

func TestRun_PeriodBusy(t *testing.T) {
	st := newFakeJobStore()
	gate := &gateSolver{entered: make(chan struct{}), release: make(chan struct{})}
	orch := New(st, &fakeResolver{result: coverageSet(2)}, gate, nil, nil)

	first := enqueue(t, orch, st.period.ID)
	second := enqueue(t, orch, st.period.ID)

	done := make(chan error, 1)
	go func() { done <- orch.Run(context.Background(), first.ID) }()
	<-gate.entered

	err := orch.Run(context.Background(), second.ID)
	var jerr *types.JobError
	if !errors.As(err, &jerr) || jerr.Code != types.FailValidation {
		t.Fatalf("Run(second) error = %v, want VALIDATION job error", err)
	}
	j2, _ := st.Job(context.Background(), second.ID)
	if j2.Status != types.JobFailed {
		t.Errorf("second job Status = %v, want FAILED", j2.Status)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("Run(first) error = %v, want nil", err)
	}
	j1, _ := st.Job(context.Background(), first.ID)
	if j1.Status != types.JobSucceeded {
		t.Errorf("first job Status = %v, want SUCCEEDED", j1.Status)
	}
}

func TestRun_Infeasible(t *testing.T) {
	st := newFakeJobStore()
	orch := New(st, &fakeResolver{result: coverageSet(5)}, nil, nil, nil) // 5 required, 3 active

	j := enqueue(t, orch, st.period.ID)
	err := orch.Run(context.Background(), j.ID)
	var jerr *types.JobError
	if !errors.As(err, &jerr) || jerr.Code != types.FailInfeasible {
		t.Fatalf("Run() error = %v, want OPT_INFEASIBLE job error", err)
	}
	final, _ := st.Job(context.Background(), j.ID)
	if final.Status != types.JobFailed {
		t.Errorf("Status = %v, want FAILED", final.Status)
	}
	if code, _ := final.ErrorPayload["code"].(string); code != "OPT_INFEASIBLE" {
		t.Errorf("ErrorPayload code = %q, want OPT_INFEASIBLE", code)
	}
}

func TestRun_NoActiveBundle(t *testing.T) {
	st := newFakeJobStore()
	st.period.ActiveBundleID = ""
	orch := New(st, &fakeResolver{result: coverageSet(2)}, nil, nil, nil)

	j := enqueue(t, orch, st.period.ID)
	err := orch.Run(context.Background(), j.ID)
	var jerr *types.JobError
	if !errors.As(err, &jerr) || jerr.Code != types.FailValidation {
		t.Fatalf("Run() error = %v, want VALIDATION job error", err)
	}
}

func TestRun_SolverFallbackFlagsMock(t *testing.T) {
	st := newFakeJobStore()
	orch := New(st, &fakeResolver{result: coverageSet(2)}, erroringSolver{}, nil, nil)

	j := enqueue(t, orch, st.period.ID)
	if err := orch.Run(context.Background(), j.ID); err != nil {
		t.Fatalf("Run() error = %v, want nil with placeholder fallback", err)
	}
	final, _ := st.Job(context.Background(), j.ID)
	if final.Status != types.JobSucceeded {
		t.Fatalf("Status = %v, want SUCCEEDED", final.Status)
	}
	if used, _ := final.SolveReport["used_mock"].(bool); !used {
		t.Errorf("used_mock = false, want true after solver fallback")
	}
}

func TestRun_TerminalJobRejected(t *testing.T) {
	st := newFakeJobStore()
	orch := New(st, &fakeResolver{result: coverageSet(2)}, nil, nil, nil)

	j := enqueue(t, orch, st.period.ID)
	if err := orch.Run(context.Background(), j.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := orch.Run(context.Background(), j.ID); !errors.Is(err, types.ErrJobTerminal) {
		t.Errorf("second Run() error = %v, want ErrJobTerminal", err)
	}
}

func TestEnqueue_RequiresPeriod(t *testing.T) {
	st := newFakeJobStore()
	orch := New(st, &fakeResolver{result: coverageSet(2)}, nil, nil, nil)

	if _, err := orch.Enqueue(context.Background(), types.JobSpec{ProjectID: "p1"}); err == nil {
		t.Errorf("Enqueue() without period = nil error, want error")
	}
	if _, err := orch.Enqueue(context.Background(), types.JobSpec{ProjectID: "p1", PeriodID: "ghost"}); err == nil {
		t.Errorf("Enqueue() with unknown period = nil error, want error")
	}
}

func TestApply(t *testing.T) {
	st := newFakeJobStore()
	orch := New(st, &fakeResolver{result: coverageSet(2)}, nil, nil, nil)

	j := enqueue(t, orch, st.period.ID)

	// Not yet succeeded
	if err := orch.Apply(context.Background(), j.ID); !errors.Is(err, types.ErrJobNotSucceeded) {
		t.Errorf("Apply() before run = %v, want ErrJobNotSucceeded", err)
	}

	if err := orch.Run(context.Background(), j.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	ran, _ := st.Job(context.Background(), j.ID)

	if err := orch.Apply(context.Background(), j.ID); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(st.restored) != 1 || st.restored[0] != ran.ResultSnapshotID {
		t.Errorf("restored = %v, want exactly the result snapshot %v", st.restored, ran.ResultSnapshotID)
	}
	applied, _ := st.Job(context.Background(), j.ID)
	if applied.RollbackSnapshotID == ran.RollbackSnapshotID {
		t.Errorf("Apply() did not take a fresh rollback snapshot")
	}
}
