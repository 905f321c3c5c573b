package types

import "time"

// JobSpec is the full solve request, retained verbatim on the job record so
// any run can be reproduced later.
type JobSpec struct {
	ProjectID        string   `json:"project_id"`
	PeriodID         PeriodID `json:"period_id"`
	BundleID         BundleID `json:"bundle_id,omitempty"`
	TimeLimitSeconds int      `json:"time_limit_seconds,omitempty"`
	RandomSeed       int64    `json:"random_seed,omitempty"`
	SolverWorkers    int      `json:"solver_workers,omitempty"`
	// WeightMultipliers scales objective categories: effective weight is
	// max(1, base*multiplier); missing categories default to 1.
	WeightMultipliers map[string]int `json:"weight_multipliers,omitempty"`
}

// OptimizationJob is one assignment-solving run. Created on enqueue, mutated
// only by the orchestrator, terminal once SUCCEEDED/FAILED/CANCELED.
type OptimizationJob struct {
	ID                 JobID      `db:"job_id" json:"job_id"`
	ProjectID          string     `db:"project_id" json:"project_id"`
	PeriodID           PeriodID   `db:"period_id" json:"period_id"`
	BundleID           BundleID   `db:"bundle_id" json:"bundle_id,omitempty"`
	Status             JobStatus  `db:"status" json:"status"`
	Progress           int        `db:"progress" json:"progress"`
	Message            string     `db:"message" json:"message"`
	TimeLimitSeconds   int        `db:"time_limit_seconds" json:"time_limit_seconds"`
	RandomSeed         int64      `db:"random_seed" json:"random_seed"`
	SolverWorkers      int        `db:"solver_workers" json:"solver_workers"`
	Request            JSONMap    `db:"request" json:"request"`
	CompileReport      JSONMap    `db:"compile_report" json:"compile_report"`
	SolveReport        JSONMap    `db:"solve_report" json:"solve_report"`
	ResultSnapshotID   SnapshotID `db:"result_snapshot_id" json:"result_snapshot_id,omitempty"`
	RollbackSnapshotID SnapshotID `db:"rollback_snapshot_id" json:"rollback_snapshot_id,omitempty"`
	ErrorPayload       JSONMap    `db:"error_payload" json:"error_payload"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt          *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt         *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
