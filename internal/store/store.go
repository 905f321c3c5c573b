// Package store is the sqlx-backed persistence layer. It implements the
// narrow per-component interfaces the compiler, composer, and orchestrator
// depend on, over SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/wardroster/wardroster/internal/dsl"
	"github.com/wardroster/wardroster/internal/types"
)

/*
 * Write contracts enforced here rather than in callers:
 *  - rule_versions rows are insert-only
 *  - law-tagged rules reject user edits and deletes (ErrLawRuleImmutable)
 *  - bundle + items persist in one transaction
 *  - assignment replacement is delete-then-insert inside one transaction,
 *    with periodic checkpoints so cancellation can abort before commit
 */

// Store is the shared persistence handle.
type Store struct {
	db  *sqlx.DB
	q   *queries
	log *zap.Logger
}

// New wires a Store over an open database. A nil logger disables logging.
func New(db *sqlx.DB, log *zap.Logger) (*Store, error) {
	q, err := loadQueries(db)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, q: q, log: log}, nil
}

// --- catalog ---

// ActiveShiftCodes lists the active shift-code catalog.
func (s *Store) ActiveShiftCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := s.q.selectAll(ctx, "list-active-shift-codes", &codes, true); err != nil {
		return nil, err
	}
	return codes, nil
}

// DepartmentExists reports whether an active department has the code.
func (s *Store) DepartmentExists(ctx context.Context, code string) (bool, error) {
	var n int
	if err := s.q.get(ctx, "count-department", &n, code, true); err != nil {
		return false, err
	}
	return n > 0, nil
}

// NurseExists reports whether an active nurse has the staff number.
func (s *Store) NurseExists(ctx context.Context, staffNo string) (bool, error) {
	var n int
	if err := s.q.get(ctx, "count-nurse", &n, staffNo, true); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActiveNurses lists active staff, optionally restricted to a department.
func (s *Store) ActiveNurses(ctx context.Context, departmentID string) ([]types.Nurse, error) {
	var nurses []types.Nurse
	var err error
	if departmentID == "" {
		err = s.q.selectAll(ctx, "list-active-nurses", &nurses, true)
	} else {
		err = s.q.selectAll(ctx, "list-active-nurses-by-department", &nurses, true, departmentID)
	}
	return nurses, err
}

// Departments lists the active department catalog.
func (s *Store) Departments(ctx context.Context) ([]types.Department, error) {
	var deps []types.Department
	err := s.q.selectAll(ctx, "list-departments", &deps, true)
	return deps, err
}

// --- periods ---

// Period loads one scheduling period.
func (s *Store) Period(ctx context.Context, id types.PeriodID) (*types.SchedulePeriod, error) {
	var p types.SchedulePeriod
	if err := s.q.get(ctx, "get-period", &p, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrPeriodNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreatePeriod persists a new scheduling period.
func (s *Store) CreatePeriod(ctx context.Context, p *types.SchedulePeriod) error {
	_, err := s.q.exec(ctx, "insert-period",
		p.ID, p.ProjectID, p.Name, p.StartDate, p.EndDate,
		p.HospitalID, p.DepartmentID, p.ActiveBundleID, p.CreatedAt, p.UpdatedAt)
	return err
}

// --- rules ---

// Rule loads one rule by id.
func (s *Store) Rule(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	var r types.Rule
	if err := s.q.get(ctx, "get-rule", &r, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// ListRules lists a project's non-deleted rules.
func (s *Store) ListRules(ctx context.Context, projectID string) ([]types.Rule, error) {
	var rules []types.Rule
	err := s.q.selectAll(ctx, "list-rules", &rules, projectID, false)
	return rules, err
}

// CreateRule inserts a rule and its first version.
func (s *Store) CreateRule(ctx context.Context, r *types.Rule, status types.ValidationStatus, report types.JSONMap) (*types.RuleVersion, error) {
	if _, err := s.q.exec(ctx, "insert-rule",
		r.ID, r.ProjectID, r.Title, r.NLText, r.DSLText, r.ScopeType, r.ScopeID,
		r.RuleType, r.Priority, r.Enabled, r.Deleted, r.CreatedAt, r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert rule: %w", err)
	}
	return s.appendVersion(ctx, r, 1, status, report)
}

// UpdateRule updates a rule and appends the next version. Law-tagged rules
// are immutable to users.
func (s *Store) UpdateRule(ctx context.Context, r *types.Rule, status types.ValidationStatus, report types.JSONMap) (*types.RuleVersion, error) {
	existing, err := s.Rule(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if dsl.IsLawDocument(existing.DSLText) {
		return nil, types.ErrLawRuleImmutable
	}
	r.UpdatedAt = time.Now().UTC()
	if _, err := s.q.exec(ctx, "update-rule",
		r.Title, r.NLText, r.DSLText, r.ScopeType, r.ScopeID,
		r.RuleType, r.Priority, r.Enabled, r.UpdatedAt, r.ID); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}

	next := 1
	if latest, err := s.LatestVersion(ctx, r.ID); err == nil {
		next = latest.Version + 1
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	return s.appendVersion(ctx, r, next, status, report)
}

// DeleteRule soft-deletes a rule. Law-tagged rules reject deletion.
func (s *Store) DeleteRule(ctx context.Context, id types.RuleID) error {
	existing, err := s.Rule(ctx, id)
	if err != nil {
		return err
	}
	if dsl.IsLawDocument(existing.DSLText) {
		return types.ErrLawRuleImmutable
	}
	_, err = s.q.exec(ctx, "soft-delete-rule", true, time.Now().UTC(), id)
	return err
}

func (s *Store) appendVersion(ctx context.Context, r *types.Rule, version int, status types.ValidationStatus, report types.JSONMap) (*types.RuleVersion, error) {
	v := &types.RuleVersion{
		ID:               types.NewRuleVersionID(),
		RuleID:           r.ID,
		Version:          version,
		NLText:           r.NLText,
		DSLText:          r.DSLText,
		ValidationStatus: status,
		ValidationReport: report,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.CreateVersion(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// LawRules lists a project's law-tagged rules, deleted excluded, disabled
// included.
func (s *Store) LawRules(ctx context.Context, projectID string) ([]types.Rule, error) {
	rules, err := s.ListRules(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var out []types.Rule
	for _, r := range rules {
		if dsl.IsLawDocument(r.DSLText) {
			out = append(out, r)
		}
	}
	return out, nil
}

// HospitalRules lists non-law GLOBAL and HOSPITAL scope rules. A non-empty
// hospitalID restricts HOSPITAL rules to that hospital.
func (s *Store) HospitalRules(ctx context.Context, projectID, hospitalID string) ([]types.Rule, error) {
	rules, err := s.ListRules(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var out []types.Rule
	for _, r := range rules {
		if dsl.IsLawDocument(r.DSLText) {
			continue
		}
		switch r.ScopeType {
		case types.ScopeGlobal:
			out = append(out, r)
		case types.ScopeHospital:
			if hospitalID == "" || r.ScopeID == hospitalID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// TemplateRules lists the non-deleted rules attached to a template.
func (s *Store) TemplateRules(ctx context.Context, templateID string) ([]types.Rule, error) {
	var rules []types.Rule
	err := s.q.selectAll(ctx, "list-template-rules", &rules, templateID, false)
	return rules, err
}

// NursePrefRules lists NURSE-scope rules, restricted to a department's
// active staff when departmentID is set.
func (s *Store) NursePrefRules(ctx context.Context, projectID, departmentID string) ([]types.Rule, error) {
	var rules []types.Rule
	if err := s.q.selectAll(ctx, "list-rules-by-scope", &rules, projectID, types.ScopeNurse, false); err != nil {
		return nil, err
	}
	if departmentID == "" {
		return rules, nil
	}
	nurses, err := s.ActiveNurses(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	members := map[string]bool{}
	for _, n := range nurses {
		members[n.StaffNo] = true
	}
	var out []types.Rule
	for _, r := range rules {
		if members[r.ScopeID] {
			out = append(out, r)
		}
	}
	return out, nil
}

// LatestVersion returns the rule's newest version, ErrNotFound when the
// rule predates versioning.
func (s *Store) LatestVersion(ctx context.Context, ruleID types.RuleID) (*types.RuleVersion, error) {
	var v types.RuleVersion
	if err := s.q.get(ctx, "get-latest-version", &v, ruleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// VersionByID loads one rule version.
func (s *Store) VersionByID(ctx context.Context, id types.RuleVersionID) (*types.RuleVersion, error) {
	var v types.RuleVersion
	if err := s.q.get(ctx, "get-version", &v, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// CreateVersion inserts an immutable rule version row.
func (s *Store) CreateVersion(ctx context.Context, v *types.RuleVersion) error {
	_, err := s.q.exec(ctx, "insert-version",
		v.ID, v.RuleID, v.Version, v.NLText, v.DSLText,
		v.ValidationStatus, v.ValidationReport, v.CreatedAt)
	return err
}

// --- bundles ---

// SaveBundle persists a bundle and its items in one transaction.
func (s *Store) SaveBundle(ctx context.Context, b *types.RuleBundle, items []types.RuleBundleItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := s.q.execTx(ctx, tx, "insert-bundle",
		b.ID, b.ProjectID, b.PeriodID, b.HospitalID, b.DepartmentID, b.Name,
		b.SHA256, b.SourceConfig, b.ValidationStatus, b.ValidationReport,
		b.CreatedAt); err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}
	for _, it := range items {
		if _, err := s.q.execTx(ctx, tx, "insert-bundle-item",
			it.BundleID, it.Layer, it.RuleID, it.RuleVersionID, it.DSLSHA256,
			it.RuleType, it.Priority, it.Enabled, it.CreatedAt); err != nil {
			return fmt.Errorf("insert bundle item %s: %w", it.RuleID, err)
		}
	}
	return tx.Commit()
}

// BundleByID loads a bundle with its items.
func (s *Store) BundleByID(ctx context.Context, id types.BundleID) (*types.RuleBundle, []types.RuleBundleItem, error) {
	var b types.RuleBundle
	if err := s.q.get(ctx, "get-bundle", &b, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, types.ErrNotFound
		}
		return nil, nil, err
	}
	var items []types.RuleBundleItem
	if err := s.q.selectAll(ctx, "list-bundle-items", &items, id); err != nil {
		return nil, nil, err
	}
	return &b, items, nil
}

// ActiveBundle loads the period's active bundle with items. ErrNotFound
// when the period has none.
func (s *Store) ActiveBundle(ctx context.Context, periodID types.PeriodID) (*types.RuleBundle, []types.RuleBundleItem, error) {
	p, err := s.Period(ctx, periodID)
	if err != nil {
		return nil, nil, err
	}
	if p.ActiveBundleID == "" {
		return nil, nil, types.ErrNotFound
	}
	return s.BundleByID(ctx, p.ActiveBundleID)
}

// ActivateBundle points the period at the bundle.
func (s *Store) ActivateBundle(ctx context.Context, periodID types.PeriodID, bundleID types.BundleID) error {
	res, err := s.q.exec(ctx, "activate-bundle", bundleID, time.Now().UTC(), periodID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrPeriodNotFound
	}
	return nil
}

// --- assignments and snapshots ---

// ListAssignments returns the period's live assignment rows.
func (s *Store) ListAssignments(ctx context.Context, periodID types.PeriodID) ([]types.Assignment, error) {
	var rows []types.Assignment
	err := s.q.selectAll(ctx, "list-assignments", &rows, periodID)
	return rows, err
}

// ReplaceAssignments atomically swaps the period's assignment table for the
// given rows. checkpoint runs about every tenth of the rows; a checkpoint
// error aborts the transaction unapplied.
func (s *Store) ReplaceAssignments(ctx context.Context, periodID types.PeriodID, rows []types.Assignment, checkpoint func(done, total int) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := s.q.execTx(ctx, tx, "delete-assignments", periodID); err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}

	total := len(rows)
	step := total / 10
	if step < 1 {
		step = 1
	}
	now := time.Now().UTC()
	for i, r := range rows {
		if _, err := s.q.execTx(ctx, tx, "insert-assignment",
			periodID, r.Day, r.StaffNo, r.ShiftCode, now); err != nil {
			return fmt.Errorf("insert assignment %s/%s: %w", r.Day, r.StaffNo, err)
		}
		if checkpoint != nil && ((i+1)%step == 0 || i+1 == total) {
			if err := checkpoint(i+1, total); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// SnapshotAssignments captures the period's current assignments as an
// immutable snapshot.
func (s *Store) SnapshotAssignments(ctx context.Context, periodID types.PeriodID, name string) (*types.AssignmentSnapshot, error) {
	rows, err := s.ListAssignments(ctx, periodID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	snap := &types.AssignmentSnapshot{
		ID:          types.NewSnapshotID(),
		PeriodID:    periodID,
		Name:        name,
		Assignments: rows,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.q.exec(ctx, "insert-snapshot",
		snap.ID, snap.PeriodID, snap.Name, string(payload), snap.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	s.log.Debug("assignments snapshotted",
		zap.String("snapshot_id", string(snap.ID)),
		zap.String("period_id", string(periodID)),
		zap.Int("rows", len(rows)))
	return snap, nil
}

// Snapshot loads one snapshot with its assignment rows.
func (s *Store) Snapshot(ctx context.Context, id types.SnapshotID) (*types.AssignmentSnapshot, error) {
	var row struct {
		SnapshotID types.SnapshotID `db:"snapshot_id"`
		PeriodID   types.PeriodID   `db:"period_id"`
		Name       string           `db:"name"`
		Payload    string           `db:"payload"`
		CreatedAt  time.Time        `db:"created_at"`
	}
	if err := s.q.get(ctx, "get-snapshot", &row, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	snap := &types.AssignmentSnapshot{
		ID:        row.SnapshotID,
		PeriodID:  row.PeriodID,
		Name:      row.Name,
		CreatedAt: row.CreatedAt,
	}
	if err := json.Unmarshal([]byte(row.Payload), &snap.Assignments); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	return snap, nil
}

// RestoreSnapshot re-materializes a snapshot into the live assignments.
func (s *Store) RestoreSnapshot(ctx context.Context, id types.SnapshotID) error {
	snap, err := s.Snapshot(ctx, id)
	if err != nil {
		return err
	}
	return s.ReplaceAssignments(ctx, snap.PeriodID, snap.Assignments, nil)
}

// --- jobs ---

// CreateJob inserts a new optimization job.
func (s *Store) CreateJob(ctx context.Context, j *types.OptimizationJob) error {
	_, err := s.q.exec(ctx, "insert-job",
		j.ID, j.ProjectID, j.PeriodID, j.BundleID, j.Status, j.Progress,
		j.Message, j.TimeLimitSeconds, j.RandomSeed, j.SolverWorkers,
		j.Request, j.CompileReport, j.SolveReport, j.ResultSnapshotID,
		j.RollbackSnapshotID, j.ErrorPayload, j.CreatedAt, j.UpdatedAt,
		j.StartedAt, j.FinishedAt)
	return err
}

// Job loads one job by id.
func (s *Store) Job(ctx context.Context, id types.JobID) (*types.OptimizationJob, error) {
	var j types.OptimizationJob
	if err := s.q.get(ctx, "get-job", &j, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// JobsByPeriod lists a period's jobs, newest first.
func (s *Store) JobsByPeriod(ctx context.Context, periodID types.PeriodID) ([]types.OptimizationJob, error) {
	var jobs []types.OptimizationJob
	err := s.q.selectAll(ctx, "list-jobs-by-period", &jobs, periodID)
	return jobs, err
}

// UpdateJob persists a job's mutable fields.
func (s *Store) UpdateJob(ctx context.Context, j *types.OptimizationJob) error {
	_, err := s.q.exec(ctx, "update-job",
		j.BundleID, j.Status, j.Progress, j.Message, j.CompileReport,
		j.SolveReport, j.ResultSnapshotID, j.RollbackSnapshotID,
		j.ErrorPayload, j.UpdatedAt, j.StartedAt, j.FinishedAt, j.ID)
	return err
}
