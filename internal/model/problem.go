// Package model lowers merged constraints into a solver-ready assignment
// problem and provides the solver contract plus a deterministic built-in
// solver.
package model

import (
	"context"
	"sort"
	"time"

	"github.com/wardroster/wardroster/internal/types"
)

/*
 * The constraint vocabulary is a closed set, so the lowered form is a
 * closed tagged union: one variant type per obligation, a marker method
 * per category, and exhaustive switches everywhere a variant is consumed.
 * Adding a vocabulary name without handling its variant fails to compile
 * at the switch sites that list them.
 */

// Problem is the solver input: the day horizon, the staff domain, and the
// lowered constraint variants.
type Problem struct {
	PeriodID   types.PeriodID
	Days       []types.Date
	Nurses     []types.Nurse
	ShiftCodes []string // working shifts; the off code is separate
	OffCode    string
	Hard       []HardConstraint
	Objectives []ObjectiveTerm
}

// HardConstraint is one obligation every valid schedule must satisfy.
type HardConstraint interface{ hardConstraint() }

// Coverage requires a minimum staff count on a shift each day.
type Coverage struct {
	ShiftCode    string
	Required     int
	DepartmentID string // empty applies to all
	SkillCode    string // empty means headcount, not skill coverage
	RuleID       types.RuleID
}

// MaxConsecutiveRun caps consecutive days in the given shift set. An empty
// set means any working shift.
type MaxConsecutiveRun struct {
	ShiftCodes []string
	MaxDays    int
	StaffNo    string // empty applies to all
	RuleID     types.RuleID
}

// RestAfterShift forbids the listed next-day shifts after a shift.
type RestAfterShift struct {
	AfterShift string
	Forbidden  []string // empty forbids all working shifts (full rest day)
	RuleID     types.RuleID
}

// ForbidTransition bans one day-to-day shift transition outright.
type ForbidTransition struct {
	FromShift string
	ToShift   string
	RuleID    types.RuleID
}

// WeekendAllOrNothing requires Saturday and Sunday of one weekend to be
// both worked or both off.
type WeekendAllOrNothing struct {
	RuleID types.RuleID
}

// MinConsecutiveOff requires off runs of at least Min days. Runs truncated
// by the horizon edge are tolerated.
type MinConsecutiveOff struct {
	Min    int
	RuleID types.RuleID
}

// MinFullWeekendsOff requires at least Min fully-off weekends per window.
// Sliding windows advance one day at a time; fixed windows tile the horizon.
type MinFullWeekendsOff struct {
	Min        int
	WindowDays int
	Sliding    bool
	RuleID     types.RuleID
}

// MaxWorkInWindow caps assignments from a shift subset inside a window.
type MaxWorkInWindow struct {
	ShiftCodes []string // empty means any working shift
	Max        int
	WindowDays int
	Sliding    bool
	StaffNo    string
	RuleID     types.RuleID
}

// NoviceRequiresSenior requires a senior-level presence on any shift
// staffed with a novice-level nurse.
type NoviceRequiresSenior struct {
	NoviceLevels []string
	SeniorLevels []string
	ShiftCodes   []string // empty means every working shift
	RuleID       types.RuleID
}

// Unavailable pins one nurse to the off code on the listed days.
type Unavailable struct {
	StaffNo string
	Days    []types.Date
	RuleID  types.RuleID
}

func (Coverage) hardConstraint()             {}
func (MaxConsecutiveRun) hardConstraint()    {}
func (RestAfterShift) hardConstraint()       {}
func (ForbidTransition) hardConstraint()     {}
func (WeekendAllOrNothing) hardConstraint()  {}
func (MinConsecutiveOff) hardConstraint()    {}
func (MinFullWeekendsOff) hardConstraint()   {}
func (MaxWorkInWindow) hardConstraint()      {}
func (NoviceRequiresSenior) hardConstraint() {}
func (Unavailable) hardConstraint()          {}

// ObjectiveTerm is one weighted penalty in the scalar objective.
type ObjectiveTerm interface {
	objectiveTerm()
	// EffectiveWeight is the already-scaled weight of the term.
	EffectiveWeight() int
}

// weighted carries the scaled weight shared by every objective variant.
type weighted struct {
	Weight int
	RuleID types.RuleID
}

func (w weighted) EffectiveWeight() int { return w.Weight }

// NightFollowedByWork penalizes a working shift on the day after a night.
type NightFollowedByWork struct {
	weighted
	NightShift string
}

// WeekendWork penalizes working shifts on weekend days.
type WeekendWork struct {
	weighted
	StaffNo string // empty applies to all
}

// PenalizedTransition penalizes one day-to-day transition softly.
type PenalizedTransition struct {
	weighted
	FromShift string
	ToShift   string
}

// ShiftAffinity expresses a per-person preference for (positive) or
// against (Avoid) a shift, optionally on specific days.
type ShiftAffinity struct {
	weighted
	StaffNo   string
	ShiftCode string
	Avoid     bool
	Days      []types.Date // empty means the whole horizon
}

// IsolatedOffDay penalizes single off days sandwiched by work.
type IsolatedOffDay struct {
	weighted
}

// ConsecutiveSameShift penalizes same-shift runs beyond a threshold.
type ConsecutiveSameShift struct {
	weighted
	ShiftCode string
	Threshold int
}

// FairnessRange penalizes the spread (max-min) of a per-nurse count.
type FairnessRange struct {
	weighted
	Metric     FairnessMetric
	ShiftCodes []string // counted shifts for MetricShiftCount
}

// FairnessMetric selects the count a FairnessRange balances.
type FairnessMetric string

const (
	MetricShiftCount   FairnessMetric = "SHIFT_COUNT"
	MetricWeekendCount FairnessMetric = "WEEKEND_COUNT"
)

func (NightFollowedByWork) objectiveTerm()  {}
func (WeekendWork) objectiveTerm()          {}
func (PenalizedTransition) objectiveTerm()  {}
func (ShiftAffinity) objectiveTerm()        {}
func (IsolatedOffDay) objectiveTerm()       {}
func (ConsecutiveSameShift) objectiveTerm() {}
func (FairnessRange) objectiveTerm()        {}

// Options bounds one solver run.
type Options struct {
	TimeLimit time.Duration
	Seed      int64
	Workers   int
	// OnIncumbent, when set, receives each improved objective value.
	OnIncumbent func(objective int)
}

// SolveStatus is the solver outcome classification.
type SolveStatus string

const (
	StatusOptimal    SolveStatus = "OPTIMAL"
	StatusFeasible   SolveStatus = "FEASIBLE"
	StatusInfeasible SolveStatus = "INFEASIBLE"
	StatusTimeout    SolveStatus = "TIMEOUT"
)

// Solution is one solver result. Assignment maps (day, staff) to a shift
// code, the off code included.
type Solution struct {
	Status     SolveStatus
	Assignment map[types.Date]map[string]string
	Objective  int
	Bound      int
	WallTime   time.Duration
}

// Assignments flattens the solution into persistable rows.
func (s *Solution) Assignments(periodID types.PeriodID) []types.Assignment {
	var out []types.Assignment
	for _, day := range sortedDays(s.Assignment) {
		row := s.Assignment[day]
		for _, staffNo := range sortedKeys(row) {
			out = append(out, types.Assignment{
				PeriodID:  periodID,
				Day:       day,
				StaffNo:   staffNo,
				ShiftCode: row[staffNo],
			})
		}
	}
	return out
}

// Solver turns a problem into a solution within the given options.
type Solver interface {
	Solve(ctx context.Context, p *Problem, opts Options) (*Solution, error)
}

func sortedDays(m map[types.Date]map[string]string) []types.Date {
	out := make([]types.Date, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
