package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wardroster/wardroster/internal/resolve"
	"github.com/wardroster/wardroster/internal/types"
)

/*
 * Lowering workflow:
 *  1. Map every merged entry onto its variant through the closed name
 *     switch; names the compiler admits but the builder cannot lower are
 *     an internal error, never a silent drop
 *  2. Scale objective weights: effective = max(1, base * multiplier)
 *  3. Run the day-level feasibility pre-check before any solver work
 */

// BuildInput collects everything lowering needs besides the merged rules.
type BuildInput struct {
	Period     *types.SchedulePeriod
	Nurses     []types.Nurse
	ShiftCodes []string // active working shift codes
	OffCode    string   // defaults to OFF
	// Multipliers scales objective weights, looked up by constraint name
	// first, then category. Missing keys default to 1.
	Multipliers map[string]int
}

// Build lowers the merged constraint set into a Problem. The returned
// error wraps ErrInfeasible when the coverage pre-check already rules out
// any schedule.
func Build(merged *resolve.Result, in BuildInput) (*Problem, error) {
	off := in.OffCode
	if off == "" {
		off = "OFF"
	}
	p := &Problem{
		PeriodID:   in.Period.ID,
		Days:       in.Period.Days(),
		Nurses:     activeNurses(in.Nurses),
		ShiftCodes: in.ShiftCodes,
		OffCode:    off,
	}
	for _, c := range merged.Constraints {
		if err := lower(p, c, in.Multipliers); err != nil {
			return nil, err
		}
	}
	if err := precheck(p); err != nil {
		return nil, err
	}
	return p, nil
}

// lower appends the variant(s) for one merged entry.
func lower(p *Problem, c types.NormalizedConstraint, multipliers map[string]int) error {
	switch c.Name {
	case "one_shift_per_day":
		// Structural: the assignment domain already grants one shift per
		// nurse per day.
		return nil

	case "coverage_required", "daily_coverage":
		p.Hard = append(p.Hard, Coverage{
			ShiftCode:    c.ShiftCode,
			Required:     c.IntParam("required", c.IntParam("min", 1)),
			DepartmentID: departmentTarget(c),
			RuleID:       c.RuleID,
		})
	case "skill_coverage":
		p.Hard = append(p.Hard, Coverage{
			ShiftCode:    c.ShiftCode,
			Required:     c.IntParam("required", c.IntParam("min", 1)),
			SkillCode:    c.StringParam("skill", c.StringParam("skill_code", "")),
			DepartmentID: departmentTarget(c),
			RuleID:       c.RuleID,
		})

	case "max_consecutive_work_days", "max_consecutive":
		p.Hard = append(p.Hard, MaxConsecutiveRun{
			MaxDays: c.IntParam("max_days", c.IntParam("max", 5)),
			StaffNo: nurseTarget(c),
			RuleID:  c.RuleID,
		})
	case "max_consecutive_shift", "max_consecutive_same_shift":
		p.Hard = append(p.Hard, MaxConsecutiveRun{
			ShiftCodes: shiftSet(c),
			MaxDays:    c.IntParam("max", c.IntParam("max_days", 3)),
			StaffNo:    nurseTarget(c),
			RuleID:     c.RuleID,
		})

	case "forbid_transition":
		p.Hard = append(p.Hard, ForbidTransition{
			FromShift: c.StringParam("from", c.StringParam("from_shift", "")),
			ToShift:   c.StringParam("to", c.StringParam("to_shift", "")),
			RuleID:    c.RuleID,
		})
	case "rest_after_shift", "rest_after_night":
		after := c.StringParam("after", c.ShiftCode)
		if after == "" {
			after = "N"
		}
		p.Hard = append(p.Hard, RestAfterShift{
			AfterShift: after,
			Forbidden:  c.StringsParam("forbidden"),
			RuleID:     c.RuleID,
		})

	case "max_assignments_in_window":
		window, sliding, err := windowOf(c, 7)
		if err != nil {
			return err
		}
		p.Hard = append(p.Hard, MaxWorkInWindow{
			ShiftCodes: shiftSet(c),
			Max:        c.IntParam("max", 5),
			WindowDays: window,
			Sliding:    sliding,
			StaffNo:    nurseTarget(c),
			RuleID:     c.RuleID,
		})
	case "max_work_days_in_rolling_window":
		window, sliding, err := windowOf(c, 7)
		if err != nil {
			return err
		}
		p.Hard = append(p.Hard, MaxWorkInWindow{
			Max:        c.IntParam("max_days", c.IntParam("max", 5)),
			WindowDays: window,
			Sliding:    sliding,
			StaffNo:    nurseTarget(c),
			RuleID:     c.RuleID,
		})

	case "unavailable_dates":
		days, err := datesParam(c)
		if err != nil {
			return err
		}
		p.Hard = append(p.Hard, Unavailable{
			StaffNo: nurseTarget(c),
			Days:    days,
			RuleID:  c.RuleID,
		})

	case "if_novice_present_then_senior_present":
		p.Hard = append(p.Hard, NoviceRequiresSenior{
			NoviceLevels: c.StringsParam("novice_levels"),
			SeniorLevels: c.StringsParam("senior_levels"),
			ShiftCodes:   shiftSet(c),
			RuleID:       c.RuleID,
		})

	case "min_consecutive_off_days":
		p.Hard = append(p.Hard, MinConsecutiveOff{
			Min:    c.IntParam("min", 2),
			RuleID: c.RuleID,
		})
	case "weekend_all_or_nothing":
		p.Hard = append(p.Hard, WeekendAllOrNothing{RuleID: c.RuleID})
	case "min_full_weekends_off_in_window":
		window, sliding, err := windowOf(c, 28)
		if err != nil {
			return err
		}
		p.Hard = append(p.Hard, MinFullWeekendsOff{
			Min:        c.IntParam("min", 1),
			WindowDays: window,
			Sliding:    sliding,
			RuleID:     c.RuleID,
		})

	case "prefer_off_after_night":
		p.Objectives = append(p.Objectives, NightFollowedByWork{
			weighted:   weightOf(c, 100, multipliers),
			NightShift: orDefault(c.ShiftCode, "N"),
		})

	case "balance_shift_count":
		p.Objectives = append(p.Objectives, FairnessRange{
			weighted:   weightOf(c, 1, multipliers),
			Metric:     MetricShiftCount,
			ShiftCodes: shiftSet(c),
		})
	case "balance_weekend_shift_count":
		p.Objectives = append(p.Objectives, FairnessRange{
			weighted: weightOf(c, 1, multipliers),
			Metric:   MetricWeekendCount,
		})
	case "penalize_transition":
		p.Objectives = append(p.Objectives, PenalizedTransition{
			weighted:  weightOf(c, 1, multipliers),
			FromShift: c.StringParam("from", c.StringParam("from_shift", "")),
			ToShift:   c.StringParam("to", c.StringParam("to_shift", "")),
		})
	case "prefer_off_on_weekends":
		p.Objectives = append(p.Objectives, WeekendWork{
			weighted: weightOf(c, 1, multipliers),
			StaffNo:  nurseTarget(c),
		})
	case "prefer_shift", "avoid_shift", "avoid":
		days, err := datesParam(c)
		if err != nil {
			return err
		}
		p.Objectives = append(p.Objectives, ShiftAffinity{
			weighted:  weightOf(c, 1, multipliers),
			StaffNo:   nurseTarget(c),
			ShiftCode: c.ShiftCode,
			Avoid:     c.Name != "prefer_shift",
			Days:      days,
		})
	case "penalize_single_off_day":
		p.Objectives = append(p.Objectives, IsolatedOffDay{
			weighted: weightOf(c, 1, multipliers),
		})
	case "penalize_consecutive_same_shift":
		p.Objectives = append(p.Objectives, ConsecutiveSameShift{
			weighted:  weightOf(c, 1, multipliers),
			ShiftCode: c.ShiftCode,
			Threshold: c.IntParam("threshold", c.IntParam("max", 2)),
		})

	default:
		return fmt.Errorf("no lowering for constraint %q (rule %s)", c.Name, c.RuleID)
	}
	return nil
}

// precheck rejects problems whose daily coverage minima already exceed the
// active headcount. Cheap, and turns a guaranteed INFEASIBLE solve into an
// immediate diagnosable failure.
func precheck(p *Problem) error {
	total := 0
	perShift := map[string]int{}
	for _, h := range p.Hard {
		cov, ok := h.(Coverage)
		if !ok || cov.SkillCode != "" {
			continue
		}
		total += cov.Required
		perShift[cov.ShiftCode] += cov.Required
	}
	if total > len(p.Nurses) {
		return fmt.Errorf("%w: daily coverage needs %d staff, %d active (%v)",
			types.ErrInfeasible, total, len(p.Nurses), perShift)
	}
	return nil
}

// Summary reports variant counts for the job's compile report.
func Summary(p *Problem) types.JSONMap {
	hard := map[string]int{}
	for _, h := range p.Hard {
		switch h.(type) {
		case Coverage:
			hard["coverage"]++
		case MaxConsecutiveRun:
			hard["max_consecutive_run"]++
		case RestAfterShift:
			hard["rest_after_shift"]++
		case ForbidTransition:
			hard["forbid_transition"]++
		case WeekendAllOrNothing:
			hard["weekend_all_or_nothing"]++
		case MinConsecutiveOff:
			hard["min_consecutive_off"]++
		case MinFullWeekendsOff:
			hard["min_full_weekends_off"]++
		case MaxWorkInWindow:
			hard["max_work_in_window"]++
		case NoviceRequiresSenior:
			hard["novice_requires_senior"]++
		case Unavailable:
			hard["unavailable"]++
		}
	}
	soft := map[string]int{}
	for _, o := range p.Objectives {
		switch o.(type) {
		case NightFollowedByWork:
			soft["night_followed_by_work"]++
		case WeekendWork:
			soft["weekend_work"]++
		case PenalizedTransition:
			soft["penalized_transition"]++
		case ShiftAffinity:
			soft["shift_affinity"]++
		case IsolatedOffDay:
			soft["isolated_off_day"]++
		case ConsecutiveSameShift:
			soft["consecutive_same_shift"]++
		case FairnessRange:
			soft["fairness_range"]++
		}
	}
	return types.JSONMap{
		"days":       len(p.Days),
		"nurses":     len(p.Nurses),
		"shifts":     len(p.ShiftCodes),
		"hard":       hard,
		"objectives": soft,
	}
}

func weightOf(c types.NormalizedConstraint, def int, multipliers map[string]int) weighted {
	base := c.Weight
	if base <= 0 {
		base = c.IntParam("weight", def)
	}
	mult := 1
	if m, ok := multipliers[c.Name]; ok {
		mult = m
	} else if m, ok := multipliers[c.Category]; ok {
		mult = m
	}
	eff := base * mult
	if eff < 1 {
		eff = 1
	}
	return weighted{Weight: eff, RuleID: c.RuleID}
}

// windowOf reads the window length from rolling_days(N) in for_each, or a
// window_days param, falling back to def days sliding.
func windowOf(c types.NormalizedConstraint, def int) (int, bool, error) {
	if fe, ok := c.Param("for_each").(string); ok {
		lower := strings.ToLower(strings.TrimSpace(fe))
		if strings.HasPrefix(lower, "rolling_days(") && strings.HasSuffix(lower, ")") {
			inner := lower[len("rolling_days(") : len(lower)-1]
			n, err := strconv.Atoi(strings.TrimSpace(inner))
			if err != nil || n <= 0 {
				return 0, false, fmt.Errorf("rule %s: bad rolling window %q", c.RuleID, fe)
			}
			return n, true, nil
		}
	}
	if n := c.IntParam("window_days", 0); n > 0 {
		return n, !c.BoolParam("fixed_window", false), nil
	}
	return def, true, nil
}

func datesParam(c types.NormalizedConstraint) ([]types.Date, error) {
	var out []types.Date
	for _, s := range c.StringsParam("dates") {
		d, err := types.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", c.RuleID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// shiftSet lists the shifts an entry targets: shift_codes, else the
// primary shift code.
func shiftSet(c types.NormalizedConstraint) []string {
	if codes := c.StringsParam("shift_codes"); len(codes) > 0 {
		return codes
	}
	if c.ShiftCode != "" {
		return []string{c.ShiftCode}
	}
	return nil
}

// nurseTarget is the staff number a NURSE-scoped entry applies to.
func nurseTarget(c types.NormalizedConstraint) string {
	if c.ScopeType == types.ScopeNurse {
		return c.ScopeID
	}
	return c.StringParam("staff_no", "")
}

// departmentTarget is the department a DEPARTMENT-scoped entry applies to.
func departmentTarget(c types.NormalizedConstraint) string {
	if c.ScopeType == types.ScopeDepartment {
		return c.ScopeID
	}
	return c.StringParam("department", "")
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

func activeNurses(nurses []types.Nurse) []types.Nurse {
	out := nurses[:0:0]
	for _, n := range nurses {
		if n.Active {
			out = append(out, n)
		}
	}
	return out
}
