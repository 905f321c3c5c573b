package model

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/wardroster/wardroster/internal/types"
)

/*
 * Placeholder is the built-in greedy solver: deterministic for a given
 * seed, honors unavailability and fills daily coverage, leaves every
 * other cell on the off code. It exists so the pipeline runs end to end
 * without an external optimizer; the orchestrator flags its results as
 * mock output.
 */

// Placeholder is a deterministic seeded greedy solver.
type Placeholder struct{}

// Solve greedily fills coverage day by day. The same seed and problem
// always produce the same schedule.
func (Placeholder) Solve(ctx context.Context, p *Problem, opts Options) (*Solution, error) {
	start := time.Now()

	unavailable := map[string]map[types.Date]bool{}
	required := map[string]int{}
	for _, h := range p.Hard {
		switch v := h.(type) {
		case Unavailable:
			if v.StaffNo == "" {
				continue
			}
			if unavailable[v.StaffNo] == nil {
				unavailable[v.StaffNo] = map[types.Date]bool{}
			}
			for _, d := range v.Days {
				unavailable[v.StaffNo][d] = true
			}
		case Coverage:
			if v.SkillCode == "" && v.Required > required[v.ShiftCode] {
				required[v.ShiftCode] = v.Required
			}
		}
	}

	shifts := make([]string, 0, len(required))
	for s := range required {
		shifts = append(shifts, s)
	}
	sort.Strings(shifts)

	assignment := map[types.Date]map[string]string{}
	for _, day := range p.Days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := map[string]string{}
		for _, n := range p.Nurses {
			row[n.StaffNo] = p.OffCode
		}

		order := dayOrder(p.Nurses, opts.Seed, day)
		next := 0
		for _, shift := range shifts {
			need := required[shift]
			for need > 0 && next < len(order) {
				staffNo := order[next]
				next++
				if unavailable[staffNo][day] {
					continue
				}
				row[staffNo] = shift
				need--
			}
			if need > 0 {
				return &Solution{Status: StatusInfeasible, WallTime: time.Since(start)}, nil
			}
		}
		assignment[day] = row
	}

	sol := &Solution{
		Status:     StatusFeasible,
		Assignment: assignment,
		WallTime:   time.Since(start),
	}
	sol.Objective = Evaluate(p, assignment)
	if opts.OnIncumbent != nil {
		opts.OnIncumbent(sol.Objective)
	}
	return sol, nil
}

// dayOrder shuffles staff deterministically per (seed, day) so coverage
// duty rotates across the horizon instead of always hitting the same
// nurses.
func dayOrder(nurses []types.Nurse, seed int64, day types.Date) []string {
	h := fnv.New64a()
	h.Write([]byte(day))
	rng := rand.New(rand.NewSource(seed ^ int64(h.Sum64())))

	order := make([]string, len(nurses))
	for i, n := range nurses {
		order[i] = n.StaffNo
	}
	sort.Strings(order)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

// Evaluate scores an assignment against the problem's objective terms.
// Each variant contributes weight * violation count; the switch is
// exhaustive over the objective union.
func Evaluate(p *Problem, assignment map[types.Date]map[string]string) int {
	total := 0
	for _, term := range p.Objectives {
		w := term.EffectiveWeight()
		switch t := term.(type) {
		case NightFollowedByWork:
			total += w * countTransitions(p, assignment, func(cur, next string) bool {
				return cur == t.NightShift && next != p.OffCode
			}, "")
		case WeekendWork:
			for _, day := range p.Days {
				if !isWeekend(day) {
					continue
				}
				for staffNo, code := range assignment[day] {
					if code == p.OffCode {
						continue
					}
					if t.StaffNo == "" || t.StaffNo == staffNo {
						total += w
					}
				}
			}
		case PenalizedTransition:
			total += w * countTransitions(p, assignment, func(cur, next string) bool {
				return cur == t.FromShift && next == t.ToShift
			}, "")
		case ShiftAffinity:
			days := t.Days
			if len(days) == 0 {
				days = p.Days
			}
			for _, day := range days {
				code, ok := assignment[day][t.StaffNo]
				if !ok {
					continue
				}
				if t.Avoid && code == t.ShiftCode {
					total += w
				}
				if !t.Avoid && code != t.ShiftCode {
					total += w
				}
			}
		case IsolatedOffDay:
			for i := 1; i < len(p.Days)-1; i++ {
				prev, cur, next := p.Days[i-1], p.Days[i], p.Days[i+1]
				for _, n := range p.Nurses {
					if assignment[cur][n.StaffNo] == p.OffCode &&
						assignment[prev][n.StaffNo] != p.OffCode &&
						assignment[next][n.StaffNo] != p.OffCode {
						total += w
					}
				}
			}
		case ConsecutiveSameShift:
			for _, n := range p.Nurses {
				run := 0
				for _, day := range p.Days {
					if assignment[day][n.StaffNo] == t.ShiftCode {
						run++
						if run > t.Threshold {
							total += w
						}
					} else {
						run = 0
					}
				}
			}
		case FairnessRange:
			total += w * fairnessSpread(p, assignment, t)
		}
	}
	return total
}

// countTransitions counts consecutive-day pairs matching the predicate,
// optionally restricted to one nurse.
func countTransitions(p *Problem, assignment map[types.Date]map[string]string, match func(cur, next string) bool, staffNo string) int {
	count := 0
	for i := 0; i+1 < len(p.Days); i++ {
		cur, next := p.Days[i], p.Days[i+1]
		for _, n := range p.Nurses {
			if staffNo != "" && n.StaffNo != staffNo {
				continue
			}
			if match(assignment[cur][n.StaffNo], assignment[next][n.StaffNo]) {
				count++
			}
		}
	}
	return count
}

// fairnessSpread is max-min of the per-nurse count the metric selects.
func fairnessSpread(p *Problem, assignment map[types.Date]map[string]string, t FairnessRange) int {
	counted := map[string]bool{}
	for _, s := range t.ShiftCodes {
		counted[s] = true
	}
	minC, maxC := -1, 0
	for _, n := range p.Nurses {
		c := 0
		for _, day := range p.Days {
			code := assignment[day][n.StaffNo]
			if code == p.OffCode {
				continue
			}
			switch t.Metric {
			case MetricShiftCount:
				if len(counted) == 0 || counted[code] {
					c++
				}
			case MetricWeekendCount:
				if isWeekend(day) {
					c++
				}
			}
		}
		if minC < 0 || c < minC {
			minC = c
		}
		if c > maxC {
			maxC = c
		}
	}
	if minC < 0 {
		return 0
	}
	return maxC - minC
}

func isWeekend(d types.Date) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
