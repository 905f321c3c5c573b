// Package resolve merges compiled constraints across scope layers into one
// deterministic, conflict-annotated set for the model builder.
//
// Merge semantics:
//   - Candidates are ordered by scope specificity descending (NURSE before
//     DEPARTMENT before HOSPITAL before GLOBAL), priority descending, rule
//     id ascending, then input position. The order is a total one, so equal
//     inputs always merge to equal outputs.
//   - At most one entry survives per (category, name, shift_code) key. The
//     first candidate in the order is the selected entry; later candidates
//     for the same key fold into it.
//   - Guarded hard bounds never weaken: a later candidate with a weaker
//     bound is rejected, a later candidate with a stricter bound clamps the
//     selected entry. Either way the dropped weaker bound is recorded as a
//     conflict, never an error: scheduling proceeds with the stricter rule.
//   - Soft and preference duplicates keep the maximum weight.
package resolve

import (
	"fmt"
	"sort"

	"github.com/wardroster/wardroster/internal/types"
)

// Result is the merged constraint set plus the merge decisions worth
// surfacing to rule authors.
type Result struct {
	Constraints []types.NormalizedConstraint `json:"constraints"`
	Conflicts   []types.ConflictRecord       `json:"conflicts"`
}

// bound describes the guarded numeric parameter of a constraint name. keys
// are tried in order; minLike means lower values are weaker.
type bound struct {
	keys    []string
	minLike bool
}

// guardedBounds maps constraint names whose principal parameter is subject
// to the relaxation guard. Names absent here merge by replacement only.
var guardedBounds = map[string]bound{
	"coverage_required":               {keys: []string{"required", "min"}, minLike: true},
	"skill_coverage":                  {keys: []string{"required", "min"}, minLike: true},
	"min_consecutive_off_days":        {keys: []string{"min"}, minLike: true},
	"min_full_weekends_off_in_window": {keys: []string{"min"}, minLike: true},
	"daily_coverage":                  {keys: []string{"required", "min"}, minLike: true},

	"max_consecutive_work_days":       {keys: []string{"max_days", "max"}},
	"max_consecutive_shift":           {keys: []string{"max", "max_days"}},
	"max_consecutive_same_shift":      {keys: []string{"max", "max_days"}},
	"max_assignments_in_window":       {keys: []string{"max"}},
	"max_work_days_in_rolling_window": {keys: []string{"max_days", "max"}},
	"max_consecutive":                 {keys: []string{"max_days", "max"}},
}

// Merge resolves candidate constraints from all bundle layers into the
// effective set. Pure function: candidates are not mutated.
func Merge(candidates []types.NormalizedConstraint) *Result {
	ordered := orderCandidates(candidates)
	res := &Result{Constraints: []types.NormalizedConstraint{}, Conflicts: []types.ConflictRecord{}}

	index := map[string]int{}
	for _, c := range ordered {
		key := mergeKey(c)
		at, seen := index[key]
		if !seen {
			index[key] = len(res.Constraints)
			res.Constraints = append(res.Constraints, cloneConstraint(c))
			continue
		}
		mergeInto(&res.Constraints[at], c, res)
	}
	return res
}

// orderCandidates returns a sorted copy, most specific scope first.
// Priority breaks ties within a scope rank; rule id and input position make
// the order total.
func orderCandidates(candidates []types.NormalizedConstraint) []types.NormalizedConstraint {
	type indexed struct {
		c   types.NormalizedConstraint
		pos int
	}
	tmp := make([]indexed, len(candidates))
	for i, c := range candidates {
		tmp[i] = indexed{c: c, pos: i}
	}
	sort.SliceStable(tmp, func(i, j int) bool {
		a, b := tmp[i], tmp[j]
		if ra, rb := a.c.ScopeType.Rank(), b.c.ScopeType.Rank(); ra != rb {
			return ra > rb
		}
		if a.c.Priority != b.c.Priority {
			return a.c.Priority > b.c.Priority
		}
		if a.c.RuleID != b.c.RuleID {
			return a.c.RuleID < b.c.RuleID
		}
		return a.pos < b.pos
	})
	out := make([]types.NormalizedConstraint, len(tmp))
	for i, v := range tmp {
		out[i] = v.c
	}
	return out
}

// mergeKey identifies the obligation an entry binds. Entries with the same
// key describe the same obligation and collapse to a single survivor.
func mergeKey(c types.NormalizedConstraint) string {
	return fmt.Sprintf("%s|%s|%s", c.Category, c.Name, c.ShiftCode)
}

// mergeInto folds a later candidate onto the selected entry for its key.
// Guarded hard bounds keep whichever bound is stricter and record the
// dropped weaker bound; soft duplicates keep the maximum weight.
func mergeInto(selected *types.NormalizedConstraint, dup types.NormalizedConstraint, res *Result) {
	if selected.Category != "hard" {
		if dup.Weight > selected.Weight {
			selected.Weight = dup.Weight
		}
		return
	}

	g, guarded := guardedBounds[selected.Name]
	if !guarded {
		return // replacement merge: the selected candidate stands
	}
	cur, curOK := boundValue(selected, g)
	next, nextOK := boundValue(&dup, g)
	if !curOK || !nextOK {
		return
	}
	switch {
	case stricter(next, cur, g.minLike):
		// The selected rule's bound would relax a contributor's stricter
		// bound; clamp and attribute the relaxation to the selected rule.
		res.Conflicts = append(res.Conflicts, types.ConflictRecord{
			RuleID: selected.RuleID,
			Name:   selected.Name,
			Message: fmt.Sprintf("%s bound %d from scope %s relaxes bound %d from rule %s, clamped to %d",
				selected.Name, cur, selected.ScopeType, next, dup.RuleID, next),
		})
		setBoundValue(selected, g, next)
	case stricter(cur, next, g.minLike):
		res.Conflicts = append(res.Conflicts, types.ConflictRecord{
			RuleID: dup.RuleID,
			Name:   dup.Name,
			Message: fmt.Sprintf("%s bound %d from scope %s is weaker than selected bound %d, stricter bound kept",
				dup.Name, next, dup.ScopeType, cur),
		})
	}
}

// stricter reports whether a binds tighter than b under the bound's
// direction.
func stricter(a, b int, minLike bool) bool {
	if minLike {
		return a > b
	}
	return a < b
}

func boundValue(c *types.NormalizedConstraint, g bound) (int, bool) {
	for _, key := range g.keys {
		if _, present := c.Params[key]; present {
			v := c.IntParam(key, -1)
			if v >= 0 {
				return v, true
			}
		}
	}
	return 0, false
}

func setBoundValue(c *types.NormalizedConstraint, g bound, v int) {
	for _, key := range g.keys {
		if _, present := c.Params[key]; present {
			c.Params[key] = v
			return
		}
	}
	c.Params[g.keys[0]] = v
}

func cloneConstraint(c types.NormalizedConstraint) types.NormalizedConstraint {
	params := make(map[string]any, len(c.Params))
	for k, v := range c.Params {
		params[k] = v
	}
	c.Params = params
	return c
}
