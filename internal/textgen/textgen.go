// Package textgen converts between natural-language rule text and the rule
// DSL. The Canned implementation is fully local and deterministic, so the
// authoring flow works with no external language model configured.
package textgen

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/wardroster/wardroster/internal/dsl"
	"github.com/wardroster/wardroster/internal/types"
)

// Translator converts rule text in both directions. ToDSL streams tokens
// through emit as they are produced and returns the final document;
// Summarize renders a one-paragraph description of a DSL document.
type Translator interface {
	ToDSL(ctx context.Context, nlText string, scope types.ScopeType, emit func(token string)) (string, error)
	Summarize(ctx context.Context, dslText string) (string, error)
}

// Canned is the built-in deterministic translator. ToDSL emits a coverage
// rule template seeded from the request text; Summarize compiles the
// document and describes its entries.
type Canned struct{}

// ToDSL produces a coverage-rule document. The shift code and required
// count are guessed from keywords and the first number in the text; the
// same input always yields the same document.
func (Canned) ToDSL(ctx context.Context, nlText string, scope types.ScopeType, emit func(token string)) (string, error) {
	if !scope.Valid() {
		scope = types.ScopeGlobal
	}
	shift := guessShift(nlText)
	required := firstNumber(nlText, 2)

	doc := fmt.Sprintf(`dsl_version: "%s"
id: "GEN_COVERAGE_%s"
name: "coverage on shift %s"
scope:
  type: %s
type: HARD
priority: 50
enabled: true
constraints:
  - name: coverage_required
    params:
      shift_code: "%s"
      required: %d
    for_each: days
`, dsl.DefaultDSLVersion, shift, shift, scope, shift, required)

	if emit != nil {
		for _, line := range strings.SplitAfter(doc, "\n") {
			if line == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return "", err
			}
			emit(line)
		}
	}
	return doc, nil
}

// Summarize renders a plain-language description of a DSL document from
// its compiled entries. Invalid documents summarize to their first issue.
func (Canned) Summarize(ctx context.Context, dslText string) (string, error) {
	res := dsl.Compile(ctx, dslText, nil, nil)
	if !res.OK {
		return fmt.Sprintf("This rule does not validate: %s", res.Issues[0]), nil
	}
	if len(res.Constraints) == 0 {
		return "This rule declares no constraints or objectives.", nil
	}
	parts := make([]string, 0, len(res.Constraints))
	for _, c := range res.Constraints {
		parts = append(parts, describe(c))
	}
	scope := "all staff"
	switch res.ScopeType {
	case types.ScopeHospital:
		scope = "this hospital"
	case types.ScopeDepartment:
		scope = fmt.Sprintf("department %s", res.ScopeID)
	case types.ScopeNurse:
		scope = fmt.Sprintf("nurse %s", res.ScopeID)
	}
	return fmt.Sprintf("For %s: %s.", scope, strings.Join(parts, "; ")), nil
}

func describe(c types.NormalizedConstraint) string {
	switch c.Name {
	case "coverage_required", "daily_coverage":
		return fmt.Sprintf("shift %s needs at least %d staff per day",
			c.ShiftCode, c.IntParam("required", c.IntParam("min", 1)))
	case "max_consecutive_work_days", "max_consecutive":
		return fmt.Sprintf("at most %d consecutive work days", c.IntParam("max_days", c.IntParam("max", 5)))
	case "rest_after_shift", "rest_after_night":
		return fmt.Sprintf("rest required after shift %s", firstNonEmpty(c.StringParam("after", ""), c.ShiftCode, "N"))
	case "prefer_shift":
		return fmt.Sprintf("prefers shift %s (weight %d)", c.ShiftCode, c.Weight)
	case "avoid_shift", "avoid":
		return fmt.Sprintf("avoids shift %s (weight %d)", c.ShiftCode, c.Weight)
	case "unavailable_dates":
		return fmt.Sprintf("unavailable on %s", strings.Join(c.StringsParam("dates"), ", "))
	default:
		return fmt.Sprintf("%s constraint %s", c.Category, c.Name)
	}
}

// guessShift maps shift keywords to the default catalog codes.
func guessShift(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "night") || strings.Contains(lower, "夜"):
		return "N"
	case strings.Contains(lower, "evening") || strings.Contains(lower, "小夜"):
		return "E"
	default:
		return "D"
	}
}

// firstNumber extracts the first integer in the text, def when none.
func firstNumber(text string, def int) int {
	start := -1
	for i, r := range text {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if n, err := strconv.Atoi(text[start:i]); err == nil {
				return n
			}
			start = -1
		}
	}
	if start >= 0 {
		if n, err := strconv.Atoi(text[start:]); err == nil {
			return n
		}
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
