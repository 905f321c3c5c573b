// Package dsl compiles rule specification documents into normalized
// constraint and objective records.
//
// Compilation workflow:
//  1. Decode the YAML/JSON document (yaml.v3; JSON is a YAML subset)
//  2. Detect the legacy bare-constraints dialect and upgrade it once,
//     inheriting scope/type/priority from the owning rule
//  3. Validate header fields, version compatibility, and section/type match
//  4. Validate each entry against the fixed registries, scan where
//     expressions, bound objective weights
//  5. Check referential integrity against the active catalog when supplied
//
// The compiler is a pure function plus read-only catalog lookups. Schema
// problems are returned as structured issues/warnings, never as errors;
// ok is false iff issues is non-empty.
package dsl

// DefaultDSLVersion is the version stamped on synthesized and upgraded
// documents. compatibleMajor gates acceptance: other 1.x minors warn,
// anything else is an issue.
const (
	DefaultDSLVersion = "1.0"
	compatibleMajor   = "1."
)

// Objective weight bounds. Weights sum into one scalar objective; the upper
// bound keeps a single runaway preference from drowning fairness terms.
const (
	WeightMin = 0
	WeightMax = 100000
)

// LawTag marks a regulatory rule inside the DSL tags array. Law rules are
// immutable to users and always included in the LAW bundle layer.
const LawTag = "law"

// constraintNames is the closed hard-constraint vocabulary. An entry name
// outside this set (plus legacyConstraintNames) is a hard issue.
var constraintNames = map[string]bool{
	"one_shift_per_day":                     true,
	"coverage_required":                     true,
	"max_consecutive_work_days":             true,
	"max_consecutive_shift":                 true,
	"forbid_transition":                     true,
	"rest_after_shift":                      true,
	"max_assignments_in_window":             true,
	"max_work_days_in_rolling_window":       true,
	"unavailable_dates":                     true,
	"skill_coverage":                        true,
	"if_novice_present_then_senior_present": true,
	"max_consecutive_same_shift":            true,
	"min_consecutive_off_days":              true,
	"weekend_all_or_nothing":                true,
	"min_full_weekends_off_in_window":       true,
}

// legacyConstraintNames are accepted for documents written against the
// schema-light dialect; the model builder maps them onto current semantics.
var legacyConstraintNames = map[string]bool{
	"daily_coverage":         true,
	"max_consecutive":        true,
	"prefer_off_after_night": true,
	"rest_after_night":       true,
}

// objectiveNames is the closed soft/preference vocabulary.
var objectiveNames = map[string]bool{
	"balance_shift_count":             true,
	"balance_weekend_shift_count":     true,
	"penalize_transition":             true,
	"prefer_off_on_weekends":          true,
	"prefer_shift":                    true,
	"avoid_shift":                     true,
	"avoid":                           true,
	"penalize_single_off_day":         true,
	"penalize_consecutive_same_shift": true,
}

// allowedWhereFunctions are roster/date helpers usable in where filters.
// They resolve from master data alone, so entries remain compilable into a
// fixed solver model.
var allowedWhereFunctions = map[string]bool{
	"dept":         true,
	"job_level":    true,
	"has_skill":    true,
	"in_group":     true,
	"date":         true,
	"days_between": true,
	"is_weekend":   true,
	"dow":          true,
	"rolling_days": true,
}

// forbiddenWhereFunctions depend on the solved assignment itself and cannot
// be statically compiled; their presence is a hard issue.
var forbiddenWhereFunctions = map[string]bool{
	"assigned":        true,
	"assigned_any":    true,
	"count_assigned":  true,
	"count_work_days": true,
	"shift_of":        true,
}

// supportedForEach is the iterator vocabulary; rolling_days(N) is accepted
// as a parameterized form.
var supportedForEach = map[string]bool{
	"nurses": true,
	"days":   true,
	"shifts": true,
}

// legacyParamKeys are entry-level keys the bare-constraints dialect placed
// beside name instead of under params; the upgrade stage folds them in.
var legacyParamKeys = []string{
	"shift", "shift_code", "shift_codes",
	"min", "max", "max_days", "required",
	"off_code", "weight",
}
