// Package types provides domain models shared across wardroster components.
//
// Zero-logic design: this package holds enums, identifiers, and records that
// flow between the DSL compiler, the rule resolver, the bundle composer, the
// model builder, and the job orchestrator. ID utilities in ids.go import uuid
// but are isolated so most of the package stays dependency-free.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ScopeType is the applicability breadth of a rule, from widest to narrowest.
type ScopeType string

const (
	ScopeGlobal     ScopeType = "GLOBAL"
	ScopeHospital   ScopeType = "HOSPITAL"
	ScopeDepartment ScopeType = "DEPARTMENT"
	ScopeNurse      ScopeType = "NURSE"
)

// Rank orders scopes by specificity: NURSE > DEPARTMENT > HOSPITAL > GLOBAL.
// Unknown scopes rank as GLOBAL so malformed input can never outrank a
// legitimate narrow rule.
func (s ScopeType) Rank() int {
	switch s {
	case ScopeNurse:
		return 3
	case ScopeDepartment:
		return 2
	case ScopeHospital:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the four known scope types.
func (s ScopeType) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeHospital, ScopeDepartment, ScopeNurse:
		return true
	}
	return false
}

// RuleType classifies how a rule binds the schedule.
type RuleType string

const (
	RuleHard       RuleType = "HARD"       // must hold in any valid schedule
	RuleSoft       RuleType = "SOFT"       // penalized when violated
	RulePreference RuleType = "PREFERENCE" // per-person soft preference
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleHard, RuleSoft, RulePreference:
		return true
	}
	return false
}

// ValidationStatus is the outcome of validating a rule version or bundle.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "PENDING"
	ValidationPass    ValidationStatus = "PASS"
	ValidationWarn    ValidationStatus = "WARN"
	ValidationFail    ValidationStatus = "FAIL"
)

// JobStatus is the optimization job state machine.
// Legal forward path: QUEUED -> COMPILING -> SOLVING -> PERSISTING -> SUCCEEDED.
// FAILED is reachable from the three running states, CANCELED from any
// non-terminal state. Terminal states never change again.
type JobStatus string

const (
	JobQueued     JobStatus = "QUEUED"
	JobCompiling  JobStatus = "COMPILING"
	JobSolving    JobStatus = "SOLVING"
	JobPersisting JobStatus = "PERSISTING"
	JobSucceeded  JobStatus = "SUCCEEDED"
	JobFailed     JobStatus = "FAILED"
	JobCanceled   JobStatus = "CANCELED"
)

// Terminal reports whether the status can never change again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCanceled:
		return true
	}
	return false
}

// BundleLayer tags a rule's membership layer inside a rule bundle.
type BundleLayer string

const (
	LayerLaw       BundleLayer = "LAW"
	LayerHospital  BundleLayer = "HOSPITAL"
	LayerTemplate  BundleLayer = "TEMPLATE"
	LayerNursePref BundleLayer = "NURSE_PREF"
)

// NursePrefCloneMode selects how NURSE_PREF items are carried over from a
// prior period when composing a bundle.
type NursePrefCloneMode string

const (
	// CloneAsIs pins the exact rule version the prior bundle used.
	CloneAsIs NursePrefCloneMode = "CLONE_AS_IS"
	// CloneLatestVersion re-resolves each rule to its current latest version.
	CloneLatestVersion NursePrefCloneMode = "CLONE_LATEST_VERSION"
)

// Date is a calendar day in ISO "2006-01-02" form. Day granularity is the
// unit of scheduling; string form keeps sqlite and postgres storage uniform.
type Date string

// ParseDate validates ISO form and returns the Date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(s), nil
}

// DateOf truncates a time to its calendar day.
func DateOf(t time.Time) Date {
	return Date(t.Format("2006-01-02"))
}

// Time returns the midnight UTC time of the day. Zero time for invalid dates;
// horizons are built from ParseDate/DateOf so that does not occur in practice.
func (d Date) Time() time.Time {
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Weekday returns the day of week.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// AddDays returns the day n days later.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// JSONMap is a JSON object column. Stored as TEXT in both sqlite and
// postgres; nil marshals as the empty object so reports are never SQL NULL.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
}
