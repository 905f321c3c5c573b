package types

import "time"

/*
 * Domain records for the rule pipeline.
 *
 * Rule/RuleVersion are the persisted authoring model; NormalizedConstraint
 * is the ephemeral compiler output consumed by the resolver and the model
 * builder; RuleBundle/RuleBundleItem are the immutable composed artifact a
 * scheduling period runs against.
 *
 * Immutability contract: RuleVersion rows are never mutated after creation;
 * RuleBundle rows are only superseded, never edited. Law-tagged rules
 * (DSL tags contain "law") reject user edits and deletes at the store
 * boundary.
 */

// Rule is one authored scheduling rule. DSLText holds the current document;
// every edit snapshots a new RuleVersion.
type Rule struct {
	ID        RuleID    `db:"rule_id" json:"rule_id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	Title     string    `db:"title" json:"title"`
	NLText    string    `db:"nl_text" json:"nl_text"`
	DSLText   string    `db:"dsl_text" json:"dsl_text"`
	ScopeType ScopeType `db:"scope_type" json:"scope_type"`
	ScopeID   string    `db:"scope_id" json:"scope_id,omitempty"`
	RuleType  RuleType  `db:"rule_type" json:"rule_type"`
	Priority  int       `db:"priority" json:"priority"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	Deleted   bool      `db:"deleted" json:"deleted"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RuleVersion is an immutable DSL snapshot of a rule.
type RuleVersion struct {
	ID               RuleVersionID    `db:"rule_version_id" json:"rule_version_id"`
	RuleID           RuleID           `db:"rule_id" json:"rule_id"`
	Version          int              `db:"version" json:"version"`
	NLText           string           `db:"nl_text" json:"nl_text"`
	DSLText          string           `db:"dsl_text" json:"dsl_text"`
	ValidationStatus ValidationStatus `db:"validation_status" json:"validation_status"`
	ValidationReport JSONMap          `db:"validation_report" json:"validation_report"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// NormalizedConstraint is one compiled constraint or objective entry.
// Ephemeral: produced by the DSL compiler, merged by the resolver, consumed
// by the model builder; never persisted.
type NormalizedConstraint struct {
	Name      string         `json:"name"`
	Category  string         `json:"category"` // "hard" | "soft" | "preference"
	ScopeType ScopeType      `json:"scope_type"`
	ScopeID   string         `json:"scope_id,omitempty"`
	Priority  int            `json:"priority"`
	ShiftCode string         `json:"shift_code,omitempty"`
	Weight    int            `json:"weight,omitempty"`
	Params    map[string]any `json:"params"`
	RuleID    RuleID         `json:"rule_id,omitempty"`
}

// Param returns a named parameter, nil when absent.
func (c *NormalizedConstraint) Param(key string) any {
	if c.Params == nil {
		return nil
	}
	return c.Params[key]
}

// IntParam coerces a parameter to int, returning def when absent or
// non-numeric. YAML decoding yields int, float64, or string forms.
func (c *NormalizedConstraint) IntParam(key string, def int) int {
	switch v := c.Param(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// StringParam coerces a parameter to a trimmed string, def when absent.
func (c *NormalizedConstraint) StringParam(key, def string) string {
	if s, ok := c.Param(key).(string); ok && s != "" {
		return s
	}
	return def
}

// StringsParam coerces a parameter to a string slice, dropping non-strings.
func (c *NormalizedConstraint) StringsParam(key string) []string {
	raw, ok := c.Param(key).([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// BoolParam coerces a parameter to bool, def when absent.
func (c *NormalizedConstraint) BoolParam(key string, def bool) bool {
	if b, ok := c.Param(key).(bool); ok {
		return b
	}
	return def
}

// ConflictRecord documents one rejected weaker bound during rule merging.
type ConflictRecord struct {
	RuleID  RuleID `json:"rule_id,omitempty"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// RuleBundle is the immutable, content-hashed composition of resolved rule
// versions for one scheduling period.
type RuleBundle struct {
	ID               BundleID         `db:"bundle_id" json:"bundle_id"`
	ProjectID        string           `db:"project_id" json:"project_id"`
	PeriodID         PeriodID         `db:"period_id" json:"period_id"`
	HospitalID       string           `db:"hospital_id" json:"hospital_id,omitempty"`
	DepartmentID     string           `db:"department_id" json:"department_id,omitempty"`
	Name             string           `db:"name" json:"name"`
	SHA256           string           `db:"bundle_sha256" json:"bundle_sha256"`
	SourceConfig     JSONMap          `db:"source_config" json:"source_config"`
	ValidationStatus ValidationStatus `db:"validation_status" json:"validation_status"`
	ValidationReport JSONMap          `db:"validation_report" json:"validation_report"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// RuleBundleItem is one rule version's membership in a bundle, with
// priority/enabled snapshotted at composition time.
type RuleBundleItem struct {
	BundleID      BundleID      `db:"bundle_id" json:"bundle_id"`
	Layer         BundleLayer   `db:"layer" json:"layer"`
	RuleID        RuleID        `db:"rule_id" json:"rule_id"`
	RuleVersionID RuleVersionID `db:"rule_version_id" json:"rule_version_id"`
	DSLSHA256     string        `db:"dsl_sha256" json:"dsl_sha256"`
	RuleType      RuleType      `db:"rule_type" json:"rule_type"`
	Priority      int           `db:"priority_at_time" json:"priority_at_time"`
	Enabled       bool          `db:"enabled_at_time" json:"enabled_at_time"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}
