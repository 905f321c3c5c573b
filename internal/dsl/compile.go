package dsl

import (
	"context"
	"fmt"
	"strings"

	"github.com/wardroster/wardroster/internal/types"
)

// Catalog provides the read-only master-data lookups referential checks
// need. A nil Catalog skips those checks; everything else still validates.
type Catalog interface {
	// ActiveShiftCodes returns the active shift-code catalog, or an empty
	// slice when the catalog is not yet populated.
	ActiveShiftCodes(ctx context.Context) ([]string, error)
	// DepartmentExists resolves a DEPARTMENT scope id.
	DepartmentExists(ctx context.Context, code string) (bool, error)
	// NurseExists resolves a NURSE scope id (staff number).
	NurseExists(ctx context.Context, staffNo string) (bool, error)
}

// Result is the compiler output. OK is false iff Issues is non-empty;
// warnings never block.
type Result struct {
	OK          bool                         `json:"ok"`
	DSLVersion  string                       `json:"dsl_version"`
	ScopeType   types.ScopeType              `json:"scope_type"`
	ScopeID     string                       `json:"scope_id,omitempty"`
	Issues      []string                     `json:"issues"`
	Warnings    []string                     `json:"warnings"`
	Constraints []types.NormalizedConstraint `json:"normalized_constraints"`
}

// Report renders the result as a JSON-ready map for persistence on rule
// versions and bundles.
func (r *Result) Report() types.JSONMap {
	return types.JSONMap{
		"ok":       r.OK,
		"issues":   r.Issues,
		"warnings": r.Warnings,
	}
}

// Compile parses and validates one rule's DSL text, returning normalized
// constraint/objective records. rule supplies defaults and legacy
// inheritance and may be nil; cat enables referential checks and may be nil.
func Compile(ctx context.Context, text string, rule *types.Rule, cat Catalog) *Result {
	res := &Result{Issues: []string{}, Warnings: []string{}, Constraints: []types.NormalizedConstraint{}}

	doc, parseIssues := decodeDocument(text)
	if parseIssues != nil || doc == nil {
		res.Issues = append(res.Issues, parseIssues...)
		return res
	}

	legacy := doc.isLegacy()
	if legacy {
		doc = doc.upgradeLegacy(rule)
	}

	res.DSLVersion = validateVersion(doc, &res.Issues, &res.Warnings)
	validateHeader(doc, &res.Issues)

	ruleType := parseRuleType(doc, rule, &res.Issues)
	res.ScopeType, res.ScopeID = parseScope(doc, rule, &res.Warnings)
	priority := parsePriority(doc, &res.Issues)

	var ruleID types.RuleID
	if rule != nil {
		ruleID = rule.ID
	}
	res.Constraints = extractEntries(doc, entryContext{
		ruleType:  ruleType,
		scopeType: res.ScopeType,
		scopeID:   res.ScopeID,
		priority:  priority,
		ruleID:    ruleID,
		legacy:    legacy,
	}, &res.Issues, &res.Warnings)

	if cat != nil {
		checkReferences(ctx, cat, res)
	}

	res.OK = len(res.Issues) == 0
	return res
}

func validateVersion(doc document, issues, warnings *[]string) string {
	raw, ok := doc["dsl_version"]
	if !ok || raw == nil {
		*issues = append(*issues, "dsl_version is required")
		return DefaultDSLVersion
	}
	version, ok := raw.(string)
	if !ok {
		*issues = append(*issues, "dsl_version must be a string")
		return fmt.Sprintf("%v", raw)
	}
	switch {
	case !strings.HasPrefix(version, compatibleMajor):
		*issues = append(*issues, fmt.Sprintf("dsl_version %s is not compatible with %sx", version, compatibleMajor))
	case version != DefaultDSLVersion:
		*warnings = append(*warnings, fmt.Sprintf("dsl_version %s is untested, prefer %s", version, DefaultDSLVersion))
	}
	return version
}

func validateHeader(doc document, issues *[]string) {
	if s, ok := doc["id"].(string); !ok || s == "" {
		*issues = append(*issues, "id must be a non-empty string")
	}
	if s, ok := doc["name"].(string); !ok || s == "" {
		*issues = append(*issues, "name must be a non-empty string")
	}
	switch v := doc["enabled"]; v.(type) {
	case bool:
	case nil:
		*issues = append(*issues, "enabled is required")
	default:
		_ = v
		*issues = append(*issues, "enabled must be a boolean")
	}
	if raw, ok := doc["tags"]; ok && raw != nil {
		list, isList := raw.([]any)
		if !isList {
			*issues = append(*issues, "tags must be a string array")
		} else {
			for _, t := range list {
				if _, isStr := t.(string); !isStr {
					*issues = append(*issues, "tags must be a string array")
					break
				}
			}
		}
	}
	if raw, ok := doc["notes"]; ok && raw != nil {
		if _, isStr := raw.(string); !isStr {
			*issues = append(*issues, "notes must be a string")
		}
	}
}

func parseRuleType(doc document, rule *types.Rule, issues *[]string) types.RuleType {
	raw := doc["type"]
	if raw == nil && rule != nil {
		return rule.RuleType
	}
	rt := types.RuleType(strings.ToUpper(stringOr(raw, string(types.RuleHard))))
	if !rt.Valid() {
		*issues = append(*issues, fmt.Sprintf("type %v is not supported", raw))
		return types.RuleHard
	}
	return rt
}

func parseScope(doc document, rule *types.Rule, warnings *[]string) (types.ScopeType, string) {
	scopeObj, _ := doc["scope"].(map[string]any)

	rawType := scopeObj["type"]
	if rawType == nil && rule != nil {
		rawType = string(rule.ScopeType)
	}
	scopeType := types.ScopeType(strings.ToUpper(stringOr(rawType, string(types.ScopeGlobal))))
	if !scopeType.Valid() {
		*warnings = append(*warnings, fmt.Sprintf("unknown scope type %v, using GLOBAL", rawType))
		scopeType = types.ScopeGlobal
	}

	scopeID := ""
	if v := scopeObj["id"]; v != nil {
		scopeID = stringOr(v, "")
	} else if rule != nil {
		scopeID = rule.ScopeID
	}
	return scopeType, scopeID
}

func parsePriority(doc document, issues *[]string) int {
	raw, ok := doc["priority"]
	if !ok || raw == nil {
		*issues = append(*issues, "priority is required")
		return 0
	}
	p, ok := asInt(raw)
	if !ok {
		*issues = append(*issues, "priority must be an integer")
		return 0
	}
	if p < 0 {
		*issues = append(*issues, "priority must be a non-negative integer")
	}
	return p
}

type entryContext struct {
	ruleType  types.RuleType
	scopeType types.ScopeType
	scopeID   string
	priority  int
	ruleID    types.RuleID
	legacy    bool
}

// extractEntries walks the section matching the rule type and normalizes
// each entry. Exactly one section may be populated per type; the other's
// presence warns, absence of the matching one is an issue. The legacy
// dialect always reads constraints regardless of type.
func extractEntries(doc document, ec entryContext, issues, warnings *[]string) []types.NormalizedConstraint {
	rawConstraints := doc.entries("constraints")
	rawObjectives := doc.entries("objectives")

	if !ec.legacy {
		if ec.ruleType == types.RuleHard && len(rawConstraints) == 0 {
			*issues = append(*issues, "type=HARD requires a non-empty constraints section")
		}
		if ec.ruleType != types.RuleHard && len(rawObjectives) == 0 {
			*issues = append(*issues, "type=SOFT/PREFERENCE requires a non-empty objectives section")
		}
		if ec.ruleType == types.RuleHard && len(rawObjectives) > 0 {
			*warnings = append(*warnings, "type=HARD ignores the objectives section")
		}
		if ec.ruleType != types.RuleHard && len(rawConstraints) > 0 {
			*warnings = append(*warnings, "type=SOFT/PREFERENCE ignores the constraints section")
		}
	}

	section, items := "objectives", rawObjectives
	if ec.legacy || ec.ruleType == types.RuleHard {
		section, items = "constraints", rawConstraints
	}

	out := make([]types.NormalizedConstraint, 0, len(items))
	for idx, raw := range items {
		entry, ok := raw.(map[string]any)
		if !ok {
			*issues = append(*issues, fmt.Sprintf("%s[%d] must be an object", section, idx))
			continue
		}
		if nc, ok := normalizeEntry(section, idx, entry, ec, issues, warnings); ok {
			out = append(out, nc)
		}
	}
	return out
}

func normalizeEntry(section string, idx int, entry map[string]any, ec entryContext, issues, warnings *[]string) (types.NormalizedConstraint, bool) {
	name := strings.TrimSpace(stringOr(entry["name"], ""))
	if name == "" {
		*issues = append(*issues, fmt.Sprintf("%s[%d] is missing name", section, idx))
		return types.NormalizedConstraint{}, false
	}
	if section == "constraints" && !constraintNames[name] && !legacyConstraintNames[name] {
		*issues = append(*issues, fmt.Sprintf("%s[%d] has unsupported constraint name %s", section, idx, name))
	}
	if section == "objectives" && !objectiveNames[name] {
		*issues = append(*issues, fmt.Sprintf("%s[%d] has unsupported objective name %s", section, idx, name))
	}

	params := map[string]any{}
	switch v := entry["params"].(type) {
	case nil:
	case map[string]any:
		for k, val := range v {
			params[k] = val
		}
	default:
		*issues = append(*issues, fmt.Sprintf("%s[%d].params must be an object", section, idx))
	}

	validateForEach(entry["for_each"], fmt.Sprintf("%s[%d].for_each", section, idx), issues)
	scanWhere(entry["where"], fmt.Sprintf("%s[%d].where", section, idx), issues, warnings)

	weight := 0
	if section == "objectives" {
		raw, ok := entry["weight"]
		if !ok || raw == nil {
			*issues = append(*issues, fmt.Sprintf("%s[%d] requires weight", section, idx))
		} else if w, numeric := asInt(raw); !numeric {
			*issues = append(*issues, fmt.Sprintf("%s[%d] weight must be numeric", section, idx))
		} else if w < WeightMin || w > WeightMax {
			*issues = append(*issues, fmt.Sprintf("%s[%d] weight must be within %d-%d, got %d", section, idx, WeightMin, WeightMax, w))
		} else {
			weight = w
		}
	}

	// Legacy dialect placed params beside name; fold them in without
	// overwriting explicit params.
	if ec.legacy {
		for _, key := range legacyParamKeys {
			if v, ok := entry[key]; ok {
				if _, exists := params[key]; !exists {
					params[key] = v
				}
			}
		}
	}
	params["for_each"] = entry["for_each"]
	params["where"] = entry["where"]
	params["message"] = entry["message"]

	return types.NormalizedConstraint{
		Name:      name,
		Category:  strings.ToLower(string(ec.ruleType)),
		ScopeType: ec.scopeType,
		ScopeID:   ec.scopeID,
		Priority:  ec.priority,
		ShiftCode: primaryShiftCode(params),
		Weight:    weight,
		Params:    params,
		RuleID:    ec.ruleID,
	}, true
}

func validateForEach(value any, path string, issues *[]string) {
	if value == nil {
		return
	}
	s, ok := value.(string)
	if !ok {
		*issues = append(*issues, fmt.Sprintf("%s must be an iterator string", path))
		return
	}
	lower := strings.ToLower(strings.TrimSpace(s))
	if supportedForEach[lower] {
		return
	}
	if strings.HasPrefix(lower, "rolling_days(") && strings.HasSuffix(lower, ")") {
		return
	}
	*issues = append(*issues, fmt.Sprintf("%s has unsupported iterator %s, use nurses/days/shifts/rolling_days(...)", path, s))
}

// primaryShiftCode picks the entry's principal shift code: shift_code,
// then shift, then the first element of shift_codes.
func primaryShiftCode(params map[string]any) string {
	for _, key := range []string{"shift_code", "shift"} {
		if s, ok := params[key].(string); ok {
			if t := strings.TrimSpace(s); t != "" {
				return t
			}
		}
	}
	if list, ok := params["shift_codes"].([]any); ok && len(list) > 0 {
		if s, ok := list[0].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// checkReferences verifies shift codes and scope ids against master data.
// An empty shift-code catalog skips shift checks (bootstrap-friendly); the
// off code is always considered present alongside an active catalog.
func checkReferences(ctx context.Context, cat Catalog, res *Result) {
	codes, err := cat.ActiveShiftCodes(ctx)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("shift-code catalog unavailable: %v", err))
		codes = nil
	}
	if len(codes) > 0 {
		known := map[string]bool{"OFF": true}
		for _, c := range codes {
			known[c] = true
		}
		for _, c := range res.Constraints {
			if c.ShiftCode != "" && !known[c.ShiftCode] {
				res.Issues = append(res.Issues, fmt.Sprintf("%s references unknown shift code %s", c.Name, c.ShiftCode))
			}
			if list, ok := c.Params["shift_codes"].([]any); ok {
				for _, v := range list {
					if s, ok := v.(string); ok && s != "" && !known[s] {
						res.Issues = append(res.Issues, fmt.Sprintf("%s references unknown shift code %s", c.Name, s))
					}
				}
			}
			if off, ok := c.Params["off_code"].(string); ok && off != "" && !known[off] {
				res.Issues = append(res.Issues, fmt.Sprintf("%s references unknown shift code %s", c.Name, off))
			}
		}
	}

	switch res.ScopeType {
	case types.ScopeDepartment:
		if res.ScopeID != "" {
			if ok, err := cat.DepartmentExists(ctx, res.ScopeID); err == nil && !ok {
				res.Issues = append(res.Issues, fmt.Sprintf("scope.id=%s does not resolve to a department", res.ScopeID))
			}
		}
	case types.ScopeNurse:
		if res.ScopeID != "" {
			if ok, err := cat.NurseExists(ctx, res.ScopeID); err == nil && !ok {
				res.Issues = append(res.Issues, fmt.Sprintf("scope.id=%s does not resolve to a nurse", res.ScopeID))
			}
		}
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
