package dsl

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wardroster/wardroster/internal/types"
)

// document is the decoded DSL object. Fields stay loosely typed (any) so
// the validator can report wrong-type problems as issues instead of losing
// the whole document to a decode error.
type document map[string]any

// decodeDocument parses DSL text into a document. A nil document with
// issues means the text was not a usable object at all.
func decodeDocument(text string) (document, []string) {
	var root any
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return nil, []string{fmt.Sprintf("DSL parse failure: %v", err)}
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, []string{"DSL root must be a YAML/JSON object"}
	}
	return document(obj), nil
}

// isLegacy reports whether the document is the schema-light dialect: no
// dsl_version tag, just a bare constraints array.
func (d document) isLegacy() bool {
	if _, ok := d["dsl_version"]; ok {
		return false
	}
	switch d["constraints"].(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

// upgradeLegacy lifts a bare-constraints document to the current schema in
// one pure pass, inheriting scope/type/priority/enabled from the owning
// rule. Entry-level legacy param keys are folded under params later, during
// entry extraction, so the validator itself stays dialect-free.
func (d document) upgradeLegacy(rule *types.Rule) document {
	scopeType, scopeID := types.ScopeGlobal, ""
	ruleType := types.RuleHard
	priority, enabled := 0, true
	docID := "LEGACY_RULE"
	if rule != nil {
		scopeType, scopeID = rule.ScopeType, rule.ScopeID
		ruleType = rule.RuleType
		priority, enabled = rule.Priority, rule.Enabled
		if rule.ID != "" {
			docID = string(rule.ID)
		}
	}

	out := document{
		"dsl_version": DefaultDSLVersion,
		"id":          stringOr(d["id"], docID),
		"name":        stringOr(firstNonNil(d["name"], d["description"]), "unnamed rule"),
		"scope":       d["scope"],
		"type":        firstNonNil(d["type"], string(ruleType)),
		"priority":    firstNonNil(d["priority"], priority),
		"enabled":     firstNonNil(d["enabled"], enabled),
		"tags":        firstNonNil(d["tags"], []any{}),
		"notes":       stringOr(firstNonNil(d["notes"], d["description"]), ""),
		"constraints": firstNonNil(d["constraints"], []any{}),
		"objectives":  firstNonNil(d["objectives"], []any{}),
	}
	if out["scope"] == nil {
		out["scope"] = map[string]any{"type": string(scopeType), "id": scopeID}
	}
	return out
}

// entries returns the section's items as a flat list, accepting a single
// object where a list is expected.
func (d document) entries(section string) []any {
	switch v := d[section].(type) {
	case []any:
		return v
	case map[string]any:
		return []any{v}
	default:
		return nil
	}
}

// tags returns the string tags, dropping non-strings silently; the
// validator reports the type problem separately.
func (d document) tags() []string {
	raw, ok := d["tags"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// IsLawDocument reports whether the DSL text carries the law tag. Parse
// failures report false; an unparseable rule cannot claim regulatory
// protection.
func IsLawDocument(text string) bool {
	doc, issues := decodeDocument(text)
	if issues != nil || doc == nil {
		return false
	}
	for _, tag := range doc.tags() {
		if strings.EqualFold(tag, LawTag) {
			return true
		}
	}
	return false
}

// DocumentID extracts the document's declared id, empty when absent or
// unparseable. Used for idempotent law-rule seeding.
func DocumentID(text string) string {
	doc, issues := decodeDocument(text)
	if issues != nil || doc == nil {
		return ""
	}
	s, _ := doc["id"].(string)
	return s
}

func firstNonNil(vals ...any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	if v != nil {
		if s := fmt.Sprintf("%v", v); s != "" {
			return s
		}
	}
	return def
}
