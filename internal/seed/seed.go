// Package seed provisions the regulatory and facility rule baseline from
// embedded YAML templates. Seeding is idempotent: a template whose document
// id already exists in the project is skipped, so re-runs never duplicate
// rules and operator edits to non-law rules survive.
package seed

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wardroster/wardroster/internal/dsl"
	"github.com/wardroster/wardroster/internal/types"
)

//go:embed rules/*.yaml
var ruleTemplates embed.FS

// Store is the persistence surface seeding needs.
type Store interface {
	dsl.Catalog

	Departments(ctx context.Context) ([]types.Department, error)
	ListRules(ctx context.Context, projectID string) ([]types.Rule, error)
	CreateRule(ctx context.Context, r *types.Rule, status types.ValidationStatus, report types.JSONMap) (*types.RuleVersion, error)
}

// template is one entry of an embedded rule file. DEPARTMENT-scoped law
// templates render once per active department through the
// {department_code} placeholder; hospital templates render through
// {hospital_id}.
type template struct {
	Title       string `yaml:"title"`
	ScopeType   string `yaml:"scope_type"`
	Priority    int    `yaml:"priority"`
	DSLTemplate string `yaml:"dsl_template"`
}

type templateFile struct {
	Rules []template `yaml:"rules"`
}

// spec is one fully rendered rule ready for insertion.
type spec struct {
	title     string
	scopeType types.ScopeType
	scopeID   string
	priority  int
	dslText   string
}

// Apply provisions law and hospital rules for the project, skipping every
// template whose document id is already present. Returns the created rules.
func Apply(ctx context.Context, st Store, projectID, hospitalID string, log *zap.Logger) ([]types.Rule, error) {
	if log == nil {
		log = zap.NewNop()
	}

	existing, err := st.ListRules(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list existing rules: %w", err)
	}
	known := map[string]bool{}
	for _, r := range existing {
		if id := dsl.DocumentID(r.DSLText); id != "" {
			known[id] = true
		}
	}

	departments, err := st.Departments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}

	specs, err := lawSpecs(departments)
	if err != nil {
		return nil, err
	}
	hospital, err := hospitalSpecs(hospitalID)
	if err != nil {
		return nil, err
	}
	specs = append(specs, hospital...)

	var created []types.Rule
	for _, sp := range specs {
		docID := dsl.DocumentID(sp.dslText)
		if docID == "" {
			return nil, fmt.Errorf("seed template %q renders without a document id", sp.title)
		}
		if known[docID] {
			continue
		}
		res := dsl.Compile(ctx, sp.dslText, nil, st)
		now := time.Now().UTC()
		rule := types.Rule{
			ID:        types.NewRuleID(),
			ProjectID: projectID,
			Title:     sp.title,
			DSLText:   sp.dslText,
			ScopeType: sp.scopeType,
			ScopeID:   sp.scopeID,
			RuleType:  types.RuleHard,
			Priority:  sp.priority,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := st.CreateRule(ctx, &rule, statusOf(res), res.Report()); err != nil {
			return nil, fmt.Errorf("seed rule %s: %w", docID, err)
		}
		known[docID] = true
		created = append(created, rule)
		log.Info("rule seeded",
			zap.String("doc_id", docID),
			zap.String("scope", string(sp.scopeType)),
			zap.Bool("ok", res.OK))
	}
	return created, nil
}

// lawSpecs renders the law templates: department-scoped templates once per
// active department, everything else once.
func lawSpecs(departments []types.Department) ([]spec, error) {
	templates, err := loadTemplates("rules/law_rules.yaml")
	if err != nil {
		return nil, err
	}
	var specs []spec
	for _, t := range templates {
		scopeType := types.ScopeType(strings.ToUpper(strings.TrimSpace(t.ScopeType)))
		if scopeType == "" {
			scopeType = types.ScopeGlobal
		}
		if scopeType == types.ScopeDepartment {
			for _, dep := range departments {
				specs = append(specs, spec{
					title:     t.Title,
					scopeType: scopeType,
					scopeID:   dep.Code,
					priority:  t.Priority,
					dslText:   render(t.DSLTemplate, "{department_code}", dep.Code),
				})
			}
			continue
		}
		if !scopeType.Valid() {
			scopeType = types.ScopeGlobal
		}
		specs = append(specs, spec{
			title:     t.Title,
			scopeType: scopeType,
			priority:  t.Priority,
			dslText:   strings.TrimSpace(t.DSLTemplate) + "\n",
		})
	}
	return specs, nil
}

// hospitalSpecs renders the facility hard rules for one hospital.
func hospitalSpecs(hospitalID string) ([]spec, error) {
	templates, err := loadTemplates("rules/hospital_rules.yaml")
	if err != nil {
		return nil, err
	}
	var specs []spec
	for _, t := range templates {
		specs = append(specs, spec{
			title:     t.Title,
			scopeType: types.ScopeHospital,
			scopeID:   hospitalID,
			priority:  t.Priority,
			dslText:   render(t.DSLTemplate, "{hospital_id}", hospitalID),
		})
	}
	return specs, nil
}

func loadTemplates(path string) ([]template, error) {
	raw, err := ruleTemplates.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return file.Rules, nil
}

func render(tmpl, placeholder, value string) string {
	return strings.TrimSpace(strings.ReplaceAll(tmpl, placeholder, value)) + "\n"
}

func statusOf(res *dsl.Result) types.ValidationStatus {
	switch {
	case !res.OK:
		return types.ValidationFail
	case len(res.Warnings) > 0:
		return types.ValidationWarn
	default:
		return types.ValidationPass
	}
}
