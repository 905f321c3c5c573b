// Package bundle composes immutable, content-hashed rule bundles for
// scheduling periods and resolves them into merged constraint sets.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wardroster/wardroster/internal/dsl"
	"github.com/wardroster/wardroster/internal/resolve"
	"github.com/wardroster/wardroster/internal/types"
)

/*
 * Composition workflow:
 *  1. Load the target period; collect candidate rules per layer
 *     (LAW, HOSPITAL, TEMPLATE, NURSE_PREF)
 *  2. Resolve each rule to a version, synthesizing a PENDING version for
 *     rules that predate versioning
 *  3. Re-validate every item through the compiler and run one resolver
 *     pass so conflicts are visible at composition time, not solve time
 *  4. Hash the sorted item lines and persist bundle + items atomically
 *
 * Law rules join the LAW layer even when disabled; disabling a regulatory
 * rule must not silently drop it from the record of what was composed.
 */

// Store is the persistence surface composition needs.
type Store interface {
	dsl.Catalog

	Period(ctx context.Context, id types.PeriodID) (*types.SchedulePeriod, error)
	Rule(ctx context.Context, id types.RuleID) (*types.Rule, error)
	LawRules(ctx context.Context, projectID string) ([]types.Rule, error)
	HospitalRules(ctx context.Context, projectID, hospitalID string) ([]types.Rule, error)
	TemplateRules(ctx context.Context, templateID string) ([]types.Rule, error)
	NursePrefRules(ctx context.Context, projectID, departmentID string) ([]types.Rule, error)

	LatestVersion(ctx context.Context, ruleID types.RuleID) (*types.RuleVersion, error)
	VersionByID(ctx context.Context, id types.RuleVersionID) (*types.RuleVersion, error)
	CreateVersion(ctx context.Context, v *types.RuleVersion) error

	ActiveBundle(ctx context.Context, periodID types.PeriodID) (*types.RuleBundle, []types.RuleBundleItem, error)
	SaveBundle(ctx context.Context, b *types.RuleBundle, items []types.RuleBundleItem) error
	BundleByID(ctx context.Context, id types.BundleID) (*types.RuleBundle, []types.RuleBundleItem, error)
	ActivateBundle(ctx context.Context, periodID types.PeriodID, bundleID types.BundleID) error
	SnapshotAssignments(ctx context.Context, periodID types.PeriodID, name string) (*types.AssignmentSnapshot, error)
}

// Composer builds and resolves rule bundles.
type Composer struct {
	store Store
	log   *zap.Logger
}

// New returns a Composer. A nil logger disables logging.
func New(store Store, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{store: store, log: log}
}

// Input selects the rules a bundle is composed from. ClonePeriodID with a
// clone mode carries NURSE_PREF items over from that period's active
// bundle; otherwise the department's nurse-scope rules are used directly.
type Input struct {
	ProjectID     string
	PeriodID      types.PeriodID
	HospitalID    string
	DepartmentID  string
	TemplateID    string
	Name          string
	ClonePeriodID types.PeriodID
	CloneMode     types.NursePrefCloneMode
}

// Compose builds, validates, hashes, and persists a bundle for the period.
func (c *Composer) Compose(ctx context.Context, in Input) (*types.RuleBundle, []types.RuleBundleItem, error) {
	period, err := c.store.Period(ctx, in.PeriodID)
	if err != nil {
		return nil, nil, fmt.Errorf("load period %s: %w", in.PeriodID, err)
	}
	if in.HospitalID == "" {
		in.HospitalID = period.HospitalID
	}
	if in.DepartmentID == "" {
		in.DepartmentID = period.DepartmentID
	}

	bundleID := types.NewBundleID()
	var items []types.RuleBundleItem

	add := func(layer types.BundleLayer, rules []types.Rule) error {
		for _, r := range rules {
			v, err := c.ensureVersion(ctx, &r)
			if err != nil {
				return err
			}
			items = append(items, types.RuleBundleItem{
				BundleID:      bundleID,
				Layer:         layer,
				RuleID:        r.ID,
				RuleVersionID: v.ID,
				DSLSHA256:     DSLSHA256(v.DSLText),
				RuleType:      r.RuleType,
				Priority:      r.Priority,
				Enabled:       r.Enabled,
				CreatedAt:     time.Now().UTC(),
			})
		}
		return nil
	}

	laws, err := c.store.LawRules(ctx, in.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("collect law rules: %w", err)
	}
	if err := add(types.LayerLaw, laws); err != nil {
		return nil, nil, err
	}

	hospital, err := c.store.HospitalRules(ctx, in.ProjectID, in.HospitalID)
	if err != nil {
		return nil, nil, fmt.Errorf("collect hospital rules: %w", err)
	}
	if err := add(types.LayerHospital, onlyEnabled(hospital)); err != nil {
		return nil, nil, err
	}

	if in.TemplateID != "" {
		tmpl, err := c.store.TemplateRules(ctx, in.TemplateID)
		if err != nil {
			return nil, nil, fmt.Errorf("collect template rules: %w", err)
		}
		if err := add(types.LayerTemplate, onlyEnabled(tmpl)); err != nil {
			return nil, nil, err
		}
	}

	prefItems, err := c.nursePrefItems(ctx, in, bundleID)
	if err != nil {
		return nil, nil, err
	}
	items = append(items, prefItems...)

	if len(items) == 0 {
		return nil, nil, types.ErrEmptyBundle
	}

	bundle := &types.RuleBundle{
		ID:           bundleID,
		ProjectID:    in.ProjectID,
		PeriodID:     in.PeriodID,
		HospitalID:   in.HospitalID,
		DepartmentID: in.DepartmentID,
		Name:         in.Name,
		SHA256:       Hash(items),
		SourceConfig: types.JSONMap{
			"template_id":     in.TemplateID,
			"clone_period_id": string(in.ClonePeriodID),
			"clone_mode":      string(in.CloneMode),
		},
		CreatedAt: time.Now().UTC(),
	}
	bundle.ValidationStatus, bundle.ValidationReport = c.validate(ctx, items)

	if err := c.store.SaveBundle(ctx, bundle, items); err != nil {
		return nil, nil, fmt.Errorf("persist bundle: %w", err)
	}
	c.log.Info("bundle composed",
		zap.String("bundle_id", string(bundle.ID)),
		zap.String("period_id", string(in.PeriodID)),
		zap.Int("items", len(items)),
		zap.String("status", string(bundle.ValidationStatus)),
		zap.String("sha256", bundle.SHA256))
	return bundle, items, nil
}

// nursePrefItems builds the NURSE_PREF layer, honoring the clone modes.
func (c *Composer) nursePrefItems(ctx context.Context, in Input, bundleID types.BundleID) ([]types.RuleBundleItem, error) {
	if in.ClonePeriodID == "" {
		rules, err := c.store.NursePrefRules(ctx, in.ProjectID, in.DepartmentID)
		if err != nil {
			return nil, fmt.Errorf("collect nurse preferences: %w", err)
		}
		var items []types.RuleBundleItem
		for _, r := range onlyEnabled(rules) {
			v, err := c.ensureVersion(ctx, &r)
			if err != nil {
				return nil, err
			}
			items = append(items, types.RuleBundleItem{
				BundleID: bundleID, Layer: types.LayerNursePref,
				RuleID: r.ID, RuleVersionID: v.ID, DSLSHA256: DSLSHA256(v.DSLText),
				RuleType: r.RuleType, Priority: r.Priority, Enabled: r.Enabled,
				CreatedAt: time.Now().UTC(),
			})
		}
		return items, nil
	}

	_, prior, err := c.store.ActiveBundle(ctx, in.ClonePeriodID)
	if err != nil {
		return nil, fmt.Errorf("load prior bundle for period %s: %w", in.ClonePeriodID, err)
	}
	var items []types.RuleBundleItem
	for _, it := range prior {
		if it.Layer != types.LayerNursePref {
			continue
		}
		clone := it
		clone.BundleID = bundleID
		clone.CreatedAt = time.Now().UTC()
		if in.CloneMode == types.CloneLatestVersion {
			v, err := c.store.LatestVersion(ctx, it.RuleID)
			if err != nil {
				return nil, fmt.Errorf("re-resolve rule %s: %w", it.RuleID, err)
			}
			clone.RuleVersionID = v.ID
			clone.DSLSHA256 = DSLSHA256(v.DSLText)
		}
		items = append(items, clone)
	}
	return items, nil
}

// ensureVersion returns the rule's latest version, synthesizing a PENDING
// one from the current DSL text for rules that predate versioning.
func (c *Composer) ensureVersion(ctx context.Context, r *types.Rule) (*types.RuleVersion, error) {
	v, err := c.store.LatestVersion(ctx, r.ID)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("load latest version of %s: %w", r.ID, err)
	}
	v = &types.RuleVersion{
		ID:               types.NewRuleVersionID(),
		RuleID:           r.ID,
		Version:          1,
		NLText:           r.NLText,
		DSLText:          r.DSLText,
		ValidationStatus: types.ValidationPending,
		ValidationReport: types.JSONMap{"note": "synthesized at composition from unversioned rule"},
		CreatedAt:        time.Now().UTC(),
	}
	if err := c.store.CreateVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("synthesize version for %s: %w", r.ID, err)
	}
	c.log.Debug("synthesized pending version", zap.String("rule_id", string(r.ID)))
	return v, nil
}

// validate recompiles every item and runs one resolver pass. FAIL when any
// item has hard issues, WARN on warnings or merge conflicts, PASS otherwise.
func (c *Composer) validate(ctx context.Context, items []types.RuleBundleItem) (types.ValidationStatus, types.JSONMap) {
	status := types.ValidationPass
	perItem := make([]types.JSONMap, 0, len(items))
	var candidates []types.NormalizedConstraint

	for _, it := range items {
		v, err := c.store.VersionByID(ctx, it.RuleVersionID)
		if err != nil {
			status = types.ValidationFail
			perItem = append(perItem, types.JSONMap{
				"rule_id": string(it.RuleID), "ok": false,
				"issues": []string{fmt.Sprintf("rule version unavailable: %v", err)},
			})
			continue
		}
		rule, _ := c.store.Rule(ctx, it.RuleID)
		res := dsl.Compile(ctx, v.DSLText, rule, c.store)
		perItem = append(perItem, types.JSONMap{
			"rule_id": string(it.RuleID), "ok": res.OK,
			"issues": res.Issues, "warnings": res.Warnings,
		})
		if !res.OK {
			status = types.ValidationFail
		} else if len(res.Warnings) > 0 && status == types.ValidationPass {
			status = types.ValidationWarn
		}
		if it.Enabled || it.Layer == types.LayerLaw {
			candidates = append(candidates, res.Constraints...)
		}
	}

	merged := resolve.Merge(candidates)
	if len(merged.Conflicts) > 0 && status == types.ValidationPass {
		status = types.ValidationWarn
	}
	return status, types.JSONMap{
		"items":     perItem,
		"conflicts": merged.Conflicts,
	}
}

// Resolve loads a bundle and returns its merged constraint set. Disabled
// items are excluded except on the LAW layer.
func (c *Composer) Resolve(ctx context.Context, bundleID types.BundleID) (*resolve.Result, error) {
	_, items, err := c.store.BundleByID(ctx, bundleID)
	if err != nil {
		return nil, fmt.Errorf("load bundle %s: %w", bundleID, err)
	}
	var candidates []types.NormalizedConstraint
	for _, it := range items {
		if !it.Enabled && it.Layer != types.LayerLaw {
			continue
		}
		v, err := c.store.VersionByID(ctx, it.RuleVersionID)
		if err != nil {
			return nil, fmt.Errorf("load version %s: %w", it.RuleVersionID, err)
		}
		rule, _ := c.store.Rule(ctx, it.RuleID)
		res := dsl.Compile(ctx, v.DSLText, rule, c.store)
		if !res.OK {
			return nil, types.NewJobError(types.FailValidation,
				fmt.Sprintf("rule %s fails validation", it.RuleID),
				types.JSONMap{"issues": res.Issues})
		}
		candidates = append(candidates, res.Constraints...)
	}
	return resolve.Merge(candidates), nil
}

// Activate points the period at the bundle. With snapshot set, the period's
// current assignments are captured first as an audit trail.
func (c *Composer) Activate(ctx context.Context, periodID types.PeriodID, bundleID types.BundleID, label string, snapshot bool) error {
	if _, _, err := c.store.BundleByID(ctx, bundleID); err != nil {
		return fmt.Errorf("load bundle %s: %w", bundleID, err)
	}
	if snapshot {
		name := label
		if name == "" {
			name = fmt.Sprintf("pre-activation %s", bundleID)
		}
		if _, err := c.store.SnapshotAssignments(ctx, periodID, name); err != nil {
			return fmt.Errorf("snapshot before activation: %w", err)
		}
	}
	if err := c.store.ActivateBundle(ctx, periodID, bundleID); err != nil {
		return fmt.Errorf("activate bundle: %w", err)
	}
	c.log.Info("bundle activated",
		zap.String("period_id", string(periodID)),
		zap.String("bundle_id", string(bundleID)))
	return nil
}

func onlyEnabled(rules []types.Rule) []types.Rule {
	out := rules[:0:0]
	for _, r := range rules {
		if r.Enabled && !r.Deleted {
			out = append(out, r)
		}
	}
	return out
}
