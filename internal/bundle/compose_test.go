package bundle

import (
	"context"
	"errors"
	"testing"

	"github.com/wardroster/wardroster/internal/types"
)

// fakeStore is an in-memory Store for composition tests.
type fakeStore struct {
	periods   map[types.PeriodID]*types.SchedulePeriod
	rules     map[types.RuleID]*types.Rule
	versions  map[types.RuleVersionID]*types.RuleVersion
	latest    map[types.RuleID]*types.RuleVersion
	bundles   map[types.BundleID]*types.RuleBundle
	items     map[types.BundleID][]types.RuleBundleItem
	active    map[types.PeriodID]types.BundleID
	templates map[string][]types.RuleID
	nursePref []types.Rule

	created []types.RuleVersionID // versions synthesized during composition
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		periods:   map[types.PeriodID]*types.SchedulePeriod{},
		rules:     map[types.RuleID]*types.Rule{},
		versions:  map[types.RuleVersionID]*types.RuleVersion{},
		latest:    map[types.RuleID]*types.RuleVersion{},
		bundles:   map[types.BundleID]*types.RuleBundle{},
		items:     map[types.BundleID][]types.RuleBundleItem{},
		active:    map[types.PeriodID]types.BundleID{},
		templates: map[string][]types.RuleID{},
	}
}

func (f *fakeStore) addRule(r types.Rule, withVersion bool) {
	f.rules[r.ID] = &r
	if withVersion {
		v := &types.RuleVersion{
			ID:               types.NewRuleVersionID(),
			RuleID:           r.ID,
			Version:          1,
			DSLText:          r.DSLText,
			ValidationStatus: types.ValidationPass,
		}
		f.versions[v.ID] = v
		f.latest[r.ID] = v
	}
}

func (f *fakeStore) ActiveShiftCodes(ctx context.Context) ([]string, error) {
	return []string{"D", "E", "N"}, nil
}
func (f *fakeStore) DepartmentExists(ctx context.Context, code string) (bool, error) {
	return true, nil
}
func (f *fakeStore) NurseExists(ctx context.Context, staffNo string) (bool, error) {
	return true, nil
}

func (f *fakeStore) Period(ctx context.Context, id types.PeriodID) (*types.SchedulePeriod, error) {
	p, ok := f.periods[id]
	if !ok {
		return nil, types.ErrPeriodNotFound
	}
	return p, nil
}

func (f *fakeStore) Rule(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	r, ok := f.rules[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) LawRules(ctx context.Context, projectID string) ([]types.Rule, error) {
	var out []types.Rule
	for _, r := range f.rules {
		if r.ProjectID == projectID && isLaw(r.DSLText) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) HospitalRules(ctx context.Context, projectID, hospitalID string) ([]types.Rule, error) {
	var out []types.Rule
	for _, r := range f.rules {
		if r.ProjectID != projectID || isLaw(r.DSLText) {
			continue
		}
		if r.ScopeType == types.ScopeGlobal || r.ScopeType == types.ScopeHospital {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) TemplateRules(ctx context.Context, templateID string) ([]types.Rule, error) {
	var out []types.Rule
	for _, id := range f.templates[templateID] {
		out = append(out, *f.rules[id])
	}
	return out, nil
}

func (f *fakeStore) NursePrefRules(ctx context.Context, projectID, departmentID string) ([]types.Rule, error) {
	return f.nursePref, nil
}

func (f *fakeStore) LatestVersion(ctx context.Context, ruleID types.RuleID) (*types.RuleVersion, error) {
	v, ok := f.latest[ruleID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) VersionByID(ctx context.Context, id types.RuleVersionID) (*types.RuleVersion, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) CreateVersion(ctx context.Context, v *types.RuleVersion) error {
	f.versions[v.ID] = v
	f.latest[v.RuleID] = v
	f.created = append(f.created, v.ID)
	return nil
}

func (f *fakeStore) ActiveBundle(ctx context.Context, periodID types.PeriodID) (*types.RuleBundle, []types.RuleBundleItem, error) {
	id, ok := f.active[periodID]
	if !ok {
		return nil, nil, types.ErrNotFound
	}
	return f.bundles[id], f.items[id], nil
}

func (f *fakeStore) SaveBundle(ctx context.Context, b *types.RuleBundle, items []types.RuleBundleItem) error {
	f.bundles[b.ID] = b
	f.items[b.ID] = items
	return nil
}

func (f *fakeStore) BundleByID(ctx context.Context, id types.BundleID) (*types.RuleBundle, []types.RuleBundleItem, error) {
	b, ok := f.bundles[id]
	if !ok {
		return nil, nil, types.ErrNotFound
	}
	return b, f.items[id], nil
}

func (f *fakeStore) ActivateBundle(ctx context.Context, periodID types.PeriodID, bundleID types.BundleID) error {
	f.active[periodID] = bundleID
	return nil
}

func (f *fakeStore) SnapshotAssignments(ctx context.Context, periodID types.PeriodID, name string) (*types.AssignmentSnapshot, error) {
	return &types.AssignmentSnapshot{ID: types.NewSnapshotID(), PeriodID: periodID, Name: name}, nil
}

func isLaw(text string) bool {
	return len(text) > 0 && text[0] == '#' // law docs in tests start with a marker comment
}

const lawDSL = `# law
dsl_version: "1.0"
id: "LAW_MAX_RUN"
name: "max consecutive work days"
tags: [law]
type: HARD
priority: 100
enabled: false
constraints:
  - name: max_consecutive_work_days
    params:
      max_days: 5
`

const hospitalDSL = `
dsl_version: "1.0"
id: "HOSP_COVERAGE"
name: "night coverage"
type: HARD
priority: 50
enabled: true
constraints:
  - name: coverage_required
    params:
      shift_code: "N"
      required: 2
`

const prefDSL = `
dsl_version: "1.0"
id: "PREF_AVOID_N"
name: "avoid nights"
type: PREFERENCE
priority: 10
enabled: true
objectives:
  - name: avoid_shift
    weight: 200
    params:
      shift_code: "N"
`

func seededStore() (*fakeStore, types.PeriodID) {
	f := newFakeStore()
	periodID := types.NewPeriodID()
	f.periods[periodID] = &types.SchedulePeriod{
		ID: periodID, ProjectID: "p1", StartDate: "2026-09-01", EndDate: "2026-09-28",
	}

	law := types.Rule{ID: "law1", ProjectID: "p1", DSLText: lawDSL,
		ScopeType: types.ScopeGlobal, RuleType: types.RuleHard, Priority: 100, Enabled: false}
	hosp := types.Rule{ID: "hosp1", ProjectID: "p1", DSLText: hospitalDSL,
		ScopeType: types.ScopeGlobal, RuleType: types.RuleHard, Priority: 50, Enabled: true}
	pref := types.Rule{ID: "pref1", ProjectID: "p1", DSLText: prefDSL,
		ScopeType: types.ScopeNurse, ScopeID: "N001", RuleType: types.RulePreference, Priority: 10, Enabled: true}

	f.addRule(law, true)
	f.addRule(hosp, true)
	f.addRule(pref, true)
	f.nursePref = []types.Rule{pref}
	return f, periodID
}

func TestCompose_Layers(t *testing.T) {
	f, periodID := seededStore()
	composer := New(f, nil)

	b, items, err := composer.Compose(context.Background(), Input{
		ProjectID: "p1", PeriodID: periodID,
	})
	if err != nil {
		t.Fatalf("Compose() error = %v, want nil", err)
	}

	byLayer := map[types.BundleLayer]int{}
	for _, it := range items {
		byLayer[it.Layer]++
	}
	if byLayer[types.LayerLaw] != 1 {
		t.Errorf("LAW items = %v, want 1 (disabled law rule still included)", byLayer[types.LayerLaw])
	}
	if byLayer[types.LayerHospital] != 1 {
		t.Errorf("HOSPITAL items = %v, want 1", byLayer[types.LayerHospital])
	}
	if byLayer[types.LayerNursePref] != 1 {
		t.Errorf("NURSE_PREF items = %v, want 1", byLayer[types.LayerNursePref])
	}
	if b.SHA256 == "" || len(b.SHA256) != 64 {
		t.Errorf("SHA256 = %q, want 64 hex chars", b.SHA256)
	}
	if b.ValidationStatus != types.ValidationPass {
		t.Errorf("ValidationStatus = %v, want PASS (report %v)", b.ValidationStatus, b.ValidationReport)
	}
}

func TestCompose_EmptyBundle(t *testing.T) {
	f := newFakeStore()
	periodID := types.NewPeriodID()
	f.periods[periodID] = &types.SchedulePeriod{ID: periodID, ProjectID: "p1",
		StartDate: "2026-09-01", EndDate: "2026-09-28"}

	_, _, err := New(f, nil).Compose(context.Background(), Input{ProjectID: "p1", PeriodID: periodID})
	if !errors.Is(err, types.ErrEmptyBundle) {
		t.Errorf("Compose() error = %v, want ErrEmptyBundle", err)
	}
}

func TestCompose_MissingPeriod(t *testing.T) {
	f := newFakeStore()
	_, _, err := New(f, nil).Compose(context.Background(), Input{ProjectID: "p1", PeriodID: "nope"})
	if !errors.Is(err, types.ErrPeriodNotFound) {
		t.Errorf("Compose() error = %v, want ErrPeriodNotFound", err)
	}
}

func TestCompose_SynthesizesMissingVersion(t *testing.T) {
	f, periodID := seededStore()
	// A rule that predates versioning: no RuleVersion rows yet
	unversioned := types.Rule{ID: "old1", ProjectID: "p1", DSLText: hospitalDSL,
		ScopeType: types.ScopeGlobal, RuleType: types.RuleHard, Priority: 1, Enabled: true}
	f.addRule(unversioned, false)

	_, items, err := New(f, nil).Compose(context.Background(), Input{ProjectID: "p1", PeriodID: periodID})
	if err != nil {
		t.Fatalf("Compose() error = %v, want nil", err)
	}
	if len(f.created) != 1 {
		t.Fatalf("synthesized versions = %v, want 1", len(f.created))
	}
	v := f.versions[f.created[0]]
	if v.RuleID != "old1" || v.ValidationStatus != types.ValidationPending {
		t.Errorf("synthesized version = %+v, want rule old1 with PENDING status", v)
	}
	found := false
	for _, it := range items {
		if it.RuleID == "old1" && it.RuleVersionID == v.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("bundle items missing the synthesized version")
	}
}

func TestCompose_CloneModes(t *testing.T) {
	f, priorPeriod := seededStore()
	composer := New(f, nil)

	prior, _, err := composer.Compose(context.Background(), Input{ProjectID: "p1", PeriodID: priorPeriod})
	if err != nil {
		t.Fatalf("Compose(prior) error = %v", err)
	}
	if err := f.ActivateBundle(context.Background(), priorPeriod, prior.ID); err != nil {
		t.Fatal(err)
	}

	pinnedVersion := f.latest["pref1"].ID

	// The preference rule gains a new version after the prior bundle
	newV := &types.RuleVersion{ID: types.NewRuleVersionID(), RuleID: "pref1", Version: 2, DSLText: prefDSL}
	f.versions[newV.ID] = newV
	f.latest["pref1"] = newV

	nextPeriod := types.NewPeriodID()
	f.periods[nextPeriod] = &types.SchedulePeriod{ID: nextPeriod, ProjectID: "p1",
		StartDate: "2026-10-01", EndDate: "2026-10-28"}

	tests := []struct {
		name        string
		mode        types.NursePrefCloneMode
		wantVersion types.RuleVersionID
	}{
		{"as is pins the prior version", types.CloneAsIs, pinnedVersion},
		{"latest re-resolves", types.CloneLatestVersion, newV.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, items, err := composer.Compose(context.Background(), Input{
				ProjectID: "p1", PeriodID: nextPeriod,
				ClonePeriodID: priorPeriod, CloneMode: tt.mode,
			})
			if err != nil {
				t.Fatalf("Compose() error = %v", err)
			}
			for _, it := range items {
				if it.Layer == types.LayerNursePref {
					if it.RuleVersionID != tt.wantVersion {
						t.Errorf("cloned version = %v, want %v", it.RuleVersionID, tt.wantVersion)
					}
				}
			}
		})
	}
}

func TestComposer_Resolve(t *testing.T) {
	f, periodID := seededStore()
	composer := New(f, nil)

	b, _, err := composer.Compose(context.Background(), Input{ProjectID: "p1", PeriodID: periodID})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	merged, err := composer.Resolve(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	names := map[string]bool{}
	for _, c := range merged.Constraints {
		names[c.Name] = true
	}
	// Disabled law rule still contributes its constraint
	if !names["max_consecutive_work_days"] {
		t.Errorf("merged set missing law constraint, got %v", names)
	}
	if !names["coverage_required"] || !names["avoid_shift"] {
		t.Errorf("merged set incomplete: %v", names)
	}
}

func TestComposer_Activate(t *testing.T) {
	f, periodID := seededStore()
	composer := New(f, nil)

	b, _, err := composer.Compose(context.Background(), Input{ProjectID: "p1", PeriodID: periodID})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if err := composer.Activate(context.Background(), periodID, b.ID, "go-live", false); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if f.active[periodID] != b.ID {
		t.Errorf("active bundle = %v, want %v", f.active[periodID], b.ID)
	}

	if err := composer.Activate(context.Background(), periodID, "missing", "", false); err == nil {
		t.Errorf("Activate() with unknown bundle = nil error, want error")
	}
}
