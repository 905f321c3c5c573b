package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/wardroster/wardroster/internal/dsl"
	"github.com/wardroster/wardroster/internal/types"
)

type fakeStore struct {
	departments []types.Department
	rules       []types.Rule
	statuses    map[string]types.ValidationStatus
}

func newFakeStore(deps ...string) *fakeStore {
	f := &fakeStore{statuses: map[string]types.ValidationStatus{}}
	for _, d := range deps {
		f.departments = append(f.departments, types.Department{Code: d, Name: d, Active: true})
	}
	return f
}

func (f *fakeStore) ActiveShiftCodes(ctx context.Context) ([]string, error) {
	return []string{"D", "E", "N"}, nil
}

func (f *fakeStore) DepartmentExists(ctx context.Context, code string) (bool, error) {
	for _, d := range f.departments {
		if d.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) NurseExists(ctx context.Context, staffNo string) (bool, error) {
	return false, nil
}

func (f *fakeStore) Departments(ctx context.Context) ([]types.Department, error) {
	return f.departments, nil
}

func (f *fakeStore) ListRules(ctx context.Context, projectID string) ([]types.Rule, error) {
	var out []types.Rule
	for _, r := range f.rules {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateRule(ctx context.Context, r *types.Rule, status types.ValidationStatus, report types.JSONMap) (*types.RuleVersion, error) {
	f.rules = append(f.rules, *r)
	f.statuses[dsl.DocumentID(r.DSLText)] = status
	return &types.RuleVersion{RuleID: r.ID, Version: 1, DSLText: r.DSLText, ValidationStatus: status}, nil
}

func TestApply_CreatesBaseline(t *testing.T) {
	st := newFakeStore("ICU", "ER")
	created, err := Apply(context.Background(), st, "proj-1", "hosp-1", nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Three global law rules, one department law rule per department,
	// two hospital rules.
	if got, want := len(created), 7; got != want {
		t.Fatalf("created %d rules, want %d", got, want)
	}

	byID := map[string]types.Rule{}
	for _, r := range created {
		byID[dsl.DocumentID(r.DSLText)] = r
	}

	for _, docID := range []string{"LAW_NIGHT_COVERAGE_ICU", "LAW_NIGHT_COVERAGE_ER"} {
		r, ok := byID[docID]
		if !ok {
			t.Fatalf("missing department rule %s", docID)
		}
		if r.ScopeType != types.ScopeDepartment {
			t.Errorf("%s scope type = %s, want DEPARTMENT", docID, r.ScopeType)
		}
		if got, want := r.ScopeID, strings.TrimPrefix(docID, "LAW_NIGHT_COVERAGE_"); got != want {
			t.Errorf("%s scope id = %s, want %s", docID, got, want)
		}
	}
	for _, docID := range []string{"HOSP_DAY_COVERAGE_hosp-1", "HOSP_NOVICE_SENIOR_hosp-1"} {
		r, ok := byID[docID]
		if !ok {
			t.Fatalf("missing hospital rule %s", docID)
		}
		if r.ScopeType != types.ScopeHospital || r.ScopeID != "hosp-1" {
			t.Errorf("%s scope = %s/%s, want HOSPITAL/hosp-1", docID, r.ScopeType, r.ScopeID)
		}
	}

	for docID, r := range byID {
		if !r.Enabled || r.RuleType != types.RuleHard {
			t.Errorf("%s enabled=%v type=%s, want enabled HARD", docID, r.Enabled, r.RuleType)
		}
		if got := st.statuses[docID]; got != types.ValidationPass {
			t.Errorf("%s validation status = %s, want PASS", docID, got)
		}
		isLaw := strings.HasPrefix(docID, "LAW_")
		if dsl.IsLawDocument(r.DSLText) != isLaw {
			t.Errorf("%s law tag = %v, want %v", docID, !isLaw, isLaw)
		}
	}
}

func TestApply_Idempotent(t *testing.T) {
	st := newFakeStore("ICU")
	first, err := Apply(context.Background(), st, "proj-1", "hosp-1", nil)
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("first Apply created nothing")
	}

	second, err := Apply(context.Background(), st, "proj-1", "hosp-1", nil)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second Apply created %d rules, want 0", len(second))
	}
	if got, want := len(st.rules), len(first); got != want {
		t.Fatalf("store holds %d rules after re-run, want %d", got, want)
	}
}

func TestApply_SkipsOnlyExistingDocuments(t *testing.T) {
	st := newFakeStore("ICU")
	if _, err := Apply(context.Background(), st, "proj-1", "hosp-1", nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	before := len(st.rules)

	// A new department makes exactly one more template render.
	st.departments = append(st.departments, types.Department{Code: "ER", Name: "ER", Active: true})
	created, err := Apply(context.Background(), st, "proj-1", "hosp-1", nil)
	if err != nil {
		t.Fatalf("Apply after new department: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d rules, want 1", len(created))
	}
	if got := dsl.DocumentID(created[0].DSLText); got != "LAW_NIGHT_COVERAGE_ER" {
		t.Errorf("created doc id = %s, want LAW_NIGHT_COVERAGE_ER", got)
	}
	if got, want := len(st.rules), before+1; got != want {
		t.Fatalf("store holds %d rules, want %d", got, want)
	}
}
