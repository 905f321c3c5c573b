package types

import "time"

// Roster and calendar records. Master-data CRUD is owned by external
// collaborators; the core reads these through catalog lookups and writes
// only assignments and snapshots.

// Nurse is one schedulable staff member.
type Nurse struct {
	StaffNo        string    `db:"staff_no" json:"staff_no"`
	Name           string    `db:"name" json:"name"`
	DepartmentCode string    `db:"department_code" json:"department_code"`
	JobLevelCode   string    `db:"job_level_code" json:"job_level_code"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ShiftCode is one entry of the shift-code catalog. The off code takes part
// in the decision domain like any working shift.
type ShiftCode struct {
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Department is a facility sub-unit referenced by DEPARTMENT-scoped rules.
type Department struct {
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SchedulePeriod is one calendar horizon rules and jobs are scoped to.
type SchedulePeriod struct {
	ID             PeriodID  `db:"period_id" json:"period_id"`
	ProjectID      string    `db:"project_id" json:"project_id"`
	Name           string    `db:"name" json:"name"`
	StartDate      Date      `db:"start_date" json:"start_date"`
	EndDate        Date      `db:"end_date" json:"end_date"`
	HospitalID     string    `db:"hospital_id" json:"hospital_id,omitempty"`
	DepartmentID   string    `db:"department_id" json:"department_id,omitempty"`
	ActiveBundleID BundleID  `db:"active_bundle_id" json:"active_bundle_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Days expands the period into its ordered day horizon (inclusive ends).
func (p *SchedulePeriod) Days() []Date {
	start, end := p.StartDate.Time(), p.EndDate.Time()
	if start.IsZero() || end.Before(start) {
		return nil
	}
	var days []Date
	for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
		days = append(days, DateOf(t))
	}
	return days
}

// Assignment is one cell of the live per-day-per-staff assignment table.
type Assignment struct {
	PeriodID  PeriodID  `db:"period_id" json:"period_id"`
	Day       Date      `db:"day" json:"day"`
	StaffNo   string    `db:"staff_no" json:"staff_no"`
	ShiftCode string    `db:"shift_code" json:"shift_code"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AssignmentSnapshot is an immutable capture of a period's assignment table.
// Used both as a job's result artifact and as a pre-write rollback point.
type AssignmentSnapshot struct {
	ID          SnapshotID   `db:"snapshot_id" json:"snapshot_id"`
	PeriodID    PeriodID     `db:"period_id" json:"period_id"`
	Name        string       `db:"name" json:"name"`
	Assignments []Assignment `db:"-" json:"assignments"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// Template is a named preset of rule inclusions for the TEMPLATE layer.
type Template struct {
	ID           string    `db:"template_id" json:"template_id"`
	Name         string    `db:"name" json:"name"`
	HospitalID   string    `db:"hospital_id" json:"hospital_id,omitempty"`
	DepartmentID string    `db:"department_id" json:"department_id,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
