package types

import (
	"github.com/google/uuid"
)

// Typed UUIDv7 identifiers. Time-ordered IDs keep sequential inserts
// clustered in B-tree pages; string aliases give type safety with plain
// JSON/SQL string serialization.

// RuleID identifies a rule master record.
type RuleID string

// RuleVersionID identifies one immutable DSL snapshot of a rule.
type RuleVersionID string

// BundleID identifies a composed rule bundle.
type BundleID string

// JobID identifies an optimization job.
type JobID string

// SnapshotID identifies an assignment snapshot.
type SnapshotID string

// PeriodID identifies a scheduling period.
type PeriodID string

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID { return RuleID(uuid.Must(uuid.NewV7()).String()) }

// NewRuleVersionID generates a UUIDv7 rule version identifier.
func NewRuleVersionID() RuleVersionID { return RuleVersionID(uuid.Must(uuid.NewV7()).String()) }

// NewBundleID generates a UUIDv7 bundle identifier.
func NewBundleID() BundleID { return BundleID(uuid.Must(uuid.NewV7()).String()) }

// NewJobID generates a UUIDv7 job identifier.
func NewJobID() JobID { return JobID(uuid.Must(uuid.NewV7()).String()) }

// NewSnapshotID generates a UUIDv7 snapshot identifier.
func NewSnapshotID() SnapshotID { return SnapshotID(uuid.Must(uuid.NewV7()).String()) }

// NewPeriodID generates a UUIDv7 period identifier.
func NewPeriodID() PeriodID { return PeriodID(uuid.Must(uuid.NewV7()).String()) }

// ParseJobID validates and converts a string to JobID.
// Rejects malformed UUIDs so invalid ids never enter the cancel registry.
func ParseJobID(s string) (JobID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return JobID(s), nil
}

// ParseBundleID validates and converts a string to BundleID.
func ParseBundleID(s string) (BundleID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return BundleID(s), nil
}
