package models

import "time"

// ResourceKind is the level of a resource in the Patient/Study/Series/Instance
// hierarchy. The numeric ordering matters: it is the "shallower than" relation
// used by the cascading-delete ancestor-collapse logic in internal/index.
type ResourceKind uint8

const (
	KindPatient ResourceKind = iota
	KindStudy
	KindSeries
	KindInstance
)

func (k ResourceKind) String() string {
	switch k {
	case KindPatient:
		return "Patient"
	case KindStudy:
		return "Study"
	case KindSeries:
		return "Series"
	case KindInstance:
		return "Instance"
	default:
		return "Unknown"
	}
}

// ParentKind returns the kind that must be the parent of a resource of kind
// k, and false if k is the root (Patient).
func (k ResourceKind) ParentKind() (ResourceKind, bool) {
	if k == KindPatient {
		return 0, false
	}
	return k - 1, true
}

// Resource is a single node of the hierarchy: a Patient, Study, Series, or
// Instance. Resources are immutable once committed -- only Metadata rows and
// the append-only Change/ExportedResource logs ever change afterwards.
type Resource struct {
	ID         int64        `gorm:"primaryKey;autoIncrement" json:"-"`
	PublicID   string       `gorm:"type:varchar(64);not null;uniqueIndex:idx_resources_kind_public" json:"-"`
	Kind       ResourceKind `gorm:"not null;uniqueIndex:idx_resources_kind_public" json:"-"`
	ParentID   *int64       `gorm:"index" json:"-"`
	CreatedAt  time.Time    `json:"-"`
}

func (Resource) TableName() string {
	return "resources"
}
