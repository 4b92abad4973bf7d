package models

import "time"

// ChangeType enumerates the events ServerIndex appends to the change log
// that /changes polls. Numeric values are stored as-is and must stay stable
// since clients track their position with a Seq cursor, not a change type.
type ChangeType int

const (
	ChangeNewPatient ChangeType = iota + 1
	ChangeNewStudy
	ChangeNewSeries
	ChangeNewInstance
	ChangeCompletedSeries
	ChangeModifiedPatient
	ChangeModifiedStudy
	ChangeModifiedSeries
	ChangeModifiedInstance
	ChangeDeletedPatient
	ChangeDeletedStudy
	ChangeDeletedSeries
	ChangeDeletedInstance
)

func (c ChangeType) String() string {
	switch c {
	case ChangeNewPatient:
		return "NewPatient"
	case ChangeNewStudy:
		return "NewStudy"
	case ChangeNewSeries:
		return "NewSeries"
	case ChangeNewInstance:
		return "NewInstance"
	case ChangeCompletedSeries:
		return "CompletedSeries"
	case ChangeModifiedPatient:
		return "ModifiedPatient"
	case ChangeModifiedStudy:
		return "ModifiedStudy"
	case ChangeModifiedSeries:
		return "ModifiedSeries"
	case ChangeModifiedInstance:
		return "ModifiedInstance"
	case ChangeDeletedPatient:
		return "DeletedPatient"
	case ChangeDeletedStudy:
		return "DeletedStudy"
	case ChangeDeletedSeries:
		return "DeletedSeries"
	case ChangeDeletedInstance:
		return "DeletedInstance"
	default:
		return "Unknown"
	}
}

// Change is one row of the append-only change log. Seq is the monotonic
// cursor clients pass back to /changes?since=.
type Change struct {
	Seq              int64        `gorm:"primaryKey;autoIncrement" json:"-"`
	ChangeType       ChangeType   `gorm:"not null" json:"-"`
	ResourceID       int64        `gorm:"not null;index" json:"-"`
	ResourceKind     ResourceKind `gorm:"not null" json:"-"`
	ResourcePublicID string       `gorm:"type:varchar(64);not null" json:"-"`
	Timestamp        time.Time    `json:"-"`
}

func (Change) TableName() string {
	return "changes"
}
