package models

import "time"

// ExportedResource is one row of the append-only export log, written
// whenever a resource is sent to a remote modality. The identifier columns
// are denormalized copies of the resource's own hierarchy -- collected by
// walking up from the exported resource to Patient -- so a client can page
// through /exports without re-resolving each resource's ancestry.
type ExportedResource struct {
	Seq              int64        `gorm:"primaryKey;autoIncrement" json:"-"`
	ResourceKind     ResourceKind `gorm:"not null" json:"-"`
	PublicID         string       `gorm:"type:varchar(64);not null" json:"-"`
	RemoteModality   string       `gorm:"type:varchar(64)" json:"-"`
	PatientID        string       `gorm:"type:varchar(64)" json:"-"`
	StudyInstanceUID string       `gorm:"type:varchar(64)" json:"-"`
	SeriesInstanceUID string      `gorm:"type:varchar(64)" json:"-"`
	SOPInstanceUID   string       `gorm:"type:varchar(64)" json:"-"`
	Timestamp        time.Time    `json:"-"`
}

func (ExportedResource) TableName() string {
	return "exported_resources"
}
