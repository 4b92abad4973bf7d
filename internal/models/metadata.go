package models

// Metadata holds a key/value pair attached to a resource, distinct from its
// MainDicomTags: metadata is server-assigned bookkeeping (reception date,
// originating AET, lineage after a modify/anonymize) rather than data taken
// verbatim from the DICOM dataset.
type Metadata struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	ResourceID int64  `gorm:"not null;uniqueIndex:idx_metadata_resource_key" json:"-"`
	Key        string `gorm:"type:varchar(128);not null;uniqueIndex:idx_metadata_resource_key" json:"-"`
	Value      string `gorm:"type:text" json:"-"`
}

func (Metadata) TableName() string {
	return "metadata"
}

// Well-known metadata keys. Kind-prefixed names mirror the level at which
// ServerIndex.Store assigns them; the lineage keys (ModifiedFrom/
// AnonymizedFrom) are set at whichever level a modify/anonymize operation
// actually rewrote.
const (
	MetadataInstanceReceptionDate      = "ReceptionDate"
	MetadataInstanceRemoteAET          = "RemoteAET"
	MetadataInstanceIndexInSeries      = "IndexInSeries"
	MetadataSeriesExpectedNumInstances = "ExpectedNumberOfInstances"
	MetadataModifiedFrom               = "ModifiedFrom"
	MetadataAnonymizedFrom             = "AnonymizedFrom"
)
