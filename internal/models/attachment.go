package models

// AttachmentType identifies the kind of binary payload a resource carries in
// the content-addressed blob store (internal/storage). An instance carries
// at least FileDicom; FileDicomAsJson is a cached rendering of its dataset
// as JSON used to avoid re-parsing on metadata-only reads.
type AttachmentType int

const (
	FileDicom AttachmentType = 1
	FileDicomAsJson AttachmentType = 2
)

func (t AttachmentType) String() string {
	switch t {
	case FileDicom:
		return "dicom"
	case FileDicomAsJson:
		return "dicom-as-json"
	default:
		return "unknown"
	}
}

// Attachment records where a resource's binary payload lives in blob
// storage, alongside the bookkeeping needed to verify and reproduce it:
// uncompressed/compressed sizes and the MD5 digests computed at ingest.
// Nothing verifies the digests when a blob is read back.
type Attachment struct {
	ID                int64          `gorm:"primaryKey;autoIncrement" json:"-"`
	ResourceID        int64          `gorm:"not null;uniqueIndex:idx_attachments_resource_type" json:"-"`
	Type              AttachmentType `gorm:"not null;uniqueIndex:idx_attachments_resource_type" json:"-"`
	UUID              string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	CompressionType   string         `gorm:"type:varchar(16);not null;default:none" json:"-"`
	UncompressedSize  int64          `json:"-"`
	CompressedSize    int64          `json:"-"`
	UncompressedMD5   string         `gorm:"type:varchar(32)" json:"-"`
	CompressedMD5     string         `gorm:"type:varchar(32)" json:"-"`
}

func (Attachment) TableName() string {
	return "attachments"
}
