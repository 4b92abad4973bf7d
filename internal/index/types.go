package index

import "github.com/orthanc-go/orthanc/internal/models"

// AttachmentInput describes a blob already written to internal/storage
// (DICOM parsing and byte-level storage are external collaborators of
// ServerIndex, per Store's own signature) that Store should register
// against the instance it ingests.
type AttachmentInput struct {
	Type             models.AttachmentType
	UUID             string
	CompressionType  string
	CompressedSize   int64
	UncompressedSize int64
	CompressedMD5    string
	UncompressedMD5  string
}

// StoreStatus reports the outcome of Store.
type StoreStatus int

const (
	StoreStatusSuccess StoreStatus = iota
	StoreStatusAlreadyStored
)

func (s StoreStatus) String() string {
	if s == StoreStatusAlreadyStored {
		return "AlreadyStored"
	}
	return "Success"
}

// SeriesStatus reports whether a series' instances are known to be
// complete, grounded on ServerIndex::GetSeriesStatus.
type SeriesStatus int

const (
	SeriesStatusUnknown SeriesStatus = iota
	SeriesStatusMissing
	SeriesStatusComplete
	SeriesStatusInconsistent
)

func (s SeriesStatus) String() string {
	switch s {
	case SeriesStatusMissing:
		return "Missing"
	case SeriesStatusComplete:
		return "Complete"
	case SeriesStatusInconsistent:
		return "Inconsistent"
	default:
		return "Unknown"
	}
}

// RemainingAncestor describes the shallowest ancestor left standing
// after a cascading delete, or nil if nothing survived.
type RemainingAncestor struct {
	Kind     models.ResourceKind
	PublicID string
}

// ResourceInfo is the lookup view of a single resource, grounded on
// ServerIndex::LookupResource's JSON shape.
type ResourceInfo struct {
	ID       string
	Kind     models.ResourceKind
	ParentID string
	Children []string
	Tags     map[models.TagKey]string

	// Series-specific.
	SeriesStatus         SeriesStatus
	ExpectedNumInstances *int

	// Instance-specific.
	FileUUID      string
	FileSize      int64
	IndexInSeries *int
}

// AttachmentInfo is the lookup view of a single attachment, grounded on
// ServerIndex::LookupAttachment.
type AttachmentInfo struct {
	UUID              string
	CompressionType   string
	CompressedSize    int64
	UncompressedSize  int64
	CompressedMD5     string
	UncompressedMD5   string
}
