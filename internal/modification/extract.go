package modification

import (
	"github.com/suyashkumar/dicom"

	"github.com/orthanc-go/orthanc/internal/models"
)

// ExtractTags flattens every element of ds into the group/element-keyed map
// internal/index.Store expects, the inverse of the walk create-dicom runs
// to build a dataset from a JSON tag map in the first place.
func ExtractTags(ds *dicom.Dataset) map[models.TagKey]string {
	tags := make(map[models.TagKey]string, len(ds.Elements))
	for _, e := range ds.Elements {
		tags[models.TagKey{Group: e.Tag.Group, Element: e.Tag.Element}] = getStringValue(e)
	}
	return tags
}

// CloneDataset returns a Dataset backed by a fresh element slice so that
// Apply's in-place filtering (stripPrivateTags, removeElement) never
// mutates a dataset another caller -- typically internal/dicomcache's
// LRU -- still holds a pointer to. Replaced elements get new *Element
// values of their own already (see setElement), so only the slice needs
// copying, not every element it points to.
func CloneDataset(ds *dicom.Dataset) *dicom.Dataset {
	elements := make([]*dicom.Element, len(ds.Elements))
	copy(elements, ds.Elements)
	return &dicom.Dataset{Elements: elements}
}
