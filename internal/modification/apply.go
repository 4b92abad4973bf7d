package modification

import (
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/orthanc-go/orthanc/internal/hashing"
	"github.com/orthanc-go/orthanc/internal/models"
)

// Apply mutates ds in place according to the configured Keep/Remove/Replace
// operations, then regenerates whichever identifier UIDs the configured
// Level implies have changed, so the hierarchy stays internally consistent
// under the hasher in internal/hashing. Order matters: private-tag removal
// and plain removals run before replacements, so a tag that is both
// removed and replaced (the caller's Replace always wins, since it deletes
// any pending Removals entry) never gets stripped out from under itself.
func (c *Config) Apply(ds *dicom.Dataset) error {
	if c.RemovePrivateTags {
		stripPrivateTags(ds, c.Keeps)
	}

	for t := range c.Removals {
		if _, kept := c.Keeps[t]; kept {
			continue
		}
		removeElement(ds, t)
	}

	if c.TruncateDates {
		for _, t := range dateTagsToTruncate {
			if _, replaced := c.Replacements[t]; replaced {
				continue
			}
			truncateDate(ds, t)
		}
	}

	for t, value := range c.Replacements {
		if err := setElement(ds, t, value); err != nil {
			return err
		}
	}

	return c.regenerateIdentifiers(ds)
}

// regenerateIdentifiers implements the spec's propagation rule: a change
// at level L must also regenerate every identifier at a deeper level, so
// SOPInstanceUID always changes, SeriesInstanceUID changes for a Series-
// level-or-shallower operation, and StudyInstanceUID changes for a Study-
// level-or-shallower operation. A tag the caller explicitly replaced is
// left alone -- regeneration only fills in what wasn't already decided.
func (c *Config) regenerateIdentifiers(ds *dicom.Dataset) error {
	if !c.IsReplaced(tag.SOPInstanceUID) {
		if err := setElement(ds, tag.SOPInstanceUID, hashing.NewUID()); err != nil {
			return err
		}
	}

	if c.Level <= models.KindSeries && !c.IsReplaced(tag.SeriesInstanceUID) {
		if err := setElement(ds, tag.SeriesInstanceUID, hashing.NewUID()); err != nil {
			return err
		}
	}

	if c.Level <= models.KindStudy && !c.IsReplaced(tag.StudyInstanceUID) {
		if err := setElement(ds, tag.StudyInstanceUID, hashing.NewUID()); err != nil {
			return err
		}
	}

	return nil
}

// stripPrivateTags drops every element whose group number is odd (the
// DICOM convention for private tags) and that isn't exempted by keeps.
func stripPrivateTags(ds *dicom.Dataset, keeps map[tag.Tag]struct{}) {
	filtered := ds.Elements[:0]
	for _, e := range ds.Elements {
		if e.Tag.Group%2 == 1 {
			if _, keep := keeps[e.Tag]; !keep {
				continue
			}
		}
		filtered = append(filtered, e)
	}
	ds.Elements = filtered
}

// removeElement drops every element matching t, if present. Absence is not
// an error: Remove on a tag the dataset never had is a no-op.
func removeElement(ds *dicom.Dataset, t tag.Tag) {
	filtered := ds.Elements[:0]
	for _, e := range ds.Elements {
		if e.Tag != t {
			filtered = append(filtered, e)
		}
	}
	ds.Elements = filtered
}

// setElement overwrites the value of an existing element matching t,
// preserving its VR. If the dataset doesn't carry t at all, a fresh
// element is appended instead -- Replace is insert-or-replace, the same
// as ParsedDicomFile::Replace: "curl .../modify -d '{"Replace":
// {"InstitutionName":"My own clinic"}}'" must set InstitutionName even on
// an instance that never had one.
func setElement(ds *dicom.Dataset, t tag.Tag, value string) error {
	for i, e := range ds.Elements {
		if e.Tag != t {
			continue
		}
		newValue, err := dicom.NewValue([]string{value})
		if err != nil {
			return err
		}
		ds.Elements[i] = &dicom.Element{
			Tag:                    t,
			ValueRepresentation:    e.ValueRepresentation,
			RawValueRepresentation: e.RawValueRepresentation,
			ValueLength:            uint32(len(value)),
			Value:                  newValue,
		}
		return nil
	}

	elem, err := NewStringElement(t, value)
	if err != nil {
		return err
	}
	ds.Elements = append(ds.Elements, elem)
	return nil
}

// truncateDate rewrites a date tag's value to YYYYMM01, preserving year
// and month while discarding the day -- the same coarsening the teacher
// anonymizer's TruncateDate performs.
func truncateDate(ds *dicom.Dataset, t tag.Tag) {
	for _, e := range ds.Elements {
		if e.Tag != t {
			continue
		}
		value := getStringValue(e)
		if len(value) >= 6 {
			setElement(ds, t, value[:6]+"01")
		} else if value != "" {
			setElement(ds, t, "")
		}
		return
	}
}

func getStringValue(e *dicom.Element) string {
	if e == nil || e.Value == nil {
		return ""
	}
	switch v := e.Value.GetValue().(type) {
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case string:
		return v
	}
	return ""
}
