package index

import (
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/orthanc-go/orthanc/internal/models"
)

func tagKey(t tag.Tag) models.TagKey {
	return models.TagKey{Group: t.Group, Element: t.Element}
}

// levelTags projects the full set of extracted instance tags down to the
// subset that belongs to each resource level, mirroring
// DicomMap::ExtractPatientInformation/ExtractStudyInformation/
// ExtractSeriesInformation/ExtractInstanceInformation. Every tag is
// assigned to exactly one level; ancestors are created once and never
// revisit a child's tags.
var levelTags = map[models.ResourceKind][]tag.Tag{
	models.KindPatient: {
		tag.PatientID,
		tag.PatientName,
		tag.PatientBirthDate,
		tag.PatientSex,
	},
	models.KindStudy: {
		tag.StudyInstanceUID,
		tag.StudyDate,
		tag.StudyTime,
		tag.StudyID,
		tag.AccessionNumber,
		tag.ReferringPhysicianName,
		tag.StudyDescription,
	},
	models.KindSeries: {
		tag.SeriesInstanceUID,
		tag.SeriesNumber,
		tag.SeriesDate,
		tag.SeriesTime,
		tag.Modality,
		tag.SeriesDescription,
		tag.BodyPartExamined,
		tag.ProtocolName,
	},
	models.KindInstance: {
		tag.SOPInstanceUID,
		tag.SOPClassUID,
		tag.InstanceNumber,
		tag.InstanceCreationDate,
		tag.InstanceCreationTime,
	},
}

// projectTags extracts the subset of tags belonging to level from the
// full instance tag set.
func projectTags(tags map[models.TagKey]string, level models.ResourceKind) map[models.TagKey]string {
	out := map[models.TagKey]string{}
	for _, t := range levelTags[level] {
		k := tagKey(t)
		if v, ok := tags[k]; ok {
			out[k] = v
		}
	}
	return out
}

// firstPresent returns the value of the first of candidates that is
// present (and non-empty) in tags, and whether anything was found.
// Grounds the "InstanceNumber or ImageIndex, first available" and
// "NumberOfSlices, ImagesInAcquisition or CardiacNumberOfImages, first
// available" rules from Store.
func firstPresent(tags map[models.TagKey]string, candidates ...tag.Tag) (string, bool) {
	for _, t := range candidates {
		if v, ok := tags[tagKey(t)]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}
