package modification

import (
	"github.com/google/uuid"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/orthanc-go/orthanc/internal/hashing"
	"github.com/orthanc-go/orthanc/internal/models"
)

// piiTagsToClear are cleared unconditionally by SetupAnonymization unless
// the caller later Keeps them. Grounded on DICOM PS 3.15 Basic Profile's
// "clear" action, the same list shape as the fomoroller anonymizer's
// PIITagsToClear, trimmed to the fields Orthanc's own default profile
// clears (clinical-context fields like Study/SeriesDescription stay).
var piiTagsToClear = []tag.Tag{
	tag.PatientBirthDate,
	tag.PatientBirthTime,
	tag.PatientAge,
	tag.PatientAddress,
	tag.PatientTelephoneNumbers,
	tag.OtherPatientIDs,
	tag.StudyTime,
	tag.SeriesTime,
	tag.AcquisitionTime,
	tag.ContentTime,
	tag.InstanceCreationTime,
	tag.InstitutionAddress,
	tag.InstitutionalDepartmentName,
	tag.StationName,
	tag.ReferringPhysicianName,
	tag.ReferringPhysicianAddress,
	tag.ReferringPhysicianTelephoneNumbers,
	tag.PerformingPhysicianName,
	tag.OperatorsName,
	tag.PhysiciansOfRecord,
	tag.NameOfPhysiciansReadingStudy,
	tag.AccessionNumber,
	tag.StudyID,
}

// dateTagsToTruncate are truncated to the first day of the month rather
// than cleared outright, preserving coarse chronology for research use.
var dateTagsToTruncate = []tag.Tag{
	tag.StudyDate,
	tag.SeriesDate,
	tag.AcquisitionDate,
	tag.ContentDate,
	tag.InstanceCreationDate,
}

// SetupAnonymization populates Config with the standards-compliant default
// anonymization profile: a new random PatientName and PatientID, cleared
// or truncated dates and physician/institution fields, and private tags
// removed. Identifiers below Patient level (Study/Series/SOPInstanceUID)
// are regenerated by Apply's propagation step, not by this preset.
func (c *Config) SetupAnonymization() {
	c.Level = models.KindPatient
	c.RemovePrivateTags = true
	c.TruncateDates = true

	// PatientName is a PN-VR display label, not an identifier -- it has no
	// DICOM UID format constraint, so the random suffix is plain hex off a
	// throwaway UUID rather than hashing.NewUID's "2.25." root.
	c.Replacements[tag.PatientName] = "Anonymized" + uuid.New().String()[:8]
	c.Replacements[tag.PatientID] = hashing.NewUID()

	for _, t := range piiTagsToClear {
		c.Replacements[t] = ""
	}
}
