// Package hashing derives the stable public identifiers every resource is
// addressed by. A public id is a deterministic function of a resource's
// identifying DICOM tags: re-hashing the same tags always yields the same
// id, which is what makes Store's deduplication and the modify/anonymize
// "already exists" checks work without a lookup table.
package hashing

import (
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// namespace fixes the UUID v5 namespace this server hashes identifiers
// under. It has no meaning beyond being a constant every build agrees on;
// changing it would change every public id ever issued.
var namespace = uuid.MustParse("f47ca893-4d0c-4f7e-9a1a-6c2f3b0e1d4a")

// emptySentinel replaces a missing or empty identifying tag before
// hashing, so every part fed to the hash is non-empty. A missing tag and
// an empty one hash identically.
const emptySentinel = "__orthanc-go_empty__"

// hash combines a set of identifying strings into a stable, lowercase,
// UUID-formatted public id. It is pure: same input, same output, forever.
func hash(parts ...string) string {
	sanitized := make([]string, len(parts))
	for i, p := range parts {
		if p == "" {
			sanitized[i] = emptySentinel
		} else {
			sanitized[i] = p
		}
	}
	joined := strings.Join(sanitized, "\x00")
	return uuid.NewSHA1(namespace, []byte(joined)).String()
}

// HashPatient derives the public id of the Patient identified by patientID.
func HashPatient(patientID string) string {
	return hash(patientID)
}

// HashStudy derives the public id of a Study within a patient.
func HashStudy(patientID, studyInstanceUID string) string {
	return hash(patientID, studyInstanceUID)
}

// HashSeries derives the public id of a Series within a study.
func HashSeries(patientID, studyInstanceUID, seriesInstanceUID string) string {
	return hash(patientID, studyInstanceUID, seriesInstanceUID)
}

// HashInstance derives the public id of an Instance within a series.
func HashInstance(patientID, studyInstanceUID, seriesInstanceUID, sopInstanceUID string) string {
	return hash(patientID, studyInstanceUID, seriesInstanceUID, sopInstanceUID)
}

// Identifiers is the minimal set of MainDicomTags needed to derive all four
// levels of public id for an instance in one call.
type Identifiers struct {
	PatientID         string
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
}

// HashAll computes the public ids of all four ancestor levels of an
// instance at once, in the order they are needed by Store's walk-up.
func HashAll(ids Identifiers) (patient, study, series, instance string) {
	patient = HashPatient(ids.PatientID)
	study = HashStudy(ids.PatientID, ids.StudyInstanceUID)
	series = HashSeries(ids.PatientID, ids.StudyInstanceUID, ids.SeriesInstanceUID)
	instance = HashInstance(ids.PatientID, ids.StudyInstanceUID, ids.SeriesInstanceUID, ids.SOPInstanceUID)
	return
}

// NewUID generates a fresh random DICOM-style UID used when the
// modification engine must mint a brand new SeriesInstanceUID or
// SOPInstanceUID (e.g. during anonymization). It is intentionally not
// derived from any input -- it must never collide with a real one.
//
// The result is a "2.25." UUID-derived UID per DICOM PS 3.5 Annex B: a
// random UUID's 128 bits read as an unsigned big-endian integer, printed in
// decimal and appended to the 2.25 root. A bare uuid.String() is not a
// legal UI-VR value -- hyphens aren't in the DICOM UID character
// repertoire (digits and periods only).
func NewUID() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:])
	return "2.25." + n.String()
}
