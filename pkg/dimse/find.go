package dimse

import (
	"context"
	"fmt"

	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/dictionary/tags"
	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/media"
	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/services"
)

// TimeoutCFind is the C-FIND timeout, in seconds -- longer than C-ECHO's
// since a query can return many results.
const TimeoutCFind = 120

// CFindRequest represents a C-FIND request.
type CFindRequest struct {
	QueryLevel        string // STUDY, SERIES, IMAGE
	PatientID         string
	PatientName       string
	StudyDate         string
	AccessionNumber   string
	Modality          string
	StudyInstanceUID  string
	SeriesInstanceUID string
}

// CFind performs a C-FIND operation and hands back each matched dataset as
// a flat tag-name/value map, the name-keyed shape
// internal/modification.BuildDataset accepts, so a caller can feed a match
// straight into BuildDataset without an intermediate model.
func (a *Association) CFind(ctx context.Context, req CFindRequest) ([]map[string]string, error) {
	if !a.IsConnected() {
		if err := a.Connect(ctx); err != nil {
			return nil, err
		}
	}

	a.UpdateLastUsed()

	query := media.NewEmptyDCMObj()
	query.WriteString(tags.QueryRetrieveLevel, req.QueryLevel)

	switch req.QueryLevel {
	case "STUDY":
		query.WriteString(tags.PatientID, req.PatientID)
		query.WriteString(tags.PatientName, req.PatientName)
		query.WriteString(tags.StudyDate, req.StudyDate)
		query.WriteString(tags.AccessionNumber, req.AccessionNumber)
		query.WriteString(tags.ModalitiesInStudy, req.Modality)
	case "SERIES":
		query.WriteString(tags.StudyInstanceUID, req.StudyInstanceUID)
	case "IMAGE":
		query.WriteString(tags.StudyInstanceUID, req.StudyInstanceUID)
		query.WriteString(tags.SeriesInstanceUID, req.SeriesInstanceUID)
	}

	for _, t := range returnKeysFor(req.QueryLevel) {
		query.WriteString(t, "")
	}

	var results []map[string]string
	scu := services.NewSCU(a.destination)
	scu.SetOnCFindResult(func(result media.DcmObj) {
		results = append(results, datasetToTags(req.QueryLevel, result))
	})

	_, status, err := scu.FindSCU(query, TimeoutCFind)
	if err != nil {
		return nil, fmt.Errorf("C-FIND failed: %w", err)
	}
	if status != 0x0000 {
		return nil, fmt.Errorf("C-FIND completed with status: 0x%04x", status)
	}

	return results, nil
}

// CFindStudies performs a study-level C-FIND against the remote peer.
func (a *Association) CFindStudies(ctx context.Context, params CFindRequest) ([]map[string]string, error) {
	params.QueryLevel = "STUDY"
	return a.CFind(ctx, params)
}

// CFindSeries performs a series-level C-FIND for a given study.
func (a *Association) CFindSeries(ctx context.Context, studyUID string) ([]map[string]string, error) {
	return a.CFind(ctx, CFindRequest{QueryLevel: "SERIES", StudyInstanceUID: studyUID})
}

// CFindInstances performs an image-level C-FIND for a given series.
func (a *Association) CFindInstances(ctx context.Context, studyUID, seriesUID string) ([]map[string]string, error) {
	return a.CFind(ctx, CFindRequest{
		QueryLevel:        "IMAGE",
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: seriesUID,
	})
}

// returnKeysFor lists the extra return keys requested for each query
// level, beyond the matching keys CFind already writes.
func returnKeysFor(level string) []*tags.Tag {
	switch level {
	case "STUDY":
		return []*tags.Tag{tags.StudyInstanceUID, tags.StudyTime, tags.ReferringPhysicianName, tags.PatientBirthDate, tags.PatientSex}
	case "SERIES":
		return []*tags.Tag{tags.SeriesInstanceUID, tags.SeriesNumber, tags.Modality, tags.SeriesDescription, tags.SeriesDate, tags.SeriesTime}
	case "IMAGE":
		return []*tags.Tag{tags.SOPInstanceUID, tags.SOPClassUID, tags.InstanceNumber, tags.Rows, tags.Columns, tags.BitsAllocated, tags.NumberOfFrames}
	default:
		return nil
	}
}

// datasetToTags pulls the fields relevant to a query level out of a
// C-FIND result and labels them the same way ParseTagName's dictionary
// names them, so the result reads like any other tag map in this repo.
func datasetToTags(level string, result media.DcmObj) map[string]string {
	type field struct {
		name string
		tag  *tags.Tag
	}

	var fields []field
	switch level {
	case "STUDY":
		fields = []field{
			{"StudyInstanceUID", tags.StudyInstanceUID},
			{"PatientID", tags.PatientID},
			{"PatientName", tags.PatientName},
			{"StudyDate", tags.StudyDate},
			{"StudyTime", tags.StudyTime},
			{"AccessionNumber", tags.AccessionNumber},
			{"ModalitiesInStudy", tags.ModalitiesInStudy},
			{"ReferringPhysicianName", tags.ReferringPhysicianName},
			{"PatientBirthDate", tags.PatientBirthDate},
			{"PatientSex", tags.PatientSex},
		}
	case "SERIES":
		fields = []field{
			{"SeriesInstanceUID", tags.SeriesInstanceUID},
			{"SeriesNumber", tags.SeriesNumber},
			{"Modality", tags.Modality},
			{"SeriesDescription", tags.SeriesDescription},
			{"SeriesDate", tags.SeriesDate},
			{"SeriesTime", tags.SeriesTime},
		}
	case "IMAGE":
		fields = []field{
			{"SOPInstanceUID", tags.SOPInstanceUID},
			{"SOPClassUID", tags.SOPClassUID},
			{"InstanceNumber", tags.InstanceNumber},
			{"Rows", tags.Rows},
			{"Columns", tags.Columns},
			{"BitsAllocated", tags.BitsAllocated},
			{"NumberOfFrames", tags.NumberOfFrames},
		}
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v := result.GetString(f.tag); v != "" {
			out[f.name] = v
		}
	}
	return out
}
