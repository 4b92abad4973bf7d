package handlers

import "github.com/orthanc-go/orthanc/internal/models"

// kindPaths maps the plural REST path segment onto the resource kind it
// names, the same vocabulary the teacher's own route tables used for its
// "studies"/"series"/"instances" DICOMweb segments.
var kindPaths = map[string]models.ResourceKind{
	"patients":  models.KindPatient,
	"studies":   models.KindStudy,
	"series":    models.KindSeries,
	"instances": models.KindInstance,
}

func kindPath(k models.ResourceKind) string {
	switch k {
	case models.KindPatient:
		return "patients"
	case models.KindStudy:
		return "studies"
	case models.KindSeries:
		return "series"
	default:
		return "instances"
	}
}

func parseKindPath(segment string) (models.ResourceKind, bool) {
	kind, ok := kindPaths[segment]
	return kind, ok
}
