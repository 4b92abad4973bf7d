package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/orthanc-go/orthanc/internal/apierror"
	"github.com/orthanc-go/orthanc/internal/hashing"
	"github.com/orthanc-go/orthanc/internal/metrics"
	"github.com/orthanc-go/orthanc/internal/modification"
	"github.com/orthanc-go/orthanc/pkg/httpoutput"
)

type createDicomResponse struct {
	ID        string `json:"ID"`
	Path      string `json:"Path"`
	PatientID string `json:"PatientID"`
}

// CreateDicom answers POST /tools/create-dicom: a fresh dataset is built
// from the flat tagName->value request body, the identifiers it omits
// are generated, a PixelData value of the form
// "data:image/<fmt>;base64,<payload>" is decoded into a native OB pixel
// element rather than treated as a plain string replacement, and the
// resulting instance is ingested exactly like one received over
// DICOMweb.
func (h *ModificationHandler) CreateDicom(w http.ResponseWriter, r *http.Request) {
	metrics.ModificationOperations.WithLabelValues("create", "instance").Inc()

	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	// The POST body is a flat JSON object of tagName->value (curl
	// .../tools/create-dicom -d '{"PatientName":"Hello^World"}'), not a
	// nested {"Tags": {...}} envelope -- decode it directly.
	var rawTags map[string]string
	if err := decodeJSON(r, &rawTags); err != nil {
		writeError(out, r, err, h.log)
		return
	}

	stringTags := make(map[string]string, len(rawTags))
	var pixelData []byte
	for name, value := range rawTags {
		if strings.EqualFold(name, "PixelData") {
			decoded, err := decodeDataURI(value)
			if err != nil {
				writeError(out, r, apierror.New(apierror.BadRequest, "invalid PixelData payload", err), h.log)
				return
			}
			pixelData = decoded
			continue
		}
		stringTags[name] = value
	}

	for _, required := range []tag.Tag{tag.PatientID, tag.StudyInstanceUID, tag.SeriesInstanceUID, tag.SOPInstanceUID} {
		if _, ok := stringTags[tagNameOf(required)]; !ok {
			stringTags[tagNameOf(required)] = hashing.NewUID()
		}
	}

	ds, err := modification.BuildDataset(stringTags)
	if err != nil {
		writeError(out, r, apierror.New(apierror.BadRequest, "failed to build dataset from tags", err), h.log)
		return
	}

	if pixelData != nil {
		pixelElem, err := modification.NewPixelDataElement(pixelData)
		if err != nil {
			writeError(out, r, apierror.New(apierror.InternalError, "failed to embed pixel data", err), h.log)
			return
		}
		ds.Elements = append(ds.Elements, pixelElem)
	}

	if _, err := ingestDataset(r.Context(), h.index, h.storage, ds, ""); err != nil {
		writeError(out, r, apierror.New(apierror.InternalError, "failed to store created instance", err), h.log)
		return
	}

	newTags := modification.ExtractTags(ds)
	patient, _, _, instance := hashing.HashAll(identifiersFromTags(newTags))

	resp := createDicomResponse{
		ID:        instance,
		Path:      "/instances/" + instance,
		PatientID: patient,
	}
	if err := out.SendJSON(http.StatusOK, resp); err != nil {
		h.log.Error().Err(err).Msg("failed to write create-dicom response")
	}
}

func decodeDataURI(value string) ([]byte, error) {
	idx := strings.Index(value, "base64,")
	if idx < 0 {
		return nil, fmt.Errorf("expected a data:...;base64,<payload> URI")
	}
	return base64.StdEncoding.DecodeString(value[idx+len("base64,"):])
}

func tagNameOf(t tag.Tag) string {
	info, err := tag.Find(t)
	if err != nil {
		return t.String()
	}
	return info.Name
}
