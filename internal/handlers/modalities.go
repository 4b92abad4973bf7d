package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/orthanc-go/orthanc/internal/apierror"
	"github.com/orthanc-go/orthanc/internal/config"
	"github.com/orthanc-go/orthanc/pkg/dimse"
	"github.com/orthanc-go/orthanc/pkg/httpoutput"
)

// ModalityHandler answers the echo/query surface against the remote AEs
// listed in config.DimseConfig, the same two operations Orthanc exposes
// under /modalities/{id}/echo and /modalities/{id}/query.
type ModalityHandler struct {
	callingAET string
	modalities map[string]config.ModalityConfig
	log        zerolog.Logger
}

func NewModalityHandler(cfg config.DimseConfig, log zerolog.Logger) *ModalityHandler {
	return &ModalityHandler{
		callingAET: cfg.CallingAET,
		modalities: cfg.Modalities,
		log:        log,
	}
}

func (h *ModalityHandler) lookup(name string) (*dimse.Association, error) {
	modality, ok := h.modalities[name]
	if !ok {
		return nil, apierror.New(apierror.InexistentItem, "unknown modality: "+name, nil)
	}
	return dimse.NewAssociation(dimse.AssociationConfig{
		Host:       modality.Host,
		Port:       modality.Port,
		CallingAET: h.callingAET,
		CalledAET:  modality.AET,
		Timeout:    30 * time.Second,
	}), nil
}

// Echo answers POST /modalities/{id}/echo: a synchronous C-ECHO against
// the named remote AE, answering 200 on success or 503 if it doesn't
// respond.
func (h *ModalityHandler) Echo(w http.ResponseWriter, r *http.Request) {
	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	assoc, err := h.lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(out, r, err, h.log)
		return
	}
	defer assoc.Close()

	if err := assoc.CEcho(r.Context()); err != nil {
		writeError(out, r, apierror.New(apierror.Unavailable, "C-ECHO failed", err), h.log)
		return
	}

	if err := out.SendJSON(http.StatusOK, map[string]bool{"Echo": true}); err != nil {
		h.log.Error().Err(err).Msg("failed to write echo response")
	}
}

type modalityQueryRequest struct {
	Level             string `json:"Level"`
	PatientID         string `json:"PatientID"`
	PatientName       string `json:"PatientName"`
	StudyDate         string `json:"StudyDate"`
	AccessionNumber   string `json:"AccessionNumber"`
	Modality          string `json:"Modality"`
	StudyInstanceUID  string `json:"StudyInstanceUID"`
	SeriesInstanceUID string `json:"SeriesInstanceUID"`
}

type modalityQueryResponse struct {
	Results []map[string]string `json:"Results"`
}

// Query answers POST /modalities/{id}/query: a synchronous C-FIND against
// the named remote AE at the requested level (STUDY, SERIES or IMAGE),
// returning every match as a tag-name/value map.
func (h *ModalityHandler) Query(w http.ResponseWriter, r *http.Request) {
	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	assoc, err := h.lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(out, r, err, h.log)
		return
	}
	defer assoc.Close()

	var req modalityQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(out, r, err, h.log)
		return
	}
	if req.Level == "" {
		req.Level = "STUDY"
	}

	results, err := assoc.CFind(r.Context(), dimse.CFindRequest{
		QueryLevel:        req.Level,
		PatientID:         req.PatientID,
		PatientName:       req.PatientName,
		StudyDate:         req.StudyDate,
		AccessionNumber:   req.AccessionNumber,
		Modality:          req.Modality,
		StudyInstanceUID:  req.StudyInstanceUID,
		SeriesInstanceUID: req.SeriesInstanceUID,
	})
	if err != nil {
		writeError(out, r, apierror.New(apierror.Unavailable, "C-FIND failed", err), h.log)
		return
	}

	if err := out.SendJSON(http.StatusOK, modalityQueryResponse{Results: results}); err != nil {
		h.log.Error().Err(err).Msg("failed to write query response")
	}
}
