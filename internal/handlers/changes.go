package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/orthanc-go/orthanc/internal/apierror"
	"github.com/orthanc-go/orthanc/internal/index"
	"github.com/orthanc-go/orthanc/pkg/httpoutput"
)

// ChangeHandler answers the three read-only log/aggregate routes --
// /changes, /exports and /statistics -- that sit entirely on top of
// ServerIndex and touch neither storage nor internal/modification.
type ChangeHandler struct {
	index *index.ServerIndex
	log   zerolog.Logger
}

func NewChangeHandler(idx *index.ServerIndex, log zerolog.Logger) *ChangeHandler {
	return &ChangeHandler{index: idx, log: log}
}

const defaultPageLimit = 100

func pagingParams(r *http.Request) (since int64, limit int, err error) {
	q := r.URL.Query()
	if raw := q.Get("since"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, 0, apierror.New(apierror.BadRequest, "since must be an integer", err)
		}
	}
	limit = defaultPageLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, perr := strconv.Atoi(raw)
		if perr != nil || parsed <= 0 {
			return 0, 0, apierror.New(apierror.BadRequest, "limit must be a positive integer", perr)
		}
		limit = parsed
	}
	return since, limit, nil
}

type changeView struct {
	Seq              int64  `json:"Seq"`
	ChangeType       string `json:"ChangeType"`
	ResourceType     string `json:"ResourceType"`
	ID               string `json:"ID"`
	Path             string `json:"Path"`
	Date             string `json:"Date"`
}

type changesResponse struct {
	Changes []changeView `json:"Changes"`
	Done    bool         `json:"Done"`
	Last    int64        `json:"Last"`
}

// Changes answers GET /changes?since=&limit=.
func (h *ChangeHandler) Changes(w http.ResponseWriter, r *http.Request) {
	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	since, limit, err := pagingParams(r)
	if err != nil {
		writeError(out, r, err, h.log)
		return
	}

	rows, err := h.index.GetChanges(r.Context(), since, limit)
	if err != nil {
		writeError(out, r, apierror.New(apierror.InternalError, "failed to read change log", err), h.log)
		return
	}

	resp := changesResponse{Changes: make([]changeView, 0, len(rows)), Done: len(rows) < limit}
	for _, c := range rows {
		resp.Changes = append(resp.Changes, changeView{
			Seq:          c.Seq,
			ChangeType:   c.ChangeType.String(),
			ResourceType: c.ResourceKind.String(),
			ID:           c.ResourcePublicID,
			Path:         "/" + kindPath(c.ResourceKind) + "/" + c.ResourcePublicID,
			Date:         c.Timestamp.UTC().Format("20060102T150405"),
		})
	}
	if len(rows) > 0 {
		resp.Last = rows[len(rows)-1].Seq
	} else if last, err := h.index.GetLastChange(r.Context()); err == nil && last != nil {
		resp.Last = last.Seq
	}

	if err := out.SendJSON(http.StatusOK, resp); err != nil {
		h.log.Error().Err(err).Msg("failed to write changes response")
	}
}

type exportView struct {
	Seq               int64  `json:"Seq"`
	ResourceType      string `json:"ResourceType"`
	ID                string `json:"ID"`
	Path              string `json:"Path"`
	RemoteModality    string `json:"RemoteModality"`
	PatientID         string `json:"PatientID"`
	StudyInstanceUID  string `json:"StudyInstanceUID,omitempty"`
	SeriesInstanceUID string `json:"SeriesInstanceUID,omitempty"`
	SOPInstanceUID    string `json:"SOPInstanceUID,omitempty"`
	Date              string `json:"Date"`
}

type exportsResponse struct {
	Exports []exportView `json:"Exports"`
	Done    bool         `json:"Done"`
	Last    int64        `json:"Last"`
}

// Exports answers GET /exports?since=&limit=.
func (h *ChangeHandler) Exports(w http.ResponseWriter, r *http.Request) {
	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	since, limit, err := pagingParams(r)
	if err != nil {
		writeError(out, r, err, h.log)
		return
	}

	rows, err := h.index.GetExportedResources(r.Context(), since, limit)
	if err != nil {
		writeError(out, r, apierror.New(apierror.InternalError, "failed to read export log", err), h.log)
		return
	}

	resp := exportsResponse{Exports: make([]exportView, 0, len(rows)), Done: len(rows) < limit}
	for _, e := range rows {
		resp.Exports = append(resp.Exports, exportView{
			Seq:               e.Seq,
			ResourceType:      e.ResourceKind.String(),
			ID:                e.PublicID,
			Path:              "/" + kindPath(e.ResourceKind) + "/" + e.PublicID,
			RemoteModality:    e.RemoteModality,
			PatientID:         e.PatientID,
			StudyInstanceUID:  e.StudyInstanceUID,
			SeriesInstanceUID: e.SeriesInstanceUID,
			SOPInstanceUID:    e.SOPInstanceUID,
			Date:              e.Timestamp.UTC().Format("20060102T150405"),
		})
	}
	if len(rows) > 0 {
		resp.Last = rows[len(rows)-1].Seq
	} else if last, err := h.index.GetLastExportedResource(r.Context()); err == nil && last != nil {
		resp.Last = last.Seq
	}

	if err := out.SendJSON(http.StatusOK, resp); err != nil {
		h.log.Error().Err(err).Msg("failed to write exports response")
	}
}

type statisticsView struct {
	CountPatients         int64 `json:"CountPatients"`
	CountStudies          int64 `json:"CountStudies"`
	CountSeries           int64 `json:"CountSeries"`
	CountInstances        int64 `json:"CountInstances"`
	TotalDiskSize         int64 `json:"TotalDiskSize"`
	TotalUncompressedSize int64 `json:"TotalUncompressedSize"`
}

// Statistics answers GET /statistics.
func (h *ChangeHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	stats, err := h.index.ComputeStatistics(r.Context())
	if err != nil {
		writeError(out, r, apierror.New(apierror.InternalError, "failed to compute statistics", err), h.log)
		return
	}

	resp := statisticsView{
		CountPatients:         stats.CountPatients,
		CountStudies:          stats.CountStudies,
		CountSeries:           stats.CountSeries,
		CountInstances:        stats.CountInstances,
		TotalDiskSize:         stats.TotalDiskSize,
		TotalUncompressedSize: stats.TotalUncompressedSize,
	}
	if err := out.SendJSON(http.StatusOK, resp); err != nil {
		h.log.Error().Err(err).Msg("failed to write statistics response")
	}
}
