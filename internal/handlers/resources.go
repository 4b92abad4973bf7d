package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/orthanc-go/orthanc/internal/apierror"
	"github.com/orthanc-go/orthanc/internal/index"
	"github.com/orthanc-go/orthanc/internal/metrics"
	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/storage"
	"github.com/orthanc-go/orthanc/pkg/httpoutput"
)

// ResourceHandler answers the plain CRUD surface over the Patient/Study/
// Series/Instance hierarchy: listing a level, looking up one resource,
// deleting one resource, and retrieving an instance's raw DICOM file.
type ResourceHandler struct {
	index   *index.ServerIndex
	storage storage.Store
	log     zerolog.Logger
}

// NewResourceHandler constructs a ResourceHandler over idx and store.
func NewResourceHandler(idx *index.ServerIndex, store storage.Store, log zerolog.Logger) *ResourceHandler {
	return &ResourceHandler{index: idx, storage: store, log: log}
}

// List answers GET /{patients|studies|series|instances}.
func (h *ResourceHandler) List(kind models.ResourceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := httpoutput.New(w, h.log, keepAlive(r))
		defer out.Close()

		ids, err := h.index.GetAllUUIDs(r.Context(), kind)
		if err != nil {
			writeError(out, r, apierror.New(apierror.InternalError, "failed to list resources", err), h.log)
			return
		}
		if err := out.SendJSON(http.StatusOK, ids); err != nil {
			h.log.Error().Err(err).Msg("failed to write resource list response")
		}
	}
}

// resourceView is the JSON shape LookupResource answers with, grounded
// on ServerIndex::LookupResource.
type resourceView struct {
	Type     string            `json:"Type"`
	ID       string            `json:"ID"`
	ParentID string            `json:"ParentID,omitempty"`
	Children []string          `json:"Children,omitempty"`
	MainTags map[string]string `json:"MainDicomTags"`

	Status               string `json:"Status,omitempty"`
	ExpectedNumInstances *int   `json:"ExpectedNumberOfInstances,omitempty"`

	FileSize      int64 `json:"FileSize,omitempty"`
	FileUUID      string `json:"FileUuid,omitempty"`
	IndexInSeries *int  `json:"IndexInSeries,omitempty"`
}

func toResourceView(info *index.ResourceInfo) resourceView {
	view := resourceView{
		Type:                 info.Kind.String(),
		ID:                   info.ID,
		ParentID:             info.ParentID,
		Children:             info.Children,
		MainTags:             tagMapToNames(info.Tags),
		ExpectedNumInstances: info.ExpectedNumInstances,
		FileSize:             info.FileSize,
		FileUUID:             info.FileUUID,
		IndexInSeries:        info.IndexInSeries,
	}
	if info.Kind == models.KindSeries {
		view.Status = info.SeriesStatus.String()
	}
	return view
}

// Get answers GET /{kind}/{id}, rejecting a publicID that resolves to a
// different kind than the route it was requested under.
func (h *ResourceHandler) Get(kind models.ResourceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := httpoutput.New(w, h.log, keepAlive(r))
		defer out.Close()

		id := chi.URLParam(r, "id")
		info, found, err := h.index.LookupResource(r.Context(), id)
		if err != nil {
			writeError(out, r, apierror.New(apierror.InternalError, "failed to look up resource", err), h.log)
			return
		}
		if !found || info.Kind != kind {
			writeError(out, r, apierror.Errorf(apierror.InexistentItem, "no %s with id %s", kindPath(kind), id), h.log)
			return
		}

		if err := out.SendJSON(http.StatusOK, toResourceView(info)); err != nil {
			h.log.Error().Err(err).Msg("failed to write resource response")
		}
	}
}

// deleteResponse is the JSON shape DeleteResource answers with.
type deleteResponse struct {
	RemainingAncestor *remainingAncestorView `json:"RemainingAncestor"`
}

type remainingAncestorView struct {
	Type string `json:"Type"`
	ID   string `json:"ID"`
	Path string `json:"Path"`
}

// Delete answers DELETE /{kind}/{id}.
func (h *ResourceHandler) Delete(kind models.ResourceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := httpoutput.New(w, h.log, keepAlive(r))
		defer out.Close()

		id := chi.URLParam(r, "id")
		ok, remaining, err := h.index.DeleteResource(r.Context(), id, kind)
		if err != nil {
			writeError(out, r, apierror.New(apierror.InternalError, "failed to delete resource", err), h.log)
			return
		}
		if !ok {
			writeError(out, r, apierror.Errorf(apierror.InexistentItem, "no %s with id %s", kindPath(kind), id), h.log)
			return
		}

		metrics.ResourcesDeleted.WithLabelValues(kind.String()).Inc()

		resp := deleteResponse{}
		if remaining != nil {
			resp.RemainingAncestor = &remainingAncestorView{
				Type: remaining.Kind.String(),
				ID:   remaining.PublicID,
				Path: "/" + kindPath(remaining.Kind) + "/" + remaining.PublicID,
			}
		}
		if err := out.SendJSON(http.StatusOK, resp); err != nil {
			h.log.Error().Err(err).Msg("failed to write delete response")
		}
	}
}

// File answers GET /instances/{id}/file with the raw stored DICOM bytes,
// the one retrieval route the distilled CRUD surface implies but never
// spells out -- every one of the attachments Store registers would
// otherwise be unreachable from the REST API.
func (h *ResourceHandler) File(w http.ResponseWriter, r *http.Request) {
	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	id := chi.URLParam(r, "id")
	att, found, err := h.index.LookupAttachment(r.Context(), id, models.FileDicom)
	if err != nil {
		writeError(out, r, apierror.New(apierror.InternalError, "failed to look up attachment", err), h.log)
		return
	}
	if !found {
		writeError(out, r, apierror.Errorf(apierror.InexistentItem, "no instance with id %s", id), h.log)
		return
	}

	reader, err := h.storage.Get(r.Context(), att.UUID)
	if err != nil {
		writeError(out, r, apierror.New(apierror.InternalError, "failed to open stored instance", err), h.log)
		return
	}
	defer reader.Close()

	machine := out.Machine()
	if err := machine.SetContentType("application/dicom"); err != nil {
		h.log.Error().Err(err).Msg("failed to set content type")
		return
	}
	if err := machine.SetContentLength(uint64(att.UncompressedSize)); err != nil {
		h.log.Error().Err(err).Msg("failed to set content length")
		return
	}

	buf := make([]byte, 64*1024)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if err := machine.SendBody(buf[:n]); err != nil {
				h.log.Error().Err(err).Msg("failed to stream instance body")
				return
			}
		}
		if readErr != nil {
			break
		}
	}
}

func tagMapToNames(tags map[models.TagKey]string) map[string]string {
	out := make(map[string]string, len(tags))
	for key, value := range tags {
		out[key.String()] = value
	}
	return out
}
