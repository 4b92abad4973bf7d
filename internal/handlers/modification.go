package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/orthanc-go/orthanc/internal/apierror"
	"github.com/orthanc-go/orthanc/internal/dicomcache"
	"github.com/orthanc-go/orthanc/internal/hashing"
	"github.com/orthanc-go/orthanc/internal/index"
	"github.com/orthanc-go/orthanc/internal/metrics"
	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/modification"
	"github.com/orthanc-go/orthanc/internal/storage"
	"github.com/orthanc-go/orthanc/pkg/httpoutput"
)

// ModificationHandler answers the modify/anonymize/create-dicom
// operations, the one part of the REST surface that drives C3
// (internal/modification) over one or many instances pulled through
// internal/dicomcache.
type ModificationHandler struct {
	index   *index.ServerIndex
	storage storage.Store
	cache   *dicomcache.Cache
	log     zerolog.Logger
}

// NewModificationHandler constructs a ModificationHandler.
func NewModificationHandler(idx *index.ServerIndex, store storage.Store, cache *dicomcache.Cache, log zerolog.Logger) *ModificationHandler {
	return &ModificationHandler{index: idx, storage: store, cache: cache, log: log}
}

type modifyRequest struct {
	Remove            []string          `json:"Remove"`
	Replace           map[string]string `json:"Replace"`
	RemovePrivateTags bool              `json:"RemovePrivateTags"`
}

type anonymizeRequest struct {
	Replace         map[string]string `json:"Replace"`
	Keep            []string          `json:"Keep"`
	Remove          []string          `json:"Remove"`
	KeepPrivateTags bool              `json:"KeepPrivateTags"`
}

// resolveLevel inspects a Replace map for identifier tags and returns the
// shallowest level touched, Instance if none, following the REST
// contract's "infer modification level" rule.
func resolveLevel(replace map[tag.Tag]string) models.ResourceKind {
	level := models.KindInstance
	if _, ok := replace[tag.SeriesInstanceUID]; ok && models.KindSeries < level {
		level = models.KindSeries
	}
	if _, ok := replace[tag.StudyInstanceUID]; ok && models.KindStudy < level {
		level = models.KindStudy
	}
	if _, ok := replace[tag.PatientID]; ok && models.KindPatient < level {
		level = models.KindPatient
	}
	return level
}

func resolveReplacements(raw map[string]string) (map[tag.Tag]string, error) {
	out := make(map[tag.Tag]string, len(raw))
	for name, value := range raw {
		t, err := modification.ParseTagName(name)
		if err != nil {
			return nil, apierror.New(apierror.BadRequest, fmt.Sprintf("unknown tag %q", name), err)
		}
		out[t] = value
	}
	return out, nil
}

func resolveTagNames(raw []string) ([]tag.Tag, error) {
	out := make([]tag.Tag, 0, len(raw))
	for _, name := range raw {
		t, err := modification.ParseTagName(name)
		if err != nil {
			return nil, apierror.New(apierror.BadRequest, fmt.Sprintf("unknown tag %q", name), err)
		}
		out = append(out, t)
	}
	return out, nil
}

func buildModifyConfig(req modifyRequest) (*modification.Config, error) {
	replacements, err := resolveReplacements(req.Replace)
	if err != nil {
		return nil, err
	}
	removals, err := resolveTagNames(req.Remove)
	if err != nil {
		return nil, err
	}

	cfg := modification.NewConfig(resolveLevel(replacements))
	cfg.RemovePrivateTags = req.RemovePrivateTags

	for _, t := range removals {
		if err := cfg.Remove(t); err != nil {
			return nil, apierror.New(apierror.BadRequest, "cannot remove an identifier above the inferred level", err)
		}
	}
	for t, value := range replacements {
		if err := cfg.Replace(t, value, false); err != nil {
			return nil, apierror.New(apierror.BadRequest, "cannot replace an identifier above the inferred level", err)
		}
	}
	return cfg, nil
}

func (h *ModificationHandler) buildAnonymizeConfig(req anonymizeRequest) (*modification.Config, error) {
	cfg := modification.NewConfig(models.KindPatient)
	cfg.SetupAnonymization()
	if req.KeepPrivateTags {
		cfg.RemovePrivateTags = false
	}

	keeps, err := resolveTagNames(req.Keep)
	if err != nil {
		return nil, err
	}
	for _, t := range keeps {
		cfg.Keep(t)
	}

	removals, err := resolveTagNames(req.Remove)
	if err != nil {
		return nil, err
	}
	for _, t := range removals {
		if err := cfg.Remove(t); err != nil {
			return nil, apierror.New(apierror.BadRequest, "cannot remove tag", err)
		}
	}

	replacements, err := resolveReplacements(req.Replace)
	if err != nil {
		return nil, err
	}
	for t, value := range replacements {
		if err := cfg.Replace(t, value, true); err != nil {
			return nil, apierror.New(apierror.BadRequest, "cannot replace tag", err)
		}
	}

	return cfg, nil
}

// ModifyInstance answers POST /instances/{id}/modify: it applies the
// requested transformation to the cached parsed dataset and answers the
// resulting bytes directly, without re-ingesting -- a single-instance
// modify is a read-transform-respond operation, not a store mutation.
func (h *ModificationHandler) ModifyInstance(w http.ResponseWriter, r *http.Request) {
	metrics.ModificationOperations.WithLabelValues("modify", "instance").Inc()
	h.singleInstance(w, r, func(req modifyRequest) (*modification.Config, error) {
		return buildModifyConfig(req)
	})
}

func (h *ModificationHandler) singleInstance(w http.ResponseWriter, r *http.Request, build func(modifyRequest) (*modification.Config, error)) {
	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	id := chi.URLParam(r, "id")
	var req modifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(out, r, err, h.log)
		return
	}

	cfg, err := build(req)
	if err != nil {
		writeError(out, r, err, h.log)
		return
	}

	h.applyAndRespond(out, r, id, cfg)
}

// AnonymizeInstance answers POST /instances/{id}/anonymize.
func (h *ModificationHandler) AnonymizeInstance(w http.ResponseWriter, r *http.Request) {
	metrics.ModificationOperations.WithLabelValues("anonymize", "instance").Inc()

	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	id := chi.URLParam(r, "id")
	var req anonymizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(out, r, err, h.log)
		return
	}

	cfg, err := h.buildAnonymizeConfig(req)
	if err != nil {
		writeError(out, r, err, h.log)
		return
	}
	if _, overridden := req.Replace["PatientName"]; !overridden {
		if err := h.applyFriendlyPatientName(r, cfg); err != nil {
			writeError(out, r, apierror.New(apierror.InternalError, "failed to generate anonymized patient name", err), h.log)
			return
		}
	}

	h.applyAndRespond(out, r, id, cfg)
}

func (h *ModificationHandler) applyFriendlyPatientName(r *http.Request, cfg *modification.Config) error {
	seq, err := h.index.IncrementGlobalSequence(r.Context(), models.GlobalPropertyAnonymizationSeq)
	if err != nil {
		return err
	}
	return cfg.Replace(tag.PatientName, fmt.Sprintf("Anonymized%d", seq), true)
}

func (h *ModificationHandler) applyAndRespond(out *httpoutput.Output, r *http.Request, instanceID string, cfg *modification.Config) {
	handle, err := h.cache.Acquire(r.Context(), instanceID)
	if err != nil {
		writeError(out, r, apierror.Errorf(apierror.InexistentItem, "no instance with id %s", instanceID), h.log)
		return
	}
	ds := modification.CloneDataset(handle.Dataset())
	handle.Release()

	if err := cfg.Apply(ds); err != nil {
		writeError(out, r, apierror.New(apierror.InternalError, "failed to apply modification", err), h.log)
		return
	}

	raw, err := serializeDataset(ds)
	if err != nil {
		writeError(out, r, apierror.New(apierror.InternalError, "failed to serialize modified instance", err), h.log)
		return
	}

	machine := out.Machine()
	if err := machine.SetContentType("application/dicom"); err != nil {
		h.log.Error().Err(err).Msg("failed to set content type")
		return
	}
	if err := machine.SetContentLength(uint64(len(raw))); err != nil {
		h.log.Error().Err(err).Msg("failed to set content length")
		return
	}
	if err := machine.SendBody(raw); err != nil {
		h.log.Error().Err(err).Msg("failed to send modified instance body")
	}
}

// newResourceView is the response shape AncestorOperation answers with, reporting the first newly created resource of the
// requested kind.
type newResourceView struct {
	Type      string `json:"Type"`
	ID        string `json:"ID"`
	Path      string `json:"Path"`
	PatientID string `json:"PatientID"`
}

// AncestorOperation answers POST /{series|studies|patients}/{id}/modify
// and /{series|studies|patients}/{id}/anonymize: every descendant
// instance of the named resource is rewritten and re-ingested, and the
// ancestors whose hash changed are linked back to the resource they were
// derived from via ModifiedFrom/AnonymizedFrom metadata.
func (h *ModificationHandler) AncestorOperation(kind models.ResourceKind, anonymize bool) http.HandlerFunc {
	operation := "modify"
	if anonymize {
		operation = "anonymize"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		metrics.ModificationOperations.WithLabelValues(operation, "ancestor").Inc()

		out := httpoutput.New(w, h.log, keepAlive(r))
		defer out.Close()

		id := chi.URLParam(r, "id")
		lineageKey := models.MetadataModifiedFrom
		if anonymize {
			lineageKey = models.MetadataAnonymizedFrom
		}

		var cfg *modification.Config
		if anonymize {
			var req anonymizeRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(out, r, err, h.log)
				return
			}
			built, err := h.buildAnonymizeConfig(req)
			if err != nil {
				writeError(out, r, err, h.log)
				return
			}
			cfg = built
			_, overridden := req.Replace["PatientName"]
			if !overridden {
				if err := h.applyFriendlyPatientName(r, cfg); err != nil {
					writeError(out, r, apierror.New(apierror.InternalError, "failed to generate anonymized patient name", err), h.log)
					return
				}
			}
		} else {
			var req modifyRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(out, r, err, h.log)
				return
			}
			built, err := buildModifyConfig(req)
			if err != nil {
				writeError(out, r, err, h.log)
				return
			}
			built.Level = kind
			cfg = built
		}

		instances, err := h.index.GetChildInstances(r.Context(), id)
		if err != nil {
			writeError(out, r, apierror.Errorf(apierror.InexistentItem, "no %s with id %s", kindPath(kind), id), h.log)
			return
		}

		var firstNew *newResourceView
		for _, instanceID := range instances {
			view, err := h.rewriteOneInstance(r, instanceID, cfg, lineageKey, kind)
			if errors.Is(err, errInstanceGone) {
				h.log.Warn().Err(err).Str("instance", instanceID).Msg("skipping instance in ancestor modify/anonymize")
				continue
			}
			if err != nil {
				writeError(out, r, apierror.New(apierror.InternalError, "failed to rewrite instance "+instanceID, err), h.log)
				return
			}
			if firstNew == nil && view != nil {
				firstNew = view
			}
		}

		if firstNew == nil {
			writeError(out, r, apierror.New(apierror.InternalError, "no instance could be rewritten", nil), h.log)
			return
		}
		if err := out.SendJSON(http.StatusOK, firstNew); err != nil {
			h.log.Error().Err(err).Msg("failed to write ancestor modify/anonymize response")
		}
	}
}

// errInstanceGone marks a child instance whose dataset could not be
// acquired from the cache (for instance because it was deleted
// concurrently); AncestorOperation skips such an instance, while any other
// rewrite error fails the whole request.
var errInstanceGone = errors.New("cache locker failure")

func (h *ModificationHandler) rewriteOneInstance(r *http.Request, instanceID string, cfg *modification.Config, lineageKey string, requestedKind models.ResourceKind) (*newResourceView, error) {
	handle, err := h.cache.Acquire(r.Context(), instanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInstanceGone, err)
	}
	ds := modification.CloneDataset(handle.Dataset())
	handle.Release()

	originalTags := modification.ExtractTags(ds)
	oldPatient, oldStudy, oldSeries, oldInstance := hashing.HashAll(identifiersFromTags(originalTags))

	// cfg's PatientName replacement (if any) was resolved once in
	// AncestorOperation before this loop started, so every instance's clone
	// carries the same fixed value -- matching ParseAnonymizationRequest's
	// single GeneratePatientName call shared across the whole operation.
	instanceCfg := cloneConfigForInstance(cfg)
	if err := instanceCfg.Apply(ds); err != nil {
		return nil, fmt.Errorf("failed to apply modification: %w", err)
	}

	newTags := modification.ExtractTags(ds)
	newPatient, newStudy, newSeries, newInstance := hashing.HashAll(identifiersFromTags(newTags))

	status, err := ingestDataset(r.Context(), h.index, h.storage, ds, "")
	if err != nil {
		return nil, fmt.Errorf("failed to re-ingest modified instance: %w", err)
	}
	_ = status

	for _, pair := range []struct {
		kind  models.ResourceKind
		oldID string
		newID string
	}{
		{models.KindPatient, oldPatient, newPatient},
		{models.KindStudy, oldStudy, newStudy},
		{models.KindSeries, oldSeries, newSeries},
		{models.KindInstance, oldInstance, newInstance},
	} {
		if pair.oldID == pair.newID {
			continue
		}
		if err := h.index.SetMetadata(r.Context(), pair.newID, lineageKey, pair.oldID); err != nil {
			h.log.Warn().Err(err).Str("resource", pair.newID).Msg("failed to record modify/anonymize lineage metadata")
		}
	}

	view := &newResourceView{
		Type:      requestedKind.String(),
		PatientID: newTags[tagKeyOf(tag.PatientID)],
	}
	switch requestedKind {
	case models.KindPatient:
		view.ID = newPatient
	case models.KindStudy:
		view.ID = newStudy
	case models.KindSeries:
		view.ID = newSeries
	default:
		view.ID = newInstance
	}
	view.Path = "/" + kindPath(requestedKind) + "/" + view.ID

	return view, nil
}

func identifiersFromTags(tags map[models.TagKey]string) hashing.Identifiers {
	return hashing.Identifiers{
		PatientID:         tags[tagKeyOf(tag.PatientID)],
		StudyInstanceUID:  tags[tagKeyOf(tag.StudyInstanceUID)],
		SeriesInstanceUID: tags[tagKeyOf(tag.SeriesInstanceUID)],
		SOPInstanceUID:    tags[tagKeyOf(tag.SOPInstanceUID)],
	}
}

func tagKeyOf(t tag.Tag) models.TagKey {
	return models.TagKey{Group: t.Group, Element: t.Element}
}

// cloneConfigForInstance copies a Config's rule set, so each instance of
// an ancestor-level request is rewritten with its own copy of the Config
// shared by the whole request.
func cloneConfigForInstance(cfg *modification.Config) *modification.Config {
	clone := modification.NewConfig(cfg.Level)
	clone.RemovePrivateTags = cfg.RemovePrivateTags
	clone.TruncateDates = cfg.TruncateDates
	clone.AllowManualIdentifiers = cfg.AllowManualIdentifiers
	for t, v := range cfg.Replacements {
		clone.Replacements[t] = v
	}
	for t := range cfg.Removals {
		clone.Removals[t] = struct{}{}
	}
	for t := range cfg.Keeps {
		clone.Keeps[t] = struct{}{}
	}
	return clone
}

func serializeDataset(ds *dicom.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := dicom.Write(&buf, *ds, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification(), dicom.DefaultMissingTransferSyntax()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
