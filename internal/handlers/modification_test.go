package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/orthanc-go/orthanc/internal/models"
)

// elementStringValue mirrors modification.getStringValue, which is
// unexported -- tests read the same shape back out by hand.
func elementStringValue(e *dicom.Element) string {
	if e == nil || e.Value == nil {
		return ""
	}
	if v, ok := e.Value.GetValue().([]string); ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

func parseInstanceBody(t *testing.T, body string) *dicom.Dataset {
	t.Helper()
	ds, err := dicom.Parse(strings.NewReader(body), int64(len(body)), nil)
	if err != nil {
		t.Fatalf("failed to parse instance body: %v", err)
	}
	return &ds
}

func TestModifyInstanceRewritesRequestedTags(t *testing.T) {
	stack := newTestStack(t)
	h := NewModificationHandler(stack.idx, stack.store, stack.cache, zerolog.Nop())
	instanceID := seedInstance(t, stack.idx, stack.store, "P1", "S1", "SE1", "I1",
		buildElement(t, tag.InstitutionName, "Old Hospital"))

	router := newRouter(nil, h, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/instances/"+instanceID+"/modify",
		strings.NewReader(`{"Replace":{"InstitutionName":"New Hospital"}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "application/dicom" {
		t.Fatalf("expected application/dicom, got %q", rec.Header().Get("Content-Type"))
	}

	ds := parseInstanceBody(t, rec.Body.String())
	elem, err := ds.FindElementByTag(tag.InstitutionName)
	if err != nil {
		t.Fatalf("expected InstitutionName to survive modify: %v", err)
	}
	if got := elementStringValue(elem); got != "New Hospital" {
		t.Fatalf("expected InstitutionName=New Hospital, got %q", got)
	}
}

func TestModifyInstanceRejectsMalformedBody(t *testing.T) {
	stack := newTestStack(t)
	h := NewModificationHandler(stack.idx, stack.store, stack.cache, zerolog.Nop())
	instanceID := seedInstance(t, stack.idx, stack.store, "P1", "S1", "SE1", "I1")

	router := newRouter(nil, h, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/instances/"+instanceID+"/modify", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAnonymizeInstanceClearsPatientIdentity(t *testing.T) {
	stack := newTestStack(t)
	h := NewModificationHandler(stack.idx, stack.store, stack.cache, zerolog.Nop())
	instanceID := seedInstance(t, stack.idx, stack.store, "P1", "S1", "SE1", "I1",
		buildElement(t, tag.PatientName, "Doe^Jane"))

	router := newRouter(nil, h, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/instances/"+instanceID+"/anonymize", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	ds := parseInstanceBody(t, rec.Body.String())
	nameElem, err := ds.FindElementByTag(tag.PatientName)
	if err != nil {
		t.Fatalf("expected PatientName to be present after anonymize: %v", err)
	}
	if got := elementStringValue(nameElem); !strings.HasPrefix(got, "Anonymized") {
		t.Fatalf("expected friendly Anonymized<N> PatientName, got %q", got)
	}

	idElem, err := ds.FindElementByTag(tag.PatientID)
	if err != nil || elementStringValue(idElem) == "P1" {
		t.Fatalf("expected PatientID to be regenerated, got err=%v", err)
	}
}

// TestAnonymizeInstanceHonorsUserSuppliedPatientName exercises the REST
// layer's PatientName branch in modification.go, which checks for a
// "PatientName" key in the request's Replace object: when the caller
// overrides PatientName explicitly, the friendly Anonymized<N> name must
// never clobber it.
func TestAnonymizeInstanceHonorsUserSuppliedPatientName(t *testing.T) {
	stack := newTestStack(t)
	h := NewModificationHandler(stack.idx, stack.store, stack.cache, zerolog.Nop())
	instanceID := seedInstance(t, stack.idx, stack.store, "P1", "S1", "SE1", "I1")

	router := newRouter(nil, h, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/instances/"+instanceID+"/anonymize",
		strings.NewReader(`{"Replace":{"PatientName":"UserChosen"}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	ds := parseInstanceBody(t, rec.Body.String())
	nameElem, err := ds.FindElementByTag(tag.PatientName)
	if err != nil {
		t.Fatalf("expected PatientName: %v", err)
	}
	if got := elementStringValue(nameElem); got != "UserChosen" {
		t.Fatalf("expected the user's own PatientName to survive, got %q", got)
	}
}

// TestAncestorOperationModifyStampsModifiedFromLineage exercises
// rewriteOneInstance end to end: a Study-level modify must re-ingest under
// a fresh study hash and record ModifiedFrom against the new study,
// pointing back at the one it replaced.
func TestAncestorOperationModifyStampsModifiedFromLineage(t *testing.T) {
	stack := newTestStack(t)
	h := NewModificationHandler(stack.idx, stack.store, stack.cache, zerolog.Nop())
	seedInstance(t, stack.idx, stack.store, "P1", "S1", "SE1", "I1")

	router := newRouter(nil, h, nil, nil)

	studies, err := stack.idx.GetAllUUIDs(context.Background(), models.KindStudy)
	if err != nil || len(studies) != 1 {
		t.Fatalf("expected exactly 1 study, got %v, err %v", studies, err)
	}
	studyID := studies[0]

	req := httptest.NewRequest(http.MethodPost, "/studies/"+studyID+"/modify",
		strings.NewReader(`{"Replace":{"InstitutionName":"Renamed Clinic"}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view newResourceView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Type != models.KindStudy.String() {
		t.Fatalf("expected a Study-level view, got %q", view.Type)
	}
	if view.ID == studyID {
		t.Fatalf("expected the rewritten study to get a fresh ID, got the original %q", view.ID)
	}

	value, ok := metadataFor(t, stack.db, view.ID, models.MetadataModifiedFrom)
	if !ok {
		t.Fatalf("expected ModifiedFrom metadata on the rewritten study")
	}
	if value != studyID {
		t.Fatalf("expected ModifiedFrom=%q, got %q", studyID, value)
	}
}

// TestAncestorOperationAnonymizeStampsAnonymizedFromLineage is the
// anonymize counterpart: the key differs (AnonymizedFrom) but the lineage
// invariant is the same.
func TestAncestorOperationAnonymizeStampsAnonymizedFromLineage(t *testing.T) {
	stack := newTestStack(t)
	h := NewModificationHandler(stack.idx, stack.store, stack.cache, zerolog.Nop())
	seedInstance(t, stack.idx, stack.store, "P1", "S1", "SE1", "I1")

	router := newRouter(nil, h, nil, nil)

	studies, err := stack.idx.GetAllUUIDs(context.Background(), models.KindStudy)
	if err != nil || len(studies) != 1 {
		t.Fatalf("expected exactly 1 study, got %v, err %v", studies, err)
	}
	studyID := studies[0]

	req := httptest.NewRequest(http.MethodPost, "/studies/"+studyID+"/anonymize", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view newResourceView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	value, ok := metadataFor(t, stack.db, view.ID, models.MetadataAnonymizedFrom)
	if !ok {
		t.Fatalf("expected AnonymizedFrom metadata on the rewritten study")
	}
	if value != studyID {
		t.Fatalf("expected AnonymizedFrom=%q, got %q", studyID, value)
	}
}

// TestAncestorOperationAnonymizeSharesPatientNameAcrossInstances exercises
// AncestorOperation's single-resolution fix for the friendly PatientName:
// every instance under the same study must come out with the *same*
// AnonymizedN value, not one generated per instance, matching
// ParseAnonymizationRequest's single GeneratePatientName call shared
// across the whole DicomModification object.
func TestAncestorOperationAnonymizeSharesPatientNameAcrossInstances(t *testing.T) {
	stack := newTestStack(t)
	h := NewModificationHandler(stack.idx, stack.store, stack.cache, zerolog.Nop())
	seedInstance(t, stack.idx, stack.store, "P1", "S1", "SE1", "I1")
	seedInstance(t, stack.idx, stack.store, "P1", "S1", "SE1", "I2")
	seedInstance(t, stack.idx, stack.store, "P1", "S1", "SE1", "I3")

	router := newRouter(nil, h, nil, nil)

	studies, err := stack.idx.GetAllUUIDs(context.Background(), models.KindStudy)
	if err != nil || len(studies) != 1 {
		t.Fatalf("expected exactly 1 study, got %v, err %v", studies, err)
	}
	studyID := studies[0]

	instancesBefore, err := stack.idx.GetChildInstances(context.Background(), studyID)
	if err != nil || len(instancesBefore) != 3 {
		t.Fatalf("expected 3 instances under the study, got %v, err %v", instancesBefore, err)
	}

	req := httptest.NewRequest(http.MethodPost, "/studies/"+studyID+"/anonymize", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view newResourceView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	instancesAfter, err := stack.idx.GetChildInstances(context.Background(), view.ID)
	if err != nil || len(instancesAfter) != 3 {
		t.Fatalf("expected 3 rewritten instances under the new study, got %v, err %v", instancesAfter, err)
	}

	var names []string
	for _, instanceID := range instancesAfter {
		handle, err := stack.cache.Acquire(context.Background(), instanceID)
		if err != nil {
			t.Fatalf("Acquire(%s): %v", instanceID, err)
		}
		elem, err := handle.Dataset().FindElementByTag(tag.PatientName)
		handle.Release()
		if err != nil {
			t.Fatalf("expected PatientName on %s: %v", instanceID, err)
		}
		names = append(names, elementStringValue(elem))
	}

	for _, name := range names {
		if !strings.HasPrefix(name, "Anonymized") {
			t.Fatalf("expected every instance's PatientName to start with Anonymized, got %v", names)
		}
		if name != names[0] {
			t.Fatalf("expected every instance to share the same friendly PatientName, got %v", names)
		}
	}
}

func TestCreateDicomBuildsAndIngestsInstance(t *testing.T) {
	stack := newTestStack(t)
	h := NewModificationHandler(stack.idx, stack.store, stack.cache, zerolog.Nop())

	router := newRouter(nil, h, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/tools/create-dicom",
		strings.NewReader(`{"PatientID":"P9","StudyInstanceUID":"S9","SeriesInstanceUID":"SE9","SOPInstanceUID":"I9","PatientName":"Roe^Richard"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp createDicomResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" {
		t.Fatalf("expected a non-empty instance ID")
	}

	instances, err := stack.idx.GetAllUUIDs(context.Background(), models.KindInstance)
	if err != nil || len(instances) != 1 {
		t.Fatalf("expected the created instance to be indexed, got %v, err %v", instances, err)
	}
}
