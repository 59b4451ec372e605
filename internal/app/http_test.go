package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"covenant/api/internal/store"
)

func newTestServer(fs *fakeStore, fr *fakeRevlog) *HTTPServer {
	return NewHTTPServer(newTestService(fs, fr), "*")
}

func doRequest(t *testing.T, server *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodGet, "/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["ok"] != true {
		t.Fatalf("expected ok true, got %v", payload["ok"])
	}
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeRevlog{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	if got := recorder.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected request ID echoed, got %q", got)
	}
}

func TestListContractsEnvelope(t *testing.T) {
	fs := &fakeStore{
		listContractsFn: func(_ context.Context, cohortID string) ([]store.Contract, error) {
			if cohortID != "" {
				t.Fatalf("expected empty cohort filter, got %q", cohortID)
			}
			return []store.Contract{{ID: "ctr_1", CohortID: "coh_1", Title: "Our Contract"}}, nil
		},
	}
	server := newTestServer(fs, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodGet, "/contracts", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	contracts, ok := payload["contracts"].([]any)
	if !ok || len(contracts) != 1 {
		t.Fatalf("expected one contract in envelope, got %v", payload)
	}
}

func TestCreateContractValidationError(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodPost, "/contracts", `{"cohortId":"coh_1","title":""}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", payload["code"])
	}
}

func TestCreateContractInvalidJSON(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodPost, "/contracts", `{"cohortId":`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "INVALID_BODY" {
		t.Fatalf("expected INVALID_BODY, got %v", payload["code"])
	}
}

func TestCreateContractReturns201(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodPost, "/contracts", `{"cohortId":"coh_1","title":"Our Contract"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestGetContractNotFound(t *testing.T) {
	fs := &fakeStore{
		getContractTreeFn: func(context.Context, string) (store.ContractTree, error) {
			return store.ContractTree{}, sql.ErrNoRows
		},
	}
	server := newTestServer(fs, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodGet, "/contracts/ctr_missing", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", payload["code"])
	}
}

func TestDeleteContractConflict(t *testing.T) {
	fs := &fakeStore{
		deleteContractFn: func(context.Context, string) error {
			return store.ErrHasDependents
		},
	}
	server := newTestServer(fs, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodDelete, "/contracts/ctr_1", "")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "CONFLICT" {
		t.Fatalf("expected CONFLICT, got %v", payload["code"])
	}
}

func TestDeleteContractReturns204(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodDelete, "/contracts/ctr_1", "")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestProposeAmendmentEndpoint(t *testing.T) {
	inserted := store.Amendment{}
	fs := &fakeStore{
		insertAmendmentFn: func(_ context.Context, item store.Amendment) error {
			inserted = item
			return nil
		},
		getAmendmentFn: func(_ context.Context, amendmentID string) (store.Amendment, error) {
			inserted.ID = amendmentID
			return inserted, nil
		},
	}
	server := newTestServer(fs, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodPost, "/contracts/ctr_1/amend",
		`{"clauseId":"cls_1","authorId":"usr_1","content":"meet twice a week"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["status"] != store.AmendmentPending {
		t.Fatalf("expected PENDING, got %v", payload["status"])
	}
}

func TestDecideAmendmentAlreadyDecidedEndpoint(t *testing.T) {
	fs := &fakeStore{
		decideAmendmentFn: func(context.Context, string, string, string) (store.Amendment, error) {
			return store.Amendment{}, store.ErrAlreadyDecided
		},
	}
	server := newTestServer(fs, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodPost, "/amendments/amd_1/decide",
		`{"decision":"ACCEPT","deciderId":"usr_1"}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %v", payload["code"])
	}
}

func TestDeleteClauseConflictEndpoint(t *testing.T) {
	fs := &fakeStore{
		deleteClauseFn: func(context.Context, string) error {
			return store.ErrHasDependents
		},
	}
	server := newTestServer(fs, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodDelete, "/clauses/cls_1", "")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
}

func TestRecordTensionMissingValue(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodPost, "/contracts/ctr_1/tension",
		`{"userId":"usr_1","context":"sprint retro"}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestRecordTensionCreated(t *testing.T) {
	stored := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		insertTensionFn: func(_ context.Context, item store.TensionMeasurement) (store.TensionMeasurement, error) {
			if item.Value != 7 {
				t.Fatalf("expected value 7, got %d", item.Value)
			}
			item.CreatedAt = stored
			return item, nil
		},
	}
	server := newTestServer(fs, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodPost, "/contracts/ctr_1/tension",
		`{"userId":"usr_1","value":7,"context":"sprint retro"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["createdAt"] != stored.Format(time.RFC3339) {
		t.Fatalf("expected the stored row's createdAt in the response, got %v", payload["createdAt"])
	}
}

func TestUpdateFailureFrozenEndpoint(t *testing.T) {
	fs := &fakeStore{
		updateFailureEntryFn: func(context.Context, string, string, string) error {
			return store.ErrHasIterations
		},
	}
	server := newTestServer(fs, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodPut, "/failures/fail_1",
		`{"title":"t","content":"c"}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %v", payload["code"])
	}
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodGet, "/nope", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeRevlog{})
	recorder := doRequest(t, server, http.MethodPatch, "/users", "")
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
}
