package callback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pagemarkhq/pagehook/internal/courier"
	"github.com/pagemarkhq/pagehook/internal/dispatch"
	"github.com/pagemarkhq/pagehook/internal/logging"
	"github.com/pagemarkhq/pagehook/internal/store"
)

type recordedResult struct {
	destinationID, eventID, eventType, status string
	httpStatus, attempts                      int
	lastError                                 string
}

type fakeRecorder struct {
	results  []recordedResult
	terminal map[string]bool // destinationID|eventID already terminal
	err      error
}

func (f *fakeRecorder) RecordResult(_ context.Context, destinationID, eventID, eventType, status string, httpStatus int, lastError string, attempts int) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	key := destinationID + "|" + eventID
	if f.terminal[key] {
		return false, nil
	}
	if f.terminal == nil {
		f.terminal = make(map[string]bool)
	}
	f.terminal[key] = true
	f.results = append(f.results, recordedResult{destinationID, eventID, eventType, status, httpStatus, attempts, lastError})
	return true, nil
}

type fakeVerifier struct{ err error }

func (f *fakeVerifier) Verify(string) error { return f.err }

type fakePolicy struct {
	failures  []string
	successes []string
	disableAt int
}

func (f *fakePolicy) OnFailure(_ context.Context, id string) (bool, int, error) {
	f.failures = append(f.failures, id)
	streak := 0
	for _, d := range f.failures {
		if d == id {
			streak++
		}
	}
	return f.disableAt > 0 && streak >= f.disableAt, streak, nil
}

func (f *fakePolicy) OnSuccess(_ context.Context, id string) error {
	f.successes = append(f.successes, id)
	return nil
}

func newTestHandler(rec *fakeRecorder, ver *fakeVerifier, pol *fakePolicy) *Handler {
	return NewHandler(rec, ver, pol, logging.New("callback-test"))
}

func callbackRequest(t *testing.T, url string, res courier.Result) *http.Request {
	t.Helper()
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(string(b)))
	req.Header.Set(courier.CallbackSignatureHeader, "test-token")
	return req
}

func TestHandlerRecordsSuccess(t *testing.T) {
	rec := &fakeRecorder{}
	pol := &fakePolicy{}
	h := newTestHandler(rec, &fakeVerifier{}, pol)

	url := dispatch.BuildCallbackURL("http://pagehook", "wh-1", "evt-1", "document.viewed")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, callbackRequest(t, url, courier.Result{Status: 200, Attempts: 1}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if len(rec.results) != 1 {
		t.Fatalf("recorded %d results, want 1", len(rec.results))
	}
	got := rec.results[0]
	if got.destinationID != "wh-1" || got.eventID != "evt-1" || got.eventType != "document.viewed" {
		t.Errorf("correlation fields = %+v", got)
	}
	if got.status != store.StatusDelivered {
		t.Errorf("status = %q, want delivered", got.status)
	}
	if len(pol.successes) != 1 || pol.successes[0] != "wh-1" {
		t.Errorf("policy successes = %v, want [wh-1]", pol.successes)
	}
}

func TestHandlerRecordsFailure(t *testing.T) {
	rec := &fakeRecorder{}
	pol := &fakePolicy{}
	h := newTestHandler(rec, &fakeVerifier{}, pol)

	url := dispatch.BuildCallbackURL("http://pagehook", "wh-2", "evt-9", "link.created")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, callbackRequest(t, url, courier.Result{
		Status:   503,
		Attempts: 3,
		Error:    "max attempts reached",
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := rec.results[0]
	if got.status != store.StatusFailed {
		t.Errorf("status = %q, want failed", got.status)
	}
	if got.httpStatus != 503 || got.attempts != 3 || got.lastError != "max attempts reached" {
		t.Errorf("failure details = %+v", got)
	}
	if len(pol.failures) != 1 {
		t.Errorf("policy failures = %v, want one entry", pol.failures)
	}
}

func TestHandlerDuplicateCallbackIsNoOp(t *testing.T) {
	rec := &fakeRecorder{}
	pol := &fakePolicy{}
	h := newTestHandler(rec, &fakeVerifier{}, pol)

	url := dispatch.BuildCallbackURL("http://pagehook", "wh-1", "evt-1", "document.viewed")
	res := courier.Result{Status: 200, Attempts: 1}

	first := httptest.NewRecorder()
	h.ServeHTTP(first, callbackRequest(t, url, res))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, callbackRequest(t, url, res))

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d, want 200, 200", first.Code, second.Code)
	}
	if len(rec.results) != 1 {
		t.Errorf("recorded %d results after duplicate, want 1", len(rec.results))
	}

	var resp struct {
		OK        bool `json:"ok"`
		Duplicate bool `json:"duplicate"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("second response not JSON: %v", err)
	}
	if !resp.OK || !resp.Duplicate {
		t.Errorf("second response = %+v, want ok duplicate", resp)
	}
	// Duplicate must not double-count towards the failure policy either.
	if len(pol.successes) != 1 {
		t.Errorf("policy successes = %v, want exactly one", pol.successes)
	}
}

func TestHandlerMalformedRequests(t *testing.T) {
	tests := []struct {
		name string
		url  string
		body string
	}{
		{
			name: "missing webhookId",
			url:  "http://pagehook/api/webhooks/callback?eventId=evt-1&event=document.viewed",
			body: `{"status":200,"attempts":1}`,
		},
		{
			name: "missing eventId",
			url:  "http://pagehook/api/webhooks/callback?webhookId=wh-1&event=document.viewed",
			body: `{"status":200,"attempts":1}`,
		},
		{
			name: "missing event type",
			url:  "http://pagehook/api/webhooks/callback?webhookId=wh-1&eventId=evt-1",
			body: `{"status":200,"attempts":1}`,
		},
		{
			name: "no parameters at all",
			url:  "http://pagehook/api/webhooks/callback",
			body: `{"status":200,"attempts":1}`,
		},
		{
			name: "unparseable body",
			url:  dispatch.BuildCallbackURL("http://pagehook", "wh-1", "evt-1", "document.viewed"),
			body: `{not json`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			h := newTestHandler(rec, &fakeVerifier{}, &fakePolicy{})

			req := httptest.NewRequest(http.MethodPost, tt.url, strings.NewReader(tt.body))
			req.Header.Set(courier.CallbackSignatureHeader, "test-token")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if len(rec.results) != 0 {
				t.Errorf("recorded %d results for malformed callback, want 0", len(rec.results))
			}
		})
	}
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	rec := &fakeRecorder{}
	h := newTestHandler(rec, &fakeVerifier{err: errors.New("bad token")}, &fakePolicy{})

	url := dispatch.BuildCallbackURL("http://pagehook", "wh-1", "evt-1", "document.viewed")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, callbackRequest(t, url, courier.Result{Status: 200}))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(rec.results) != 0 {
		t.Errorf("recorded %d results for unauthorized callback, want 0", len(rec.results))
	}
}

func TestHandlerRejectsNonPost(t *testing.T) {
	h := newTestHandler(&fakeRecorder{}, &fakeVerifier{}, &fakePolicy{})

	url := dispatch.BuildCallbackURL("http://pagehook", "wh-1", "evt-1", "document.viewed")
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHandlerPersistenceError(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	h := newTestHandler(rec, &fakeVerifier{}, &fakePolicy{})

	url := dispatch.BuildCallbackURL("http://pagehook", "wh-1", "evt-1", "document.viewed")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, callbackRequest(t, url, courier.Result{Status: 200}))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestHandlerDisablesAfterSustainedFailure(t *testing.T) {
	rec := &fakeRecorder{}
	pol := &fakePolicy{disableAt: 2}
	h := newTestHandler(rec, &fakeVerifier{}, pol)

	// Two different events failing for the same destination.
	for _, eventID := range []string{"evt-1", "evt-2"} {
		url := dispatch.BuildCallbackURL("http://pagehook", "wh-1", eventID, "document.viewed")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, callbackRequest(t, url, courier.Result{Status: 500, Attempts: 3, Error: "boom"}))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	}

	if len(pol.failures) != 2 {
		t.Errorf("policy saw %d failures, want 2", len(pol.failures))
	}
}

func TestHandlerPercentEncodedCorrelation(t *testing.T) {
	rec := &fakeRecorder{}
	h := newTestHandler(rec, &fakeVerifier{}, &fakePolicy{})

	destID := "wh/1 &x=y?"
	url := dispatch.BuildCallbackURL("http://pagehook", destID, "evt-1", "dataroom.viewed")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, callbackRequest(t, url, courier.Result{Status: 200, Attempts: 1}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if rec.results[0].destinationID != destID {
		t.Errorf("destination id round-trip = %q, want %q", rec.results[0].destinationID, destID)
	}
}
