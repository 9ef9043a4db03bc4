package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldsync/api/controllers"
	"github.com/angelmondragon/fieldsync/internal/syncer"
	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubSync struct {
	captured  []models.CapturedRecord
	result    syncer.Result
	err       error
	processed int
	pending   int64
	drains    int
}

func (s *stubSync) CaptureOrSync(_ context.Context, rec models.CapturedRecord) (syncer.Result, error) {
	s.captured = append(s.captured, rec)
	if s.err != nil {
		return syncer.Result{}, s.err
	}
	res := s.result
	res.ID = rec.ID
	return res, nil
}

func (s *stubSync) Drain(context.Context) (int, error) {
	s.drains++
	return s.processed, s.err
}

func (s *stubSync) PendingCount(context.Context) (int64, error) {
	return s.pending, nil
}

type stubOutbox struct {
	pending   []models.OutboxEntry
	failed    []models.OutboxEntry
	limit     int
	requeued  []uuid.UUID
	requeueFn func(uuid.UUID) error
}

func (s *stubOutbox) ListPending(context.Context) ([]models.OutboxEntry, error) {
	return s.pending, nil
}

func (s *stubOutbox) ListFailed(_ context.Context, limit int) ([]models.OutboxEntry, error) {
	s.limit = limit
	return s.failed, nil
}

func (s *stubOutbox) Requeue(_ context.Context, id uuid.UUID) error {
	s.requeued = append(s.requeued, id)
	if s.requeueFn != nil {
		return s.requeueFn(id)
	}
	return nil
}

type routerDeps struct {
	sync   *stubSync
	outbox *stubOutbox
	online bool
	pinger stubPinger
	login  string
}

func newTestRouter(t *testing.T, deps *routerDeps) http.Handler {
	t.Helper()
	if deps.sync == nil {
		deps.sync = &stubSync{}
	}
	if deps.outbox == nil {
		deps.outbox = &stubOutbox{}
	}
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	status := controllers.StatusSources{
		Online:   func() bool { return deps.online },
		Pending:  deps.sync.PendingCount,
		DeviceID: func(context.Context) (string, error) { return "device-1", nil },
		UserID:   func() (string, bool) { return "user-1", true },
		LoginURL: func() string { return deps.login },
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("# metrics"))
	})
	return NewRouter(cfg, logger.Nop(), deps.pinger, deps.sync, deps.outbox, status, metrics)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, rec.Body.String())
	}
	return envelope.Error.Code
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t, &routerDeps{})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Fieldsync-Env"); got != "test" {
		t.Fatalf("expected env header, got %q", got)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestHealthzReportsStorageFailure(t *testing.T) {
	h := newTestRouter(t, &routerDeps{pinger: stubPinger{err: context.DeadlineExceeded}})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeStorage) {
		t.Fatalf("expected storage code got %s", code)
	}
}

func TestMetricsMounted(t *testing.T) {
	h := newTestRouter(t, &routerDeps{})
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "metrics") {
		t.Fatalf("unexpected metrics response %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateCapture(t *testing.T) {
	sync := &stubSync{result: syncer.Result{Status: syncer.StatusQueued}}
	h := newTestRouter(t, &routerDeps{sync: sync})
	id := uuid.New()
	body := `{"id":"` + id.String() + `","name":"  Pump check ","productModel":"PX-100","partNumber":"A-1","quantity":2,"price":19.99,"capturedAt":"2026-03-01T10:00:00+02:00"}`

	rec := do(t, h, http.MethodPost, "/v1/captures", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	}
	decodeData(t, rec, &resp)
	if resp.ID != id || resp.Status != string(syncer.StatusQueued) {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(sync.captured) != 1 {
		t.Fatalf("expected one capture, got %d", len(sync.captured))
	}
	got := sync.captured[0]
	if got.Name != "Pump check" {
		t.Fatalf("expected trimmed name, got %q", got.Name)
	}
	if !got.Price.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("unexpected price %s", got.Price)
	}
	if got.CapturedAt.Location().String() != "UTC" || got.CapturedAt.Hour() != 8 {
		t.Fatalf("expected captured at in UTC, got %s", got.CapturedAt)
	}
}

func TestCreateCaptureAssignsID(t *testing.T) {
	sync := &stubSync{result: syncer.Result{Status: syncer.StatusSent, Outcome: enums.SubmitAccepted}}
	h := newTestRouter(t, &routerDeps{sync: sync})
	body := `{"name":"n","productModel":"m","partNumber":"p","quantity":1,"price":"0"}`

	rec := do(t, h, http.MethodPost, "/v1/captures", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rec.Code, rec.Body.String())
	}
	if sync.captured[0].ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	var resp struct {
		Outcome string `json:"outcome"`
	}
	decodeData(t, rec, &resp)
	if resp.Outcome != string(enums.SubmitAccepted) {
		t.Fatalf("unexpected outcome %q", resp.Outcome)
	}
}

func TestCreateCaptureValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"productModel":"m","partNumber":"p","quantity":1,"price":1}`},
		{name: "zero quantity", body: `{"name":"n","productModel":"m","partNumber":"p","quantity":0,"price":1}`},
		{name: "negative price", body: `{"name":"n","productModel":"m","partNumber":"p","quantity":1,"price":-1}`},
		{name: "missing price", body: `{"name":"n","productModel":"m","partNumber":"p","quantity":1}`},
		{name: "unknown field", body: `{"name":"n","productModel":"m","partNumber":"p","quantity":1,"price":1,"extra":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sync := &stubSync{}
			h := newTestRouter(t, &routerDeps{sync: sync})
			rec := do(t, h, http.MethodPost, "/v1/captures", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", rec.Code, rec.Body.String())
			}
			if len(sync.captured) != 0 {
				t.Fatalf("capture should not reach the service")
			}
		})
	}
}

func TestCreateCaptureStorageFailure(t *testing.T) {
	sync := &stubSync{err: pkgerrors.Storage(context.Canceled, "enqueue record")}
	h := newTestRouter(t, &routerDeps{sync: sync})
	body := `{"name":"n","productModel":"m","partNumber":"p","quantity":1,"price":1}`

	rec := do(t, h, http.MethodPost, "/v1/captures", body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeStorage) {
		t.Fatalf("expected storage code got %s", code)
	}
}

func TestTriggerSync(t *testing.T) {
	sync := &stubSync{processed: 3, pending: 1}
	h := newTestRouter(t, &routerDeps{sync: sync, online: true})

	rec := do(t, h, http.MethodPost, "/v1/sync", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp struct {
		Processed int   `json:"processed"`
		Pending   int64 `json:"pending"`
	}
	decodeData(t, rec, &resp)
	if resp.Processed != 3 || resp.Pending != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestTriggerSyncOffline(t *testing.T) {
	sync := &stubSync{}
	h := newTestRouter(t, &routerDeps{sync: sync})

	rec := do(t, h, http.MethodPost, "/v1/sync", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if sync.drains != 0 {
		t.Fatalf("drain should not run offline")
	}
}

func TestStatus(t *testing.T) {
	h := newTestRouter(t, &routerDeps{
		sync:   &stubSync{pending: 4},
		online: true,
		login:  "http://remote/Identity/Account/Login",
	})
	rec := do(t, h, http.MethodGet, "/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp struct {
		Online   bool   `json:"online"`
		Pending  int64  `json:"pending"`
		DeviceID string `json:"deviceId"`
		UserID   string `json:"userId"`
		LoginURL string `json:"loginUrl"`
	}
	decodeData(t, rec, &resp)
	if !resp.Online || resp.Pending != 4 || resp.DeviceID != "device-1" || resp.UserID != "user-1" {
		t.Fatalf("unexpected status %+v", resp)
	}
	if resp.LoginURL == "" {
		t.Fatalf("expected pending login url")
	}
}

func TestListOutbox(t *testing.T) {
	id := uuid.New()
	outbox := &stubOutbox{pending: []models.OutboxEntry{{
		ID:       id,
		Name:     "n",
		Price:    decimal.RequireFromString("1.50"),
		State:    enums.QueueEntryPending,
		Attempts: 2,
	}}}
	h := newTestRouter(t, &routerDeps{outbox: outbox})

	rec := do(t, h, http.MethodGet, "/v1/outbox", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp []struct {
		ID       uuid.UUID `json:"id"`
		State    string    `json:"state"`
		Attempts int       `json:"attempts"`
	}
	decodeData(t, rec, &resp)
	if len(resp) != 1 || resp[0].ID != id || resp[0].State != string(enums.QueueEntryPending) || resp[0].Attempts != 2 {
		t.Fatalf("unexpected outbox %+v", resp)
	}
}

func TestListFailedOutboxLimit(t *testing.T) {
	outbox := &stubOutbox{}
	h := newTestRouter(t, &routerDeps{outbox: outbox})

	rec := do(t, h, http.MethodGet, "/v1/outbox/failed", "")
	if rec.Code != http.StatusOK || outbox.limit != 100 {
		t.Fatalf("expected default limit, got %d (%d)", outbox.limit, rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/v1/outbox/failed?limit=5", "")
	if rec.Code != http.StatusOK || outbox.limit != 5 {
		t.Fatalf("expected limit 5, got %d (%d)", outbox.limit, rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/v1/outbox/failed?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestRequeueOutboxEntry(t *testing.T) {
	outbox := &stubOutbox{}
	h := newTestRouter(t, &routerDeps{outbox: outbox})
	id := uuid.New()

	rec := do(t, h, http.MethodPost, "/v1/outbox/"+id.String()+"/requeue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(outbox.requeued) != 1 || outbox.requeued[0] != id {
		t.Fatalf("unexpected requeue calls %v", outbox.requeued)
	}

	rec = do(t, h, http.MethodPost, "/v1/outbox/not-a-uuid/requeue", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestRequeueOutboxEntryConflict(t *testing.T) {
	outbox := &stubOutbox{requeueFn: func(uuid.UUID) error {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot requeue entry in state pending")
	}}
	h := newTestRouter(t, &routerDeps{outbox: outbox})

	rec := do(t, h, http.MethodPost, "/v1/outbox/"+uuid.NewString()+"/requeue", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}
