package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func sampleRecord() models.CapturedRecord {
	return models.CapturedRecord{
		ID:           uuid.MustParse("6f1c2d3e-4a5b-4c6d-8e7f-901234567890"),
		Name:         "Pump housing",
		CapturedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ProductModel: "PX-200",
		PartNumber:   "PN-1",
		Quantity:     2,
		Price:        decimal.RequireFromString("19.99"),
		DeviceID:     "device-abc",
		UserID:       "",
	}
}

func TestSubmitRequestShape(t *testing.T) {
	var (
		capturedURL    string
		capturedMethod string
		capturedHeader http.Header
		payload        map[string]any
	)
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedMethod = req.Method
		capturedHeader = req.Header.Clone()
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		return respond(http.StatusCreated, `{}`), nil
	})

	client, err := NewClient("http://remote.test/", WithHTTPClient(&http.Client{Transport: rt}), WithSessionToken("tok"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	outcome, err := client.Submit(context.Background(), sampleRecord())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome != enums.SubmitAccepted {
		t.Fatalf("expected accepted got %s", outcome)
	}
	if capturedMethod != http.MethodPost {
		t.Fatalf("unexpected method %s", capturedMethod)
	}
	if capturedURL != "http://remote.test/api/entries" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedHeader.Get("Content-Type") != "application/json" {
		t.Fatalf("content type missing")
	}
	if capturedHeader.Get("Authorization") != "Bearer tok" {
		t.Fatalf("authorization header %q", capturedHeader.Get("Authorization"))
	}
	if payload["id"] != "6f1c2d3e-4a5b-4c6d-8e7f-901234567890" {
		t.Fatalf("unexpected id %v", payload["id"])
	}
	if payload["price"] != 19.99 {
		t.Fatalf("price should be a JSON number, got %#v", payload["price"])
	}
	if payload["capturedAt"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected capturedAt %v", payload["capturedAt"])
	}
	if _, ok := payload["userId"]; !ok {
		t.Fatalf("userId must always be present")
	}
	if payload["deviceId"] != "device-abc" {
		t.Fatalf("unexpected deviceId %v", payload["deviceId"])
	}
}

func TestSubmitClassifiesStatus(t *testing.T) {
	tests := []struct {
		status  int
		outcome enums.SubmitOutcome
		code    pkgerrors.Code
	}{
		{status: http.StatusOK, outcome: enums.SubmitAccepted},
		{status: http.StatusCreated, outcome: enums.SubmitAccepted},
		{status: http.StatusConflict, outcome: enums.SubmitAlreadyExists},
		{status: http.StatusUnauthorized, outcome: enums.SubmitAuthenticationRejected, code: pkgerrors.CodeUnauthorized},
		{status: http.StatusInternalServerError, outcome: enums.SubmitServerError, code: pkgerrors.CodeDependency},
		{status: http.StatusServiceUnavailable, outcome: enums.SubmitServerError, code: pkgerrors.CodeDependency},
		{status: http.StatusBadRequest, outcome: enums.SubmitClientRejected, code: pkgerrors.CodeValidation},
		{status: http.StatusForbidden, outcome: enums.SubmitClientRejected, code: pkgerrors.CodeValidation},
		{status: http.StatusFound, outcome: enums.SubmitClientRejected, code: pkgerrors.CodeValidation},
	}

	for _, tt := range tests {
		rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
			return respond(tt.status, "nope"), nil
		})
		client, err := NewClient("http://remote.test", WithHTTPClient(&http.Client{Transport: rt}))
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		outcome, err := client.Submit(context.Background(), sampleRecord())
		if outcome != tt.outcome {
			t.Fatalf("status %d: expected %s got %s", tt.status, tt.outcome, outcome)
		}
		if tt.code == "" {
			if err != nil {
				t.Fatalf("status %d: unexpected error %v", tt.status, err)
			}
			continue
		}
		if !pkgerrors.IsCode(err, tt.code) {
			t.Fatalf("status %d: expected %s error, got %v", tt.status, tt.code, err)
		}
	}
}

func TestSubmitErrorBodyStaysValidUTF8(t *testing.T) {
	body := strings.Repeat("a", int(responseBodyReadLimit)-1) + "é"
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return respond(http.StatusUnprocessableEntity, body), nil
	})
	client, err := NewClient("http://remote.test", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	outcome, err := client.Submit(context.Background(), sampleRecord())
	if outcome != enums.SubmitClientRejected {
		t.Fatalf("expected client_rejected, got %s", outcome)
	}
	if err == nil {
		t.Fatal("expected error")
	}
	if !utf8.ValidString(err.Error()) {
		t.Fatalf("error message is not valid utf-8")
	}
	if !strings.Contains(err.Error(), strings.Repeat("a", 16)) {
		t.Fatalf("expected body in error, got %q", err.Error())
	}
}

func TestSubmitTransportErrorIsServerError(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	client, err := NewClient("http://remote.test", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	outcome, err := client.Submit(context.Background(), sampleRecord())
	if outcome != enums.SubmitServerError {
		t.Fatalf("expected server_error got %s", outcome)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestSubmitTimeoutIsServerError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(srv.URL, WithAttemptTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	outcome, err := client.Submit(context.Background(), sampleRecord())
	if outcome != enums.SubmitServerError {
		t.Fatalf("expected server_error got %s", outcome)
	}
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestClientKeepsSessionCookies(t *testing.T) {
	var sawCookie bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ProfilePath:
			http.SetCookie(w, &http.Cookie{Name: "fs_session", Value: "abc", Path: "/"})
			_, _ = w.Write([]byte(`{"id":"user-1","email":"a@b.c","roles":["tech"]}`))
		case EntriesPath:
			if c, err := r.Cookie("fs_session"); err == nil && c.Value == "abc" {
				sawCookie = true
			}
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	profile, status, err := client.FetchProfile(context.Background())
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if status != http.StatusOK || profile.ID != "user-1" || profile.Email != "a@b.c" {
		t.Fatalf("unexpected profile %+v status %d", profile, status)
	}
	if _, err := client.Submit(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !sawCookie {
		t.Fatalf("session cookie was not sent back")
	}
}

func TestFetchProfileFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   pkgerrors.Code
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: "", code: pkgerrors.CodeUnauthorized},
		{name: "server", status: http.StatusBadGateway, body: "down", code: pkgerrors.CodeDependency},
		{name: "bad json", status: http.StatusOK, body: "{", code: pkgerrors.CodeDependency},
		{name: "missing id", status: http.StatusOK, body: `{"email":"x"}`, code: pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
				if req.URL.Path != ProfilePath {
					t.Fatalf("unexpected path %s", req.URL.Path)
				}
				return respond(tt.status, tt.body), nil
			})
			client, err := NewClient("http://remote.test", WithHTTPClient(&http.Client{Transport: rt}))
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			_, status, err := client.FetchProfile(context.Background())
			if status != tt.status {
				t.Fatalf("expected status %d got %d", tt.status, status)
			}
			if !pkgerrors.IsCode(err, tt.code) {
				t.Fatalf("expected %s got %v", tt.code, err)
			}
		})
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatalf("expected error for empty base url")
	}
	client, err := NewClient("http://a.test", WithBaseURL("http://b.test/"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if got := client.buildURL("/api/entries"); got != "http://b.test/api/entries" {
		t.Fatalf("unexpected url %q", got)
	}
}
