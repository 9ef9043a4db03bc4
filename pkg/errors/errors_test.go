package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeStorage, status: http.StatusInternalServerError, publicMsg: "local storage unavailable"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing name")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing name" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "name"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if !strings.Contains(wrapped.Error(), "boom") {
		t.Fatalf("expected cause in message, got %q", wrapped.Error())
	}
}

func TestStorageWrapsOnce(t *testing.T) {
	if Storage(nil, "noop") != nil {
		t.Fatalf("nil error should stay nil")
	}
	cause := stdErrors.New("disk full")
	first := Storage(cause, "enqueue")
	second := Storage(fmt.Errorf("outer: %w", first), "again")
	if !IsCode(second, CodeStorage) {
		t.Fatalf("expected storage code on %v", second)
	}
	if !stdErrors.Is(second, cause) {
		t.Fatalf("expected cause to survive wrapping")
	}
	if typed := As(second); typed == nil || typed.Message() != "enqueue" {
		t.Fatalf("expected first storage wrap to be kept, got %v", typed)
	}
}

func TestIsCodeWalksChain(t *testing.T) {
	inner := New(CodeStorage, "write")
	outer := Wrap(CodeDependency, inner, "drain")
	if !IsCode(outer, CodeStorage) {
		t.Fatalf("expected nested storage code")
	}
	if IsCode(outer, CodeValidation) {
		t.Fatalf("unexpected validation code")
	}
	if IsCode(stdErrors.New("plain"), CodeStorage) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestDumpIncludesChainAndPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "outbox_entries_id_key", TableName: "outbox_entries", Message: "duplicate key"}
	err := Storage(pgErr, "enqueue")

	dump := Dump(err)
	if dump.Code != CodeStorage {
		t.Fatalf("expected storage code, got %s", dump.Code)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected chain with cause, got %v", dump.Chain)
	}
	if dump.PGCode != "23505" || dump.PGConstraint != "outbox_entries_id_key" {
		t.Fatalf("unexpected pg details %+v", dump)
	}
	fields := dump.Fields()
	if fields["pg_table"] != "outbox_entries" {
		t.Fatalf("expected pg_table field, got %v", fields)
	}
}
