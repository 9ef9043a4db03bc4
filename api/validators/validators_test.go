package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

type priced struct {
	Name  string          `json:"name" validate:"required,max=5"`
	Price decimal.Decimal `json:"price" validate:"gte=0"`
}

func TestDecodeJSONBodyValidatesDecimal(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"ok","price":-1.5}`))
	var dest priced
	err := DecodeJSONBody(req, &dest)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok || details["price"] == "" {
		t.Fatalf("expected price detail, got %#v", pkgerrors.As(err).Details())
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"ok","price":"0.00"}`))
	if err := DecodeJSONBody(req, &dest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !dest.Price.Equal(decimal.Zero) {
		t.Fatalf("unexpected price %s", dest.Price)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"ok","price":1,"extra":true}`))
	var dest priced
	if err := DecodeJSONBody(req, &dest); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStructReportsFieldsByJSONName(t *testing.T) {
	err := Struct(&priced{Name: "too long name", Price: decimal.NewFromInt(1)})
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if details["name"] != "must be at most 5" {
		t.Fatalf("unexpected details %#v", details)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=20", nil)
	v, err := ParseQueryInt(req, "limit", 50, 1, 500)
	if err != nil || v != 20 {
		t.Fatalf("expected 20, got %d (%v)", v, err)
	}
	req = httptest.NewRequest("GET", "/", nil)
	if v, _ := ParseQueryInt(req, "limit", 50, 1, 500); v != 50 {
		t.Fatalf("expected default, got %d", v)
	}
	req = httptest.NewRequest("GET", "/?limit=0", nil)
	if _, err := ParseQueryInt(req, "limit", 50, 1, 500); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, err := BearerToken("Bearer abc"); err != nil || tok != "abc" {
		t.Fatalf("unexpected %q %v", tok, err)
	}
	if tok, err := BearerToken("bearer  xyz "); err != nil || tok != "xyz" {
		t.Fatalf("unexpected %q %v", tok, err)
	}
	for _, bad := range []string{"", "Bearer", "Bearer   ", "Basic abc"} {
		if _, err := BearerToken(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  pump  ", 3); got != "pum" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	if got := SanitizeString("válvula", 2); got != "vá" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeString("a\x00b\tc", 0); got != "abc" {
		t.Fatalf("expected control characters dropped, got %q", got)
	}
}
