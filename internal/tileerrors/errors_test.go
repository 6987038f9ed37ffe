package tileerrors

import (
	"errors"
	"testing"
)

func TestHTTPStatusOnlyInternalIs5xx(t *testing.T) {
	kinds := []*Error{
		MissingHost("click_url"),
		InvalidHost("click_url", "not a url"),
		UnexpectedHost("click_url", "evil.example"),
		UnexpectedAdvertiser("acme"),
		InvalidHost("click_url", "missing required query parameter: key"),
		AdmServerError("timeout", nil),
		BadAdmResponse("bad json", nil),
	}
	for _, e := range kinds {
		if e.HTTPStatus() != 204 {
			t.Errorf("%v: HTTPStatus() = %d, want 204", e.Kind, e.HTTPStatus())
		}
	}

	internal := Internal("panic recovered", nil)
	if internal.HTTPStatus() != 500 {
		t.Errorf("Internal HTTPStatus() = %d, want 500", internal.HTTPStatus())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := AdmServerError("fetch failed", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find wrapped cause")
	}
}
