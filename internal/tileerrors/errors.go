// Package tileerrors defines the closed set of error kinds the tile
// pipeline can produce, and how each maps to an HTTP status for the
// inbound handler.
package tileerrors

import "fmt"

// Kind identifies which stage of the pipeline rejected a tile or request.
type Kind string

const (
	KindMissingHost          Kind = "missing_host"
	KindInvalidHost          Kind = "invalid_host"
	KindUnexpectedHost       Kind = "unexpected_host"
	KindUnexpectedAdvertiser Kind = "unexpected_advertiser"
	KindAdmServerError       Kind = "adm_server_error"
	KindBadAdmResponse       Kind = "bad_adm_response"
	KindInternal             Kind = "internal"
)

// Error is the single error type returned by the tile pipeline. It carries
// enough structure for the validator to report per-field failures and for
// the HTTP handler to decide between a quiet 204 and a 5xx.
type Error struct {
	Kind    Kind
	Field   string // e.g. "click_url", "advertiser_url", "impression_url"
	Detail  string
	wrapped error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.wrapped }

// HTTPStatus reports the status code the handler must surface for this
// error kind. Only KindInternal ever becomes a 5xx; every other kind is
// absorbed upstream per the quiet-failure contract.
func (e *Error) HTTPStatus() int {
	if e.Kind == KindInternal {
		return 500
	}
	return 204
}

func MissingHost(field string) *Error {
	return &Error{Kind: KindMissingHost, Field: field, Detail: "url has no host"}
}

// InvalidHost covers both halves of §7's "URL failed to parse OR query
// shape invalid": detail should read naturally after the field name, e.g.
// "could not parse url %q" or "unexpected query parameter: foo".
func InvalidHost(field, detail string) *Error {
	return &Error{Kind: KindInvalidHost, Field: field, Detail: detail}
}

func UnexpectedHost(field, host string) *Error {
	return &Error{Kind: KindUnexpectedHost, Field: field, Detail: fmt.Sprintf("host %q not in allow list", host)}
}

func UnexpectedAdvertiser(name string) *Error {
	return &Error{Kind: KindUnexpectedAdvertiser, Detail: fmt.Sprintf("advertiser %q not in ruleset", name)}
}

func AdmServerError(detail string, wrapped error) *Error {
	return &Error{Kind: KindAdmServerError, Detail: detail, wrapped: wrapped}
}

func BadAdmResponse(detail string, wrapped error) *Error {
	return &Error{Kind: KindBadAdmResponse, Detail: detail, wrapped: wrapped}
}

func Internal(detail string, wrapped error) *Error {
	return &Error{Kind: KindInternal, Detail: detail, wrapped: wrapped}
}
