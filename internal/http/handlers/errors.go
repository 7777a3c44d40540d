// Package handlers defines HTTP-layer error codes used by the ops API.
//
// These symbolic constants are mapped to HTTP responses via the fail()
// helper. They give clients a stable, machine-readable error taxonomy that
// supplements human-readable messages. Codes are lowercase snake_case and
// mirror common HTTP status semantics.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
