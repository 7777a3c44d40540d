package command

// Result is the structured outcome of one command. Every handler returns a
// Result — success or failure — and the transport writes it back to the
// caller as a single JSON object. Nothing is swallowed server-side.
//
// Code follows the wire contract of the original protocol:
//
//	200 success (both the fresh-insert and already-recorded report paths)
//	400 invalid command / missing target / unsupported code
//	401 signature rejected
//	404 record not found
//	409 conflict (e.g. duplicate username)
//	429 rate limited
//	500 clock skew or storage failure
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Wire result codes.
const (
	StatusOK           = 200
	StatusBadRequest   = 400
	StatusUnauthorized = 401
	StatusNotFound     = 404
	StatusConflict     = 409
	StatusRateLimited  = 429
	StatusError        = 500
)

// OK builds a success result carrying data.
func OK(data any) Result {
	return Result{Code: StatusOK, Data: data}
}

// Failure builds an error result with a stable code and a caller-safe
// message.
func Failure(code int, msg string) Result {
	return Result{Code: code, Message: msg}
}
