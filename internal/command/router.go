package command

import (
	"context"
	"fmt"
)

// HandlerFunc processes one decoded command and returns its structured
// result. Handlers must not panic on bad input; validation failures are
// expressed as failure Results so the connection stays usable.
type HandlerFunc func(ctx context.Context, cmd *Command) Result

// routeKey selects exactly one handler. Both the operation letter and the
// numeric code must match: the same code registered under a different verb
// is a different (unknown) command.
type routeKey struct {
	op   Op
	code int
}

// Router maps (op, code) pairs to registered handlers. It holds no state
// across commands and performs no retries.
//
// Registration happens once during bootstrap; Dispatch is then safe for
// concurrent use.
type Router struct {
	routes map[routeKey]HandlerFunc
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[routeKey]HandlerFunc)}
}

// Register binds a handler to an (op, code) pair. Registering the same pair
// twice panics; that is a programming error, not a runtime condition.
func (r *Router) Register(op Op, code int, h HandlerFunc) {
	k := routeKey{op: op, code: code}
	if _, dup := r.routes[k]; dup {
		panic(fmt.Sprintf("command: duplicate route %s %d", op, code))
	}
	r.routes[k] = h
}

// Dispatch selects the handler for cmd and runs it. A command whose
// (op, code) has no registered handler fails with a structured
// invalid-command result and never reaches any domain handler.
func (r *Router) Dispatch(ctx context.Context, cmd *Command) Result {
	h, ok := r.routes[routeKey{op: cmd.Op, code: cmd.Code}]
	if !ok {
		return Failure(StatusBadRequest,
			fmt.Sprintf("no handler for ops %q code %d", cmd.Op, cmd.Code))
	}
	return h(ctx, cmd)
}
