// Package services defines the business logic for the browse ledger and
// the thin user/event CRUD domains. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into wire result codes is performed at the command-handler
// layer.
package services

import "errors"

// Browse-ledger errors.
var (
	// ErrMissingTarget is returned when a report or count request carries
	// no target identifier.
	ErrMissingTarget = errors.New("target id is required")

	// ErrMissingAnonymousID is returned when a report carries neither an
	// authenticated identity nor an anonymous client identifier.
	ErrMissingAnonymousID = errors.New("anonymous id is required")

	// ErrClockSkew is returned when a client-supplied created_at differs
	// from server time by more than the configured bound.
	ErrClockSkew = errors.New("reported time is too far from server time")

	// ErrInvalidTimeRange is returned when a read supplies only one of the
	// two time-range bounds; both are required together.
	ErrInvalidTimeRange = errors.New("start and end time must be supplied together")
)

// User errors.
var (
	// ErrUserNotFound indicates that the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrMissingUsername is returned when a create-user request has a
	// blank username.
	ErrMissingUsername = errors.New("username is required")

	// ErrDuplicateUsername is returned when the requested username is
	// already taken.
	ErrDuplicateUsername = errors.New("username already exists")
)

// Event errors.
var (
	// ErrEventNotFound indicates that the requested event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrMissingEventType is returned when a create-event request has a
	// blank type.
	ErrMissingEventType = errors.New("event type is required")
)
