// Package command implements the wire-level command model: the envelope
// decoder that turns a transport frame into a typed Command, the numeric
// code table, the structured Result returned to callers, and the
// (op, code) dispatch router.
//
// A frame is a three-element JSON array. The first two elements are
// reserved by the transport protocol and ignored here; the third carries
// the command body:
//
//	[ <reserved>, <reserved>, {
//	    "ops":        "C" | "R" | "U" | "D",
//	    "code":       700,
//	    "user":       "u-123",
//	    "sig":        "<token>",
//	    "created_at": "2026-08-27T10:00:00Z",   // or unix seconds
//	    "data":       { ... },
//	    "tags":       ["a", "b"]
//	} ]
//
// Only ops, code, and user are mandatory at this layer; per-operation
// handlers impose further required fields on data.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Op is the operation letter of a command: one of Create, Read, Update,
// Delete.
type Op string

// Operation letters accepted on the wire.
const (
	OpCreate Op = "C"
	OpRead   Op = "R"
	OpUpdate Op = "U"
	OpDelete Op = "D"
)

// Valid reports whether the operation letter is one of C/R/U/D.
func (o Op) Valid() bool {
	switch o {
	case OpCreate, OpRead, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Numeric command codes. Codes are disjoint namespaces: [100,200) selects
// the user domain, [200,300) the event domain, [700,800) the browse ledger.
const (
	CodeUserCreate = 100
	CodeUserGet    = 101
	CodeUserUpdate = 102
	CodeUserDelete = 103

	CodeEventCreate = 200
	CodeEventGet    = 201
	CodeEventUpdate = 202
	CodeEventDelete = 203

	CodeBrowseReport = 700
	CodeBrowseRead   = 703
	CodeBrowseCount  = 704
)

// ErrInvalidCommand indicates a frame whose envelope is malformed or is
// missing a mandatory field. Such commands never reach a handler.
var ErrInvalidCommand = errors.New("invalid command")

// Command is a decoded envelope. Data remains raw; each handler unmarshals
// it into its own typed request struct.
type Command struct {
	Op        Op
	Code      int
	User      string
	Sig       string
	CreatedAt *time.Time
	Data      json.RawMessage
	Tags      []string
}

// envelopeBody mirrors the third frame element on the wire.
type envelopeBody struct {
	Ops       string          `json:"ops"`
	Code      *int            `json:"code"`
	User      string          `json:"user"`
	Sig       string          `json:"sig"`
	CreatedAt json.RawMessage `json:"created_at"`
	Data      json.RawMessage `json:"data"`
	Tags      []string        `json:"tags"`
}

// Decode parses one raw frame into a Command.
//
// It returns an error wrapping ErrInvalidCommand when the frame is not a
// three-element JSON array, the body is malformed, ops is not a valid
// operation letter, code is absent, or user is blank.
func Decode(frame []byte) (*Command, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(frame, &elems); err != nil {
		return nil, fmt.Errorf("%w: frame is not a JSON array: %v", ErrInvalidCommand, err)
	}
	if len(elems) < 3 {
		return nil, fmt.Errorf("%w: frame has %d elements, want 3", ErrInvalidCommand, len(elems))
	}

	var body envelopeBody
	if err := json.Unmarshal(elems[2], &body); err != nil {
		return nil, fmt.Errorf("%w: malformed body: %v", ErrInvalidCommand, err)
	}

	op := Op(strings.ToUpper(strings.TrimSpace(body.Ops)))
	if !op.Valid() {
		return nil, fmt.Errorf("%w: ops must be one of C, R, U, D", ErrInvalidCommand)
	}
	if body.Code == nil {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidCommand)
	}
	if strings.TrimSpace(body.User) == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidCommand)
	}

	createdAt, err := parseTimestamp(body.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	return &Command{
		Op:        op,
		Code:      *body.Code,
		User:      body.User,
		Sig:       body.Sig,
		CreatedAt: createdAt,
		Data:      body.Data,
		Tags:      body.Tags,
	}, nil
}

// parseTimestamp accepts an RFC3339 string or a unix-seconds number.
// A missing or null value yields nil (the server clock is used instead).
func parseTimestamp(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("created_at is not RFC3339: %v", err)
		}
		t = t.UTC()
		return &t, nil
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		t := time.Unix(int64(secs), 0).UTC()
		return &t, nil
	}

	return nil, errors.New("created_at must be an RFC3339 string or unix seconds")
}
