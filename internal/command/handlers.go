// Command handlers.
//
// This file binds the (op, code) dispatch table to the application
// services. Handlers are transport-thin: each one re-checks its own code,
// unmarshals the envelope's data payload into a typed request struct
// (nothing downstream sees an untyped map), delegates to a service, and
// translates service errors into wire results.
package command

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/tbourn/go-view-backend/internal/services"
)

// Handlers aggregates the domain services consumed by the command table.
type Handlers struct {
	browse *services.BrowseService
	users  *services.UserService
	events *services.EventService
}

// NewHandlers wires the services into a handler set.
func NewHandlers(browse *services.BrowseService, users *services.UserService, events *services.EventService) *Handlers {
	return &Handlers{browse: browse, users: users, events: events}
}

// Register installs every supported (op, code) pair on the router:
// users 100–103, events 200–203, browse ledger 700/703/704.
func (h *Handlers) Register(r *Router) {
	r.Register(OpCreate, CodeUserCreate, h.CreateUser)
	r.Register(OpRead, CodeUserGet, h.GetUser)
	r.Register(OpUpdate, CodeUserUpdate, h.UpdateUser)
	r.Register(OpDelete, CodeUserDelete, h.DeleteUser)

	r.Register(OpCreate, CodeEventCreate, h.CreateEvent)
	r.Register(OpRead, CodeEventGet, h.GetEvent)
	r.Register(OpUpdate, CodeEventUpdate, h.UpdateEvent)
	r.Register(OpDelete, CodeEventDelete, h.DeleteEvent)

	r.Register(OpCreate, CodeBrowseReport, h.ReportBrowse)
	r.Register(OpRead, CodeBrowseRead, h.ReadBrowses)
	r.Register(OpRead, CodeBrowseCount, h.CountBrowses)
}

// ---- browse ledger ----

// reportBrowseRequest is the data payload of C 700.
//
// user_id is the authenticated identity of the viewer; when absent the
// view is anonymous and anonymous_id is mandatory. created_at (RFC3339 or
// unix seconds) overrides the envelope timestamp when both are present.
type reportBrowseRequest struct {
	UserID      *string         `json:"user_id"`
	AnonymousID string          `json:"anonymous_id"`
	TargetID    string          `json:"target_id"`
	TargetType  string          `json:"target_type"`
	IPAddress   string          `json:"ip_address"`
	CreatedAt   json.RawMessage `json:"created_at"`
}

// ReportBrowse handles C 700: record one view signal idempotently.
func (h *Handlers) ReportBrowse(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeBrowseReport {
		return Failure(StatusBadRequest, "unsupported operation code")
	}

	var req reportBrowseRequest
	if err := unmarshalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	createdAt, err := parseTimestamp(req.CreatedAt)
	if err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	if createdAt == nil {
		createdAt = cmd.CreatedAt
	}

	res, err := h.browse.Report(ctx, services.ReportInput{
		UserID:      req.UserID,
		AnonymousID: req.AnonymousID,
		TargetID:    req.TargetID,
		TargetType:  req.TargetType,
		IPAddress:   req.IPAddress,
		CreatedAt:   createdAt,
	})
	if err != nil {
		return failureFor(err)
	}
	return OK(res)
}

// readBrowsesRequest is the data payload of R 703.
type readBrowsesRequest struct {
	AnonymousID string          `json:"anonymous_id"`
	UserFilter  string          `json:"user_filter"`
	TargetID    string          `json:"target_id"`
	TargetType  string          `json:"target_type"`
	StartTime   json.RawMessage `json:"start_time"`
	EndTime     json.RawMessage `json:"end_time"`
	PageNum     int             `json:"page_num"`
	PageSize    int             `json:"page_size"`
}

// ReadBrowses handles R 703: visibility-scoped, paginated listing. The
// caller identity is the envelope user; non-admins cannot widen their view
// whatever filters they send. Every filter field is optional, so the data
// payload itself may be omitted: an absent payload lists page one with the
// default filters.
func (h *Handlers) ReadBrowses(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeBrowseRead {
		return Failure(StatusBadRequest, "unsupported operation code")
	}

	var req readBrowsesRequest
	if err := unmarshalOptionalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	start, err := parseTimestamp(req.StartTime)
	if err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	end, err := parseTimestamp(req.EndTime)
	if err != nil {
		return Failure(StatusBadRequest, err.Error())
	}

	res, err := h.browse.Read(ctx, services.ReadInput{
		CallerID:    cmd.User,
		AnonymousID: req.AnonymousID,
		UserFilter:  req.UserFilter,
		TargetID:    req.TargetID,
		TargetType:  req.TargetType,
		StartTime:   start,
		EndTime:     end,
		Page:        req.PageNum,
		PageSize:    req.PageSize,
	})
	if err != nil {
		return failureFor(err)
	}
	return OK(res)
}

// countBrowsesRequest is the data payload of R 704. target_id is either a
// single string or an array of strings.
type countBrowsesRequest struct {
	TargetID json.RawMessage `json:"target_id"`
}

// CountBrowses handles R 704: all-time point or batched aggregate counts.
// Batched results are zero-filled per the documented contract.
func (h *Handlers) CountBrowses(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeBrowseCount {
		return Failure(StatusBadRequest, "unsupported operation code")
	}

	var req countBrowsesRequest
	if err := unmarshalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}

	var single string
	if err := json.Unmarshal(req.TargetID, &single); err == nil {
		n, err := h.browse.Count(ctx, single)
		if err != nil {
			return failureFor(err)
		}
		return OK(map[string]any{"target_id": single, "count": n})
	}

	var many []string
	if err := json.Unmarshal(req.TargetID, &many); err == nil {
		counts, err := h.browse.CountMany(ctx, many)
		if err != nil {
			return failureFor(err)
		}
		return OK(map[string]any{"counts": counts})
	}

	return Failure(StatusBadRequest, "target_id must be a string or an array of strings")
}

// ---- users ----

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// CreateUser handles C 100.
func (h *Handlers) CreateUser(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeUserCreate {
		return Failure(StatusBadRequest, "unsupported operation code")
	}
	var req createUserRequest
	if err := unmarshalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	u, err := h.users.Create(ctx, req.Username, req.Email, req.Role)
	if err != nil {
		return failureFor(err)
	}
	return OK(u)
}

type idRequest struct {
	ID string `json:"id"`
}

// GetUser handles R 101.
func (h *Handlers) GetUser(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeUserGet {
		return Failure(StatusBadRequest, "unsupported operation code")
	}
	var req idRequest
	if err := unmarshalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	u, err := h.users.Get(ctx, req.ID)
	if err != nil {
		return failureFor(err)
	}
	return OK(u)
}

type updateUserRequest struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// UpdateUser handles U 102.
func (h *Handlers) UpdateUser(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeUserUpdate {
		return Failure(StatusBadRequest, "unsupported operation code")
	}
	var req updateUserRequest
	if err := unmarshalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	if err := h.users.Update(ctx, req.ID, req.Email, req.Role, req.Status); err != nil {
		return failureFor(err)
	}
	return OK(map[string]string{"id": req.ID})
}

// DeleteUser handles D 103.
func (h *Handlers) DeleteUser(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeUserDelete {
		return Failure(StatusBadRequest, "unsupported operation code")
	}
	var req idRequest
	if err := unmarshalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	if err := h.users.Delete(ctx, req.ID); err != nil {
		return failureFor(err)
	}
	return OK(map[string]string{"id": req.ID})
}

// ---- events ----

type createEventRequest struct {
	Type    string          `json:"type"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// CreateEvent handles C 200. The payload is stored verbatim; envelope tags
// travel with the event.
func (h *Handlers) CreateEvent(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeEventCreate {
		return Failure(StatusBadRequest, "unsupported operation code")
	}
	var req createEventRequest
	if err := unmarshalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	userID := req.UserID
	if userID == "" {
		userID = cmd.User
	}
	ev, err := h.events.Create(ctx, req.Type, userID, string(req.Payload), cmd.Tags)
	if err != nil {
		return failureFor(err)
	}
	return OK(ev)
}

// GetEvent handles R 201.
func (h *Handlers) GetEvent(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeEventGet {
		return Failure(StatusBadRequest, "unsupported operation code")
	}
	var req idRequest
	if err := unmarshalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	ev, err := h.events.Get(ctx, req.ID)
	if err != nil {
		return failureFor(err)
	}
	return OK(ev)
}

type updateEventRequest struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// UpdateEvent handles U 202.
func (h *Handlers) UpdateEvent(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeEventUpdate {
		return Failure(StatusBadRequest, "unsupported operation code")
	}
	var req updateEventRequest
	if err := unmarshalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	if err := h.events.Update(ctx, req.ID, req.Type, string(req.Payload)); err != nil {
		return failureFor(err)
	}
	return OK(map[string]string{"id": req.ID})
}

// DeleteEvent handles D 203.
func (h *Handlers) DeleteEvent(ctx context.Context, cmd *Command) Result {
	if cmd.Code != CodeEventDelete {
		return Failure(StatusBadRequest, "unsupported operation code")
	}
	var req idRequest
	if err := unmarshalData(cmd.Data, &req); err != nil {
		return Failure(StatusBadRequest, err.Error())
	}
	if err := h.events.Delete(ctx, req.ID); err != nil {
		return failureFor(err)
	}
	return OK(map[string]string{"id": req.ID})
}

// ---- shared ----

// unmarshalData decodes the envelope data payload into dst. A missing
// payload is an error; operations whose fields are all optional use
// unmarshalOptionalData instead.
func unmarshalData(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return errors.New("data payload is required")
	}
	return unmarshalOptionalData(data, dst)
}

// unmarshalOptionalData decodes the envelope data payload into dst when
// one is present; an absent or null payload leaves dst zero-valued.
func unmarshalOptionalData(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.New("malformed data payload")
	}
	return nil
}

// failureFor maps service sentinels to wire results. Unrecognized errors
// are storage or infrastructure failures: the command fails with a generic
// 500 and the connection stays usable.
func failureFor(err error) Result {
	switch {
	case errors.Is(err, services.ErrMissingTarget),
		errors.Is(err, services.ErrMissingAnonymousID),
		errors.Is(err, services.ErrInvalidTimeRange),
		errors.Is(err, services.ErrMissingUsername),
		errors.Is(err, services.ErrMissingEventType):
		return Failure(StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrClockSkew):
		// 500 per the original wire contract for skewed reports.
		return Failure(StatusError, err.Error())
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrEventNotFound):
		return Failure(StatusNotFound, err.Error())
	case errors.Is(err, services.ErrDuplicateUsername):
		return Failure(StatusConflict, err.Error())
	default:
		return Failure(StatusError, "storage failure")
	}
}
