// Package handlers – read-only ops mirrors of the browse ledger.
//
// These endpoints exist for operators and dashboards; the authoritative
// surface is the command transport. The caller identity is taken from the
// X-User-ID header and passed through the same visibility rules as the
// command path, so a non-admin caller sees only their own rows.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-view-backend/internal/services"
	"github.com/tbourn/go-view-backend/internal/utils"
)

// BrowseAPI exposes the ledger's read and count operations over HTTP.
type BrowseAPI struct {
	Svc *services.BrowseService
}

// NewBrowseAPI constructs a BrowseAPI backed by svc.
func NewBrowseAPI(svc *services.BrowseService) *BrowseAPI {
	return &BrowseAPI{Svc: svc}
}

// CountResponse is the body for single-target counts.
type CountResponse struct {
	TargetID string `json:"target_id"`
	Count    int64  `json:"count"`
}

// ListBrowses handles GET /api/v1/browses.
//
// Query parameters: user (admin-only filter), anonymous_id, target_id, type,
// start_time, end_time (RFC3339, both or neither), page, page_size. Caller
// identity comes from X-User-ID; visibility scoping matches the command path.
func (h *BrowseAPI) ListBrowses(c *gin.Context) {
	caller := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if caller == "" && c.Query("anonymous_id") == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing X-User-ID header")
		return
	}

	start, err := parseTimeParam(c.Query("start_time"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid start_time")
		return
	}
	end, err := parseTimeParam(c.Query("end_time"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid end_time")
		return
	}

	page := utils.AtoiDefault(c.Query("page"), 1)
	pageSize := utils.AtoiDefault(c.Query("page_size"), 0)

	res, err := h.Svc.Read(c.Request.Context(), services.ReadInput{
		CallerID:    caller,
		AnonymousID: c.Query("anonymous_id"),
		UserFilter:  c.Query("user"),
		TargetID:    c.Query("target_id"),
		TargetType:  c.Query("type"),
		StartTime:   start,
		EndTime:     end,
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidTimeRange) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start_time and end_time must be supplied together")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list browses")
		return
	}
	ok(c, http.StatusOK, res)
}

// CountBrowses handles GET /api/v1/browses/count.
//
// A single target_id yields {"target_id": ..., "count": N}; a comma-separated
// list yields {"counts": {id: N, ...}} with absent targets reported as zero.
func (h *BrowseAPI) CountBrowses(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("target_id"))
	if raw == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "target_id is required")
		return
	}

	if !strings.Contains(raw, ",") {
		n, err := h.Svc.Count(c.Request.Context(), raw)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not count browses")
			return
		}
		ok(c, http.StatusOK, CountResponse{TargetID: raw, Count: n})
		return
	}

	ids := make([]string, 0, 8)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "target_id is required")
		return
	}
	counts, err := h.Svc.CountMany(c.Request.Context(), ids)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not count browses")
		return
	}
	ok(c, http.StatusOK, gin.H{"counts": counts})
}

// parseTimeParam parses an optional RFC3339 query value; "" yields nil.
func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
