// Package services – BrowseService
//
// This file implements the BrowseService, the core of the browse-analytics
// ledger. It governs three operations:
//
//   - Report: record one view signal, suppressing duplicates from the same
//     viewer for the same target inside a rolling dedup window.
//   - Read: visibility-scoped, paginated listing. Non-admin callers only
//     ever see their own rows (owned or anonymous-linked); IP addresses
//     are masked for everyone but the administrator.
//   - Count / CountMany: all-time point and batched aggregate counts.
//
// Service-level errors (ErrMissingTarget, ErrMissingAnonymousID,
// ErrClockSkew, ErrInvalidTimeRange) are returned for predictable cases so
// the command handlers can map them to wire results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-view-backend/internal/config"
	"github.com/tbourn/go-view-backend/internal/domain"
	"github.com/tbourn/go-view-backend/internal/repo"
	"github.com/tbourn/go-view-backend/internal/utils"
)

// MaskedIP is the placeholder substituted for BrowseRecord.IPAddress in
// non-admin read results.
const MaskedIP = "***"

// BrowseService implements the use-cases of the deduplicating browse
// ledger. The administrator identity and all window/pagination knobs are
// injected; nothing here is a package-level constant.
type BrowseService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// AdminUserID is the identity granted unrestricted read/filter access.
	// An empty value means no caller is the administrator.
	AdminUserID string

	// DedupWindow is the rolling interval during which a repeated report
	// for the same (target, viewer) is a no-op.
	DedupWindow time.Duration

	// ClockSkewMax bounds |now - created_at| for client-supplied times.
	ClockSkewMax time.Duration

	// DefaultPageSize / MaxPageSize govern Read pagination.
	DefaultPageSize int
	MaxPageSize     int

	// Now returns the server clock; overridable in tests.
	Now func() time.Time
}

// NewBrowseService constructs a BrowseService from the ledger config block.
func NewBrowseService(db *gorm.DB, cfg config.LedgerConfig) *BrowseService {
	return &BrowseService{
		DB:              db,
		AdminUserID:     cfg.AdminUserID,
		DedupWindow:     cfg.DedupWindow,
		ClockSkewMax:    cfg.ClockSkewMax,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// ReportInput carries one view signal.
type ReportInput struct {
	// UserID is the authenticated identity; nil for anonymous viewers.
	UserID *string
	// AnonymousID is the client-generated pseudo-identity; required.
	AnonymousID string
	// TargetID identifies the viewed content; required.
	TargetID string
	// TargetType optionally classifies the target.
	TargetType string
	// IPAddress is the reporter address; optional.
	IPAddress string
	// CreatedAt is the client-claimed view time; nil means "now".
	CreatedAt *time.Time
}

// ReportResult references the ledger row that now represents the signal:
// either the freshly inserted one or, for a replay inside the window, the
// original row. Duplicate is the explicit discriminator between the two
// paths; the wire code is 200 for both.
type ReportResult struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Duplicate bool      `json:"duplicate"`
}

// Report records a view signal idempotently.
//
// Validation, in order:
//  1. The effective time (CreatedAt if supplied, else now) must be within
//     ClockSkewMax of server time; otherwise ErrClockSkew.
//  2. TargetID must be non-empty; otherwise ErrMissingTarget.
//  3. AnonymousID must be non-empty when UserID is nil; otherwise
//     ErrMissingAnonymousID.
//
// Dedup: an existing row for the same target and viewer identity (UserID
// when present, else AnonymousID against identity-null rows) newer than
// now − DedupWindow makes the call a no-op returning the existing row. The
// existing row is not updated; the window is not extended.
//
// Two concurrent first reports can both pass the rolling-window check; the
// unique index on (target_id, dedup_key, window_bucket) decides the winner
// and the loser re-reads the winning row and reports it as a duplicate.
func (s *BrowseService) Report(ctx context.Context, in ReportInput) (*ReportResult, error) {
	now := s.now()

	effective := now
	if in.CreatedAt != nil {
		effective = in.CreatedAt.UTC()
	}
	if skew := now.Sub(effective); skew > s.ClockSkewMax || skew < -s.ClockSkewMax {
		return nil, ErrClockSkew
	}

	if strings.TrimSpace(in.TargetID) == "" {
		return nil, ErrMissingTarget
	}
	if in.UserID == nil && strings.TrimSpace(in.AnonymousID) == "" {
		return nil, ErrMissingAnonymousID
	}

	since := now.Add(-s.DedupWindow)
	if existing, err := repo.FindRecentBrowse(ctx, s.DB, in.TargetID, in.UserID, in.AnonymousID, since); err == nil {
		return &ReportResult{ID: existing.ID, CreatedAt: existing.CreatedAt, Duplicate: true}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	// The prefix keeps authenticated and anonymous identities disjoint in
	// the unique index, matching the namespace separation of the
	// rolling-window query above.
	dedupKey := "a:" + in.AnonymousID
	if in.UserID != nil {
		dedupKey = "u:" + *in.UserID
	}
	rec := &domain.BrowseRecord{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		AnonymousID:  in.AnonymousID,
		TargetID:     in.TargetID,
		TargetType:   in.TargetType,
		IPAddress:    in.IPAddress,
		DedupKey:     dedupKey,
		WindowBucket: now.Unix() / int64(s.DedupWindow/time.Second),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := repo.CreateBrowseRecord(ctx, s.DB, rec)
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost the race; the winning row is inside the window by definition.
		existing, rerr := repo.FindRecentBrowse(ctx, s.DB, in.TargetID, in.UserID, in.AnonymousID, since)
		if rerr != nil {
			return nil, rerr
		}
		return &ReportResult{ID: existing.ID, CreatedAt: existing.CreatedAt, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ReportResult{ID: rec.ID, CreatedAt: rec.CreatedAt, Duplicate: false}, nil
}

// ReadInput describes a visibility-scoped listing request.
type ReadInput struct {
	// CallerID is the envelope identity making the request.
	CallerID string
	// AnonymousID optionally links anonymous rows: for non-admins it joins
	// the forced owner-or-anonymous union; for the admin it is a filter.
	AnonymousID string
	// UserFilter narrows results to another owner. Honored only for the
	// administrator; silently ignored otherwise.
	UserFilter string
	// TargetID / TargetType filter regardless of role.
	TargetID   string
	TargetType string
	// StartTime / EndTime bound created_at; both or neither.
	StartTime *time.Time
	EndTime   *time.Time
	// Page / PageSize paginate; zero values take the configured defaults.
	Page     int
	PageSize int
}

// ReadResult is one page of ledger rows plus pagination metadata.
type ReadResult struct {
	Items    []domain.BrowseRecord `json:"items"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// Read lists ledger rows visible to the caller, newest first.
//
// Visibility: a non-admin caller is forced to the union of rows they own
// and anonymous rows carrying their supplied AnonymousID; UserFilter is
// ignored for them. The administrator may narrow by UserFilter and
// AnonymousID freely. TargetID, TargetType, and the time range apply to
// everyone.
//
// Non-admin results have IPAddress replaced with MaskedIP.
func (s *BrowseService) Read(ctx context.Context, in ReadInput) (*ReadResult, error) {
	if (in.StartTime == nil) != (in.EndTime == nil) {
		return nil, ErrInvalidTimeRange
	}

	admin := s.isAdmin(in.CallerID)
	q := repo.BrowseQuery{
		TargetID:   in.TargetID,
		TargetType: in.TargetType,
		Start:      in.StartTime,
		End:        in.EndTime,
	}
	if admin {
		q.OwnerID = in.UserFilter
		q.AnonymousID = in.AnonymousID
	} else {
		q.OwnerOrAnon = true
		q.OwnerID = in.CallerID
		q.AnonymousID = in.AnonymousID
	}

	page, pageSize := utils.ClampPage(in.Page, in.PageSize, s.DefaultPageSize, s.MaxPageSize)

	total, err := repo.CountBrowses(ctx, s.DB, q)
	if err != nil {
		return nil, err
	}
	out := &ReadResult{Items: []domain.BrowseRecord{}, Total: total, Page: page, PageSize: pageSize}
	if total == 0 {
		return out, nil
	}

	items, err := repo.ListBrowsePage(ctx, s.DB, q, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	if !admin {
		for i := range items {
			if items[i].IPAddress != "" {
				items[i].IPAddress = MaskedIP
			}
		}
	}
	out.Items = items
	return out, nil
}

// Count returns the all-time number of recorded views for one target.
func (s *BrowseService) Count(ctx context.Context, targetID string) (int64, error) {
	if strings.TrimSpace(targetID) == "" {
		return 0, ErrMissingTarget
	}
	return repo.CountByTarget(ctx, s.DB, targetID)
}

// CountMany returns all-time view counts for a batch of targets, grouped
// by target id. The result is zero-filled: every requested id appears,
// with 0 for targets that have no recorded views. That is the documented
// contract; callers can iterate their request list without presence
// checks.
func (s *BrowseService) CountMany(ctx context.Context, targetIDs []string) (map[string]int64, error) {
	if len(targetIDs) == 0 {
		return nil, ErrMissingTarget
	}
	counts, err := repo.CountByTargets(ctx, s.DB, targetIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range targetIDs {
		if _, ok := counts[id]; !ok {
			counts[id] = 0
		}
	}
	return counts, nil
}

// isAdmin reports whether callerID is the configured administrator.
func (s *BrowseService) isAdmin(callerID string) bool {
	return s.AdminUserID != "" && callerID == s.AdminUserID
}

// now returns the injected clock, defaulting to UTC wall time.
func (s *BrowseService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
