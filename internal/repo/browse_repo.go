// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// BrowseRecord model (the browselogs collection).
//
// The repository follows a "thin" approach: it performs persistence and
// query composition, leaving the dedup window, visibility, and masking
// rules to the services package.
//
// Error semantics:
//   - A windowed duplicate (same target_id, dedup_key, window_bucket)
//     relies on the database unique index and is returned as ErrDuplicate.
//   - When a lookup finds no row, ErrNotFound is returned.
//   - On other DB errors (connectivity, constraints, etc.), the raw gorm
//     error is propagated.
//
// Functions:
//
//   - CreateBrowseRecord(ctx, db, rec) -> error
//     Inserts one ledger row; maps unique violations to ErrDuplicate.
//
//   - FindRecentBrowse(ctx, db, targetID, ownerID, anonymousID, since) -> *domain.BrowseRecord, error
//     Returns the newest row inside the rolling window for the dedup key.
//
//   - CountBrowses / ListBrowsePage(ctx, db, q [, offset, limit])
//     Total and page for a visibility-scoped read query.
//
//   - CountByTarget(ctx, db, targetID) -> int64, error
//     All-time view count for one target.
//
//   - CountByTargets(ctx, db, targetIDs) -> map[string]int64, error
//     All-time counts grouped by target id (absent ids are simply missing
//     from the map; the service zero-fills).
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-view-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a ledger row already exists for the same
// (target_id, dedup_key, window_bucket) tuple.
var ErrDuplicate = errors.New("duplicate browse record")

// BrowseQuery describes a visibility-scoped read over the ledger. The
// service layer builds it; the repository only translates it to SQL.
//
// Exactly one of the owner shapes applies:
//   - OwnerOrAnon true: rows owned by OwnerID OR anonymous rows carrying
//     AnonymousID (the forced non-admin union).
//   - OwnerOrAnon false: optional independent OwnerID / AnonymousID
//     filters (the admin shape). An empty field means "no filter".
type BrowseQuery struct {
	OwnerID     string
	AnonymousID string
	OwnerOrAnon bool

	TargetID   string
	TargetType string
	Start      *time.Time
	End        *time.Time
}

// CreateBrowseRecord inserts one ledger row. The windowed unique index on
// (target_id, dedup_key, window_bucket) is the atomic backstop for two
// concurrent first reports; a violation is mapped to ErrDuplicate so the
// service can re-read the winning row.
func CreateBrowseRecord(ctx context.Context, db *gorm.DB, rec *domain.BrowseRecord) error {
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// FindRecentBrowse returns the newest ledger row for targetID inside the
// rolling window starting at since, matched by the dedup key: ownerID when
// non-nil, else anonymousID against rows whose user_id is NULL.
//
// Returns ErrNotFound when no row matches.
func FindRecentBrowse(ctx context.Context, db *gorm.DB, targetID string, ownerID *string, anonymousID string, since time.Time) (*domain.BrowseRecord, error) {
	q := db.WithContext(ctx).
		Where("target_id = ? AND created_at >= ?", targetID, since)
	if ownerID != nil {
		q = q.Where("user_id = ?", *ownerID)
	} else {
		q = q.Where("anonymous_id = ? AND user_id IS NULL", anonymousID)
	}

	var rec domain.BrowseRecord
	err := q.Order("created_at DESC").First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountBrowses returns the total number of rows matching q. Pair with
// ListBrowsePage for pagination metadata.
func CountBrowses(ctx context.Context, db *gorm.DB, q BrowseQuery) (int64, error) {
	var total int64
	err := applyBrowseQuery(db.WithContext(ctx).Model(&domain.BrowseRecord{}), q).
		Count(&total).Error
	return total, err
}

// ListBrowsePage returns one page of rows matching q, sorted by creation
// time descending (newest first).
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListBrowsePage(ctx context.Context, db *gorm.DB, q BrowseQuery, offset, limit int) ([]domain.BrowseRecord, error) {
	var out []domain.BrowseRecord
	err := applyBrowseQuery(db.WithContext(ctx), q).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountByTarget returns the all-time number of ledger rows for one target.
func CountByTarget(ctx context.Context, db *gorm.DB, targetID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.BrowseRecord{}).
		Where("target_id = ?", targetID).
		Count(&total).Error
	return total, err
}

// CountByTargets returns all-time counts grouped by target id for the
// given set. Targets with no rows are absent from the returned map; the
// service layer zero-fills them to honor the batched-count contract.
func CountByTargets(ctx context.Context, db *gorm.DB, targetIDs []string) (map[string]int64, error) {
	if len(targetIDs) == 0 {
		return map[string]int64{}, nil
	}

	var rows []struct {
		TargetID string
		N        int64
	}
	err := db.WithContext(ctx).
		Model(&domain.BrowseRecord{}).
		Select("target_id, COUNT(*) AS n").
		Where("target_id IN ?", targetIDs).
		Group("target_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.TargetID] = r.N
	}
	return out, nil
}

// applyBrowseQuery translates q into WHERE clauses on tx.
func applyBrowseQuery(tx *gorm.DB, q BrowseQuery) *gorm.DB {
	if q.OwnerOrAnon {
		switch {
		case q.OwnerID != "" && q.AnonymousID != "":
			tx = tx.Where("user_id = ? OR (anonymous_id = ? AND user_id IS NULL)", q.OwnerID, q.AnonymousID)
		case q.OwnerID != "":
			tx = tx.Where("user_id = ?", q.OwnerID)
		default:
			tx = tx.Where("anonymous_id = ? AND user_id IS NULL", q.AnonymousID)
		}
	} else {
		if q.OwnerID != "" {
			tx = tx.Where("user_id = ?", q.OwnerID)
		}
		if q.AnonymousID != "" {
			tx = tx.Where("anonymous_id = ?", q.AnonymousID)
		}
	}

	if q.TargetID != "" {
		tx = tx.Where("target_id = ?", q.TargetID)
	}
	if q.TargetType != "" {
		tx = tx.Where("target_type = ?", q.TargetType)
	}
	if q.Start != nil && q.End != nil {
		tx = tx.Where("created_at >= ? AND created_at <= ?", *q.Start, *q.End)
	}
	return tx
}
