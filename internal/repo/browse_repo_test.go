package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-view-backend/internal/domain"
)

func newBrowseDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:browserepo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.BrowseRecord{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func browseRow(owner *string, anon, target string, bucket int64, at time.Time) *domain.BrowseRecord {
	key := "a:" + anon
	if owner != nil {
		key = "u:" + *owner
	}
	return &domain.BrowseRecord{
		ID:           uuid.NewString(),
		UserID:       owner,
		AnonymousID:  anon,
		TargetID:     target,
		DedupKey:     key,
		WindowBucket: bucket,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func ownerPtr(s string) *string { return &s }

func TestCreateBrowseRecord_UniqueViolation_MapsToErrDuplicate(t *testing.T) {
	db := newBrowseDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := CreateBrowseRecord(ctx, db, browseRow(ownerPtr("u1"), "a1", "p1", 100, now)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := CreateBrowseRecord(ctx, db, browseRow(ownerPtr("u1"), "a1", "p1", 100, now))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second insert: err=%v, want ErrDuplicate", err)
	}

	// Different window bucket is a new row.
	if err := CreateBrowseRecord(ctx, db, browseRow(ownerPtr("u1"), "a1", "p1", 101, now)); err != nil {
		t.Fatalf("next-bucket insert: %v", err)
	}
}

func TestFindRecentBrowse_OwnerAndAnonymousShapes(t *testing.T) {
	db := newBrowseDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	since := now.Add(-24 * time.Hour)

	if err := CreateBrowseRecord(ctx, db, browseRow(ownerPtr("u1"), "a1", "p1", 1, now.Add(-time.Hour))); err != nil {
		t.Fatalf("seed owned: %v", err)
	}
	if err := CreateBrowseRecord(ctx, db, browseRow(nil, "a1", "p1", 2, now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("seed anon: %v", err)
	}

	got, err := FindRecentBrowse(ctx, db, "p1", ownerPtr("u1"), "ignored", since)
	if err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if got.UserID == nil || *got.UserID != "u1" {
		t.Fatalf("owner lookup returned wrong row: %+v", got)
	}

	got, err = FindRecentBrowse(ctx, db, "p1", nil, "a1", since)
	if err != nil {
		t.Fatalf("anon lookup: %v", err)
	}
	if got.UserID != nil {
		t.Fatalf("anon lookup matched an owned row: %+v", got)
	}

	// Outside the window nothing matches.
	if _, err := FindRecentBrowse(ctx, db, "p1", ownerPtr("u1"), "", now.Add(-30*time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale lookup: err=%v, want ErrNotFound", err)
	}
	if _, err := FindRecentBrowse(ctx, db, "p-none", ownerPtr("u1"), "", since); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown target: err=%v, want ErrNotFound", err)
	}
}

func TestBrowseQuery_Shapes(t *testing.T) {
	db := newBrowseDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []*domain.BrowseRecord{
		browseRow(ownerPtr("u1"), "a1", "p1", 1, now.Add(-3*time.Hour)),
		browseRow(ownerPtr("u2"), "a2", "p1", 2, now.Add(-2*time.Hour)),
		browseRow(nil, "a1", "p2", 3, now.Add(-time.Hour)),
	}
	for i, r := range rows {
		if err := CreateBrowseRecord(ctx, db, r); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	// Non-admin union: u1's rows plus anonymous rows tagged a1.
	n, err := CountBrowses(ctx, db, BrowseQuery{OwnerOrAnon: true, OwnerID: "u1", AnonymousID: "a1"})
	if err != nil || n != 2 {
		t.Fatalf("union count = %d, %v; want 2", n, err)
	}

	// Admin shape: independent owner filter.
	n, err = CountBrowses(ctx, db, BrowseQuery{OwnerID: "u2"})
	if err != nil || n != 1 {
		t.Fatalf("owner filter count = %d, %v; want 1", n, err)
	}

	// Time range bounds created_at inclusively.
	start := now.Add(-150 * time.Minute)
	end := now
	n, err = CountBrowses(ctx, db, BrowseQuery{Start: &start, End: &end})
	if err != nil || n != 2 {
		t.Fatalf("range count = %d, %v; want 2", n, err)
	}
}

func TestListBrowsePage_NewestFirst(t *testing.T) {
	db := newBrowseDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		r := browseRow(ownerPtr("u1"), "a", fmt.Sprintf("p%d", i), int64(i), now.Add(time.Duration(i)*time.Minute))
		if err := CreateBrowseRecord(ctx, db, r); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	page, err := ListBrowsePage(ctx, db, BrowseQuery{OwnerOrAnon: true, OwnerID: "u1"}, 0, 2)
	if err != nil {
		t.Fatalf("ListBrowsePage: %v", err)
	}
	if len(page) != 2 || page[0].TargetID != "p2" || page[1].TargetID != "p1" {
		t.Fatalf("page = %+v, want p2,p1", page)
	}

	rest, err := ListBrowsePage(ctx, db, BrowseQuery{OwnerOrAnon: true, OwnerID: "u1"}, 2, 2)
	if err != nil || len(rest) != 1 || rest[0].TargetID != "p0" {
		t.Fatalf("rest = %+v, %v; want single p0", rest, err)
	}
}

func TestCountByTargets_AbsentIDsMissingFromMap(t *testing.T) {
	db := newBrowseDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		if err := CreateBrowseRecord(ctx, db, browseRow(nil, fmt.Sprintf("a%d", i), "p1", int64(i), now)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, err := CountByTarget(ctx, db, "p1")
	if err != nil || n != 2 {
		t.Fatalf("CountByTarget = %d, %v; want 2", n, err)
	}

	counts, err := CountByTargets(ctx, db, []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("CountByTargets: %v", err)
	}
	if counts["p1"] != 2 {
		t.Fatalf("counts[p1] = %d, want 2", counts["p1"])
	}
	if _, ok := counts["p2"]; ok {
		t.Fatalf("repo layer zero-filled p2; that is the service's job")
	}

	empty, err := CountByTargets(ctx, db, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty input: %+v, %v", empty, err)
	}
}
