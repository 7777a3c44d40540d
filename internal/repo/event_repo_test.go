package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-view-backend/internal/domain"
)

func newEventRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:eventrepo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Event{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestEventRepo_CRUD(t *testing.T) {
	db := newEventRepoDB(t)
	ctx := context.Background()

	ev := &domain.Event{Type: "page_view", UserID: "u1", Payload: `{"a":1}`}
	if err := CreateEvent(ctx, db, ev); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ev.ID == "" {
		t.Fatalf("missing id")
	}

	got, err := GetEvent(ctx, db, ev.ID)
	if err != nil || got.Type != "page_view" {
		t.Fatalf("get: %+v, %v", got, err)
	}

	if err := UpdateEvent(ctx, db, ev.ID, map[string]any{"type": "click"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = GetEvent(ctx, db, ev.ID)
	if got.Type != "click" {
		t.Fatalf("update not applied: %q", got.Type)
	}

	if err := DeleteEvent(ctx, db, ev.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetEvent(ctx, db, ev.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: err=%v, want ErrNotFound", err)
	}
}

func TestEventRepo_MissingRow(t *testing.T) {
	db := newEventRepoDB(t)
	ctx := context.Background()

	if err := UpdateEvent(ctx, db, "missing", map[string]any{"type": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update: err=%v, want ErrNotFound", err)
	}
	if err := DeleteEvent(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: err=%v, want ErrNotFound", err)
	}
}
