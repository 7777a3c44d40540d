// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Event
// model. Events are opaque to the backend; persistence is plain CRUD.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-view-backend/internal/domain"
)

// CreateEvent inserts a new Event row with a UUID primary key and UTC
// timestamp.
func CreateEvent(ctx context.Context, db *gorm.DB, ev *domain.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.CreatedAt = time.Now().UTC()
	ev.UpdatedAt = ev.CreatedAt
	return db.WithContext(ctx).Create(ev).Error
}

// GetEvent fetches an event by id, or ErrNotFound if missing.
func GetEvent(ctx context.Context, db *gorm.DB, id string) (*domain.Event, error) {
	var ev domain.Event
	if err := db.WithContext(ctx).Where("id = ?", id).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// UpdateEvent applies the given column updates to an event. If no rows are
// affected (event missing), it returns ErrNotFound.
func UpdateEvent(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteEvent removes an event row. If no rows are affected, it returns
// ErrNotFound.
func DeleteEvent(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Event{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
