// Package services – EventService
//
// Thin CRUD over the events collection (command codes 200–203). Events are
// opaque to the backend: the payload is stored verbatim and tags from the
// command envelope are joined into a single column.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-view-backend/internal/domain"
	"github.com/tbourn/go-view-backend/internal/repo"
)

// EventService provides create/get/update/delete operations for events.
type EventService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// Create inserts a new event. Type is required.
func (s *EventService) Create(ctx context.Context, typ, userID, payload string, tags []string) (*domain.Event, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return nil, ErrMissingEventType
	}
	ev := &domain.Event{
		Type:    typ,
		UserID:  userID,
		Payload: payload,
		Tags:    strings.Join(tags, ","),
	}
	if err := repo.CreateEvent(ctx, s.DB, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Get fetches an event by id, or ErrEventNotFound.
func (s *EventService) Get(ctx context.Context, id string) (*domain.Event, error) {
	ev, err := repo.GetEvent(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

// Update applies non-empty fields to an existing event.
func (s *EventService) Update(ctx context.Context, id, typ, payload string) error {
	updates := map[string]any{}
	if v := strings.TrimSpace(typ); v != "" {
		updates["type"] = v
	}
	if payload != "" {
		updates["payload"] = payload
	}
	err := repo.UpdateEvent(ctx, s.DB, id, updates)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrEventNotFound
	}
	return err
}

// Delete removes an event by id, or ErrEventNotFound.
func (s *EventService) Delete(ctx context.Context, id string) error {
	err := repo.DeleteEvent(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrEventNotFound
	}
	return err
}
