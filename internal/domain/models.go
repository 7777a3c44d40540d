// Package domain defines the persistence models for users, domain events,
// and the browse-analytics ledger. These types are mapped with GORM and form
// the core data layer of the backend.
package domain

import (
	"time"
)

// BrowseRecord is one persisted view signal in the browse ledger.
//
// A record is immutable after creation: the report path never updates or
// deletes rows, and replayed reports inside the dedup window return the
// original row untouched.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: owner identity; nil when the viewer was anonymous.
//   - AnonymousID: client-generated pseudo-identity, always present. Links
//     pre-login and post-login views of the same physical client.
//   - TargetID: identifier of the viewed content; required, non-empty.
//   - TargetType: optional content classifier used by read filters.
//   - IPAddress: reporter address; surfaced only to the administrator.
//   - DedupKey: the viewer identity with a namespace prefix, "u:"+UserID
//     when present, else "a:"+AnonymousID. The prefix keeps an
//     authenticated user and an anonymous client with the same raw
//     identifier from colliding on the unique index. Part of the windowed
//     uniqueness key.
//   - WindowBucket: CreatedAt truncated to the dedup window
//     (unix seconds / window seconds). Together with TargetID and DedupKey
//     it forms the unique index that makes concurrent first reports safe.
//   - CreatedAt / UpdatedAt: server-assigned; CreatedAt is the record's
//     effective time for windowing and sorting.
type BrowseRecord struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       *string   `json:"user_id"       gorm:"type:varchar(64);index:idx_browse_owner"`
	AnonymousID  string    `json:"anonymous_id"  gorm:"type:varchar(64);not null;index:idx_browse_anon"`
	TargetID     string    `json:"target_id"     gorm:"type:varchar(64);not null;index:idx_browse_target;uniqueIndex:ux_browse_dedup,priority:1"`
	TargetType   string    `json:"target_type,omitempty" gorm:"type:varchar(32);index"`
	IPAddress    string    `json:"ip_address,omitempty"  gorm:"type:varchar(45)"`
	DedupKey     string    `json:"-"             gorm:"type:varchar(66);not null;uniqueIndex:ux_browse_dedup,priority:2"`
	WindowBucket int64     `json:"-"             gorm:"not null;uniqueIndex:ux_browse_dedup,priority:3"`
	CreatedAt    time.Time `json:"created_at"    gorm:"index"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for BrowseRecord.
func (BrowseRecord) TableName() string { return "browselogs" }

// User represents an account record managed by the user CRUD commands
// (code namespace 1xx).
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Username: unique login name, required.
//   - Email: optional contact address.
//   - Role: free-form role label (e.g. "member"); administrative access to
//     the ledger is decided by the configured admin identity, not this field.
//   - Status: lifecycle flag ("active", "disabled", ...).
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Username  string    `json:"username"   gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	Email     string    `json:"email,omitempty"  gorm:"type:varchar(255)"`
	Role      string    `json:"role"       gorm:"type:varchar(32);not null;default:'member'"`
	Status    string    `json:"status"     gorm:"type:varchar(16);not null;default:'active'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Event is a generic domain event managed by the event CRUD commands
// (code namespace 2xx). The backend does not interpret events; they are
// stored and returned verbatim.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Type: event discriminator, required.
//   - UserID: identity of the subject that produced the event.
//   - Payload: opaque JSON document as submitted by the client.
//   - Tags: comma-joined labels from the command envelope.
type Event struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Type      string    `json:"type"       gorm:"type:varchar(64);not null;index:idx_events_type"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);index:idx_events_user"`
	Payload   string    `json:"payload,omitempty" gorm:"type:text"`
	Tags      string    `json:"tags,omitempty"    gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Event.
func (Event) TableName() string { return "events" }
