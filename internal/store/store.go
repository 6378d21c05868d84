// ABOUTME: Store interfaces and data types for botdesk persistence
// ABOUTME: Defines Conversation, Report, UserAccess structs and the storage contracts

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Role constants for conversation messages
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation. Messages are immutable once
// appended and ordered by arrival.
type Message struct {
	Role      string
	Text      string
	Timestamp time.Time
}

// ConversationMeta holds session-level descriptors. Mutated only by the
// session manager.
type ConversationMeta struct {
	ID           string
	OwnerID      string
	Name         string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Conversation owns an ordered message sequence plus its metadata.
// Invariant: LastActivity >= the timestamp of every message.
type Conversation struct {
	Meta     ConversationMeta
	Messages []Message
}

// ReportState constants for the report lifecycle
const (
	ReportActive        = "active"
	ReportPendingDelete = "pending_delete"
	ReportDeleted       = "deleted"
)

// Report is a generated artifact record. Payload bytes are stored separately
// and only loaded on demand via LoadPayload.
type Report struct {
	ID        string
	OwnerID   string
	Name      string
	State     string // "active", "pending_delete", "deleted"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserAccess is the persisted access record for a user. IsActive and
// IsBlocked are denormalized; after any guard toggle IsActive == !IsBlocked.
type UserAccess struct {
	UserID    string
	IsActive  bool
	IsBlocked bool
	UpdatedAt time.Time
}

// ConversationStore defines conversation persistence
type ConversationStore interface {
	// SaveConversation upserts the full conversation (metadata and messages)
	SaveConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// DeleteConversation is idempotent: deleting an absent id succeeds
	DeleteConversation(ctx context.Context, id string) error
	// ListConversations returns metadata only, last-activity descending
	ListConversations(ctx context.Context, ownerID string) ([]ConversationMeta, error)
}

// ReportStore defines report record and payload persistence
type ReportStore interface {
	CreateReport(ctx context.Context, report *Report, payload []byte) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context, ownerID string) ([]*Report, error)
	LoadPayload(ctx context.Context, id string) ([]byte, error)
	RenameReport(ctx context.Context, id, name string) error
	SetReportState(ctx context.Context, id, state string) error
	// DeleteReport removes the record and payload; idempotent
	DeleteReport(ctx context.Context, id string) error
}

// AccessStore defines user access record persistence. SaveUserAccess must
// apply both flags and the timestamp as one atomic write.
type AccessStore interface {
	GetUserAccess(ctx context.Context, userID string) (*UserAccess, error)
	SaveUserAccess(ctx context.Context, access *UserAccess) error
}

// Store is the full persistence surface backed by a single database
type Store interface {
	ConversationStore
	ReportStore
	AccessStore

	// Close releases any resources held by the store
	Close() error
}
