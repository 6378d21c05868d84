// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/report/access persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_activity TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner_activity
			ON conversations(owner_id, last_activity DESC);

		CREATE TABLE IF NOT EXISTS conversation_messages (
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (conversation_id, seq),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			CHECK (role IN ('user', 'assistant'))
		);

		CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			state TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (state IN ('active', 'pending_delete', 'deleted'))
		);

		CREATE INDEX IF NOT EXISTS idx_reports_owner ON reports(owner_id);

		CREATE TABLE IF NOT EXISTS user_access (
			user_id TEXT PRIMARY KEY,
			is_active INTEGER NOT NULL,
			is_blocked INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveConversation upserts the conversation metadata and rewrites its message
// rows inside a single transaction, so a reader never observes a half-written
// conversation.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, name, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			last_activity = excluded.last_activity
	`,
		conv.Meta.ID,
		conv.Meta.OwnerID,
		conv.Meta.Name,
		conv.Meta.CreatedAt.UTC().Format(time.RFC3339Nano),
		conv.Meta.LastActivity.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_messages WHERE conversation_id = ?`, conv.Meta.ID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}

	for i, msg := range conv.Messages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_messages (conversation_id, seq, role, text, created_at)
			VALUES (?, ?, ?, ?, ?)
		`,
			conv.Meta.ID,
			i,
			msg.Role,
			msg.Text,
			msg.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("saved conversation", "id", conv.Meta.ID, "messages", len(conv.Messages))
	return nil
}

// GetConversation retrieves a conversation with its full message sequence.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	var createdAtStr, lastActivityStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, created_at, last_activity
		FROM conversations
		WHERE id = ?
	`, id).Scan(
		&conv.Meta.ID,
		&conv.Meta.OwnerID,
		&conv.Meta.Name,
		&createdAtStr,
		&lastActivityStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.Meta.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.Meta.LastActivity, err = time.Parse(time.RFC3339Nano, lastActivityStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_activity: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text, created_at
		FROM conversation_messages
		WHERE conversation_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg Message
		var tsStr string
		if err := rows.Scan(&msg.Role, &msg.Text, &tsStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Timestamp, err = time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message timestamp: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return &conv, nil
}

// DeleteConversation removes a conversation and its messages.
// Deleting an absent conversation is not an error.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	// Explicit message cleanup in case foreign keys were disabled at open time
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

// ListConversations returns conversation metadata for an owner, most recently
// active first. Message bodies are not loaded.
func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID string) ([]ConversationMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, created_at, last_activity
		FROM conversations
		WHERE owner_id = ?
		ORDER BY last_activity DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var metas []ConversationMeta
	for rows.Next() {
		var meta ConversationMeta
		var createdAtStr, lastActivityStr string
		if err := rows.Scan(&meta.ID, &meta.OwnerID, &meta.Name, &createdAtStr, &lastActivityStr); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		meta.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		meta.LastActivity, err = time.Parse(time.RFC3339Nano, lastActivityStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last_activity: %w", err)
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return metas, nil
}

// CreateReport inserts a new report record with its payload
func (s *SQLiteStore) CreateReport(ctx context.Context, report *Report, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, owner_id, name, state, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.OwnerID,
		report.Name,
		report.State,
		payload,
		report.CreatedAt.UTC().Format(time.RFC3339Nano),
		report.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}

	s.logger.Debug("created report", "id", report.ID, "owner", report.OwnerID)
	return nil
}

// GetReport retrieves a report record without its payload.
// Returns ErrNotFound if the report doesn't exist.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*Report, error) {
	var report Report
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, state, created_at, updated_at
		FROM reports
		WHERE id = ?
	`, id).Scan(
		&report.ID,
		&report.OwnerID,
		&report.Name,
		&report.State,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying report: %w", err)
	}

	report.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	report.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &report, nil
}

// ListReports returns report records for an owner, newest first, without payloads
func (s *SQLiteStore) ListReports(ctx context.Context, ownerID string) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, state, created_at, updated_at
		FROM reports
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		var report Report
		var createdAtStr, updatedAtStr string
		if err := rows.Scan(&report.ID, &report.OwnerID, &report.Name, &report.State, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		report.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		report.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		reports = append(reports, &report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}

	return reports, nil
}

// LoadPayload loads the payload bytes for a report.
// Returns ErrNotFound if the report doesn't exist.
func (s *SQLiteStore) LoadPayload(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM reports WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying payload: %w", err)
	}
	return payload, nil
}

// RenameReport updates a report's display name in a single write.
// Returns ErrNotFound if the report doesn't exist.
func (s *SQLiteStore) RenameReport(ctx context.Context, id, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reports SET name = ?, updated_at = ? WHERE id = ?
	`, name, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("renaming report: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rename result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("renamed report", "id", id, "name", name)
	return nil
}

// SetReportState updates a report's lifecycle state.
// Returns ErrNotFound if the report doesn't exist.
func (s *SQLiteStore) SetReportState(ctx context.Context, id, state string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reports SET state = ?, updated_at = ? WHERE id = ?
	`, state, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("updating report state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking state update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated report state", "id", id, "state", state)
	return nil
}

// DeleteReport removes a report record and its payload.
// Deleting an absent report is not an error.
func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}
	s.logger.Debug("deleted report", "id", id)
	return nil
}

// GetUserAccess retrieves a user access record.
// Returns ErrNotFound if no record exists for the user.
func (s *SQLiteStore) GetUserAccess(ctx context.Context, userID string) (*UserAccess, error) {
	var access UserAccess
	var isActive, isBlocked int
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, is_active, is_blocked, updated_at
		FROM user_access
		WHERE user_id = ?
	`, userID).Scan(&access.UserID, &isActive, &isBlocked, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user access: %w", err)
	}

	access.IsActive = isActive != 0
	access.IsBlocked = isBlocked != 0
	access.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &access, nil
}

// SaveUserAccess upserts a user access record. Both flags and the timestamp
// land in a single statement, so a concurrent reader never sees a mix of old
// and new field values.
func (s *SQLiteStore) SaveUserAccess(ctx context.Context, access *UserAccess) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_access (user_id, is_active, is_blocked, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			is_active = excluded.is_active,
			is_blocked = excluded.is_blocked,
			updated_at = excluded.updated_at
	`,
		access.UserID,
		boolToInt(access.IsActive),
		boolToInt(access.IsBlocked),
		access.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving user access: %w", err)
	}

	s.logger.Debug("saved user access", "user_id", access.UserID,
		"is_active", access.IsActive, "is_blocked", access.IsBlocked)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
