// Package audit records every dispatched message in the messages table so
// operators can answer "what did we send, to whom, and when" per tenant.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is a single send record.
type Message struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Recipient string    `json:"recipient"`
	MessageID string    `json:"messageId"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// Filter controls which messages to return.
type Filter struct {
	Kind   string // optional: "text" or "media"
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// ListResult contains paginated message history.
type ListResult struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Repository defines message history operations.
type Repository interface {
	RecordSend(ctx context.Context, tenantID, recipient, messageID, kind string) error
	ListByTenant(ctx context.Context, tenantID string, filter Filter) (*ListResult, error)
	PurgeTenant(ctx context.Context, tenantID string) error
}

// SQLiteRepository stores message history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a message history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordSend inserts one send record. The row id and timestamp are
// generated here.
func (r *SQLiteRepository) RecordSend(ctx context.Context, tenantID, recipient, messageID, kind string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, tenant_id, recipient, message_id, kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"msg-"+uuid.NewString()[:8],
		tenantID, recipient, messageID, kind,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message record: %w", err)
	}
	return nil
}

// ListByTenant returns the tenant's send history, most recent first.
func (r *SQLiteRepository) ListByTenant(ctx context.Context, tenantID string, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	conditions := []string{"tenant_id = ?"}
	args := []any{tenantID}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	// WHERE is assembled from fixed parameterised conditions; user input
	// only ever travels through placeholders.
	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM messages %s", where) //nolint:gosec // parameterised conditions only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // parameterised conditions only
		"SELECT id, tenant_id, recipient, message_id, kind, created_at FROM messages %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Recipient, &m.MessageID, &m.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message record: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing message timestamp %q: %w", createdAt, err)
		}
		m.CreatedAt = t
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message records: %w", err)
	}

	if messages == nil {
		messages = []Message{}
	}

	return &ListResult{
		Messages: messages,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

// PurgeTenant deletes the tenant's entire send history. Used when a
// session is deleted with purge.
func (r *SQLiteRepository) PurgeTenant(ctx context.Context, tenantID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM messages WHERE tenant_id = ?", tenantID); err != nil {
		return fmt.Errorf("purging tenant messages: %w", err)
	}
	return nil
}
