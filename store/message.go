package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message types.
const (
	MsgTypeComment = "comment" // ordinary agent-to-agent note
	MsgTypeStatus  = "status"  // completion note attached to a task
	MsgTypeReview  = "review"  // review-requested notification
	MsgTypeAlert   = "alert"   // broadcast to everyone
)

// Message is a mailbox entry between agents. A nil recipient means the
// message is a broadcast visible to every agent.
type Message struct {
	ID        string     `json:"id"`
	FromAgent string     `json:"from_agent"`
	ToAgent   string     `json:"to_agent,omitempty"` // empty for broadcasts
	Body      string     `json:"body"`
	Type      string     `json:"msg_type"`
	TaskID    int64      `json:"task_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// SendMessage delivers a direct message from one agent to another,
// optionally attached to a task.
func (s *Store) SendMessage(from, to, body, msgType string, taskID int64) (*Message, error) {
	if body == "" {
		return nil, fmt.Errorf("message body required: %w", ErrValidation)
	}
	if msgType == "" {
		msgType = MsgTypeComment
	}
	m := &Message{
		ID:        uuid.NewString(),
		FromAgent: from,
		ToAgent:   to,
		Body:      body,
		Type:      msgType,
		TaskID:    taskID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO messages (id, from_agent, to_agent, body, msg_type, task_id, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.FromAgent, nullString(m.ToAgent), m.Body, m.Type,
		nullInt64(m.TaskID), m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return m, nil
}

// Broadcast sends an alert from one agent to everyone. Broadcasts have
// no recipient and are never marked read by the bulk MarkRead.
func (s *Store) Broadcast(from, body string) (*Message, error) {
	return s.SendMessage(from, "", body, MsgTypeAlert, 0)
}

// Inbox returns the messages visible to an agent: direct messages plus
// broadcasts, newest first.
func (s *Store) Inbox(agent string, unreadOnly bool) ([]*Message, error) {
	q := `
		SELECT id, from_agent, to_agent, body, msg_type, task_id, created_at, read_at
		FROM messages WHERE (to_agent=? OR to_agent IS NULL)`
	if unreadOnly {
		q += ` AND read_at IS NULL`
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(q, agent)
	if err != nil {
		return nil, fmt.Errorf("query inbox: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkRead marks the given messages read for an agent. With no ids it
// marks all of the agent's direct messages; broadcasts belong to no
// one and are left untouched by the bulk form.
func (s *Store) MarkRead(agent string, ids ...string) error {
	now := time.Now().UTC()
	if len(ids) == 0 {
		_, err := s.db.Exec(`
			UPDATE messages SET read_at=? WHERE to_agent=? AND read_at IS NULL`,
			now, agent)
		if err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		return nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := []any{now}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, agent)
	_, err := s.db.Exec(`
		UPDATE messages SET read_at=? WHERE id IN (`+placeholders+`)
		AND (to_agent=? OR to_agent IS NULL)`, args...)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// UnreadCount counts an agent's unread direct messages. Broadcasts are
// excluded.
func (s *Store) UnreadCount(agent string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM messages WHERE to_agent=? AND read_at IS NULL`,
		agent).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var msgs []*Message
	for rows.Next() {
		var m Message
		var to sql.NullString
		var taskID sql.NullInt64
		var readAt sql.NullTime
		err := rows.Scan(&m.ID, &m.FromAgent, &to, &m.Body, &m.Type,
			&taskID, &m.CreatedAt, &readAt)
		if err != nil {
			return nil, err
		}
		m.ToAgent = to.String
		m.TaskID = taskID.Int64
		if readAt.Valid {
			m.ReadAt = &readAt.Time
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
