package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Action identifies the kind of state change an activity entry records.
type Action string

const (
	ActionTaskCreated     Action = "task_created"
	ActionTaskClaimed     Action = "task_claimed"
	ActionTaskStarted     Action = "task_started"
	ActionTaskSubmitted   Action = "task_submitted"
	ActionTaskApproved    Action = "task_approved"
	ActionTaskRejected    Action = "task_rejected"
	ActionTaskBlocked     Action = "task_blocked"
	ActionTaskCompleted   Action = "task_completed"
	ActionTaskCancelled   Action = "task_cancelled"
	ActionTaskReset       Action = "task_reset"
	ActionAgentRegistered Action = "agent_registered"
)

// Activity is one append-only record of a state-changing operation.
// Entries are never updated or deleted; ordering is by insertion
// sequence, so concurrent entries stay totally ordered even when their
// timestamps tie.
type Activity struct {
	ID     int64     `json:"id"`
	At     time.Time `json:"at"`
	Agent  string    `json:"agent"`
	Action Action    `json:"action"`
	TaskID int64     `json:"task_id,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Meta   Meta      `json:"meta,omitempty"`
}

// logActivity appends one entry inside the transaction that performs
// the corresponding state change, so both commit or neither does.
func logActivity(tx *sql.Tx, at time.Time, agent string, action Action, taskID int64, detail, metaJSON string) error {
	_, err := tx.Exec(`
		INSERT INTO activity (at, agent, action, task_id, detail, meta)
		VALUES (?,?,?,?,?,?)`,
		at, agent, string(action), nullInt64(taskID), detail, metaJSON)
	if err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}

// Feed returns the most recent activity entries, newest first,
// optionally filtered to a single agent. A limit of 0 means the
// default of 30.
func (s *Store) Feed(limit int, agentFilter string) ([]*Activity, error) {
	if limit <= 0 {
		limit = 30
	}
	q := `SELECT id, at, agent, action, task_id, detail, meta FROM activity`
	args := []any{}
	if agentFilter != "" {
		q += ` WHERE agent=?`
		args = append(args, agentFilter)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()
	return scanActivities(rows)
}

// TaskHistory returns the full ordered activity for one task, oldest
// first, for reconstructing the task's narrative in detail views.
func (s *Store) TaskHistory(taskID int64) ([]*Activity, error) {
	rows, err := s.db.Query(`
		SELECT id, at, agent, action, task_id, detail, meta
		FROM activity WHERE task_id=? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query task history: %w", err)
	}
	defer rows.Close()
	return scanActivities(rows)
}

func scanActivities(rows *sql.Rows) ([]*Activity, error) {
	var entries []*Activity
	for rows.Next() {
		var a Activity
		var action, metaJSON string
		var taskID sql.NullInt64
		if err := rows.Scan(&a.ID, &a.At, &a.Agent, &action, &taskID, &a.Detail, &metaJSON); err != nil {
			return nil, err
		}
		a.Action = Action(action)
		a.TaskID = taskID.Int64
		if metaJSON != "" && metaJSON != "{}" {
			_ = json.Unmarshal([]byte(metaJSON), &a.Meta)
		}
		entries = append(entries, &a)
	}
	return entries, rows.Err()
}
