package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Blocker is a dependency-graph neighbor with enough task fields for
// display.
type Blocker struct {
	ID      int64  `json:"id"`
	Subject string `json:"subject"`
	Status  Status `json:"status"`
}

// Block records that task id cannot proceed until blockerID resolves,
// and moves the task to blocked. The edge is advisory: the engine does
// not walk the graph, detect cycles, or gate Start on unresolved
// blockers. Self-loops are rejected; re-adding an existing edge is
// ignored.
func (s *Store) Block(id, blockerID int64, agent string, meta Meta) (*Task, error) {
	if id == blockerID {
		return nil, fmt.Errorf("task #%d cannot block itself: %w", id, ErrValidation)
	}
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var t *Task
	err = s.inTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM tasks WHERE id=?`, blockerID).Scan(&exists); err != nil {
			return fmt.Errorf("check blocker: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("blocker task #%d: %w", blockerID, ErrNotFound)
		}

		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO task_deps (task_id, blocked_by, created_at) VALUES (?,?,?)`,
			id, blockerID, now); err != nil {
			return fmt.Errorf("insert dependency: %w", err)
		}

		res, err := tx.Exec(`
			UPDATE tasks SET status=?, updated_at=?
			WHERE id=? AND status NOT IN (?,?)`,
			string(StatusBlocked), now,
			id, string(StatusDone), string(StatusCancelled))
		if err != nil {
			return fmt.Errorf("block task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			cur, err := getTask(tx, id)
			if err != nil {
				return err
			}
			return fmt.Errorf("task #%d is %s: %w", id, cur.Status, ErrInvalidTransition)
		}

		detail := fmt.Sprintf("blocked by #%d", blockerID)
		if err := logActivity(tx, now, agent, ActionTaskBlocked, id, detail, metaJSON); err != nil {
			return err
		}
		t, err = getTask(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Blockers returns the tasks blocking the given task, in the order the
// edges were created.
func (s *Store) Blockers(taskID int64) ([]*Blocker, error) {
	rows, err := s.db.Query(`
		SELECT t.id, t.subject, t.status
		FROM task_deps d JOIN tasks t ON t.id = d.blocked_by
		WHERE d.task_id=? ORDER BY d.id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query blockers: %w", err)
	}
	defer rows.Close()

	var blockers []*Blocker
	for rows.Next() {
		var b Blocker
		var status string
		if err := rows.Scan(&b.ID, &b.Subject, &status); err != nil {
			return nil, err
		}
		b.Status = Status(status)
		blockers = append(blockers, &b)
	}
	return blockers, rows.Err()
}

// clearEdges removes all dependency edges for a task. Used by Reset
// when the task is leaving blocked.
func clearEdges(tx *sql.Tx, taskID int64) error {
	if _, err := tx.Exec(`DELETE FROM task_deps WHERE task_id=?`, taskID); err != nil {
		return fmt.Errorf("clear dependencies: %w", err)
	}
	return nil
}
