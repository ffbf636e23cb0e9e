package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusClaimed    Status = "claimed"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no forward transition is defined from s.
// Terminal tasks can only be revived by an explicit Reset.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// Task is a unit of work claimed and executed by an agent.
type Task struct {
	ID          int64      `json:"id"`
	Subject     string     `json:"subject"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Owner       string     `json:"owner,omitempty"` // empty when unowned
	Priority    int        `json:"priority"`
	ParentID    int64      `json:"parent_id,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Meta is an opaque key-value payload persisted verbatim on the
// activity entry produced by a mutation. The engine never interprets it.
type Meta map[string]any

// encodeMeta marshals m for storage, treating an unmarshalable payload
// as caller error.
func encodeMeta(m Meta) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("metadata payload: %v: %w", err, ErrValidation)
	}
	return string(b), nil
}

// AddOptions carries the optional fields accepted by AddTask.
type AddOptions struct {
	Description string
	Priority    int
	ParentID    int64
	Assignee    string // when set, the task is created already claimed
	CreatedBy   string
	Meta        Meta
}

// AddTask creates a task. Without an assignee the task starts pending
// and unowned; with one it starts claimed by that agent with claimed_at
// set. Exactly one task_created activity entry is written.
func (s *Store) AddTask(subject string, opt AddOptions) (*Task, error) {
	if subject == "" {
		return nil, fmt.Errorf("subject required: %w", ErrValidation)
	}
	metaJSON, err := encodeMeta(opt.Meta)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	status := StatusPending
	var claimedAt *time.Time
	if opt.Assignee != "" {
		status = StatusClaimed
		claimedAt = &now
	}
	agent := opt.CreatedBy
	if agent == "" {
		agent = opt.Assignee
	}

	var t *Task
	err = s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO tasks (subject, description, status, owner, priority, parent_id, created_by, created_at, updated_at, claimed_at)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			subject, opt.Description, string(status), nullString(opt.Assignee),
			opt.Priority, nullInt64(opt.ParentID), opt.CreatedBy,
			now, now, nullTime(claimedAt),
		)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := logActivity(tx, now, agent, ActionTaskCreated, id, subject, metaJSON); err != nil {
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

// Claim takes ownership of a task. The guard allows claiming unowned
// pending tasks and re-claiming your own task; force relaxes both the
// owner and status predicates and steals the task outright. A Conflict
// means another agent got there first.
func (s *Store) Claim(id int64, agent string, force bool, meta Meta) (*Task, error) {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var t *Task
	err = s.inTx(func(tx *sql.Tx) error {
		var res sql.Result
		var err error
		if force {
			res, err = tx.Exec(`
				UPDATE tasks SET status=?, owner=?, claimed_at=?, updated_at=?
				WHERE id=?`,
				string(StatusClaimed), agent, now, now, id)
		} else {
			res, err = tx.Exec(`
				UPDATE tasks SET status=?, owner=?, claimed_at=?, updated_at=?
				WHERE id=? AND status IN (?,?) AND (owner IS NULL OR owner=?)`,
				string(StatusClaimed), agent, now, now,
				id, string(StatusPending), string(StatusClaimed), agent)
		}
		if err != nil {
			return fmt.Errorf("claim task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return claimFailure(tx, id, agent)
		}
		detail := ""
		if force {
			detail = "forced"
		}
		if err := logActivity(tx, now, agent, ActionTaskClaimed, id, detail, metaJSON); err != nil {
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

// claimFailure diagnoses a zero-row claim. The guarded update already
// decided the outcome; this read only names the reason.
func claimFailure(tx *sql.Tx, id int64, agent string) error {
	cur, err := getTask(tx, id)
	if err != nil {
		return err
	}
	if cur.Owner != "" && cur.Owner != agent {
		return fmt.Errorf("task #%d already claimed by %s: %w", id, cur.Owner, ErrConflict)
	}
	if cur.Status.Terminal() {
		return fmt.Errorf("task #%d is %s: %w", id, cur.Status, ErrInvalidTransition)
	}
	return fmt.Errorf("task #%d is %s: %w", id, cur.Status, ErrConflict)
}

// Start begins work on a claimed task. Only the current owner may start
// it; on success the owning agent is marked busy.
func (s *Store) Start(id int64, agent string, meta Meta) (*Task, error) {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var t *Task
	err = s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks SET status=?, updated_at=?
			WHERE id=? AND status=? AND owner=?`,
			string(StatusInProgress), now, id, string(StatusClaimed), agent)
		if err != nil {
			return fmt.Errorf("start task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ownerGuardFailure(tx, id, agent, StatusClaimed)
		}
		if _, err := tx.Exec(`UPDATE agents SET status='busy', last_seen=? WHERE name=?`, now, agent); err != nil {
			return fmt.Errorf("mark agent busy: %w", err)
		}
		if err := logActivity(tx, now, agent, ActionTaskStarted, id, "", metaJSON); err != nil {
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

// Review submits the owner's work for review. After the transition
// commits, the task's creator is notified with a mailbox message;
// that notification is best-effort and never rolls back the
// transition.
func (s *Store) Review(id int64, agent string, meta Meta) (*Task, error) {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var t *Task
	err = s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks SET status=?, updated_at=?
			WHERE id=? AND status IN (?,?) AND owner=?`,
			string(StatusReview), now,
			id, string(StatusClaimed), string(StatusInProgress), agent)
		if err != nil {
			return fmt.Errorf("submit for review: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ownerGuardFailure(tx, id, agent, StatusClaimed, StatusInProgress)
		}
		if err := logActivity(tx, now, agent, ActionTaskSubmitted, id, "", metaJSON); err != nil {
			return err
		}
		t, err = getTask(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if t.CreatedBy != "" && t.CreatedBy != agent {
		body := fmt.Sprintf("task #%d ready for review: %s", t.ID, t.Subject)
		if _, err := s.SendMessage(agent, t.CreatedBy, body, MsgTypeReview, t.ID); err != nil {
			s.logger.Warn("review notification failed",
				"task", t.ID, "to", t.CreatedBy, "err", err)
		}
	}
	return t, nil
}

// Approve moves a reviewed task to done and sets completed_at. The
// returned bool reports whether this call performed the transition;
// approving an already-done task is a success no-op so that retries
// after an uncertain outcome are safe.
func (s *Store) Approve(id int64, agent, note string, meta Meta) (*Task, bool, error) {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()

	var t *Task
	changed := false
	err = s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks SET status=?, completed_at=?, updated_at=?
			WHERE id=? AND status=?`,
			string(StatusDone), now, now, id, string(StatusReview))
		if err != nil {
			return fmt.Errorf("approve task: %w", err)
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
			if cur.Status == StatusDone {
				t = cur
				return nil // already approved, no-op
			}
			return fmt.Errorf("task #%d is %s, not review: %w", id, cur.Status, ErrConflict)
		}
		changed = true
		t, err = getTask(tx, id)
		if err != nil {
			return err
		}
		if t.Owner != "" {
			if _, err := tx.Exec(`UPDATE agents SET status='idle' WHERE name=?`, t.Owner); err != nil {
				return fmt.Errorf("mark agent idle: %w", err)
			}
		}
		return logActivity(tx, now, agent, ActionTaskApproved, id, note, metaJSON)
	})
	if err != nil {
		return nil, false, err
	}
	return t, changed, nil
}

// Reject sends a reviewed task back to pending, clearing its owner.
// The reason is kept on the activity entry.
func (s *Store) Reject(id int64, agent, reason string, meta Meta) (*Task, error) {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var t *Task
	err = s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks SET status=?, owner=NULL, claimed_at=NULL, updated_at=?
			WHERE id=? AND status=?`,
			string(StatusPending), now, id, string(StatusReview))
		if err != nil {
			return fmt.Errorf("reject task: %w", err)
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
			return fmt.Errorf("task #%d is %s, not review: %w", id, cur.Status, ErrConflict)
		}
		if err := logActivity(tx, now, agent, ActionTaskRejected, id, reason, metaJSON); err != nil {
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

// Complete marks a task done directly, without the review gate. Only
// the owner may complete it unless force is set. Completing an
// already-done task is a success no-op (changed=false) and writes no
// second activity entry. A non-empty note is delivered to the task's
// creator as a status message.
func (s *Store) Complete(id int64, agent, note string, force bool, meta Meta) (*Task, bool, error) {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()

	var t *Task
	changed := false
	err = s.inTx(func(tx *sql.Tx) error {
		var res sql.Result
		var err error
		if force {
			res, err = tx.Exec(`
				UPDATE tasks SET status=?, completed_at=?, updated_at=?
				WHERE id=? AND status NOT IN (?,?)`,
				string(StatusDone), now, now,
				id, string(StatusDone), string(StatusCancelled))
		} else {
			res, err = tx.Exec(`
				UPDATE tasks SET status=?, completed_at=?, updated_at=?
				WHERE id=? AND status IN (?,?,?) AND owner=?`,
				string(StatusDone), now, now,
				id, string(StatusClaimed), string(StatusInProgress), string(StatusReview), agent)
		}
		if err != nil {
			return fmt.Errorf("complete task: %w", err)
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
			if cur.Status == StatusDone {
				t = cur
				return nil // already done
			}
			if !force && cur.Owner != agent {
				return fmt.Errorf("task #%d not owned by you: %w", id, ErrConflict)
			}
			return fmt.Errorf("task #%d is %s: %w", id, cur.Status, ErrInvalidTransition)
		}
		changed = true
		if _, err := tx.Exec(`UPDATE agents SET status='idle' WHERE name=?`, agent); err != nil {
			return fmt.Errorf("mark agent idle: %w", err)
		}
		if err := logActivity(tx, now, agent, ActionTaskCompleted, id, note, metaJSON); err != nil {
			return err
		}
		t, err = getTask(tx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if changed && note != "" {
		if _, err := s.SendMessage(agent, t.CreatedBy, note, MsgTypeStatus, t.ID); err != nil {
			s.logger.Warn("completion note failed", "task", t.ID, "err", err)
		}
	}
	return t, changed, nil
}

// Cancel marks a task cancelled and clears its owner. Cancelling a
// task that is already done or cancelled is a success no-op.
func (s *Store) Cancel(id int64, agent string, meta Meta) (*Task, bool, error) {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()

	var t *Task
	changed := false
	err = s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks SET status=?, owner=NULL, updated_at=?
			WHERE id=? AND status NOT IN (?,?)`,
			string(StatusCancelled), now,
			id, string(StatusDone), string(StatusCancelled))
		if err != nil {
			return fmt.Errorf("cancel task: %w", err)
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
			t = cur
			return nil // already terminal
		}
		changed = true
		if err := logActivity(tx, now, agent, ActionTaskCancelled, id, "", metaJSON); err != nil {
			return err
		}
		t, err = getTask(tx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return t, changed, nil
}

// Reset revives a done, cancelled, or blocked task back to pending,
// clearing owner, claimed_at, and completed_at. Leaving blocked also
// removes the task's dependency edges; other statuses keep theirs.
// Force resets a task regardless of its current status.
func (s *Store) Reset(id int64, agent string, force bool, meta Meta) (*Task, error) {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	const resetSet = `UPDATE tasks SET status=?, owner=NULL, claimed_at=NULL, completed_at=NULL, updated_at=?`

	var t *Task
	err = s.inTx(func(tx *sql.Tx) error {
		// Blocked first: that path is the only one that clears edges.
		res, err := tx.Exec(resetSet+` WHERE id=? AND status=?`,
			string(StatusPending), now, id, string(StatusBlocked))
		if err != nil {
			return fmt.Errorf("reset task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			if err := clearEdges(tx, id); err != nil {
				return err
			}
		} else {
			if force {
				res, err = tx.Exec(resetSet+` WHERE id=?`, string(StatusPending), now, id)
			} else {
				res, err = tx.Exec(resetSet+` WHERE id=? AND status IN (?,?)`,
					string(StatusPending), now, id,
					string(StatusDone), string(StatusCancelled))
			}
			if err != nil {
				return fmt.Errorf("reset task: %w", err)
			}
			n, err = res.RowsAffected()
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
		}
		if err := logActivity(tx, now, agent, ActionTaskReset, id, "", metaJSON); err != nil {
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

// ownerGuardFailure diagnoses a zero-row owner-guarded update.
func ownerGuardFailure(tx *sql.Tx, id int64, agent string, want ...Status) error {
	cur, err := getTask(tx, id)
	if err != nil {
		return err
	}
	if cur.Owner != agent {
		return fmt.Errorf("task #%d not owned by you: %w", id, ErrConflict)
	}
	for _, w := range want {
		if cur.Status == w {
			return fmt.Errorf("task #%d changed underfoot: %w", id, ErrConflict)
		}
	}
	return fmt.Errorf("task #%d is %s: %w", id, cur.Status, ErrInvalidTransition)
}

// GetTask retrieves a single task by id.
func (s *Store) GetTask(id int64) (*Task, error) {
	return getTaskQ(s.db, id)
}

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

const taskCols = `id, subject, description, status, owner, priority, parent_id, created_by, created_at, updated_at, claimed_at, completed_at`

func getTask(tx *sql.Tx, id int64) (*Task, error) { return getTaskQ(tx, id) }

func getTaskQ(q querier, id int64) (*Task, error) {
	row := q.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task #%d: %w", id, ErrNotFound)
	}
	return t, err
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var status string
	var owner sql.NullString
	var parentID sql.NullInt64
	var claimedAt, completedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.Subject, &t.Description, &status, &owner, &t.Priority,
		&parentID, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
		&claimedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	t.Owner = owner.String
	t.ParentID = parentID.Int64
	if claimedAt.Valid {
		t.ClaimedAt = &claimedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}
