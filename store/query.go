package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// BoardTask is a task on the board with its blocker ids attached.
type BoardTask struct {
	Task
	BlockedBy []int64 `json:"blocked_by,omitempty"`
}

// Board groups every task into four display buckets. Within a bucket
// tasks are ordered by priority descending, then id ascending. Blocker
// ids come from a single join, not per-task lookups.
type Board struct {
	Queued  []*BoardTask `json:"queued"`  // pending, claimed
	Active  []*BoardTask `json:"active"`  // in_progress, review
	Blocked []*BoardTask `json:"blocked"` // blocked
	Done    []*BoardTask `json:"done"`    // done, cancelled
}

// GetBoard builds the board projection. The partition is exhaustive:
// every defined status lands in exactly one bucket.
func (s *Store) GetBoard() (*Board, error) {
	rows, err := s.db.Query(`
		SELECT ` + taskColsPrefixed + `, COALESCE(GROUP_CONCAT(d.blocked_by), '')
		FROM tasks t LEFT JOIN task_deps d ON d.task_id = t.id
		GROUP BY t.id
		ORDER BY t.priority DESC, t.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query board: %w", err)
	}
	defer rows.Close()

	board := &Board{}
	for rows.Next() {
		bt, err := scanBoardTask(rows)
		if err != nil {
			return nil, err
		}
		switch bt.Status {
		case StatusPending, StatusClaimed:
			board.Queued = append(board.Queued, bt)
		case StatusInProgress, StatusReview:
			board.Active = append(board.Active, bt)
		case StatusBlocked:
			board.Blocked = append(board.Blocked, bt)
		default: // done, cancelled
			board.Done = append(board.Done, bt)
		}
	}
	return board, rows.Err()
}

// Next selects the single highest-priority actionable task for an
// agent: pending tasks that are unowned or already earmarked for the
// agent. Ties break by priority descending then creation order, so the
// result is deterministic for a given snapshot. Returns nil when
// nothing is actionable.
func (s *Store) Next(agent string) (*Task, error) {
	row := s.db.QueryRow(`
		SELECT `+taskCols+` FROM tasks
		WHERE status=? AND (owner IS NULL OR owner=?)
		ORDER BY priority DESC, id ASC LIMIT 1`,
		string(StatusPending), agent)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query next: %w", err)
	}
	return t, nil
}

// ListFilter controls which tasks ListTasks returns.
type ListFilter struct {
	Status     Status
	Owner      string
	IncludeAll bool // include done and cancelled tasks
	Limit      int
}

// ListTasks returns tasks matching the filter. By default terminal
// tasks are omitted. Active tasks sort first: in_progress, then
// review, claimed, pending, blocked; priority breaks ties.
func (s *Store) ListTasks(filter ListFilter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT ` + taskCols + ` FROM tasks WHERE 1=1`)
	args := []any{}

	if filter.Status != "" {
		q.WriteString(` AND status=?`)
		args = append(args, string(filter.Status))
	} else if !filter.IncludeAll {
		q.WriteString(` AND status NOT IN (?,?)`)
		args = append(args, string(StatusDone), string(StatusCancelled))
	}
	if filter.Owner != "" {
		q.WriteString(` AND owner=?`)
		args = append(args, filter.Owner)
	}
	q.WriteString(` ORDER BY CASE status
		WHEN 'in_progress' THEN 0
		WHEN 'review' THEN 1
		WHEN 'claimed' THEN 2
		WHEN 'pending' THEN 3
		WHEN 'blocked' THEN 4
		ELSE 5 END, priority DESC, id ASC`)
	if filter.Limit > 0 {
		q.WriteString(fmt.Sprintf(` LIMIT %d`, filter.Limit))
	}

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Summary aggregates fleet and task counts for the overview view.
type Summary struct {
	Open       int      `json:"open"` // pending + claimed + in_progress + review
	InProgress int      `json:"in_progress"`
	Blocked    int      `json:"blocked"`
	Done       int      `json:"done"`
	Agents     []*Agent `json:"agents"`
}

// GetSummary computes the summary projection.
func (s *Store) GetSummary() (*Summary, error) {
	sum := &Summary{}
	err := s.db.QueryRow(`SELECT
		COUNT(CASE WHEN status IN (?,?,?,?) THEN 1 END),
		COUNT(CASE WHEN status=? THEN 1 END),
		COUNT(CASE WHEN status=? THEN 1 END),
		COUNT(CASE WHEN status=? THEN 1 END)
		FROM tasks`,
		string(StatusPending), string(StatusClaimed), string(StatusInProgress), string(StatusReview),
		string(StatusInProgress),
		string(StatusBlocked),
		string(StatusDone),
	).Scan(&sum.Open, &sum.InProgress, &sum.Blocked, &sum.Done)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	sum.Agents, err = s.Fleet()
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// TaskDetail returns a task together with its messages. Unknown ids
// yield a nil task rather than an error, matching the dashboard's
// "soft 404" rendering.
func (s *Store) TaskDetail(id int64) (*Task, []*Message, error) {
	t, err := getTaskQ(s.db, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, []*Message{}, nil
		}
		return nil, nil, err
	}
	rows, err := s.db.Query(`
		SELECT id, from_agent, to_agent, body, msg_type, task_id, created_at, read_at
		FROM messages WHERE task_id=? ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("query task messages: %w", err)
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, nil, err
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	return t, msgs, nil
}

// SearchResult holds tasks and messages matching a search query.
type SearchResult struct {
	Tasks    []*Task    `json:"tasks"`
	Messages []*Message `json:"messages"`
}

// Search finds tasks whose subject or description contains q, and
// messages whose body does. An empty query matches nothing.
func (s *Store) Search(q string) (*SearchResult, error) {
	result := &SearchResult{Tasks: []*Task{}, Messages: []*Message{}}
	q = strings.TrimSpace(q)
	if q == "" {
		return result, nil
	}
	pattern := "%" + q + "%"

	rows, err := s.db.Query(`
		SELECT `+taskCols+` FROM tasks
		WHERE subject LIKE ? OR description LIKE ?
		ORDER BY id ASC`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result.Tasks = append(result.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mrows, err := s.db.Query(`
		SELECT id, from_agent, to_agent, body, msg_type, task_id, created_at, read_at
		FROM messages WHERE body LIKE ? ORDER BY created_at DESC`, pattern)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer mrows.Close()
	msgs, err := scanMessages(mrows)
	if err != nil {
		return nil, err
	}
	if msgs != nil {
		result.Messages = msgs
	}
	return result, nil
}

const taskColsPrefixed = `t.id, t.subject, t.description, t.status, t.owner, t.priority, t.parent_id, t.created_by, t.created_at, t.updated_at, t.claimed_at, t.completed_at`

func scanBoardTask(rows *sql.Rows) (*BoardTask, error) {
	var bt BoardTask
	var status string
	var owner sql.NullString
	var parentID sql.NullInt64
	var claimedAt, completedAt sql.NullTime
	var blockedBy string

	err := rows.Scan(
		&bt.ID, &bt.Subject, &bt.Description, &status, &owner, &bt.Priority,
		&parentID, &bt.CreatedBy, &bt.CreatedAt, &bt.UpdatedAt,
		&claimedAt, &completedAt, &blockedBy,
	)
	if err != nil {
		return nil, err
	}
	bt.Status = Status(status)
	bt.Owner = owner.String
	bt.ParentID = parentID.Int64
	if claimedAt.Valid {
		bt.ClaimedAt = &claimedAt.Time
	}
	if completedAt.Valid {
		bt.CompletedAt = &completedAt.Time
	}
	if blockedBy != "" {
		for _, part := range strings.Split(blockedBy, ",") {
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				continue
			}
			bt.BlockedBy = append(bt.BlockedBy, id)
		}
	}
	return &bt, nil
}
