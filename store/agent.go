package store

import (
	"database/sql"
	"fmt"
	"time"
)

// offlineAfter is how long an agent can go without a check-in before
// the fleet view reports it offline.
const offlineAfter = 10 * time.Minute

// Agent is a registered worker identity.
type Agent struct {
	Name     string     `json:"name"`
	Role     string     `json:"role,omitempty"`
	Status   string     `json:"status"` // idle, busy, or derived offline
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// WorkingOn is the subject of the agent's current in_progress
	// task; populated by Fleet only.
	WorkingOn string `json:"working_on,omitempty"`
}

// RegisterAgent creates or refreshes an agent identity. Re-registering
// updates the role and bumps last_seen.
func (s *Store) RegisterAgent(name, role string) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("agent name required: %w", ErrValidation)
	}
	now := time.Now().UTC()
	err := s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO agents (name, role, status, last_seen) VALUES (?,?,'idle',?)
			ON CONFLICT(name) DO UPDATE SET role=excluded.role, last_seen=excluded.last_seen`,
			name, role, now); err != nil {
			return fmt.Errorf("register agent: %w", err)
		}
		return logActivity(tx, now, name, ActionAgentRegistered, 0, role, "{}")
	})
	if err != nil {
		return nil, err
	}
	return s.getAgent(name)
}

// Checkin records a heartbeat for the agent and derives its busy/idle
// status from whether it currently has in_progress tasks. Unregistered
// agents are registered implicitly.
func (s *Store) Checkin(name string) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("agent name required: %w", ErrValidation)
	}
	now := time.Now().UTC()
	err := s.inTx(func(tx *sql.Tx) error {
		var busy int
		err := tx.QueryRow(`
			SELECT COUNT(*) FROM tasks WHERE owner=? AND status=?`,
			name, string(StatusInProgress)).Scan(&busy)
		if err != nil {
			return fmt.Errorf("count in-progress: %w", err)
		}
		status := "idle"
		if busy > 0 {
			status = "busy"
		}
		if _, err := tx.Exec(`
			INSERT INTO agents (name, status, last_seen) VALUES (?,?,?)
			ON CONFLICT(name) DO UPDATE SET status=excluded.status, last_seen=excluded.last_seen`,
			name, status, now); err != nil {
			return fmt.Errorf("checkin agent: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.getAgent(name)
}

// AgentRole returns the registered role for an agent, or "unregistered"
// when the agent is unknown.
func (s *Store) AgentRole(name string) string {
	var role string
	err := s.db.QueryRow(`SELECT role FROM agents WHERE name=?`, name).Scan(&role)
	if err != nil {
		return "unregistered"
	}
	return role
}

// Fleet lists all agents with their derived status and, for busy
// agents, the subject of the task they are working on.
func (s *Store) Fleet() ([]*Agent, error) {
	rows, err := s.db.Query(`
		SELECT a.name, a.role, a.status, a.last_seen,
			COALESCE((SELECT subject FROM tasks
				WHERE owner=a.name AND status=?
				ORDER BY updated_at DESC LIMIT 1), '')
		FROM agents a ORDER BY a.name ASC`, string(StatusInProgress))
	if err != nil {
		return nil, fmt.Errorf("query fleet: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var agents []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		if a.LastSeen == nil || now.Sub(*a.LastSeen) > offlineAfter {
			a.Status = "offline"
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) getAgent(name string) (*Agent, error) {
	row := s.db.QueryRow(`
		SELECT name, role, status, last_seen, '' FROM agents WHERE name=?`, name)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s: %w", name, ErrNotFound)
	}
	return a, err
}

func scanAgent(row scanner) (*Agent, error) {
	var a Agent
	var lastSeen sql.NullTime
	if err := row.Scan(&a.Name, &a.Role, &a.Status, &lastSeen, &a.WorkingOn); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		a.LastSeen = &lastSeen.Time
	}
	return &a, nil
}
