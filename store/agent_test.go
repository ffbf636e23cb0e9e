package store

import (
	"errors"
	"testing"
)

func TestRegisterAgent(t *testing.T) {
	st := newTestStore(t)

	a, err := st.RegisterAgent("alice", "developer")
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if a.Name != "alice" || a.Role != "developer" || a.Status != "idle" {
		t.Errorf("agent = %+v, want alice/developer/idle", a)
	}
	if a.LastSeen == nil {
		t.Error("LastSeen not set")
	}
}

func TestRegisterAgent_UpdatesRole(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.RegisterAgent("alice", "developer"); err != nil {
		t.Fatal(err)
	}

	a, err := st.RegisterAgent("alice", "reviewer")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if a.Role != "reviewer" {
		t.Errorf("Role = %q, want reviewer", a.Role)
	}
}

func TestRegisterAgent_EmptyName(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.RegisterAgent("", "dev"); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestCheckin_DerivesStatus(t *testing.T) {
	st := newTestStore(t)

	a, err := st.Checkin("alice")
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if a.Status != "idle" {
		t.Errorf("Status = %q, want idle", a.Status)
	}

	task := mustAdd(t, st, "work", AddOptions{Assignee: "alice"})
	if _, err := st.Start(task.ID, "alice", nil); err != nil {
		t.Fatal(err)
	}
	a, err = st.Checkin("alice")
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if a.Status != "busy" {
		t.Errorf("Status = %q, want busy", a.Status)
	}

	if _, _, err := st.Complete(task.ID, "alice", "", false, nil); err != nil {
		t.Fatal(err)
	}
	a, err = st.Checkin("alice")
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if a.Status != "idle" {
		t.Errorf("Status = %q, want idle after completion", a.Status)
	}
}

func TestCheckin_ImplicitRegister(t *testing.T) {
	st := newTestStore(t)
	a, err := st.Checkin("ghost")
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if a.Name != "ghost" {
		t.Errorf("Name = %q, want ghost", a.Name)
	}
}

func TestAgentRole(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.RegisterAgent("alice", "lead"); err != nil {
		t.Fatal(err)
	}

	if got := st.AgentRole("alice"); got != "lead" {
		t.Errorf("AgentRole(alice) = %q, want lead", got)
	}
	if got := st.AgentRole("nobody"); got != "unregistered" {
		t.Errorf("AgentRole(nobody) = %q, want unregistered", got)
	}
}

func TestFleet_WorkingOn(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.RegisterAgent("alice", "dev"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.RegisterAgent("bob", "dev"); err != nil {
		t.Fatal(err)
	}
	task := mustAdd(t, st, "Current work", AddOptions{Assignee: "alice"})
	if _, err := st.Start(task.ID, "alice", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Checkin("alice"); err != nil {
		t.Fatal(err)
	}

	agents, err := st.Fleet()
	if err != nil {
		t.Fatalf("Fleet: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("fleet = %d agents, want 2", len(agents))
	}
	// Ordered by name.
	if agents[0].Name != "alice" || agents[1].Name != "bob" {
		t.Fatalf("order = [%s %s], want [alice bob]", agents[0].Name, agents[1].Name)
	}
	if agents[0].Status != "busy" || agents[0].WorkingOn != "Current work" {
		t.Errorf("alice = %s/%q, want busy/'Current work'", agents[0].Status, agents[0].WorkingOn)
	}
	if agents[1].Status != "idle" || agents[1].WorkingOn != "" {
		t.Errorf("bob = %s/%q, want idle with no task", agents[1].Status, agents[1].WorkingOn)
	}
}
