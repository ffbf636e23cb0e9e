package store

import (
	"errors"
	"testing"
)

func TestSendMessage(t *testing.T) {
	st := newTestStore(t)

	m, err := st.SendMessage("alice", "bob", "hello", "", 0)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if m.ID == "" {
		t.Error("ID not assigned")
	}
	if m.Type != MsgTypeComment {
		t.Errorf("Type = %q, want comment default", m.Type)
	}

	msgs, err := st.Inbox("bob", false)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hello" || msgs[0].FromAgent != "alice" {
		t.Errorf("inbox = %v, want hello from alice", msgs)
	}
}

func TestSendMessage_EmptyBody(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.SendMessage("alice", "bob", "", "", 0); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestBroadcast_VisibleToEveryone(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.Broadcast("alice", "deploy at noon"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	for _, agent := range []string{"bob", "carol"} {
		msgs, err := st.Inbox(agent, false)
		if err != nil {
			t.Fatalf("Inbox(%s): %v", agent, err)
		}
		if len(msgs) != 1 || msgs[0].Type != MsgTypeAlert || msgs[0].ToAgent != "" {
			t.Errorf("inbox(%s) = %v, want one broadcast alert", agent, msgs)
		}
	}
}

func TestInbox_UnreadOnly(t *testing.T) {
	st := newTestStore(t)
	first, err := st.SendMessage("alice", "bob", "read me", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.SendMessage("alice", "bob", "still new", "", 0); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkRead("bob", first.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	msgs, err := st.Inbox("bob", true)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "still new" {
		t.Errorf("unread inbox = %v, want only the unread message", msgs)
	}
}

func TestMarkRead_BulkSkipsBroadcasts(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.SendMessage("alice", "bob", "direct", "", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Broadcast("alice", "everyone"); err != nil {
		t.Fatal(err)
	}

	if err := st.MarkRead("bob"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	msgs, err := st.Inbox("bob", true)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Type != MsgTypeAlert {
		t.Errorf("unread after bulk mark = %v, want only the broadcast", msgs)
	}
}

func TestMarkRead_ExplicitBroadcast(t *testing.T) {
	st := newTestStore(t)
	b, err := st.Broadcast("alice", "everyone")
	if err != nil {
		t.Fatal(err)
	}

	if err := st.MarkRead("bob", b.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	msgs, err := st.Inbox("bob", true)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("unread = %d, want broadcast marked read by id", len(msgs))
	}
}

func TestUnreadCount_DirectOnly(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.SendMessage("alice", "bob", "one", "", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := st.SendMessage("alice", "bob", "two", "", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Broadcast("alice", "noise"); err != nil {
		t.Fatal(err)
	}

	n, err := st.UnreadCount("bob")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if n != 2 {
		t.Errorf("unread = %d, want 2 (broadcasts excluded)", n)
	}

	if err := st.MarkRead("bob"); err != nil {
		t.Fatal(err)
	}
	n, err = st.UnreadCount("bob")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if n != 0 {
		t.Errorf("unread after mark = %d, want 0", n)
	}
}

func TestFeed(t *testing.T) {
	st := newTestStore(t)
	task := mustAdd(t, st, "Task", AddOptions{CreatedBy: "alice"})
	if _, err := st.Claim(task.ID, "bob", false, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Start(task.ID, "bob", nil); err != nil {
		t.Fatal(err)
	}

	entries, err := st.Feed(0, "")
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("feed = %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Action != ActionTaskStarted || entries[2].Action != ActionTaskCreated {
		t.Errorf("order = [%s .. %s], want newest first", entries[0].Action, entries[2].Action)
	}
}

func TestFeed_AgentFilterAndLimit(t *testing.T) {
	st := newTestStore(t)
	t1 := mustAdd(t, st, "one", AddOptions{CreatedBy: "alice"})
	mustAdd(t, st, "two", AddOptions{CreatedBy: "bob"})
	if _, err := st.Claim(t1.ID, "bob", false, nil); err != nil {
		t.Fatal(err)
	}

	entries, err := st.Feed(0, "bob")
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("bob's feed = %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Agent != "bob" {
			t.Errorf("entry agent = %q, want bob", e.Agent)
		}
	}

	limited, err := st.Feed(1, "")
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited feed = %d entries, want 1", len(limited))
	}
}
