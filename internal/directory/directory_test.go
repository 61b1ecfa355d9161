package directory

import "testing"

func TestObserveCreatesAndUpdates(t *testing.T) {
	d := New()

	d.Observe("100", "alice", "Alice", "telegram", "100")
	u, ok := d.Get("100")
	if !ok {
		t.Fatal("user not found after Observe")
	}
	if u.Handle != "alice" || u.DisplayName != "Alice" {
		t.Errorf("record = %+v", u)
	}

	// Handle changes are last-write-wins.
	d.Observe("100", "alice_new", "Alice", "telegram", "100")
	u, _ = d.Get("100")
	if u.Handle != "alice_new" {
		t.Errorf("handle = %q, want alice_new", u.Handle)
	}

	// An empty handle must not erase the known one.
	d.Observe("100", "", "", "telegram", "100")
	u, _ = d.Get("100")
	if u.Handle != "alice_new" || u.DisplayName != "Alice" {
		t.Errorf("empty observation erased fields: %+v", u)
	}
}

func TestResolve(t *testing.T) {
	d := New()
	d.Observe("100", "alice", "Alice", "telegram", "100")

	if u, ok := d.Resolve("@alice"); !ok || u.ID != "100" {
		t.Errorf("Resolve(@alice) = %+v, %v", u, ok)
	}
	if u, ok := d.Resolve("@ALICE"); !ok || u.ID != "100" {
		t.Errorf("Resolve should be case-insensitive on handles, got %v", ok)
	}
	if u, ok := d.Resolve("100"); !ok || u.ID != "100" {
		t.Errorf("Resolve(100) = %+v, %v", u, ok)
	}
	if _, ok := d.Resolve("@nobody"); ok {
		t.Error("Resolve(@nobody) should fail")
	}
}

func TestActivePointer(t *testing.T) {
	d := New()
	d.Observe("100", "alice", "", "telegram", "100")

	if _, ok := d.ActiveTicket("100"); ok {
		t.Error("new user should have no active ticket")
	}

	d.RecordTicket("100", "BV-AAAA")
	if id, ok := d.ActiveTicket("100"); !ok || id != "BV-AAAA" {
		t.Errorf("active = %q, %v", id, ok)
	}

	d.ClearActive("100")
	if _, ok := d.ActiveTicket("100"); ok {
		t.Error("active pointer not cleared")
	}

	d.SetActive("100", "BV-AAAA")
	if id, _ := d.ActiveTicket("100"); id != "BV-AAAA" {
		t.Errorf("active after SetActive = %q", id)
	}

	u, _ := d.Get("100")
	if len(u.Tickets) != 1 || u.Tickets[0] != "BV-AAAA" {
		t.Errorf("owned tickets = %v", u.Tickets)
	}
}

func TestTicketOrderIsCreationOrder(t *testing.T) {
	d := New()
	d.Observe("100", "alice", "", "telegram", "100")
	d.RecordTicket("100", "BV-1")
	d.ClearActive("100")
	d.RecordTicket("100", "BV-2")

	u, _ := d.Get("100")
	if len(u.Tickets) != 2 || u.Tickets[0] != "BV-1" || u.Tickets[1] != "BV-2" {
		t.Errorf("tickets = %v, want creation order", u.Tickets)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	d := New()
	d.Observe("1", "a", "", "telegram", "1")
	d.Observe("2", "b", "", "telegram", "2")

	snap := d.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d", len(snap))
	}
	snap[0].Handle = "mutated"
	if u, _ := d.Get(snap[0].ID); u.Handle == "mutated" {
		t.Error("snapshot shares state with the directory")
	}
}
