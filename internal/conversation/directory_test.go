package conversation

import (
	"context"
	"sync"
	"testing"
	"time"
)

// scriptedList returns one listing per call, optionally blocking on a gate
// so tests can decide completion order.
type scriptedList struct {
	mu      sync.Mutex
	results [][]Entry
	calls   int
	gates   []chan struct{}
}

func (s *scriptedList) list(ctx context.Context, userID string) ([]Entry, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	var gate chan struct{}
	if i < len(s.gates) {
		gate = s.gates[i]
	}
	result := s.results[i]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return result, nil
}

func entries(ids ...string) []Entry {
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = Entry{Conversation: Conversation{ID: id}}
	}
	return out
}

func entryIDs(es []Entry) []string {
	out := make([]string, len(es))
	for i := range es {
		out[i] = es[i].ID
	}
	return out
}

func sameEntryIDs(es []Entry, want ...string) bool {
	got := entryIDs(es)
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestDirectory_RefreshReplacesView(t *testing.T) {
	s := &scriptedList{results: [][]Entry{entries("c1", "c2"), entries("c2", "c1")}}
	d := NewDirectory("me", s.list, nil)

	d.Refresh(context.Background())
	if got := d.Entries(); !sameEntryIDs(got, "c1", "c2") {
		t.Fatalf("first view = %v", entryIDs(got))
	}

	// A new message reorders the directory; the view is replaced, never
	// merged.
	d.Refresh(context.Background())
	if got := d.Entries(); !sameEntryIDs(got, "c2", "c1") {
		t.Fatalf("second view = %v", entryIDs(got))
	}
}

func TestDirectory_StaleFetchDiscarded(t *testing.T) {
	slow := make(chan struct{})
	s := &scriptedList{
		results: [][]Entry{entries("old"), entries("new")},
		gates:   []chan struct{}{slow, nil},
	}
	d := NewDirectory("me", s.list, nil)

	done := make(chan struct{})
	go func() {
		d.Refresh(context.Background()) // issued first, completes last
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		s.mu.Lock()
		started := s.calls == 1
		s.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("slow listing never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	d.Refresh(context.Background())
	close(slow)
	<-done

	if got := d.Entries(); !sameEntryIDs(got, "new") {
		t.Fatalf("stale listing overwrote newer view: %v", entryIDs(got))
	}
}

func TestDirectory_OnUpdateFires(t *testing.T) {
	s := &scriptedList{results: [][]Entry{entries("c1")}}
	var got []Entry
	d := NewDirectory("me", s.list, func(es []Entry) { got = es })

	d.Refresh(context.Background())

	if !sameEntryIDs(got, "c1") {
		t.Fatalf("onUpdate got %v", entryIDs(got))
	}
}

func TestDirectory_CloseIsIdempotent(t *testing.T) {
	d := NewDirectory("me", nil, nil)
	d.Close()
	d.Close()
}
