package tevstore_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tevkit/tev"
	"github.com/tevkit/tev/tevstore"
)

func TestStoreQuery(t *testing.T) {
	t.Parallel()

	store := tevstore.NewStore(tevstore.StoreConfig{})

	ts := func(sec int) time.Time {
		return time.Date(2024, 1, 1, 0, 0, sec, 0, time.UTC)
	}

	events := []*tev.Event{
		{Type: tev.TypeBegin, Name: "req", ID: 1, Categories: []string{"net"}, Timestamp: ts(1)},
		{Type: tev.TypeEnd, Name: "req", ID: 1, Categories: []string{"net"}, Timestamp: ts(2)},
		{Type: tev.TypeInstant, Name: "tick", Categories: []string{"net", "io"}, Timestamp: ts(3)},
		{Type: tev.TypeCount, Name: "conns", Categories: []string{"io"}, Value: tev.Value{Number: 5}, Timestamp: ts(4)},
	}
	if err := store.WriteEvents(events); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"io", "net"}, store.Categories()); diff != "" {
		t.Errorf("categories (-want +have):\n%s", diff)
	}

	t.Run("all", func(t *testing.T) {
		res := store.Query(nil)
		if want, have := 4, res.Total; want != have {
			t.Errorf("Total: want %d, have %d", want, have)
		}
		if want, have := 4, res.Matched; want != have {
			t.Errorf("Matched: want %d, have %d", want, have)
		}
		// Newest first, and the multi-category event appears once.
		if want, have := "conns", res.Events[0].Name; want != have {
			t.Errorf("first event: want %q, have %q", want, have)
		}
		if want, have := "tick", res.Events[1].Name; want != have {
			t.Errorf("second event: want %q, have %q", want, have)
		}
	})

	t.Run("by category", func(t *testing.T) {
		res := store.Query(&tevstore.QueryRequest{Categories: []string{"io"}})
		if want, have := 2, res.Matched; want != have {
			t.Errorf("Matched: want %d, have %d", want, have)
		}
	})

	t.Run("by type", func(t *testing.T) {
		res := store.Query(&tevstore.QueryRequest{Types: []tev.EventType{tev.TypeBegin, tev.TypeEnd}})
		if want, have := 2, res.Matched; want != have {
			t.Errorf("Matched: want %d, have %d", want, have)
		}
	})

	t.Run("by name", func(t *testing.T) {
		res := store.Query(&tevstore.QueryRequest{Name: "tick"})
		if want, have := 1, res.Matched; want != have {
			t.Errorf("Matched: want %d, have %d", want, have)
		}
	})

	t.Run("limit", func(t *testing.T) {
		res := store.Query(&tevstore.QueryRequest{Limit: 2})
		if want, have := 4, res.Matched; want != have {
			t.Errorf("Matched: want %d, have %d", want, have)
		}
		if want, have := 2, len(res.Events); want != have {
			t.Errorf("Events: want %d, have %d", want, have)
		}
	})
}

func TestStoreEviction(t *testing.T) {
	t.Parallel()

	store := tevstore.NewStore(tevstore.StoreConfig{CategorySize: 2})

	for i := 1; i <= 3; i++ {
		err := store.WriteEvents([]*tev.Event{{
			Type:       tev.TypeInstant,
			Name:       "e",
			ID:         uint64(i),
			Categories: []string{"c"},
			Timestamp:  time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
		}})
		if err != nil {
			t.Fatal(err)
		}
	}

	res := store.Query(&tevstore.QueryRequest{Categories: []string{"c"}})
	if want, have := 2, res.Total; want != have {
		t.Fatalf("Total: want %d, have %d", want, have)
	}
	if want, have := uint64(3), res.Events[0].ID; want != have {
		t.Errorf("newest ID: want %d, have %d", want, have)
	}
	if want, have := uint64(2), res.Events[1].ID; want != have {
		t.Errorf("oldest retained ID: want %d, have %d", want, have)
	}
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := tevstore.NewJSONWriter(&buf)

	events := []*tev.Event{
		{Type: tev.TypeBegin, Name: "a", Categories: []string{"c"}, Timestamp: time.Unix(0, 0).UTC()},
		{Type: tev.TypeEnd, Name: "a", Categories: []string{"c"}, Timestamp: time.Unix(1, 0).UTC()},
	}
	if err := w.WriteEvents(events); err != nil {
		t.Fatal(err)
	}

	var decoded []*tev.Event
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var ev tev.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatal(err)
		}
		decoded = append(decoded, &ev)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(events, decoded); diff != "" {
		t.Errorf("decoded events (-want +have):\n%s", diff)
	}
}
