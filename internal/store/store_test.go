package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "npud.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndRecent(t *testing.T) {
	s := openTemp(t)
	base := time.Now().Add(-time.Minute)
	for i, model := range []string{"m1", "m1", "m2"} {
		s.Save(Record{
			ID:         NextID(),
			Model:      model,
			Created:    base.Add(time.Duration(i) * time.Second),
			Streamed:   i%2 == 0,
			Prompt:     "user: hi",
			Completion: "hello",
			Finish:     "stop",
			Duration:   1500 * time.Millisecond,
		})
	}

	recs, err := s.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	// Newest first.
	if recs[0].Model != "m2" {
		t.Fatalf("order = %v", recs)
	}
	if recs[0].Duration != 1500*time.Millisecond || recs[0].Finish != "stop" {
		t.Fatalf("record = %+v", recs[0])
	}

	recs, err = s.Recent(1)
	if err != nil || len(recs) != 1 {
		t.Fatalf("limited recent = %v err=%v", recs, err)
	}
}

func TestNextIDShape(t *testing.T) {
	a, b := NextID(), NextID()
	if !strings.HasPrefix(a, "chatcmpl-") {
		t.Fatalf("id = %q", a)
	}
	if a == b {
		t.Fatal("ids collide")
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	s.Save(Record{ID: "x"})
	if recs, err := s.Recent(5); err != nil || recs != nil {
		t.Fatalf("nil store recent = %v err=%v", recs, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
