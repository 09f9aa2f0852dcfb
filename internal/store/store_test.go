package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndFindOne(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "things", "42", testDoc{Name: "chess", Count: 3}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	var got testDoc
	if err := s.FindOne(ctx, "things", "42", &got); err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if got.Name != "chess" || got.Count != 3 {
		t.Errorf("FindOne = %+v, want {chess 3}", got)
	}
}

func TestUpsertReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "things", "1", testDoc{Name: "a"}); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	if err := s.Upsert(ctx, "things", "1", testDoc{Name: "b", Count: 9}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	var got testDoc
	if err := s.FindOne(ctx, "things", "1", &got); err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if got.Name != "b" || got.Count != 9 {
		t.Errorf("FindOne = %+v, want {b 9}", got)
	}
}

func TestFindOneMissing(t *testing.T) {
	s := openTestStore(t)
	var got testDoc
	if err := s.FindOne(context.Background(), "things", "nope", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindOne on missing doc = %v, want ErrNotFound", err)
	}
}

func TestFindAllAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		if err := s.Upsert(ctx, "things", id, testDoc{Name: id}); err != nil {
			t.Fatalf("Upsert %s failed: %v", id, err)
		}
	}
	if err := s.Upsert(ctx, "other", "x", testDoc{}); err != nil {
		t.Fatalf("Upsert other failed: %v", err)
	}

	all, err := s.FindAll(ctx, "things")
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("FindAll returned %d docs, want 3", len(all))
	}

	if err := s.DeleteOne(ctx, "things", "2"); err != nil {
		t.Fatalf("DeleteOne failed: %v", err)
	}
	// Deleting again is a no-op.
	if err := s.DeleteOne(ctx, "things", "2"); err != nil {
		t.Fatalf("repeat DeleteOne failed: %v", err)
	}

	all, err = s.FindAll(ctx, "things")
	if err != nil {
		t.Fatalf("FindAll after delete failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("FindAll after delete returned %d docs, want 2", len(all))
	}
}
