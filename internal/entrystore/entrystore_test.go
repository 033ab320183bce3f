package entrystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type testCodec struct{}

func (testCodec) Encode(v any) ([]byte, error)   { return json.Marshal(v) }
func (testCodec) Decode(d []byte, out any) error { return json.Unmarshal(d, out) }

func TestPublishAndListL2(t *testing.T) {
	dir := t.TempDir()
	s := New(testCodec{})

	if err := s.Publish(dir, 1000, "hello"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	l2, err := s.ListL2(dir)
	if err != nil {
		t.Fatalf("ListL2: %v", err)
	}
	if len(l2) != 1 || l2[0] != "1000" {
		t.Fatalf("ListL2 = %v; want [1000]", l2)
	}

	l1, err := s.ListL1(dir)
	if err != nil {
		t.Fatalf("ListL1: %v", err)
	}
	if len(l1) != 1 || l1[0] != "l1-1000" {
		t.Fatalf("ListL1 = %v; want [l1-1000]", l1)
	}

	var got string
	if !s.ReadEntry(dir, "1000", &got) {
		t.Fatal("ReadEntry returned false for a just-published L2 entry")
	}
	if got != "hello" {
		t.Errorf("ReadEntry = %q; want hello", got)
	}
}

func TestListL2NewestFirst(t *testing.T) {
	dir := t.TempDir()
	s := New(testCodec{})

	for _, epoch := range []int64{100, 20000, 300} {
		if err := s.Publish(dir, epoch, "v"); err != nil {
			t.Fatalf("Publish(%d): %v", epoch, err)
		}
	}
	l2, err := s.ListL2(dir)
	if err != nil {
		t.Fatalf("ListL2: %v", err)
	}
	want := []string{"20000", "300", "100"}
	if len(l2) != len(want) {
		t.Fatalf("ListL2 = %v; want %v", l2, want)
	}
	for i := range want {
		if l2[i] != want[i] {
			t.Errorf("ListL2[%d] = %q; want %q", i, l2[i], want[i])
		}
	}
}

func TestPromoteL2ToL1(t *testing.T) {
	dir := t.TempDir()
	s := New(testCodec{})

	if err := os.WriteFile(filepath.Join(dir, "500"), []byte(`"v"`), 0o640); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := s.PromoteL2ToL1(dir, "500"); err != nil {
		t.Fatalf("PromoteL2ToL1: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "500")); !os.IsNotExist(err) {
		t.Error("expected original L2 file to be gone after promotion")
	}
	if _, err := os.Stat(filepath.Join(dir, "l1-500")); err != nil {
		t.Errorf("expected l1-500 to exist: %v", err)
	}
}

func TestPruneOlderKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	s := New(testCodec{})

	names := []string{"300", "200", "100"}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("v"), 0o640); err != nil {
			t.Fatalf("seed %s: %v", n, err)
		}
	}

	s.PruneOlder(dir, names, 1)

	if _, err := os.Stat(filepath.Join(dir, "300")); err != nil {
		t.Error("expected newest entry to survive pruning")
	}
	for _, n := range []string{"200", "100"} {
		if _, err := os.Stat(filepath.Join(dir, n)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be pruned", n)
		}
	}
}

func TestReadEntryMissingIsFalseNotError(t *testing.T) {
	dir := t.TempDir()
	s := New(testCodec{})
	var out string
	if s.ReadEntry(dir, "nope", &out) {
		t.Error("expected ReadEntry to report false for a missing file")
	}
}

func TestReadEntryCorruptIsFalseAndFileSurvives(t *testing.T) {
	dir := t.TempDir()
	s := New(testCodec{})
	path := filepath.Join(dir, "999")
	if err := os.WriteFile(path, []byte("not json{{{"), 0o640); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var out string
	if s.ReadEntry(dir, "999", &out) {
		t.Error("expected ReadEntry to report false for corrupt data")
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("decode errors must not remove the file (GC handles it later)")
	}
}
