// Package entrystore implements the low-level file operations within one
// key directory: listing fresh (L2) and stale (L1) entries, atomic
// publish via temp-file-then-rename, and L2→L1 promotion.
//
// L2 filenames are decimal expiry epochs ("1735689600"); L1 filenames are
// the same epoch prefixed "l1-". Sorting "newest first" is equivalent to
// numeric descending order on the epoch, computed here as (length, then
// lexicographic) descending, valid because two non-negative integers
// rendered without leading zeros compare the same way as strings once
// length-ordered.
package entrystore

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Codec encodes and decodes a stored payload. Structurally compatible with
// bucketcache.Codec; kept as a separate type here so this package has no
// dependency on its parent.
type Codec interface {
	Encode(value any) ([]byte, error)
	Decode(data []byte, out any) error
}

const l1Prefix = "l1-"

// Store performs file operations on one key directory at a time using the
// given codec to encode/decode payloads.
type Store struct {
	codec Codec
}

// New returns a Store using codec for payload encoding.
func New(codec Codec) *Store {
	return &Store{codec: codec}
}

func isAllDigits(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// sortEpochNamesDesc sorts names (each an unsigned decimal string, with an
// optional common prefix already stripped) newest (largest) first.
func sortEpochNamesDesc(names []string) {
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] > names[j]
	})
}

// ListL2 returns fresh-entry filenames in dir, newest first. A missing
// directory is reported as no entries, not an error.
func (s *Store) ListL2(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isAllDigits(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sortEpochNamesDesc(names)
	return names, nil
}

// ListL1 returns stale-entry filenames in dir, newest first.
func (s *Store) ListL1(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var epochs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), l1Prefix) && isAllDigits(e.Name()[len(l1Prefix):]) {
			epochs = append(epochs, e.Name()[len(l1Prefix):])
		}
	}
	sortEpochNamesDesc(epochs)
	names := make([]string, len(epochs))
	for i, e := range epochs {
		names[i] = l1Prefix + e
	}
	return names, nil
}

// L2Epoch parses the expiry epoch encoded in an L2 filename.
func L2Epoch(name string) (int64, error) {
	return strconv.ParseInt(name, 10, 64)
}

// ReadEntry reads and decodes dir/name into out. Any I/O or decode error is
// reported as a plain miss (ok=false): a corrupt file is not removed here,
// GC demotes or deletes it later.
func (s *Store) ReadEntry(dir, name string, out any) (ok bool) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return false
	}
	if err := s.codec.Decode(data, out); err != nil {
		return false
	}
	return true
}

func randSuffix() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable, but a
		// temp-file collision is merely a retry-able nuisance, not a
		// correctness issue, so fall back to the pid alone.
		return ""
	}
	return hex.EncodeToString(b[:])
}

// Publish atomically writes value as the new L2 entry for epoch and mirrors
// it to an L1 backup. On any failure the temp file is removed and the
// error is returned; dir must already exist.
func (s *Store) Publish(dir string, epoch int64, value any) error {
	data, err := s.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf("tmp_%d_%s", os.Getpid(), randSuffix()))
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}

	l2 := filepath.Join(dir, strconv.FormatInt(epoch, 10))
	if err := os.Rename(tmp, l2); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish rename: %w", err)
	}

	l1 := filepath.Join(dir, l1Prefix+strconv.FormatInt(epoch, 10))
	if err := os.Link(l2, l1); err != nil {
		// Cross-device or unsupported hardlink: fall back to a copy.
		if werr := os.WriteFile(l1, data, 0o640); werr != nil {
			return fmt.Errorf("mirror to l1: %w", werr)
		}
	}
	return nil
}

// PromoteL2ToL1 renames dir/l2name to its l1-<epoch> sibling. If the rename
// fails, the original is unlinked instead: invariants are preserved
// (at most one L2 survives) even though the data is lost.
func (s *Store) PromoteL2ToL1(dir, l2name string) error {
	epoch, err := L2Epoch(l2name)
	if err != nil {
		return fmt.Errorf("not an L2 filename: %w", err)
	}
	src := filepath.Join(dir, l2name)
	dst := filepath.Join(dir, l1Prefix+strconv.FormatInt(epoch, 10))

	if err := os.Rename(src, dst); err != nil {
		if rmErr := os.Remove(src); rmErr != nil && !os.IsNotExist(rmErr) {
			return errors.Join(fmt.Errorf("promote rename: %w", err), rmErr)
		}
		return fmt.Errorf("promote rename (original discarded): %w", err)
	}
	return nil
}

// PruneOlder deletes every file in dir named by names[keep:] (names must
// already be sorted newest-first, as ListL2/ListL1 return them).
func (s *Store) PruneOlder(dir string, names []string, keep int) {
	if keep < 0 {
		keep = 0
	}
	if keep >= len(names) {
		return
	}
	for _, n := range names[keep:] {
		os.Remove(filepath.Join(dir, n))
	}
}

// Unlink removes dir/name, ignoring a not-exist error.
func (s *Store) Unlink(dir, name string) error {
	if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
