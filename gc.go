package bucketcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bucketcache/bucketcache/internal/bucketlock"
	"github.com/bucketcache/bucketcache/internal/entrystore"
)

// gcControlName is the fixed filename of the whole-cache single-flight
// anchor, sitting at the cache root rather than under any bucket.
const gcControlName = "gc-control"

// inHourWindow reports whether hour falls in the inclusive [start, end]
// window, allowing start > end to mean an overnight wrap (e.g. 22..4).
func inHourWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

// runGC performs one time-gated, single-flight, whole-cache sweep: zombie
// promotion of expired fresh entries, stale-entry pruning, and optional
// empty-directory cleanup for oversized buckets. It never raises; every
// failure is logged and the sweep continues with the next bucket.
func runGC(cfg *Config, locks *bucketlock.BucketLock, store *entrystore.Store) error {
	if cfg.NeverExpire() {
		return nil
	}

	force := cfg.TestMode == TestModeForceGC
	now := time.Now()

	if !force && !inHourWindow(now.Hour(), cfg.GCStartHour, cfg.GCEndHour) {
		return nil
	}

	controlPath := filepath.Join(cfg.Root, gcControlName)
	ch, ok := bucketlock.TryAcquireControlLock(controlPath)
	if !ok {
		return nil // another process is already running GC.
	}
	defer bucketlock.ReleaseControlLock(ch)

	if !force {
		data, err := os.ReadFile(controlPath)
		if err == nil {
			if stored, perr := strconv.ParseInt(string(data), 10, 64); perr == nil {
				if now.Unix()-stored < int64(cfg.GCInterval/time.Second) {
					return nil
				}
			}
		}
	}

	// Written immediately, before any sweeping, so a subsequent attempt in
	// the next interval sees a fresh timestamp even if this one fails.
	if err := os.WriteFile(controlPath, []byte(strconv.FormatInt(now.Unix(), 10)), 0o640); err != nil {
		cfg.Logger("error", "gc: write control file", "err", err.Error())
		return fmt.Errorf("bucketcache: write gc-control: %w", err)
	}

	entries, err := os.ReadDir(cfg.Root)
	if err != nil {
		cfg.Logger("error", "gc: read root", "err", err.Error())
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sweepBucket(cfg, locks, store, e.Name(), now.Unix())
	}
	return nil
}

func sweepBucket(cfg *Config, locks *bucketlock.BucketLock, store *entrystore.Store, bucket string, now int64) {
	hd, okd := locks.AcquireDelete(bucket, cfg.DeleteLockTimeout)
	if !okd {
		cfg.Logger("warn", "gc: delete lock timeout", "bucket", bucket)
		return
	}
	if err := locks.MarkInvalidation(bucket); err != nil {
		cfg.Logger("warn", "gc: mark invalidation failed", "bucket", bucket, "err", err.Error())
	}

	hw, okw := locks.AcquireWrite(bucket, cfg.DeleteLockTimeout)
	if !okw {
		locks.Release(hd)
		cfg.Logger("warn", "gc: write lock timeout", "bucket", bucket)
		return
	}

	hr, okr := locks.AcquireRebuild(bucket, cfg.RebuildLockTimeout)

	bucketRoot := filepath.Join(cfg.Root, bucket)
	gcWalkDir(store, cfg, bucketRoot, now)

	if count := countEntries(bucketRoot); count > cfg.DirPruneThreshold {
		pruneEmptyDirs(bucketRoot, bucketRoot)
	}

	if okr {
		locks.Release(hr)
	}
	locks.Release(hw)
	locks.Release(hd)
}

// gcWalkDir recurses depth-first, zombie-promoting each key directory: an
// expired newest L2 is renamed to l1-<epoch> rather than deleted; a valid
// newest L2 keeps the directory Fresh with its siblings pruned; stale
// directories retain only their newest L1.
func gcWalkDir(store *entrystore.Store, cfg *Config, dir string, now int64) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			gcWalkDir(store, cfg, filepath.Join(dir, e.Name()), now)
		}
	}

	l2, err := store.ListL2(dir)
	if err != nil {
		cfg.Logger("warn", "gc: list L2 failed", "dir", dir, "err", err.Error())
	}
	l1, err := store.ListL1(dir)
	if err != nil {
		cfg.Logger("warn", "gc: list L1 failed", "dir", dir, "err", err.Error())
	}

	if len(l2) == 0 {
		if len(l1) > 0 {
			store.PruneOlder(dir, l1, 1)
		}
		return
	}

	newest := l2[0]
	if len(l2) > 1 {
		store.PruneOlder(dir, l2, 1)
	}

	epoch, perr := entrystore.L2Epoch(newest)
	if perr != nil || epoch >= now {
		// Still fresh: L2 siblings already pruned above; keep at most the
		// newest stale backup alongside.
		store.PruneOlder(dir, l1, 1)
		return
	}

	// Pre-existing L1s go first: Publish hardlinks l1-<epoch> to its L2, and
	// a rename onto a hardlink of the same file is a no-op.
	for _, old := range l1 {
		store.Unlink(dir, old)
	}
	if err := store.PromoteL2ToL1(dir, newest); err != nil {
		cfg.Logger("warn", "gc: promote failed", "dir", dir, "err", err.Error())
	}
}

// countEntries walks dir recursively and counts non-directory files, used
// to decide whether a bucket has grown large enough to warrant removing
// emptied intermediate directories.
func countEntries(dir string) int {
	n := 0
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	for _, e := range entries {
		if e.IsDir() {
			n += countEntries(filepath.Join(dir, e.Name()))
			continue
		}
		n++
	}
	return n
}

// pruneEmptyDirs removes subdirectories left empty by zombie promotion,
// never removing bucketRoot itself.
func pruneEmptyDirs(dir, bucketRoot string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			pruneEmptyDirs(filepath.Join(dir, e.Name()), bucketRoot)
		}
	}
	if dir == bucketRoot {
		return
	}
	remaining, err := os.ReadDir(dir)
	if err == nil && len(remaining) == 0 {
		os.Remove(dir)
	}
}
