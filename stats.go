package bucketcache

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Stats is a best-effort, non-authoritative snapshot of cache state for
// operational visibility. It takes no locks beyond the same non-blocking
// listing Get already performs, so it never affects correctness and can
// race harmlessly with concurrent writers.
type Stats struct {
	Buckets    int
	FreshFiles int
	StaleFiles int
	LastGCRun  time.Time // zero if GC has never run
}

// Stats walks the cache root and reports approximate counts. An unreadable
// root is logged and yields an empty snapshot; an unreadable directory
// mid-walk is skipped without a log entry. Neither is a fatal condition.
func (c *Cache) Stats() Stats {
	var st Stats

	entries, err := os.ReadDir(c.cfg.Root)
	if err != nil {
		c.cfg.Logger("warn", "stats: read root", "err", err.Error())
		return st
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st.Buckets++
		fresh, stale := c.countBucket(filepath.Join(c.cfg.Root, e.Name()))
		st.FreshFiles += fresh
		st.StaleFiles += stale
	}

	if data, err := os.ReadFile(filepath.Join(c.cfg.Root, gcControlName)); err == nil {
		if epoch, perr := strconv.ParseInt(string(data), 10, 64); perr == nil {
			st.LastGCRun = time.Unix(epoch, 0)
		}
	}
	return st
}

func (c *Cache) countBucket(dir string) (fresh, stale int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0
	}
	if l2, err := c.store.ListL2(dir); err == nil {
		fresh = len(l2)
	}
	if l1, err := c.store.ListL1(dir); err == nil {
		stale = len(l1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		f, s := c.countBucket(filepath.Join(dir, e.Name()))
		fresh += f
		stale += s
	}
	return fresh, stale
}
