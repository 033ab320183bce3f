package bucketcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bucketcache/bucketcache/internal/bucketlock"
	"github.com/bucketcache/bucketcache/internal/entrystore"
)

// Cache is a concurrent, filesystem-backed key/value cache shared by many
// independent OS processes with no coordinating daemon. Get never blocks on
// the happy path; Set and Delete coordinate through BucketLock's
// Delete > Write > Rebuild hierarchy, always acquired in that order.
type Cache struct {
	cfg    *Config
	locks  *bucketlock.BucketLock
	store  *entrystore.Store
	closed sync.Once
}

// New builds a Cache. WithRoot is required; New fails if root cannot be
// created.
func New(opts ...Option) (*Cache, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("bucketcache: WithRoot is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, fmt.Errorf("bucketcache: create root: %w", err)
	}
	return &Cache{
		cfg:   cfg,
		locks: bucketlock.New(cfg.Root),
		store: entrystore.New(cfg.Codec),
	}, nil
}

func (c *Cache) recoverInto(op, key string) {
	if r := recover(); r != nil {
		c.cfg.Logger("error", "recovered panic", "op", op, "key", key, "recover", fmt.Sprint(r))
	}
}

// Get looks up key and decodes its payload into out, a pointer. It returns
// false on any miss, corruption, or absorbed error; it never raises. A
// fresh (L2) entry never takes a lock; a miss attempts at most one short
// rebuild-lock acquisition before falling back to a stale (L1) entry.
func (c *Cache) Get(key string, out any) (found bool) {
	defer c.recoverInto("get", key)

	dir := dataDir(c.cfg.Root, key)
	if dir == "" {
		return false
	}
	bucket := bucketOf(key)
	skipExpiry := c.cfg.NeverExpire()
	now := time.Now().Unix()

	l2, err := c.store.ListL2(dir)
	if err != nil {
		c.cfg.Logger("warn", "list L2 failed", "key", key, "err", err.Error())
	}
	for _, name := range l2 {
		if !skipExpiry {
			epoch, perr := entrystore.L2Epoch(name)
			if perr == nil && epoch < now {
				continue
			}
		}
		if c.store.ReadEntry(dir, name, out) {
			return true
		}
	}

	h, ok := c.locks.AcquireRebuild(bucket, c.cfg.RebuildLockTimeout)
	if ok {
		time.Sleep(c.cfg.GetGraceDelay)
		c.locks.Release(h)
		return false
	}

	l1, err := c.store.ListL1(dir)
	if err != nil {
		c.cfg.Logger("warn", "list L1 failed", "key", key, "err", err.Error())
		return false
	}
	for _, name := range l1 {
		if c.store.ReadEntry(dir, name, out) {
			return true
		}
	}
	return false
}

// Set publishes value under key with the given TTL in seconds (0 uses the
// configured default). It implements the double-check token protocol: the
// invalidation token is captured before any lock is taken, and re-checked
// once the write lock is held, so a delete that lands in between causes Set
// to silently abort rather than publish stale data. Set never raises.
func (c *Cache) Set(key string, value any, expireSeconds int) {
	defer c.recoverInto("set", key)

	dir := dataDir(c.cfg.Root, key)
	if dir == "" {
		return
	}
	bucket := bucketOf(key)

	tokenBefore := c.locks.InvalidationToken(bucket)

	if c.cfg.TestMode == TestModeLagSetInit {
		time.Sleep(3 * time.Second)
	}

	if !c.locks.CheckDelete(bucket) {
		return
	}

	h, ok := c.locks.AcquireWrite(bucket, c.cfg.WriteLockTimeout)
	if !ok {
		return
	}
	defer c.locks.Release(h)

	if !c.locks.CheckDelete(bucket) {
		return
	}
	if c.locks.InvalidationToken(bucket) != tokenBefore {
		return
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		c.cfg.Logger("error", "mkdir key dir", "key", key, "err", err.Error())
		return
	}

	l2, err := c.store.ListL2(dir)
	if err != nil {
		c.cfg.Logger("warn", "list L2 failed", "key", key, "err", err.Error())
	}
	if len(l2) >= c.cfg.MaxStaleFiles {
		c.store.PruneOlder(dir, l2, 1)
	}

	ttl := expireSeconds
	if ttl == 0 {
		ttl = int(c.cfg.DefaultTTL / time.Second)
	}
	epoch := time.Now().Unix() + int64(ttl)

	if err := c.store.Publish(dir, epoch, value); err != nil {
		c.cfg.Logger("error", "publish failed", "key", key, "err", err.Error())
	}
}

// Delete invalidates key. Two magic forms of key are recognized: "*"
// triggers a global, lock-free wipe of the entire cache root; a
// "__PURGE__" prefix dispatches to a destructive Purge of the remaining
// key. Otherwise Delete performs targeted invalidation with L2→L1
// promotion, so a concurrent Get can still serve the previous value.
func (c *Cache) Delete(key string) {
	defer c.recoverInto("delete", key)

	switch dt := parseDeleteTarget(key); dt.kind {
	case deleteTargetAll:
		c.wipeAll()
	case deleteTargetPurge:
		c.purgeKey(dt.key)
	default:
		c.deleteKey(dt.key)
	}
}

// Purge permanently removes a key's payloads (both L2 and L1), unlike
// Delete which preserves a stale fallback via promotion. Equivalent to
// calling Delete("__PURGE__" + key).
func (c *Cache) Purge(key string) {
	defer c.recoverInto("purge", key)
	c.purgeKey(key)
}

func (c *Cache) wipeAll() {
	entries, err := os.ReadDir(c.cfg.Root)
	if err != nil {
		c.cfg.Logger("warn", "wipeAll: read root", "err", err.Error())
		return
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.cfg.Root, e.Name())); err != nil {
			c.cfg.Logger("warn", "wipeAll: remove", "name", e.Name(), "err", err.Error())
		}
	}
}

func (c *Cache) deleteKey(key string) {
	dir := dataDir(c.cfg.Root, key)
	if dir == "" {
		return
	}
	bucket := bucketOf(key)

	hd, okd := c.locks.AcquireDelete(bucket, c.cfg.DeleteLockTimeout)
	if !okd {
		c.cfg.Logger("warn", "delete lock timeout, proceeding best-effort", "key", key)
	}

	if err := c.locks.MarkInvalidation(bucket); err != nil {
		c.cfg.Logger("warn", "mark invalidation failed", "key", key, "err", err.Error())
	}

	hw, okw := c.locks.AcquireWrite(bucket, c.cfg.DeleteLockTimeout)
	if !okw {
		c.locks.Release(hd)
		c.cfg.Logger("warn", "delete aborted: write lock timeout", "key", key)
		return
	}

	hr, okr := c.locks.AcquireRebuild(bucket, c.cfg.RebuildLockTimeout)

	c.promoteDir(dir)

	if okr {
		c.locks.Release(hr)
	}
	c.locks.Release(hw)
	c.locks.Release(hd)
}

func (c *Cache) purgeKey(key string) {
	dir := dataDir(c.cfg.Root, key)
	if dir == "" {
		return
	}
	bucket := bucketOf(key)
	bucketRoot := filepath.Join(c.cfg.Root, bucket)

	hd, okd := c.locks.AcquireDelete(bucket, c.cfg.DeleteLockTimeout)
	if !okd {
		c.cfg.Logger("warn", "purge: delete lock timeout, proceeding best-effort", "key", key)
	}

	if err := c.locks.MarkInvalidation(bucket); err != nil {
		c.cfg.Logger("warn", "mark invalidation failed", "key", key, "err", err.Error())
	}

	hw, okw := c.locks.AcquireWrite(bucket, c.cfg.DeleteLockTimeout)
	if !okw {
		c.locks.Release(hd)
		c.cfg.Logger("warn", "purge aborted: write lock timeout", "key", key)
		return
	}

	hr, okr := c.locks.AcquireRebuild(bucket, c.cfg.RebuildLockTimeout)

	c.purgeDir(dir, bucketRoot)

	if okr {
		c.locks.Release(hr)
	}
	c.locks.Release(hw)
	c.locks.Release(hd)
}

// promoteDir walks dir depth-first, swapping each subdirectory's newest L2
// into l1-<epoch> and discarding everything else. Per-directory, so a
// bucket-wide delete demotes every key directory beneath it, not just the
// leaf the caller named.
func (c *Cache) promoteDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			c.promoteDir(filepath.Join(dir, e.Name()))
		}
	}

	l2, err := c.store.ListL2(dir)
	if err != nil {
		c.cfg.Logger("warn", "promote: list L2 failed", "dir", dir, "err", err.Error())
	}
	l1, err := c.store.ListL1(dir)
	if err != nil {
		c.cfg.Logger("warn", "promote: list L1 failed", "dir", dir, "err", err.Error())
	}

	switch {
	case len(l2) > 0:
		if len(l2) > 1 {
			c.store.PruneOlder(dir, l2, 1)
		}
		// Pre-existing L1s go first: Publish hardlinks l1-<epoch> to its L2,
		// and a rename onto a hardlink of the same file is a no-op.
		for _, old := range l1 {
			c.store.Unlink(dir, old)
		}
		if err := c.store.PromoteL2ToL1(dir, l2[0]); err != nil {
			c.cfg.Logger("warn", "promote L2 to L1 failed", "dir", dir, "err", err.Error())
		}
	case len(l1) > 0:
		c.store.PruneOlder(dir, l1, 1)
	}
}

// purgeDir walks dir depth-first, unlinking every L2 and L1 payload and
// removing emptied non-bucket-root subdirectories.
func (c *Cache) purgeDir(dir, bucketRoot string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			c.purgeDir(filepath.Join(dir, e.Name()), bucketRoot)
		}
	}

	l2, _ := c.store.ListL2(dir)
	for _, name := range l2 {
		c.store.Unlink(dir, name)
	}
	l1, _ := c.store.ListL1(dir)
	for _, name := range l1 {
		c.store.Unlink(dir, name)
	}

	if dir == bucketRoot {
		return
	}
	remaining, err := os.ReadDir(dir)
	if err == nil && len(remaining) == 0 {
		os.Remove(dir)
	}
}

// Close runs the garbage collector once, synchronously, and is idempotent.
// An explicit shutdown hook rather than a finalizer: GC must not depend on
// non-deterministic finalization.
func (c *Cache) Close() error {
	var err error
	c.closed.Do(func() {
		err = runGC(c.cfg, c.locks, c.store)
	})
	return err
}
