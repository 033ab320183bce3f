// Package bucketlock implements the three-level advisory lock hierarchy
// (Delete > Write > Rebuild) that coordinates readers and writers across
// independent OS processes sharing a cache directory tree, with no
// coordinating daemon.
//
// Per bucket, three named lock anchors (lock-delete, lock-write,
// lock-rebuild) are acquired by blocking-with-timeout retry. Holding
// lock-delete also carries the bucket's invalidation token, encoded as the
// file's modification time.
//
// flock(2) (and its Windows analogue, LockFileEx) excludes competing
// descriptors on the same file regardless of which process opened them, so
// the file locks alone are sufficient for correctness. BucketLock still
// stripes every acquisition through an in-process mutex keyed by
// bucket+kind before attempting the cross-process lock: a losing goroutine
// retries a cheap TryLock on the mutex (with the same backoff) instead of
// burning its whole timeout on open/flock/close retry syscalls against a
// sibling in the same process.
package bucketlock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Kind identifies one of the three named lock anchors for a bucket.
type Kind int

const (
	Delete Kind = iota
	Write
	Rebuild
)

func (k Kind) filename() string {
	switch k {
	case Delete:
		return "lock-delete"
	case Write:
		return "lock-write"
	case Rebuild:
		return "lock-rebuild"
	default:
		return "lock-unknown"
	}
}

// retryBackoff is the sleep between non-blocking acquisition attempts.
const retryBackoff = 5 * time.Millisecond

// BucketLock manages the lock triplet for every bucket under root.
type BucketLock struct {
	root    string
	stripes *xsync.MapOf[string, *sync.Mutex]
}

// New returns a BucketLock rooted at root. root must already exist.
func New(root string) *BucketLock {
	return &BucketLock{
		root:    root,
		stripes: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// Handle is an acquired lock, owned exclusively by the call that acquired
// it until Release.
type Handle struct {
	bucket string
	kind   Kind
	file   *os.File
	stripe *sync.Mutex
	once   sync.Once
}

func (b *BucketLock) path(bucket string, kind Kind) string {
	return filepath.Join(b.root, bucket, kind.filename())
}

func (b *BucketLock) ensureBucketDir(bucket string) error {
	return os.MkdirAll(filepath.Join(b.root, bucket), 0o750)
}

func (b *BucketLock) stripeFor(bucket string, kind Kind) *sync.Mutex {
	key := fmt.Sprintf("%s\x00%d", bucket, kind)
	mu, _ := b.stripes.LoadOrStore(key, &sync.Mutex{})
	return mu
}

// acquire retries a non-blocking in-process-then-cross-process acquisition
// until it succeeds or timeout elapses.
func (b *BucketLock) acquire(bucket string, kind Kind, timeout time.Duration) (*Handle, bool) {
	if err := b.ensureBucketDir(bucket); err != nil {
		return nil, false
	}
	stripe := b.stripeFor(bucket, kind)
	deadline := time.Now().Add(timeout)
	path := b.path(bucket, kind)

	for {
		if stripe.TryLock() {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
			if err == nil {
				ok, lerr := tryLockExclusive(f)
				if ok {
					return &Handle{bucket: bucket, kind: kind, file: f, stripe: stripe}, true
				}
				f.Close()
				_ = lerr
			}
			stripe.Unlock()
		}

		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(retryBackoff)
	}
}

// AcquireDelete blocks (with retry) up to timeout to take the delete lock.
func (b *BucketLock) AcquireDelete(bucket string, timeout time.Duration) (*Handle, bool) {
	return b.acquire(bucket, Delete, timeout)
}

// AcquireWrite blocks (with retry) up to timeout to take the write lock.
func (b *BucketLock) AcquireWrite(bucket string, timeout time.Duration) (*Handle, bool) {
	return b.acquire(bucket, Write, timeout)
}

// AcquireRebuild blocks (with retry) up to timeout to take the rebuild lock.
func (b *BucketLock) AcquireRebuild(bucket string, timeout time.Duration) (*Handle, bool) {
	return b.acquire(bucket, Rebuild, timeout)
}

// Release gives up h. Idempotent and safe to call on a nil Handle.
func (b *BucketLock) Release(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		_ = unlockFile(h.file)
		h.file.Close()
		h.stripe.Unlock()
	})
}

// CheckDelete probes whether bucket's delete lock is held and returns true
// if it is not (safe to write). It opens the file read-only and takes only a
// momentary shared lock, never mutating the file (no mtime change). A
// missing file, or one that disappears mid-probe, is reported as safe.
func (b *BucketLock) CheckDelete(bucket string) bool {
	path := b.path(bucket, Delete)
	f, err := os.Open(path)
	if err != nil {
		return true // no lock-delete file means nothing to exclude on.
	}
	defer f.Close()

	ok, err := tryLockShared(f)
	if err != nil {
		return true // race-tolerant: treat probe errors as safe.
	}
	if ok {
		_ = unlockFile(f)
	}
	return ok
}

// InvalidationToken returns the modification time (as UnixNano) of
// bucket's delete-lock file, or 0 if it does not exist. Never fails.
func (b *BucketLock) InvalidationToken(bucket string) int64 {
	fi, err := os.Stat(b.path(bucket, Delete))
	if err != nil {
		return 0
	}
	return fi.ModTime().UnixNano()
}

// MarkInvalidation bumps bucket's invalidation token by touching the
// delete-lock file's modification time, creating the file if absent.
func (b *BucketLock) MarkInvalidation(bucket string) error {
	if err := b.ensureBucketDir(bucket); err != nil {
		return err
	}
	path := b.path(bucket, Delete)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return err
	}
	f.Close()
	now := time.Now()
	return os.Chtimes(path, now, now)
}
