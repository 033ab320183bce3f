package bucketlock

import "os"

// ControlHandle is an acquired single-file exclusive lock, used by the GC
// control file which sits at the cache root rather than under a bucket.
type ControlHandle struct {
	file *os.File
}

// TryAcquireControlLock attempts a single non-blocking exclusive lock on
// path, creating it if absent. It never retries: callers treat a failed
// attempt as "another GC pass is in progress" and skip this cycle.
func TryAcquireControlLock(path string) (*ControlHandle, bool) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, false
	}
	ok, err := tryLockExclusive(f)
	if err != nil || !ok {
		f.Close()
		return nil, false
	}
	return &ControlHandle{file: f}, true
}

// ReleaseControlLock gives up h. Safe to call on nil.
func ReleaseControlLock(h *ControlHandle) {
	if h == nil {
		return
	}
	_ = unlockFile(h.file)
	h.file.Close()
}
