//go:build windows

package bucketlock

import (
	"os"

	"golang.org/x/sys/windows"
)

// Windows has no flock(2) equivalent; LockFileEx over the whole file with
// the appropriate flag gives the same non-blocking exclusive/shared
// semantics the Unix build gets from flock. Locks here are mandatory, not
// advisory; the retry-until-timeout protocol works against both flavors.
const lockFileBytesHigh, lockFileBytesLow = 0, 0xFFFFFFFF

func tryLockExclusive(f *os.File) (bool, error) {
	return tryLock(f, windows.LOCKFILE_FAIL_IMMEDIATELY|windows.LOCKFILE_EXCLUSIVE_LOCK)
}

func tryLockShared(f *os.File) (bool, error) {
	return tryLock(f, windows.LOCKFILE_FAIL_IMMEDIATELY)
}

func tryLock(f *os.File, flags uint32) (bool, error) {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, lockFileBytesLow, lockFileBytesHigh, ol)
	if err == nil {
		return true, nil
	}
	if err == windows.ERROR_LOCK_VIOLATION || err == windows.ERROR_IO_PENDING {
		return false, nil
	}
	return false, err
}

func unlockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, lockFileBytesLow, lockFileBytesHigh, ol)
	if err != nil {
		return err
	}
	return nil
}
