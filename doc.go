// Package bucketcache implements a concurrent, filesystem-backed
// key/value cache shared by many independent OS processes with no
// coordinating daemon. Keys map deterministically to directories;
// invalidation and rebuild coordination runs through a three-level
// advisory lock hierarchy (Delete > Write > Rebuild) always acquired in
// that order.
//
// A Cache is built with New and a set of Options:
//
//	c, err := bucketcache.New(
//		bucketcache.WithRoot("/var/cache/app"),
//		bucketcache.WithDefaultTTL(10*time.Minute),
//	)
//
// Get, Set, and Delete never return an error; absorbed I/O failures and
// delete-path lock timeouts are reported through the configured Logger,
// while a Set that aborts on a held delete lock, a write-lock timeout or a
// changed invalidation token, an undecodable payload, and a key that
// sanitizes to empty are dropped without a log entry. Close runs garbage
// collection once, synchronously, and is safe to call more than once.
package bucketcache
