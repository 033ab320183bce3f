package bucketcache

import "strings"

// purgePrefix is the magic prefix that routes Delete to a destructive
// purge of one subtree instead of a promoting delete.
const purgePrefix = "__PURGE__"

// wildcardAll is the magic key that routes Delete to a global wipe.
const wildcardAll = "*"

type deleteKind int

const (
	deleteTargetKey deleteKind = iota
	deleteTargetAll
	deleteTargetPurge
)

// deleteTarget is the parsed form of Delete's key argument, so the magic
// string forms are classified once at the boundary instead of sniffed
// throughout Delete's body.
type deleteTarget struct {
	kind deleteKind
	key  string
}

// parseDeleteTarget classifies a Delete call's key argument.
func parseDeleteTarget(key string) deleteTarget {
	if key == wildcardAll {
		return deleteTarget{kind: deleteTargetAll}
	}
	if strings.HasPrefix(key, purgePrefix) {
		return deleteTarget{kind: deleteTargetPurge, key: strings.TrimPrefix(key, purgePrefix)}
	}
	return deleteTarget{kind: deleteTargetKey, key: key}
}
