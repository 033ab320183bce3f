package bucketcache

import "time"

// neverExpireSentinel is the "just above default" TTL value, in seconds,
// that means "never expire." Compared bit-exact for compatibility with
// caches written by older deployments; Config.NeverExpire() is the
// friendlier accessor.
const neverExpireSentinel = 3601

// Test mode values recognized by WithTestMode.
const (
	// TestModeLagSetInit injects a 3s sleep inside Set, right after the
	// invalidation token is captured, so a concurrent Delete can land in
	// the window between token capture and write-lock acquisition.
	TestModeLagSetInit = "lag_set_init"
	// TestModeForceGC bypasses the GC interval and hour-window gates.
	TestModeForceGC = "force_gc"
)

// Logger is the pluggable log sink the cache funnels absorbed errors
// through. The core never raises; this is the only place it's heard from.
// A nil Logger is valid and discards everything.
type Logger func(level, msg string, kv ...any)

func noopLogger(string, string, ...any) {}

// Config holds the engine's tunables. Build one with New's functional
// options; the zero value is never used directly.
type Config struct {
	Root string

	// DefaultTTL is added to now() to form an L2 filename when Set's
	// expireSeconds argument is 0. neverExpireSentinel disables expiry
	// checking in Get and skips GC entirely.
	DefaultTTL time.Duration

	GCInterval   time.Duration
	GCStartHour  int
	GCEndHour    int

	RebuildLockTimeout time.Duration
	WriteLockTimeout   time.Duration
	DeleteLockTimeout  time.Duration
	GetGraceDelay      time.Duration

	MaxStaleFiles     int
	DirPruneThreshold int

	TestMode string

	Codec  Codec
	Logger Logger
}

// NeverExpire reports whether DefaultTTL is the sentinel value meaning
// entries never expire and GC is skipped entirely.
func (c *Config) NeverExpire() bool {
	return c.DefaultTTL == neverExpireSentinel*time.Second
}

func defaultConfig() *Config {
	return &Config{
		Root:               "",
		DefaultTTL:         3600 * time.Second,
		GCInterval:         43200 * time.Second,
		GCStartHour:        0,
		GCEndHour:          6,
		RebuildLockTimeout: 10 * time.Millisecond,
		WriteLockTimeout:   100 * time.Millisecond,
		DeleteLockTimeout:  60 * time.Second,
		GetGraceDelay:      20 * time.Millisecond,
		MaxStaleFiles:      1,
		DirPruneThreshold:  15000,
		Codec:              jsonCodec{},
		Logger:             noopLogger,
	}
}

// Option configures a Cache at construction time. Functional-options
// pattern: each Option mutates the in-progress Config.
type Option func(*Config)

// WithRoot sets the cache root directory. Required; New fails without it.
func WithRoot(root string) Option {
	return func(c *Config) { c.Root = root }
}

// WithDefaultTTL sets the default time-to-live applied when Set's
// expireSeconds is 0. Passing exactly 3601 seconds enables "never expire"
// mode: Get skips the expiry filter and Close skips GC entirely.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Config) { c.DefaultTTL = d }
}

// WithGCInterval sets the minimum time between GC runs.
func WithGCInterval(d time.Duration) Option {
	return func(c *Config) { c.GCInterval = d }
}

// WithGCWindow sets the inclusive hour-of-day window ([0,23]) during which
// GC is permitted to run.
func WithGCWindow(startHour, endHour int) Option {
	return func(c *Config) {
		c.GCStartHour = startHour
		c.GCEndHour = endHour
	}
}

// WithRebuildLockTimeout sets the rebuild-lock acquire timeout.
func WithRebuildLockTimeout(d time.Duration) Option {
	return func(c *Config) { c.RebuildLockTimeout = d }
}

// WithWriteLockTimeout sets the write-lock acquire timeout.
func WithWriteLockTimeout(d time.Duration) Option {
	return func(c *Config) { c.WriteLockTimeout = d }
}

// WithDeleteLockTimeout sets the delete-lock acquire timeout.
func WithDeleteLockTimeout(d time.Duration) Option {
	return func(c *Config) { c.DeleteLockTimeout = d }
}

// WithGetGraceDelay sets how long a Get that wins the rebuild lock holds it
// before releasing, rate-limiting concurrent rebuilds for a bucket.
func WithGetGraceDelay(d time.Duration) Option {
	return func(c *Config) { c.GetGraceDelay = d }
}

// WithMaxStaleFiles sets the L2 file count at or above which Set prunes
// siblings (keeping the newest) before publishing.
func WithMaxStaleFiles(n int) Option {
	return func(c *Config) { c.MaxStaleFiles = n }
}

// WithDirPruneThreshold sets the per-bucket entry count above which GC may
// remove emptied non-bucket subdirectories.
func WithDirPruneThreshold(n int) Option {
	return func(c *Config) { c.DirPruneThreshold = n }
}

// WithTestMode selects a recognized test-mode behavior (TestModeLagSetInit
// or TestModeForceGC), or "" for normal operation.
func WithTestMode(mode string) Option {
	return func(c *Config) { c.TestMode = mode }
}

// WithCodec overrides the payload codec (default: plain JSON).
func WithCodec(codec Codec) Option {
	return func(c *Config) { c.Codec = codec }
}

// WithLogger installs a sink for absorbed errors and warnings. The core
// never raises; this is the only way to observe what it swallowed.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}
