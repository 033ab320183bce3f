package bucketcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Zombie promotion: an expired L2 with no L1 becomes an L1 with the
// same contents after one GC cycle.
func TestZombiePromotion(t *testing.T) {
	c := newTestCache(t, WithTestMode(TestModeForceGC))
	expired := time.Now().Unix() - 3600
	writeL2(t, c.cfg.Root, "gc_zombie_test", expired, "I AM A ZOMBIE")

	if err := c.Close(); err != nil {
		t.Fatalf("Close (runs GC): %v", err)
	}

	dir := dataDir(c.cfg.Root, "gc_zombie_test")
	l2, _ := c.store.ListL2(dir)
	if len(l2) != 0 {
		t.Errorf("expected zero L2 files after GC, found %v", l2)
	}
	l1, _ := c.store.ListL1(dir)
	if len(l1) != 1 {
		t.Fatalf("expected exactly one L1 file after GC, found %v", l1)
	}
	var got string
	if !c.store.ReadEntry(dir, l1[0], &got) {
		t.Fatal("expected promoted L1 entry to be readable")
	}
	if got != "I AM A ZOMBIE" {
		t.Errorf("got %q, want I AM A ZOMBIE", got)
	}
}

func TestGCKeepsFreshEntryAndPrunesSiblings(t *testing.T) {
	c := newTestCache(t, WithTestMode(TestModeForceGC))
	dir := dataDir(c.cfg.Root, "gc_fresh_test")
	now := time.Now().Unix()
	writeL2(t, c.cfg.Root, "gc_fresh_test", now-10, "OLD_SIBLING")
	writeL2(t, c.cfg.Root, "gc_fresh_test", now+3600, "CURRENT")

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l2, _ := c.store.ListL2(dir)
	if len(l2) != 1 {
		t.Fatalf("expected exactly one surviving L2 entry, found %v", l2)
	}
	var got string
	c.store.ReadEntry(dir, l2[0], &got)
	if got != "CURRENT" {
		t.Errorf("got %q, want CURRENT", got)
	}
}

func TestGCSkippedOutsideHourWindow(t *testing.T) {
	now := time.Now()
	// Pick a window that excludes the current hour, without force_gc.
	start := (now.Hour() + 2) % 24
	end := (now.Hour() + 3) % 24
	c := newTestCache(t, WithGCWindow(start, end))

	expired := now.Unix() - 3600
	writeL2(t, c.cfg.Root, "gc_window_test", expired, "ZOMBIE")

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dir := dataDir(c.cfg.Root, "gc_window_test")
	l2, _ := c.store.ListL2(dir)
	if len(l2) != 1 {
		t.Errorf("expected GC to be skipped outside its hour window, L2 = %v", l2)
	}
}

func TestGCRespectsIntervalOnSecondRun(t *testing.T) {
	now := time.Now()
	c := newTestCache(t, WithGCWindow(0, 23), WithGCInterval(time.Hour))
	expired := now.Unix() - 3600
	writeL2(t, c.cfg.Root, "gc_interval_test", expired, "ZOMBIE")

	if err := runGC(c.cfg, c.locks, c.store); err != nil {
		t.Fatalf("first runGC: %v", err)
	}

	dir := dataDir(c.cfg.Root, "gc_interval_test")
	if l1, _ := c.store.ListL1(dir); len(l1) != 1 {
		t.Fatalf("expected promotion after first run, L1 = %v", l1)
	}

	// The first run stamped gc-control with its start time, so a second
	// run inside GCInterval is a no-op and the new zombie survives as L2.
	writeL2(t, c.cfg.Root, "gc_interval_test", time.Now().Unix()-10, "ZOMBIE2")
	if err := runGC(c.cfg, c.locks, c.store); err != nil {
		t.Fatalf("second runGC: %v", err)
	}
	if l2, _ := c.store.ListL2(dir); len(l2) != 1 {
		t.Errorf("expected second run to be gated by GCInterval, L2 = %v", l2)
	}
}

func TestGCSingleFlightAcrossConcurrentCallers(t *testing.T) {
	c := newTestCache(t, WithTestMode(TestModeForceGC))
	expired := time.Now().Unix() - 3600
	writeL2(t, c.cfg.Root, "gc_flight_test", expired, "ZOMBIE")

	errs := make(chan error, 2)
	go func() { errs <- runGC(c.cfg, c.locks, c.store) }()
	go func() { errs <- runGC(c.cfg, c.locks, c.store) }()

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("runGC: %v", err)
		}
	}

	dir := dataDir(c.cfg.Root, "gc_flight_test")
	l1, _ := c.store.ListL1(dir)
	if len(l1) != 1 {
		t.Errorf("expected exactly one L1 after concurrent GC runs, found %v", l1)
	}
}

func TestGCDoesNotRemoveBucketDirectory(t *testing.T) {
	c := newTestCache(t, WithTestMode(TestModeForceGC))
	expired := time.Now().Unix() - 3600
	writeL2(t, c.cfg.Root, "gc_struct_test", expired, "ZOMBIE")
	bucketDir := filepath.Join(c.cfg.Root, bucketOf("gc_struct_test"))

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(bucketDir); err != nil {
		t.Errorf("expected bucket directory to survive GC: %v", err)
	}
}

func TestInHourWindow(t *testing.T) {
	cases := []struct {
		hour, start, end int
		want             bool
	}{
		{3, 0, 6, true},
		{7, 0, 6, false},
		{23, 22, 4, true},
		{5, 22, 4, false},
		{10, 22, 4, false},
	}
	for _, tc := range cases {
		if got := inHourWindow(tc.hour, tc.start, tc.end); got != tc.want {
			t.Errorf("inHourWindow(%d, %d, %d) = %v, want %v", tc.hour, tc.start, tc.end, got, tc.want)
		}
	}
}
