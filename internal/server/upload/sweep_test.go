package upload

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"stash/internal/server/auth"
	"stash/internal/server/storage"
)

// sweepFixture wires a registry, a real filesystem store and a sweeper with
// a controllable clock anchored at wall time so file modification times line
// up with the fake clock.
type sweepFixture struct {
	reg     *Registry
	store   *storage.FileSystemStore
	sweeper *Sweeper
	base    time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	base := time.Now()
	reg := NewRegistry()
	reg.now = func() time.Time { return base }

	store := storage.NewFileSystemStore(t.TempDir())
	if err := store.EnsureDir(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sweeper := NewSweeper(reg, store, 10*time.Minute, time.Hour, 2*time.Hour)
	sweeper.now = func() time.Time { return base }

	return &sweepFixture{reg: reg, store: store, sweeper: sweeper, base: base}
}

// addUpload commits a record with a backing file, as ingestion would.
func (f *sweepFixture) addUpload(t *testing.T, owner auth.Principal, filename string) uuid.UUID {
	t.Helper()

	id, err := f.reg.Allocate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, err := f.store.Create(id.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.Write([]byte("content of " + filename)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Close()

	err = f.reg.Commit(id, Record{
		OriginalFilename: filename,
		StoragePath:      f.store.Path(id.String()),
		Owner:            owner,
		ContentType:      "text/plain",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return id
}

// advance moves the sweeper's clock without touching the registry's, so
// committed records keep their original access times.
func (f *sweepFixture) advance(d time.Duration) {
	at := f.base.Add(d)
	f.sweeper.now = func() time.Time { return at }
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSweeper_RunSweep(t *testing.T) {
	t.Run("expires idle uploads and deletes their files", func(t *testing.T) {
		f := newSweepFixture(t)
		id := f.addUpload(t, "alice", "old.txt")
		path := f.store.Path(id.String())

		f.advance(61 * time.Minute)
		if err := f.sweeper.runSweep(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := f.reg.Lookup(id, "alice"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after sweep, got %v", err)
		}
		if fileExists(path) {
			t.Error("expected backing file to be deleted")
		}
	})

	t.Run("keeps uploads accessed within the hour", func(t *testing.T) {
		f := newSweepFixture(t)
		id := f.addUpload(t, "alice", "fresh.txt")

		f.advance(30 * time.Minute)
		if err := f.sweeper.runSweep(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := f.reg.Lookup(id, "alice"); err != nil {
			t.Errorf("expected record to survive, got %v", err)
		}
		if !fileExists(f.store.Path(id.String())) {
			t.Error("expected backing file to survive")
		}
	})

	t.Run("expires records with access times in the future", func(t *testing.T) {
		f := newSweepFixture(t)

		// Commit with a clock three hours ahead of the sweeper's: the idle
		// age comes out negative, which means the wall clock moved.
		f.reg.now = func() time.Time { return f.base.Add(3 * time.Hour) }
		id := f.addUpload(t, "alice", "skewed.txt")

		if err := f.sweeper.runSweep(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := f.reg.Lookup(id, "alice"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected skewed record to be expired, got %v", err)
		}
	})

	t.Run("drops never-committed placeholders", func(t *testing.T) {
		f := newSweepFixture(t)

		id, err := f.reg.Allocate()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := f.sweeper.runSweep(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.reg.Len() != 0 {
			t.Errorf("expected placeholder to be dropped, %d entries remain", f.reg.Len())
		}
		// A commit arriving after the sweep must fail so the ingestor rolls back
		if err := f.reg.Commit(id, Record{Owner: "alice"}); !errors.Is(err, ErrNoPlaceholder) {
			t.Errorf("expected ErrNoPlaceholder, got %v", err)
		}
	})

	t.Run("deletes stale orphan files", func(t *testing.T) {
		f := newSweepFixture(t)

		orphan := f.store.Path("leftover")
		if err := os.WriteFile(orphan, []byte("crashed before commit"), 0600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		stale := f.base.Add(-3 * time.Hour)
		if err := os.Chtimes(orphan, stale, stale); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := f.sweeper.runSweep(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fileExists(orphan) {
			t.Error("expected stale orphan to be deleted")
		}
	})

	t.Run("deletes orphans with modification times in the future", func(t *testing.T) {
		f := newSweepFixture(t)

		orphan := f.store.Path("from-the-future")
		if err := os.WriteFile(orphan, []byte("clock skew"), 0600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		future := f.base.Add(3 * time.Hour)
		if err := os.Chtimes(orphan, future, future); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := f.sweeper.runSweep(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fileExists(orphan) {
			t.Error("expected future-dated orphan to be deleted")
		}
	})

	t.Run("spares recent orphans inside the skew window", func(t *testing.T) {
		f := newSweepFixture(t)

		orphan := f.store.Path("in-flight")
		if err := os.WriteFile(orphan, []byte("being committed right now"), 0600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		recent := f.base.Add(-30 * time.Minute)
		if err := os.Chtimes(orphan, recent, recent); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := f.sweeper.runSweep(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !fileExists(orphan) {
			t.Error("expected recent orphan to survive the skew window")
		}
	})

	t.Run("spares referenced files regardless of age", func(t *testing.T) {
		f := newSweepFixture(t)
		id := f.addUpload(t, "alice", "kept.txt")
		path := f.store.Path(id.String())

		// Age the file far outside the skew window; the live registry entry
		// must still protect it from the orphan pass.
		old := f.base.Add(-5 * time.Hour)
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		f.advance(30 * time.Minute)
		if err := f.sweeper.runSweep(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !fileExists(path) {
			t.Error("expected referenced file to survive the orphan pass")
		}
	})
}

func TestSweeper_StartStop(t *testing.T) {
	f := newSweepFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.sweeper.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		f.sweeper.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}

// The full lifecycle: upload, owner-checked retrieval, idle expiry.
func TestUploadLifecycle(t *testing.T) {
	f := newSweepFixture(t)
	ing := NewIngestor(f.reg, f.store)

	form := buildForm(t, []testPart{
		{"report.pdf", "application/octet-stream", "quarterly numbers"},
	})

	records, err := ing.Ingest(context.Background(), form, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	id := records[0].ID

	rec, err := f.reg.Lookup(id, "alice")
	if err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if rec.OriginalFilename != "report.pdf" {
		t.Errorf("expected original filename report.pdf, got %q", rec.OriginalFilename)
	}
	if rec.ContentType != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", rec.ContentType)
	}

	if _, err := f.reg.Lookup(id, "bob"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for other user, got %v", err)
	}

	// 61 minutes of idleness, then one sweep cycle
	f.advance(61 * time.Minute)
	if err := f.sweeper.runSweep(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.reg.Lookup(id, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
	if fileExists(rec.StoragePath) {
		t.Error("expected backing file to be gone after expiry")
	}
}
