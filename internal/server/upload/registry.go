package upload

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"stash/internal/server/auth"
)

// Sentinel errors for the registry.
var (
	ErrNotFound        = errors.New("upload not found")
	ErrForbidden       = errors.New("upload owner mismatch")
	ErrIdentifierSpace = errors.New("could not allocate a unique identifier")
	ErrNoPlaceholder   = errors.New("commit without a reserved placeholder")
)

// maxAllocateAttempts bounds the redraw loop in Allocate. With 122 random
// bits per identifier a collision is practically impossible; the bound turns
// a broken random source into a loud failure instead of an endless spin.
const maxAllocateAttempts = 64

// Registry is the process-wide index of uploaded files. A single mutex
// guards the map: every critical section is O(1) except the sweep pass,
// which runs once per cycle, so a coarse lock is enough at the expected
// concurrency.
//
// A nil map value is a placeholder: the identifier has been reserved by
// Allocate but the record is not committed yet.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Record
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]*Record),
		now:     time.Now,
	}
}

// Allocate draws a fresh random identifier and reserves it. The membership
// test and the reservation happen in one atomic section, so two concurrent
// allocations can never claim the same value.
func (r *Registry) Allocate() (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		id, err := uuid.NewRandom()
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to draw identifier: %w", err)
		}
		if _, taken := r.entries[id]; taken {
			continue
		}
		r.entries[id] = nil
		return id, nil
	}
	return uuid.Nil, ErrIdentifierSpace
}

// Commit replaces the placeholder reserved by Allocate with the finished
// record. A missing placeholder means either a caller bug or a sweep that
// ran between reservation and commit; the caller must roll back its file.
func (r *Registry) Commit(id uuid.UUID, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[id]
	if !ok || existing != nil {
		return ErrNoPlaceholder
	}
	rec.ID = id
	rec.LastAccessed = r.now()
	r.entries[id] = &rec
	return nil
}

// Release removes an entry, placeholder or committed. Idempotent; used for
// ingestion rollback and by the sweep.
func (r *Registry) Release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Lookup returns a copy of the record for id if requester is its owner,
// updating the access time. An owner mismatch is security-relevant and
// logged with both identities, but callers must present ErrForbidden to end
// users exactly like ErrNotFound so resource existence is not leaked.
func (r *Registry) Lookup(id uuid.UUID, requester auth.Principal) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.entries[id]
	if !ok || rec == nil {
		return Record{}, ErrNotFound
	}
	if rec.Owner != requester {
		slog.Error("upload found but owner does not match",
			"upload_id", id.String(),
			"record_owner", string(rec.Owner),
			"requester", string(requester),
		)
		return Record{}, ErrForbidden
	}
	rec.LastAccessed = r.now()
	return *rec, nil
}

// Len returns the number of entries, placeholders included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entry is one row of a Snapshot.
type Entry struct {
	ID          uuid.UUID
	Placeholder bool
	Record      Record // zero value when Placeholder
}

// Snapshot returns a consistent point-in-time copy of every entry, taken
// under the registry lock.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for id, rec := range r.entries {
		e := Entry{ID: id, Placeholder: rec == nil}
		if rec != nil {
			e.Record = *rec
		}
		out = append(out, e)
	}
	return out
}

// sweepExpired removes, in one atomic pass, every placeholder (an ingestion
// that died mid-flight) and every record whose idle time is negative (the
// clock moved backwards) or at least maxIdle. The removed records are
// returned so the sweeper can delete their backing files outside the lock.
func (r *Registry) sweepExpired(now time.Time, maxIdle time.Duration) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Record
	for id, rec := range r.entries {
		if rec == nil {
			delete(r.entries, id)
			continue
		}
		idle := now.Sub(rec.LastAccessed)
		if idle < 0 || idle >= maxIdle {
			removed = append(removed, *rec)
			delete(r.entries, id)
		}
	}
	return removed
}

// livePaths returns the storage paths of all committed records.
func (r *Registry) livePaths() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make(map[string]struct{}, len(r.entries))
	for _, rec := range r.entries {
		if rec != nil {
			paths[rec.StoragePath] = struct{}{}
		}
	}
	return paths
}
