package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"

	"github.com/google/uuid"

	"stash/internal/server/auth"
	"stash/internal/server/storage"
)

// Ingestor copies multipart file parts into the upload directory and
// registers them with the Registry.
type Ingestor struct {
	registry *Registry
	store    storage.Store
}

// NewIngestor creates a new ingestor backed by the given registry and store.
func NewIngestor(registry *Registry, store storage.Store) *Ingestor {
	return &Ingestor{registry: registry, store: store}
}

// Ingest persists every file part of form under a fresh identifier owned by
// owner and returns the committed records.
//
// Uploads are never retained for anonymous requests: without an owner the
// retrieval check cannot be enforced, so an anonymous ingest returns an
// empty result and persists nothing. On any failure the whole batch rolls
// back; a request never leaves partial registry entries or files behind.
// The caller stays responsible for releasing the form's transient storage
// (form.RemoveAll), including after success, since all bytes are copied.
func (ing *Ingestor) Ingest(ctx context.Context, form *multipart.Form, owner auth.Principal) ([]Record, error) {
	if owner.Anonymous() {
		return nil, nil
	}

	var records []Record
	rollback := func() {
		for _, rec := range records {
			ing.registry.Release(rec.ID)
			if err := ing.store.Delete(rec.ID.String()); err != nil {
				slog.Error("failed to remove file during ingest rollback",
					"path", rec.StoragePath,
					"error", err,
				)
			}
		}
	}

	for _, headers := range form.File {
		for _, fh := range headers {
			if err := ctx.Err(); err != nil {
				rollback()
				return nil, err
			}
			rec, err := ing.ingestPart(fh, owner)
			if err != nil {
				rollback()
				return nil, fmt.Errorf("failed to ingest part %q: %w", fh.Filename, err)
			}
			records = append(records, rec)
		}
	}

	if len(records) > 0 {
		slog.Info("ingested uploads", "owner", string(owner), "count", len(records))
	}
	return records, nil
}

// ingestPart copies a single part to disk and commits its record. On error
// the part's own file and registry entry are already cleaned up; the caller
// rolls back the rest of the batch.
func (ing *Ingestor) ingestPart(fh *multipart.FileHeader, owner auth.Principal) (Record, error) {
	src, err := fh.Open()
	if err != nil {
		return Record{}, fmt.Errorf("failed to open part: %w", err)
	}
	defer src.Close()

	id, dst, err := ing.createStorageFile()
	if err != nil {
		return Record{}, err
	}
	name := id.String()

	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		ing.registry.Release(id)
		if derr := ing.store.Delete(name); derr != nil {
			slog.Error("failed to remove partial upload file", "name", name, "error", derr)
		}
		return Record{}, fmt.Errorf("failed to copy part: %w", err)
	}

	rec := Record{
		OriginalFilename: fh.Filename,
		StoragePath:      ing.store.Path(name),
		Owner:            owner,
		ContentType:      ResolveContentType(fh.Filename, fh.Header.Get("Content-Type")),
		Size:             n,
	}
	if err := ing.registry.Commit(id, rec); err != nil {
		if derr := ing.store.Delete(name); derr != nil {
			slog.Error("failed to remove uncommitted upload file", "name", name, "error", derr)
		}
		return Record{}, err
	}
	rec.ID = id
	return rec, nil
}

// createStorageFile pairs a fresh identifier with an exclusively-created
// file. A name collision on disk (a stale file from a previous process run)
// triggers a redraw of the identifier.
func (ing *Ingestor) createStorageFile() (uuid.UUID, io.WriteCloser, error) {
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		id, err := ing.registry.Allocate()
		if err != nil {
			return uuid.Nil, nil, err
		}
		w, err := ing.store.Create(id.String())
		if errors.Is(err, fs.ErrExist) {
			ing.registry.Release(id)
			continue
		}
		if err != nil {
			ing.registry.Release(id)
			return uuid.Nil, nil, fmt.Errorf("failed to create storage file: %w", err)
		}
		return id, w, nil
	}
	return uuid.Nil, nil, ErrIdentifierSpace
}
