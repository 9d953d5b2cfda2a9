package upload

import (
	"time"

	"github.com/google/uuid"

	"stash/internal/server/auth"
)

// Record describes one uploaded file held by the Registry.
//
// All fields except LastAccessed are fixed at commit time. LastAccessed is
// bumped by every successful ownership-checked lookup and is guarded by the
// Registry's lock; outside the Registry only copies circulate.
type Record struct {
	ID               uuid.UUID
	OriginalFilename string // client-submitted, untrusted, display-only
	StoragePath      string
	Owner            auth.Principal
	ContentType      string
	Size             int64
	LastAccessed     time.Time
}
