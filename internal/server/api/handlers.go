package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"stash/internal/server/auth"
	"stash/internal/server/cachekey"
	"stash/internal/server/database"
	"stash/internal/server/render"
	"stash/internal/server/upload"
)

// Handler contains the HTTP handlers for the stash API.
type Handler struct {
	registry *upload.Registry
	ingestor *upload.Ingestor
	auth     auth.Authenticator
	db       *database.DB
	cache    *render.Cache

	// uploadsEnabled is false when the upload directory could not be
	// created at startup. The ingestion path is then unavailable but the
	// rest of the server keeps serving.
	uploadsEnabled bool
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(registry *upload.Registry, ingestor *upload.Ingestor, authn auth.Authenticator, db *database.DB, uploadsEnabled bool) *Handler {
	return &Handler{
		registry:       registry,
		ingestor:       ingestor,
		auth:           authn,
		db:             db,
		cache:          render.NewCache(),
		uploadsEnabled: uploadsEnabled,
	}
}

// fileInfo is the JSON shape of one upload record.
type fileInfo struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func toFileInfos(records []upload.Record) []fileInfo {
	out := make([]fileInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, fileInfo{
			ID:          rec.ID.String(),
			Filename:    rec.OriginalFilename,
			ContentType: rec.ContentType,
			Size:        rec.Size,
		})
	}
	return out
}

// HandleIngest handles POST /api/uploads.
// Accepts a multipart form; every file part is stored under a fresh
// identifier owned by the authenticated user. Requests without a valid
// identity retain nothing and get an empty result back.
func (h *Handler) HandleIngest(c echo.Context) error {
	if !h.uploadsEnabled {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error": "uploads are unavailable: upload directory could not be created",
		})
	}

	owner, err := h.auth.CurrentPrincipal(c.Request())
	if err != nil && !errors.Is(err, auth.ErrInvalidCredentials) {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "authentication check failed",
		})
	}
	// Invalid credentials fall through as anonymous: the parts are still
	// consumed and discarded below, never retained.

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "multipart form required",
		})
	}
	defer form.RemoveAll()

	records, err := h.ingestor.Ingest(c.Request().Context(), form, owner)
	if err != nil {
		return mapUploadError(c, err)
	}

	if owner.Anonymous() {
		return c.JSON(http.StatusOK, echo.Map{"files": []fileInfo{}})
	}
	return c.JSON(http.StatusCreated, echo.Map{"files": toFileInfos(records)})
}

// HandleFetch handles GET /api/uploads/:id.
// Streams the stored bytes with the resolved content type. A missing upload
// and an owner mismatch are indistinguishable to the caller.
func (h *Handler) HandleFetch(c echo.Context) error {
	rec, err := h.lookup(c)
	if err != nil {
		return mapUploadError(c, err)
	}

	file, err := os.Open(rec.StoragePath)
	if err != nil {
		// Registry and disk disagree; the sweep will reconcile. Report the
		// same way as not-found.
		slog.Error("upload file missing on disk", "path", rec.StoragePath, "error", err)
		return mapUploadError(c, upload.ErrNotFound)
	}
	defer file.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("inline; filename=%q", rec.OriginalFilename))
	return c.Stream(http.StatusOK, rec.ContentType, file)
}

// HandleInfo handles GET /api/uploads/:id/info.
// Returns upload metadata without serving the bytes.
func (h *Handler) HandleInfo(c echo.Context) error {
	rec, err := h.lookup(c)
	if err != nil {
		return mapUploadError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":            rec.ID.String(),
		"filename":      rec.OriginalFilename,
		"content_type":  rec.ContentType,
		"size":          rec.Size,
		"last_accessed": rec.LastAccessed.UTC().Format(time.RFC3339),
	})
}

// lookup resolves the requester and performs the ownership-checked registry
// lookup for the :id parameter.
func (h *Handler) lookup(c echo.Context) (upload.Record, error) {
	requester, err := h.auth.CurrentPrincipal(c.Request())
	if err != nil {
		return upload.Record{}, err
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Malformed identifiers cannot name any upload.
		return upload.Record{}, upload.ErrNotFound
	}
	return h.registry.Lookup(id, requester)
}

// HandleHome handles GET /.
// The page is rendered once per distinct cache key (effective layout plus
// crawler classification) and memoized.
func (h *Handler) HandleHome(c echo.Context) error {
	var layoutOverride string
	if cookie, err := c.Cookie("layout"); err == nil {
		layoutOverride = cookie.Value
	}
	key := cachekey.Compute(layoutOverride, c.Request().UserAgent())

	body, ok := h.cache.Get(key)
	if !ok {
		body = render.LandingPage(key)
		h.cache.Put(key, body)
	}
	return c.HTMLBlob(http.StatusOK, body)
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity
// and whether the ingestion path is available.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}
	if !h.uploadsEnabled {
		status = "degraded"
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
		"uploads":  h.uploadsEnabled,
	})
}

// mapUploadError translates upload and auth errors into HTTP responses.
// Not-found and forbidden produce identical bodies so the existence of an
// upload is never leaked to a non-owner.
func mapUploadError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, upload.ErrNotFound), errors.Is(err, upload.ErrForbidden):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "upload not found"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, upload.ErrIdentifierSpace):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "identifier allocation failed"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to store upload"})
	}
}
