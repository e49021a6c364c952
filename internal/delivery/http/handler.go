package http

import (
	"errors"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/watchfinder/backend/internal/domain"
	"github.com/watchfinder/backend/internal/render"
	"github.com/watchfinder/backend/internal/usecase"
)

// allowedUploadExt lists the image types accepted as reference photos
var allowedUploadExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

var unsafeFilenamePattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	search       *usecase.SearchService
	store        domain.SessionStore
	referenceDir string
	maxUpload    int64 // bytes per uploaded file
}

// NewHandler creates a new HTTP handler
func NewHandler(search *usecase.SearchService, store domain.SessionStore, referenceDir string, maxUploadMB int64) *Handler {
	return &Handler{
		search:       search,
		store:        store,
		referenceDir: referenceDir,
		maxUpload:    maxUploadMB << 20,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "watchfinder",
	})
}

// SimpleForm serves the empty search form
func (h *Handler) SimpleForm(c *gin.Context) {
	h.renderPage(c, render.Context{})
}

// SimpleSearch runs a search synchronously and renders the results page
func (h *Handler) SimpleSearch(c *gin.Context) {
	query := c.PostForm("query")
	if strings.TrimSpace(query) == "" {
		h.renderPage(c, render.Context{Error: "Please enter a search query"})
		return
	}

	// An unparseable threshold is ignored and the default applies
	var threshold float64
	var thresholdEcho *float64
	if raw := c.PostForm("threshold"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			threshold = parsed
			thresholdEcho = &parsed
		}
	}

	result, err := h.search.Run(c.Request.Context(), query, threshold)
	switch {
	case err == nil, errors.Is(err, domain.ErrNoResults), errors.Is(err, domain.ErrLowConfidence):
		// Empty and weak results still render; the page communicates both
		h.renderPage(c, render.Context{
			Query:     query,
			Threshold: thresholdEcho,
			Matches:   result.Matches,
		})
	case errors.Is(err, domain.ErrInvalidQuery):
		h.renderPage(c, render.Context{Error: "Please enter a search query"})
	default:
		h.renderPage(c, render.Context{
			Query:     query,
			Threshold: thresholdEcho,
			Error:     "Search failed: " + err.Error(),
		})
	}
}

func (h *Handler) renderPage(c *gin.Context, ctx render.Context) {
	page, err := render.Render(ctx)
	if err != nil {
		log.Printf("[http] results page render failed: %v", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// SessionImage serves a downloaded listing image from a session folder
func (h *Handler) SessionImage(c *gin.Context) {
	path, err := h.store.ImagePath(c.Param("session_id"), c.Param("platform"), c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.File(path)
}

// UploadReference replaces the reference image set with the uploaded files
func (h *Handler) UploadReference(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}
	files := form.File["images"]

	named := false
	for _, header := range files {
		if header.Filename != "" {
			named = true
			break
		}
	}
	if !named {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	if err := os.MkdirAll(h.referenceDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not prepare reference folder"})
		return
	}

	// A new upload replaces the whole reference set
	if entries, err := os.ReadDir(h.referenceDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(h.referenceDir, entry.Name())); err != nil {
				log.Printf("[upload] could not remove old reference %s: %v", entry.Name(), err)
			}
		}
	}

	saved := make([]string, 0, len(files))
	for _, header := range files {
		name := sanitizeFilename(header.Filename)
		if name == "" || !allowedUploadExt[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if h.maxUpload > 0 && header.Size > h.maxUpload {
			log.Printf("[upload] %s exceeds the per-file upload limit, skipping", name)
			continue
		}
		if err := c.SaveUploadedFile(header, filepath.Join(h.referenceDir, name)); err != nil {
			log.Printf("[upload] saving %s failed: %v", name, err)
			continue
		}
		saved = append(saved, name)
	}

	if len(saved) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No valid image files uploaded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Files uploaded successfully",
		"files":   saved,
	})
}

// StartSearch launches a background search across all enabled platforms
func (h *Handler) StartSearch(c *gin.Context) {
	var req struct {
		SearchQuery string   `json:"search_query"`
		Threshold   *float64 `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.SearchQuery) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing search_query"})
		return
	}

	threshold := 0.80
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	references := listReferenceImages(h.referenceDir)
	if len(references) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No reference images uploaded"})
		return
	}

	sessionID, err := h.search.Start(c.Request.Context(), req.SearchQuery, threshold)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"message":          "Search started successfully",
			"session_id":       sessionID,
			"reference_images": len(references),
		})
	case errors.Is(err, domain.ErrSearchRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "A search is already running"})
	case errors.Is(err, domain.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing search_query"})
	case errors.Is(err, domain.ErrNoReferenceImages):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No reference images uploaded"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start search: " + err.Error()})
	}
}

// LatestResults returns the most recent session summary
func (h *Handler) LatestResults(c *gin.Context) {
	summary, err := h.search.LatestSummary()
	switch {
	case err == nil:
		c.JSON(http.StatusOK, summary)
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No session run yet"})
	case errors.Is(err, domain.ErrSummaryPending):
		c.JSON(http.StatusNotFound, gin.H{"error": "Summary not found - search may still be running"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error reading summary: " + err.Error()})
	}
}

// APIStatus reports service liveness and the background search state
func (h *Handler) APIStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "running",
		"message": "Lost Watch Finder API is operational",
		"search":  h.search.Status(),
	})
}

// sanitizeFilename reduces an uploaded filename to a safe base name
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = unsafeFilenamePattern.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}

// listReferenceImages names the usable reference photos in dir
func listReferenceImages(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if allowedUploadExt[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	return names
}
