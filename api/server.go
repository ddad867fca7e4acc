// Package api exposes the image-finder pipeline over HTTP and persists
// selection outcomes. Persistence and archiving are caller-side concerns;
// the pipeline core stays stateless.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zombar/imagefinder"
	"github.com/zombar/imagefinder/db"
	"github.com/zombar/imagefinder/models"
	"github.com/zombar/imagefinder/search"
	"github.com/zombar/imagefinder/slug"
	"github.com/zombar/imagefinder/storage"
)

// Finder is the pipeline surface the server depends on, narrowed for tests.
type Finder interface {
	FindProductImage(ctx context.Context, req imagefinder.Request) models.Selection
	DownloadImage(ctx context.Context, imageURL string) ([]byte, string, error)
}

// SelectionStore is the persistence surface the server depends on.
type SelectionStore interface {
	SaveSelection(rec *models.SelectionRecord) error
	GetByID(id string) (*models.SelectionRecord, error)
	GetLatestBySlug(slug string) (*models.SelectionRecord, error)
	List(limit, offset int) ([]*models.SelectionRecord, error)
	Count() (int, error)
	DeleteByID(id string) error
	Close() error
}

// Server represents the API server
type Server struct {
	store       SelectionStore
	finder      Finder
	archiver    storage.Archiver
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
}

// Config contains server configuration
type Config struct {
	Addr         string
	DBConfig     db.Config
	FinderConfig imagefinder.Config
	SearchConfig search.Config
	ArchivePath  string            // filesystem archive root; empty disables archiving
	S3Config     *storage.S3Config // when set, archive to object storage instead
	CORSEnabled  bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		FinderConfig: imagefinder.DefaultConfig(),
		SearchConfig: search.DefaultConfig(),
		ArchivePath:  "./archive",
		CORSEnabled:  true,
	}
}

// NewServer creates a new API server
func NewServer(config Config) (*Server, error) {
	database, err := db.New(config.DBConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var archiver storage.Archiver
	switch {
	case config.S3Config != nil:
		archiver, err = storage.NewS3Storage(context.Background(), *config.S3Config)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
	case config.ArchivePath != "":
		archiver, err = storage.New(storage.Config{BasePath: config.ArchivePath})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
	}

	provider := search.NewHTTPProvider(config.SearchConfig)
	finder := imagefinder.New(config.FinderConfig, provider)

	return newServer(finder, database, archiver, config), nil
}

// newServer wires a Server from already-built dependencies.
func newServer(finder Finder, store SelectionStore, archiver storage.Archiver, config Config) *Server {
	s := &Server{
		store:       store,
		finder:      finder,
		archiver:    archiver,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      otelhttp.NewHandler(s.middleware(s.mux), "imagefinder-api"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // pipeline runs fan out to slow third-party hosts
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/api/find", s.handleFind)
	s.mux.HandleFunc("/api/selections", s.handleList)
	s.mux.HandleFunc("/api/selections/", s.handleSelection) // /api/selections/{id} and /{id}/image
}

// Start starts the API server
func (s *Server) Start() error {
	slog.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// middleware applies CORS and request logging to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		start := time.Now()
		next.ServeHTTP(w, r)

		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			slog.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count := 0
	if s.store != nil {
		var err error
		count, err = s.store.Count()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to get count")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"selections": count,
		"time":       time.Now(),
	})
}

// FindRequest represents a find request
type FindRequest struct {
	ProductName        string `json:"product_name"`
	SourceURL          string `json:"source_url,omitempty"`
	AllowBroaderSearch bool   `json:"allow_broader_search,omitempty"`
	Archive            bool   `json:"archive,omitempty"` // archive the winning image bytes
}

// FindResponse represents a find response
type FindResponse struct {
	ID          string           `json:"id"`
	ProductName string           `json:"product_name"`
	Selection   models.Selection `json:"selection"`
	ArchivePath string           `json:"archive_path,omitempty"`
}

// handleFind runs the pipeline for one product
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req FindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ProductName) == "" {
		respondError(w, http.StatusBadRequest, "product_name is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	selection := s.finder.FindProductImage(ctx, imagefinder.Request{
		ProductName:        req.ProductName,
		SourceURL:          req.SourceURL,
		AllowBroaderSearch: req.AllowBroaderSearch,
	})
	findDuration.Observe(time.Since(start).Seconds())
	candidatesPerFind.Observe(float64(selection.Candidates))
	validatedPerFind.Observe(float64(selection.ValidatedCount))
	findRequestsTotal.WithLabelValues(outcomeLabel(selection)).Inc()

	archivePath := ""
	if req.Archive && selection.Found && s.archiver != nil {
		archivePath = s.archiveWinner(ctx, req.ProductName, selection)
	}

	record := recordFromSelection(req, selection, archivePath)
	if s.store != nil {
		if err := s.store.SaveSelection(record); err != nil {
			slog.Error("failed to save selection", "product", req.ProductName, "error", err)
			// Still return the result even if save fails
		}
	}

	respondJSON(w, http.StatusOK, FindResponse{
		ID:          record.ID,
		ProductName: req.ProductName,
		Selection:   selection,
		ArchivePath: archivePath,
	})
}

// archiveWinner downloads and stores the winning image bytes, best-effort.
func (s *Server) archiveWinner(ctx context.Context, productName string, selection models.Selection) string {
	data, contentType, err := s.finder.DownloadImage(ctx, selection.URL)
	if err != nil {
		archiveFailures.Inc()
		slog.Warn("failed to download winning image for archive", "url", selection.URL, "error", err)
		return ""
	}

	// Product names that slug to nothing all collide on the generic key;
	// fall back to the image filename so their archives stay distinguishable.
	key := slug.FromProduct(productName)
	if key == "product" {
		if s := slug.FromImageURL(selection.URL); s != "" {
			key = s
		}
	}

	path, err := s.archiver.SaveImage(data, key, contentType)
	if err != nil {
		archiveFailures.Inc()
		slog.Warn("failed to archive winning image", "url", selection.URL, "error", err)
		return ""
	}
	return path
}

// recordFromSelection builds the persisted row for one pipeline run.
func recordFromSelection(req FindRequest, selection models.Selection, archivePath string) *models.SelectionRecord {
	record := &models.SelectionRecord{
		ID:          uuid.New().String(),
		ProductName: req.ProductName,
		Slug:        slug.FromProduct(req.ProductName),
		SourceURL:   req.SourceURL,
		Found:       selection.Found,
		ImageURL:    selection.URL,
		Validated:   selection.Validated,
		ArchivePath: archivePath,
		CreatedAt:   time.Now(),
	}
	if selection.Best != nil {
		record.Score = imagefinder.Score(*selection.Best)
		record.Width = selection.Best.Width
		record.Height = selection.Best.Height
		record.Format = selection.Best.Format
	}
	return record
}

// outcomeLabel maps a selection to its metrics label.
func outcomeLabel(selection models.Selection) string {
	switch {
	case selection.Found && selection.Validated:
		return "found_validated"
	case selection.Found:
		return "found_unvalidated"
	default:
		return "not_found"
	}
}

// handleList lists stored selections with pagination
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "selection store not configured")
		return
	}

	// ?slug= looks up the most recent selection for one product instead of
	// paging through history.
	if productSlug := r.URL.Query().Get("slug"); productSlug != "" {
		record, err := s.store.GetLatestBySlug(slug.Generate(productSlug))
		if err != nil {
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		if record == nil {
			respondError(w, http.StatusNotFound, "no selection for product")
			return
		}
		respondJSON(w, http.StatusOK, record)
		return
	}

	limit := 20
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		fmt.Sscanf(offsetStr, "%d", &offset)
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	records, err := s.store.List(limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	count, _ := s.store.Count()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"selections": records,
		"total":      count,
		"limit":      limit,
		"offset":     offset,
	})
}

// handleSelection handles GET/DELETE on a selection and GET on its archived
// image file
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "selection store not configured")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/selections/")
	if path == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if strings.HasSuffix(path, "/image") {
		id := strings.TrimSuffix(path, "/image")
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleServeArchivedImage(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetSelection(w, r, path)
	case http.MethodDelete:
		s.handleDeleteSelection(w, r, path)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetSelection retrieves a selection by ID
func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request, id string) {
	record, err := s.store.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "selection not found")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// handleDeleteSelection deletes a selection by ID
func (s *Server) handleDeleteSelection(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.store.DeleteByID(id); err != nil {
		if strings.Contains(err.Error(), "no selection found") {
			respondError(w, http.StatusNotFound, "selection not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete selection")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "selection deleted successfully",
	})
}

// handleServeArchivedImage serves the archived winning image for a selection
func (s *Server) handleServeArchivedImage(w http.ResponseWriter, r *http.Request, id string) {
	record, err := s.store.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "selection not found")
		return
	}
	if record.ArchivePath == "" || s.archiver == nil {
		respondError(w, http.StatusNotFound, "archived image not available")
		return
	}

	data, err := s.archiver.ReadImage(record.ArchivePath)
	if err != nil {
		slog.Error("failed to read archived image", "path", record.ArchivePath, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read archived image")
		return
	}

	w.Header().Set("Content-Type", contentTypeForFormat(record.Format))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	// Archived images never change
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// contentTypeForFormat maps a decoded image format name to a MIME type.
func contentTypeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
