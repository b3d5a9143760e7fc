package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pastiche/internal/api"
	"pastiche/internal/artifact"
	"pastiche/internal/config"
	"pastiche/internal/imaging"
	"pastiche/internal/logging"
	"pastiche/internal/metrics"
	"pastiche/internal/services"
)

const defaultJobListLimit = 50

type apiServer struct {
	bind        string
	logger      *slog.Logger
	service     *api.ImageService
	maxUpload   int64
	handler     http.Handler
	listener    net.Listener
	server      *http.Server
	serveErrors chan error
}

func newAPIServer(cfg *config.Config, svc *api.ImageService, recorder *metrics.Recorder, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.API.Bind),
		logger:    logging.NewComponentLogger(logger, "api-server"),
		service:   svc,
		maxUpload: cfg.MaxUploadBytes(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)
	if recorder != nil {
		r.Use(recorder.Middleware)
	}
	r.Use(accessLog(srv.logger))
	r.Use(corsMiddleware(cfg.API.CORSOrigin))

	r.Get("/ping", srv.handlePing)
	r.Post("/get_size", srv.handleSize)
	r.Get("/get_last_saved", srv.handleLastSaved)
	r.Post("/", srv.handleProcess)
	r.Post("/save_image", srv.handleSave)
	r.Get("/filters", srv.handleFilters)
	r.Get("/artifacts", srv.handleArtifacts)
	r.Get("/artifacts/{id}", srv.handleArtifactFile)
	r.Get("/jobs", srv.handleJobs)
	r.Get("/jobs/{id}", srv.handleJob)
	r.Get("/status", srv.handleStatus)
	if recorder != nil {
		r.Method(http.MethodGet, "/metrics", recorder.Handler())
	}
	srv.handler = r

	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Writes wait on filter jobs, so leave room beyond the job timeout.
		WriteTimeout: cfg.JobTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) start() error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that api.bind is free"),
			)
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

func (s *apiServer) stop(ctx context.Context) error {
	if s == nil || s.listener == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.listener = nil
	return err
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handlePing(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *apiServer) handleSize(w http.ResponseWriter, r *http.Request) {
	upload, err := s.readUpload(w, r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	dims, err := s.service.ImageDimensions(upload.data)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dims)
}

func (s *apiServer) handleLastSaved(w http.ResponseWriter, r *http.Request) {
	path, ok, err := s.service.LastSavedImage(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !ok {
		s.writeJSON(w, http.StatusOK, map[string]string{"error": "YES"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"error": "NO", "path": path})
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	upload, err := s.readUpload(w, r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if upload.filter == "" {
		s.writeServiceError(w, r, services.Wrap(services.ErrValidation, "api-server", "process", "filter is required", nil))
		return
	}
	res, err := s.service.ProcessImage(r.Context(), upload.data, upload.filter)
	if err != nil {
		s.writeServiceErrorWithID(w, r, err, res.JobID)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type saveRequest struct {
	ID string `json:"id"`
}

func (s *apiServer) handleSave(w http.ResponseWriter, r *http.Request) {
	id, err := s.readSaveID(w, r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	saved, err := s.service.SaveImage(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": saved})
}

func (s *apiServer) readSaveID(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req saveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", services.Wrap(services.ErrValidation, "api-server", "save", "invalid JSON body", err)
		}
		return strings.TrimSpace(req.ID), nil
	}
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return "", services.Wrap(services.ErrValidation, "api-server", "save", "invalid form body", err)
		}
	}
	return strings.TrimSpace(r.FormValue("id")), nil
}

func (s *apiServer) handleFilters(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]api.FilterInfo{"filters": s.service.Filters()})
}

func (s *apiServer) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	var kinds []artifact.Kind
	for _, value := range r.URL.Query()["kind"] {
		kind, ok := artifact.ParseKind(value)
		if !ok {
			s.writeServiceError(w, r, services.Wrap(services.ErrValidation, "api-server", "artifacts", "unknown kind "+strconv.Quote(value), nil))
			return
		}
		kinds = append(kinds, kind)
	}
	arts, err := s.service.Artifacts(r.Context(), kinds...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]api.ArtifactInfo{"artifacts": arts})
}

func (s *apiServer) handleArtifactFile(w http.ResponseWriter, r *http.Request) {
	ctx := services.WithArtifactID(r.Context(), chi.URLParam(r, "id"))
	art, err := s.service.ArtifactFile(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r.WithContext(ctx), err)
		return
	}
	file, err := os.Open(art.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = services.Wrap(services.ErrArtifactNotFound, "api-server", "artifact file", art.ID, nil)
		} else {
			err = services.Wrap(services.ErrStorage, "api-server", "artifact file", art.ID, err)
		}
		s.writeServiceError(w, r.WithContext(ctx), err)
		return
	}
	defer file.Close()
	w.Header().Set("Content-Type", imaging.ContentType(art.Format))
	w.Header().Set("ETag", strconv.Quote(art.Checksum))
	http.ServeContent(w, r, art.ID+imaging.Extension(art.Format), art.CreatedAt, file)
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobListLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			s.writeServiceError(w, r, services.Wrap(services.ErrValidation, "api-server", "jobs", "invalid limit", err))
			return
		}
		limit = parsed
	}
	list, err := s.service.Jobs(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []api.JobInfo{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]api.JobInfo{"jobs": list})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok, err := s.service.Job(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !ok {
		s.writeServiceError(w, r, services.Wrap(services.ErrArtifactNotFound, "api-server", "job", "job "+id, nil))
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

type upload struct {
	data   []byte
	filter string
}

// readUpload accepts either a multipart form with an "image" file and an
// optional "filter" field, or a raw image body with ?filter=.
func (s *apiServer) readUpload(w http.ResponseWriter, r *http.Request) (upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var out upload
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(s.maxUpload); err != nil {
			return upload{}, uploadError(err)
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		file, _, err := r.FormFile("image")
		if err != nil {
			return upload{}, services.Wrap(services.ErrValidation, "api-server", "upload", "multipart field \"image\" is required", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return upload{}, uploadError(err)
		}
		out.data = data
		out.filter = r.FormValue("filter")
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return upload{}, uploadError(err)
		}
		out.data = data
	}
	if out.filter == "" {
		out.filter = r.URL.Query().Get("filter")
	}
	out.filter = strings.TrimSpace(out.filter)
	return out, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return services.Wrap(services.ErrValidation, "api-server", "upload",
			fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), nil)
	}
	return services.Wrap(services.ErrValidation, "api-server", "upload", "unreadable request body", err)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

type errorResponse struct {
	Error   api.ErrorCategory `json:"error"`
	Message string            `json:"message"`
	ID      string            `json:"id,omitempty"`
}

// writeServiceError renders err with its stable category and a fixed
// message. The full chain only goes to the log.
func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeServiceErrorWithID(w, r, err, "")
}

// writeServiceErrorWithID adds the job id so a client can poll /jobs/{id}.
func (s *apiServer) writeServiceErrorWithID(w http.ResponseWriter, r *http.Request, err error, jobID string) {
	category := api.Classify(err)
	status := category.HTTPStatus()

	logger := logging.WithContext(r.Context(), s.logger)
	attrs := append([]logging.Attr{
		logging.String("path", r.URL.Path),
		logging.String("category", string(category)),
		logging.Int("status", status),
	}, logging.ErrorAttrs(err)...)
	switch category {
	case api.CategoryStorage, api.CategoryInternal:
		logging.ErrorWithContext(logger, "request failed", "http_request_failed", attrs...)
	default:
		logger.Debug("request rejected", logging.Args(attrs...)...)
	}
	s.writeJSON(w, status, errorResponse{Error: category, Message: api.ClientMessage(err), ID: jobID})
}
