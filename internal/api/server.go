package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"facewatch/internal/camera"
	"facewatch/internal/deps"
	"facewatch/internal/engine"
	"facewatch/internal/identify"
	"facewatch/internal/logging"
	"facewatch/internal/metrics"
	"facewatch/internal/records"
)

// maxBodyBytes bounds request bodies; payloads only carry paths and names.
const maxBodyBytes = 64 << 10

// Coordinator is the slice of *identify.Coordinator the server drives.
type Coordinator interface {
	Snapshot(m identify.Modality) identify.Status
	Snapshots() []identify.Status
	Gate() identify.GateStatus
	SelectImage(ctx context.Context, path string) error
	SelectVideo(ctx context.Context, path string) error
	Reset(ctx context.Context, m identify.Modality) error
	WebcamOn(ctx context.Context) error
	WebcamOff(ctx context.Context) error
	Enroll(ctx context.Context, rec records.NewRecord, photoPaths []string) (identify.Enrollment, error)
}

// RecordReader looks up subject records. *records.Store implements it.
type RecordReader interface {
	GetRecord(ctx context.Context, id int64) (*records.Record, error)
}

// FrameSource exposes the camera preview. *camera.Arbiter implements it.
type FrameSource interface {
	LatestFrame() (camera.Frame, bool)
	Mode() camera.Mode
}

// EngineProcess reports the engine's lifetime. *engine.Supervisor implements it.
type EngineProcess interface {
	Pid() int
	Done() <-chan struct{}
	ExitErr() error
}

// Options configures a Server. Engine, Frames, Metrics and Dependencies may be nil.
type Options struct {
	Bind         string
	Coordinator  Coordinator
	Records      RecordReader
	Engine       EngineProcess
	Frames       FrameSource
	Metrics      *metrics.Collectors
	Dependencies func() []deps.Status
	SessionID    string
	StartedAt    time.Time
	Logger       *slog.Logger
}

// Server serves the HTTP control surface.
type Server struct {
	opts   Options
	logger *slog.Logger
	router *mux.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// New builds the router. It returns an error when required collaborators are missing.
func New(opts Options) (*Server, error) {
	if opts.Coordinator == nil {
		return nil, errors.New("api: coordinator required")
	}
	if opts.Records == nil {
		return nil, errors.New("api: record reader required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "api-server"),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/identify/{modality:image|video}", s.handleIdentify).Methods(http.MethodPost)
	r.HandleFunc("/api/identify/{modality:image|video}", s.handleReset).Methods(http.MethodDelete)
	r.HandleFunc("/api/webcam/frame", s.handleFrame).Methods(http.MethodGet)
	r.HandleFunc("/api/webcam/{action:on|off|reset}", s.handleWebcam).Methods(http.MethodPost)
	r.HandleFunc("/api/records", s.handleEnroll).Methods(http.MethodPost)
	r.HandleFunc("/api/records/{id}", s.handleRecord).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.Use(s.requestLogging)
	return r
}

// Handler returns the routed handler without binding a listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured bind address and serves until ctx is done
// or Stop is called. An empty bind disables the server.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		s.logger.Info("api server disabled", logging.String(logging.FieldEventType, "api_disabled"))
		return nil
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, allowing in-flight requests five seconds.
func (s *Server) Stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", SessionID: s.opts.SessionID})
}

func (s *Server) engineStatus() EngineStatus {
	st := EngineStatus{Gate: s.opts.Coordinator.Gate()}
	if s.opts.Engine == nil {
		return st
	}
	st.Pid = s.opts.Engine.Pid()
	select {
	case <-s.opts.Engine.Done():
		if err := s.opts.Engine.ExitErr(); err != nil {
			st.ExitError = err.Error()
		}
	default:
		st.Running = true
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := StatusResponse{
		SessionID: s.opts.SessionID,
		StartedAt: formatTime(s.opts.StartedAt),
		Engine:    s.engineStatus(),
		Workflows: s.opts.Coordinator.Snapshots(),
	}
	if s.opts.Frames != nil {
		payload.CameraMode = s.opts.Frames.Mode().String()
	}
	if s.opts.Dependencies != nil {
		payload.Dependencies = FromDependencies(s.opts.Dependencies())
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	modality, _ := identify.ParseModality(mux.Vars(r)["modality"])
	var req IdentifyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch modality {
	case identify.ModalityImage:
		err = s.opts.Coordinator.SelectImage(r.Context(), req.Path)
	case identify.ModalityVideo:
		err = s.opts.Coordinator.SelectVideo(r.Context(), req.Path)
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, WorkflowResponse{Status: s.opts.Coordinator.Snapshot(modality)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	modality, _ := identify.ParseModality(mux.Vars(r)["modality"])
	if err := s.opts.Coordinator.Reset(r.Context(), modality); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, WorkflowResponse{Status: s.opts.Coordinator.Snapshot(modality)})
}

func (s *Server) handleWebcam(w http.ResponseWriter, r *http.Request) {
	var err error
	switch mux.Vars(r)["action"] {
	case "on":
		err = s.opts.Coordinator.WebcamOn(r.Context())
	case "off":
		err = s.opts.Coordinator.WebcamOff(r.Context())
	case "reset":
		err = s.opts.Coordinator.Reset(r.Context(), identify.ModalityWebcam)
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, WorkflowResponse{Status: s.opts.Coordinator.Snapshot(identify.ModalityWebcam)})
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Frames == nil {
		s.writeError(w, http.StatusServiceUnavailable, identify.ErrNoCamera.Error())
		return
	}
	frame, ok := s.opts.Frames.LatestFrame()
	if !ok || len(frame.Data) == 0 {
		s.writeError(w, http.StatusNotFound, "no preview frame available")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if !frame.Captured.IsZero() {
		w.Header().Set("Last-Modified", frame.Captured.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame.Data)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id, err := records.ParseID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.opts.Records.GetRecord(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	enrollment, err := s.opts.Coordinator.Enroll(r.Context(), req.NewRecord, req.Photos)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, EnrollResponse{RecordID: enrollment.RecordID, Photos: enrollment.Photos})
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("api request",
			logging.String(logging.FieldEventType, "api_request"),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var writeErr *engine.WriteError
	switch {
	case errors.Is(err, identify.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, identify.ErrEngineBusy), errors.Is(err, identify.ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, identify.ErrNoCamera), errors.Is(err, identify.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &writeErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(s.logger, "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "operation was not applied"),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
