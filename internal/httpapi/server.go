package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"minutes-studio/internal/config"
	"minutes-studio/internal/export"
	"minutes-studio/internal/model"
	"minutes-studio/internal/pipeline"
	"minutes-studio/internal/storage"
	"minutes-studio/internal/upstream/gemini"
)

type PipelineService interface {
	Process(ctx context.Context, in pipeline.Input) (pipeline.Result, error)
}

type UploadSigner interface {
	SignUpload(ctx context.Context, filename, contentType string) (storage.UploadTicket, error)
}

type UpstreamChecker interface {
	CheckModel(ctx context.Context, model string) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
	IncMinutesParseFailure()
	IncMockResponse()
}

type Dependencies struct {
	Pipeline PipelineService
	// Uploads is nil when object storage is not configured.
	Uploads UploadSigner
	// Upstream is nil in mock mode.
	Upstream       UpstreamChecker
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	pipeline     PipelineService
	uploads      UploadSigner
	upstream     UpstreamChecker
	metrics      MetricsObserver
	metricsRoute http.Handler
	validate     *validator.Validate
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
	maxJSONBodyBytes = 1 << 20
	serviceName      = "minutes-studio"
)

var errUnsupportedContentType = errors.New("リクエストの Content-Type は multipart/form-data または application/json を指定してください")

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Pipeline == nil {
		panic("httpapi: pipeline is required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		pipeline:     deps.Pipeline,
		uploads:      deps.Uploads,
		upstream:     deps.Upstream,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
		validate:     newValidator(),
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "route not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", "")
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Post("/upload-sign", s.handleUploadSign)
	r.Post("/minutes", s.handleMinutes)
	r.Post("/export", s.handleExport)

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := model.ReadyResponse{OK: true, ServiceName: serviceName, AIMode: "mock", Storage: s.uploads != nil}
	if s.upstream == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.upstream.CheckModel(ctx, s.cfg.MinutesModel); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "upstream check failed", describeError(err))
		return
	}
	resp.AIMode = "live"
	writeJSON(w, http.StatusOK, resp)
}

// writeMappedError turns client input errors into 400 and everything else
// into 500 with the error chain in details.
func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		s.writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("request exceeds %d bytes", maxErr.Limit), "")
	case errors.Is(err, pipeline.ErrNoInput),
		errors.Is(err, pipeline.ErrEmptyTranscript),
		errors.Is(err, pipeline.ErrStorageUnavailable),
		errors.Is(err, storage.ErrInvalidKey),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, errUnsupportedContentType),
		errors.Is(err, errInvalidBody):
		s.writeError(w, r, http.StatusBadRequest, err.Error(), "")
	default:
		s.logger.Error("request failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		s.writeError(w, r, http.StatusInternalServerError, err.Error(), describeError(err))
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, message, details string) {
	writeJSON(w, status, model.ErrorResponse{
		Error:     message,
		Details:   details,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal server error", fmt.Sprint(rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validationMessage renders validator errors as "field: reason; ...".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "validation failed"
	}
	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		var reason string
		switch e.Tag() {
		case "required":
			reason = "is required"
		case "oneof":
			reason = "must be one of: " + e.Param()
		case "max":
			reason = "must be at most " + e.Param() + " characters"
		default:
			reason = "is invalid"
		}
		messages = append(messages, e.Field()+": "+reason)
	}
	return strings.Join(messages, "; ")
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeJSON reads exactly one JSON value with no unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = r.Body.Close() }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "JSON body too large", "")
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid JSON body", err.Error())
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

// describeError lists the error chain outermost first, with upstream status
// when the chain carries a Gemini error.
func describeError(err error) string {
	if err == nil {
		return ""
	}
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, fmt.Sprintf("%T: %s", e, e.Error()))
	}
	var upstreamErr *gemini.Error
	if errors.As(err, &upstreamErr) {
		lines = append(lines, fmt.Sprintf("upstream status: %d %s", upstreamErr.StatusCode, upstreamErr.Status))
	}
	return strings.Join(lines, "\n")
}
