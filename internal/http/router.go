package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Router wraps http.ServeMux with CORS, request ids, access logging and metrics
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

// Handle registers h; pattern doubles as the metrics route label
func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.Handle(pattern, r.instrument(pattern, h))
}

// HandleHandler registers a plain http.Handler (metrics endpoint)
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	setCORSHeaders(w)
	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	id := req.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)

	r.mux.ServeHTTP(w, req)
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	h.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (r *Router) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		h(rec, req)

		took := time.Since(started)
		metrics.HTTPRequestDuration.
			WithLabelValues(req.Method, route, strconv.Itoa(rec.status)).
			Observe(took.Seconds())
		r.logger.Debug("request served",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", took),
			zap.String("request_id", w.Header().Get("X-Request-ID")),
		)
	})
}

// only restricts h to one method
func only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, "Método no permitido", nil)
			return
		}
		h(w, req)
	}
}

// RegisterBalizaRoutes live snapshot and health routes
func (r *Router) RegisterBalizaRoutes(h *BalizaHandler) {
	r.Handle("/api/v16", only(http.MethodGet, h.GetBalizas))
	r.Handle("/api/v16/refresh", only(http.MethodPost, h.Refresh))
	r.Handle("/health", only(http.MethodGet, h.Health))
}

// RegisterAdminRoutes persistence and analytics routes under /api/admin
func (r *Router) RegisterAdminRoutes(h *AdminHandler) {
	r.Handle("/api/admin/save", only(http.MethodPost, h.Save))

	r.Handle("/api/admin/stats/general", only(http.MethodGet, h.GeneralStats))
	r.Handle("/api/admin/stats/by-location", only(http.MethodGet, h.StatsByLocation))
	r.Handle("/api/admin/stats/accumulated", only(http.MethodGet, h.Accumulated))

	r.Handle("/api/admin/timeseries/counts", only(http.MethodGet, h.TimeSeries))
	r.Handle("/api/admin/timeseries/locations", only(http.MethodGet, h.LocationSeries))
	r.Handle("/api/admin/timeseries/patterns", only(http.MethodGet, h.Patterns))
	r.Handle("/api/admin/timeseries/comparison", only(http.MethodGet, h.Comparison))
	r.Handle("/api/admin/timeseries/trends", only(http.MethodGet, h.Trends))

	r.Handle("/api/admin/data/raw", only(http.MethodGet, h.RawData))
	r.Handle("/api/admin/history/", only(http.MethodGet, h.History))
	r.Handle("/api/admin/locations/provincias", only(http.MethodGet, h.Provincias))
	r.Handle("/api/admin/locations/comunidades", only(http.MethodGet, h.Comunidades))
	r.Handle("/api/admin/export", only(http.MethodGet, h.Export))
}
