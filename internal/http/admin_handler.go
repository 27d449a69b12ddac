package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/repository"
	"github.com/aislen404/mapabalizasv16/internal/service"
	"go.uber.org/zap"
)

// AdminHandler persistence and analytics routes
type AdminHandler struct {
	balizas     service.BalizaService
	analytics   service.AnalyticsService
	exportLimit int
	logger      *zap.Logger
	now         func() time.Time
}

func NewAdminHandler(balizas service.BalizaService, analytics service.AnalyticsService, exportLimit int, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		balizas:     balizas,
		analytics:   analytics,
		exportLimit: exportLimit,
		logger:      logger,
		now:         time.Now,
	}
}

// fail logs and writes err with the status it maps to
func (h *AdminHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	writeError(w, status, msg, err)
}

// Save POST /api/admin/save
func (h *AdminHandler) Save(w http.ResponseWriter, r *http.Request) {
	out, err := h.balizas.SaveNow(r.Context())
	if err != nil {
		h.fail(w, "Error al guardar datos", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Datos guardados exitosamente",
		"saved":    out.Saved,
		"updated":  out.Updated,
		"errors":   out.Errors,
		"total":    out.Total,
		"fallback": out.Fallback,
	})
}

// GeneralStats GET /api/admin/stats/general
func (h *AdminHandler) GeneralStats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.fail(w, "Filtros no válidos", err)
		return
	}
	stats, err := h.analytics.GeneralStats(r.Context(), f)
	if err != nil {
		h.fail(w, "Error al obtener estadísticas", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// StatsByLocation GET /api/admin/stats/by-location
func (h *AdminHandler) StatsByLocation(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.fail(w, "Filtros no válidos", err)
		return
	}
	stats, err := h.analytics.StatsByLocation(r.Context(), f)
	if err != nil {
		h.fail(w, "Error al obtener estadísticas por ubicación", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type seriesResponse struct {
	Agrupacion repository.Granularity `json:"agrupacion"`
	Data       any                    `json:"data"`
}

// Accumulated GET /api/admin/stats/accumulated
func (h *AdminHandler) Accumulated(w http.ResponseWriter, r *http.Request) {
	g, f, err := granularityAndFilters(r, repository.GranularityDay)
	if err != nil {
		h.fail(w, "Parámetros no válidos", err)
		return
	}
	data, err := h.analytics.Accumulated(r.Context(), g, f)
	if err != nil {
		h.fail(w, "Error al obtener estadísticas acumuladas", err)
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{Agrupacion: g, Data: data})
}

// TimeSeries GET /api/admin/timeseries/counts
func (h *AdminHandler) TimeSeries(w http.ResponseWriter, r *http.Request) {
	g, f, err := granularityAndFilters(r, repository.GranularityHour)
	if err != nil {
		h.fail(w, "Parámetros no válidos", err)
		return
	}
	data, err := h.analytics.TimeSeries(r.Context(), g, f)
	if err != nil {
		h.fail(w, "Error al obtener series temporales", err)
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{Agrupacion: g, Data: data})
}

// LocationSeries GET /api/admin/timeseries/locations
func (h *AdminHandler) LocationSeries(w http.ResponseWriter, r *http.Request) {
	g, f, err := granularityAndFilters(r, repository.GranularityDay)
	if err != nil {
		h.fail(w, "Parámetros no válidos", err)
		return
	}
	kind, err := service.ParseLocationKind(r.URL.Query().Get("tipo"))
	if err != nil {
		h.fail(w, "Parámetros no válidos", err)
		return
	}
	out, err := h.analytics.LocationSeries(r.Context(), g, kind, f)
	if err != nil {
		h.fail(w, "Error al obtener series por ubicación", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agrupacion": g,
		"tipo":       kind,
		"series":     out.Series,
		"locations":  out.Locations,
	})
}

// Patterns GET /api/admin/timeseries/patterns
func (h *AdminHandler) Patterns(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.fail(w, "Filtros no válidos", err)
		return
	}
	kind, err := repository.ParsePatternKind(r.URL.Query().Get("tipo"))
	if err != nil {
		h.fail(w, "Tipo de patrón no válido", invalid("%v", err))
		return
	}
	out, err := h.analytics.Patterns(r.Context(), kind, f)
	if err != nil {
		h.fail(w, "Error al obtener patrones temporales", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Comparison GET /api/admin/timeseries/comparison
func (h *AdminHandler) Comparison(w http.ResponseWriter, r *http.Request) {
	g, f, err := granularityAndFilters(r, repository.GranularityDay)
	if err != nil {
		h.fail(w, "Parámetros no válidos", err)
		return
	}
	kind, err := service.ParseComparisonKind(r.URL.Query().Get("comparison_type"))
	if err != nil {
		h.fail(w, "Tipo de comparación no válido", err)
		return
	}
	out, err := h.analytics.Comparison(r.Context(), g, kind, f)
	if err != nil {
		h.fail(w, "Error al obtener comparación", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agrupacion":        g,
		"comparison_type":   kind,
		"current":           out.Current,
		"comparison":        out.Comparison,
		"window":            out.Window,
		"comparison_window": out.Previous,
	})
}

// Trends GET /api/admin/timeseries/trends
func (h *AdminHandler) Trends(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.fail(w, "Filtros no válidos", err)
		return
	}
	out, err := h.analytics.Trends(r.Context(), f)
	if err != nil {
		h.fail(w, "Error al obtener tendencias", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// RawData GET /api/admin/data/raw
func (h *AdminHandler) RawData(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.fail(w, "Filtros no válidos", err)
		return
	}
	limit, offset, err := parsePage(r)
	if err != nil {
		h.fail(w, "Paginación no válida", err)
		return
	}
	page, err := h.analytics.RawData(r.Context(), f, limit, offset)
	if err != nil {
		h.fail(w, "Error al obtener datos", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// History GET /api/admin/history/{balizaId}
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/history/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "Baliza no encontrada", nil)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), repository.DefaultHistoryLimit)
	entries, err := h.analytics.History(r.Context(), id, limit)
	if err != nil {
		h.fail(w, "Error al obtener historial", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balizaId": id,
		"history":  entries,
	})
}

// Provincias GET /api/admin/locations/provincias
func (h *AdminHandler) Provincias(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.fail(w, "Filtros no válidos", err)
		return
	}
	out, err := h.analytics.Provincias(r.Context(), f)
	if err != nil {
		h.fail(w, "Error al obtener provincias", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Comunidades GET /api/admin/locations/comunidades
func (h *AdminHandler) Comunidades(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.fail(w, "Filtros no válidos", err)
		return
	}
	out, err := h.analytics.Comunidades(r.Context(), f)
	if err != nil {
		h.fail(w, "Error al obtener comunidades", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Export GET /api/admin/export?format=json|csv|xlsx
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.fail(w, "Filtros no válidos", err)
		return
	}
	format, err := parseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.fail(w, "Formato no válido", err)
		return
	}
	rows, err := h.analytics.Export(r.Context(), f, h.exportLimit)
	if err != nil {
		h.fail(w, "Error al exportar datos", err)
		return
	}

	body, err := format.encode(rows)
	if err != nil {
		h.fail(w, "Error al exportar datos", err)
		return
	}
	w.Header().Set("Content-Type", format.contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename(h.now(), format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func granularityAndFilters(r *http.Request, def repository.Granularity) (repository.Granularity, repository.Filters, error) {
	g, err := parseGranularity(r, def)
	if err != nil {
		return "", repository.Filters{}, err
	}
	f, err := parseFilters(r)
	if err != nil {
		return "", repository.Filters{}, err
	}
	return g, f, nil
}
