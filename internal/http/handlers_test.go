package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/aislen404/mapabalizasv16/internal/feed"
	"github.com/aislen404/mapabalizasv16/internal/repository"
	"github.com/aislen404/mapabalizasv16/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var handlerNow = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

func setupRouter(t *testing.T) (*Router, *MockBalizaService, *MockAnalyticsService) {
	t.Helper()
	balizas := new(MockBalizaService)
	analytics := new(MockAnalyticsService)

	bh := NewBalizaHandler(balizas, zap.NewNop())
	bh.now = func() time.Time { return handlerNow }
	ah := NewAdminHandler(balizas, analytics, 10000, zap.NewNop())
	ah.now = func() time.Time { return handlerNow }

	r := NewRouter(zap.NewNop())
	r.RegisterBalizaRoutes(bh)
	r.RegisterAdminRoutes(ah)
	return r, balizas, analytics
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGetBalizas(t *testing.T) {
	r, balizas, _ := setupRouter(t)
	balizas.On("Current", mock.Anything).Return(feed.Snapshot{
		Balizas: []domain.Baliza{{ID: "1", Lat: 40.4, Lon: -3.7, Status: domain.StatusActive}},
		Source:  "datex2",
	})

	rec := do(r, http.MethodGet, "/api/v16")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	list := body["balizas"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "1", list[0].(map[string]any)["id"])
	assert.NotContains(t, body, "Source")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGetBalizas_WrongMethod(t *testing.T) {
	r, _, _ := setupRouter(t)

	rec := do(r, http.MethodPost, "/api/v16")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestPreflight(t *testing.T) {
	r, _, _ := setupRouter(t)

	rec := do(r, http.MethodOptions, "/api/admin/stats/general")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRefresh(t *testing.T) {
	r, balizas, _ := setupRouter(t)
	balizas.On("Refresh", mock.Anything).Return(feed.Snapshot{Balizas: feed.ExampleBalizas(handlerNow), Fallback: true})

	rec := do(r, http.MethodPost, "/api/v16/refresh")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Cache actualizado", body["message"])
	assert.Equal(t, float64(2), body["count"])
}

func TestHealth(t *testing.T) {
	t.Run("empty cache", func(t *testing.T) {
		r, balizas, _ := setupRouter(t)
		balizas.On("CacheAge", mock.Anything).Return(time.Duration(0), false)

		body := decode(t, do(r, http.MethodGet, "/health"))

		assert.Equal(t, "ok", body["status"])
		assert.Nil(t, body["cacheAge"])
		assert.Equal(t, "2025-02-03T04:05:06Z", body["timestamp"])
	})

	t.Run("warm cache", func(t *testing.T) {
		r, balizas, _ := setupRouter(t)
		balizas.On("CacheAge", mock.Anything).Return(1500*time.Millisecond, true)

		body := decode(t, do(r, http.MethodGet, "/health"))

		assert.Equal(t, float64(1500), body["cacheAge"])
	})
}

func TestSave(t *testing.T) {
	r, balizas, _ := setupRouter(t)
	balizas.On("SaveNow", mock.Anything).Return(service.SaveOutcome{
		SaveResult: repository.SaveResult{Saved: 2, Updated: 1, Errors: 1, Total: 4},
	}, nil)

	rec := do(r, http.MethodPost, "/api/admin/save")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["saved"])
	assert.Equal(t, float64(1), body["updated"])
	assert.Equal(t, float64(1), body["errors"])
	assert.Equal(t, float64(4), body["total"])
}

func TestSave_StorageUnavailable(t *testing.T) {
	r, balizas, _ := setupRouter(t)
	balizas.On("SaveNow", mock.Anything).
		Return(service.SaveOutcome{}, fmt.Errorf("%w: persistence disabled", repository.ErrStorageUnavailable))

	rec := do(r, http.MethodPost, "/api/admin/save")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Error al guardar datos", body["error"])
}

func TestGeneralStats_FilterConventions(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("GeneralStats", mock.Anything, mock.MatchedBy(func(f repository.Filters) bool {
		return f.Provincia == nil && f.Status == nil &&
			f.Comunidad != nil && *f.Comunidad == "Galicia" &&
			f.Carretera != nil && *f.Carretera == "ag-5" &&
			f.StartDate != nil && f.StartDate.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) &&
			f.EndDate != nil && f.EndDate.Equal(time.Date(2025, 1, 31, 23, 59, 59, 999000000, time.UTC))
	})).Return(repository.GeneralStats{}, nil)

	rec := do(r, http.MethodGet,
		"/api/admin/stats/general?provincia=todas&status=todas&comunidad=Galicia&carretera=ag-5&fecha_inicio=2025-01-01&fecha_fin=2025-01-31")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	for _, k := range []string{"total", "activas", "perdidas", "provincias", "comunidades", "carreteras"} {
		assert.Equal(t, float64(0), body[k], k)
	}
	analytics.AssertExpectations(t)
}

func TestGeneralStats_InvalidStatus(t *testing.T) {
	r, _, analytics := setupRouter(t)

	rec := do(r, http.MethodGet, "/api/admin/stats/general?status=broken")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	analytics.AssertNotCalled(t, "GeneralStats", mock.Anything, mock.Anything)
}

func TestGeneralStats_InvalidDateRange(t *testing.T) {
	r, _, _ := setupRouter(t)

	assert.Equal(t, http.StatusBadRequest,
		do(r, http.MethodGet, "/api/admin/stats/general?fecha_inicio=yesterday").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(r, http.MethodGet, "/api/admin/stats/general?fecha_inicio=2025-02-01&fecha_fin=2025-01-01").Code)
}

func TestGeneralStats_QueryError(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("GeneralStats", mock.Anything, mock.Anything).Return(repository.GeneralStats{}, fmt.Errorf("syntax error"))

	rec := do(r, http.MethodGet, "/api/admin/stats/general")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "syntax error", decode(t, rec)["message"])
}

func TestTimeSeries_DefaultsAndShape(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("TimeSeries", mock.Anything, repository.GranularityHour, repository.Filters{}).
		Return([]repository.Bucket{}, nil)

	rec := do(r, http.MethodGet, "/api/admin/timeseries/counts")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"agrupacion":"hour","data":[]}`, rec.Body.String())
}

func TestTimeSeries_UnknownGranularity(t *testing.T) {
	r, _, _ := setupRouter(t)

	rec := do(r, http.MethodGet, "/api/admin/timeseries/counts?agrupacion=year")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccumulated_DefaultsToDay(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("Accumulated", mock.Anything, repository.GranularityDay, repository.Filters{}).
		Return([]service.AccumulatedBucket{{AcumuladoTotal: 3}}, nil)

	rec := do(r, http.MethodGet, "/api/admin/stats/accumulated")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "day", body["agrupacion"])
	data := body["data"].([]any)
	assert.Equal(t, float64(3), data[0].(map[string]any)["acumulado_total"])
}

func TestLocationSeries(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("LocationSeries", mock.Anything, repository.GranularityWeek, service.LocationComunidad, repository.Filters{}).
		Return(service.LocationSeries{Series: []repository.Bucket{}, Locations: []repository.ComunidadStats{{Comunidad: "Aragón"}}}, nil)

	rec := do(r, http.MethodGet, "/api/admin/timeseries/locations?agrupacion=week&tipo=comunidad")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "comunidad", body["tipo"])
	assert.Len(t, body["locations"], 1)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/admin/timeseries/locations?tipo=municipio").Code)
}

func TestPatterns(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("Patterns", mock.Anything, repository.PatternDayOfWeek, repository.Filters{}).
		Return(service.Pattern{Tipo: repository.PatternDayOfWeek, Labels: service.PatternLabels(repository.PatternDayOfWeek), Data: make([]int64, 7)}, nil)

	rec := do(r, http.MethodGet, "/api/admin/timeseries/patterns")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["data"], 7)
	assert.Equal(t, "Sábado", body["labels"].([]any)[6])
}

func TestPatterns_InvalidTipo(t *testing.T) {
	r, _, analytics := setupRouter(t)

	rec := do(r, http.MethodGet, "/api/admin/timeseries/patterns?tipo=month-of-year")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Tipo de patrón no válido", decode(t, rec)["error"])
	analytics.AssertNotCalled(t, "Patterns", mock.Anything, mock.Anything, mock.Anything)
}

func TestComparison(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("Comparison", mock.Anything, repository.GranularityDay, service.CompareLastYear, repository.Filters{}).
		Return(service.Comparison{Current: []repository.Bucket{{Total: 1}}, Comparison: []repository.Bucket{}}, nil)

	rec := do(r, http.MethodGet, "/api/admin/timeseries/comparison?comparison_type=last-year")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "last-year", body["comparison_type"])
	assert.Len(t, body["current"], 1)
	assert.Len(t, body["comparison"], 0)

	bad := do(r, http.MethodGet, "/api/admin/timeseries/comparison?comparison_type=next-year")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestTrends(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("Trends", mock.Anything, repository.Filters{}).
		Return(service.Trends{Total: service.TrendValue{First: 2, Last: 3, Change: 50}}, nil)

	rec := do(r, http.MethodGet, "/api/admin/timeseries/trends")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, map[string]any{"first": float64(2), "last": float64(3), "change": float64(50)}, body["total"])
	assert.Contains(t, body, "perdidas")
}

func TestRawData_Pagination(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("RawData", mock.Anything, repository.Filters{}, 1000, 0).
		Return(repository.RawPage{Data: []domain.StoredBaliza{}, Limit: 1000}, nil)
	analytics.On("RawData", mock.Anything, repository.Filters{}, 50, 100).
		Return(repository.RawPage{Data: []domain.StoredBaliza{}, Total: 120, Limit: 50, Offset: 100}, nil)

	rec := do(r, http.MethodGet, "/api/admin/data/raw")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"total":0,"limit":1000,"offset":0}`, rec.Body.String())

	rec = do(r, http.MethodGet, "/api/admin/data/raw?limit=50&offset=100")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(120), decode(t, rec)["total"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/admin/data/raw?limit=20000").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/admin/data/raw?offset=-1").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/admin/data/raw?limit=abc").Code)
}

func TestHistory(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("History", mock.Anything, "GUID_123", 100).
		Return([]domain.HistoryEntry{{Seq: 1, BalizaID: "GUID_123", ChangeType: domain.ChangeNew}}, nil)

	rec := do(r, http.MethodGet, "/api/admin/history/GUID_123")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "GUID_123", body["balizaId"])
	assert.Len(t, body["history"], 1)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/admin/history/").Code)
}

func TestLocations(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("Provincias", mock.Anything, mock.MatchedBy(func(f repository.Filters) bool {
		return f.Comunidad != nil && *f.Comunidad == "Andalucía"
	})).Return([]string{"Cádiz", "Sevilla"}, nil)
	analytics.On("Comunidades", mock.Anything, repository.Filters{}).Return([]string{}, nil)

	rec := do(r, http.MethodGet, "/api/admin/locations/provincias?comunidad=Andaluc%C3%ADa")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["Cádiz","Sevilla"]`, rec.Body.String())

	rec = do(r, http.MethodGet, "/api/admin/locations/comunidades")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func exportFixture() []domain.StoredBaliza {
	seen := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return []domain.StoredBaliza{{
		ID: "1", Lat: 40.4168, Lon: -3.7038, Status: domain.StatusActive,
		Carretera: "A-1", PK: "12.5", Comunidad: "Madrid", Provincia: "Madrid", Municipio: "Alcobendas",
		LastSeen: &seen,
	}}
}

func TestExport_JSON(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("Export", mock.Anything, repository.Filters{}, 10000).Return(exportFixture(), nil)

	rec := do(r, http.MethodGet, "/api/admin/export")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprintf(`attachment; filename="balizas-%d.json"`, handlerNow.UnixMilli()),
		rec.Header().Get("Content-Disposition"))
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "A-1", rows[0]["carretera"])
	assert.Nil(t, rows[0]["first_seen"])
}

func TestExport_CSV(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("Export", mock.Anything, repository.Filters{}, 10000).Return(exportFixture(), nil)

	rec := do(r, http.MethodGet, "/api/admin/export?format=csv")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasSuffix(rec.Header().Get("Content-Disposition"), `.csv"`))
	body := rec.Body.Bytes()
	require.True(t, bytes.HasPrefix(body, utf8BOM))
	lines := strings.Split(strings.TrimSpace(string(body[len(utf8BOM):])), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,latitud,longitud,estado,carretera,pk"))
	assert.Contains(t, lines[1], "1,40.4168,-3.7038,active,A-1,12.5")
	assert.Contains(t, lines[1], "2025-01-02T03:04:05Z")
}

func TestExport_CSVEmptyHasHeader(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("Export", mock.Anything, repository.Filters{}, 10000).Return([]domain.StoredBaliza{}, nil)

	rec := do(r, http.MethodGet, "/api/admin/export?format=csv")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "id,latitud,longitud")
}

func TestExport_XLSX(t *testing.T) {
	r, _, analytics := setupRouter(t)
	analytics.On("Export", mock.Anything, repository.Filters{}, 10000).Return(exportFixture(), nil)

	rec := do(r, http.MethodGet, "/api/admin/export?format=xlsx")

	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("Balizas", "A1")
	require.NoError(t, err)
	assert.Equal(t, "ID", header)
	carretera, err := f.GetCellValue("Balizas", "E2")
	require.NoError(t, err)
	assert.Equal(t, "A-1", carretera)
}

func TestExport_UnknownFormat(t *testing.T) {
	r, _, _ := setupRouter(t)

	rec := do(r, http.MethodGet, "/api/admin/export?format=pdf")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
