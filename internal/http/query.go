package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/aislen404/mapabalizasv16/internal/repository"
	"github.com/aislen404/mapabalizasv16/internal/service"
	"github.com/go-playground/validator/v10"
)

// allValues is the dashboard's "no filter" choice
const allValues = "todas"

const defaultRawLimit = 1000

// filterQuery raw filter query parameters
type filterQuery struct {
	Provincia   string `validate:"omitempty,max=255"`
	Comunidad   string `validate:"omitempty,max=255"`
	Carretera   string `validate:"omitempty,max=255"`
	Status      string `validate:"omitempty,oneof=active lost todas"`
	FechaInicio string `validate:"omitempty"`
	FechaFin    string `validate:"omitempty"`
}

// pageQuery raw pagination parameters
type pageQuery struct {
	Limit  int `validate:"min=1,max=10000"`
	Offset int `validate:"min=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", service.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// parseFilters reads provincia, comunidad, carretera, status, fecha_inicio and fecha_fin
func parseFilters(r *http.Request) (repository.Filters, error) {
	q := r.URL.Query()
	raw := filterQuery{
		Provincia:   strings.TrimSpace(q.Get("provincia")),
		Comunidad:   strings.TrimSpace(q.Get("comunidad")),
		Carretera:   strings.TrimSpace(q.Get("carretera")),
		Status:      strings.TrimSpace(q.Get("status")),
		FechaInicio: strings.TrimSpace(q.Get("fecha_inicio")),
		FechaFin:    strings.TrimSpace(q.Get("fecha_fin")),
	}
	if err := validate.Struct(raw); err != nil {
		return repository.Filters{}, invalid("%v", err)
	}

	var f repository.Filters
	f.Provincia = selection(raw.Provincia)
	f.Comunidad = selection(raw.Comunidad)
	if raw.Carretera != "" {
		f.Carretera = &raw.Carretera
	}
	if s := selection(raw.Status); s != nil {
		st := domain.Status(*s)
		f.Status = &st
	}

	if raw.FechaInicio != "" {
		t, err := parseDate(raw.FechaInicio, false)
		if err != nil {
			return repository.Filters{}, invalid("fecha_inicio: %v", err)
		}
		f.StartDate = &t
	}
	if raw.FechaFin != "" {
		t, err := parseDate(raw.FechaFin, true)
		if err != nil {
			return repository.Filters{}, invalid("fecha_fin: %v", err)
		}
		f.EndDate = &t
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return repository.Filters{}, invalid("fecha_inicio is after fecha_fin")
	}
	return f, nil
}

// selection maps "" and "todas" to no filter
func selection(v string) *string {
	if v == "" || strings.EqualFold(v, allValues) {
		return nil
	}
	return &v
}

// parseDate accepts RFC3339 or YYYY-MM-DD; a bare date used as an end bound covers the whole day
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC3339 or YYYY-MM-DD, got %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return t, nil
}

// parsePage reads limit and offset
func parsePage(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	p := pageQuery{Limit: defaultRawLimit}
	if v := q.Get("limit"); v != "" {
		if p.Limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, invalid("limit %q is not a number", v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if p.Offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, invalid("offset %q is not a number", v)
		}
	}
	if err := validate.Struct(p); err != nil {
		return 0, 0, invalid("%v", err)
	}
	return p.Limit, p.Offset, nil
}

func parseGranularity(r *http.Request, def repository.Granularity) (repository.Granularity, error) {
	g, err := repository.ParseGranularity(r.URL.Query().Get("agrupacion"), def)
	if err != nil {
		return "", fmt.Errorf("%w: %v", service.ErrInvalidArgument, err)
	}
	return g, nil
}
