package feed

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
)

// keyChain lists alternative spellings of one REST field, most specific first
type keyChain []string

var (
	restIDKeys          = keyChain{"id", "identificador"}
	restLatKeys         = keyChain{"latitud", "lat", "latitude"}
	restLonKeys         = keyChain{"longitud", "lon", "longitude"}
	restCarreteraKeys   = keyChain{"carretera", "via", "road"}
	restPKKeys          = keyChain{"puntoKilometrico", "pk", "km"}
	restSentidoKeys     = keyChain{"sentido", "direction"}
	restOrientacionKeys = keyChain{"orientacion", "orientation"}
	restFirstSeenKeys   = keyChain{"fechaInicio", "firstSeen", "timestamp"}
	restLastSeenKeys    = keyChain{"fechaUltima", "lastSeen", "ultimaActualizacion"}
	restComunidadKeys   = keyChain{"comunidadAutonoma", "comunidad", "region"}
	restProvinciaKeys   = keyChain{"provincia", "province"}
	restMunicipioKeys   = keyChain{"municipio", "municipality"}
)

// text returns the first present, non-empty value as a string
func (c keyChain) text(rec map[string]any) string {
	for _, k := range c {
		if v := scalarString(rec[k]); v != "" {
			return v
		}
	}
	return ""
}

func (c keyChain) textOr(rec map[string]any, def string) string {
	if v := c.text(rec); v != "" {
		return v
	}
	return def
}

// coordinate returns the first key holding a usable non-zero coordinate
func (c keyChain) coordinate(rec map[string]any) (float64, bool) {
	for _, k := range c {
		switch v := rec[k].(type) {
		case float64:
			if v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
				return v, true
			}
		case string:
			if f, ok := parseCoordinate(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// time returns the first key holding a parseable timestamp (RFC 3339 or epoch milliseconds)
func (c keyChain) time(rec map[string]any) (time.Time, bool) {
	for _, k := range c {
		switch v := rec[k].(type) {
		case string:
			if t, ok := parseTimestamp(v); ok {
				return t, true
			}
			if ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && ms > 0 {
				return time.UnixMilli(ms).UTC(), true
			}
		case float64:
			if v > 0 {
				return time.UnixMilli(int64(v)).UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func extractRESTRecords(items []map[string]any, now time.Time) []domain.Baliza {
	out := make([]domain.Baliza, 0, len(items))
	for _, rec := range items {
		if b, ok := restRecord(rec, now); ok {
			out = append(out, b)
		}
	}
	return out
}

func restRecord(rec map[string]any, now time.Time) (domain.Baliza, bool) {
	lat, latOK := restLatKeys.coordinate(rec)
	lon, lonOK := restLonKeys.coordinate(rec)
	if !latOK || !lonOK {
		return domain.Baliza{}, false
	}

	firstSeen, ok := restFirstSeenKeys.time(rec)
	if !ok {
		firstSeen = now
	}
	lastSeen, ok := restLastSeenKeys.time(rec)
	if !ok {
		lastSeen = now
	}

	return domain.Baliza{
		ID:          restIDKeys.textOr(rec, coordinateKey(lat, lon)),
		Lat:         lat,
		Lon:         lon,
		Status:      restStatus(rec),
		Carretera:   restCarreteraKeys.textOr(rec, domain.NotAvailable),
		PK:          restPKKeys.textOr(rec, domain.NotAvailable),
		Sentido:     restSentidoKeys.textOr(rec, domain.NotAvailable),
		Orientacion: restOrientacionKeys.textOr(rec, domain.NotAvailable),
		FirstSeen:   firstSeen,
		LastSeen:    lastSeen,
		Comunidad:   restComunidadKeys.textOr(rec, domain.NotAvailable),
		Provincia:   restProvinciaKeys.textOr(rec, domain.NotAvailable),
		Municipio:   restMunicipioKeys.textOr(rec, domain.NotAvailable),
	}, true
}

// statusAccessor decides active/lost from one representation; ok=false means "not present"
type statusAccessor func(rec map[string]any) (domain.Status, bool)

// statusChain is tried in order: boolean "activa", then "estado", then "status"
var statusChain = []statusAccessor{
	func(rec map[string]any) (domain.Status, bool) {
		switch v := rec["activa"].(type) {
		case bool:
			return boolStatus(v), true
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return boolStatus(b), true
			}
		case float64:
			return boolStatus(v != 0), true
		}
		return "", false
	},
	func(rec map[string]any) (domain.Status, bool) {
		v := strings.ToLower(scalarString(rec["estado"]))
		if v == "" {
			return "", false
		}
		return boolStatus(v == "activa" || v == "activo" || v == "active"), true
	},
	func(rec map[string]any) (domain.Status, bool) {
		switch strings.ToLower(scalarString(rec["status"])) {
		case "active", "activa":
			return domain.StatusActive, true
		case "lost", "perdida", "inactive":
			return domain.StatusLost, true
		}
		return "", false
	},
}

func restStatus(rec map[string]any) domain.Status {
	for _, get := range statusChain {
		if s, ok := get(rec); ok {
			return s
		}
	}
	return domain.StatusActive
}

func boolStatus(active bool) domain.Status {
	if active {
		return domain.StatusActive
	}
	return domain.StatusLost
}
