package feed

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
)

const (
	causeVehicleObstruction = "vehicleObstruction"
	obstructionVehicleStuck = "vehicleStuck"
)

// accessor reads one candidate value for a field from a record's locationReference
type accessor func(loc *Node) string

// coordAccessor reads one candidate coordinate pair from a record's locationReference
type coordAccessor func(loc *Node) (lat, lon float64, ok bool)

func at(path ...string) accessor {
	return func(loc *Node) string { return loc.Path(path...).Value() }
}

func pointExtension(field string) accessor {
	return at("tpegPointLocation", "point", "_tpegNonJunctionPointExtension", "extendedTpegNonJunctionPoint", field)
}

func linearExtension(field string) accessor {
	return at("tpegLinearLocation", "from", "_tpegNonJunctionPointExtension", "extendedTpegNonJunctionPoint", field)
}

func coordinatesAt(path ...string) coordAccessor {
	return func(loc *Node) (float64, float64, bool) {
		c := loc.Path(append(path, "pointCoordinates")...)
		if c == nil {
			return 0, 0, false
		}
		lat, latOK := parseCoordinate(c.Child("latitude").Value())
		lon, lonOK := parseCoordinate(c.Child("longitude").Value())
		return lat, lon, latOK && lonOK
	}
}

// Resolution order for each DATEX2 field. The first non-sentinel value wins.
var (
	coordinateChain = []coordAccessor{
		coordinatesAt("tpegPointLocation", "point"),
		coordinatesAt("tpegLinearLocation", "from"),
	}
	roadNameChain = []accessor{
		at("supplementaryPositionalDescription", "roadInformation", "roadName"),
	}
	kilometerPointChain = []accessor{pointExtension("kilometerPoint"), linearExtension("kilometerPoint")}
	comunidadChain      = []accessor{pointExtension("autonomousCommunity"), linearExtension("autonomousCommunity")}
	provinciaChain      = []accessor{pointExtension("province"), linearExtension("province")}
	municipioChain      = []accessor{pointExtension("municipality"), linearExtension("municipality")}
	directionChain      = []accessor{at("tpegPointLocation", "tpegDirection"), at("tpegLinearLocation", "tpegDirection")}
)

// resolve tries chain in order and never lets a sentinel replace a real value
func resolve(loc *Node, chain []accessor) string {
	for _, get := range chain {
		if v := get(loc); v != "" && v != domain.NotAvailable {
			return v
		}
	}
	return domain.NotAvailable
}

func resolveCoordinates(loc *Node) (float64, float64, bool) {
	for _, get := range coordinateChain {
		if lat, lon, ok := get(loc); ok {
			return lat, lon, true
		}
	}
	return 0, 0, false
}

func extractDatex2(doc *Node, now time.Time) []domain.Baliza {
	payload := doc.Child("payload")
	if payload == nil {
		payload = doc.Path("d2LogicalModel", "payloadPublication")
	}
	if payload == nil {
		return nil
	}

	var out []domain.Baliza
	for _, situation := range payload.All("situation") {
		for _, record := range situation.All("situationRecord") {
			if !isStrandedVehicle(record) {
				continue
			}
			if b, ok := datex2Record(situation, record, now); ok {
				out = append(out, b)
			}
		}
	}
	return out
}

func isStrandedVehicle(record *Node) bool {
	cause := record.Child("cause")
	return cause.Child("causeType").Value() == causeVehicleObstruction &&
		cause.Path("detailedCauseType", "vehicleObstructionType").Value() == obstructionVehicleStuck
}

func datex2Record(situation, record *Node, now time.Time) (domain.Baliza, bool) {
	loc := record.Child("locationReference")
	lat, lon, ok := resolveCoordinates(loc)
	if !ok {
		return domain.Baliza{}, false
	}

	creation, hasCreation := parseTimestamp(record.Child("situationRecordCreationTime").Value())
	if !hasCreation {
		creation = now
	}
	lastSeen, ok := parseTimestamp(record.Child("situationRecordVersionTime").Value())
	if !ok {
		lastSeen = creation
	}
	firstSeen, ok := parseTimestamp(record.Path("validity", "validityTimeSpecification", "overallStartTime").Value())
	if !ok {
		firstSeen = creation
	}

	direction := resolve(loc, directionChain)

	return domain.Baliza{
		ID:          datex2ID(situation, record, lat, lon),
		Lat:         lat,
		Lon:         lon,
		Status:      domain.StatusActive,
		Carretera:   resolve(loc, roadNameChain),
		PK:          resolve(loc, kilometerPointChain),
		Sentido:     direction,
		Orientacion: direction,
		FirstSeen:   firstSeen,
		LastSeen:    lastSeen,
		Comunidad:   resolve(loc, comunidadChain),
		Provincia:   resolve(loc, provinciaChain),
		Municipio:   resolve(loc, municipioChain),
	}, true
}

// datex2ID prefers the situation identity so a beacon keeps its id across record versions
func datex2ID(situation, record *Node, lat, lon float64) string {
	for _, id := range []string{
		situation.Attr("id"),
		situation.Child("id").Value(),
		record.Attr("id"),
		record.Child("id").Value(),
	} {
		if id != "" {
			return id
		}
	}
	return coordinateKey(lat, lon)
}

func coordinateKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "-" + strconv.FormatFloat(lon, 'f', -1, 64)
}

// parseCoordinate accepts a decimal string and rejects zero, NaN and Inf
func parseCoordinate(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
