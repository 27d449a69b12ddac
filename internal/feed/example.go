package feed

import (
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
)

// ExampleBalizas is the fixed set served while the live feed is unavailable
func ExampleBalizas(now time.Time) []domain.Baliza {
	now = now.UTC()
	return []domain.Baliza{
		{
			ID:          "1",
			Lat:         40.4168,
			Lon:         -3.7038,
			Status:      domain.StatusActive,
			Carretera:   "A-1",
			PK:          "12.5",
			Sentido:     "Madrid",
			Orientacion: "Norte",
			FirstSeen:   now,
			LastSeen:    now,
			Comunidad:   "Comunidad de Madrid",
			Provincia:   "Madrid",
			Municipio:   "Madrid",
		},
		{
			ID:          "2",
			Lat:         41.3851,
			Lon:         2.1734,
			Status:      domain.StatusLost,
			Carretera:   "AP-7",
			PK:          "45.2",
			Sentido:     "Barcelona",
			Orientacion: "Este",
			FirstSeen:   now.Add(-time.Hour),
			LastSeen:    now.Add(-5 * time.Minute),
			Comunidad:   "Cataluña",
			Provincia:   "Barcelona",
			Municipio:   "Barcelona",
		},
	}
}
