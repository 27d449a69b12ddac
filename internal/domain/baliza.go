// Package domain holds the canonical beacon types shared by the feed, storage and analytics layers.
package domain

import "time"

// NotAvailable marks a descriptive field the source did not provide
const NotAvailable = "N/A"

// Status beacon state
type Status string

const (
	StatusActive Status = "active"
	StatusLost   Status = "lost"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusLost
}

// ChangeType history entry tag
type ChangeType string

const (
	ChangeNew          ChangeType = "new"
	ChangeStatusChange ChangeType = "status_change"
	ChangeInfoUpdate   ChangeType = "info_update"
)

// Baliza is a normalized beacon report as produced by the feed
type Baliza struct {
	ID          string    `json:"id" validate:"required"`
	Lat         float64   `json:"lat" validate:"required,latitude"`
	Lon         float64   `json:"lon" validate:"required,longitude"`
	Status      Status    `json:"status" validate:"required,oneof=active lost"`
	Carretera   string    `json:"carretera"`
	PK          string    `json:"pk"`
	Sentido     string    `json:"sentido"`
	Orientacion string    `json:"orientacion"`
	FirstSeen   time.Time `json:"firstSeen,omitzero"`
	LastSeen    time.Time `json:"lastSeen,omitzero"`
	Comunidad   string    `json:"comunidad"`
	Provincia   string    `json:"provincia"`
	Municipio   string    `json:"municipio"`
}

// ApplyDefaults fills empty fields with the values consumers expect
func (b *Baliza) ApplyDefaults() {
	if b.Status == "" {
		b.Status = StatusActive
	}
	for _, f := range []*string{&b.Carretera, &b.PK, &b.Sentido, &b.Orientacion, &b.Comunidad, &b.Provincia, &b.Municipio} {
		if *f == "" {
			*f = NotAvailable
		}
	}
}

// StoredBaliza is the current-state row of a beacon
type StoredBaliza struct {
	ID          string     `json:"id"`
	Lat         float64    `json:"lat"`
	Lon         float64    `json:"lon"`
	Status      Status     `json:"status"`
	Carretera   string     `json:"carretera"`
	PK          string     `json:"pk"`
	Sentido     string     `json:"sentido"`
	Orientacion string     `json:"orientacion"`
	Comunidad   string     `json:"comunidad"`
	Provincia   string     `json:"provincia"`
	Municipio   string     `json:"municipio"`
	FirstSeen   *time.Time `json:"first_seen"`
	LastSeen    *time.Time `json:"last_seen"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// HistoryEntry is one append-only audit row
type HistoryEntry struct {
	Seq         int64      `json:"id"`
	BalizaID    string     `json:"baliza_id"`
	Status      Status     `json:"status"`
	Lat         float64    `json:"lat"`
	Lon         float64    `json:"lon"`
	Carretera   string     `json:"carretera"`
	PK          string     `json:"pk"`
	Sentido     string     `json:"sentido"`
	Orientacion string     `json:"orientacion"`
	Comunidad   string     `json:"comunidad"`
	Provincia   string     `json:"provincia"`
	Municipio   string     `json:"municipio"`
	ChangedAt   time.Time  `json:"changed_at"`
	ChangeType  ChangeType `json:"change_type"`
}
