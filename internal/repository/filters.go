package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
)

// Filters conjunctive filter set shared by every read; nil fields are not applied
type Filters struct {
	Provincia *string
	Comunidad *string
	Carretera *string // case-insensitive substring
	Status    *domain.Status
	StartDate *time.Time
	EndDate   *time.Time
}

// Time columns the date range applies to
const (
	balizasTimeColumn = "last_seen"
	historyTimeColumn = "changed_at"
)

// predicate is a list of WHERE clauses with their positional arguments
type predicate struct {
	clauses []string
	args    []interface{}
}

// bind appends v and returns its placeholder
func (p *predicate) bind(v interface{}) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

// add appends a clause whose single %s is replaced by the placeholder for v
func (p *predicate) add(clause string, v interface{}) {
	p.clauses = append(p.clauses, fmt.Sprintf(clause, p.bind(v)))
}

// addFixed appends a clause without arguments
func (p *predicate) addFixed(clause string) {
	p.clauses = append(p.clauses, clause)
}

// where renders the WHERE clause, or "" when nothing was added
func (p *predicate) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(p.clauses, " AND ")
}

// filterPredicate builds the filter set against a table whose timestamp is timeColumn
func filterPredicate(f Filters, timeColumn string) *predicate {
	p := &predicate{}
	p.apply(f, timeColumn)
	return p
}

// apply appends the filter set after any clauses already in p
func (p *predicate) apply(f Filters, timeColumn string) {
	if f.Provincia != nil {
		p.add("provincia = %s", *f.Provincia)
	}
	if f.Comunidad != nil {
		p.add("comunidad = %s", *f.Comunidad)
	}
	if f.Carretera != nil && strings.TrimSpace(*f.Carretera) != "" {
		p.add("carretera ILIKE %s", "%"+escapeLike(strings.TrimSpace(*f.Carretera))+"%")
	}
	if f.Status != nil {
		p.add("status = %s", string(*f.Status))
	}
	if f.StartDate != nil {
		p.add(timeColumn+" >= %s", *f.StartDate)
	}
	if f.EndDate != nil {
		p.add(timeColumn+" <= %s", *f.EndDate)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
