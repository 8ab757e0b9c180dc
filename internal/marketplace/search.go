package marketplace

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
)

// Text-search configs accepted for the lang parameter. The value is always
// bound as a parameter, never interpolated; this list only rejects configs
// Postgres does not ship.
var searchLanguages = map[string]bool{
	"simple": true, "english": true, "portuguese": true, "spanish": true,
	"french": true, "german": true, "italian": true, "dutch": true, "russian": true,
}

type searchParams struct {
	Query              string
	Lang               string
	IncludeDescription bool
	Category           string
	ServiceType        string
	MygMin             *int
	MygMax             *int
	DateMin            *time.Time
	DateMax            *time.Time
	Limit              int
}

// buildSearchQuery renders the full-text search statement. Relevance ranking
// is Postgres ts_rank over title (and description when enabled); only active
// services are candidates.
func buildSearchQuery(p searchParams) (string, []any) {
	vector := `to_tsvector($1::regconfig, s.title)`
	if p.IncludeDescription {
		vector = `to_tsvector($1::regconfig, s.title || ' ' || s.description)`
	}

	args := []any{p.Lang, p.Query}
	var sb strings.Builder
	sb.WriteString(`SELECT` + serviceColumns + serviceJoins)
	sb.WriteString(`WHERE s.deleted = FALSE AND ` + vector + ` @@ plainto_tsquery($1::regconfig, $2)`)

	cond := func(clause string, arg any) {
		args = append(args, arg)
		sb.WriteString(fmt.Sprintf(" AND "+clause, len(args)))
	}
	if p.Category != "" {
		cond("s.category = $%d", p.Category)
	}
	if p.ServiceType != "" {
		cond("s.service_type = $%d", p.ServiceType)
	}
	if p.MygMin != nil {
		cond("s.mygrant_value >= $%d", *p.MygMin)
	}
	if p.MygMax != nil {
		cond("s.mygrant_value <= $%d", *p.MygMax)
	}
	if p.DateMin != nil {
		cond("s.date_created >= $%d", *p.DateMin)
	}
	if p.DateMax != nil {
		cond("s.date_created <= $%d", *p.DateMax)
	}

	args = append(args, p.Limit)
	sb.WriteString(fmt.Sprintf(
		" ORDER BY ts_rank(%s, plainto_tsquery($1::regconfig, $2)) DESC LIMIT $%d",
		vector, len(args)))

	return sb.String(), args
}

func parseSearchDate(v string) (*time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date: %s", v)
}

// SearchServices matches active services against the query text.
// GET /services/search?q=...&lang=...&desc=yes|no&cat=...&type=...&mygmin=&mygmax=&datemin=&datemax=&limit=
func SearchServices(c echo.Context) error {
	p := searchParams{
		Lang:               "english",
		IncludeDescription: true,
		Limit:              MaxPageItems,
	}

	p.Query = c.QueryParam("q")
	if p.Query == "" {
		return httperr.BadRequest(c, "query parameter q is required")
	}
	if lang := c.QueryParam("lang"); lang != "" {
		if !searchLanguages[lang] {
			return httperr.BadRequest(c, "unsupported search language")
		}
		p.Lang = lang
	}
	if d := c.QueryParam("desc"); d != "" {
		switch d {
		case "yes":
			p.IncludeDescription = true
		case "no":
			p.IncludeDescription = false
		default:
			return httperr.BadRequest(c, "desc must be yes or no")
		}
	}
	if cat := c.QueryParam("cat"); cat != "" {
		if !ValidCategory(cat) {
			return httperr.BadRequest(c, "unknown category")
		}
		p.Category = cat
	}
	if t := c.QueryParam("type"); t != "" {
		if !ValidServiceType(t) {
			return httperr.BadRequest(c, "type must be PROVIDE or REQUEST")
		}
		p.ServiceType = t
	}
	for param, dst := range map[string]**int{"mygmin": &p.MygMin, "mygmax": &p.MygMax} {
		if v := c.QueryParam(param); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return httperr.BadRequest(c, param+" must be a non-negative integer")
			}
			*dst = &n
		}
	}
	for param, dst := range map[string]**time.Time{"datemin": &p.DateMin, "datemax": &p.DateMax} {
		if v := c.QueryParam(param); v != "" {
			t, err := parseSearchDate(v)
			if err != nil {
				return httperr.BadRequest(c, param+" must be an RFC3339 or YYYY-MM-DD date")
			}
			*dst = t
		}
	}
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= MaxPageItems {
			p.Limit = v
		}
	}

	query, args := buildSearchQuery(p)
	rows, err := db.Conn.Query(c.Request().Context(), query, args...)
	if err != nil {
		return httperr.Internal(c, "search failed")
	}
	defer rows.Close()

	services := []*Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return httperr.Internal(c, "failed to parse service record")
		}
		services = append(services, s)
	}

	return c.JSON(http.StatusOK, echo.Map{"services": services})
}
