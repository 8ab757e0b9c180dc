package marketplace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchQueryBase(t *testing.T) {
	p := searchParams{Query: "bike repair", Lang: "english", IncludeDescription: true, Limit: 50}
	query, args := buildSearchQuery(p)

	assert.Contains(t, query, "to_tsvector($1::regconfig, s.title || ' ' || s.description)")
	assert.Contains(t, query, "plainto_tsquery($1::regconfig, $2)")
	assert.Contains(t, query, "s.deleted = FALSE")
	assert.Contains(t, query, "ORDER BY ts_rank")
	assert.Contains(t, query, "LIMIT $3")
	require.Len(t, args, 3)
	assert.Equal(t, "english", args[0])
	assert.Equal(t, "bike repair", args[1])
	assert.Equal(t, 50, args[2])
}

func TestBuildSearchQueryTitleOnly(t *testing.T) {
	p := searchParams{Query: "piano", Lang: "simple", Limit: 10}
	query, _ := buildSearchQuery(p)

	assert.Contains(t, query, "to_tsvector($1::regconfig, s.title)")
	assert.NotContains(t, query, "s.description")
}

func TestBuildSearchQueryFilters(t *testing.T) {
	min, max := 1, 5
	dmin := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := searchParams{
		Query:       "lessons",
		Lang:        "english",
		Category:    "EDUCATION",
		ServiceType: TypeProvide,
		MygMin:      &min,
		MygMax:      &max,
		DateMin:     &dmin,
		Limit:       20,
	}
	query, args := buildSearchQuery(p)

	assert.Contains(t, query, "s.category = $3")
	assert.Contains(t, query, "s.service_type = $4")
	assert.Contains(t, query, "s.mygrant_value >= $5")
	assert.Contains(t, query, "s.mygrant_value <= $6")
	assert.Contains(t, query, "s.date_created >= $7")
	assert.Contains(t, query, "LIMIT $8")
	require.Len(t, args, 8)
	assert.Equal(t, "EDUCATION", args[2])
	assert.Equal(t, TypeProvide, args[3])
	assert.Equal(t, 1, args[4])
	assert.Equal(t, 5, args[5])
	assert.Equal(t, dmin, args[6])
	assert.Equal(t, 20, args[7])
}

func TestParseSearchDate(t *testing.T) {
	d, err := parseSearchDate("2026-03-15")
	require.NoError(t, err)
	assert.Equal(t, 2026, d.Year())
	assert.Equal(t, time.March, d.Month())

	d, err = parseSearchDate("2026-03-15T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, d.Hour())

	_, err = parseSearchDate("15/03/2026")
	assert.Error(t, err)
}

func TestSearchLanguageAllowlist(t *testing.T) {
	assert.True(t, searchLanguages["english"])
	assert.True(t, searchLanguages["portuguese"])
	assert.False(t, searchLanguages["klingon"])
	assert.False(t, searchLanguages["english; DROP TABLE services"])
}
