package main

import (
	"database/sql"
	"fmt"
	"strings"
)

// Catalogue is the immutable in-memory movie set. It is built once at startup
// and only ever read afterwards, so concurrent readers need no locking.
type Catalogue struct {
	entries []Movie
	rowByID map[int64]int
	// lowercase title -> first row holding it; duplicate titles keep the
	// earliest row so lookups stay deterministic.
	rowByTitle map[string]int
}

// NewCatalogue builds the lookup indexes over an already-validated entry set.
func NewCatalogue(entries []Movie) *Catalogue {
	c := &Catalogue{
		entries:    entries,
		rowByID:    make(map[int64]int, len(entries)),
		rowByTitle: make(map[string]int, len(entries)),
	}
	for row, m := range entries {
		if _, ok := c.rowByID[m.MovieID]; !ok {
			c.rowByID[m.MovieID] = row
		}
		key := strings.ToLower(m.Title)
		if _, ok := c.rowByTitle[key]; !ok {
			c.rowByTitle[key] = row
		}
	}
	return c
}

// LoadCatalogue reads the movies table into memory once per process lifetime.
// A missing, empty, or malformed record set is fatal: no partial catalogue is
// ever served.
func LoadCatalogue(db *sql.DB) (*Catalogue, error) {
	movies, err := LoadMovies(db)
	if err != nil {
		return nil, fmt.Errorf("loading catalogue: %w", err)
	}
	if len(movies) == 0 {
		return nil, fmt.Errorf("loading catalogue: movies table is empty")
	}
	for i, m := range movies {
		if m.MovieID == 0 {
			return nil, fmt.Errorf("loading catalogue: row %d is missing movie_id", i)
		}
		if m.Title == "" {
			return nil, fmt.Errorf("loading catalogue: row %d (movie_id=%d) is missing title", i, m.MovieID)
		}
	}
	return NewCatalogue(movies), nil
}

func (c *Catalogue) Len() int {
	return len(c.entries)
}

// Entry returns the record at a row index. Callers obtain row indexes from
// the resolver or the similarity engine, both of which stay in range.
func (c *Catalogue) Entry(row int) Movie {
	return c.entries[row]
}

func (c *Catalogue) Entries() []Movie {
	return c.entries
}

func (c *Catalogue) LookupByID(id int64) (Movie, bool) {
	row, ok := c.rowByID[id]
	if !ok {
		return Movie{}, false
	}
	return c.entries[row], true
}

// LookupByTitleExact matches a full title case-insensitively. When several
// entries share the title, the first by catalogue row order wins.
func (c *Catalogue) LookupByTitleExact(title string) (Movie, bool) {
	row, ok := c.rowByTitle[strings.ToLower(title)]
	if !ok {
		return Movie{}, false
	}
	return c.entries[row], true
}

func (c *Catalogue) rowByTitleExact(title string) (int, bool) {
	row, ok := c.rowByTitle[strings.ToLower(title)]
	return row, ok
}

// TagTexts returns the per-row tag blobs in row order, the vectorizer input.
func (c *Catalogue) TagTexts() []string {
	tags := make([]string, len(c.entries))
	for i, m := range c.entries {
		tags[i] = m.Tags
	}
	return tags
}
