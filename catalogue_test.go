package main

import (
	"strings"
	"testing"
)

func TestCatalogueLookups(t *testing.T) {
	cat := testCatalogue()

	m, ok := cat.LookupByID(157336)
	if !ok {
		t.Fatal("expected LookupByID to find Interstellar")
	}
	if m.Title != "Interstellar" {
		t.Fatalf("unexpected title: %q", m.Title)
	}

	if _, ok := cat.LookupByID(999999); ok {
		t.Fatal("expected LookupByID miss for unknown id")
	}

	m, ok = cat.LookupByTitleExact("the dark knight")
	if !ok {
		t.Fatal("expected case-insensitive exact title lookup to succeed")
	}
	if m.MovieID != 155 {
		t.Fatalf("unexpected movie_id: %d", m.MovieID)
	}

	if _, ok := cat.LookupByTitleExact("dark knight"); ok {
		t.Fatal("exact lookup must not match partial titles")
	}
}

func TestCatalogueDuplicateTitleKeepsFirstRow(t *testing.T) {
	cat := NewCatalogue([]Movie{
		{MovieID: 10, Title: "Twin", Tags: "a"},
		{MovieID: 20, Title: "Twin", Tags: "b"},
	})
	m, ok := cat.LookupByTitleExact("Twin")
	if !ok {
		t.Fatal("expected duplicate title lookup to succeed")
	}
	if m.MovieID != 10 {
		t.Fatalf("expected first row's movie_id=10, got %d", m.MovieID)
	}
}

func TestCatalogueTagTextsRowOrder(t *testing.T) {
	cat := testCatalogue()
	tags := cat.TagTexts()
	if len(tags) != cat.Len() {
		t.Fatalf("expected %d tag blobs, got %d", cat.Len(), len(tags))
	}
	for i, want := range cat.Entries() {
		if tags[i] != want.Tags {
			t.Fatalf("tag blob %d out of row order", i)
		}
	}
}

func TestLoadCatalogue(t *testing.T) {
	db := newTestDB(t)
	movies := []Movie{
		{MovieID: 1, Title: "A", Tags: "action hero"},
		{MovieID: 2, Title: "B", Tags: "romance story"},
	}
	if _, err := InsertMovies(db, movies); err != nil {
		t.Fatalf("InsertMovies failed: %v", err)
	}

	cat, err := LoadCatalogue(db)
	if err != nil {
		t.Fatalf("LoadCatalogue failed: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cat.Len())
	}
	if cat.Entry(0).MovieID != 1 || cat.Entry(1).MovieID != 2 {
		t.Fatal("entries not in insertion row order")
	}
}

func TestLoadCatalogueEmptyTableFails(t *testing.T) {
	db := newTestDB(t)
	_, err := LoadCatalogue(db)
	if err == nil {
		t.Fatal("expected error for empty movies table")
	}
	if !strings.Contains(err.Error(), "empty") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadCatalogueMissingTitleFails(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.Exec(`INSERT INTO movies (movie_id, title, tags) VALUES (1, '', 'action')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := LoadCatalogue(db); err == nil {
		t.Fatal("expected error for record missing title")
	}
}
