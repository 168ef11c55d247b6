package story_test

import (
	"reflect"
	"testing"
	"time"

	"storysync/internal/story"
)

var now = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

func TestTransform(t *testing.T) {
	t.Run("fills defaults for an empty record", func(t *testing.T) {
		got := story.Transform(&story.Story{ID: "s1"}, "ignored", now)

		if got.Title != story.DefaultTitle {
			t.Errorf("Title = %q, want %q", got.Title, story.DefaultTitle)
		}
		if got.Description != story.DefaultDescription {
			t.Errorf("Description = %q, want %q", got.Description, story.DefaultDescription)
		}
		if got.Content != story.DefaultContent {
			t.Errorf("Content = %q, want %q", got.Content, story.DefaultContent)
		}
		if got.Image != nil {
			t.Errorf("Image = %q, want nil", *got.Image)
		}
		if got.Author != story.DefaultAuthor {
			t.Errorf("Author = %q, want %q", got.Author, story.DefaultAuthor)
		}
		if got.Date != "2024-01-15T10:30:00Z" {
			t.Errorf("Date = %q, want the clock time", got.Date)
		}
		if got.Location != story.UnknownLocation {
			t.Errorf("Location = %q, want %q", got.Location, story.UnknownLocation)
		}
	})

	t.Run("maps raw api fields", func(t *testing.T) {
		raw := &story.Story{
			ID:          "s1",
			Name:        "Dimas",
			Description: "Sunset at the beach",
			PhotoURL:    "https://example.test/p.jpg",
			CreatedAt:   "2022-01-08T06:34:18.598Z",
			Lat:         ptr(-6.2),
			Lon:         ptr(106.8),
		}

		got := story.Transform(raw, "Jakarta", now)

		if got.Title != "Dimas" {
			t.Errorf("Title = %q, want Dimas", got.Title)
		}
		if got.Content != "Sunset at the beach" {
			t.Errorf("Content = %q, want the description", got.Content)
		}
		if got.Image == nil || *got.Image != raw.PhotoURL {
			t.Errorf("Image = %v, want %q", got.Image, raw.PhotoURL)
		}
		if got.Date != raw.CreatedAt {
			t.Errorf("Date = %q, want createdAt", got.Date)
		}
		if got.Location != "Jakarta" {
			t.Errorf("Location = %q, want Jakarta", got.Location)
		}
		if got.Latitude == nil || *got.Latitude != -6.2 || got.Longitude == nil || *got.Longitude != 106.8 {
			t.Errorf("Latitude/Longitude = %v/%v", got.Latitude, got.Longitude)
		}
	})

	t.Run("location requires both coordinates", func(t *testing.T) {
		got := story.Transform(&story.Story{ID: "s1", Lat: ptr(1)}, "Somewhere", now)
		if got.Location != story.UnknownLocation {
			t.Errorf("Location = %q, want %q", got.Location, story.UnknownLocation)
		}
	})

	t.Run("does not modify its input", func(t *testing.T) {
		raw := &story.Story{ID: "s1", Name: "n", Lat: ptr(1), Lon: ptr(2)}
		before := raw.Clone()

		story.Transform(raw, "X", now)

		if !reflect.DeepEqual(raw, before) {
			t.Errorf("input changed: %+v", raw)
		}
	})

	t.Run("keeps unknown fields", func(t *testing.T) {
		var raw story.Story
		if err := raw.UnmarshalJSON([]byte(`{"id":"s1","mood":"calm"}`)); err != nil {
			t.Fatalf("UnmarshalJSON() error = %v", err)
		}
		got := story.Transform(&raw, "", now)
		if string(got.Extra["mood"]) != `"calm"` {
			t.Errorf("Extra[mood] = %s", got.Extra["mood"])
		}
	})
}

func TestTransform_Idempotent(t *testing.T) {
	img := "https://example.test/already.jpg"
	inputs := map[string]*story.Story{
		"empty":           {ID: "a"},
		"raw":             {ID: "b", Name: "N", Description: "D", PhotoURL: "https://example.test/p.jpg", CreatedAt: "2022-01-01T00:00:00Z", Lat: ptr(1.5), Lon: ptr(2.5)},
		"already display": {ID: "c", Title: "T", Content: "C", Image: &img, Author: "A", Date: "2023-03-03T00:00:00Z", Location: "Old"},
		"half coords":     {ID: "d", Lon: ptr(3)},
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			once := story.Transform(in, "Bandung", now)
			twice := story.Transform(once, "Bandung", now.Add(time.Hour))

			if !reflect.DeepEqual(once, twice) {
				t.Errorf("Transform not idempotent:\n once  = %+v\n twice = %+v", once, twice)
			}
		})
	}
}
