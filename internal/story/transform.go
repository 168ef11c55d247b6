package story

import (
	"time"
)

const (
	DefaultTitle       = "Untitled Story"
	DefaultDescription = "No description available"
	DefaultContent     = "No content available"
	DefaultAuthor      = "Unknown Author"
	UnknownLocation    = "Unknown Location"
)

// Transform normalizes a raw API or cached record into the display shape.
// location is the resolved place name and is only used when the story has
// coordinates. now fills Date when neither createdAt nor date is set.
//
// Transform is idempotent: Transform(Transform(s)) equals Transform(s) given
// the same location and now. The input is not modified.
func Transform(s *Story, location string, now time.Time) *Story {
	out := s.Clone()

	out.Title = firstNonEmpty(s.Name, s.Title, DefaultTitle)
	out.Description = firstNonEmpty(s.Description, DefaultDescription)
	out.Content = firstNonEmpty(s.Content, s.Description, DefaultContent)
	if s.PhotoURL != "" {
		img := s.PhotoURL
		out.Image = &img
	}
	out.Author = firstNonEmpty(s.Author, DefaultAuthor)
	out.Date = firstNonEmpty(s.CreatedAt, s.Date, now.UTC().Format(time.RFC3339))

	if s.HasCoordinates() {
		out.Location = location
		out.Latitude = cloneFloat(s.Lat)
		out.Longitude = cloneFloat(s.Lon)
	} else {
		out.Location = UnknownLocation
	}

	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
