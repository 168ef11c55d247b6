package story

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Story is the canonical story record. It carries both the raw fields the
// remote API returns (name, photoUrl, createdAt, lat, lon) and the display
// fields filled in by Transform. Fields this type does not know about are
// kept in Extra and written back out on encode.
type Story struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description"`
	PhotoURL    string   `json:"photoUrl,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"` // ISO-8601
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`

	Title     string   `json:"title,omitempty"`
	Content   string   `json:"content,omitempty"`
	Image     *string  `json:"image"`
	Author    string   `json:"author,omitempty"`
	Date      string   `json:"date,omitempty"`
	Location  string   `json:"location,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownFields = map[string]struct{}{
	"id": {}, "name": {}, "description": {}, "photoUrl": {}, "createdAt": {},
	"lat": {}, "lon": {}, "title": {}, "content": {}, "image": {}, "author": {},
	"date": {}, "location": {}, "latitude": {}, "longitude": {},
}

// storyFields has the same layout as Story without its JSON methods.
type storyFields Story

// HasCoordinates reports whether both lat and lon are set.
func (s *Story) HasCoordinates() bool {
	return s.Lat != nil && s.Lon != nil
}

// Clone returns a copy of s that shares no maps or pointers with it.
func (s *Story) Clone() *Story {
	c := *s
	c.Lat = cloneFloat(s.Lat)
	c.Lon = cloneFloat(s.Lon)
	c.Latitude = cloneFloat(s.Latitude)
	c.Longitude = cloneFloat(s.Longitude)
	if s.Image != nil {
		img := *s.Image
		c.Image = &img
	}
	c.Extra = maps.Clone(s.Extra)
	return &c
}

func (s *Story) UnmarshalJSON(data []byte) error {
	var fields storyFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range all {
		if _, ok := knownFields[k]; ok {
			delete(all, k)
		}
	}
	if len(all) > 0 {
		fields.Extra = all
	}

	*s = Story(fields)
	return nil
}

func (s Story) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(storyFields(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return data, nil
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

// Photo is an image attached to a new story.
type Photo struct {
	Name        string
	ContentType string
	Data        []byte
}

// NewStory holds the fields submitted when creating a story.
type NewStory struct {
	Description string
	Photo       *Photo
	Lat         *float64
	Lon         *float64
}

// Validate checks the fields the remote API requires.
func (n NewStory) Validate() error {
	if n.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidStory)
	}
	if n.Photo == nil || len(n.Photo.Data) == 0 {
		return fmt.Errorf("%w: photo is required", ErrInvalidStory)
	}
	if (n.Lat == nil) != (n.Lon == nil) {
		return fmt.Errorf("%w: lat and lon must be given together", ErrInvalidStory)
	}
	return nil
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
