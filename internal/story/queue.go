package story

import (
	"encoding/base64"
	"fmt"
	"time"
)

// PendingStory is a story creation accepted locally while offline and not
// yet confirmed by the server. It is either pending (stored) or done
// (deleted); there is no persisted in-flight state.
type PendingStory struct {
	ID          string
	Seq         int64 // replay order, assigned by the store
	Description string
	PhotoName   string
	PhotoType   string
	PhotoData   string // base64 (std encoding)
	Lat         *float64
	Lon         *float64
	EnqueuedAt  time.Time
}

// NewPendingStory captures the submitted fields of n under id.
func NewPendingStory(id string, n NewStory, enqueuedAt time.Time) *PendingStory {
	p := &PendingStory{
		ID:          id,
		Description: n.Description,
		Lat:         cloneFloat(n.Lat),
		Lon:         cloneFloat(n.Lon),
		EnqueuedAt:  enqueuedAt,
	}
	if n.Photo != nil {
		p.PhotoName = n.Photo.Name
		p.PhotoType = n.Photo.ContentType
		p.PhotoData = base64.StdEncoding.EncodeToString(n.Photo.Data)
	}
	return p
}

// NewStory rebuilds the original write payload, decoding the stored photo.
func (p *PendingStory) NewStory() (NewStory, error) {
	n := NewStory{
		Description: p.Description,
		Lat:         cloneFloat(p.Lat),
		Lon:         cloneFloat(p.Lon),
	}
	if p.PhotoData != "" {
		data, err := base64.StdEncoding.DecodeString(p.PhotoData)
		if err != nil {
			return NewStory{}, fmt.Errorf("decoding photo for %s: %w", p.ID, err)
		}
		n.Photo = &Photo{Name: p.PhotoName, ContentType: p.PhotoType, Data: data}
	}
	return n, nil
}
