// Package geocode resolves coordinates to place names for story display.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"storysync/internal/config"
	"storysync/internal/story"
)

// Fallback formats coordinates the way they are shown when no place name
// is known.
func Fallback(lat, lon float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lon)
}

// DefaultMinInterval is the spacing between lookups required by the public
// Nominatim usage policy.
const DefaultMinInterval = time.Second

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%v,%v", lat, lon)
}

// Nominatim resolves coordinates with an OpenStreetMap Nominatim reverse
// lookup. Successful lookups are cached for the life of the resolver;
// failures are not, so a later call retries. Requests that do go out are
// spaced at least DefaultMinInterval apart, however many callers resolve
// at once.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     story.Logger

	limiter *rate.Limiter

	mu    sync.RWMutex
	cache map[string]string
	group singleflight.Group
}

var _ story.LocationResolver = (*Nominatim)(nil)

func NewNominatim(baseURL, userAgent string, timeout time.Duration, logger story.Logger) *Nominatim {
	if logger == nil {
		logger = story.NewNopLogger()
	}
	return &Nominatim{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
		cache:      make(map[string]string),
	}
}

// SetMinInterval changes the spacing between outgoing requests. Zero
// removes the limit.
func (n *Nominatim) SetMinInterval(d time.Duration) {
	if d <= 0 {
		n.limiter.SetLimit(rate.Inf)
		return
	}
	n.limiter.SetLimit(rate.Every(d))
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Village string `json:"village"`
		Town    string `json:"town"`
		City    string `json:"city"`
		County  string `json:"county"`
		State   string `json:"state"`
	} `json:"address"`
}

// name picks the most specific populated place.
func (r *reverseResponse) name() string {
	for _, v := range []string{r.Address.Village, r.Address.Town, r.Address.City, r.Address.County, r.Address.State} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	if first, _, _ := strings.Cut(r.DisplayName, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	return ""
}

// Resolve never fails: anything short of a usable place name yields the
// formatted coordinates.
func (n *Nominatim) Resolve(ctx context.Context, lat, lon float64) string {
	key := cacheKey(lat, lon)

	n.mu.RLock()
	name, ok := n.cache[key]
	n.mu.RUnlock()
	if ok {
		return name
	}

	v, err, _ := n.group.Do(key, func() (any, error) {
		name, err := n.lookup(ctx, lat, lon)
		if err != nil {
			return "", err
		}
		n.mu.Lock()
		n.cache[key] = name
		n.mu.Unlock()
		return name, nil
	})
	if err != nil {
		n.logger.Debug("reverse geocoding failed", "lat", lat, "lon", lon, "error", err)
		return Fallback(lat, lon)
	}
	return v.(string)
}

func (n *Nominatim) lookup(ctx context.Context, lat, lon float64) (string, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for a lookup slot: %w", err)
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "10")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", story.ErrRemoteUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse lookup: %s", resp.Status)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding reverse lookup: %w", err)
	}
	name := body.name()
	if name == "" {
		return "", fmt.Errorf("reverse lookup returned no place name")
	}
	return name, nil
}

// Offline never looks anything up.
type Offline struct{}

var _ story.LocationResolver = Offline{}

func (Offline) Resolve(_ context.Context, lat, lon float64) string {
	return Fallback(lat, lon)
}

// NewResolverFromConfig creates a LocationResolver based on the geocoder config type.
func NewResolverFromConfig(cfg config.GeocoderConfig, logger story.Logger) (story.LocationResolver, error) {
	switch cfg.Type {
	case "nominatim", "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultGeocoderBaseURL
		}
		userAgent := cfg.UserAgent
		if userAgent == "" {
			userAgent = config.DefaultUserAgent
		}
		return NewNominatim(baseURL, userAgent, cfg.Timeout(), logger), nil
	case "none":
		return Offline{}, nil
	default:
		return nil, fmt.Errorf("unknown geocoder type: %s", cfg.Type)
	}
}
