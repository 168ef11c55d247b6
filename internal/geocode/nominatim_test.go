package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"storysync/internal/config"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) (*Nominatim, *atomic.Int32) {
	t.Helper()
	return newPacedResolver(t, 0, handler)
}

// newPacedResolver is newTestResolver with requests spaced interval apart.
func newPacedResolver(t *testing.T, interval time.Duration, handler http.HandlerFunc) (*Nominatim, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	n := NewNominatim(srv.URL, "storysync-test", time.Second, nil)
	n.SetMinInterval(interval)
	return n, &calls
}

func TestNominatim_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("sends the reverse query", func(t *testing.T) {
		n, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if r.URL.Path != "/reverse" || q.Get("format") != "json" || q.Get("zoom") != "10" || q.Get("addressdetails") != "1" {
				t.Errorf("request = %s", r.URL)
			}
			if q.Get("lat") != "-6.2" || q.Get("lon") != "106.8" {
				t.Errorf("lat/lon = %s/%s", q.Get("lat"), q.Get("lon"))
			}
			if r.UserAgent() != "storysync-test" {
				t.Errorf("User-Agent = %q", r.UserAgent())
			}
			w.Write([]byte(`{"address":{"city":"Jakarta"}}`))
		})

		if got := n.Resolve(ctx, -6.2, 106.8); got != "Jakarta" {
			t.Errorf("Resolve() = %q, want Jakarta", got)
		}
	})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"village first", `{"address":{"village":"Ubud","town":"T","city":"C"}}`, "Ubud"},
		{"town before city", `{"address":{"town":"Bogor","city":"C","state":"S"}}`, "Bogor"},
		{"county before state", `{"address":{"county":"Sleman","state":"Yogyakarta"}}`, "Sleman"},
		{"state last", `{"address":{"state":"Bali"}}`, "Bali"},
		{"display name fallback", `{"display_name":"Monas, Gambir, Jakarta","address":{}}`, "Monas"},
		{"nothing usable", `{"address":{}}`, "1.5000, 2.2500"},
		{"error body", `{"error":"Unable to geocode"}`, "1.5000, 2.2500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			if got := n.Resolve(ctx, 1.5, 2.25); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("caches successes", func(t *testing.T) {
		n, calls := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"address":{"city":"Jakarta"}}`))
		})

		n.Resolve(ctx, -6.2, 106.8)
		n.Resolve(ctx, -6.2, 106.8)
		if calls.Load() != 1 {
			t.Errorf("requests = %d, want 1", calls.Load())
		}
	})

	t.Run("does not cache failures", func(t *testing.T) {
		n, calls := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		if got := n.Resolve(ctx, 0, 0); got != "0.0000, 0.0000" {
			t.Errorf("Resolve() = %q, want fallback", got)
		}
		n.Resolve(ctx, 0, 0)
		if calls.Load() != 2 {
			t.Errorf("requests = %d, want 2", calls.Load())
		}
	})

	t.Run("concurrent misses share one request", func(t *testing.T) {
		release := make(chan struct{})
		n, calls := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
			<-release
			w.Write([]byte(`{"address":{"town":"Bogor"}}`))
		})

		var wg sync.WaitGroup
		results := make([]string, 8)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = n.Resolve(ctx, -6.6, 106.8)
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		for i, r := range results {
			if r != "Bogor" {
				t.Errorf("result %d = %q", i, r)
			}
		}
		if calls.Load() != 1 {
			t.Errorf("requests = %d, want 1", calls.Load())
		}
	})

	t.Run("slow service falls back", func(t *testing.T) {
		release := make(chan struct{})
		n, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
			<-release
		})
		n.httpClient.Timeout = 20 * time.Millisecond
		defer close(release)

		if got := n.Resolve(ctx, 1, 2); got != "1.0000, 2.0000" {
			t.Errorf("Resolve() = %q, want fallback", got)
		}
	})
}

func TestNominatim_SpacesRequests(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent distinct lookups go out one interval apart", func(t *testing.T) {
		const interval = 40 * time.Millisecond

		var mu sync.Mutex
		var arrivals []time.Time
		n, _ := newPacedResolver(t, interval, func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			arrivals = append(arrivals, time.Now())
			mu.Unlock()
			w.Write([]byte(`{"address":{"city":"Somewhere"}}`))
		})

		var wg sync.WaitGroup
		for i := range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n.Resolve(ctx, float64(i), float64(i))
			}()
		}
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		if len(arrivals) != 3 {
			t.Fatalf("requests = %d, want 3", len(arrivals))
		}
		slices.SortFunc(arrivals, func(a, b time.Time) int { return a.Compare(b) })
		for i := 1; i < len(arrivals); i++ {
			// The limiter reserves slots before the request is sent, so allow
			// some scheduling jitter between arrivals.
			if gap := arrivals[i].Sub(arrivals[i-1]); gap < interval-10*time.Millisecond {
				t.Errorf("gap between request %d and %d = %v, want about %v", i-1, i, gap, interval)
			}
		}
	})

	t.Run("caller deadline before the next slot falls back", func(t *testing.T) {
		n, calls := newPacedResolver(t, time.Minute, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"address":{"city":"Somewhere"}}`))
		})

		if got := n.Resolve(ctx, 1, 1); got != "Somewhere" {
			t.Fatalf("first Resolve() = %q", got)
		}

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if got := n.Resolve(short, 2, 2); got != "2.0000, 2.0000" {
			t.Errorf("Resolve() = %q, want fallback", got)
		}
		if calls.Load() != 1 {
			t.Errorf("requests = %d, want 1", calls.Load())
		}
	})
}

func TestNewNominatim_DefaultInterval(t *testing.T) {
	n := NewNominatim("http://unused", "", time.Second, nil)
	if got := n.limiter.Limit(); got != rate.Every(DefaultMinInterval) {
		t.Errorf("limit = %v, want one request per %v", got, DefaultMinInterval)
	}
}

func TestOffline(t *testing.T) {
	if got := (Offline{}).Resolve(context.Background(), -6.175392, 106.827153); got != "-6.1754, 106.8272" {
		t.Errorf("Resolve() = %q", got)
	}
}

func TestNewResolverFromConfig(t *testing.T) {
	t.Run("nominatim", func(t *testing.T) {
		r, err := NewResolverFromConfig(config.GeocoderConfig{Type: "nominatim"}, nil)
		if err != nil {
			t.Fatalf("NewResolverFromConfig() error = %v", err)
		}
		if _, ok := r.(*Nominatim); !ok {
			t.Errorf("resolver = %T, want *Nominatim", r)
		}
	})

	t.Run("none", func(t *testing.T) {
		r, err := NewResolverFromConfig(config.GeocoderConfig{Type: "none"}, nil)
		if err != nil {
			t.Fatalf("NewResolverFromConfig() error = %v", err)
		}
		if _, ok := r.(Offline); !ok {
			t.Errorf("resolver = %T, want Offline", r)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := NewResolverFromConfig(config.GeocoderConfig{Type: "google"}, nil); err == nil {
			t.Error("NewResolverFromConfig() expected error")
		}
	})
}
