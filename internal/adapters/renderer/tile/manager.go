package tile

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sync"

	"github.com/suntrack/fleetmap/internal/pkg/metrics"
)

// Provider fetches one tile image.
type Provider interface {
	GetTile(c Coord) (image.Image, error)
}

// HTTPProvider fetches tiles from an OSM-style z/x/y URL template.
type HTTPProvider struct {
	client      *http.Client
	urlTemplate string
}

// NewHTTPProvider creates a provider for a template like
// "https://tile.openstreetmap.org/%d/%d/%d.png" (zoom, x, y).
func NewHTTPProvider(urlTemplate string) *HTTPProvider {
	return &HTTPProvider{
		client:      &http.Client{},
		urlTemplate: urlTemplate,
	}
}

func (p *HTTPProvider) GetTile(c Coord) (image.Image, error) {
	url := fmt.Sprintf(p.urlTemplate, c.Zoom, c.X, c.Y)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build tile request: %w", err)
	}
	req.Header.Set("User-Agent", "fleetmap/1.0")
	req.Header.Set("Accept", "image/webp,*/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tile %v: %w", c, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch tile %v: status %d", c, resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode tile %v: %w", c, err)
	}
	return img, nil
}

// Manager caches decoded tiles in front of a provider. Eviction is a
// bulk drop once the cache overflows; tile reuse is heavily local so a
// precise LRU buys little.
type Manager struct {
	mu       sync.Mutex
	cache    map[string]image.Image
	maxTiles int
	provider Provider
}

// NewManager creates a tile cache holding at most maxTiles images.
func NewManager(provider Provider, maxTiles int) *Manager {
	if maxTiles <= 0 {
		maxTiles = 256
	}
	return &Manager{
		cache:    make(map[string]image.Image),
		maxTiles: maxTiles,
		provider: provider,
	}
}

func key(c Coord) string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.X, c.Y)
}

// GetTile returns a tile image, fetching and caching it on miss.
func (m *Manager) GetTile(c Coord) (image.Image, error) {
	k := key(c)

	m.mu.Lock()
	if img, ok := m.cache[k]; ok {
		m.mu.Unlock()
		metrics.TileCacheHits.Inc()
		return img, nil
	}
	m.mu.Unlock()
	metrics.TileCacheMisses.Inc()

	img, err := m.provider.GetTile(c)
	if err != nil {
		metrics.TileFetchErrors.Inc()
		return nil, err
	}

	m.mu.Lock()
	if len(m.cache) >= m.maxTiles {
		m.cache = make(map[string]image.Image)
	}
	m.cache[k] = img
	m.mu.Unlock()
	return img, nil
}

// Cached reports whether a tile is already decoded.
func (m *Manager) Cached(c Coord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cache[key(c)]
	return ok
}

// Len returns the number of cached tiles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}
