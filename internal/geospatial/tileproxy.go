// Package geospatial proxies and caches the basemap tiles drawn under served maps.
package geospatial

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/sells-group/choropleth/internal/resilience"
)

// Tile is a fetched basemap image.
type Tile struct {
	Data        []byte
	ContentType string
}

// ProxyOptions configures the upstream tile server.
type ProxyOptions struct {
	// URL is the upstream template with {z}, {x} and {y} placeholders, and optionally
	// {s} for a subdomain. A bare base URL gets /{z}/{x}/{y}.{format} appended.
	URL       string
	Format    string
	MaxZoom   int
	UserAgent string
	// RateLimit caps upstream requests per second; zero disables throttling.
	RateLimit float64
	Burst     int
	Timeout   time.Duration
	Client    *http.Client
	// Retry governs retries of transient upstream failures. Each attempt waits on the
	// rate limiter.
	Retry resilience.Policy
}

// TileProxy proxies basemap raster tiles from an upstream tile server, throttled and
// cached. Concurrent misses on one tile share a single upstream fetch.
type TileProxy struct {
	template string
	format   string
	maxZoom  int
	agent    string
	client   *http.Client
	limiter  *rate.Limiter
	retry    resilience.Policy
	cache    *TileCache
	inflight singleflight.Group
	router   chi.Router
}

const (
	defaultFormat    = "png"
	defaultMaxZoom   = 19
	defaultUserAgent = "choropleth/1.0"
	defaultTimeout   = 30 * time.Second
)

// NewTileProxy creates a basemap proxy. cache may be nil.
func NewTileProxy(opts ProxyOptions, cache *TileCache) (*TileProxy, error) {
	if opts.URL == "" {
		return nil, eris.New("geo: basemap url is required")
	}
	if opts.Format == "" {
		opts.Format = defaultFormat
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = defaultMaxZoom
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	tmpl := opts.URL
	if !strings.Contains(tmpl, "{z}") {
		tmpl = strings.TrimRight(tmpl, "/") + "/{z}/{x}/{y}." + opts.Format
	}
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(tmpl, ph) {
			return nil, eris.Errorf("geo: basemap url %q has no %s placeholder", opts.URL, ph)
		}
	}

	p := &TileProxy{
		template: tmpl,
		format:   opts.Format,
		maxZoom:  opts.MaxZoom,
		agent:    opts.UserAgent,
		client:   opts.Client,
		retry:    opts.Retry,
		cache:    cache,
	}
	if p.retry.Name == "" {
		p.retry.Name = "basemap tile"
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	p.router = chi.NewRouter()
	p.router.Get("/{z}/{x}/{y}.{ext}", p.serveTile)
	p.router.Get("/stats", p.StatsHandler)
	return p, nil
}

// Format returns the tile image extension served by the proxy.
func (p *TileProxy) Format() string { return p.format }

// Cache returns the tile cache, or nil.
func (p *TileProxy) Cache() *TileCache { return p.cache }

// Upstream returns the upstream URL for a tile. The {s} subdomain rotates through a, b
// and c by x+y.
func (p *TileProxy) Upstream(z, x, y int) string {
	s := ((x+y)%3 + 3) % 3
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{s}", subdomains[s:s+1],
	).Replace(p.template)
}

const subdomains = "abc"

// validTile reports whether z/x/y addresses a tile of the web-mercator pyramid.
func (p *TileProxy) validTile(z, x, y int) bool {
	if z < 0 || z > p.maxZoom {
		return false
	}
	n := 1 << z
	return x >= 0 && x < n && y >= 0 && y < n
}

// Fetch retrieves a basemap tile from the cache or the upstream server.
func (p *TileProxy) Fetch(ctx context.Context, z, x, y int) (Tile, error) {
	if !p.validTile(z, x, y) {
		return Tile{}, eris.Errorf("geo: tile %d/%d/%d out of range", z, x, y)
	}
	key := TileKey{Z: z, X: x, Y: y, Format: p.format}
	if p.cache != nil {
		if t, ok := p.cache.Get(key); ok {
			return t, nil
		}
	}

	url := p.Upstream(z, x, y)
	ch := p.inflight.DoChan(key.String(), func() (any, error) {
		t, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (Tile, error) {
			return p.fetchUpstream(ctx, url)
		})
		if err != nil {
			return Tile{}, err
		}
		if p.cache != nil {
			p.cache.Put(key, t)
		}
		zap.L().Debug("geo: fetched basemap tile", zap.String("url", url), zap.Int("bytes", len(t.Data)))
		return t, nil
	})

	select {
	case <-ctx.Done():
		return Tile{}, eris.Wrap(ctx.Err(), "geo: wait for basemap tile")
	case res := <-ch:
		if res.Err != nil {
			return Tile{}, res.Err
		}
		if res.Shared {
			zap.L().Debug("geo: shared basemap fetch", zap.String("tile", key.String()))
		}
		return res.Val.(Tile), nil
	}
}

func (p *TileProxy) fetchUpstream(ctx context.Context, url string) (Tile, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Tile{}, eris.Wrap(err, "geo: wait for basemap rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Tile{}, eris.Wrap(err, "geo: create basemap request")
	}
	req.Header.Set("User-Agent", p.agent)

	resp, err := p.client.Do(req)
	if err != nil {
		return Tile{}, eris.Wrap(err, "geo: fetch basemap tile")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Tile{}, eris.Wrap(&resilience.StatusError{URL: url, StatusCode: resp.StatusCode}, "geo: basemap upstream")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Tile{}, eris.Wrap(err, "geo: read basemap tile body")
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = contentType(p.format)
	}
	return Tile{Data: data, ContentType: ct}, nil
}

// contentType returns the MIME type for a tile format.
func contentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Routes mounts the tile endpoint at /{z}/{x}/{y}.{ext} and cache statistics at /stats.
func (p *TileProxy) Routes() chi.Router { return p.router }

// ServeHTTP implements http.Handler for the tile proxy.
func (p *TileProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

func (p *TileProxy) serveTile(w http.ResponseWriter, r *http.Request) {
	var coords [3]int
	for i, name := range []string{"z", "x", "y"} {
		v, err := strconv.Atoi(chi.URLParam(r, name))
		if err != nil {
			http.Error(w, "invalid "+name+" coordinate", http.StatusBadRequest)
			return
		}
		coords[i] = v
	}
	if ext := chi.URLParam(r, "ext"); ext != p.format {
		http.Error(w, "unsupported tile format", http.StatusNotFound)
		return
	}
	z, x, y := coords[0], coords[1], coords[2]
	if !p.validTile(z, x, y) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	t, err := p.Fetch(r.Context(), z, x, y)
	if err != nil {
		zap.L().Error("geo: basemap tile fetch failed",
			zap.Int("z", z), zap.Int("x", x), zap.Int("y", y),
			zap.Error(err),
		)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", t.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(t.Data)
}

// StatsHandler reports cache statistics as JSON.
func (p *TileProxy) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if p.cache == nil {
		_, _ = w.Write([]byte(`{"enabled":false}`))
		return
	}
	_ = json.NewEncoder(w).Encode(p.cache.Stats())
}
