package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"maragu.dev/gomponents"

	"github.com/sells-group/choropleth/internal/config"
	"github.com/sells-group/choropleth/internal/geospatial"
	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/pipeline"
	"github.com/sells-group/choropleth/internal/render"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interactive map with a cached, rate-limited basemap proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		site, err := buildSite(ctx, cfg)
		if err != nil {
			return err
		}

		return startServer(ctx, buildRouter(site), cfg.Server.Port)
	},
}

// site is the rendered content served by the map server.
type site struct {
	page    []byte
	svg     []byte
	result  *pipeline.Result
	basemap *geospatial.TileProxy
}

// buildSite runs the pipeline once and renders both maps, with the interactive page
// drawing its basemap through the local proxy.
func buildSite(ctx context.Context, c *config.Config) (*site, error) {
	if err := c.Validate("serve"); err != nil {
		return nil, err
	}

	cache := geospatial.NewTileCache(c.Basemap.CacheSize, time.Duration(c.Basemap.CacheTTLSecs)*time.Second)
	proxy, err := geospatial.NewTileProxy(geospatial.ProxyOptions{
		URL:       c.Basemap.URL,
		Format:    c.Basemap.Format,
		MaxZoom:   c.Basemap.MaxZoom,
		UserAgent: c.Basemap.UserAgent,
		RateLimit: c.Basemap.RateLimit,
		Burst:     c.Basemap.Burst,
	}, cache)
	if err != nil {
		return nil, err
	}

	res, err := runPipeline(ctx, c, "serve", true)
	if err != nil {
		return nil, err
	}

	s, err := render.Static(res.Map, staticOptions(c.Static))
	if err != nil {
		return nil, stageError(model.AtStage(model.StageRender, err))
	}
	tiles := fmt.Sprintf("/basemap/{z}/{x}/{y}.%s", proxy.Format())
	im, err := render.Interactive(res.Map, layerSpecs(c.Interactive.Layers), interactiveOptions(c, tiles))
	if err != nil {
		return nil, stageError(model.AtStage(model.StageRender, err))
	}

	svg, err := renderBytes(s.Node())
	if err != nil {
		return nil, err
	}
	page, err := renderBytes(im.Node())
	if err != nil {
		return nil, err
	}

	return &site{page: page, svg: svg, result: res, basemap: proxy}, nil
}

func renderBytes(node gomponents.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := node.Render(&buf); err != nil {
		return nil, stageError(model.AtStage(model.StageRender, eris.Wrap(err, "render: build document")))
	}
	return buf.Bytes(), nil
}

func buildRouter(s *site) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(s.page) //nolint:errcheck
	})
	r.Get("/static.svg", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write(s.svg) //nolint:errcheck
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		out := map[string]any{"run": s.result}
		if cache := s.basemap.Cache(); cache != nil {
			out["basemap"] = cache.Stats()
		}
		writeJSON(w, out)
	})
	r.Mount("/basemap", s.basemap)

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

// startServer listens on port until ctx is cancelled, then shuts down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}

	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
