package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Boundary    BoundaryConfig    `yaml:"boundary" mapstructure:"boundary"`
	Attributes  AttributesConfig  `yaml:"attributes" mapstructure:"attributes"`
	Filter      FilterConfig      `yaml:"filter" mapstructure:"filter"`
	Static      StaticConfig      `yaml:"static" mapstructure:"static"`
	Interactive InteractiveConfig `yaml:"interactive" mapstructure:"interactive"`
	Basemap     BasemapConfig     `yaml:"basemap" mapstructure:"basemap"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Export      ExportConfig      `yaml:"export" mapstructure:"export"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	TempDir     string            `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// BoundaryConfig locates the shapefile set and names its identifier column.
type BoundaryConfig struct {
	// Path is a .shp file, a directory, a .zip archive or an http(s) URL to a zip.
	Path     string   `yaml:"path" mapstructure:"path"`
	IDColumn string   `yaml:"id_column" mapstructure:"id_column"`
	Columns  []string `yaml:"columns" mapstructure:"columns"`
	// CRS overrides the .prj, e.g. "EPSG:27700".
	CRS                 string `yaml:"crs" mapstructure:"crs"`
	DownloadTimeoutSecs int    `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
}

// AttributesConfig locates the measurement table.
type AttributesConfig struct {
	Path       string   `yaml:"path" mapstructure:"path"`
	KeyColumn  string   `yaml:"key_column" mapstructure:"key_column"`
	RenameTo   string   `yaml:"rename_to" mapstructure:"rename_to"`
	Columns    []string `yaml:"columns" mapstructure:"columns"`
	Sheet      string   `yaml:"sheet" mapstructure:"sheet"`
	SheetIndex int      `yaml:"sheet_index" mapstructure:"sheet_index"`
	Delimiter  string   `yaml:"delimiter" mapstructure:"delimiter"`
	SkipRows   int      `yaml:"skip_rows" mapstructure:"skip_rows"`
}

// DelimiterRune returns the configured CSV delimiter, or 0 for the reader's default.
func (a AttributesConfig) DelimiterRune() rune {
	switch a.Delimiter {
	case "":
		return 0
	case `\t`, "tab":
		return '\t'
	}
	return []rune(a.Delimiter)[0]
}

// KeyName returns the name the measurement key column is given after loading.
func (c *Config) KeyName() string {
	if c.Attributes.RenameTo != "" {
		return c.Attributes.RenameTo
	}
	return c.Boundary.IDColumn
}

// FilterConfig restricts the joined map to rows whose column matches one of Values.
// An empty Column disables filtering.
type FilterConfig struct {
	Column          string   `yaml:"column" mapstructure:"column"`
	Values          []string `yaml:"values" mapstructure:"values"`
	CaseInsensitive bool     `yaml:"case_insensitive" mapstructure:"case_insensitive"`
}

// StaticConfig configures the SVG renderer.
type StaticConfig struct {
	Output        string  `yaml:"output" mapstructure:"output"`
	Title         string  `yaml:"title" mapstructure:"title"`
	Column        string  `yaml:"column" mapstructure:"column"`
	DisplayName   string  `yaml:"display_name" mapstructure:"display_name"`
	Palette       string  `yaml:"palette" mapstructure:"palette"`
	Reverse       bool    `yaml:"reverse" mapstructure:"reverse"`
	NAColor       string  `yaml:"na_color" mapstructure:"na_color"`
	BorderColor   string  `yaml:"border_color" mapstructure:"border_color"`
	BorderColumn  string  `yaml:"border_column" mapstructure:"border_column"`
	BorderPalette string  `yaml:"border_palette" mapstructure:"border_palette"`
	BorderWidth   float64 `yaml:"border_width" mapstructure:"border_width"`
	Width         int     `yaml:"width" mapstructure:"width"`
	Height        int     `yaml:"height" mapstructure:"height"`
}

// InteractiveConfig configures the Leaflet renderer.
type InteractiveConfig struct {
	Output string        `yaml:"output" mapstructure:"output"`
	Title  string        `yaml:"title" mapstructure:"title"`
	Layers []LayerConfig `yaml:"layers" mapstructure:"layers"`
	// Tooltip lists the columns shown on hover for single-layer maps converted from a
	// static map. Empty shows the identifier and the fill column.
	Tooltip     []string `yaml:"tooltip" mapstructure:"tooltip"`
	Opacity     float64  `yaml:"opacity" mapstructure:"opacity"`
	LeafletURL  string   `yaml:"leaflet_url" mapstructure:"leaflet_url"`
	LeafletCSS  string   `yaml:"leaflet_css" mapstructure:"leaflet_css"`
	NAColor     string   `yaml:"na_color" mapstructure:"na_color"`
	BorderColor string   `yaml:"border_color" mapstructure:"border_color"`
}

// LayerConfig is one toggleable measurement layer.
type LayerConfig struct {
	Column  string `yaml:"column" mapstructure:"column"`
	Name    string `yaml:"name" mapstructure:"name"`
	Palette string `yaml:"palette" mapstructure:"palette"`
	Reverse bool   `yaml:"reverse" mapstructure:"reverse"`
	// Legend is the corner the layer's legend is drawn in: topleft, topright,
	// bottomleft or bottomright.
	Legend string `yaml:"legend" mapstructure:"legend"`
}

// BasemapConfig configures the base tile layer and its local proxy.
type BasemapConfig struct {
	URL          string  `yaml:"url" mapstructure:"url"`
	Attribution  string  `yaml:"attribution" mapstructure:"attribution"`
	Format       string  `yaml:"format" mapstructure:"format"`
	MaxZoom      int     `yaml:"max_zoom" mapstructure:"max_zoom"`
	CacheSize    int     `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLSecs int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst        int     `yaml:"burst" mapstructure:"burst"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the local map server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ExportConfig configures persistence of the joined table.
type ExportConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var legendCorners = map[string]bool{"": true, "topleft": true, "topright": true, "bottomleft": true, "bottomright": true}

// Validate checks the settings a command mode depends on. Modes: static, interactive,
// serve, export, inspect.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	pipeline := func() {
		require(c.Boundary.Path != "", "boundary.path is required")
		require(c.Boundary.IDColumn != "", "boundary.id_column is required")
		require(c.Attributes.Path != "", "attributes.path is required")
		require(c.Attributes.KeyColumn != "", "attributes.key_column is required")
		require(c.Filter.Column == "" || len(c.Filter.Values) > 0, "filter.values is required when filter.column is set")
	}
	static := func() {
		require(c.Static.Column != "", "static.column is required")
		require(c.Static.Width > 0 && c.Static.Height > 0, "static.width and static.height must be > 0")
	}
	interactive := func() {
		require(len(c.Interactive.Layers) > 0, "interactive.layers requires at least one layer")
		for i, l := range c.Interactive.Layers {
			require(l.Column != "", fmt.Sprintf("interactive.layers[%d].column is required", i))
			require(legendCorners[l.Legend], fmt.Sprintf("interactive.layers[%d].legend %q is not a map corner", i, l.Legend))
		}
	}

	switch mode {
	case "static":
		pipeline()
		static()
	case "interactive":
		pipeline()
		interactive()
	case "serve":
		pipeline()
		static()
		interactive()
		require(c.Server.Port > 0, "server.port must be > 0")
		require(c.Basemap.URL != "", "basemap.url is required")
		require(c.Basemap.RateLimit > 0, "basemap.rate_limit must be > 0")
	case "export":
		pipeline()
		require(c.Export.Table != "", "export.table is required")
		switch c.Export.Driver {
		case "sqlite":
			require(c.Export.Path != "", "export.path is required for sqlite")
		case "postgres":
			require(c.Export.DatabaseURL != "", "export.database_url is required for postgres")
		default:
			errs = append(errs, fmt.Sprintf("export.driver %q must be sqlite or postgres", c.Export.Driver))
		}
	case "inspect":
		pipeline()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CHOROPLETH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("boundary.id_column", "DataZone")
	v.SetDefault("boundary.download_timeout_secs", 300)
	v.SetDefault("attributes.key_column", "Data_Zone")
	v.SetDefault("static.output", "choropleth.svg")
	v.SetDefault("static.palette", "viridis")
	v.SetDefault("static.border_color", "#ffffff")
	v.SetDefault("static.border_width", 0.5)
	v.SetDefault("static.width", 800)
	v.SetDefault("static.height", 800)
	v.SetDefault("interactive.output", "choropleth.html")
	v.SetDefault("interactive.opacity", 0.7)
	v.SetDefault("interactive.leaflet_url", "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js")
	v.SetDefault("interactive.leaflet_css", "https://unpkg.com/leaflet@1.9.4/dist/leaflet.css")
	v.SetDefault("interactive.border_color", "#ffffff")
	v.SetDefault("basemap.url", "https://tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("basemap.attribution", "&copy; OpenStreetMap contributors")
	v.SetDefault("basemap.format", "png")
	v.SetDefault("basemap.max_zoom", 19)
	v.SetDefault("basemap.cache_size", 2000)
	v.SetDefault("basemap.cache_ttl_secs", 3600)
	v.SetDefault("basemap.rate_limit", 2.0)
	v.SetDefault("basemap.burst", 4)
	v.SetDefault("basemap.user_agent", "choropleth/1.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("export.driver", "sqlite")
	v.SetDefault("export.path", "choropleth.db")
	v.SetDefault("export.table", "choropleth")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("temp_dir", "/tmp/choropleth")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
