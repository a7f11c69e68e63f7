package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Map      MapConfig      `mapstructure:"map"`
	Tiles    TilesConfig    `mapstructure:"tiles"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Valkey   ValkeyConfig   `mapstructure:"valkey"`
	Feed     FeedConfig     `mapstructure:"feed"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// MapConfig carries the single shared bounding box, the plane size, and
// the camera limits. Every component reads the box from here; it is
// never duplicated elsewhere.
type MapConfig struct {
	MinLat        float64 `mapstructure:"min_lat"`
	MaxLat        float64 `mapstructure:"max_lat"`
	MinLon        float64 `mapstructure:"min_lon"`
	MaxLon        float64 `mapstructure:"max_lon"`
	PlaneWidth    float64 `mapstructure:"plane_width"`
	PlaneHeight   float64 `mapstructure:"plane_height"`
	MinZoom       float64 `mapstructure:"min_zoom"`
	MaxZoom       float64 `mapstructure:"max_zoom"`
	InitialScale  float64 `mapstructure:"initial_scale"`
	EnforceBounds bool    `mapstructure:"enforce_bounds"`
	Renderer      string  `mapstructure:"renderer"`
}

type TilesConfig struct {
	URLTemplate string `mapstructure:"url_template"`
	CacheSize   int    `mapstructure:"cache_size"`
	Workers     int    `mapstructure:"workers"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr      string `mapstructure:"addr"`
	MarkerKey string `mapstructure:"marker_key"`
}

type FeedConfig struct {
	URL         string `mapstructure:"url"`
	PollSeconds int    `mapstructure:"poll_seconds"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults: the Thai fleet box on an 800x1000 plane.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("map.min_lat", 5.5)
	v.SetDefault("map.max_lat", 20.5)
	v.SetDefault("map.min_lon", 97.3)
	v.SetDefault("map.max_lon", 105.7)
	v.SetDefault("map.plane_width", 800.0)
	v.SetDefault("map.plane_height", 1000.0)
	v.SetDefault("map.min_zoom", 0.5)
	v.SetDefault("map.max_zoom", 8.0)
	v.SetDefault("map.initial_scale", 1.0)
	v.SetDefault("map.enforce_bounds", false)
	v.SetDefault("map.renderer", "vector")
	v.SetDefault("tiles.url_template", "https://tile.openstreetmap.org/%d/%d/%d.png")
	v.SetDefault("tiles.cache_size", 256)
	v.SetDefault("tiles.workers", 4)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fleetmap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "fleetmap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.marker_key", "fleetmap:markers:custom")
	v.SetDefault("feed.url", "http://localhost:9090/api/plants")
	v.SetDefault("feed.poll_seconds", 60)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: FLEETMAP_MAP_MIN_LAT -> map.min_lat
	v.SetEnvPrefix("FLEETMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Map.MinLat >= c.Map.MaxLat {
		errs = append(errs, "map.min_lat must be strictly below map.max_lat")
	}
	if c.Map.MinLon >= c.Map.MaxLon {
		errs = append(errs, "map.min_lon must be strictly below map.max_lon")
	}
	if c.Map.PlaneWidth <= 0 || c.Map.PlaneHeight <= 0 {
		errs = append(errs, "map plane dimensions must be positive")
	}
	if c.Map.MinZoom <= 0 || c.Map.MinZoom >= c.Map.MaxZoom {
		errs = append(errs, "map zoom range must satisfy 0 < min_zoom < max_zoom")
	}
	if c.Map.InitialScale < c.Map.MinZoom || c.Map.InitialScale > c.Map.MaxZoom {
		errs = append(errs, "map.initial_scale must lie inside the zoom range")
	}
	if c.Map.Renderer != "vector" && c.Map.Renderer != "tile" {
		errs = append(errs, fmt.Sprintf("map.renderer must be vector or tile, got %q", c.Map.Renderer))
	}
	if c.Tiles.Workers <= 0 {
		errs = append(errs, "tiles.workers must be positive")
	}
	if c.Valkey.MarkerKey == "" {
		errs = append(errs, "valkey.marker_key is required")
	}
	if c.Feed.URL == "" {
		errs = append(errs, "feed.url is required")
	}
	if c.Feed.PollSeconds <= 0 {
		errs = append(errs, "feed.poll_seconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
