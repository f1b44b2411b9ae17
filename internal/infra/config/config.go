// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Admin     AdminConfig             `yaml:"admin"`
	Playback  PlaybackConfig          `yaml:"playback"`
	Extractor ExtractorConfig         `yaml:"extractor"`
	Catalog   CatalogConfig           `yaml:"catalog"`
	Matcher   MatcherConfig           `yaml:"matcher"`
	Filters   map[string]FilterConfig `yaml:"filters"`
	Autoplay  AutoplayConfig          `yaml:"autoplay"`
	Spotify   SpotifyConfig           `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// PlaybackConfig represents per-guild session configuration.
type PlaybackConfig struct {
	IdleTimeoutSec int     `yaml:"idle_timeout_sec" default:"300" validate:"gte=0"`
	DefaultVolume  float64 `yaml:"default_volume" default:"0.5" validate:"gte=0,lte=1"`
	EventBuffer    int     `yaml:"event_buffer" default:"16" validate:"gte=1,lte=1024"`
	// SimulatedTrackSec is how long the built-in voice simulator plays each stream.
	SimulatedTrackSec int `yaml:"simulated_track_sec" default:"180" validate:"gte=1"`
}

// ExtractorConfig represents yt-dlp settings.
type ExtractorConfig struct {
	Mode               string `yaml:"mode" default:"link" validate:"oneof=link download"`
	TempDir            string `yaml:"temp_dir"`
	Format             string `yaml:"format" default:"bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"`
	Proxy              string `yaml:"proxy"`
	MetadataTimeoutSec int    `yaml:"metadata_timeout_sec" default:"30" validate:"gte=1,lte=300"`
	StreamTimeoutSec   int    `yaml:"stream_timeout_sec" default:"60" validate:"gte=1,lte=600"`
}

// CatalogConfig represents catalog provider configuration.
// Providers are listed in priority order.
type CatalogConfig struct {
	Providers   []ProviderConfig `yaml:"providers" validate:"dive"`
	SearchLimit int              `yaml:"search_limit" default:"10" validate:"gte=1,lte=50"`
}

// ProviderConfig represents a single catalog provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=youtube ytmusic soundcloud spotify"`
	Settings map[string]any `yaml:"settings"`
}

// MatcherConfig represents similarity matcher configuration.
type MatcherConfig struct {
	CandidateLimit int      `yaml:"candidate_limit" default:"5" validate:"gte=1,lte=25"`
	MinScore       float64  `yaml:"min_score" validate:"gte=0,lte=1"`
	Priority       []string `yaml:"priority" validate:"dive,oneof=youtube ytmusic soundcloud spotify"`
	TimeoutSec     int      `yaml:"timeout_sec" default:"30" validate:"gte=1,lte=300"`
}

// AutoplayConfig represents autoplay configuration.
// Providers are tried in order and their suggestions merged.
type AutoplayConfig struct {
	Enabled        bool                     `yaml:"enabled"` // Initial setting for new sessions
	SeedCount      int                      `yaml:"seed_count" default:"3" validate:"gte=1,lte=10"`
	CandidateCount int                      `yaml:"candidate_count" default:"10" validate:"gte=1,lte=50"`
	TimeoutSec     int                      `yaml:"timeout_sec" default:"20" validate:"gte=1,lte=120"`
	Providers      []AutoplayProviderConfig `yaml:"providers" validate:"dive"`
}

// AutoplayProviderConfig represents a single autoplay provider configuration.
type AutoplayProviderConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=lastfm artist playlist"`
	Settings map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// SpotifyConfig represents Spotify API configuration.
// Credentials are optional; without them Spotify search returns nothing.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// DefaultAutoplayProviders is used when no autoplay providers are configured.
var DefaultAutoplayProviders = []AutoplayProviderConfig{
	{Type: "artist"},
}

// DefaultProviders is used when no catalog providers are configured.
var DefaultProviders = []ProviderConfig{
	{Type: "youtube"},
	{Type: "ytmusic"},
	{Type: "soundcloud"},
	{Type: "spotify"},
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses YAML configuration, applies environment overrides and defaults,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if len(cfg.Catalog.Providers) == 0 {
		cfg.Catalog.Providers = append([]ProviderConfig(nil), DefaultProviders...)
	}
	if len(cfg.Autoplay.Providers) == 0 {
		cfg.Autoplay.Providers = append([]AutoplayProviderConfig(nil), DefaultAutoplayProviders...)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("ENCORE_ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("ENCORE_YTDLP_PROXY"); v != "" {
		c.Extractor.Proxy = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i, p := range c.Autoplay.Providers {
			if p.Type != "lastfm" {
				continue
			}
			if p.Settings == nil {
				c.Autoplay.Providers[i].Settings = map[string]any{}
			}
			c.Autoplay.Providers[i].Settings["api_key"] = v
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	seen := make(map[string]bool, len(c.Catalog.Providers))
	for _, p := range c.Catalog.Providers {
		if seen[p.Type] {
			return errors.Newf("catalog provider %s is configured twice", p.Type)
		}
		seen[p.Type] = true
	}

	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		return errors.New("spotify client_id and client_secret must be set together")
	}

	return nil
}

// HasSpotifyCredentials reports whether Spotify client credentials are set.
func (c *Config) HasSpotifyCredentials() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// IdleTimeout returns the session inactivity timeout. Zero disables it.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Playback.IdleTimeoutSec) * time.Second
}

// AutoplayTimeout returns the bound for one autoplay lookup.
func (c *Config) AutoplayTimeout() time.Duration {
	return time.Duration(c.Autoplay.TimeoutSec) * time.Second
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
