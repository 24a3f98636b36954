// Package config handles configuration loading, saving, and defaults for the geopol CLI
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config directories and files
var (
	ConfigDir  string
	ConfigFile string
	CacheFile  string
	LogFile    string
)

func init() {
	homeDir, _ := os.UserHomeDir()
	ConfigDir = filepath.Join(homeDir, ".config", "geopol")
	ConfigFile = filepath.Join(ConfigDir, "settings.json")
	CacheFile = filepath.Join(ConfigDir, "cache.db")
	LogFile = filepath.Join(ConfigDir, "geopol.log")
}

// Overlay identifiers, in display order
const (
	OverlayEntities    = "geopolitical_entities"
	OverlaySDR         = "sdr_receivers"
	OverlayWeather     = "weather"
	OverlayEarthquakes = "earthquakes"
)

// OverlayIDs lists the overlay identifiers in display order
var OverlayIDs = []string{OverlayEntities, OverlaySDR, OverlayWeather, OverlayEarthquakes}

// ConnectionSettings contains backend connection options
type ConnectionSettings struct {
	ServerURL       string `json:"server_url" mapstructure:"server_url"`
	FetchTimeoutSec int    `json:"fetch_timeout_sec" mapstructure:"fetch_timeout_sec"`
}

// MapSettings contains the initial viewport and zoom bounds
type MapSettings struct {
	CenterLat float64 `json:"center_lat" mapstructure:"center_lat"`
	CenterLng float64 `json:"center_lng" mapstructure:"center_lng"`
	Zoom      int     `json:"zoom" mapstructure:"zoom"`
	MinZoom   int     `json:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom   int     `json:"max_zoom" mapstructure:"max_zoom"`
}

// OverlaySettings contains per-overlay refresh and draw order options
type OverlaySettings struct {
	RefreshSec int     `json:"refresh_sec" mapstructure:"refresh_sec"`
	ZIndex     int     `json:"z_index" mapstructure:"z_index"`
	Opacity    float64 `json:"opacity" mapstructure:"opacity"`
}

// StatusSettings contains liveness monitor options
type StatusSettings struct {
	PollSec           int  `json:"poll_sec" mapstructure:"poll_sec"`
	Stream            bool `json:"stream" mapstructure:"stream"`
	ReconnectDelaySec int  `json:"reconnect_delay_sec" mapstructure:"reconnect_delay_sec"`
}

// DisplaySettings contains UI display options
type DisplaySettings struct {
	Theme string `json:"theme" mapstructure:"theme"`
}

// StorageSettings contains the local profile cache location
type StorageSettings struct {
	CachePath string `json:"cache_path" mapstructure:"cache_path"`
}

// ExportSettings contains export options
type ExportSettings struct {
	Directory string `json:"directory" mapstructure:"directory"`
}

// LogSettings contains logging options
type LogSettings struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// Config is the main configuration container
type Config struct {
	Connection ConnectionSettings         `json:"connection" mapstructure:"connection"`
	Map        MapSettings                `json:"map" mapstructure:"map"`
	Overlays   map[string]OverlaySettings `json:"overlays" mapstructure:"overlays"`
	Status     StatusSettings             `json:"status" mapstructure:"status"`
	Display    DisplaySettings            `json:"display" mapstructure:"display"`
	Storage    StorageSettings            `json:"storage" mapstructure:"storage"`
	Export     ExportSettings             `json:"export" mapstructure:"export"`
	Log        LogSettings                `json:"log" mapstructure:"log"`

	path string
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionSettings{
			ServerURL:       "http://localhost:5000",
			FetchTimeoutSec: 15,
		},
		Map: MapSettings{
			CenterLat: 20.0,
			CenterLng: 0.0,
			Zoom:      2,
			MinZoom:   1,
			MaxZoom:   12,
		},
		Overlays: map[string]OverlaySettings{
			OverlayEntities:    {RefreshSec: 0, ZIndex: 400, Opacity: 0.8},
			OverlaySDR:         {RefreshSec: 300, ZIndex: 410, Opacity: 1.0},
			OverlayWeather:     {RefreshSec: 600, ZIndex: 420, Opacity: 0.6},
			OverlayEarthquakes: {RefreshSec: 300, ZIndex: 430, Opacity: 1.0},
		},
		Status: StatusSettings{
			PollSec:           30,
			Stream:            false,
			ReconnectDelaySec: 5,
		},
		Display: DisplaySettings{
			Theme: "dark",
		},
		Storage: StorageSettings{
			CachePath: CacheFile,
		},
		Export: ExportSettings{
			Directory: "",
		},
		Log: LogSettings{
			Level: "info",
			File:  LogFile,
		},
	}
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir, 0755)
}

func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("connection.server_url", def.Connection.ServerURL)
	v.SetDefault("connection.fetch_timeout_sec", def.Connection.FetchTimeoutSec)

	v.SetDefault("map.center_lat", def.Map.CenterLat)
	v.SetDefault("map.center_lng", def.Map.CenterLng)
	v.SetDefault("map.zoom", def.Map.Zoom)
	v.SetDefault("map.min_zoom", def.Map.MinZoom)
	v.SetDefault("map.max_zoom", def.Map.MaxZoom)

	for id, ov := range def.Overlays {
		v.SetDefault("overlays."+id+".refresh_sec", ov.RefreshSec)
		v.SetDefault("overlays."+id+".z_index", ov.ZIndex)
		v.SetDefault("overlays."+id+".opacity", ov.Opacity)
	}

	v.SetDefault("status.poll_sec", def.Status.PollSec)
	v.SetDefault("status.stream", def.Status.Stream)
	v.SetDefault("status.reconnect_delay_sec", def.Status.ReconnectDelaySec)

	v.SetDefault("display.theme", def.Display.Theme)
	v.SetDefault("storage.cache_path", def.Storage.CachePath)
	v.SetDefault("export.directory", def.Export.Directory)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)
}

// Load reads configuration from the given JSON file (or the default settings
// file when path is empty), layering GEOPOL_* environment overrides on top.
// A missing file yields defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigFile
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("GEOPOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	cfg.path = path
	cfg.fillMissingOverlays()

	return cfg, nil
}

// fillMissingOverlays restores defaults for overlays absent from the file
func (c *Config) fillMissingOverlays() {
	if c.Overlays == nil {
		c.Overlays = make(map[string]OverlaySettings)
	}
	for id, ov := range DefaultConfig().Overlays {
		if _, ok := c.Overlays[id]; !ok {
			c.Overlays[id] = ov
		}
	}
}

// Save saves configuration to its file
func Save(config *Config) error {
	path := config.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	if c.path == "" {
		return ConfigFile
	}
	return c.path
}

// SetPath changes the file the configuration is saved to
func (c *Config) SetPath(path string) {
	c.path = path
}

// FetchTimeout returns the per-request timeout for backend calls
func (c *Config) FetchTimeout() time.Duration {
	if c.Connection.FetchTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Connection.FetchTimeoutSec) * time.Second
}

// RefreshInterval returns the auto-refresh interval for an overlay; zero disables it
func (c *Config) RefreshInterval(id string) time.Duration {
	ov, ok := c.Overlays[id]
	if !ok || ov.RefreshSec <= 0 {
		return 0
	}
	return time.Duration(ov.RefreshSec) * time.Second
}

// StatusInterval returns the liveness poll interval
func (c *Config) StatusInterval() time.Duration {
	if c.Status.PollSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Status.PollSec) * time.Second
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	return ConfigFile
}
