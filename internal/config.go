package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Volume backends.
const (
	BackendFlash = "flash"
	BackendHost  = "host"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Volume  VolumeConfig      `yaml:"volume"`
	Engine  EngineConfig      `yaml:"engine"`
	Catalog CatalogConfig     `yaml:"catalog"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Volume.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VolumeConfig selects and sizes the storage driver.
//
// The "flash" backend is an in-memory flash simulator and loses its content
// when the process exits. The "host" backend stores files under Path.
type VolumeConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	CapacityBytes int64  `yaml:"capacity_bytes"`
	BlockSize     int64  `yaml:"block_size"`
	AutoFormat    bool   `yaml:"auto_format"`
}

// Validate validates the volume configuration.
func (c *VolumeConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendFlash, BackendHost)),
		validation.Field(&c.CapacityBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.BlockSize, validation.Min(int64(0))),
	); err != nil {
		return err
	}
	if c.Backend == BackendHost && c.Path == "" {
		return fmt.Errorf("volume: backend is %q but path is empty", BackendHost)
	}
	return nil
}

// EngineConfig tunes the file operations engine.
type EngineConfig struct {
	CopyChunk  int    `yaml:"copy_chunk"`
	ReadChunk  int    `yaml:"read_chunk"`
	TempPrefix string `yaml:"temp_prefix"`
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CopyChunk, validation.Min(0), validation.Max(1<<20)),
		validation.Field(&c.ReadChunk, validation.Min(0), validation.Max(1<<20)),
	)
}

// CatalogConfig holds the SQLite integrity catalog location.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Volume: VolumeConfig{
			Backend:       BackendHost,
			Path:          "./volume",
			CapacityBytes: 4 << 20,
			BlockSize:     4096,
			AutoFormat:    true,
		},
		Engine: EngineConfig{
			CopyChunk:  1024,
			ReadChunk:  512,
			TempPrefix: "/tmp_",
		},
		Catalog: CatalogConfig{
			Path: "./flashfs.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
