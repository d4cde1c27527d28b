// Package config loads and validates the cdse-grab configuration file.
//
// The configuration lives in a single JSON (or YAML) file, by default under
// the user's home directory. It is read exactly once, validated eagerly, and
// treated as immutable afterwards — every component receives the loaded
// *Config explicitly instead of consulting process-wide state.
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    if errs.IsConfigNotFound(err) { ... }
//	    ...
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NAEO-KCL/cdse-grab/internal/errs"
	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"
)

// DefaultCatalogueURL is the Copernicus Data Space STAC API root, the
// catalogue this library is normally pointed at.
const DefaultCatalogueURL = "https://stac.dataspace.copernicus.eu/v1"

// Config is the full, validated cdse-grab configuration.
// Immutable after Load; never written back to disk.
type Config struct {
	// S3 holds the object-storage endpoint and credentials.
	S3 S3Config `json:"s3" yaml:"s3"`

	// STAC holds the catalogue settings.
	STAC STACConfig `json:"stac" yaml:"stac"`

	// Logging holds the log settings.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// S3Config holds the settings for the S3-compatible eodata store.
type S3Config struct {
	// EndpointURL is the host (optionally host:port, optionally with an
	// http/https scheme prefix) of the object storage endpoint.
	// Example: "eodata.dataspace.copernicus.eu".
	EndpointURL string `json:"endpoint_url" yaml:"endpoint_url"`

	// AccessKey is the access key ID. Secret — never logged.
	AccessKey string `json:"access_key" yaml:"access_key"`

	// SecretKey is the secret access key. Secret — never logged.
	SecretKey string `json:"secret_key" yaml:"secret_key"`

	// HTTPS controls whether TLS is used for storage connections.
	// Defaults to true when absent from the file.
	HTTPS bool `json:"https" yaml:"https"`
}

// STACConfig holds the catalogue settings.
type STACConfig struct {
	// CatalogueURL is the STAC API root. Required; DefaultCatalogueURL is
	// the value to put here for the Copernicus Data Space catalogue.
	CatalogueURL string `json:"catalogue_url" yaml:"catalogue_url"`
}

// LoggingConfig holds the log settings.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARNING, ERROR (case-insensitive).
	// Defaults to INFO.
	Level string `json:"level" yaml:"level"`

	// Format is "json" (default) or "console".
	Format string `json:"format" yaml:"format"`
}

// DefaultPaths returns the locations probed by Load, in order: the per-user
// config directory first, then the working directory, each in JSON and YAML
// form.
func DefaultPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".cdse-grab", "config.json"),
			filepath.Join(home, ".cdse-grab", "config.yaml"),
		)
	}
	paths = append(paths, "cdse-grab.json", "cdse-grab.yaml")
	return paths
}

// Load reads the first configuration file found among DefaultPaths.
// Returns ErrKindConfigNotFound when none of them exists.
func Load() (*Config, error) {
	paths := DefaultPaths()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return LoadFrom(p)
		}
	}
	return nil, errs.New(errs.ErrKindConfigNotFound,
		fmt.Sprintf("no configuration file found in any of: %s", strings.Join(paths, ", ")))
}

// LoadFrom reads, parses, and validates the configuration file at path.
// The encoding is chosen by extension: .yaml/.yml is YAML, anything else JSON.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.ErrKindConfigNotFound,
				fmt.Sprintf("configuration file %s does not exist", path), err)
		}
		return nil, errs.Wrap(errs.ErrKindConfigInvalid,
			fmt.Sprintf("configuration file %s is unreadable", path), err)
	}

	cfg := withDefaults()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigInvalid,
			fmt.Sprintf("configuration file %s is not valid structured data", path), err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefaults pre-populates optional fields so that keys absent from the
// file keep their documented defaults after unmarshalling.
func withDefaults() *Config {
	return &Config{
		S3:      S3Config{HTTPS: true},
		Logging: LoggingConfig{Level: "INFO", Format: "json"},
	}
}

// normalize re-applies defaults to fields an explicit empty value blanked out.
func (c *Config) normalize() {
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate reports ErrKindConfigInvalid when a required key is missing.
// Required: s3.endpoint_url, s3.access_key, s3.secret_key,
// stac.catalogue_url.
func (c *Config) Validate() error {
	var missing []string
	if c.S3.EndpointURL == "" {
		missing = append(missing, "s3.endpoint_url")
	}
	if c.S3.AccessKey == "" {
		missing = append(missing, "s3.access_key")
	}
	if c.S3.SecretKey == "" {
		missing = append(missing, "s3.secret_key")
	}
	if c.STAC.CatalogueURL == "" {
		missing = append(missing, "stac.catalogue_url")
	}
	if len(missing) > 0 {
		return errs.New(errs.ErrKindConfigInvalid,
			fmt.Sprintf("configuration is missing required keys: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// --- zerolog integration ---

// MarshalZerologObject logs the S3 settings with both secrets redacted.
func (s S3Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("endpoint_url", s.EndpointURL).
		Str("access_key", redact(s.AccessKey)).
		Str("secret_key", redact(s.SecretKey)).
		Bool("https", s.HTTPS)
}

// MarshalZerologObject logs the full configuration; secrets stay redacted.
func (c Config) MarshalZerologObject(e *zerolog.Event) {
	e.Object("s3", c.S3).
		Str("catalogue_url", c.STAC.CatalogueURL).
		Str("log_level", c.Logging.Level)
}

// redact hides a secret, keeping only enough of the prefix to tell two
// credentials apart in a log.
func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****"
}
