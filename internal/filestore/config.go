package filestore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/NAEO-KCL/cdse-grab/internal/config"
	"github.com/NAEO-KCL/cdse-grab/internal/errs"
)

// Provider identifies the object storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// EODataBucket is the bucket the Copernicus archive publishes products
// under. It is the default bucket for stores built via FromAppConfig.
const EODataBucket = "eodata"

// Config holds all settings needed to connect to an object storage
// backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider

	// Endpoint is the host:port of the storage server, without scheme.
	// Example: "eodata.dataspace.copernicus.eu".
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends. Leave empty for
	// MinIO-compatible endpoints.
	Region string

	// DefaultBucket is the bucket Ping checks for reachability.
	// Callers still name a bucket explicitly on every request.
	DefaultBucket string
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:      ProviderMinIO,
		Endpoint:      endpoint,
		AccessKey:     accessKey,
		SecretKey:     secretKey,
		UseSSL:        false,
		DefaultBucket: EODataBucket,
	}
}

// FromAppConfig derives a storage Config from the application
// configuration. A scheme in s3.endpoint_url overrides the s3.https flag;
// a bare host leaves the flag in charge.
func FromAppConfig(cfg *config.Config) (*Config, error) {
	host, secure, err := splitEndpoint(cfg.S3.EndpointURL, cfg.S3.HTTPS)
	if err != nil {
		return nil, err
	}
	return &Config{
		Provider:      ProviderMinIO,
		Endpoint:      host,
		AccessKey:     cfg.S3.AccessKey,
		SecretKey:     cfg.S3.SecretKey,
		UseSSL:        secure,
		DefaultBucket: EODataBucket,
	}, nil
}

// splitEndpoint turns an endpoint URL or bare host[:port] into the
// host and TLS flag the storage SDK expects.
func splitEndpoint(endpoint string, https bool) (string, bool, error) {
	e := strings.TrimSpace(endpoint)
	if e == "" {
		return "", false, errs.New(errs.ErrKindConfigInvalid, "storage endpoint is empty")
	}
	if !strings.Contains(e, "://") {
		return strings.TrimRight(e, "/"), https, nil
	}

	u, err := url.Parse(e)
	if err != nil || u.Host == "" {
		return "", false, errs.New(errs.ErrKindConfigInvalid,
			fmt.Sprintf("storage endpoint %q is not a valid URL", endpoint))
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, errs.New(errs.ErrKindConfigInvalid,
			fmt.Sprintf("storage endpoint %q has unsupported scheme %q", endpoint, u.Scheme))
	}
}
