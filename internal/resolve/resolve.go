// Package resolve maps catalogue asset hrefs onto object-storage locations.
//
// Two href shapes resolve out of the box: s3:// URIs, whose authority is the
// bucket, and http(s) URLs under the configured storage endpoint, whose
// first path segment is the bucket. Anything else is unresolvable unless a
// caller-supplied rule claims it.
//
// Usage:
//
//	resolver, err := resolve.New(resolve.Config{
//		Endpoint: cfg.S3.EndpointURL,
//	})
//	if err != nil {
//		return err
//	}
//	loc, err := resolver.Resolve(item.Assets["FRP_in"].Href)
//	// loc.Bucket, loc.Key
package resolve

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/NAEO-KCL/cdse-grab/internal/errs"
)

// Location addresses one object in storage.
type Location struct {
	Bucket string
	Key    string
}

// String renders the location as an s3:// URI.
func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// Rule inspects a parsed asset href and either claims it, returning the
// storage location it maps to, or passes by returning false.
type Rule func(href *url.URL) (Location, bool)

// Config configures a Resolver.
type Config struct {
	// Endpoint is the object-storage endpoint assets may point at, as a
	// URL or bare host. Hrefs whose host matches it (ignoring scheme and
	// port) resolve by path: first segment bucket, remainder key. Leave
	// empty to resolve s3:// hrefs only.
	Endpoint string

	// ExtraRules run after the built-in rules, in order.
	ExtraRules []Rule
}

// Resolver turns asset hrefs into storage locations. Resolution is pure:
// the same href always yields the same location, and no network is
// involved.
type Resolver struct {
	rules []Rule
}

// New builds a Resolver from cfg.
func New(cfg Config) (*Resolver, error) {
	rules := []Rule{s3Rule}
	if strings.TrimSpace(cfg.Endpoint) != "" {
		host, err := endpointHost(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		rules = append(rules, endpointRule(host))
	}
	rules = append(rules, cfg.ExtraRules...)
	return &Resolver{rules: rules}, nil
}

// Resolve maps href onto a storage location. The first rule that claims
// the href wins; when none does, the error carries the offending href.
func (r *Resolver) Resolve(href string) (Location, error) {
	trimmed := strings.TrimSpace(href)
	if trimmed == "" {
		return Location{}, errs.New(errs.ErrKindUnresolvableAsset, "asset href is empty")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return Location{}, errs.Wrap(errs.ErrKindUnresolvableAsset,
			fmt.Sprintf("asset href %q is not a valid URL", href), err)
	}

	for _, rule := range r.rules {
		if loc, ok := rule(u); ok {
			return loc, nil
		}
	}
	return Location{}, errs.New(errs.ErrKindUnresolvableAsset,
		fmt.Sprintf("no rule resolves asset href %q to a storage location", href))
}

// s3Rule resolves s3://bucket/key hrefs.
func s3Rule(u *url.URL) (Location, bool) {
	if !strings.EqualFold(u.Scheme, "s3") {
		return Location{}, false
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return Location{}, false
	}
	return Location{Bucket: bucket, Key: key}, true
}

// endpointRule resolves http(s) hrefs served by the configured endpoint.
// Only the hostname has to match; scheme and port may differ between the
// catalogue's hrefs and the configured endpoint.
func endpointRule(host string) Rule {
	return func(u *url.URL) (Location, bool) {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
		default:
			return Location{}, false
		}
		if !strings.EqualFold(u.Hostname(), host) {
			return Location{}, false
		}

		p := strings.TrimPrefix(u.Path, "/")
		bucket, key, found := strings.Cut(p, "/")
		if !found || bucket == "" || key == "" {
			return Location{}, false
		}
		return Location{Bucket: bucket, Key: key}, true
	}
}

// endpointHost extracts the hostname from an endpoint given as a URL or a
// bare host[:port].
func endpointHost(endpoint string) (string, error) {
	e := strings.TrimSpace(endpoint)
	if !strings.Contains(e, "://") {
		e = "https://" + e
	}
	u, err := url.Parse(e)
	if err != nil || u.Hostname() == "" {
		return "", errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("storage endpoint %q has no usable host", endpoint))
	}
	return u.Hostname(), nil
}
