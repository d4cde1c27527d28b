// Package catalogue searches a STAC API for satellite products.
//
// A Client talks to one catalogue endpoint. Searches are described with the
// fluent Search builder and executed lazily: Search validates the criteria
// and fetches the first page eagerly, then the returned Results follows the
// catalogue's paging links as the caller iterates.
//
// Usage:
//
//	client, err := catalogue.New(catalogue.ClientConfig{
//		BaseURL: config.DefaultCatalogueURL,
//	})
//	if err != nil {
//		return err
//	}
//
//	search := catalogue.NewSearch(catalogue.DefaultCollection).
//		Between(start, end).
//		Limit(100)
//
//	results, err := client.Search(ctx, search)
//	if err != nil {
//		return err
//	}
//	for results.Next() {
//		item := results.Item()
//		// use item
//	}
//	if err := results.Err(); err != nil {
//		return err
//	}
package catalogue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/NAEO-KCL/cdse-grab/internal/errs"
	"github.com/NAEO-KCL/cdse-grab/internal/logger"
)

const (
	searchPath      = "/search"
	collectionsPath = "/collections"
)

// ClientConfig configures a catalogue Client.
type ClientConfig struct {
	// BaseURL is the STAC API root, e.g. config.DefaultCatalogueURL.
	// Required.
	BaseURL string

	// HTTPClient sends the requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives page-level debug logs. Defaults to a no-op logger.
	Logger *zerolog.Logger

	// Limiter, when set, is awaited before every page request, including
	// the first. Use it to stay inside the catalogue's rate limits on
	// searches that walk many pages.
	Limiter *rate.Limiter
}

// Client is a thin client for one STAC catalogue. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
	limiter *rate.Limiter
}

// New creates a Client for the catalogue at cfg.BaseURL. No request is made
// until the first search.
func New(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "catalogue: base URL must not be empty")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	log := logger.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Client{baseURL: base, http: hc, log: log, limiter: cfg.Limiter}, nil
}

// Collections lists the dataset series the catalogue offers.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	body, err := c.get(ctx, c.baseURL+collectionsPath)
	if err != nil {
		return nil, err
	}
	var resp collectionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(errs.ErrKindCatalogueParse, "catalogue: decode collections response", err)
	}
	return resp.Collections, nil
}

// Search executes the search. The first page is fetched before Search
// returns, so criteria errors and an unreachable catalogue surface here;
// failures on later pages surface through Results.Err.
//
// A search whose time range has zero width returns an empty result set
// without contacting the catalogue.
func (c *Client) Search(ctx context.Context, s *Search) (*Results, error) {
	req, err := s.build()
	if err != nil {
		return nil, err
	}

	log := c.log.With().
		Str("search_id", uuid.NewString()).
		Str("collection", s.collection).
		Logger()

	if s.empty() {
		log.Debug().Msg("zero-width time range, returning empty results")
		return emptyResults(), nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "search: encode request body", err)
	}

	url := c.baseURL + searchPath
	log.Debug().Str("url", url).Msg("catalogue search started")

	first := Link{Rel: "self", Href: url, Method: http.MethodPost, Body: body}
	page, err := c.fetchPage(ctx, first, body, log)
	if err != nil {
		return nil, err
	}
	return newResults(ctx, c, page, body, s.window(), s.maxItems, log), nil
}

// get fetches url and returns the response body of a 200.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("catalogue: build request for %s", url), err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

// fetchPage retrieves one page of search results by following lnk.
// baseBody is the original search request body, resubmitted when the
// catalogue asks for a merged POST continuation.
func (c *Client) fetchPage(ctx context.Context, lnk Link, baseBody []byte, log zerolog.Logger) (*featureCollection, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errs.Wrap(errs.ErrKindTimeout, "catalogue: rate limit wait interrupted", err)
		}
	}

	method := lnk.Method
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if method == http.MethodPost {
		b, err := pageBody(lnk, baseBody)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, lnk.Href, reqBody)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("catalogue: build request for %s", lnk.Href), err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var page featureCollection
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, errs.Wrap(errs.ErrKindCatalogueParse, fmt.Sprintf("catalogue: decode search response from %s", lnk.Href), err)
	}

	log.Debug().
		Str("url", lnk.Href).
		Int("items", len(page.Features)).
		Bool("last_page", page.next() == nil).
		Msg("catalogue page fetched")
	return &page, nil
}

// do sends the request and returns the body of a 200 response. Transport
// and status failures map onto the catalogue error kinds.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, errs.Wrap(errs.ErrKindTimeout, fmt.Sprintf("catalogue: request to %s interrupted", req.URL), err)
		}
		return nil, errs.Wrap(errs.ErrKindCatalogueUnavailable, fmt.Sprintf("catalogue: request to %s failed", req.URL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindCatalogueUnavailable, fmt.Sprintf("catalogue: read response from %s", req.URL), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.ErrKindCatalogueUnavailable,
			fmt.Sprintf("catalogue: %s returned HTTP %d", req.URL, resp.StatusCode))
	}
	return body, nil
}

// pageBody resolves the request body for a POST page link. A merge link
// overlays its body onto the original search request, field by field.
func pageBody(lnk Link, baseBody []byte) ([]byte, error) {
	if len(lnk.Body) == 0 {
		return baseBody, nil
	}
	if !lnk.Merge {
		return lnk.Body, nil
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(baseBody, &merged); err != nil {
		return nil, errs.Wrap(errs.ErrKindCatalogueParse, "catalogue: merge paging link body", err)
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(lnk.Body, &overlay); err != nil {
		return nil, errs.Wrap(errs.ErrKindCatalogueParse, "catalogue: merge paging link body", err)
	}
	for k, v := range overlay {
		merged[k] = v
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindCatalogueParse, "catalogue: merge paging link body", err)
	}
	return b, nil
}
