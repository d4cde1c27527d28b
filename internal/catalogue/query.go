package catalogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/NAEO-KCL/cdse-grab/internal/errs"
)

// DefaultCollection is the collection searched when callers have no other
// preference: Sentinel-3 SLSTR fire radiative power, non-time-critical.
const DefaultCollection = "sentinel-3-sl-2-frp-ntc"

// FilterOp is a comparison operator usable in property filters.
type FilterOp string

const (
	OpEq         FilterOp = "eq"
	OpNeq        FilterOp = "neq"
	OpLt         FilterOp = "lt"
	OpLte        FilterOp = "lte"
	OpGt         FilterOp = "gt"
	OpGte        FilterOp = "gte"
	OpStartsWith FilterOp = "startsWith"
	OpEndsWith   FilterOp = "endsWith"
	OpContains   FilterOp = "contains"
)

// validOps is the allowlist of operators the catalogue query extension
// accepts. Anything else is rejected before a request is made.
var validOps = map[FilterOp]bool{
	OpEq:         true,
	OpNeq:        true,
	OpLt:         true,
	OpLte:        true,
	OpGt:         true,
	OpGte:        true,
	OpStartsWith: true,
	OpEndsWith:   true,
	OpContains:   true,
}

type propertyFilter struct {
	property string
	op       FilterOp
	value    any
}

// Search accumulates criteria for one catalogue query. Methods return the
// receiver so criteria chain fluently; validation happens when the search is
// executed, not as criteria are added.
//
// Usage:
//
//	search := catalogue.NewSearch(catalogue.DefaultCollection).
//		Between(start, end).
//		BBox(-10.5, 35.0, 4.6, 44.3).
//		Filter("eo:cloud_cover", catalogue.OpLte, 20).
//		Limit(50)
//	results, err := client.Search(ctx, search)
//
// A Search carries no iteration state: executing the same Search twice
// issues two independent sets of catalogue calls.
type Search struct {
	collection string
	ids        []string
	bbox       []float64
	intersects *geojson.Geometry
	start      *time.Time
	end        *time.Time
	filters    []propertyFilter
	limit      int
	maxItems   int
	exclude    []string
}

// NewSearch starts a search over the given collection.
func NewSearch(collection string) *Search {
	return &Search{collection: collection}
}

// IDs restricts the search to the given item IDs.
func (s *Search) IDs(ids ...string) *Search {
	s.ids = append(s.ids, ids...)
	return s
}

// BBox restricts the search to items intersecting the bounding box,
// given as west, south, east, north in degrees. A box crossing the
// antimeridian has west > east; that is valid.
func (s *Search) BBox(west, south, east, north float64) *Search {
	s.bbox = []float64{west, south, east, north}
	return s
}

// Intersects restricts the search to items intersecting the geometry.
// At most one of BBox and Intersects may be set.
func (s *Search) Intersects(g *geojson.Geometry) *Search {
	s.intersects = g
	return s
}

// From sets the inclusive lower acquisition-time bound.
func (s *Search) From(t time.Time) *Search {
	u := t
	s.start = &u
	return s
}

// Until sets the exclusive upper acquisition-time bound: items acquired at
// exactly this instant are not returned.
func (s *Search) Until(t time.Time) *Search {
	u := t
	s.end = &u
	return s
}

// Between sets both acquisition-time bounds at once; equivalent to
// From(start).Until(end). The interval is half-open: start is included,
// end is not.
func (s *Search) Between(start, end time.Time) *Search {
	return s.From(start).Until(end)
}

// Filter adds a property comparison, e.g.
// Filter("eo:cloud_cover", OpLte, 20). Multiple filters combine with AND;
// multiple filters on the same property all apply.
func (s *Search) Filter(property string, op FilterOp, value any) *Search {
	s.filters = append(s.filters, propertyFilter{property: property, op: op, value: value})
	return s
}

// Limit sets the page size requested from the catalogue. It bounds each
// round trip, not the total: iteration keeps following pages. Zero leaves
// the catalogue's default in place.
func (s *Search) Limit(n int) *Search {
	s.limit = n
	return s
}

// MaxItems caps the total number of items the search yields across all
// pages. Zero means unlimited.
func (s *Search) MaxItems(n int) *Search {
	s.maxItems = n
	return s
}

// ExcludeFields asks the catalogue to omit the named item fields from
// responses (e.g. "geometry" to shrink payloads for large result sets).
func (s *Search) ExcludeFields(names ...string) *Search {
	s.exclude = append(s.exclude, names...)
	return s
}

// build validates the accumulated criteria and produces the request body.
func (s *Search) build() (*searchRequest, error) {
	if strings.TrimSpace(s.collection) == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "search: collection must not be empty")
	}
	if s.bbox != nil && s.intersects != nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "search: bbox and intersects are mutually exclusive")
	}
	if s.limit < 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("search: limit must not be negative, got %d", s.limit))
	}
	if s.maxItems < 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("search: max items must not be negative, got %d", s.maxItems))
	}
	if s.start != nil && s.end != nil && s.end.Before(*s.start) {
		return nil, errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("search: time range end %s precedes start %s",
				s.end.Format(time.RFC3339), s.start.Format(time.RFC3339)))
	}

	req := &searchRequest{
		Collections: []string{s.collection},
		IDs:         s.ids,
		BBox:        s.bbox,
		Intersects:  s.intersects,
		Datetime:    formatInterval(s.start, s.end),
		Limit:       s.limit,
	}

	for _, f := range s.filters {
		if strings.TrimSpace(f.property) == "" {
			return nil, errs.New(errs.ErrKindInvalidInput, "search: filter property must not be empty")
		}
		if !validOps[f.op] {
			return nil, errs.New(errs.ErrKindInvalidInput,
				fmt.Sprintf("search: unsupported filter operator %q on property %q", f.op, f.property))
		}
		if req.Query == nil {
			req.Query = make(map[string]map[string]any)
		}
		if req.Query[f.property] == nil {
			req.Query[f.property] = make(map[string]any)
		}
		req.Query[f.property][string(f.op)] = f.value
	}

	if len(s.exclude) > 0 {
		req.Fields = &fieldsSpec{Exclude: s.exclude}
	}
	return req, nil
}

// window returns the client-side acquisition-time filter for the search.
func (s *Search) window() timeWindow {
	return timeWindow{start: s.start, end: s.end}
}

// empty reports whether the search can be answered without any catalogue
// call: a zero-width time range [t, t) matches nothing.
func (s *Search) empty() bool {
	return s.start != nil && s.end != nil && s.start.Equal(*s.end)
}

// formatInterval renders the STAC datetime parameter, with ".." for an
// open side and omitted entirely when both sides are open.
func formatInterval(start, end *time.Time) string {
	if start == nil && end == nil {
		return ""
	}
	lo, hi := "..", ".."
	if start != nil {
		lo = start.UTC().Format(time.RFC3339)
	}
	if end != nil {
		hi = end.UTC().Format(time.RFC3339)
	}
	return lo + "/" + hi
}

// timeWindow is the half-open interval [start, end) enforced on yielded
// items. The catalogue treats interval bounds as inclusive, so the upper
// bound is re-checked client-side.
type timeWindow struct {
	start *time.Time
	end   *time.Time
}

// contains reports whether t falls inside the window. An unset side is
// open. Items without an acquisition time only pass an unbounded window.
func (w timeWindow) contains(t time.Time) bool {
	if w.start == nil && w.end == nil {
		return true
	}
	if t.IsZero() {
		return false
	}
	if w.start != nil && t.Before(*w.start) {
		return false
	}
	if w.end != nil && !t.Before(*w.end) {
		return false
	}
	return true
}

// searchRequest is the wire form of a POST {root}/search body.
type searchRequest struct {
	Collections []string                  `json:"collections,omitempty"`
	IDs         []string                  `json:"ids,omitempty"`
	BBox        []float64                 `json:"bbox,omitempty"`
	Intersects  *geojson.Geometry         `json:"intersects,omitempty"`
	Datetime    string                    `json:"datetime,omitempty"`
	Limit       int                       `json:"limit,omitempty"`
	Query       map[string]map[string]any `json:"query,omitempty"`
	Fields      *fieldsSpec               `json:"fields,omitempty"`
}

type fieldsSpec struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}
