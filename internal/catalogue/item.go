package catalogue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
)

// Item is a single catalogue entry (a STAC item): one acquired product with
// its metadata and the set of retrievable files.
// Items are read-only once produced by a search.
type Item struct {
	// ID is unique within the catalogue. Two searches may return the same ID.
	ID string

	// Collection is the dataset series the item belongs to.
	Collection string

	// Geometry is the product footprint. Nil when the search excluded the
	// geometry field.
	Geometry *geojson.Geometry

	// BBox is the footprint bounding box ([west south east north]), when
	// the catalogue provides one.
	BBox []float64

	// AcquisitionTime is the sensing timestamp, extracted from the item's
	// datetime property (or start_datetime when datetime is null).
	// Zero when the item declares neither.
	AcquisitionTime time.Time

	// Properties holds every item property exactly as returned.
	Properties map[string]any

	// Assets maps asset name (e.g. "FRP_in") to the retrievable file.
	Assets map[string]Asset
}

// Asset is a reference to a single retrievable file belonging to an Item.
type Asset struct {
	// Href locates the file: an s3:// URI or an absolute URL under the
	// configured storage endpoint.
	Href string `json:"href"`

	// Type is the declared media type (e.g. "application/x-netcdf").
	Type string `json:"type,omitempty"`

	// Title is a human-readable label.
	Title string `json:"title,omitempty"`

	// Roles classifies the asset (e.g. "data", "metadata", "thumbnail").
	Roles []string `json:"roles,omitempty"`
}

// Collection describes one dataset series offered by the catalogue.
type Collection struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	License     string `json:"license,omitempty"`
}

// Link is a STAC hypermedia link. Search responses use rel="next" links to
// chain result pages; POST-style next links may carry a body to resubmit.
type Link struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Type   string          `json:"type,omitempty"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Merge  bool            `json:"merge,omitempty"`
}

// itemJSON is the wire form of an Item.
type itemJSON struct {
	Type       string             `json:"type"`
	ID         string             `json:"id"`
	Collection string             `json:"collection,omitempty"`
	Geometry   *geojson.Geometry  `json:"geometry"`
	BBox       []float64          `json:"bbox,omitempty"`
	Properties map[string]any     `json:"properties"`
	Assets     map[string]Asset   `json:"assets,omitempty"`
}

// UnmarshalJSON decodes a STAC item and derives AcquisitionTime from its
// properties. A malformed datetime is a parse error; an absent one is not
// (some collections legitimately carry null datetimes).
func (it *Item) UnmarshalJSON(data []byte) error {
	var w itemJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	t, err := acquisitionTime(w.Properties)
	if err != nil {
		return fmt.Errorf("item %q: %w", w.ID, err)
	}

	it.ID = w.ID
	it.Collection = w.Collection
	it.Geometry = w.Geometry
	it.BBox = w.BBox
	it.AcquisitionTime = t
	it.Properties = w.Properties
	it.Assets = w.Assets
	return nil
}

// MarshalJSON emits the item back in STAC wire form. AcquisitionTime is not
// written separately — it lives inside Properties.
func (it Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(itemJSON{
		Type:       "Feature",
		ID:         it.ID,
		Collection: it.Collection,
		Geometry:   it.Geometry,
		BBox:       it.BBox,
		Properties: it.Properties,
		Assets:     it.Assets,
	})
}

// acquisitionTime extracts the sensing timestamp from STAC item properties.
func acquisitionTime(props map[string]any) (time.Time, error) {
	for _, key := range []string{"datetime", "start_datetime"} {
		s, ok := props[key].(string)
		if !ok || s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("property %s: %w", key, err)
		}
		return t, nil
	}
	return time.Time{}, nil
}

// featureCollection is a single page of search results.
type featureCollection struct {
	Type           string `json:"type"`
	Features       []Item `json:"features"`
	Links          []Link `json:"links,omitempty"`
	NumberMatched  *int   `json:"numberMatched,omitempty"`
	NumberReturned *int   `json:"numberReturned,omitempty"`
}

// next returns the rel="next" link of the page, or nil on the last page.
func (fc *featureCollection) next() *Link {
	for i := range fc.Links {
		if fc.Links[i].Rel == "next" {
			return &fc.Links[i]
		}
	}
	return nil
}

// collectionsResponse is the wire form of GET {root}/collections.
type collectionsResponse struct {
	Collections []Collection `json:"collections"`
}
