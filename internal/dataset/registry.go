package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/NAEO-KCL/cdse-grab/internal/errs"
)

// Media types with built-in decoders, plus the NetCDF type FRP products
// actually carry — decoding that one needs an analysis library and is
// registered by the caller.
const (
	MediaTypeJSON    = "application/json"
	MediaTypeGeoJSON = "application/geo+json"
	MediaTypeCSV     = "text/csv"
	MediaTypeNetCDF  = "application/x-netcdf"
)

// Decoder turns the raw bytes of one asset into a frame.
type Decoder interface {
	Decode(r io.Reader) (*Frame, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(r io.Reader) (*Frame, error)

func (f DecoderFunc) Decode(r io.Reader) (*Frame, error) {
	return f(r)
}

// Registry maps media types to decoders. Lookups normalize the type:
// parameters and case are ignored, so "Text/CSV; header=present" finds
// the "text/csv" decoder.
type Registry struct {
	decoders map[string]Decoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: map[string]Decoder{}}
}

// DefaultRegistry returns a registry with the built-in JSON, GeoJSON and
// CSV decoders.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MediaTypeJSON, DecoderFunc(decodeJSON))
	r.Register(MediaTypeGeoJSON, DecoderFunc(decodeGeoJSON))
	r.Register(MediaTypeCSV, DecoderFunc(decodeCSV))
	return r
}

// Register adds or replaces the decoder for mediaType.
func (r *Registry) Register(mediaType string, d Decoder) {
	r.decoders[normalizeMediaType(mediaType)] = d
}

// Lookup returns the decoder for mediaType, if one is registered.
func (r *Registry) Lookup(mediaType string) (Decoder, bool) {
	d, ok := r.decoders[normalizeMediaType(mediaType)]
	return d, ok
}

// Decode runs the registered decoder for mediaType over src.
func (r *Registry) Decode(mediaType string, src io.Reader) (*Frame, error) {
	dec, ok := r.Lookup(mediaType)
	if !ok {
		return nil, errs.New(errs.ErrKindUnsupportedMediaType,
			fmt.Sprintf("no decoder registered for media type %q", mediaType))
	}
	frame, err := dec.Decode(src)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown,
			fmt.Sprintf("decode %s content", normalizeMediaType(mediaType)), err)
	}
	return frame, nil
}

// normalizeMediaType strips parameters and lowercases the type, so
// declared types compare by their essence.
func normalizeMediaType(mediaType string) string {
	mt := strings.TrimSpace(mediaType)
	if mt == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// --- built-in decoders ---

// decodeJSON accepts an array of objects, or a single object treated as
// one record.
func decodeJSON(r io.Reader) (*Frame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	frame := NewFrame()

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err == nil {
		for _, row := range rows {
			frame.Append(Record(row))
		}
		return frame, nil
	}

	var row map[string]any
	if err := json.Unmarshal(data, &row); err == nil {
		frame.Append(Record(row))
		return frame, nil
	}

	return nil, errors.New("content is neither a JSON array of objects nor a JSON object")
}

// decodeGeoJSON accepts a FeatureCollection or a single Feature. Each
// feature becomes one record of its properties plus a "geometry" column.
func decodeGeoJSON(r io.Reader) (*Frame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("content is not GeoJSON: %w", err)
	}

	frame := NewFrame()

	appendFeature := func(ft *geojson.Feature) {
		rec := Record{}
		for k, v := range ft.Properties {
			rec[k] = v
		}
		if ft.Geometry != nil {
			rec["geometry"] = ft.Geometry
		}
		frame.Append(rec)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		for _, ft := range fc.Features {
			appendFeature(ft)
		}
	case "Feature":
		ft, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		appendFeature(ft)
	default:
		return nil, fmt.Errorf("content is not GeoJSON (type %q)", head.Type)
	}
	return frame, nil
}

// decodeCSV reads the first row as the header. Cell values stay strings;
// typed conversion is the caller's business.
func decodeCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)

	headers, err := cr.Read()
	if err == io.EOF {
		return NewFrame(), nil
	}
	if err != nil {
		return nil, err
	}

	frame := NewFrame()
	frame.AddColumns(headers...)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			return frame, nil
		}
		if err != nil {
			return nil, err
		}
		rec := Record{}
		for i, h := range headers {
			if i < len(row) {
				rec[h] = row[i]
			}
		}
		frame.Append(rec)
	}
}
