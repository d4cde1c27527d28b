// Package dataset assembles opened assets into tabular frames.
//
// Decoding bytes into records is delegated to a Decoder chosen by the
// asset's declared media type; a Registry holds the decoders. Built-ins
// cover JSON, GeoJSON and CSV — anything heavier (NetCDF, cloud-optimized
// GeoTIFF) belongs to the caller's analysis library and is plugged in via
// Registry.Register.
//
// Usage:
//
//	reg := dataset.DefaultRegistry()
//	frame, err := dataset.Assemble(reg, []dataset.Reading{
//		{Item: item, Asset: "FRP_in", Object: obj},
//	})
//	if err != nil {
//		return err
//	}
//	for _, rec := range frame.Records() {
//		// rec["item_id"], rec["acquisition_time"], rec["asset"], data columns
//	}
package dataset

import (
	"fmt"

	"github.com/NAEO-KCL/cdse-grab/internal/catalogue"
	"github.com/NAEO-KCL/cdse-grab/internal/errs"
	"github.com/NAEO-KCL/cdse-grab/internal/filestore"
)

// Reading pairs a catalogue item with one of its opened assets. The
// object is read to the end during assembly but never closed here; the
// opener keeps that responsibility.
type Reading struct {
	Item   catalogue.Item
	Asset  string
	Object filestore.Object
}

// Assemble decodes every reading, in order, into one frame. Each record
// is annotated with the item it came from: "acquisition_time", "item_id"
// and "asset" columns follow the data columns.
//
// The decoder is chosen by the asset's declared media type, falling back
// to the stored object's content type when the catalogue declares none.
// A media type without a registered decoder fails the whole assembly.
func Assemble(reg *Registry, readings []Reading) (*Frame, error) {
	frame := NewFrame()

	for _, rd := range readings {
		mediaType := mediaTypeOf(rd)

		dec, ok := reg.Lookup(mediaType)
		if !ok {
			return nil, errs.New(errs.ErrKindUnsupportedMediaType,
				fmt.Sprintf("no decoder registered for media type %q (item %s, asset %s)",
					mediaType, rd.Item.ID, rd.Asset))
		}

		decoded, err := dec.Decode(rd.Object)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindUnknown,
				fmt.Sprintf("decode asset %s of item %s", rd.Asset, rd.Item.ID), err)
		}

		frame.AddColumns(decoded.Columns()...)
		frame.AddColumns("acquisition_time", "item_id", "asset")

		for _, rec := range decoded.Records() {
			rec["acquisition_time"] = rd.Item.AcquisitionTime
			rec["item_id"] = rd.Item.ID
			rec["asset"] = rd.Asset
			frame.Append(rec)
		}
	}
	return frame, nil
}

// mediaTypeOf picks the media type governing a reading's decoding.
func mediaTypeOf(rd Reading) string {
	if asset, ok := rd.Item.Assets[rd.Asset]; ok && asset.Type != "" {
		return asset.Type
	}
	if rd.Object != nil {
		return rd.Object.Info().ContentType
	}
	return ""
}
