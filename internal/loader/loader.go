// Package loader ties the pipeline together: it resolves an item's asset
// to a storage location, opens it, and assembles the decoded content into
// frames.
//
// Usage:
//
//	ldr, err := loader.New(loader.Config{
//		Resolver: resolver,
//		Store:    store,
//	})
//	if err != nil {
//		return err
//	}
//
//	frame, err := ldr.LoadAsset(ctx, items, "FRP_in")
//	if err != nil {
//		return err
//	}
//
// Objects opened internally are closed before the call returns, on every
// path. OpenAsset is the exception: it hands the open object to the
// caller, who must close it.
package loader

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NAEO-KCL/cdse-grab/internal/catalogue"
	"github.com/NAEO-KCL/cdse-grab/internal/dataset"
	"github.com/NAEO-KCL/cdse-grab/internal/errs"
	"github.com/NAEO-KCL/cdse-grab/internal/filestore"
	"github.com/NAEO-KCL/cdse-grab/internal/logger"
	"github.com/NAEO-KCL/cdse-grab/internal/resolve"
)

// Config configures a Loader.
type Config struct {
	// Resolver maps asset hrefs to storage locations. Required.
	Resolver *resolve.Resolver

	// Store reads objects from the archive. Required.
	Store filestore.Store

	// Registry picks decoders by media type. Defaults to
	// dataset.DefaultRegistry().
	Registry *dataset.Registry

	// Logger receives per-asset debug logs. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Loader reads catalogue items' assets out of object storage.
type Loader struct {
	resolver *resolve.Resolver
	store    filestore.Store
	registry *dataset.Registry
	log      zerolog.Logger
}

// New builds a Loader from cfg.
func New(cfg Config) (*Loader, error) {
	if cfg.Resolver == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "loader: resolver is required")
	}
	if cfg.Store == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "loader: store is required")
	}
	reg := cfg.Registry
	if reg == nil {
		reg = dataset.DefaultRegistry()
	}
	log := logger.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Loader{resolver: cfg.Resolver, store: cfg.Store, registry: reg, log: log}, nil
}

// OpenAsset resolves one asset of item and opens it for streaming.
// The caller MUST close the returned object.
func (l *Loader) OpenAsset(ctx context.Context, item catalogue.Item, assetKey string) (filestore.Object, error) {
	loc, err := l.locate(item, assetKey)
	if err != nil {
		return nil, err
	}

	obj, err := l.store.GetObject(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, err
	}

	l.log.Debug().
		Str("item_id", item.ID).
		Str("asset", assetKey).
		Str("bucket", loc.Bucket).
		Str("key", loc.Key).
		Int64("size", obj.Info().Size).
		Msg("asset opened")
	return obj, nil
}

// StatAsset resolves one asset of item and returns its storage metadata
// without downloading the content.
func (l *Loader) StatAsset(ctx context.Context, item catalogue.Item, assetKey string) (*filestore.ObjectInfo, error) {
	loc, err := l.locate(item, assetKey)
	if err != nil {
		return nil, err
	}
	return l.store.StatObject(ctx, loc.Bucket, loc.Key)
}

// DownloadAsset resolves one asset of item and copies it to the local
// file at path.
func (l *Loader) DownloadAsset(ctx context.Context, item catalogue.Item, assetKey, path string) error {
	loc, err := l.locate(item, assetKey)
	if err != nil {
		return err
	}
	if err := l.store.Download(ctx, loc.Bucket, loc.Key, path); err != nil {
		return err
	}

	l.log.Debug().
		Str("item_id", item.ID).
		Str("asset", assetKey).
		Str("path", path).
		Msg("asset downloaded")
	return nil
}

// LoadAsset streams one named asset across all items, in item order, into
// a single frame. Each item's object is opened, decoded and closed before
// the next item's is touched.
func (l *Loader) LoadAsset(ctx context.Context, items []catalogue.Item, assetKey string) (*dataset.Frame, error) {
	combined := dataset.NewFrame()
	for _, item := range items {
		if err := l.loadOne(ctx, item, assetKey, combined); err != nil {
			return nil, err
		}
	}

	l.log.Debug().
		Str("asset", assetKey).
		Int("items", len(items)).
		Int("records", combined.Len()).
		Msg("asset loaded")
	return combined, nil
}

// LoadAssets loads every named asset across all items and merges the
// per-asset frames column-wise, suffixing columns with the asset key.
func (l *Loader) LoadAssets(ctx context.Context, items []catalogue.Item, assetKeys []string) (*dataset.Frame, error) {
	frames := make(map[string]*dataset.Frame, len(assetKeys))
	for _, key := range assetKeys {
		frame, err := l.LoadAsset(ctx, items, key)
		if err != nil {
			return nil, err
		}
		frames[key] = frame
	}
	return dataset.Merge(assetKeys, frames), nil
}

// loadOne opens, decodes and closes a single item's asset, appending its
// records to the combined frame.
func (l *Loader) loadOne(ctx context.Context, item catalogue.Item, assetKey string, combined *dataset.Frame) error {
	obj, err := l.OpenAsset(ctx, item, assetKey)
	if err != nil {
		return err
	}
	defer obj.Close()

	frame, err := dataset.Assemble(l.registry, []dataset.Reading{
		{Item: item, Asset: assetKey, Object: obj},
	})
	if err != nil {
		return err
	}

	combined.AddColumns(frame.Columns()...)
	for _, rec := range frame.Records() {
		combined.Append(rec)
	}
	return nil
}

// locate finds the asset on the item and resolves its href.
func (l *Loader) locate(item catalogue.Item, assetKey string) (resolve.Location, error) {
	asset, ok := item.Assets[assetKey]
	if !ok {
		return resolve.Location{}, errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("item %s has no asset %q", item.ID, assetKey))
	}
	return l.resolver.Resolve(asset.Href)
}
