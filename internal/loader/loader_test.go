package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NAEO-KCL/cdse-grab/internal/catalogue"
	"github.com/NAEO-KCL/cdse-grab/internal/dataset"
	"github.com/NAEO-KCL/cdse-grab/internal/errs"
	"github.com/NAEO-KCL/cdse-grab/internal/filestore"
	"github.com/NAEO-KCL/cdse-grab/internal/resolve"
)

var acquiredAt = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

type memObject struct {
	data        string
	contentType string
}

// memStore is an in-memory filestore.Store that counts opens and closes.
type memStore struct {
	objects map[string]memObject // "bucket/key"
	opens   int
	closes  int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]memObject{}}
}

func (s *memStore) put(bucket, key, contentType, data string) {
	s.objects[bucket+"/"+key] = memObject{data: data, contentType: contentType}
}

func (s *memStore) Ping(ctx context.Context) error { return nil }
func (s *memStore) Close() error                   { return nil }

func (s *memStore) ListObjects(ctx context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	return nil, nil
}

func (s *memStore) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	obj, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.New(errs.ErrKindObjectNotFound, fmt.Sprintf("no object at %s/%s", bucket, key))
	}
	s.opens++
	return &memHandle{
		Reader: strings.NewReader(obj.data),
		store:  s,
		info: filestore.ObjectInfo{
			Key:         key,
			Size:        int64(len(obj.data)),
			ContentType: obj.contentType,
		},
	}, nil
}

func (s *memStore) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	obj, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.New(errs.ErrKindObjectNotFound, fmt.Sprintf("no object at %s/%s", bucket, key))
	}
	return &filestore.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (s *memStore) Download(ctx context.Context, bucket, key, path string) error {
	obj, ok := s.objects[bucket+"/"+key]
	if !ok {
		return errs.New(errs.ErrKindObjectNotFound, fmt.Sprintf("no object at %s/%s", bucket, key))
	}
	return os.WriteFile(path, []byte(obj.data), 0o644)
}

func (s *memStore) PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + bucket + "/" + key, nil
}

type memHandle struct {
	io.Reader
	store *memStore
	info  filestore.ObjectInfo
}

func (h *memHandle) Close() error {
	h.store.closes++
	return nil
}

func (h *memHandle) Info() *filestore.ObjectInfo { return &h.info }

func frpItem(id string) catalogue.Item {
	return catalogue.Item{
		ID:              id,
		Collection:      catalogue.DefaultCollection,
		AcquisitionTime: acquiredAt,
		Assets: map[string]catalogue.Asset{
			"FRP_in": {
				Href: "s3://eodata/Sentinel-3/" + id + "/FRP_in.json",
				Type: dataset.MediaTypeJSON,
			},
			"FRP_an": {
				Href: "s3://eodata/Sentinel-3/" + id + "/FRP_an.json",
				Type: dataset.MediaTypeJSON,
			},
		},
	}
}

func newTestLoader(t *testing.T, store filestore.Store) *Loader {
	resolver, err := resolve.New(resolve.Config{Endpoint: "https://s3.example"})
	require.NoError(t, err)

	ldr, err := New(Config{Resolver: resolver, Store: store})
	require.NoError(t, err)
	return ldr
}

func TestNew_Validation(t *testing.T) {
	resolver, err := resolve.New(resolve.Config{})
	require.NoError(t, err)

	_, err = New(Config{Store: newMemStore()})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = New(Config{Resolver: resolver})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoader_OpenAsset(t *testing.T) {
	store := newMemStore()
	store.put("eodata", "Sentinel-3/S3A_001/FRP_in.json", dataset.MediaTypeJSON, `[{"frp_mwir": 12.5}]`)

	ldr := newTestLoader(t, store)

	obj, err := ldr.OpenAsset(context.Background(), frpItem("S3A_001"), "FRP_in")
	require.NoError(t, err)

	content, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.NoError(t, obj.Close())

	assert.Equal(t, `[{"frp_mwir": 12.5}]`, string(content))
	assert.Equal(t, 1, store.opens)
	assert.Equal(t, 1, store.closes)
}

func TestLoader_OpenAssetErrors(t *testing.T) {
	store := newMemStore()
	ldr := newTestLoader(t, store)
	ctx := context.Background()

	t.Run("missing asset key", func(t *testing.T) {
		_, err := ldr.OpenAsset(ctx, frpItem("S3A_001"), "FRP_bn")
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))
		assert.Contains(t, err.Error(), "FRP_bn")
	})

	t.Run("unresolvable href", func(t *testing.T) {
		item := frpItem("S3A_001")
		item.Assets["broken"] = catalogue.Asset{Href: "relative/path.nc"}

		_, err := ldr.OpenAsset(ctx, item, "broken")
		require.Error(t, err)
		assert.True(t, errs.IsUnresolvableAsset(err))
	})

	t.Run("object not found", func(t *testing.T) {
		_, err := ldr.OpenAsset(ctx, frpItem("S3A_001"), "FRP_in")
		require.Error(t, err)
		assert.True(t, errs.IsObjectNotFound(err))
	})
}

func TestLoader_StatAsset(t *testing.T) {
	store := newMemStore()
	store.put("eodata", "Sentinel-3/S3A_001/FRP_in.json", dataset.MediaTypeJSON, `[{"frp_mwir": 12.5}]`)

	ldr := newTestLoader(t, store)

	info, err := ldr.StatAsset(context.Background(), frpItem("S3A_001"), "FRP_in")
	require.NoError(t, err)
	assert.Equal(t, int64(len(`[{"frp_mwir": 12.5}]`)), info.Size)
	assert.Equal(t, 0, store.opens, "stat must not open the object")
}

func TestLoader_DownloadAsset(t *testing.T) {
	store := newMemStore()
	store.put("eodata", "Sentinel-3/S3A_001/FRP_in.json", dataset.MediaTypeJSON, `[{"frp_mwir": 12.5}]`)

	ldr := newTestLoader(t, store)

	path := filepath.Join(t.TempDir(), "FRP_in.json")
	require.NoError(t, ldr.DownloadAsset(context.Background(), frpItem("S3A_001"), "FRP_in", path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[{"frp_mwir": 12.5}]`, string(content))
}

func TestLoader_LoadAsset(t *testing.T) {
	store := newMemStore()
	store.put("eodata", "Sentinel-3/S3A_001/FRP_in.json", dataset.MediaTypeJSON,
		`[{"frp_mwir": 12.5}, {"frp_mwir": 7.25}]`)
	store.put("eodata", "Sentinel-3/S3B_002/FRP_in.json", dataset.MediaTypeJSON,
		`[{"frp_mwir": 3.5}]`)

	ldr := newTestLoader(t, store)
	items := []catalogue.Item{frpItem("S3A_001"), frpItem("S3B_002")}

	frame, err := ldr.LoadAsset(context.Background(), items, "FRP_in")
	require.NoError(t, err)
	require.Equal(t, 3, frame.Len())

	records := frame.Records()
	assert.Equal(t, "S3A_001", records[0]["item_id"])
	assert.Equal(t, "S3B_002", records[2]["item_id"])
	assert.Equal(t, acquiredAt, records[0]["acquisition_time"])
	assert.Equal(t, 12.5, records[0]["frp_mwir"])

	// One open and one close per item.
	assert.Equal(t, 2, store.opens)
	assert.Equal(t, 2, store.closes)
}

func TestLoader_LoadAssetClosesOnDecodeError(t *testing.T) {
	store := newMemStore()
	store.put("eodata", "Sentinel-3/S3A_001/FRP_in.json", dataset.MediaTypeJSON, `not json at all`)

	ldr := newTestLoader(t, store)

	_, err := ldr.LoadAsset(context.Background(), []catalogue.Item{frpItem("S3A_001")}, "FRP_in")
	require.Error(t, err)
	assert.Equal(t, store.opens, store.closes, "failed decode must still close the object")
}

func TestLoader_LoadAssetStopsAtFirstFailure(t *testing.T) {
	store := newMemStore()
	store.put("eodata", "Sentinel-3/S3A_001/FRP_in.json", dataset.MediaTypeJSON, `[{"frp_mwir": 12.5}]`)
	// S3B_002's object is absent.

	ldr := newTestLoader(t, store)
	items := []catalogue.Item{frpItem("S3A_001"), frpItem("S3B_002"), frpItem("S3C_003")}

	_, err := ldr.LoadAsset(context.Background(), items, "FRP_in")
	require.Error(t, err)
	assert.True(t, errs.IsObjectNotFound(err))
	assert.Equal(t, 1, store.opens, "no further items after the failure")
	assert.Equal(t, 1, store.closes)
}

func TestLoader_LoadAssets(t *testing.T) {
	store := newMemStore()
	store.put("eodata", "Sentinel-3/S3A_001/FRP_in.json", dataset.MediaTypeJSON, `[{"frp_mwir": 12.5}]`)
	store.put("eodata", "Sentinel-3/S3A_001/FRP_an.json", dataset.MediaTypeJSON, `[{"frp_mwir": 11.0}]`)

	ldr := newTestLoader(t, store)

	frame, err := ldr.LoadAssets(context.Background(), []catalogue.Item{frpItem("S3A_001")},
		[]string{"FRP_in", "FRP_an"})
	require.NoError(t, err)
	require.Equal(t, 1, frame.Len())

	rec := frame.Records()[0]
	assert.Equal(t, 12.5, rec["frp_mwir_FRP_in"])
	assert.Equal(t, 11.0, rec["frp_mwir_FRP_an"])
	assert.Equal(t, "S3A_001", rec["item_id_FRP_in"])
}
