package minio

import (
	"context"
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NAEO-KCL/cdse-grab/internal/errs"
	"github.com/NAEO-KCL/cdse-grab/internal/filestore"
)

var lastModified = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeObject struct {
	data        []byte
	contentType string
}

// fakeS3 is an in-process object storage stub speaking just enough of the
// S3 REST/XML dialect for the SDK: object GET/HEAD, bucket HEAD, bucket
// location, ListObjectsV2, and XML error bodies.
type fakeS3 struct {
	srv     *httptest.Server
	buckets map[string]map[string]fakeObject

	denyAll      bool
	objectStatus int // when non-zero, object requests fail with this status
}

func newFakeS3(t *testing.T) *fakeS3 {
	f := &fakeS3{buckets: map[string]map[string]fakeObject{}}

	r := chi.NewRouter()
	r.Get("/{bucket}/*", f.handleGet)
	r.Head("/{bucket}/*", f.handleHead)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeS3) addBucket(bucket string) {
	if f.buckets[bucket] == nil {
		f.buckets[bucket] = map[string]fakeObject{}
	}
}

func (f *fakeS3) put(bucket, key, contentType string, data []byte) {
	f.addBucket(bucket)
	f.buckets[bucket][key] = fakeObject{data: data, contentType: contentType}
}

func (f *fakeS3) config() *filestore.Config {
	endpoint := strings.TrimPrefix(f.srv.URL, "http://")
	return filestore.DefaultConfig(endpoint, "AKEXAMPLE", "SKEXAMPLE")
}

func (f *fakeS3) handleGet(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	if f.denyAll {
		writeS3Error(w, http.StatusForbidden, "AccessDenied", bucket+"/"+key)
		return
	}

	if key == "" {
		q := r.URL.Query()
		switch {
		case q.Has("location"):
			writeXML(w, http.StatusOK, locationConstraint{})
		case q.Get("list-type") == "2":
			f.handleList(w, bucket, q.Get("prefix"), q.Get("delimiter"), q.Get("start-after"))
		default:
			writeS3Error(w, http.StatusBadRequest, "InvalidRequest", bucket)
		}
		return
	}

	if f.objectStatus != 0 {
		writeS3Error(w, f.objectStatus, "InjectedFailure", bucket+"/"+key)
		return
	}
	obj, ok := f.buckets[bucket][key]
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchKey", bucket+"/"+key)
		return
	}

	writeObjectHeaders(w, obj)
	w.WriteHeader(http.StatusOK)
	w.Write(obj.data)
}

func (f *fakeS3) handleHead(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	if f.denyAll {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if key == "" {
		if _, ok := f.buckets[bucket]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	obj, ok := f.buckets[bucket][key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeObjectHeaders(w, obj)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) handleList(w http.ResponseWriter, bucket, prefix, delimiter, startAfter string) {
	objects, ok := f.buckets[bucket]
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", bucket)
		return
	}

	keys := make([]string, 0, len(objects))
	for key := range objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := listBucketResult{Name: bucket, Prefix: prefix, MaxKeys: 1000}
	seenPrefixes := map[string]bool{}

	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if startAfter != "" && key <= startAfter {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if i := strings.Index(rest, delimiter); delimiter != "" && i >= 0 {
			p := prefix + rest[:i+len(delimiter)]
			if !seenPrefixes[p] {
				seenPrefixes[p] = true
				result.CommonPrefixes = append(result.CommonPrefixes, commonPrefix{Prefix: p})
			}
			continue
		}
		obj := objects[key]
		result.Contents = append(result.Contents, listEntry{
			Key:          key,
			LastModified: lastModified.Format(time.RFC3339),
			ETag:         etag(obj.data),
			Size:         int64(len(obj.data)),
			StorageClass: "STANDARD",
		})
	}
	result.KeyCount = len(result.Contents) + len(result.CommonPrefixes)

	writeXML(w, http.StatusOK, result)
}

func writeObjectHeaders(w http.ResponseWriter, obj fakeObject) {
	w.Header().Set("Content-Type", obj.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	w.Header().Set("ETag", etag(obj.data))
	w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
}

func etag(data []byte) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%x", md5.Sum(data)))
}

func writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	io.WriteString(w, xml.Header)
	xml.NewEncoder(w).Encode(v)
}

func writeS3Error(w http.ResponseWriter, status int, code, resource string) {
	writeXML(w, status, s3Error{Code: code, Message: code, Resource: "/" + resource})
}

type s3Error struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
}

type locationConstraint struct {
	XMLName  xml.Name `xml:"LocationConstraint"`
	Location string   `xml:",chardata"`
}

type listBucketResult struct {
	XMLName        xml.Name       `xml:"ListBucketResult"`
	Name           string         `xml:"Name"`
	Prefix         string         `xml:"Prefix"`
	KeyCount       int            `xml:"KeyCount"`
	MaxKeys        int            `xml:"MaxKeys"`
	IsTruncated    bool           `xml:"IsTruncated"`
	Contents       []listEntry    `xml:"Contents"`
	CommonPrefixes []commonPrefix `xml:"CommonPrefixes"`
}

type listEntry struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

func newTestDriver(t *testing.T, f *fakeS3) *Driver {
	d, err := New(context.Background(), f.config())
	require.NoError(t, err)
	return d
}

func TestNew_ValidatesConnection(t *testing.T) {
	f := newFakeS3(t)
	f.addBucket(filestore.EODataBucket)

	d := newTestDriver(t, f)
	assert.NoError(t, d.Close())
}

func TestNew_BucketMissing(t *testing.T) {
	f := newFakeS3(t)

	_, err := New(context.Background(), f.config())
	require.Error(t, err)
	assert.True(t, errs.IsObjectNotFound(err))
	assert.Contains(t, err.Error(), filestore.EODataBucket)
}

func TestNew_AccessDenied(t *testing.T) {
	f := newFakeS3(t)
	f.denyAll = true

	_, err := New(context.Background(), f.config())
	require.Error(t, err)
	assert.True(t, errs.IsAccessDenied(err))
}

func TestDriver_GetObject(t *testing.T) {
	f := newFakeS3(t)
	content := []byte("netcdf bytes")
	f.put(filestore.EODataBucket, "Sentinel-3/FRP_in.nc", "application/x-netcdf", content)

	d := newTestDriver(t, f)

	obj, err := d.GetObject(context.Background(), filestore.EODataBucket, "Sentinel-3/FRP_in.nc")
	require.NoError(t, err)
	defer obj.Close()

	got, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	info := obj.Info()
	assert.Equal(t, "Sentinel-3/FRP_in.nc", info.Key)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "application/x-netcdf", info.ContentType)
	assert.NotEmpty(t, info.ETag)
}

func TestDriver_GetObjectMissing(t *testing.T) {
	f := newFakeS3(t)
	f.addBucket(filestore.EODataBucket)

	d := newTestDriver(t, f)

	_, err := d.GetObject(context.Background(), filestore.EODataBucket, "Sentinel-3/nope.nc")
	require.Error(t, err)
	assert.True(t, errs.IsObjectNotFound(err))
}

func TestDriver_StatObject(t *testing.T) {
	f := newFakeS3(t)
	content := []byte("netcdf bytes")
	f.put(filestore.EODataBucket, "Sentinel-3/FRP_in.nc", "application/x-netcdf", content)

	d := newTestDriver(t, f)

	info, err := d.StatObject(context.Background(), filestore.EODataBucket, "Sentinel-3/FRP_in.nc")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "application/x-netcdf", info.ContentType)
	assert.True(t, lastModified.Equal(info.LastModified))

	_, err = d.StatObject(context.Background(), filestore.EODataBucket, "Sentinel-3/nope.nc")
	require.Error(t, err)
	assert.True(t, errs.IsObjectNotFound(err))
}

func TestDriver_ListObjects(t *testing.T) {
	f := newFakeS3(t)
	f.put(filestore.EODataBucket, "Sentinel-3/SL_2_FRP___/2023/06/01/a/FRP_in.nc", "application/x-netcdf", []byte("a"))
	f.put(filestore.EODataBucket, "Sentinel-3/SL_2_FRP___/2023/06/01/b/FRP_in.nc", "application/x-netcdf", []byte("b"))
	f.put(filestore.EODataBucket, "Sentinel-3/manifest.json", "application/json", []byte("{}"))

	d := newTestDriver(t, f)
	ctx := context.Background()

	t.Run("recursive", func(t *testing.T) {
		objects, err := d.ListObjects(ctx, filestore.EODataBucket, filestore.ListOptions{
			Prefix:    "Sentinel-3/",
			Recursive: true,
		})
		require.NoError(t, err)
		require.Len(t, objects, 3)
		for _, obj := range objects {
			assert.False(t, obj.IsDir)
		}
	})

	t.Run("grouped by prefix", func(t *testing.T) {
		objects, err := d.ListObjects(ctx, filestore.EODataBucket, filestore.ListOptions{
			Prefix: "Sentinel-3/",
		})
		require.NoError(t, err)
		require.Len(t, objects, 2)

		byKey := map[string]filestore.ObjectInfo{}
		for _, obj := range objects {
			byKey[obj.Key] = obj
		}
		assert.True(t, byKey["Sentinel-3/SL_2_FRP___/"].IsDir)
		assert.False(t, byKey["Sentinel-3/manifest.json"].IsDir)
	})

	t.Run("limit", func(t *testing.T) {
		objects, err := d.ListObjects(ctx, filestore.EODataBucket, filestore.ListOptions{
			Prefix:    "Sentinel-3/",
			Recursive: true,
			Limit:     1,
		})
		require.NoError(t, err)
		assert.Len(t, objects, 1)
	})

	t.Run("marker resumes after key", func(t *testing.T) {
		objects, err := d.ListObjects(ctx, filestore.EODataBucket, filestore.ListOptions{
			Recursive: true,
			Marker:    "Sentinel-3/SL_2_FRP___/2023/06/01/a/FRP_in.nc",
		})
		require.NoError(t, err)
		require.Len(t, objects, 2)
		assert.Equal(t, "Sentinel-3/SL_2_FRP___/2023/06/01/b/FRP_in.nc", objects[0].Key)
	})
}

func TestDriver_Download(t *testing.T) {
	f := newFakeS3(t)
	content := []byte("netcdf bytes for download")
	f.put(filestore.EODataBucket, "Sentinel-3/FRP_in.nc", "application/x-netcdf", content)

	d := newTestDriver(t, f)

	path := filepath.Join(t.TempDir(), "FRP_in.nc")
	err := d.Download(context.Background(), filestore.EODataBucket, "Sentinel-3/FRP_in.nc", path)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDriver_DownloadMissing(t *testing.T) {
	f := newFakeS3(t)
	f.addBucket(filestore.EODataBucket)

	d := newTestDriver(t, f)

	path := filepath.Join(t.TempDir(), "nope.nc")
	err := d.Download(context.Background(), filestore.EODataBucket, "Sentinel-3/nope.nc", path)
	require.Error(t, err)
	assert.True(t, errs.IsObjectNotFound(err))
}

func TestDriver_PresignGetURL(t *testing.T) {
	f := newFakeS3(t)
	f.addBucket(filestore.EODataBucket)

	d := newTestDriver(t, f)

	u, err := d.PresignGetURL(context.Background(), filestore.EODataBucket, "Sentinel-3/FRP_in.nc", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "/eodata/Sentinel-3/FRP_in.nc")
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=900")
}

func TestDriver_TransferError(t *testing.T) {
	f := newFakeS3(t)
	f.put(filestore.EODataBucket, "Sentinel-3/FRP_in.nc", "application/x-netcdf", []byte("x"))

	d := newTestDriver(t, f)
	f.objectStatus = http.StatusConflict

	_, err := d.GetObject(context.Background(), filestore.EODataBucket, "Sentinel-3/FRP_in.nc")
	require.Error(t, err)
	assert.True(t, errs.IsTransfer(err))
}

func TestDriver_ContextCanceled(t *testing.T) {
	f := newFakeS3(t)
	f.addBucket(filestore.EODataBucket)

	d := newTestDriver(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.StatObject(ctx, filestore.EODataBucket, "Sentinel-3/FRP_in.nc")
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
}
