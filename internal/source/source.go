// Package source provides random access byte sources for parquet files stored
// on local disk, behind HTTP servers that honor range requests or inside an
// object storage bucket.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/thanos-io/objstore"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBlockSize     = 1 << 20
	DefaultCacheSize     = 64 << 20
	DefaultRetries       = 3
	DefaultRetryInterval = 100 * time.Millisecond
	DefaultTimeout       = 30 * time.Second

	BucketScheme = "bucket://"
	FileScheme   = "file://"
)

var ErrNoBucket = errors.New("source: no bucket configured")

// Source is a random access view of a whole file. It satisfies
// parquet.ReaderAtSeeker.
type Source interface {
	io.ReaderAt
	io.Seeker
	io.Closer
	Size() int64
}

type Options struct {
	// BlockSize is the unit of remote reads and of caching.
	BlockSize int64
	// CacheSize is the maximum number of bytes of remote blocks kept in
	// memory. Zero disables caching.
	CacheSize     int64
	Retries       uint64
	RetryInterval time.Duration
	Timeout       time.Duration
	// Bucket serves bucket:// locators.
	Bucket objstore.Bucket
}

func (o *Options) defaults() {
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
}

// Resolver opens sources by locator. It is safe for concurrent use, all
// remote sources opened through the same resolver share one block cache.
type Resolver struct {
	o         Options
	transport *http.Transport
	client    *http.Client
	cache     *Cache
	group     singleflight.Group
	log       *slog.Logger
}

func NewResolver(o Options) (*Resolver, error) {
	o.defaults()
	cache, err := NewCache(o.CacheSize, o.BlockSize)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Resolver{
		o:         o,
		transport: transport,
		client: &http.Client{
			Transport: transport,
			Timeout:   o.Timeout,
		},
		cache: cache,
		log: slog.Default().With(
			slog.String("component", "source"),
		),
	}, nil
}

func (r *Resolver) Close() {
	r.cache.Close()
	r.transport.CloseIdleConnections()
}

// Open returns the source identified by locator. http:// and https://
// locators are read with range requests, bucket:// locators from the
// configured bucket and everything else, optionally prefixed with file://,
// from the local file system.
func (r *Resolver) Open(ctx context.Context, locator string) (Source, error) {
	switch {
	case IsHTTP(locator):
		return r.openRemote(ctx, locator, &httpFetcher{
			client: r.client,
			url:    locator,
		})
	case strings.HasPrefix(locator, BucketScheme):
		if r.o.Bucket == nil {
			return nil, ErrNoBucket
		}
		return r.openRemote(ctx, locator, &bucketFetcher{
			bucket: r.o.Bucket,
			name:   strings.TrimPrefix(locator, BucketScheme),
		})
	default:
		return OpenFile(strings.TrimPrefix(locator, FileScheme))
	}
}

func IsHTTP(locator string) bool {
	return strings.HasPrefix(locator, "http://") ||
		strings.HasPrefix(locator, "https://")
}

type File struct {
	*os.File
	size int64
}

var _ Source = (*File)(nil)

func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		f.Close()
		return nil, fmt.Errorf("source: %s is a directory", path)
	}
	return &File{File: f, size: stat.Size()}, nil
}

func (f *File) Size() int64 {
	return f.size
}
