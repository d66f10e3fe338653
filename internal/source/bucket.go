package source

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
)

// NewFSBucket returns a bucket rooted at dir on the local file system.
func NewFSBucket(dir string) (objstore.Bucket, error) {
	return filesystem.NewBucket(dir)
}

type bucketFetcher struct {
	bucket objstore.Bucket
	name   string
}

func (b *bucketFetcher) kind() string { return "bucket" }

func (b *bucketFetcher) size(ctx context.Context) (int64, error) {
	attrs, err := b.bucket.Attributes(ctx, b.name)
	if err != nil {
		return 0, b.classify(err)
	}
	return attrs.Size, nil
}

func (b *bucketFetcher) fetch(ctx context.Context, off, n int64) ([]byte, error) {
	rc, err := b.bucket.GetRange(ctx, b.name, off, n)
	if err != nil {
		return nil, b.classify(err)
	}
	defer rc.Close()
	return readFull(rc, n)
}

func (b *bucketFetcher) classify(err error) error {
	if b.bucket.IsObjNotFoundErr(err) {
		return backoff.Permanent(err)
	}
	return err
}
