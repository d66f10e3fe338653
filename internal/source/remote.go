package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vinceanalytics/stepscan/internal/metrics"
)

var errNegativeOffset = errors.New("source: negative offset")

type fetcher interface {
	kind() string
	size(ctx context.Context) (int64, error)
	fetch(ctx context.Context, off, n int64) ([]byte, error)
}

// remote reads a file block by block through the resolver cache. Concurrent
// misses for the same block result in a single fetch.
type remote struct {
	r       *Resolver
	f       fetcher
	locator string
	// key identifies this version of the file in the block cache, files
	// rewritten with a different size do not see stale blocks.
	key     string
	size    int64
	pos     int64
	closed  atomic.Bool
	log     *slog.Logger
}

var _ Source = (*remote)(nil)

func (r *Resolver) openRemote(ctx context.Context, locator string, f fetcher) (*remote, error) {
	var size int64
	err := r.retry(ctx, func() error {
		var err error
		size, err = f.size(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &remote{
		r:       r,
		f:       f,
		locator: locator,
		key:     locator + "@" + strconv.FormatInt(size, 10),
		size:    size,
		log:     r.log.With(slog.String("source", locator)),
	}, nil
}

func (m *remote) Size() int64 {
	return m.size
}

func (m *remote) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *remote) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = m.size + offset
	default:
		return 0, fmt.Errorf("source: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errNegativeOffset
	}
	m.pos = abs
	return abs, nil
}

func (m *remote) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, errNegativeOffset
	}
	if off >= m.size {
		return 0, io.EOF
	}
	bs := m.r.o.BlockSize
	n := 0
	for n < len(p) && off < m.size {
		idx := off / bs
		data, err := m.block(idx)
		if err != nil {
			return n, err
		}
		c := copy(p[n:], data[off-idx*bs:])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *remote) block(idx int64) ([]byte, error) {
	if data, ok := m.r.cache.Get(m.key, idx); ok {
		return data, nil
	}
	key := m.key + "#" + strconv.FormatInt(idx, 10)
	v, err, _ := m.r.group.Do(key, func() (any, error) {
		bs := m.r.o.BlockSize
		off := idx * bs
		n := min(bs, m.size-off)
		var data []byte
		// ReadAt carries no context and the fetch is shared by every waiter,
		// so it is bounded by the client timeout and retry limit instead.
		err := m.r.retry(context.Background(), func() error {
			metrics.RemoteReads.WithLabelValues(m.f.kind()).Inc()
			var err error
			data, err = m.f.fetch(context.Background(), off, n)
			return err
		})
		if err != nil {
			return nil, err
		}
		m.r.cache.Set(m.key, idx, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r *Resolver) retry(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.o.RetryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.o.Retries), ctx)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		metrics.RemoteRetries.Inc()
		r.log.Warn("retrying remote read",
			slog.String("err", err.Error()),
			slog.Duration("after", d),
		)
	})
}

func readFull(rd io.Reader, n int64) ([]byte, error) {
	data := make([]byte, n)
	_, err := io.ReadFull(rd, data)
	if err != nil {
		return nil, err
	}
	return data, nil
}
