package source

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/vinceanalytics/stepscan/internal/metrics"
)

// Cache keeps remote blocks in memory. A nil *Cache is valid and caches
// nothing.
type Cache struct {
	c *ristretto.Cache
}

type block struct {
	locator string
	index   int64
	data    []byte
}

func NewCache(size, blockSize int64) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	counters := 10 * (size / blockSize)
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        counters,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

func (c *Cache) Get(locator string, index int64) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.c.Get(blockKey(locator, index))
	if !ok {
		metrics.CacheMisses.Inc()
		return nil, false
	}
	// keys are hashes, make sure this is really our block
	b := v.(*block)
	if b.index != index || b.locator != locator {
		metrics.CacheMisses.Inc()
		return nil, false
	}
	metrics.CacheHits.Inc()
	return b.data, true
}

func (c *Cache) Set(locator string, index int64, data []byte) {
	if c == nil {
		return
	}
	c.c.Set(blockKey(locator, index), &block{
		locator: locator,
		index:   index,
		data:    data,
	}, int64(len(data)))
}

// Wait blocks until pending sets are applied.
func (c *Cache) Wait() {
	if c == nil {
		return
	}
	c.c.Wait()
}

func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.c.Close()
}

func blockKey(locator string, index int64) uint64 {
	var b bytes.Buffer
	b.WriteString(locator)
	binary.Write(&b, binary.BigEndian, index)
	return xxhash.Sum64(b.Bytes())
}
