package spatial

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bucky-sim/bucky/sim/numeric"
)

var (
	reduceCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bucky_reduce_cache_hits_total",
		Help: "Total cached spatial reductions served from cache",
	}, []string{"cache_type"})

	reduceCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bucky_reduce_cache_misses_total",
		Help: "Total cached spatial reductions that had to be computed",
	}, []string{"cache_type"})

	reduceCacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bucky_reduce_cache_errors_total",
		Help: "Total cache read or write failures",
	}, []string{"cache_type", "op"})
)

// Cache memoizes reductions by content key. Entries are a pure function of
// their key, so concurrent writers of the same key are harmless.
type Cache interface {
	// Type labels the cache in metrics ("memory" or "badger").
	Type() string
	// Get returns the cached array, or ok=false on a miss.
	Get(key string) (a *numeric.Array, ok bool, err error)
	// Put stores a under key.
	Put(key string, a *numeric.Array) error
}

// MemoryCache keeps reductions for the lifetime of the process.
type MemoryCache struct {
	m sync.Map
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache { return &MemoryCache{} }

func (c *MemoryCache) Type() string { return "memory" }

func (c *MemoryCache) Get(key string) (*numeric.Array, bool, error) {
	v, ok := c.m.Load(key)
	if !ok {
		return nil, false, nil
	}
	return v.(*numeric.Array).Clone(), true, nil
}

func (c *MemoryCache) Put(key string, a *numeric.Array) error {
	c.m.Store(key, a.Clone())
	return nil
}

// BadgerCache persists reductions in a badger database so they survive
// across processes sharing a cache directory.
type BadgerCache struct {
	db *badger.DB
}

// OpenBadgerCache opens (or creates) a cache database in dir.
func OpenBadgerCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening reduction cache %s: %w", dir, err)
	}
	return &BadgerCache{db: db}, nil
}

// NewBadgerCache wraps an already open database.
func NewBadgerCache(db *badger.DB) *BadgerCache { return &BadgerCache{db: db} }

func (c *BadgerCache) Type() string { return "badger" }

func (c *BadgerCache) Get(key string) (*numeric.Array, bool, error) {
	var out *numeric.Array
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			a, err := decodeArray(val)
			out = a
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (c *BadgerCache) Put(key string, a *numeric.Array) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), encodeArray(a))
	})
}

// Close releases the database.
func (c *BadgerCache) Close() error { return c.db.Close() }

// encodeArray writes ndim, the shape, then the values, all little-endian.
func encodeArray(a *numeric.Array) []byte {
	shape := a.Shape()
	buf := make([]byte, 0, 4+8*len(shape)+8*a.Size())
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(shape)))
	for _, d := range shape {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(d))
	}
	for _, v := range a.Data() {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

func decodeArray(buf []byte) (*numeric.Array, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("invalid cached value length: %d", len(buf))
	}
	nd := int(binary.LittleEndian.Uint32(buf))
	buf = buf[4:]
	if len(buf) < 8*nd {
		return nil, fmt.Errorf("cached value truncated in shape")
	}
	shape := make([]int, nd)
	for i := range shape {
		shape[i] = int(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	buf = buf[8*nd:]
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("cached value has %d trailing bytes", len(buf)%8)
	}
	data := make([]float64, len(buf)/8)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return numeric.FromSlice(data, shape...)
}
