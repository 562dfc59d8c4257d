package spatial

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucky-sim/bucky/sim/numeric"
)

// counties in three states; state 2 has no county in the second test mask
var testFIPS = []int{1001, 1003, 2013, 6001, 6003, 6005}

func testHierarchy(t *testing.T) *Hierarchy {
	t.Helper()
	h, err := HierarchyFromFIPS("US", testFIPS)
	require.NoError(t, err)
	return h
}

func backends() map[string]numeric.Backend {
	return map[string]numeric.Backend{
		numeric.BackendHost:     numeric.NewHost(),
		numeric.BackendParallel: numeric.NewParallel(3),
	}
}

func TestHierarchyFromFIPS(t *testing.T) {
	h := testHierarchy(t)
	assert.Equal(t, "US", h.Country())
	assert.Equal(t, 6, h.NFine())
	assert.Equal(t, 3, h.NCoarse())
	assert.Equal(t, []int{1, 2, 6}, h.CoarseIDs())
	assert.Equal(t, []int{0, 0, 1, 2, 2, 2}, h.Parents())
	assert.Equal(t, []int{3, 4, 5}, h.Children(2))
	assert.Equal(t, testFIPS, h.FineIDs())
}

func TestNewHierarchy_Errors(t *testing.T) {
	_, err := NewHierarchy("US", []int{1, 2}, []int{1})
	assert.ErrorContains(t, err, "parent ids")
	_, err = NewHierarchy("US", []int{1, 1}, []int{1, 1})
	assert.ErrorContains(t, err, "duplicate")
	_, err = HierarchyFromFIPS("US", []int{-5})
	assert.Error(t, err)
}

func TestReduceToParent_MatchesGroupBySum(t *testing.T) {
	h := testHierarchy(t)
	// (fine regions, age groups) population
	pop := numeric.MustFromSlice([]float64{
		10, 1,
		20, 2,
		30, 3,
		40, 4,
		50, 5,
		60, 6,
	}, 6, 2)

	// independent group-by over external ids
	want := map[int][2]float64{}
	for i, f := range testFIPS {
		s := want[f/1000]
		s[0] += pop.At(i, 0)
		s[1] += pop.At(i, 1)
		want[f/1000] = s
	}

	for name, be := range backends() {
		t.Run(name, func(t *testing.T) {
			agg := NewAggregator(h, be, nil)
			out, err := agg.ReduceToParent(pop, nil)
			require.NoError(t, err)
			require.Equal(t, []int{3, 2}, out.Shape())
			for c, id := range h.CoarseIDs() {
				assert.Equal(t, want[id][0], out.At(c, 0), "state %d", id)
				assert.Equal(t, want[id][1], out.At(c, 1), "state %d", id)
			}
		})
	}
}

func TestReduceToParent_Mask(t *testing.T) {
	h := testHierarchy(t)
	agg := NewAggregator(h, numeric.NewHost(), nil)
	arr := numeric.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 6)

	tests := []struct {
		name string
		arr  *numeric.Array
		mask Mask
		want []float64
	}{
		{"bool mask full array", arr, BoolMask{true, false, false, true, true, false}, []float64{1, 0, 9}},
		{"index mask full array", arr, IndexMask{1, 5}, []float64{2, 0, 6}},
		{"index mask pre-masked array", numeric.MustFromSlice([]float64{7, 8}, 2), IndexMask{0, 2}, []float64{7, 8, 0}},
		{"unsorted index mask full array", arr, IndexMask{5, 1}, []float64{2, 0, 6}},
		{"unsorted index mask pre-masked array", numeric.MustFromSlice([]float64{7, 8}, 2), IndexMask{2, 0}, []float64{7, 8, 0}},
		{"permuted mask over every region", arr, IndexMask{5, 4, 3, 2, 1, 0}, []float64{3, 3, 15}},
		{"bool mask over every region", arr, BoolMask{true, true, true, true, true, true}, []float64{3, 3, 15}},
		{"empty mask", arr, IndexMask{}, []float64{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := agg.ReduceToParent(tt.arr, tt.mask)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Data())
		})
	}

	_, err := agg.ReduceToParent(arr, BoolMask{true})
	assert.Error(t, err)
	_, err = agg.ReduceToParent(arr, IndexMask{6})
	assert.Error(t, err)
	_, err = agg.ReduceToParent(arr, IndexMask{0, 0, 2})
	assert.ErrorContains(t, err, "twice")
	_, err = agg.ReduceToParent(numeric.Zeros(4), IndexMask{0})
	assert.Error(t, err)
	_, err = agg.ReduceToParent(numeric.Zeros(5), nil)
	assert.Error(t, err)
}

func TestReduceToCountryAndAxis(t *testing.T) {
	h := testHierarchy(t)
	agg := NewAggregator(h, numeric.NewHost(), nil)

	// (time, fine region) series
	series := numeric.MustFromSlice([]float64{
		1, 1, 1, 1, 1, 1,
		1, 2, 3, 4, 5, 6,
	}, 2, 6)

	out, err := agg.ReduceAxis(series, -1, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, out.Shape())
	assert.Equal(t, []float64{2, 1, 3, 3, 3, 15}, out.Data())

	total, err := agg.ReduceToCountry(series.Transpose(1, 0))
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 21}, total.Data())

	_, err = agg.ReduceToCountry(series)
	assert.Error(t, err)
	_, err = agg.ReduceAxis(series, 2, nil)
	assert.Error(t, err)
}

type countingCache struct {
	mu         sync.Mutex
	inner      Cache
	gets, puts int
	failReads  bool
}

func (c *countingCache) Type() string { return "counting" }

func (c *countingCache) Get(key string) (*numeric.Array, bool, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	if c.failReads {
		return nil, false, errors.New("disk on fire")
	}
	return c.inner.Get(key)
}

func (c *countingCache) Put(key string, a *numeric.Array) error {
	c.mu.Lock()
	c.puts++
	c.mu.Unlock()
	return c.inner.Put(key, a)
}

func TestReduceToParentCached(t *testing.T) {
	h := testHierarchy(t)
	cache := &countingCache{inner: NewMemoryCache()}
	agg := NewAggregator(h, numeric.NewHost(), cache)
	arr := numeric.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 6)

	first, err := agg.ReduceToParentCached(arr, nil)
	require.NoError(t, err)
	second, err := agg.ReduceToParentCached(arr, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Data(), second.Data())
	assert.Equal(t, 2, cache.gets)
	assert.Equal(t, 1, cache.puts, "second call must be a hit")

	// a mask changes the key
	_, err = agg.ReduceToParentCached(arr, IndexMask{0})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.puts)

	// so does the content
	arr.SetAt(100, 0)
	third, err := agg.ReduceToParentCached(arr, nil)
	require.NoError(t, err)
	assert.Equal(t, 102.0, third.At(0))
	assert.Equal(t, 3, cache.puts)

	// cached results are copies
	third.Fill(0)
	again, err := agg.ReduceToParentCached(arr, nil)
	require.NoError(t, err)
	assert.Equal(t, 102.0, again.At(0))
}

func TestReduceToParentCached_ReadErrorFallsBack(t *testing.T) {
	h := testHierarchy(t)
	cache := &countingCache{inner: NewMemoryCache(), failReads: true}
	agg := NewAggregator(h, numeric.NewHost(), cache)
	out, err := agg.ReduceToParentCached(numeric.Full(1, 6), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 3}, out.Data())
}

func TestBadgerCache_RoundTrip(t *testing.T) {
	cache, err := OpenBadgerCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	a := numeric.MustFromSlice([]float64{1.5, -2, 3e-300, 4}, 2, 2)
	require.NoError(t, cache.Put("k", a))
	got, ok, err := cache.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.Shape(), got.Shape())
	assert.Equal(t, a.Data(), got.Data())

	h := testHierarchy(t)
	agg := NewAggregator(h, numeric.NewHost(), cache)
	pop := numeric.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 6)
	first, err := agg.ReduceToParentCached(pop, nil)
	require.NoError(t, err)
	second, err := agg.ReduceToParentCached(pop, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Data(), second.Data())
}

func TestDecodeArray_Malformed(t *testing.T) {
	_, err := decodeArray([]byte{1})
	assert.Error(t, err)
	buf := encodeArray(numeric.Zeros(2))
	_, err = decodeArray(buf[:len(buf)-3])
	assert.Error(t, err)
}
