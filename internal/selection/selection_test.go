package selection_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ebookconverter/internal/selection"
)

func TestParseRange(t *testing.T) {
	ids, errs := selection.ParseRange("1,2-4,6,8-", 10)
	require.Empty(t, errs)
	assert.Equal(t, []int{1, 2, 3, 4, 6, 8, 9, 10}, ids)
}

func TestParseRangeOpenStart(t *testing.T) {
	ids, errs := selection.ParseRange("-3", 100)
	require.Empty(t, errs)
	assert.Equal(t, []int{1, 2, 3}, ids)
}

func TestParseRangeSkipsMalformedItems(t *testing.T) {
	ids, errs := selection.ParseRange("5, x, 9-7, 1-2-3, 11 ,5", 20)
	assert.Equal(t, []int{5, 11}, ids)
	require.Len(t, errs, 3)

	var rangeErr *selection.RangeError
	require.ErrorAs(t, errs[1], &rangeErr)
	assert.Equal(t, "9-7", rangeErr.Item)
	assert.Contains(t, errs[0].Error(), `"x"`)
}

func TestParseRangeEmpty(t *testing.T) {
	ids, errs := selection.ParseRange("", 10)
	assert.Empty(t, ids)
	assert.Empty(t, errs)
}

func TestCompact(t *testing.T) {
	cases := map[string][]int{
		"":               nil,
		"7":              {7},
		"1 2":            {1, 2},
		"1 2 4-9":        {1, 2, 4, 5, 6, 7, 8, 9},
		"10-12 20 30 31": {10, 11, 12, 20, 30, 31},
		"9 8 7":          {9, 8, 7},
	}
	for want, ids := range cases {
		assert.Equal(t, want, selection.Compact(ids), "ids %v", ids)
	}
}

func TestBatches(t *testing.T) {
	got := selection.Batches([]int{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, got)

	assert.Equal(t, [][]int{{1}, {2}}, selection.Batches([]int{1, 2}, 0))
	assert.Empty(t, selection.Batches(nil, 3))
}

func TestIntersectKeepsOrder(t *testing.T) {
	got := selection.Intersect([]int{9, 3, 5, 1}, []int{1, 5, 9, 42})
	assert.Equal(t, []int{9, 5, 1}, got)
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []int{1, 3, 5}, selection.SortedUnique([]int{5, 1, 3, 1, 5}))
}
