package plex

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sectionServer serves a fixed item list through container windows the way
// a real section listing does.
func sectionServer(t *testing.T, items []Metadata, queries *[]map[string]string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if queries != nil {
			rec := map[string]string{}
			for k := range q {
				rec[k] = q.Get(k)
			}
			*queries = append(*queries, rec)
		}

		start, _ := strconv.Atoi(q.Get("X-Plex-Container-Start"))
		size, _ := strconv.Atoi(q.Get("X-Plex-Container-Size"))

		end := start + size
		if start > len(items) {
			start = len(items)
		}
		if end > len(items) {
			end = len(items)
		}

		envelope := map[string]MediaContainer{"MediaContainer": {
			Size:      end - start,
			TotalSize: len(items),
			Metadata:  items[start:end],
		}}
		if err := json.NewEncoder(w).Encode(envelope); err != nil {
			t.Errorf("encoding response: %v", err)
		}
	}
}

func makeItems(n int) []Metadata {
	items := make([]Metadata, n)
	for i := range items {
		items[i] = Metadata{
			RatingKey: strconv.Itoa(1000 + i),
			Type:      "movie",
			Title:     "Movie " + strconv.Itoa(i),
			UpdatedAt: int64(1700000000 + i),
		}
	}
	return items
}

func collect(t *testing.T, it *ItemIterator) []string {
	t.Helper()
	var keys []string
	for it.Next(context.Background()) {
		keys = append(keys, it.Item().RatingKey)
	}
	require.NoError(t, it.Err())
	return keys
}

func TestItems_PaginatesAcrossWindows(t *testing.T) {
	var queries []map[string]string
	c, _ := newTestClient(t, sectionServer(t, makeItems(7), &queries))

	keys := collect(t, c.Items("1", TypeMovie, ItemOptions{PageSize: 3}))
	require.Len(t, keys, 7)
	assert.Equal(t, "1000", keys[0])
	assert.Equal(t, "1006", keys[6])

	// Three full-or-partial windows cover seven items.
	require.Len(t, queries, 3)
	assert.Equal(t, "0", queries[0]["X-Plex-Container-Start"])
	assert.Equal(t, "3", queries[1]["X-Plex-Container-Start"])
	assert.Equal(t, "6", queries[2]["X-Plex-Container-Start"])
	assert.Equal(t, "3", queries[0]["X-Plex-Container-Size"])
	assert.Equal(t, "1", queries[0]["type"])
	assert.Equal(t, "1", queries[0]["includeGuids"])
	assert.NotContains(t, queries[0], "sort")
}

func TestItems_LimitStopsEarly(t *testing.T) {
	var queries []map[string]string
	c, _ := newTestClient(t, sectionServer(t, makeItems(10), &queries))

	keys := collect(t, c.Items("1", TypeMovie, ItemOptions{Limit: 4, PageSize: 3}))
	require.Len(t, keys, 4)
	assert.Equal(t, []string{"1000", "1001", "1002", "1003"}, keys)
	// The second window is the last one needed.
	assert.Len(t, queries, 2)
}

func TestItems_OffsetStartsMidStream(t *testing.T) {
	c, _ := newTestClient(t, sectionServer(t, makeItems(5), nil))

	keys := collect(t, c.Items("1", TypeMovie, ItemOptions{Offset: 3, PageSize: 10}))
	assert.Equal(t, []string{"1003", "1004"}, keys)
}

func TestItems_SinceEpochFiltersStale(t *testing.T) {
	items := makeItems(6)
	// Two stale items in the middle of the stream must be skipped without
	// ending the iteration.
	items[2].UpdatedAt = 100
	items[3].UpdatedAt = 0
	items[3].AddedAt = 200

	var queries []map[string]string
	c, _ := newTestClient(t, sectionServer(t, items, &queries))

	since := int64(1700000000)
	keys := collect(t, c.Items("1", TypeMovie, ItemOptions{SinceEpoch: &since, PageSize: 2}))
	assert.Equal(t, []string{"1000", "1001", "1004", "1005"}, keys)
	assert.Equal(t, "updatedAt:desc", queries[0]["sort"])
}

func TestItems_SinceEpochAddedAtFallback(t *testing.T) {
	items := []Metadata{
		{RatingKey: "1", AddedAt: 500},
		{RatingKey: "2", AddedAt: 1500},
	}
	c, _ := newTestClient(t, sectionServer(t, items, nil))

	since := int64(1000)
	keys := collect(t, c.Items("1", TypeMovie, ItemOptions{SinceEpoch: &since}))
	assert.Equal(t, []string{"2"}, keys)
}

func TestItems_EmptySection(t *testing.T) {
	c, _ := newTestClient(t, sectionServer(t, nil, nil))

	it := c.Items("1", TypeMovie, ItemOptions{})
	assert.False(t, it.Next(context.Background()))
	assert.NoError(t, it.Err())
}

func TestItems_ErrorSurfacesThroughErr(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	it := c.Items("1", TypeMovie, ItemOptions{})
	assert.False(t, it.Next(context.Background()))
	require.Error(t, it.Err())

	// Once failed the iterator stays failed.
	assert.False(t, it.Next(context.Background()))
}
