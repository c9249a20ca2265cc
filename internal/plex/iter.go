package plex

import "context"

// ItemOptions scopes an item iteration.
type ItemOptions struct {
	// Limit caps the number of items yielded; zero means no cap.
	Limit int
	// Offset is the starting position in the server-side window.
	Offset int
	// SinceEpoch, when set, requests updatedAt-descending order and
	// filters out items whose remote timestamp is older. The filter runs
	// client-side as a safety net on top of the server-side sort.
	SinceEpoch *int64
	// PageSize overrides the container window size.
	PageSize int
}

// ItemIterator walks a section listing page by page without holding the
// whole library in memory.
type ItemIterator struct {
	client     *Client
	libraryKey string
	itemType   ItemType
	opts       ItemOptions

	buf      []Metadata
	bufPos   int
	offset   int
	total    int
	seen     int
	yielded  int
	finished bool
	err      error
	current  *Metadata
}

// Items starts a lazy iteration over a library section.
func (c *Client) Items(libraryKey string, itemType ItemType, opts ItemOptions) *ItemIterator {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	return &ItemIterator{
		client:     c,
		libraryKey: libraryKey,
		itemType:   itemType,
		opts:       opts,
		offset:     opts.Offset,
	}
}

// Next advances the iterator, fetching the next page when the buffer runs
// dry. It returns false at the end of the stream or on error.
func (it *ItemIterator) Next(ctx context.Context) bool {
	for {
		if it.err != nil || it.finished {
			return false
		}
		if it.opts.Limit > 0 && it.yielded >= it.opts.Limit {
			it.finished = true
			return false
		}

		if it.bufPos >= len(it.buf) {
			if !it.fetch(ctx) {
				return false
			}
		}

		md := it.buf[it.bufPos]
		it.bufPos++
		it.seen++

		if it.opts.SinceEpoch != nil && remoteEpoch(&md) < *it.opts.SinceEpoch {
			continue
		}

		it.current = &md
		it.yielded++
		return true
	}
}

// Item returns the current item. Only valid after Next returned true.
func (it *ItemIterator) Item() *Metadata {
	return it.current
}

// Err reports the first error encountered during iteration.
func (it *ItemIterator) Err() error {
	return it.err
}

func (it *ItemIterator) fetch(ctx context.Context) bool {
	if it.total > 0 && it.offset >= it.total {
		it.finished = true
		return false
	}

	mc, err := it.client.fetchPage(ctx, it.libraryKey, it.itemType, it.offset, it.opts.PageSize, it.opts.SinceEpoch)
	if err != nil {
		it.err = err
		return false
	}

	if mc.TotalSize > 0 {
		it.total = mc.TotalSize
	}
	if len(mc.Metadata) == 0 {
		it.finished = true
		return false
	}

	it.buf = mc.Metadata
	it.bufPos = 0
	it.offset += len(mc.Metadata)
	return true
}

// remoteEpoch is the item's remote modification time, falling back to the
// added time when the server never set updatedAt.
func remoteEpoch(md *Metadata) int64 {
	if md.UpdatedAt > 0 {
		return md.UpdatedAt
	}
	return md.AddedAt
}
