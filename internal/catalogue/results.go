package catalogue

import (
	"context"

	"github.com/rs/zerolog"
)

// Results iterates over the items matched by a search, fetching further
// pages from the catalogue as needed. The contract mirrors a database rows
// cursor:
//
//	for results.Next() {
//		item := results.Item()
//		// use item
//	}
//	if err := results.Err(); err != nil {
//		// a later page failed; items already seen remain valid
//	}
//
// A Results is single-use and not safe for concurrent use. Re-running the
// search produces a fresh Results and issues fresh catalogue calls.
type Results struct {
	ctx      context.Context
	client   *Client
	log      zerolog.Logger
	baseBody []byte

	items   []Item
	pos     int
	next    *Link
	window  timeWindow
	max     int
	yielded int
	matched *int

	err  error
	done bool
}

func newResults(ctx context.Context, c *Client, first *featureCollection, baseBody []byte, window timeWindow, max int, log zerolog.Logger) *Results {
	return &Results{
		ctx:      ctx,
		client:   c,
		log:      log,
		baseBody: baseBody,
		items:    first.Features,
		pos:      -1,
		next:     first.next(),
		window:   window,
		max:      max,
		matched:  first.NumberMatched,
	}
}

func emptyResults() *Results {
	return &Results{pos: -1, done: true}
}

// Next advances to the next item, fetching the next page from the
// catalogue when the current one is exhausted. It returns false when the
// results are exhausted or a page fetch failed; check Err to tell the two
// apart.
func (r *Results) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	if r.max > 0 && r.yielded >= r.max {
		r.finish()
		return false
	}
	for {
		r.pos++
		if r.pos < len(r.items) {
			if !r.window.contains(r.items[r.pos].AcquisitionTime) {
				continue
			}
			r.yielded++
			return true
		}
		if r.next == nil {
			r.finish()
			return false
		}
		page, err := r.client.fetchPage(r.ctx, *r.next, r.baseBody, r.log)
		if err != nil {
			r.err = err
			r.done = true
			return false
		}
		r.items = page.Features
		r.next = page.next()
		r.pos = -1
	}
}

// Item returns the item Next advanced to. It is only valid after a call to
// Next that returned true, and only until the following call to Next.
func (r *Results) Item() Item {
	return r.items[r.pos]
}

// Err returns the error that stopped iteration, if any. Items yielded
// before the failure remain valid.
func (r *Results) Err() error {
	return r.err
}

// Matched returns the catalogue's declared total match count, when the
// catalogue reported one. The count ignores the client-side time filter
// and any MaxItems cap, so it may exceed the number of items yielded.
func (r *Results) Matched() (int, bool) {
	if r.matched == nil {
		return 0, false
	}
	return *r.matched, true
}

func (r *Results) finish() {
	r.done = true
	r.log.Debug().Int("items", r.yielded).Msg("catalogue search finished")
}

// Collect drains the results into a slice. When iteration stops on an
// error, the items gathered so far are returned alongside it.
func Collect(r *Results) ([]Item, error) {
	var items []Item
	for r.Next() {
		items = append(items, r.Item())
	}
	return items, r.Err()
}
