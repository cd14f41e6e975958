// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package matcher

import "github.com/gammazero/deque"

// requestQueue is the unbounded FIFO of match requests waiting for a free
// double buffer slot.
type requestQueue = deque.Deque[*request]

// newRequestQueue returns an empty queue that keeps room for at least hint
// requests without resizing.
func newRequestQueue(hint int) *requestQueue {
	var q requestQueue
	q.SetBaseCap(hint)
	return &q
}

// popRequest removes and returns the request at the head of q.  It returns nil
// when q is empty.
func popRequest(q *requestQueue) *request {
	if q.Len() == 0 {
		return nil
	}
	return q.PopFront()
}

// drainRequests removes and returns every queued request in FIFO order.
func drainRequests(q *requestQueue) []*request {
	if q.Len() == 0 {
		return nil
	}
	reqs := make([]*request, 0, q.Len())
	for q.Len() > 0 {
		reqs = append(reqs, q.PopFront())
	}
	return reqs
}
