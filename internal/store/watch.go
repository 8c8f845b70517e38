// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"container/heap"
	"time"

	"github.com/relabs-tech/cypilot/internal/values"
)

// watchEntry is one periodic watch: connection, value, interval, and the
// next time it should fire. It mirrors the original's heapq-scheduled
// Watch, using Go's container/heap instead of Python's heapq module.
type watchEntry struct {
	conn   *Conn
	name   string
	value  values.Value
	period time.Duration
	next   time.Time
	index  int

	// lastMsg is the payload most recently sent to the watcher; a
	// periodic fire is skipped when the value has not been published
	// to a new payload since.
	lastMsg string
}

// watchHeap is a min-heap of watchEntry ordered by next fire time.
type watchHeap []*watchEntry

func (h watchHeap) Len() int            { return len(h) }
func (h watchHeap) Less(i, j int) bool  { return h[i].next.Before(h[j].next) }
func (h watchHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *watchHeap) Push(x any) {
	e := x.(*watchEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *watchHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

func (h *watchHeap) push(e *watchEntry) { heap.Push(h, e) }
func (h *watchHeap) pop() *watchEntry   { return heap.Pop(h).(*watchEntry) }
func (h *watchHeap) peek() *watchEntry  { return (*h)[0] }
func (h *watchHeap) len() int           { return len(*h) }
