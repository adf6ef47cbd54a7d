// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package queue implements the single FIFO input queue (C1) shared by
// every event producer: the chain observer, the network hub, the API
// server, and the delay timer. It is the linearization point for the
// whole node: the dequeue order is the only order the head logic ever
// sees.
package queue

import (
	"container/list"
	"errors"
	"sync"
)

// Item is one entry dequeued from the queue: a monotonic sequence id
// paired with the input that produced it. Every effect the head logic
// emits in response is stamped with this Id.
type Item struct {
	Id    uint64
	Input interface{}
}

// ErrClosed is returned by Dequeue once the queue has been shut down and
// drained.
var ErrClosed = errors.New("queue: closed")

// Queue is a single-producer-multi-source, multi-consumer-safe (though in
// practice single-consumer, per §5) FIFO. Sequence ids start at 1 and are
// strictly monotonic and gap-free across concurrent Enqueue calls.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   *list.List
	nextId  uint64
	closed  bool
	maxSize int // 0 means unbounded
}

// New builds an empty queue. maxSize bounds the number of pending items;
// 0 means unbounded (the "backpressure neutral" default from §4.1).
func New(maxSize int) *Queue {
	q := &Queue{
		items:   list.New(),
		nextId:  1,
		maxSize: maxSize,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue assigns the next sequence id to input and appends it. It blocks
// only if the queue is bounded and full; a closed queue silently drops
// the item (no producer is expected to enqueue after Close).
func (q *Queue) Enqueue(input interface{}) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.maxSize > 0 && q.items.Len() >= q.maxSize && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return 0
	}
	id := q.nextId
	q.nextId++
	q.items.PushBack(Item{Id: id, Input: input})
	q.cond.Broadcast()
	return id
}

// Dequeue blocks until an item is available or the queue is closed and
// drained, in which case it returns ErrClosed.
func (q *Queue) Dequeue() (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		if q.closed {
			return Item{}, ErrClosed
		}
		q.cond.Wait()
	}
	front := q.items.Front()
	q.items.Remove(front)
	q.cond.Broadcast()
	return front.Value.(Item), nil
}

// Close wakes every blocked Dequeue/Enqueue with a terminal signal. Items
// already enqueued are still delivered; Dequeue only returns ErrClosed
// once the queue is empty.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the number of pending items, mostly for metrics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
