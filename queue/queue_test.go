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

package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEnqueueIdsAreMonotonicAndGapFree exercises Testable Property 1:
// across concurrent producers, sequence ids are strictly increasing with
// no gaps starting at 1.
func TestEnqueueIdsAreMonotonicAndGapFree(t *testing.T) {
	q := New(0)
	const producers = 8
	const perProducer = 200

	ids := make(chan uint64, producers*perProducer)
	var wg sync.WaitGroup
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				ids <- q.Enqueue(struct{}{})
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool, producers*perProducer)
	for id := range ids {
		assert.False(t, seen[id], "id %d was handed out twice", id)
		seen[id] = true
	}
	for i := uint64(1); i <= uint64(producers*perProducer); i++ {
		assert.True(t, seen[i], "id %d missing: sequence must be gap-free", i)
	}
}

// TestDequeueDeliversEnqueueOrder checks that a single producer's items
// come back out in the order they went in.
func TestDequeueDeliversEnqueueOrder(t *testing.T) {
	q := New(0)
	for i := 0; i < 50; i++ {
		q.Enqueue(i)
	}
	for i := 0; i < 50; i++ {
		item, err := q.Dequeue()
		assert.NoError(t, err)
		assert.Equal(t, i, item.Input)
		assert.Equal(t, uint64(i+1), item.Id)
	}
}

// TestDequeueBlocksUntilEnqueue confirms Dequeue waits rather than
// returning prematurely on an empty queue.
func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New(0)
	done := make(chan struct{})
	go func() {
		item, err := q.Dequeue()
		assert.NoError(t, err)
		assert.Equal(t, "late", item.Input)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Dequeue returned before anything was enqueued")
	default:
	}

	q.Enqueue("late")
	<-done
}

// TestCloseWakesBlockedDequeueAfterDraining ensures Close only yields
// ErrClosed once every already-enqueued item has been delivered.
func TestCloseWakesBlockedDequeueAfterDraining(t *testing.T) {
	q := New(0)
	q.Enqueue("a")
	q.Enqueue("b")
	q.Close()

	first, err := q.Dequeue()
	assert.NoError(t, err)
	assert.Equal(t, "a", first.Input)

	second, err := q.Dequeue()
	assert.NoError(t, err)
	assert.Equal(t, "b", second.Input)

	_, err = q.Dequeue()
	assert.Equal(t, ErrClosed, err)
}

// TestBoundedQueueAppliesBackpressure checks the optional bounded mode:
// Enqueue blocks while full and releases once Dequeue frees a slot.
func TestBoundedQueueAppliesBackpressure(t *testing.T) {
	q := New(1)
	q.Enqueue("first")

	unblocked := make(chan struct{})
	go func() {
		q.Enqueue("second")
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("Enqueue on a full bounded queue must block")
	default:
	}

	_, err := q.Dequeue()
	assert.NoError(t, err)
	<-unblocked
	assert.Equal(t, 1, q.Len())
}
