// ABOUTME: Tests for per-participant keyed locks
// ABOUTME: Verifies mutual exclusion per key and map cleanup after release

package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks_SerializesSameKey(t *testing.T) {
	k := newKeyedLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.lock("u1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedLocks_ReleasedEntriesAreRemoved(t *testing.T) {
	k := newKeyedLocks()

	unlock := k.lock("u1")
	assert.Len(t, k.locks, 1)
	unlock()
	assert.Empty(t, k.locks)
}

func TestKeyedLocks_DifferentKeysDoNotBlock(t *testing.T) {
	k := newKeyedLocks()

	unlockA := k.lock("u1")
	done := make(chan struct{})
	go func() {
		unlockB := k.lock("u2")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
