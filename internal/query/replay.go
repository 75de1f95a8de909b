package query

import (
	"container/list"
	"errors"
	"sync"
)

// ErrExecutionInProgress is returned while an execution with the same
// idempotency key is still running.
var ErrExecutionInProgress = errors.New("execution with this idempotency key is in progress")

// ReplayCache remembers recent execution responses by idempotency key so a
// retried request gets the first response back instead of moving funds again.
// Keys are held in an LRU of fixed capacity. In-flight keys are never
// evicted, so the list may exceed capacity while they are all running.
type ReplayCache struct {
	mu       sync.Mutex
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

type replayEntry struct {
	key string
	// nil while the execution is in flight
	resp *ExecutionResponse
}

func NewReplayCache(capacity int) *ReplayCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ReplayCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Begin reserves key. It returns the stored response when key already
// completed and ErrExecutionInProgress when it is running. A nil response
// and nil error mean the caller owns key and must Complete or Abort it.
func (c *ReplayCache) Begin(key string) (*ExecutionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lruList.MoveToFront(elem)
		entry := elem.Value.(*replayEntry)
		if entry.resp == nil {
			return nil, ErrExecutionInProgress
		}
		replay := *entry.resp
		replay.Replayed = true
		return &replay, nil
	}

	c.cache[key] = c.lruList.PushFront(&replayEntry{key: key})
	if c.lruList.Len() > c.capacity {
		c.evictOldest()
	}
	return nil, nil
}

// Complete stores resp as the answer for key.
func (c *ReplayCache) Complete(key string, resp *ExecutionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *resp
	if elem, ok := c.cache[key]; ok {
		elem.Value.(*replayEntry).resp = &stored
		c.lruList.MoveToFront(elem)
		return
	}
	// evicted while in flight
	c.cache[key] = c.lruList.PushFront(&replayEntry{key: key, resp: &stored})
	if c.lruList.Len() > c.capacity {
		c.evictOldest()
	}
}

// Abort releases key after a failed execution so the request can be retried.
func (c *ReplayCache) Abort(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lruList.Remove(elem)
		delete(c.cache, key)
	}
}

// evictOldest drops the least recently used completed entry.
func (c *ReplayCache) evictOldest() {
	for elem := c.lruList.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*replayEntry)
		if entry.resp == nil {
			continue
		}
		c.lruList.Remove(elem)
		delete(c.cache, entry.key)
		c.evictions++
		return
	}
}

// Size returns the number of remembered keys.
func (c *ReplayCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Evictions returns how many keys were dropped for capacity.
func (c *ReplayCache) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}
