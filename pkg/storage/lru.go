package storage

import "container/list"

// lruCache is a bounded ordered set of resident unit keys. Touching a key
// moves it to the most-recent end; when the set grows past capacity the
// least-recently-touched keys fall out and are returned to the caller, which
// owns persisting and dropping them. A capacity of zero disables eviction.
type lruCache struct {
	capacity int
	list     *list.List
	cache    map[string]*list.Element
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		list:     list.New(),
		cache:    make(map[string]*list.Element),
	}
}

// Touch marks key as most recently used, inserting it if absent, and returns
// the keys evicted to get back under capacity. The touched key itself is
// never evicted.
func (lru *lruCache) Touch(key string) []string {
	if element, exists := lru.cache[key]; exists {
		lru.list.MoveToFront(element)
		return nil
	}

	element := lru.list.PushFront(key)
	lru.cache[key] = element

	if lru.capacity <= 0 {
		return nil
	}

	var evicted []string
	for lru.list.Len() > lru.capacity {
		back := lru.list.Back()
		if back == nil || back == element {
			break
		}
		evictedKey := back.Value.(string)
		delete(lru.cache, evictedKey)
		lru.list.Remove(back)
		evicted = append(evicted, evictedKey)
	}
	return evicted
}

// Remove drops key from the set without treating it as an eviction.
func (lru *lruCache) Remove(key string) {
	if element, exists := lru.cache[key]; exists {
		delete(lru.cache, key)
		lru.list.Remove(element)
	}
}

func (lru *lruCache) Len() int {
	return lru.list.Len()
}
