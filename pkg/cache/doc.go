// Package cache provides a generic LRU cache with an eviction callback,
// used to bound the number of per-user broadcasters held in memory.
package cache
