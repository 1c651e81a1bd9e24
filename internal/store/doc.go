// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the dispatch pipeline, which only ever reads occurrences and recipients
// and advances occurrence status through a compare-and-set update.
package store
