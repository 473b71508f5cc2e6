// Package scheduler fires tender decision triggers at response deadlines,
// bid expiries and on demand. A single loop goroutine polls a min-heap of
// due entries; callbacks run on their own goroutines so tenders never wait
// on each other.
package scheduler
