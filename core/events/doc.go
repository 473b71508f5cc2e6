// Package events defines the tender events emitted on the event bus and
// delivered to downstream consumers.
//
// Outbound events (delivered at least once, consumers dedupe by tender id):
//   - TenderAwarded: a carrier won the tender
//   - TenderExpired: the response window closed without bids
//   - TenderRejected: a reviewer rejected every bid
//
// Internal events:
//   - BidReceived, StateChanged, ReviewRequired, TenderCancelled
package events
