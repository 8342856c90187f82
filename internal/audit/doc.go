// Package audit relays events to a sink from a background goroutine.
//
// # Components
//
//   - [Sink] is the consumer interface, generic over the event type.
//   - [Dispatcher] is a buffered relay that either drops or blocks when full.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. It does NOT decide which events
// to emit; that belongs to the engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import secureauth or any sibling package.
package audit
