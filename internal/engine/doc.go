// Package engine owns the recognition engine subprocess and its line protocol.
//
// Supervisor launches the engine, serializes writes to its stdin, and relays
// stdout lines through a bounded bridge to exactly one consumer. Stderr is
// logged and never surfaces as an Event. The engine is never restarted
// implicitly; a new Supervisor must be spawned by the caller.
package engine
